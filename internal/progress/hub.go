package progress

import (
	"sync"
)

const defaultBuffer = 64

// Hub routes events to subscribers grouped by scope (project id).
// Publishing never blocks: a subscriber whose buffer is full is evicted
// so one stalled websocket cannot hold up a training run.
type Hub struct {
	mu     sync.Mutex
	buffer int
	scopes map[string]*scopeState
}

type scopeState struct {
	seq  uint64
	subs map[*Subscription]struct{}
}

// Subscription is one listener on a scope. Events arrives on C until
// Close is called or the hub evicts the subscription, after which C is
// closed.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	scope string
	hub   *Hub
	once  sync.Once
}

func NewHub() *Hub {
	return NewHubWithBuffer(defaultBuffer)
}

func NewHubWithBuffer(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{buffer: buffer, scopes: make(map[string]*scopeState)}
}

func (h *Hub) Subscribe(scope string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, scope: scope, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.scopes[scope]
	if !ok {
		state = &scopeState{subs: make(map[*Subscription]struct{})}
		h.scopes[scope] = state
	}
	state.subs[sub] = struct{}{}
	return sub
}

// Publish stamps the event with the scope's next sequence number and
// delivers it to every live subscriber of that scope. Other scopes never
// see it.
func (h *Hub) Publish(scope string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.scopes[scope]
	if !ok || len(state.subs) == 0 {
		return
	}
	state.seq++
	event.Seq = state.seq
	for sub := range state.subs {
		select {
		case sub.ch <- event:
		default:
			// Buffer full: drop the subscriber, not the run.
			delete(state.subs, sub)
			close(sub.ch)
		}
	}
}

// Subscribers reports the number of live subscriptions on a scope.
func (h *Hub) Subscribers(scope string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.scopes[scope]
	if !ok {
		return 0
	}
	return len(state.subs)
}

// Close detaches the subscription and closes its channel. Safe to call
// more than once, and safe to race with an eviction.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		state, ok := s.hub.scopes[s.scope]
		if !ok {
			return
		}
		if _, live := state.subs[s]; live {
			delete(state.subs, s)
			close(s.ch)
		}
		if len(state.subs) == 0 {
			delete(s.hub.scopes, s.scope)
		}
	})
}
