package progress

import (
	"testing"
)

func TestPublishReachesOnlyMatchingScope(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("project-a")
	defer a.Close()
	b := hub.Subscribe("project-b")
	defer b.Close()

	hub.Publish("project-a", ProgressEvent("run-1", "preprocess", 0.25))

	select {
	case ev := <-a.C:
		if ev.Type != TypeProgress || ev.RunID != "run-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("subscriber on project-a received nothing")
	}
	select {
	case ev := <-b.C:
		t.Fatalf("subscriber on project-b received %+v", ev)
	default:
	}
}

func TestPublishStampsMonotonicSequence(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("project-a")
	defer sub.Close()

	hub.Publish("project-a", ProgressEvent("run-1", "preprocess", 0.25))
	hub.Publish("project-a", ProgressEvent("run-1", "analyze", 0.5))
	hub.Publish("project-a", ProgressEvent("run-1", "train", 0.75))

	var last uint64
	for i := 0; i < 3; i++ {
		ev := <-sub.C
		if ev.Seq <= last {
			t.Fatalf("sequence not increasing: %d after %d", ev.Seq, last)
		}
		last = ev.Seq
	}
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("project-a")
	defer sub.Close()

	tasks := []string{"preprocess", "analyze", "train", "finalize"}
	for i, task := range tasks {
		hub.Publish("project-a", ProgressEvent("run-1", task, float64(i+1)*0.25))
	}
	for _, want := range tasks {
		ev := <-sub.C
		if ev.Task != want {
			t.Fatalf("expected task %s, got %s", want, ev.Task)
		}
	}
}

func TestSlowSubscriberIsEvictedOthersUnaffected(t *testing.T) {
	hub := NewHubWithBuffer(2)
	slow := hub.Subscribe("project-a")
	fast := hub.Subscribe("project-a")
	defer fast.Close()

	// Fill slow's buffer, drain fast as we go.
	for i := 0; i < 3; i++ {
		hub.Publish("project-a", ProgressEvent("run-1", "train", 0.75))
		<-fast.C
	}

	if got := hub.Subscribers("project-a"); got != 1 {
		t.Fatalf("expected slow subscriber evicted, have %d live", got)
	}

	// Eviction closes the channel after the buffered events drain.
	seen := 0
	for range slow.C {
		seen++
	}
	if seen != 2 {
		t.Fatalf("expected 2 buffered events before close, got %d", seen)
	}

	// The survivor keeps receiving.
	hub.Publish("project-a", ProgressEvent("run-1", "finalize", 1.0))
	select {
	case ev := <-fast.C:
		if ev.Task != "finalize" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("surviving subscriber received nothing")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("project-a")
	sub.Close()
	sub.Close()
	if got := hub.Subscribers("project-a"); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
	hub.Publish("project-a", ProgressEvent("run-1", "train", 0.75))
}

func TestCloseAfterEvictionDoesNotPanic(t *testing.T) {
	hub := NewHubWithBuffer(1)
	sub := hub.Subscribe("project-a")
	hub.Publish("project-a", ProgressEvent("run-1", "a", 0.1))
	hub.Publish("project-a", ProgressEvent("run-1", "b", 0.2)) // evicts
	sub.Close()
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Publish("project-a", ProgressEvent("run-1", "train", 0.75))
}
