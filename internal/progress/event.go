// Package progress fans live pipeline events out to websocket
// subscribers. Events are ephemeral: delivery is best effort and nothing
// is persisted or replayed.
package progress

// Event types pushed over the training progress stream.
const (
	TypeProgress      = "progress"
	TypeModelProgress = "model_progress"
	TypeHyperProgress = "hyperparameter_progress"
	TypeError         = "error"
	TypeCompleted     = "completed"
)

// Event is one JSON frame on the progress stream. Seq is stamped by the
// hub per scope; subscribers can detect gaps after an eviction.
type Event struct {
	Type     string         `json:"type"`
	Seq      uint64         `json:"seq"`
	RunID    string         `json:"run_id,omitempty"`
	Task     string         `json:"task,omitempty"`
	Progress *float64       `json:"progress,omitempty"`
	Model    string         `json:"model,omitempty"`
	Status   string         `json:"status,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Score    *float64       `json:"score,omitempty"`
	Index    int            `json:"index,omitempty"`
	Total    int            `json:"total,omitempty"`
	Message  string         `json:"message,omitempty"`
}

func ProgressEvent(runID, task string, progress float64) Event {
	return Event{Type: TypeProgress, RunID: runID, Task: task, Progress: &progress}
}

func ModelProgressEvent(runID, model, status string, score *float64) Event {
	return Event{Type: TypeModelProgress, RunID: runID, Model: model, Status: status, Score: score}
}

func HyperProgressEvent(runID, model string, params map[string]any, score float64, index, total int) Event {
	return Event{
		Type:   TypeHyperProgress,
		RunID:  runID,
		Model:  model,
		Params: params,
		Score:  &score,
		Index:  index,
		Total:  total,
	}
}

func ErrorEvent(runID, message string) Event {
	return Event{Type: TypeError, RunID: runID, Message: message}
}

func CompletedEvent(runID, model string, score *float64) Event {
	return Event{Type: TypeCompleted, RunID: runID, Model: model, Status: "completed", Score: score}
}
