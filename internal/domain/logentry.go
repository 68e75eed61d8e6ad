package domain

import (
	"errors"
	"strings"
	"time"
)

// LogEntry is a diagnostic message appended to a run's log by the pipeline
// executor. The log is append-only.
type LogEntry struct {
	ID        string
	RunID     string
	Level     string
	Message   string
	CreatedAt time.Time
}

func (l LogEntry) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return errors.New("log id is required")
	}
	if strings.TrimSpace(l.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(l.Level) == "" {
		return errors.New("log level is required")
	}
	if strings.TrimSpace(l.Message) == "" {
		return errors.New("log message is required")
	}
	return nil
}
