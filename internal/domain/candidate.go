package domain

import (
	"errors"
	"strings"
	"time"
)

// CandidateModel is one model family's best-fit result produced during a
// run's training stage. Rows are immutable once created except for the
// selected flag, which marks the run's best candidate.
type CandidateModel struct {
	ID         string
	RunID      string
	Name       string
	Params     Metadata
	Metrics    Metadata
	Score      float64
	StorageKey string
	Selected   bool
	CreatedAt  time.Time
}

func (c CandidateModel) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("candidate id is required")
	}
	if strings.TrimSpace(c.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("candidate name is required")
	}
	if strings.TrimSpace(c.StorageKey) == "" {
		return errors.New("storage key is required")
	}
	return nil
}
