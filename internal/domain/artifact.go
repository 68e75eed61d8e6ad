package domain

import (
	"errors"
	"strings"
	"time"
)

// ArtifactKind discriminates pipeline stage outputs.
type ArtifactKind string

const (
	ArtifactCleanedDataset ArtifactKind = "cleaned_dataset"
	ArtifactEDASummary     ArtifactKind = "eda_summary"
	ArtifactEDAChart       ArtifactKind = "eda_chart"
	ArtifactModel          ArtifactKind = "model"
	ArtifactReport         ArtifactKind = "report"
)

func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactCleanedDataset, ArtifactEDASummary, ArtifactEDAChart, ArtifactModel, ArtifactReport:
		return true
	default:
		return false
	}
}

// Artifact is a run-scoped stage output stored in object storage. Artifacts
// are never rolled back on failure; they stay for forensic inspection.
type Artifact struct {
	ID         string
	RunID      string
	Kind       ArtifactKind
	StorageKey string
	Filename   string
	Metadata   Metadata
	CreatedAt  time.Time
}

func (a Artifact) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("artifact id is required")
	}
	if strings.TrimSpace(a.RunID) == "" {
		return errors.New("run id is required")
	}
	if !a.Kind.Valid() {
		return errors.New("invalid artifact kind")
	}
	if strings.TrimSpace(a.StorageKey) == "" {
		return errors.New("storage key is required")
	}
	return nil
}
