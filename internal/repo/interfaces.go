package repo

import (
	"context"
	"errors"

	"github.com/uam-labs/uam-go/internal/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrStateConflict is returned when a guarded run mutation matched zero
// rows because the run is no longer in the expected status. Callers must
// not retry: another writer already owns the run or it is terminal.
var ErrStateConflict = errors.New("run state conflict")

type RunFilter struct {
	ProjectID string
	Status    domain.RunStatus
	Limit     int
}

type CandidateFilter struct {
	RunID string
	Limit int
}

type ArtifactFilter struct {
	RunID string
	Kind  domain.ArtifactKind
	Limit int
}

// RunRepository manages run rows. All mutations after creation are
// status-guarded so only the single active writer can advance a run.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, projectID, id string) (domain.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error)

	// ClaimPending atomically moves the oldest PENDING run to RUNNING and
	// returns it. ErrNotFound when no run is waiting.
	ClaimPending(ctx context.Context) (domain.Run, error)

	// AdvanceProgress sets current_task and raises progress toward the
	// stage milestone. Progress never decreases; a write against a run
	// that is not RUNNING returns ErrStateConflict.
	AdvanceProgress(ctx context.Context, id, task string, progress float64) error

	CompleteRun(ctx context.Context, id string, scoreSummary domain.Metadata) error
	FailRun(ctx context.Context, id string) error
}

// CandidateModelRepository manages trained candidates for a run.
type CandidateModelRepository interface {
	CreateCandidate(ctx context.Context, candidate domain.CandidateModel) error
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]domain.CandidateModel, error)

	// MarkSelected flips selection to the given candidate in one
	// transaction, clearing any previous selection for the run first.
	MarkSelected(ctx context.Context, runID, candidateID string) error
}

// ArtifactRepository manages stage output records.
type ArtifactRepository interface {
	CreateArtifact(ctx context.Context, artifact domain.Artifact) error
	GetArtifact(ctx context.Context, runID, id string) (domain.Artifact, error)
	ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]domain.Artifact, error)
}

// RunLogRepository is append-only.
type RunLogRepository interface {
	Append(ctx context.Context, entry domain.LogEntry) error

	// Tail returns the newest limit entries, newest first.
	Tail(ctx context.Context, runID string, limit int) ([]domain.LogEntry, error)
}

// DatasetRepository exposes the dataset rows this service reads. Dataset
// ingestion lives in another service; only lookups are needed here.
type DatasetRepository interface {
	GetDataset(ctx context.Context, id string) (domain.Dataset, error)
}

// ProjectRepository exposes project existence checks.
type ProjectRepository interface {
	GetProject(ctx context.Context, id string) (domain.Project, error)
}
