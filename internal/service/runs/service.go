// Package runs is the submission and read surface over the run
// repositories. Submission is the only write path here; everything
// after PENDING belongs to the pipeline executor.
package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uam-labs/uam-go/internal/domain"
	"github.com/uam-labs/uam-go/internal/repo"
)

// ErrInvalidInput marks submission failures caused by the caller:
// unknown project, unknown dataset, malformed parameters. No run row
// exists when it is returned.
var ErrInvalidInput = errors.New("invalid input")

const logTailLimit = 20

type Service struct {
	runs       repo.RunRepository
	candidates repo.CandidateModelRepository
	artifacts  repo.ArtifactRepository
	logs       repo.RunLogRepository
	datasets   repo.DatasetRepository
	projects   repo.ProjectRepository
}

func New(runRepo repo.RunRepository, candidateRepo repo.CandidateModelRepository, artifactRepo repo.ArtifactRepository, logRepo repo.RunLogRepository, datasetRepo repo.DatasetRepository, projectRepo repo.ProjectRepository) *Service {
	if runRepo == nil || candidateRepo == nil || artifactRepo == nil || logRepo == nil || datasetRepo == nil || projectRepo == nil {
		return nil
	}
	return &Service{
		runs:       runRepo,
		candidates: candidateRepo,
		artifacts:  artifactRepo,
		logs:       logRepo,
		datasets:   datasetRepo,
		projects:   projectRepo,
	}
}

type SubmitInput struct {
	ProjectID string
	DatasetID string
	Params    domain.Metadata
}

// Submit validates the referenced project and dataset and creates the
// run PENDING. Validation failures leave no trace: a run row only exists
// once both lookups succeeded.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (domain.Run, error) {
	projectID := strings.TrimSpace(in.ProjectID)
	if projectID == "" {
		return domain.Run{}, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	datasetID := strings.TrimSpace(in.DatasetID)
	if datasetID == "" {
		return domain.Run{}, fmt.Errorf("%w: dataset id is required", ErrInvalidInput)
	}

	if _, err := s.projects.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Run{}, fmt.Errorf("%w: project %s not found", ErrInvalidInput, projectID)
		}
		return domain.Run{}, fmt.Errorf("check project: %w", err)
	}
	if _, err := s.datasets.GetDataset(ctx, datasetID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Run{}, fmt.Errorf("%w: dataset %s not found", ErrInvalidInput, datasetID)
		}
		return domain.Run{}, fmt.Errorf("check dataset: %w", err)
	}

	params := in.Params
	if params == nil {
		params = domain.Metadata{}
	}
	run := domain.Run{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		DatasetID: datasetID,
		Status:    domain.RunStatusPending,
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// RunDetail is a run with its recent log entries, newest first.
type RunDetail struct {
	Run  domain.Run
	Logs []domain.LogEntry
}

func (s *Service) Get(ctx context.Context, projectID, runID string) (RunDetail, error) {
	run, err := s.runs.GetRun(ctx, projectID, runID)
	if err != nil {
		return RunDetail{}, err
	}
	logs, err := s.logs.Tail(ctx, runID, logTailLimit)
	if err != nil {
		return RunDetail{}, fmt.Errorf("load logs: %w", err)
	}
	return RunDetail{Run: run, Logs: logs}, nil
}

func (s *Service) List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	return s.runs.ListRuns(ctx, filter)
}

// Candidates returns the run's candidates ranked best first.
func (s *Service) Candidates(ctx context.Context, projectID, runID string) ([]domain.CandidateModel, error) {
	if _, err := s.runs.GetRun(ctx, projectID, runID); err != nil {
		return nil, err
	}
	return s.candidates.ListCandidates(ctx, repo.CandidateFilter{RunID: runID})
}

func (s *Service) Artifacts(ctx context.Context, projectID, runID string, kind domain.ArtifactKind) ([]domain.Artifact, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown artifact kind %q", ErrInvalidInput, kind)
	}
	if _, err := s.runs.GetRun(ctx, projectID, runID); err != nil {
		return nil, err
	}
	return s.artifacts.ListArtifacts(ctx, repo.ArtifactFilter{RunID: runID, Kind: kind})
}
