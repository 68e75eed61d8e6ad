// Package pipeline drives a claimed run through the four analysis
// stages and owns every write to the run row while it is RUNNING.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/uam-labs/uam-go/internal/dataset"
	"github.com/uam-labs/uam-go/internal/domain"
	"github.com/uam-labs/uam-go/internal/progress"
	"github.com/uam-labs/uam-go/internal/repo"
	"github.com/uam-labs/uam-go/internal/storage/objectstore"
	"github.com/uam-labs/uam-go/internal/train"
)

// Stage names double as the run's current_task values.
const (
	StagePreprocess = "preprocess"
	StageAnalyze    = "analyze"
	StageTrain      = "train"
	StageFinalize   = "finalize"
)

type stageFunc func(ctx context.Context, st *runState) error

type stage struct {
	name      string
	milestone float64
	run       stageFunc
}

// Buckets names the object storage destinations per artifact class.
type Buckets struct {
	Datasets  string
	Artifacts string
	Models    string
}

type Executor struct {
	runs       repo.RunRepository
	candidates repo.CandidateModelRepository
	artifacts  repo.ArtifactRepository
	logs       repo.RunLogRepository
	datasets   repo.DatasetRepository
	store      objectstore.Store
	buckets    Buckets
	searcher   atomic.Pointer[train.Searcher]
	hub        *progress.Hub
	logger     *slog.Logger
	stages     []stage
}

type ExecutorConfig struct {
	Runs       repo.RunRepository
	Candidates repo.CandidateModelRepository
	Artifacts  repo.ArtifactRepository
	Logs       repo.RunLogRepository
	Datasets   repo.DatasetRepository
	Store      objectstore.Store
	Buckets    Buckets
	Searcher   *train.Searcher
	Hub        *progress.Hub
	Logger     *slog.Logger
}

func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	switch {
	case cfg.Runs == nil:
		return nil, errors.New("run repository is required")
	case cfg.Candidates == nil:
		return nil, errors.New("candidate repository is required")
	case cfg.Artifacts == nil:
		return nil, errors.New("artifact repository is required")
	case cfg.Logs == nil:
		return nil, errors.New("run log repository is required")
	case cfg.Datasets == nil:
		return nil, errors.New("dataset repository is required")
	case cfg.Store == nil:
		return nil, errors.New("object store is required")
	case cfg.Searcher == nil:
		return nil, errors.New("searcher is required")
	case cfg.Hub == nil:
		return nil, errors.New("progress hub is required")
	case cfg.Logger == nil:
		return nil, errors.New("logger is required")
	}
	e := &Executor{
		runs:       cfg.Runs,
		candidates: cfg.Candidates,
		artifacts:  cfg.Artifacts,
		logs:       cfg.Logs,
		datasets:   cfg.Datasets,
		store:      cfg.Store,
		buckets:    cfg.Buckets,
		hub:        cfg.Hub,
		logger:     cfg.Logger,
	}
	e.searcher.Store(cfg.Searcher)
	e.stages = []stage{
		{name: StagePreprocess, milestone: 0.25, run: e.stagePreprocess},
		{name: StageAnalyze, milestone: 0.5, run: e.stageAnalyze},
		{name: StageTrain, milestone: 0.75, run: e.stageTrain},
		{name: StageFinalize, milestone: 1.0, run: e.stageFinalize},
	}
	return e, nil
}

// SetSearcher swaps the search orchestrator, e.g. after a catalog
// reload. Runs already in their training stage keep the searcher they
// started with.
func (e *Executor) SetSearcher(s *train.Searcher) {
	if s != nil {
		e.searcher.Store(s)
	}
}

// runState is the mutable carry between stages of one run.
type runState struct {
	run        domain.Run
	frame      *dataset.Frame
	cleaned    *dataset.Frame
	dropped    int
	task       train.TaskType
	classes    []string
	outcome    train.SearchOutcome
	selectedID string
	summary    domain.Metadata
	milestones map[string]float64
}

// Execute runs a claimed (already RUNNING) run through every stage. A
// stage error fails the run: current_task keeps the failing stage and
// progress keeps the last reached milestone.
func (e *Executor) Execute(ctx context.Context, run domain.Run) error {
	st := &runState{run: run, milestones: make(map[string]float64, len(e.stages))}
	logger := e.logger.With("run_id", run.ID, "project_id", run.ProjectID)

	reached := 0.0
	for _, stage := range e.stages {
		if err := e.advance(ctx, run, stage.name, reached); err != nil {
			return err
		}
		logger.Info("stage started", "stage", stage.name)
		e.appendLog(ctx, run.ID, "info", fmt.Sprintf("stage %s started", stage.name))

		if err := stage.run(ctx, st); err != nil {
			logger.Error("stage failed", "stage", stage.name, "error", err)
			e.appendLog(ctx, run.ID, "error", fmt.Sprintf("stage %s failed: %v", stage.name, err))
			e.hub.Publish(run.ProjectID, progress.ErrorEvent(run.ID, fmt.Sprintf("%s: %v", stage.name, err)))
			if failErr := e.runs.FailRun(ctx, run.ID); failErr != nil {
				logger.Error("fail transition rejected", "error", failErr)
			}
			return fmt.Errorf("stage %s: %w", stage.name, err)
		}

		// Finalize's milestone is owned by the terminal transition.
		if stage.name != StageFinalize {
			if err := e.advance(ctx, run, stage.name, stage.milestone); err != nil {
				return err
			}
		}
		reached = stage.milestone
		st.milestones[stage.name] = stage.milestone
		e.hub.Publish(run.ProjectID, progress.ProgressEvent(run.ID, stage.name, stage.milestone))
		logger.Info("stage completed", "stage", stage.name, "progress", stage.milestone)
		e.appendLog(ctx, run.ID, "info", fmt.Sprintf("stage %s completed", stage.name))
	}

	if err := e.runs.CompleteRun(ctx, run.ID, st.summary); err != nil {
		logger.Error("complete transition rejected", "error", err)
		return fmt.Errorf("complete run: %w", err)
	}
	var bestName string
	var bestScore *float64
	if st.outcome.Best != nil {
		bestName = st.outcome.Best.Name
		score := train.Round4(st.outcome.Best.Score)
		bestScore = &score
	}
	e.hub.Publish(run.ProjectID, progress.CompletedEvent(run.ID, bestName, bestScore))
	logger.Info("run completed", "best_model", bestName)
	return nil
}

// advance writes current_task and progress through the status guard. A
// conflict means another writer owns the run; that is a protocol bug,
// so execution stops without retrying.
func (e *Executor) advance(ctx context.Context, run domain.Run, task string, milestone float64) error {
	err := e.runs.AdvanceProgress(ctx, run.ID, task, milestone)
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrStateConflict) {
		e.logger.Error("progress write lost the run",
			"run_id", run.ID, "stage", task)
	}
	return fmt.Errorf("advance to %s: %w", task, err)
}

// appendLog records a run log line. Log persistence is best effort and
// never fails a stage.
func (e *Executor) appendLog(ctx context.Context, runID, level, message string) {
	entry := domain.LogEntry{
		ID:        uuid.NewString(),
		RunID:     runID,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		e.logger.Error("run log append failed", "run_id", runID, "error", err)
	}
}
