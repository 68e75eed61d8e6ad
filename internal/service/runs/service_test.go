package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uam-labs/uam-go/internal/domain"
	"github.com/uam-labs/uam-go/internal/repo"
)

type fakeRunRepo struct {
	runs map[string]domain.Run
}

func (f *fakeRunRepo) CreateRun(_ context.Context, run domain.Run) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRunRepo) GetRun(_ context.Context, projectID, id string) (domain.Run, error) {
	run, ok := f.runs[id]
	if !ok || run.ProjectID != projectID {
		return domain.Run{}, repo.ErrNotFound
	}
	return run, nil
}

func (f *fakeRunRepo) ListRuns(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	out := make([]domain.Run, 0)
	for _, run := range f.runs {
		if run.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeRunRepo) ClaimPending(_ context.Context) (domain.Run, error) {
	return domain.Run{}, repo.ErrNotFound
}

func (f *fakeRunRepo) AdvanceProgress(_ context.Context, _, _ string, _ float64) error {
	return nil
}

func (f *fakeRunRepo) CompleteRun(_ context.Context, _ string, _ domain.Metadata) error {
	return nil
}

func (f *fakeRunRepo) FailRun(_ context.Context, _ string) error { return nil }

type fakeCandidateRepo struct {
	candidates []domain.CandidateModel
}

func (f *fakeCandidateRepo) CreateCandidate(_ context.Context, c domain.CandidateModel) error {
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeCandidateRepo) ListCandidates(_ context.Context, filter repo.CandidateFilter) ([]domain.CandidateModel, error) {
	out := make([]domain.CandidateModel, 0)
	for _, c := range f.candidates {
		if c.RunID == filter.RunID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCandidateRepo) MarkSelected(_ context.Context, _, _ string) error { return nil }

type fakeArtifactRepo struct {
	artifacts []domain.Artifact
}

func (f *fakeArtifactRepo) CreateArtifact(_ context.Context, a domain.Artifact) error {
	f.artifacts = append(f.artifacts, a)
	return nil
}

func (f *fakeArtifactRepo) GetArtifact(_ context.Context, _, _ string) (domain.Artifact, error) {
	return domain.Artifact{}, repo.ErrNotFound
}

func (f *fakeArtifactRepo) ListArtifacts(_ context.Context, filter repo.ArtifactFilter) ([]domain.Artifact, error) {
	out := make([]domain.Artifact, 0)
	for _, a := range f.artifacts {
		if a.RunID != filter.RunID {
			continue
		}
		if filter.Kind != "" && a.Kind != filter.Kind {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type fakeLogRepo struct {
	entries []domain.LogEntry
}

func (f *fakeLogRepo) Append(_ context.Context, entry domain.LogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogRepo) Tail(_ context.Context, runID string, limit int) ([]domain.LogEntry, error) {
	out := make([]domain.LogEntry, 0, limit)
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].RunID == runID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

type fakeDatasetRepo struct {
	datasets map[string]domain.Dataset
}

func (f *fakeDatasetRepo) GetDataset(_ context.Context, id string) (domain.Dataset, error) {
	ds, ok := f.datasets[id]
	if !ok {
		return domain.Dataset{}, repo.ErrNotFound
	}
	return ds, nil
}

type fakeProjectRepo struct {
	projects map[string]domain.Project
}

func (f *fakeProjectRepo) GetProject(_ context.Context, id string) (domain.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return domain.Project{}, repo.ErrNotFound
	}
	return p, nil
}

type fixture struct {
	runs       *fakeRunRepo
	candidates *fakeCandidateRepo
	artifacts  *fakeArtifactRepo
	logs       *fakeLogRepo
	service    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		runs:       &fakeRunRepo{runs: make(map[string]domain.Run)},
		candidates: &fakeCandidateRepo{},
		artifacts:  &fakeArtifactRepo{},
		logs:       &fakeLogRepo{},
	}
	f.service = New(
		f.runs,
		f.candidates,
		f.artifacts,
		f.logs,
		&fakeDatasetRepo{datasets: map[string]domain.Dataset{
			"ds-1": {ID: "ds-1", Filename: "iris.csv", StorageKey: "uploads/iris.csv"},
		}},
		&fakeProjectRepo{projects: map[string]domain.Project{
			"proj-1": {ID: "proj-1", Name: "demo"},
		}},
	)
	if f.service == nil {
		t.Fatalf("expected service")
	}
	return f
}

func TestSubmitCreatesPendingRun(t *testing.T) {
	f := newFixture(t)
	run, err := f.service.Submit(context.Background(), SubmitInput{
		ProjectID: "proj-1",
		DatasetID: "ds-1",
		Params:    domain.Metadata{"test_size": 0.3},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.Status != domain.RunStatusPending {
		t.Fatalf("status = %s, want PENDING", run.Status)
	}
	if run.ID == "" {
		t.Fatalf("expected generated run id")
	}
	stored, ok := f.runs.runs[run.ID]
	if !ok {
		t.Fatalf("run not persisted")
	}
	if stored.Params["test_size"] != 0.3 {
		t.Fatalf("params not persisted: %v", stored.Params)
	}
}

func TestSubmitUnknownDatasetCreatesNoRow(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), SubmitInput{
		ProjectID: "proj-1",
		DatasetID: "ds-missing",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(f.runs.runs) != 0 {
		t.Fatalf("expected no run rows, got %d", len(f.runs.runs))
	}
}

func TestSubmitUnknownProjectCreatesNoRow(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), SubmitInput{
		ProjectID: "proj-missing",
		DatasetID: "ds-1",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(f.runs.runs) != 0 {
		t.Fatalf("expected no run rows, got %d", len(f.runs.runs))
	}
}

func TestGetReturnsLogTailNewestFirst(t *testing.T) {
	f := newFixture(t)
	run, err := f.service.Submit(context.Background(), SubmitInput{ProjectID: "proj-1", DatasetID: "ds-1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for i := 0; i < 25; i++ {
		_ = f.logs.Append(context.Background(), domain.LogEntry{
			ID:        string(rune('a' + i)),
			RunID:     run.ID,
			Level:     "info",
			Message:   "line",
			CreatedAt: time.Now().UTC(),
		})
	}

	detail, err := f.service.Get(context.Background(), "proj-1", run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(detail.Logs) != 20 {
		t.Fatalf("expected 20 log entries, got %d", len(detail.Logs))
	}
	if detail.Logs[0].ID != string(rune('a'+24)) {
		t.Fatalf("expected newest entry first, got %s", detail.Logs[0].ID)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.List(context.Background(), repo.RunFilter{ProjectID: "proj-1", Status: "QUEUED"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCandidatesRequiresExistingRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Candidates(context.Background(), "proj-1", "run-missing")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArtifactsFiltersByKind(t *testing.T) {
	f := newFixture(t)
	run, err := f.service.Submit(context.Background(), SubmitInput{ProjectID: "proj-1", DatasetID: "ds-1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_ = f.artifacts.CreateArtifact(context.Background(), domain.Artifact{
		ID: "a-1", RunID: run.ID, Kind: domain.ArtifactReport, StorageKey: "k1",
	})
	_ = f.artifacts.CreateArtifact(context.Background(), domain.Artifact{
		ID: "a-2", RunID: run.ID, Kind: domain.ArtifactModel, StorageKey: "k2",
	})

	artifacts, err := f.service.Artifacts(context.Background(), "proj-1", run.ID, domain.ArtifactModel)
	if err != nil {
		t.Fatalf("Artifacts: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Kind != domain.ArtifactModel {
		t.Fatalf("unexpected artifacts: %v", artifacts)
	}

	if _, err := f.service.Artifacts(context.Background(), "proj-1", run.ID, "weights"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown kind, got %v", err)
	}
}
