package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/uam-labs/uam-go/internal/domain"
	"github.com/uam-labs/uam-go/internal/progress"
	"github.com/uam-labs/uam-go/internal/repo"
	"github.com/uam-labs/uam-go/internal/storage/objectstore"
	"github.com/uam-labs/uam-go/internal/train"
)

type fakeRunRepo struct {
	mu          sync.Mutex
	runs        map[string]*domain.Run
	progressLog []float64
}

func newFakeRunRepo(runs ...domain.Run) *fakeRunRepo {
	repo := &fakeRunRepo{runs: make(map[string]*domain.Run)}
	for i := range runs {
		run := runs[i]
		repo.runs[run.ID] = &run
	}
	return repo
}

func (f *fakeRunRepo) CreateRun(_ context.Context, run domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = &run
	return nil
}

func (f *fakeRunRepo) GetRun(_ context.Context, _, id string) (domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return domain.Run{}, repo.ErrNotFound
	}
	return *run, nil
}

func (f *fakeRunRepo) ListRuns(_ context.Context, _ repo.RunFilter) ([]domain.Run, error) {
	return nil, nil
}

func (f *fakeRunRepo) ClaimPending(_ context.Context) (domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range f.runs {
		if run.Status == domain.RunStatusPending {
			run.Status = domain.RunStatusRunning
			now := time.Now().UTC()
			run.StartedAt = &now
			return *run, nil
		}
	}
	return domain.Run{}, repo.ErrNotFound
}

func (f *fakeRunRepo) AdvanceProgress(_ context.Context, id, task string, milestone float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok || run.Status != domain.RunStatusRunning {
		return repo.ErrStateConflict
	}
	run.CurrentTask = task
	if milestone > run.Progress {
		run.Progress = milestone
	}
	f.progressLog = append(f.progressLog, milestone)
	return nil
}

func (f *fakeRunRepo) CompleteRun(_ context.Context, id string, summary domain.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok || run.Status != domain.RunStatusRunning {
		return repo.ErrStateConflict
	}
	run.Status = domain.RunStatusCompleted
	run.Progress = 1.0
	run.CurrentTask = ""
	run.ScoreSummary = summary
	now := time.Now().UTC()
	run.FinishedAt = &now
	return nil
}

func (f *fakeRunRepo) FailRun(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok || run.Status != domain.RunStatusRunning {
		return repo.ErrStateConflict
	}
	run.Status = domain.RunStatusFailed
	now := time.Now().UTC()
	run.FinishedAt = &now
	return nil
}

type fakeCandidateRepo struct {
	mu         sync.Mutex
	candidates []domain.CandidateModel
}

func (f *fakeCandidateRepo) CreateCandidate(_ context.Context, candidate domain.CandidateModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeCandidateRepo) ListCandidates(_ context.Context, _ repo.CandidateFilter) ([]domain.CandidateModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CandidateModel(nil), f.candidates...), nil
}

func (f *fakeCandidateRepo) MarkSelected(_ context.Context, runID, candidateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for i := range f.candidates {
		if f.candidates[i].RunID != runID {
			continue
		}
		f.candidates[i].Selected = f.candidates[i].ID == candidateID
		if f.candidates[i].Selected {
			found = true
		}
	}
	if !found {
		return repo.ErrNotFound
	}
	return nil
}

type fakeArtifactRepo struct {
	mu        sync.Mutex
	artifacts []domain.Artifact
}

func (f *fakeArtifactRepo) CreateArtifact(_ context.Context, artifact domain.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts = append(f.artifacts, artifact)
	return nil
}

func (f *fakeArtifactRepo) GetArtifact(_ context.Context, _, _ string) (domain.Artifact, error) {
	return domain.Artifact{}, repo.ErrNotFound
}

func (f *fakeArtifactRepo) ListArtifacts(_ context.Context, _ repo.ArtifactFilter) ([]domain.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Artifact(nil), f.artifacts...), nil
}

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func (f *fakeLogRepo) Append(_ context.Context, entry domain.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogRepo) Tail(_ context.Context, runID string, limit int) ([]domain.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) key(bucket, key string) string { return bucket + "/" + key }

func (f *fakeStore) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[f.key(bucket, key)] = raw
	return nil
}

func (f *fakeStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[f.key(bucket, key)]
	if !ok {
		return nil, objectstore.ObjectInfo{}, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(raw)), objectstore.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (f *fakeStore) Stat(_ context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[f.key(bucket, key)]
	if !ok {
		return objectstore.ObjectInfo{}, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (f *fakeStore) Delete(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, f.key(bucket, key))
	return nil
}

func (f *fakeStore) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://storage.local/" + f.key(bucket, key), nil
}

const testCSV = `f1,f2,label
0.1,0.2,a
0.3,0.1,a
0.2,0.4,a
0.0,0.3,a
0.4,0.2,a
5.1,4.9,b
4.8,5.2,b
5.3,5.1,b
4.9,4.7,b
5.0,5.0,b
`

type fixture struct {
	runs       *fakeRunRepo
	candidates *fakeCandidateRepo
	artifacts  *fakeArtifactRepo
	logs       *fakeLogRepo
	store      *fakeStore
	hub        *progress.Hub
	executor   *Executor
}

func newFixture(t *testing.T, catalog *train.Catalog, run domain.Run) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := progress.NewHubWithBuffer(1024)
	searcher, err := train.NewSearcher(catalog, 1, hub, logger)
	if err != nil {
		t.Fatalf("NewSearcher: %v", err)
	}

	store := newFakeStore()
	if err := store.Put(context.Background(), "datasets", "uploads/iris.csv", bytes.NewReader([]byte(testCSV)), int64(len(testCSV)), "text/csv"); err != nil {
		t.Fatalf("seed dataset: %v", err)
	}

	f := &fixture{
		runs:       newFakeRunRepo(run),
		candidates: &fakeCandidateRepo{},
		artifacts:  &fakeArtifactRepo{},
		logs:       &fakeLogRepo{},
		store:      store,
		hub:        hub,
	}
	executor, err := NewExecutor(ExecutorConfig{
		Runs:       f.runs,
		Candidates: f.candidates,
		Artifacts:  f.artifacts,
		Logs:       f.logs,
		Datasets: &fakeDatasetRepo{datasets: map[string]domain.Dataset{
			"ds-1": {ID: "ds-1", Filename: "iris.csv", StorageKey: "uploads/iris.csv", Rows: 10, Cols: 3},
		}},
		Store:    store,
		Buckets:  Buckets{Datasets: "datasets", Artifacts: "artifacts", Models: "models"},
		Searcher: searcher,
		Hub:      hub,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	f.executor = executor
	return f
}

func runningRun() domain.Run {
	now := time.Now().UTC()
	return domain.Run{
		ID:        "run-1",
		ProjectID: "proj-1",
		DatasetID: "ds-1",
		Status:    domain.RunStatusRunning,
		Params:    domain.Metadata{},
		StartedAt: &now,
		CreatedAt: now,
	}
}

func TestExecuteCompletesRun(t *testing.T) {
	f := newFixture(t, train.DefaultCatalog(), runningRun())
	sub := f.hub.Subscribe("proj-1")
	defer sub.Close()

	if err := f.executor.Execute(context.Background(), runningRun()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	run, err := f.runs.GetRun(context.Background(), "proj-1", "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", run.Status)
	}
	if run.Progress != 1.0 {
		t.Fatalf("progress = %v, want 1", run.Progress)
	}
	if run.CurrentTask != "" {
		t.Fatalf("current task = %q, want cleared on completion", run.CurrentTask)
	}
	if run.ScoreSummary["best_model"] == "" {
		t.Fatalf("expected best model in score summary, got %v", run.ScoreSummary)
	}

	kinds := make(map[domain.ArtifactKind]int)
	for _, artifact := range f.artifacts.artifacts {
		kinds[artifact.Kind]++
	}
	for _, kind := range []domain.ArtifactKind{
		domain.ArtifactCleanedDataset,
		domain.ArtifactEDASummary,
		domain.ArtifactEDAChart,
		domain.ArtifactModel,
		domain.ArtifactReport,
	} {
		if kinds[kind] == 0 {
			t.Fatalf("missing artifact kind %s (have %v)", kind, kinds)
		}
	}

	selected := 0
	for _, candidate := range f.candidates.candidates {
		if candidate.Selected {
			selected++
		}
		if _, ok := f.store.objects["models/"+candidate.StorageKey]; !ok {
			t.Fatalf("candidate %s has no stored model blob", candidate.Name)
		}
	}
	if selected != 1 {
		t.Fatalf("expected exactly one selected candidate, got %d", selected)
	}

	var milestones []float64
	completed := false
	for {
		var ev progress.Event
		select {
		case ev = <-sub.C:
		default:
			ev = progress.Event{}
		}
		if ev.Type == "" {
			break
		}
		switch ev.Type {
		case progress.TypeProgress:
			milestones = append(milestones, *ev.Progress)
		case progress.TypeCompleted:
			completed = true
		}
	}
	want := []float64{0.25, 0.5, 0.75, 1.0}
	if len(milestones) != len(want) {
		t.Fatalf("milestones = %v, want %v", milestones, want)
	}
	for i := range want {
		if milestones[i] != want[i] {
			t.Fatalf("milestones = %v, want %v", milestones, want)
		}
	}
	if !completed {
		t.Fatalf("expected completed event")
	}
}

func TestExecutePersistsProgressDuringTrainSweep(t *testing.T) {
	f := newFixture(t, train.DefaultCatalog(), runningRun())

	if err := f.executor.Execute(context.Background(), runningRun()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	f.runs.mu.Lock()
	log := append([]float64(nil), f.runs.progressLog...)
	f.runs.mu.Unlock()

	intermediate := 0
	for _, p := range log {
		if p > 0.5 && p < 0.75 {
			intermediate++
		}
	}
	if intermediate == 0 {
		t.Fatalf("progress writes %v have none between 0.5 and 0.75", log)
	}
	run, err := f.runs.GetRun(context.Background(), "proj-1", "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Progress != 1.0 {
		t.Fatalf("progress = %v, want 1", run.Progress)
	}
}

func TestCandidateMetricsCarryFeatureImportance(t *testing.T) {
	f := newFixture(t, train.DefaultCatalog(), runningRun())

	if err := f.executor.Execute(context.Background(), runningRun()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var logistic *domain.CandidateModel
	for i := range f.candidates.candidates {
		if f.candidates.candidates[i].Name == "Logistic Regression" {
			logistic = &f.candidates.candidates[i]
		}
	}
	if logistic == nil {
		t.Fatalf("no logistic regression candidate persisted")
	}

	imp, ok := logistic.Metrics["feature_importance"].(domain.Metadata)
	if !ok {
		t.Fatalf("feature_importance missing from metrics: %v", logistic.Metrics)
	}
	features, ok := imp["features"].([]string)
	if !ok || len(features) != 2 {
		t.Fatalf("features = %v, want the two input columns", imp["features"])
	}
	seen := map[string]bool{}
	for _, name := range features {
		seen[name] = true
	}
	if !seen["f1"] || !seen["f2"] {
		t.Fatalf("features = %v, want f1 and f2", features)
	}
	weights, ok := imp["importance"].([]float64)
	if !ok || len(weights) != 2 {
		t.Fatalf("importance = %v, want one weight per feature", imp["importance"])
	}
	if weights[0] < weights[1] {
		t.Fatalf("importance %v not ordered descending", weights)
	}
}

func TestExecuteFailedTrainStageKeepsMilestone(t *testing.T) {
	// Every classification family fails, so the train stage fails.
	catalog := &train.Catalog{
		Schema: train.CatalogSchemaV1,
		Classification: []train.FamilySpec{
			{Name: "Broken", Fitter: train.FitterKNN, Grid: train.Grid{"n_neighbors": {0}}},
		},
		Regression: []train.FamilySpec{{Name: "Baseline", Fitter: train.FitterBaseline}},
	}
	f := newFixture(t, catalog, runningRun())

	if err := f.executor.Execute(context.Background(), runningRun()); err == nil {
		t.Fatalf("expected train stage failure")
	}

	run, _ := f.runs.GetRun(context.Background(), "proj-1", "run-1")
	if run.Status != domain.RunStatusFailed {
		t.Fatalf("status = %s, want FAILED", run.Status)
	}
	if run.CurrentTask != StageTrain {
		t.Fatalf("current_task = %s, want train", run.CurrentTask)
	}
	if run.Progress != 0.5 {
		t.Fatalf("progress = %v, want last good milestone 0.5", run.Progress)
	}
	if len(f.candidates.candidates) != 0 {
		t.Fatalf("expected no persisted candidates, got %d", len(f.candidates.candidates))
	}
}

func TestExecuteFailsAtPreprocessForMissingDataset(t *testing.T) {
	run := runningRun()
	run.DatasetID = "ds-missing"
	f := newFixture(t, train.DefaultCatalog(), run)

	if err := f.executor.Execute(context.Background(), run); err == nil {
		t.Fatalf("expected preprocess failure")
	}

	stored, _ := f.runs.GetRun(context.Background(), "proj-1", "run-1")
	if stored.Status != domain.RunStatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
	if stored.CurrentTask != StagePreprocess {
		t.Fatalf("current_task = %s, want preprocess", stored.CurrentTask)
	}
	if stored.Progress != 0 {
		t.Fatalf("progress = %v, want 0", stored.Progress)
	}
}

func TestExecuteStopsOnStateConflict(t *testing.T) {
	run := runningRun()
	run.Status = domain.RunStatusCompleted
	f := newFixture(t, train.DefaultCatalog(), run)

	if err := f.executor.Execute(context.Background(), run); err == nil {
		t.Fatalf("expected conflict error")
	}

	stored, _ := f.runs.GetRun(context.Background(), "proj-1", "run-1")
	if stored.Status != domain.RunStatusCompleted {
		t.Fatalf("terminal run was mutated to %s", stored.Status)
	}
}

func TestDispatcherClaimsAndExecutes(t *testing.T) {
	run := runningRun()
	run.Status = domain.RunStatusPending
	run.StartedAt = nil
	f := newFixture(t, train.DefaultCatalog(), run)

	dispatcher, err := NewDispatcher(f.runs, f.executor, 2, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()

	deadline := time.After(10 * time.Second)
	for {
		stored, _ := f.runs.GetRun(context.Background(), "proj-1", "run-1")
		if stored.Status.Terminal() {
			if stored.Status != domain.RunStatusCompleted {
				t.Fatalf("status = %s, want COMPLETED", stored.Status)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("run never finished, status %s", stored.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
}
