package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/uam-labs/uam-go/internal/dataset"
	"github.com/uam-labs/uam-go/internal/domain"
	"github.com/uam-labs/uam-go/internal/train"
)

const histogramBins = 30

func (e *Executor) stagePreprocess(ctx context.Context, st *runState) error {
	ds, err := e.datasets.GetDataset(ctx, st.run.DatasetID)
	if err != nil {
		return fmt.Errorf("load dataset %s: %w", st.run.DatasetID, err)
	}
	materializer, err := dataset.NewMaterializer(e.store, e.buckets.Datasets)
	if err != nil {
		return err
	}
	frame, err := materializer.Materialize(ctx, ds.StorageKey)
	if err != nil {
		return err
	}
	st.frame = frame

	cleaned, dropped := frame.DropMissing()
	if cleaned.NumRows() == 0 {
		return fmt.Errorf("no rows left after dropping missing values (%d dropped)", dropped)
	}
	st.cleaned = cleaned
	st.dropped = dropped

	var buf bytes.Buffer
	if err := cleaned.WriteCSV(&buf); err != nil {
		return fmt.Errorf("serialize cleaned dataset: %w", err)
	}
	key := fmt.Sprintf("runs/%s/cleaned.csv", st.run.ID)
	if err := e.store.Put(ctx, e.buckets.Artifacts, key, &buf, int64(buf.Len()), "text/csv"); err != nil {
		return fmt.Errorf("store cleaned dataset: %w", err)
	}
	return e.recordArtifact(ctx, st.run.ID, domain.ArtifactCleanedDataset, key, "cleaned.csv", domain.Metadata{
		"rows_before": frame.NumRows(),
		"rows_after":  cleaned.NumRows(),
		"rows_dropped": dropped,
	})
}

func (e *Executor) stageAnalyze(ctx context.Context, st *runState) error {
	summary := st.cleaned.Describe()
	summaryKey := fmt.Sprintf("runs/%s/eda_summary.json", st.run.ID)
	if err := e.putJSON(ctx, e.buckets.Artifacts, summaryKey, summary); err != nil {
		return fmt.Errorf("store eda summary: %w", err)
	}
	if err := e.recordArtifact(ctx, st.run.ID, domain.ArtifactEDASummary, summaryKey, "eda_summary.json", domain.Metadata{
		"rows": summary.Rows,
		"cols": summary.Cols,
	}); err != nil {
		return err
	}

	// A frame with no numeric column gets no chart; that is not an error.
	col := st.cleaned.FirstNumericColumn()
	if col < 0 {
		return nil
	}
	hist, ok := st.cleaned.HistogramOf(col, histogramBins)
	if !ok {
		return nil
	}
	chartKey := fmt.Sprintf("runs/%s/eda_chart.json", st.run.ID)
	if err := e.putJSON(ctx, e.buckets.Artifacts, chartKey, hist); err != nil {
		return fmt.Errorf("store eda chart: %w", err)
	}
	return e.recordArtifact(ctx, st.run.ID, domain.ArtifactEDAChart, chartKey, "eda_chart.json", domain.Metadata{
		"column": hist.Column,
		"bins":   hist.Bins,
	})
}

func (e *Executor) stageTrain(ctx context.Context, st *runState) error {
	x, y, classes, err := st.cleaned.ToMatrix()
	if err != nil {
		return fmt.Errorf("build matrix: %w", err)
	}
	st.classes = classes

	params := train.Params(st.run.Params)
	task := train.NormalizeTaskType(params.String("task_type", ""))
	if task == "" {
		task = train.DetectTask(classes, y)
	}
	st.task = task

	outcome, err := e.searcher.Load().Search(ctx, train.SearchInput{
		ProjectID: st.run.ProjectID,
		RunID:     st.run.ID,
		Task:      task,
		X:         x,
		Y:         y,
		TestSize:  params.Float("test_size", train.DefaultTestSize),
		Seed:      int64(params.Int("random_state", train.DefaultRandomState)),
		// Persist progress between the train milestones as families
		// finish. GREATEST in the update keeps out-of-order writes from
		// concurrent workers monotonic; a lost write never fails the
		// sweep.
		OnFamilyDone: func(done, total int) {
			fraction := 0.5 + 0.25*float64(done)/float64(total)
			if err := e.runs.AdvanceProgress(ctx, st.run.ID, StageTrain, train.Round4(fraction)); err != nil {
				e.logger.Warn("train progress write lost",
					"run_id", st.run.ID, "error", err)
			}
		},
	})
	if err != nil {
		return err
	}
	st.outcome = outcome

	// Persist each successful candidate: blob first, row second, so a
	// stored row always points at an existing model object.
	for _, result := range outcome.Results {
		if result.Err != nil {
			continue
		}
		blob, err := train.EncodePredictor(result.Predictor)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", result.Name, err)
		}
		candidateID := uuid.NewString()
		key := fmt.Sprintf("runs/%s/models/%s.gob", st.run.ID, candidateID)
		if err := e.store.Put(ctx, e.buckets.Models, key, bytes.NewReader(blob), int64(len(blob)), "application/octet-stream"); err != nil {
			return fmt.Errorf("store model %s: %w", result.Name, err)
		}
		metrics := make(domain.Metadata, len(result.Metrics)+1)
		for name, value := range result.Metrics {
			metrics[name] = value
		}
		if imp, ok := result.Predictor.(train.FeatureImporter); ok {
			features := st.cleaned.Columns[:len(st.cleaned.Columns)-1]
			metrics["feature_importance"] = featureImportance(features, imp.FeatureImportances())
		}
		candidate := domain.CandidateModel{
			ID:         candidateID,
			RunID:      st.run.ID,
			Name:       result.Name,
			Params:     domain.Metadata(result.Params),
			Metrics:    metrics,
			Score:      train.Round4(result.Score),
			StorageKey: key,
			CreatedAt:  time.Now().UTC(),
		}
		if err := e.candidates.CreateCandidate(ctx, candidate); err != nil {
			return fmt.Errorf("persist candidate %s: %w", result.Name, err)
		}
		if outcome.Best != nil && result.Index == outcome.Best.Index {
			st.selectedID = candidateID
			if err := e.recordArtifact(ctx, st.run.ID, domain.ArtifactModel, key, result.Name+".gob", domain.Metadata{
				"model": result.Name,
				"score": train.Round4(result.Score),
			}); err != nil {
				return err
			}
		}
	}

	if st.selectedID != "" {
		if err := e.candidates.MarkSelected(ctx, st.run.ID, st.selectedID); err != nil {
			return fmt.Errorf("select best candidate: %w", err)
		}
	}

	st.summary = domain.Metadata{
		"task":           string(task),
		"primary_metric": task.PrimaryMetric(),
		"best_model":     outcome.Best.Name,
		"best_score":     train.Round4(outcome.Best.Score),
		"candidate_id":   st.selectedID,
	}
	return nil
}

type reportFamily struct {
	Rank  int            `json:"rank"`
	Name  string         `json:"name"`
	Score *float64       `json:"score,omitempty"`
	Error string         `json:"error,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

type runReport struct {
	RunID      string             `json:"run_id"`
	ProjectID  string             `json:"project_id"`
	DatasetID  string             `json:"dataset_id"`
	Task       string             `json:"task"`
	Milestones map[string]float64 `json:"milestones"`
	RowsBefore int                `json:"rows_before"`
	RowsAfter  int                `json:"rows_after"`
	Families   []reportFamily     `json:"families"`
	Selected   string             `json:"selected_candidate_id"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (e *Executor) stageFinalize(ctx context.Context, st *runState) error {
	milestones := make(map[string]float64, len(st.milestones)+1)
	for name, v := range st.milestones {
		milestones[name] = v
	}
	milestones[StageFinalize] = 1.0

	families := make([]reportFamily, 0, len(st.outcome.Results))
	for rank, result := range st.outcome.Results {
		family := reportFamily{Rank: rank + 1, Name: result.Name, Params: result.Params}
		if result.Err != nil {
			family.Error = result.Err.Error()
		} else {
			score := train.Round4(result.Score)
			family.Score = &score
		}
		families = append(families, family)
	}

	report := runReport{
		RunID:      st.run.ID,
		ProjectID:  st.run.ProjectID,
		DatasetID:  st.run.DatasetID,
		Task:       string(st.task),
		Milestones: milestones,
		RowsBefore: st.frame.NumRows(),
		RowsAfter:  st.cleaned.NumRows(),
		Families:   families,
		Selected:   st.selectedID,
		CreatedAt:  time.Now().UTC(),
	}
	key := fmt.Sprintf("runs/%s/report.json", st.run.ID)
	if err := e.putJSON(ctx, e.buckets.Artifacts, key, report); err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	return e.recordArtifact(ctx, st.run.ID, domain.ArtifactReport, key, "report.json", domain.Metadata{
		"families": len(families),
	})
}

// featureImportance pairs feature names with model weights, ordered by
// descending weight so the strongest features lead.
func featureImportance(features []string, weights []float64) domain.Metadata {
	n := len(features)
	if len(weights) < n {
		n = len(weights)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return weights[order[a]] > weights[order[b]]
	})
	names := make([]string, n)
	values := make([]float64, n)
	for rank, i := range order {
		names[rank] = features[i]
		values[rank] = train.Round4(weights[i])
	}
	return domain.Metadata{"features": names, "importance": values}
}

func (e *Executor) putJSON(ctx context.Context, bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return e.store.Put(ctx, bucket, key, bytes.NewReader(raw), int64(len(raw)), "application/json")
}

func (e *Executor) recordArtifact(ctx context.Context, runID string, kind domain.ArtifactKind, key, filename string, metadata domain.Metadata) error {
	artifact := domain.Artifact{
		ID:         uuid.NewString(),
		RunID:      runID,
		Kind:       kind,
		StorageKey: key,
		Filename:   filename,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.artifacts.CreateArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("record %s artifact: %w", kind, err)
	}
	return nil
}
