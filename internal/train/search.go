package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/uam-labs/uam-go/internal/progress"
)

// Searcher evaluates every family in the catalog for a run and ranks
// the outcomes. Families run on a bounded worker pool; one family
// failing never takes down the others.
type Searcher struct {
	catalog *Catalog
	workers int
	hub     *progress.Hub
	logger  *slog.Logger
}

func NewSearcher(catalog *Catalog, workers int, hub *progress.Hub, logger *slog.Logger) (*Searcher, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	if hub == nil {
		return nil, errors.New("progress hub is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if workers <= 0 {
		workers = 1
	}
	return &Searcher{catalog: catalog, workers: workers, hub: hub, logger: logger}, nil
}

type SearchInput struct {
	ProjectID string
	RunID     string
	Task      TaskType
	X         *mat.Dense
	Y         []float64
	TestSize  float64
	Seed      int64

	// OnFamilyDone, when set, is called after each family finishes
	// (success or failure) with the completed count and the sweep size.
	// It may be called from multiple workers concurrently.
	OnFamilyDone func(done, total int)
}

// SearchOutcome holds every family result ranked best first. Successful
// families sort by score descending with catalog order breaking ties;
// failed families follow in catalog order.
type SearchOutcome struct {
	Results []FamilyResult
	Best    *FamilyResult
}

// Search runs the full family sweep. It returns an error only when no
// family at all produced a model.
func (s *Searcher) Search(ctx context.Context, in SearchInput) (SearchOutcome, error) {
	if !in.Task.Valid() {
		return SearchOutcome{}, fmt.Errorf("invalid task %q", in.Task)
	}
	rows, _ := in.X.Dims()
	testSize := in.TestSize
	if testSize <= 0 || testSize >= 1 {
		testSize = DefaultTestSize
	}
	split, err := NewSplit(rows, testSize, in.Seed)
	if err != nil {
		return SearchOutcome{}, err
	}

	families := s.catalog.FamiliesFor(in.Task)
	results := make([]FamilyResult, len(families))

	jobs := make(chan int)
	var wg sync.WaitGroup
	var done atomic.Int64
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = s.evaluate(ctx, in, families[idx], idx, split)
				if in.OnFamilyDone != nil {
					in.OnFamilyDone(int(done.Add(1)), len(families))
				}
			}
		}()
	}
	for idx := range families {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return SearchOutcome{}, err
	}

	ranked := rankResults(results)
	if ranked[0].Err != nil {
		return SearchOutcome{Results: ranked}, fmt.Errorf("all %d families failed, first error: %w", len(ranked), ranked[0].Err)
	}
	return SearchOutcome{Results: ranked, Best: &ranked[0]}, nil
}

func (s *Searcher) evaluate(ctx context.Context, in SearchInput, spec FamilySpec, idx int, split Split) FamilyResult {
	s.hub.Publish(in.ProjectID, progress.ModelProgressEvent(in.RunID, spec.Name, "training", nil))

	onProgress := func(family string, params Params, score float64, index, total int) {
		s.hub.Publish(in.ProjectID, progress.HyperProgressEvent(in.RunID, family, params, Round4(score), index, total))
	}

	result, err := EvaluateFamily(ctx, in.Task, spec, in.X, in.Y, split, onProgress)
	result.Index = idx
	if err != nil {
		result.Err = err
		result.Score = in.Task.WorstScore()
		s.logger.Error("model family failed",
			"run_id", in.RunID, "family", spec.Name, "error", err)
		s.hub.Publish(in.ProjectID, progress.ErrorEvent(in.RunID, fmt.Sprintf("%s: %v", spec.Name, err)))
		s.hub.Publish(in.ProjectID, progress.ModelProgressEvent(in.RunID, spec.Name, "failed", nil))
		return result
	}

	score := Round4(result.Score)
	s.logger.Info("model family evaluated",
		"run_id", in.RunID, "family", spec.Name, "score", score)
	s.hub.Publish(in.ProjectID, progress.ModelProgressEvent(in.RunID, spec.Name, "completed", &score))
	return result
}

// rankResults orders successes by score descending, catalog index
// ascending on ties, then failures in catalog order.
func rankResults(results []FamilyResult) []FamilyResult {
	ranked := append([]FamilyResult(nil), results...)
	sort.SliceStable(ranked, func(a, b int) bool {
		ra, rb := ranked[a], ranked[b]
		if (ra.Err == nil) != (rb.Err == nil) {
			return ra.Err == nil
		}
		if ra.Err != nil {
			return ra.Index < rb.Index
		}
		if ra.Score != rb.Score {
			return ra.Score > rb.Score
		}
		return ra.Index < rb.Index
	})
	return ranked
}
