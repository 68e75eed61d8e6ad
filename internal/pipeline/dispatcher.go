package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/uam-labs/uam-go/internal/repo"
)

const defaultPollInterval = 2 * time.Second

// Dispatcher polls for PENDING runs, claims them atomically and executes
// each on one of a bounded set of workers. One worker owns one run start
// to finish.
type Dispatcher struct {
	runs     repo.RunRepository
	executor *Executor
	interval time.Duration
	workers  int
	logger   *slog.Logger
}

func NewDispatcher(runs repo.RunRepository, executor *Executor, workers int, interval time.Duration, logger *slog.Logger) (*Dispatcher, error) {
	if runs == nil {
		return nil, errors.New("run repository is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if workers <= 0 {
		workers = 1
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Dispatcher{
		runs:     runs,
		executor: executor,
		interval: interval,
		workers:  workers,
		logger:   logger,
	}, nil
}

// Run polls until the context is cancelled, then waits for in-flight
// runs to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "workers", d.workers, "poll_interval", d.interval)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.logger.Info("dispatcher stopped")
			return nil
		case <-ticker.C:
			d.drain(ctx, sem, &wg)
		}
	}
}

// drain claims runs until the queue is empty or every worker is busy.
func (d *Dispatcher) drain(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	for {
		select {
		case sem <- struct{}{}:
		default:
			return
		}

		run, err := d.runs.ClaimPending(ctx)
		if err != nil {
			<-sem
			if !errors.Is(err, repo.ErrNotFound) && !errors.Is(err, context.Canceled) {
				d.logger.Error("claim failed", "error", err)
			}
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := d.executor.Execute(ctx, run); err != nil {
				d.logger.Error("run failed", "run_id", run.ID, "error", err)
			}
		}()
	}
}
