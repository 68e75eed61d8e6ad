package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/uam-labs/uam-go/internal/domain"
)

type RunLogStore struct {
	db DB
}

func NewRunLogStore(db DB) *RunLogStore {
	if db == nil {
		return nil
	}
	return &RunLogStore{db: db}
}

func (s *RunLogStore) Append(ctx context.Context, entry domain.LogEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run log store not initialized")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO run_logs (log_id, run_id, level, message, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		strings.TrimSpace(entry.ID),
		strings.TrimSpace(entry.RunID),
		strings.TrimSpace(entry.Level),
		entry.Message,
		normalizeTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

func (s *RunLogStore) Tail(ctx context.Context, runID string, limit int) ([]domain.LogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run log store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT log_id, run_id, level, message, created_at
		 FROM run_logs
		 WHERE run_id = $1
		 ORDER BY created_at DESC, log_id DESC
		 LIMIT $2`,
		runID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("tail run logs: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LogEntry, 0, limit)
	for rows.Next() {
		var entry domain.LogEntry
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Level, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tail run logs: %w", err)
	}
	return entries, nil
}
