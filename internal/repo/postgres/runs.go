package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uam-labs/uam-go/internal/domain"
	"github.com/uam-labs/uam-go/internal/repo"
)

const runColumns = `run_id, project_id, dataset_id, status, current_task, progress,
	params, score_summary, started_at, finished_at, created_at`

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	paramsJSON, err := encodeMetadata(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	createdAt := normalizeTime(run.CreatedAt)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO runs (
			run_id,
			project_id,
			dataset_id,
			status,
			current_task,
			progress,
			params,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.ProjectID),
		strings.TrimSpace(run.DatasetID),
		string(run.Status),
		nullIfEmpty(run.CurrentTask),
		run.Progress,
		paramsJSON,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, projectID, id string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return domain.Run{}, fmt.Errorf("project id is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+runColumns+`
		 FROM runs
		 WHERE project_id = $1 AND run_id = $2`,
		projectID,
		id,
	)
	run, err := scanRun(row)
	if err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	return run, nil
}

func buildRunListQuery(filter repo.RunFilter) (string, []any, error) {
	if strings.TrimSpace(filter.ProjectID) == "" {
		return "", nil, fmt.Errorf("project id is required")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)

	args = append(args, strings.TrimSpace(filter.ProjectID))
	clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + runColumns + ` FROM runs WHERE ` + strings.Join(clauses, " AND ")
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	query, args, err := buildRunListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ClaimPending moves the oldest waiting run to RUNNING. The status guard
// inside the UPDATE makes the claim atomic across competing dispatchers;
// SKIP LOCKED keeps them from serializing on the same row.
func (s *RunStore) ClaimPending(ctx context.Context) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE runs SET status = 'RUNNING', started_at = now()
		 WHERE run_id = (
			SELECT run_id FROM runs
			WHERE status = 'PENDING'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		 )
		 RETURNING `+runColumns,
	)
	run, err := scanRun(row)
	if err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	return run, nil
}

func (s *RunStore) AdvanceProgress(ctx context.Context, id, task string, progress float64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	task = strings.TrimSpace(task)
	if task == "" {
		return fmt.Errorf("task is required")
	}
	if progress < 0 || progress > 1 {
		return fmt.Errorf("progress %v out of range", progress)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET current_task = $1, progress = GREATEST(progress, $2)
		 WHERE run_id = $3 AND status = 'RUNNING'`,
		task,
		progress,
		id,
	)
	if err != nil {
		return fmt.Errorf("advance progress: %w", err)
	}
	return guardResult(res)
}

func (s *RunStore) CompleteRun(ctx context.Context, id string, scoreSummary domain.Metadata) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	summaryJSON, err := encodeMetadata(scoreSummary)
	if err != nil {
		return fmt.Errorf("encode score summary: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = 'COMPLETED', progress = 1.0, current_task = NULL, score_summary = $1, finished_at = now()
		 WHERE run_id = $2 AND status = 'RUNNING'`,
		summaryJSON,
		id,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return guardResult(res)
}

// FailRun marks the run FAILED. current_task and progress are left alone
// so the failing stage and last reached milestone stay visible.
func (s *RunStore) FailRun(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = 'FAILED', finished_at = now()
		 WHERE run_id = $1 AND status = 'RUNNING'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return guardResult(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var run domain.Run
	var status string
	var currentTask sql.NullString
	var paramsJSON []byte
	var summaryJSON []byte
	var startedAt sql.NullTime
	var finishedAt sql.NullTime
	if err := row.Scan(&run.ID, &run.ProjectID, &run.DatasetID, &status, &currentTask, &run.Progress,
		&paramsJSON, &summaryJSON, &startedAt, &finishedAt, &run.CreatedAt); err != nil {
		return domain.Run{}, err
	}
	run.Status = domain.RunStatus(status)
	if currentTask.Valid {
		run.CurrentTask = currentTask.String
	}
	if startedAt.Valid {
		started := startedAt.Time.UTC()
		run.StartedAt = &started
	}
	if finishedAt.Valid {
		finished := finishedAt.Time.UTC()
		run.FinishedAt = &finished
	}
	params, err := decodeMetadata(paramsJSON)
	if err != nil {
		return domain.Run{}, fmt.Errorf("decode params: %w", err)
	}
	run.Params = params
	if len(summaryJSON) > 0 {
		summary, err := decodeMetadata(summaryJSON)
		if err != nil {
			return domain.Run{}, fmt.Errorf("decode score summary: %w", err)
		}
		run.ScoreSummary = summary
	}
	return run, nil
}
