package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uam-labs/uam-go/internal/domain"
	"github.com/uam-labs/uam-go/internal/repo"
)

const candidateColumns = `candidate_id, run_id, name, params, metrics, score,
	storage_key, selected, created_at`

type CandidateStore struct {
	db DB
}

func NewCandidateStore(db DB) *CandidateStore {
	if db == nil {
		return nil
	}
	return &CandidateStore{db: db}
}

func (s *CandidateStore) CreateCandidate(ctx context.Context, candidate domain.CandidateModel) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("candidate store not initialized")
	}
	if err := candidate.Validate(); err != nil {
		return err
	}
	paramsJSON, err := encodeMetadata(candidate.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	metricsJSON, err := encodeMetadata(candidate.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO candidate_models (
			candidate_id,
			run_id,
			name,
			params,
			metrics,
			score,
			storage_key,
			selected,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		strings.TrimSpace(candidate.ID),
		strings.TrimSpace(candidate.RunID),
		strings.TrimSpace(candidate.Name),
		paramsJSON,
		metricsJSON,
		candidate.Score,
		nullIfEmpty(candidate.StorageKey),
		candidate.Selected,
		normalizeTime(candidate.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

func buildCandidateListQuery(filter repo.CandidateFilter) (string, []any, error) {
	if strings.TrimSpace(filter.RunID) == "" {
		return "", nil, fmt.Errorf("run id is required")
	}
	args := []any{strings.TrimSpace(filter.RunID)}
	query := `SELECT ` + candidateColumns + ` FROM candidate_models WHERE run_id = $1
	 ORDER BY score DESC, created_at ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

func (s *CandidateStore) ListCandidates(ctx context.Context, filter repo.CandidateFilter) ([]domain.CandidateModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("candidate store not initialized")
	}
	query, args, err := buildCandidateListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]domain.CandidateModel, 0)
	for rows.Next() {
		var candidate domain.CandidateModel
		var paramsJSON []byte
		var metricsJSON []byte
		var storageKey sql.NullString
		if err := rows.Scan(&candidate.ID, &candidate.RunID, &candidate.Name, &paramsJSON, &metricsJSON,
			&candidate.Score, &storageKey, &candidate.Selected, &candidate.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if storageKey.Valid {
			candidate.StorageKey = storageKey.String
		}
		params, err := decodeMetadata(paramsJSON)
		if err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		metrics, err := decodeMetadata(metricsJSON)
		if err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		candidate.Params = params
		candidate.Metrics = metrics
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return candidates, nil
}

// MarkSelected clears any previous selection for the run and sets the new
// one inside a single transaction, keeping the partial unique index on
// (run_id) WHERE selected satisfied at commit.
func (s *CandidateStore) MarkSelected(ctx context.Context, runID, candidateID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("candidate store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return fmt.Errorf("candidate id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin select candidate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE candidate_models SET selected = FALSE WHERE run_id = $1 AND selected`,
		runID,
	); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	res, err := tx.ExecContext(
		ctx,
		`UPDATE candidate_models SET selected = TRUE WHERE run_id = $1 AND candidate_id = $2`,
		runID,
		candidateID,
	)
	if err != nil {
		return fmt.Errorf("set selection: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set selection: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit selection: %w", err)
	}
	return nil
}
