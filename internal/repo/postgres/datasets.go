package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/uam-labs/uam-go/internal/domain"
)

// DatasetStore reads dataset rows written by the ingestion service.
type DatasetStore struct {
	db DB
}

func NewDatasetStore(db DB) *DatasetStore {
	if db == nil {
		return nil
	}
	return &DatasetStore{db: db}
}

func (s *DatasetStore) GetDataset(ctx context.Context, id string) (domain.Dataset, error) {
	if s == nil || s.db == nil {
		return domain.Dataset{}, fmt.Errorf("dataset store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Dataset{}, fmt.Errorf("dataset id is required")
	}
	var dataset domain.Dataset
	row := s.db.QueryRowContext(
		ctx,
		`SELECT dataset_id, filename, storage_key, rows, cols, uploaded_at
		 FROM datasets
		 WHERE dataset_id = $1`,
		id,
	)
	if err := row.Scan(&dataset.ID, &dataset.Filename, &dataset.StorageKey,
		&dataset.Rows, &dataset.Cols, &dataset.UploadedAt); err != nil {
		return domain.Dataset{}, handleNotFound(err)
	}
	return dataset, nil
}
