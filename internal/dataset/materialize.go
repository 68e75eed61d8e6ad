package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/uam-labs/uam-go/internal/storage/objectstore"
)

// Materializer fetches a stored CSV object and parses it into a Frame.
type Materializer struct {
	store  objectstore.Store
	bucket string
}

func NewMaterializer(store objectstore.Store, bucket string) (*Materializer, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Materializer{store: store, bucket: bucket}, nil
}

func (m *Materializer) Materialize(ctx context.Context, storageKey string) (*Frame, error) {
	if m == nil || m.store == nil {
		return nil, fmt.Errorf("materializer not initialized")
	}
	storageKey = strings.TrimSpace(storageKey)
	if storageKey == "" {
		return nil, fmt.Errorf("storage key is required")
	}
	body, _, err := m.store.Get(ctx, m.bucket, storageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", storageKey, err)
	}
	defer body.Close()

	frame, err := ReadCSV(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", storageKey, err)
	}
	return frame, nil
}
