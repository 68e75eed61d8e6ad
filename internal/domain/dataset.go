package domain

import (
	"errors"
	"strings"
	"time"
)

// Dataset is the stored reference to an uploaded tabular dataset. This
// service only reads datasets; upload and cleaning live elsewhere.
type Dataset struct {
	ID         string
	Filename   string
	StorageKey string
	Rows       int64
	Cols       int64
	UploadedAt time.Time
}

func (d Dataset) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("dataset id is required")
	}
	if strings.TrimSpace(d.StorageKey) == "" {
		return errors.New("storage key is required")
	}
	return nil
}

// Project is the ownership boundary for runs and datasets.
type Project struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("project name is required")
	}
	return nil
}
