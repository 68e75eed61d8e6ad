package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uam-labs/uam-go/internal/domain"
)

// ProjectStore reads project rows for existence checks.
type ProjectStore struct {
	db DB
}

func NewProjectStore(db DB) *ProjectStore {
	if db == nil {
		return nil
	}
	return &ProjectStore{db: db}
}

func (s *ProjectStore) GetProject(ctx context.Context, id string) (domain.Project, error) {
	if s == nil || s.db == nil {
		return domain.Project{}, fmt.Errorf("project store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Project{}, fmt.Errorf("project id is required")
	}
	var project domain.Project
	var description sql.NullString
	row := s.db.QueryRowContext(
		ctx,
		`SELECT project_id, name, description, created_at
		 FROM projects
		 WHERE project_id = $1`,
		id,
	)
	if err := row.Scan(&project.ID, &project.Name, &description, &project.CreatedAt); err != nil {
		return domain.Project{}, handleNotFound(err)
	}
	if description.Valid {
		project.Description = description.String
	}
	return project, nil
}
