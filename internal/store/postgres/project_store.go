package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ati-tools/manualfinder/internal/manual"
)

// ProjectStore implements manual.ProjectStore on Postgres.
type ProjectStore struct {
	pool querier
}

// NewProjectStore constructs a store from an existing pool.
func NewProjectStore(pool querier) (*ProjectStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ProjectStore{pool: pool}, nil
}

func (s *ProjectStore) CreateProject(ctx context.Context, project manual.Project) error {
	query := `INSERT INTO projects (id, name, created_at) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, project.ID, project.Name, project.CreatedAt); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *ProjectStore) GetProject(ctx context.Context, id string) (manual.Project, error) {
	query := `SELECT id, name, created_at FROM projects WHERE id = $1`
	var project manual.Project
	err := s.pool.QueryRow(ctx, query, id).Scan(&project.ID, &project.Name, &project.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return manual.Project{}, manual.ErrNotFound
	}
	if err != nil {
		return manual.Project{}, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}
