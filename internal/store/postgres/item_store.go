package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ati-tools/manualfinder/internal/manual"
)

// ItemStore implements manual.ItemStore on Postgres.
type ItemStore struct {
	pool querier
}

// NewItemStore constructs a store from an existing pool.
func NewItemStore(pool querier) (*ItemStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ItemStore{pool: pool}, nil
}

func (s *ItemStore) CreateItems(ctx context.Context, items []manual.WorkItem) error {
	query := `
		INSERT INTO work_items (id, project_id, brand, model, name, status, document_url, notes, cache_model)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, item := range items {
		_, err := s.pool.Exec(ctx, query,
			item.ID,
			item.ProjectID,
			item.Identity.Brand,
			item.Identity.Model,
			item.Identity.Name,
			item.Status,
			item.DocumentURL,
			item.Notes,
			item.CacheModel,
		)
		if err != nil {
			return fmt.Errorf("insert work item %s: %w", item.ID, err)
		}
	}
	return nil
}

const itemColumns = `id, project_id, brand, model, name, status, document_url, notes, cache_model`

func scanItem(row pgx.Row) (manual.WorkItem, error) {
	var item manual.WorkItem
	var status string
	err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.Identity.Brand,
		&item.Identity.Model,
		&item.Identity.Name,
		&status,
		&item.DocumentURL,
		&item.Notes,
		&item.CacheModel,
	)
	if err != nil {
		return manual.WorkItem{}, err
	}
	item.Status = manual.ItemStatus(status)
	return item, nil
}

func (s *ItemStore) GetItem(ctx context.Context, id string) (manual.WorkItem, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items WHERE id = $1`
	item, err := scanItem(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return manual.WorkItem{}, manual.ErrNotFound
	}
	if err != nil {
		return manual.WorkItem{}, fmt.Errorf("get work item: %w", err)
	}
	return item, nil
}

func (s *ItemStore) UpdateItem(ctx context.Context, item manual.WorkItem) error {
	query := `
		UPDATE work_items
		SET status = $1, document_url = $2, notes = $3, cache_model = $4
		WHERE id = $5`
	tag, err := s.pool.Exec(ctx, query,
		item.Status,
		item.DocumentURL,
		item.Notes,
		item.CacheModel,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update work item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return manual.ErrNotFound
	}
	return nil
}

// ListByProject returns the project's items in creation order.
func (s *ItemStore) ListByProject(ctx context.Context, projectID string) ([]manual.WorkItem, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items WHERE project_id = $1 ORDER BY position`
	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var items []manual.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	return items, nil
}
