package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ati-tools/manualfinder/internal/manual"
)

// CacheStore implements manual.CacheStore on Postgres.
type CacheStore struct {
	pool querier
}

// NewCacheStore constructs a store from an existing pool.
func NewCacheStore(pool querier) (*CacheStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CacheStore{pool: pool}, nil
}

const cacheColumns = `model, brand, name, document_url, storage_ref, warranty_text, last_verified_at`

func (s *CacheStore) GetByModel(ctx context.Context, model string) (manual.CacheRecord, error) {
	query := `SELECT ` + cacheColumns + ` FROM manual_cache WHERE model = $1`
	var record manual.CacheRecord
	err := s.pool.QueryRow(ctx, query, manual.NormalizeModel(model)).Scan(
		&record.Model,
		&record.Brand,
		&record.Name,
		&record.DocumentURL,
		&record.StorageRef,
		&record.WarrantyText,
		&record.LastVerifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return manual.CacheRecord{}, manual.ErrNotFound
	}
	if err != nil {
		return manual.CacheRecord{}, fmt.Errorf("get cache record: %w", err)
	}
	return record, nil
}

// Upsert writes the record, replacing any previous row for the model.
func (s *CacheStore) Upsert(ctx context.Context, record manual.CacheRecord) (manual.CacheRecord, error) {
	record.Model = manual.NormalizeModel(record.Model)
	query := `
		INSERT INTO manual_cache (` + cacheColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (model) DO UPDATE SET
			brand = EXCLUDED.brand,
			name = EXCLUDED.name,
			document_url = EXCLUDED.document_url,
			storage_ref = EXCLUDED.storage_ref,
			warranty_text = EXCLUDED.warranty_text,
			last_verified_at = EXCLUDED.last_verified_at`
	_, err := s.pool.Exec(ctx, query,
		record.Model,
		record.Brand,
		record.Name,
		record.DocumentURL,
		record.StorageRef,
		record.WarrantyText,
		record.LastVerifiedAt,
	)
	if err != nil {
		return manual.CacheRecord{}, fmt.Errorf("upsert cache record: %w", err)
	}
	return record, nil
}

// List returns records matching search against model, brand or name. An empty
// search returns everything, sorted by model.
func (s *CacheStore) List(ctx context.Context, search string) ([]manual.CacheRecord, error) {
	query := `
		SELECT ` + cacheColumns + `
		FROM manual_cache
		WHERE $1 = '' OR model ILIKE $2 OR brand ILIKE $2 OR name ILIKE $2
		ORDER BY model`
	rows, err := s.pool.Query(ctx, query, search, "%"+search+"%")
	if err != nil {
		return nil, fmt.Errorf("list cache records: %w", err)
	}
	defer rows.Close()

	var records []manual.CacheRecord
	for rows.Next() {
		var record manual.CacheRecord
		if err := rows.Scan(
			&record.Model,
			&record.Brand,
			&record.Name,
			&record.DocumentURL,
			&record.StorageRef,
			&record.WarrantyText,
			&record.LastVerifiedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cache record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cache records: %w", err)
	}
	return records, nil
}
