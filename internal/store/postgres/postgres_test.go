package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/ati-tools/manualfinder/internal/manual"
)

func TestCacheStoreUpsert(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCacheStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	record := manual.CacheRecord{
		Model:          "x100",
		Brand:          "Acme",
		DocumentURL:    "https://vendor.example.com/x100.pdf",
		StorageRef:     "manuals/X100.pdf",
		WarrantyText:   "2 year warranty",
		LastVerifiedAt: &now,
	}

	mock.ExpectExec("INSERT INTO manual_cache").
		WithArgs("X100", "Acme", "", record.DocumentURL, record.StorageRef, record.WarrantyText, &now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stored, err := store.Upsert(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, "X100", stored.Model)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStoreGetByModel(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCacheStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"model", "brand", "name", "document_url", "storage_ref", "warranty_text", "last_verified_at",
	}).AddRow("X100", "Acme", "Widget", "https://vendor.example.com/x100.pdf", "manuals/X100.pdf", "", &now)

	mock.ExpectQuery("SELECT (.+) FROM manual_cache").
		WithArgs("X100").
		WillReturnRows(rows)

	record, err := store.GetByModel(context.Background(), " x100 ")
	require.NoError(t, err)
	require.Equal(t, "Acme", record.Brand)
	require.Equal(t, "manuals/X100.pdf", record.StorageRef)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStoreGetByModelMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCacheStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM manual_cache").
		WithArgs("X999").
		WillReturnRows(pgxmock.NewRows([]string{
			"model", "brand", "name", "document_url", "storage_ref", "warranty_text", "last_verified_at",
		}))

	_, err = store.GetByModel(context.Background(), "X999")
	require.ErrorIs(t, err, manual.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemStoreUpdateMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewItemStore(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE work_items").
		WithArgs(manual.StatusFound, "https://x", "", "", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateItem(context.Background(), manual.WorkItem{
		ID:          "missing",
		Status:      manual.StatusFound,
		DocumentURL: "https://x",
	})
	require.ErrorIs(t, err, manual.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemStoreListByProject(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewItemStore(mock)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"id", "project_id", "brand", "model", "name", "status", "document_url", "notes", "cache_model",
	}).
		AddRow("a", "p1", "Acme", "X100", "", "found", "https://x", "", "X100").
		AddRow("b", "p1", "Shure", "MXA910", "", "pending", "", "", "")

	mock.ExpectQuery("SELECT (.+) FROM work_items").
		WithArgs("p1").
		WillReturnRows(rows)

	items, err := store.ListByProject(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, manual.StatusFound, items[0].Status)
	require.Equal(t, "MXA910", items[1].Identity.Model)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectStoreRoundTrip(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProjectStore(mock)
	require.NoError(t, err)

	created := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO projects").
		WithArgs("p1", "HQ refresh", created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.CreateProject(context.Background(), manual.Project{
		ID:        "p1",
		Name:      "HQ refresh",
		CreatedAt: created,
	})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, name, created_at FROM projects").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow("p1", "HQ refresh", created))

	project, err := store.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "HQ refresh", project.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
