package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ati-tools/manualfinder/internal/manual"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	ref, err := store.PutObject(ctx, "manuals/X100.pdf", "application/pdf", []byte("%PDF-1.4 x"))
	require.NoError(t, err)
	require.Equal(t, "manuals/X100.pdf", ref)

	data, err := store.GetObject(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.4 x"), data)

	url, err := store.SignedURL(ctx, ref, 0)
	require.NoError(t, err)
	require.Contains(t, url, "file://")
	require.Contains(t, url, "X100.pdf")
}

func TestBlobStoreMissingObject(t *testing.T) {
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "manuals/missing.pdf")
	require.ErrorIs(t, err, manual.ErrNotFound)
}

func TestBlobStoreRejectsTraversal(t *testing.T) {
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../outside.pdf", "", []byte("x"))
	require.Error(t, err)
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
