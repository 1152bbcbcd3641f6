package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	data := []byte("whole-region snapshot bytes")
	require.NoError(t, store.Put(ctx, "slots/wizard.nhz", bytes.NewReader(data), int64(len(data))))

	// The object lands under the root as a regular file.
	_, err = os.Stat(filepath.Join(dir, "slots", "wizard.nhz"))
	require.NoError(t, err)

	rc, size, err := store.Get(ctx, "slots/wizard.nhz")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(len(data)), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Put overwrites atomically.
	next := []byte("newer save")
	require.NoError(t, store.Put(ctx, "slots/wizard.nhz", bytes.NewReader(next), int64(len(next))))
	rc2, size2, err := store.Get(ctx, "slots/wizard.nhz")
	require.NoError(t, err)
	defer rc2.Close()
	assert.Equal(t, int64(len(next)), size2)

	require.NoError(t, store.Delete(ctx, "slots/wizard.nhz"))
	_, _, err = store.Get(ctx, "slots/wizard.nhz")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing object is fine.
	assert.NoError(t, store.Delete(ctx, "slots/wizard.nhz"))
}

func TestLocalStore_List(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"slots/a.nhz", "slots/b.nhz", "misc/readme"} {
		require.NoError(t, store.Put(ctx, name, bytes.NewReader([]byte{1}), 1))
	}

	names, err := store.List(ctx, "slots/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"slots/a.nhz", "slots/b.nhz"}, names)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
