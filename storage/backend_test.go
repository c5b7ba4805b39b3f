package storage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/credential-store/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testHierarchicalSemantics checks the status contract every backend shares.
func testHierarchicalSemantics(t *testing.T, client interfaces.KeyValueClient) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		resp, err := client.Get(ctx, "users/")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)
	})

	t.Run("mkdir", func(t *testing.T) {
		resp, err := client.Mkdir(ctx, "users")
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.Status)

		resp, err = client.Mkdir(ctx, "users")
		require.NoError(t, err)
		assert.Equal(t, http.StatusPreconditionFailed, resp.Status)

		resp, err = client.Get(ctx, "users/")
		require.NoError(t, err)
		assert.True(t, resp.OK())
		assert.True(t, resp.Dir)
	})

	t.Run("set and update", func(t *testing.T) {
		resp, err := client.Mkdir(ctx, "users/alice")
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.Status)

		resp, err = client.Set(ctx, "users/alice/passwd", "first", false)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.Status)

		resp, err = client.Set(ctx, "users/alice/passwd", "second", true)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)

		resp, err = client.Get(ctx, "users/alice/passwd")
		require.NoError(t, err)
		assert.True(t, resp.OK())
		assert.False(t, resp.Dir)
		assert.Equal(t, "second", resp.Value)
	})

	t.Run("update of missing leaf", func(t *testing.T) {
		resp, err := client.Mkdir(ctx, "users/bob")
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.Status)

		resp, err = client.Set(ctx, "users/bob/passwd", "x", true)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)
	})

	t.Run("set on directory", func(t *testing.T) {
		resp, err := client.Set(ctx, "users/alice", "x", false)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.Status)
	})

	t.Run("delete", func(t *testing.T) {
		resp, err := client.Delete(ctx, "users/alice", false)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.Status)

		resp, err = client.Delete(ctx, "users/alice", true)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)

		resp, err = client.Get(ctx, "users/alice/passwd")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)

		resp, err = client.Get(ctx, "users/alice")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)

		resp, err = client.Delete(ctx, "users/alice", true)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)

		// siblings survive
		resp, err = client.Get(ctx, "users/bob")
		require.NoError(t, err)
		assert.True(t, resp.Dir)
	})
}

func TestMemoryBackend(t *testing.T) {
	testHierarchicalSemantics(t, NewMemoryBackend())
}

func TestBoltBackend(t *testing.T) {
	backend, err := NewBoltBackend(filepath.Join(t.TempDir(), "data", "store.db"), testLogger())
	require.NoError(t, err)
	defer backend.Close()

	testHierarchicalSemantics(t, backend)
}

func TestBoltBackend_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	backend, err := NewBoltBackend(dbPath, testLogger())
	require.NoError(t, err)
	_, err = backend.Set(ctx, "users/admin/passwd", "hash", false)
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	backend, err = NewBoltBackend(dbPath, testLogger())
	require.NoError(t, err)
	defer backend.Close()

	resp, err := backend.Get(ctx, "users/admin/passwd")
	require.NoError(t, err)
	assert.Equal(t, "hash", resp.Value)

	resp, err = backend.Get(ctx, "users/admin")
	require.NoError(t, err)
	assert.True(t, resp.Dir)
}

func TestBoltBackend_LeafInPath(t *testing.T) {
	backend, err := NewBoltBackend(filepath.Join(t.TempDir(), "store.db"), testLogger())
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	_, err = backend.Set(ctx, "users/alice", "leaf", false)
	require.NoError(t, err)

	resp, err := backend.Mkdir(ctx, "users/alice/sub")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp, err = backend.Get(ctx, "users/alice/sub")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestMemoryBackend_Calls(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	_, _ = backend.Get(ctx, "/users/")
	_, _ = backend.Mkdir(ctx, "users/alice")
	_, _ = backend.Set(ctx, "users/alice/passwd", "h", false)
	_, _ = backend.Delete(ctx, "users/alice", true)

	assert.Equal(t, []Call{
		{Op: "get", Path: "users"},
		{Op: "mkdir", Path: "users/alice"},
		{Op: "set", Path: "users/alice/passwd"},
		{Op: "delete", Path: "users/alice"},
	}, backend.Calls())
	assert.Len(t, backend.Writes(), 3)

	backend.ResetCalls()
	assert.Empty(t, backend.Calls())

	resp, err := backend.Get(ctx, "users/alice")
	require.NoError(t, err)
	assert.True(t, resp.NotFound())
}

func TestMemoryBackend_CancelledContext(t *testing.T) {
	backend := NewMemoryBackend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Get(ctx, "users/alice")
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	_, err = backend.Set(ctx, "users/alice/passwd", "h", false)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	assert.ErrorContains(t, err, context.Canceled.Error())
	_, err = backend.Mkdir(ctx, "users/alice")
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	_, err = backend.Delete(ctx, "users/alice", true)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	assert.Empty(t, backend.Calls())
}

func TestFileBackend(t *testing.T) {
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "store"), testLogger())
	require.NoError(t, err)

	testHierarchicalSemantics(t, backend)
	assert.Equal(t, "file-store", backend.Name())
}

func TestFileBackend_Layout(t *testing.T) {
	baseDir := t.TempDir()
	backend, err := NewFileBackend(baseDir, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = backend.Set(ctx, "users/admin/passwd", "hash", false)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(baseDir, "users", "admin", "passwd"))
	require.NoError(t, err)
	assert.Equal(t, "hash", string(data))

	resp, err := backend.Mkdir(ctx, "users/admin/passwd/sub")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp, err = backend.Get(ctx, "users/admin/passwd/sub")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp, err = backend.Set(ctx, "users/../../escape", "x", false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.Status)
}
