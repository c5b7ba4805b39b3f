package storage

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/ruteri/credential-store/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMultiBackend_Semantics(t *testing.T) {
	bolt, err := NewBoltBackend(filepath.Join(t.TempDir(), "mirror.db"), testLogger())
	require.NoError(t, err)
	defer bolt.Close()

	primary := NewMemoryBackend()
	multi := NewMultiBackend([]interfaces.KeyValueClient{primary, bolt}, testLogger())
	testHierarchicalSemantics(t, multi)

	// the mirror saw every write
	for _, path := range []string{"users", "users/bob", "users/carol/passwd"} {
		want, err := primary.Get(context.Background(), path)
		require.NoError(t, err)
		got, err := bolt.Get(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, want.Status, got.Status, path)
		assert.Equal(t, want.Value, got.Value, path)
	}
}

func TestMultiBackend_GetFallback(t *testing.T) {
	tests := []struct {
		name      string
		primary   func(m *MockKeyValueClient)
		secondary func(m *MockKeyValueClient)
		status    int
		wantErr   bool
	}{
		{
			name: "primary answers",
			primary: func(m *MockKeyValueClient) {
				m.On("Get", mock.Anything, "users").Return(&interfaces.Response{Status: http.StatusNotFound}, nil)
			},
			secondary: func(m *MockKeyValueClient) {},
			status:    http.StatusNotFound,
		},
		{
			name: "primary unreachable",
			primary: func(m *MockKeyValueClient) {
				m.On("Get", mock.Anything, "users").Return(nil, interfaces.ErrBackendUnavailable)
			},
			secondary: func(m *MockKeyValueClient) {
				m.On("Get", mock.Anything, "users").Return(&interfaces.Response{Status: http.StatusOK, Dir: true}, nil)
			},
			status: http.StatusOK,
		},
		{
			name: "all unreachable",
			primary: func(m *MockKeyValueClient) {
				m.On("Get", mock.Anything, "users").Return(nil, errors.New("connection refused"))
			},
			secondary: func(m *MockKeyValueClient) {
				m.On("Get", mock.Anything, "users").Return(nil, errors.New("timeout"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, secondary := new(MockKeyValueClient), new(MockKeyValueClient)
			tt.primary(primary)
			tt.secondary(secondary)

			multi := NewMultiBackend([]interfaces.KeyValueClient{primary, secondary}, testLogger())
			resp, err := multi.Get(context.Background(), "users")
			if tt.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.Status)
			primary.AssertExpectations(t)
			secondary.AssertExpectations(t)
		})
	}
}

func TestMultiBackend_Write(t *testing.T) {
	t.Run("primary decides", func(t *testing.T) {
		primary, mirror := new(MockKeyValueClient), new(MockKeyValueClient)
		primary.On("Mkdir", mock.Anything, "users").Return(&interfaces.Response{Status: http.StatusPreconditionFailed}, nil)
		mirror.On("Mkdir", mock.Anything, "users").Return(&interfaces.Response{Status: http.StatusCreated}, nil)

		multi := NewMultiBackend([]interfaces.KeyValueClient{primary, mirror}, testLogger())
		resp, err := multi.Mkdir(context.Background(), "users")
		require.NoError(t, err)
		assert.Equal(t, http.StatusPreconditionFailed, resp.Status)
		mirror.AssertExpectations(t)
	})

	t.Run("mirror answers when primary fails", func(t *testing.T) {
		primary, mirror := new(MockKeyValueClient), new(MockKeyValueClient)
		primary.On("Delete", mock.Anything, "users/a", true).Return(nil, interfaces.ErrBackendUnavailable)
		mirror.On("Delete", mock.Anything, "users/a", true).Return(&interfaces.Response{Status: http.StatusOK}, nil)

		multi := NewMultiBackend([]interfaces.KeyValueClient{primary, mirror}, testLogger())
		resp, err := multi.Delete(context.Background(), "users/a", true)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
	})

	t.Run("all fail", func(t *testing.T) {
		primary := new(MockKeyValueClient)
		primary.On("Set", mock.Anything, "users/a/passwd", "h", false).Return(nil, errors.New("boom"))

		multi := NewMultiBackend([]interfaces.KeyValueClient{primary}, testLogger())
		_, err := multi.Set(context.Background(), "users/a/passwd", "h", false)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	})
}

func TestMultiBackend_Location(t *testing.T) {
	multi := NewMultiBackend([]interfaces.KeyValueClient{NewMemoryBackend(), new(MockKeyValueClient)}, nil)
	assert.Equal(t, "multi-storage", multi.Name())
	assert.Equal(t, "multi:[memory://,mock:]", multi.LocationURI())
}
