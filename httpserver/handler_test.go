package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruteri/credential-store/api"
	"github.com/ruteri/credential-store/credentials"
	"github.com/ruteri/credential-store/interfaces"
	"github.com/ruteri/credential-store/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, requireAuth bool) (*Server, *credentials.Store, *storage.MemoryBackend) {
	t.Helper()
	logger := testLogger()
	backend := storage.NewMemoryBackend()
	store := credentials.NewStore(backend, logger)

	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		RequireAdminAuth:         requireAuth,
		Log:                      logger,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, NewHandler(store, logger))
	require.NoError(t, err)
	return srv, store, backend
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func boolPtr(b bool) *bool {
	return &b
}

func TestHandleCreateUser(t *testing.T) {
	srv, store, backend := newTestServer(t, false)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/users", api.CreateUserRequest{
		Username: "alice",
		Password: "hunter12",
		Admin:    boolPtr(true),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp api.UserResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, "created", resp.Status)

	isAdmin, err := store.IsAdmin(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, isAdmin)

	leaf, err := backend.Get(context.Background(), "users/alice/passwd")
	require.NoError(t, err)
	assert.Len(t, leaf.Value, 128)
}

func TestHandleCreateUser_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{name: "separator in username", body: api.CreateUserRequest{Username: "a/b", Password: "pw123456"}, status: http.StatusBadRequest},
		{name: "empty username", body: api.CreateUserRequest{Password: "pw123456"}, status: http.StatusBadRequest},
		{name: "missing password", body: api.CreateUserRequest{Username: "bob"}, status: http.StatusBadRequest},
		{name: "unknown field", body: map[string]string{"username": "bob", "password": "pw123456", "role": "root"}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t, false)
			w := doJSON(t, srv.Handler(), http.MethodPost, "/api/users", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestHandleCreateUser_Conflict(t *testing.T) {
	srv, _, _ := newTestServer(t, false)
	body := api.CreateUserRequest{Username: "bob", Password: "pw123456"}

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/users", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, srv.Handler(), http.MethodPost, "/api/users", body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleUpdateUser(t *testing.T) {
	srv, store, backend := newTestServer(t, false)
	ctx := context.Background()

	_, err := store.Update(ctx, "bob", "pw123456", interfaces.AdminUnset, false)
	require.NoError(t, err)
	backend.ResetCalls()

	w := doJSON(t, srv.Handler(), http.MethodPut, "/api/users/bob", api.UpdateUserRequest{Password: "pw654321"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []storage.Call{{Op: "set", Path: "users/bob/passwd"}}, backend.Writes())

	valid, err := store.Verify(ctx, "bob", "pw654321")
	require.NoError(t, err)
	assert.True(t, valid)

	w = doJSON(t, srv.Handler(), http.MethodPut, "/api/users/nobody", api.UpdateUserRequest{Password: "pw654321"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleUpdateUser_MissingAdmin(t *testing.T) {
	srv, store, _ := newTestServer(t, false)

	w := doJSON(t, srv.Handler(), http.MethodPut, "/api/users/ghost", api.UpdateUserRequest{Password: "pw654321", Admin: boolPtr(true)})
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	isAdmin, err := store.IsAdmin(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, isAdmin)

	w = doJSON(t, srv.Handler(), http.MethodPost, "/api/users", api.CreateUserRequest{Username: "ghost", Password: "pw123456"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestStatusFor_CancelledBackendCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := storage.NewMemoryBackend().Get(ctx, "users/alice")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, statusFor(err))
}

func TestHandleDeleteUser(t *testing.T) {
	srv, store, backend := newTestServer(t, false)
	ctx := context.Background()

	// written by an earlier process, so this store has never seen it
	_, err := backend.Set(ctx, "users/carol/passwd", "x", false)
	require.NoError(t, err)
	require.False(t, store.Tracked("carol"))

	w := doJSON(t, srv.Handler(), http.MethodDelete, "/api/users/carol", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp, err := backend.Get(ctx, "users/carol")
	require.NoError(t, err)
	assert.True(t, resp.NotFound())

	w = doJSON(t, srv.Handler(), http.MethodDelete, "/api/users/carol", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleVerify(t *testing.T) {
	srv, store, _ := newTestServer(t, false)
	_, err := store.Update(context.Background(), "admin", "secret123", interfaces.AdminTrue, false)
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
		valid    bool
		admin    bool
	}{
		{name: "valid", username: "admin", password: "secret123", valid: true, admin: true},
		{name: "wrong password", username: "admin", password: "secret124"},
		{name: "unknown user", username: "eve", password: "secret123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, srv.Handler(), http.MethodPost, "/api/users/"+tt.username+"/verify", api.VerifyRequest{Password: tt.password})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp api.VerifyResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.valid, resp.Valid)
			assert.Equal(t, tt.admin, resp.Admin)
		})
	}
}

func TestAdminAuth(t *testing.T) {
	srv, store, _ := newTestServer(t, true)
	ctx := context.Background()

	_, err := store.Update(ctx, "admin", "secret123", interfaces.AdminTrue, false)
	require.NoError(t, err)
	_, err = store.Update(ctx, "bob", "pw123456", interfaces.AdminFalse, false)
	require.NoError(t, err)

	tests := []struct {
		name     string
		user     string
		password string
		status   int
	}{
		{name: "no credentials", status: http.StatusUnauthorized},
		{name: "wrong password", user: "admin", password: "nope", status: http.StatusUnauthorized},
		{name: "unknown user", user: "eve", password: "secret123", status: http.StatusUnauthorized},
		{name: "not an admin", user: "bob", password: "pw123456", status: http.StatusForbidden},
		{name: "admin", user: "admin", password: "secret123", status: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(api.CreateUserRequest{Username: "new_" + tt.user, Password: "pw123456"})
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewReader(data))
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.password)
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, false)
	h := srv.Handler()

	steps := []struct {
		path   string
		status int
		body   string
	}{
		{path: "/livez", status: http.StatusOK, body: `{"status":"alive"}`},
		{path: "/readyz", status: http.StatusOK, body: `{"status":"ready"}`},
		{path: "/drain", status: http.StatusOK, body: `{"status":"draining"}`},
		{path: "/drain", status: http.StatusOK, body: `{"status":"already draining"}`},
		{path: "/readyz", status: http.StatusServiceUnavailable, body: `{"status":"not ready"}`},
		{path: "/undrain", status: http.StatusOK, body: `{"status":"ready"}`},
		{path: "/undrain", status: http.StatusOK, body: `{"status":"already ready"}`},
		{path: "/readyz", status: http.StatusOK, body: `{"status":"ready"}`},
	}

	for _, step := range steps {
		w := doJSON(t, h, http.MethodGet, step.path, nil)
		assert.Equal(t, step.status, w.Code, step.path)
		assert.Equal(t, step.body, w.Body.String(), step.path)
	}
}
