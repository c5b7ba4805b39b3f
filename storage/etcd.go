package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/credential-store/interfaces"
)

const etcdKeysPrefix = "/v2/keys/"

// EtcdBackend implements interfaces.KeyValueClient against the etcd v2 keys API.
// Directories are created with dir=true, updates are guarded with prevExist=true
// and subtree removal uses recursive=true.
type EtcdBackend struct {
	baseURL     *url.URL
	client      *http.Client
	user        *url.Userinfo
	log         *slog.Logger
	locationURI string
}

// etcdNode is the node part of an etcd v2 response.
type etcdNode struct {
	Key   string     `json:"key"`
	Value string     `json:"value"`
	Dir   bool       `json:"dir"`
	Nodes []etcdNode `json:"nodes,omitempty"`
}

type etcdResponse struct {
	Action string    `json:"action"`
	Node   *etcdNode `json:"node"`
}

// NewEtcdBackend creates a client for the etcd endpoint at baseURL
// (e.g. http://127.0.0.1:2379). The http.Client is shared by every call; pass
// nil to use a pooled client from go-cleanhttp.
func NewEtcdBackend(baseURL string, user *url.Userinfo, client *http.Client, log *slog.Logger) (*EtcdBackend, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: etcd endpoint must be http or https, got %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}

	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}

	redacted := *u
	if user != nil {
		redacted.User = url.User(user.Username())
	}

	return &EtcdBackend{
		baseURL:     u,
		client:      client,
		user:        user,
		log:         log,
		locationURI: redacted.String(),
	}, nil
}

// Get fetches a leaf value or directory node.
func (b *EtcdBackend) Get(ctx context.Context, path string) (*interfaces.Response, error) {
	return b.do(ctx, http.MethodGet, path, nil, nil)
}

// Set writes a leaf value. With update set the key must already exist.
func (b *EtcdBackend) Set(ctx context.Context, path string, value string, update bool) (*interfaces.Response, error) {
	form := url.Values{}
	form.Set("value", value)
	query := url.Values{}
	if update {
		query.Set("prevExist", "true")
	}
	return b.do(ctx, http.MethodPut, path, query, form)
}

// Mkdir creates a directory node.
func (b *EtcdBackend) Mkdir(ctx context.Context, path string) (*interfaces.Response, error) {
	form := url.Values{}
	form.Set("dir", "true")
	return b.do(ctx, http.MethodPut, path, nil, form)
}

// Delete removes a node. Directories are only removed with recursive set.
func (b *EtcdBackend) Delete(ctx context.Context, path string, recursive bool) (*interfaces.Response, error) {
	query := url.Values{}
	if recursive {
		query.Set("recursive", "true")
	}
	return b.do(ctx, http.MethodDelete, path, query, nil)
}

// Name returns a unique identifier for this backend.
func (b *EtcdBackend) Name() string {
	return fmt.Sprintf("etcd-%s", b.baseURL.Host)
}

// LocationURI returns the URI that identifies this backend.
func (b *EtcdBackend) LocationURI() string {
	return b.locationURI
}

func (b *EtcdBackend) keyURL(path string, query url.Values) string {
	u := *b.baseURL
	u.User = nil
	u.Path = strings.TrimSuffix(u.Path, "/") + etcdKeysPrefix + cleanPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (b *EtcdBackend) do(ctx context.Context, method, path string, query, form url.Values) (*interfaces.Response, error) {
	start := time.Now()
	target := b.keyURL(path, query)

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("could not build etcd request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if b.user != nil {
		password, _ := b.user.Password()
		req.SetBasicAuth(b.user.Username(), password)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Error("etcd request failed",
			slog.String("method", method),
			slog.String("path", path),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading etcd response: %v", interfaces.ErrBackendUnavailable, err)
	}

	result := &interfaces.Response{Status: resp.StatusCode, Body: raw}
	if result.Success() && len(raw) > 0 {
		var parsed etcdResponse
		if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Node != nil {
			result.Value = parsed.Node.Value
			result.Dir = parsed.Node.Dir
		}
	}

	b.log.Debug("etcd request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}
