package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Response is the result of a single call against the remote store.
// Status follows HTTP semantics: 200 for an existing resource that was
// returned or updated, 201 for a created one, 404 for an absent one.
//
// Body is the raw payload as returned by the backend. For a successful Get,
// Value holds the leaf value and Dir reports whether the node is a directory.
type Response struct {
	Status int
	Body   []byte
	Value  string
	Dir    bool
}

// OK reports whether the call hit an existing resource.
func (r *Response) OK() bool {
	return r != nil && r.Status == http.StatusOK
}

// Created reports whether the call created a new resource.
func (r *Response) Created() bool {
	return r != nil && r.Status == http.StatusCreated
}

// Success reports whether the status is 200 or 201.
func (r *Response) Success() bool {
	return r.OK() || r.Created()
}

// NotFound reports whether the resource is absent.
func (r *Response) NotFound() bool {
	return r != nil && r.Status == http.StatusNotFound
}

// String returns a short description for logging.
func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("status=%d body=%q", r.Status, truncate(r.Body, 256))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// KeyValueClient talks to a remote hierarchical key-value store addressed by
// slash-delimited paths. Paths are store-relative (e.g. "users/alice/passwd").
//
// Non-success statuses are reported through Response.Status, not as errors.
// The error return is reserved for transport failures and timeouts, which are
// wrapped in ErrBackendUnavailable.
type KeyValueClient interface {
	// Get fetches a leaf value or a directory node.
	Get(ctx context.Context, path string) (*Response, error)

	// Set writes a leaf. When update is true the leaf must already exist.
	Set(ctx context.Context, path string, value string, update bool) (*Response, error)

	// Mkdir creates a directory node.
	Mkdir(ctx context.Context, path string) (*Response, error)

	// Delete removes a node. Directories require recursive to be set.
	Delete(ctx context.Context, path string, recursive bool) (*Response, error)

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying the store.
	LocationURI() string
}

// KeyValueClientFactory creates clients for store locations.
type KeyValueClientFactory interface {
	// ClientFor creates a client from a parsed location.
	// Supports http(s)://, etcd://, etcd+srv://, vault://, s3://, ipfs://, bolt://, memory://
	ClientFor(ctx context.Context, location StoreLocation) (KeyValueClient, error)
}

// StoreLocation represents the URI of the remote store.
type StoreLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname and port
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   *url.Userinfo
}

var supportedSchemes = map[string]bool{
	"http":     true,
	"https":    true,
	"etcd":     true,
	"etcd+srv": true,
	"vault":    true,
	"s3":       true,
	"ipfs":     true,
	"bolt":     true,
	"file":     true,
	"memory":   true,
}

// NewStoreLocation parses and validates a store URI. The URI must be absolute
// and use a supported scheme. Network schemes require a host; bolt and file require a path.
func NewStoreLocation(uri string) (StoreLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StoreLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	if !parsed.IsAbs() {
		return StoreLocation{}, fmt.Errorf("%w: %q is not an absolute URI", ErrInvalidLocationURI, uri)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !supportedSchemes[scheme] {
		return StoreLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	switch scheme {
	case "bolt", "file":
		if parsed.Host+parsed.Path == "" {
			return StoreLocation{}, fmt.Errorf("%w: %s URI needs a file path", ErrInvalidLocationURI, scheme)
		}
	case "memory":
	default:
		if parsed.Host == "" {
			return StoreLocation{}, fmt.Errorf("%w: %s URI needs a host", ErrInvalidLocationURI, scheme)
		}
	}

	return StoreLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc StoreLocation) String() string {
	return loc.Raw
}

// Redacted returns the URI with any password replaced.
func (loc StoreLocation) Redacted() string {
	u, err := url.Parse(loc.Raw)
	if err != nil {
		return loc.Raw
	}
	return u.Redacted()
}

// GetParam returns a query parameter value.
func (loc StoreLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StoreLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrBackendUnavailable is returned when the store cannot be reached.
	// This could be due to network issues, authentication failures, or timeouts.
	ErrBackendUnavailable = errors.New("store backend unavailable")

	// ErrInvalidLocationURI is returned when a store URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid store location URI")
)
