package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/credential-store/interfaces"
)

// ClientFactory creates store clients from location URIs.
type ClientFactory struct {
	log *slog.Logger

	// memory is shared so that every memory:// location in a process sees the same data.
	memory *MemoryBackend
}

// NewClientFactory creates a new factory instance.
func NewClientFactory(logger *slog.Logger) *ClientFactory {
	return &ClientFactory{
		log:    logger,
		memory: NewMemoryBackend(),
	}
}

// ClientFor creates a store client from a location.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - http://, https:// - etcd v2 keys API at the given endpoint, a path is kept as base path
//   - etcd:// - etcd v2 keys API, plain HTTP unless ?tls=true
//   - etcd+srv://domain - etcd endpoint discovered through DNS SRV records (?resolver=host:port)
//   - vault://host[:port]/mount/path - Vault KV v2 (?token=..., ?tls=false)
//   - s3://[KEY:SECRET@]bucket/prefix - S3 or compatible (?region=..., ?endpoint=...)
//   - ipfs://host[:port]/root - IPFS mutable file system
//   - bolt:///path/to/file.db - local bbolt database
//   - file:///path/to/dir - directory tree on the local file system
//   - memory:// - process-local store
//
// Returns an error if the scheme is unsupported or the backend cannot be set up.
func (f *ClientFactory) ClientFor(ctx context.Context, loc interfaces.StoreLocation) (interfaces.KeyValueClient, error) {
	f.log.Debug("Creating store client", slog.String("scheme", loc.Scheme), slog.String("uri", loc.Redacted()))

	switch strings.ToLower(loc.Scheme) {
	case "http", "https":
		return NewEtcdBackend(fmt.Sprintf("%s://%s%s", loc.Scheme, loc.Host, strings.TrimRight(loc.Path, "/")), loc.Auth, cleanhttp.DefaultPooledClient(), f.log)
	case "etcd":
		return f.createEtcdBackend(loc)
	case "etcd+srv":
		return f.createDiscoveredEtcdBackend(ctx, loc)
	case "vault":
		return f.createVaultBackend(loc)
	case "s3":
		return f.createS3Backend(loc)
	case "ipfs":
		return f.createIPFSBackend(loc)
	case "bolt":
		return f.createBoltBackend(loc)
	case "file":
		return f.createFileBackend(loc)
	case "memory":
		return f.memory, nil
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// createEtcdBackend maps etcd://host:port/path to an HTTP endpoint.
func (f *ClientFactory) createEtcdBackend(loc interfaces.StoreLocation) (interfaces.KeyValueClient, error) {
	scheme := "http"
	if loc.GetParamBool("tls") {
		scheme = "https"
	}
	host := loc.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "2379")
	}
	return NewEtcdBackend(fmt.Sprintf("%s://%s%s", scheme, host, strings.TrimRight(loc.Path, "/")), loc.Auth, cleanhttp.DefaultPooledClient(), f.log)
}

// createDiscoveredEtcdBackend resolves the endpoint for etcd+srv://domain once, at creation time.
func (f *ClientFactory) createDiscoveredEtcdBackend(ctx context.Context, loc interfaces.StoreLocation) (interfaces.KeyValueClient, error) {
	resolver := NewSRVResolver(loc.GetParam("resolver"), f.log)
	endpoint, err := resolver.DiscoverEtcd(ctx, loc.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return NewEtcdBackend(endpoint, loc.Auth, cleanhttp.DefaultPooledClient(), f.log)
}

// createVaultBackend creates a Vault KV v2 backend.
// URI format: vault://host:8200/secret/credstore?token=...
// The first path segment is the mount, the rest is the data path.
func (f *ClientFactory) createVaultBackend(loc interfaces.StoreLocation) (interfaces.KeyValueClient, error) {
	scheme := "https"
	if loc.GetParam("tls") == "false" {
		scheme = "http"
	}

	segs := splitPath(loc.Path)
	mount, dataPath := "secret", ""
	if len(segs) > 0 {
		mount = segs[0]
		dataPath = strings.Join(segs[1:], "/")
	}

	token := loc.GetParam("token")
	if token == "" && loc.Auth != nil {
		token, _ = loc.Auth.Password()
	}

	var timeout time.Duration
	if t := loc.GetParam("timeout"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid vault timeout %q", interfaces.ErrInvalidLocationURI, t)
		}
		timeout = d
	}

	return NewVaultBackend(fmt.Sprintf("%s://%s", scheme, loc.Host), token, mount, dataPath, timeout, f.log)
}

// createS3Backend creates an S3 or S3-compatible backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=custom.s3.com
func (f *ClientFactory) createS3Backend(loc interfaces.StoreLocation) (interfaces.KeyValueClient, error) {
	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if loc.Auth != nil {
		accessKey = loc.Auth.Username()
		secretKey, _ = loc.Auth.Password()
		f.log.Debug("Using embedded S3 credentials")
	}

	return NewS3Backend(loc.Host, loc.Path, region, loc.GetParam("endpoint"), accessKey, secretKey, f.log)
}

// createIPFSBackend creates an IPFS MFS backend.
// URI format: ipfs://host:port/root?timeout=30s
func (f *ClientFactory) createIPFSBackend(loc interfaces.StoreLocation) (interfaces.KeyValueClient, error) {
	host, port, err := net.SplitHostPort(loc.Host)
	if err != nil {
		host, port = loc.Host, "5001"
	}

	timeout := 30 * time.Second
	if t := loc.GetParam("timeout"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid ipfs timeout %q", interfaces.ErrInvalidLocationURI, t)
		}
		timeout = d
	}

	return NewIPFSBackend(host, port, loc.Path, timeout, f.log)
}

// createBoltBackend opens a local database.
// URI format: bolt:///absolute/path.db or bolt://./relative/path.db
func (f *ClientFactory) createBoltBackend(loc interfaces.StoreLocation) (interfaces.KeyValueClient, error) {
	path := loc.Path
	if loc.Host != "" {
		path = filepath.Join(loc.Host, path)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in bolt URI", interfaces.ErrInvalidLocationURI)
	}
	return NewBoltBackend(path, f.log)
}

// createFileBackend roots a file backend at the URI path.
// URI format: file:///absolute/dir or file://./relative/dir
func (f *ClientFactory) createFileBackend(loc interfaces.StoreLocation) (interfaces.KeyValueClient, error) {
	path := loc.Path
	if loc.Host != "" {
		path = filepath.Join(loc.Host, path)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI", interfaces.ErrInvalidLocationURI)
	}
	return NewFileBackend(path, f.log)
}

// MirroredClientFor creates the client for primary and, when mirrors are
// given, wraps it together with their clients in a MultiBackend.
func (f *ClientFactory) MirroredClientFor(ctx context.Context, primary interfaces.StoreLocation, mirrors []interfaces.StoreLocation) (interfaces.KeyValueClient, error) {
	client, err := f.ClientFor(ctx, primary)
	if err != nil {
		return nil, err
	}
	if len(mirrors) == 0 {
		return client, nil
	}

	backends := []interfaces.KeyValueClient{client}
	for _, loc := range mirrors {
		mirror, err := f.ClientFor(ctx, loc)
		if err != nil {
			return nil, fmt.Errorf("mirror %s: %w", loc.Redacted(), err)
		}
		backends = append(backends, mirror)
	}
	return NewMultiBackend(backends, f.log), nil
}
