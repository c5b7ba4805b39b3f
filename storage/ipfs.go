package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/credential-store/interfaces"
)

// IPFSBackend implements interfaces.KeyValueClient on the mutable file system
// (MFS) of an IPFS node. Directory nodes are MFS directories and leaves are
// MFS files holding the value.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS backend talking to the node API at host:port.
// All keys live below root in MFS.
func NewIPFSBackend(host, port, root string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	root = "/" + cleanPath(root)

	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", apiURL, root),
	}, nil
}

func (b *IPFSBackend) mfsPath(path string) string {
	return "/" + joinPrefix(b.root, path)
}

func isMFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no link named")
}

func (b *IPFSBackend) unavailable(op, path string, err error) error {
	b.log.Error("IPFS request failed",
		slog.String("op", op),
		slog.String("path", path),
		slog.String("host", b.host),
		"err", err)
	return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
}

// stat returns the MFS node type ("file" or "directory"), or "" when absent.
func (b *IPFSBackend) stat(ctx context.Context, p string) (string, error) {
	st, err := b.shell.FilesStat(ctx, p)
	if err != nil {
		if isMFSNotFound(err) {
			return "", nil
		}
		return "", b.unavailable("stat", p, err)
	}
	return st.Type, nil
}

func (b *IPFSBackend) Get(ctx context.Context, path string) (*interfaces.Response, error) {
	start := time.Now()
	p := b.mfsPath(path)

	kind, err := b.stat(ctx, p)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "":
		return status(http.StatusNotFound), nil
	case "directory":
		return dirResponse(), nil
	}

	reader, err := b.shell.FilesRead(ctx, p)
	if err != nil {
		return nil, b.unavailable("read", p, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, b.unavailable("read", p, err)
	}

	b.log.Debug("Fetched value from IPFS",
		slog.String("path", p),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return leafResponse(data), nil
}

func (b *IPFSBackend) Set(ctx context.Context, path string, value string, update bool) (*interfaces.Response, error) {
	p := b.mfsPath(path)

	kind, err := b.stat(ctx, p)
	if err != nil {
		return nil, err
	}
	switch {
	case kind == "directory":
		return status(http.StatusForbidden), nil
	case update && kind == "":
		return status(http.StatusNotFound), nil
	}

	err = b.shell.FilesWrite(ctx, p, bytes.NewReader([]byte(value)),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Truncate(true),
		shell.FilesWrite.Parents(true))
	if err != nil {
		if strings.Contains(err.Error(), "not a directory") {
			return status(http.StatusForbidden), nil
		}
		return nil, b.unavailable("write", p, err)
	}

	if kind != "" {
		return status(http.StatusOK), nil
	}
	return status(http.StatusCreated), nil
}

func (b *IPFSBackend) Mkdir(ctx context.Context, path string) (*interfaces.Response, error) {
	p := b.mfsPath(path)

	kind, err := b.stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if kind != "" {
		return status(http.StatusPreconditionFailed), nil
	}

	if err := b.shell.FilesMkdir(ctx, p, shell.FilesMkdir.Parents(true)); err != nil {
		return nil, b.unavailable("mkdir", p, err)
	}
	return status(http.StatusCreated), nil
}

func (b *IPFSBackend) Delete(ctx context.Context, path string, recursive bool) (*interfaces.Response, error) {
	p := b.mfsPath(path)

	kind, err := b.stat(ctx, p)
	if err != nil {
		return nil, err
	}
	switch {
	case kind == "":
		return status(http.StatusNotFound), nil
	case kind == "directory" && !recursive:
		return status(http.StatusForbidden), nil
	}

	if err := b.shell.FilesRm(ctx, p, true); err != nil {
		return nil, b.unavailable("rm", p, err)
	}
	return status(http.StatusOK), nil
}

// Name returns a unique identifier for this backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}
