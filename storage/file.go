package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/ruteri/credential-store/interfaces"
)

type nodeKind int

const (
	nodeMissing nodeKind = iota
	nodeDir
	nodeLeaf
	// nodeBlocked means a parent segment is a leaf.
	nodeBlocked
)

// FileBackend implements interfaces.KeyValueClient on the local file system.
// Directory nodes are directories and leaves are regular files below baseDir.
type FileBackend struct {
	baseDir     string
	mu          sync.Mutex
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file backend rooted at baseDir, creating it if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// resolve maps a store path onto the file system and reports what is there.
func (b *FileBackend) resolve(path string) (string, nodeKind, error) {
	segs := splitPath(path)
	for _, seg := range segs {
		if seg == "." || seg == ".." {
			return "", nodeBlocked, nil
		}
	}

	current := b.baseDir
	for i, seg := range segs {
		current = filepath.Join(current, seg)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return filepath.Join(append([]string{b.baseDir}, segs...)...), nodeMissing, nil
		}
		if err != nil {
			return "", nodeMissing, err
		}
		if !info.IsDir() {
			if i == len(segs)-1 {
				return current, nodeLeaf, nil
			}
			return current, nodeBlocked, nil
		}
	}
	return current, nodeDir, nil
}

func (b *FileBackend) unavailable(op, path string, err error) error {
	b.log.Error("file backend operation failed", slog.String("op", op), slog.String("path", path), "err", err)
	return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
}

func (b *FileBackend) Get(ctx context.Context, path string) (*interfaces.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	target, kind, err := b.resolve(path)
	if err != nil {
		return nil, b.unavailable("get", path, err)
	}
	switch kind {
	case nodeDir:
		return dirResponse(), nil
	case nodeLeaf:
		data, err := os.ReadFile(target)
		if err != nil {
			return nil, b.unavailable("get", path, err)
		}
		return leafResponse(data), nil
	default:
		return status(http.StatusNotFound), nil
	}
}

func (b *FileBackend) Set(ctx context.Context, path string, value string, update bool) (*interfaces.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(splitPath(path)) == 0 {
		return status(http.StatusForbidden), nil
	}
	target, kind, err := b.resolve(path)
	if err != nil {
		return nil, b.unavailable("set", path, err)
	}
	switch {
	case kind == nodeDir, kind == nodeBlocked:
		return status(http.StatusForbidden), nil
	case update && kind == nodeMissing:
		return status(http.StatusNotFound), nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return nil, b.unavailable("set", path, err)
	}
	if err := os.WriteFile(target, []byte(value), 0600); err != nil {
		return nil, b.unavailable("set", path, err)
	}

	b.log.Debug("Stored leaf in file", slog.String("path", target))
	if kind == nodeLeaf {
		return status(http.StatusOK), nil
	}
	return status(http.StatusCreated), nil
}

func (b *FileBackend) Mkdir(ctx context.Context, path string) (*interfaces.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	target, kind, err := b.resolve(path)
	if err != nil {
		return nil, b.unavailable("mkdir", path, err)
	}
	switch kind {
	case nodeDir, nodeLeaf:
		return status(http.StatusPreconditionFailed), nil
	case nodeBlocked:
		return status(http.StatusForbidden), nil
	}

	if err := os.MkdirAll(target, 0700); err != nil {
		return nil, b.unavailable("mkdir", path, err)
	}
	return status(http.StatusCreated), nil
}

func (b *FileBackend) Delete(ctx context.Context, path string, recursive bool) (*interfaces.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(splitPath(path)) == 0 {
		return status(http.StatusForbidden), nil
	}
	target, kind, err := b.resolve(path)
	if err != nil {
		return nil, b.unavailable("delete", path, err)
	}
	switch {
	case kind == nodeMissing, kind == nodeBlocked:
		return status(http.StatusNotFound), nil
	case kind == nodeDir && !recursive:
		return status(http.StatusForbidden), nil
	}

	if err := os.RemoveAll(target); err != nil {
		return nil, b.unavailable("delete", path, err)
	}
	return status(http.StatusOK), nil
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}
