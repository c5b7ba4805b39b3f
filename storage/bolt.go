package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ruteri/credential-store/interfaces"
	"go.etcd.io/bbolt"
)

var boltRootBucket = []byte("root")

// errLeafInPath aborts a transaction when a path segment that must be a directory is a leaf.
var errLeafInPath = errors.New("path crosses a leaf")

// BoltBackend implements interfaces.KeyValueClient on a local bbolt file.
// Directory nodes are nested buckets and leaves are keys, so the bucket tree
// mirrors the store hierarchy.
type BoltBackend struct {
	db          *bbolt.DB
	dbPath      string
	log         *slog.Logger
	locationURI string
}

// NewBoltBackend opens (or creates) the database at dbPath.
func NewBoltBackend(dbPath string, log *slog.Logger) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltRootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create root bucket: %w", err)
	}

	return &BoltBackend{
		db:          db,
		dbPath:      dbPath,
		log:         log,
		locationURI: fmt.Sprintf("bolt://%s", dbPath),
	}, nil
}

// Close releases the database file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// parentBucket walks to the bucket holding the last segment of path. With create
// set, missing intermediate buckets are created. It returns a nil bucket when a
// parent is missing.
func parentBucket(tx *bbolt.Tx, segs []string, create bool) (*bbolt.Bucket, error) {
	bucket := tx.Bucket(boltRootBucket)
	for _, seg := range segs[:len(segs)-1] {
		next := bucket.Bucket([]byte(seg))
		if next == nil {
			if bucket.Get([]byte(seg)) != nil {
				return nil, errLeafInPath
			}
			if !create {
				return nil, nil
			}
			var err error
			next, err = bucket.CreateBucket([]byte(seg))
			if err != nil {
				return nil, err
			}
		}
		bucket = next
	}
	return bucket, nil
}

func (b *BoltBackend) Get(ctx context.Context, path string) (*interfaces.Response, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return dirResponse(), nil
	}

	var resp *interfaces.Response
	err := b.db.View(func(tx *bbolt.Tx) error {
		parent, err := parentBucket(tx, segs, false)
		if err != nil || parent == nil {
			resp = status(http.StatusNotFound)
			return nil
		}
		name := []byte(segs[len(segs)-1])
		if parent.Bucket(name) != nil {
			resp = dirResponse()
			return nil
		}
		value := parent.Get(name)
		if value == nil {
			resp = status(http.StatusNotFound)
			return nil
		}
		resp = leafResponse(append([]byte(nil), value...))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return resp, nil
}

func (b *BoltBackend) Set(ctx context.Context, path string, value string, update bool) (*interfaces.Response, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return status(http.StatusForbidden), nil
	}

	var resp *interfaces.Response
	err := b.db.Update(func(tx *bbolt.Tx) error {
		parent, err := parentBucket(tx, segs, !update)
		if errors.Is(err, errLeafInPath) {
			resp = status(http.StatusForbidden)
			return nil
		}
		if err != nil {
			return err
		}
		if parent == nil {
			resp = status(http.StatusNotFound)
			return nil
		}

		name := []byte(segs[len(segs)-1])
		if parent.Bucket(name) != nil {
			resp = status(http.StatusForbidden)
			return nil
		}
		exists := parent.Get(name) != nil
		if update && !exists {
			resp = status(http.StatusNotFound)
			return nil
		}
		if err := parent.Put(name, []byte(value)); err != nil {
			return err
		}
		if exists {
			resp = status(http.StatusOK)
		} else {
			resp = status(http.StatusCreated)
		}
		return nil
	})
	if err != nil {
		b.log.Error("bolt write failed", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return resp, nil
}

func (b *BoltBackend) Mkdir(ctx context.Context, path string) (*interfaces.Response, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return status(http.StatusPreconditionFailed), nil
	}

	var resp *interfaces.Response
	err := b.db.Update(func(tx *bbolt.Tx) error {
		parent, err := parentBucket(tx, segs, true)
		if errors.Is(err, errLeafInPath) {
			resp = status(http.StatusForbidden)
			return nil
		}
		if err != nil {
			return err
		}

		name := []byte(segs[len(segs)-1])
		if parent.Bucket(name) != nil || parent.Get(name) != nil {
			resp = status(http.StatusPreconditionFailed)
			return nil
		}
		if _, err := parent.CreateBucket(name); err != nil {
			return err
		}
		resp = status(http.StatusCreated)
		return nil
	})
	if err != nil {
		b.log.Error("bolt mkdir failed", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return resp, nil
}

func (b *BoltBackend) Delete(ctx context.Context, path string, recursive bool) (*interfaces.Response, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return status(http.StatusForbidden), nil
	}

	var resp *interfaces.Response
	err := b.db.Update(func(tx *bbolt.Tx) error {
		parent, err := parentBucket(tx, segs, false)
		if err != nil || parent == nil {
			resp = status(http.StatusNotFound)
			return nil
		}

		name := []byte(segs[len(segs)-1])
		if parent.Bucket(name) != nil {
			if !recursive {
				resp = status(http.StatusForbidden)
				return nil
			}
			if err := parent.DeleteBucket(name); err != nil {
				return err
			}
			resp = status(http.StatusOK)
			return nil
		}
		if parent.Get(name) == nil {
			resp = status(http.StatusNotFound)
			return nil
		}
		if err := parent.Delete(name); err != nil {
			return err
		}
		resp = status(http.StatusOK)
		return nil
	})
	if err != nil {
		b.log.Error("bolt delete failed", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return resp, nil
}

// Name returns a unique identifier for this backend.
func (b *BoltBackend) Name() string {
	return fmt.Sprintf("bolt-%s", filepath.Base(b.dbPath))
}

// LocationURI returns the URI that identifies this backend.
func (b *BoltBackend) LocationURI() string {
	return b.locationURI
}
