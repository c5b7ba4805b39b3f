package credentials

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ruteri/credential-store/cryptoutils"
	"github.com/ruteri/credential-store/interfaces"
	"github.com/ruteri/credential-store/keylayout"
	"golang.org/x/sync/errgroup"
)

// DefaultCallTimeout bounds a single call against the store.
const DefaultCallTimeout = 10 * time.Second

// Store implements interfaces.CredentialStore on top of a KeyValueClient.
// Operations on the same username are serialized; operations on different
// usernames run in parallel.
type Store struct {
	client      interfaces.KeyValueClient
	hasher      cryptoutils.PasswordHasher
	callTimeout time.Duration
	log         *slog.Logger

	locks *userLocks

	trackedMu sync.RWMutex
	tracked   map[string]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithCallTimeout sets the deadline applied to each store call. Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.callTimeout = d
	}
}

// WithHasher replaces the password hasher.
func WithHasher(h cryptoutils.PasswordHasher) Option {
	return func(s *Store) {
		s.hasher = h
	}
}

// NewStore creates a credential store writing user records through client.
func NewStore(client interfaces.KeyValueClient, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		client:      client,
		hasher:      cryptoutils.DefaultPasswordHasher,
		callTimeout: DefaultCallTimeout,
		log:         log,
		locks:       newUserLocks(),
		tracked:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update derives the password hash and writes the user record.
//
// With modify=false the user root is created first, then the password leaf
// and a set admin flag are written concurrently without an existence guard.
// If either write fails the new root is deleted again so that a retry can
// create it. With modify=true the password leaf must already exist and is
// rewritten first; a set admin flag is only written once that succeeded, so a
// missing user is never recreated.
//
// Any failed store call is returned as a *interfaces.RemoteStoreError and the
// result is false.
func (s *Store) Update(ctx context.Context, username, password string, admin interfaces.AdminFlag, modify bool) (bool, error) {
	paths, err := keylayout.ForUser(username)
	if err != nil {
		return false, err
	}

	unlock := s.locks.lock(username)
	defer unlock()

	res := <-cryptoutils.DerivePasswordAsync(ctx, s.hasher, username, password)
	if res.Err != nil {
		s.log.Error("password derivation failed", slog.String("username", username), "err", res.Err)
		return false, fmt.Errorf("could not derive password hash: %w", res.Err)
	}

	if modify {
		err = s.modifyRecord(ctx, paths, res.Hash, admin)
	} else {
		err = s.createRecord(ctx, paths, res.Hash, admin)
	}
	if err != nil {
		return false, err
	}

	s.track(username)
	s.log.Info("user record written",
		slog.String("username", username),
		slog.Bool("modify", modify),
		slog.String("admin", admin.String()))
	return true, nil
}

func (s *Store) createRecord(ctx context.Context, paths keylayout.Paths, hash string, admin interfaces.AdminFlag) error {
	resp, err := s.call(ctx, func(ctx context.Context) (*interfaces.Response, error) {
		return s.client.Mkdir(ctx, paths.Root)
	})
	if err := s.check("mkdir", paths.Root, resp, err); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.setLeaf(gctx, paths.Passwd, hash)
	})
	if admin.IsSet() {
		g.Go(func() error {
			return s.setLeaf(gctx, paths.Admin, admin.Value())
		})
	}
	if err := g.Wait(); err != nil {
		s.rollback(ctx, paths.Root)
		return err
	}
	return nil
}

func (s *Store) modifyRecord(ctx context.Context, paths keylayout.Paths, hash string, admin interfaces.AdminFlag) error {
	resp, err := s.call(ctx, func(ctx context.Context) (*interfaces.Response, error) {
		return s.client.Set(ctx, paths.Passwd, hash, true)
	})
	if err == nil && resp.NotFound() {
		return s.fail("set", paths.Passwd, resp, interfaces.ErrUserNotFound)
	}
	if err := s.check("set", paths.Passwd, resp, err); err != nil {
		return err
	}

	if !admin.IsSet() {
		return nil
	}
	return s.setLeaf(ctx, paths.Admin, admin.Value())
}

// setLeaf writes value at path without an existence guard.
func (s *Store) setLeaf(ctx context.Context, path, value string) error {
	resp, err := s.call(ctx, func(ctx context.Context) (*interfaces.Response, error) {
		return s.client.Set(ctx, path, value, false)
	})
	return s.check("set", path, resp, err)
}

// rollback deletes a user root whose record could not be completed. Failures
// are logged only; the original error is what the caller reports.
func (s *Store) rollback(ctx context.Context, root string) {
	resp, err := s.call(context.WithoutCancel(ctx), func(ctx context.Context) (*interfaces.Response, error) {
		return s.client.Delete(ctx, root, true)
	})
	if err != nil || !(resp.OK() || resp.NotFound()) {
		status := 0
		if resp != nil {
			status = resp.Status
		}
		s.log.Error("could not roll back partial user record",
			slog.String("path", root),
			slog.Int("status", status),
			"err", err)
		return
	}
	s.log.Warn("rolled back partial user record", slog.String("path", root))
}

// Remove deletes the whole record of a tracked user. An untracked username
// fails with ErrUserNotFound without touching the store. Otherwise existence
// is confirmed with a read of the user root before the subtree is deleted.
func (s *Store) Remove(ctx context.Context, username string) (bool, error) {
	root, err := keylayout.UserRoot(username)
	if err != nil {
		return false, err
	}

	unlock := s.locks.lock(username)
	defer unlock()

	if !s.isTracked(username) {
		return false, fmt.Errorf("%w: %s", interfaces.ErrUserNotFound, username)
	}

	resp, err := s.call(ctx, func(ctx context.Context) (*interfaces.Response, error) {
		return s.client.Get(ctx, root)
	})
	switch {
	case err != nil:
		return false, s.fail("get", root, resp, err)
	case resp.NotFound():
		s.untrack(username)
		return false, fmt.Errorf("%w: %s", interfaces.ErrUserNotFound, username)
	case !resp.OK():
		return false, s.fail("get", root, resp, nil)
	}

	resp, err = s.call(ctx, func(ctx context.Context) (*interfaces.Response, error) {
		return s.client.Delete(ctx, root, true)
	})
	if err := s.check("delete", root, resp, err); err != nil {
		return false, err
	}

	s.untrack(username)
	s.log.Info("user record removed", slog.String("username", username))
	return true, nil
}

// Verify reports whether password matches the stored hash of username.
func (s *Store) Verify(ctx context.Context, username, password string) (bool, error) {
	paths, err := keylayout.ForUser(username)
	if err != nil {
		return false, err
	}

	unlock := s.locks.lock(username)
	defer unlock()

	stored, err := s.readLeaf(ctx, paths.Passwd)
	if err != nil {
		return false, err
	}
	s.track(username)

	res := <-cryptoutils.DerivePasswordAsync(ctx, s.hasher, username, password)
	if res.Err != nil {
		return false, fmt.Errorf("could not derive password hash: %w", res.Err)
	}
	return subtle.ConstantTimeCompare([]byte(res.Hash), []byte(stored)) == 1, nil
}

// IsAdmin reports whether the admin leaf of username holds true. An absent
// leaf means the user is not an administrator.
func (s *Store) IsAdmin(ctx context.Context, username string) (bool, error) {
	paths, err := keylayout.ForUser(username)
	if err != nil {
		return false, err
	}

	unlock := s.locks.lock(username)
	defer unlock()

	value, err := s.readLeaf(ctx, paths.Admin)
	if errors.Is(err, interfaces.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	admin, err := strconv.ParseBool(value)
	if err != nil {
		s.log.Warn("malformed admin flag", slog.String("username", username), slog.String("value", value))
		return false, nil
	}
	return admin, nil
}

// Exists reads the user root and records the outcome in the tracking set.
func (s *Store) Exists(ctx context.Context, username string) (bool, error) {
	root, err := keylayout.UserRoot(username)
	if err != nil {
		return false, err
	}

	unlock := s.locks.lock(username)
	defer unlock()

	resp, err := s.call(ctx, func(ctx context.Context) (*interfaces.Response, error) {
		return s.client.Get(ctx, root)
	})
	switch {
	case err != nil:
		return false, s.fail("get", root, resp, err)
	case resp.OK():
		s.track(username)
		return true, nil
	case resp.NotFound():
		s.untrack(username)
		return false, nil
	default:
		return false, s.fail("get", root, resp, nil)
	}
}

// Tracked reports whether username is in the local existence set.
func (s *Store) Tracked(username string) bool {
	return s.isTracked(username)
}

// readLeaf returns the value at path. An absent leaf yields ErrUserNotFound.
func (s *Store) readLeaf(ctx context.Context, path string) (string, error) {
	resp, err := s.call(ctx, func(ctx context.Context) (*interfaces.Response, error) {
		return s.client.Get(ctx, path)
	})
	switch {
	case err != nil:
		return "", s.fail("get", path, resp, err)
	case resp.NotFound():
		return "", fmt.Errorf("%w: %s", interfaces.ErrUserNotFound, path)
	case !resp.OK() || resp.Dir:
		return "", s.fail("get", path, resp, nil)
	}
	return resp.Value, nil
}

// call runs fn with the per-call deadline applied.
func (s *Store) call(ctx context.Context, fn func(context.Context) (*interfaces.Response, error)) (*interfaces.Response, error) {
	if s.callTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return fn(ctx)
}

// check turns a failed call into a RemoteStoreError. 200 and 201 pass.
func (s *Store) check(op, path string, resp *interfaces.Response, err error) error {
	if err == nil && resp.Success() {
		return nil
	}
	return s.fail(op, path, resp, err)
}

func (s *Store) fail(op, path string, resp *interfaces.Response, err error) error {
	rse := interfaces.NewRemoteStoreError(op, path, resp, err)
	s.log.Error("store call failed",
		slog.String("op", op),
		slog.String("path", path),
		slog.Int("status", rse.Status),
		slog.String("backend", s.client.Name()),
		"err", err)
	return rse
}

func (s *Store) track(username string) {
	s.trackedMu.Lock()
	defer s.trackedMu.Unlock()
	s.tracked[username] = struct{}{}
}

func (s *Store) untrack(username string) {
	s.trackedMu.Lock()
	defer s.trackedMu.Unlock()
	delete(s.tracked, username)
}

func (s *Store) isTracked(username string) bool {
	s.trackedMu.RLock()
	defer s.trackedMu.RUnlock()
	_, ok := s.tracked[username]
	return ok
}

var _ interfaces.CredentialStore = (*Store)(nil)

// IsConflict reports whether a create failed because the user root is already taken.
func IsConflict(err error) bool {
	var rse *interfaces.RemoteStoreError
	if !errors.As(err, &rse) {
		return false
	}
	return rse.Status == http.StatusPreconditionFailed || rse.Status == http.StatusForbidden
}
