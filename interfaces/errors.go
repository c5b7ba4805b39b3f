package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigValidation is returned when startup configuration is malformed.
	// It is fatal: the process must not start.
	ErrConfigValidation = errors.New("config validation failed")

	// ErrBootstrap is returned when the namespace or the default administrator
	// could not be created during startup. It is fatal.
	ErrBootstrap = errors.New("bootstrap failed")

	// ErrInvalidUsername is returned when a username cannot be used as a path segment.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrUserNotFound is returned when an operation targets a user that does not exist.
	ErrUserNotFound = errors.New("user does not exist")

	// ErrRemoteStore is returned when the store answers a user-record call with a
	// non-success status, or the call fails or times out.
	ErrRemoteStore = errors.New("remote store error")
)

// RemoteStoreError describes a failed call against the store.
type RemoteStoreError struct {
	Op     string
	Path   string
	Status int   // zero when the call did not produce a response
	Err    error // transport error, if any
}

func (e *RemoteStoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s: %v", ErrRemoteStore, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: unexpected status %d", ErrRemoteStore, e.Op, e.Path, e.Status)
}

// Is makes errors.Is(err, ErrRemoteStore) match.
func (e *RemoteStoreError) Is(target error) bool {
	return target == ErrRemoteStore
}

func (e *RemoteStoreError) Unwrap() error {
	return e.Err
}

// NewRemoteStoreError builds a RemoteStoreError from a call result.
func NewRemoteStoreError(op, path string, resp *Response, err error) *RemoteStoreError {
	rse := &RemoteStoreError{Op: op, Path: path, Err: err}
	if resp != nil {
		rse.Status = resp.Status
	}
	return rse
}

// BootstrapError is returned by the startup sequence. Stage names the step that failed.
type BootstrapError struct {
	Stage string
	Err   error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrBootstrap, e.Stage, e.Err)
}

// Is makes errors.Is(err, ErrBootstrap) match.
func (e *BootstrapError) Is(target error) bool {
	return target == ErrBootstrap
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}
