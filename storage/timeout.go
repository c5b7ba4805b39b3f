package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ruteri/credential-store/interfaces"
)

// TimeoutClient bounds every call on the wrapped client with a deadline.
// A call that runs past its deadline fails with ErrBackendUnavailable.
type TimeoutClient struct {
	next    interfaces.KeyValueClient
	timeout time.Duration
}

// WithTimeout wraps client so that each call is bounded by d.
// A non-positive d returns client unchanged.
func WithTimeout(client interfaces.KeyValueClient, d time.Duration) interfaces.KeyValueClient {
	if d <= 0 {
		return client
	}
	return &TimeoutClient{next: client, timeout: d}
}

func (c *TimeoutClient) call(ctx context.Context, path string, fn func(context.Context) (*interfaces.Response, error)) (*interfaces.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, interfaces.ErrBackendUnavailable) {
		return nil, fmt.Errorf("%w: %s timed out after %s: %v", interfaces.ErrBackendUnavailable, path, c.timeout, err)
	}
	return resp, err
}

func (c *TimeoutClient) Get(ctx context.Context, path string) (*interfaces.Response, error) {
	return c.call(ctx, path, func(ctx context.Context) (*interfaces.Response, error) {
		return c.next.Get(ctx, path)
	})
}

func (c *TimeoutClient) Set(ctx context.Context, path string, value string, update bool) (*interfaces.Response, error) {
	return c.call(ctx, path, func(ctx context.Context) (*interfaces.Response, error) {
		return c.next.Set(ctx, path, value, update)
	})
}

func (c *TimeoutClient) Mkdir(ctx context.Context, path string) (*interfaces.Response, error) {
	return c.call(ctx, path, func(ctx context.Context) (*interfaces.Response, error) {
		return c.next.Mkdir(ctx, path)
	})
}

func (c *TimeoutClient) Delete(ctx context.Context, path string, recursive bool) (*interfaces.Response, error) {
	return c.call(ctx, path, func(ctx context.Context) (*interfaces.Response, error) {
		return c.next.Delete(ctx, path, recursive)
	})
}

// Name returns the wrapped client's name.
func (c *TimeoutClient) Name() string {
	return c.next.Name()
}

// LocationURI returns the wrapped client's location.
func (c *TimeoutClient) LocationURI() string {
	return c.next.LocationURI()
}
