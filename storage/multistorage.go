package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/credential-store/interfaces"
)

// MultiBackend implements interfaces.KeyValueClient over a primary store and
// any number of mirrors. Reads fall back through the backends in order. Writes
// go to every backend; the first backend that answers decides the response, and
// mirrors that disagree or fail are only logged.
type MultiBackend struct {
	backends []interfaces.KeyValueClient
	log      *slog.Logger
}

// NewMultiBackend creates a multi backend. The first backend is the primary.
func NewMultiBackend(backends []interfaces.KeyValueClient, logger *slog.Logger) *MultiBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiBackend{
		backends: backends,
		log:      logger,
	}
}

func (m *MultiBackend) Get(ctx context.Context, path string) (*interfaces.Response, error) {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		resp, err := backend.Get(ctx, path)
		if err == nil {
			m.log.Debug("Fetched from backend",
				slog.String("backend_name", backend.Name()),
				slog.String("path", path),
				slog.Duration("duration", time.Since(start)))
			return resp, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("path", path),
			"err", err)
	}

	m.log.Error("All backends failed to fetch",
		slog.String("path", path),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("%w: all backends failed to fetch %s: %v", interfaces.ErrBackendUnavailable, path, errs)
}

func (m *MultiBackend) Set(ctx context.Context, path string, value string, update bool) (*interfaces.Response, error) {
	return m.write(ctx, "set", path, func(b interfaces.KeyValueClient) (*interfaces.Response, error) {
		return b.Set(ctx, path, value, update)
	})
}

func (m *MultiBackend) Mkdir(ctx context.Context, path string) (*interfaces.Response, error) {
	return m.write(ctx, "mkdir", path, func(b interfaces.KeyValueClient) (*interfaces.Response, error) {
		return b.Mkdir(ctx, path)
	})
}

func (m *MultiBackend) Delete(ctx context.Context, path string, recursive bool) (*interfaces.Response, error) {
	return m.write(ctx, "delete", path, func(b interfaces.KeyValueClient) (*interfaces.Response, error) {
		return b.Delete(ctx, path, recursive)
	})
}

func (m *MultiBackend) write(ctx context.Context, op, path string, fn func(interfaces.KeyValueClient) (*interfaces.Response, error)) (*interfaces.Response, error) {
	start := time.Now()
	var result *interfaces.Response
	var errs []error

	for _, backend := range m.backends {
		resp, err := fn(backend)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to write to backend",
				slog.String("backend_name", backend.Name()),
				slog.String("op", op),
				slog.String("path", path),
				"err", err)
			continue
		}

		if result == nil {
			result = resp
			m.log.Debug("Wrote to backend",
				slog.String("backend_name", backend.Name()),
				slog.String("op", op),
				slog.String("path", path),
				slog.Int("status", resp.Status),
				slog.Duration("duration", time.Since(start)))
		} else if result.Status != resp.Status {
			m.log.Warn("Inconsistent status from mirror",
				slog.String("backend_name", backend.Name()),
				slog.String("op", op),
				slog.String("path", path),
				slog.Int("expected", result.Status),
				slog.Int("actual", resp.Status))
		}
	}

	if result == nil {
		m.log.Error("All backends failed to write",
			slog.String("op", op),
			slog.String("path", path),
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: all backends failed to %s %s: %v", interfaces.ErrBackendUnavailable, op, path, errs)
	}

	return result, nil
}

// Name returns the name of this backend
func (m *MultiBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the URI of this backend
func (m *MultiBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
