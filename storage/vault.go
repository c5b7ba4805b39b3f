package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/credential-store/interfaces"
)

// vaultDirMarker is the data field that marks a secret as a directory node.
const vaultDirMarker = "dir"

// VaultBackend implements interfaces.KeyValueClient on a Vault KV v2 mount.
// Leaves are secrets with a single "value" field; directories are secrets
// carrying the "dir" marker so that an empty directory can exist.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault token; empty falls back to VAULT_TOKEN
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "credstore")
//   - timeout: HTTP client timeout
//   - log: Structured logger for operational insights
func NewVaultBackend(address, token, mountPath, dataPath string, timeout time.Duration, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	if timeout > 0 {
		config.Timeout = timeout
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = cleanPath(mountPath)
	dataPath = cleanPath(dataPath)
	if mountPath == "" {
		mountPath = "secret"
	}

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), joinPrefix(mountPath, dataPath)),
	}, nil
}

func (b *VaultBackend) dataURL(path string) string {
	return fmt.Sprintf("%s/data/%s", b.mountPath, joinPrefix(b.dataPath, path))
}

func (b *VaultBackend) metadataURL(path string) string {
	return fmt.Sprintf("%s/metadata/%s", b.mountPath, joinPrefix(b.dataPath, path))
}

// responseStatus turns a Vault API error into a status when the server answered.
func responseStatus(err error) (int, bool) {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode, true
	}
	return 0, false
}

// read returns the data map of the secret at path, or nil when absent.
func (b *VaultBackend) read(ctx context.Context, path string) (map[string]interface{}, *interfaces.Response, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.dataURL(path))
	if err != nil {
		if code, ok := responseStatus(err); ok {
			if code == http.StatusNotFound {
				return nil, nil, nil
			}
			return nil, status(code), nil
		}
		b.log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return nil, nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil, nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		// deleted versions come back with data=null
		return nil, nil, nil
	}
	return data, nil, nil
}

func (b *VaultBackend) write(ctx context.Context, path string, data map[string]interface{}) (*interfaces.Response, error) {
	_, err := b.client.Logical().WriteWithContext(ctx, b.dataURL(path), map[string]interface{}{"data": data})
	if err != nil {
		if code, ok := responseStatus(err); ok {
			return status(code), nil
		}
		b.log.Error("Failed to write to Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil, nil
}

func isVaultDir(data map[string]interface{}) bool {
	dir, _ := data[vaultDirMarker].(bool)
	return dir
}

func (b *VaultBackend) Get(ctx context.Context, path string) (*interfaces.Response, error) {
	data, resp, err := b.read(ctx, path)
	if err != nil || resp != nil {
		return resp, err
	}
	if data == nil {
		return status(http.StatusNotFound), nil
	}
	if isVaultDir(data) {
		return dirResponse(), nil
	}
	value, _ := data["value"].(string)
	return leafResponse([]byte(value)), nil
}

func (b *VaultBackend) Set(ctx context.Context, path string, value string, update bool) (*interfaces.Response, error) {
	start := time.Now()
	data, resp, err := b.read(ctx, path)
	if err != nil || resp != nil {
		return resp, err
	}
	switch {
	case data != nil && isVaultDir(data):
		return status(http.StatusForbidden), nil
	case update && data == nil:
		return status(http.StatusNotFound), nil
	}

	if resp, err := b.write(ctx, path, map[string]interface{}{"value": value}); err != nil || resp != nil {
		return resp, err
	}

	b.log.Debug("Stored value in Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))

	if data != nil {
		return status(http.StatusOK), nil
	}
	return status(http.StatusCreated), nil
}

func (b *VaultBackend) Mkdir(ctx context.Context, path string) (*interfaces.Response, error) {
	data, resp, err := b.read(ctx, path)
	if err != nil || resp != nil {
		return resp, err
	}
	if data != nil {
		return status(http.StatusPreconditionFailed), nil
	}
	if resp, err := b.write(ctx, path, map[string]interface{}{vaultDirMarker: true}); err != nil || resp != nil {
		return resp, err
	}
	return status(http.StatusCreated), nil
}

func (b *VaultBackend) Delete(ctx context.Context, path string, recursive bool) (*interfaces.Response, error) {
	data, resp, err := b.read(ctx, path)
	if err != nil || resp != nil {
		return resp, err
	}
	if data == nil {
		return status(http.StatusNotFound), nil
	}
	if isVaultDir(data) {
		if !recursive {
			return status(http.StatusForbidden), nil
		}
		if err := b.deleteChildren(ctx, path); err != nil {
			return nil, err
		}
	}
	if err := b.deleteMetadata(ctx, path); err != nil {
		return nil, err
	}
	return status(http.StatusOK), nil
}

// deleteChildren removes every secret below path, depth first.
func (b *VaultBackend) deleteChildren(ctx context.Context, path string) error {
	secret, err := b.client.Logical().ListWithContext(ctx, b.metadataURL(path))
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil
	}
	keys, _ := secret.Data["keys"].([]interface{})
	for _, k := range keys {
		name, ok := k.(string)
		if !ok {
			continue
		}
		child := cleanPath(path) + "/" + strings.TrimSuffix(name, "/")
		if strings.HasSuffix(name, "/") {
			if err := b.deleteChildren(ctx, child); err != nil {
				return err
			}
			// a folder in the listing may also be a marker secret
			if err := b.deleteMetadata(ctx, child); err != nil {
				return err
			}
			continue
		}
		if err := b.deleteMetadata(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

func (b *VaultBackend) deleteMetadata(ctx context.Context, path string) error {
	_, err := b.client.Logical().DeleteWithContext(ctx, b.metadataURL(path))
	if err != nil {
		if code, ok := responseStatus(err); ok && code == http.StatusNotFound {
			return nil
		}
		b.log.Error("Failed to delete from Vault", slog.String("path", path), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Name returns a unique identifier for this backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}
