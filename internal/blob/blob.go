// Package blob provides the binary store that holds uploaded source files
// and every rewritten version of them.
package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/docdesk/internal/config"
)

// ErrNotExist is returned when a key has no object behind it
var ErrNotExist = errors.New("blob: object does not exist")

// ErrInvalidKey is returned for keys a backend refuses to address
var ErrInvalidKey = errors.New("blob: invalid key")

// Store is the download/upload contract the processing core consumes
type Store interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// New builds the configured backend wrapped with retries and a circuit breaker
func New(ctx context.Context, cfg *config.BlobConfig, logger *zap.Logger) (Store, error) {
	var backend Store
	switch cfg.Backend {
	case "local":
		local, err := NewLocalStore(cfg.LocalRoot)
		if err != nil {
			return nil, err
		}
		backend = local
	case "gcs":
		gcs, err := NewGCSStore(ctx, cfg.Bucket, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		backend = gcs
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.Backend)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return NewResilient(backend, ResilientOptions{
		Name:     cfg.Backend,
		Attempts: uint(cfg.RetryAttempts),
		Timeout:  timeout,
	}, logger), nil
}
