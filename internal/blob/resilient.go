package blob

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ResilientOptions tunes retries and the breaker around a backend
type ResilientOptions struct {
	Name     string
	Attempts uint
	Delay    time.Duration
	Timeout  time.Duration
}

// Resilient retries transient backend failures and stops calling a backend
// that keeps failing until the breaker half-opens again.
type Resilient struct {
	backend Store
	opts    ResilientOptions
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

func NewResilient(backend Store, opts ResilientOptions, logger *zap.Logger) *Resilient {
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        "blob-" + opts.Name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Missing objects and refused keys are answers, not backend failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotExist) || errors.Is(err, ErrInvalidKey)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Blob circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Resilient{
		backend: backend,
		opts:    opts,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:  logger,
	}
}

func (r *Resilient) retryOptions(ctx context.Context, key, op string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(r.opts.Attempts),
		retry.Delay(r.opts.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrNotExist) && !errors.Is(err, ErrInvalidKey) &&
				!errors.Is(err, gobreaker.ErrOpenState)
		}),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("Blob operation failed, will retry",
				zap.String("op", op),
				zap.String("key", key),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	}
}

func (r *Resilient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opts.Timeout)
}

func (r *Resilient) Download(ctx context.Context, key string) ([]byte, error) {
	return retry.DoWithData(func() ([]byte, error) {
		return r.breaker.Execute(func() ([]byte, error) {
			opCtx, cancel := r.withTimeout(ctx)
			defer cancel()
			return r.backend.Download(opCtx, key)
		})
	}, r.retryOptions(ctx, key, "download")...)
}

func (r *Resilient) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return retry.Do(func() error {
		_, err := r.breaker.Execute(func() ([]byte, error) {
			opCtx, cancel := r.withTimeout(ctx)
			defer cancel()
			return nil, r.backend.Upload(opCtx, key, data, contentType)
		})
		return err
	}, r.retryOptions(ctx, key, "upload")...)
}

// Close closes the backend when it holds resources
func (r *Resilient) Close() error {
	if c, ok := r.backend.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
