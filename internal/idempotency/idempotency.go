// Package idempotency caches the responses of mutating calls under a
// client-supplied key so that retries replay instead of re-executing.
package idempotency

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Record is what gets stored per key. Only successful responses are kept.
type Record struct {
	Endpoint   string          `json:"endpoint"`
	StatusCode int             `json:"status_code"`
	Response   json.RawMessage `json:"response"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Request identifies one idempotent call. Keys are namespaced by tenant,
// actor and endpoint, so a client key reused by another operator runs anew.
type Request struct {
	TenantID   string
	ActorID    string
	Endpoint   string
	Key        string
	StatusCode int
}

func (r Request) recordKey() string {
	return fmt.Sprintf("idem:%q:%q:%q:%q", r.TenantID, r.ActorID, r.Endpoint, r.Key)
}

// Cache stores Records in BadgerDB with native TTL expiry
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewCache creates a cache whose records live for ttl
func NewCache(db *badger.DB, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{db: db, ttl: ttl, logger: logger}
}

// Get returns the live record for req, or nil when there is none
func (c *Cache) Get(ctx context.Context, req Request) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *Record
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(req.recordKey()))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			rec = &Record{}
			return json.Unmarshal(v, rec)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency get: %w", err)
	}
	return rec, nil
}

// Put stores response for req until the cache TTL elapses
func (c *Cache) Put(ctx context.Context, req Request, response []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	status := req.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	rec := Record{
		Endpoint:   req.Endpoint,
		StatusCode: status,
		Response:   response,
		ExpiresAt:  time.Now().UTC().Add(c.ttl),
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(req.recordKey()), value).WithTTL(c.ttl)
		return txn.SetEntry(e)
	})
}

// RunGC reclaims value log space left behind by expired records
func (c *Cache) RunGC() error {
	err := c.db.RunValueLogGC(0.5)
	if stderrors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

type outcome[T any] struct {
	value    *T
	replayed bool
}

// Do runs fn at most once per live key. A repeated call with the same key
// gets the cached response decoded back into T and replayed=true. Errors
// are never cached, so a failed call can be retried with the same key.
// Concurrent calls sharing a key wait for the first one.
//
// A nil cache or an empty key runs fn unconditionally.
func Do[T any](ctx context.Context, c *Cache, req Request, fn func(context.Context) (*T, error)) (*T, bool, error) {
	if c == nil || req.Key == "" {
		v, err := fn(ctx)
		return v, false, err
	}

	res, err, _ := c.group.Do(req.recordKey(), func() (interface{}, error) {
		rec, err := c.Get(ctx, req)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			var cached T
			if err := json.Unmarshal(rec.Response, &cached); err != nil {
				return nil, fmt.Errorf("idempotency decode: %w", err)
			}
			return outcome[T]{value: &cached, replayed: true}, nil
		}

		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("idempotency encode: %w", err)
		}
		// The mutation already happened; losing the record only costs replay.
		if err := c.Put(ctx, req, body); err != nil {
			c.logger.Warn("Failed to store idempotency record",
				zap.String("endpoint", req.Endpoint),
				zap.Error(err))
		}
		return outcome[T]{value: v}, nil
	})
	if err != nil {
		return nil, false, err
	}
	o := res.(outcome[T])
	return o.value, o.replayed, nil
}
