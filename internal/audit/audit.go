// Package audit emits fire-and-forget records of document mutations.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event names
const (
	LockAcquired      = "lock.acquired"
	PagesDeleted      = "pages.deleted"
	PagesReordered    = "pages.reordered"
	DocumentIngested  = "document.ingested"
	DocumentsMerged   = "documents.merged"
	DocumentSplit     = "documents.split"
	PipelineChanged   = "pipeline.changed"
	RevisionCreated   = "revision.created"
	RevisionApproved  = "revision.approved"
	RevisionWithdrawn = "revision.superseded"
	DuplicateFlagged  = "duplicate.flagged"
	DuplicateResolved = "duplicate.resolved"
)

// Event is one audit record
type Event struct {
	Name       string
	TenantID   string
	ActorID    string
	DocumentID string
	Fields     map[string]interface{}
	At         time.Time
}

// Recorder accepts events without blocking the caller
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Nop discards every event
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// LogRecorder writes events to a zap logger from a background goroutine.
// Events are dropped, with a warning, when the buffer is full.
type LogRecorder struct {
	logger *zap.Logger
	events chan Event
	wg     sync.WaitGroup
	once   sync.Once
}

// NewLogRecorder starts the writer goroutine
func NewLogRecorder(logger *zap.Logger, buffer int) *LogRecorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &LogRecorder{
		logger: logger.Named("audit"),
		events: make(chan Event, buffer),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *LogRecorder) Record(_ context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case r.events <- e:
	default:
		r.logger.Warn("Audit buffer full, dropping event",
			zap.String("event", e.Name),
			zap.String("document_id", e.DocumentID))
	}
}

func (r *LogRecorder) run() {
	defer r.wg.Done()
	for e := range r.events {
		fields := []zap.Field{
			zap.String("event", e.Name),
			zap.String("tenant_id", e.TenantID),
			zap.String("actor_id", e.ActorID),
			zap.String("document_id", e.DocumentID),
			zap.Time("at", e.At),
		}
		for k, v := range e.Fields {
			fields = append(fields, zap.Any(k, v))
		}
		r.logger.Info("audit", fields...)
	}
}

// Close flushes pending events and stops the writer. Record must not be
// called after Close.
func (r *LogRecorder) Close() {
	r.once.Do(func() {
		close(r.events)
		r.wg.Wait()
	})
}
