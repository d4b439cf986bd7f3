package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogRecorder_FlushesOnClose(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := NewLogRecorder(zap.New(core), 8)

	r.Record(context.Background(), Event{
		Name:       PagesDeleted,
		TenantID:   "t1",
		ActorID:    "u1",
		DocumentID: "d1",
		Fields:     map[string]interface{}{"pages": []int{2}},
	})
	r.Close()

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, PagesDeleted, ctx["event"])
	assert.Equal(t, "d1", ctx["document_id"])
}

func TestLogRecorder_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := &LogRecorder{logger: zap.New(core), events: make(chan Event, 1)}

	// No writer goroutine: the second event cannot be buffered.
	r.Record(context.Background(), Event{Name: LockAcquired})
	r.Record(context.Background(), Event{Name: LockAcquired, DocumentID: "d2"})

	assert.Equal(t, 1, logs.FilterMessage("Audit buffer full, dropping event").Len())
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NotPanics(t, func() { r.Record(context.Background(), Event{Name: "x"}) })
}
