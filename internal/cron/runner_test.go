package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunOnce_ContinuesAfterFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var ran []string
	r := NewRunner(Config{}, zap.New(core),
		Job{Name: "first", Run: func(context.Context) error { ran = append(ran, "first"); return errors.New("boom") }},
		Job{Name: "second", Run: func(context.Context) error { ran = append(ran, "second"); return nil }},
	)

	r.RunOnce()
	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Equal(t, 1, logs.FilterMessage("Maintenance job failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Maintenance job completed").Len())
}

func TestStartStop(t *testing.T) {
	var runs atomic.Int32
	r := NewRunner(Config{Schedule: "@every 1h"}, nil,
		Job{Name: "count", Run: func(context.Context) error { runs.Add(1); return nil }},
	)

	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start())

	// the first run happens right away
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}

func TestStart_InvalidSchedule(t *testing.T) {
	r := NewRunner(Config{Schedule: "every tuesday"}, nil)
	assert.Error(t, r.Start())
	assert.False(t, r.IsRunning())
}

func TestRunOnce_SkipsAfterCancel(t *testing.T) {
	var ran bool
	r := NewRunner(Config{}, nil, Job{Name: "noop", Run: func(context.Context) error {
		ran = true
		return nil
	}})
	r.cancel()

	r.RunOnce()
	assert.False(t, ran)
}
