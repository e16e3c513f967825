package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viaductecho/internal/config"
)

func windowConfig(enabled bool) config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:         enabled,
		WindowStartHour: 5,
		WindowEndHour:   20,
		Timezone:        "UTC",
	}
}

func TestInWindow(t *testing.T) {
	t.Parallel()

	w := NewWindow(windowConfig(true), nil)
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	assert.False(t, w.InWindow(day.Add(4*time.Hour)), "04:00 is before the window")
	assert.True(t, w.InWindow(day.Add(5*time.Hour)), "05:00 opens the window")
	assert.True(t, w.InWindow(day.Add(12*time.Hour)))
	assert.True(t, w.InWindow(day.Add(20*time.Hour)), "20:00 is the last active hour")
	assert.False(t, w.InWindow(day.Add(21*time.Hour)))
}

func TestDisabledSchedulerNeverFires(t *testing.T) {
	t.Parallel()

	w := NewWindow(windowConfig(false), nil)

	fired := false
	err := w.Start(context.Background(), func(context.Context) { fired = true })
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired)
}

func TestStartFiresImmediatelyInsideWindow(t *testing.T) {
	t.Parallel()

	cfg := windowConfig(true)
	cfg.WindowStartHour = 0
	cfg.WindowEndHour = 23
	w := NewWindow(cfg, nil)
	defer w.Stop()

	fired := make(chan struct{}, 1)
	err := w.Start(context.Background(), func(context.Context) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected an immediate run inside the window")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	w := NewWindow(windowConfig(true), nil)
	require.NoError(t, w.Start(context.Background(), func(context.Context) {}))
	w.Stop()
	w.Stop()
}
