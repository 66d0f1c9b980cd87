package lifecycle

import (
	"testing"
	"time"
)

func TestShuttingDown(t *testing.T) {
	t.Cleanup(reset)
	steps := []struct {
		set  bool
		want bool
	}{
		{false, false},
		{true, true},
		{true, true},
		{false, false},
	}
	for i, s := range steps {
		SetShuttingDown(s.set)
		if got := IsShuttingDown(); got != s.want {
			t.Errorf("step %d: IsShuttingDown() = %v, want %v", i, got, s.want)
		}
	}
}

func TestUptime(t *testing.T) {
	t.Cleanup(reset)
	reset()
	now := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	if got := Uptime(now); got != 0 {
		t.Errorf("Uptime() before start = %v, want 0", got)
	}
	MarkStarted(now)
	if got := Uptime(now.Add(90 * time.Second)); got != 90*time.Second {
		t.Errorf("Uptime() = %v, want 1m30s", got)
	}
}

func reset() {
	shuttingDown.Store(false)
	startedAt.Store(0)
}
