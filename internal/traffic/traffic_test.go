package traffic

import (
	"testing"
	"time"
)

// TestRequestCount_Empty verifies that RequestCount returns 0 when nothing
// has been recorded within the window.
func TestRequestCount_Empty(t *testing.T) {
	Reset()
	if n := RequestCount(1 * time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

// TestRecordLive_AndRequestCount verifies live outcomes count toward RequestCount.
func TestRecordLive_AndRequestCount(t *testing.T) {
	Reset()
	RecordLive()
	RecordLive()
	if n := RequestCount(1 * time.Minute); n != 2 {
		t.Errorf("RequestCount() = %d, want 2", n)
	}
}

// TestRecordDenied_AndCounts verifies that RecordDenied increments both
// DenialCount and RequestCount.
func TestRecordDenied_AndCounts(t *testing.T) {
	Reset()
	RecordDenied()
	RecordDenied()
	if n := DenialCount(1 * time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := RequestCount(1 * time.Minute); n != 2 {
		t.Errorf("RequestCount() = %d, want 2", n)
	}
}

// TestDegradedRate verifies degraded share is computed over live + degraded only.
func TestDegradedRate(t *testing.T) {
	Reset()
	RecordLive()
	RecordLive()
	RecordDegraded()
	RecordDenied()
	degraded, total := DegradedRate(1 * time.Minute)
	if degraded != 1 || total != 3 {
		t.Errorf("DegradedRate() = (%d, %d), want (1, 3) - denied excluded", degraded, total)
	}
}

// TestTracker_WindowAndPrune verifies outcomes fall out of the window and are pruned past retention.
func TestTracker_WindowAndPrune(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tr := NewTracker(func() time.Time { return now })

	tr.RecordDegraded()
	now = now.Add(2 * time.Minute)
	tr.RecordLive()

	if d, total := tr.DegradedRate(time.Minute); d != 0 || total != 1 {
		t.Errorf("DegradedRate(1m) = (%d, %d), want (0, 1)", d, total)
	}
	if d, total := tr.DegradedRate(5 * time.Minute); d != 1 || total != 2 {
		t.Errorf("DegradedRate(5m) = (%d, %d), want (1, 2)", d, total)
	}

	now = now.Add(10 * time.Minute)
	tr.RecordLive()
	if n := len(tr.degradedTimes) + len(tr.liveTimes); n != 1 {
		t.Errorf("retained timestamps = %d, want 1 after prune", n)
	}
}

// TestReset verifies that Reset clears every outcome slice.
func TestReset(t *testing.T) {
	Reset()
	RecordLive()
	RecordDegraded()
	RecordDenied()
	Reset()
	if n := RequestCount(1 * time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
	degraded, total := DegradedRate(1 * time.Minute)
	if degraded != 0 || total != 0 {
		t.Errorf("DegradedRate() = (%d, %d), want (0, 0)", degraded, total)
	}
}
