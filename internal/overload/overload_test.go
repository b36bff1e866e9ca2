package overload

import (
	"sync"
	"testing"
	"time"
)

// TestTracker_Counts verifies requests and denials are counted separately
// within the window.
func TestTracker_Counts(t *testing.T) {
	var tr Tracker

	tr.RecordRequest()
	tr.RecordRequest()
	tr.RecordRequest()
	tr.RecordDenial()

	if got := tr.RequestCount(time.Minute); got != 3 {
		t.Errorf("RequestCount = %d, want 3", got)
	}
	if got := tr.DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount = %d, want 1", got)
	}
}

// TestTracker_WindowExcludesOld verifies entries older than the window are
// not counted.
func TestTracker_WindowExcludesOld(t *testing.T) {
	var tr Tracker

	tr.RecordDenial()
	time.Sleep(30 * time.Millisecond)
	tr.RecordDenial()

	if got := tr.DenialCount(10 * time.Millisecond); got != 1 {
		t.Errorf("DenialCount(10ms) = %d, want 1 (older entry outside window)", got)
	}
	if got := tr.DenialCount(time.Minute); got != 2 {
		t.Errorf("DenialCount(1m) = %d, want 2", got)
	}
}

// TestTracker_Reset verifies Reset clears both windows.
func TestTracker_Reset(t *testing.T) {
	var tr Tracker

	tr.RecordRequest()
	tr.RecordDenial()
	tr.Reset()

	if got := tr.RequestCount(time.Minute); got != 0 {
		t.Errorf("RequestCount after Reset = %d, want 0", got)
	}
	if got := tr.DenialCount(time.Minute); got != 0 {
		t.Errorf("DenialCount after Reset = %d, want 0", got)
	}
}

// TestPackageFuncs verifies the package-level functions operate on the shared
// tracker.
func TestPackageFuncs(t *testing.T) {
	Reset()
	defer Reset()

	RecordRequest()
	RecordDenial()

	if got := RequestCount(time.Minute); got != 1 {
		t.Errorf("RequestCount = %d, want 1", got)
	}
	if got := DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount = %d, want 1", got)
	}
}

// TestTracker_ConcurrentRecording exercises concurrent writers and readers;
// run with -race.
func TestTracker_ConcurrentRecording(t *testing.T) {
	var tr Tracker

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.RecordRequest()
				tr.RecordDenial()
				tr.RequestCount(time.Minute)
			}
		}()
	}
	wg.Wait()

	if got := tr.DenialCount(time.Minute); got != 500 {
		t.Errorf("DenialCount = %d, want 500", got)
	}
}
