package replication

import (
	"testing"
	"time"
)

func TestRecordFailureAccumulates(t *testing.T) {
	ft := NewFailureTracker(time.Minute)
	now := time.Unix(0, 0)

	ft.RecordFailure("peer1", now)
	ft.RecordFailure("peer1", now.Add(time.Second))

	if got := ft.RecentFailureCount("peer1", now.Add(2*time.Second)); got != 2 {
		t.Errorf("want 2 recent failures, got %d", got)
	}
}

func TestRecordSuccessClearsHistory(t *testing.T) {
	ft := NewFailureTracker(time.Minute)
	now := time.Unix(0, 0)

	ft.RecordFailure("peer1", now)
	ft.RecordSuccess("peer1")

	if got := ft.RecentFailureCount("peer1", now); got != 0 {
		t.Errorf("want 0 failures after success, got %d", got)
	}
}

func TestOldFailuresAreEvicted(t *testing.T) {
	ft := NewFailureTracker(10 * time.Second)
	now := time.Unix(0, 0)

	ft.RecordFailure("peer1", now)

	if got := ft.RecentFailureCount("peer1", now.Add(20*time.Second)); got != 0 {
		t.Errorf("want stale failure evicted, got count %d", got)
	}
}

func TestShouldSkipRespectsThreshold(t *testing.T) {
	ft := NewFailureTracker(time.Minute)
	now := time.Unix(0, 0)

	for i := 0; i < 3; i++ {
		ft.RecordFailure("peer1", now)
	}

	if ft.ShouldSkip("peer1", now, 5) {
		t.Error("want ShouldSkip false below threshold")
	}
	if !ft.ShouldSkip("peer1", now, 3) {
		t.Error("want ShouldSkip true at threshold")
	}
}
