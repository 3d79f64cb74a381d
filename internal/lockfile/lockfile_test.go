package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "locks.db.lock")
}

func TestCleanupStaleMissingFile(t *testing.T) {
	// Must not panic or create anything.
	path := lockPath(t)
	CleanupStale(path, time.Minute)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no lock file, stat err = %v", err)
	}
}

func TestCleanupStaleFreshLockKept(t *testing.T) {
	path := lockPath(t)
	content := fmt.Sprintf("%d", time.Now().UnixMilli())
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	CleanupStale(path, time.Minute)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("fresh lock should survive cleanup: %v", err)
	}
}

func TestCleanupStaleOldLockRemoved(t *testing.T) {
	path := lockPath(t)
	// Epoch start, far past any staleness threshold.
	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	CleanupStale(path, time.Minute)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("stale lock should be removed, stat err = %v", err)
	}
}

func TestCleanupStaleCorruptLockRemoved(t *testing.T) {
	path := lockPath(t)
	if err := os.WriteFile(path, []byte("not-a-timestamp"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	CleanupStale(path, time.Minute)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("corrupt lock should be removed, stat err = %v", err)
	}
}

func TestTryLockExclusive(t *testing.T) {
	path := lockPath(t)

	release, err := TryLock(path)
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}

	if _, err := TryLock(path); !os.IsExist(err) {
		t.Fatalf("second TryLock should fail with exists, got %v", err)
	}

	release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("release should remove lock file, stat err = %v", err)
	}

	// Reacquirable after release.
	release2, err := TryLock(path)
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	release2()
}

func TestTryLockWritesTimestamp(t *testing.T) {
	path := lockPath(t)
	before := time.Now().UnixMilli()

	release, err := TryLock(path)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ts int64
	if _, err := fmt.Sscanf(string(data), "%d", &ts); err != nil {
		t.Fatalf("lock content %q is not a timestamp: %v", data, err)
	}
	if ts < before || ts > time.Now().UnixMilli() {
		t.Fatalf("timestamp %d out of range", ts)
	}
}

func TestTryLockReleaseTolerantOfForeignCleanup(t *testing.T) {
	path := lockPath(t)
	release, err := TryLock(path)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	// Another process reclaimed the lock already.
	os.Remove(path)
	release() // must not panic
}

func TestSleepJitterBounds(t *testing.T) {
	start := time.Now()
	SleepJitter(10*time.Millisecond, 20*time.Millisecond)
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("slept %v, want at least 10ms", elapsed)
	}
}
