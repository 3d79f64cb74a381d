// Package lockfile implements the sidecar lock-file primitive used to
// serialize database bootstrap across OS processes. The mutual exclusion
// mechanism is the filesystem's atomic exclusive-create: whoever creates
// the file proceeds, everyone else backs off and retries. The file's only
// content is an epoch-millisecond timestamp so that a *different* process
// can decide the holder crashed and reclaim the lock.
package lockfile

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// CleanupStale removes path if it looks abandoned: its content is an
// epoch-millis timestamp older than staleAfter, or unreadable, or not a
// number at all. A missing file is a no-op. Removal races with other
// processes doing the same cleanup are tolerated. Nothing here escalates
// to an error; a crashed holder must never wedge bootstrap permanently.
func CleanupStale(path string, staleAfter time.Duration) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Warn().Str("lock_file", path).Err(err).Msg("unreadable bootstrap lock, removing")
		remove(path)
		return
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		log.Warn().Str("lock_file", path).Msg("corrupt bootstrap lock, removing")
		remove(path)
		return
	}

	age := time.Since(time.UnixMilli(ts))
	if age > staleAfter {
		log.Warn().Str("lock_file", path).Dur("age", age).Msg("stale bootstrap lock, removing")
		remove(path)
	}
}

func remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("lock_file", path).Err(err).Msg("remove bootstrap lock")
	}
}

// TryLock attempts to create path with exclusive-create semantics. On
// success it writes the current epoch-millis timestamp into the file and
// returns a release func that closes and removes it (removal errors are
// swallowed; another process may already have reclaimed it). When the file
// already exists the returned error satisfies os.IsExist.
func TryLock(path string) (release func(), err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(f, "%d", time.Now().UnixMilli()); err != nil {
		f.Close()
		remove(path)
		return nil, fmt.Errorf("write bootstrap lock: %w", err)
	}
	return func() {
		f.Close()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Str("lock_file", path).Err(err).Msg("release bootstrap lock")
		}
	}, nil
}

// SleepJitter blocks the calling goroutine for a random duration in
// [min, max). Used between contended bootstrap attempts so that N
// processes racing on the same path don't retry in lockstep.
func SleepJitter(min, max time.Duration) {
	if max <= min {
		time.Sleep(min)
		return
	}
	time.Sleep(min + rand.N(max-min))
}
