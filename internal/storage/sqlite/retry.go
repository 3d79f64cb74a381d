package sqlite

import (
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig controls backoff for statements that lose SQLite's write
// lock to a concurrent process holding the registry file.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	JitterPct  float64 // e.g. 0.25 for 25% jitter
}

// DefaultRetryConfig returns the default retry configuration:
// 7 retries, 50ms base, 25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 7,
		BaseDelay:  50 * time.Millisecond,
		JitterPct:  0.25,
	}
}

// delay computes the backoff before retry number attempt (0-based):
// BaseDelay doubled per attempt, plus up to JitterPct of random slack.
func (cfg RetryConfig) delay(attempt int) time.Duration {
	d := cfg.BaseDelay << attempt
	if cfg.JitterPct > 0 {
		d += time.Duration(float64(d) * cfg.JitterPct * rand.Float64())
	}
	return d
}

// run executes fn, retrying on busy errors until it succeeds, fails with a
// non-busy error, or exhausts MaxRetries. sleep is injectable for tests.
func (cfg RetryConfig) run(fn func() error, sleep func(time.Duration)) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) || attempt == cfg.MaxRetries {
			return err
		}
		sleep(cfg.delay(attempt))
	}
}

// RetryOnBusy retries fn on SQLITE_BUSY / "database is locked" errors
// using the default config.
func RetryOnBusy(fn func() error) error {
	return DefaultRetryConfig().run(fn, time.Sleep)
}

// RetryOnBusyWithConfig retries fn on busy errors using the given config.
func RetryOnBusyWithConfig(cfg RetryConfig, fn func() error) error {
	return cfg.run(fn, time.Sleep)
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
