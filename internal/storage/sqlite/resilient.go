package sqlite

import (
	"time"

	"github.com/mistakeknot/peerlock/internal/core"
	"github.com/mistakeknot/peerlock/internal/storage"
)

// Compile-time interface check.
var _ storage.Registry = (*ResilientStore)(nil)

// ResilientStore wraps every registry method of *Store with
// CircuitBreaker + RetryOnBusy, protecting callers from transient SQLite
// errors (a peer holding the write lock) and from hammering a database
// that is persistently failing.
type ResilientStore struct {
	inner *Store
	cb    *CircuitBreaker
}

// NewResilient creates a ResilientStore with default circuit breaker
// settings (threshold=5, resetTimeout=30s).
func NewResilient(inner *Store) *ResilientStore {
	return &ResilientStore{inner: inner, cb: NewCircuitBreaker(5, 30*time.Second)}
}

// NewResilientWithBreaker creates a ResilientStore with a custom breaker.
func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker) *ResilientStore {
	return &ResilientStore{inner: inner, cb: cb}
}

// CircuitBreakerState returns the current breaker state as a string.
func (r *ResilientStore) CircuitBreakerState() string {
	return r.cb.State().String()
}

func (r *ResilientStore) execute(fn func() error) error {
	return r.cb.Execute(func() error {
		return RetryOnBusy(fn)
	})
}

func (r *ResilientStore) RegisterInstance(instanceAddress, hostAddress string) error {
	return r.execute(func() error {
		return r.inner.RegisterInstance(instanceAddress, hostAddress)
	})
}

func (r *ResilientStore) TouchInstance(instanceAddress string) error {
	return r.execute(func() error {
		return r.inner.TouchInstance(instanceAddress)
	})
}

func (r *ResilientStore) UnregisterInstance(instanceAddress string) error {
	return r.execute(func() error {
		return r.inner.UnregisterInstance(instanceAddress)
	})
}

func (r *ResilientStore) RemoveInstanceByAddress(instanceAddress string) error {
	return r.execute(func() error {
		return r.inner.RemoveInstanceByAddress(instanceAddress)
	})
}

func (r *ResilientStore) GetInstanceByPort(port int) (*core.Instance, error) {
	var result *core.Instance
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.GetInstanceByPort(port)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ListInstances() ([]core.Instance, error) {
	var result []core.Instance
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.ListInstances()
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) AcquireLock(lockType core.LockType, heldBy, target string) (bool, error) {
	var acquired bool
	err := r.execute(func() error {
		var innerErr error
		acquired, innerErr = r.inner.AcquireLock(lockType, heldBy, target)
		return innerErr
	})
	return acquired, err
}

func (r *ResilientStore) ReleaseLock(lockType core.LockType, heldBy, target string) error {
	return r.execute(func() error {
		return r.inner.ReleaseLock(lockType, heldBy, target)
	})
}

func (r *ResilientStore) SweepStaleInstances(olderThan time.Time) ([]core.Instance, error) {
	var evicted []core.Instance
	err := r.execute(func() error {
		var innerErr error
		evicted, innerErr = r.inner.SweepStaleInstances(olderThan)
		return innerErr
	})
	return evicted, err
}

// Close releases the underlying store. Not routed through the breaker;
// shutdown must always be attempted.
func (r *ResilientStore) Close() error {
	return r.inner.Close()
}
