// Package lockmgr provides the embeddable lock manager facade: one Manager
// per process, owning the registry database handle for the lifetime of
// that process's participation.
package lockmgr

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mistakeknot/peerlock/internal/core"
	"github.com/mistakeknot/peerlock/internal/storage"
	"github.com/mistakeknot/peerlock/internal/storage/sqlite"
)

// Config configures a Manager.
type Config struct {
	// InstanceAddress is the identity this process registers itself under.
	InstanceAddress string

	// DBPath is the path to the shared registry database.
	// If empty, defaults to ~/.peerlock/locks.db
	DBPath string
}

// Manager composes the bootstrap protocol and the registry operations
// around one database handle. Construction runs bootstrap synchronously;
// callers pair Close with UnregisterInstance during orderly shutdown.
type Manager struct {
	cfg   Config
	store storage.Registry
}

// New opens (and on first use, creates) the registry database and returns
// a Manager bound to cfg.InstanceAddress. Safe to call concurrently from
// multiple processes pointed at the same DBPath.
func New(cfg Config) (*Manager, error) {
	if cfg.InstanceAddress == "" {
		return nil, fmt.Errorf("instance address required")
	}
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".peerlock", "locks.db")
	}

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init registry: %w", err)
	}

	return &Manager{cfg: cfg, store: sqlite.NewResilient(st)}, nil
}

// InstanceAddress returns the identity this manager registers under.
func (m *Manager) InstanceAddress() string {
	return m.cfg.InstanceAddress
}

// RegisterInstance records this instance as serving hostAddress.
func (m *Manager) RegisterInstance(hostAddress string) error {
	return m.store.RegisterInstance(m.cfg.InstanceAddress, hostAddress)
}

// TouchInstance refreshes this instance's heartbeat timestamp.
func (m *Manager) TouchInstance() error {
	return m.store.TouchInstance(m.cfg.InstanceAddress)
}

// UnregisterInstance removes this instance's registration. Idempotent.
func (m *Manager) UnregisterInstance() error {
	return m.store.UnregisterInstance(m.cfg.InstanceAddress)
}

// GetInstanceByPort resolves which instance, if any, serves the given
// port. Returns nil when nothing is registered for it.
func (m *Manager) GetInstanceByPort(port int) (*core.Instance, error) {
	return m.store.GetInstanceByPort(port)
}

// RemoveInstanceByAddress evicts another instance's registration, for use
// after the caller has confirmed that peer is dead.
func (m *Manager) RemoveInstanceByAddress(address string) error {
	return m.store.RemoveInstanceByAddress(address)
}

// ListInstances returns every registered instance.
func (m *Manager) ListInstances() ([]core.Instance, error) {
	return m.store.ListInstances()
}

// AcquireLock claims an advisory file or folder lock for this instance.
func (m *Manager) AcquireLock(lockType core.LockType, target string) (bool, error) {
	return m.store.AcquireLock(lockType, m.cfg.InstanceAddress, target)
}

// ReleaseLock drops this instance's advisory lock on target.
func (m *Manager) ReleaseLock(lockType core.LockType, target string) error {
	return m.store.ReleaseLock(lockType, m.cfg.InstanceAddress, target)
}

// Registry exposes the underlying store, for wiring a Sweeper or tests.
func (m *Manager) Registry() storage.Registry {
	return m.store
}

// Close releases the database handle. No operations are valid afterwards.
func (m *Manager) Close() error {
	return m.store.Close()
}
