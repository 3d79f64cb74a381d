package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mistakeknot/peerlock/internal/core"
)

type Instance = core.Instance

// Registry is the persisted lock registry: instance rows mapping an
// instance address to the host address it serves, plus advisory file and
// folder locks. All operations are advisory and last-writer-wins; the
// registry is informational, not a consensus mechanism.
type Registry interface {
	RegisterInstance(instanceAddress, hostAddress string) error
	TouchInstance(instanceAddress string) error
	UnregisterInstance(instanceAddress string) error
	RemoveInstanceByAddress(instanceAddress string) error
	GetInstanceByPort(port int) (*core.Instance, error)
	ListInstances() ([]core.Instance, error)
	AcquireLock(lockType core.LockType, heldBy, target string) (bool, error)
	ReleaseLock(lockType core.LockType, heldBy, target string) error
	SweepStaleInstances(olderThan time.Time) ([]core.Instance, error)
	Close() error
}

// InMemory is a map-backed Registry for tests.
type InMemory struct {
	mu        sync.Mutex
	instances map[string]core.Instance // instanceAddress -> row
	locks     map[string]string        // "type\x00target" -> heldBy
}

func NewInMemory() *InMemory {
	return &InMemory{
		instances: make(map[string]core.Instance),
		locks:     make(map[string]string),
	}
}

func (m *InMemory) RegisterInstance(instanceAddress, hostAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A host address may be claimed by at most one instance; a restarted
	// instance replaces its own previous row.
	delete(m.instances, instanceAddress)
	for addr, inst := range m.instances {
		if inst.HostAddress == hostAddress {
			delete(m.instances, addr)
		}
	}
	m.instances[instanceAddress] = core.Instance{
		InstanceAddress: instanceAddress,
		HostAddress:     hostAddress,
		LockedAt:        time.Now(),
	}
	return nil
}

func (m *InMemory) TouchInstance(instanceAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[instanceAddress]
	if !ok {
		return nil
	}
	inst.LockedAt = time.Now()
	m.instances[instanceAddress] = inst
	return nil
}

func (m *InMemory) UnregisterInstance(instanceAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, instanceAddress)
	return nil
}

func (m *InMemory) RemoveInstanceByAddress(instanceAddress string) error {
	return m.UnregisterInstance(instanceAddress)
}

func (m *InMemory) GetInstanceByPort(port int) (*core.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	suffix := fmt.Sprintf(":%d", port)
	for _, inst := range m.instances {
		if strings.HasSuffix(inst.InstanceAddress, suffix) || strings.HasSuffix(inst.HostAddress, suffix) {
			found := inst
			return &found, nil
		}
	}
	return nil, nil
}

func (m *InMemory) ListInstances() ([]core.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	return out, nil
}

func (m *InMemory) AcquireLock(lockType core.LockType, heldBy, target string) (bool, error) {
	if !lockType.Valid() {
		return false, fmt.Errorf("invalid lock type %q", lockType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(lockType) + "\x00" + target
	if holder, ok := m.locks[key]; ok && holder != heldBy {
		return false, nil
	}
	m.locks[key] = heldBy
	return true, nil
}

func (m *InMemory) ReleaseLock(lockType core.LockType, heldBy, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(lockType) + "\x00" + target
	if m.locks[key] == heldBy {
		delete(m.locks, key)
	}
	return nil
}

func (m *InMemory) SweepStaleInstances(olderThan time.Time) ([]core.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted []core.Instance
	for addr, inst := range m.instances {
		if inst.LockedAt.Before(olderThan) {
			evicted = append(evicted, inst)
			delete(m.instances, addr)
		}
	}
	return evicted, nil
}

func (m *InMemory) Close() error { return nil }
