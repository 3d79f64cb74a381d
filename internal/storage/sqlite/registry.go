package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mistakeknot/peerlock/internal/core"
	"github.com/mistakeknot/peerlock/internal/storage"
)

// Compile-time interface check.
var _ storage.Registry = (*Store)(nil)

// RegisterInstance records that instanceAddress is serving hostAddress.
// Replaces any previous row for the same instance (a restart that moved
// ports) and any row another instance left on the same host address (a
// restart that reclaimed its port). Last writer wins on concurrent races.
func (s *Store) RegisterInstance(instanceAddress, hostAddress string) error {
	if _, err := s.db.Exec(
		`DELETE FROM locks WHERE held_by = ? AND lock_type = 'instance'`,
		instanceAddress,
	); err != nil {
		return fmt.Errorf("register instance: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO locks (held_by, lock_type, lock_target, locked_at)
		 VALUES (?, 'instance', ?, ?)`,
		instanceAddress, hostAddress, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("register instance: %w", err)
	}
	return nil
}

// TouchInstance refreshes the heartbeat timestamp. Touching an instance
// that never registered affects zero rows and is not an error.
func (s *Store) TouchInstance(instanceAddress string) error {
	if _, err := s.db.Exec(
		`UPDATE locks SET locked_at = ? WHERE held_by = ? AND lock_type = 'instance'`,
		time.Now().UnixMilli(), instanceAddress,
	); err != nil {
		return fmt.Errorf("touch instance: %w", err)
	}
	return nil
}

// UnregisterInstance deletes the instance's row. Idempotent.
func (s *Store) UnregisterInstance(instanceAddress string) error {
	if _, err := s.db.Exec(
		`DELETE FROM locks WHERE held_by = ? AND lock_type = 'instance'`,
		instanceAddress,
	); err != nil {
		return fmt.Errorf("unregister instance: %w", err)
	}
	return nil
}

// RemoveInstanceByAddress evicts a peer's registration. Same predicate as
// UnregisterInstance; the self-vs-peer authorization distinction lives at
// the caller.
func (s *Store) RemoveInstanceByAddress(instanceAddress string) error {
	if _, err := s.db.Exec(
		`DELETE FROM locks WHERE held_by = ? AND lock_type = 'instance'`,
		instanceAddress,
	); err != nil {
		return fmt.Errorf("remove instance: %w", err)
	}
	return nil
}

// GetInstanceByPort finds an instance row whose address or host address
// ends with ":<port>". Both columns are matched because either may carry a
// host:port string. Returns nil when no row matches.
func (s *Store) GetInstanceByPort(port int) (*core.Instance, error) {
	pattern := fmt.Sprintf("%%:%d", port)
	var (
		heldBy, target string
		lockedAt       int64
	)
	err := s.db.QueryRow(
		`SELECT held_by, lock_target, locked_at FROM locks
		 WHERE lock_type = 'instance' AND (held_by LIKE ? OR lock_target LIKE ?)
		 LIMIT 1`,
		pattern, pattern,
	).Scan(&heldBy, &target, &lockedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup instance by port: %w", err)
	}
	return &core.Instance{
		InstanceAddress: heldBy,
		HostAddress:     target,
		LockedAt:        time.UnixMilli(lockedAt),
	}, nil
}

// ListInstances returns all registered instances, most recent heartbeat
// first.
func (s *Store) ListInstances() ([]core.Instance, error) {
	rows, err := s.db.Query(
		`SELECT held_by, lock_target, locked_at FROM locks
		 WHERE lock_type = 'instance' ORDER BY locked_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []core.Instance
	for rows.Next() {
		var (
			heldBy, target string
			lockedAt       int64
		)
		if err := rows.Scan(&heldBy, &target, &lockedAt); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, core.Instance{
			InstanceAddress: heldBy,
			HostAddress:     target,
			LockedAt:        time.UnixMilli(lockedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// AcquireLock claims an advisory file or folder lock on target. Returns
// true when the target was free or already held by heldBy (refreshing its
// timestamp), false when another holder has it.
func (s *Store) AcquireLock(lockType core.LockType, heldBy, target string) (bool, error) {
	if !lockType.Valid() {
		return false, fmt.Errorf("invalid lock type %q", lockType)
	}
	res, err := s.db.Exec(
		`INSERT INTO locks (held_by, lock_type, lock_target, locked_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(lock_type, lock_target) DO UPDATE SET locked_at = excluded.locked_at
		 WHERE locks.held_by = excluded.held_by`,
		heldBy, string(lockType), target, time.Now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("acquire %s lock: %w", lockType, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire %s lock: %w", lockType, err)
	}
	return n > 0, nil
}

// ReleaseLock drops heldBy's lock on target. Releasing a lock that is
// absent or held by someone else affects zero rows and is not an error.
func (s *Store) ReleaseLock(lockType core.LockType, heldBy, target string) error {
	if _, err := s.db.Exec(
		`DELETE FROM locks WHERE held_by = ? AND lock_type = ? AND lock_target = ?`,
		heldBy, string(lockType), target,
	); err != nil {
		return fmt.Errorf("release %s lock: %w", lockType, err)
	}
	return nil
}

// SweepStaleInstances deletes instance rows whose heartbeat is older than
// olderThan and returns the evicted registrations.
func (s *Store) SweepStaleInstances(olderThan time.Time) ([]core.Instance, error) {
	rows, err := s.db.Query(
		`DELETE FROM locks WHERE lock_type = 'instance' AND locked_at < ?
		 RETURNING held_by, lock_target, locked_at`,
		olderThan.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("sweep instances: %w", err)
	}
	defer rows.Close()

	var evicted []core.Instance
	for rows.Next() {
		var (
			heldBy, target string
			lockedAt       int64
		)
		if err := rows.Scan(&heldBy, &target, &lockedAt); err != nil {
			return nil, fmt.Errorf("scan evicted instance: %w", err)
		}
		evicted = append(evicted, core.Instance{
			InstanceAddress: heldBy,
			HostAddress:     target,
			LockedAt:        time.UnixMilli(lockedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return evicted, nil
}
