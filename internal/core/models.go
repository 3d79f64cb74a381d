package core

import "time"

// LockType discriminates what kind of resource a lock row coordinates.
type LockType string

const (
	// LockFile guards a single file path.
	LockFile LockType = "file"
	// LockInstance maps a running instance to the host address it serves.
	LockInstance LockType = "instance"
	// LockFolder guards a directory subtree.
	LockFolder LockType = "folder"
)

// Valid reports whether t is one of the known lock types. The database
// schema enforces the same set with a CHECK constraint.
func (t LockType) Valid() bool {
	switch t {
	case LockFile, LockInstance, LockFolder:
		return true
	}
	return false
}

// Instance is the registry view of an instance lock row: which instance
// address claims which host address, and when it last heartbeat.
type Instance struct {
	InstanceAddress string
	HostAddress     string
	LockedAt        time.Time
}
