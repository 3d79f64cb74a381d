package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/mistakeknot/peerlock/internal/core"
)

func TestSweeperEvictsStaleRegistrations(t *testing.T) {
	st := NewSQLiteTest(t)
	_ = st.RegisterInstance("inst-dead", "127.0.0.1:5050")
	_ = st.RegisterInstance("inst-live", "127.0.0.1:5051")
	if _, err := st.db.Exec(
		`UPDATE locks SET locked_at = ? WHERE held_by = 'inst-dead'`,
		time.Now().Add(-time.Hour).UnixMilli(),
	); err != nil {
		t.Fatalf("age row: %v", err)
	}

	evictedCh := make(chan core.Instance, 1)
	sw := NewSweeper(st, 10*time.Millisecond, time.Minute, func(inst core.Instance) {
		select {
		case evictedCh <- inst:
		default:
		}
	})
	sw.Start(context.Background())
	defer sw.Stop()

	select {
	case inst := <-evictedCh:
		if inst.InstanceAddress != "inst-dead" {
			t.Fatalf("expected inst-dead evicted, got %+v", inst)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never evicted the stale registration")
	}

	all, err := st.ListInstances()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].InstanceAddress != "inst-live" {
		t.Fatalf("expected only inst-live to survive, got %+v", all)
	}
}

func TestSweeperStopWithoutStart(t *testing.T) {
	st := NewSQLiteTest(t)
	sw := NewSweeper(st, 5*time.Millisecond, time.Minute, nil)

	done := make(chan struct{})
	go func() {
		sw.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop without Start must return immediately")
	}
}

func TestSweeperStopTerminates(t *testing.T) {
	st := NewSQLiteTest(t)
	sw := NewSweeper(st, 5*time.Millisecond, time.Minute, nil)
	sw.Start(context.Background())

	done := make(chan struct{})
	go func() {
		sw.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
