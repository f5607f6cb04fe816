package txn

import (
	"testing"
	"time"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

func TestBeginAssignsIncreasingIDs(t *testing.T) {
	m := NewManager(nil)
	a := m.Begin(ReadCommitted)
	b := m.Begin(ReadCommitted)
	if b.ID <= a.ID {
		t.Fatalf("txn ids = %d, %d; want strictly increasing", a.ID, b.ID)
	}
}

func TestLockGrantsCompatibleModes(t *testing.T) {
	m := NewManager(nil)
	a := m.Begin(ReadCommitted)
	b := m.Begin(ReadCommitted)
	if err := m.Lock(a, "row:t:1", Shared); err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	if err := m.Lock(b, "row:t:1", Shared); err != nil {
		t.Fatalf("Lock b (compatible shared): %v", err)
	}
}

func TestLockReacquireSameOrWeakerModeIsNoop(t *testing.T) {
	m := NewManager(nil)
	a := m.Begin(ReadCommitted)
	if err := m.Lock(a, "row:t:1", Exclusive); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := m.Lock(a, "row:t:1", Shared); err != nil {
		t.Fatalf("re-lock at a weaker mode should succeed: %v", err)
	}
	mode, ok := a.HeldMode("row:t:1")
	if !ok || mode != Exclusive {
		t.Fatalf("HeldMode = (%v, %v), want (Exclusive, true)", mode, ok)
	}
}

func TestLockAfterCommitReturnsErrNotActive(t *testing.T) {
	m := NewManager(nil)
	a := m.Begin(ReadCommitted)
	if err := m.Commit(a); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	err := m.Lock(a, "row:t:1", Shared)
	if err != ErrNotActive {
		t.Fatalf("Lock after commit = %v, want ErrNotActive", err)
	}
}

func TestCommitReleasesLocksForWaiters(t *testing.T) {
	m := NewManager(nil)
	a := m.Begin(ReadCommitted)
	b := m.Begin(ReadCommitted)
	if err := m.Lock(a, "row:t:1", Exclusive); err != nil {
		t.Fatalf("Lock a: %v", err)
	}

	result := make(chan error, 1)
	go func() { result <- m.Lock(b, "row:t:1", Exclusive) }()

	time.Sleep(20 * time.Millisecond)
	if err := m.Commit(a); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("b's lock after a's commit = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("b never acquired the lock after a committed")
	}
}

func TestAbortReleasesLocks(t *testing.T) {
	m := NewManager(nil)
	a := m.Begin(ReadCommitted)
	if err := m.Lock(a, "row:t:1", Exclusive); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	m.Abort(a)
	if a.State != Aborted {
		t.Fatalf("State = %v, want Aborted", a.State)
	}

	b := m.Begin(ReadCommitted)
	if err := m.Lock(b, "row:t:1", Exclusive); err != nil {
		t.Fatalf("Lock after abort released it: %v", err)
	}
}

// TestLockDetectsDeadlockAbortsYoungest builds the classic a-waits-on-b,
// b-waits-on-a cycle. b is started second (the youngest), and is the one
// whose own call discovers the completed cycle, so it self-aborts and
// returns synchronously with no dependency on a later broadcast.
func TestLockDetectsDeadlockAbortsYoungest(t *testing.T) {
	m := NewManager(nil)
	a := m.Begin(ReadCommitted)
	time.Sleep(time.Millisecond) // ensure b is strictly younger
	b := m.Begin(ReadCommitted)

	if err := m.Lock(a, "row:t:1", Exclusive); err != nil {
		t.Fatalf("Lock a on row 1: %v", err)
	}
	if err := m.Lock(b, "row:t:2", Exclusive); err != nil {
		t.Fatalf("Lock b on row 2: %v", err)
	}

	// a blocks waiting on b's row 2 lock.
	go m.Lock(a, "row:t:2", Exclusive)
	time.Sleep(20 * time.Millisecond)

	// b's attempt on row 1 closes the cycle and finds itself the youngest.
	err := m.Lock(b, "row:t:1", Exclusive)
	if err != ErrWouldDeadlock {
		t.Fatalf("Lock b (closes cycle) = %v, want ErrWouldDeadlock", err)
	}
}

// TestLockTimesOutEventually verifies the timeout path. A blocked waiter
// only rechecks its deadline when woken by some other Broadcast (Lock,
// Commit and Abort all call it), so this drives unrelated commits in the
// background to give the waiter a chance to notice its deadline passed.
func TestLockTimesOutEventually(t *testing.T) {
	m := NewManager(nil)
	m.lockTimeout = 20 * time.Millisecond

	a := m.Begin(ReadCommitted)
	if err := m.Lock(a, "row:t:1", Exclusive); err != nil {
		t.Fatalf("Lock a: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			c := m.Begin(ReadCommitted)
			m.Commit(c)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	b := m.Begin(ReadCommitted)
	err := m.Lock(b, "row:t:1", Exclusive)
	if kind, ok := common.KindOf(err); !ok || kind != common.KindConcurrencyError {
		t.Fatalf("Lock timeout error kind = (%v, %v), want (%v, true)", kind, ok, common.KindConcurrencyError)
	}
}
