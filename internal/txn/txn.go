// Package txn implements two-phase locking, isolation levels, deadlock
// detection and savepoints over arbitrary string-keyed resources (spec
// §5 Concurrency & Resource Model). Resource keys are caller-defined —
// typically "table:<name>" for table-level intent locks and
// "row:<table>:<pk>" for row-level locks.
package txn

import (
	"time"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// IsolationLevel selects how much of another transaction's uncommitted or
// concurrently-committed state this transaction may observe.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

// Mode is a lock mode. The intent modes let a transaction declare "I will
// take row locks under this table" without taking a full table lock,
// matching standard multi-granularity locking.
type Mode int

const (
	IntentShared Mode = iota
	IntentExclusive
	Shared
	Exclusive
)

// compatible reports whether a and b may both be held on the same
// resource at once.
func compatible(a, b Mode) bool {
	switch a {
	case IntentShared:
		return b != Exclusive
	case IntentExclusive:
		return b == IntentShared || b == IntentExclusive
	case Shared:
		return b == IntentShared || b == Shared
	case Exclusive:
		return false
	}
	return false
}

// State is a transaction's lifecycle phase.
type State int

const (
	Active State = iota
	Committed
	Aborted
)

// Savepoint marks a point a transaction can roll back to without aborting
// entirely: its name and the WAL LSN at the time it was taken. The lock set
// is not recorded.
type Savepoint struct {
	Name string
	LSN  uint64
}

// Transaction tracks one session's lock set, isolation level and
// savepoints. The growing/shrinking phase required by two-phase locking is
// enforced by Manager: once a transaction's first unlock happens (at
// Commit/Abort) it may acquire no further locks.
type Transaction struct {
	ID         uint64
	Isolation  IsolationLevel
	State      State
	StartedAt  time.Time
	Savepoints []Savepoint
	locks      map[string]Mode
}

func newTransaction(id uint64, isolation IsolationLevel, now time.Time) *Transaction {
	return &Transaction{ID: id, Isolation: isolation, State: Active, StartedAt: now, locks: make(map[string]Mode)}
}

// HeldMode reports the mode this transaction currently holds on resource,
// if any.
func (t *Transaction) HeldMode(resource string) (Mode, bool) {
	m, ok := t.locks[resource]
	return m, ok
}

var ErrWouldDeadlock = common.Retry(common.KindConcurrencyError, "transaction would deadlock; aborted")
var ErrLockTimeout = common.Retry(common.KindConcurrencyError, "timed out waiting for lock")
var ErrNotActive = common.New(common.KindInvalidInput, "transaction is not active")
