package txn

import (
	"sync"
	"time"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// DefaultLockTimeout is the fallback a lock wait gives up after even if the
// wait-for graph shows no cycle, guarding against pathological starvation.
const DefaultLockTimeout = 5 * time.Second

type lockEntry struct {
	holders map[uint64]Mode
}

// Manager is the two-phase lock manager: it grants/blocks lock requests,
// maintains the wait-for graph for deadlock detection, and tracks
// transaction lifecycle (spec §5).
type Manager struct {
	mu   sync.Mutex
	cond *sync.Cond
	clock common.Clock

	nextTxnID   uint64
	txns        map[uint64]*Transaction
	resources   map[string]*lockEntry
	waitFor     map[uint64]map[uint64]bool // waiter -> set of holders it waits on
	lockTimeout time.Duration
}

// NewManager creates a lock manager. clock defaults to common.RealClock{}.
func NewManager(clock common.Clock) *Manager {
	if clock == nil {
		clock = common.RealClock{}
	}
	m := &Manager{
		clock:       clock,
		txns:        make(map[uint64]*Transaction),
		resources:   make(map[string]*lockEntry),
		waitFor:     make(map[uint64]map[uint64]bool),
		lockTimeout: DefaultLockTimeout,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Begin starts a new transaction at the given isolation level.
func (m *Manager) Begin(isolation IsolationLevel) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxnID++
	t := newTransaction(m.nextTxnID, isolation, m.clock.Now())
	m.txns[t.ID] = t
	return t
}

// Lock acquires mode on resource for txn, blocking until compatible,
// detecting deadlock (aborting the youngest transaction in the cycle), or
// timing out, whichever comes first. Acquiring any lock after the
// transaction has started releasing locks (Commit/Abort already called) is
// a two-phase-locking violation and returns ErrNotActive.
func (m *Manager) Lock(txn *Transaction, resource string, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn.State != Active {
		return ErrNotActive
	}
	// A held lock of the same or a stronger mode already covers the request:
	// Exclusive covers every mode, and every mode covers IntentShared.
	if held, ok := txn.locks[resource]; ok && (held == mode || held == Exclusive || mode == IntentShared) {
		return nil
	}

	deadline := m.clock.Now().Add(m.lockTimeout)
	for {
		entry, ok := m.resources[resource]
		if !ok {
			entry = &lockEntry{holders: make(map[uint64]Mode)}
			m.resources[resource] = entry
		}

		if m.grantableLocked(entry, txn.ID, mode) {
			entry.holders[txn.ID] = mode
			txn.locks[resource] = mode
			delete(m.waitFor, txn.ID)
			m.cond.Broadcast()
			return nil
		}

		m.waitFor[txn.ID] = holderSet(entry, txn.ID)
		if cycle := m.findCycleLocked(txn.ID); cycle != nil {
			victim := m.youngestLocked(cycle)
			if victim == txn.ID {
				delete(m.waitFor, txn.ID)
				return ErrWouldDeadlock
			}
			m.abortLocked(victim)
			continue
		}

		if m.clock.Now().After(deadline) {
			delete(m.waitFor, txn.ID)
			return ErrLockTimeout
		}
		m.cond.Wait()
	}
}

func holderSet(entry *lockEntry, exclude uint64) map[uint64]bool {
	s := make(map[uint64]bool, len(entry.holders))
	for id := range entry.holders {
		if id != exclude {
			s[id] = true
		}
	}
	return s
}

func (m *Manager) grantableLocked(entry *lockEntry, txnID uint64, mode Mode) bool {
	for holderID, holderMode := range entry.holders {
		if holderID == txnID {
			continue
		}
		if !compatible(holderMode, mode) {
			return false
		}
	}
	return true
}

// findCycleLocked walks the wait-for graph from start via DFS, returning
// the set of transaction ids on a cycle if one is reachable.
func (m *Manager) findCycleLocked(start uint64) []uint64 {
	visited := make(map[uint64]bool)
	var stack []uint64

	var dfs func(uint64) []uint64
	dfs = func(node uint64) []uint64 {
		if node == start && len(stack) > 0 {
			return append(append([]uint64(nil), stack...), node)
		}
		if visited[node] {
			return nil
		}
		visited[node] = true
		stack = append(stack, node)
		for next := range m.waitFor[node] {
			if found := dfs(next); found != nil {
				return found
			}
		}
		stack = stack[:len(stack)-1]
		return nil
	}

	for next := range m.waitFor[start] {
		if found := dfs(next); found != nil {
			return append([]uint64{start}, found...)
		}
	}
	return nil
}

func (m *Manager) youngestLocked(cycle []uint64) uint64 {
	var youngest uint64
	var youngestAt time.Time
	for _, id := range cycle {
		t, ok := m.txns[id]
		if !ok {
			continue
		}
		if youngest == 0 || t.StartedAt.After(youngestAt) {
			youngest = id
			youngestAt = t.StartedAt
		}
	}
	return youngest
}

// abortLocked releases every lock held by txnID, marks it Aborted and
// wakes all waiters (m.mu is already held).
func (m *Manager) abortLocked(txnID uint64) {
	t, ok := m.txns[txnID]
	if !ok {
		return
	}
	t.State = Aborted
	for resource := range t.locks {
		if entry, ok := m.resources[resource]; ok {
			delete(entry.holders, txnID)
		}
	}
	t.locks = make(map[string]Mode)
	delete(m.waitFor, txnID)
	m.cond.Broadcast()
}

// Commit releases every lock held by txn and marks it Committed. Once
// called, txn may not acquire further locks (two-phase locking: Commit is
// the start of the shrinking phase).
func (m *Manager) Commit(txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn.State != Active {
		return ErrNotActive
	}
	txn.State = Committed
	for resource := range txn.locks {
		if entry, ok := m.resources[resource]; ok {
			delete(entry.holders, txn.ID)
		}
	}
	txn.locks = make(map[string]Mode)
	m.cond.Broadcast()
	return nil
}

// Abort releases every lock held by txn and marks it Aborted.
func (m *Manager) Abort(txn *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abortLocked(txn.ID)
}
