package shard

import (
	"fmt"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferInProgress TransferStatus = "in_progress"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
	TransferCancelled  TransferStatus = "cancelled"
)

// Transfer is one shard's planned or in-flight move from one node to
// another (spec §4.L).
type Transfer struct {
	ID           string
	ShardID      string
	FromNode     string
	ToNode       string
	Status       TransferStatus
	TotalBytes   int64
	TotalKeys    int64
	BytesDone    int64
	KeysDone     int64
	StartedAtMs  int64
	CompletedMs  int64
	Error        string
}

func (m *Manager) nextTransferIDLocked() string {
	m.nextTransferID++
	return fmt.Sprintf("xfer-%d", m.nextTransferID)
}

// StartRebalance computes, for every registered shard, whether its expected
// ring primary differs from its recorded primary; for each mismatch it
// emits a Pending ShardTransfer (spec §4.L step 1). Refuses if a rebalance
// is already in progress.
func (m *Manager) StartRebalance(nowMs int64) ([]*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rebalancing {
		return nil, common.New(common.KindClusterError, "rebalance already in progress")
	}
	if len(m.ring) == 0 {
		return nil, common.New(common.KindCorruptState, "hash ring is empty")
	}

	var plan []*Transfer
	for id, s := range m.shards {
		expected := m.walkPrimaryLocked(id)
		if expected == s.PrimaryNode {
			continue
		}
		t := &Transfer{
			ID: m.nextTransferIDLocked(), ShardID: id,
			FromNode: s.PrimaryNode, ToNode: expected,
			Status: TransferPending, StartedAtMs: nowMs,
		}
		m.transfers[t.ID] = t
		plan = append(plan, t)
	}

	m.rebalancing = true
	m.rebalanceStart = nowMs
	m.rebalancePlan = len(plan)
	return plan, nil
}

// StartTransfer enforces MaxConcurrentTransfers, flips the shard to
// Transferring and the transfer to InProgress (spec §4.L step 2).
func (m *Manager) StartTransfer(transferID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[transferID]
	if !ok {
		return common.New(common.KindNotFound, "transfer %q not found", transferID)
	}
	if t.Status != TransferPending {
		return common.New(common.KindInvalidInput, "transfer %q is not pending", transferID)
	}
	if m.countInProgressLocked() >= m.cfg.MaxConcurrentTransfers {
		return common.New(common.KindClusterError, "max concurrent transfers (%d) reached", m.cfg.MaxConcurrentTransfers)
	}
	t.Status = TransferInProgress
	if s, ok := m.shards[t.ShardID]; ok {
		s.State = ShardTransferring
	}
	return nil
}

func (m *Manager) countInProgressLocked() int {
	n := 0
	for _, t := range m.transfers {
		if t.Status == TransferInProgress {
			n++
		}
	}
	return n
}

// UpdateTransferProgress records bytes/keys moved so far (spec §4.L step 3).
func (m *Manager) UpdateTransferProgress(transferID string, bytes, keys int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[transferID]
	if !ok {
		return common.New(common.KindNotFound, "transfer %q not found", transferID)
	}
	t.BytesDone, t.KeysDone = bytes, keys
	return nil
}

// CompleteTransfer marks the transfer Completed, reassigns the shard's
// primary to the target node, and moves the shard id between the nodes'
// shard lists (spec §4.L step 4).
func (m *Manager) CompleteTransfer(transferID string, nowMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[transferID]
	if !ok {
		return common.New(common.KindNotFound, "transfer %q not found", transferID)
	}
	t.Status = TransferCompleted
	t.CompletedMs = nowMs

	s, ok := m.shards[t.ShardID]
	if !ok {
		return common.New(common.KindNotFound, "shard %q not found", t.ShardID)
	}
	if old := m.nodeShards[s.PrimaryNode]; old != nil {
		delete(old, s.ID)
	}
	s.PrimaryNode = t.ToNode
	s.State = ShardActive
	if m.nodeShards[t.ToNode] == nil {
		m.nodeShards[t.ToNode] = make(map[string]bool)
	}
	m.nodeShards[t.ToNode][s.ID] = true
	return nil
}

// FailTransfer marks the transfer Failed without aborting rebalancing
// globally (spec §7: "Transfer failures do not abort rebalancing globally").
func (m *Manager) FailTransfer(transferID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[transferID]
	if !ok {
		return common.New(common.KindNotFound, "transfer %q not found", transferID)
	}
	t.Status = TransferFailed
	t.Error = reason
	if s, ok := m.shards[t.ShardID]; ok {
		s.State = ShardActive
	}
	return nil
}

// CompleteRebalance clears the rebalancing flag. It does not validate that
// every transfer finished — callers observe RebalanceProgress for that.
func (m *Manager) CompleteRebalance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebalancing = false
}

// CancelRebalance marks every Pending/InProgress transfer Cancelled and
// resets any Transferring shard back to Active (spec §4.L step 6).
func (m *Manager) CancelRebalance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.Status == TransferPending || t.Status == TransferInProgress {
			t.Status = TransferCancelled
			if s, ok := m.shards[t.ShardID]; ok && s.State == ShardTransferring {
				s.State = ShardActive
			}
		}
	}
	m.rebalancing = false
}

// IsRebalancing reports whether a rebalance is currently in progress.
func (m *Manager) IsRebalancing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rebalancing
}

// RebalanceProgress summarizes the current rebalance (spec §4.L).
type RebalanceProgress struct {
	Pending        int
	InProgress     int
	Completed      int
	Failed         int
	Cancelled      int
	BytesTotal     int64
	BytesDone      int64
	ThroughputBps  float64
	ETASeconds     float64
}

// Progress computes RebalanceProgress from the current transfer set.
// elapsedSeconds is supplied by the caller (no wall-clock access here) so
// the computation stays deterministic for tests.
func (m *Manager) Progress(elapsedSeconds float64) RebalanceProgress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var p RebalanceProgress
	for _, t := range m.transfers {
		switch t.Status {
		case TransferPending:
			p.Pending++
		case TransferInProgress:
			p.InProgress++
		case TransferCompleted:
			p.Completed++
		case TransferFailed:
			p.Failed++
		case TransferCancelled:
			p.Cancelled++
		}
		p.BytesTotal += t.TotalBytes
		p.BytesDone += t.BytesDone
	}
	if elapsedSeconds > 0 {
		p.ThroughputBps = float64(p.BytesDone) / elapsedSeconds
	}
	if p.ThroughputBps > 0 {
		remaining := p.BytesTotal - p.BytesDone
		if remaining > 0 {
			p.ETASeconds = float64(remaining) / p.ThroughputBps
		}
	}
	return p
}

// CalculateNodeJoinTransfers produces the transfer plan a newly-added node
// would trigger, without mutating any state (spec §4.L): it re-derives each
// shard's expected primary against the current ring (which must already
// include the new node) and emits a Pending-shaped Transfer for every
// mismatch.
func (m *Manager) CalculateNodeJoinTransfers(newNode string) []*Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Transfer
	for id, s := range m.shards {
		expected := m.walkPrimaryLocked(id)
		if expected != newNode || expected == s.PrimaryNode {
			continue
		}
		out = append(out, &Transfer{
			ShardID: id, FromNode: s.PrimaryNode, ToNode: newNode, Status: TransferPending,
		})
	}
	return out
}

// CalculateNodeLeaveTransfers produces one transfer per shard whose
// PrimaryNode is leavingNode, each targeting that shard's new expected
// primary on the current ring (spec §4.L, S4: "ring must already have the
// node removed before calling this").
func (m *Manager) CalculateNodeLeaveTransfers(leavingNode string) []*Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Transfer
	for id, s := range m.shards {
		if s.PrimaryNode != leavingNode {
			continue
		}
		target := m.walkPrimaryLocked(id)
		out = append(out, &Transfer{
			ShardID: id, FromNode: leavingNode, ToNode: target, Status: TransferPending,
		})
	}
	return out
}
