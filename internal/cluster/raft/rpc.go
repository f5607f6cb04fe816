package raft

import (
	"time"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// The five RPC request/response shapes are exactly those spec §4.K lists.

type HandshakeRequest struct {
	NodeID          string
	Address         string
	ProtocolVersion uint32
}

type HandshakeResponse struct {
	NodeID  string
	Success bool
}

type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	LeaderCommit uint64
}

type AppendEntriesResponse struct {
	Term          uint64
	Success       bool
	MatchIndex    uint64
	ConflictIndex uint64
	ConflictTerm  uint64
}

type RequestVoteRequest struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
	IsPreVote    bool
}

type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

type HeartbeatRequest struct {
	From        string
	TimestampMs int64
}

type HeartbeatResponse struct {
	From        string
	TimestampMs int64
}

type InstallSnapshotRequest struct {
	Term              uint64
	LeaderID          string
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Offset            int64
	Data              []byte
	Done              bool
}

type InstallSnapshotResponse struct {
	Term uint64
}

// Handshake confirms identity and protocol compatibility before a peer is
// added to the peers table (spec §4.K). A version below MinCompatibleVersion
// is rejected, not errored, so the caller can decide whether to retry or
// give up.
func (n *Node) Handshake(req HandshakeRequest) HandshakeResponse {
	if req.ProtocolVersion < MinCompatibleVersion {
		n.log.Warn().Str("peer", req.NodeID).Uint32("version", req.ProtocolVersion).
			Msg("rejecting handshake: incompatible protocol version")
		return HandshakeResponse{NodeID: n.cfg.NodeID, Success: false}
	}
	n.AddPeer(Peer{
		NodeID:          req.NodeID,
		Address:         req.Address,
		Connected:       true,
		ProtocolVersion: req.ProtocolVersion,
		LastContactMs:   n.clock.Now().UnixMilli(),
	})
	return HandshakeResponse{NodeID: n.cfg.NodeID, Success: true}
}

// Heartbeat is the liveness RPC; it also resets the follower's election
// timer, matching the teacher's RTTs-as-liveness idiom.
func (n *Node) Heartbeat(req HeartbeatRequest) HeartbeatResponse {
	n.mu.Lock()
	n.electionResetAt = n.clock.Now()
	n.mu.Unlock()
	return HeartbeatResponse{From: n.cfg.NodeID, TimestampMs: n.clock.Now().UnixMilli()}
}

// RequestVote implements the standard Raft vote rule plus pre-vote (spec
// §4.K): a pre-vote never increments currentTerm or records votedFor, so a
// partitioned node that keeps calling elections can't disrupt the cluster
// once it rejoins.
func (n *Node) RequestVote(req RequestVoteRequest) RequestVoteResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term < n.currentTerm {
		return RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}
	}
	if req.Term > n.currentTerm && !req.IsPreVote {
		n.currentTerm = req.Term
		n.votedFor = ""
		n.state = Follower
	}

	lastIdx, lastTerm := n.lastLogIndexTerm()
	logUpToDate := req.LastLogTerm > lastTerm ||
		(req.LastLogTerm == lastTerm && req.LastLogIndex >= lastIdx)

	canVote := n.votedFor == "" || n.votedFor == req.CandidateID
	granted := canVote && logUpToDate

	if granted && !req.IsPreVote {
		n.votedFor = req.CandidateID
		n.electionResetAt = n.clock.Now()
	}
	return RequestVoteResponse{Term: n.currentTerm, VoteGranted: granted}
}

// AppendEntries is the leader's log-replication and heartbeat RPC. It
// performs real prev-log-index/term matching (spec §9 flags the source's
// unconditional `success=true` as a bug this rewrite does not carry
// forward): a mismatch at PrevLogIndex returns a conflict hint the leader
// uses to back off its nextIndex for this follower efficiently, rather than
// retrying one index at a time.
func (n *Node) AppendEntries(req AppendEntriesRequest) AppendEntriesResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term < n.currentTerm {
		return AppendEntriesResponse{Term: n.currentTerm, Success: false}
	}
	if req.Term > n.currentTerm {
		n.currentTerm = req.Term
		n.votedFor = ""
	}
	n.state = Follower
	n.electionResetAt = n.clock.Now()

	lastIdx, _ := n.lastLogIndexTerm()
	if req.PrevLogIndex > lastIdx {
		return AppendEntriesResponse{
			Term: n.currentTerm, Success: false,
			ConflictIndex: lastIdx + 1, ConflictTerm: 0,
		}
	}
	if req.PrevLogIndex > 0 {
		prevTerm := n.entries[req.PrevLogIndex].Term
		if prevTerm != req.PrevLogTerm {
			conflictTerm := prevTerm
			conflictIndex := req.PrevLogIndex
			for conflictIndex > 1 && n.entries[conflictIndex-1].Term == conflictTerm {
				conflictIndex--
			}
			return AppendEntriesResponse{
				Term: n.currentTerm, Success: false,
				ConflictIndex: conflictIndex, ConflictTerm: conflictTerm,
			}
		}
	}

	// Truncate any conflicting suffix, then append the new entries.
	insertAt := req.PrevLogIndex + 1
	for i, e := range req.Entries {
		idx := insertAt + uint64(i)
		if idx < uint64(len(n.entries)) && n.entries[idx].Term == e.Term {
			continue // already present with the same term: keep it
		}
		n.entries = append(n.entries[:idx], e)
	}
	lastNew := req.PrevLogIndex + uint64(len(req.Entries))

	if req.LeaderCommit > n.commitIndex && lastNew > n.commitIndex {
		n.commitIndex = min64(req.LeaderCommit, lastNew)
		n.applyCommitted()
	}

	return AppendEntriesResponse{Term: n.currentTerm, Success: true, MatchIndex: lastNew}
}

// applyCommitted hands every entry between lastApplied and commitIndex to
// the FSM, in order. Caller must hold n.mu.
func (n *Node) applyCommitted() {
	for n.lastApplied < n.commitIndex {
		n.lastApplied++
		entry := n.entries[n.lastApplied]
		if n.fsm == nil {
			continue
		}
		if err := n.fsm.Apply(entry); err != nil {
			n.log.Error().Err(err).Uint64("index", entry.Index).Msg("fsm apply failed")
		}
	}
}

// InstallSnapshot is handled as a single-shot transfer: a request with
// Done=false is acknowledged and its Data discarded, so only the final
// chunk's Data reaches restore. On that final chunk the node replaces its
// whole log with a sentinel entry at the snapshot boundary.
func (n *Node) InstallSnapshot(req InstallSnapshotRequest, restore func(data []byte) error) (InstallSnapshotResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term < n.currentTerm {
		return InstallSnapshotResponse{Term: n.currentTerm}, nil
	}
	if !req.Done {
		return InstallSnapshotResponse{Term: n.currentTerm}, nil
	}
	if restore != nil {
		if err := restore(req.Data); err != nil {
			return InstallSnapshotResponse{}, common.Wrap(common.KindIOError, err, "installing snapshot")
		}
	}
	n.entries = []LogEntry{{Term: req.LastIncludedTerm, Index: req.LastIncludedIndex}}
	n.commitIndex = req.LastIncludedIndex
	n.lastApplied = req.LastIncludedIndex
	return InstallSnapshotResponse{Term: n.currentTerm}, nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// electionTimedOut reports whether more than the node's randomized election
// timeout has elapsed since the last heartbeat/vote/append was observed.
func (n *Node) electionTimedOut(timeout time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clock.Now().Sub(n.electionResetAt) >= timeout
}
