// Package raft implements the engine's own Raft-style replication protocol
// (spec §4.K): a byte-framed wire format over plain TCP connections, a
// three-state node state machine, and prev-log-index/term matching for
// AppendEntries — not a wrapper over github.com/hashicorp/raft, whose
// generic log/FSM abstraction would hide the exact RPC shapes this engine
// specifies (see DESIGN.md).
package raft

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// State is one of the three Raft roles.
type State string

const (
	Follower  State = "follower"
	Candidate State = "candidate"
	Leader    State = "leader"
)

// MinCompatibleVersion is the lowest protocol version this build accepts in
// a Handshake; peers below it are rejected (spec §6).
const MinCompatibleVersion = 1

// ProtocolVersion is the version this build advertises in every Handshake.
const ProtocolVersion = 1

// LogEntry is one replicated command.
type LogEntry struct {
	Term    uint64
	Index   uint64
	Command []byte
}

// Config bounds election timing and snapshotting (spec §6's cluster.raft
// configuration surface).
type Config struct {
	NodeID              string
	HeartbeatInterval   time.Duration
	ElectionTimeoutMin  time.Duration
	ElectionTimeoutMax  time.Duration
	SnapshotThreshold   int
}

func DefaultConfig(nodeID string) Config {
	return Config{
		NodeID:             nodeID,
		HeartbeatInterval:  50 * time.Millisecond,
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		SnapshotThreshold:  10000,
	}
}

// FSM is applied the commands a log entry carries once committed, mirroring
// cuemby/warren's WarrenFSM.Apply command-dispatch idiom — a single
// json-enveloped Command with an Op field switched on, rather than one
// method per operation.
type FSM interface {
	Apply(entry LogEntry) error
}

// Peer tracks one remote node's connection health (spec §4.K).
type Peer struct {
	NodeID          string
	Address         string
	Connected       bool
	LastContactMs   int64
	ProtocolVersion uint32
}

// Node is one member of the Raft cluster: it holds the replicated log, the
// current term/role, and the peers table, and exposes the five RPCs spec
// §4.K lists. It does not own the network listener — Transport does, and
// calls into Node's RPC handlers.
type Node struct {
	mu sync.Mutex

	cfg   Config
	clock common.Clock
	log   zerolog.Logger
	fsm   FSM

	state       State
	currentTerm uint64
	votedFor    string
	entries     []LogEntry // entries[0] is a sentinel at index 0; real entries start at 1
	commitIndex uint64
	lastApplied uint64

	// Leader-only volatile state.
	nextIndex  map[string]uint64
	matchIndex map[string]uint64

	peers map[string]*Peer

	electionResetAt time.Time
}

// NewNode creates a Raft node in the Follower state with an empty log.
func NewNode(cfg Config, fsm FSM, clock common.Clock, log zerolog.Logger) *Node {
	if clock == nil {
		clock = common.RealClock{}
	}
	n := &Node{
		cfg:        cfg,
		clock:      clock,
		log:        log.With().Str("component", "raft").Str("node_id", cfg.NodeID).Logger(),
		fsm:        fsm,
		state:      Follower,
		entries:    []LogEntry{{Term: 0, Index: 0}},
		nextIndex:  make(map[string]uint64),
		matchIndex: make(map[string]uint64),
		peers:      make(map[string]*Peer),
	}
	n.electionResetAt = clock.Now()
	return n
}

// State returns the node's current role.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Term returns the node's current term.
func (n *Node) Term() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentTerm
}

// AppliedIndex returns the highest log index this node has applied to its
// FSM, used by the replica coordinator (spec §4.M) to decide whether a
// ReadCommitted/ReadUncommitted read may be served locally.
func (n *Node) AppliedIndex() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastApplied
}

func (n *Node) lastLogIndexTerm() (uint64, uint64) {
	last := n.entries[len(n.entries)-1]
	return last.Index, last.Term
}

// AddPeer records a peer after a successful Handshake (spec §4.K: "new
// peers are added after a successful handshake").
func (n *Node) AddPeer(p Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[p.NodeID] = &p
}

// RemovePeer drops a peer from the table, e.g. on permanent departure.
func (n *Node) RemovePeer(nodeID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, nodeID)
}

// Peers returns a snapshot of the peers table.
func (n *Node) Peers() []Peer {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, *p)
	}
	return out
}

// MarkDisconnected clears a peer's Connected flag. The Driver calls it when
// an AppendEntries RPC to that peer fails; the peer is sent to again on the
// next heartbeat tick with no backoff, and Connected is not consulted before
// sending.
func (n *Node) MarkDisconnected(nodeID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.peers[nodeID]; ok {
		p.Connected = false
	}
}

// electionTimeout returns a randomized interval within
// [ElectionTimeoutMin, ElectionTimeoutMax), per spec §4.K.
func (n *Node) electionTimeout() time.Duration {
	lo, hi := n.cfg.ElectionTimeoutMin, n.cfg.ElectionTimeoutMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

// Propose appends a new entry to the leader's log. Returns ClusterError if
// this node is not currently the leader — callers (the replica coordinator,
// spec §4.M) must forward the write to the leader instead.
func (n *Node) Propose(command []byte) (LogEntry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != Leader {
		return LogEntry{}, common.New(common.KindClusterError, "node %s is not the leader", n.cfg.NodeID)
	}
	lastIdx, _ := n.lastLogIndexTerm()
	entry := LogEntry{Term: n.currentTerm, Index: lastIdx + 1, Command: command}
	n.entries = append(n.entries, entry)
	return entry, nil
}
