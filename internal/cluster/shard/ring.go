// Package shard implements the consistent-hash shard manager (spec §4.L):
// a virtual-node ring for key→node routing, plus the rebalance lifecycle
// that moves shards between nodes as membership changes. No pack example is
// a structural match — torua's shard registry uses FNV-1a over a fixed
// shard count with round-robin assignment, not a virtual-node ring — so the
// ring algorithm itself is built from the standard consistent-hashing
// construction and documented here rather than grounded on a specific pack
// file (see DESIGN.md).
package shard

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// Config bounds the ring and its rebalancer (spec §6's sharding surface).
type Config struct {
	VirtualNodes          int
	ReplicationFactor     int
	MaxConcurrentTransfers int
}

func DefaultConfig() Config {
	return Config{VirtualNodes: 32, ReplicationFactor: 3, MaxConcurrentTransfers: 4}
}

type ringPoint struct {
	hash   uint64
	nodeID string
}

// Manager owns the ring, the shard table, and in-flight transfers behind a
// single read/write lock (spec §5: "Shard manager state: single internal
// read/write lock over {ring, shards, node_shards, transfers,
// rebalancing}").
type Manager struct {
	mu sync.RWMutex

	cfg Config
	log zerolog.Logger

	ring  []ringPoint
	nodes map[string]bool

	shards     map[string]*Shard
	nodeShards map[string]map[string]bool // nodeID -> set of shard ids it hosts as primary

	transfers       map[string]*Transfer
	rebalancing     bool
	rebalanceStart  int64
	rebalancePlan   int
	nextTransferID  uint64
}

// Shard is one unit of data placement.
type Shard struct {
	ID          string
	PrimaryNode string
	State       ShardState
}

type ShardState string

const (
	ShardActive      ShardState = "active"
	ShardTransferring ShardState = "transferring"
)

func New(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:        cfg,
		log:        log.With().Str("component", "shard-manager").Logger(),
		nodes:      make(map[string]bool),
		shards:     make(map[string]*Shard),
		nodeShards: make(map[string]map[string]bool),
		transfers:  make(map[string]*Transfer),
	}
}

func hashKey(s string) uint64 { return xxhash.Sum64String(s) }

// AddNode inserts cfg.VirtualNodes ring points for id and re-sorts the ring
// (spec §4.L). Returns AlreadyExists if id is already a member.
func (m *Manager) AddNode(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nodes[id] {
		return common.New(common.KindAlreadyExists, "node %q already in ring", id)
	}
	m.nodes[id] = true
	for i := 0; i < m.cfg.VirtualNodes; i++ {
		m.ring = append(m.ring, ringPoint{hash: hashKey(fmt.Sprintf("%s#%d", id, i)), nodeID: id})
	}
	sort.Slice(m.ring, func(i, j int) bool { return m.ring[i].hash < m.ring[j].hash })
	return nil
}

// RemoveNode drops every ring point for id.
func (m *Manager) RemoveNode(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.nodes[id] {
		return common.New(common.KindNotFound, "node %q not in ring", id)
	}
	delete(m.nodes, id)
	filtered := m.ring[:0]
	for _, p := range m.ring {
		if p.nodeID != id {
			filtered = append(filtered, p)
		}
	}
	m.ring = filtered
	return nil
}

// GetPrimaryNode hashes key and binary-searches the sorted ring, wrapping
// on overshoot (spec §4.L).
func (m *Manager) GetPrimaryNode(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.ring) == 0 {
		return "", common.New(common.KindCorruptState, "hash ring is empty")
	}
	return m.walkPrimaryLocked(key), nil
}

func (m *Manager) walkPrimaryLocked(key string) string {
	h := hashKey(key)
	idx := sort.Search(len(m.ring), func(i int) bool { return m.ring[i].hash >= h })
	if idx == len(m.ring) {
		idx = 0
	}
	return m.ring[idx].nodeID
}

// GetNodesForKey returns the primary plus the next ReplicationFactor-1
// distinct nodes walking the ring clockwise from the primary's point. If
// fewer distinct nodes exist than requested, it returns what is available
// and the caller is expected to treat that as a best-effort result (spec
// §4.L edge case).
func (m *Manager) GetNodesForKey(key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.ring) == 0 {
		return nil, common.New(common.KindCorruptState, "hash ring is empty")
	}

	h := hashKey(key)
	start := sort.Search(len(m.ring), func(i int) bool { return m.ring[i].hash >= h })
	if start == len(m.ring) {
		start = 0
	}

	seen := make(map[string]bool, m.cfg.ReplicationFactor)
	var out []string
	for i := 0; i < len(m.ring) && len(out) < m.cfg.ReplicationFactor; i++ {
		p := m.ring[(start+i)%len(m.ring)]
		if seen[p.nodeID] {
			continue
		}
		seen[p.nodeID] = true
		out = append(out, p.nodeID)
	}
	if len(out) < m.cfg.ReplicationFactor {
		m.log.Warn().Str("key", key).Int("want", m.cfg.ReplicationFactor).Int("got", len(out)).
			Msg("insufficient distinct nodes for replication factor, returning best effort")
	}
	return out, nil
}

// GetNodeShards lists shard ids for which node is the recorded primary.
func (m *Manager) GetNodeShards(node string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.nodeShards[node]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// GetShard returns a copy of the shard record, or NotFound.
func (m *Manager) GetShard(shardID string) (Shard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shards[shardID]
	if !ok {
		return Shard{}, common.New(common.KindNotFound, "shard %q not found", shardID)
	}
	return *s, nil
}

// RegisterShard records a shard and its current primary, used to seed the
// manager's state (e.g. at startup, or in tests) before rebalancing logic
// runs against it.
func (m *Manager) RegisterShard(shardID, primary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerShardLocked(shardID, primary)
}

func (m *Manager) registerShardLocked(shardID, primary string) {
	m.shards[shardID] = &Shard{ID: shardID, PrimaryNode: primary, State: ShardActive}
	if m.nodeShards[primary] == nil {
		m.nodeShards[primary] = make(map[string]bool)
	}
	m.nodeShards[primary][shardID] = true
}
