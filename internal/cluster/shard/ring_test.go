package shard

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return New(DefaultConfig(), zerolog.Nop())
}

func TestAddNodeRejectsDuplicate(t *testing.T) {
	m := newTestManager(t)
	if err := m.AddNode("n1"); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	err := m.AddNode("n1")
	if err == nil {
		t.Fatal("AddNode should reject a duplicate node id")
	}
	if kind, ok := common.KindOf(err); !ok || kind != common.KindAlreadyExists {
		t.Fatalf("err kind = %v, want KindAlreadyExists", kind)
	}
}

func TestGetPrimaryNodeEmptyRingFails(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetPrimaryNode("key")
	if err == nil {
		t.Fatal("GetPrimaryNode should fail on an empty ring")
	}
}

func TestGetPrimaryNodeIsDeterministic(t *testing.T) {
	m := newTestManager(t)
	m.AddNode("n1")
	m.AddNode("n2")
	m.AddNode("n3")

	first, err := m.GetPrimaryNode("user:42")
	if err != nil {
		t.Fatalf("GetPrimaryNode: %v", err)
	}
	for i := 0; i < 5; i++ {
		got, err := m.GetPrimaryNode("user:42")
		if err != nil {
			t.Fatalf("GetPrimaryNode: %v", err)
		}
		if got != first {
			t.Fatalf("GetPrimaryNode(user:42) = %q on repeat call, want consistently %q", got, first)
		}
	}
}

func TestGetPrimaryNodeDistributesAcrossNodes(t *testing.T) {
	m := newTestManager(t)
	m.AddNode("n1")
	m.AddNode("n2")
	m.AddNode("n3")

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		node, err := m.GetPrimaryNode(keyFor(i))
		if err != nil {
			t.Fatalf("GetPrimaryNode: %v", err)
		}
		seen[node] = true
	}
	if len(seen) != 3 {
		t.Fatalf("seen = %v, want all 3 nodes represented across 200 keys", seen)
	}
}

func keyFor(i int) string {
	return "key-" + string(rune('a'+i%26)) + string(rune('0'+i%10))
}

func TestRemoveNodeDropsItsRingPoints(t *testing.T) {
	m := newTestManager(t)
	m.AddNode("n1")
	m.AddNode("n2")
	if err := m.RemoveNode("n1"); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if err := m.RemoveNode("n1"); err == nil {
		t.Fatal("RemoveNode should fail for a node no longer in the ring")
	}
	node, err := m.GetPrimaryNode("anything")
	if err != nil {
		t.Fatalf("GetPrimaryNode: %v", err)
	}
	if node != "n2" {
		t.Fatalf("GetPrimaryNode = %q, want n2 (the only remaining node)", node)
	}
}

func TestGetNodesForKeyReturnsDistinctNodesUpToReplicationFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplicationFactor = 2
	m := New(cfg, zerolog.Nop())
	m.AddNode("n1")
	m.AddNode("n2")
	m.AddNode("n3")

	nodes, err := m.GetNodesForKey("user:7")
	if err != nil {
		t.Fatalf("GetNodesForKey: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("nodes = %v, want 2 distinct nodes", nodes)
	}
	if nodes[0] == nodes[1] {
		t.Fatalf("nodes = %v, want distinct entries", nodes)
	}
}

func TestGetNodesForKeyBestEffortWithFewerNodesThanReplicationFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplicationFactor = 5
	m := New(cfg, zerolog.Nop())
	m.AddNode("n1")
	m.AddNode("n2")

	nodes, err := m.GetNodesForKey("user:7")
	if err != nil {
		t.Fatalf("GetNodesForKey: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("nodes = %v, want both available nodes when fewer exist than ReplicationFactor", nodes)
	}
}

func TestRegisterShardAndGetShard(t *testing.T) {
	m := newTestManager(t)
	m.RegisterShard("shard-1", "n1")

	s, err := m.GetShard("shard-1")
	if err != nil {
		t.Fatalf("GetShard: %v", err)
	}
	if s.PrimaryNode != "n1" || s.State != ShardActive {
		t.Fatalf("Shard = %+v, want primary n1 and Active state", s)
	}
	if shards := m.GetNodeShards("n1"); len(shards) != 1 || shards[0] != "shard-1" {
		t.Fatalf("GetNodeShards(n1) = %v, want [shard-1]", shards)
	}
}

func TestGetShardUnknownFails(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.GetShard("ghost"); err == nil {
		t.Fatal("GetShard should fail for an unregistered shard")
	}
}
