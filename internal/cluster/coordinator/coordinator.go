// Package coordinator implements the replica coordinator glue (spec §4.M):
// for each write it asks the shard manager for the key's primary, proposes
// the write through Raft if local, applies on commit, or forwards to the
// owning primary otherwise.
package coordinator

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/neuroquantum/neuroquantumdb/internal/cluster/raft"
	"github.com/neuroquantum/neuroquantumdb/internal/cluster/shard"
	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// IsolationLevel mirrors internal/txn's levels; kept as a local string type
// to avoid coordinator depending on txn for a single enum.
type IsolationLevel string

const (
	ReadUncommitted IsolationLevel = "read_uncommitted"
	ReadCommitted   IsolationLevel = "read_committed"
	RepeatableRead  IsolationLevel = "repeatable_read"
	Serializable    IsolationLevel = "serializable"
)

// WriteCommand is the JSON envelope proposed through Raft, mirroring
// cuemby/warren's WarrenFSM.Apply Command{Op, Data} shape.
type WriteCommand struct {
	Op    string          `json:"op"`
	Key   string          `json:"key"`
	Data  json.RawMessage `json:"data"`
}

// RemoteApplier forwards a write to a specific node, e.g. over the same
// framed transport Raft itself uses, or a higher-level RPC — left abstract
// so the coordinator doesn't hard-code one transport.
type RemoteApplier interface {
	ApplyRemote(node string, cmd WriteCommand) error
}

// ReadHintProvider exposes the locally-applied Raft index, so the
// coordinator can decide whether a ReadCommitted/ReadUncommitted read may be
// served locally without contacting the primary (spec §4.M).
type ReadHintProvider interface {
	AppliedIndex() uint64
}

// Coordinator is the thin glue between the shard manager and the local
// Raft node.
type Coordinator struct {
	nodeID  string
	shards  *shard.Manager
	node    *raft.Node
	remote  RemoteApplier
	log     zerolog.Logger
}

func New(nodeID string, shards *shard.Manager, node *raft.Node, remote RemoteApplier, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		nodeID: nodeID,
		shards: shards,
		node:   node,
		remote: remote,
		log:    log.With().Str("component", "coordinator").Logger(),
	}
}

// Write routes a write for key: if this node is the primary, it proposes
// the command through Raft's AppendEntries path (via Node.Propose, which
// the Driver then replicates); otherwise it forwards to the owning primary
// (spec §4.M steps i-iv).
func (c *Coordinator) Write(key string, cmd WriteCommand) error {
	primary, err := c.shards.GetPrimaryNode(key)
	if err != nil {
		return err
	}
	if primary == c.nodeID {
		payload, err := json.Marshal(cmd)
		if err != nil {
			return common.Wrap(common.KindInvalidInput, err, "encoding write command")
		}
		_, err = c.node.Propose(payload)
		return err
	}
	if c.remote == nil {
		return common.New(common.KindClusterError, "key %q belongs to remote primary %q, no RemoteApplier installed", key, primary)
	}
	return c.remote.ApplyRemote(primary, cmd)
}

// RouteRead decides whether a read at the given isolation level must go to
// the key's primary, or may be served by any replica whose applied index is
// at least readHint (spec §4.M). It returns the node to read from.
func (c *Coordinator) RouteRead(key string, isolation IsolationLevel, readHint uint64, local ReadHintProvider) (string, error) {
	primary, err := c.shards.GetPrimaryNode(key)
	if err != nil {
		return "", err
	}
	switch isolation {
	case Serializable, RepeatableRead:
		return primary, nil
	default: // ReadCommitted, ReadUncommitted
		if local != nil && local.AppliedIndex() >= readHint {
			return c.nodeID, nil
		}
		return primary, nil
	}
}
