// Package config defines the engine's configuration surface (spec §6) as a
// plain struct tree, loadable from YAML. CLI flag parsing is an explicit
// out-of-scope external collaborator (spec §1); this package only owns the
// struct, its defaults, and validation.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

type PagerConfig struct {
	PageSize int    `yaml:"page_size"`
	DataDir  string `yaml:"data_dir"`
}

type EvictionPolicy string

const (
	EvictionLRU   EvictionPolicy = "LRU"
	EvictionClock EvictionPolicy = "Clock"
)

type BufferPoolConfig struct {
	PoolSize             int            `yaml:"pool_size"`
	RAMPercentage        int            `yaml:"ram_percentage"`
	EvictionPolicy       EvictionPolicy `yaml:"eviction_policy"`
	EnableBackgroundFlush bool          `yaml:"enable_background_flush"`
	FlushInterval        time.Duration  `yaml:"flush_interval"`
	MaxDirtyPages        int            `yaml:"max_dirty_pages"`
}

type WALConfig struct {
	SegmentSize   int64 `yaml:"segment_size"`
	SyncOnCommit  bool  `yaml:"sync_on_commit"`
}

type LockManagerConfig struct {
	LockWaitTimeout         time.Duration `yaml:"lock_wait_timeout"`
	DeadlockDetectionInterval time.Duration `yaml:"deadlock_detection_interval"`
}

type RaftConfig struct {
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max"`
	SnapshotThreshold  int           `yaml:"snapshot_threshold"`
}

type ShardingConfig struct {
	VirtualNodes           int           `yaml:"virtual_nodes"`
	ReplicationFactor      int           `yaml:"replication_factor"`
	MaxConcurrentTransfers int           `yaml:"max_concurrent_transfers"`
	RebalanceDelay         time.Duration `yaml:"rebalance_delay"`
	AutoRebalance          bool          `yaml:"auto_rebalance"`
}

type UpgradesConfig struct {
	ProtocolVersion       uint32 `yaml:"protocol_version"`
	MinCompatibleVersion  uint32 `yaml:"min_compatible_version"`
}

type ManagerConfig struct {
	Upgrades UpgradesConfig `yaml:"upgrades"`
}

type ClusterConfig struct {
	NodeID         string         `yaml:"node_id"`
	BindAddr       string         `yaml:"bind_addr"`
	AdvertiseAddr  string         `yaml:"advertise_addr"`
	Peers          []string       `yaml:"peers"`
	Raft           RaftConfig     `yaml:"raft"`
	Sharding       ShardingConfig `yaml:"sharding"`
	Manager        ManagerConfig  `yaml:"manager"`
}

type IndexAdvisorConfig struct {
	MinQueryThreshold         int64   `yaml:"min_query_threshold"`
	MinImprovementThreshold   float64 `yaml:"min_improvement_threshold"`
	MaxRecommendations        int     `yaml:"max_recommendations"`
	EnableTracking            bool    `yaml:"enable_tracking"`
	MaxTrackedTables          int     `yaml:"max_tracked_tables"`
	MaxTrackedColumnsPerTable int     `yaml:"max_tracked_columns_per_table"`
}

// Config is the full recognized configuration surface (spec §6).
type Config struct {
	Pager        PagerConfig        `yaml:"pager"`
	BufferPool   BufferPoolConfig   `yaml:"buffer_pool"`
	WAL          WALConfig          `yaml:"wal"`
	LockManager  LockManagerConfig  `yaml:"lock_manager"`
	Cluster      ClusterConfig      `yaml:"cluster"`
	IndexAdvisor IndexAdvisorConfig `yaml:"index_advisor"`
}

// Default returns a Config populated with the engine's documented defaults
// (page size 4096, pool size clamped to [512, 32768] per §4.E, max_dirty_pages
// floor 100, WAL segment size 16 MiB, etc.).
func Default() Config {
	return Config{
		Pager: PagerConfig{PageSize: 4096, DataDir: "./data"},
		BufferPool: BufferPoolConfig{
			RAMPercentage:         50,
			EvictionPolicy:        EvictionClock,
			EnableBackgroundFlush: true,
			FlushInterval:         1 * time.Second,
			MaxDirtyPages:         100,
		},
		WAL: WALConfig{SegmentSize: 16 << 20, SyncOnCommit: true},
		LockManager: LockManagerConfig{
			LockWaitTimeout:           5 * time.Second,
			DeadlockDetectionInterval: 500 * time.Millisecond,
		},
		Cluster: ClusterConfig{
			Raft: RaftConfig{
				HeartbeatInterval:  50 * time.Millisecond,
				ElectionTimeoutMin: 150 * time.Millisecond,
				ElectionTimeoutMax: 300 * time.Millisecond,
				SnapshotThreshold:  10000,
			},
			Sharding: ShardingConfig{
				VirtualNodes:           32,
				ReplicationFactor:      3,
				MaxConcurrentTransfers: 4,
				RebalanceDelay:         5 * time.Second,
				AutoRebalance:          false,
			},
			Manager: ManagerConfig{
				Upgrades: UpgradesConfig{ProtocolVersion: 1, MinCompatibleVersion: 1},
			},
		},
		IndexAdvisor: IndexAdvisorConfig{
			MinQueryThreshold:         10,
			MinImprovementThreshold:   0.2,
			MaxRecommendations:        20,
			EnableTracking:            true,
			MaxTrackedTables:          200,
			MaxTrackedColumnsPerTable: 64,
		},
	}
}

// Load reads a YAML file at path, overlaying it onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, common.Wrap(common.KindIOError, err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, common.Wrap(common.KindInvalidInput, err, "parsing config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate enforces the numeric policies spec §4.A/§4.E/§6 name explicitly.
func (c Config) Validate() error {
	if c.Pager.PageSize <= 0 {
		return common.New(common.KindInvalidInput, "pager.page_size must be positive")
	}
	if c.BufferPool.PoolSize != 0 {
		if c.BufferPool.PoolSize < 512 || c.BufferPool.PoolSize > 32768 {
			return common.New(common.KindInvalidInput, "buffer_pool.pool_size must be in [512, 32768]")
		}
	}
	if c.BufferPool.EvictionPolicy != EvictionLRU && c.BufferPool.EvictionPolicy != EvictionClock {
		return common.New(common.KindInvalidInput, "buffer_pool.eviction_policy must be LRU or Clock, got %q", c.BufferPool.EvictionPolicy)
	}
	if !c.WAL.SyncOnCommit {
		return common.New(common.KindInvalidInput, "wal.sync_on_commit must be true for durability guarantees")
	}
	if c.Cluster.Sharding.ReplicationFactor < 1 {
		return common.New(common.KindInvalidInput, "cluster.sharding.replication_factor must be >= 1")
	}
	return nil
}
