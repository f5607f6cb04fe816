// Command neuroquantumd is the server entrypoint: it loads configuration,
// brings up the storage stack (pager, WAL, buffer pool, row store, lock
// manager), the SQL front end (lexer/parser/planner/executor, index
// advisor, effect dispatcher), and the cluster layer (Raft node,
// transport, shard manager, replica coordinator), then serves a line-
// oriented SQL console over stdin for local operation and testing —
// the same role cmd/demo and cmd/benchmark played for the teacher's
// standalone storage engines, generalized to a full server process.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/neuroquantum/neuroquantumdb/internal/advisor"
	"github.com/neuroquantum/neuroquantumdb/internal/buffer"
	"github.com/neuroquantum/neuroquantumdb/internal/cluster/coordinator"
	"github.com/neuroquantum/neuroquantumdb/internal/cluster/raft"
	"github.com/neuroquantum/neuroquantumdb/internal/cluster/shard"
	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/config"
	"github.com/neuroquantum/neuroquantumdb/internal/effects"
	"github.com/neuroquantum/neuroquantumdb/internal/executor"
	"github.com/neuroquantum/neuroquantumdb/internal/logging"
	"github.com/neuroquantum/neuroquantumdb/internal/metrics"
	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/parser"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/pager"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/row"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/wal"
	"github.com/neuroquantum/neuroquantumdb/internal/txn"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults are used if omitted)")
	nodeID := flag.String("node-id", "", "overrides cluster.node_id from the config file")
	bindAddr := flag.String("bind", "", "overrides cluster.bind_addr from the config file")
	jsonLogs := flag.Bool("json-logs", false, "emit structured JSON logs instead of console-formatted ones")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "neuroquantumd: loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *nodeID != "" {
		cfg.Cluster.NodeID = *nodeID
	}
	if *bindAddr != "" {
		cfg.Cluster.BindAddr = *bindAddr
	}

	logLevel := logging.InfoLevel
	log := logging.New(logging.Config{Level: logLevel, JSONOutput: *jsonLogs})

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("neuroquantumd exited with error")
		os.Exit(1)
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	if err := os.MkdirAll(cfg.Pager.DataDir, 0755); err != nil {
		return common.Wrap(common.KindIOError, err, "create data directory")
	}

	pg, err := pager.Open(filepath.Join(cfg.Pager.DataDir, "neuroquantum.db"))
	if err != nil {
		return err
	}
	defer pg.Close()

	wlog, err := wal.Open(filepath.Join(cfg.Pager.DataDir, "wal"), cfg.WAL.SegmentSize)
	if err != nil {
		return err
	}
	defer wlog.Close()

	metricsSink := metrics.NewPrometheusSink()

	poolSize := cfg.BufferPool.PoolSize
	if poolSize == 0 {
		poolSize = buffer.AutoTuneCapacity(8 << 30) // assume 8GiB until a host-introspection collaborator is wired in
	}
	var policy buffer.Policy
	if cfg.BufferPool.EvictionPolicy == config.EvictionLRU {
		policy = buffer.NewLRUPolicy()
	} else {
		policy = buffer.NewClockPolicy()
	}
	pool := buffer.New(pg, poolSize, policy, metricsSink)
	if cfg.BufferPool.EnableBackgroundFlush {
		flusher := buffer.NewFlusher(pool, cfg.BufferPool.FlushInterval, log)
		flusherCtx, cancelFlusher := context.WithCancel(context.Background())
		defer cancelFlusher()
		go func() {
			if err := flusher.Run(flusherCtx); err != nil && flusherCtx.Err() == nil {
				log.Warn().Err(err).Msg("background flusher stopped")
			}
		}()
	}

	if err := row.Recover(pg, pool, wlog); err != nil {
		return common.Wrap(common.KindIOError, err, "recover from write-ahead log")
	}

	store, err := row.Open(pg, pool, wlog, row.IdentityCodec{})
	if err != nil {
		return err
	}

	locks := txn.NewManager(common.RealClock{})

	exec := executor.New(store, locks, log)
	exec.SetAdvisor(advisor.New(advisor.DefaultConfig(), common.RealClock{}))
	exec.SetEffectDispatcher(effects.NewDispatcher()) // zero handlers installed; effect statements report Unsupported until a plug-in registers one

	clusterLog := log.With().Str("component", "cluster").Logger()
	shardMgr := shard.New(shard.Config{
		VirtualNodes:           cfg.Cluster.Sharding.VirtualNodes,
		ReplicationFactor:      cfg.Cluster.Sharding.ReplicationFactor,
		MaxConcurrentTransfers: cfg.Cluster.Sharding.MaxConcurrentTransfers,
	}, clusterLog)
	if cfg.Cluster.NodeID != "" {
		if err := shardMgr.AddNode(cfg.Cluster.NodeID); err != nil {
			return err
		}
	}

	fsm := newEngineFSM(exec)
	raftCfg := raft.Config{
		NodeID:             cfg.Cluster.NodeID,
		HeartbeatInterval:  cfg.Cluster.Raft.HeartbeatInterval,
		ElectionTimeoutMin: cfg.Cluster.Raft.ElectionTimeoutMin,
		ElectionTimeoutMax: cfg.Cluster.Raft.ElectionTimeoutMax,
		SnapshotThreshold:  cfg.Cluster.Raft.SnapshotThreshold,
	}
	node := raft.NewNode(raftCfg, fsm, common.RealClock{}, log)

	var transport *raft.Transport
	if cfg.Cluster.BindAddr != "" {
		transport, err = raft.NewTransport(node, cfg.Cluster.BindAddr, clusterLog)
		if err != nil {
			return err
		}
		go func() {
			if err := transport.Serve(); err != nil {
				clusterLog.Warn().Err(err).Msg("raft transport stopped serving")
			}
		}()
		defer transport.Close()
	}

	clients := make(map[string]raft.PeerClient, len(cfg.Cluster.Peers))
	for _, addr := range cfg.Cluster.Peers {
		clients[addr] = raft.NewClient(addr)
	}
	if len(clients) > 0 {
		driver := raft.NewDriver(node, clients)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := driver.Run(ctx); err != nil {
				clusterLog.Warn().Err(err).Msg("raft driver stopped")
			}
		}()
	}

	coord := coordinator.New(cfg.Cluster.NodeID, shardMgr, node, nil, clusterLog)

	pl := planner.New(exec)

	log.Info().
		Str("node_id", cfg.Cluster.NodeID).
		Str("data_dir", cfg.Pager.DataDir).
		Int("pool_size", poolSize).
		Msg("neuroquantumd ready")

	return repl(exec, pl, coord, log)
}

// runSQL parses and executes one statement against exec, used both by the
// interactive console and by the replicated FSM replaying committed writes.
func runSQL(exec *executor.Executor, sql string) (*executor.Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	return exec.Execute(stmt, executor.Params{})
}

// repl runs a minimal line-oriented SQL console over stdin. It is the
// local-operation surface: a production deployment drives neuroquantumd
// over the cluster RPCs instead, but a bare process still needs to be
// usable by a human sitting at the terminal.
func repl(exec *executor.Executor, pl *planner.Planner, coord *coordinator.Coordinator, log zerolog.Logger) error {
	_ = pl    // reserved for a future EXPLAIN/advisor console command
	_ = coord // reserved for a future cluster-status console command

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("neuroquantumd> type SQL statements, or 'quit' to exit")
	for {
		fmt.Print("neuroquantumd> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		result, err := runSQL(exec, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		printResult(result)
	}
}

func printResult(r *executor.Result) {
	if r == nil {
		return
	}
	if len(r.Columns) == 0 && len(r.Rows) == 0 {
		fmt.Printf("OK (%d rows affected)\n", r.RowsAffected)
		return
	}
	fmt.Println(strings.Join(r.Columns, " | "))
	for _, rec := range r.Rows {
		vals := make([]string, len(r.Columns))
		for i, col := range r.Columns {
			vals[i] = fmt.Sprintf("%v", rec[col])
		}
		fmt.Println(strings.Join(vals, " | "))
	}
	fmt.Printf("(%d rows)\n", len(r.Rows))
}
