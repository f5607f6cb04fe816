package main

import (
	"encoding/json"
	"fmt"

	"github.com/neuroquantum/neuroquantumdb/internal/cluster/coordinator"
	"github.com/neuroquantum/neuroquantumdb/internal/cluster/raft"
	"github.com/neuroquantum/neuroquantumdb/internal/executor"
)

// engineFSM applies committed raft.LogEntry commands to the local row store
// through the executor, mirroring cuemby/warren's WarrenFSM: a single
// json-enveloped Command with an Op field switched on, rather than one
// Apply method per write kind.
type engineFSM struct {
	exec *executor.Executor
}

func newEngineFSM(exec *executor.Executor) *engineFSM {
	return &engineFSM{exec: exec}
}

// Apply decodes entry.Command as a coordinator.WriteCommand and re-runs the
// original SQL text against the local row store. Every replica applies the
// same committed log in the same order, so the row store converges
// regardless of which node originally accepted the write.
func (f *engineFSM) Apply(entry raft.LogEntry) error {
	if len(entry.Command) == 0 {
		return nil // no-op entries (e.g. a new leader's first committed entry)
	}
	var cmd coordinator.WriteCommand
	if err := json.Unmarshal(entry.Command, &cmd); err != nil {
		return fmt.Errorf("fsm: decode command at index %d: %w", entry.Index, err)
	}
	var sql string
	if err := json.Unmarshal(cmd.Data, &sql); err != nil {
		return fmt.Errorf("fsm: decode statement text at index %d: %w", entry.Index, err)
	}
	_, err := runSQL(f.exec, sql)
	return err
}
