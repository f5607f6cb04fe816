package txn

// SetSavepoint records a named point the transaction can later roll back
// to. lsn is the WAL LSN at the time of the call, the position Undo will
// replay back to.
func (t *Transaction) SetSavepoint(name string, lsn uint64) {
	t.Savepoints = append(t.Savepoints, Savepoint{Name: name, LSN: lsn})
}

// RollbackTo finds the named savepoint and returns the LSN a caller should
// undo the WAL back through, discarding it and every savepoint taken after
// it. Locks acquired since the savepoint are intentionally retained: undoing
// to a savepoint, unlike a full abort, does not shrink the lock set, since a
// later retry within the same transaction may need the same rows again.
func (t *Transaction) RollbackTo(name string) (uint64, error) {
	for i := len(t.Savepoints) - 1; i >= 0; i-- {
		if t.Savepoints[i].Name == name {
			lsn := t.Savepoints[i].LSN
			t.Savepoints = t.Savepoints[:i]
			return lsn, nil
		}
	}
	return 0, errSavepointNotFound(name)
}

// ReleaseSavepoint discards a savepoint without rolling back, matching SQL
// RELEASE SAVEPOINT semantics.
func (t *Transaction) ReleaseSavepoint(name string) error {
	for i := len(t.Savepoints) - 1; i >= 0; i-- {
		if t.Savepoints[i].Name == name {
			t.Savepoints = append(t.Savepoints[:i], t.Savepoints[i+1:]...)
			return nil
		}
	}
	return errSavepointNotFound(name)
}
