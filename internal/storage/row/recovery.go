package row

import (
	"io"

	"github.com/neuroquantum/neuroquantumdb/internal/buffer"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/pager"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/wal"
)

// Recover replays w against pool (backed by p) after an unclean shutdown:
// a forward redo pass reapplies every Update record whose page hasn't
// already absorbed it, then a backward undo pass rolls back every Update
// belonging to a transaction that never reached KindCommit. Call it once,
// before Open, on every startup.
func Recover(p *pager.Pager, pool *buffer.Pool, w *wal.WAL) error {
	records, committed, maxLSN, maxTxnID, err := scanLog(w)
	if err != nil {
		return err
	}
	if err := redo(pool, records); err != nil {
		return err
	}
	if err := undo(pool, records, committed); err != nil {
		return err
	}
	p.ObserveLSN(maxLSN)
	p.ObserveTxnID(maxTxnID)
	if err := pool.FlushAll(); err != nil {
		return err
	}
	return p.Sync()
}

func scanLog(w *wal.WAL) (records []wal.Record, committed map[uint64]bool, maxLSN, maxTxnID uint64, err error) {
	it, err := w.IterateFrom(0)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	defer it.Close()

	committed = make(map[uint64]bool)
	for it.Next() {
		rec := it.Record()
		records = append(records, rec)
		if rec.LSN > maxLSN {
			maxLSN = rec.LSN
		}
		if rec.TxnID > maxTxnID {
			maxTxnID = rec.TxnID
		}
		if rec.Kind == wal.KindCommit {
			committed[rec.TxnID] = true
		}
	}
	if err := it.Err(); err != nil && err != io.EOF {
		return nil, nil, 0, 0, err
	}
	return records, committed, maxLSN, maxTxnID, nil
}

// redo reapplies every Update record forward, skipping any whose target
// page already carries an LSN at or past the record's own (it was already
// durable before the crash).
func redo(pool *buffer.Pool, records []wal.Record) error {
	for _, rec := range records {
		if rec.Kind != wal.KindUpdate {
			continue
		}
		pg, err := pool.FetchPage(rec.PageID)
		if err != nil {
			return err
		}
		if pg.LSN() >= rec.LSN {
			if err := pool.UnpinPage(rec.PageID, false); err != nil {
				return err
			}
			continue
		}
		pg.SetPayload(rec.AfterImage)
		pg.ForceLSN(rec.LSN)
		if err := pool.UnpinPage(rec.PageID, true); err != nil {
			return err
		}
	}
	return nil
}

// undo walks records in reverse, restoring the before-image of every
// Update belonging to a transaction that never committed (a loser
// transaction, per ARIES terminology).
func undo(pool *buffer.Pool, records []wal.Record, committed map[uint64]bool) error {
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Kind != wal.KindUpdate || committed[rec.TxnID] {
			continue
		}
		pg, err := pool.FetchPage(rec.PageID)
		if err != nil {
			return err
		}
		pg.SetPayload(rec.BeforeImage)
		pg.ForceLSN(rec.LSN)
		if err := pool.UnpinPage(rec.PageID, true); err != nil {
			return err
		}
	}
	return nil
}
