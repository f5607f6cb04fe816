package row

import (
	"github.com/neuroquantum/neuroquantumdb/internal/buffer"
	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/btree"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/page"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/pager"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/wal"
)

// Store is the row store: a catalog of table schemas, each backed by its
// own B+ tree keyed on the table's primary key, with row bytes held in
// dedicated pages addressed by the tree's uint64 row-locator values. Every
// page Store touches goes through the buffer pool rather than the pager
// directly, and every row or schema page write is logged to the WAL before
// the page is marked dirty, so a crash mid-write can be redone or undone on
// restart. The B+ trees' own node pages and page frees are not WAL-logged.
type Store struct {
	pager   *pager.Pager
	pool    *buffer.Pool
	wal     *wal.WAL
	codec   Codec
	catalog *btree.Tree
}

// Open attaches a Store to pool (backed by p) and wlog, initializing the
// catalog tree on first use (an empty database has no root catalog page
// yet). Callers that crashed mid-operation should run Recover against p,
// pool and wlog before calling Open.
func Open(p *pager.Pager, pool *buffer.Pool, wlog *wal.WAL, codec Codec) (*Store, error) {
	if codec == nil {
		codec = IdentityCodec{}
	}
	s := &Store{pager: p, pool: pool, wal: wlog, codec: codec}
	rootID := p.RootCatalogPageID()
	if rootID == 0 {
		tree, newRootID, err := btree.Create(pool, btree.Options{})
		if err != nil {
			return nil, err
		}
		if err := p.SetRootCatalogPageID(newRootID); err != nil {
			return nil, err
		}
		s.catalog = tree
	} else {
		s.catalog = btree.New(pool, rootID, btree.Options{})
	}
	return s, nil
}

// NextTxnID hands out a fresh transaction id for callers (the executor)
// that bracket a statement's writes with WAL Begin/Commit/Abort markers.
func (s *Store) NextTxnID() uint64 { return s.pager.NextTxnID() }

// AppendWAL appends a bare marker record (Begin, Commit or Abort) for
// txnID. Page-level Update records are appended internally by dirtyPage.
func (s *Store) AppendWAL(txnID uint64, kind wal.Kind) error {
	return s.appendMarker(txnID, kind)
}

// SyncWAL durably persists every WAL record appended so far.
func (s *Store) SyncWAL() error {
	return s.wal.SyncThrough(0)
}

func (s *Store) appendMarker(txnID uint64, kind wal.Kind) error {
	return s.wal.Append(wal.Record{LSN: s.pager.ReserveLSN(), TxnID: txnID, Kind: kind})
}

// dirtyPage logs an Update record carrying pg's before- and after-images,
// then installs payload as pg's new content and unpins it dirty. Every row
// and schema page write the store makes flows through here so the WAL has
// a redo/undo record before the buffer pool sees the new bytes.
func (s *Store) dirtyPage(txnID uint64, pg *page.Page, payload []byte) error {
	before := append([]byte(nil), pg.Payload()...)
	lsn := s.pager.ReserveLSN()
	after := make([]byte, len(payload))
	copy(after, payload)
	rec := wal.Record{
		LSN:         lsn,
		TxnID:       txnID,
		Kind:        wal.KindUpdate,
		PageID:      pg.PageID(),
		BeforeImage: before,
		AfterImage:  after,
	}
	if err := s.wal.Append(rec); err != nil {
		return err
	}
	pg.SetPayload(payload)
	pg.SetLSN(lsn)
	return s.pool.UnpinPage(pg.PageID(), true)
}

func (s *Store) loadSchema(name string) (*Schema, error) {
	schemaPageID, ok, err := s.catalog.Search([]byte(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errTableNotFound(name)
	}
	pg, err := s.pool.FetchPage(schemaPageID)
	if err != nil {
		return nil, err
	}
	schema, err := decodeSchema(pg.Payload())
	if uerr := s.pool.UnpinPage(schemaPageID, false); uerr != nil && err == nil {
		err = uerr
	}
	if err != nil {
		return nil, err
	}
	return schema, nil
}

// saveSchema persists schema under txnID, logging the page mutation to the
// WAL like any other write. CreateTable is responsible for bracketing its
// own call with Begin/Commit markers since it runs outside the executor's
// write-lock wrapper.
func (s *Store) saveSchema(txnID uint64, schema *Schema) error {
	schemaPageID, ok, err := s.catalog.Search([]byte(schema.Name))
	if err != nil {
		return err
	}
	encoded := encodeSchema(schema)
	if len(encoded) > page.PayloadCapacity {
		return common.New(common.KindCorruptState, "row: schema %q too large to persist", schema.Name)
	}
	if ok {
		pg, err := s.pool.FetchPage(schemaPageID)
		if err != nil {
			return err
		}
		return s.dirtyPage(txnID, pg, encoded)
	}
	pg, err := s.pool.AllocatePage(page.TypeData)
	if err != nil {
		return err
	}
	if err := s.dirtyPage(txnID, pg, encoded); err != nil {
		return err
	}
	return s.catalog.Upsert([]byte(schema.Name), pg.PageID())
}

// CreateTable registers a new table, rejecting a duplicate name. Its
// schema write is logged under a locally generated transaction id, bracketed
// by its own Begin/Commit markers, so recovery never mistakes it for an
// in-flight loser transaction.
func (s *Store) CreateTable(name string, columns []ColumnDef, idStrategy IDStrategy) error {
	if _, err := s.loadSchema(name); err == nil {
		return errTableExists(name)
	}
	hasPK := false
	for _, c := range columns {
		if c.PrimaryKey {
			hasPK = true
		}
	}
	if !hasPK {
		return errNoPrimaryKey(name)
	}
	_, rowTreeRoot, err := btree.Create(s.pool, btree.Options{})
	if err != nil {
		return err
	}
	schema := &Schema{
		Name:              name,
		Columns:           columns,
		IDStrategy:        idStrategy,
		RowTreeRootPageID: rowTreeRoot,
		NextAutoIncrement: 1,
	}

	txnID := s.pager.NextTxnID()
	if err := s.appendMarker(txnID, wal.KindBegin); err != nil {
		return err
	}
	if err := s.saveSchema(txnID, schema); err != nil {
		_ = s.appendMarker(txnID, wal.KindAbort)
		return err
	}
	if err := s.appendMarker(txnID, wal.KindCommit); err != nil {
		return err
	}
	return s.wal.SyncThrough(0)
}

// DropTable frees every row page belonging to the table and removes its
// catalog entry. The B+ tree's own internal/leaf pages are left allocated;
// see DESIGN.md for the rationale. Page frees here go through the buffer
// pool (finding #2's durability guarantee) but, like the tree's own
// structural pages, are not separately WAL-logged; see DESIGN.md.
func (s *Store) DropTable(name string) error {
	schema, err := s.loadSchema(name)
	if err != nil {
		return err
	}
	tree := btree.New(s.pool, schema.RowTreeRootPageID, btree.Options{})
	it, err := tree.RangeScan(nil, nil)
	if err != nil {
		return err
	}
	for it.Next() {
		_ = s.pool.FreePage(it.Value())
	}
	if err := it.Err(); err != nil {
		return err
	}
	return s.catalog.Delete([]byte(name))
}

func (s *Store) rowTree(schema *Schema) *btree.Tree {
	return btree.New(s.pool, schema.RowTreeRootPageID, btree.Options{})
}

// InsertRow validates r against the schema, assigns an auto-increment
// primary key when called for, persists the row to a fresh page, and
// indexes it by primary key. txnID identifies the caller's bracketing
// transaction (see Executor.withWriteLock) and is attached to every WAL
// record this call produces.
func (s *Store) InsertRow(txnID uint64, table string, r Row) error {
	schema, err := s.loadSchema(table)
	if err != nil {
		return err
	}
	pkCol, ok := schema.primaryKeyColumn()
	if !ok {
		return errNoPrimaryKey(table)
	}
	for k := range r {
		if _, ok := schema.column(k); !ok {
			return errColumnNotFound(table, k)
		}
	}

	if schema.IDStrategy == IDAutoIncrement {
		if _, present := r[pkCol.Name]; !present {
			r[pkCol.Name] = int64(schema.NextAutoIncrement)
			schema.NextAutoIncrement++
		}
	}

	pkValue, present := r[pkCol.Name]
	if !present {
		return errMissingColumn(pkCol.Name)
	}
	pkBytes, err := EncodeKey(pkCol, pkValue)
	if err != nil {
		return err
	}

	tree := s.rowTree(schema)
	if _, found, err := tree.Search(pkBytes); err != nil {
		return err
	} else if found {
		return errUniqueViolation(table, pkCol.Name)
	}

	encoded, err := s.codec.Encode(schema, r)
	if err != nil {
		return err
	}
	if len(encoded) > page.PayloadCapacity {
		return common.New(common.KindInvalidInput, "row: encoded row exceeds page capacity")
	}
	pg, err := s.pool.AllocatePage(page.TypeData)
	if err != nil {
		return err
	}
	if err := s.dirtyPage(txnID, pg, encoded); err != nil {
		return err
	}
	if err := tree.Insert(pkBytes, pg.PageID()); err != nil {
		return err
	}
	if schema.RowTreeRootPageID != tree.RootPageID() {
		schema.RowTreeRootPageID = tree.RootPageID()
	}
	return s.saveSchema(txnID, schema)
}

func (s *Store) readRow(schema *Schema, rowPageID uint64) (Row, error) {
	pg, err := s.pool.FetchPage(rowPageID)
	if err != nil {
		return nil, err
	}
	r, err := s.codec.Decode(schema, pg.Payload())
	if uerr := s.pool.UnpinPage(rowPageID, false); uerr != nil && err == nil {
		err = uerr
	}
	return r, err
}

// SelectQuery is the structured request the executor issues for a scan.
type SelectQuery struct {
	Table     string
	Predicate func(Row) bool // nil selects every row
}

// SelectRows returns every row matching q.Predicate (or all rows if nil).
func (s *Store) SelectRows(q SelectQuery) ([]Row, error) {
	schema, err := s.loadSchema(q.Table)
	if err != nil {
		return nil, err
	}
	tree := s.rowTree(schema)
	it, err := tree.RangeScan(nil, nil)
	if err != nil {
		return nil, err
	}
	var out []Row
	for it.Next() {
		r, err := s.readRow(schema, it.Value())
		if err != nil {
			return nil, err
		}
		if q.Predicate == nil || q.Predicate(r) {
			out = append(out, r)
		}
	}
	return out, it.Err()
}

// UpdateQuery is the structured request the executor issues for an UPDATE.
// Mutate must not change the primary key column.
type UpdateQuery struct {
	Table     string
	Predicate func(Row) bool // nil updates every row
	Mutate    func(Row) Row
}

// UpdateRows applies q.Mutate to every matching row and returns the count
// updated. Every rewritten page is logged to the WAL under txnID.
func (s *Store) UpdateRows(txnID uint64, q UpdateQuery) (int, error) {
	schema, err := s.loadSchema(q.Table)
	if err != nil {
		return 0, err
	}
	pkCol, _ := schema.primaryKeyColumn()
	tree := s.rowTree(schema)
	it, err := tree.RangeScan(nil, nil)
	if err != nil {
		return 0, err
	}
	type pending struct {
		pageID uint64
		row    Row
	}
	var updates []pending
	for it.Next() {
		r, err := s.readRow(schema, it.Value())
		if err != nil {
			return 0, err
		}
		if q.Predicate != nil && !q.Predicate(r) {
			continue
		}
		updated := q.Mutate(r)
		updates = append(updates, pending{pageID: it.Value(), row: updated})
	}
	if err := it.Err(); err != nil {
		return 0, err
	}

	for _, u := range updates {
		if pkCol.Name != "" && u.row[pkCol.Name] == nil {
			return 0, errMissingColumn(pkCol.Name)
		}
		encoded, err := s.codec.Encode(schema, u.row)
		if err != nil {
			return 0, err
		}
		if len(encoded) > page.PayloadCapacity {
			return 0, common.New(common.KindInvalidInput, "row: encoded row exceeds page capacity")
		}
		pg, err := s.pool.FetchPage(u.pageID)
		if err != nil {
			return 0, err
		}
		if err := s.dirtyPage(txnID, pg, encoded); err != nil {
			return 0, err
		}
	}
	return len(updates), nil
}

// DeleteQuery is the structured request the executor issues for a DELETE.
type DeleteQuery struct {
	Table     string
	Predicate func(Row) bool // nil deletes every row
}

// DeleteRows removes every matching row and returns the count deleted. The
// freed row pages are returned to the pager's free list through the buffer
// pool; only the schema update (when the row tree's root moves) is logged
// to the WAL under txnID.
func (s *Store) DeleteRows(txnID uint64, q DeleteQuery) (int, error) {
	schema, err := s.loadSchema(q.Table)
	if err != nil {
		return 0, err
	}
	pkCol, ok := schema.primaryKeyColumn()
	if !ok {
		return 0, errNoPrimaryKey(q.Table)
	}
	tree := s.rowTree(schema)
	it, err := tree.RangeScan(nil, nil)
	if err != nil {
		return 0, err
	}
	var toDelete [][]byte
	var pages []uint64
	for it.Next() {
		r, err := s.readRow(schema, it.Value())
		if err != nil {
			return 0, err
		}
		if q.Predicate != nil && !q.Predicate(r) {
			continue
		}
		pkBytes, err := EncodeKey(pkCol, r[pkCol.Name])
		if err != nil {
			return 0, err
		}
		toDelete = append(toDelete, pkBytes)
		pages = append(pages, it.Value())
	}
	if err := it.Err(); err != nil {
		return 0, err
	}

	for i, key := range toDelete {
		if err := tree.Delete(key); err != nil {
			return 0, err
		}
		_ = s.pool.FreePage(pages[i])
	}
	if schema.RowTreeRootPageID != tree.RootPageID() {
		schema.RowTreeRootPageID = tree.RootPageID()
		if err := s.saveSchema(txnID, schema); err != nil {
			return 0, err
		}
	}
	return len(toDelete), nil
}

// FlushToDisk flushes every dirty buffered page, fsyncs the WAL, and
// fsyncs the pager's meta page.
func (s *Store) FlushToDisk() error {
	if err := s.pool.FlushAll(); err != nil {
		return err
	}
	if err := s.wal.SyncThrough(0); err != nil {
		return err
	}
	return s.pager.Sync()
}
