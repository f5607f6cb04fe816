package row

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/neuroquantum/neuroquantumdb/internal/buffer"
	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/pager"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/wal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	p, err := pager.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	pool := buffer.New(p, 256, buffer.NewLRUPolicy(), nil)
	wlog, err := wal.Open(filepath.Join(t.TempDir(), "wal"), 0)
	if err != nil {
		t.Fatalf("wal.Open: %v", err)
	}
	t.Cleanup(func() { wlog.Close() })
	s, err := Open(p, pool, wlog, IdentityCodec{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func usersSchema() []ColumnDef {
	return []ColumnDef{
		{Name: "id", Type: TypeInt64, PrimaryKey: true},
		{Name: "name", Type: TypeText},
		{Name: "age", Type: TypeInt64, Nullable: true},
	}
}

func TestCreateTableRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateTable("users", usersSchema(), IDManual); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := s.CreateTable("users", usersSchema(), IDManual); err == nil {
		t.Fatal("CreateTable should reject a duplicate table name")
	}
}

func TestCreateTableRequiresPrimaryKey(t *testing.T) {
	s := newTestStore(t)
	cols := []ColumnDef{{Name: "name", Type: TypeText}}
	if err := s.CreateTable("no_pk", cols, IDManual); err == nil {
		t.Fatal("CreateTable should reject a schema with no primary key")
	}
}

func TestInsertAndSelectRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateTable("users", usersSchema(), IDManual); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := s.InsertRow(s.NextTxnID(), "users", Row{"id": int64(1), "name": "Alice", "age": int64(30)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	if err := s.InsertRow(s.NextTxnID(), "users", Row{"id": int64(2), "name": "Bob", "age": int64(25)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	rows, err := s.SelectRows(SelectQuery{Table: "users"})
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("SelectRows returned %d rows, want 2", len(rows))
	}
	names := map[string]bool{}
	for _, r := range rows {
		names[r["name"].(string)] = true
	}
	if !names["Alice"] || !names["Bob"] {
		t.Fatalf("SelectRows missing expected names: %v", rows)
	}
}

func TestInsertDuplicatePrimaryKeyFails(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateTable("users", usersSchema(), IDManual); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := s.InsertRow(s.NextTxnID(), "users", Row{"id": int64(1), "name": "Alice"}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	err := s.InsertRow(s.NextTxnID(), "users", Row{"id": int64(1), "name": "Eve"})
	if err == nil {
		t.Fatal("InsertRow should reject a duplicate primary key")
	}
}

func TestInsertUnknownColumnRejected(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateTable("users", usersSchema(), IDManual); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	err := s.InsertRow(s.NextTxnID(), "users", Row{"id": int64(1), "bogus": "x"})
	if err == nil {
		t.Fatal("InsertRow should reject an unknown column")
	}
}

func TestAutoIncrementAssignsID(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateTable("users", usersSchema(), IDAutoIncrement); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := s.InsertRow(s.NextTxnID(), "users", Row{"name": "Alice"}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	if err := s.InsertRow(s.NextTxnID(), "users", Row{"name": "Bob"}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	rows, err := s.SelectRows(SelectQuery{Table: "users"})
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	seen := map[int64]bool{}
	for _, r := range rows {
		seen[r["id"].(int64)] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("auto-increment ids = %v, want {1, 2}", rows)
	}
}

func TestUpdateRowsAppliesMutateToMatching(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateTable("users", usersSchema(), IDManual); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := s.InsertRow(s.NextTxnID(), "users", Row{"id": i, "name": "n", "age": i * 10}); err != nil {
			t.Fatalf("InsertRow: %v", err)
		}
	}
	n, err := s.UpdateRows(s.NextTxnID(), UpdateQuery{
		Table:     "users",
		Predicate: func(r Row) bool { return r["id"].(int64) >= 2 },
		Mutate: func(r Row) Row {
			r["name"] = "updated"
			return r
		},
	})
	if err != nil {
		t.Fatalf("UpdateRows: %v", err)
	}
	if n != 2 {
		t.Fatalf("UpdateRows affected %d rows, want 2", n)
	}
	rows, _ := s.SelectRows(SelectQuery{Table: "users"})
	updated := 0
	for _, r := range rows {
		if r["name"] == "updated" {
			updated++
		}
	}
	if updated != 2 {
		t.Fatalf("found %d rows with updated name, want 2", updated)
	}
}

func TestDeleteRowsRemovesMatching(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateTable("users", usersSchema(), IDManual); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := s.InsertRow(s.NextTxnID(), "users", Row{"id": i, "name": "n"}); err != nil {
			t.Fatalf("InsertRow: %v", err)
		}
	}
	n, err := s.DeleteRows(s.NextTxnID(), DeleteQuery{Table: "users", Predicate: func(r Row) bool { return r["id"].(int64) == 2 }})
	if err != nil {
		t.Fatalf("DeleteRows: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteRows removed %d rows, want 1", n)
	}
	rows, _ := s.SelectRows(SelectQuery{Table: "users"})
	if len(rows) != 2 {
		t.Fatalf("remaining rows = %d, want 2", len(rows))
	}
	for _, r := range rows {
		if r["id"].(int64) == 2 {
			t.Fatal("deleted row still present")
		}
	}
}

func TestDropTableRemovesCatalogEntry(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateTable("users", usersSchema(), IDManual); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := s.DropTable("users"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	_, err := s.SelectRows(SelectQuery{Table: "users"})
	if kind, ok := common.KindOf(err); !ok || kind != common.KindNotFound {
		t.Fatalf("SelectRows after DropTable error kind = (%v, %v), want (%v, true)", kind, ok, common.KindNotFound)
	}
}

func TestSelectUnknownTableReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SelectRows(SelectQuery{Table: "ghost"})
	if !errors.Is(err, err) || err == nil {
		t.Fatal("SelectRows on an unknown table should error")
	}
	if kind, ok := common.KindOf(err); !ok || kind != common.KindNotFound {
		t.Fatalf("error kind = (%v, %v), want (%v, true)", kind, ok, common.KindNotFound)
	}
}

func TestReopenPersistsSchemaAndRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	walDir := filepath.Join(dir, "wal")

	p, err := pager.Open(path)
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	pool := buffer.New(p, 256, buffer.NewLRUPolicy(), nil)
	wlog, err := wal.Open(walDir, 0)
	if err != nil {
		t.Fatalf("wal.Open: %v", err)
	}
	s, err := Open(p, pool, wlog, IdentityCodec{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.CreateTable("users", usersSchema(), IDManual); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := s.InsertRow(s.NextTxnID(), "users", Row{"id": int64(1), "name": "Alice"}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	if err := s.FlushToDisk(); err != nil {
		t.Fatalf("FlushToDisk: %v", err)
	}
	if err := wlog.Close(); err != nil {
		t.Fatalf("wal.Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := pager.Open(path)
	if err != nil {
		t.Fatalf("reopen pager: %v", err)
	}
	defer p2.Close()
	pool2 := buffer.New(p2, 256, buffer.NewLRUPolicy(), nil)
	wlog2, err := wal.Open(walDir, 0)
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}
	defer wlog2.Close()
	if err := Recover(p2, pool2, wlog2); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	s2, err := Open(p2, pool2, wlog2, IdentityCodec{})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	rows, err := s2.SelectRows(SelectQuery{Table: "users"})
	if err != nil {
		t.Fatalf("SelectRows after reopen: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Alice" {
		t.Fatalf("rows after reopen = %v, want one row named Alice", rows)
	}
}
