package executor

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/neuroquantum/neuroquantumdb/internal/buffer"
	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/planner"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/parser"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/pager"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/row"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/wal"
	"github.com/neuroquantum/neuroquantumdb/internal/txn"
)

func newTestExecutor(t *testing.T) *Executor {
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
	store, err := row.Open(p, pool, wlog, row.IdentityCodec{})
	if err != nil {
		t.Fatalf("row.Open: %v", err)
	}
	return New(store, txn.NewManager(nil), zerolog.Nop())
}

func mustExec(t *testing.T, e *Executor, sql string) *Result {
	t.Helper()
	stmt, err := parser.Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	res, err := e.Execute(stmt, Params{})
	if err != nil {
		t.Fatalf("Execute(%q): %v", sql, err)
	}
	return res
}

func createUsers(t *testing.T, e *Executor) {
	t.Helper()
	mustExec(t, e, "CREATE TABLE users (id INT PRIMARY KEY, name TEXT, age INT)")
}

func TestExecuteCreateAndSelect(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	mustExec(t, e, "INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)")
	mustExec(t, e, "INSERT INTO users (id, name, age) VALUES (2, 'bob', 25)")

	res := mustExec(t, e, "SELECT id, name FROM users WHERE age > 26")
	if len(res.Rows) != 1 || res.Rows[0]["name"] != "alice" {
		t.Fatalf("Rows = %+v, want a single row for alice", res.Rows)
	}
}

func TestExecuteCreateTableIfNotExistsSwallowsDuplicate(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	if _, err := mustExecErr(e, "CREATE TABLE IF NOT EXISTS users (id INT PRIMARY KEY)"); err != nil {
		t.Fatalf("CREATE TABLE IF NOT EXISTS: %v", err)
	}
}

func mustExecErr(e *Executor, sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	return e.Execute(stmt, Params{})
}

func TestExecuteCreateTableDuplicateWithoutIfNotExistsFails(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	_, err := mustExecErr(e, "CREATE TABLE users (id INT PRIMARY KEY)")
	if err == nil {
		t.Fatal("CREATE TABLE should fail on a duplicate table without IF NOT EXISTS")
	}
	if kind, ok := common.KindOf(err); !ok || kind != common.KindAlreadyExists {
		t.Fatalf("err kind = %v, want KindAlreadyExists", kind)
	}
}

func TestExecuteInsertUpdateDelete(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	mustExec(t, e, "INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)")

	res := mustExec(t, e, "UPDATE users SET age = 31 WHERE id = 1")
	if res.RowsAffected != 1 {
		t.Fatalf("UPDATE RowsAffected = %d, want 1", res.RowsAffected)
	}
	sel := mustExec(t, e, "SELECT age FROM users WHERE id = 1")
	if sel.Rows[0]["age"] != int64(31) {
		t.Fatalf("age after UPDATE = %v, want 31", sel.Rows[0]["age"])
	}

	del := mustExec(t, e, "DELETE FROM users WHERE id = 1")
	if del.RowsAffected != 1 {
		t.Fatalf("DELETE RowsAffected = %d, want 1", del.RowsAffected)
	}
	sel = mustExec(t, e, "SELECT id FROM users")
	if len(sel.Rows) != 0 {
		t.Fatalf("Rows after DELETE = %+v, want none", sel.Rows)
	}
}

func TestExecuteDropTable(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	mustExec(t, e, "DROP TABLE users")
	if _, err := mustExecErr(e, "SELECT id FROM users"); err == nil {
		t.Fatal("SELECT over a dropped table should fail")
	}
}

func TestExecuteDropTableIfExistsSwallowsMissingTable(t *testing.T) {
	e := newTestExecutor(t)
	if _, err := mustExecErr(e, "DROP TABLE IF EXISTS ghost"); err != nil {
		t.Fatalf("DROP TABLE IF EXISTS: %v", err)
	}
}

func TestExecuteAlterTableAddColumnUnsupported(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	_, err := mustExecErr(e, "ALTER TABLE users ADD COLUMN email TEXT")
	if err == nil {
		t.Fatal("ALTER TABLE ADD COLUMN should report Unsupported")
	}
	if kind, ok := common.KindOf(err); !ok || kind != common.KindUnsupported {
		t.Fatalf("err kind = %v, want KindUnsupported", kind)
	}
}

func TestExecuteCreateIndexRegistersCatalogEntryAndSelectUsesIndexScan(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	mustExec(t, e, "CREATE INDEX idx_users_age ON users (age)")
	if name, ok := e.IndexFor("users", "age"); !ok || name != "idx_users_age" {
		t.Fatalf("IndexFor(users, age) = (%q, %v), want (idx_users_age, true)", name, ok)
	}
	res := mustExec(t, e, "SELECT id FROM users WHERE age = 30")
	if res.Plan == nil {
		t.Fatal("Plan not attached for EXPLAIN-free SELECT")
	}
	proj, ok := res.Plan.Root.(*planner.Project)
	if !ok {
		t.Fatalf("Plan.Root = %T, want *planner.Project", res.Plan.Root)
	}
	if _, ok := proj.Input.(*planner.IndexScan); !ok {
		t.Fatalf("Project.Input = %T, want *planner.IndexScan once the index exists", proj.Input)
	}
}

func TestExecuteCreateIndexDefaultNameAndDropIndex(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	// executeCreateIndex synthesizes a name when the caller supplies none;
	// the grammar always requires one, so this exercises the fallback path
	// directly through Execute rather than via SQL text.
	_, err := e.Execute(&ast.CreateIndex{Table: "users", Columns: []string{"age"}}, Params{})
	if err != nil {
		t.Fatalf("Execute(CreateIndex): %v", err)
	}
	name, ok := e.IndexFor("users", "age")
	if !ok || name != "idx_users_age" {
		t.Fatalf("default index name = %q, want idx_users_age", name)
	}
	mustExec(t, e, "DROP INDEX "+name)
	if _, ok := e.IndexFor("users", "age"); ok {
		t.Fatal("IndexFor should report nothing after DROP INDEX")
	}
}

func TestExecuteDropIndexUnknownFails(t *testing.T) {
	e := newTestExecutor(t)
	if _, err := mustExecErr(e, "DROP INDEX ghost_index"); err == nil {
		t.Fatal("DROP INDEX on an unknown index should fail")
	}
}

func TestExecuteTruncateTable(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	mustExec(t, e, "INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)")
	mustExec(t, e, "TRUNCATE TABLE users")
	res := mustExec(t, e, "SELECT id FROM users")
	if len(res.Rows) != 0 {
		t.Fatalf("Rows after TRUNCATE = %+v, want none", res.Rows)
	}
}

func TestExecuteTransactionControlStatementsUnsupportedThroughExecute(t *testing.T) {
	e := newTestExecutor(t)
	stmt := &ast.BeginTransaction{}
	_, err := e.Execute(stmt, Params{})
	if err == nil {
		t.Fatal("BeginTransaction through Execute should be Unsupported")
	}
	if kind, ok := common.KindOf(err); !ok || kind != common.KindUnsupported {
		t.Fatalf("err kind = %v, want KindUnsupported", kind)
	}
}

func TestExecutePrepareAndExecute(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	mustExec(t, e, "INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)")
	mustExec(t, e, "PREPARE find_by_id AS SELECT name FROM users WHERE id = $1")

	stmt, err := parser.Parse("EXECUTE find_by_id(1)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := e.Execute(stmt, Params{})
	if err != nil {
		t.Fatalf("Execute(EXECUTE): %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["name"] != "alice" {
		t.Fatalf("Rows = %+v, want a single row for alice", res.Rows)
	}
}

func TestExecuteDeallocateRemovesPrepared(t *testing.T) {
	e := newTestExecutor(t)
	createUsers(t, e)
	mustExec(t, e, "PREPARE find_by_id AS SELECT name FROM users WHERE id = $1")
	mustExec(t, e, "DEALLOCATE find_by_id")

	stmt, err := parser.Parse("EXECUTE find_by_id(1)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := e.Execute(stmt, Params{}); err == nil {
		t.Fatal("EXECUTE of a deallocated statement should fail")
	}
}

func TestExecuteEffectStatementWithNoDispatcherIsUnsupported(t *testing.T) {
	e := newTestExecutor(t)
	_, err := mustExecErr(e, "NEUROMATCH users USING pattern")
	if err == nil {
		t.Fatal("effect statement with no dispatcher installed should be Unsupported")
	}
	if kind, ok := common.KindOf(err); !ok || kind != common.KindUnsupported {
		t.Fatalf("err kind = %v, want KindUnsupported", kind)
	}
}
