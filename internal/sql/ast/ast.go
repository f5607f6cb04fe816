// Package ast defines the SQL abstract syntax tree produced by
// internal/sql/parser (spec §4.G). Every statement variant, Select
// included, is used as a pointer type.
package ast

// Statement is implemented by every top-level SQL statement variant.
type Statement interface{ stmt() }

// Expr is implemented by every expression node.
type Expr interface{ expr() }

// Select is the query statement. The parser returns it as *Select, and CTE
// bodies and derived-table subqueries refer to it by pointer as well.
type Select struct {
	With        *WithClause
	Distinct    bool
	Columns     []SelectItem
	From        []TableRef
	Where       Expr
	GroupBy     []Expr
	Having      Expr
	OrderBy     []OrderItem
	Limit       Expr
	Offset      Expr
	SetOp       *SetOperation // non-nil for UNION ALL chains
}

func (*Select) stmt() {}
func (*Select) expr() {} // a Select may appear as a scalar/table subquery

// SetOperation chains a Select onto a following Select via UNION ALL.
type SetOperation struct {
	Op    string // "UNION ALL"
	Right *Select
}

// WithClause holds one or more CTEs, each optionally RECURSIVE.
type WithClause struct {
	CTEs []CTE
}

type CTE struct {
	Name      string
	Columns   []string
	Recursive bool
	Query     *Select
}

// SelectItem is one projected column: Expr AS Alias, or Star for `*`.
type SelectItem struct {
	Expr  Expr
	Alias string
	Star  bool
}

// TableRef is a FROM-list entry: a base table, a subquery, a CTE reference,
// or a join of two other TableRefs.
type TableRef struct {
	Table    string  // base table or CTE name
	Alias    string
	Subquery *Select // non-nil for a derived table
	Join     *Join   // non-nil when this ref is itself a join
}

type Join struct {
	Kind  string // INNER, LEFT, RIGHT, FULL, CROSS
	Left  *TableRef
	Right *TableRef
	On    Expr
}

type OrderItem struct {
	Expr       Expr
	Descending bool
}

// Insert inserts one or more value tuples into a table.
type Insert struct {
	Table   string
	Columns []string
	Values  [][]Expr
}

func (*Insert) stmt() {}

type Update struct {
	Table string
	Set   []Assignment
	Where Expr
}

func (*Update) stmt() {}

type Assignment struct {
	Column string
	Value  Expr
}

type Delete struct {
	Table string
	Where Expr
}

func (*Delete) stmt() {}

type ColumnDef struct {
	Name          string
	Type          string
	Nullable      bool
	Unique        bool
	PrimaryKey    bool
	AutoIncrement bool
}

type CreateTable struct {
	Table      string
	Columns    []ColumnDef
	IfNotExist bool
}

func (*CreateTable) stmt() {}

type DropTable struct {
	Table    string
	IfExists bool
}

func (*DropTable) stmt() {}

// AlterTable carries exactly one of its non-nil operation fields.
type AlterTable struct {
	Table     string
	AddColumn *ColumnDef
	DropCol   string
}

func (*AlterTable) stmt() {}

type CreateIndex struct {
	Name      string
	Table     string
	Columns   []string
	Unique    bool
	Composite bool
}

func (*CreateIndex) stmt() {}

type DropIndex struct {
	Name string
}

func (*DropIndex) stmt() {}

type TruncateTable struct{ Table string }

func (*TruncateTable) stmt() {}

type CompressTable struct{ Table string }

func (*CompressTable) stmt() {}

// Explain wraps another statement for plan output (spec §4.J).
type Explain struct {
	Analyze bool
	Format  string // "text", "json", "yaml"
	Stmt    Statement
}

func (*Explain) stmt() {}

type Analyze struct{ Table string }

func (*Analyze) stmt() {}

type BeginTransaction struct{ Isolation string }

func (*BeginTransaction) stmt() {}

type Commit struct{}

func (*Commit) stmt() {}

type Rollback struct{}

func (*Rollback) stmt() {}

type Savepoint struct{ Name string }

func (*Savepoint) stmt() {}

type RollbackToSavepoint struct{ Name string }

func (*RollbackToSavepoint) stmt() {}

type ReleaseSavepoint struct{ Name string }

func (*ReleaseSavepoint) stmt() {}

type Prepare struct {
	Name  string
	Types []string
	Query Statement
}

func (*Prepare) stmt() {}

type Execute struct {
	Name string
	Args []Expr
}

func (*Execute) stmt() {}

type Deallocate struct{ Name string }

func (*Deallocate) stmt() {}

// Effect-layer statements (spec §4.G, §9): every kind parses to this one
// opaque node, which the executor dispatches to the EffectHandler registered
// with effects.Dispatcher for its Kind. The core ships no solver for any of
// these; Raw retains the statement text for a handler to interpret.
type EffectStatement struct {
	Kind string // "NEUROMATCH", "SYNAPTICOPTIMIZE", ...
	Raw  string
}

func (*EffectStatement) stmt() {}
