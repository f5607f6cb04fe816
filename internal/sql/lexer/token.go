// Package lexer tokenizes SQL text for the recursive-descent parser in
// internal/sql/parser (spec §4.G).
package lexer

// Kind identifies a token's lexical class.
type Kind int

const (
	EOF Kind = iota
	Error

	Ident
	Keyword
	Number
	String
	PositionalParam // $1, $2, ...
	NamedParam      // :name

	// Operators and punctuation.
	Plus
	Minus
	Star
	Slash
	Percent
	Eq
	NotEq
	Lt
	LtEq
	Gt
	GtEq
	Concat // ||
	LParen
	RParen
	Comma
	Dot
	Semicolon
)

// Token is one lexical unit with its source text and offset (counted in
// runes), which the parser puts into its error messages (spec §7).
type Token struct {
	Kind   Kind
	Text   string
	Offset int
}

// keywords is the recognized keyword set; lookups are case-insensitive.
var keywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "INSERT": true, "INTO": true,
	"VALUES": true, "UPDATE": true, "SET": true, "DELETE": true, "CREATE": true,
	"TABLE": true, "DROP": true, "ALTER": true, "INDEX": true, "ON": true,
	"TRUNCATE": true, "COMPRESS": true, "EXPLAIN": true, "ANALYZE": true,
	"BEGIN": true, "TRANSACTION": true, "COMMIT": true, "ROLLBACK": true,
	"SAVEPOINT": true, "TO": true, "RELEASE": true, "PREPARE": true, "AS": true,
	"EXECUTE": true, "DEALLOCATE": true, "AND": true, "OR": true, "NOT": true,
	"NULL": true, "IS": true, "IN": true, "EXISTS": true, "CASE": true,
	"WHEN": true, "THEN": true, "ELSE": true, "END": true, "EXTRACT": true,
	"DEFAULT": true, "OVER": true, "PARTITION": true, "BY": true, "ORDER": true,
	"ASC": true, "DESC": true, "GROUP": true, "HAVING": true, "LIMIT": true,
	"OFFSET": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"OUTER": true, "FULL": true, "CROSS": true, "UNION": true, "ALL": true,
	"WITH": true, "RECURSIVE": true, "DISTINCT": true, "LIKE": true,
	"BETWEEN": true, "PRIMARY": true, "KEY": true, "UNIQUE": true,
	"FOREIGN": true, "REFERENCES": true, "CHECK": true, "INTEGER": true,
	"TEXT": true, "BLOB": true, "REAL": true, "BOOLEAN": true, "TRUE": true,
	"FALSE": true, "AUTOINCREMENT": true, "ADD": true, "COLUMN": true, "IF": true,
	"NEUROMATCH": true, "SYNAPTICOPTIMIZE": true, "LEARNPATTERN": true,
	"ADAPTWEIGHTS": true, "QUANTUMSEARCH": true, "SUPERPOSITIONQUERY": true,
	"QUANTUMJOIN": true,
}

// IsKeyword reports whether the upper-cased text is a recognized keyword.
func IsKeyword(upper string) bool { return keywords[upper] }
