// Package parser implements a recursive-descent SQL parser over
// internal/sql/lexer, producing internal/sql/ast trees (spec §4.G).
package parser

import (
	"strings"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/lexer"
)

var effectKeywords = map[string]bool{
	"NEUROMATCH": true, "SYNAPTICOPTIMIZE": true, "LEARNPATTERN": true,
	"ADAPTWEIGHTS": true, "QUANTUMSEARCH": true, "SUPERPOSITIONQUERY": true,
	"QUANTUMJOIN": true,
}

// Parser consumes a token stream one lookahead token at a time.
type Parser struct {
	lx    *lexer.Lexer
	tok   lexer.Token
	src   string
}

// Parse parses a single SQL statement (an optional trailing ';' is
// tolerated but not required).
func Parse(src string) (ast.Statement, error) {
	p := &Parser{lx: lexer.New(src), src: src}
	p.next()
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind == lexer.Semicolon {
		p.next()
	}
	if p.tok.Kind != lexer.EOF {
		return nil, p.errorf("unexpected trailing input %q", p.tok.Text)
	}
	return stmt, nil
}

func (p *Parser) next() { p.tok = p.lx.Next() }

func (p *Parser) errorf(format string, args ...any) error {
	return common.New(common.KindInvalidInput, "sql parse error at offset %d: "+format, append([]any{p.tok.Offset}, args...)...)
}

func (p *Parser) kw(word string) bool {
	return p.tok.Kind == lexer.Keyword && p.tok.Text == word
}

func (p *Parser) expectKw(word string) error {
	if !p.kw(word) {
		return p.errorf("expected keyword %s, got %q", word, p.tok.Text)
	}
	p.next()
	return nil
}

func (p *Parser) expect(kind lexer.Kind, what string) (lexer.Token, error) {
	if p.tok.Kind != kind {
		return lexer.Token{}, p.errorf("expected %s, got %q", what, p.tok.Text)
	}
	t := p.tok
	p.next()
	return t, nil
}

func (p *Parser) parseIdent() (string, error) {
	if p.tok.Kind != lexer.Ident && p.tok.Kind != lexer.Keyword {
		return "", p.errorf("expected identifier, got %q", p.tok.Text)
	}
	name := p.tok.Text
	p.next()
	return name, nil
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	if p.tok.Kind == lexer.Keyword && effectKeywords[p.tok.Text] {
		return p.parseEffectStatement()
	}
	if p.tok.Kind != lexer.Keyword {
		return nil, p.errorf("expected a statement keyword, got %q", p.tok.Text)
	}
	switch p.tok.Text {
	case "SELECT", "WITH":
		return p.parseSelect()
	case "INSERT":
		return p.parseInsert()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	case "CREATE":
		return p.parseCreate()
	case "DROP":
		return p.parseDrop()
	case "ALTER":
		return p.parseAlterTable()
	case "TRUNCATE":
		return p.parseTruncate()
	case "COMPRESS":
		return p.parseCompress()
	case "EXPLAIN":
		return p.parseExplain()
	case "ANALYZE":
		return p.parseAnalyze()
	case "BEGIN":
		return p.parseBeginTransaction()
	case "COMMIT":
		p.next()
		return &ast.Commit{}, nil
	case "ROLLBACK":
		return p.parseRollback()
	case "SAVEPOINT":
		return p.parseSavepoint()
	case "RELEASE":
		return p.parseReleaseSavepoint()
	case "PREPARE":
		return p.parsePrepare()
	case "EXECUTE":
		return p.parseExecute()
	case "DEALLOCATE":
		return p.parseDeallocate()
	default:
		return nil, p.errorf("unrecognized statement keyword %q", p.tok.Text)
	}
}

// parseEffectStatement consumes the rest of the statement verbatim as Raw,
// since the core does not interpret it: the executor hands it to whatever
// EffectHandler is registered with effects.Dispatcher for its Kind.
func (p *Parser) parseEffectStatement() (ast.Statement, error) {
	kind := p.tok.Text
	start := p.tok.Offset
	depth := 0
	for {
		if p.tok.Kind == lexer.EOF {
			break
		}
		if p.tok.Kind == lexer.Semicolon && depth == 0 {
			break
		}
		if p.tok.Kind == lexer.LParen {
			depth++
		}
		if p.tok.Kind == lexer.RParen {
			depth--
		}
		p.next()
	}
	raw := strings.TrimSpace(p.src[start:])
	if idx := strings.IndexByte(raw, ';'); idx >= 0 {
		raw = raw[:idx]
	}
	return &ast.EffectStatement{Kind: kind, Raw: raw}, nil
}
