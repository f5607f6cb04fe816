package parser

import (
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/lexer"
)

func (p *Parser) parseCreate() (ast.Statement, error) {
	p.next() // CREATE
	unique := false
	if p.kw("UNIQUE") {
		unique = true
		p.next()
	}
	switch {
	case p.kw("TABLE"):
		return p.parseCreateTable()
	case p.kw("INDEX"):
		return p.parseCreateIndexImpl(unique)
	default:
		return nil, p.errorf("expected TABLE or INDEX after CREATE, got %q", p.tok.Text)
	}
}

func (p *Parser) parseCreateTable() (ast.Statement, error) {
	p.next() // TABLE
	ct := &ast.CreateTable{}
	if p.kw("IF") {
		p.next()
		if err := p.expectKw("NOT"); err != nil {
			return nil, err
		}
		name, err := p.parseIdent() // EXISTS is a keyword; parseIdent accepts keywords
		if err != nil {
			return nil, err
		}
		if name != "EXISTS" {
			return nil, p.errorf("expected EXISTS, got %q", name)
		}
		ct.IfNotExist = true
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	ct.Table = table
	if _, err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		ct.Columns = append(ct.Columns, col)
		if p.tok.Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return ct, nil
}

var typeNames = map[string]bool{"INTEGER": true, "TEXT": true, "BLOB": true, "REAL": true, "BOOLEAN": true}

func (p *Parser) parseColumnDef() (ast.ColumnDef, error) {
	name, err := p.parseIdent()
	if err != nil {
		return ast.ColumnDef{}, err
	}
	col := ast.ColumnDef{Name: name, Nullable: true}
	// Type names that are not keywords (INT, BIGINT, VARCHAR, ...) arrive as
	// identifiers; the executor maps them onto storage types.
	if p.tok.Kind != lexer.Ident && (p.tok.Kind != lexer.Keyword || !typeNames[p.tok.Text]) {
		return ast.ColumnDef{}, p.errorf("expected a column type, got %q", p.tok.Text)
	}
	col.Type = p.tok.Text
	p.next()
	for {
		switch {
		case p.kw("NOT"):
			p.next()
			if err := p.expectKw("NULL"); err != nil {
				return ast.ColumnDef{}, err
			}
			col.Nullable = false
		case p.kw("NULL"):
			p.next()
		case p.kw("UNIQUE"):
			p.next()
			col.Unique = true
		case p.kw("PRIMARY"):
			p.next()
			if err := p.expectKw("KEY"); err != nil {
				return ast.ColumnDef{}, err
			}
			col.PrimaryKey = true
			col.Nullable = false
		case p.kw("AUTOINCREMENT"):
			p.next()
			col.AutoIncrement = true
		default:
			return col, nil
		}
	}
}

func (p *Parser) parseCreateIndexImpl(unique bool) (ast.Statement, error) {
	p.next() // INDEX
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("ON"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	var cols []string
	for {
		c, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		if p.tok.Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return &ast.CreateIndex{Name: name, Table: table, Columns: cols, Unique: unique, Composite: len(cols) > 1}, nil
}

func (p *Parser) parseDrop() (ast.Statement, error) {
	p.next() // DROP
	switch {
	case p.kw("TABLE"):
		p.next()
		ifExists := false
		if p.kw("IF") {
			p.next()
			if err := p.expectKw("EXISTS"); err != nil {
				return nil, err
			}
			ifExists = true
		}
		table, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &ast.DropTable{Table: table, IfExists: ifExists}, nil
	case p.kw("INDEX"):
		p.next()
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &ast.DropIndex{Name: name}, nil
	default:
		return nil, p.errorf("expected TABLE or INDEX after DROP, got %q", p.tok.Text)
	}
}

func (p *Parser) parseAlterTable() (ast.Statement, error) {
	p.next() // ALTER
	if err := p.expectKw("TABLE"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	at := &ast.AlterTable{Table: table}
	switch {
	case p.kw("ADD"):
		p.next()
		if p.kw("COLUMN") {
			p.next()
		}
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		at.AddColumn = &col
	case p.kw("DROP"):
		p.next()
		if p.kw("COLUMN") {
			p.next()
		}
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		at.DropCol = name
	default:
		return nil, p.errorf("expected ADD or DROP in ALTER TABLE, got %q", p.tok.Text)
	}
	return at, nil
}

func (p *Parser) parseTruncate() (ast.Statement, error) {
	p.next() // TRUNCATE
	if p.kw("TABLE") {
		p.next()
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return &ast.TruncateTable{Table: table}, nil
}

func (p *Parser) parseCompress() (ast.Statement, error) {
	p.next() // COMPRESS
	if p.kw("TABLE") {
		p.next()
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return &ast.CompressTable{Table: table}, nil
}

func (p *Parser) parseAnalyze() (ast.Statement, error) {
	p.next() // ANALYZE
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return &ast.Analyze{Table: table}, nil
}
