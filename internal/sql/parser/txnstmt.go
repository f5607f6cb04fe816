package parser

import (
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/lexer"
)

func (p *Parser) parseBeginTransaction() (ast.Statement, error) {
	p.next() // BEGIN
	if p.kw("TRANSACTION") {
		p.next()
	}
	bt := &ast.BeginTransaction{}
	if p.tok.Kind == lexer.Ident || p.tok.Kind == lexer.Keyword {
		// Optional isolation level keyword, e.g. BEGIN SERIALIZABLE.
		bt.Isolation = p.tok.Text
		p.next()
	}
	return bt, nil
}

func (p *Parser) parseRollback() (ast.Statement, error) {
	p.next() // ROLLBACK
	if p.kw("TO") {
		p.next()
		if p.tok.Kind == lexer.Keyword && p.tok.Text == "SAVEPOINT" {
			p.next()
		}
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &ast.RollbackToSavepoint{Name: name}, nil
	}
	return &ast.Rollback{}, nil
}

func (p *Parser) parseSavepoint() (ast.Statement, error) {
	p.next() // SAVEPOINT
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return &ast.Savepoint{Name: name}, nil
}

func (p *Parser) parseReleaseSavepoint() (ast.Statement, error) {
	p.next() // RELEASE
	if p.tok.Kind == lexer.Keyword && p.tok.Text == "SAVEPOINT" {
		p.next()
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return &ast.ReleaseSavepoint{Name: name}, nil
}

func (p *Parser) parsePrepare() (ast.Statement, error) {
	p.next() // PREPARE
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	pr := &ast.Prepare{Name: name}
	if p.tok.Kind == lexer.LParen {
		p.next()
		for {
			t, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			pr.Types = append(pr.Types, t)
			if p.tok.Kind == lexer.Comma {
				p.next()
				continue
			}
			break
		}
		if _, err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKw("AS"); err != nil {
		return nil, err
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	pr.Query = stmt
	return pr, nil
}

func (p *Parser) parseExecute() (ast.Statement, error) {
	p.next() // EXECUTE
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	ex := &ast.Execute{Name: name}
	if p.tok.Kind == lexer.LParen {
		p.next()
		if p.tok.Kind != lexer.RParen {
			args, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			ex.Args = args
		}
		if _, err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
	}
	return ex, nil
}

func (p *Parser) parseDeallocate() (ast.Statement, error) {
	p.next() // DEALLOCATE
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return &ast.Deallocate{Name: name}, nil
}

func (p *Parser) parseExplain() (ast.Statement, error) {
	p.next() // EXPLAIN
	ex := &ast.Explain{Format: "text"}
	if p.kw("ANALYZE") {
		ex.Analyze = true
		p.next()
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	ex.Stmt = stmt
	return ex, nil
}
