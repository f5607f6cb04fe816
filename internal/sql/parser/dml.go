package parser

import (
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/lexer"
)

func (p *Parser) parseInsert() (ast.Statement, error) {
	p.next() // INSERT
	if err := p.expectKw("INTO"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	ins := &ast.Insert{Table: table}
	if p.tok.Kind == lexer.LParen {
		p.next()
		for {
			c, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			ins.Columns = append(ins.Columns, c)
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
	if err := p.expectKw("VALUES"); err != nil {
		return nil, err
	}
	for {
		if _, err := p.expect(lexer.LParen, "("); err != nil {
			return nil, err
		}
		vals, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
		ins.Values = append(ins.Values, vals)
		if p.tok.Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	return ins, nil
}

func (p *Parser) parseUpdate() (ast.Statement, error) {
	p.next() // UPDATE
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	upd := &ast.Update{Table: table}
	if err := p.expectKw("SET"); err != nil {
		return nil, err
	}
	for {
		col, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Eq, "="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		upd.Set = append(upd.Set, ast.Assignment{Column: col, Value: val})
		if p.tok.Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	if p.kw("WHERE") {
		p.next()
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		upd.Where = w
	}
	return upd, nil
}

func (p *Parser) parseDelete() (ast.Statement, error) {
	p.next() // DELETE
	if err := p.expectKw("FROM"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	del := &ast.Delete{Table: table}
	if p.kw("WHERE") {
		p.next()
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		del.Where = w
	}
	return del, nil
}
