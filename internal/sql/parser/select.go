package parser

import (
	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/lexer"
)

func (p *Parser) parseSelect() (*ast.Select, error) {
	sel := &ast.Select{}

	if p.kw("WITH") {
		p.next()
		with, err := p.parseWithClause()
		if err != nil {
			return nil, err
		}
		sel.With = with
	}

	if err := p.expectKw("SELECT"); err != nil {
		return nil, err
	}
	if p.kw("DISTINCT") {
		sel.Distinct = true
		p.next()
	} else if p.kw("ALL") {
		p.next()
	}

	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	sel.Columns = items

	if p.kw("FROM") {
		p.next()
		from, err := p.parseFromList()
		if err != nil {
			return nil, err
		}
		sel.From = from
	}

	if p.kw("WHERE") {
		p.next()
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = w
	}

	if p.kw("GROUP") {
		p.next()
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		gb, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		sel.GroupBy = gb
	}

	if p.kw("HAVING") {
		p.next()
		h, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Having = h
	}

	if p.kw("ORDER") {
		p.next()
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		ob, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		sel.OrderBy = ob
	}

	if p.kw("LIMIT") {
		p.next()
		lim, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Limit = lim
	}

	if p.kw("OFFSET") {
		p.next()
		off, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Offset = off
	}

	if p.kw("UNION") {
		p.next()
		if err := p.expectKw("ALL"); err != nil {
			return nil, err
		}
		right, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		sel.SetOp = &ast.SetOperation{Op: "UNION ALL", Right: right}
	}

	return sel, nil
}

func (p *Parser) parseWithClause() (*ast.WithClause, error) {
	wc := &ast.WithClause{}
	for {
		recursive := false
		if p.kw("RECURSIVE") {
			recursive = true
			p.next()
		}
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		var cols []string
		if p.tok.Kind == lexer.LParen {
			p.next()
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
		}
		if err := p.expectKw("AS"); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.LParen, "("); err != nil {
			return nil, err
		}
		q, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
		wc.CTEs = append(wc.CTEs, ast.CTE{Name: name, Columns: cols, Recursive: recursive, Query: q})
		if p.tok.Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	return wc, nil
}

func (p *Parser) parseSelectList() ([]ast.SelectItem, error) {
	var items []ast.SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.tok.Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseSelectItem() (ast.SelectItem, error) {
	if p.tok.Kind == lexer.Star {
		p.next()
		return ast.SelectItem{Star: true}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return ast.SelectItem{}, err
	}
	item := ast.SelectItem{Expr: e}
	if p.kw("AS") {
		p.next()
		alias, err := p.parseIdent()
		if err != nil {
			return ast.SelectItem{}, err
		}
		item.Alias = alias
	} else if p.tok.Kind == lexer.Ident {
		alias, err := p.parseIdent()
		if err != nil {
			return ast.SelectItem{}, err
		}
		item.Alias = alias
	}
	return item, nil
}

func (p *Parser) parseFromList() ([]ast.TableRef, error) {
	var refs []ast.TableRef
	for {
		ref, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
		if p.tok.Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	return refs, nil
}

func (p *Parser) parseTableRef() (ast.TableRef, error) {
	left, err := p.parsePrimaryTableRef()
	if err != nil {
		return ast.TableRef{}, err
	}
	for {
		kind, ok := p.parseJoinKeyword()
		if !ok {
			break
		}
		right, err := p.parsePrimaryTableRef()
		if err != nil {
			return ast.TableRef{}, err
		}
		var onExpr ast.Expr
		if kind != "CROSS" {
			if err := p.expectKw("ON"); err != nil {
				return ast.TableRef{}, err
			}
			onExpr, err = p.parseExpr()
			if err != nil {
				return ast.TableRef{}, err
			}
		}
		l, r := left, right
		left = ast.TableRef{Join: &ast.Join{Kind: kind, Left: &l, Right: &r, On: onExpr}}
	}
	return left, nil
}

func (p *Parser) parseJoinKeyword() (string, bool) {
	switch {
	case p.kw("JOIN"):
		p.next()
		return "INNER", true
	case p.kw("INNER"):
		p.next()
		p.expectKw("JOIN")
		return "INNER", true
	case p.kw("LEFT"):
		p.next()
		if p.kw("OUTER") {
			p.next()
		}
		p.expectKw("JOIN")
		return "LEFT", true
	case p.kw("RIGHT"):
		p.next()
		if p.kw("OUTER") {
			p.next()
		}
		p.expectKw("JOIN")
		return "RIGHT", true
	case p.kw("FULL"):
		p.next()
		if p.kw("OUTER") {
			p.next()
		}
		p.expectKw("JOIN")
		return "FULL", true
	case p.kw("CROSS"):
		p.next()
		p.expectKw("JOIN")
		return "CROSS", true
	default:
		return "", false
	}
}

func (p *Parser) parsePrimaryTableRef() (ast.TableRef, error) {
	if p.tok.Kind == lexer.LParen {
		p.next()
		sub, err := p.parseSelect()
		if err != nil {
			return ast.TableRef{}, err
		}
		if _, err := p.expect(lexer.RParen, ")"); err != nil {
			return ast.TableRef{}, err
		}
		ref := ast.TableRef{Subquery: sub}
		if p.kw("AS") {
			p.next()
		}
		if p.tok.Kind == lexer.Ident {
			alias, err := p.parseIdent()
			if err != nil {
				return ast.TableRef{}, err
			}
			ref.Alias = alias
		}
		return ref, nil
	}
	name, err := p.parseIdent()
	if err != nil {
		return ast.TableRef{}, err
	}
	ref := ast.TableRef{Table: name}
	if p.kw("AS") {
		p.next()
		alias, err := p.parseIdent()
		if err != nil {
			return ast.TableRef{}, err
		}
		ref.Alias = alias
	} else if p.tok.Kind == lexer.Ident {
		alias, err := p.parseIdent()
		if err != nil {
			return ast.TableRef{}, err
		}
		ref.Alias = alias
	}
	return ref, nil
}

func (p *Parser) parseOrderByList() ([]ast.OrderItem, error) {
	var items []ast.OrderItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		desc := false
		if p.kw("ASC") {
			p.next()
		} else if p.kw("DESC") {
			desc = true
			p.next()
		}
		items = append(items, ast.OrderItem{Expr: e, Descending: desc})
		if p.tok.Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseExprList() ([]ast.Expr, error) {
	var exprs []ast.Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if p.tok.Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	return exprs, nil
}
