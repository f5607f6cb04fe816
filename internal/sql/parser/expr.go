package parser

import (
	"strconv"

	"github.com/neuroquantum/neuroquantumdb/internal/sql/ast"
	"github.com/neuroquantum/neuroquantumdb/internal/sql/lexer"
)

// precedence climbing, lowest to highest: OR, AND, NOT, comparison/IS/IN/
// LIKE/BETWEEN, concat, additive, multiplicative, unary, primary.

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.kw("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.kw("AND") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expr, error) {
	if p.kw("NOT") {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "NOT", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.tok.Kind == lexer.Eq, p.tok.Kind == lexer.NotEq,
			p.tok.Kind == lexer.Lt, p.tok.Kind == lexer.LtEq,
			p.tok.Kind == lexer.Gt, p.tok.Kind == lexer.GtEq:
			op := p.tok.Text
			p.next()
			right, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
		case p.kw("IS"):
			p.next()
			not := false
			if p.kw("NOT") {
				not = true
				p.next()
			}
			if err := p.expectKw("NULL"); err != nil {
				return nil, err
			}
			left = &ast.IsNull{Operand: left, Not: not}
		case p.kw("IN"):
			e, err := p.parseInClause(left, false)
			if err != nil {
				return nil, err
			}
			left = e
		case p.kw("BETWEEN"):
			p.next()
			low, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			if err := p.expectKw("AND"); err != nil {
				return nil, err
			}
			high, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			left = &ast.BetweenExpr{Operand: left, Low: low, High: high}
		case p.kw("LIKE"):
			p.next()
			pattern, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			left = &ast.LikeExpr{Operand: left, Pattern: pattern}
		case p.kw("NOT"):
			p.next()
			switch {
			case p.kw("IN"):
				e, err := p.parseInClause(left, true)
				if err != nil {
					return nil, err
				}
				left = e
			case p.kw("LIKE"):
				p.next()
				pattern, err := p.parseConcat()
				if err != nil {
					return nil, err
				}
				left = &ast.LikeExpr{Operand: left, Pattern: pattern, Not: true}
			case p.kw("BETWEEN"):
				p.next()
				low, err := p.parseConcat()
				if err != nil {
					return nil, err
				}
				if err := p.expectKw("AND"); err != nil {
					return nil, err
				}
				high, err := p.parseConcat()
				if err != nil {
					return nil, err
				}
				left = &ast.BetweenExpr{Operand: left, Low: low, High: high, Not: true}
			default:
				return nil, p.errorf("expected IN/LIKE/BETWEEN after NOT, got %q", p.tok.Text)
			}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseInClause(operand ast.Expr, not bool) (ast.Expr, error) {
	p.next() // IN
	if _, err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	if p.kw("SELECT") || p.kw("WITH") {
		q, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
		return &ast.InSubquery{Operand: operand, Query: q, Not: not}, nil
	}
	list, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return &ast.InList{Operand: operand, List: list, Not: not}, nil
}

func (p *Parser) parseConcat() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == lexer.Concat {
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == lexer.Plus || p.tok.Kind == lexer.Minus {
		op := p.tok.Text
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == lexer.Star || p.tok.Kind == lexer.Slash || p.tok.Kind == lexer.Percent {
		op := p.tok.Text
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.tok.Kind == lexer.Minus || p.tok.Kind == lexer.Plus {
		op := p.tok.Text
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: op, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	switch p.tok.Kind {
	case lexer.Number:
		text := p.tok.Text
		p.next()
		if containsDot(text) {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, p.errorf("invalid float literal %q", text)
			}
			return &ast.Literal{Value: f}, nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer literal %q", text)
		}
		return &ast.Literal{Value: n}, nil
	case lexer.String:
		text := p.tok.Text
		p.next()
		return &ast.Literal{Value: text}, nil
	case lexer.PositionalParam:
		n, _ := strconv.Atoi(p.tok.Text)
		p.next()
		return &ast.ParamRef{Positional: n}, nil
	case lexer.NamedParam:
		name := p.tok.Text
		p.next()
		return &ast.ParamRef{Name: name}, nil
	case lexer.LParen:
		p.next()
		if p.kw("SELECT") || p.kw("WITH") {
			q, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RParen, ")"); err != nil {
				return nil, err
			}
			return &ast.ScalarSubquery{Query: q}, nil
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case lexer.Keyword:
		switch p.tok.Text {
		case "NULL":
			p.next()
			return &ast.Literal{Value: nil}, nil
		case "TRUE":
			p.next()
			return &ast.Literal{Value: true}, nil
		case "FALSE":
			p.next()
			return &ast.Literal{Value: false}, nil
		case "DEFAULT":
			p.next()
			return &ast.Default{}, nil
		case "CASE":
			return p.parseCase()
		case "EXTRACT":
			return p.parseExtract()
		case "EXISTS":
			p.next()
			not := false
			return p.parseExistsBody(not)
		case "NOT":
			// NOT EXISTS(...)
			p.next()
			if err := p.expectKw("EXISTS"); err != nil {
				return nil, err
			}
			return p.parseExistsBody(true)
		default:
			return p.parseIdentOrCall()
		}
	case lexer.Ident:
		return p.parseIdentOrCall()
	default:
		return nil, p.errorf("unexpected token %q in expression", p.tok.Text)
	}
}

func (p *Parser) parseExistsBody(not bool) (ast.Expr, error) {
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
	return &ast.ExistsExpr{Query: q, Not: not}, nil
}

func (p *Parser) parseCase() (ast.Expr, error) {
	p.next() // CASE
	ce := &ast.CaseExpr{}
	if !p.kw("WHEN") {
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Operand = operand
	}
	for p.kw("WHEN") {
		p.next()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKw("THEN"); err != nil {
			return nil, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Whens = append(ce.Whens, ast.WhenClause{Cond: cond, Then: then})
	}
	if p.kw("ELSE") {
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Else = e
	}
	if err := p.expectKw("END"); err != nil {
		return nil, err
	}
	return ce, nil
}

func (p *Parser) parseExtract() (ast.Expr, error) {
	p.next() // EXTRACT
	if _, err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	field, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("FROM"); err != nil {
		return nil, err
	}
	operand, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return &ast.Extract{Field: field, Operand: operand}, nil
}

func (p *Parser) parseIdentOrCall() (ast.Expr, error) {
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind == lexer.Dot {
		p.next()
		col, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &ast.ColumnRef{Table: name, Column: col}, nil
	}
	if p.tok.Kind != lexer.LParen {
		return &ast.ColumnRef{Column: name}, nil
	}
	p.next() // (
	call := &ast.FuncCall{Name: name}
	if p.tok.Kind == lexer.Star {
		p.next()
		call.Star = true
	} else if p.tok.Kind != lexer.RParen {
		args, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		call.Args = args
	}
	if _, err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	if p.kw("OVER") {
		p.next()
		spec, err := p.parseWindowSpec()
		if err != nil {
			return nil, err
		}
		call.Over = spec
	}
	return call, nil
}

func (p *Parser) parseWindowSpec() (*ast.WindowSpec, error) {
	if _, err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	spec := &ast.WindowSpec{}
	if p.kw("PARTITION") {
		p.next()
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		spec.PartitionBy = exprs
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
		spec.OrderBy = ob
	}
	if _, err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return spec, nil
}

func containsDot(s string) bool {
	for _, r := range s {
		if r == '.' {
			return true
		}
	}
	return false
}
