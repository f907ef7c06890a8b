package expr

// Parse parses an expression string into its AST.
//
// The grammar is the JavaScript-expression subset described in the package
// documentation. Parse errors are returned as *Error carrying the source
// string and the byte offset of the failure.
func Parse(src string) (*Node, error) {
	p := &parser{src: src, lex: &lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseCompound()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, newError("unexpected token "+p.tokText(), src, p.tok.pos)
	}
	return node, nil
}

type parser struct {
	src string
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) tokText() string {
	switch p.tok.kind {
	case tokEOF:
		return "end of expression"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	default:
		return "'" + p.tok.text + "'"
	}
}

func (p *parser) isPunct(text string) bool {
	return p.tok.kind == tokPunct && p.tok.text == text
}

func (p *parser) expect(text string) error {
	if !p.isPunct(text) {
		return newError("expected '"+text+"', found "+p.tokText(), p.src, p.tok.pos)
	}
	return p.advance()
}

// parseCompound handles the comma operator at the top level. A single
// expression is returned unwrapped; a sequence becomes a Compound node
// whose value is that of its last element.
func (p *parser) parseCompound() (*Node, error) {
	first, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if !p.isPunct(",") {
		return first, nil
	}
	elems := []*Node{first}
	for p.isPunct(",") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	return &Node{Kind: KindCompound, Elements: elems, Pos: first.Pos}, nil
}

// parseExpression parses a full expression. ?? sits at the lowest
// precedence level, below the ternary conditional.
func (p *parser) parseExpression() (*Node, error) {
	left, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	for p.isPunct("??") {
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseConditional()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Operator: "??", Left: left, Right: right, Pos: pos}
	}
	return left, nil
}

func (p *parser) parseConditional() (*Node, error) {
	test, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if !p.isPunct("?") {
		return test, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	cons, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	alt, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindConditional, Test: test, Consequent: cons, Alternate: alt, Pos: test.Pos}, nil
}

// binaryPrec maps operators to precedence levels. Higher binds tighter.
// ?? is handled separately in parseExpression.
var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3, "===": 3, "!==": 3,
	"<": 4, ">": 4, "<=": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

func (p *parser) parseBinary(minPrec int) (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokPunct {
		prec, ok := binaryPrec[p.tok.text]
		if !ok || prec <= minPrec {
			break
		}
		op := p.tok.text
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseBinary(prec)
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Operator: op, Left: left, Right: right, Pos: pos}
	}
	return left, nil
}

func (p *parser) parseUnary() (*Node, error) {
	if p.tok.kind == tokPunct {
		switch p.tok.text {
		case "!", "-", "+":
			op := p.tok.text
			pos := p.tok.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &Node{Kind: KindUnary, Operator: op, Operand: operand, Pos: pos}, nil
		}
	}
	return p.parsePostfix()
}

// parsePostfix parses primary expressions followed by any chain of member
// accesses and calls.
func (p *parser) parsePostfix() (*Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokIdent {
				return nil, newError("expected property name after '.'", p.src, p.tok.pos)
			}
			prop := &Node{Kind: KindIdentifier, Name: p.tok.text, Pos: p.tok.pos}
			if err := p.advance(); err != nil {
				return nil, err
			}
			node = &Node{Kind: KindMember, Object: node, Property: prop, Pos: node.Pos}
		case p.isPunct("["):
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			node = &Node{Kind: KindMember, Object: node, Property: idx, Computed: true, Pos: node.Pos}
		case p.isPunct("("):
			if err := p.advance(); err != nil {
				return nil, err
			}
			var args []*Node
			if !p.isPunct(")") {
				for {
					arg, err := p.parseExpression()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if !p.isPunct(",") {
						break
					}
					if err := p.advance(); err != nil {
						return nil, err
					}
				}
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			node = &Node{Kind: KindCall, Callee: node, Args: args, Pos: node.Pos}
		default:
			return node, nil
		}
	}
}

func (p *parser) parsePrimary() (*Node, error) {
	switch p.tok.kind {
	case tokNumber:
		n := &Node{Kind: KindLiteral, Value: p.tok.num, Pos: p.tok.pos}
		return n, p.advance()
	case tokString:
		n := &Node{Kind: KindLiteral, Value: p.tok.str, Pos: p.tok.pos}
		return n, p.advance()
	case tokIdent:
		pos := p.tok.pos
		name := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch name {
		case "true":
			return &Node{Kind: KindLiteral, Value: true, Pos: pos}, nil
		case "false":
			return &Node{Kind: KindLiteral, Value: false, Pos: pos}, nil
		case "null", "undefined":
			return &Node{Kind: KindLiteral, Value: nil, Pos: pos}, nil
		case "this":
			return &Node{Kind: KindThis, Pos: pos}, nil
		}
		return &Node{Kind: KindIdentifier, Name: name, Pos: pos}, nil
	case tokPunct:
		switch p.tok.text {
		case "(":
			if err := p.advance(); err != nil {
				return nil, err
			}
			inner, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		case "[":
			pos := p.tok.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			var elems []*Node
			if !p.isPunct("]") {
				for {
					el, err := p.parseExpression()
					if err != nil {
						return nil, err
					}
					elems = append(elems, el)
					if !p.isPunct(",") {
						break
					}
					if err := p.advance(); err != nil {
						return nil, err
					}
				}
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			return &Node{Kind: KindArray, Elements: elems, Pos: pos}, nil
		}
	}
	return nil, newError("unexpected "+p.tokText(), p.src, p.tok.pos)
}
