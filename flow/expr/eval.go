package expr

import (
	"fmt"
	"math"
	"strconv"
)

// blockedProperties are the reflection escape hatches rejected by the
// member-access security gate. The gate is a rule on names, not object
// identity: the properties are unreachable no matter what object carries
// them.
var blockedProperties = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// Evaluate parses and evaluates an expression against ctx.
func Evaluate(src string, ctx *Context) (any, error) {
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	ev := &evaluator{src: src, ctx: ctx}
	return ev.eval(node)
}

// EvaluateNode evaluates an already-parsed expression AST. src is used
// only for error messages and may be empty.
func EvaluateNode(node *Node, src string, ctx *Context) (any, error) {
	ev := &evaluator{src: src, ctx: ctx}
	return ev.eval(node)
}

type evaluator struct {
	src string
	ctx *Context
}

func (e *evaluator) errf(pos int, format string, args ...any) *Error {
	return newError(fmt.Sprintf(format, args...), e.src, pos)
}

func (e *evaluator) eval(n *Node) (any, error) {
	switch n.Kind {
	case KindLiteral:
		return n.Value, nil

	case KindIdentifier:
		if e.ctx == nil || e.ctx.Variables == nil {
			return nil, nil
		}
		// Missing names yield the absent value, not an error.
		return e.ctx.Variables[n.Name], nil

	case KindThis:
		return nil, e.errf(n.Pos, "'this' is not allowed in sandboxed expressions")

	case KindMember:
		return e.evalMember(n)

	case KindCall:
		return e.evalCall(n)

	case KindUnary:
		return e.evalUnary(n)

	case KindBinary:
		return e.evalBinary(n)

	case KindConditional:
		test, err := e.eval(n.Test)
		if err != nil {
			return nil, err
		}
		if Truthy(test) {
			return e.eval(n.Consequent)
		}
		return e.eval(n.Alternate)

	case KindArray:
		out := make([]any, len(n.Elements))
		for i, el := range n.Elements {
			v, err := e.eval(el)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case KindCompound:
		var last any
		for _, el := range n.Elements {
			v, err := e.eval(el)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil
	}
	return nil, e.errf(n.Pos, "unsupported expression kind %s", n.Kind)
}

func (e *evaluator) evalMember(n *Node) (any, error) {
	obj, err := e.eval(n.Object)
	if err != nil {
		return nil, err
	}

	var name string
	if n.Computed {
		prop, err := e.eval(n.Property)
		if err != nil {
			return nil, err
		}
		name = Render(prop)
	} else {
		name = n.Property.Name
	}

	if blockedProperties[name] {
		return nil, e.errf(n.Pos, "access to property %q is blocked for security reasons", name)
	}

	// Null-safe chain: absent objects yield absent.
	if obj == nil {
		return nil, nil
	}

	switch o := obj.(type) {
	case map[string]any:
		return o[name], nil
	case []any:
		idx, err := strconv.Atoi(name)
		if err != nil || idx < 0 || idx >= len(o) {
			return nil, nil
		}
		return o[idx], nil
	case string:
		if name == "length" {
			return float64(len(o)), nil
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func (e *evaluator) evalCall(n *Node) (any, error) {
	callee := n.Callee
	if callee.Kind != KindIdentifier {
		return nil, e.errf(n.Pos, "only direct function calls are allowed")
	}
	if e.ctx == nil || e.ctx.Functions == nil {
		return nil, e.errf(n.Pos, "function %q is not defined", callee.Name)
	}
	fn, ok := e.ctx.Functions[callee.Name]
	if !ok {
		return nil, e.errf(n.Pos, "function %q is not defined", callee.Name)
	}

	args := make([]any, len(n.Args))
	for i, a := range n.Args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	out, err := fn(args)
	if err != nil {
		return nil, e.errf(n.Pos, "function %q: %v", callee.Name, err)
	}
	return out, nil
}

func (e *evaluator) evalUnary(n *Node) (any, error) {
	v, err := e.eval(n.Operand)
	if err != nil {
		return nil, err
	}
	switch n.Operator {
	case "!":
		return !Truthy(v), nil
	case "-":
		return -ToNumber(v), nil
	case "+":
		return ToNumber(v), nil
	}
	return nil, e.errf(n.Pos, "unsupported unary operator %q", n.Operator)
}

func (e *evaluator) evalBinary(n *Node) (any, error) {
	// Short-circuit operators evaluate the right side lazily and return
	// operand values, not booleans, matching JavaScript.
	switch n.Operator {
	case "&&":
		left, err := e.eval(n.Left)
		if err != nil {
			return nil, err
		}
		if !Truthy(left) {
			return left, nil
		}
		return e.eval(n.Right)
	case "||":
		left, err := e.eval(n.Left)
		if err != nil {
			return nil, err
		}
		if Truthy(left) {
			return left, nil
		}
		return e.eval(n.Right)
	case "??":
		left, err := e.eval(n.Left)
		if err != nil {
			return nil, err
		}
		if left != nil {
			return left, nil
		}
		return e.eval(n.Right)
	}

	left, err := e.eval(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "+":
		if ls, ok := left.(string); ok {
			return ls + Render(right), nil
		}
		if rs, ok := right.(string); ok {
			return Render(left) + rs, nil
		}
		return ToNumber(left) + ToNumber(right), nil
	case "-":
		return ToNumber(left) - ToNumber(right), nil
	case "*":
		return ToNumber(left) * ToNumber(right), nil
	case "/":
		return ToNumber(left) / ToNumber(right), nil
	case "%":
		return math.Mod(ToNumber(left), ToNumber(right)), nil
	case "==":
		return looseEquals(left, right), nil
	case "!=":
		return !looseEquals(left, right), nil
	case "===":
		return strictEquals(left, right), nil
	case "!==":
		return !strictEquals(left, right), nil
	case "<", ">", "<=", ">=":
		return compare(n.Operator, left, right), nil
	}
	return nil, e.errf(n.Pos, "unsupported operator %q", n.Operator)
}

func compare(op string, left, right any) bool {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			switch op {
			case "<":
				return ls < rs
			case ">":
				return ls > rs
			case "<=":
				return ls <= rs
			case ">=":
				return ls >= rs
			}
		}
	}
	ln, rn := ToNumber(left), ToNumber(right)
	if math.IsNaN(ln) || math.IsNaN(rn) {
		return false
	}
	switch op {
	case "<":
		return ln < rn
	case ">":
		return ln > rn
	case "<=":
		return ln <= rn
	case ">=":
		return ln >= rn
	}
	return false
}
