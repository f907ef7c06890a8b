// Package expr implements the sandboxed expression language used for
// templated configuration and predicates in flowmark workflows.
//
// The language is a small JavaScript-expression subset:
//
//   - Literals: numbers, single/double quoted strings, true, false, null,
//     undefined, array literals
//   - Binary operators: + - * / % == === != !== < > <= >= && || ??
//   - Unary operators: ! - +
//   - Ternary conditional: test ? a : b
//   - Member access: obj.field and obj["field"]
//   - Calls on bare identifiers only: upper(name)
//
// Bitwise operators are not part of the grammar. ?? has the lowest
// precedence of all binary operators.
//
// Evaluation is a pure AST walk over an explicit Context. There is no
// access to host reflection: the property names __proto__, constructor
// and prototype are rejected, `this` is rejected, and functions are only
// resolvable through the Context's whitelist, never through variables.
package expr

// NodeKind identifies the variant of an expression AST node.
type NodeKind string

const (
	KindLiteral     NodeKind = "Literal"
	KindIdentifier  NodeKind = "Identifier"
	KindMember      NodeKind = "MemberExpression"
	KindBinary      NodeKind = "BinaryExpression"
	KindUnary       NodeKind = "UnaryExpression"
	KindConditional NodeKind = "ConditionalExpression"
	KindArray       NodeKind = "ArrayExpression"
	KindCall        NodeKind = "CallExpression"
	KindCompound    NodeKind = "Compound"
	KindThis        NodeKind = "ThisExpression"
)

// Node is a node in the expression AST. Exactly the fields relevant to
// Kind are populated; the rest are zero.
type Node struct {
	Kind NodeKind

	// Literal
	Value any

	// Identifier / Member property (non-computed)
	Name string

	// Member
	Object   *Node
	Property *Node
	Computed bool

	// Binary / Unary
	Operator string
	Left     *Node
	Right    *Node
	Operand  *Node

	// Conditional
	Test       *Node
	Consequent *Node
	Alternate  *Node

	// Array elements / Call arguments / Compound expressions
	Elements []*Node

	// Call
	Callee *Node
	Args   []*Node

	// Pos is the byte offset of the node's first token within the
	// expression source. Used for error reporting.
	Pos int
}
