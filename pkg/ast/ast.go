// Package ast defines voxl's abstract syntax tree.
//
// Design note: many hand-rolled tree-walkers use a deep visitor
// hierarchy, one interface and one concrete type per expression or
// statement kind, dispatched through double-dispatch Accept/Visit
// methods. That collapses badly in Go, which has no sum types: it
// would mean dozens of tiny one-field structs and a parallel visitor
// interface per node category.
//
// Instead Node is a single tagged-variant struct: a Kind enum plus a
// small set of shared fields whose meaning depends on Kind. The
// compiler dispatches with a plain switch on Kind, exactly the way it
// already switches on bytecode.Opcode. This is the same collapsing
// trick applied twice: once to opcodes (already flat) and once here
// to the tree that produces them.
package ast

import "github.com/kristofer/voxl/pkg/token"

// Kind tags what a Node represents.
type Kind int

const (
	// Expressions
	IntLit Kind = iota
	FloatLit
	StringLit
	BoolLit
	NullLit
	Identifier
	ListLit
	DictLit
	Lambda
	Call
	FieldAccess
	IndexAccess
	Unary
	Binary
	LogicalAnd
	LogicalOr
	AssignExpr
	CompoundAssignExpr

	// Statements
	ExprStmt
	VarDecl
	Block
	FuncDecl
	ReturnStmt
	IfStmt
	LoopStmt
	WhileStmt
	BreakStmt
	ContinueStmt
	ClassDecl
	ImplDecl
	MethodDecl
	TryStmt
	ThrowStmt
	MatchStmt
	UseStmt
)

// DictPair is one `key: value` entry of a dict literal.
type DictPair struct {
	Key   *Node
	Value *Node
}

// CatchClause is one `catch Pattern -> name { body }` arm of a TryStmt.
type CatchClause struct {
	ClassName string // empty means catch-all
	BindName  string // name bound to the caught value
	Body      *Node  // Block
	Start     int
	End       int
}

// MatchCase is one `Pattern => expr` arm of a MatchStmt.
type MatchCase struct {
	ClassName string
	BindName  string
	Body      *Node
}

// UseForm distinguishes the three `use` import flavors.
type UseForm int

const (
	UsePlain    UseForm = iota // use "path" [-> name]
	UseWildcard                // use "path" -> *
	UseSelect                  // use "path" -> (a, b -> c)
)

// UseAlias is one selected/aliased binding of a UseSelect import.
type UseAlias struct {
	Name  string
	Alias string // equals Name when no alias given
}

// Node is voxl's single AST node type. Only the fields relevant to
// Kind are populated; others are left zero. Start/End are absolute
// source byte offsets for diagnostics via the SourceMap.
type Node struct {
	Kind  Kind
	Start int
	End   int

	// Literal payloads.
	IntVal    int64
	FloatVal  float64
	StrVal    string
	BoolVal   bool

	// Identifier / field / selector name; method name for MethodDecl;
	// function name for FuncDecl (empty for anonymous lambdas); class
	// name for ClassDecl.
	Name string

	// Operator kind for Unary/Binary/CompoundAssignExpr.
	Op token.Kind

	// Generic children. Meaning depends on Kind:
	//   Unary:          A = operand
	//   Binary/Logical:  A = left, B = right
	//   AssignExpr:      A = target (Identifier/FieldAccess/IndexAccess), B = value
	//   CompoundAssignExpr: same as AssignExpr, Op holds the compound operator
	//   FieldAccess:     A = receiver, Name = field
	//   IndexAccess:     A = receiver, B = index
	//   Call:            A = callee, List = args
	//   IfStmt:          A = cond, B = then-Block, C = else-Block-or-IfStmt (may be nil)
	//   WhileStmt:       A = cond, B = body
	//   LoopStmt:        A = body
	//   ExprStmt:        A = expression
	//   ReturnStmt:      A = value (may be nil)
	//   ThrowStmt:       A = value
	//   VarDecl:         List = names, Pairs[i].Value = initializer (Key nil)
	A *Node
	B *Node
	C *Node

	List  []*Node // statements, args, list-literal elements
	Pairs []DictPair

	Params []string // lambda/function/method parameter names

	SuperName string        // ClassDecl: optional superclass name
	Methods   []*Node       // ClassDecl/ImplDecl: MethodDecl nodes
	Catches   []CatchClause // TryStmt
	Finally   *Node         // TryStmt: Block, may be nil
	Cases     []MatchCase   // MatchStmt
	Subject   *Node         // MatchStmt: the value being matched

	UseForm   UseForm
	UsePath   string
	UseBind   string     // UsePlain: local name (derived from path stem if empty)
	UseAlias  []UseAlias // UseSelect
}

// Program is the root of a parsed compilation unit: a flat list of
// top-level statements.
type Program struct {
	Statements []*Node
}
