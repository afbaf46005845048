// Package parser implements voxl's recursive-descent parser (C3).
//
// Parser Architecture:
//
// The parser looks one token ahead (cur/peek), with a second token of
// lookahead reserved for exactly one place: the variable-declaration
// entry point, which must distinguish `name : expr` (a declaration)
// from `name` starting a larger expression statement. Everywhere else
// a single peek is enough because the grammar is LL(1) by construction
// (every statement and every expression-precedence level starts on a
// distinct token or set of tokens).
//
// Expression precedence (low to high), mirroring a classic Pratt
// table collapsed into one recursive-descent function per level:
//
//	assignment
//	or
//	and
//	equality        == !=
//	comparison      < <= > >=
//	additive        + ++ -
//	multiplicative  * / %
//	unary           - not
//	postfix         call / field / index
//	primary
//
// Error recovery: on an unexpected token the parser reports through
// the Reporter (§6) and calls synchronize, which discards tokens until
// a statement boundary (';', '}', or a token that starts a new
// statement) so one mistake doesn't cascade into dozens of spurious
// errors. A replMode flag suppresses "unexpected end of input" so a
// REPL can feed more lines into the same parse attempt.
package parser

import (
	"fmt"
	"strconv"

	"github.com/kristofer/voxl/pkg/ast"
	"github.com/kristofer/voxl/pkg/lexer"
	"github.com/kristofer/voxl/pkg/reporter"
	"github.com/kristofer/voxl/pkg/srcmap"
	"github.com/kristofer/voxl/pkg/token"
)

// Parser turns a token stream into an AST. Create one per compilation
// unit; it is not reusable across parses.
type Parser struct {
	l   *lexer.Lexer
	sm  *srcmap.SourceMap
	rep reporter.Reporter

	cur  token.Token
	peek token.Token

	replMode   bool
	hadError   bool
	forCounter int // disambiguates nested desugared for-loop hidden locals
}

// New creates a Parser reading from l.
func New(sm *srcmap.SourceMap, l *lexer.Lexer, rep reporter.Reporter) *Parser {
	p := &Parser{l: l, sm: sm, rep: rep}
	p.advance()
	p.advance()
	return p
}

// SetReplMode suppresses end-of-input errors so multi-line REPL input
// can be accumulated across parse attempts.
func (p *Parser) SetReplMode(on bool) {
	p.replMode = on
	p.l.SetReplMode(on)
}

// HadError reports whether any parse error was reported.
func (p *Parser) HadError() bool { return p.hadError }

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.l.Next()
}

func (p *Parser) errorf(start, end int, format string, args ...interface{}) {
	if p.replMode && p.cur.Kind == token.EOF {
		return
	}
	p.hadError = true
	p.rep.ParserError(p.sm, start, end, sprintf(format, args...))
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// ParseProgram parses the entire token stream into a Program.
func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}
	for p.cur.Kind != token.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
		p.skipSemis()
	}
	return prog
}

func (p *Parser) skipSemis() {
	for p.cur.Kind == token.Semi {
		p.advance()
	}
}

// synchronize discards tokens until a statement boundary so recovery
// can continue after a parse error.
func (p *Parser) synchronize() {
	for p.cur.Kind != token.EOF {
		if p.cur.Kind == token.Semi {
			p.advance()
			return
		}
		switch p.cur.Kind {
		case token.Fn, token.If, token.Loop, token.While, token.For,
			token.Class, token.Impl, token.Try, token.Throw, token.Match,
			token.Use, token.Ret, token.Break, token.Continue, token.RBrace:
			return
		}
		p.advance()
	}
}

// ---- statements ----

func (p *Parser) parseStatement() *ast.Node {
	switch p.cur.Kind {
	case token.Fn:
		return p.parseFuncDecl()
	case token.If:
		return p.parseIf()
	case token.Loop:
		return p.parseLoop()
	case token.While:
		return p.parseWhile()
	case token.For:
		return p.parseFor()
	case token.Break:
		start := p.cur.Start
		p.advance()
		return &ast.Node{Kind: ast.BreakStmt, Start: start, End: start}
	case token.Continue:
		start := p.cur.Start
		p.advance()
		return &ast.Node{Kind: ast.ContinueStmt, Start: start, End: start}
	case token.Class:
		return p.parseClass()
	case token.Impl:
		return p.parseImpl()
	case token.Try:
		return p.parseTry()
	case token.Throw:
		return p.parseThrow()
	case token.Match:
		return p.parseMatch()
	case token.Use:
		return p.parseUse()
	case token.Ret:
		return p.parseReturn()
	case token.LBrace:
		return p.parseBlock()
	case token.Ident:
		if p.peek.Kind == token.Decl {
			return p.parseVarDecl()
		}
	}
	return p.parseExprStatement()
}

func (p *Parser) parseBlock() *ast.Node {
	start := p.cur.Start
	p.expect(token.LBrace)
	var stmts []*ast.Node
	for p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		p.skipSemis()
	}
	end := p.cur.End
	p.expect(token.RBrace)
	return &ast.Node{Kind: ast.Block, Start: start, End: end, List: stmts}
}

func (p *Parser) parseVarDecl() *ast.Node {
	start := p.cur.Start
	var names []string
	var inits []ast.DictPair
	for {
		name := p.cur.Literal
		p.expect(token.Ident)
		p.expect(token.Decl)
		value := p.parseExpression()
		names = append(names, name)
		inits = append(inits, ast.DictPair{Value: value})
		if p.cur.Kind == token.Comma {
			p.advance()
			continue
		}
		break
	}
	decl := &ast.Node{Kind: ast.VarDecl, Start: start, End: p.cur.Start}
	for i, n := range names {
		decl.List = append(decl.List, &ast.Node{Kind: ast.Identifier, Name: n})
		decl.Pairs = append(decl.Pairs, inits[i])
	}
	return decl
}

func (p *Parser) parseExprStatement() *ast.Node {
	start := p.cur.Start
	expr := p.parseExpression()
	return &ast.Node{Kind: ast.ExprStmt, Start: start, End: p.cur.Start, A: expr}
}

func (p *Parser) parseReturn() *ast.Node {
	start := p.cur.Start
	p.advance() // ret
	var val *ast.Node
	if p.cur.Kind != token.Semi && p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
		val = p.parseExpression()
	}
	return &ast.Node{Kind: ast.ReturnStmt, Start: start, End: p.cur.Start, A: val}
}

func (p *Parser) parseThrow() *ast.Node {
	start := p.cur.Start
	p.advance()
	val := p.parseExpression()
	return &ast.Node{Kind: ast.ThrowStmt, Start: start, End: p.cur.Start, A: val}
}

func (p *Parser) parseIf() *ast.Node {
	start := p.cur.Start
	p.advance() // if
	cond := p.parseExpression()
	then := p.parseBlock()
	node := &ast.Node{Kind: ast.IfStmt, Start: start, A: cond, B: then}
	switch p.cur.Kind {
	case token.Elif:
		p.cur.Kind = token.If // reinterpret as nested if for recursive parse
		node.C = p.parseIf()
	case token.Else:
		p.advance()
		node.C = p.parseBlock()
	}
	node.End = p.cur.Start
	return node
}

func (p *Parser) parseLoop() *ast.Node {
	start := p.cur.Start
	p.advance()
	body := p.parseBlock()
	return &ast.Node{Kind: ast.LoopStmt, Start: start, End: body.End, A: body}
}

func (p *Parser) parseWhile() *ast.Node {
	start := p.cur.Start
	p.advance()
	cond := p.parseExpression()
	body := p.parseBlock()
	return &ast.Node{Kind: ast.WhileStmt, Start: start, End: body.End, A: cond, B: body}
}

// parseFor desugars `for x in EXPR { body }` per §4.2 into:
//
//	{
//	  $for_iterN : (EXPR).$iter();
//	  try {
//	    x : $for_iterN.$next();
//	    loop { body; x = $for_iterN.$next(); }
//	  } catch StopIteration {}
//	}
//
// The hidden iterator local is named with a '$' prefix: names starting
// with '$' cannot be assigned to by user code (§4.7); this desugaring
// is the sole legitimate source of such names.
func (p *Parser) parseFor() *ast.Node {
	start := p.cur.Start
	p.advance() // for
	varName := p.cur.Literal
	p.expect(token.Ident)
	p.expect(token.In)
	iterExpr := p.parseExpression()
	body := p.parseBlock()

	p.forCounter++
	hidden := "$for_iter" + strconv.Itoa(p.forCounter)

	iterCall := methodCall(iterExpr, "$iter", nil)
	iterDecl := &ast.Node{
		Kind: ast.VarDecl,
		List: []*ast.Node{{Kind: ast.Identifier, Name: hidden}},
		Pairs: []ast.DictPair{{Value: iterCall}},
	}

	nextCall := methodCall(&ast.Node{Kind: ast.Identifier, Name: hidden}, "$next", nil)
	varDecl := &ast.Node{
		Kind: ast.VarDecl,
		List: []*ast.Node{{Kind: ast.Identifier, Name: varName}},
		Pairs: []ast.DictPair{{Value: nextCall}},
	}

	advanceAssign := &ast.Node{
		Kind: ast.ExprStmt,
		A: &ast.Node{
			Kind: ast.AssignExpr,
			A:    &ast.Node{Kind: ast.Identifier, Name: varName},
			B:    methodCall(&ast.Node{Kind: ast.Identifier, Name: hidden}, "$next", nil),
		},
	}
	loopBody := &ast.Node{Kind: ast.Block, List: append(append([]*ast.Node{}, body.List...), advanceAssign)}
	loop := &ast.Node{Kind: ast.LoopStmt, A: loopBody}

	tryBody := &ast.Node{Kind: ast.Block, List: []*ast.Node{varDecl, loop}}
	tryNode := &ast.Node{
		Kind: ast.TryStmt,
		A:    tryBody,
		Catches: []ast.CatchClause{
			{ClassName: "StopIteration", Body: &ast.Node{Kind: ast.Block}},
		},
	}

	return &ast.Node{Kind: ast.Block, Start: start, End: body.End, List: []*ast.Node{iterDecl, tryNode}}
}

func methodCall(receiver *ast.Node, name string, args []*ast.Node) *ast.Node {
	field := &ast.Node{Kind: ast.FieldAccess, A: receiver, Name: name}
	return &ast.Node{Kind: ast.Call, A: field, List: args}
}

func (p *Parser) parseClass() *ast.Node {
	start := p.cur.Start
	p.advance() // class
	name := p.cur.Literal
	p.expect(token.Ident)
	node := &ast.Node{Kind: ast.ClassDecl, Start: start, Name: name}
	if p.cur.Kind == token.Less {
		p.advance()
		node.SuperName = p.cur.Literal
		p.expect(token.Ident)
	}
	p.expect(token.LBrace)
	for p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
		node.Methods = append(node.Methods, p.parseMethod())
		p.skipSemis()
	}
	node.End = p.cur.Start
	p.expect(token.RBrace)
	return node
}

func (p *Parser) parseImpl() *ast.Node {
	start := p.cur.Start
	p.advance() // impl
	name := p.cur.Literal
	p.expect(token.Ident)
	node := &ast.Node{Kind: ast.ImplDecl, Start: start, Name: name}
	p.expect(token.LBrace)
	for p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
		node.Methods = append(node.Methods, p.parseMethod())
		p.skipSemis()
	}
	node.End = p.cur.Start
	p.expect(token.RBrace)
	return node
}

func (p *Parser) parseMethod() *ast.Node {
	start := p.cur.Start
	p.expect(token.Fn)
	name := p.cur.Literal
	p.expect(token.Ident)
	params := p.parseParamList()
	body := p.parseBlock()
	return &ast.Node{Kind: ast.MethodDecl, Start: start, End: body.End, Name: name, Params: params, A: body}
}

func (p *Parser) parseFuncDecl() *ast.Node {
	start := p.cur.Start
	p.advance() // fn
	name := p.cur.Literal
	p.expect(token.Ident)
	params := p.parseParamList()
	body := p.parseBlock()
	return &ast.Node{Kind: ast.FuncDecl, Start: start, End: body.End, Name: name, Params: params, A: body}
}

func (p *Parser) parseParamList() []string {
	p.expect(token.LParen)
	var params []string
	for p.cur.Kind != token.RParen && p.cur.Kind != token.EOF {
		params = append(params, p.cur.Literal)
		p.expect(token.Ident)
		if p.cur.Kind == token.Comma {
			p.advance()
		}
	}
	p.expect(token.RParen)
	return params
}

func (p *Parser) parseTry() *ast.Node {
	start := p.cur.Start
	p.advance() // try
	body := p.parseBlock()
	node := &ast.Node{Kind: ast.TryStmt, Start: start, A: body}
	for p.cur.Kind == token.Catch {
		p.advance()
		var className, bindName string
		if p.cur.Kind == token.Ident {
			className = p.cur.Literal
			p.advance()
		}
		if p.cur.Kind == token.Arrow {
			p.advance()
			bindName = p.cur.Literal
			p.expect(token.Ident)
		}
		cbody := p.parseBlock()
		node.Catches = append(node.Catches, ast.CatchClause{ClassName: className, BindName: bindName, Body: cbody, Start: start, End: cbody.End})
	}
	if p.cur.Kind == token.Finally {
		p.advance()
		node.Finally = p.parseBlock()
	}
	node.End = p.cur.Start
	return node
}

func (p *Parser) parseMatch() *ast.Node {
	start := p.cur.Start
	p.advance() // match
	subject := p.parseExpression()
	p.expect(token.LBrace)
	node := &ast.Node{Kind: ast.MatchStmt, Start: start, Subject: subject}
	for p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
		var className, bindName string
		if p.cur.Kind == token.Ident {
			className = p.cur.Literal
			p.advance()
			if p.cur.Kind == token.Arrow {
				p.advance()
				bindName = p.cur.Literal
				p.expect(token.Ident)
			}
		}
		p.expect(token.FatArrow)
		body := p.parseBlock()
		node.Cases = append(node.Cases, ast.MatchCase{ClassName: className, BindName: bindName, Body: body})
		p.skipSemis()
	}
	node.End = p.cur.Start
	p.expect(token.RBrace)
	return node
}

// parseUse parses the three `use` forms (§4.7):
//
//	use "path"                 -> bind local name derived from the path stem
//	use "path" -> name         -> bind to an explicit local name
//	use "path" -> *            -> import every public global into this module
//	use "path" -> (a, b -> c)  -> import selected (optionally aliased) names
func (p *Parser) parseUse() *ast.Node {
	start := p.cur.Start
	p.advance() // use
	path := p.cur.Literal
	p.expect(token.String)
	node := &ast.Node{Kind: ast.UseStmt, Start: start, UsePath: path, UseForm: ast.UsePlain}
	if p.cur.Kind != token.Arrow {
		node.End = p.cur.Start
		return node
	}
	p.advance() // ->
	switch {
	case p.cur.Kind == token.Star:
		node.UseForm = ast.UseWildcard
		p.advance()
	case p.cur.Kind == token.LParen:
		node.UseForm = ast.UseSelect
		p.advance()
		for p.cur.Kind != token.RParen && p.cur.Kind != token.EOF {
			name := p.cur.Literal
			p.expect(token.Ident)
			alias := name
			if p.cur.Kind == token.Arrow {
				p.advance()
				alias = p.cur.Literal
				p.expect(token.Ident)
			}
			node.UseAlias = append(node.UseAlias, ast.UseAlias{Name: name, Alias: alias})
			if p.cur.Kind == token.Comma {
				p.advance()
			}
		}
		p.expect(token.RParen)
	default:
		node.UseBind = p.cur.Literal
		p.expect(token.Ident)
	}
	node.End = p.cur.Start
	return node
}

// ---- expressions ----

func (p *Parser) parseExpression() *ast.Node { return p.parseAssignment() }

var compoundOps = map[token.Kind]token.Kind{
	token.PlusEq:     token.Plus,
	token.MinusEq:    token.Minus,
	token.StarEq:     token.Star,
	token.SlashEq:    token.Slash,
	token.PercentEq:  token.Percent,
	token.PlusPlusEq: token.PlusPlus,
}

func (p *Parser) parseAssignment() *ast.Node {
	left := p.parseOr()
	if p.cur.Kind == token.Assign {
		start := left.Start
		p.advance()
		value := p.parseAssignment()
		if !isAssignable(left) {
			p.errorf(start, p.cur.Start, "invalid assignment target")
		}
		return &ast.Node{Kind: ast.AssignExpr, Start: start, End: p.cur.Start, A: left, B: value}
	}
	if base, ok := compoundOps[p.cur.Kind]; ok {
		start := left.Start
		op := p.cur.Kind
		p.advance()
		value := p.parseAssignment()
		if !isAssignable(left) {
			p.errorf(start, p.cur.Start, "invalid assignment target")
		}
		return &ast.Node{Kind: ast.CompoundAssignExpr, Start: start, End: p.cur.Start, Op: op, A: left, B: &ast.Node{Kind: ast.Binary, Op: base, A: left, B: value}}
	}
	return left
}

func isAssignable(n *ast.Node) bool {
	switch n.Kind {
	case ast.Identifier, ast.FieldAccess, ast.IndexAccess:
		return true
	}
	return false
}

func (p *Parser) parseOr() *ast.Node {
	left := p.parseAnd()
	for p.cur.Kind == token.Or {
		p.advance()
		right := p.parseAnd()
		left = &ast.Node{Kind: ast.LogicalOr, Start: left.Start, A: left, B: right}
	}
	return left
}

func (p *Parser) parseAnd() *ast.Node {
	left := p.parseEquality()
	for p.cur.Kind == token.And {
		p.advance()
		right := p.parseEquality()
		left = &ast.Node{Kind: ast.LogicalAnd, Start: left.Start, A: left, B: right}
	}
	return left
}

func (p *Parser) parseEquality() *ast.Node {
	left := p.parseComparison()
	for p.cur.Kind == token.Eq || p.cur.Kind == token.NotEq {
		op := p.cur.Kind
		p.advance()
		right := p.parseComparison()
		left = &ast.Node{Kind: ast.Binary, Start: left.Start, Op: op, A: left, B: right}
	}
	return left
}

func (p *Parser) parseComparison() *ast.Node {
	left := p.parseAdditive()
	for p.cur.Kind == token.Less || p.cur.Kind == token.LessEq || p.cur.Kind == token.Greater || p.cur.Kind == token.GreaterEq {
		op := p.cur.Kind
		p.advance()
		right := p.parseAdditive()
		left = &ast.Node{Kind: ast.Binary, Start: left.Start, Op: op, A: left, B: right}
	}
	return left
}

func (p *Parser) parseAdditive() *ast.Node {
	left := p.parseMultiplicative()
	for p.cur.Kind == token.Plus || p.cur.Kind == token.PlusPlus || p.cur.Kind == token.Minus {
		op := p.cur.Kind
		p.advance()
		right := p.parseMultiplicative()
		left = &ast.Node{Kind: ast.Binary, Start: left.Start, Op: op, A: left, B: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() *ast.Node {
	left := p.parseUnary()
	for p.cur.Kind == token.Star || p.cur.Kind == token.Slash || p.cur.Kind == token.Percent {
		op := p.cur.Kind
		p.advance()
		right := p.parseUnary()
		left = &ast.Node{Kind: ast.Binary, Start: left.Start, Op: op, A: left, B: right}
	}
	return left
}

func (p *Parser) parseUnary() *ast.Node {
	if p.cur.Kind == token.Minus || p.cur.Kind == token.Not {
		start := p.cur.Start
		op := p.cur.Kind
		p.advance()
		operand := p.parseUnary()
		return &ast.Node{Kind: ast.Unary, Start: start, Op: op, A: operand}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() *ast.Node {
	expr := p.parsePrimary()
	for {
		switch p.cur.Kind {
		case token.Dot:
			p.advance()
			name := p.cur.Literal
			if p.cur.Kind != token.Ident && p.cur.Kind != token.Dollar {
				p.errorf(p.cur.Start, p.cur.End, "expected field or method name after '.'")
			}
			p.advance()
			field := &ast.Node{Kind: ast.FieldAccess, Start: expr.Start, A: expr, Name: name}
			if p.cur.Kind == token.LParen {
				args := p.parseArgs()
				expr = &ast.Node{Kind: ast.Call, Start: expr.Start, A: field, List: args}
			} else {
				expr = field
			}
		case token.LParen:
			args := p.parseArgs()
			expr = &ast.Node{Kind: ast.Call, Start: expr.Start, A: expr, List: args}
		case token.LBracket:
			p.advance()
			idx := p.parseExpression()
			p.expect(token.RBracket)
			expr = &ast.Node{Kind: ast.IndexAccess, Start: expr.Start, A: expr, B: idx}
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgs() []*ast.Node {
	p.expect(token.LParen)
	var args []*ast.Node
	for p.cur.Kind != token.RParen && p.cur.Kind != token.EOF {
		args = append(args, p.parseExpression())
		if p.cur.Kind == token.Comma {
			p.advance()
		}
	}
	p.expect(token.RParen)
	return args
}

func (p *Parser) parsePrimary() *ast.Node {
	start := p.cur.Start
	switch p.cur.Kind {
	case token.Int:
		v, _ := strconv.ParseInt(p.cur.Literal, 10, 64)
		lit := &ast.Node{Kind: ast.IntLit, Start: start, End: p.cur.End, IntVal: v}
		p.advance()
		return lit
	case token.Float:
		v, _ := strconv.ParseFloat(p.cur.Literal, 64)
		lit := &ast.Node{Kind: ast.FloatLit, Start: start, End: p.cur.End, FloatVal: v}
		p.advance()
		return lit
	case token.String:
		lit := &ast.Node{Kind: ast.StringLit, Start: start, End: p.cur.End, StrVal: p.cur.Literal}
		p.advance()
		return lit
	case token.True:
		p.advance()
		return &ast.Node{Kind: ast.BoolLit, Start: start, BoolVal: true}
	case token.False:
		p.advance()
		return &ast.Node{Kind: ast.BoolLit, Start: start, BoolVal: false}
	case token.Null:
		p.advance()
		return &ast.Node{Kind: ast.NullLit, Start: start}
	case token.Ident:
		name := p.cur.Literal
		p.advance()
		return &ast.Node{Kind: ast.Identifier, Start: start, End: start + len(name), Name: name}
	case token.Dollar:
		p.advance()
		return &ast.Node{Kind: ast.Identifier, Start: start, Name: "$"}
	case token.LBracket:
		p.advance()
		var elems []*ast.Node
		for p.cur.Kind != token.RBracket && p.cur.Kind != token.EOF {
			elems = append(elems, p.parseExpression())
			if p.cur.Kind == token.Comma {
				p.advance()
			}
		}
		end := p.cur.End
		p.expect(token.RBracket)
		return &ast.Node{Kind: ast.ListLit, Start: start, End: end, List: elems}
	case token.LBrace:
		p.advance()
		var pairs []ast.DictPair
		for p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
			key := p.parseExpression()
			p.expect(token.Decl)
			val := p.parseExpression()
			pairs = append(pairs, ast.DictPair{Key: key, Value: val})
			if p.cur.Kind == token.Comma {
				p.advance()
			}
		}
		end := p.cur.End
		p.expect(token.RBrace)
		return &ast.Node{Kind: ast.DictLit, Start: start, End: end, Pairs: pairs}
	case token.LParen:
		p.advance()
		expr := p.parseExpression()
		p.expect(token.RParen)
		return expr
	case token.Pipe:
		return p.parseLambda()
	}
	p.errorf(p.cur.Start, p.cur.End, "unexpected token %s", p.cur.Kind)
	tok := p.cur
	p.advance()
	p.synchronize()
	return &ast.Node{Kind: ast.NullLit, Start: tok.Start, End: tok.End}
}

func (p *Parser) parseLambda() *ast.Node {
	start := p.cur.Start
	p.advance() // opening |
	var params []string
	for p.cur.Kind != token.Pipe && p.cur.Kind != token.EOF {
		params = append(params, p.cur.Literal)
		p.expect(token.Ident)
		if p.cur.Kind == token.Comma {
			p.advance()
		}
	}
	p.expect(token.Pipe)
	var body *ast.Node
	if p.cur.Kind == token.LBrace {
		body = p.parseBlock()
	} else {
		expr := p.parseExpression()
		body = &ast.Node{Kind: ast.Block, List: []*ast.Node{{Kind: ast.ReturnStmt, A: expr}}}
	}
	return &ast.Node{Kind: ast.Lambda, Start: start, End: body.End, Params: params, A: body}
}

// expect consumes the current token if it matches k, else reports a
// parser error and leaves the token stream positioned for recovery.
func (p *Parser) expect(k token.Kind) {
	if p.cur.Kind == k {
		p.advance()
		return
	}
	p.errorf(p.cur.Start, p.cur.End, "expected %s, got %s", k, p.cur.Kind)
}
