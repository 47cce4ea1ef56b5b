// parser.go — grammar-driven parser producing the typed AST in ast.go.
//
// OVERVIEW
// --------
// This module implements the deterministic one-token-lookahead parser
// for the language. It consumes the token stream produced by the
// indentation-sensitive lexer (see lexer.go) — including the synthetic
// INDENT/DEDENT/NEWLINE tokens and the leading mode sentinel — and
// builds the typed AST defined in ast.go, stamping every node with a
// source location.
//
// Design notes:
//   - Statement classification is driven by what follows a leading
//     expression list: nothing → expression statement; '=' chains →
//     Assign (last expression is the value, all earlier ones targets);
//     an augmented operator → AugAssign; ':' → AnnAssign.
//   - Chained comparisons fold into a single Compare node at the
//     reduction site (vals = ops + 1); runs of 'and'/'or' fold into a
//     single BoolOp with >= 2 values.
//   - if/elif/else materializes right-to-left: the final else seeds
//     the innermost orelse and each elif wraps the chain in an If
//     whose location is the elif token's.
//   - The paren/bracket/brace forms share prefixes; after the first
//     element one peeked token decides: 'for' starts a comprehension,
//     ',' a tuple/list/set/dict continuation, ':' (in braces) a dict,
//     and the closer ends the literal.
//   - Formatted string tokens escape into the sub-parser in
//     fstring.go; adjacent string literals concatenate into a single
//     StringGroup.
//   - Parameter lists and call argument lists run through the
//     validators in params.go, which surface ordering violations as
//     first-class errors with the offending token's location.
//
// All errors are fatal: the parser surfaces the first error and does
// not resynchronize. In interactive mode, constructs left unterminated
// at EOF yield *Error{Kind: DiagIncomplete} instead, suitable for
// REPLs.
//
// Dependencies
// ------------
//   - token.go (token kinds and payloads)
//   - lexer.go (token stream producer for the convenience entries)
//   - ast.go (node shapes)
//   - params.go (parameter validator, argument classifier)
//   - fstring.go (formatted-string sub-parser)
//   - errors.go (*Error, DiagParse, DiagIncomplete, IsIncomplete)
package pyparse

import (
	"fmt"
	"math/big"
)

////////////////////////////////////////////////////////////////////////////////
//                                  PUBLIC API
////////////////////////////////////////////////////////////////////////////////

// Version is the release tag reported by `pyparse version`.
const Version = "0.1.0"

// Parse consumes a pre-lexed token stream and returns the top-level
// AST. The first token must be a mode sentinel; the chosen Top variant
// matches it exactly.
func Parse(tokens []Token) (*Top, error) {
	p := &parser{toks: tokens}
	return p.top()
}

// ParseProgram lexes src in program mode and parses a full program.
func ParseProgram(src string) (*Top, error) {
	return parseSource(src, ModeProgram, false)
}

// ParseStatement lexes src in statement mode and parses a single
// (possibly compound) statement.
func ParseStatement(src string) (*Top, error) {
	return parseSource(src, ModeStatement, false)
}

// ParseExpression lexes src in expression mode and parses a single
// expression, consuming trailing newlines.
func ParseExpression(src string) (*Top, error) {
	return parseSource(src, ModeExpression, false)
}

// ParseProgramInteractive parses in REPL-friendly mode: unterminated
// constructs at EOF produce *Error{Kind: DiagIncomplete}.
func ParseProgramInteractive(src string) (*Top, error) {
	return parseSource(src, ModeProgram, true)
}

//// END_OF_PUBLIC

////////////////////////////////////////////////////////////////////////////////
///////////////////////////// PRIVATE IMPLEMENTATION ///////////////////////////
////////////////////////////////////////////////////////////////////////////////

func parseSource(src string, mode LexMode, interactive bool) (*Top, error) {
	var lex *Lexer
	if interactive {
		lex = NewLexerInteractive(src, mode)
	} else {
		lex = NewLexer(src, mode)
	}
	toks, err := lex.Scan()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, interactive: interactive}
	return p.top()
}

type parser struct {
	toks        []Token
	i           int
	interactive bool
}

// ─────────────────────────── token basics & helpers ─────────────────────────

func (p *parser) peek() Token {
	if p.i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i]
}

func (p *parser) peekN(n int) Token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *parser) prev() Token { return p.toks[p.i-1] }

func (p *parser) check(tt TokenType) bool { return p.peek().Type == tt }

func (p *parser) match(tt ...TokenType) bool {
	for _, t := range tt {
		if p.peek().Type == t {
			p.i++
			return true
		}
	}
	return false
}

func (p *parser) need(tt TokenType, msg string) (Token, error) {
	if p.match(tt) {
		return p.prev(), nil
	}
	return Token{}, p.failHere(msg)
}

// failHere builds a structural error at the current token. At EOF in
// interactive mode the error downgrades to DiagIncomplete.
func (p *parser) failHere(msg string) error {
	g := p.peek()
	kind := DiagParse
	switch g.Type {
	case EOF:
		if p.interactive {
			kind = DiagIncomplete
		}
	case INDENT:
		kind = DiagUnexpectedIndent
	case DEDENT:
		kind = DiagUnexpectedDedent
	}
	return &Error{Kind: kind, Msg: msg, Line: g.Line, Col: g.Col}
}

func (p *parser) failAt(kind DiagKind, tok Token, msg string) error {
	return &Error{Kind: kind, Msg: msg, Line: tok.Line, Col: tok.Col}
}

func mkExpr(loc Location, k ExprKind) *Expression { return &Expression{Location: loc, Kind: k} }
func mkStmt(loc Location, k StmtKind) Statement   { return Statement{Location: loc, Kind: k} }
func noneAtom(loc Location) *Expression           { return mkExpr(loc, None{}) }

func identName(e *Expression) (string, bool) {
	id, ok := e.Kind.(Identifier)
	if !ok {
		return "", false
	}
	return id.Name, true
}

// ───────────────────────────── top-level dispatch ───────────────────────────

func (p *parser) top() (*Top, error) {
	if len(p.toks) == 0 {
		return nil, &Error{Kind: DiagParse, Msg: "empty token stream", Line: 1, Col: 0}
	}
	mode := p.peek()
	switch mode.Type {
	case STARTPROGRAM:
		p.i++
		stmts, err := p.program()
		if err != nil {
			return nil, err
		}
		return &Top{Kind: TopProgram, Statements: stmts}, nil
	case STARTSTATEMENT:
		p.i++
		for p.match(NEWLINE) {
		}
		stmts, err := p.statement()
		if err != nil {
			return nil, err
		}
		for p.match(NEWLINE) {
		}
		if _, err := p.need(EOF, "unexpected input after statement"); err != nil {
			return nil, err
		}
		return &Top{Kind: TopStatement, Statements: stmts}, nil
	case STARTEXPRESSION:
		p.i++
		e, err := p.testList()
		if err != nil {
			return nil, err
		}
		for p.match(NEWLINE) {
		}
		if _, err := p.need(EOF, "unexpected input after expression"); err != nil {
			return nil, err
		}
		return &Top{Kind: TopExpression, Expression: e}, nil
	default:
		return nil, p.failAt(DiagParse, mode, "token stream does not start with a mode sentinel")
	}
}

func (p *parser) program() ([]Statement, error) {
	var stmts []Statement
	for !p.check(EOF) {
		if p.match(NEWLINE) {
			continue
		}
		ss, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, ss...)
	}
	return stmts, nil
}

// ───────────────────────────── statements ───────────────────────────────────

// statement parses one line: a compound statement yields one element,
// a simple-statement line possibly several (';'-separated).
func (p *parser) statement() ([]Statement, error) {
	switch p.peek().Type {
	case INDENT:
		return nil, p.failHere("unexpected indent")
	case DEDENT:
		return nil, p.failHere("unexpected dedent")
	case AT:
		s, err := p.decorated()
		if err != nil {
			return nil, err
		}
		return []Statement{s}, nil
	case IF:
		s, err := p.ifStmt()
		if err != nil {
			return nil, err
		}
		return []Statement{s}, nil
	case WHILE:
		s, err := p.whileStmt()
		if err != nil {
			return nil, err
		}
		return []Statement{s}, nil
	case FOR:
		s, err := p.forStmt(false, p.peek())
		if err != nil {
			return nil, err
		}
		return []Statement{s}, nil
	case TRY:
		s, err := p.tryStmt()
		if err != nil {
			return nil, err
		}
		return []Statement{s}, nil
	case WITH:
		s, err := p.withStmt(false, p.peek())
		if err != nil {
			return nil, err
		}
		return []Statement{s}, nil
	case DEF:
		s, err := p.funcDef(nil, false, p.peek())
		if err != nil {
			return nil, err
		}
		return []Statement{s}, nil
	case CLASS:
		s, err := p.classDef(nil)
		if err != nil {
			return nil, err
		}
		return []Statement{s}, nil
	case ASYNC:
		s, err := p.asyncStmt(nil)
		if err != nil {
			return nil, err
		}
		return []Statement{s}, nil
	case EXCEPT, ELSE, ELIF, FINALLY:
		return nil, p.failHere(fmt.Sprintf("unexpected %s", describe(p.peek().Type)))
	default:
		return p.simpleStmtLine()
	}
}

// simpleStmtLine parses small_stmt (';' small_stmt)* [';'] NEWLINE.
func (p *parser) simpleStmtLine() ([]Statement, error) {
	var stmts []Statement
	for {
		s, err := p.smallStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if !p.match(SEMI) {
			break
		}
		if p.check(NEWLINE) || p.check(EOF) {
			break
		}
	}
	if p.check(EOF) {
		return stmts, nil
	}
	if _, err := p.need(NEWLINE, "expected end of line"); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *parser) smallStmt() (Statement, error) {
	tok := p.peek()
	loc := tok.Loc()
	switch tok.Type {
	case PASS:
		p.i++
		return mkStmt(loc, Pass{}), nil
	case BREAK:
		p.i++
		return mkStmt(loc, Break{}), nil
	case CONTINUE:
		p.i++
		return mkStmt(loc, Continue{}), nil
	case RETURN:
		p.i++
		var value *Expression
		if p.canStartTest() || p.check(STAR) {
			v, err := p.testListStarExpr()
			if err != nil {
				return Statement{}, err
			}
			value = v
		}
		return mkStmt(loc, Return{Value: value}), nil
	case DEL:
		p.i++
		targets, _, err := p.exprListRaw()
		if err != nil {
			return Statement{}, err
		}
		return mkStmt(loc, Delete{Targets: targets}), nil
	case GLOBAL:
		p.i++
		names, err := p.nameList()
		if err != nil {
			return Statement{}, err
		}
		return mkStmt(loc, Global{Names: names}), nil
	case NONLOCAL:
		p.i++
		names, err := p.nameList()
		if err != nil {
			return Statement{}, err
		}
		return mkStmt(loc, Nonlocal{Names: names}), nil
	case ASSERT:
		p.i++
		test, err := p.test()
		if err != nil {
			return Statement{}, err
		}
		var msg *Expression
		if p.match(COMMA) {
			m, err := p.test()
			if err != nil {
				return Statement{}, err
			}
			msg = m
		}
		return mkStmt(loc, Assert{Test: test, Msg: msg}), nil
	case RAISE:
		p.i++
		var exc, cause *Expression
		if p.canStartTest() {
			e, err := p.test()
			if err != nil {
				return Statement{}, err
			}
			exc = e
			if p.match(FROM) {
				c, err := p.test()
				if err != nil {
					return Statement{}, err
				}
				cause = c
			}
		}
		return mkStmt(loc, Raise{Exception: exc, Cause: cause}), nil
	case IMPORT:
		return p.importStmt()
	case FROM:
		return p.importFromStmt()
	default:
		return p.exprStatement()
	}
}

func (p *parser) nameList() ([]string, error) {
	var names []string
	for {
		tok, err := p.need(NAME, "expected name")
		if err != nil {
			return nil, err
		}
		names = append(names, tok.Literal.(string))
		if !p.match(COMMA) {
			break
		}
	}
	return names, nil
}

// ───────────────────────── statement classification ─────────────────────────

// exprStatement parses a line beginning with a test-or-starred
// expression list and classifies it by what follows.
func (p *parser) exprStatement() (Statement, error) {
	startTok := p.peek()
	var first *Expression
	var sawComma bool
	if p.check(YIELD) {
		y, err := p.yieldExpr()
		if err != nil {
			return Statement{}, err
		}
		first = y
	} else {
		e, comma, err := p.testListStarExprInfo()
		if err != nil {
			return Statement{}, err
		}
		first = e
		sawComma = comma
	}
	loc := startTok.Loc()

	// ': annotation (= rhs)?' → AnnAssign with a single target.
	if p.check(COLON) {
		colon := p.peek()
		if sawComma {
			return Statement{}, p.failAt(DiagParse, colon, "only a single target can be annotated")
		}
		p.i++
		ann, err := p.test()
		if err != nil {
			return Statement{}, err
		}
		var value *Expression
		if p.match(EQUAL) {
			v, err := p.rhsExpr()
			if err != nil {
				return Statement{}, err
			}
			value = v
		}
		return mkStmt(loc, AnnAssign{Target: first, Annotation: ann, Value: value}), nil
	}

	// 'AugOp rhs' → AugAssign with a single target.
	if op, ok := augOps[p.peek().Type]; ok {
		opTok := p.peek()
		if sawComma {
			return Statement{}, p.failAt(DiagParse, opTok, "illegal target for augmented assignment")
		}
		p.i++
		value, err := p.rhsExpr()
		if err != nil {
			return Statement{}, err
		}
		return mkStmt(loc, AugAssign{Target: first, Op: op, Value: value}), nil
	}

	// '= rhs' suffixes → Assign; the last expression is the value.
	if p.check(EQUAL) {
		exprs := []*Expression{first}
		for p.match(EQUAL) {
			rhs, err := p.rhsExpr()
			if err != nil {
				return Statement{}, err
			}
			exprs = append(exprs, rhs)
		}
		n := len(exprs)
		return mkStmt(loc, Assign{Targets: exprs[:n-1], Value: exprs[n-1]}), nil
	}

	return mkStmt(first.Location, ExprStatement{Expression: first}), nil
}

// rhsExpr parses an assignment right-hand side: a yield expression or
// a test-or-starred expression list.
func (p *parser) rhsExpr() (*Expression, error) {
	if p.check(YIELD) {
		return p.yieldExpr()
	}
	return p.testListStarExpr()
}

var augOps = map[TokenType]Operator{
	PLUSEQUAL:        OpAdd,
	MINUSEQUAL:       OpSub,
	STAREQUAL:        OpMult,
	ATEQUAL:          OpMatMult,
	SLASHEQUAL:       OpDiv,
	PERCENTEQUAL:     OpMod,
	AMPEREQUAL:       OpBitAnd,
	VBAREQUAL:        OpBitOr,
	CARETEQUAL:       OpBitXor,
	LSHIFTEQUAL:      OpLShift,
	RSHIFTEQUAL:      OpRShift,
	DOUBLESTAREQUAL:  OpPow,
	DOUBLESLASHEQUAL: OpFloorDiv,
}

// ───────────────────────────── imports ──────────────────────────────────────

func (p *parser) importStmt() (Statement, error) {
	tok := p.peek()
	p.i++
	var names []ImportSymbol
	for {
		sym, err := p.dottedAsName()
		if err != nil {
			return Statement{}, err
		}
		names = append(names, sym)
		if !p.match(COMMA) {
			break
		}
	}
	return mkStmt(tok.Loc(), Import{Names: names}), nil
}

func (p *parser) dottedAsName() (ImportSymbol, error) {
	path, err := p.dottedName()
	if err != nil {
		return ImportSymbol{}, err
	}
	var alias *string
	if p.match(AS) {
		tok, err := p.need(NAME, "expected name after 'as'")
		if err != nil {
			return ImportSymbol{}, err
		}
		a := tok.Literal.(string)
		alias = &a
	}
	return ImportSymbol{Symbol: path, Alias: alias}, nil
}

func (p *parser) dottedName() (string, error) {
	tok, err := p.need(NAME, "expected module name")
	if err != nil {
		return "", err
	}
	path := tok.Literal.(string)
	for p.match(DOT) {
		tok, err := p.need(NAME, "expected name after '.'")
		if err != nil {
			return "", err
		}
		path += "." + tok.Literal.(string)
	}
	return path, nil
}

// importFromStmt parses `from [dots] [module] import names`. Leading
// dots accumulate into the relative level; '...' contributes 3.
func (p *parser) importFromStmt() (Statement, error) {
	tok := p.peek()
	p.i++
	level := 0
	for {
		if p.match(DOT) {
			level++
			continue
		}
		if p.match(ELLIPSIS) {
			level += 3
			continue
		}
		break
	}
	var module *string
	if p.check(NAME) {
		m, err := p.dottedName()
		if err != nil {
			return Statement{}, err
		}
		module = &m
	} else if level == 0 {
		return Statement{}, p.failHere("expected module name after 'from'")
	}
	if _, err := p.need(IMPORT, "expected 'import'"); err != nil {
		return Statement{}, err
	}

	var names []ImportSymbol
	if p.match(STAR) {
		names = append(names, ImportSymbol{Symbol: "*"})
	} else if p.match(LPAR) {
		ns, err := p.importAsNames(RPAR)
		if err != nil {
			return Statement{}, err
		}
		names = ns
		if _, err := p.need(RPAR, "expected ')'"); err != nil {
			return Statement{}, err
		}
	} else {
		ns, err := p.importAsNames(NEWLINE)
		if err != nil {
			return Statement{}, err
		}
		names = ns
	}
	if len(names) == 0 {
		return Statement{}, p.failHere("expected names to import")
	}
	return mkStmt(tok.Loc(), ImportFrom{Level: level, Module: module, Names: names}), nil
}

// importAsNames reads `name [as alias]` elements, flattening
// parenthesized groups, until the stop token.
func (p *parser) importAsNames(stop TokenType) ([]ImportSymbol, error) {
	var names []ImportSymbol
	for {
		if p.check(stop) || p.check(SEMI) || p.check(EOF) {
			break
		}
		if p.match(LPAR) {
			inner, err := p.importAsNames(RPAR)
			if err != nil {
				return nil, err
			}
			if _, err := p.need(RPAR, "expected ')'"); err != nil {
				return nil, err
			}
			names = append(names, inner...)
		} else {
			tok, err := p.need(NAME, "expected name to import")
			if err != nil {
				return nil, err
			}
			sym := ImportSymbol{Symbol: tok.Literal.(string)}
			if p.match(AS) {
				atok, err := p.need(NAME, "expected name after 'as'")
				if err != nil {
					return nil, err
				}
				a := atok.Literal.(string)
				sym.Alias = &a
			}
			names = append(names, sym)
		}
		if !p.match(COMMA) {
			break
		}
	}
	return names, nil
}

// ───────────────────────────── compound statements ──────────────────────────

// suite parses a block: inline simple statements after the colon, or
// NEWLINE INDENT statement+ DEDENT.
func (p *parser) suite() ([]Statement, error) {
	if _, err := p.need(COLON, "expected ':'"); err != nil {
		return nil, err
	}
	if p.match(NEWLINE) {
		if _, err := p.need(INDENT, "expected an indented block"); err != nil {
			return nil, err
		}
		var stmts []Statement
		for !p.check(DEDENT) && !p.check(EOF) {
			ss, err := p.statement()
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, ss...)
		}
		if _, err := p.need(DEDENT, "expected dedent"); err != nil {
			return nil, err
		}
		return stmts, nil
	}
	return p.simpleStmtLine()
}

// ifStmt materializes the if/elif/else chain right-to-left; each
// synthesized If carries its elif token's location.
func (p *parser) ifStmt() (Statement, error) {
	headTok := p.peek()
	p.i++
	headTest, err := p.test()
	if err != nil {
		return Statement{}, err
	}
	headBody, err := p.suite()
	if err != nil {
		return Statement{}, err
	}

	type arm struct {
		tok  Token
		test *Expression
		body []Statement
	}
	var elifs []arm
	for p.check(ELIF) {
		tok := p.peek()
		p.i++
		t, err := p.test()
		if err != nil {
			return Statement{}, err
		}
		b, err := p.suite()
		if err != nil {
			return Statement{}, err
		}
		elifs = append(elifs, arm{tok: tok, test: t, body: b})
	}
	var orelse []Statement
	if p.match(ELSE) {
		b, err := p.suite()
		if err != nil {
			return Statement{}, err
		}
		orelse = b
	}

	for k := len(elifs) - 1; k >= 0; k-- {
		a := elifs[k]
		inner := mkStmt(a.tok.Loc(), If{Test: a.test, Body: a.body, Orelse: orelse})
		orelse = []Statement{inner}
	}
	return mkStmt(headTok.Loc(), If{Test: headTest, Body: headBody, Orelse: orelse}), nil
}

func (p *parser) whileStmt() (Statement, error) {
	tok := p.peek()
	p.i++
	test, err := p.test()
	if err != nil {
		return Statement{}, err
	}
	body, err := p.suite()
	if err != nil {
		return Statement{}, err
	}
	var orelse []Statement
	if p.match(ELSE) {
		b, err := p.suite()
		if err != nil {
			return Statement{}, err
		}
		orelse = b
	}
	return mkStmt(tok.Loc(), While{Test: test, Body: body, Orelse: orelse}), nil
}

func (p *parser) forStmt(isAsync bool, loctok Token) (Statement, error) {
	if _, err := p.need(FOR, "expected 'for'"); err != nil {
		return Statement{}, err
	}
	target, err := p.exprList()
	if err != nil {
		return Statement{}, err
	}
	if _, err := p.need(IN, "expected 'in'"); err != nil {
		return Statement{}, err
	}
	iter, err := p.testList()
	if err != nil {
		return Statement{}, err
	}
	body, err := p.suite()
	if err != nil {
		return Statement{}, err
	}
	var orelse []Statement
	if p.match(ELSE) {
		b, err := p.suite()
		if err != nil {
			return Statement{}, err
		}
		orelse = b
	}
	return mkStmt(loctok.Loc(), For{IsAsync: isAsync, Target: target, Iter: iter, Body: body, Orelse: orelse}), nil
}

// tryStmt is the compound-statement acceptor for try: a mandatory
// body, zero or more except handlers, an optional else (valid only
// with at least one except), an optional finally. A try with neither
// except nor finally is rejected.
func (p *parser) tryStmt() (Statement, error) {
	tok := p.peek()
	p.i++
	body, err := p.suite()
	if err != nil {
		return Statement{}, err
	}

	var handlers []ExceptHandler
	for p.check(EXCEPT) {
		htok := p.peek()
		p.i++
		var typ *Expression
		var name *string
		if p.canStartTest() {
			t, err := p.test()
			if err != nil {
				return Statement{}, err
			}
			typ = t
			if p.match(AS) {
				ntok, err := p.need(NAME, "expected name after 'as'")
				if err != nil {
					return Statement{}, err
				}
				n := ntok.Literal.(string)
				name = &n
			}
		}
		hbody, err := p.suite()
		if err != nil {
			return Statement{}, err
		}
		handlers = append(handlers, ExceptHandler{Location: htok.Loc(), Typ: typ, Name: name, Body: hbody})
	}

	var orelse []Statement
	if p.check(ELSE) {
		etok := p.peek()
		if len(handlers) == 0 {
			return Statement{}, p.failAt(DiagParse, etok, "try/else is only valid with at least one except clause")
		}
		p.i++
		b, err := p.suite()
		if err != nil {
			return Statement{}, err
		}
		orelse = b
	}

	var finalbody []Statement
	if p.match(FINALLY) {
		b, err := p.suite()
		if err != nil {
			return Statement{}, err
		}
		finalbody = b
	}

	if len(handlers) == 0 && len(finalbody) == 0 {
		return Statement{}, p.failHere("expected 'except' or 'finally' block")
	}
	return mkStmt(tok.Loc(), Try{Body: body, Handlers: handlers, Orelse: orelse, Finalbody: finalbody}), nil
}

func (p *parser) withStmt(isAsync bool, loctok Token) (Statement, error) {
	if _, err := p.need(WITH, "expected 'with'"); err != nil {
		return Statement{}, err
	}
	var items []WithItem
	for {
		ctx, err := p.test()
		if err != nil {
			return Statement{}, err
		}
		item := WithItem{ContextExpr: ctx}
		if p.match(AS) {
			v, err := p.expr()
			if err != nil {
				return Statement{}, err
			}
			item.OptionalVars = v
		}
		items = append(items, item)
		if !p.match(COMMA) {
			break
		}
	}
	body, err := p.suite()
	if err != nil {
		return Statement{}, err
	}
	return mkStmt(loctok.Loc(), With{IsAsync: isAsync, Items: items, Body: body}), nil
}

// ───────────────────────── def / class / decorators ─────────────────────────

// decorated accumulates `@ path (arglist)? NEWLINE` decorators and
// attaches them to the following def, async def, or class.
func (p *parser) decorated() (Statement, error) {
	var decorators []*Expression
	for p.check(AT) {
		p.i++
		path, err := p.decoratorPath()
		if err != nil {
			return Statement{}, err
		}
		if p.check(LPAR) {
			lpar := p.peek()
			p.i++
			args, keywords, err := p.argList()
			if err != nil {
				return Statement{}, err
			}
			path = mkExpr(lpar.Loc(), Call{Function: path, Args: args, Keywords: keywords})
		}
		if _, err := p.need(NEWLINE, "expected end of line after decorator"); err != nil {
			return Statement{}, err
		}
		decorators = append(decorators, path)
	}
	switch p.peek().Type {
	case DEF:
		return p.funcDef(decorators, false, p.peek())
	case CLASS:
		return p.classDef(decorators)
	case ASYNC:
		return p.asyncStmt(decorators)
	default:
		return Statement{}, p.failHere("expected 'def', 'async def' or 'class' after decorators")
	}
}

// decoratorPath reads a dotted path as an Identifier/Attribute chain.
func (p *parser) decoratorPath() (*Expression, error) {
	tok, err := p.need(NAME, "expected decorator name")
	if err != nil {
		return nil, err
	}
	e := mkExpr(tok.Loc(), Identifier{Name: tok.Literal.(string)})
	for p.check(DOT) {
		dot := p.peek()
		p.i++
		ntok, err := p.need(NAME, "expected name after '.'")
		if err != nil {
			return nil, err
		}
		e = mkExpr(dot.Loc(), Attribute{Value: e, Name: ntok.Literal.(string)})
	}
	return e, nil
}

func (p *parser) asyncStmt(decorators []*Expression) (Statement, error) {
	asyncTok := p.peek()
	p.i++
	switch p.peek().Type {
	case DEF:
		return p.funcDef(decorators, true, asyncTok)
	case FOR:
		if decorators != nil {
			return Statement{}, p.failHere("decorators are only valid on 'def' and 'class'")
		}
		return p.forStmt(true, asyncTok)
	case WITH:
		if decorators != nil {
			return Statement{}, p.failHere("decorators are only valid on 'def' and 'class'")
		}
		return p.withStmt(true, asyncTok)
	default:
		return Statement{}, p.failHere("expected 'def', 'for' or 'with' after 'async'")
	}
}

func (p *parser) funcDef(decorators []*Expression, isAsync bool, loctok Token) (Statement, error) {
	if _, err := p.need(DEF, "expected 'def'"); err != nil {
		return Statement{}, err
	}
	nameTok, err := p.need(NAME, "expected function name")
	if err != nil {
		return Statement{}, err
	}
	if _, err := p.need(LPAR, "expected '(' after function name"); err != nil {
		return Statement{}, err
	}
	args, err := p.paramList(true, RPAR)
	if err != nil {
		return Statement{}, err
	}
	if _, err := p.need(RPAR, "expected ')' after parameters"); err != nil {
		return Statement{}, err
	}
	var returns *Expression
	if p.match(RARROW) {
		r, err := p.test()
		if err != nil {
			return Statement{}, err
		}
		returns = r
	}
	body, err := p.suite()
	if err != nil {
		return Statement{}, err
	}
	return mkStmt(loctok.Loc(), FunctionDef{
		IsAsync:       isAsync,
		Name:          nameTok.Literal.(string),
		Args:          args,
		Body:          body,
		DecoratorList: decorators,
		Returns:       returns,
	}), nil
}

func (p *parser) classDef(decorators []*Expression) (Statement, error) {
	tok := p.peek()
	p.i++
	nameTok, err := p.need(NAME, "expected class name")
	if err != nil {
		return Statement{}, err
	}
	var bases []*Expression
	var keywords []Keyword
	if p.match(LPAR) {
		a, k, err := p.argList()
		if err != nil {
			return Statement{}, err
		}
		bases, keywords = a, k
	}
	body, err := p.suite()
	if err != nil {
		return Statement{}, err
	}
	return mkStmt(tok.Loc(), ClassDef{
		Name:          nameTok.Literal.(string),
		Bases:         bases,
		Keywords:      keywords,
		Body:          body,
		DecoratorList: decorators,
	}), nil
}

// ───────────────────────────── expression lists ─────────────────────────────

// canStartTest reports whether the lookahead can begin a test.
func (p *parser) canStartTest() bool {
	switch p.peek().Type {
	case NAME, INTEGER, FLOAT, COMPLEX, STRING, BYTES,
		TRUE, FALSE, NONE, ELLIPSIS,
		LPAR, LSQB, LBRACE,
		PLUS, MINUS, TILDE, NOT, LAMBDA, AWAIT:
		return true
	}
	return false
}

// testListStarExpr folds `(test|star_expr) (',' ...)* [',']` into a
// single expression: a lone element without a trailing comma stays
// itself, anything else becomes a Tuple.
func (p *parser) testListStarExpr() (*Expression, error) {
	e, _, err := p.testListStarExprInfo()
	return e, err
}

func (p *parser) testListStarExprInfo() (*Expression, bool, error) {
	first, err := p.testOrStar()
	if err != nil {
		return nil, false, err
	}
	if !p.check(COMMA) {
		return first, false, nil
	}
	elems := []*Expression{first}
	for p.match(COMMA) {
		if !p.canStartTest() && !p.check(STAR) {
			break
		}
		e, err := p.testOrStar()
		if err != nil {
			return nil, false, err
		}
		elems = append(elems, e)
	}
	return mkExpr(first.Location, Tuple{Elements: elems}), true, nil
}

func (p *parser) testOrStar() (*Expression, error) {
	if p.check(STAR) {
		star := p.peek()
		p.i++
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		return mkExpr(star.Loc(), Starred{Value: v}), nil
	}
	return p.test()
}

// testList folds `test (',' test)* [',']` with the same tuple rule.
func (p *parser) testList() (*Expression, error) {
	first, err := p.test()
	if err != nil {
		return nil, err
	}
	if !p.check(COMMA) {
		return first, nil
	}
	elems := []*Expression{first}
	for p.match(COMMA) {
		if !p.canStartTest() {
			break
		}
		e, err := p.test()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return mkExpr(first.Location, Tuple{Elements: elems}), nil
}

// exprList is the for-target/iteration list: expr|star_expr elements
// at bitwise-or precedence, tuple-folded.
func (p *parser) exprList() (*Expression, error) {
	elems, sawComma, err := p.exprListRaw()
	if err != nil {
		return nil, err
	}
	if len(elems) == 1 && !sawComma {
		return elems[0], nil
	}
	return mkExpr(elems[0].Location, Tuple{Elements: elems}), nil
}

func (p *parser) exprListRaw() ([]*Expression, bool, error) {
	var elems []*Expression
	sawComma := false
	for {
		var e *Expression
		var err error
		if p.check(STAR) {
			star := p.peek()
			p.i++
			v, verr := p.expr()
			if verr != nil {
				return nil, false, verr
			}
			e = mkExpr(star.Loc(), Starred{Value: v})
		} else {
			e, err = p.expr()
			if err != nil {
				return nil, false, err
			}
		}
		elems = append(elems, e)
		if !p.match(COMMA) {
			break
		}
		sawComma = true
		if !p.canStartTest() && !p.check(STAR) {
			break
		}
	}
	return elems, sawComma, nil
}

// ───────────────────────────── expressions ──────────────────────────────────

// test: conditional expression or lambda (lowest precedence).
func (p *parser) test() (*Expression, error) {
	if p.check(LAMBDA) {
		return p.lambdaExpr()
	}
	body, err := p.orTest()
	if err != nil {
		return nil, err
	}
	if p.check(IF) {
		ifTok := p.peek()
		p.i++
		cond, err := p.orTest()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(ELSE, "expected 'else' in conditional expression"); err != nil {
			return nil, err
		}
		orelse, err := p.test()
		if err != nil {
			return nil, err
		}
		return mkExpr(ifTok.Loc(), IfExpression{Test: cond, Body: body, Orelse: orelse}), nil
	}
	return body, nil
}

func (p *parser) lambdaExpr() (*Expression, error) {
	tok := p.peek()
	p.i++
	args, err := p.paramList(false, COLON)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(COLON, "expected ':' after lambda parameters"); err != nil {
		return nil, err
	}
	body, err := p.test()
	if err != nil {
		return nil, err
	}
	return mkExpr(tok.Loc(), Lambda{Args: args, Body: body}), nil
}

// orTest folds a run of 'or' operands into one BoolOp; a single
// operand collapses to the operand itself.
func (p *parser) orTest() (*Expression, error) {
	first, err := p.andTest()
	if err != nil {
		return nil, err
	}
	if !p.check(OR) {
		return first, nil
	}
	opTok := p.peek()
	values := []*Expression{first}
	for p.match(OR) {
		v, err := p.andTest()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return mkExpr(opTok.Loc(), BoolOp{Op: BoolOr, Values: values}), nil
}

func (p *parser) andTest() (*Expression, error) {
	first, err := p.notTest()
	if err != nil {
		return nil, err
	}
	if !p.check(AND) {
		return first, nil
	}
	opTok := p.peek()
	values := []*Expression{first}
	for p.match(AND) {
		v, err := p.notTest()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return mkExpr(opTok.Loc(), BoolOp{Op: BoolAnd, Values: values}), nil
}

func (p *parser) notTest() (*Expression, error) {
	if p.check(NOT) {
		tok := p.peek()
		p.i++
		operand, err := p.notTest()
		if err != nil {
			return nil, err
		}
		return mkExpr(tok.Loc(), Unop{Op: UnaryNot, A: operand}), nil
	}
	return p.comparison()
}

// comparison folds `a OP1 b OP2 c ...` into a single Compare node
// whose location is the first comparison operator's.
func (p *parser) comparison() (*Expression, error) {
	first, err := p.expr()
	if err != nil {
		return nil, err
	}
	var ops []ComparisonOperator
	vals := []*Expression{first}
	var opLoc Location
	for {
		op, tok, ok := p.compOp()
		if !ok {
			break
		}
		if len(ops) == 0 {
			opLoc = tok.Loc()
		}
		ops = append(ops, op)
		rhs, err := p.expr()
		if err != nil {
			return nil, err
		}
		vals = append(vals, rhs)
	}
	if len(ops) == 0 {
		return first, nil
	}
	return mkExpr(opLoc, Compare{Vals: vals, Ops: ops}), nil
}

func (p *parser) compOp() (ComparisonOperator, Token, bool) {
	tok := p.peek()
	switch tok.Type {
	case LESS:
		p.i++
		return CmpLess, tok, true
	case GREATER:
		p.i++
		return CmpGreater, tok, true
	case EQEQUAL:
		p.i++
		return CmpEqual, tok, true
	case NOTEQUAL:
		p.i++
		return CmpNotEqual, tok, true
	case LESSEQUAL:
		p.i++
		return CmpLessOrEqual, tok, true
	case GREATEREQUAL:
		p.i++
		return CmpGreaterOrEqual, tok, true
	case IN:
		p.i++
		return CmpIn, tok, true
	case NOT:
		if p.peekN(1).Type == IN {
			p.i += 2
			return CmpNotIn, tok, true
		}
		return 0, tok, false
	case IS:
		p.i++
		if p.match(NOT) {
			return CmpIsNot, tok, true
		}
		return CmpIs, tok, true
	}
	return 0, tok, false
}

// Binary precedence ladder: | < ^ < & < shifts < additive <
// multiplicative, all left-associative; each level folds to Binop.

func (p *parser) expr() (*Expression, error) {
	return p.binaryLevel(0)
}

var binaryLevels = [][]struct {
	tt TokenType
	op Operator
}{
	{{VBAR, OpBitOr}},
	{{CARET, OpBitXor}},
	{{AMPER, OpBitAnd}},
	{{LSHIFT, OpLShift}, {RSHIFT, OpRShift}},
	{{PLUS, OpAdd}, {MINUS, OpSub}},
	{{STAR, OpMult}, {SLASH, OpDiv}, {DOUBLESLASH, OpFloorDiv}, {PERCENT, OpMod}, {AT, OpMatMult}},
}

func (p *parser) binaryLevel(level int) (*Expression, error) {
	if level >= len(binaryLevels) {
		return p.factor()
	}
	left, err := p.binaryLevel(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		matched := false
		for _, cand := range binaryLevels[level] {
			if p.check(cand.tt) {
				opTok := p.peek()
				p.i++
				right, err := p.binaryLevel(level + 1)
				if err != nil {
					return nil, err
				}
				left = mkExpr(opTok.Loc(), Binop{A: left, Op: cand.op, B: right})
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
	}
}

func (p *parser) factor() (*Expression, error) {
	tok := p.peek()
	switch tok.Type {
	case PLUS:
		p.i++
		operand, err := p.factor()
		if err != nil {
			return nil, err
		}
		return mkExpr(tok.Loc(), Unop{Op: UnaryPos, A: operand}), nil
	case MINUS:
		p.i++
		operand, err := p.factor()
		if err != nil {
			return nil, err
		}
		return mkExpr(tok.Loc(), Unop{Op: UnaryNeg, A: operand}), nil
	case TILDE:
		p.i++
		operand, err := p.factor()
		if err != nil {
			return nil, err
		}
		return mkExpr(tok.Loc(), Unop{Op: UnaryInv, A: operand}), nil
	}
	return p.power()
}

// power: atom-with-trailers ['**' factor]; '**' is right-associative
// and binds tighter than unary but looser than trailers.
func (p *parser) power() (*Expression, error) {
	base, err := p.atomExpr()
	if err != nil {
		return nil, err
	}
	if p.check(DOUBLESTAR) {
		opTok := p.peek()
		p.i++
		exp, err := p.factor()
		if err != nil {
			return nil, err
		}
		return mkExpr(opTok.Loc(), Binop{A: base, Op: OpPow, B: exp}), nil
	}
	return base, nil
}

// atomExpr: ['await'] atom trailer*; await wraps the trailer-applied
// atom.
func (p *parser) atomExpr() (*Expression, error) {
	if p.check(AWAIT) {
		tok := p.peek()
		p.i++
		value, err := p.atomTrailers()
		if err != nil {
			return nil, err
		}
		return mkExpr(tok.Loc(), Await{Value: value}), nil
	}
	return p.atomTrailers()
}

func (p *parser) atomTrailers() (*Expression, error) {
	e, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case DOT:
			dot := p.peek()
			p.i++
			nameTok, err := p.need(NAME, "expected attribute name after '.'")
			if err != nil {
				return nil, err
			}
			e = mkExpr(dot.Loc(), Attribute{Value: e, Name: nameTok.Literal.(string)})
		case LPAR:
			lpar := p.peek()
			p.i++
			args, keywords, err := p.argList()
			if err != nil {
				return nil, err
			}
			e = mkExpr(lpar.Loc(), Call{Function: e, Args: args, Keywords: keywords})
		case LSQB:
			lsqb := p.peek()
			p.i++
			idx, err := p.subscriptList()
			if err != nil {
				return nil, err
			}
			if _, err := p.need(RSQB, "expected ']'"); err != nil {
				return nil, err
			}
			e = mkExpr(lsqb.Loc(), Subscript{A: e, B: idx})
		default:
			return e, nil
		}
	}
}

// ───────────────────────────── atoms ────────────────────────────────────────

func (p *parser) atom() (*Expression, error) {
	tok := p.peek()
	loc := tok.Loc()
	switch tok.Type {
	case NAME:
		p.i++
		return mkExpr(loc, Identifier{Name: tok.Literal.(string)}), nil
	case INTEGER:
		p.i++
		return mkExpr(loc, Number{Value: Integer{Value: tok.Literal.(*big.Int)}}), nil
	case FLOAT:
		p.i++
		return mkExpr(loc, Number{Value: Float{Value: tok.Literal.(float64)}}), nil
	case COMPLEX:
		p.i++
		c := tok.Literal.(ComplexValue)
		return mkExpr(loc, Number{Value: Complex{Real: c.Real, Imag: c.Imag}}), nil
	case STRING, BYTES:
		return p.stringAtom()
	case TRUE:
		p.i++
		return mkExpr(loc, True{}), nil
	case FALSE:
		p.i++
		return mkExpr(loc, False{}), nil
	case NONE:
		p.i++
		return mkExpr(loc, None{}), nil
	case ELLIPSIS:
		p.i++
		return mkExpr(loc, Ellipsis{}), nil
	case LPAR:
		return p.parenAtom()
	case LSQB:
		return p.listAtom()
	case LBRACE:
		return p.braceAtom()
	case LAMBDA:
		return p.lambdaExpr()
	default:
		return nil, p.failHere(fmt.Sprintf("unexpected %s", describe(tok.Type)))
	}
}

// stringAtom collects a run of adjacent string/bytes tokens. Formatted
// pieces escape into the sub-parser; the pieces concatenate into one
// StringGroup (or one Bytes node). Mixing bytes and non-bytes is
// rejected at the reduction.
func (p *parser) stringAtom() (*Expression, error) {
	first := p.peek()
	var groups []StringGroup
	var octets []byte
	sawStr, sawBytes := false, false
	for {
		tok := p.peek()
		if tok.Type == STRING {
			p.i++
			sawStr = true
			sv := tok.Literal.(StringValue)
			if sv.Formatted {
				g, err := ParseFormattedString(sv.Text, tok.Loc())
				if err != nil {
					return nil, err
				}
				groups = appendGroup(groups, g)
			} else {
				groups = appendGroup(groups, Constant{Value: sv.Text})
			}
			continue
		}
		if tok.Type == BYTES {
			p.i++
			sawBytes = true
			octets = append(octets, tok.Literal.([]byte)...)
			continue
		}
		break
	}
	if sawStr && sawBytes {
		return nil, p.failAt(DiagParse, first, "cannot mix bytes and nonbytes literals")
	}
	if sawBytes {
		return mkExpr(first.Loc(), Bytes{Value: octets}), nil
	}
	var value StringGroup
	switch len(groups) {
	case 0:
		value = Constant{Value: ""}
	case 1:
		value = groups[0]
	default:
		value = Joined{Values: groups}
	}
	return mkExpr(first.Loc(), String{Value: value}), nil
}

// appendGroup splices g into groups, flattening nested Joined wrappers
// and merging adjacent constants.
func appendGroup(groups []StringGroup, g StringGroup) []StringGroup {
	if j, ok := g.(Joined); ok {
		for _, sub := range j.Values {
			groups = appendGroup(groups, sub)
		}
		return groups
	}
	if c, ok := g.(Constant); ok && len(groups) > 0 {
		if prev, ok2 := groups[len(groups)-1].(Constant); ok2 {
			groups[len(groups)-1] = Constant{Value: prev.Value + c.Value}
			return groups
		}
	}
	return append(groups, g)
}

// parenAtom resolves the '(' forms: empty tuple, parenthesized
// expression, tuple, generator expression, or yield expression.
func (p *parser) parenAtom() (*Expression, error) {
	lpar := p.peek()
	p.i++
	if p.match(RPAR) {
		return mkExpr(lpar.Loc(), Tuple{}), nil
	}
	if p.check(YIELD) {
		y, err := p.yieldExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RPAR, "expected ')'"); err != nil {
			return nil, err
		}
		return y, nil
	}
	first, err := p.testOrStar()
	if err != nil {
		return nil, err
	}
	if p.check(FOR) || (p.check(ASYNC) && p.peekN(1).Type == FOR) {
		if _, isStar := first.Kind.(Starred); isStar {
			return nil, p.failHere("iterable unpacking cannot be used in a comprehension")
		}
		gens, err := p.compForClauses()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RPAR, "expected ')'"); err != nil {
			return nil, err
		}
		return mkExpr(lpar.Loc(), ComprehensionExpr{Kind: GeneratorExp{Element: first}, Generators: gens}), nil
	}
	if !p.check(COMMA) {
		if _, err := p.need(RPAR, "expected ')'"); err != nil {
			return nil, err
		}
		return first, nil
	}
	elems := []*Expression{first}
	for p.match(COMMA) {
		if p.check(RPAR) {
			break
		}
		e, err := p.testOrStar()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	if _, err := p.need(RPAR, "expected ')'"); err != nil {
		return nil, err
	}
	return mkExpr(lpar.Loc(), Tuple{Elements: elems}), nil
}

func (p *parser) listAtom() (*Expression, error) {
	lsqb := p.peek()
	p.i++
	if p.match(RSQB) {
		return mkExpr(lsqb.Loc(), List{}), nil
	}
	first, err := p.testOrStar()
	if err != nil {
		return nil, err
	}
	if p.check(FOR) || (p.check(ASYNC) && p.peekN(1).Type == FOR) {
		if _, isStar := first.Kind.(Starred); isStar {
			return nil, p.failHere("iterable unpacking cannot be used in a comprehension")
		}
		gens, err := p.compForClauses()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RSQB, "expected ']'"); err != nil {
			return nil, err
		}
		return mkExpr(lsqb.Loc(), ComprehensionExpr{Kind: ListComp{Element: first}, Generators: gens}), nil
	}
	elems := []*Expression{first}
	for p.match(COMMA) {
		if p.check(RSQB) {
			break
		}
		e, err := p.testOrStar()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	if _, err := p.need(RSQB, "expected ']'"); err != nil {
		return nil, err
	}
	return mkExpr(lsqb.Loc(), List{Elements: elems}), nil
}

// braceAtom resolves the '{' forms: '{}' is the empty dict (there is
// no empty-set literal), then the first element decides dict vs set,
// and a following 'for' turns either into a comprehension.
func (p *parser) braceAtom() (*Expression, error) {
	lbrace := p.peek()
	p.i++
	if p.match(RBRACE) {
		return mkExpr(lbrace.Loc(), Dict{}), nil
	}

	if p.check(DOUBLESTAR) {
		p.i++
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		elems := []DictElement{{Key: nil, Value: v}}
		return p.dictTail(lbrace, elems)
	}

	first, err := p.testOrStar()
	if err != nil {
		return nil, err
	}
	if p.check(COLON) {
		if _, isStar := first.Kind.(Starred); isStar {
			return nil, p.failHere("cannot use a starred expression as a dict key")
		}
		p.i++
		value, err := p.test()
		if err != nil {
			return nil, err
		}
		if p.check(FOR) || (p.check(ASYNC) && p.peekN(1).Type == FOR) {
			gens, err := p.compForClauses()
			if err != nil {
				return nil, err
			}
			if _, err := p.need(RBRACE, "expected '}'"); err != nil {
				return nil, err
			}
			return mkExpr(lbrace.Loc(), ComprehensionExpr{Kind: DictComp{Key: first, Value: value}, Generators: gens}), nil
		}
		elems := []DictElement{{Key: first, Value: value}}
		return p.dictTail(lbrace, elems)
	}

	// Set literal or set comprehension.
	if p.check(FOR) || (p.check(ASYNC) && p.peekN(1).Type == FOR) {
		if _, isStar := first.Kind.(Starred); isStar {
			return nil, p.failHere("iterable unpacking cannot be used in a comprehension")
		}
		gens, err := p.compForClauses()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RBRACE, "expected '}'"); err != nil {
			return nil, err
		}
		return mkExpr(lbrace.Loc(), ComprehensionExpr{Kind: SetComp{Element: first}, Generators: gens}), nil
	}
	elems := []*Expression{first}
	for p.match(COMMA) {
		if p.check(RBRACE) {
			break
		}
		e, err := p.testOrStar()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	if _, err := p.need(RBRACE, "expected '}'"); err != nil {
		return nil, err
	}
	return mkExpr(lbrace.Loc(), Set{Elements: elems}), nil
}

// dictTail continues a dict literal after its first element: further
// `key: value` pairs or `**expr` unpack markers (stored with an
// absent key).
func (p *parser) dictTail(lbrace Token, elems []DictElement) (*Expression, error) {
	for p.match(COMMA) {
		if p.check(RBRACE) {
			break
		}
		if p.match(DOUBLESTAR) {
			v, err := p.expr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, DictElement{Key: nil, Value: v})
			continue
		}
		k, err := p.test()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(COLON, "expected ':' in dict literal"); err != nil {
			return nil, err
		}
		v, err := p.test()
		if err != nil {
			return nil, err
		}
		elems = append(elems, DictElement{Key: k, Value: v})
	}
	if _, err := p.need(RBRACE, "expected '}'"); err != nil {
		return nil, err
	}
	return mkExpr(lbrace.Loc(), Dict{Elements: elems}), nil
}

// ───────────────────────────── comprehensions ───────────────────────────────

// compForClauses parses one or more `[async] for target in iter
// (if cond)*` generator clauses.
func (p *parser) compForClauses() ([]Comprehension, error) {
	var gens []Comprehension
	for {
		isAsync := false
		tok := p.peek()
		if p.check(ASYNC) && p.peekN(1).Type == FOR {
			p.i++
			isAsync = true
		}
		if !p.match(FOR) {
			break
		}
		target, err := p.exprList()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(IN, "expected 'in'"); err != nil {
			return nil, err
		}
		iter, err := p.orTest()
		if err != nil {
			return nil, err
		}
		gen := Comprehension{Location: tok.Loc(), Target: target, Iter: iter, IsAsync: isAsync}
		for p.match(IF) {
			cond, err := p.orTest()
			if err != nil {
				return nil, err
			}
			gen.Ifs = append(gen.Ifs, cond)
		}
		gens = append(gens, gen)
		if !p.check(FOR) && !(p.check(ASYNC) && p.peekN(1).Type == FOR) {
			break
		}
	}
	if len(gens) == 0 {
		return nil, p.failHere("expected 'for' in comprehension")
	}
	return gens, nil
}

// ───────────────────────────── subscripts ───────────────────────────────────

// subscriptList parses a comma-separated subscript list; multiple
// subscripts (or a trailing comma) yield a tuple subscript.
func (p *parser) subscriptList() (*Expression, error) {
	first, err := p.subscript()
	if err != nil {
		return nil, err
	}
	if !p.check(COMMA) {
		return first, nil
	}
	elems := []*Expression{first}
	for p.match(COMMA) {
		if p.check(RSQB) {
			break
		}
		e, err := p.subscript()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return mkExpr(first.Location, Tuple{Elements: elems}), nil
}

// subscript parses one subscript: a plain test, or a slice with three
// optional positions; omitted positions become None atoms.
func (p *parser) subscript() (*Expression, error) {
	var lower *Expression
	if !p.check(COLON) {
		e, err := p.test()
		if err != nil {
			return nil, err
		}
		lower = e
		if !p.check(COLON) {
			return e, nil
		}
	}
	colon, err := p.need(COLON, "expected ':'")
	if err != nil {
		return nil, err
	}
	loc := colon.Loc()
	if lower == nil {
		lower = noneAtom(loc)
	}
	upper := noneAtom(loc)
	step := noneAtom(loc)
	if p.canStartTest() {
		u, err := p.test()
		if err != nil {
			return nil, err
		}
		upper = u
	}
	if p.match(COLON) {
		if p.canStartTest() {
			s, err := p.test()
			if err != nil {
				return nil, err
			}
			step = s
		}
	}
	return mkExpr(loc, Slice{Elements: []*Expression{lower, upper, step}}), nil
}

// ───────────────────────────── yield ────────────────────────────────────────

func (p *parser) yieldExpr() (*Expression, error) {
	tok, err := p.need(YIELD, "expected 'yield'")
	if err != nil {
		return nil, err
	}
	loc := tok.Loc()
	if p.match(FROM) {
		v, err := p.test()
		if err != nil {
			return nil, err
		}
		return mkExpr(loc, YieldFrom{Value: v}), nil
	}
	if p.canStartTest() || p.check(STAR) {
		v, err := p.testListStarExpr()
		if err != nil {
			return nil, err
		}
		return mkExpr(loc, Yield{Value: v}), nil
	}
	return mkExpr(loc, Yield{}), nil
}
