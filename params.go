// params.go — parameter-list validator and call-argument classifier.
//
// Both def and lambda parameter lists run through paramList; def
// accepts annotations (typed), lambda rejects them at the grammar
// level (the ':' after a lambda parameter name terminates the list).
// The validator enforces, during the single left-to-right pass:
//
//   - Once a positional default appears, every later positional
//     parameter has one; a violation is fatal and names the offending
//     parameter (DiagNonDefaultAfterDefault).
//   - Keyword-only parameters (after '*' or '*vararg') may each have
//     or omit a default; the kw-default list keeps one slot per
//     parameter, nil when absent.
//   - A bare '*' is stored as the Unnamed vararg variant, distinct
//     from no vararg at all.
//   - At most one '*' section and one trailing '**' parameter.
//
// Call arguments classify into positional, keyword, starred and
// double-starred; once a keyword has appeared, a later non-starred
// positional is fatal (DiagPositionalAfterKeyword). A sole
// `expression compfor` argument passes one generator expression.
package pyparse

// ───────────────────────────── parameter lists ──────────────────────────────

// paramList parses a def/lambda parameter specification up to (not
// consuming) the terminator: RPAR for def, COLON for lambda.
func (p *parser) paramList(typed bool, terminator TokenType) (Parameters, error) {
	var params Parameters
	seenStar := false
	seenDefault := false

	for {
		if p.check(terminator) || p.check(EOF) {
			break
		}

		switch {
		case p.check(STAR):
			starTok := p.peek()
			if seenStar {
				return Parameters{}, p.failAt(DiagParse, starTok, "duplicate '*' in parameter list")
			}
			p.i++
			seenStar = true
			if p.check(NAME) {
				param, _, err := p.oneParam(typed, false)
				if err != nil {
					return Parameters{}, err
				}
				params.Vararg = Varargs{Kind: VarargsNamed, Param: &param}
			} else {
				params.Vararg = Varargs{Kind: VarargsUnnamed}
			}

		case p.check(DOUBLESTAR):
			dstarTok := p.peek()
			if params.Kwarg.Kind != VarargsNone {
				return Parameters{}, p.failAt(DiagParse, dstarTok, "duplicate '**' in parameter list")
			}
			p.i++
			param, _, err := p.oneParam(typed, false)
			if err != nil {
				return Parameters{}, err
			}
			params.Kwarg = Varargs{Kind: VarargsNamed, Param: &param}
			p.match(COMMA)
			if !p.check(terminator) {
				return Parameters{}, p.failHere("'**' parameter must be last")
			}
			return params, nil

		default:
			param, deflt, err := p.oneParam(typed, true)
			if err != nil {
				return Parameters{}, err
			}
			if seenStar {
				params.Kwonlyargs = append(params.Kwonlyargs, param)
				params.KwDefaults = append(params.KwDefaults, deflt)
			} else {
				if deflt != nil {
					seenDefault = true
				} else if seenDefault {
					return Parameters{}, &Error{
						Kind: DiagNonDefaultAfterDefault,
						Msg:  "non-default argument follows default argument: " + param.Arg,
						Line: param.Location.Line,
						Col:  param.Location.Col,
					}
				}
				params.Args = append(params.Args, param)
				if deflt != nil {
					params.Defaults = append(params.Defaults, deflt)
				}
			}
		}

		if !p.match(COMMA) {
			break
		}
	}
	return params, nil
}

// oneParam parses `name [: annotation] [= default]`; the annotation is
// only accepted for typed (def) parameters and the default only when
// allowDefault is set (vararg/kwarg parameters take none).
func (p *parser) oneParam(typed bool, allowDefault bool) (Parameter, *Expression, error) {
	nameTok, err := p.need(NAME, "expected parameter name")
	if err != nil {
		return Parameter{}, nil, err
	}
	param := Parameter{Location: nameTok.Loc(), Arg: nameTok.Literal.(string)}
	if typed && p.match(COLON) {
		ann, err := p.test()
		if err != nil {
			return Parameter{}, nil, err
		}
		param.Annotation = ann
	}
	var deflt *Expression
	if allowDefault && p.match(EQUAL) {
		d, err := p.test()
		if err != nil {
			return Parameter{}, nil, err
		}
		deflt = d
	}
	return param, deflt, nil
}

// ───────────────────────────── argument lists ───────────────────────────────

// argList parses a call argument list after the opening '(' and
// consumes the closing ')'. It splits arguments into positional
// expressions and keywords; '**expr' is a keyword with an absent name.
func (p *parser) argList() ([]*Expression, []Keyword, error) {
	var args []*Expression
	var keywords []Keyword
	seenKeyword := false
	first := true

	for {
		if p.match(RPAR) {
			return args, keywords, nil
		}

		switch {
		case p.check(DOUBLESTAR):
			p.i++
			v, err := p.test()
			if err != nil {
				return nil, nil, err
			}
			keywords = append(keywords, Keyword{Name: nil, Value: v})
			seenKeyword = true

		case p.check(STAR):
			starTok := p.peek()
			p.i++
			v, err := p.test()
			if err != nil {
				return nil, nil, err
			}
			args = append(args, mkExpr(starTok.Loc(), Starred{Value: v}))

		default:
			argTok := p.peek()
			e, err := p.test()
			if err != nil {
				return nil, nil, err
			}
			if p.check(EQUAL) {
				name, ok := identName(e)
				if !ok {
					return nil, nil, p.failHere("keyword argument name must be an identifier")
				}
				p.i++
				v, err := p.test()
				if err != nil {
					return nil, nil, err
				}
				keywords = append(keywords, Keyword{Name: &name, Value: v})
				seenKeyword = true
				break
			}
			if p.check(FOR) || (p.check(ASYNC) && p.peekN(1).Type == FOR) {
				// A sole `expression compfor` passes one generator
				// expression.
				if !first {
					return nil, nil, p.failHere("generator expression must be parenthesized")
				}
				gens, err := p.compForClauses()
				if err != nil {
					return nil, nil, err
				}
				if p.check(COMMA) {
					return nil, nil, p.failHere("generator expression must be parenthesized")
				}
				if _, err := p.need(RPAR, "expected ')'"); err != nil {
					return nil, nil, err
				}
				gen := mkExpr(argTok.Loc(), ComprehensionExpr{Kind: GeneratorExp{Element: e}, Generators: gens})
				return []*Expression{gen}, nil, nil
			}
			if seenKeyword {
				return nil, nil, &Error{
					Kind: DiagPositionalAfterKeyword,
					Msg:  "positional argument follows keyword argument",
					Line: argTok.Line,
					Col:  argTok.Col,
				}
			}
			args = append(args, e)
		}

		first = false
		if !p.match(COMMA) {
			if _, err := p.need(RPAR, "expected ')'"); err != nil {
				return nil, nil, err
			}
			return args, keywords, nil
		}
	}
}
