// fstring.go — formatted-string sub-parser.
//
// When the lexer hands the parser a string literal flagged as
// formatted, the text still contains `{...}` interpolations. This
// module splits the text into constant runs and interpolations and
// parses each interpolation's expression by re-entering the
// expression grammar on a fresh parser instance, so the bridge is
// reentrant: interpolations may themselves contain further formatted
// strings.
//
// Supported interpolation shape: `{expr[!conv][:spec]}` where conv is
// one of s, r, a and the format spec is kept as a raw string
// (balanced nested braces included). `{{` and `}}` escape literal
// braces. A lone `}`, an empty expression, or an unterminated `{`
// is a DiagFString error located at the enclosing string literal.
package pyparse

import "strings"

// ParseFormattedString parses the body of a formatted string literal
// and returns its StringGroup: a Constant when no interpolation
// occurs, a single FormattedValue, or a Joined sequence.
func ParseFormattedString(text string, loc Location) (StringGroup, error) {
	var parts []StringGroup
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, Constant{Value: lit.String()})
			lit.Reset()
		}
	}

	i := 0
	for i < len(text) {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				lit.WriteByte('{')
				i += 2
				continue
			}
			flush()
			fv, next, err := parseInterpolation(text, i, loc)
			if err != nil {
				return nil, err
			}
			parts = append(parts, fv)
			i = next
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				lit.WriteByte('}')
				i += 2
				continue
			}
			return nil, fstringErr(loc, "single '}' is not allowed")
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()

	switch len(parts) {
	case 0:
		return Constant{Value: ""}, nil
	case 1:
		return parts[0], nil
	default:
		return Joined{Values: parts}, nil
	}
}

//// END_OF_PUBLIC

func fstringErr(loc Location, msg string) error {
	return &Error{Kind: DiagFString, Msg: msg, Line: loc.Line, Col: loc.Col}
}

// parseInterpolation reads one `{expr[!conv][:spec]}` starting at the
// opening brace; it returns the FormattedValue and the index just
// past the closing brace.
func parseInterpolation(text string, open int, loc Location) (StringGroup, int, error) {
	exprStart := open + 1
	depth := 0
	var quote byte
	j := exprStart

scan:
	for j < len(text) {
		c := text[j]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			j++
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']':
			depth--
		case '}':
			if depth == 0 {
				break scan
			}
			depth--
		case '!':
			// A conversion marker, unless this is '!='.
			if depth == 0 && j+1 < len(text) && text[j+1] != '=' {
				break scan
			}
		case ':':
			if depth == 0 {
				break scan
			}
		}
		j++
	}
	if j >= len(text) {
		return nil, 0, fstringErr(loc, "expecting '}'")
	}

	exprText := text[exprStart:j]
	if strings.TrimSpace(exprText) == "" {
		return nil, 0, fstringErr(loc, "empty expression not allowed")
	}
	value, err := parseInterpolationExpr(exprText, loc)
	if err != nil {
		return nil, 0, err
	}

	fv := FormattedValue{Value: value}

	if text[j] == '!' {
		j++
		if j >= len(text) {
			return nil, 0, fstringErr(loc, "expecting conversion after '!'")
		}
		switch text[j] {
		case 's', 'r', 'a':
			fv.Conversion = text[j]
			j++
		default:
			return nil, 0, fstringErr(loc, "invalid conversion (expect one of 's', 'r', 'a')")
		}
		if j >= len(text) || (text[j] != ':' && text[j] != '}') {
			return nil, 0, fstringErr(loc, "expecting ':' or '}' after conversion")
		}
	}

	if text[j] == ':' {
		j++
		specStart := j
		specDepth := 0
		for j < len(text) {
			switch text[j] {
			case '{':
				specDepth++
			case '}':
				if specDepth == 0 {
					fv.Spec = text[specStart:j]
					return fv, j + 1, nil
				}
				specDepth--
			}
			j++
		}
		return nil, 0, fstringErr(loc, "expecting '}'")
	}

	if text[j] != '}' {
		return nil, 0, fstringErr(loc, "expecting '}'")
	}
	return fv, j + 1, nil
}

// parseInterpolationExpr re-enters the expression grammar on a fresh
// parser instance. Whitespace around the expression is not significant.
// Any diagnostic from the nested parse surfaces as a formatted-string
// error at the enclosing literal.
func parseInterpolationExpr(exprText string, loc Location) (*Expression, error) {
	top, err := ParseExpression(strings.TrimSpace(exprText))
	if err != nil {
		if e, ok := err.(*Error); ok {
			return nil, fstringErr(loc, "invalid interpolation expression: "+e.Msg)
		}
		return nil, fstringErr(loc, "invalid interpolation expression")
	}
	return top.Expression, nil
}
