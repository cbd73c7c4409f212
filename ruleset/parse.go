package ruleset

import (
	"fmt"
	"strings"

	"github.com/packserv/packserv"
)

// The parser is a plain recursive-descent rendition of the grammar in
// the package comment. Alternatives backtrack by restarting from the
// input they were handed; whitespace is consumed around operators, not
// inside the atoms.

func parseExpr(s string) (Expression, string, error) {
	if e, rest, err := parseChain(s, "&&"); err == nil {
		return e, rest, nil
	}
	if e, rest, err := parseChain(s, "||"); err == nil {
		return e, rest, nil
	}
	return parseSub(s)
}

// parseChain parses "sub (op sub)+", requiring at least one operator.
// A failing operand after a successful one ends the chain without
// consuming the operator.
func parseChain(s, op string) (Expression, string, error) {
	acc, rest, err := parseSub(skipSpace(s))
	if err != nil {
		return nil, s, err
	}
	n := 0
	for {
		r := skipSpace(rest)
		if !strings.HasPrefix(r, op) {
			break
		}
		e, r, err := parseSub(skipSpace(r[len(op):]))
		if err != nil {
			break
		}
		if op == "&&" {
			acc = And{acc, e}
		} else {
			acc = Or{acc, e}
		}
		rest = r
		n++
	}
	if n == 0 {
		return nil, s, fmt.Errorf("expected %q at %q", op, rest)
	}
	return acc, rest, nil
}

func parseSub(s string) (Expression, string, error) {
	// "(" expr ")"
	if strings.HasPrefix(s, "(") {
		if e, rest, err := parseExpr(s[1:]); err == nil && strings.HasPrefix(rest, ")") {
			return e, rest[1:], nil
		}
	}
	// "$v" "~" kind and "$v" "!~" kind
	if strings.HasPrefix(s, "$v") {
		r := skipSpace(s[2:])
		switch {
		case strings.HasPrefix(r, "!~"):
			if kind, rest, err := packserv.ScanSuffixKind(skipSpace(r[2:])); err == nil {
				return Not{Like{kind}}, rest, nil
			}
		case strings.HasPrefix(r, "~"):
			if kind, rest, err := packserv.ScanSuffixKind(skipSpace(r[1:])); err == nil {
				return Like{kind}, rest, nil
			}
		}
	}
	// vterm "!=" vterm
	if x, r, err := parseTerm(s); err == nil {
		r = skipSpace(r)
		if strings.HasPrefix(r, "!=") {
			if y, rest, err := parseTerm(skipSpace(r[2:])); err == nil {
				return Not{Equals{x, y}}, rest, nil
			}
		}
	}
	// vterm rel vterm rel vterm
	if x, r, err := parseTerm(s); err == nil {
		if r1, r, err := parseRel(r); err == nil {
			if y, r, err := parseTerm(r); err == nil {
				if r2, r, err := parseRel(r); err == nil {
					if z, rest, err := parseTerm(r); err == nil {
						return And{relation(x, r1, y), relation(y, r2, z)}, rest, nil
					}
				}
			}
		}
	}
	// vterm rel vterm
	if x, r, err := parseTerm(s); err == nil {
		if rel, r, err := parseRel(r); err == nil {
			if y, rest, err := parseTerm(r); err == nil {
				return relation(x, rel, y), rest, nil
			}
		}
	}
	// vterm "=" vterm
	if x, r, err := parseTerm(s); err == nil {
		r = skipSpace(r)
		if strings.HasPrefix(r, "=") {
			if y, rest, err := parseTerm(skipSpace(r[1:])); err == nil {
				return Equals{x, y}, rest, nil
			}
		}
	}
	return nil, s, fmt.Errorf("expected an expression at %q", s)
}

func parseTerm(s string) (Term, string, error) {
	if strings.HasPrefix(s, "$v") {
		return Term{Input: true}, s[2:], nil
	}
	v, rest, err := packserv.ScanVersion(s)
	if err != nil {
		return Term{}, s, err
	}
	return Term{Version: v}, rest, nil
}

type rel int

const (
	relLess rel = iota
	relLessOrEquals
	relGreater
	relGreaterOrEquals
)

func parseRel(s string) (rel, string, error) {
	r := skipSpace(s)
	for _, t := range []struct {
		tok string
		rel rel
	}{
		{"<=", relLessOrEquals},
		{"<", relLess},
		{">=", relGreaterOrEquals},
		{">", relGreater},
	} {
		if strings.HasPrefix(r, t.tok) {
			return t.rel, skipSpace(r[len(t.tok):]), nil
		}
	}
	return 0, s, fmt.Errorf("expected a relational operator at %q", s)
}

// relation canonicalizes a comparison onto Less and Not. The greater
// forms swap operands, the or-equals forms negate the strict converse.
func relation(x Term, r rel, y Term) Expression {
	switch r {
	case relLess:
		return Less{x, y}
	case relLessOrEquals:
		return Not{Less{y, x}}
	case relGreater:
		return Less{y, x}
	case relGreaterOrEquals:
		return Not{Less{x, y}}
	}
	panic("unreachable")
}

func skipSpace(s string) string {
	return strings.TrimLeft(s, " \t\r\n")
}
