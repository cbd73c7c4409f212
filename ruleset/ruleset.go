// Package ruleset implements the access-control expression language
// used in the permission maps of the auth configuration.
//
// A ruleset is either the wildcard "*" or a boolean expression over
// version comparisons and suffix-class predicates, with "$v" standing
// for the version under evaluation:
//
//	ruleset := "*" | expr
//	expr    := and | or | sub
//	and     := sub ("&&" sub)+
//	or      := sub ("||" sub)+
//	sub     := "(" expr ")"
//	         | "$v" "~"  kind | "$v" "!~" kind
//	         | vterm "!=" vterm
//	         | vterm rel vterm rel vterm
//	         | vterm rel vterm
//	         | vterm "=" vterm
//	vterm   := "$v" | version
//	rel     := "<" | "<=" | ">" | ">="
//
// Conjunction and disjunction do not mix at one nesting level without
// parentheses. Rulesets are compiled once and evaluated many times.
package ruleset

import (
	"fmt"
	"strings"

	"github.com/packserv/packserv"
)

// Ruleset is a compiled access rule.
type Ruleset struct {
	// A nil expr is the wildcard.
	expr Expression
	src  string
}

// Compile parses src, which must be consumed entirely. The wildcard
// "*" must be the whole input, with no surrounding whitespace.
func Compile(src string) (*Ruleset, error) {
	if src == "*" {
		return &Ruleset{src: src}, nil
	}
	e, rest, err := parseExpr(skipSpace(src))
	if err != nil {
		return nil, fmt.Errorf("ruleset %q: %w", src, err)
	}
	rest = skipSpace(rest)
	if rest != "" {
		if strings.HasPrefix(rest, "&&") || strings.HasPrefix(rest, "||") {
			return nil, fmt.Errorf("ruleset %q: cannot mix && and || without parentheses", src)
		}
		return nil, fmt.Errorf("ruleset %q: trailing input %q", src, rest)
	}
	return &Ruleset{expr: e, src: src}, nil
}

// String returns the source the ruleset was compiled from.
func (r *Ruleset) String() string { return r.src }

// Evaluate reports whether the rule admits v. The wildcard admits
// everything.
func (r *Ruleset) Evaluate(v packserv.Version) bool {
	if r.expr == nil {
		return true
	}
	return r.expr.Evaluate(v)
}

// Expression is a node of a compiled rule.
type Expression interface {
	// Evaluate applies the expression to the version under test.
	Evaluate(v packserv.Version) bool
}

// Not negates its operand.
type Not struct{ X Expression }

// And is a conjunction.
type And struct{ X, Y Expression }

// Or is a disjunction.
type Or struct{ X, Y Expression }

// Equals compares two version terms for equality.
type Equals struct{ X, Y Term }

// Less reports whether the left term orders strictly before the
// right.
type Less struct{ X, Y Term }

// Like tests the subject's suffix class.
type Like struct{ Kind packserv.SuffixKind }

func (e Not) Evaluate(v packserv.Version) bool { return !e.X.Evaluate(v) }
func (e And) Evaluate(v packserv.Version) bool { return e.X.Evaluate(v) && e.Y.Evaluate(v) }
func (e Or) Evaluate(v packserv.Version) bool  { return e.X.Evaluate(v) || e.Y.Evaluate(v) }

func (e Equals) Evaluate(v packserv.Version) bool {
	a, b := bind(e.X, e.Y, v)
	return a.Equal(b)
}

func (e Less) Evaluate(v packserv.Version) bool {
	a, b := bind(e.X, e.Y, v)
	return a.Less(b)
}

func (e Like) Evaluate(v packserv.Version) bool {
	return v.Suffix != nil && v.Suffix.Kind == e.Kind
}

// Term is a version term: either the subject placeholder "$v" or a
// literal version.
type Term struct {
	Input   bool
	Version packserv.Version
}

// bind resolves both sides of a comparison against the subject. The
// parser cannot produce a comparison with the placeholder on both
// sides; reaching one is a programming error.
func bind(x, y Term, v packserv.Version) (packserv.Version, packserv.Version) {
	if x.Input && y.Input {
		panic("ruleset: comparison with the subject on both sides")
	}
	a, b := x.Version, y.Version
	if x.Input {
		a = v
	}
	if y.Input {
		b = v
	}
	return a, b
}
