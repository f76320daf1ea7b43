package compiler

import (
	"strings"

	"edge-redirector/internal/rules"
)

var wildcards = strings.NewReplacer("?", ".?", "*", ".*")

// BuildGuard turns the matchers and active window of a pattern rule into a guard.
// Matchers become terms in declaration order, followed by up to two window terms.
// An empty guard means the rule has nothing to test.
func BuildGuard(r rules.Rule) And {
	guard := make(And, 0, len(r.Matchers)+2)

	for _, m := range r.Matchers {
		if term := matcherTerm(m); term != nil {
			guard = append(guard, term)
		}
	}

	if r.Window.Active() {
		if r.Window.Start != 0 {
			guard = append(guard, NowAfter{Unix: r.Window.Start})
		}
		if r.Window.End != 0 {
			guard = append(guard, NowBefore{Unix: r.Window.End})
		}
	}

	return guard
}

// matcherTerm builds the disjunction of one matcher's alternatives. An empty
// value is a single empty alternative, so every matcher yields a term.
func matcherTerm(m rules.Matcher) Expr {
	name, alternatives := m.Split()
	if len(alternatives) == 0 {
		alternatives = []string{""}
	}

	attr, ok := attributeFor(m.Type, name)
	if !ok {
		return nil
	}

	alts := make(Or, 0, len(alternatives))
	for _, alt := range alternatives {
		alts = append(alts, compareFor(attr, alt, m.Negate))
	}
	if len(alts) == 1 {
		return alts[0]
	}
	return alts
}

func attributeFor(typ rules.MatcherType, name string) (Attribute, bool) {
	switch typ {
	case rules.MatchRegex:
		return Attribute{Kind: AttrFullPath}, true
	case rules.MatchQuery:
		return Attribute{Kind: AttrQueryParam, Name: name}, true
	case rules.MatchHostname:
		return Attribute{Kind: AttrHost}, true
	case rules.MatchPath:
		return Attribute{Kind: AttrPath}, true
	case rules.MatchExtension:
		return Attribute{Kind: AttrExtension}, true
	case rules.MatchCookie:
		return Attribute{Kind: AttrCookie, Name: name}, true
	default:
		return Attribute{}, false
	}
}

func compareFor(attr Attribute, alt string, negate bool) Compare {
	if attr.Kind == AttrFullPath {
		return Compare{Attr: attr, Op: regexOp(negate), Value: strings.TrimSuffix(alt, ".*")}
	}
	if strings.ContainsAny(alt, "?*") {
		return Compare{Attr: attr, Op: regexOp(negate), Value: wildcards.Replace(alt)}
	}
	if negate {
		return Compare{Attr: attr, Op: OpNotEqual, Value: alt}
	}
	return Compare{Attr: attr, Op: OpEqual, Value: alt}
}

func regexOp(negate bool) Op {
	if negate {
		return OpNotMatch
	}
	return OpMatch
}
