// Package template implements the placeholder substitution and predicate
// language workflow stages use to render inputs and evaluate conditions
// against accumulated WorkflowState (§4.6). Substitution is deliberately
// textual and total: a key with no binding in state leaves its placeholder
// in the output untouched rather than collapsing to the empty string, so a
// misconfigured stage reference is visible in the rendered text instead of
// silently vanishing.
package template

import (
	"regexp"
	"strings"
)

// placeholderPattern matches {name}, {node_id.output}, {loop.iteration}, and
// {loop.last.node_id} uniformly — the resolver does not special-case the dot
// forms, it just looks each full placeholder body up in State verbatim.
var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// State is the accumulated output mapping a workflow renders templates
// against: a plain key to string-value lookup. Callers populate it with
// stage/branch node_ids, "node_id.output" aliases, "loop.iteration", and
// "loop.last.<node_id>" entries as each workflow shape requires; this
// package only ever does exact key lookups against it.
type State map[string]string

// Render replaces every {key} placeholder in tmpl with State[key]. A key
// absent from state is left as the literal "{key}" text, per the
// unresolved-reference-must-stay-visible rule.
func Render(tmpl string, state State) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := state[key]; ok {
			return v
		}
		return match
	})
}

// operator is one recognized predicate comparison.
type operator string

const (
	opContains operator = "contains"
	opEquals   operator = "=="
	opNotEqual operator = "!="
	opMatches  operator = "matches"
)

// conditionSplitters split a condition into left-hand side, operator, and
// right-hand side. Each pattern requires whitespace on both sides of its
// operator; they are tried in the order listed and the first match wins.
var conditionSplitters = []struct {
	op      operator
	pattern *regexp.Regexp
}{
	{opEquals, regexp.MustCompile(`^(.*?)\s==\s(.*)$`)},
	{opNotEqual, regexp.MustCompile(`^(.*?)\s!=\s(.*)$`)},
	{opContains, regexp.MustCompile(`^(.*?)\scontains\s(.*)$`)},
	{opMatches, regexp.MustCompile(`^(.*?)\smatches\s(.*)$`)},
}

// Eval renders both sides of a condition of the form "<A> <op> <B>" against
// state and applies op. Only contains/==/!=/matches are recognized;
// anything else — malformed syntax, an unknown operator keyword, an
// irregular regex under matches — evaluates to false rather than erroring,
// per the resolver's "unknown syntax is false" rule. This keeps a typo'd
// condition from ever crashing a workflow; it just always skips that stage.
func Eval(condition string, state State) bool {
	for _, splitter := range conditionSplitters {
		m := splitter.pattern.FindStringSubmatch(condition)
		if m == nil {
			continue
		}
		lhs := Render(strings.TrimSpace(m[1]), state)
		rhs := Render(strings.TrimSpace(m[2]), state)
		return applyOperator(splitter.op, lhs, rhs)
	}
	return false
}

func applyOperator(op operator, lhs, rhs string) bool {
	switch op {
	case opEquals:
		return lhs == rhs
	case opNotEqual:
		return lhs != rhs
	case opContains:
		return strings.Contains(lhs, rhs)
	case opMatches:
		re, err := regexp.Compile(rhs)
		if err != nil {
			return false
		}
		return re.MatchString(lhs)
	default:
		return false
	}
}
