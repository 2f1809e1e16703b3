// Package condition implements the boolean expression language embedded in
// flow manifests and questionnaire documents ("ask_if" predicates, derived
// rule guards). The grammar is deliberately closed: literals, variable
// references, comparisons, boolean connectives and grouping — no function
// calls, no assignment, no loops. Every predicate terminates and can be
// audited by reading it.
package condition

import (
	"fmt"
)

// Compiled is an immutable, parsed condition expression. A Compiled value
// is safe for concurrent use; evaluation never mutates it.
type Compiled struct {
	src  string
	root node
}

// Source returns the original expression text.
func (c *Compiled) Source() string { return c.src }

// Eval evaluates the expression against a variable snapshot. Missing
// variables behave as falsy — evaluation is total and never fails.
func (c *Compiled) Eval(binds map[string]any) bool {
	if c.root == nil {
		return true
	}
	return truthy(c.root.eval(binds))
}

// Compile parses an expression into its immutable tree form. An empty or
// blank expression compiles to an always-true condition, matching the
// convention that an absent guard means "always applicable".
func Compile(src string) (*Compiled, error) {
	p := newParser(src)
	root, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Compiled{src: src, root: root}, nil
}

// Evaluate is the one-shot form of Compile + Eval.
func Evaluate(src string, binds map[string]any) (bool, error) {
	c, err := Compile(src)
	if err != nil {
		return false, err
	}
	return c.Eval(binds), nil
}

// SyntaxError reports a malformed expression. Label identifies the owning
// entity (process key, rule name, question id) so configuration defects
// point at the document that carries them.
type SyntaxError struct {
	Expr  string
	Label string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("condition %q (%s): %s at offset %d", e.Expr, e.Label, e.Msg, e.Pos)
	}
	return fmt.Sprintf("condition %q: %s at offset %d", e.Expr, e.Msg, e.Pos)
}

// Labeled returns a copy of the error annotated with the owning entity.
func (e *SyntaxError) Labeled(label string) *SyntaxError {
	return &SyntaxError{Expr: e.Expr, Label: label, Pos: e.Pos, Msg: e.Msg}
}
