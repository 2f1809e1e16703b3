package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Evaluation works over untyped snapshot values: bool, float64 (and the
// other numeric kinds JSON decoding may produce), string, or nil for a
// variable that was never set. Coercion is lenient in the comparison
// positions and strict nowhere — an impossible comparison is false, not an
// error, so routing degrades to "not applicable" on incomplete data.

type node interface {
	eval(binds map[string]any) any
}

type binaryOp int

const (
	opAnd binaryOp = iota
	opOr
	opEq
	opNeq
	opLt
	opLte
	opGt
	opGte
)

type literalNode struct{ val any }

func (n *literalNode) eval(map[string]any) any { return n.val }

type varNode struct{ name string }

func (n *varNode) eval(binds map[string]any) any {
	if binds == nil {
		return nil
	}
	return binds[n.name]
}

type notNode struct{ child node }

func (n *notNode) eval(binds map[string]any) any {
	return !truthy(n.child.eval(binds))
}

type binaryNode struct {
	op          binaryOp
	left, right node
}

func (n *binaryNode) eval(binds map[string]any) any {
	switch n.op {
	case opAnd:
		return truthy(n.left.eval(binds)) && truthy(n.right.eval(binds))
	case opOr:
		return truthy(n.left.eval(binds)) || truthy(n.right.eval(binds))
	}

	l := n.left.eval(binds)
	r := n.right.eval(binds)
	switch n.op {
	case opEq:
		return equal(l, r)
	case opNeq:
		return !equal(l, r)
	case opLt:
		return order(l, r, func(c int) bool { return c < 0 })
	case opLte:
		return order(l, r, func(c int) bool { return c <= 0 })
	case opGt:
		return order(l, r, func(c int) bool { return c > 0 })
	case opGte:
		return order(l, r, func(c int) bool { return c >= 0 })
	}
	return false
}

// truthy maps a snapshot value onto boolean context: unset and zero values
// are false, the string "false" is false. A string that reads as a number
// follows numeric truthiness, keeping `x` and `x == 0` consistent when x
// arrived as "0".
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0
		}
		return s != "" && s != "false"
	default:
		if f, ok := asNumber(v); ok {
			return f != 0
		}
		return true
	}
}

// equal compares two snapshot values. Numbers compare numerically even when
// one side arrived as a numeric string; an unset variable equals false and
// nothing else; booleans compare by truthiness so "yes"-derived true values
// match boolean literals.
func equal(l, r any) bool {
	if l == nil || r == nil {
		if l == nil && r == nil {
			return true
		}
		other := l
		if l == nil {
			other = r
		}
		if b, ok := other.(bool); ok {
			return !b // unset behaves as false
		}
		return false
	}
	if _, ok := l.(bool); ok {
		return l.(bool) == truthy(r)
	}
	if _, ok := r.(bool); ok {
		return r.(bool) == truthy(l)
	}
	lf, lok := asNumber(l)
	rf, rok := asNumber(r)
	if lok && rok {
		return lf == rf
	}
	return asString(l) == asString(r)
}

// order applies an ordering comparison. Both sides must coerce to numbers,
// or both must be strings (compared lexicographically, which covers
// ISO-formatted date strings). Anything else is false.
func order(l, r any, pred func(int) bool) bool {
	lf, lok := asNumber(l)
	rf, rok := asNumber(r)
	if lok && rok {
		switch {
		case lf < rf:
			return pred(-1)
		case lf > rf:
			return pred(1)
		default:
			return pred(0)
		}
	}
	ls, lsok := l.(string)
	rs, rsok := r.(string)
	if lsok && rsok {
		return pred(strings.Compare(ls, rs))
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
