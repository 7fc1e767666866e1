package filterexpr

import (
	"strings"
)

// value is the evaluation domain: strings, ints, floats, bools, lists, and
// the distinguished missing value produced by unresolved field paths.
type value struct {
	kind valueKind
	s    string
	i    int64
	f    float64
	b    bool
	list []value
}

type valueKind int

const (
	kindMissing valueKind = iota
	kindString
	kindInt
	kindFloat
	kindBool
	kindList
)

func strValue(s string) value    { return value{kind: kindString, s: s} }
func intValue(i int64) value     { return value{kind: kindInt, i: i} }
func floatValue(f float64) value { return value{kind: kindFloat, f: f} }
func boolValue(b bool) value     { return value{kind: kindBool, b: b} }
func missingValue() value        { return value{kind: kindMissing} }
func listValue(vs []value) value { return value{kind: kindList, list: vs} }

// Eval evaluates the expression against the event's fields and reports
// whether it passed. Non-boolean results are interpreted by truthiness so a
// bare field reference reads as "field exists and is non-zero".
func Eval(e Expr, ev fieldSource) bool {
	return e.eval(ev).truthy()
}

func (l *literal) eval(fieldSource) value { return l.val }

func (id *ident) eval(ev fieldSource) value {
	v, ok := ev.GetField(id.path)
	if !ok {
		return missingValue()
	}
	return fromGo(v)
}

func (ll *listLit) eval(ev fieldSource) value {
	elems := make([]value, len(ll.elems))
	for i, e := range ll.elems {
		elems[i] = e.eval(ev)
	}
	return listValue(elems)
}

func (u *unary) eval(ev fieldSource) value {
	return boolValue(!u.rhs.eval(ev).truthy())
}

func (b *binary) eval(ev fieldSource) value {
	switch b.op {
	case "and":
		if !b.lhs.eval(ev).truthy() {
			return boolValue(false)
		}
		return boolValue(b.rhs.eval(ev).truthy())
	case "or":
		if b.lhs.eval(ev).truthy() {
			return boolValue(true)
		}
		return boolValue(b.rhs.eval(ev).truthy())
	}

	lhs := b.lhs.eval(ev)
	rhs := b.rhs.eval(ev)

	switch b.op {
	case "==":
		return boolValue(equal(lhs, rhs))
	case "!=":
		return boolValue(!equal(lhs, rhs))
	case "<", "<=", ">", ">=":
		return boolValue(order(b.op, lhs, rhs))
	case "in":
		if lhs.kind == kindMissing || rhs.kind != kindList {
			return boolValue(false)
		}
		for _, elem := range rhs.list {
			if equal(lhs, elem) {
				return boolValue(true)
			}
		}
		return boolValue(false)
	}
	return boolValue(false)
}

// fromGo maps a field value into the evaluation domain.
func fromGo(v any) value {
	switch t := v.(type) {
	case nil:
		return missingValue()
	case string:
		return strValue(t)
	case bool:
		return boolValue(t)
	case int:
		return intValue(int64(t))
	case int32:
		return intValue(int64(t))
	case int64:
		return intValue(t)
	case uint:
		return intValue(int64(t))
	case uint64:
		return intValue(int64(t))
	case float32:
		return floatValue(float64(t))
	case float64:
		// JSON numbers arrive as float64; keep integral ones comparable
		// to int literals via numeric coercion in equal/order.
		return floatValue(t)
	case []any:
		elems := make([]value, len(t))
		for i, item := range t {
			elems[i] = fromGo(item)
		}
		return listValue(elems)
	case []string:
		elems := make([]value, len(t))
		for i, item := range t {
			elems[i] = strValue(item)
		}
		return listValue(elems)
	default:
		return missingValue()
	}
}

// equal implements the language's equality: a missing field compares unequal
// to everything, numeric comparison coerces int and float, strings and
// symbols compare by literal text.
func equal(a, b value) bool {
	if a.kind == kindMissing || b.kind == kindMissing {
		return false
	}
	if a.isNumeric() && b.isNumeric() {
		return a.asFloat() == b.asFloat()
	}
	switch {
	case a.kind == kindString && b.kind == kindString:
		return a.s == b.s
	case a.kind == kindBool && b.kind == kindBool:
		return a.b == b.b
	}
	return false
}

func order(op string, a, b value) bool {
	if a.kind == kindMissing || b.kind == kindMissing {
		return false
	}

	var cmp int
	switch {
	case a.isNumeric() && b.isNumeric():
		af, bf := a.asFloat(), b.asFloat()
		switch {
		case af < bf:
			cmp = -1
		case af > bf:
			cmp = 1
		}
	case a.kind == kindString && b.kind == kindString:
		cmp = strings.Compare(a.s, b.s)
	default:
		return false
	}

	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func (v value) isNumeric() bool {
	return v.kind == kindInt || v.kind == kindFloat
}

func (v value) asFloat() float64 {
	if v.kind == kindInt {
		return float64(v.i)
	}
	return v.f
}

func (v value) truthy() bool {
	switch v.kind {
	case kindBool:
		return v.b
	case kindString:
		return v.s != ""
	case kindInt:
		return v.i != 0
	case kindFloat:
		return v.f != 0
	case kindList:
		return len(v.list) > 0
	default:
		return false
	}
}
