package query

import (
	"fmt"
	"io"
	"reflect"
	"strings"
)

// alwaysFalse replaces an empty IN list: "IN ()" is invalid SQL, and
// membership in the empty set must match zero rows.
const alwaysFalse = "0 = 1"

type inCond struct {
	col  string
	vals []any
	sub  *Builder
	not  bool
}

// In renders "col IN (?, …)". Values may be given variadically, as a
// single slice, or as a *Builder for an IN-subquery. An empty value
// set renders the always-false predicate "0 = 1".
func In(col string, vals ...any) Cond {
	if len(vals) == 1 {
		if sub, ok := vals[0].(*Builder); ok {
			return inCond{col: col, sub: sub}
		}
	}
	return inCond{col: col, vals: expandArgs(vals)}
}

// NotIn is the negation of In. Like In, an empty value set renders
// "0 = 1": NOT IN against an unknown set is not answerable, so the
// builder keeps the conservative always-false contract.
func NotIn(col string, vals ...any) Cond {
	if len(vals) == 1 {
		if sub, ok := vals[0].(*Builder); ok {
			return inCond{col: col, sub: sub, not: true}
		}
	}
	return inCond{col: col, vals: expandArgs(vals), not: true}
}

func (c inCond) WriteTo(w Writer) error {
	keyword := "IN"
	if c.not {
		keyword = "NOT IN"
	}
	if c.sub != nil {
		if _, err := fmt.Fprintf(w, "%s %s (", c.col, keyword); err != nil {
			return err
		}
		if err := c.sub.WriteTo(w); err != nil {
			return err
		}
		_, err := io.WriteString(w, ")")
		return err
	}
	if len(c.vals) == 0 {
		_, err := io.WriteString(w, alwaysFalse)
		return err
	}
	marks := strings.Repeat("?, ", len(c.vals))
	if _, err := fmt.Fprintf(w, "%s %s (%s)", c.col, keyword, marks[:len(marks)-2]); err != nil {
		return err
	}
	w.Append(c.vals...)
	return nil
}

func (c inCond) And(conds ...Cond) Cond { return And(append([]Cond{c}, conds...)...) }
func (c inCond) Or(conds ...Cond) Cond  { return Or(append([]Cond{c}, conds...)...) }
func (c inCond) IsValid() bool          { return c.col != "" }

// expandArgs flattens a single slice argument into its elements so
// both In("c", 1, 2) and In("c", []int{1, 2}) work. []byte stays
// scalar.
func expandArgs(vals []any) []any {
	if len(vals) != 1 || vals[0] == nil {
		return vals
	}
	rv := reflect.ValueOf(vals[0])
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return vals
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	default:
		return vals
	}
}

func isSlice(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}
