package query

import (
	"fmt"
	"slices"

	"golang.org/x/exp/maps"
)

// Eq renders "col = ?" for every pair, joined with AND. A nil value
// renders "col IS NULL" and a slice value renders an IN list, so the
// common condition-map shape covers those cases without extra types.
type Eq map[string]any

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

func (eq Eq) WriteTo(w Writer) error {
	for i, col := range sortedKeys(eq) {
		if i > 0 {
			if _, err := fmt.Fprint(w, " AND "); err != nil {
				return err
			}
		}
		val := eq[col]
		switch v := val.(type) {
		case nil:
			if _, err := fmt.Fprintf(w, "%s IS NULL", col); err != nil {
				return err
			}
		case Raw:
			if _, err := fmt.Fprintf(w, "%s = %s", col, v.SQL); err != nil {
				return err
			}
			w.Append(v.Args...)
		case *Builder:
			if _, err := fmt.Fprintf(w, "%s = (", col); err != nil {
				return err
			}
			if err := v.WriteTo(w); err != nil {
				return err
			}
			if _, err := fmt.Fprint(w, ")"); err != nil {
				return err
			}
		default:
			if isSlice(val) {
				if err := In(col, val).WriteTo(w); err != nil {
					return err
				}
				continue
			}
			if _, err := fmt.Fprintf(w, "%s = ?", col); err != nil {
				return err
			}
			w.Append(val)
		}
	}
	return nil
}

func (eq Eq) And(conds ...Cond) Cond { return And(append([]Cond{eq}, conds...)...) }
func (eq Eq) Or(conds ...Cond) Cond  { return Or(append([]Cond{eq}, conds...)...) }
func (eq Eq) IsValid() bool          { return len(eq) > 0 }

// Neq renders "col <> ?" for every pair, joined with AND. A nil value
// renders "col IS NOT NULL"; a slice value renders a NOT IN list.
type Neq map[string]any

func (ne Neq) WriteTo(w Writer) error {
	for i, col := range sortedKeys(ne) {
		if i > 0 {
			if _, err := fmt.Fprint(w, " AND "); err != nil {
				return err
			}
		}
		val := ne[col]
		switch v := val.(type) {
		case nil:
			if _, err := fmt.Fprintf(w, "%s IS NOT NULL", col); err != nil {
				return err
			}
		case Raw:
			if _, err := fmt.Fprintf(w, "%s <> %s", col, v.SQL); err != nil {
				return err
			}
			w.Append(v.Args...)
		case *Builder:
			if _, err := fmt.Fprintf(w, "%s <> (", col); err != nil {
				return err
			}
			if err := v.WriteTo(w); err != nil {
				return err
			}
			if _, err := fmt.Fprint(w, ")"); err != nil {
				return err
			}
		default:
			if isSlice(val) {
				if err := NotIn(col, val).WriteTo(w); err != nil {
					return err
				}
				continue
			}
			if _, err := fmt.Fprintf(w, "%s <> ?", col); err != nil {
				return err
			}
			w.Append(val)
		}
	}
	return nil
}

func (ne Neq) And(conds ...Cond) Cond { return And(append([]Cond{ne}, conds...)...) }
func (ne Neq) Or(conds ...Cond) Cond  { return Or(append([]Cond{ne}, conds...)...) }
func (ne Neq) IsValid() bool          { return len(ne) > 0 }

func writeCompare(w Writer, m map[string]any, op string) error {
	for i, col := range sortedKeys(m) {
		if i > 0 {
			if _, err := fmt.Fprint(w, " AND "); err != nil {
				return err
			}
		}
		if r, ok := m[col].(Raw); ok {
			if _, err := fmt.Fprintf(w, "%s %s %s", col, op, r.SQL); err != nil {
				return err
			}
			w.Append(r.Args...)
			continue
		}
		if sub, ok := m[col].(*Builder); ok {
			if _, err := fmt.Fprintf(w, "%s %s (", col, op); err != nil {
				return err
			}
			if err := sub.WriteTo(w); err != nil {
				return err
			}
			if _, err := fmt.Fprint(w, ")"); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s %s ?", col, op); err != nil {
			return err
		}
		w.Append(m[col])
	}
	return nil
}

// Gt renders "col > ?" for every pair, joined with AND.
type Gt map[string]any

func (gt Gt) WriteTo(w Writer) error  { return writeCompare(w, gt, ">") }
func (gt Gt) And(conds ...Cond) Cond  { return And(append([]Cond{gt}, conds...)...) }
func (gt Gt) Or(conds ...Cond) Cond   { return Or(append([]Cond{gt}, conds...)...) }
func (gt Gt) IsValid() bool           { return len(gt) > 0 }

// Gte renders "col >= ?" for every pair, joined with AND.
type Gte map[string]any

func (ge Gte) WriteTo(w Writer) error { return writeCompare(w, ge, ">=") }
func (ge Gte) And(conds ...Cond) Cond { return And(append([]Cond{ge}, conds...)...) }
func (ge Gte) Or(conds ...Cond) Cond  { return Or(append([]Cond{ge}, conds...)...) }
func (ge Gte) IsValid() bool          { return len(ge) > 0 }

// Lt renders "col < ?" for every pair, joined with AND.
type Lt map[string]any

func (lt Lt) WriteTo(w Writer) error  { return writeCompare(w, lt, "<") }
func (lt Lt) And(conds ...Cond) Cond  { return And(append([]Cond{lt}, conds...)...) }
func (lt Lt) Or(conds ...Cond) Cond   { return Or(append([]Cond{lt}, conds...)...) }
func (lt Lt) IsValid() bool           { return len(lt) > 0 }

// Lte renders "col <= ?" for every pair, joined with AND.
type Lte map[string]any

func (le Lte) WriteTo(w Writer) error { return writeCompare(w, le, "<=") }
func (le Lte) And(conds ...Cond) Cond { return And(append([]Cond{le}, conds...)...) }
func (le Lte) Or(conds ...Cond) Cond  { return Or(append([]Cond{le}, conds...)...) }
func (le Lte) IsValid() bool          { return len(le) > 0 }

// Compare builds the condition for one structured (column, operator,
// value) triple.
func Compare(col string, op Op, val any) (Cond, error) {
	switch op {
	case OpEq:
		return Eq{col: val}, nil
	case OpNe:
		return Neq{col: val}, nil
	case OpGt:
		return Gt{col: val}, nil
	case OpGte:
		return Gte{col: val}, nil
	case OpLt:
		return Lt{col: val}, nil
	case OpLte:
		return Lte{col: val}, nil
	case OpLike:
		return Like{col, fmt.Sprintf("%v", val)}, nil
	case OpNotLike:
		return NotLike{col, fmt.Sprintf("%v", val)}, nil
	case OpIn:
		return In(col, val), nil
	case OpNotIn:
		return NotIn(col, val), nil
	case OpIsNull:
		return IsNull{col}, nil
	case OpNotNull:
		return NotNull{col}, nil
	case OpBetween:
		pair := expandArgs([]any{val})
		if len(pair) != 2 {
			return nil, fmt.Errorf("between requires exactly two values, got %d", len(pair))
		}
		return Between{Col: col, Low: pair[0], High: pair[1]}, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", op)
	}
}
