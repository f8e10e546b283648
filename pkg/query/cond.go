package query

import (
	"fmt"
	"io"
)

// Cond is one renderable predicate. Implementations write their SQL
// fragment (with '?' placeholders) and append the matching arguments
// to the Writer in a single pass.
type Cond interface {
	WriteTo(w Writer) error
	And(conds ...Cond) Cond
	Or(conds ...Cond) Cond
	IsValid() bool
}

type emptyCond struct{}

// NewCond returns an empty condition to accrete onto with And/Or.
func NewCond() Cond { return emptyCond{} }

func (emptyCond) WriteTo(Writer) error    { return nil }
func (emptyCond) And(conds ...Cond) Cond  { return And(conds...) }
func (emptyCond) Or(conds ...Cond) Cond   { return Or(conds...) }
func (emptyCond) IsValid() bool           { return false }

type condAnd []Cond

// And joins conditions with AND, dropping empty members.
func And(conds ...Cond) Cond {
	result := make(condAnd, 0, len(conds))
	for _, c := range conds {
		if c != nil && c.IsValid() {
			result = append(result, c)
		}
	}
	if len(result) == 0 {
		return emptyCond{}
	}
	if len(result) == 1 {
		return result[0]
	}
	return result
}

func (a condAnd) WriteTo(w Writer) error {
	for i, c := range a {
		if i > 0 {
			if _, err := fmt.Fprint(w, " AND "); err != nil {
				return err
			}
		}
		if err := writeGrouped(w, c); err != nil {
			return err
		}
	}
	return nil
}

func (a condAnd) And(conds ...Cond) Cond { return And(append([]Cond{a}, conds...)...) }
func (a condAnd) Or(conds ...Cond) Cond  { return Or(append([]Cond{a}, conds...)...) }
func (a condAnd) IsValid() bool          { return len(a) > 0 }

type condOr []Cond

// Or joins conditions with OR, dropping empty members.
func Or(conds ...Cond) Cond {
	result := make(condOr, 0, len(conds))
	for _, c := range conds {
		if c != nil && c.IsValid() {
			result = append(result, c)
		}
	}
	if len(result) == 0 {
		return emptyCond{}
	}
	if len(result) == 1 {
		return result[0]
	}
	return result
}

func (o condOr) WriteTo(w Writer) error {
	for i, c := range o {
		if i > 0 {
			if _, err := fmt.Fprint(w, " OR "); err != nil {
				return err
			}
		}
		if err := writeGrouped(w, c); err != nil {
			return err
		}
	}
	return nil
}

func (o condOr) And(conds ...Cond) Cond { return And(append([]Cond{o}, conds...)...) }
func (o condOr) Or(conds ...Cond) Cond  { return Or(append([]Cond{o}, conds...)...) }
func (o condOr) IsValid() bool          { return len(o) > 0 }

// writeGrouped parenthesizes composite members so the boolean shape of
// the tree survives rendering.
func writeGrouped(w Writer, c Cond) error {
	switch c.(type) {
	case condAnd, condOr:
		if _, err := io.WriteString(w, "("); err != nil {
			return err
		}
		if err := c.WriteTo(w); err != nil {
			return err
		}
		_, err := io.WriteString(w, ")")
		return err
	default:
		return c.WriteTo(w)
	}
}
