package query

import (
	"fmt"
	"io"
)

// Like renders "col LIKE ?". The pattern is passed through verbatim;
// callers supply their own wildcards.
type Like [2]string

func (l Like) WriteTo(w Writer) error {
	if _, err := fmt.Fprintf(w, "%s LIKE ?", l[0]); err != nil {
		return err
	}
	w.Append(l[1])
	return nil
}

func (l Like) And(conds ...Cond) Cond { return And(append([]Cond{l}, conds...)...) }
func (l Like) Or(conds ...Cond) Cond  { return Or(append([]Cond{l}, conds...)...) }
func (l Like) IsValid() bool          { return l[0] != "" }

// NotLike renders "col NOT LIKE ?" with the pattern passed verbatim.
type NotLike [2]string

func (l NotLike) WriteTo(w Writer) error {
	if _, err := fmt.Fprintf(w, "%s NOT LIKE ?", l[0]); err != nil {
		return err
	}
	w.Append(l[1])
	return nil
}

func (l NotLike) And(conds ...Cond) Cond { return And(append([]Cond{l}, conds...)...) }
func (l NotLike) Or(conds ...Cond) Cond  { return Or(append([]Cond{l}, conds...)...) }
func (l NotLike) IsValid() bool          { return l[0] != "" }

// IsNull renders "col IS NULL".
type IsNull [1]string

func (n IsNull) WriteTo(w Writer) error {
	_, err := fmt.Fprintf(w, "%s IS NULL", n[0])
	return err
}

func (n IsNull) And(conds ...Cond) Cond { return And(append([]Cond{n}, conds...)...) }
func (n IsNull) Or(conds ...Cond) Cond  { return Or(append([]Cond{n}, conds...)...) }
func (n IsNull) IsValid() bool          { return n[0] != "" }

// NotNull renders "col IS NOT NULL".
type NotNull [1]string

func (n NotNull) WriteTo(w Writer) error {
	_, err := fmt.Fprintf(w, "%s IS NOT NULL", n[0])
	return err
}

func (n NotNull) And(conds ...Cond) Cond { return And(append([]Cond{n}, conds...)...) }
func (n NotNull) Or(conds ...Cond) Cond  { return Or(append([]Cond{n}, conds...)...) }
func (n NotNull) IsValid() bool          { return n[0] != "" }

// Between renders "col BETWEEN ? AND ?".
type Between struct {
	Col  string
	Low  any
	High any
}

func (b Between) WriteTo(w Writer) error {
	if _, err := fmt.Fprintf(w, "%s BETWEEN ? AND ?", b.Col); err != nil {
		return err
	}
	w.Append(b.Low, b.High)
	return nil
}

func (b Between) And(conds ...Cond) Cond { return And(append([]Cond{b}, conds...)...) }
func (b Between) Or(conds ...Cond) Cond  { return Or(append([]Cond{b}, conds...)...) }
func (b Between) IsValid() bool          { return b.Col != "" }

// Raw is an explicit raw-SQL fragment carrying its own positional
// arguments. Passing a Raw where a plain column or value would
// otherwise be expected marks the text as SQL on purpose, so nothing
// upstream has to guess from its content.
type Raw struct {
	SQL  string
	Args []any
}

type rawCond Raw

// Expr wraps a raw SQL fragment with '?' placeholders as a condition.
func Expr(sql string, args ...any) Cond {
	return rawCond{SQL: sql, Args: args}
}

func (r rawCond) WriteTo(w Writer) error {
	if _, err := io.WriteString(w, r.SQL); err != nil {
		return err
	}
	w.Append(r.Args...)
	return nil
}

func (r rawCond) And(conds ...Cond) Cond { return And(append([]Cond{r}, conds...)...) }
func (r rawCond) Or(conds ...Cond) Cond  { return Or(append([]Cond{r}, conds...)...) }
func (r rawCond) IsValid() bool          { return r.SQL != "" }

type existsCond struct {
	sub *Builder
	not bool
}

// Exists renders "EXISTS (<sub>)" splicing the subquery's SQL and
// arguments in place.
func Exists(sub *Builder) Cond { return existsCond{sub: sub} }

// NotExists renders "NOT EXISTS (<sub>)".
func NotExists(sub *Builder) Cond { return existsCond{sub: sub, not: true} }

func (e existsCond) WriteTo(w Writer) error {
	keyword := "EXISTS ("
	if e.not {
		keyword = "NOT EXISTS ("
	}
	if _, err := io.WriteString(w, keyword); err != nil {
		return err
	}
	if err := e.sub.WriteTo(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, ")")
	return err
}

func (e existsCond) And(conds ...Cond) Cond { return And(append([]Cond{e}, conds...)...) }
func (e existsCond) Or(conds ...Cond) Cond  { return Or(append([]Cond{e}, conds...)...) }
func (e existsCond) IsValid() bool          { return e.sub != nil }
