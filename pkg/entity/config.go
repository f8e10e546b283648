// Package entity holds the logical entity model: configs describing
// how application-facing names map onto physical tables, the relation
// definitions between entities, and the entity-aware query builder
// that resolves those names before SQL is built.
package entity

import (
	"fmt"
	"strings"

	"github.com/entable/entable/pkg/dialect"
	"github.com/goccy/go-json"
	"github.com/jinzhu/inflection"
)

// ForeignKey references a column in another table. The JSON form may
// be the compact "table.column" string or the structured object.
type ForeignKey struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

func (fk *ForeignKey) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var compact string
		if err := json.Unmarshal(data, &compact); err != nil {
			return err
		}
		table, column, ok := strings.Cut(compact, ".")
		if !ok {
			return fmt.Errorf("foreign key %q: want \"table.column\"", compact)
		}
		fk.Table, fk.Column = table, column
		return nil
	}
	type plain ForeignKey
	return json.Unmarshal(data, (*plain)(fk))
}

// Column maps one logical column onto a physical one.
type Column struct {
	Logical       string             `json:"logical"`
	Physical      string             `json:"physical,omitempty"` // defaults to Logical
	Type          dialect.ColumnType `json:"type,omitempty"`     // defaults to string
	PrimaryKey    bool               `json:"primary_key,omitempty"`
	AutoIncrement bool               `json:"auto_increment,omitempty"`
	Nullable      bool               `json:"nullable,omitempty"`
	Unique        bool               `json:"unique,omitempty"`
	Default       any                `json:"default,omitempty"`
	ForeignKey    *ForeignKey        `json:"foreign_key,omitempty"`
}

// IDField is the entity's identifying column list: one logical name
// for a simple key, several for a composite key. The JSON form may be
// a single string or an array.
type IDField []string

func (f *IDField) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*f = IDField{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*f = many
	return nil
}

// Timestamps names the logical columns maintained automatically on
// insert and update. Empty fields disable the corresponding stamp.
type Timestamps struct {
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Config describes one logical entity. It is constructed once, before
// the adapter or synchronizer touch it, and treated as immutable for
// the process lifetime.
type Config struct {
	Entity         string           `json:"entity"`
	Table          string           `json:"table,omitempty"` // defaults to the pluralized snake-case entity name
	IDField        IDField          `json:"id_field,omitempty"`
	Columns        []*Column        `json:"columns"`
	Relations      []*Relation      `json:"relations,omitempty"`
	JunctionTables []*JunctionTable `json:"junction_tables,omitempty"`
	Timestamps     *Timestamps      `json:"timestamps,omitempty"`

	byLogical  map[string]*Column
	byPhysical map[string]*Column
	byRelation map[string]*Relation
}

// Validate applies defaults, checks the config invariants and builds
// the lookup indexes. It must be called (directly or via a Registry)
// before the config is used for queries or DDL; every query path
// assumes a validated config.
func (c *Config) Validate() error {
	if c.Entity == "" {
		return fmt.Errorf("entity config: entity name is required")
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("entity %q: at least one column is required", c.Entity)
	}
	if c.Table == "" {
		c.Table = inflection.Plural(toSnake(c.Entity))
	}

	c.byLogical = make(map[string]*Column, len(c.Columns))
	c.byPhysical = make(map[string]*Column, len(c.Columns))
	pkCount := 0
	for _, col := range c.Columns {
		if col.Logical == "" {
			return fmt.Errorf("entity %q: column without logical name", c.Entity)
		}
		if col.Physical == "" {
			col.Physical = col.Logical
		}
		if col.Type == "" {
			col.Type = dialect.TypeString
		}
		if _, dup := c.byLogical[col.Logical]; dup {
			return fmt.Errorf("entity %q: duplicate logical column %q", c.Entity, col.Logical)
		}
		if _, dup := c.byPhysical[col.Physical]; dup {
			return fmt.Errorf("entity %q: duplicate physical column %q", c.Entity, col.Physical)
		}
		c.byLogical[col.Logical] = col
		c.byPhysical[col.Physical] = col
		if col.PrimaryKey {
			pkCount++
		}
		if col.AutoIncrement && !col.PrimaryKey {
			return fmt.Errorf("entity %q: column %q is auto-increment but not a primary key", c.Entity, col.Logical)
		}
	}
	if pkCount == 0 {
		return fmt.Errorf("entity %q: at least one primary-key column is required", c.Entity)
	}

	if len(c.IDField) == 0 {
		for _, col := range c.Columns {
			if col.PrimaryKey {
				c.IDField = append(c.IDField, col.Logical)
			}
		}
	}
	for _, id := range c.IDField {
		if _, ok := c.byLogical[id]; !ok {
			return fmt.Errorf("entity %q: id field %q does not resolve to a column", c.Entity, id)
		}
	}

	c.byRelation = make(map[string]*Relation, len(c.Relations))
	for _, rel := range c.Relations {
		if err := rel.validate(c.Entity); err != nil {
			return err
		}
		if _, dup := c.byRelation[rel.Name]; dup {
			return fmt.Errorf("entity %q: duplicate relation %q", c.Entity, rel.Name)
		}
		if _, ok := c.byLogical[rel.SourceColumn]; !ok {
			return fmt.Errorf("entity %q: relation %q: source column %q does not resolve", c.Entity, rel.Name, rel.SourceColumn)
		}
		c.byRelation[rel.Name] = rel
	}

	for _, jt := range c.JunctionTables {
		if err := jt.validate(c.Entity); err != nil {
			return err
		}
	}

	if ts := c.Timestamps; ts != nil {
		for _, name := range []string{ts.CreatedAt, ts.UpdatedAt} {
			if name == "" {
				continue
			}
			if _, ok := c.byLogical[name]; !ok {
				return fmt.Errorf("entity %q: timestamp field %q does not resolve to a column", c.Entity, name)
			}
		}
	}
	return nil
}

// Column resolves a logical name.
func (c *Config) Column(logical string) (*Column, error) {
	col, ok := c.byLogical[logical]
	if !ok {
		return nil, unknownColumn(c.Entity, logical)
	}
	return col, nil
}

// Physical resolves a logical name to its physical column name.
func (c *Config) Physical(logical string) (string, error) {
	col, err := c.Column(logical)
	if err != nil {
		return "", err
	}
	return col.Physical, nil
}

// ColumnByPhysical reports the column declared with the given physical
// name, if any.
func (c *Config) ColumnByPhysical(physical string) (*Column, bool) {
	col, ok := c.byPhysical[physical]
	return col, ok
}

// Relation resolves a relation name.
func (c *Config) Relation(name string) (*Relation, error) {
	rel, ok := c.byRelation[name]
	if !ok {
		return nil, unknownRelation(c.Entity, name)
	}
	return rel, nil
}

// PrimaryKeyColumns lists the primary-key columns in declaration
// order.
func (c *Config) PrimaryKeyColumns() []*Column {
	var pks []*Column
	for _, col := range c.Columns {
		if col.PrimaryKey {
			pks = append(pks, col)
		}
	}
	return pks
}

// AutoIncrementColumn reports the auto-increment column, if declared.
func (c *Config) AutoIncrementColumn() (*Column, bool) {
	for _, col := range c.Columns {
		if col.AutoIncrement {
			return col, true
		}
	}
	return nil, false
}

// toSnake lowercases camel-case words with underscores, the
// conventional physical naming.
func toSnake(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
