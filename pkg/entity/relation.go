package entity

import (
	"fmt"

	"github.com/entable/entable/pkg/dialect"
)

// RelationKind tags the shape of a relation. Only ManyToMany carries
// junction fields; the other kinds are a single join between two
// tables.
type RelationKind string

const (
	OneToOne   RelationKind = "oneToOne"
	OneToMany  RelationKind = "oneToMany"
	ManyToOne  RelationKind = "manyToOne"
	ManyToMany RelationKind = "manyToMany"
)

// Relation declares a named traversal from the owning entity to a
// target entity. SourceColumn is a logical column on the owning
// entity, TargetColumn a logical column on the target. Self-referential
// relations (Target naming the owning entity) are permitted.
type Relation struct {
	Name         string       `json:"name"`
	Kind         RelationKind `json:"kind"`
	Target       string       `json:"target"`
	SourceColumn string       `json:"source_column"`
	TargetColumn string       `json:"target_column"`
	// Junction is set for ManyToMany only.
	Junction *Junction `json:"junction,omitempty"`
}

// Junction describes the association table a ManyToMany relation hops
// through. SourceColumn and TargetColumn are physical columns in the
// junction table. Owning marks the side whose schema sync creates the
// table, so a relation declared on both entities creates it once.
type Junction struct {
	Table        string            `json:"table"`
	SourceColumn string            `json:"source_column"`
	TargetColumn string            `json:"target_column"`
	Owning       bool              `json:"owning,omitempty"`
	Extra        []*JunctionColumn `json:"extra,omitempty"`
}

// JunctionColumn is an extra descriptive column on a junction table,
// e.g. an ordering position or an attached-at stamp.
type JunctionColumn struct {
	Name     string             `json:"name"`
	Type     dialect.ColumnType `json:"type,omitempty"`
	Nullable bool               `json:"nullable,omitempty"`
	Default  any                `json:"default,omitempty"`
}

func (r *Relation) validate(entity string) error {
	if r.Name == "" {
		return fmt.Errorf("entity %q: relation without a name", entity)
	}
	if r.Target == "" {
		return fmt.Errorf("entity %q: relation %q: target entity is required", entity, r.Name)
	}
	if r.SourceColumn == "" || r.TargetColumn == "" {
		return fmt.Errorf("entity %q: relation %q: source and target columns are required", entity, r.Name)
	}
	switch r.Kind {
	case OneToOne, OneToMany, ManyToOne:
		if r.Junction != nil {
			return fmt.Errorf("entity %q: relation %q: junction is only valid for %s", entity, r.Name, ManyToMany)
		}
	case ManyToMany:
		j := r.Junction
		if j == nil {
			return fmt.Errorf("entity %q: relation %q: %s requires a junction", entity, r.Name, ManyToMany)
		}
		if j.Table == "" || j.SourceColumn == "" || j.TargetColumn == "" {
			return fmt.Errorf("entity %q: relation %q: junction table and columns are required", entity, r.Name)
		}
		for _, extra := range j.Extra {
			if extra.Name == "" {
				return fmt.Errorf("entity %q: relation %q: junction extra column without a name", entity, r.Name)
			}
			if extra.Type == "" {
				extra.Type = dialect.TypeString
			}
		}
	default:
		return fmt.Errorf("entity %q: relation %q: unknown kind %q", entity, r.Name, r.Kind)
	}
	return nil
}

// JunctionRef ties one physical junction column to a logical column on
// the referenced entity.
type JunctionRef struct {
	Column string `json:"column"` // physical column in the junction table
	Ref    string `json:"ref"`    // logical column on the referenced entity
}

// JunctionSide is one foreign-key column set of an explicit junction
// table. The set may be composite.
type JunctionSide struct {
	Entity  string        `json:"entity"`
	Columns []JunctionRef `json:"columns"`
}

// JunctionTable is an explicitly declared association table. Unlike
// the implicit junction a ManyToMany relation carries, it supports
// composite foreign-key sets on either side. It is created during
// schema synchronization and never exposed as an entity; its rows are
// mutated through a repository's relation operations.
type JunctionTable struct {
	Table  string            `json:"table"`
	Source JunctionSide      `json:"source"`
	Target JunctionSide      `json:"target"`
	Extra  []*JunctionColumn `json:"extra,omitempty"`
}

func (jt *JunctionTable) validate(entity string) error {
	if jt.Table == "" {
		return fmt.Errorf("entity %q: junction table without a name", entity)
	}
	for _, side := range []*JunctionSide{&jt.Source, &jt.Target} {
		if side.Entity == "" {
			return fmt.Errorf("entity %q: junction table %q: both sides need an entity", entity, jt.Table)
		}
		if len(side.Columns) == 0 {
			return fmt.Errorf("entity %q: junction table %q: side %q has no columns", entity, jt.Table, side.Entity)
		}
		for _, ref := range side.Columns {
			if ref.Column == "" || ref.Ref == "" {
				return fmt.Errorf("entity %q: junction table %q: incomplete column reference", entity, jt.Table)
			}
		}
	}
	for _, extra := range jt.Extra {
		if extra.Name == "" {
			return fmt.Errorf("entity %q: junction table %q: extra column without a name", entity, jt.Table)
		}
		if extra.Type == "" {
			extra.Type = dialect.TypeString
		}
	}
	return nil
}

// JunctionTableFromRelation lifts a ManyToMany relation's implicit
// junction into the explicit form the DDL layer consumes.
func JunctionTableFromRelation(owner *Config, rel *Relation) (*JunctionTable, error) {
	if rel.Kind != ManyToMany || rel.Junction == nil {
		return nil, fmt.Errorf("entity %q: relation %q is not a many-to-many relation", owner.Entity, rel.Name)
	}
	j := rel.Junction
	return &JunctionTable{
		Table: j.Table,
		Source: JunctionSide{
			Entity:  owner.Entity,
			Columns: []JunctionRef{{Column: j.SourceColumn, Ref: rel.SourceColumn}},
		},
		Target: JunctionSide{
			Entity:  rel.Target,
			Columns: []JunctionRef{{Column: j.TargetColumn, Ref: rel.TargetColumn}},
		},
		Extra: j.Extra,
	}, nil
}
