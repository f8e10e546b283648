// Package repo exposes the application-facing data operations for one
// entity: logical-name CRUD, relation traversal and junction-row
// maintenance, with automatic timestamp columns and change events.
// Callers speak logical names throughout; rows come back logical-keyed
// and the physical schema never leaks through this surface.
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/entable/entable/pkg/adapter"
	"github.com/entable/entable/pkg/config"
	"github.com/entable/entable/pkg/entity"
	"github.com/entable/entable/pkg/event"
	"github.com/entable/entable/pkg/query"
	"go.uber.org/zap"
)

// DefaultTopic is the stream change events are published on when the
// repository options do not name one.
const DefaultTopic = "entable.entities"

// Options carries the optional repository collaborators.
type Options struct {
	// Publisher receives a change event after each successful
	// mutation. Nil disables eventing. Publish failures are logged
	// and never fail the mutation that triggered them.
	Publisher event.Publisher
	// Topic overrides DefaultTopic for published events.
	Topic  string
	Logger *zap.Logger
}

// Sort is one ORDER BY term over a logical column.
type Sort struct {
	Field string
	Dir   query.Direction
}

// FindOptions narrows the result shape of the Find operations, all in
// logical names. The zero value means "all columns, engine order, no
// paging".
type FindOptions struct {
	Fields  []string
	OrderBy []Sort
	Limit   int
	Offset  int
}

// Repository scopes an adapter to one entity config. Every operation
// resolves logical names before SQL is built and re-keys result rows
// back to logical names, so unknown names fail with a MappingError
// before the driver sees anything.
//
// A repository adds no state of its own on top of the adapter: calls
// made inside an adapter Transaction callback join that transaction,
// and repositories for several entities may share one adapter.
type Repository struct {
	cfg   *entity.Config
	reg   *entity.Registry
	a     adapter.Adapter
	pub   event.Publisher
	topic string
	log   *zap.Logger
}

// New builds a repository for the named entity. The registry supplies
// the entity's config and resolves relation targets.
func New(a adapter.Adapter, reg *entity.Registry, entityName string, opts ...*Options) (*Repository, error) {
	cfg, ok := reg.Get(entityName)
	if !ok {
		return nil, &entity.MappingError{Entity: entityName, Kind: "entity", Name: entityName}
	}
	r := &Repository{
		cfg:   cfg,
		reg:   reg,
		a:     a,
		topic: DefaultTopic,
		log:   config.GetLogger(),
	}
	if len(opts) > 0 && opts[0] != nil {
		o := opts[0]
		r.pub = o.Publisher
		if o.Topic != "" {
			r.topic = o.Topic
		}
		if o.Logger != nil {
			r.log = o.Logger
		}
	}
	return r, nil
}

// Config reports the entity config this repository is scoped to.
func (r *Repository) Config() *entity.Config { return r.cfg }

// Adapter reports the underlying adapter.
func (r *Repository) Adapter() adapter.Adapter { return r.a }

// Query opens an entity-aware builder for queries beyond the CRUD
// surface: joins, grouping, subqueries, date predicates.
func (r *Repository) Query() *entity.Builder {
	return r.a.EntityBuilder(r.cfg, r.reg)
}

// Transaction runs fn atomically on the repository's adapter. Nested
// calls join the outermost transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.a.Transaction(ctx, fn)
}

// idConditions maps positional id values onto the entity's id fields.
func (r *Repository) idConditions(id []any) (map[string]any, error) {
	if len(id) != len(r.cfg.IDField) {
		return nil, fmt.Errorf("entity %q: want %d id value(s), got %d", r.cfg.Entity, len(r.cfg.IDField), len(id))
	}
	conds := make(map[string]any, len(id))
	for i, field := range r.cfg.IDField {
		conds[field] = id[i]
	}
	return conds, nil
}

// physicalOptions re-keys logical find options for the adapter.
func (r *Repository) physicalOptions(opts []*FindOptions) (*adapter.FindOptions, error) {
	if len(opts) == 0 || opts[0] == nil {
		return nil, nil
	}
	o := opts[0]
	out := &adapter.FindOptions{Limit: o.Limit, Offset: o.Offset}
	for _, field := range o.Fields {
		phys, err := r.cfg.Physical(field)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, phys)
	}
	for _, s := range o.OrderBy {
		phys, err := r.cfg.Physical(s.Field)
		if err != nil {
			return nil, err
		}
		out.OrderBy = append(out.OrderBy, adapter.Order{Field: phys, Dir: s.Dir})
	}
	return out, nil
}

// Find returns the rows matching the logical equality conditions. Nil
// conditions match every row. Absence is an empty slice, not an error.
func (r *Repository) Find(ctx context.Context, conditions map[string]any, opts ...*FindOptions) ([]query.Row, error) {
	conds, err := r.cfg.PhysicalValues(conditions)
	if err != nil {
		return nil, err
	}
	fo, err := r.physicalOptions(opts)
	if err != nil {
		return nil, err
	}
	var rows []query.Row
	if fo != nil {
		rows, err = r.a.FindBy(ctx, r.cfg.Table, conds, fo)
	} else {
		rows, err = r.a.FindBy(ctx, r.cfg.Table, conds)
	}
	if err != nil {
		return nil, err
	}
	return r.cfg.LogicalRows(rows), nil
}

// FindOne returns the first row matching the conditions, nil when none
// does.
func (r *Repository) FindOne(ctx context.Context, conditions map[string]any) (query.Row, error) {
	rows, err := r.Find(ctx, conditions, &FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FindByID returns the row with the given id, nil when it does not
// exist. Composite keys take one value per id field, in declaration
// order.
func (r *Repository) FindByID(ctx context.Context, id ...any) (query.Row, error) {
	conds, err := r.idConditions(id)
	if err != nil {
		return nil, err
	}
	return r.FindOne(ctx, conds)
}

// Count reports how many rows match the logical conditions.
func (r *Repository) Count(ctx context.Context, conditions map[string]any) (int64, error) {
	conds, err := r.cfg.PhysicalValues(conditions)
	if err != nil {
		return 0, err
	}
	return r.a.Count(ctx, r.cfg.Table, conds)
}

// Exists reports whether any row matches the logical conditions.
func (r *Repository) Exists(ctx context.Context, conditions map[string]any) (bool, error) {
	conds, err := r.cfg.PhysicalValues(conditions)
	if err != nil {
		return false, err
	}
	return r.a.Exists(ctx, r.cfg.Table, conds)
}

// stamp fills the configured timestamp columns that the caller did not
// set. Insert stamps both created-at and updated-at; updates stamp
// updated-at only.
func (r *Repository) stamp(values map[string]any, insert bool) map[string]any {
	ts := r.cfg.Timestamps
	if ts == nil {
		return values
	}
	out := make(map[string]any, len(values)+2)
	for k, v := range values {
		out[k] = v
	}
	now := time.Now().UTC()
	if insert && ts.CreatedAt != "" {
		if _, ok := out[ts.CreatedAt]; !ok {
			out[ts.CreatedAt] = now
		}
	}
	if ts.UpdatedAt != "" {
		if _, ok := out[ts.UpdatedAt]; !ok {
			out[ts.UpdatedAt] = now
		}
	}
	return out
}

// Insert stores one row from logical values and returns the stored row
// re-read by its key, so engine defaults and the generated id are
// visible to the caller. Every id field must be supplied unless it is
// the auto-increment column.
func (r *Repository) Insert(ctx context.Context, values map[string]any) (query.Row, error) {
	stamped := r.stamp(values, true)

	auto, hasAuto := r.cfg.AutoIncrementColumn()
	for _, field := range r.cfg.IDField {
		if _, ok := stamped[field]; ok {
			continue
		}
		if hasAuto && auto.Logical == field {
			continue
		}
		return nil, fmt.Errorf("entity %q: id field %q required for insert", r.cfg.Entity, field)
	}

	phys, err := r.cfg.PhysicalValues(stamped)
	if err != nil {
		return nil, err
	}
	res, err := r.a.Insert(ctx, r.cfg.Table, phys)
	if err != nil {
		return nil, err
	}

	key := make(map[string]any, len(r.cfg.IDField))
	for _, field := range r.cfg.IDField {
		if v, ok := stamped[field]; ok {
			key[field] = v
			continue
		}
		// Only the auto-increment column reaches here.
		if res.LastInsertID == 0 {
			// Engine does not report generated ids; hand back what
			// was written.
			r.emit(ctx, event.TypeEntityCreated, nil, stamped)
			return r.cfg.LogicalRow(phys), nil
		}
		key[field] = res.LastInsertID
	}

	r.emit(ctx, event.TypeEntityCreated, key, stamped)

	row, err := r.FindOne(ctx, key)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Update modifies the rows matching the logical conditions and reports
// how many were affected. The updated-at column, when configured, is
// stamped unless the caller set it.
func (r *Repository) Update(ctx context.Context, conditions, values map[string]any) (int64, error) {
	stamped := r.stamp(values, false)
	physValues, err := r.cfg.PhysicalValues(stamped)
	if err != nil {
		return 0, err
	}
	physConds, err := r.cfg.PhysicalValues(conditions)
	if err != nil {
		return 0, err
	}
	affected, err := r.a.Update(ctx, r.cfg.Table, physValues, physConds)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		r.emit(ctx, event.TypeEntityUpdated, conditions, stamped)
	}
	return affected, nil
}

// UpdateByID modifies the row with the given id.
func (r *Repository) UpdateByID(ctx context.Context, values map[string]any, id ...any) (int64, error) {
	conds, err := r.idConditions(id)
	if err != nil {
		return 0, err
	}
	return r.Update(ctx, conds, values)
}

// Delete removes the rows matching the logical conditions and reports
// how many were removed.
func (r *Repository) Delete(ctx context.Context, conditions map[string]any) (int64, error) {
	conds, err := r.cfg.PhysicalValues(conditions)
	if err != nil {
		return 0, err
	}
	affected, err := r.a.Delete(ctx, r.cfg.Table, conds)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		r.emit(ctx, event.TypeEntityDeleted, conditions, nil)
	}
	return affected, nil
}

// DeleteByID removes the row with the given id.
func (r *Repository) DeleteByID(ctx context.Context, id ...any) (int64, error) {
	conds, err := r.idConditions(id)
	if err != nil {
		return 0, err
	}
	return r.Delete(ctx, conds)
}

// Related returns the target-entity rows reachable from the row with
// the given id through the named relation. Rows come back keyed by the
// target entity's logical names.
func (r *Repository) Related(ctx context.Context, relation string, id ...any) ([]query.Row, error) {
	rel, err := r.cfg.Relation(relation)
	if err != nil {
		return nil, err
	}
	target, ok := r.reg.Get(rel.Target)
	if !ok {
		return nil, &entity.MappingError{Entity: r.cfg.Entity, Kind: "entity", Name: rel.Target}
	}
	conds, err := r.idConditions(id)
	if err != nil {
		return nil, err
	}

	b := r.Query().JoinRelated(relation)
	for _, col := range target.Columns {
		ref, err := b.TargetRef(relation, col.Logical)
		if err != nil {
			return nil, err
		}
		b.SelectRaw(ref + " AS " + col.Physical)
	}
	for field, v := range conds {
		b.AndWhereColumn(field, query.OpEq, v)
	}
	rows, err := b.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return target.LogicalRows(rows), nil
}

// junction resolves the named relation down to its junction table,
// rejecting relations whose linkage lives on a row's foreign-key
// column instead.
func (r *Repository) junction(relation string) (*entity.Relation, *entity.Junction, error) {
	rel, err := r.cfg.Relation(relation)
	if err != nil {
		return nil, nil, err
	}
	if rel.Kind != entity.ManyToMany {
		return nil, nil, fmt.Errorf("entity %q: relation %q is %s; set its foreign-key column with Update instead",
			r.cfg.Entity, relation, rel.Kind)
	}
	return rel, rel.Junction, nil
}

// junctionValues builds the junction-row value map: the two key
// columns plus any declared extra columns the caller supplied. Extra
// names outside the declaration are rejected.
func junctionValues(j *entity.Junction, entityName, relation string, sourceID, targetID any, extra []map[string]any) (map[string]any, map[string]any, error) {
	keys := map[string]any{
		j.SourceColumn: sourceID,
		j.TargetColumn: targetID,
	}
	if len(extra) == 0 || len(extra[0]) == 0 {
		return keys, nil, nil
	}
	declared := make(map[string]struct{}, len(j.Extra))
	for _, col := range j.Extra {
		declared[col.Name] = struct{}{}
	}
	extras := make(map[string]any, len(extra[0]))
	for name, v := range extra[0] {
		if _, ok := declared[name]; !ok {
			return nil, nil, fmt.Errorf("entity %q: relation %q: junction table %q has no column %q",
				entityName, relation, j.Table, name)
		}
		extras[name] = v
	}
	return keys, extras, nil
}

// AddRelation attaches a target row to a source row through the named
// many-to-many relation's junction table. sourceID and targetID are
// the values of the relation's source and target columns. An optional
// extra map fills the junction's declared extra columns. Attaching an
// already-attached pair updates its extra columns when given and is
// otherwise a no-op.
func (r *Repository) AddRelation(ctx context.Context, relation string, sourceID, targetID any, extra ...map[string]any) error {
	_, j, err := r.junction(relation)
	if err != nil {
		return err
	}
	keys, extras, err := junctionValues(j, r.cfg.Entity, relation, sourceID, targetID, extra)
	if err != nil {
		return err
	}

	attached, err := r.a.Exists(ctx, j.Table, keys)
	if err != nil {
		return err
	}
	if attached {
		if len(extras) == 0 {
			return nil
		}
		if _, err := r.a.Update(ctx, j.Table, extras, keys); err != nil {
			return err
		}
	} else {
		values := make(map[string]any, len(keys)+len(extras))
		for k, v := range keys {
			values[k] = v
		}
		for k, v := range extras {
			values[k] = v
		}
		if _, err := r.a.Insert(ctx, j.Table, values); err != nil {
			return err
		}
	}

	r.emit(ctx, event.TypeEntityUpdated, nil, map[string]any{
		"relation": relation,
		"source":   sourceID,
		"target":   targetID,
	})
	return nil
}

// RemoveRelation detaches a target row from a source row, removing the
// junction row. It reports how many rows were removed; detaching an
// unattached pair is a no-op reporting zero.
func (r *Repository) RemoveRelation(ctx context.Context, relation string, sourceID, targetID any) (int64, error) {
	_, j, err := r.junction(relation)
	if err != nil {
		return 0, err
	}
	keys := map[string]any{
		j.SourceColumn: sourceID,
		j.TargetColumn: targetID,
	}
	affected, err := r.a.Delete(ctx, j.Table, keys)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		r.emit(ctx, event.TypeEntityUpdated, nil, map[string]any{
			"relation": relation,
			"source":   sourceID,
			"detached": targetID,
		})
	}
	return affected, nil
}

// emit publishes a change event when a publisher is attached. Events
// follow the statement, not the surrounding commit: inside an explicit
// transaction they may precede it.
func (r *Repository) emit(ctx context.Context, eventType string, key, payload map[string]any) {
	if r.pub == nil {
		return
	}
	evt := event.New(eventType, r.cfg.Entity, key, payload)
	if err := r.pub.Publish(ctx, r.topic, evt); err != nil {
		r.log.Warn("change event not published",
			zap.String("entity", r.cfg.Entity),
			zap.String("type", eventType),
			zap.Error(err))
	}
}
