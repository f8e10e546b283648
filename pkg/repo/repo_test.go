package repo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entable/entable/pkg/adapter"
	"github.com/entable/entable/pkg/dialect"
	"github.com/entable/entable/pkg/entity"
	"github.com/entable/entable/pkg/event"
	"github.com/entable/entable/pkg/query"
	"github.com/entable/entable/pkg/schema"
)

func testConfigs() []*entity.Config {
	user := &entity.Config{
		Entity: "User",
		Columns: []*entity.Column{
			{Logical: "id", Physical: "user_id", Type: dialect.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Logical: "email", Unique: true},
			{Logical: "role"},
			{Logical: "name", Physical: "full_name", Nullable: true},
			{Logical: "createdAt", Physical: "created_at", Type: dialect.TypeDatetime, Nullable: true},
			{Logical: "updatedAt", Physical: "updated_at", Type: dialect.TypeDatetime, Nullable: true},
		},
		Timestamps: &entity.Timestamps{CreatedAt: "createdAt", UpdatedAt: "updatedAt"},
	}
	credit := &entity.Config{
		Entity: "UserCredit",
		Columns: []*entity.Column{
			{Logical: "id", Physical: "credit_id", Type: dialect.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Logical: "user", Physical: "user_id", Type: dialect.TypeInteger},
			{Logical: "amount", Type: dialect.TypeNumber},
			{Logical: "expiry", Physical: "expiry_date", Type: dialect.TypeDatetime},
		},
		Relations: []*entity.Relation{{
			Name: "owner", Kind: entity.ManyToOne, Target: "User",
			SourceColumn: "user", TargetColumn: "id",
		}},
	}
	product := &entity.Config{
		Entity: "Product",
		Columns: []*entity.Column{
			{Logical: "id", Physical: "product_id", Type: dialect.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Logical: "title"},
		},
		Relations: []*entity.Relation{{
			Name: "categories", Kind: entity.ManyToMany, Target: "ProductCategory",
			SourceColumn: "id", TargetColumn: "id",
			Junction: &entity.Junction{
				Table: "category_product", SourceColumn: "product_id",
				TargetColumn: "category_id", Owning: true,
				Extra: []*entity.JunctionColumn{
					{Name: "position", Type: dialect.TypeInteger, Nullable: true},
				},
			},
		}},
	}
	category := &entity.Config{
		Entity: "ProductCategory",
		Columns: []*entity.Column{
			{Logical: "id", Physical: "category_id", Type: dialect.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Logical: "title"},
		},
	}
	setting := &entity.Config{
		Entity: "Setting",
		Columns: []*entity.Column{
			{Logical: "key", Physical: "setting_key", PrimaryKey: true},
			{Logical: "value", Nullable: true},
		},
	}
	return []*entity.Config{user, credit, product, category, setting}
}

func newFixture(t *testing.T) (adapter.Adapter, *entity.Registry) {
	t.Helper()
	a, err := adapter.NewSQL(adapter.Options{
		Dialect: "sqlite3",
		DSN:     dialect.DSNOptions{Path: ":memory:"},
	})
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { _ = a.Close() })

	configs := testConfigs()
	reg := entity.NewRegistry()
	require.NoError(t, reg.Replace(configs))

	report, err := schema.New(a, nil).Synchronize(context.Background(), configs, schema.Options{})
	require.NoError(t, err)
	require.True(t, report.Ok())
	return a, reg
}

func newRepo(t *testing.T, a adapter.Adapter, reg *entity.Registry, name string, opts ...*Options) *Repository {
	t.Helper()
	r, err := New(a, reg, name, opts...)
	require.NoError(t, err)
	return r
}

// capturePublisher records published events; failErr makes every
// Publish fail.
type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	events  []event.Event
	failErr error
}

func (p *capturePublisher) Publish(_ context.Context, topic string, evt event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, evt)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) published() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.events...)
}

func TestNewUnknownEntity(t *testing.T) {
	a, reg := newFixture(t)
	_, err := New(a, reg, "Ghost")
	var mapErr *entity.MappingError
	require.ErrorAs(t, err, &mapErr)
	assert.Equal(t, "Ghost", mapErr.Name)
}

func TestInsertReturnsStoredLogicalRow(t *testing.T) {
	a, reg := newFixture(t)
	users := newRepo(t, a, reg, "User")
	ctx := context.Background()

	row, err := users.Insert(ctx, map[string]any{
		"email": "ada@example.com",
		"role":  "admin",
		"name":  "Ada Lovelace",
	})
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, int64(1), row["id"])
	assert.Equal(t, "ada@example.com", row["email"])
	assert.Equal(t, "Ada Lovelace", row["name"])
	assert.NotContains(t, row, "full_name")
	assert.NotContains(t, row, "user_id")

	created, ok := row["createdAt"].(time.Time)
	require.True(t, ok, "createdAt should coerce to time.Time, got %T", row["createdAt"])
	assert.WithinDuration(t, time.Now().UTC(), created, time.Minute)
	assert.IsType(t, time.Time{}, row["updatedAt"])
}

func TestInsertRequiresExplicitKeyWithoutAutoIncrement(t *testing.T) {
	a, reg := newFixture(t)
	settings := newRepo(t, a, reg, "Setting")
	ctx := context.Background()

	_, err := settings.Insert(ctx, map[string]any{"value": "on"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `id field "key" required`)

	row, err := settings.Insert(ctx, map[string]any{"key": "greeting", "value": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "greeting", row["key"])
	assert.Equal(t, "hello", row["value"])
}

func TestFindFiltersAndCounts(t *testing.T) {
	a, reg := newFixture(t)
	users := newRepo(t, a, reg, "User")
	ctx := context.Background()

	_, err := users.Insert(ctx, map[string]any{"email": "ada@example.com", "role": "admin"})
	require.NoError(t, err)
	_, err = users.Insert(ctx, map[string]any{"email": "alan@example.com", "role": "user"})
	require.NoError(t, err)

	admins, err := users.Find(ctx, map[string]any{"role": "admin"})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "ada@example.com", admins[0]["email"])

	total, err := users.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	ok, err := users.Exists(ctx, map[string]any{"email": "alan@example.com"})
	require.NoError(t, err)
	assert.True(t, ok)

	missing, err := users.Find(ctx, map[string]any{"role": "nobody"})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestFindOptionsUseLogicalNames(t *testing.T) {
	a, reg := newFixture(t)
	users := newRepo(t, a, reg, "User")
	ctx := context.Background()

	for _, email := range []string{"c@example.com", "a@example.com", "b@example.com"} {
		_, err := users.Insert(ctx, map[string]any{"email": email, "role": "user"})
		require.NoError(t, err)
	}

	rows, err := users.Find(ctx, nil, &FindOptions{
		Fields:  []string{"email"},
		OrderBy: []Sort{{Field: "email", Dir: query.Desc}},
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c@example.com", rows[0]["email"])
	assert.Equal(t, "b@example.com", rows[1]["email"])
	assert.NotContains(t, rows[0], "role", "unselected columns stay out of the row")

	_, err = users.Find(ctx, nil, &FindOptions{Fields: []string{"fullName"}})
	var mapErr *entity.MappingError
	require.ErrorAs(t, err, &mapErr)
}

func TestFindByIDRoundTrip(t *testing.T) {
	a, reg := newFixture(t)
	users := newRepo(t, a, reg, "User")
	ctx := context.Background()

	inserted, err := users.Insert(ctx, map[string]any{"email": "ada@example.com", "role": "admin"})
	require.NoError(t, err)

	row, err := users.FindByID(ctx, inserted["id"])
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "ada@example.com", row["email"])

	none, err := users.FindByID(ctx, int64(99))
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = users.FindByID(ctx, 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 1 id value(s)")
}

func TestUpdateStampsAndPreservesCreatedAt(t *testing.T) {
	a, reg := newFixture(t)
	users := newRepo(t, a, reg, "User")
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	inserted, err := users.Insert(ctx, map[string]any{
		"email":     "ada@example.com",
		"role":      "user",
		"createdAt": past,
		"updatedAt": past,
	})
	require.NoError(t, err)

	affected, err := users.UpdateByID(ctx, map[string]any{"role": "admin"}, inserted["id"])
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	row, err := users.FindByID(ctx, inserted["id"])
	require.NoError(t, err)
	assert.Equal(t, "admin", row["role"])

	created := row["createdAt"].(time.Time)
	updated := row["updatedAt"].(time.Time)
	assert.WithinDuration(t, past, created, 2*time.Second)
	assert.True(t, updated.After(created), "updatedAt %v should move past createdAt %v", updated, created)
}

func TestDeleteByID(t *testing.T) {
	a, reg := newFixture(t)
	users := newRepo(t, a, reg, "User")
	ctx := context.Background()

	inserted, err := users.Insert(ctx, map[string]any{"email": "ada@example.com", "role": "admin"})
	require.NoError(t, err)

	affected, err := users.DeleteByID(ctx, inserted["id"])
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	row, err := users.FindByID(ctx, inserted["id"])
	require.NoError(t, err)
	assert.Nil(t, row)

	affected, err = users.DeleteByID(ctx, inserted["id"])
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestUnknownColumnFailsBeforeSQL(t *testing.T) {
	a, reg := newFixture(t)
	users := newRepo(t, a, reg, "User")
	ctx := context.Background()

	var mapErr *entity.MappingError
	_, err := users.Find(ctx, map[string]any{"nope": 1})
	require.ErrorAs(t, err, &mapErr)
	assert.Equal(t, "nope", mapErr.Name)

	_, err = users.Insert(ctx, map[string]any{"email": "x@example.com", "nope": 1})
	require.ErrorAs(t, err, &mapErr)

	_, err = users.Update(ctx, map[string]any{"id": 1}, map[string]any{"nope": 1})
	require.ErrorAs(t, err, &mapErr)

	_, err = users.Delete(ctx, map[string]any{"nope": 1})
	require.ErrorAs(t, err, &mapErr)
}

// Expired credit rows stay out of the balance: 10 + 50 valid, 5
// expired, so the sum is 60, never 65.
func TestExpiredCreditsStayOutOfBalance(t *testing.T) {
	a, reg := newFixture(t)
	users := newRepo(t, a, reg, "User")
	credits := newRepo(t, a, reg, "UserCredit")
	ctx := context.Background()

	owner, err := users.Insert(ctx, map[string]any{"email": "ada@example.com", "role": "user"})
	require.NoError(t, err)
	ownerID := owner["id"]

	future := time.Now().UTC().Add(24 * time.Hour)
	expired := time.Now().UTC().Add(-24 * time.Hour)
	for _, fixture := range []struct {
		amount float64
		expiry time.Time
	}{
		{10, future},
		{50, future},
		{5, expired},
	} {
		_, err := credits.Insert(ctx, map[string]any{
			"user": ownerID, "amount": fixture.amount, "expiry": fixture.expiry,
		})
		require.NoError(t, err)
	}

	rows, err := credits.Query().
		SelectRaw("SUM(user_credits.amount) AS balance").
		SelectColumns("user").
		WhereDateColumn("expiry", query.OpGte, time.Now().UTC()).
		GroupByColumns("user").
		Execute(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	balance, ok := rows[0]["balance"].(float64)
	require.True(t, ok, "balance should scan as float64, got %T", rows[0]["balance"])
	assert.InDelta(t, 60.0, balance, 0.001)
}

func attachCategories(t *testing.T, a adapter.Adapter, reg *entity.Registry) (*Repository, any, any, any) {
	t.Helper()
	products := newRepo(t, a, reg, "Product")
	categories := newRepo(t, a, reg, "ProductCategory")
	ctx := context.Background()

	product, err := products.Insert(ctx, map[string]any{"title": "Laptop"})
	require.NoError(t, err)
	books, err := categories.Insert(ctx, map[string]any{"title": "Electronics"})
	require.NoError(t, err)
	office, err := categories.Insert(ctx, map[string]any{"title": "Office"})
	require.NoError(t, err)

	require.NoError(t, products.AddRelation(ctx, "categories", product["id"], books["id"], map[string]any{"position": 1}))
	require.NoError(t, products.AddRelation(ctx, "categories", product["id"], office["id"], map[string]any{"position": 2}))
	return products, product["id"], books["id"], office["id"]
}

func TestRelatedThroughJunction(t *testing.T) {
	a, reg := newFixture(t)
	products, productID, _, _ := attachCategories(t, a, reg)
	ctx := context.Background()

	rows, err := products.Related(ctx, "categories", productID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	titles := []string{rows[0]["title"].(string), rows[1]["title"].(string)}
	assert.ElementsMatch(t, []string{"Electronics", "Office"}, titles)
	assert.NotContains(t, rows[0], "category_id")

	// The traversal is two joins: source to junction, junction to
	// target.
	text, _, err := products.Query().JoinRelated("categories").SQL()
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(text, "JOIN"))
}

func TestAddRelationIsIdempotent(t *testing.T) {
	a, reg := newFixture(t)
	products, productID, categoryID, _ := attachCategories(t, a, reg)
	ctx := context.Background()

	require.NoError(t, products.AddRelation(ctx, "categories", productID, categoryID))

	n, err := a.Count(ctx, "category_product", map[string]any{
		"product_id": productID, "category_id": categoryID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Re-attaching with extras updates them in place.
	require.NoError(t, products.AddRelation(ctx, "categories", productID, categoryID, map[string]any{"position": 9}))
	row, err := a.FindByID(ctx, "category_product", map[string]any{
		"product_id": productID, "category_id": categoryID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), query.ToInt64(row["position"]))
}

func TestAddRelationRejectsUndeclaredExtraColumn(t *testing.T) {
	a, reg := newFixture(t)
	products, productID, categoryID, _ := attachCategories(t, a, reg)

	err := products.AddRelation(context.Background(), "categories", productID, categoryID,
		map[string]any{"rank": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `has no column "rank"`)
}

func TestAddRelationRejectsSingleJoinKinds(t *testing.T) {
	a, reg := newFixture(t)
	credits := newRepo(t, a, reg, "UserCredit")

	err := credits.AddRelation(context.Background(), "owner", 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set its foreign-key column")

	_, err = credits.RemoveRelation(context.Background(), "owner", 1, 1)
	require.Error(t, err)
}

func TestRemoveRelation(t *testing.T) {
	a, reg := newFixture(t)
	products, productID, categoryID, otherID := attachCategories(t, a, reg)
	ctx := context.Background()

	affected, err := products.RemoveRelation(ctx, "categories", productID, categoryID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	rows, err := products.Related(ctx, "categories", productID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, query.ToInt64(rows[0]["id"]), query.ToInt64(otherID))

	affected, err = products.RemoveRelation(ctx, "categories", productID, categoryID)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestMutationsEmitChangeEvents(t *testing.T) {
	a, reg := newFixture(t)
	pub := &capturePublisher{}
	users := newRepo(t, a, reg, "User", &Options{Publisher: pub})
	ctx := context.Background()

	inserted, err := users.Insert(ctx, map[string]any{"email": "ada@example.com", "role": "user"})
	require.NoError(t, err)
	_, err = users.UpdateByID(ctx, map[string]any{"role": "admin"}, inserted["id"])
	require.NoError(t, err)
	_, err = users.DeleteByID(ctx, inserted["id"])
	require.NoError(t, err)

	events := pub.published()
	require.Len(t, events, 3)

	assert.Equal(t, event.TypeEntityCreated, events[0].Type)
	assert.Equal(t, "User", events[0].Entity)
	assert.Equal(t, int64(1), query.ToInt64(events[0].Key["id"]))
	assert.Equal(t, "ada@example.com", events[0].Payload["email"])

	assert.Equal(t, event.TypeEntityUpdated, events[1].Type)
	assert.Equal(t, "admin", events[1].Payload["role"])

	assert.Equal(t, event.TypeEntityDeleted, events[2].Type)
	assert.Equal(t, int64(1), query.ToInt64(events[2].Key["id"]))

	for _, topic := range pub.topics {
		assert.Equal(t, DefaultTopic, topic)
	}
}

func TestNoEventForMissedUpdate(t *testing.T) {
	a, reg := newFixture(t)
	pub := &capturePublisher{}
	users := newRepo(t, a, reg, "User", &Options{Publisher: pub})
	ctx := context.Background()

	affected, err := users.Update(ctx, map[string]any{"id": 99}, map[string]any{"role": "admin"})
	require.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = users.Delete(ctx, map[string]any{"id": 99})
	require.NoError(t, err)
	assert.Zero(t, affected)

	assert.Empty(t, pub.published())
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	a, reg := newFixture(t)
	pub := &capturePublisher{failErr: errors.New("broker down")}
	users := newRepo(t, a, reg, "User", &Options{Publisher: pub})
	ctx := context.Background()

	row, err := users.Insert(ctx, map[string]any{"email": "ada@example.com", "role": "user"})
	require.NoError(t, err)
	require.NotNil(t, row)

	n, err := users.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRelationMutationsEmitEvents(t *testing.T) {
	a, reg := newFixture(t)
	ctx := context.Background()

	products := newRepo(t, a, reg, "Product")
	categories := newRepo(t, a, reg, "ProductCategory")
	product, err := products.Insert(ctx, map[string]any{"title": "Laptop"})
	require.NoError(t, err)
	category, err := categories.Insert(ctx, map[string]any{"title": "Electronics"})
	require.NoError(t, err)

	pub := &capturePublisher{}
	watched := newRepo(t, a, reg, "Product", &Options{Publisher: pub})

	require.NoError(t, watched.AddRelation(ctx, "categories", product["id"], category["id"]))
	_, err = watched.RemoveRelation(ctx, "categories", product["id"], category["id"])
	require.NoError(t, err)

	events := pub.published()
	require.Len(t, events, 2)
	assert.Equal(t, event.TypeEntityUpdated, events[0].Type)
	assert.Equal(t, "categories", events[0].Payload["relation"])
	assert.Equal(t, "categories", events[1].Payload["relation"])
	assert.NotNil(t, events[1].Payload["detached"])
}

func TestTransactionRollsBackEveryWrite(t *testing.T) {
	a, reg := newFixture(t)
	users := newRepo(t, a, reg, "User")
	ctx := context.Background()
	boom := errors.New("abort")

	err := users.Transaction(ctx, func(ctx context.Context) error {
		if _, err := users.Insert(ctx, map[string]any{"email": "outer@example.com", "role": "user"}); err != nil {
			return err
		}
		// The nested frame joins the outer transaction, so its write
		// vanishes with the outer rollback too.
		return users.Transaction(ctx, func(ctx context.Context) error {
			if _, err := users.Insert(ctx, map[string]any{"email": "inner@example.com", "role": "user"}); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	n, err := users.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	a, reg := newFixture(t)
	users := newRepo(t, a, reg, "User")
	credits := newRepo(t, a, reg, "UserCredit")
	ctx := context.Background()

	err := users.Transaction(ctx, func(ctx context.Context) error {
		owner, err := users.Insert(ctx, map[string]any{"email": "ada@example.com", "role": "user"})
		if err != nil {
			return err
		}
		_, err = credits.Insert(ctx, map[string]any{
			"user": owner["id"], "amount": 10.0, "expiry": time.Now().UTC().Add(time.Hour),
		})
		return err
	})
	require.NoError(t, err)

	n, err := users.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = credits.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
