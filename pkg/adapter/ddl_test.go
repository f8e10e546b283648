package adapter

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entable/entable/pkg/dialect"
	"github.com/entable/entable/pkg/entity"
)

func userDDLConfig(t *testing.T) *entity.Config {
	t.Helper()
	cfg := &entity.Config{
		Entity:  "User",
		Table:   "users",
		IDField: entity.IDField{"id"},
		Columns: []*entity.Column{
			{Logical: "id", Physical: "user_id", Type: dialect.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Logical: "name", Physical: "user_name", Type: dialect.TypeString},
			{Logical: "role", Type: dialect.TypeString, Default: "member"},
			{Logical: "active", Type: dialect.TypeBoolean, Nullable: true},
			{Logical: "teamId", Physical: "team_id", Type: dialect.TypeInteger, Nullable: true,
				ForeignKey: &entity.ForeignKey{Table: "teams", Column: "team_id"}},
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestCreateTable(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectExec(regexp.QuoteMeta(
		`CREATE TABLE IF NOT EXISTS "users" (` +
			`"user_id" INTEGER PRIMARY KEY AUTOINCREMENT, ` +
			`"user_name" TEXT NOT NULL, ` +
			`"role" TEXT NOT NULL DEFAULT 'member', ` +
			`"active" INTEGER, ` +
			`"team_id" INTEGER)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := a.CreateTable(context.Background(), userDDLConfig(t), false)
	require.NoError(t, err)
}

func TestCreateTableWithForeignKeys(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectExec(regexp.QuoteMeta(
		`"team_id" INTEGER REFERENCES "teams"("team_id"))`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := a.CreateTable(context.Background(), userDDLConfig(t), true)
	require.NoError(t, err)
}

func TestCreateTableCompositeKey(t *testing.T) {
	a, mock := newMockAdapter(t)
	cfg := &entity.Config{
		Entity:  "UserCredit",
		IDField: entity.IDField{"userId", "creditType"},
		Columns: []*entity.Column{
			{Logical: "userId", Physical: "user_id", Type: dialect.TypeInteger, PrimaryKey: true},
			{Logical: "creditType", Physical: "credit_type", Type: dialect.TypeString, PrimaryKey: true},
			{Logical: "amount", Type: dialect.TypeNumber},
		},
	}
	require.NoError(t, cfg.Validate())

	mock.ExpectExec(regexp.QuoteMeta(
		`CREATE TABLE IF NOT EXISTS "user_credits" (` +
			`"user_id" INTEGER, ` +
			`"credit_type" TEXT, ` +
			`"amount" REAL NOT NULL, ` +
			`PRIMARY KEY ("user_id", "credit_type"))`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := a.CreateTable(context.Background(), cfg, false)
	require.NoError(t, err)
}

func junctionFixtures(t *testing.T) *entity.Registry {
	t.Helper()
	reg := entity.NewRegistry()
	for _, name := range []string{"Product", "Category"} {
		cfg := &entity.Config{
			Entity:  name,
			IDField: entity.IDField{"id"},
			Columns: []*entity.Column{
				{Logical: "id", Type: dialect.TypeInteger, PrimaryKey: true, AutoIncrement: true},
				{Logical: "title", Type: dialect.TypeString},
			},
		}
		require.NoError(t, reg.Register(cfg))
	}
	return reg
}

func TestCreateJunctionTable(t *testing.T) {
	a, mock := newMockAdapter(t)
	reg := junctionFixtures(t)
	jt := &entity.JunctionTable{
		Table:  "product_categories",
		Source: entity.JunctionSide{Entity: "Product", Columns: []entity.JunctionRef{{Column: "product_id", Ref: "id"}}},
		Target: entity.JunctionSide{Entity: "Category", Columns: []entity.JunctionRef{{Column: "category_id", Ref: "id"}}},
		Extra:  []*entity.JunctionColumn{{Name: "position", Type: dialect.TypeInteger, Default: 0}},
	}

	mock.ExpectExec(regexp.QuoteMeta(
		`CREATE TABLE IF NOT EXISTS "product_categories" (` +
			`"product_id" INTEGER NOT NULL, ` +
			`"category_id" INTEGER NOT NULL, ` +
			`"position" INTEGER NOT NULL DEFAULT 0, ` +
			`PRIMARY KEY ("product_id", "category_id"), ` +
			`FOREIGN KEY ("product_id") REFERENCES "products" ("id"), ` +
			`FOREIGN KEY ("category_id") REFERENCES "categories" ("id"))`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := a.CreateJunctionTable(context.Background(), jt, reg, true)
	require.NoError(t, err)
}

func TestCreateJunctionTableUnknownEntity(t *testing.T) {
	a, _ := newMockAdapter(t)
	reg := junctionFixtures(t)
	jt := &entity.JunctionTable{
		Table:  "ghost_links",
		Source: entity.JunctionSide{Entity: "Ghost", Columns: []entity.JunctionRef{{Column: "ghost_id", Ref: "id"}}},
		Target: entity.JunctionSide{Entity: "Category", Columns: []entity.JunctionRef{{Column: "category_id", Ref: "id"}}},
	}

	err := a.CreateJunctionTable(context.Background(), jt, reg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity")
}

func TestDropTable(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "users"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, a.DropTable(context.Background(), "users"))
}

// The second lookup must come from the cache: in ordered mode an
// unexpected second catalog query would surface as a driver error.
func TestTableExistsCached(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("users"))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := a.TableExists(ctx, "users")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestDDLInvalidatesIntrospectionCache(t *testing.T) {
	a, mock := newMockAdapter(t)
	existsSQL := regexp.QuoteMeta("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?")

	mock.ExpectQuery(existsSQL).WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(existsSQL).WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("users"))

	ctx := context.Background()
	ok, err := a.TableExists(ctx, "users")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.CreateTable(ctx, userDDLConfig(t), false))

	ok, err = a.TableExists(ctx, "users")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTableColumns(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectQuery("FROM pragma_table_info").WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"name", "type", "nullable", "dflt", "pk"}).
			AddRow("user_id", "INTEGER", int64(0), nil, int64(1)).
			AddRow("role", "TEXT", int64(0), "'member'", int64(0)).
			AddRow("active", "INTEGER", int64(1), nil, int64(0)))

	cols, err := a.TableColumns(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, cols, 3)

	assert.Equal(t, dialect.ColumnInfo{Name: "user_id", Type: "INTEGER", PrimaryKey: true}, cols[0])
	assert.Equal(t, dialect.ColumnInfo{Name: "role", Type: "TEXT", Default: "'member'", HasDefault: true}, cols[1])
	assert.Equal(t, dialect.ColumnInfo{Name: "active", Type: "INTEGER", Nullable: true}, cols[2])

	// Cached: no second catalog query is declared.
	again, err := a.TableColumns(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, cols, again)
}

func TestPrimaryKey(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectQuery("WHERE pk > 0").WithArgs("user_credits").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("user_id").
			AddRow("credit_type"))

	pk, err := a.PrimaryKey(context.Background(), "user_credits")
	require.NoError(t, err)
	assert.Equal(t, []string{"user_id", "credit_type"}, pk)
}

func TestColumnExists(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectQuery("FROM pragma_table_info").WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"name", "type", "nullable", "dflt", "pk"}).
			AddRow("user_id", "INTEGER", int64(0), nil, int64(1)))

	ctx := context.Background()
	ok, err := a.ColumnExists(ctx, "users", "user_id")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second check rides the cached column list.
	ok, err = a.ColumnExists(ctx, "users", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
