package adapter

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/entable/entable/pkg/dialect"
	"github.com/entable/entable/pkg/entity"
	"github.com/entable/entable/pkg/query"
)

const introspectCacheSize = 256

// Options configures one SQLAdapter.
type Options struct {
	// Dialect names a registered dialect: sqlite3, mysql or postgres.
	Dialect string
	DSN     dialect.DSNOptions

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Debug enables statement logging at debug level.
	Debug bool
	// DevMode tolerates connect failures: they are logged and the
	// adapter stays disconnected, reconnecting lazily on next use.
	DevMode bool

	Logger *zap.Logger
}

// SQLAdapter runs statements over database/sql with a dialect
// strategy. One adapter is one logical writer: transaction composition
// happens by nesting callbacks on the same adapter, not by handing out
// parallel transaction handles.
type SQLAdapter struct {
	opts Options
	d    dialect.Dialect
	log  *zap.Logger

	db *sql.DB

	// Transaction state. The mutex keeps counter transitions atomic;
	// only the 0↔1 transitions touch the engine.
	mu      sync.Mutex
	tx      *sql.Tx
	txDepth int

	meta *lru.Cache // introspection results keyed per table
}

var _ Adapter = (*SQLAdapter)(nil)

// NewSQL builds an adapter for a registered dialect. It does not
// connect; Connect or the first statement does.
func NewSQL(opts Options) (*SQLAdapter, error) {
	d, err := dialect.Get(opts.Dialect)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	meta, err := lru.New(introspectCacheSize)
	if err != nil {
		return nil, err
	}
	return &SQLAdapter{opts: opts, d: d, log: logger, meta: meta}, nil
}

// Dialect reports the adapter's dialect strategy.
func (a *SQLAdapter) Dialect() dialect.Dialect { return a.d }

// DateFunctions reports the dialect's date-expression strategy.
func (a *SQLAdapter) DateFunctions() dialect.DateFunctions { return a.d.Dates() }

// Connect opens the database handle. For file-backed sqlite the parent
// directory is created if missing. In DevMode a failure is logged and
// the adapter stays disconnected; the next statement retries.
func (a *SQLAdapter) Connect(ctx context.Context) error {
	err := a.connect(ctx)
	if err == nil {
		return nil
	}
	if a.opts.DevMode {
		a.log.Warn("connect failed, staying disconnected",
			zap.String("dialect", a.d.Name()), zap.Error(err))
		return nil
	}
	return err
}

func (a *SQLAdapter) connect(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	if a.d.Name() == "sqlite3" && a.opts.DSN.Path != "" && a.opts.DSN.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(a.opts.DSN.Path), 0o755); err != nil {
			return &ConnectionError{Driver: a.d.DriverName(), Err: err}
		}
	}
	db, err := sql.Open(a.d.DriverName(), a.d.DSN(a.opts.DSN))
	if err != nil {
		return &ConnectionError{Driver: a.d.DriverName(), Err: err}
	}
	a.configurePool(db)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return &ConnectionError{Driver: a.d.DriverName(), Err: err}
	}
	for _, stmt := range a.d.OnConnect() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return &ConnectionError{Driver: a.d.DriverName(), Err: err}
		}
	}
	a.db = db
	a.log.Info("connected", zap.String("dialect", a.d.Name()))
	return nil
}

func (a *SQLAdapter) configurePool(db *sql.DB) {
	if a.d.Name() == "sqlite3" {
		// One connection keeps :memory: databases alive and preserves
		// the single-writer statement ordering the nesting counter
		// assumes.
		db.SetMaxOpenConns(1)
		return
	}
	if a.opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(a.opts.MaxOpenConns)
	}
	if a.opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(a.opts.MaxIdleConns)
	}
	if a.opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(a.opts.ConnMaxLifetime)
	}
}

// Close tears the handle down. An open transaction is rolled back and
// the nesting state reset.
func (a *SQLAdapter) Close() error {
	a.mu.Lock()
	if a.tx != nil {
		_ = a.tx.Rollback()
		a.tx = nil
	}
	a.txDepth = 0
	db := a.db
	a.db = nil
	a.mu.Unlock()

	a.meta.Purge()
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return &ConnectionError{Driver: a.d.DriverName(), Err: err}
	}
	return nil
}

var errNotConnected = errors.New("not connected")

// ensure returns a handle, connecting lazily if Connect was tolerated
// in DevMode or never called.
func (a *SQLAdapter) ensure(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	if err := a.connect(ctx); err != nil {
		return err
	}
	if a.db == nil {
		return &ConnectionError{Driver: a.d.DriverName(), Err: errNotConnected}
	}
	return nil
}

// execQuerier is satisfied by *sql.DB and *sql.Tx; statements route
// through the open transaction when there is one.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (a *SQLAdapter) runner() execQuerier {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx != nil {
		return a.tx
	}
	return a.db
}

// prepare performs the per-statement boundary work: lazy connect,
// parameter sanitation, placeholder rebinding and debug logging.
func (a *SQLAdapter) prepare(ctx context.Context, text string, args []any) (execQuerier, string, []any, error) {
	if err := a.ensure(ctx); err != nil {
		return nil, "", nil, err
	}
	args = sanitizeArgs(args)
	text = a.d.Rebind(text)
	if a.opts.Debug {
		a.log.Debug("statement", zap.String("sql", text), zap.Any("args", args))
	}
	return a.runner(), text, args, nil
}

// Query runs a SELECT and returns every row.
func (a *SQLAdapter) Query(ctx context.Context, text string, args ...any) ([]query.Row, error) {
	r, text, args, err := a.prepare(ctx, text, args)
	if err != nil {
		return nil, err
	}
	rows, err := r.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, execErr(text, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, execErr(text, err)
	}
	return out, nil
}

// QuerySingle runs a SELECT and returns the first row, or nil when
// there is none. Absence is a successful outcome.
func (a *SQLAdapter) QuerySingle(ctx context.Context, text string, args ...any) (query.Row, error) {
	r, text, args, err := a.prepare(ctx, text, args)
	if err != nil {
		return nil, err
	}
	rows, err := r.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, execErr(text, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, execErr(text, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// Execute runs a data-modifying statement.
func (a *SQLAdapter) Execute(ctx context.Context, text string, args ...any) (query.Result, error) {
	r, text, args, err := a.prepare(ctx, text, args)
	if err != nil {
		return query.Result{}, err
	}
	res, err := r.ExecContext(ctx, text, args...)
	if err != nil {
		return query.Result{}, execErr(text, err)
	}
	var out query.Result
	// Engines without insert-id reporting (postgres) surface it as an
	// error; zero is the documented value there.
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	return out, nil
}

// ExecuteScript runs a multi-statement script, e.g. schema setup. The
// script carries no bind parameters and is not rebound.
func (a *SQLAdapter) ExecuteScript(ctx context.Context, script string) error {
	if err := a.ensure(ctx); err != nil {
		return err
	}
	if a.opts.Debug {
		a.log.Debug("script", zap.String("sql", script))
	}
	if _, err := a.runner().ExecContext(ctx, script); err != nil {
		return execErr(script, err)
	}
	return nil
}

// CreateQueryBuilder returns a generic builder bound to this adapter.
func (a *SQLAdapter) CreateQueryBuilder() *query.Builder {
	return query.NewBuilder().Bind(a)
}

// EntityBuilder returns an entity-aware builder bound to this adapter.
func (a *SQLAdapter) EntityBuilder(cfg *entity.Config, reg *entity.Registry) *entity.Builder {
	return entity.NewBuilder(cfg, reg, a.d, a)
}

// DatabaseInfo reports the engine identity and version.
func (a *SQLAdapter) DatabaseInfo(ctx context.Context) (*DatabaseInfo, error) {
	row, err := a.QuerySingle(ctx, a.d.VersionSQL())
	if err != nil {
		return nil, err
	}
	info := &DatabaseInfo{Dialect: a.d.Name(), Driver: a.d.DriverName()}
	if row != nil {
		if v, ok := row["version"].(string); ok {
			info.Version = v
		}
	}
	return info, nil
}

// sanitizeArgs normalizes parameters once at the adapter boundary so
// every execution path sees the same driver-safe shapes: bool → 0/1,
// time.Time → RFC 3339 UTC text, maps and slices → JSON. []byte passes
// through as a blob.
func sanitizeArgs(args []any) []any {
	for i, arg := range args {
		args[i] = sanitizeValue(arg)
	}
	return args
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		if val {
			return 1
		}
		return 0
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return val
	case string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return val
	default:
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
		return val
	}
}

// scanRows drains a result set into Row maps. Text-ish []byte values
// come back as string so row maps compare and serialize naturally.
func scanRows(rows *sql.Rows) ([]query.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []query.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(query.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
