// Package core wires configuration to a ready database adapter. A
// DBContext lazily constructs, connects and caches one adapter; the
// package-level default context serves programs that want a single
// process-wide database without carrying the context around.
package core

import (
	"context"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/entable/entable/pkg/adapter"
	"github.com/entable/entable/pkg/config"
)

// DBContext owns one adapter. Until Configure is called it follows the
// config package's database section, resolved at connect time so a
// context constructed before config.Load still sees the loaded values.
type DBContext struct {
	mu       sync.Mutex
	cfg      *config.Database
	testMode bool
	db       adapter.Adapter
}

func NewDBContext() *DBContext {
	return &DBContext{}
}

// Configure pins an explicit database configuration. An adapter
// already handed out keeps running; CloseDatabase cuts over.
func (c *DBContext) Configure(cfg config.Database) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = &cfg
}

// ResetConfig drops the pinned configuration, returning the context to
// the config package's section.
func (c *DBContext) ResetConfig() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = nil
}

// SetTestMode routes new adapters at the configured test database
// (sqlite test path, postgres/mysql test database).
func (c *DBContext) SetTestMode(test bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testMode = test
}

func (c *DBContext) activeConfig() config.Database {
	if c.cfg != nil {
		return *c.cfg
	}
	return config.GetDatabaseConfig()
}

// Database returns the context's adapter, constructing and connecting
// it on first use. Construction failures are not cached; the next call
// retries.
func (c *DBContext) Database(ctx context.Context) (adapter.Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}
	a, err := adapter.NewSQL(c.activeConfig().AdapterOptions(c.testMode))
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	c.db = a
	return a, nil
}

// CloseDatabase closes and forgets the cached adapter. The next
// Database call builds a fresh one.
func (c *DBContext) CloseDatabase() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

var defaultContext = NewDBContext()

// Default returns the package-level context.
func Default() *DBContext { return defaultContext }

// Database returns the default context's adapter.
func Database(ctx context.Context) (adapter.Adapter, error) {
	return defaultContext.Database(ctx)
}

// CloseDatabase closes the default context's adapter.
func CloseDatabase() error { return defaultContext.CloseDatabase() }
