package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/entable/entable/pkg/adapter"
	"github.com/entable/entable/pkg/dialect"
)

// SQLite selects the embedded file engine. TestPath, when set, is the
// database used by test contexts; :memory: is valid for both.
type SQLite struct {
	Path     string
	TestPath string
}

type Postgres struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	TestDatabase string
}

type MySQL struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	TestDatabase string
}

type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Database is the discriminated database section: Driver selects which
// engine block applies. Debug and DevMode pass through to the adapter.
type Database struct {
	Driver   string
	SQLite   SQLite
	MySQL    MySQL
	Postgres Postgres
	Pool     Pool
	Debug    bool
	DevMode  bool
}

var databaseConfig = Database{
	Driver:   "sqlite3",
	SQLite:   SQLite{Path: "entable.db", TestPath: ":memory:"},
	MySQL:    MySQL{Host: "127.0.0.1", Port: 3306},
	Postgres: Postgres{Host: "127.0.0.1", Port: 5432},
}

func init() {
	viper.SetDefault("database.driver", databaseConfig.Driver)
	viper.SetDefault("database.sqlite.path", databaseConfig.SQLite.Path)
	viper.SetDefault("database.sqlite.test-path", databaseConfig.SQLite.TestPath)
	viper.SetDefault("database.mysql.host", databaseConfig.MySQL.Host)
	viper.SetDefault("database.mysql.port", databaseConfig.MySQL.Port)
	viper.SetDefault("database.postgres.host", databaseConfig.Postgres.Host)
	viper.SetDefault("database.postgres.port", databaseConfig.Postgres.Port)
	RegisterReloadConfigFunc(ReloadDatabaseConfig)
}

// ReloadDatabaseConfig pulls the database section out of viper.
func ReloadDatabaseConfig() error {
	databaseConfig = Database{
		Driver: viper.GetString("database.driver"),
		SQLite: SQLite{
			Path:     viper.GetString("database.sqlite.path"),
			TestPath: viper.GetString("database.sqlite.test-path"),
		},
		MySQL: MySQL{
			Host:         viper.GetString("database.mysql.host"),
			Port:         viper.GetInt("database.mysql.port"),
			Database:     viper.GetString("database.mysql.database"),
			User:         viper.GetString("database.mysql.user"),
			Password:     viper.GetString("database.mysql.password"),
			TestDatabase: viper.GetString("database.mysql.test-database"),
		},
		Postgres: Postgres{
			Host:         viper.GetString("database.postgres.host"),
			Port:         viper.GetInt("database.postgres.port"),
			Database:     viper.GetString("database.postgres.database"),
			User:         viper.GetString("database.postgres.user"),
			Password:     viper.GetString("database.postgres.password"),
			TestDatabase: viper.GetString("database.postgres.test-database"),
		},
		Pool: Pool{
			MaxOpenConns:    viper.GetInt("database.pool.max-open-conns"),
			MaxIdleConns:    viper.GetInt("database.pool.max-idle-conns"),
			ConnMaxLifetime: viper.GetDuration("database.pool.conn-max-lifetime"),
		},
		Debug:   viper.GetBool("database.debug"),
		DevMode: viper.GetBool("database.dev-mode"),
	}
	return nil
}

// GetDatabaseConfig returns the loaded database section.
func GetDatabaseConfig() Database { return databaseConfig }

// SetDatabaseConfig overrides the section programmatically, bypassing
// viper. Used by tests and embedders that configure in code.
func SetDatabaseConfig(db Database) { databaseConfig = db }

// DSNOptions renders the section into dialect connection options; test
// selects the test-path/test-database variants where configured.
func (d Database) DSNOptions(test bool) dialect.DSNOptions {
	switch d.Driver {
	case "postgres":
		database := d.Postgres.Database
		if test && d.Postgres.TestDatabase != "" {
			database = d.Postgres.TestDatabase
		}
		return dialect.DSNOptions{
			Host: d.Postgres.Host, Port: d.Postgres.Port, Database: database,
			User: d.Postgres.User, Password: d.Postgres.Password,
		}
	case "mysql":
		database := d.MySQL.Database
		if test && d.MySQL.TestDatabase != "" {
			database = d.MySQL.TestDatabase
		}
		return dialect.DSNOptions{
			Host: d.MySQL.Host, Port: d.MySQL.Port, Database: database,
			User: d.MySQL.User, Password: d.MySQL.Password,
		}
	default:
		path := d.SQLite.Path
		if test && d.SQLite.TestPath != "" {
			path = d.SQLite.TestPath
		}
		return dialect.DSNOptions{Path: path}
	}
}

// AdapterOptions assembles adapter options from the section.
func (d Database) AdapterOptions(test bool) adapter.Options {
	return adapter.Options{
		Dialect:         d.Driver,
		DSN:             d.DSNOptions(test),
		MaxOpenConns:    d.Pool.MaxOpenConns,
		MaxIdleConns:    d.Pool.MaxIdleConns,
		ConnMaxLifetime: d.Pool.ConnMaxLifetime,
		Debug:           d.Debug,
		DevMode:         d.DevMode,
		Logger:          GetLogger(),
	}
}
