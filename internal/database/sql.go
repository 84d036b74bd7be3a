package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/deppfellow/erp-crud/internal/config"
	"github.com/go-sql-driver/mysql"
	_ "github.com/microsoft/go-mssqldb" // registers "sqlserver"
	"github.com/microsoft/go-mssqldb/msdsn"
	_ "modernc.org/sqlite" // registers "sqlite"
)

// OpenSQL opens a database/sql pool for the sqlite, mysql or sqlserver
// driver, validates the DSN where the driver offers a parser, applies pool
// limits and pings it. SQLite connections enforce foreign keys.
func OpenSQL(ctx context.Context, driver, dsn string, poolCfg config.DatabaseConfig) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", driver)
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "sqlite":
		db, err = sql.Open(driver, sqliteDSN(dsn))
	case "mysql":
		cfg, cfgErr := mysqlConfig(dsn)
		if cfgErr != nil {
			return nil, fmt.Errorf("mysql dsn: %w", cfgErr)
		}
		connector, connErr := mysql.NewConnector(cfg)
		if connErr != nil {
			return nil, fmt.Errorf("mysql: open: %w", connErr)
		}
		db = sql.OpenDB(connector)
	case "sqlserver":
		// Validate early so typos fail before the first connection attempt.
		if _, err := msdsn.Parse(dsn); err != nil {
			return nil, fmt.Errorf("mssql dsn: %w", err)
		}
		db, err = sql.Open(driver, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}

	if driver == "sqlite" && isSQLiteMemory(dsn) {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		if poolCfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(poolCfg.MaxOpenConns)
		}
		if poolCfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(poolCfg.MaxIdleConns)
		}
	}
	if poolCfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(poolCfg.ConnMaxLifetime) * time.Second)
	}
	if poolCfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(time.Duration(poolCfg.ConnMaxIdleTime) * time.Second)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", driver, err)
	}

	return db, nil
}

// OpenSQLite is OpenSQL for a SQLite DSN with default pool settings.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	return OpenSQL(ctx, "sqlite", dsn, config.DatabaseConfig{})
}

// sqliteDSN turns on foreign key enforcement through the DSN, so every
// connection the pool opens gets it, not just the first one.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// mysqlConfig parses a MySQL DSN and makes UPDATE report matched rows rather
// than changed rows, so writing a row's current values is not a miss.
func mysqlConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ClientFoundRows = true
	return cfg, nil
}

func isSQLiteMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
