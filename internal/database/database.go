// Package database contains the logic for establishing
// connections to the backing relational database.
//
// PostgreSQL goes through a pgx connection pool (pgxpool) with query
// tracing wired in. SQLite, MySQL and SQL Server go through database/sql.
// Either way the result is a Database whose Source plugs into the CRUD
// engine.
//
// It handles:
//   - building a DSN from config
//   - creating a pgx connection pool (pgxpool) or a *sql.DB
//   - wiring query tracing/logging (pgx tracelog)
//   - optional New Relic instrumentation (nrpgx5)
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/deppfellow/erp-crud/internal/config"
	"github.com/deppfellow/erp-crud/internal/crud"
	loggerConfig "github.com/deppfellow/erp-crud/internal/logger"
	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"
)

// Database owns the connection pool for whichever driver is configured.
//
// Exactly one of Pool (postgres) and SQL (everything else) is set. Source
// is the view of that pool the CRUD engine acquires connections from.
type Database struct {
	Driver string
	Pool   *pgxpool.Pool
	SQL    *sql.DB
	Source crud.Source
	log    *zerolog.Logger
}

// multiTracer allows chaining multiple tracers.
//
// pgx supports a single Tracer in ConnConfig. This adapter runs several:
//   - New Relic tracer (for distributed tracing/APM)
//   - tracelog.TraceLog (for local SQL logging in "local" env)
type multiTracer struct {
	tracers []any
}

// TraceQueryStart implements pgx.QueryTracer, threading ctx through each
// tracer that supports it.
func (mt *multiTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	for _, tracer := range mt.tracers {
		if t, ok := tracer.(interface {
			TraceQueryStart(context.Context, *pgx.Conn, pgx.TraceQueryStartData) context.Context
		}); ok {
			ctx = t.TraceQueryStart(ctx, conn, data)
		}
	}
	return ctx
}

// TraceQueryEnd implements pgx.QueryTracer.
func (mt *multiTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	for _, tracer := range mt.tracers {
		if t, ok := tracer.(interface {
			TraceQueryEnd(context.Context, *pgx.Conn, pgx.TraceQueryEndData)
		}); ok {
			t.TraceQueryEnd(ctx, conn, data)
		}
	}
}

// DatabasePingTimeout defines the number of seconds to wait for a ping
// before considering the database "unreachable".
const DatabasePingTimeout = 10

// New opens the configured database and verifies it answers a ping.
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerConfig.LoggerService) (*Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DatabasePingTimeout*time.Second)
	defer cancel()

	switch cfg.Database.Driver {
	case "", "postgres":
		return newPostgres(ctx, cfg, logger, loggerService)
	default:
		db, err := OpenSQL(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database)
		if err != nil {
			return nil, err
		}
		returning := cfg.Crud == nil || !cfg.Crud.DisableReturning
		dialect, ok := crud.DialectByName(cfg.Database.Driver, returning)
		if !ok {
			_ = db.Close()
			return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
		}
		logger.Info().Str("driver", cfg.Database.Driver).Msg("connected to the database")
		return &Database{
			Driver: cfg.Database.Driver,
			SQL:    db,
			Source: NewSQLSource(db, dialect),
			log:    logger,
		}, nil
	}
}

// PostgresDSN builds a postgres:// URL from the discrete config fields.
func PostgresDSN(dbCfg config.DatabaseConfig) string {
	// Handles IPv6 correctly (adds brackets if needed).
	hostPort := net.JoinHostPort(dbCfg.Host, strconv.Itoa(dbCfg.Port))

	// URL-encode the password so characters like '@' or ':' don't break
	// the URL structure.
	encodedPassword := url.QueryEscape(dbCfg.Password)

	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		dbCfg.User,
		encodedPassword,
		hostPort,
		dbCfg.Name,
		dbCfg.SSLMode,
	)
}

func newPostgres(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, loggerService *loggerConfig.LoggerService) (*Database, error) {
	pgxPoolConfig, err := pgxpool.ParseConfig(PostgresDSN(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx pool config: %w", err)
	}

	if n := cfg.Database.MaxOpenConns; n > 0 {
		pgxPoolConfig.MaxConns = int32(n)
	}
	if n := cfg.Database.MaxIdleConns; n > 0 {
		pgxPoolConfig.MinConns = min(int32(n), pgxPoolConfig.MaxConns)
	}
	if s := cfg.Database.ConnMaxLifetime; s > 0 {
		pgxPoolConfig.MaxConnLifetime = time.Duration(s) * time.Second
	}
	if s := cfg.Database.ConnMaxIdleTime; s > 0 {
		pgxPoolConfig.MaxConnIdleTime = time.Duration(s) * time.Second
	}

	// New Relic PostgreSQL instrumentation, only when an app instance exists.
	if loggerService != nil && loggerService.GetApplication() != nil {
		pgxPoolConfig.ConnConfig.Tracer = nrpgx5.NewTracer()
	}

	// In local env, log every SQL statement through pgx tracelog + zerolog.
	if cfg.Primary.Env == "local" {
		globalLevel := logger.GetLevel()
		pgxLogger := loggerConfig.NewPgxLogger(globalLevel)
		localTracer := &tracelog.TraceLog{
			Logger:   pgxzero.NewLogger(pgxLogger),
			LogLevel: loggerConfig.GetPgxTraceLogLevel(globalLevel),
		}

		if pgxPoolConfig.ConnConfig.Tracer != nil {
			pgxPoolConfig.ConnConfig.Tracer = &multiTracer{
				tracers: []any{pgxPoolConfig.ConnConfig.Tracer, localTracer},
			}
		} else {
			pgxPoolConfig.ConnConfig.Tracer = localTracer
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxPoolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	// Fail fast at startup if the database is down.
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().Str("driver", "postgres").Msg("connected to the database")

	return &Database{
		Driver: "postgres",
		Pool:   pool,
		Source: NewPoolSource(pool),
		log:    logger,
	}, nil
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *Database) Ping(ctx context.Context) error {
	if db.Pool != nil {
		return db.Pool.Ping(ctx)
	}
	if db.SQL != nil {
		return db.SQL.PingContext(ctx)
	}
	return fmt.Errorf("database not initialized")
}

// Close closes the underlying pool.
func (db *Database) Close() error {
	if db.log != nil {
		db.log.Info().Msg("closing database connection pool")
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.SQL != nil {
		return db.SQL.Close()
	}
	return nil
}
