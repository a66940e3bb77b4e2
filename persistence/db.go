// Package persistence opens the bun database and applies the embedded
// goose migrations.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	auth "github.com/hirelane/jobboard-auth"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// Options holds the connection settings
type Options struct {
	DSN             string
	Debug           bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open connects to Postgres for postgres:// DSNs and to SQLite otherwise.
// SQLite is capped at one open connection so writes serialize.
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	driver, dsn, isPostgres := resolveDSN(opts.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("persistence: empty dsn")
	}

	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", driver, err)
	}

	var db *bun.DB
	if isPostgres {
		applyPool(sqldb, opts)
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		sqldb.SetMaxOpenConns(1)
		sqldb.SetMaxIdleConns(1)
		sqldb.SetConnMaxLifetime(0)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if opts.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
		))
	}

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}

	return db, nil
}

// Migrate applies every pending migration from auth.GetMigrationsFS
func Migrate(ctx context.Context, db *bun.DB) error {
	goose.SetBaseFS(auth.GetMigrationsFS())
	defer goose.SetBaseFS(nil)

	gooseDialect := "sqlite3"
	if db.Dialect().Name() == dialect.PG {
		gooseDialect = "postgres"
	}

	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("persistence: goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB, auth.MigrationsDir); err != nil {
		return fmt.Errorf("persistence: migrate: %w", err)
	}

	return nil
}

// OpenAndMigrate is Open followed by Migrate
func OpenAndMigrate(ctx context.Context, opts Options) (*bun.DB, error) {
	db, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func resolveDSN(raw string) (driver, dsn string, isPostgres bool) {
	dsn = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, true
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqliteshim.ShimName, strings.TrimPrefix(dsn, "sqlite://"), false
	default:
		return sqliteshim.ShimName, dsn, false
	}
}

func applyPool(sqldb *sql.DB, opts Options) {
	if opts.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
}
