package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/romanzh1/english-tutor/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var _ models.Repository = (*DB)(nil)

//go:embed migrations
var migrations embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver       string
	Path         string
	URL          string
	MaxOpenConns int
	OpTimeout    time.Duration
	BusyTimeout  time.Duration
}

// DB is the shared store handle. A DB returned by Begin carries a transaction
// and routes every statement through it.
type DB struct {
	db        *sqlx.DB
	tx        *sqlx.Tx
	psql      squirrel.StatementBuilderType
	driver    string
	opTimeout time.Duration
}

func NewDB(cfg Config) (*DB, error) {
	driverName, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database (driver: %s): %w", cfg.Driver, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(time.Minute * 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database (driver: %s): %w", cfg.Driver, err)
	}

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
	if cfg.Driver == DriverPostgres {
		psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}

	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}

	return &DB{db: db, psql: psql, driver: cfg.Driver, opTimeout: opTimeout}, nil
}

func dataSource(cfg Config) (string, string, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.Path == "" {
			return "", "", fmt.Errorf("sqlite database path is empty")
		}
		busy := cfg.BusyTimeout
		if busy <= 0 {
			busy = 5 * time.Second
		}
		q := url.Values{}
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", "journal_mode(WAL)")
		q.Set("_txlock", "immediate")
		q.Set("_time_format", "sqlite")
		return "sqlite", "file:" + cfg.Path + "?" + q.Encode(), nil
	case DriverPostgres:
		if cfg.URL == "" {
			return "", "", fmt.Errorf("postgres database url is empty")
		}
		return "pgx", cfg.URL, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func (r DB) Close() error {
	return r.db.Close()
}

func (r DB) dialect() string {
	if r.driver == DriverPostgres {
		return "postgres"
	}
	return "sqlite3"
}

func (r DB) migrationsDir() string {
	if r.driver == DriverPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

func (r DB) Up() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(r.dialect()); err != nil {
		return fmt.Errorf("set migration dialect (%s): %w", r.dialect(), err)
	}

	if err := goose.Up(r.db.DB, r.migrationsDir()); err != nil {
		return fmt.Errorf("run migrations (dir: %s): %w", r.migrationsDir(), err)
	}

	return nil
}

func (r DB) Reset() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(r.dialect()); err != nil {
		return fmt.Errorf("set migration dialect (%s): %w", r.dialect(), err)
	}

	if err := goose.Reset(r.db.DB, r.migrationsDir()); err != nil {
		return fmt.Errorf("reset migrations (dir: %s): %w", r.migrationsDir(), err)
	}

	return nil
}

type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) { zap.S().Fatalf(format, v...) }
func (gooseLogger) Printf(format string, v ...interface{}) { zap.S().Debugf(format, v...) }

func (r *DB) Begin(ctx context.Context) (*DB, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	return &DB{
		db:        r.db,
		tx:        tx,
		psql:      r.psql,
		driver:    r.driver,
		opTimeout: r.opTimeout,
	}, nil
}

func (r *DB) Commit() error {
	if r.tx == nil {
		return fmt.Errorf("no active transaction to commit")
	}
	return r.tx.Commit()
}

func (r *DB) Rollback() error {
	if r.tx == nil {
		return fmt.Errorf("no active transaction to rollback")
	}
	return r.tx.Rollback()
}

// RunInTx runs fn inside one transaction. Nested calls reuse the outer transaction.
// The transaction is rolled back on error or panic.
func (r *DB) RunInTx(ctx context.Context, fn func(models.Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	ctx, cancel := r.scope(ctx)
	defer cancel()

	txRepo, err := r.Begin(ctx)
	if err != nil {
		return wrap("run in transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = txRepo.Rollback()
			panic(p)
		}
	}()

	if err = fn(txRepo); err != nil {
		_ = txRepo.Rollback()
		return err
	}

	if err = txRepo.Commit(); err != nil {
		return wrap("commit transaction", err)
	}
	return nil
}

// scope bounds a single storage operation by the configured timeout.
func (r *DB) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *DB) executor() sqlx.ExtContext {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.executor().ExecContext(ctx, query, args...)
}

func (r *DB) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return r.executor().QueryRowxContext(ctx, query, args...)
}

func (r *DB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, r.executor(), dest, query, args...)
}

func (r *DB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, r.executor(), dest, query, args...)
}

func (r *DB) rebind(query string) string {
	return r.db.Rebind(query)
}
