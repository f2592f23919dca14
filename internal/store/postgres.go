package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/money"
	"github.com/punchamoorthee/bankcore/internal/service"
)

//go:embed schema.sql
var schema string

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"

	defaultTxAttempts = 3
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	db       *pgxpool.Pool
	logger   *slog.Logger
	attempts int
}

var _ service.UnitOfWork = (*Postgres)(nil)

func NewPostgres(ctx context.Context, connString string, logger *slog.Logger) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: pool, logger: logger, attempts: defaultTxAttempts}, nil
}

func (p *Postgres) Close() {
	p.db.Close()
}

// Pool exposes the connection pool for bulk loaders.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.db
}

// Migrate creates missing tables and indexes.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SeedSettings stores the configured defaults for settings that have never been set.
func (p *Postgres) SeedSettings(ctx context.Context, savingsRate decimal.Decimal, fee money.Money) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO bank_settings (key, value) VALUES ($1, $2), ($3, $4)
		ON CONFLICT (key) DO NOTHING`,
		settingSavingsRate, savingsRate.String(),
		settingInvestmentFee, formatFee(fee),
	)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *Postgres) Repositories() service.Repositories {
	return repositories(p.db, false)
}

// WithinTx runs fn in a REPEATABLE READ transaction. Serialization failures and
// deadlocks roll back and run fn again, up to three attempts in total.
func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, repos service.Repositories) error) error {
	for attempt := 1; ; attempt++ {
		err := p.runTx(ctx, fn)
		code, retry := retryable(err)
		if !retry || attempt >= p.attempts {
			return err
		}
		txRetries.WithLabelValues(code).Inc()
		p.logger.Warn("retrying unit of work", "attempt", attempt, "code", code)
	}
}

func (p *Postgres) runTx(ctx context.Context, fn func(ctx context.Context, repos service.Repositories) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, repositories(tx, true)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func retryable(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return pgErr.Code, true
		}
	}
	return "", false
}

func isUniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return pgErr, true
	}
	return nil, false
}

// repositories binds every repository to db. With lock set, lookups by id take a row
// lock held until the transaction ends.
func repositories(db querier, lock bool) service.Repositories {
	return service.Repositories{
		Accounts:     &pgAccounts{db: db, lock: lock},
		Transactions: &pgTransactions{db: db, lock: lock},
		Credits:      &pgCredits{db: db, lock: lock},
		Orders:       &pgOrders{db: db, lock: lock},
		Stocks:       &pgStocks{db: db},
		Users:        &pgUsers{db: db},
		Settings:     &pgSettings{db: db},
	}
}

func forUpdate(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}
