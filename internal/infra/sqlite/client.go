// Package sqlite provides the persistence collaborator on top of SQLite.
// Every multi-row write runs inside RunAtomic, which opens an IMMEDIATE
// transaction: the write lock is taken up front, so concurrent writers on the
// same account serialize instead of losing updates.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/infra/resilience"
	"github.com/boddenberg/planeja-api-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var tracer = otel.Tracer("sqlite")

// Config holds the database parameters.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store implements port.Store.
type Store struct {
	*queries
	db     *sql.DB
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

var _ port.Store = (*Store)(nil)

// Open creates the database file if needed, applies migrations and waits
// (with backoff) until the database answers.
func Open(ctx context.Context, cfg Config, cb *gobreaker.CircuitBreaker, retry resilience.Config, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(cfg.Path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	err = resilience.RetryWithBackoff(ctx, retry, func() error {
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("sqlite: ping failed", zap.String("path", cfg.Path), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("sqlite: database ready", zap.String("path", cfg.Path))

	return &Store{
		queries: &queries{db: db, logger: logger},
		db:      db,
		cb:      cb,
		logger:  logger,
	}, nil
}

// dsn enables foreign keys (cascades), a busy timeout and IMMEDIATE transactions.
func dsn(cfg Config) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database through the circuit breaker.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.db.PingContext(ctx)
	})
	return s.breakerErr(err)
}

// RunAtomic executes fn inside one storage transaction. fn's error (or panic)
// rolls back everything it issued. The transaction is detached from ctx
// cancellation: a caller that goes away never leaves a half-applied unit, the
// unit either commits or rolls back as a whole.
func (s *Store) RunAtomic(ctx context.Context, fn func(q port.Queries) error) error {
	ctx, span := tracer.Start(ctx, "SQLite.RunAtomic")
	defer span.End()

	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.runTx(ctx, fn)
	})
	return s.breakerErr(err)
}

func (s *Store) runTx(ctx context.Context, fn func(q port.Queries) error) (err error) {
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("sqlite: rollback failed", zap.Error(rbErr))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("commit transaction: %w", cErr)
		}
	}()

	return fn(&queries{db: tx, logger: s.logger})
}

func (s *Store) breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Error("sqlite: circuit breaker rejected call", zap.Error(err))
		return &domain.ErrCircuitOpen{Service: "sqlite"}
	}
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements port.Queries against either the pool or a transaction.
type queries struct {
	db     dbtx
	logger *zap.Logger
}

// ============================================================
// Encoding helpers
// ============================================================

// timeLayout is fixed-width so TEXT ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}

func isUniqueViolation(err error) bool {
	var se *sqlite3.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
