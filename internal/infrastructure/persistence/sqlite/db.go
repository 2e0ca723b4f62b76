package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/transfer-approval/internal/application/port"
	"go.uber.org/zap"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const txKey contextKey = "tx"

// DB wraps sql.DB and implements TransactionManager.
// The connection is expected to open transactions with BEGIN IMMEDIATE, so every
// WithTransaction call holds the database write lock for its whole duration.
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database wrapper
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		logger: logger,
	}
}

// WithTransaction runs fn inside a transaction carried by the context.
// A nested call joins the outer transaction.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Conn returns the transaction stored in ctx, or db when there is none
func Conn(ctx context.Context, db *sql.DB) Executor {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db
}

// InTransaction reports whether ctx carries a transaction
func InTransaction(ctx context.Context) bool {
	return extractTx(ctx) != nil
}

func extractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
