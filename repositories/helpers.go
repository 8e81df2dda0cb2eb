package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLExecutor выполняется либо на *sql.DB, либо на *sql.Tx, чтобы методы
// репозиториев могли участвовать в чужой транзакции.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is a transaction handle usable as an SQLExecutor.
type Tx interface {
	SQLExecutor
	Commit() error
	Rollback() error
}

// TxStarter lets services own multi-repository transactions without binding to
// a concrete database handle; satisfied by DB below and by test fakes.
type TxStarter interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
}

// DB adapts *sql.DB to TxStarter.
type DB struct {
	*sql.DB
}

func NewDB(db *sql.DB) DB {
	return DB{DB: db}
}

func (d DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	return d.DB.BeginTx(ctx, opts)
}

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError // Возвращаем переданную ошибку "не найдено"
	}
	return nil
}
