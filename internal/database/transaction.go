package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	txTimeout    = 30 * time.Second
	busyAttempts = 3
	busyBackoff  = 50 * time.Millisecond
)

// TransactionManager runs directory writes in immediate transactions.
// Another process holding the file lock surfaces as SQLITE_BUSY; those
// attempts are retried with a short linear backoff.
type TransactionManager struct {
	db      *sql.DB
	backoff time.Duration
}

func NewTransactionManager(db *sql.DB) *TransactionManager {
	return &TransactionManager{db: db, backoff: busyBackoff}
}

// Execute runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. fn may run more than once when the database is
// busy, so it must not have side effects outside tx.
func (tm *TransactionManager) Execute(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		err = tm.run(ctx, fn)
		if !IsBusy(err) || attempt == busyAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction abandoned while database busy: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * tm.backoff):
		}
	}
	return err
}

func (tm *TransactionManager) run(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsBusy reports whether err carries SQLITE_BUSY from the driver
func IsBusy(err error) bool {
	var sqlErr sqlite3.Error
	return errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrBusy
}
