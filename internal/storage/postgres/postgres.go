// Package postgres implements the relational repositories on top of sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/internal/domain"
)

const uniqueViolation = "23505"

// Store groups the repositories sharing one connection pool.
type Store struct {
	DB       *sqlx.DB
	Users    *Users
	Admins   *Admins
	Codes    *Codes
	Claims   *Claims
	Chats    *Chats
	Support  *Support
	Payments *Payments
}

// New builds every repository over db.
func New(db *sqlx.DB) *Store {
	return &Store{
		DB:       db,
		Users:    &Users{db: db},
		Admins:   &Admins{db: db},
		Codes:    &Codes{db: db},
		Claims:   &Claims{db: db},
		Chats:    &Chats{db: db},
		Support:  &Support{db: db},
		Payments: &Payments{db: db},
	}
}

// wrap maps sql.ErrNoRows to domain.ErrNotFound and logs anything else.
func wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.query",
		slog.String("status", "fail"),
		slog.String("op", op),
		logger.Err(err),
	)
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// inTx runs fn inside a transaction, committing when it returns nil.
func inTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// affected turns an UPDATE that matched nothing into domain.ErrNotFound.
func affected(ctx context.Context, op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(ctx, op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}
