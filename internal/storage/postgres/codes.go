package postgres

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/claimdesk/internal/domain"
)

// Codes is the one-time promo code pool.
type Codes struct {
	db *sqlx.DB
}

// Consume deletes the code and reports whether it existed. Concurrent callers
// cannot both consume the same code.
func (r *Codes) Consume(ctx context.Context, code string) (bool, error) {
	var got string
	err := r.db.GetContext(ctx, &got, `DELETE FROM one_time_codes WHERE code = $1 RETURNING code`, code)
	err = wrap(ctx, "codes.consume", err)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Add loads codes into the pool, skipping duplicates, and returns how many were new.
func (r *Codes) Add(ctx context.Context, codes []string) (int, error) {
	added := 0
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, c := range codes {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO one_time_codes (code) VALUES ($1) ON CONFLICT DO NOTHING`, c)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			added += int(n)
		}
		return nil
	})
	return added, wrap(ctx, "codes.add", err)
}
