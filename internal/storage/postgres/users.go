package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/claimdesk/internal/domain"
)

// Users persists claims bot users.
type Users struct {
	db *sqlx.DB
}

// Upsert inserts the user or refreshes its profile. The admin role is sticky.
func (r *Users) Upsert(ctx context.Context, u domain.User) (domain.User, error) {
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	var out domain.User
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO users (tg_id, username, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tg_id) DO UPDATE SET
			username   = EXCLUDED.username,
			full_name  = EXCLUDED.full_name,
			role       = CASE WHEN EXCLUDED.role = 'admin' THEN 'admin' ELSE users.role END,
			updated_at = now()
		RETURNING *`,
		u.TgID, u.Username, u.FullName, u.Role,
	)
	return out, wrap(ctx, "users.upsert", err)
}

// Get loads a user by Telegram id.
func (r *Users) Get(ctx context.Context, tgID int64) (domain.User, error) {
	var out domain.User
	err := r.db.GetContext(ctx, &out, `SELECT * FROM users WHERE tg_id = $1`, tgID)
	return out, wrap(ctx, "users.get", err)
}

// SetBanned flips the banned flag.
func (r *Users) SetBanned(ctx context.Context, tgID int64, banned bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET banned = $2, updated_at = now() WHERE tg_id = $1`, tgID, banned)
	if err != nil {
		return wrap(ctx, "users.set_banned", err)
	}
	return affected(ctx, "users.set_banned", res)
}

// ByIDs loads users keyed by Telegram id. Missing ids are absent from the map.
func (r *Users) ByIDs(ctx context.Context, ids []int64) (map[int64]domain.User, error) {
	out := make(map[int64]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.User
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM users WHERE tg_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, wrap(ctx, "users.by_ids", err)
	}
	for _, u := range rows {
		out[u.TgID] = u
	}
	return out, nil
}
