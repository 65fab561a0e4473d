package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/claimdesk/internal/domain"
)

// Admins persists admin panel accounts and their bearer sessions.
type Admins struct {
	db *sqlx.DB
}

// Create inserts an account. A taken login or Telegram id is a conflict.
func (r *Admins) Create(ctx context.Context, a domain.Administrator) (domain.Administrator, error) {
	var out domain.Administrator
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO administrators (tg_id, login, password_hash, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING *`,
		a.TgID, a.Login, a.PasswordHash,
	)
	if isUniqueViolation(err) {
		return out, domain.Conflict("login already taken")
	}
	return out, wrap(ctx, "admins.create", err)
}

// ByLogin loads an account by login.
func (r *Admins) ByLogin(ctx context.Context, login string) (domain.Administrator, error) {
	var out domain.Administrator
	err := r.db.GetContext(ctx, &out, `SELECT * FROM administrators WHERE login = $1`, login)
	return out, wrap(ctx, "admins.by_login", err)
}

// ByTgID loads the account linked to a Telegram user.
func (r *Admins) ByTgID(ctx context.Context, tgID int64) (domain.Administrator, error) {
	var out domain.Administrator
	err := r.db.GetContext(ctx, &out, `SELECT * FROM administrators WHERE tg_id = $1`, tgID)
	return out, wrap(ctx, "admins.by_tg_id", err)
}

// BySession returns the active account owning an unexpired session token.
func (r *Admins) BySession(ctx context.Context, token string, now time.Time) (domain.Administrator, error) {
	var out domain.Administrator
	err := r.db.GetContext(ctx, &out, `
		SELECT * FROM administrators
		WHERE session_token = $1 AND is_active AND session_expires_at > $2`,
		token, now,
	)
	return out, wrap(ctx, "admins.by_session", err)
}

// StartSession stores a new session token and stamps the login time.
func (r *Admins) StartSession(ctx context.Context, adminID int64, token string, expires time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE administrators
		SET session_token = $2, session_expires_at = $3, last_login = now()
		WHERE admin_id = $1`,
		adminID, token, expires,
	)
	if err != nil {
		return wrap(ctx, "admins.start_session", err)
	}
	return affected(ctx, "admins.start_session", res)
}

// EndSession drops a session token. Unknown tokens are ignored.
func (r *Admins) EndSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE administrators SET session_token = NULL, session_expires_at = NULL
		WHERE session_token = $1`, token)
	return wrap(ctx, "admins.end_session", err)
}
