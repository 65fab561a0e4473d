package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/claimdesk/internal/domain"
)

// Support persists help tickets.
type Support struct {
	db *sqlx.DB
}

// Open returns the user's unresolved ticket, creating it with the given
// snapshot when there is none. created reports whether a row was inserted.
func (r *Support) Open(ctx context.Context, userID int64, st string, data domain.JSONMap) (domain.SupportSession, bool, error) {
	var out domain.SupportSession
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO support_sessions (user_id, state, state_data)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) WHERE NOT resolved DO NOTHING
		RETURNING *`, userID, st, data)
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return out, false, wrap(ctx, "support.open", err)
	}
	out, err = r.OpenByUser(ctx, userID)
	return out, false, err
}

// OpenByUser returns the user's unresolved ticket.
func (r *Support) OpenByUser(ctx context.Context, userID int64) (domain.SupportSession, error) {
	var out domain.SupportSession
	err := r.db.GetContext(ctx, &out,
		`SELECT * FROM support_sessions WHERE user_id = $1 AND NOT resolved`, userID)
	return out, wrap(ctx, "support.open_by_user", err)
}

// HasOpen reports whether the user has an unresolved ticket.
func (r *Support) HasOpen(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok,
		`SELECT EXISTS (SELECT 1 FROM support_sessions WHERE user_id = $1 AND NOT resolved)`, userID)
	return ok, wrap(ctx, "support.has_open", err)
}

// Get loads a ticket.
func (r *Support) Get(ctx context.Context, id int64) (domain.SupportSession, error) {
	var out domain.SupportSession
	err := r.db.GetContext(ctx, &out, `SELECT * FROM support_sessions WHERE id = $1`, id)
	return out, wrap(ctx, "support.get", err)
}

// List returns tickets by resolved flag, newest first.
func (r *Support) List(ctx context.Context, resolved bool) ([]domain.SupportSession, error) {
	out := []domain.SupportSession{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM support_sessions WHERE resolved = $1
		ORDER BY updated_at DESC, id DESC`, resolved)
	return out, wrap(ctx, "support.list", err)
}

// Resolve closes an unresolved ticket. A ticket that is already resolved is invalid.
func (r *Support) Resolve(ctx context.Context, res domain.SupportResolution) error {
	var adminID *int64
	if res.AdminID != 0 {
		adminID = &res.AdminID
	}
	bump := 0
	if res.Rollback {
		bump = 1
	}
	out, err := r.db.ExecContext(ctx, `
		UPDATE support_sessions SET
			resolved             = TRUE,
			resolved_by_admin_id = $2,
			previous_state       = $3,
			previous_data        = $4,
			rollback_count       = rollback_count + $5,
			resolved_at          = now(),
			updated_at           = now()
		WHERE id = $1 AND NOT resolved`,
		res.SessionID, adminID, res.PreviousState, res.PreviousData, bump)
	if err != nil {
		return wrap(ctx, "support.resolve", err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return domain.Invalid("support session already resolved")
	}
	return nil
}

// AddMessage appends to a ticket and bumps its updated_at.
func (r *Support) AddMessage(ctx context.Context, m domain.SupportMessage) (domain.SupportMessage, error) {
	var out domain.SupportMessage
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &out, `
			INSERT INTO support_messages (session_id, user_id, message, is_admin, has_photo, photo_file_id,
				has_document, document_file_id, document_name, document_mime, document_size)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING *`,
			m.SessionID, m.UserID, m.Message, m.IsAdmin, m.HasPhoto, m.PhotoFileID,
			m.HasDocument, m.DocumentFileID, m.DocumentName, m.DocumentMIME, m.DocumentSize,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE support_sessions SET updated_at = now() WHERE id = $1`, m.SessionID)
		return err
	})
	return out, wrap(ctx, "support.add_message", err)
}

// Messages returns a ticket's messages in chronological order.
func (r *Support) Messages(ctx context.Context, sessionID int64) ([]domain.SupportMessage, error) {
	out := []domain.SupportMessage{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM support_messages WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	return out, wrap(ctx, "support.messages", err)
}

// Message loads one ticket message.
func (r *Support) Message(ctx context.Context, id int64) (domain.SupportMessage, error) {
	var out domain.SupportMessage
	err := r.db.GetContext(ctx, &out, `SELECT * FROM support_messages WHERE id = $1`, id)
	return out, wrap(ctx, "support.message", err)
}
