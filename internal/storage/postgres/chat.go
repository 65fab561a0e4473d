package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/claimdesk/internal/domain"
)

// Chats persists claim chat sessions and their message log.
type Chats struct {
	db *sqlx.DB
}

// Start opens the claim's chat. The partial unique index on active sessions
// makes concurrent calls converge on one row; created reports whether this
// call inserted it.
func (r *Chats) Start(ctx context.Context, claimID string, userID int64) (domain.ChatSession, bool, error) {
	var out domain.ChatSession
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO chat_sessions (claim_id, user_id, is_active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (claim_id) WHERE is_active DO NOTHING
		RETURNING *`, claimID, userID)
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return out, false, wrap(ctx, "chats.start", err)
	}
	out, err = r.ActiveByClaim(ctx, claimID)
	return out, false, err
}

// ActiveByClaim returns the claim's open session.
func (r *Chats) ActiveByClaim(ctx context.Context, claimID string) (domain.ChatSession, error) {
	var out domain.ChatSession
	err := r.db.GetContext(ctx, &out,
		`SELECT * FROM chat_sessions WHERE claim_id = $1 AND is_active`, claimID)
	return out, wrap(ctx, "chats.active_by_claim", err)
}

// ActiveByUser lists the user's open sessions, most recently used first.
func (r *Chats) ActiveByUser(ctx context.Context, userID int64) ([]domain.ChatSession, error) {
	out := []domain.ChatSession{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM chat_sessions WHERE user_id = $1 AND is_active
		ORDER BY last_interaction DESC`, userID)
	return out, wrap(ctx, "chats.active_by_user", err)
}

// Close deactivates the claim's open session.
func (r *Chats) Close(ctx context.Context, claimID string) (domain.ChatSession, error) {
	var out domain.ChatSession
	err := r.db.GetContext(ctx, &out, `
		UPDATE chat_sessions SET is_active = FALSE, closed_at = now()
		WHERE claim_id = $1 AND is_active
		RETURNING *`, claimID)
	return out, wrap(ctx, "chats.close", err)
}

// MarkUnanswered records an inbound user message on the session.
func (r *Chats) MarkUnanswered(ctx context.Context, sessionID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET has_unanswered = TRUE, last_interaction = now()
		WHERE id = $1`, sessionID)
	return wrap(ctx, "chats.mark_unanswered", err)
}

// MarkAnswered clears the unanswered flag of the claim's open session.
func (r *Chats) MarkAnswered(ctx context.Context, claimID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET has_unanswered = FALSE, last_interaction = now()
		WHERE claim_id = $1 AND is_active`, claimID)
	return wrap(ctx, "chats.mark_answered", err)
}

// AddMessage appends to the claim's log.
func (r *Chats) AddMessage(ctx context.Context, m domain.ChatMessage) (domain.ChatMessage, error) {
	var out domain.ChatMessage
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO chat_messages (claim_id, user_id, message, is_bot, has_photo, photo_file_id, file_name, mime_type, tg_message_id, delivered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING *`,
		m.ClaimID, m.UserID, m.Message, m.IsBot, m.HasPhoto, m.PhotoFileID, m.FileName, m.MimeType, m.TgMessageID, m.Delivered,
	)
	return out, wrap(ctx, "chats.add_message", err)
}

// History returns the claim's log in chronological order.
func (r *Chats) History(ctx context.Context, claimID string) ([]domain.ChatMessage, error) {
	out := []domain.ChatMessage{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM chat_messages WHERE claim_id = $1 ORDER BY created_at, id`, claimID)
	return out, wrap(ctx, "chats.history", err)
}

// Message loads one log entry.
func (r *Chats) Message(ctx context.Context, id int64) (domain.ChatMessage, error) {
	var out domain.ChatMessage
	err := r.db.GetContext(ctx, &out, `SELECT * FROM chat_messages WHERE id = $1`, id)
	return out, wrap(ctx, "chats.message", err)
}

// ClaimByTgMessage finds the claim of an operator message delivered to the user.
func (r *Chats) ClaimByTgMessage(ctx context.Context, userID int64, tgMessageID int64) (string, error) {
	var claimID string
	err := r.db.GetContext(ctx, &claimID, `
		SELECT claim_id FROM chat_messages
		WHERE user_id = $1 AND tg_message_id = $2 AND is_bot
		ORDER BY id DESC LIMIT 1`, userID, tgMessageID)
	return claimID, wrap(ctx, "chats.claim_by_tg_message", err)
}
