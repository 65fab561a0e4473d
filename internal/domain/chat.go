package domain

import "time"

// ChatSession marks a claim chat as open.
type ChatSession struct {
	ID              int64      `db:"id" json:"id"`
	ClaimID         string     `db:"claim_id" json:"claim_id"`
	UserID          int64      `db:"user_id" json:"user_id"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	HasUnanswered   bool       `db:"has_unanswered" json:"has_unanswered"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	LastInteraction time.Time  `db:"last_interaction" json:"last_interaction"`
	ClosedAt        *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}

// ChatMessage is one entry of a claim chat log.
type ChatMessage struct {
	ID          int64     `db:"id" json:"id"`
	ClaimID     string    `db:"claim_id" json:"claim_id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Message     string    `db:"message" json:"message"`
	IsBot       bool      `db:"is_bot" json:"is_bot"`
	HasPhoto    bool      `db:"has_photo" json:"has_photo"`
	PhotoFileID *string   `db:"photo_file_id" json:"photo_file_id,omitempty"`
	// FileName and MimeType describe a document; photos leave them empty.
	FileName    *string   `db:"file_name" json:"file_name,omitempty"`
	MimeType    *string   `db:"mime_type" json:"mime_type,omitempty"`
	TgMessageID *int64    `db:"tg_message_id" json:"-"`
	Delivered   bool      `db:"delivered" json:"delivered"`
	CreatedAt   time.Time `db:"created_at" json:"timestamp"`
}

// UndeliveredSuffix marks stored operator messages that Telegram rejected.
const UndeliveredSuffix = " (не доставлено)"
