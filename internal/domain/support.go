package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a jsonb column holding conversation data.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonmap: unsupported source %T", src)
	}
	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("jsonmap: %w", err)
	}
	*m = out
	return nil
}

// SupportSession is a general help ticket.
type SupportSession struct {
	ID                int64      `db:"id" json:"id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	State             string     `db:"state" json:"state"`
	StateData         JSONMap    `db:"state_data" json:"state_data"`
	Resolved          bool       `db:"resolved" json:"resolved"`
	ResolvedByAdminID *int64     `db:"resolved_by_admin_id" json:"resolved_by_admin_id,omitempty"`
	PreviousState     *string    `db:"previous_state" json:"previous_state,omitempty"`
	PreviousData      JSONMap    `db:"previous_data" json:"previous_data,omitempty"`
	RollbackCount     int        `db:"rollback_count" json:"rollback_count"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	ResolvedAt        *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// SupportMessage is one message inside a support ticket.
type SupportMessage struct {
	ID             int64     `db:"id" json:"id"`
	SessionID      int64     `db:"session_id" json:"session_id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Message        string    `db:"message" json:"message"`
	IsAdmin        bool      `db:"is_admin" json:"is_admin"`
	HasPhoto       bool      `db:"has_photo" json:"has_photo"`
	PhotoFileID    *string   `db:"photo_file_id" json:"photo_file_id,omitempty"`
	HasDocument    bool      `db:"has_document" json:"has_document"`
	DocumentFileID *string   `db:"document_file_id" json:"document_file_id,omitempty"`
	DocumentName   *string   `db:"document_name" json:"document_name,omitempty"`
	DocumentMIME   *string   `db:"document_mime" json:"document_mime,omitempty"`
	DocumentSize   *int64    `db:"document_size" json:"document_size,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// SupportResolution describes how a ticket is closed. PreviousState and
// PreviousData hold the conversation as it was when the ticket closed.
type SupportResolution struct {
	SessionID     int64
	AdminID       int64
	PreviousState string
	PreviousData  JSONMap
	Rollback      bool
}
