package domain

import "time"

// Role of a bot user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a claims bot user.
type User struct {
	TgID      int64     `db:"tg_id" json:"tg_id"`
	Username  *string   `db:"username" json:"username,omitempty"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      Role      `db:"role" json:"role"`
	Banned    bool      `db:"banned" json:"banned"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName returns "@username" or a synthetic "@id<tg_id>" handle.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	return "@id" + itoa(u.TgID)
}

// Administrator is an admin panel account.
type Administrator struct {
	AdminID          int64      `db:"admin_id" json:"admin_id"`
	TgID             *int64     `db:"tg_id" json:"tg_id,omitempty"`
	Login            string     `db:"login" json:"login"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	SessionToken     *string    `db:"session_token" json:"-"`
	SessionExpiresAt *time.Time `db:"session_expires_at" json:"-"`
	IsActive         bool       `db:"is_active" json:"is_active"`
	LastLogin        *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
