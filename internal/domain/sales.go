package domain

import "time"

// SalesUser is a sales bot user.
type SalesUser struct {
	TgID      int64     `bson:"tg_id" json:"tg_id"`
	Username  string    `bson:"username,omitempty" json:"username,omitempty"`
	FullName  string    `bson:"full_name,omitempty" json:"full_name,omitempty"`
	Banned    bool      `bson:"banned" json:"banned"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// MessageKind is the payload type of a sales bot message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindPhoto    MessageKind = "photo"
	KindDocument MessageKind = "document"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindVoice    MessageKind = "voice"
)

// SalesMessage is a stored sales bot message from a user or an operator.
type SalesMessage struct {
	ID        int64       `bson:"id" json:"id"`
	UserID    int64       `bson:"user_id" json:"user_id"`
	Username  string      `bson:"username,omitempty" json:"username,omitempty"`
	Kind      MessageKind `bson:"kind" json:"kind"`
	Text      string      `bson:"text" json:"text"`
	FileID    string      `bson:"file_id,omitempty" json:"file_id,omitempty"`
	FromAdmin bool        `bson:"from_admin" json:"from_admin"`
	Checked   bool        `bson:"checked" json:"checked"`
	Delivered bool        `bson:"delivered" json:"delivered"`
	TgMsgID   int         `bson:"tg_message_id,omitempty" json:"-"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}

// SalesChat is the per-user aggregate shown in the operator chat list.
type SalesChat struct {
	UserID       int64     `bson:"_id" json:"user_id"`
	Username     string    `bson:"username" json:"username"`
	LastMessage  string    `bson:"last_message" json:"last_message"`
	LastDate     time.Time `bson:"last_date" json:"last_date"`
	MessageCount int64     `bson:"message_count" json:"message_count"`
	Unread       int64     `bson:"unread" json:"unread"`
	Banned       bool      `bson:"banned" json:"banned"`
}

// Product is a sales catalog item.
type Product struct {
	ProductID   int64     `bson:"product_id" json:"product_id"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	ImageID     string    `bson:"image_id" json:"image_id"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}
