package domain

import "errors"

var (
	// ErrNotFound reports a missing claim, session, user or message.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports an action blocked by the current state of another record.
	ErrConflict = errors.New("conflict")
	// ErrInvalid reports input rejected by validation.
	ErrInvalid = errors.New("invalid input")
	// ErrBanned reports an action targeting a banned user.
	ErrBanned = errors.New("user is banned")
	// ErrDelivery reports a Telegram message that could not be delivered.
	ErrDelivery = errors.New("message not delivered")
)

// Error carries a human readable message next to one of the sentinels above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

// NotFound returns an ErrNotFound with msg.
func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Msg: msg} }

// Conflict returns an ErrConflict with msg.
func Conflict(msg string) error { return &Error{Kind: ErrConflict, Msg: msg} }

// Invalid returns an ErrInvalid with msg.
func Invalid(msg string) error { return &Error{Kind: ErrInvalid, Msg: msg} }

// Banned returns an ErrBanned with msg.
func Banned(msg string) error { return &Error{Kind: ErrBanned, Msg: msg} }
