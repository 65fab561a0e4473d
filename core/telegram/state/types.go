package state

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// State identifies a conversation step.
type State string

// StateIdle means there is no active conversation with the user.
const StateIdle State = ""

// ErrNilStore is returned by constructors that need a backing Store.
var ErrNilStore = errors.New("state: nil store")

// Key addresses one conversation: a bot, a chat and a user inside that chat.
type Key struct {
	Bot    string
	ChatID int64
	UserID int64
}

// UserKey returns the key of a private conversation, where chat and user coincide.
func UserKey(bot string, userID int64) Key {
	return Key{Bot: bot, ChatID: userID, UserID: userID}
}

// String renders the key as "<bot>:<chat>:<user>".
func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Bot, k.ChatID, k.UserID)
}

// Snapshot is the persisted conversation state.
type Snapshot struct {
	State     State
	Data      Data
	UpdatedAt time.Time
}

// Idle reports whether the snapshot carries no active step.
func (s Snapshot) Idle() bool {
	return s.State == StateIdle
}

// Clone returns a snapshot whose Data map can be modified independently.
func (s Snapshot) Clone() Snapshot {
	s.Data = s.Data.Clone()
	return s
}

// Store persists snapshots. Get on a missing key returns an idle snapshot and no error.
type Store interface {
	Get(ctx context.Context, key Key) (Snapshot, error)
	Set(ctx context.Context, key Key, snap Snapshot) error
	Clear(ctx context.Context, key Key) error
}

// Data holds step data. Values survive a round trip through a document store,
// so numeric getters accept any integer or float representation.
type Data map[string]any

// Clone copies the map and any nested slices of strings.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		switch vv := v.(type) {
		case []string:
			out[k] = append([]string(nil), vv...)
		case []any:
			out[k] = append([]any(nil), vv...)
		default:
			out[k] = v
		}
	}
	return out
}

// String returns the value as a string; numbers are formatted.
func (d Data) String(key string) string {
	switch v := d[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		if n, ok := d.Int64(key); ok {
			return strconv.FormatInt(n, 10)
		}
		return fmt.Sprint(v)
	}
}

// Int64 converts integer-like values.
func (d Data) Int64(key string) (int64, bool) {
	switch v := d[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Int is Int64 narrowed to int.
func (d Data) Int(key string) int {
	n, _ := d.Int64(key)
	return int(n)
}

// Bool returns boolean values; anything else is false.
func (d Data) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Strings returns a list of strings from []string or any slice of strings.
func (d Data) Strings(key string) []string {
	switch v := d[key].(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), v...)
	}
	rv := reflect.ValueOf(d[key])
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if s, ok := rv.Index(i).Interface().(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Map returns a nested data map, if present.
func (d Data) Map(key string) Data {
	switch v := d[key].(type) {
	case Data:
		return v
	case map[string]any:
		return Data(v)
	}
	return nil
}
