package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/m3rciful/claimdesk/core/telegram/state"
)

type stateDoc struct {
	ID        string         `bson:"_id"`
	State     string         `bson:"state"`
	Data      map[string]any `bson:"data"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

// StateStore implements state.Store over one collection.
type StateStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ state.Store = (*StateStore)(nil)

// NewStateStore wraps the collection holding conversation documents.
func NewStateStore(coll *mongo.Collection) *StateStore {
	return &StateStore{coll: coll, now: time.Now}
}

// Get loads a snapshot. A missing document is an idle conversation.
func (s *StateStore) Get(ctx context.Context, key state.Key) (state.Snapshot, error) {
	var doc stateDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return state.Snapshot{Data: state.Data{}}, nil
	}
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("state get %s: %w", key, err)
	}
	return state.Snapshot{
		State:     state.State(doc.State),
		Data:      normalizeMap(doc.Data),
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// Set replaces the document for key.
func (s *StateStore) Set(ctx context.Context, key state.Key, snap state.Snapshot) error {
	doc := stateDoc{
		ID:        key.String(),
		State:     string(snap.State),
		Data:      plainMap(snap.Data),
		UpdatedAt: s.now().UTC(),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("state set %s: %w", key, err)
	}
	return nil
}

// Clear deletes the document for key.
func (s *StateStore) Clear(ctx context.Context, key state.Key) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": key.String()}); err != nil {
		return fmt.Errorf("state clear %s: %w", key, err)
	}
	return nil
}

// plainMap strips the named state.Data type from nested maps before encoding.
func plainMap(d state.Data) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case state.Data:
		return plainMap(t)
	case map[string]any:
		return plainMap(state.Data(t))
	default:
		return v
	}
}

// normalizeMap converts decoded BSON containers into plain Go maps and slices
// so that step handlers see the same shapes the memory store returns.
func normalizeMap(m map[string]any) state.Data {
	out := make(state.Data, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case primitive.M:
		return map[string]any(normalizeMap(t))
	case map[string]any:
		return map[string]any(normalizeMap(t))
	case primitive.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	default:
		return v
	}
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = normalize(v)
	}
	return out
}
