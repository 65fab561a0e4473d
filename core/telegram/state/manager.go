package state

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/m3rciful/claimdesk/core/logger"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const lockStripes = 64

// Manager is the bot-facing view of a Store: it resolves keys for one bot,
// serializes read-modify-write cycles per user and dispatches step handlers.
type Manager struct {
	bot   string
	store Store

	locks [lockStripes]sync.Mutex

	mu       sync.RWMutex
	handlers map[State]tele.HandlerFunc
}

// NewManager binds a Store to a bot name.
func NewManager(bot string, store Store) (*Manager, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &Manager{
		bot:      bot,
		store:    store,
		handlers: make(map[State]tele.HandlerFunc),
	}, nil
}

// Bot returns the bot name used in keys.
func (m *Manager) Bot() string { return m.bot }

// Store exposes the backing store.
func (m *Manager) Store() Store { return m.store }

// Key returns the private-chat key of a user.
func (m *Manager) Key(userID int64) Key { return UserKey(m.bot, userID) }

// On registers the handler for a step. A nil handler removes it.
func (m *Manager) On(st State, h tele.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		delete(m.handlers, st)
		return
	}
	m.handlers[st] = h
}

// Snapshot loads the user's conversation.
func (m *Manager) Snapshot(ctx context.Context, userID int64) (Snapshot, error) {
	snap, err := m.store.Get(ctx, m.Key(userID))
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Data == nil {
		snap.Data = Data{}
	}
	return snap, nil
}

// State returns the current step. Store failures are logged and read as idle.
func (m *Manager) State(ctx context.Context, userID int64) State {
	snap, err := m.Snapshot(ctx, userID)
	if err != nil {
		logger.LogEvent(ctx, logger.FSM, slog.LevelError, "fsm.get",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			logger.Err(err),
		)
		return StateIdle
	}
	return snap.State
}

// InProgress reports whether the user is inside a conversation.
func (m *Manager) InProgress(ctx context.Context, userID int64) bool {
	return m.State(ctx, userID) != StateIdle
}

// SetState moves the user to st keeping the data.
func (m *Manager) SetState(ctx context.Context, userID int64, st State) error {
	return m.Update(ctx, userID, func(s *Snapshot) { s.State = st })
}

// Update applies fn to the current snapshot and stores the result.
func (m *Manager) Update(ctx context.Context, userID int64, fn func(*Snapshot)) error {
	lock := m.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := m.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	prev := snap.State
	fn(&snap)
	if err := m.store.Set(ctx, m.Key(userID), snap); err != nil {
		return err
	}
	if prev != snap.State {
		logger.LogEvent(ctx, logger.FSM, slog.LevelDebug, "fsm.transition",
			slog.String("bot", m.bot),
			slog.Int64("user_id", userID),
			slog.String("from", string(prev)),
			slog.String("state", string(snap.State)),
		)
	}
	return nil
}

// Put replaces the snapshot.
func (m *Manager) Put(ctx context.Context, userID int64, snap Snapshot) error {
	lock := m.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.Set(ctx, m.Key(userID), snap)
}

// Clear ends the conversation.
func (m *Manager) Clear(ctx context.Context, userID int64) error {
	lock := m.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.Clear(ctx, m.Key(userID))
}

// Handle runs the handler registered for the sender's current step.
func (m *Manager) Handle(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	current := m.State(ctx, c.Sender().ID)

	m.mu.RLock()
	h, ok := m.handlers[current]
	m.mu.RUnlock()

	logger.Debug(ctx, "fsm", "fsm.dispatch",
		slog.String("state", string(current)),
		slog.Bool("matched", ok),
	)
	if !ok {
		return nil
	}
	return h(c)
}

func (m *Manager) lockFor(userID int64) *sync.Mutex {
	h := fnv.New32a()
	var b [8]byte
	for i := range b {
		b[i] = byte(userID >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return &m.locks[h.Sum32()%lockStripes]
}
