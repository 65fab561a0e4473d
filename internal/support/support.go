// Package support runs general help tickets: the user side opened with /help
// in the claims bot and the operator side served by the admin panel.
package support

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/domain"
)

// Repository stores tickets and their messages.
type Repository interface {
	Open(ctx context.Context, userID int64, st string, data domain.JSONMap) (domain.SupportSession, bool, error)
	OpenByUser(ctx context.Context, userID int64) (domain.SupportSession, error)
	Get(ctx context.Context, id int64) (domain.SupportSession, error)
	List(ctx context.Context, resolved bool) ([]domain.SupportSession, error)
	Resolve(ctx context.Context, res domain.SupportResolution) error
	AddMessage(ctx context.Context, m domain.SupportMessage) (domain.SupportMessage, error)
	Messages(ctx context.Context, sessionID int64) ([]domain.SupportMessage, error)
	Message(ctx context.Context, id int64) (domain.SupportMessage, error)
}

// Users resolves and bans claims bot users.
type Users interface {
	Get(ctx context.Context, tgID int64) (domain.User, error)
	SetBanned(ctx context.Context, tgID int64, banned bool) error
	ByIDs(ctx context.Context, ids []int64) (map[int64]domain.User, error)
}

// Messenger is the claims bot.
type Messenger interface {
	SendHTML(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (int, error)
	SendFile(ctx context.Context, chatID int64, up telegram.Upload, caption string, asPhoto bool) (telegram.Sent, error)
	Notify(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup)
}

var (
	// ErrEmpty marks a user message without text, photo or document.
	ErrEmpty = errors.New("support: empty message")
	// ErrTooLarge marks a file above the configured limit.
	ErrTooLarge = errors.New("support: file too large")
)

// Limits caps file sizes in bytes.
type Limits struct {
	// UserDocument applies to documents sent by users through the bot.
	UserDocument int64
	// AdminUpload applies to files uploaded by operators.
	AdminUpload int64
}

// Service implements both sides of a ticket.
type Service struct {
	repo   Repository
	users  Users
	states *state.Manager
	bot    Messenger
	limits Limits
}

// New wires the service. Zero limits fall back to 20 MB and 50 MB.
func New(repo Repository, users Users, states *state.Manager, bot Messenger, limits Limits) *Service {
	if limits.UserDocument <= 0 {
		limits.UserDocument = 20 << 20
	}
	if limits.AdminUpload <= 0 {
		limits.AdminUpload = 50 << 20
	}
	return &Service{repo: repo, users: users, states: states, bot: bot, limits: limits}
}

// Limits returns the effective size caps.
func (s *Service) Limits() Limits { return s.limits }

// HasOpen reports whether the user has an unresolved ticket.
func (s *Service) HasOpen(ctx context.Context, userID int64) (bool, error) {
	_, err := s.repo.OpenByUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Open puts the user into the support step. The dialogue the user leaves is
// kept under original_state/original_data so an operator can send them back;
// a user who is already in support keeps the first recorded origin. created
// is false when an unresolved ticket already existed.
func (s *Service) Open(ctx context.Context, userID int64) (domain.SupportSession, bool, error) {
	var prev state.Snapshot
	err := s.states.Update(ctx, userID, func(snap *state.Snapshot) {
		prev = snap.Clone()
		if snap.State == domain.StateSupportWaitingForMessage {
			return
		}
		if snap.Data == nil {
			snap.Data = state.Data{}
		}
		snap.Data[domain.DataOriginalState] = string(snap.State)
		snap.Data[domain.DataOriginalData] = map[string]any(stripOrigin(prev.Data))
		snap.State = domain.StateSupportWaitingForMessage
	})
	if err != nil {
		return domain.SupportSession{}, false, fmt.Errorf("support open %d: %w", userID, err)
	}
	st, data := origin(prev)
	sess, created, err := s.repo.Open(ctx, userID, string(st), domain.JSONMap(data))
	if err != nil {
		return sess, false, err
	}
	if created {
		logger.LogEvent(ctx, logger.SUPPORT, slog.LevelInfo, "support.open",
			slog.Int64("user_id", userID),
			slog.Int64("session_id", sess.ID),
			slog.String("state", string(st)),
		)
	}
	return sess, created, nil
}

// origin returns the dialogue the user was in before support.
func origin(prev state.Snapshot) (state.State, state.Data) {
	if prev.State != domain.StateSupportWaitingForMessage {
		return prev.State, stripOrigin(prev.Data)
	}
	data := prev.Data.Map(domain.DataOriginalData)
	if data == nil {
		data = state.Data{}
	}
	return state.State(prev.Data.String(domain.DataOriginalState)), data.Clone()
}

// stripOrigin copies d without the nested origin keys.
func stripOrigin(d state.Data) state.Data {
	out := d.Clone()
	delete(out, domain.DataOriginalState)
	delete(out, domain.DataOriginalData)
	return out
}

// Document is a file a user attached to a ticket message.
type Document struct {
	FileID string
	Name   string
	MIME   string
	Size   int64
}

// Incoming is a user message in the support step.
type Incoming struct {
	UserID      int64
	Text        string
	PhotoFileID string
	Document    *Document
}

// Submit appends a user message to the open ticket, opening one when the
// previous ticket was resolved in the meantime.
func (s *Service) Submit(ctx context.Context, in Incoming) (domain.SupportMessage, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.PhotoFileID == "" && in.Document == nil {
		return domain.SupportMessage{}, fmt.Errorf("%w: %w", domain.ErrInvalid, ErrEmpty)
	}
	if in.Document != nil && in.Document.Size > s.limits.UserDocument {
		return domain.SupportMessage{}, fmt.Errorf("%w: %w", domain.ErrInvalid, ErrTooLarge)
	}

	sess, err := s.repo.OpenByUser(ctx, in.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		sess, _, err = s.Open(ctx, in.UserID)
	}
	if err != nil {
		return domain.SupportMessage{}, err
	}

	msg := domain.SupportMessage{SessionID: sess.ID, UserID: in.UserID, Message: text}
	if in.PhotoFileID != "" {
		msg.HasPhoto = true
		msg.PhotoFileID = &in.PhotoFileID
	}
	if d := in.Document; d != nil {
		msg.HasDocument = true
		msg.DocumentFileID = &d.FileID
		msg.DocumentName = &d.Name
		msg.DocumentMIME = &d.MIME
		msg.DocumentSize = &d.Size
	}
	stored, err := s.repo.AddMessage(ctx, msg)
	if err != nil {
		return stored, err
	}
	logger.LogEvent(ctx, logger.SUPPORT, slog.LevelInfo, "support.message",
		slog.Int64("session_id", sess.ID),
		slog.Int64("user_id", in.UserID),
		slog.Bool("photo", msg.HasPhoto),
		slog.Bool("document", msg.HasDocument),
	)
	return stored, nil
}
