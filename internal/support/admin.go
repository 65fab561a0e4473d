package support

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/format"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/domain"
)

const (
	adminPrefix     = "🛡️ <b>Поддержка:</b>\n"
	captionLimit    = 1024
	undeliveredMark = " (ошибка отправки)"
)

// SessionView is a ticket as listed on the dashboard.
type SessionView struct {
	domain.SupportSession
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	Banned     bool   `json:"banned"`
	StateLabel string `json:"state_label"`
}

// List returns tickets by resolved flag with the user's handle and ban flag.
func (s *Service) List(ctx context.Context, resolved bool) ([]SessionView, error) {
	sessions, err := s.repo.List(ctx, resolved)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.UserID)
	}
	users, err := s.users.ByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, view(sess, users[sess.UserID]))
	}
	return out, nil
}

func view(sess domain.SupportSession, u domain.User) SessionView {
	v := SessionView{
		SupportSession: sess,
		FullName:       u.FullName,
		Banned:         u.Banned,
		StateLabel:     domain.StateLabel(state.State(sess.State)),
	}
	if u.TgID != 0 {
		v.Username = u.DisplayName()
	}
	return v
}

// Get returns one ticket.
func (s *Service) Get(ctx context.Context, sessionID int64) (SessionView, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	u, err := s.users.Get(ctx, sess.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return SessionView{}, err
	}
	return view(sess, u), nil
}

// Messages returns the ticket history, oldest first.
func (s *Service) Messages(ctx context.Context, sessionID int64) ([]domain.SupportMessage, error) {
	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.Messages(ctx, sessionID)
}

// Attachment returns a message of the ticket that carries a file.
func (s *Service) Attachment(ctx context.Context, sessionID, messageID int64) (domain.SupportMessage, error) {
	m, err := s.repo.Message(ctx, messageID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && m.SessionID != sessionID) {
		return m, domain.NotFound("Message not found")
	}
	if err != nil {
		return m, err
	}
	if format.Deref(m.PhotoFileID, "") == "" && format.Deref(m.DocumentFileID, "") == "" {
		return m, domain.NotFound("Message has no attachment")
	}
	return m, nil
}

func (s *Service) session(ctx context.Context, id int64) (domain.SupportSession, error) {
	sess, err := s.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return sess, domain.NotFound("Support session not found")
	}
	return sess, err
}

// recipient loads an open ticket and its user and checks they can be written to.
func (s *Service) recipient(ctx context.Context, sessionID int64) (domain.SupportSession, domain.User, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return sess, domain.User{}, err
	}
	if sess.Resolved {
		return sess, domain.User{}, domain.Invalid("Сессия уже закрыта")
	}
	u, err := s.users.Get(ctx, sess.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return sess, u, domain.NotFound("User not found")
	}
	if err != nil {
		return sess, u, err
	}
	if u.Banned {
		return sess, u, domain.Invalid("Пользователь заблокирован")
	}
	return sess, u, nil
}

// Reply sends an operator's text to the user and stores it. A failed
// delivery is not stored and surfaces as ErrDelivery.
func (s *Service) Reply(ctx context.Context, sessionID int64, text string) (domain.SupportMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.SupportMessage{}, domain.Invalid("Message is empty")
	}
	sess, u, err := s.recipient(ctx, sessionID)
	if err != nil {
		return domain.SupportMessage{}, err
	}
	if _, err := s.bot.SendHTML(ctx, u.TgID, adminPrefix+format.Escape(text), nil); err != nil {
		logger.LogEvent(ctx, logger.SUPPORT, slog.LevelWarn, "support.reply",
			slog.String("status", "fail"),
			slog.Int64("session_id", sess.ID),
			logger.Err(err),
		)
		return domain.SupportMessage{}, fmt.Errorf("%w: %w", domain.ErrDelivery, err)
	}
	return s.repo.AddMessage(ctx, domain.SupportMessage{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Message:   text,
		IsAdmin:   true,
	})
}

// Upload is a file an operator sends into a ticket.
type Upload struct {
	Name    string
	MIME    string
	Size    int64
	Caption string
	Body    io.Reader
}

// IsImage reports whether the file goes out as a photo. SVG is sent as a document.
func (u Upload) IsImage() bool {
	mime := strings.ToLower(u.MIME)
	return strings.HasPrefix(mime, "image/") && !strings.Contains(mime, "svg")
}

// UploadResult is the stored message and whether Telegram accepted it.
type UploadResult struct {
	Message   domain.SupportMessage `json:"message"`
	Delivered bool                  `json:"delivered"`
}

// SendFile delivers an operator's file. Delivery failures are stored with a
// marker in the text instead of being returned.
func (s *Service) SendFile(ctx context.Context, sessionID int64, up Upload) (UploadResult, error) {
	if up.Size <= 0 || up.Body == nil {
		return UploadResult{}, domain.Invalid("File is empty")
	}
	if up.Size > s.limits.AdminUpload {
		return UploadResult{}, domain.Invalid(fmt.Sprintf("File is larger than %d MB", s.limits.AdminUpload>>20))
	}
	sess, u, err := s.recipient(ctx, sessionID)
	if err != nil {
		return UploadResult{}, err
	}

	caption := format.Truncate(strings.TrimSpace(up.Caption), captionLimit)
	photo := up.IsImage()
	sent, sendErr := s.bot.SendFile(ctx, u.TgID, telegram.Upload{Reader: up.Body, FileName: up.Name, MIME: up.MIME}, caption, photo)

	msg := domain.SupportMessage{SessionID: sess.ID, UserID: sess.UserID, Message: caption, IsAdmin: true}
	if sendErr != nil {
		msg.Message += undeliveredMark
		logger.LogEvent(ctx, logger.SUPPORT, slog.LevelWarn, "support.file",
			slog.String("status", "fail"),
			slog.Int64("session_id", sess.ID),
			slog.String("name", up.Name),
			logger.Err(sendErr),
		)
	}
	if photo {
		msg.HasPhoto = true
		msg.PhotoFileID = optional(sent.FileID)
	} else {
		msg.HasDocument = true
		msg.DocumentFileID = optional(sent.FileID)
		msg.DocumentName = &up.Name
		msg.DocumentMIME = &up.MIME
		msg.DocumentSize = &up.Size
	}
	stored, err := s.repo.AddMessage(ctx, msg)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{Message: stored, Delivered: sendErr == nil}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ToggleBan flips the ban flag of the ticket's user and returns the new value.
func (s *Service) ToggleBan(ctx context.Context, sessionID int64) (bool, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return false, err
	}
	u, err := s.users.Get(ctx, sess.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, domain.NotFound("User not found")
	}
	if err != nil {
		return false, err
	}
	banned := !u.Banned
	if err := s.users.SetBanned(ctx, u.TgID, banned); err != nil {
		return u.Banned, err
	}
	logger.LogEvent(ctx, logger.SUPPORT, slog.LevelInfo, "support.ban",
		slog.Int64("session_id", sess.ID),
		slog.Int64("user_id", u.TgID),
		slog.Bool("banned", banned),
	)
	return banned, nil
}
