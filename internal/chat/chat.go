// Package chat coordinates claim chats between users and operators: the
// admin panel, the operators' Telegram group and the user's private chat.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/format"
	"github.com/m3rciful/claimdesk/internal/domain"
)

// Repository stores sessions and the message log.
type Repository interface {
	Start(ctx context.Context, claimID string, userID int64) (domain.ChatSession, bool, error)
	ActiveByClaim(ctx context.Context, claimID string) (domain.ChatSession, error)
	ActiveByUser(ctx context.Context, userID int64) ([]domain.ChatSession, error)
	Close(ctx context.Context, claimID string) (domain.ChatSession, error)
	MarkUnanswered(ctx context.Context, sessionID int64) error
	MarkAnswered(ctx context.Context, claimID string) error
	AddMessage(ctx context.Context, m domain.ChatMessage) (domain.ChatMessage, error)
	History(ctx context.Context, claimID string) ([]domain.ChatMessage, error)
	Message(ctx context.Context, id int64) (domain.ChatMessage, error)
	ClaimByTgMessage(ctx context.Context, userID, tgMessageID int64) (string, error)
}

// Claims resolves claims.
type Claims interface {
	Get(ctx context.Context, claimID string) (domain.Claim, error)
}

// Users resolves users.
type Users interface {
	Get(ctx context.Context, tgID int64) (domain.User, error)
}

// Support reports open support tickets.
type Support interface {
	HasOpen(ctx context.Context, userID int64) (bool, error)
}

// Messenger is the claims bot.
type Messenger interface {
	SendHTML(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (int, error)
	SendPhoto(ctx context.Context, chatID int64, photo telegram.Upload, caption string) (int, error)
	Notify(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup)
}

// Coordinator implements the chat operations.
type Coordinator struct {
	repo    Repository
	claims  Claims
	users   Users
	support Support
	bot     Messenger
	groupID int64
}

// New wires a coordinator. groupID 0 disables group notices.
func New(repo Repository, claims Claims, users Users, support Support, bot Messenger, groupID int64) *Coordinator {
	return &Coordinator{repo: repo, claims: claims, users: users, support: support, bot: bot, groupID: groupID}
}

const adminPrefix = "🛡️ <b>Администратор:</b>\n"

func (c *Coordinator) claim(ctx context.Context, claimID string) (domain.Claim, error) {
	cl, err := c.claims.Get(ctx, claimID)
	if errors.Is(err, domain.ErrNotFound) {
		return cl, domain.NotFound("Claim not found")
	}
	return cl, err
}

// Start opens the claim chat or returns the open one.
func (c *Coordinator) Start(ctx context.Context, claimID string) (domain.ChatSession, error) {
	cl, err := c.claim(ctx, claimID)
	if err != nil {
		return domain.ChatSession{}, err
	}
	return c.ensure(ctx, cl)
}

func (c *Coordinator) ensure(ctx context.Context, cl domain.Claim) (domain.ChatSession, error) {
	sess, created, err := c.repo.Start(ctx, cl.ClaimID, cl.UserID)
	if err != nil {
		return sess, fmt.Errorf("start chat %s: %w", cl.ClaimID, err)
	}
	if created {
		logger.LogEvent(ctx, logger.CHAT, slog.LevelInfo, "chat.start",
			slog.String("claim_id", cl.ClaimID),
			slog.Int64("user_id", cl.UserID),
			slog.Int64("session_id", sess.ID),
		)
		if c.groupID != 0 {
			c.bot.Notify(ctx, c.groupID, fmt.Sprintf("💬 <b>Начат чат по заявке #%s</b>\n👤 Пользователь: %d",
				format.Escape(cl.ClaimID), cl.UserID), nil)
		}
	}
	return sess, nil
}

// Close ends the claim chat and tells the user.
func (c *Coordinator) Close(ctx context.Context, claimID string) (domain.ChatSession, error) {
	sess, err := c.repo.Close(ctx, claimID)
	if errors.Is(err, domain.ErrNotFound) {
		return sess, domain.NotFound("Active chat session not found")
	}
	if err != nil {
		return sess, err
	}
	logger.LogEvent(ctx, logger.CHAT, slog.LevelInfo, "chat.close",
		slog.String("claim_id", claimID),
		slog.Int64("session_id", sess.ID),
	)
	c.bot.Notify(ctx, sess.UserID, "🔒 Чат по заявке #"+format.Escape(claimID)+" завершён.", nil)
	return sess, nil
}

// Outgoing is an operator message from the admin panel.
type Outgoing struct {
	ClaimID     string
	Text        string
	PhotoFileID string
}

// SendResult is the stored message and whether Telegram accepted it.
type SendResult struct {
	Message   domain.ChatMessage `json:"message"`
	Delivered bool               `json:"delivered"`
}

// Send delivers an operator message to the claim's user. It is refused while
// the user has an open support ticket; Telegram failures are stored, not returned.
func (c *Coordinator) Send(ctx context.Context, out Outgoing) (SendResult, error) {
	text := strings.TrimSpace(out.Text)
	if text == "" && out.PhotoFileID == "" {
		return SendResult{}, domain.Invalid("text or photo required")
	}
	cl, err := c.claim(ctx, out.ClaimID)
	if err != nil {
		return SendResult{}, err
	}
	if u, err := c.users.Get(ctx, cl.UserID); err == nil && u.Banned {
		return SendResult{}, domain.Banned("Пользователь заблокирован")
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return SendResult{}, err
	}
	open, err := c.support.HasOpen(ctx, cl.UserID)
	if err != nil {
		return SendResult{}, err
	}
	if open {
		return SendResult{}, domain.Conflict("У пользователя открыто обращение в поддержку")
	}
	if _, err := c.ensure(ctx, cl); err != nil {
		return SendResult{}, err
	}

	var msgID int
	if out.PhotoFileID != "" {
		msgID, err = c.bot.SendPhoto(ctx, cl.UserID, telegram.Upload{FileID: out.PhotoFileID}, text)
	} else {
		msgID, err = c.bot.SendHTML(ctx, cl.UserID, adminPrefix+format.Escape(text), nil)
	}
	msg := domain.ChatMessage{
		ClaimID:     cl.ClaimID,
		UserID:      cl.UserID,
		Message:     text,
		IsBot:       true,
		HasPhoto:    out.PhotoFileID != "",
		PhotoFileID: format.Ptr(out.PhotoFileID),
		Delivered:   err == nil,
	}
	if err != nil {
		logger.LogEvent(ctx, logger.CHAT, slog.LevelWarn, "chat.send",
			slog.String("status", "fail"),
			slog.String("claim_id", cl.ClaimID),
			logger.Err(err),
		)
		msg.Message += domain.UndeliveredSuffix
	} else {
		id := int64(msgID)
		msg.TgMessageID = &id
	}

	saved, err := c.repo.AddMessage(ctx, msg)
	if err != nil {
		return SendResult{}, err
	}
	if err := c.repo.MarkAnswered(ctx, cl.ClaimID); err != nil {
		return SendResult{}, err
	}
	logger.LogEvent(ctx, logger.CHAT, slog.LevelInfo, "chat.send",
		slog.String("status", "ok"),
		slog.String("claim_id", cl.ClaimID),
		slog.Bool("delivered", saved.Delivered),
	)
	return SendResult{Message: saved, Delivered: saved.Delivered}, nil
}

// History returns the claim's log in chronological order.
func (c *Coordinator) History(ctx context.Context, claimID string) ([]domain.ChatMessage, error) {
	if _, err := c.claim(ctx, claimID); err != nil {
		return nil, err
	}
	return c.repo.History(ctx, claimID)
}

// Attachment returns a message that carries a file.
func (c *Coordinator) Attachment(ctx context.Context, messageID int64) (domain.ChatMessage, error) {
	m, err := c.repo.Message(ctx, messageID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && format.Deref(m.PhotoFileID, "") == "") {
		return m, domain.NotFound("Photo not found")
	}
	return m, err
}
