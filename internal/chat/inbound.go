package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram/format"
	"github.com/m3rciful/claimdesk/internal/domain"
)

// Inbound is a private message from a user.
type Inbound struct {
	UserID       int64
	Text         string
	PhotoFileID  string
	DocFileID    string
	DocName      string
	DocMIME      string
	ReplyToMsgID int
}

// Outcome says what happened to an inbound message.
type Outcome int

const (
	// Routed means the message was stored on a claim chat.
	Routed Outcome = iota
	// NoChats means the user has no open claim chat.
	NoChats
	// Ambiguous means several chats are open and the message did not reply to one.
	Ambiguous
	// Unsupported means the content type is not relayed.
	Unsupported
	// ChatClosed means the message replied to a claim chat that is no longer open.
	ChatClosed
)

// Route stores an inbound message on the right claim chat. A reply to an
// operator message goes to that message's claim and nowhere else; otherwise
// the message is routed only when exactly one chat is open.
func (c *Coordinator) Route(ctx context.Context, in Inbound) (Outcome, string, error) {
	sessions, err := c.repo.ActiveByUser(ctx, in.UserID)
	if err != nil {
		return NoChats, "", err
	}
	if len(sessions) == 0 {
		return NoChats, "", nil
	}
	if in.Text == "" && in.PhotoFileID == "" && in.DocFileID == "" {
		return Unsupported, "", nil
	}

	var target *domain.ChatSession
	if in.ReplyToMsgID != 0 {
		claimID, err := c.repo.ClaimByTgMessage(ctx, in.UserID, int64(in.ReplyToMsgID))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return NoChats, "", err
		}
		for i := range sessions {
			if sessions[i].ClaimID == claimID {
				target = &sessions[i]
				break
			}
		}
		if claimID != "" && target == nil {
			logger.LogEvent(ctx, logger.CHAT, slog.LevelInfo, "chat.inbound",
				slog.String("status", "closed"),
				slog.String("claim_id", claimID),
				slog.Int64("user_id", in.UserID),
			)
			return ChatClosed, claimID, nil
		}
	}
	if target == nil {
		if len(sessions) > 1 {
			logger.LogEvent(ctx, logger.CHAT, slog.LevelInfo, "chat.inbound",
				slog.String("status", "ambiguous"),
				slog.Int64("user_id", in.UserID),
				slog.Int("sessions", len(sessions)),
			)
			return Ambiguous, "", nil
		}
		target = &sessions[0]
	}

	msg := domain.ChatMessage{
		ClaimID:   target.ClaimID,
		UserID:    in.UserID,
		Message:   in.Text,
		Delivered: true,
	}
	switch {
	case in.PhotoFileID != "":
		msg.HasPhoto = true
		msg.PhotoFileID = &in.PhotoFileID
	case in.DocFileID != "":
		msg.PhotoFileID = &in.DocFileID
		msg.FileName = format.Ptr(in.DocName)
		msg.MimeType = format.Ptr(in.DocMIME)
		msg.Message = "📎 " + in.DocName
		if in.Text != "" {
			msg.Message += "\n" + in.Text
		}
	}
	if _, err := c.repo.AddMessage(ctx, msg); err != nil {
		return NoChats, "", err
	}
	if err := c.repo.MarkUnanswered(ctx, target.ID); err != nil {
		return NoChats, "", err
	}
	logger.LogEvent(ctx, logger.CHAT, slog.LevelInfo, "chat.inbound",
		slog.String("status", "ok"),
		slog.String("claim_id", target.ClaimID),
		slog.Int64("user_id", in.UserID),
		slog.Bool("photo", msg.HasPhoto),
	)
	return Routed, target.ClaimID, nil
}
