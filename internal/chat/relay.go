package chat

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/format"
	"github.com/m3rciful/claimdesk/internal/domain"
)

var hashtagRe = regexp.MustCompile(`#(\d+)`)

// GroupPost is an operator message in the operators' group.
type GroupPost struct {
	AdminID     int64
	Text        string
	Caption     string
	PhotoFileID string
	ReplyToText string
}

// RelayStatus is the result of a group relay.
type RelayStatus int

const (
	// RelayIgnored means the post is not addressed to a claim.
	RelayIgnored RelayStatus = iota
	// RelayNoSession means the claim has no open chat.
	RelayNoSession
	// RelaySent means the user received the post.
	RelaySent
	// RelayFailed means Telegram refused the delivery.
	RelayFailed
)

// ClaimTag finds the first #<claim id> in the post or in the message it replies to.
func ClaimTag(p GroupPost) string {
	for _, s := range []string{p.Text, p.Caption, p.ReplyToText} {
		if m := hashtagRe.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}

// Relay forwards a tagged group post to the claim's user.
func (c *Coordinator) Relay(ctx context.Context, p GroupPost) (RelayStatus, string, error) {
	if strings.HasPrefix(p.Text, "/") {
		return RelayIgnored, "", nil
	}
	if p.Text == "" && p.PhotoFileID == "" {
		return RelayIgnored, "", nil
	}
	claimID := ClaimTag(p)
	if claimID == "" {
		return RelayIgnored, "", nil
	}
	sess, err := c.repo.ActiveByClaim(ctx, claimID)
	if errors.Is(err, domain.ErrNotFound) {
		return RelayNoSession, claimID, nil
	}
	if err != nil {
		return RelayNoSession, claimID, err
	}

	tag := "#" + claimID
	var (
		msgID  int
		stored string
	)
	if p.PhotoFileID != "" {
		clean := strings.TrimSpace(strings.ReplaceAll(p.Caption, tag, ""))
		msgID, err = c.bot.SendPhoto(ctx, sess.UserID, telegram.Upload{FileID: p.PhotoFileID}, "🛡️ Администратор:\n"+clean)
		stored = p.Caption
		if stored == "" {
			stored = "📷 Фото"
		}
	} else {
		clean := strings.TrimSpace(strings.ReplaceAll(p.Text, tag, ""))
		msgID, err = c.bot.SendHTML(ctx, sess.UserID, adminPrefix+format.Escape(clean), nil)
		stored = p.Text
	}
	if err != nil {
		logger.LogEvent(ctx, logger.CHAT, slog.LevelWarn, "chat.relay",
			slog.String("status", "fail"),
			slog.String("claim_id", claimID),
			slog.Int64("admin_id", p.AdminID),
			logger.Err(err),
		)
		return RelayFailed, claimID, err
	}

	tgID := int64(msgID)
	msg := domain.ChatMessage{
		ClaimID:     claimID,
		UserID:      sess.UserID,
		Message:     stored,
		IsBot:       true,
		HasPhoto:    p.PhotoFileID != "",
		PhotoFileID: format.Ptr(p.PhotoFileID),
		TgMessageID: &tgID,
		Delivered:   true,
	}
	if _, err := c.repo.AddMessage(ctx, msg); err != nil {
		return RelaySent, claimID, err
	}
	if err := c.repo.MarkAnswered(ctx, claimID); err != nil {
		return RelaySent, claimID, err
	}
	logger.LogEvent(ctx, logger.CHAT, slog.LevelInfo, "chat.relay",
		slog.String("status", "ok"),
		slog.String("claim_id", claimID),
		slog.Int64("admin_id", p.AdminID),
	)
	return RelaySent, claimID, nil
}
