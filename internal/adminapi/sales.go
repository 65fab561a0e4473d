package adminapi

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram/format"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/storage/mongostore"
)

type salesBanRequest struct {
	Banned bool `json:"banned"`
}

func (s *Server) listSalesChats(c fiber.Ctx) error {
	f := mongostore.ChatFilter{
		Username: strings.TrimPrefix(strings.TrimSpace(c.Query("username")), "@"),
		PageSize: mongostore.ChatPageSize,
	}
	var err error
	if f.DateFrom, f.DateTo, err = dateRange(c); err != nil {
		return err
	}
	if f.HasUnread, err = queryBool(c, "has_unread"); err != nil {
		return err
	}
	if f.Page, err = queryInt(c, "page", 1); err != nil {
		return err
	}
	if f.Page < 1 {
		f.Page = 1
	}
	chats, total, err := s.deps.Sales.Chats(c.Context(), f)
	if err != nil {
		return err
	}
	if chats == nil {
		chats = []domain.SalesChat{}
	}
	return c.JSON(fiber.Map{"items": chats, "total": total, "page": f.Page, "page_size": f.PageSize})
}

// salesHistory returns the conversation and marks the user's messages read.
func (s *Server) salesHistory(c fiber.Ctx) error {
	uid, err := paramInt64(c, "uid")
	if err != nil {
		return err
	}
	msgs, err := s.deps.Sales.History(c.Context(), uid)
	if err != nil {
		return err
	}
	if _, err := s.deps.Sales.MarkChecked(c.Context(), uid); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user_id": uid, "messages": msgs})
}

// salesSend replies through the sales bot. A failed delivery is still logged
// in the conversation, marked as not delivered.
func (s *Server) salesSend(c fiber.Ctx) error {
	uid, err := paramInt64(c, "uid")
	if err != nil {
		return err
	}
	var req replyRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.Invalid("Message is empty")
	}
	if s.deps.SalesBot == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Sales bot is not configured")
	}
	ctx := c.Context()
	u, err := s.deps.Sales.User(ctx, uid)
	if err != nil {
		return err
	}
	if u.Banned {
		return domain.Banned("Пользователь заблокирован")
	}

	msgID, sendErr := s.deps.SalesBot.SendHTML(ctx, uid, format.Escape(text), nil)
	msg := domain.SalesMessage{
		UserID:    uid,
		Username:  u.Username,
		Kind:      domain.KindText,
		Text:      text,
		FromAdmin: true,
		Checked:   true,
		Delivered: sendErr == nil,
		TgMsgID:   msgID,
	}
	if sendErr != nil {
		msg.Text += domain.UndeliveredSuffix
		logger.LogEvent(ctx, logger.MAIL, slog.LevelWarn, "sales.reply",
			slog.String("status", "fail"),
			slog.Int64("user_id", uid),
			logger.Err(sendErr),
		)
	}
	stored, err := s.deps.Sales.AddMessage(ctx, msg)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": stored, "delivered": stored.Delivered})
}

func (s *Server) salesBan(c fiber.Ctx) error {
	uid, err := paramInt64(c, "uid")
	if err != nil {
		return err
	}
	var req salesBanRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if err := s.deps.Sales.SetBanned(c.Context(), uid, req.Banned); err != nil {
		return err
	}
	logger.LogEvent(c.Context(), logger.MAIL, slog.LevelInfo, "sales.ban",
		slog.Int64("user_id", uid),
		slog.Bool("banned", req.Banned),
	)
	return c.JSON(fiber.Map{"user_id": uid, "banned": req.Banned})
}
