package middleware

import (
	"log/slog"
	"time"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Logger tags each update with the bot name and a correlation id, stores the
// derived context and logs a sampled receipt line.
func Logger(bot string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			upd := c.Update()
			var chatID, userID int64
			chat := c.Chat()
			user := c.Sender()
			if chat != nil {
				chatID = chat.ID
			}
			if user != nil {
				userID = user.ID
			}

			rid := logger.BuildRID(upd.ID, chatID, userID)
			c.Set(tghelpers.BotNameKey, bot)
			c.Set(tghelpers.RIDKey, rid)
			c.Set("update_start", time.Now())
			ctx := tghelpers.BuildContext(c)

			if !logger.ShouldSampleDebug() {
				return next(c)
			}
			attrs := []slog.Attr{slog.String("status", "ok")}
			if chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user != nil && user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			switch {
			case upd.Callback != nil:
				key, payload := callbacks.ParseCallbackData(upd.Callback)
				attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
				if payload != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
				}
			case upd.Message != nil:
				attrs = append(attrs, slog.String("kind", messageKind(upd.Message)))
				if t := c.Text(); t != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
				}
			}
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
			return next(c)
		}
	}
}

func messageKind(m *tele.Message) string {
	switch {
	case m.Photo != nil:
		return "photo"
	case m.Document != nil:
		return "document"
	case m.Video != nil:
		return "video"
	case m.Voice != nil:
		return "voice"
	case m.Audio != nil:
		return "audio"
	case m.Text != "":
		return "text"
	}
	return "other"
}
