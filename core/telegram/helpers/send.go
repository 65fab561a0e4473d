package helpers

import (
	"errors"
	"log/slog"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const dispatcherKey = "tg_dispatcher"

// BindDispatcher makes d the asynchronous sender for replies in this update.
func BindDispatcher(c tele.Context, d *sender.Dispatcher) {
	if c == nil || d == nil {
		return
	}
	c.Set(dispatcherKey, d)
}

func dispatcherFrom(c tele.Context) *sender.Dispatcher {
	d, _ := c.Get(dispatcherKey).(*sender.Dispatcher)
	return d
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := dispatcherFrom(c)
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				logger.Err(err),
			)
			return run()
		}
		return err
	}
	return nil
}

// SendText replies with plain text through the bot's dispatcher.
func SendText(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{}
	if len(markup) > 0 && markup[0] != nil {
		opts.ReplyMarkup = markup[0]
	}
	return sendAsync(c, "send.text", "sendMessage", func() error {
		return c.Send(text, opts)
	})
}
