// Package broadcast delivers one message to many chats at a bounded rate.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/claimdesk/core/logger"
)

// Options controls pacing and progress reporting.
type Options struct {
	// Interval is the pause between two sends.
	Interval time.Duration
	// ProgressEvery reports progress after every N successful sends.
	ProgressEvery int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 50 * time.Millisecond
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 10
	}
	return o
}

// Result summarizes a run.
type Result struct {
	Total     int
	Sent      int
	Failed    int
	Cancelled bool
}

// SuccessRate is the share of delivered messages in percent.
func (r Result) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Sent) / float64(r.Total) * 100
}

// Summary renders the final report shown to the operator.
func (r Result) Summary() string {
	head := "✅ <b>Рассылка завершена!</b>"
	if r.Cancelled {
		head = "⏹ <b>Рассылка остановлена.</b>"
	}
	return fmt.Sprintf("%s\n\n📊 <b>Статистика:</b>\n"+
		"• Всего пользователей: %d\n"+
		"• Успешно отправлено: %d\n"+
		"• Не удалось отправить: %d\n"+
		"• Процент успеха: %.1f%%",
		head, r.Total, r.Sent, r.Failed, r.SuccessRate())
}

// SendFunc delivers the message to one chat.
type SendFunc func(ctx context.Context, chatID int64) error

// ProgressFunc receives intermediate counters. Errors are logged and ignored.
type ProgressFunc func(ctx context.Context, r Result) error

// Run sends to every recipient in order, one per tick. It stops early when
// ctx is cancelled and marks the result accordingly.
func Run(ctx context.Context, recipients []int64, send SendFunc, progress ProgressFunc, opts Options) Result {
	opts = opts.withDefaults()
	res := Result{Total: len(recipients)}
	start := time.Now()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for i, chatID := range recipients {
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}

		if err := send(ctx, chatID); err != nil {
			res.Failed++
			logger.LogEvent(ctx, logger.MAIL, slog.LevelWarn, "mailing.send",
				slog.String("status", "fail"),
				slog.Int64("chat_id", chatID),
				logger.Err(err),
			)
			continue
		}
		res.Sent++
		if progress != nil && res.Sent%opts.ProgressEvery == 0 {
			if err := progress(ctx, res); err != nil {
				logger.Debug(ctx, "mailing", "mailing.progress", logger.Err(err))
			}
		}
	}

	logger.LogEvent(ctx, logger.MAIL, slog.LevelInfo, "mailing.done",
		slog.Int("total", res.Total),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Bool("cancelled", res.Cancelled),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return res
}
