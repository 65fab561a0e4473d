package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/claimdesk/core/logger"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Recover turns handler panics into errors so one bad update cannot stop the poller.
func Recover(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelError, "tg.panic",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("telegram handler panic: %v", r)
			}
		}()
		return next(c)
	}
}
