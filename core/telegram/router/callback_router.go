package router

import (
	"log/slog"

	tg "github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute dispatches every inline button press through the registry.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key, _ := callbacks.ParseCallbackData(c.Callback())
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		cbHandler, ok := reg.GetCallback(key)
		if !ok {
			extras = append(extras, slog.String("reason", "not_found"))
			return handleWithSummary(c, name, func() error {
				if fb := reg.CallbackNotFound(); fb != nil {
					return fb(c)
				}
				return c.Respond()
			}, extras...)
		}
		return handleWithSummary(c, name, func() error {
			err := cbHandler(c)
			_ = c.Respond()
			return err
		}, extras...)
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
