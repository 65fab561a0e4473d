package router

import (
	"context"
	"log/slog"

	"github.com/m3rciful/claimdesk/core/logger"
	tg "github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures admin checks for commands.
type CommandRouteOptions struct {
	IsAdmin       func(userID int64) bool
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes turns registered commands into routes. Commands run in private
// chats only unless GroupAllowed is set.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	admin := middleware.AdminOnly(middleware.AdminOptions{
		IsAdmin:  opts.IsAdmin,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for name, def := range cmds {
		name, def := name, def
		h := func(c tele.Context) error {
			return handleWithSummary(c, normalizeHandlerName(name), func() error { return def.Handler(c) })
		}
		if def.AdminOnly {
			h = admin(h)
		}
		if !def.GroupAllowed {
			h = middleware.PrivateOnly(h)
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
	}

	logger.LogEvent(context.Background(), logger.TWire, slog.LevelInfo, "tg.wire",
		slog.String("status", "ok"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
