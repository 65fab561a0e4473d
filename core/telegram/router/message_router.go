package router

import (
	"context"

	tg "github.com/m3rciful/claimdesk/core/telegram"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// FSM is the part of state.Manager the router needs.
type FSM interface {
	InProgress(ctx context.Context, userID int64) bool
	Handle(c tele.Context) error
}

// MessageOptions configures message routing.
type MessageOptions struct {
	// Endpoints lists the update kinds to route; text, photo and document by default.
	Endpoints []string
	// Private handles private messages that no step or alias claimed.
	Private tele.HandlerFunc
	// Group handles messages from groups and supergroups.
	Group tele.HandlerFunc
	// IsAdmin gates aliases of admin-only commands.
	IsAdmin func(userID int64) bool
}

// MessageRoutes routes non-command messages: group chats go to Group; in
// private chats an active conversation step wins, then command aliases, then
// the Private handler.
func MessageRoutes(fsm FSM, reg *tg.Registry, opts MessageOptions) []tg.Route {
	endpoints := opts.Endpoints
	if len(endpoints) == 0 {
		endpoints = []string{tele.OnText, tele.OnPhoto, tele.OnDocument}
	}

	handler := func(c tele.Context) error {
		if c.Sender() == nil || c.Chat() == nil {
			return nil
		}
		if !tghelpers.IsPrivate(c) {
			if opts.Group == nil {
				return nil
			}
			return handleWithSummary(c, "group", func() error { return opts.Group(c) })
		}

		ctx := tghelpers.BuildContext(c)
		if fsm != nil && fsm.InProgress(ctx, c.Sender().ID) {
			return handleWithSummary(c, "fsm", func() error { return fsm.Handle(c) })
		}
		if reg != nil && c.Message() != nil && c.Message().Text != "" {
			key, cmd, ok := reg.LookupCommand(c.Message().Text)
			if ok && cmd.AdminOnly && (opts.IsAdmin == nil || !opts.IsAdmin(c.Sender().ID)) {
				ok = false
			}
			if ok && cmd.Handler != nil {
				return handleWithSummary(c, normalizeHandlerName(key), func() error { return cmd.Handler(c) })
			}
		}
		if opts.Private != nil {
			return handleWithSummary(c, "private", func() error { return opts.Private(c) })
		}
		return nil
	}

	routes := make([]tg.Route, 0, len(endpoints))
	for _, ep := range endpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: handler})
	}
	return routes
}
