// Package claimsbot wires the claims bot: the registration dialogue, support
// tickets, claim chat relay and panel account registration for admins.
package claimsbot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/commands"
	"github.com/m3rciful/claimdesk/core/telegram/format"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"
	"github.com/m3rciful/claimdesk/core/telegram/router"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/chat"
	"github.com/m3rciful/claimdesk/internal/claimsbot/ui"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/support"
)

// Messenger is how handlers talk back. Replies carry their message id so
// the dialogue can edit them later.
type Messenger interface {
	SendHTML(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, markup *tele.ReplyMarkup) error
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
}

// Users stores bot users.
type Users interface {
	Upsert(ctx context.Context, u domain.User) (domain.User, error)
	Get(ctx context.Context, tgID int64) (domain.User, error)
}

// Codes is the one-time code pool.
type Codes interface {
	Consume(ctx context.Context, code string) (bool, error)
}

// Claims opens and completes claims.
type Claims interface {
	Start(ctx context.Context, userID int64, code string) (domain.Claim, error)
	Finalize(ctx context.Context, sub domain.Submission) (domain.Claim, error)
}

// Support opens tickets and stores user messages.
type Support interface {
	Open(ctx context.Context, userID int64) (domain.SupportSession, bool, error)
	Submit(ctx context.Context, in support.Incoming) (domain.SupportMessage, error)
	Limits() support.Limits
}

// Chats routes private messages and group posts to claim chats.
type Chats interface {
	Route(ctx context.Context, in chat.Inbound) (chat.Outcome, string, error)
	Relay(ctx context.Context, p chat.GroupPost) (chat.RelayStatus, string, error)
}

// Accounts manages admin panel credentials.
type Accounts interface {
	Account(ctx context.Context, tgID int64) (domain.Administrator, error)
	Register(ctx context.Context, tgID int64, login, password string) (domain.Administrator, error)
}

// Deps collects the bot's collaborators.
type Deps struct {
	Config    coreconfig.BotConfig
	Campaign  coreconfig.CampaignConfig
	States    *state.Manager
	Messenger Messenger
	Users     Users
	Codes     Codes
	Claims    Claims
	Support   Support
	Chats     Chats
	Accounts  Accounts
}

// Bot holds the claims bot handlers.
type Bot struct {
	Deps
}

// New builds the handlers. Call Register before Routes.
func New(d Deps) *Bot {
	if strings.TrimSpace(d.Campaign.TestCode) == "" {
		d.Campaign.TestCode = "test"
	}
	return &Bot{Deps: d}
}

// Register adds commands, callbacks and dialogue steps.
func (b *Bot) Register(reg *telegram.Registry) error {
	cmds := map[string]commands.Command{
		"/start": {Handler: b.onStart, Description: "Начать регистрацию заявки"},
		"/help":  {Handler: b.onHelp, Description: "Написать в поддержку"},
		"/reg":   {Handler: b.onReg, Description: "Доступ к админ-панели", AdminOnly: true},
	}
	for name, cmd := range cmds {
		if err := reg.RegisterCommand(name, cmd); err != nil {
			return err
		}
	}
	if err := reg.RegisterCallback(ui.CallbackReg, b.onRegCallback); err != nil {
		return err
	}
	if err := reg.RegisterCallback(ui.CallbackHelp, b.onHelpCallback); err != nil {
		return err
	}
	reg.SetCallbackNotFound(func(c tele.Context) error { return b.alert(c, ui.ButtonStale) })

	b.States.On(domain.StateWaitingForCode, b.onCode)
	b.States.On(domain.StateWaitingForScreenshot, b.onScreenshot)
	b.States.On(domain.StateWaitingForPhoneOrCard, b.onScreenshot)
	b.States.On(domain.StateWaitingForPhoneNumber, b.onPhone)
	b.States.On(domain.StateWaitingForBank, b.onBank)
	b.States.On(domain.StateWaitingForCardNumber, b.onCard)
	b.States.On(domain.StateSupportWaitingForMessage, b.onSupportMessage)
	b.States.On(stateRegLogin, b.onRegLogin)
	b.States.On(stateRegPassword, b.onRegPassword)
	return nil
}

// Routes returns the telebot routes for commands, buttons and messages.
func (b *Bot) Routes(reg *telegram.Registry) []telegram.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{IsAdmin: b.Config.IsAdmin})
	routes = append(routes, router.CallbackRoute(reg))
	return append(routes, router.MessageRoutes(b.States, reg, router.MessageOptions{
		Endpoints: messageEndpoints,
		Private:   b.onPrivate,
		Group:     b.onGroup,
		IsAdmin:   b.Config.IsAdmin,
	})...)
}

// OnRateLimited answers a user whose update was dropped by the rate limit.
func (b *Bot) OnRateLimited(c tele.Context) error {
	if !tghelpers.IsPrivate(c) {
		return nil
	}
	return tghelpers.SendText(c, ui.SlowDown)
}

// BanCheck drops private updates from banned users.
func (b *Bot) BanCheck(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil || !tghelpers.IsPrivate(c) {
			return next(c)
		}
		ctx := tghelpers.BuildContext(c)
		u, err := b.Users.Get(ctx, c.Sender().ID)
		if err == nil && u.Banned {
			logger.Debug(ctx, "tg", "update.banned")
			return nil
		}
		return next(c)
	}
}

// reply sends an HTML message to the sender's private chat.
func (b *Bot) reply(ctx context.Context, c tele.Context, text string, markup *tele.ReplyMarkup) (int, error) {
	id, err := b.Messenger.SendHTML(ctx, c.Chat().ID, text, markup)
	if err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "reply.fail",
			slog.Int64("chat_id", c.Chat().ID),
			logger.Err(err),
		)
	}
	return id, err
}

// register upserts the sender. The second result is false for banned users.
func (b *Bot) register(ctx context.Context, c tele.Context) (domain.User, bool, error) {
	s := c.Sender()
	u := domain.User{
		TgID:     s.ID,
		Username: format.Ptr(s.Username),
		FullName: strings.TrimSpace(s.FirstName + " " + s.LastName),
		Role:     domain.RoleUser,
	}
	if b.Config.IsAdmin(s.ID) {
		u.Role = domain.RoleAdmin
	}
	u, err := b.Users.Upsert(ctx, u)
	if err != nil {
		return u, false, err
	}
	return u, !u.Banned, nil
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
