// Package salesbot wires the sales bot: every user message lands in the
// operator inbox, and admins run mailings and edit the product catalog.
package salesbot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/callbacks"
	"github.com/m3rciful/claimdesk/core/telegram/commands"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"
	"github.com/m3rciful/claimdesk/core/telegram/router"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/storage/mongostore"
)

// Store is the sales database.
type Store interface {
	UpsertUser(ctx context.Context, u domain.SalesUser) error
	Recipients(ctx context.Context) ([]int64, error)
	AddMessage(ctx context.Context, m domain.SalesMessage) (domain.SalesMessage, error)
	AddProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	Product(ctx context.Context, id int64) (domain.Product, error)
	Products(ctx context.Context, page, size int) ([]domain.Product, int64, error)
	UpdateProduct(ctx context.Context, id int64, field mongostore.ProductField, value string) error
}

// Messenger sends through the sales bot.
type Messenger interface {
	SendHTML(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (int, error)
	SendPhoto(ctx context.Context, chatID int64, photo telegram.Upload, caption string) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, markup *tele.ReplyMarkup) error
	Copy(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
}

// Deps collects the bot's collaborators.
type Deps struct {
	Config    coreconfig.BotConfig
	Mailing   coreconfig.MailingConfig
	States    *state.Manager
	Messenger Messenger
	Store     Store
	// Username builds product deep links; links are omitted when empty.
	Username string
}

// Bot holds the sales bot handlers.
type Bot struct {
	Deps

	mu       sync.Mutex
	base     context.Context
	mailings map[int64]context.CancelFunc
	wg       sync.WaitGroup
}

// New builds the handlers.
func New(d Deps) *Bot {
	return &Bot{Deps: d, base: context.Background(), mailings: map[int64]context.CancelFunc{}}
}

// Start binds mailings to the runtime context so shutdown stops them.
func (b *Bot) Start(ctx context.Context, _ *telegram.Runtime) error {
	b.mu.Lock()
	b.base = ctx
	b.mu.Unlock()
	return nil
}

// Stop waits for running mailings to wind down.
func (b *Bot) Stop(context.Context, *telegram.Runtime) error {
	b.mu.Lock()
	for _, cancel := range b.mailings {
		cancel()
	}
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

// Register adds commands, callbacks and admin dialogue steps.
func (b *Bot) Register(reg *telegram.Registry) error {
	if err := reg.RegisterCommand("/start", commands.Command{Handler: b.onStart, Description: "Начать"}); err != nil {
		return err
	}
	if err := reg.RegisterCommand("/admin", commands.Command{Handler: b.onAdmin, Description: "Меню администратора", AdminOnly: true}); err != nil {
		return err
	}
	handlers := map[string]tele.HandlerFunc{
		cbMenu:        b.adminOnly(b.onMenu),
		cbProductPage: b.adminOnly(b.onProductsPage),
		cbProduct:     b.adminOnly(b.onProduct),
		cbProductEdit: b.adminOnly(b.onProductEdit),
		cbMailStop:    b.adminOnly(b.onMailStop),
		cbReaction:    b.onReaction,
	}
	for key, h := range handlers {
		if err := reg.RegisterCallback(key, h); err != nil {
			return err
		}
	}

	b.States.On(stateMailing, b.onMailingMessage)
	b.States.On(stateProductTitle, b.onProductTitle)
	b.States.On(stateProductDescription, b.onProductDescription)
	b.States.On(stateProductImage, b.onProductImage)
	b.States.On(stateEditTitle, b.onEditValue)
	b.States.On(stateEditDescription, b.onEditValue)
	b.States.On(stateEditImage, b.onEditValue)
	return nil
}

// Routes returns the telebot routes.
func (b *Bot) Routes(reg *telegram.Registry) []telegram.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{IsAdmin: b.Config.IsAdmin})
	routes = append(routes, router.CallbackRoute(reg))
	return append(routes, router.MessageRoutes(b.States, reg, router.MessageOptions{
		Endpoints: []string{tele.OnText, tele.OnPhoto, tele.OnDocument, tele.OnVideo, tele.OnAudio, tele.OnVoice},
		Private:   b.onMessage,
		IsAdmin:   b.Config.IsAdmin,
	})...)
}

func (b *Bot) adminOnly(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil || !b.Config.IsAdmin(c.Sender().ID) {
			return nil
		}
		return h(c)
	}
}

func (b *Bot) reply(ctx context.Context, c tele.Context, text string, markup *tele.ReplyMarkup) int {
	id, err := b.Messenger.SendHTML(ctx, c.Chat().ID, text, markup)
	if err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "reply.fail",
			slog.String("bot", "sales"),
			slog.Int64("chat_id", c.Chat().ID),
			logger.Err(err),
		)
	}
	return id
}

func (b *Bot) upsert(ctx context.Context, s *tele.User) {
	u := domain.SalesUser{TgID: s.ID, Username: s.Username, FullName: strings.TrimSpace(s.FirstName + " " + s.LastName)}
	if err := b.Store.UpsertUser(ctx, u); err != nil {
		logger.LogEvent(ctx, logger.MONGO, slog.LevelError, "sales.user",
			slog.String("status", "fail"),
			slog.Int64("user_id", s.ID),
			logger.Err(err),
		)
	}
}

// onStart greets the user; "/start <id>" opens a product card.
func (b *Bot) onStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	b.upsert(ctx, c.Sender())

	id, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil || id <= 0 {
		b.reply(ctx, c, textWelcome, nil)
		return nil
	}
	p, err := b.Store.Product(ctx, id)
	if err != nil {
		b.reply(ctx, c, textWelcome, nil)
		return nil
	}
	caption := productCard(p, "")
	if p.ImageID == "" {
		b.reply(ctx, c, caption, reactionMarkup(p.ProductID))
		return nil
	}
	if _, err := b.Messenger.SendPhoto(ctx, c.Chat().ID, telegram.Upload{FileID: p.ImageID}, caption); err != nil {
		return err
	}
	b.reply(ctx, c, "Подходит ли вам товар?", reactionMarkup(p.ProductID))
	return nil
}

// onReaction stores the user's answer to a product card as an inbox message.
func (b *Bot) onReaction(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	parts, err := callbacks.PayloadParts(c, "|", 2)
	if err != nil {
		return nil
	}
	answer := "Нет 👎"
	if parts[1] == "ready" {
		answer = "Готово 👍"
	}
	msg := domain.SalesMessage{
		UserID:   c.Sender().ID,
		Username: c.Sender().Username,
		Kind:     domain.KindText,
		Text:     "Товар #" + parts[0] + ": " + answer,
	}
	if _, err := b.Store.AddMessage(ctx, msg); err != nil {
		return err
	}
	b.reply(ctx, c, textReactionThanks, nil)
	return nil
}

// onMessage logs a user message for the operators.
func (b *Bot) onMessage(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	msg, ok := inboxMessage(c.Message())
	if !ok {
		return nil
	}
	msg.UserID = c.Sender().ID
	msg.Username = c.Sender().Username
	b.upsert(ctx, c.Sender())

	stored, err := b.Store.AddMessage(ctx, msg)
	if err != nil {
		return err
	}
	logger.LogEvent(ctx, logger.MAIL, slog.LevelDebug, "sales.message",
		slog.Int64("id", stored.ID),
		slog.Int64("user_id", stored.UserID),
		slog.String("kind", string(stored.Kind)),
	)
	return nil
}

// inboxMessage extracts the stored form of a user message. Commands and
// unsupported content are skipped.
func inboxMessage(m *tele.Message) (domain.SalesMessage, bool) {
	switch {
	case m.Text != "":
		if strings.HasPrefix(m.Text, "/") {
			return domain.SalesMessage{}, false
		}
		return domain.SalesMessage{Kind: domain.KindText, Text: m.Text}, true
	case m.Photo != nil:
		return domain.SalesMessage{Kind: domain.KindPhoto, Text: m.Caption, FileID: m.Photo.FileID}, true
	case m.Document != nil:
		text := m.Caption
		if text == "" {
			text = "📎 " + m.Document.FileName
		}
		return domain.SalesMessage{Kind: domain.KindDocument, Text: text, FileID: m.Document.FileID}, true
	case m.Video != nil:
		return domain.SalesMessage{Kind: domain.KindVideo, Text: orDefault(m.Caption, "🎥 Видео"), FileID: m.Video.FileID}, true
	case m.Audio != nil:
		return domain.SalesMessage{Kind: domain.KindAudio, Text: orDefault(m.Caption, "🎵 Аудио"), FileID: m.Audio.FileID}, true
	case m.Voice != nil:
		return domain.SalesMessage{Kind: domain.KindVoice, Text: "🎤 Голосовое сообщение", FileID: m.Voice.FileID}, true
	}
	return domain.SalesMessage{}, false
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (b *Bot) onAdmin(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := b.States.Clear(ctx, c.Sender().ID); err != nil {
		return err
	}
	b.reply(ctx, c, textMenu, menuMarkup())
	return nil
}

// edit replaces the text of the callback's message, falling back to a new
// message when Telegram refuses the edit.
func (b *Bot) edit(ctx context.Context, c tele.Context, text string, markup *tele.ReplyMarkup) {
	if m := c.Message(); m != nil {
		if err := b.Messenger.EditText(ctx, m.Chat.ID, m.ID, text, markup); err == nil {
			return
		}
	}
	b.reply(ctx, c, text, markup)
}

func (b *Bot) onMenu(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	switch callbacks.CallbackPayload(c) {
	case menuMailing:
		if err := b.States.Put(ctx, uid, state.Snapshot{State: stateMailing, Data: state.Data{}}); err != nil {
			return err
		}
		b.reply(ctx, c, textMailingPrompt, nil)
	case menuProducts:
		if err := b.States.Clear(ctx, uid); err != nil {
			return err
		}
		b.edit(ctx, c, textProductsMenu, productsMenuMarkup())
	case menuAdd:
		if err := b.States.Put(ctx, uid, state.Snapshot{State: stateProductTitle, Data: state.Data{}}); err != nil {
			return err
		}
		b.edit(ctx, c, textAskTitle, nil)
	case menuList:
		if err := b.States.Clear(ctx, uid); err != nil {
			return err
		}
		return b.showProducts(ctx, c, 1)
	case menuBack:
		b.edit(ctx, c, textMenu, menuMarkup())
	}
	return nil
}
