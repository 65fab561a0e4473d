package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Upload is a file to send: either an existing Telegram file id or fresh bytes.
type Upload struct {
	FileID   string
	Reader   io.Reader
	FileName string
	MIME     string
}

func (u Upload) file() (tele.File, error) {
	switch {
	case u.FileID != "":
		return tele.File{FileID: u.FileID}, nil
	case u.Reader != nil:
		return tele.FromReader(u.Reader), nil
	}
	return tele.File{}, errors.New("telegram: empty upload")
}

// Messenger lets services talk to users without a tele.Context: the admin
// API, the chat coordinator and the mailing all go through it.
type Messenger struct {
	name  string
	bot   *tele.Bot
	disp  *sender.Dispatcher
	token string
}

// NewMessenger wraps a bot and its dispatcher.
func NewMessenger(name string, bot *tele.Bot, disp *sender.Dispatcher) *Messenger {
	m := &Messenger{name: name, bot: bot, disp: disp}
	if bot != nil {
		m.token = bot.Token
	}
	return m
}

// Name returns the bot name.
func (m *Messenger) Name() string { return m.name }

// SendText sends plain text and returns the Telegram message id.
func (m *Messenger) SendText(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (int, error) {
	return m.send(ctx, "sendMessage", chatID, text, &tele.SendOptions{ReplyMarkup: markup})
}

// SendHTML sends an HTML formatted message.
func (m *Messenger) SendHTML(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (int, error) {
	return m.send(ctx, "sendMessage", chatID, text, &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: markup})
}

// SendPhoto sends a photo with an optional caption.
func (m *Messenger) SendPhoto(ctx context.Context, chatID int64, photo Upload, caption string) (int, error) {
	f, err := photo.file()
	if err != nil {
		return 0, err
	}
	return m.send(ctx, "sendPhoto", chatID, &tele.Photo{File: f, Caption: caption}, &tele.SendOptions{})
}

// Sent describes an uploaded message together with the file id Telegram
// assigned to the media.
type Sent struct {
	MessageID int
	FileID    string
}

// SendFile uploads a photo or a document and reports the stored file id.
func (m *Messenger) SendFile(ctx context.Context, chatID int64, up Upload, caption string, asPhoto bool) (Sent, error) {
	if err := ctx.Err(); err != nil {
		return Sent{}, err
	}
	f, err := up.file()
	if err != nil {
		return Sent{}, err
	}
	var what any = &tele.Document{File: f, Caption: caption, FileName: up.FileName, MIME: up.MIME}
	endpoint := "sendDocument"
	if asPhoto {
		what, endpoint = &tele.Photo{File: f, Caption: caption}, "sendPhoto"
	}
	msg, err := m.bot.Send(tele.ChatID(chatID), what, &tele.SendOptions{})
	if err != nil {
		return Sent{}, m.wrap(endpoint, err)
	}
	out := Sent{MessageID: msg.ID}
	switch {
	case msg.Photo != nil:
		out.FileID = msg.Photo.FileID
	case msg.Document != nil:
		out.FileID = msg.Document.FileID
	}
	return out, nil
}

// Copy re-sends any message (text or media) from one chat to another.
func (m *Messenger) Copy(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	src := &tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: fromChatID}
	msg, err := m.bot.Copy(tele.ChatID(toChatID), src)
	if err != nil {
		return 0, m.wrap("copyMessage", err)
	}
	return msg.ID, nil
}

// EditText replaces the text of a message sent earlier.
func (m *Messenger) EditText(ctx context.Context, chatID int64, messageID int, text string, markup *tele.ReplyMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	if _, err := m.bot.Edit(msg, text, &tele.SendOptions{ReplyMarkup: markup}); err != nil {
		return m.wrap("editMessageText", err)
	}
	return nil
}

// Notify queues an HTML message on the dispatcher. Delivery failures are only logged.
func (m *Messenger) Notify(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) {
	run := func() error {
		_, err := m.SendHTML(context.WithoutCancel(ctx), chatID, text, markup)
		return err
	}
	if m.disp != nil {
		if err := m.disp.Enqueue(ctx, "notify", "sendMessage", run); err == nil {
			return
		}
	}
	if err := run(); err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "notify.fail",
			slog.String("bot", m.name),
			slog.Int64("chat_id", chatID),
			logger.Err(err),
		)
	}
}

// Download opens a Telegram file for streaming.
func (m *Messenger) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := m.bot.File(&tele.File{FileID: fileID})
	if err != nil {
		return nil, m.wrap("getFile", err)
	}
	return rc, nil
}

// IsMember reports whether the user currently belongs to the chat.
func (m *Messenger) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	member, err := m.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return false, m.wrap("getChatMember", err)
	}
	switch member.Role {
	case tele.Creator, tele.Administrator, tele.Member:
		return true, nil
	case tele.Restricted:
		return member.Member, nil
	}
	return false, nil
}

func (m *Messenger) send(ctx context.Context, endpoint string, chatID int64, what any, opts *tele.SendOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg, err := m.bot.Send(tele.ChatID(chatID), what, opts)
	if err != nil {
		return 0, m.wrap(endpoint, err)
	}
	return msg.ID, nil
}

func (m *Messenger) wrap(endpoint string, err error) error {
	return &SendError{Endpoint: endpoint, msg: logger.RedactToken(err.Error(), m.token), err: err}
}

// SendError is a Bot API failure with the token scrubbed from its text.
type SendError struct {
	Endpoint string
	msg      string
	err      error
}

func (e *SendError) Error() string { return "telegram " + e.Endpoint + ": " + e.msg }

func (e *SendError) Unwrap() error { return e.err }

// StatusCode returns the Bot API error code, if any.
func (e *SendError) StatusCode() int { return sender.StatusCode(e.err) }
