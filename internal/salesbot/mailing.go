package salesbot

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/logger"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/broadcast"
)

const (
	stateMailing            state.State = "sales:mailing_message"
	stateProductTitle       state.State = "sales:product_title"
	stateProductDescription state.State = "sales:product_description"
	stateProductImage       state.State = "sales:product_image"
	stateEditTitle          state.State = "sales:edit_title"
	stateEditDescription    state.State = "sales:edit_description"
	stateEditImage          state.State = "sales:edit_image"
)

// mailing is one prepared broadcast: the admin's message is copied to every
// recipient and progress is shown by editing a status message.
type mailing struct {
	adminID    int64
	fromChat   int64
	messageID  int
	progressID int
	recipients []int64
}

// onMailingMessage takes the admin's next message as the mailing content.
func (b *Bot) onMailingMessage(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	if err := b.States.Clear(ctx, uid); err != nil {
		return err
	}

	recipients, err := b.Store.Recipients(ctx)
	if err != nil {
		logger.LogEvent(ctx, logger.MAIL, slog.LevelError, "mailing.recipients", logger.Err(err))
		b.reply(ctx, c, textRecipientsError, nil)
		return nil
	}
	if len(recipients) == 0 {
		b.reply(ctx, c, textNoRecipients, nil)
		return nil
	}

	mctx, ok := b.claimMailing(uid)
	if !ok {
		b.reply(ctx, c, textMailingBusy, nil)
		return nil
	}
	m := mailing{
		adminID:    uid,
		fromChat:   c.Chat().ID,
		messageID:  c.Message().ID,
		recipients: recipients,
	}
	m.progressID = b.reply(ctx, c, "📤 Начинаю рассылку... 0/"+strconv.Itoa(len(recipients)), mailStopMarkup())

	logger.LogEvent(ctx, logger.MAIL, slog.LevelInfo, "mailing.start",
		slog.Int64("admin_id", uid),
		slog.Int("recipients", len(recipients)),
	)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.releaseMailing(uid)
		b.runMailing(mctx, m)
	}()
	return nil
}

// claimMailing reserves the single mailing slot of an admin.
func (b *Bot) claimMailing(adminID int64) (context.Context, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.mailings[adminID]; busy {
		return nil, false
	}
	ctx, cancel := context.WithCancel(b.base)
	b.mailings[adminID] = cancel
	return ctx, true
}

func (b *Bot) releaseMailing(adminID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.mailings[adminID]; ok {
		cancel()
		delete(b.mailings, adminID)
	}
}

func (b *Bot) runMailing(ctx context.Context, m mailing) broadcast.Result {
	send := func(ctx context.Context, chatID int64) error {
		_, err := b.Messenger.Copy(ctx, chatID, m.fromChat, m.messageID)
		return err
	}
	progress := func(ctx context.Context, r broadcast.Result) error {
		if m.progressID == 0 {
			return nil
		}
		return b.Messenger.EditText(ctx, m.adminID, m.progressID, progressText(r.Sent, r.Total), mailStopMarkup())
	}
	res := broadcast.Run(ctx, m.recipients, send, progress, broadcast.Options{
		Interval:      time.Duration(b.Mailing.IntervalMS) * time.Millisecond,
		ProgressEvery: b.Mailing.ProgressEvery,
	})

	// The summary goes out even when the mailing was stopped.
	out := context.WithoutCancel(ctx)
	if m.progressID != 0 {
		if err := b.Messenger.EditText(out, m.adminID, m.progressID, res.Summary(), nil); err == nil {
			return res
		}
	}
	if _, err := b.Messenger.SendHTML(out, m.adminID, res.Summary(), nil); err != nil {
		logger.LogEvent(out, logger.MAIL, slog.LevelWarn, "mailing.summary", logger.Err(err))
	}
	return res
}

func (b *Bot) onMailStop(c tele.Context) error {
	b.mu.Lock()
	cancel, ok := b.mailings[c.Sender().ID]
	b.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}
