package claimsbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/telegram/format"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"
	"github.com/m3rciful/claimdesk/internal/claimsbot/ui"
	"github.com/m3rciful/claimdesk/internal/support"
)

func (b *Bot) onHelp(c tele.Context) error {
	if !tghelpers.IsPrivate(c) {
		return nil
	}
	return b.openSupport(tghelpers.BuildContext(c), c)
}

func (b *Bot) onHelpCallback(c tele.Context) error {
	return b.openSupport(tghelpers.BuildContext(c), c)
}

func (b *Bot) openSupport(ctx context.Context, c tele.Context) error {
	if _, ok, err := b.register(ctx, c); err != nil || !ok {
		return err
	}
	_, created, err := b.Support.Open(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	text := ui.SupportPrompt
	if !created {
		text = ui.SupportInWork
	}
	_, _ = b.Messenger.SendHTML(ctx, c.Sender().ID, text, nil)
	return nil
}

func (b *Bot) onSupportMessage(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	m := c.Message()
	in := support.Incoming{UserID: c.Sender().ID, Text: m.Text}

	var confirm []string
	switch {
	case m.Photo != nil:
		in.PhotoFileID = m.Photo.FileID
		in.Text = m.Caption
		confirm = append(confirm, ui.SupportPhotoOK)
	case m.Document != nil:
		doc := &support.Document{
			FileID: m.Document.FileID,
			Name:   m.Document.FileName,
			MIME:   m.Document.MIME,
			Size:   m.Document.FileSize,
		}
		if doc.Name == "" {
			doc.Name = "безымянный"
		}
		if doc.MIME == "" {
			doc.MIME = "application/octet-stream"
		}
		in.Document = doc
		in.Text = m.Caption
		confirm = append(confirm, ui.SupportDocument(format.Escape(doc.Name), doc.Size))
	case strings.TrimSpace(m.Text) == "":
		_, _ = b.reply(ctx, c, ui.SupportUnsupported, nil)
		return nil
	}

	_, err := b.Support.Submit(ctx, in)
	switch {
	case errors.Is(err, support.ErrTooLarge):
		_, _ = b.reply(ctx, c, fmt.Sprintf(ui.SupportTooLarge, b.Support.Limits().UserDocument>>20), nil)
		return nil
	case errors.Is(err, support.ErrEmpty):
		_, _ = b.reply(ctx, c, ui.SupportUnsupported, nil)
		return nil
	case err != nil:
		return err
	}

	if len(confirm) == 0 {
		confirm = append(confirm, ui.SupportSent)
	}
	confirm = append(confirm, ui.SupportReplySoon)
	_, _ = b.reply(ctx, c, strings.Join(confirm, "\n"), nil)
	return nil
}
