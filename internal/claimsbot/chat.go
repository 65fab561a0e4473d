package claimsbot

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/telegram/format"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"
	"github.com/m3rciful/claimdesk/internal/chat"
	"github.com/m3rciful/claimdesk/internal/claimsbot/ui"
)

// messageEndpoints are the update kinds routed to dialogue steps and chats.
// Kinds that no step accepts still reach a handler so the user gets a hint.
var messageEndpoints = []string{
	tele.OnText, tele.OnPhoto, tele.OnDocument,
	tele.OnVoice, tele.OnVideo, tele.OnAudio,
	tele.OnSticker, tele.OnAnimation, tele.OnVideoNote,
}

// onPrivate handles private messages outside any dialogue step: they belong
// to claim chats opened by operators.
func (b *Bot) onPrivate(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	m := c.Message()
	in := chat.Inbound{UserID: c.Sender().ID, Text: m.Text}
	switch {
	case m.Photo != nil:
		in.PhotoFileID = m.Photo.FileID
		in.Text = m.Caption
	case m.Document != nil:
		in.DocFileID = m.Document.FileID
		in.DocName = m.Document.FileName
		in.DocMIME = m.Document.MIME
		in.Text = m.Caption
	}
	if m.ReplyTo != nil {
		in.ReplyToMsgID = m.ReplyTo.ID
	}

	outcome, _, err := b.Chats.Route(ctx, in)
	if err != nil {
		return err
	}
	switch outcome {
	case chat.NoChats:
		_, _ = b.reply(ctx, c, ui.NoChats, nil)
	case chat.Unsupported:
		_, _ = b.reply(ctx, c, ui.ChatUnsupported, nil)
	case chat.Ambiguous:
		_, _ = b.reply(ctx, c, ui.ChatAmbiguous, nil)
	case chat.ChatClosed:
		_, _ = b.reply(ctx, c, ui.ChatClosed, nil)
	}
	return nil
}

// onGroup relays operator posts tagged with #<claim id> from the operators'
// group to the claim's user.
func (b *Bot) onGroup(c tele.Context) error {
	if b.Campaign.GroupID == 0 || c.Chat().ID != b.Campaign.GroupID {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	m := c.Message()
	post := chat.GroupPost{AdminID: c.Sender().ID, Text: m.Text, Caption: m.Caption}
	if m.Photo != nil {
		post.PhotoFileID = m.Photo.FileID
	}
	if m.ReplyTo != nil {
		post.ReplyToText = m.ReplyTo.Text
		if post.ReplyToText == "" {
			post.ReplyToText = m.ReplyTo.Caption
		}
	}

	status, _, err := b.Chats.Relay(ctx, post)
	switch status {
	case chat.RelayNoSession:
		if err != nil {
			return err
		}
		_, _ = b.reply(ctx, c, ui.RelayNoSession, nil)
	case chat.RelaySent:
		_, _ = b.reply(ctx, c, ui.RelaySent, nil)
		return err
	case chat.RelayFailed:
		reason := "delivery failed"
		if err != nil {
			reason = err.Error()
		}
		_, _ = b.reply(ctx, c, fmt.Sprintf(ui.RelayFailedFmt, format.Escape(reason)), nil)
	}
	return nil
}
