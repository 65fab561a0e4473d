package helpers

import tele "gopkg.in/telebot.v4"

// SenderID returns the Telegram id of the update author, or 0.
func SenderID(c tele.Context) int64 {
	if c == nil || c.Sender() == nil {
		return 0
	}
	return c.Sender().ID
}

// IsPrivate reports whether the update comes from a private chat.
func IsPrivate(c tele.Context) bool {
	return c != nil && c.Chat() != nil && c.Chat().Type == tele.ChatPrivate
}

