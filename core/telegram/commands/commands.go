// Package commands describes slash commands exposed by a bot.
package commands

import tele "gopkg.in/telebot.v4"

// Command is a slash command with its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly restricts the command to the bot's admins and hides it from the menu.
	AdminOnly bool
	Hidden    bool
	// GroupAllowed lets the command run outside private chats.
	GroupAllowed bool
	// Aliases are extra texts (reply keyboard labels) that trigger the command.
	Aliases []string
}
