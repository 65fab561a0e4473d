// Package state keeps per-user conversation state for Telegram bots.
//
// A Store persists Snapshots (current step plus a small data map) under a Key;
// the Manager layers step handlers and read-modify-write helpers on top of it.
// Code that needs to rewind or inspect a conversation from outside the bot,
// such as the support desk, talks to the Store directly.
package state
