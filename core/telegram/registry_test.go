package telegram

import (
	"testing"

	"github.com/m3rciful/claimdesk/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Начать"}); err != nil {
		t.Fatalf("RegisterCommand: %v", err)
	}
	if err := reg.RegisterCommand("/reg", commands.Command{Handler: noop, Description: "Панель", AdminOnly: true}); err != nil {
		t.Fatalf("RegisterCommand: %v", err)
	}
	if err := reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "dup"}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := reg.RegisterCommand("help", commands.Command{Handler: noop, Description: "x"}); err == nil {
		t.Fatalf("expected slash prefix error")
	}

	visible := reg.ListCommands(true)
	if len(visible) != 1 || visible[0].Text != "start" {
		t.Fatalf("visible commands = %+v", visible)
	}
	if all := reg.ListCommands(false); len(all) != 2 {
		t.Fatalf("all commands = %+v", all)
	}
}

func TestRegistryLookupAlias(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterCommand("/admin", commands.Command{Handler: noop, Description: "Меню", Aliases: []string{"⚙️ Админка"}})

	if key, _, ok := reg.LookupCommand("/admin@promo_bot now"); !ok || key != "/admin" {
		t.Fatalf("lookup by command failed: %q %v", key, ok)
	}
	if _, _, ok := reg.LookupCommand("admin"); ok {
		t.Fatalf("plain text must not trigger a command")
	}
	if key, _, ok := reg.LookupCommand("⚙️ Админка"); !ok || key != "/admin" {
		t.Fatalf("lookup by alias failed: %q %v", key, ok)
	}
	if _, _, ok := reg.LookupCommand("привет"); ok {
		t.Fatalf("unexpected match")
	}
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallback("pay_card", noop); err != nil {
		t.Fatalf("RegisterCallback: %v", err)
	}
	if err := reg.RegisterCallback("pay_card", noop); err == nil {
		t.Fatalf("expected duplicate callback error")
	}
	if _, ok := reg.GetCallback("pay_card"); !ok {
		t.Fatalf("callback not found")
	}
	if got := reg.ListCallbacks(); len(got) != 1 || got[0] != "pay_card" {
		t.Fatalf("ListCallbacks = %v", got)
	}
}
