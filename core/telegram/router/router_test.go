package router

import (
	"context"
	"errors"
	"fmt"
	"testing"

	tg "github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

type fakeFSM struct {
	active  bool
	handled int
}

func (f *fakeFSM) InProgress(context.Context, int64) bool { return f.active }
func (f *fakeFSM) Handle(tele.Context) error              { f.handled++; return nil }

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return b
}

func textUpdate(chatType tele.ChatType, text string) tele.Update {
	return tele.Update{ID: 1, Message: &tele.Message{
		ID:     10,
		Sender: &tele.User{ID: 42},
		Chat:   &tele.Chat{ID: 42, Type: chatType},
		Text:   text,
	}}
}

func TestMessageRoutesPrefersActiveStep(t *testing.T) {
	b := offlineBot(t)
	fsm := &fakeFSM{active: true}
	private := 0
	routes := MessageRoutes(fsm, tg.NewRegistry(), MessageOptions{
		Private: func(tele.Context) error { private++; return nil },
	})
	if len(routes) != 3 {
		t.Fatalf("routes = %d, want 3", len(routes))
	}
	if err := routes[0].Handler(b.NewContext(textUpdate(tele.ChatPrivate, "1234"))); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if fsm.handled != 1 || private != 0 {
		t.Fatalf("fsm=%d private=%d", fsm.handled, private)
	}

	fsm.active = false
	_ = routes[0].Handler(b.NewContext(textUpdate(tele.ChatPrivate, "привет")))
	if private != 1 {
		t.Fatalf("idle user must reach the private handler")
	}
}

func TestMessageRoutesGroup(t *testing.T) {
	b := offlineBot(t)
	group, private := 0, 0
	routes := MessageRoutes(nil, nil, MessageOptions{
		Group:   func(tele.Context) error { group++; return nil },
		Private: func(tele.Context) error { private++; return nil },
	})
	_ = routes[0].Handler(b.NewContext(textUpdate(tele.ChatSuperGroup, "#000001 готово")))
	if group != 1 || private != 0 {
		t.Fatalf("group=%d private=%d", group, private)
	}
}

func TestMessageRoutesAdminAlias(t *testing.T) {
	b := offlineBot(t)
	reg := tg.NewRegistry()
	menu := 0
	_ = reg.RegisterCommand("/admin", commands.Command{
		Handler:     func(tele.Context) error { menu++; return nil },
		Description: "Меню",
		AdminOnly:   true,
		Aliases:     []string{"Админка"},
	})
	private := 0
	isAdmin := false
	routes := MessageRoutes(nil, reg, MessageOptions{
		Private: func(tele.Context) error { private++; return nil },
		IsAdmin: func(int64) bool { return isAdmin },
	})

	_ = routes[0].Handler(b.NewContext(textUpdate(tele.ChatPrivate, "Админка")))
	if menu != 0 || private != 1 {
		t.Fatalf("non-admin reached admin alias: menu=%d private=%d", menu, private)
	}
	isAdmin = true
	_ = routes[0].Handler(b.NewContext(textUpdate(tele.ChatPrivate, "Админка")))
	if menu != 1 {
		t.Fatalf("admin alias not dispatched")
	}
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "claim not found" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestDeriveErrorCode(t *testing.T) {
	if got := deriveErrorCode(fmt.Errorf("wrap: %w", codedErr{})); got != "CLAIM_NOT_FOUND" {
		t.Fatalf("coded = %q", got)
	}
	if got := deriveErrorCode(fmt.Errorf("wrap: %w", &plainErr{})); got != "PLAINERR" {
		t.Fatalf("plain = %q", got)
	}
	if got := deriveErrorCode(errors.New("x")); got != "ERRORSTRING" {
		t.Fatalf("errors.New = %q", got)
	}
}

func TestNormalizeHandlerName(t *testing.T) {
	if got := normalizeHandlerName("/Start now"); got != "start_now" {
		t.Fatalf("normalize = %q", got)
	}
	if got := normalizeHandlerName(" "); got != "unknown" {
		t.Fatalf("empty = %q", got)
	}
}
