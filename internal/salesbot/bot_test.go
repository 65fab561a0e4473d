package salesbot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/storage/mongostore"
)

const adminID int64 = 1

type memStore struct {
	mu         sync.Mutex
	users      map[int64]domain.SalesUser
	messages   []domain.SalesMessage
	products   []domain.Product
	recipients []int64
}

func newMemStore() *memStore { return &memStore{users: map[int64]domain.SalesUser{}} }

func (s *memStore) UpsertUser(_ context.Context, u domain.SalesUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.TgID] = u
	return nil
}

func (s *memStore) Recipients(context.Context) ([]int64, error) { return s.recipients, nil }

func (s *memStore) AddMessage(_ context.Context, m domain.SalesMessage) (domain.SalesMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = int64(len(s.messages) + 1)
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *memStore) AddProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	p.ProductID = int64(len(s.products) + 1)
	s.products = append(s.products, p)
	return p, nil
}

func (s *memStore) Product(_ context.Context, id int64) (domain.Product, error) {
	for _, p := range s.products {
		if p.ProductID == id {
			return p, nil
		}
	}
	return domain.Product{}, domain.NotFound("product not found")
}

func (s *memStore) Products(_ context.Context, page, size int) ([]domain.Product, int64, error) {
	from := (page - 1) * size
	if from >= len(s.products) {
		return nil, int64(len(s.products)), nil
	}
	to := min(from+size, len(s.products))
	return s.products[from:to], int64(len(s.products)), nil
}

func (s *memStore) UpdateProduct(_ context.Context, id int64, field mongostore.ProductField, value string) error {
	for i := range s.products {
		if s.products[i].ProductID != id {
			continue
		}
		switch field {
		case mongostore.ProductTitle:
			s.products[i].Title = value
		case mongostore.ProductDescription:
			s.products[i].Description = value
		case mongostore.ProductImage:
			s.products[i].ImageID = value
		}
		return nil
	}
	return domain.NotFound("product not found")
}

type fakeMessenger struct {
	mu     sync.Mutex
	texts  []string
	photos int
	edits  []string
	copies []int64
	failTo map[int64]bool
}

func (m *fakeMessenger) SendHTML(_ context.Context, _ int64, text string, _ *tele.ReplyMarkup) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return len(m.texts), nil
}

func (m *fakeMessenger) SendPhoto(context.Context, int64, telegram.Upload, string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos++
	return 900 + m.photos, nil
}

func (m *fakeMessenger) EditText(_ context.Context, _ int64, _ int, text string, _ *tele.ReplyMarkup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, text)
	return nil
}

func (m *fakeMessenger) Copy(_ context.Context, to, _ int64, _ int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo[to] {
		return 0, errors.New("bot was blocked by the user")
	}
	m.copies = append(m.copies, to)
	return 1, nil
}

func (m *fakeMessenger) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

type fixture struct {
	t     *testing.T
	tb    *tele.Bot
	bot   *Bot
	store *memStore
	msgr  *fakeMessenger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tb, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	states, err := state.NewManager("sales", state.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f := &fixture{t: t, tb: tb, store: newMemStore(), msgr: &fakeMessenger{failTo: map[int64]bool{}}}
	f.bot = New(Deps{
		Config:    coreconfig.BotConfig{Admins: []int64{adminID}},
		Mailing:   coreconfig.MailingConfig{IntervalMS: 1, ProgressEvery: 2},
		States:    states,
		Messenger: f.msgr,
		Store:     f.store,
		Username:  "shop_bot",
	})
	if err := f.bot.Register(telegram.NewRegistry()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return f
}

func (f *fixture) message(from int64, m *tele.Message) tele.Context {
	m.ID = 20
	m.Sender = &tele.User{ID: from, Username: "buyer", FirstName: "Иван"}
	m.Chat = &tele.Chat{ID: from, Type: tele.ChatPrivate}
	return f.tb.NewContext(tele.Update{ID: 1, Message: m})
}

func (f *fixture) callback(unique, data string) tele.Context {
	return f.tb.NewContext(tele.Update{ID: 2, Callback: &tele.Callback{
		Sender:  &tele.User{ID: adminID},
		Message: &tele.Message{ID: 30, Chat: &tele.Chat{ID: adminID, Type: tele.ChatPrivate}},
		Unique:  unique,
		Data:    data,
	}})
}

func (f *fixture) step(c tele.Context) {
	f.t.Helper()
	if err := f.bot.States.Handle(c); err != nil {
		f.t.Fatalf("handle: %v", err)
	}
}

func TestInboxMessage(t *testing.T) {
	cases := []struct {
		msg  *tele.Message
		kind domain.MessageKind
		text string
		ok   bool
	}{
		{&tele.Message{Text: "привет"}, domain.KindText, "привет", true},
		{&tele.Message{Text: "/start"}, "", "", false},
		{&tele.Message{Photo: &tele.Photo{File: tele.File{FileID: "p"}}, Caption: "фото"}, domain.KindPhoto, "фото", true},
		{&tele.Message{Document: &tele.Document{File: tele.File{FileID: "d"}, FileName: "a.pdf"}}, domain.KindDocument, "📎 a.pdf", true},
		{&tele.Message{Video: &tele.Video{File: tele.File{FileID: "v"}}}, domain.KindVideo, "🎥 Видео", true},
		{&tele.Message{Voice: &tele.Voice{File: tele.File{FileID: "vo"}}}, domain.KindVoice, "🎤 Голосовое сообщение", true},
		{&tele.Message{Sticker: &tele.Sticker{File: tele.File{FileID: "s"}}}, "", "", false},
	}
	for _, tc := range cases {
		got, ok := inboxMessage(tc.msg)
		if ok != tc.ok || got.Kind != tc.kind || got.Text != tc.text {
			t.Fatalf("inboxMessage(%+v) = %+v %v", tc.msg, got, ok)
		}
	}
}

func TestMessageIsLogged(t *testing.T) {
	f := newFixture(t)
	if err := f.bot.onMessage(f.message(77, &tele.Message{Text: "сколько стоит?"})); err != nil {
		t.Fatalf("onMessage: %v", err)
	}
	if len(f.store.messages) != 1 {
		t.Fatalf("stored %d messages", len(f.store.messages))
	}
	m := f.store.messages[0]
	if m.UserID != 77 || m.FromAdmin || m.Checked || m.Username != "buyer" {
		t.Fatalf("message = %+v", m)
	}
	if u := f.store.users[77]; u.FullName != "Иван" {
		t.Fatalf("user not upserted: %+v", u)
	}
}

func TestAddAndEditProduct(t *testing.T) {
	f := newFixture(t)
	if err := f.bot.onMenu(f.callback(cbMenu, menuAdd)); err != nil {
		t.Fatalf("menu: %v", err)
	}
	f.step(f.message(adminID, &tele.Message{Text: strings.Repeat("я", 101)}))
	if f.msgr.lastText() != textTitleTooLong {
		t.Fatalf("long title accepted: %q", f.msgr.lastText())
	}
	f.step(f.message(adminID, &tele.Message{Text: "Кружка"}))
	f.step(f.message(adminID, &tele.Message{Text: "Керамическая, 300 мл"}))
	f.step(f.message(adminID, &tele.Message{Text: "не фото"}))
	if f.msgr.lastText() != textNeedImage {
		t.Fatalf("text accepted as image")
	}
	f.step(f.message(adminID, &tele.Message{Photo: &tele.Photo{File: tele.File{FileID: "img1"}}}))

	if len(f.store.products) != 1 {
		t.Fatalf("products = %+v", f.store.products)
	}
	p := f.store.products[0]
	if p.Title != "Кружка" || p.Description != "Керамическая, 300 мл" || p.ImageID != "img1" {
		t.Fatalf("product = %+v", p)
	}
	if !strings.Contains(f.msgr.lastText(), "https://t.me/shop_bot?start=1") {
		t.Fatalf("deep link missing: %q", f.msgr.lastText())
	}

	if err := f.bot.onProductEdit(f.callback(cbProductEdit, "1|title")); err != nil {
		t.Fatalf("edit: %v", err)
	}
	f.step(f.message(adminID, &tele.Message{Text: "Большая кружка"}))
	if f.store.products[0].Title != "Большая кружка" {
		t.Fatalf("title not updated: %+v", f.store.products[0])
	}
	snap, _ := f.bot.States.Snapshot(context.Background(), adminID)
	if snap.State != state.StateIdle {
		t.Fatalf("state = %s", snap.State)
	}
}

func TestProductPages(t *testing.T) {
	f := newFixture(t)
	if err := f.bot.onMenu(f.callback(cbMenu, menuList)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(f.msgr.edits) != 1 || f.msgr.edits[0] != textNoProducts {
		t.Fatalf("empty catalog: %v", f.msgr.edits)
	}
	for i := 0; i < 13; i++ {
		_, _ = f.store.AddProduct(context.Background(), domain.Product{Title: "p"})
	}
	_ = f.bot.onProductsPage(f.callback(cbProductPage, "2"))
	if last := f.msgr.edits[len(f.msgr.edits)-1]; !strings.Contains(last, "Страница 2/2") {
		t.Fatalf("page header = %q", last)
	}
	if pagesOf(0) != 1 || pagesOf(12) != 1 || pagesOf(13) != 2 {
		t.Fatalf("pagesOf is off")
	}
}

func TestMailing(t *testing.T) {
	f := newFixture(t)
	f.store.recipients = []int64{10, 11, 12, 13, 14}
	f.msgr.failTo[12] = true

	res := f.bot.runMailing(context.Background(), mailing{
		adminID: adminID, fromChat: adminID, messageID: 5, progressID: 99,
		recipients: f.store.recipients,
	})
	if res.Sent != 4 || res.Failed != 1 || res.Cancelled {
		t.Fatalf("result = %+v", res)
	}
	if len(f.msgr.copies) != 4 {
		t.Fatalf("copies = %v", f.msgr.copies)
	}
	if last := f.msgr.edits[len(f.msgr.edits)-1]; !strings.Contains(last, "Рассылка завершена") {
		t.Fatalf("summary = %q", last)
	}
}

func TestMailingFlowAndStop(t *testing.T) {
	f := newFixture(t)
	if err := f.bot.onMenu(f.callback(cbMenu, menuMailing)); err != nil {
		t.Fatalf("menu: %v", err)
	}
	f.step(f.message(adminID, &tele.Message{Text: "Скидки!"}))
	if err := f.bot.Stop(context.Background(), nil); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if f.msgr.lastText() != textNoRecipients {
		t.Fatalf("empty audience: %q", f.msgr.lastText())
	}

	f.store.recipients = []int64{10, 11}
	_ = f.bot.onMenu(f.callback(cbMenu, menuMailing))
	f.step(f.message(adminID, &tele.Message{Text: "Скидки!"}))
	if err := f.bot.Stop(context.Background(), nil); err != nil {
		t.Fatalf("stop: %v", err)
	}
	f.msgr.mu.Lock()
	edits := append([]string(nil), f.msgr.edits...)
	f.msgr.mu.Unlock()
	if len(edits) == 0 || !strings.Contains(edits[len(edits)-1], "Статистика") {
		t.Fatalf("no summary after mailing: %v", edits)
	}
	if _, busy := f.bot.mailings[adminID]; busy {
		t.Fatalf("mailing slot not released")
	}
}
