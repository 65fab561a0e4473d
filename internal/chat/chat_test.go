package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/internal/domain"
)

type memRepo struct {
	mu       sync.Mutex
	nextID   int64
	sessions []domain.ChatSession
	messages []domain.ChatMessage
}

func (r *memRepo) Start(_ context.Context, claimID string, userID int64) (domain.ChatSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ClaimID == claimID && s.IsActive {
			return s, false, nil
		}
	}
	r.nextID++
	s := domain.ChatSession{ID: r.nextID, ClaimID: claimID, UserID: userID, IsActive: true}
	r.sessions = append(r.sessions, s)
	return s, true, nil
}

func (r *memRepo) ActiveByClaim(_ context.Context, claimID string) (domain.ChatSession, error) {
	for _, s := range r.sessions {
		if s.ClaimID == claimID && s.IsActive {
			return s, nil
		}
	}
	return domain.ChatSession{}, domain.ErrNotFound
}

func (r *memRepo) ActiveByUser(_ context.Context, userID int64) ([]domain.ChatSession, error) {
	out := []domain.ChatSession{}
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) Close(_ context.Context, claimID string) (domain.ChatSession, error) {
	for i, s := range r.sessions {
		if s.ClaimID == claimID && s.IsActive {
			r.sessions[i].IsActive = false
			return r.sessions[i], nil
		}
	}
	return domain.ChatSession{}, domain.ErrNotFound
}

func (r *memRepo) MarkUnanswered(_ context.Context, id int64) error {
	for i := range r.sessions {
		if r.sessions[i].ID == id {
			r.sessions[i].HasUnanswered = true
		}
	}
	return nil
}

func (r *memRepo) MarkAnswered(_ context.Context, claimID string) error {
	for i := range r.sessions {
		if r.sessions[i].ClaimID == claimID && r.sessions[i].IsActive {
			r.sessions[i].HasUnanswered = false
		}
	}
	return nil
}

func (r *memRepo) AddMessage(_ context.Context, m domain.ChatMessage) (domain.ChatMessage, error) {
	m.ID = int64(len(r.messages) + 1)
	r.messages = append(r.messages, m)
	return m, nil
}

func (r *memRepo) History(_ context.Context, claimID string) ([]domain.ChatMessage, error) {
	out := []domain.ChatMessage{}
	for _, m := range r.messages {
		if m.ClaimID == claimID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) Message(_ context.Context, id int64) (domain.ChatMessage, error) {
	for _, m := range r.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.ChatMessage{}, domain.ErrNotFound
}

func (r *memRepo) ClaimByTgMessage(_ context.Context, userID, tgID int64) (string, error) {
	for _, m := range r.messages {
		if m.UserID == userID && m.IsBot && m.TgMessageID != nil && *m.TgMessageID == tgID {
			return m.ClaimID, nil
		}
	}
	return "", domain.ErrNotFound
}

type claimMap map[string]domain.Claim

func (c claimMap) Get(_ context.Context, id string) (domain.Claim, error) {
	cl, ok := c[id]
	if !ok {
		return cl, domain.ErrNotFound
	}
	return cl, nil
}

type userMap map[int64]domain.User

func (u userMap) Get(_ context.Context, id int64) (domain.User, error) {
	us, ok := u[id]
	if !ok {
		return us, domain.ErrNotFound
	}
	return us, nil
}

type supportSet map[int64]bool

func (s supportSet) HasOpen(_ context.Context, id int64) (bool, error) { return s[id], nil }

type sent struct {
	chatID int64
	text   string
	photo  string
}

type fakeBot struct {
	nextID  int
	fail    error
	sent    []sent
	notices []sent
}

func (b *fakeBot) SendHTML(_ context.Context, chatID int64, text string, _ *tele.ReplyMarkup) (int, error) {
	if b.fail != nil {
		return 0, b.fail
	}
	b.nextID++
	b.sent = append(b.sent, sent{chatID: chatID, text: text})
	return b.nextID, nil
}

func (b *fakeBot) SendPhoto(_ context.Context, chatID int64, p telegram.Upload, caption string) (int, error) {
	if b.fail != nil {
		return 0, b.fail
	}
	b.nextID++
	b.sent = append(b.sent, sent{chatID: chatID, text: caption, photo: p.FileID})
	return b.nextID, nil
}

func (b *fakeBot) Notify(_ context.Context, chatID int64, text string, _ *tele.ReplyMarkup) {
	b.notices = append(b.notices, sent{chatID: chatID, text: text})
}

type fixture struct {
	c       *Coordinator
	repo    *memRepo
	bot     *fakeBot
	users   userMap
	support supportSet
}

func newFixture() fixture {
	f := fixture{
		repo:    &memRepo{},
		bot:     &fakeBot{},
		users:   userMap{10: {TgID: 10}, 20: {TgID: 20, Banned: true}},
		support: supportSet{},
	}
	claims := claimMap{
		"000001": {ClaimID: "000001", UserID: 10},
		"000002": {ClaimID: "000002", UserID: 10},
		"000003": {ClaimID: "000003", UserID: 20},
	}
	f.c = New(f.repo, claims, f.users, f.support, f.bot, -100)
	return f
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, err := f.c.Start(ctx, "000001")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	b, _ := f.c.Start(ctx, "000001")
	if a.ID != b.ID || len(f.repo.sessions) != 1 {
		t.Fatalf("second start must reuse the session")
	}
	if len(f.bot.notices) != 1 || f.bot.notices[0].chatID != -100 {
		t.Fatalf("group must be told once: %+v", f.bot.notices)
	}
	if _, err := f.c.Start(ctx, "404404"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown claim must be not found, got %v", err)
	}
}

func TestCloseNotifiesUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.c.Close(ctx, "000001"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("closing without session must be not found")
	}
	_, _ = f.c.Start(ctx, "000001")
	if _, err := f.c.Close(ctx, "000001"); err != nil {
		t.Fatalf("close: %v", err)
	}
	last := f.bot.notices[len(f.bot.notices)-1]
	if last.chatID != 10 || !strings.Contains(last.text, "000001") {
		t.Fatalf("unexpected notice %+v", last)
	}
}

func TestSendBlockedBySupport(t *testing.T) {
	f := newFixture()
	f.support[10] = true
	_, err := f.c.Send(context.Background(), Outgoing{ClaimID: "000001", Text: "hi"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.repo.messages) != 0 || len(f.bot.sent) != 0 {
		t.Fatalf("nothing may be stored or sent")
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.c.Send(ctx, Outgoing{ClaimID: "000001", Text: "  "}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("empty message must be invalid, got %v", err)
	}
	if _, err := f.c.Send(ctx, Outgoing{ClaimID: "000003", Text: "hi"}); !errors.Is(err, domain.ErrBanned) {
		t.Fatalf("banned user must be refused, got %v", err)
	}
	if _, err := f.c.Send(ctx, Outgoing{ClaimID: "999999", Text: "hi"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown claim must be not found, got %v", err)
	}
}

func TestSendDeliversAndEscapes(t *testing.T) {
	f := newFixture()
	res, err := f.c.Send(context.Background(), Outgoing{ClaimID: "000001", Text: "<b>5 < 6</b>"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Delivered || res.Message.TgMessageID == nil || !res.Message.IsBot {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(f.bot.sent[0].text, "&lt;b&gt;5 &lt; 6&lt;/b&gt;") {
		t.Fatalf("operator text must be escaped: %q", f.bot.sent[0].text)
	}
	if len(f.repo.sessions) != 1 {
		t.Fatalf("sending opens the chat")
	}
}

func TestSendFailureIsStored(t *testing.T) {
	f := newFixture()
	f.bot.fail = errors.New("bot was blocked by the user")
	res, err := f.c.Send(context.Background(), Outgoing{ClaimID: "000001", Text: "hello"})
	if err != nil {
		t.Fatalf("delivery failures are not errors: %v", err)
	}
	if res.Delivered || res.Message.Message != "hello"+domain.UndeliveredSuffix {
		t.Fatalf("unexpected stored message %+v", res.Message)
	}
}

func TestRouteSingleSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	out, _, _ := f.c.Route(ctx, Inbound{UserID: 10, Text: "hi"})
	if out != NoChats {
		t.Fatalf("expected NoChats, got %v", out)
	}
	_, _ = f.c.Start(ctx, "000001")
	out, claimID, err := f.c.Route(ctx, Inbound{UserID: 10, DocFileID: "doc", DocName: "scan.pdf", Text: "see"})
	if err != nil || out != Routed || claimID != "000001" {
		t.Fatalf("unexpected routing %v %s %v", out, claimID, err)
	}
	m := f.repo.messages[0]
	if m.HasPhoto || *m.PhotoFileID != "doc" || m.Message != "📎 scan.pdf\nsee" {
		t.Fatalf("unexpected document message %+v", m)
	}
	if !f.repo.sessions[0].HasUnanswered {
		t.Fatalf("session must be marked unanswered")
	}
	if out, _, _ := f.c.Route(ctx, Inbound{UserID: 10}); out != Unsupported {
		t.Fatalf("empty content must be unsupported, got %v", out)
	}
}

func TestRouteSeveralSessionsNeedsReply(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.c.Start(ctx, "000001")
	_, _ = f.c.Start(ctx, "000002")

	out, _, _ := f.c.Route(ctx, Inbound{UserID: 10, Text: "which one?"})
	if out != Ambiguous || len(f.repo.messages) != 0 {
		t.Fatalf("expected ambiguous without storing, got %v", out)
	}

	res, err := f.c.Send(ctx, Outgoing{ClaimID: "000002", Text: "about claim 2"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	out, claimID, err := f.c.Route(ctx, Inbound{UserID: 10, Text: "reply", ReplyToMsgID: int(*res.Message.TgMessageID)})
	if err != nil || out != Routed || claimID != "000002" {
		t.Fatalf("reply must route to its claim: %v %s %v", out, claimID, err)
	}
}

func TestRouteReplyToClosedChat(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.c.Start(ctx, "000001")
	_, _ = f.c.Start(ctx, "000002")
	res, err := f.c.Send(ctx, Outgoing{ClaimID: "000002", Text: "about claim 2"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := f.c.Close(ctx, "000002"); err != nil {
		t.Fatalf("close: %v", err)
	}
	stored := len(f.repo.messages)

	out, claimID, err := f.c.Route(ctx, Inbound{UserID: 10, Text: "late answer", ReplyToMsgID: int(*res.Message.TgMessageID)})
	if err != nil || out != ChatClosed || claimID != "000002" {
		t.Fatalf("reply to a closed chat: %v %s %v", out, claimID, err)
	}
	if len(f.repo.messages) != stored {
		t.Fatalf("reply stored on another claim: %+v", f.repo.messages[len(f.repo.messages)-1])
	}
	if f.repo.sessions[0].HasUnanswered {
		t.Fatalf("open chat must not be marked unanswered")
	}

	out, claimID, _ = f.c.Route(ctx, Inbound{UserID: 10, Text: "new question"})
	if out != Routed || claimID != "000001" {
		t.Fatalf("plain message must still reach the open chat: %v %s", out, claimID)
	}
}

func TestRouteDocumentKeepsFileMeta(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.c.Start(ctx, "000001")
	if _, _, err := f.c.Route(ctx, Inbound{UserID: 10, DocFileID: "doc", DocName: "scan.pdf", DocMIME: "application/pdf"}); err != nil {
		t.Fatalf("route: %v", err)
	}
	m := f.repo.messages[0]
	if m.FileName == nil || *m.FileName != "scan.pdf" || m.MimeType == nil || *m.MimeType != "application/pdf" {
		t.Fatalf("document meta lost: %+v", m)
	}
	if _, _, err := f.c.Route(ctx, Inbound{UserID: 10, PhotoFileID: "ph"}); err != nil {
		t.Fatalf("route photo: %v", err)
	}
	if p := f.repo.messages[1]; p.FileName != nil || p.MimeType != nil {
		t.Fatalf("photo must not carry document meta: %+v", p)
	}
}

func TestRelay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if st, _, _ := f.c.Relay(ctx, GroupPost{Text: "/start #000001"}); st != RelayIgnored {
		t.Fatalf("commands are ignored")
	}
	if st, _, _ := f.c.Relay(ctx, GroupPost{Text: "no tag"}); st != RelayIgnored {
		t.Fatalf("untagged posts are ignored")
	}
	if st, _, _ := f.c.Relay(ctx, GroupPost{Text: "#000001 hi"}); st != RelayNoSession {
		t.Fatalf("closed chat must be reported")
	}
	_, _ = f.c.Start(ctx, "000001")
	st, claimID, err := f.c.Relay(ctx, GroupPost{AdminID: 5, Text: "Ваш платёж готов #000001"})
	if err != nil || st != RelaySent || claimID != "000001" {
		t.Fatalf("unexpected relay %v %s %v", st, claimID, err)
	}
	got := f.bot.sent[len(f.bot.sent)-1]
	if got.chatID != 10 || strings.Contains(got.text, "#000001") || !strings.Contains(got.text, "Ваш платёж готов") {
		t.Fatalf("unexpected delivery %+v", got)
	}
	st, _, _ = f.c.Relay(ctx, GroupPost{PhotoFileID: "ph", ReplyToText: "💬 Начат чат по заявке #000001"})
	if st != RelaySent || f.repo.messages[len(f.repo.messages)-1].Message != "📷 Фото" {
		t.Fatalf("photo reply must be relayed")
	}
}

func TestClaimTag(t *testing.T) {
	if got := ClaimTag(GroupPost{Caption: "фото #42 и #43"}); got != "42" {
		t.Fatalf("first tag wins, got %q", got)
	}
}
