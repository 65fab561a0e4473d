package claimsbot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/chat"
	"github.com/m3rciful/claimdesk/internal/claimsbot/ui"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/support"
)

const uid int64 = 42

type sentMsg struct {
	chatID int64
	text   string
	markup *tele.ReplyMarkup
}

type fakeMessenger struct {
	sent   []sentMsg
	edits  int
	member bool
	// during runs inside every send and edit.
	during func()
}

func (m *fakeMessenger) SendHTML(_ context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (int, error) {
	if m.during != nil {
		m.during()
	}
	m.sent = append(m.sent, sentMsg{chatID, text, markup})
	return 100 + len(m.sent), nil
}

func (m *fakeMessenger) EditText(context.Context, int64, int, string, *tele.ReplyMarkup) error {
	if m.during != nil {
		m.during()
	}
	m.edits++
	return nil
}

func (m *fakeMessenger) IsMember(context.Context, int64, int64) (bool, error) { return m.member, nil }

func (m *fakeMessenger) last() string {
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].text
}

func (m *fakeMessenger) count(text string) int {
	n := 0
	for _, s := range m.sent {
		if s.text == text {
			n++
		}
	}
	return n
}

type userMap map[int64]domain.User

func (u userMap) Upsert(_ context.Context, x domain.User) (domain.User, error) {
	if old, ok := u[x.TgID]; ok {
		x.Banned = old.Banned
	}
	u[x.TgID] = x
	return x, nil
}

func (u userMap) Get(_ context.Context, id int64) (domain.User, error) {
	x, ok := u[id]
	if !ok {
		return x, domain.ErrNotFound
	}
	return x, nil
}

type codeSet map[string]bool

func (s codeSet) Consume(_ context.Context, code string) (bool, error) {
	ok := s[code]
	delete(s, code)
	return ok, nil
}

type fakeClaims struct {
	started   int
	finalized []domain.Submission
}

func (f *fakeClaims) Start(_ context.Context, userID int64, code string) (domain.Claim, error) {
	f.started++
	return domain.Claim{ClaimID: fmt.Sprintf("%06d", f.started), UserID: userID, Code: code}, nil
}

func (f *fakeClaims) Finalize(_ context.Context, sub domain.Submission) (domain.Claim, error) {
	f.finalized = append(f.finalized, sub)
	return domain.Claim{ClaimID: sub.ClaimID}, nil
}

type fakeSupport struct {
	open     bool
	incoming []support.Incoming
}

func (f *fakeSupport) Open(context.Context, int64) (domain.SupportSession, bool, error) {
	created := !f.open
	f.open = true
	return domain.SupportSession{ID: 1, UserID: uid}, created, nil
}

func (f *fakeSupport) Submit(_ context.Context, in support.Incoming) (domain.SupportMessage, error) {
	if in.Document != nil && in.Document.Size > f.Limits().UserDocument {
		return domain.SupportMessage{}, fmt.Errorf("%w: %w", domain.ErrInvalid, support.ErrTooLarge)
	}
	f.incoming = append(f.incoming, in)
	return domain.SupportMessage{ID: int64(len(f.incoming))}, nil
}

func (f *fakeSupport) Limits() support.Limits {
	return support.Limits{UserDocument: 20 << 20, AdminUpload: 50 << 20}
}

type fakeChats struct {
	outcome chat.Outcome
	status  chat.RelayStatus
	routed  []chat.Inbound
	relayed []chat.GroupPost
}

func (f *fakeChats) Route(_ context.Context, in chat.Inbound) (chat.Outcome, string, error) {
	f.routed = append(f.routed, in)
	return f.outcome, "000001", nil
}

func (f *fakeChats) Relay(_ context.Context, p chat.GroupPost) (chat.RelayStatus, string, error) {
	f.relayed = append(f.relayed, p)
	return f.status, "000001", nil
}

type fakeAccounts struct {
	accounts map[int64]domain.Administrator
	logins   map[string]bool
}

func (f *fakeAccounts) Account(_ context.Context, tgID int64) (domain.Administrator, error) {
	a, ok := f.accounts[tgID]
	if !ok {
		return a, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) Register(_ context.Context, tgID int64, login, _ string) (domain.Administrator, error) {
	if f.logins[login] {
		return domain.Administrator{}, domain.Conflict("login already taken")
	}
	f.logins[login] = true
	a := domain.Administrator{AdminID: 1, TgID: &tgID, Login: login}
	f.accounts[tgID] = a
	return a, nil
}

type fixture struct {
	t        *testing.T
	tb       *tele.Bot
	bot      *Bot
	msgr     *fakeMessenger
	users    userMap
	claims   *fakeClaims
	support  *fakeSupport
	chats    *fakeChats
	accounts *fakeAccounts
}

func newFixture(t *testing.T, campaign coreconfig.CampaignConfig) *fixture {
	t.Helper()
	tb, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	states, err := state.NewManager("claims", state.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f := &fixture{
		t:        t,
		tb:       tb,
		msgr:     &fakeMessenger{member: true},
		users:    userMap{},
		claims:   &fakeClaims{},
		support:  &fakeSupport{},
		chats:    &fakeChats{},
		accounts: &fakeAccounts{accounts: map[int64]domain.Administrator{}, logins: map[string]bool{}},
	}
	f.bot = New(Deps{
		Config:    coreconfig.BotConfig{Admins: []int64{uid}},
		Campaign:  campaign,
		States:    states,
		Messenger: f.msgr,
		Users:     f.users,
		Codes:     codeSet{"C0DE": true},
		Claims:    f.claims,
		Support:   f.support,
		Chats:     f.chats,
		Accounts:  f.accounts,
	})
	if err := f.bot.Register(telegram.NewRegistry()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return f
}

func (f *fixture) private(m *tele.Message) tele.Context {
	m.ID = 10
	m.Sender = &tele.User{ID: uid, FirstName: "Анна", Username: "anna"}
	m.Chat = &tele.Chat{ID: uid, Type: tele.ChatPrivate}
	return f.tb.NewContext(tele.Update{ID: 1, Message: m})
}

func (f *fixture) text(s string) tele.Context { return f.private(&tele.Message{Text: s}) }

func (f *fixture) photo(id, caption string) tele.Context {
	return f.private(&tele.Message{Photo: &tele.Photo{File: tele.File{FileID: id}}, Caption: caption})
}

func (f *fixture) callback(unique, data string) tele.Context {
	return f.tb.NewContext(tele.Update{ID: 2, Callback: &tele.Callback{
		Sender:  &tele.User{ID: uid},
		Message: &tele.Message{ID: 55, Chat: &tele.Chat{ID: uid, Type: tele.ChatPrivate}},
		Unique:  unique,
		Data:    data,
	}})
}

// step feeds a private message through the dialogue dispatcher.
func (f *fixture) step(c tele.Context) {
	f.t.Helper()
	if err := f.bot.States.Handle(c); err != nil {
		f.t.Fatalf("handle: %v", err)
	}
}

func (f *fixture) snapshot() state.Snapshot {
	f.t.Helper()
	snap, err := f.bot.States.Snapshot(context.Background(), uid)
	if err != nil {
		f.t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func TestRegistrationByCard(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{})

	if err := f.bot.onStart(f.text("/start")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.snapshot().State != domain.StateWaitingForCode || f.msgr.last() != ui.Welcome {
		t.Fatalf("after /start: %+v %q", f.snapshot(), f.msgr.last())
	}
	if f.users[uid].Role != domain.RoleAdmin {
		t.Fatalf("configured admin must be stored with the admin role")
	}

	f.step(f.text(" C0DE "))
	snap := f.snapshot()
	if snap.State != domain.StateWaitingForScreenshot || snap.Data.String(domain.DataClaimID) != "000001" {
		t.Fatalf("after code: %+v", snap)
	}
	if f.msgr.last() != ui.ReviewRequest {
		t.Fatalf("review request not sent: %q", f.msgr.last())
	}

	f.step(f.photo("p1", "отличный товар"))
	f.step(f.photo("p2", ""))
	f.step(f.text("ещё текст"))
	if n := f.msgr.count(ui.PhoneOrCard); n != 1 || f.msgr.edits != 1 {
		t.Fatalf("method prompt sent %d times, edited %d times", n, f.msgr.edits)
	}
	snap = f.snapshot()
	if got := snap.Data.Strings(domain.DataPhotoFileIDs); len(got) != 2 {
		t.Fatalf("photos = %v", got)
	}
	if snap.Data.String(domain.DataReviewText) != "отличный товар" {
		t.Fatalf("review text = %q", snap.Data.String(domain.DataReviewText))
	}

	if err := f.bot.onRegCallback(f.callback(ui.CallbackReg, ui.StepCard)); err != nil {
		t.Fatalf("card callback: %v", err)
	}
	if f.snapshot().State != domain.StateWaitingForCardNumber {
		t.Fatalf("state = %s", f.snapshot().State)
	}
	f.step(f.text("1234"))
	if f.msgr.last() != ui.CardError {
		t.Fatalf("short card accepted")
	}
	f.step(f.text("2222 3333 4444 5555"))

	if len(f.claims.finalized) != 1 {
		t.Fatalf("finalized %d claims", len(f.claims.finalized))
	}
	sub := f.claims.finalized[0]
	if sub.Card != "2222333344445555" || sub.Phone != "" || len(sub.PhotoFileIDs) != 2 {
		t.Fatalf("submission = %+v", sub)
	}
	if f.msgr.last() != ui.Success || f.snapshot().State != state.StateIdle {
		t.Fatalf("dialogue not finished: %q %s", f.msgr.last(), f.snapshot().State)
	}
}

func TestRegistrationByPhone(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{})
	_ = f.bot.onStart(f.text("/start"))
	f.step(f.text("test"))
	if f.claims.started != 1 {
		t.Fatalf("test code must start a claim")
	}
	f.step(f.photo("p1", ""))
	_ = f.bot.onRegCallback(f.callback(ui.CallbackReg, ui.StepPhone))

	f.step(f.text("12345"))
	if f.msgr.last() != ui.PhoneError {
		t.Fatalf("bad phone accepted: %q", f.msgr.last())
	}
	f.step(f.text("+79991234567"))
	if f.snapshot().State != domain.StateWaitingForBank {
		t.Fatalf("state = %s", f.snapshot().State)
	}
	f.step(f.text("  "))
	if f.msgr.last() != ui.BankError {
		t.Fatalf("empty bank accepted")
	}
	f.step(f.text("Т-Банк"))
	sub := f.claims.finalized[0]
	if sub.Phone != "+79991234567" || sub.Bank != "Т-Банк" || sub.Card != "" {
		t.Fatalf("submission = %+v", sub)
	}
}

func TestScreenshotSendsOutsideStateLock(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{})
	_ = f.bot.onStart(f.text("/start"))
	f.step(f.text("test"))

	blocked := 0
	f.msgr.during = func() {
		done := make(chan error, 1)
		go func() {
			done <- f.bot.States.Update(context.Background(), uid, func(*state.Snapshot) {})
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			blocked++
		}
	}
	f.step(f.photo("p1", ""))
	f.step(f.photo("p2", ""))
	f.msgr.during = nil

	if blocked != 0 {
		t.Fatalf("conversation stayed locked during %d telegram calls", blocked)
	}
	if n := f.msgr.count(ui.PhoneOrCard); n != 1 || f.msgr.edits != 1 {
		t.Fatalf("method prompt sent %d times, edited %d times", n, f.msgr.edits)
	}
	if id := f.snapshot().Data.Int(domain.DataPhoneCardMessageID); id == 0 {
		t.Fatalf("prompt message id not stored")
	}
}

func TestCodeRejected(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{})
	_ = f.bot.onStart(f.text("/start"))
	f.step(f.text("NOPE"))
	if f.msgr.last() != ui.CodeNotFound || f.claims.started != 0 {
		t.Fatalf("unknown code: %q started=%d", f.msgr.last(), f.claims.started)
	}
	if f.snapshot().State != domain.StateWaitingForCode {
		t.Fatalf("user must stay on the code step")
	}
}

func TestSubscriptionGate(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{ChannelID: -100, ChannelURL: "https://t.me/brand"})
	f.msgr.member = false
	_ = f.bot.onStart(f.text("/start"))
	f.step(f.text("C0DE"))
	if f.msgr.last() != ui.NotSubscribed || f.claims.started != 0 {
		t.Fatalf("unsubscribed user passed: %q", f.msgr.last())
	}
	if f.snapshot().Data.String(domain.DataEnteredCode) != "C0DE" {
		t.Fatalf("entered code not kept")
	}

	f.msgr.member = true
	if err := f.bot.onRegCallback(f.callback(ui.CallbackReg, ui.StepCheckSub)); err != nil {
		t.Fatalf("check_sub: %v", err)
	}
	if f.claims.started != 1 || f.snapshot().State != domain.StateWaitingForScreenshot {
		t.Fatalf("subscription recheck did not proceed")
	}
}

func TestStartDuringDialogue(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{})
	_ = f.bot.onStart(f.text("/start"))
	_ = f.bot.onStart(f.text("/start"))
	if f.msgr.last() != ui.FinishFirst {
		t.Fatalf("second /start: %q", f.msgr.last())
	}
}

func TestBannedUserIgnored(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{})
	f.users[uid] = domain.User{TgID: uid, Banned: true}
	_ = f.bot.onStart(f.text("/start"))
	if len(f.msgr.sent) != 0 || f.snapshot().State != state.StateIdle {
		t.Fatalf("banned user got a reply")
	}

	called := false
	h := f.bot.BanCheck(func(tele.Context) error { called = true; return nil })
	_ = h(f.text("hi"))
	if called {
		t.Fatalf("ban check let the update through")
	}
}

func TestSupportFlow(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{})
	if err := f.bot.onHelp(f.text("/help")); err != nil {
		t.Fatalf("help: %v", err)
	}
	if f.msgr.last() != ui.SupportPrompt {
		t.Fatalf("prompt = %q", f.msgr.last())
	}
	_ = f.bot.onHelp(f.text("/help"))
	if f.msgr.last() != ui.SupportInWork {
		t.Fatalf("second /help = %q", f.msgr.last())
	}

	if err := f.bot.onSupportMessage(f.text("не приходит выплата")); err != nil {
		t.Fatalf("text: %v", err)
	}
	if f.msgr.last() != ui.SupportSent+"\n"+ui.SupportReplySoon {
		t.Fatalf("text confirm = %q", f.msgr.last())
	}

	_ = f.bot.onSupportMessage(f.photo("p9", "чек"))
	if f.msgr.last() != ui.SupportPhotoOK+"\n"+ui.SupportReplySoon {
		t.Fatalf("photo confirm = %q", f.msgr.last())
	}

	doc := &tele.Document{File: tele.File{FileID: "d1", FileSize: 2 << 20}}
	_ = f.bot.onSupportMessage(f.private(&tele.Message{Document: doc}))
	in := f.support.incoming[len(f.support.incoming)-1]
	if in.Document == nil || in.Document.Name != "безымянный" || in.Document.MIME != "application/octet-stream" {
		t.Fatalf("document defaults: %+v", in.Document)
	}

	big := &tele.Document{File: tele.File{FileID: "d2", FileSize: 30 << 20}, FileName: "scan.pdf"}
	_ = f.bot.onSupportMessage(f.private(&tele.Message{Document: big}))
	if f.msgr.last() != fmt.Sprintf(ui.SupportTooLarge, 20) {
		t.Fatalf("too large = %q", f.msgr.last())
	}

	_ = f.bot.onSupportMessage(f.private(&tele.Message{Voice: &tele.Voice{File: tele.File{FileID: "v"}}}))
	if f.msgr.last() != ui.SupportUnsupported {
		t.Fatalf("voice = %q", f.msgr.last())
	}
	if len(f.support.incoming) != 3 {
		t.Fatalf("stored %d support messages", len(f.support.incoming))
	}
}

func TestPrivateRouting(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{})
	cases := []struct {
		outcome chat.Outcome
		want    string
	}{
		{chat.NoChats, ui.NoChats},
		{chat.Unsupported, ui.ChatUnsupported},
		{chat.Ambiguous, ui.ChatAmbiguous},
		{chat.ChatClosed, ui.ChatClosed},
	}
	for _, tc := range cases {
		f.chats.outcome = tc.outcome
		if err := f.bot.onPrivate(f.text("вопрос")); err != nil {
			t.Fatalf("private: %v", err)
		}
		if f.msgr.last() != tc.want {
			t.Fatalf("outcome %d reply = %q", tc.outcome, f.msgr.last())
		}
	}

	f.chats.outcome = chat.Routed
	before := len(f.msgr.sent)
	m := &tele.Message{Text: "ответ", ReplyTo: &tele.Message{ID: 77}}
	_ = f.bot.onPrivate(f.private(m))
	if len(f.msgr.sent) != before {
		t.Fatalf("routed message must not be answered")
	}
	if got := f.chats.routed[len(f.chats.routed)-1]; got.ReplyToMsgID != 77 {
		t.Fatalf("reply id = %d", got.ReplyToMsgID)
	}
}

func TestGroupRelay(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{GroupID: -500})
	group := func(chatID int64, text string) tele.Context {
		return f.tb.NewContext(tele.Update{ID: 3, Message: &tele.Message{
			ID:     5,
			Sender: &tele.User{ID: 7},
			Chat:   &tele.Chat{ID: chatID, Type: tele.ChatSuperGroup},
			Text:   text,
		}})
	}

	_ = f.bot.onGroup(group(-999, "#000001 привет"))
	if len(f.chats.relayed) != 0 {
		t.Fatalf("foreign group relayed")
	}

	f.chats.status = chat.RelaySent
	_ = f.bot.onGroup(group(-500, "#000001 привет"))
	if f.msgr.last() != ui.RelaySent || f.msgr.sent[0].chatID != -500 {
		t.Fatalf("relay reply = %+v", f.msgr.sent)
	}

	f.chats.status = chat.RelayNoSession
	_ = f.bot.onGroup(group(-500, "#000002 привет"))
	if f.msgr.last() != ui.RelayNoSession {
		t.Fatalf("no session reply = %q", f.msgr.last())
	}
}

func TestAdminRegistration(t *testing.T) {
	f := newFixture(t, coreconfig.CampaignConfig{})
	f.accounts.logins["taken"] = true

	if err := f.bot.onReg(f.text("/reg")); err != nil {
		t.Fatalf("reg: %v", err)
	}
	if f.msgr.last() != regAskLogin {
		t.Fatalf("reg = %q", f.msgr.last())
	}
	f.step(f.text("taken"))
	f.step(f.text("pw"))
	if f.msgr.last() != regLoginTaken || f.snapshot().State != stateRegLogin {
		t.Fatalf("taken login: %q %s", f.msgr.last(), f.snapshot().State)
	}
	f.step(f.text("boss"))
	f.step(f.text("secret"))
	if f.msgr.last() != regDone || f.snapshot().State != state.StateIdle {
		t.Fatalf("register: %q", f.msgr.last())
	}

	_ = f.bot.onReg(f.text("/reg"))
	if !strings.Contains(f.msgr.last(), "boss") {
		t.Fatalf("existing account: %q", f.msgr.last())
	}
}
