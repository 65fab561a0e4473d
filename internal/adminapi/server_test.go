package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/internal/admins"
	"github.com/m3rciful/claimdesk/internal/chat"
	"github.com/m3rciful/claimdesk/internal/claims"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/konsol"
	"github.com/m3rciful/claimdesk/internal/payments"
	"github.com/m3rciful/claimdesk/internal/storage/mongostore"
	"github.com/m3rciful/claimdesk/internal/support"
)

const token = "secret-token"

type fakeAccounts struct{}

func (fakeAccounts) Login(_ context.Context, login, password string) (admins.Session, error) {
	if login != "root" || password != "pw" {
		return admins.Session{}, admins.ErrBadCredentials
	}
	return admins.Session{Token: token, Admin: domain.Administrator{AdminID: 7, Login: login, IsActive: true}}, nil
}

func (fakeAccounts) Authenticate(_ context.Context, t string) (domain.Administrator, error) {
	if t != token {
		return domain.Administrator{}, admins.ErrBadCredentials
	}
	return domain.Administrator{AdminID: 7, Login: "root", IsActive: true}, nil
}

func (fakeAccounts) Logout(context.Context, string) error { return nil }

type fakeClaims struct {
	filter domain.ClaimFilter
	change claims.StatusChange
	err    error
}

func (f *fakeClaims) Get(_ context.Context, id string) (domain.Claim, error) {
	if id != "0001" {
		return domain.Claim{}, domain.NotFound("Claim not found")
	}
	return domain.Claim{ClaimID: id, UserID: 42, ClaimStatus: domain.ClaimProcess, PhotoFileIDs: []string{"ph-1"}}, nil
}

func (f *fakeClaims) List(_ context.Context, fl domain.ClaimFilter) (claims.Page, error) {
	f.filter = fl
	return claims.Page{Items: []domain.ClaimRow{}, Page: fl.Page, PageSize: fl.PageSize}, nil
}

func (f *fakeClaims) UpdateStatus(_ context.Context, ch claims.StatusChange) (claims.StatusResult, error) {
	f.change = ch
	if f.err != nil {
		return claims.StatusResult{}, f.err
	}
	return claims.StatusResult{ClaimID: ch.ClaimID, Status: domain.ClaimStatus(ch.Status)}, nil
}

type fakeChats struct {
	sent   []chat.Outgoing
	sendFn func(chat.Outgoing) (chat.SendResult, error)
	files  map[int64]domain.ChatMessage
}

func (f *fakeChats) Start(_ context.Context, id string) (domain.ChatSession, error) {
	return domain.ChatSession{ClaimID: id, IsActive: true}, nil
}

func (f *fakeChats) Close(_ context.Context, id string) (domain.ChatSession, error) {
	return domain.ChatSession{ClaimID: id}, nil
}

func (f *fakeChats) Send(_ context.Context, out chat.Outgoing) (chat.SendResult, error) {
	f.sent = append(f.sent, out)
	return f.sendFn(out)
}

func (f *fakeChats) History(_ context.Context, id string) ([]domain.ChatMessage, error) {
	return []domain.ChatMessage{{ClaimID: id, Message: "hi"}}, nil
}

func (f *fakeChats) Attachment(_ context.Context, id int64) (domain.ChatMessage, error) {
	if m, ok := f.files[id]; ok {
		return m, nil
	}
	return domain.ChatMessage{}, domain.NotFound("Photo not found")
}

type fakeSupport struct {
	Support // unimplemented methods panic
	resolvedBy int64
	upload     support.Upload
	uploadBody string
}

func (f *fakeSupport) Resolve(_ context.Context, id, adminID int64) (domain.SupportSession, error) {
	f.resolvedBy = adminID
	return domain.SupportSession{ID: id, Resolved: true}, nil
}

func (f *fakeSupport) Rollback(_ context.Context, id, _ int64, target string) (domain.SupportSession, error) {
	if target != "waiting_for_code" {
		return domain.SupportSession{}, domain.Invalid("Rollback to " + target + " is not allowed")
	}
	return domain.SupportSession{ID: id, Resolved: true}, nil
}

func (f *fakeSupport) SendFile(_ context.Context, id int64, up support.Upload) (support.UploadResult, error) {
	f.upload = up
	b, _ := io.ReadAll(up.Body)
	f.uploadBody = string(b)
	return support.UploadResult{Message: domain.SupportMessage{SessionID: id}, Delivered: true}, nil
}

type fakePayments struct{ req payments.ManualRequest }

func (f *fakePayments) CreateManual(_ context.Context, req payments.ManualRequest) (domain.KonsolPayment, error) {
	f.req = req
	return domain.KonsolPayment{PaymentID: "pay-1", Amount: req.Amount}, nil
}

type fakePayouts struct{ limit int }

func (f *fakePayouts) Recent(_ context.Context, limit int) ([]domain.KonsolPayment, error) {
	f.limit = limit
	return []domain.KonsolPayment{}, nil
}

func (f *fakePayouts) ByClaim(_ context.Context, claimID string) ([]domain.KonsolPayment, error) {
	return []domain.KonsolPayment{{PaymentID: "pay-1", ClaimID: &claimID}}, nil
}

type fakeSales struct {
	users  map[int64]domain.SalesUser
	added  []domain.SalesMessage
	filter mongostore.ChatFilter
	marked int64
}

func (f *fakeSales) Chats(_ context.Context, fl mongostore.ChatFilter) ([]domain.SalesChat, int64, error) {
	f.filter = fl
	return nil, 0, nil
}

func (f *fakeSales) History(_ context.Context, uid int64) ([]domain.SalesMessage, error) {
	return []domain.SalesMessage{{UserID: uid, Text: "hello"}}, nil
}

func (f *fakeSales) MarkChecked(_ context.Context, uid int64) (int64, error) {
	f.marked = uid
	return 1, nil
}

func (f *fakeSales) AddMessage(_ context.Context, m domain.SalesMessage) (domain.SalesMessage, error) {
	m.ID = int64(len(f.added) + 1)
	f.added = append(f.added, m)
	return m, nil
}

func (f *fakeSales) User(_ context.Context, uid int64) (domain.SalesUser, error) {
	u, ok := f.users[uid]
	if !ok {
		return u, domain.NotFound("sales user not found")
	}
	return u, nil
}

func (f *fakeSales) SetBanned(context.Context, int64, bool) error { return nil }

type fakeSender struct{ err error }

func (f fakeSender) SendHTML(context.Context, int64, string, *tele.ReplyMarkup) (int, error) {
	return 99, f.err
}

type fakeFiles struct{}

func (fakeFiles) Download(_ context.Context, id string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("bytes-of-" + id)), nil
}

type fixture struct {
	srv      *Server
	claims   *fakeClaims
	chats    *fakeChats
	support  *fakeSupport
	payments *fakePayments
	payouts  *fakePayouts
	sales    *fakeSales
	sender   *fakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		claims:   &fakeClaims{},
		chats:    &fakeChats{},
		support:  &fakeSupport{},
		payments: &fakePayments{},
		payouts:  &fakePayouts{},
		sales:    &fakeSales{users: map[int64]domain.SalesUser{5: {TgID: 5, Username: "buyer"}, 6: {TgID: 6, Banned: true}}},
		sender:   &fakeSender{},
	}
	f.srv = New(Deps{
		Config:   coreconfig.HTTPConfig{UploadLimitMB: 1},
		Accounts: fakeAccounts{},
		Claims:   f.claims,
		Chats:    f.chats,
		Support:  f.support,
		Payments: f.payments,
		Payouts:  f.payouts,
		Banks:    func() ([]payments.Bank, error) { return []payments.Bank{{MemberID: "100000000111", Name: "Test"}}, nil },
		Sales:    f.sales,
		SalesBot: f.sender,
		Files:    fakeFiles{},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return f.send(t, req)
}

func (f *fixture) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := f.srv.App().Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestHealthAndAuth(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.send(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body := f.send(t, httptest.NewRequest(http.MethodGet, "/claims/", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["code"])
	assert.Equal(t, "error", body["status"])

	resp, body = f.do(t, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "root", body["login"])
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/auth/login", map[string]string{"login": "root", "password": "pw"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, token, body["token"])

	resp, body = f.do(t, http.MethodPost, "/auth/login", map[string]string{"login": "root", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["code"])

	resp, body = f.do(t, http.MethodPost, "/auth/login", map[string]string{"login": "root"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "password")
}

func TestListClaimsFilters(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/claims/?status=pending&user_id=42&date_from=01.03.2024&date_to=2024-03-05&page=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fl := f.claims.filter
	assert.Equal(t, domain.ClaimPending, fl.Status)
	assert.Equal(t, int64(42), fl.UserID)
	assert.Equal(t, 2, fl.Page)
	require.NotNil(t, fl.DateFrom)
	require.NotNil(t, fl.DateTo)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *fl.DateFrom)
	assert.Equal(t, time.Date(2024, 3, 5, 23, 59, 59, 999999999, time.UTC), *fl.DateTo)

	resp, body := f.do(t, http.MethodGet, "/claims/?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid", body["code"])

	resp, _ = f.do(t, http.MethodGet, "/claims/?date_from=2024-03-05&date_to=2024-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClaimStatusErrors(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/claims/0999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["code"])

	resp, _ = f.do(t, http.MethodPost, "/claims/0001/status", map[string]string{"status": "pending", "bank_member_id": "100000000111"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, f.claims.change.AdminID)
	assert.Equal(t, int64(7), *f.claims.change.AdminID)
	assert.Equal(t, "100000000111", f.claims.change.BankMemberID)

	f.claims.err = domain.Conflict("Claim 0001 cannot move from confirm to pending")
	resp, body = f.do(t, http.MethodPost, "/claims/0001/status", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", body["code"])

	f.claims.err = fmt.Errorf("create payment: %w", &konsol.APIError{Endpoint: "/payments", Status: 422, Body: "bad card"})
	resp, body = f.do(t, http.MethodPost, "/claims/0001/status", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "provider", body["code"])

	f.claims.err = errors.New("db is down")
	resp, body = f.do(t, http.MethodPost, "/claims/0001/status", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal Server Error", body["message"])
}

func TestClaimPhotoStreams(t *testing.T) {
	f := newFixture(t)

	resp, err := f.srv.App().Test(authed(httptest.NewRequest(http.MethodGet, "/claims/0001/photos/0", nil)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "bytes-of-ph-1", string(b))

	resp, _ = f.do(t, http.MethodGet, "/claims/0001/photos/3", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/claims/chat/messages/12/photo", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatAttachmentContentType(t *testing.T) {
	f := newFixture(t)
	doc, photo := "doc-1", "photo-1"
	name, mime := "scan.pdf", "application/pdf"
	f.chats.files = map[int64]domain.ChatMessage{
		7: {ID: 7, PhotoFileID: &doc, FileName: &name, MimeType: &mime},
		8: {ID: 8, HasPhoto: true, PhotoFileID: &photo},
		9: {ID: 9, PhotoFileID: &doc},
	}

	resp, err := f.srv.App().Test(authed(httptest.NewRequest(http.MethodGet, "/claims/chat/messages/7/photo", nil)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "scan.pdf")
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "bytes-of-doc-1", string(b))

	resp, err = f.srv.App().Test(authed(httptest.NewRequest(http.MethodGet, "/claims/chat/messages/8/photo", nil)))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Content-Disposition"))

	resp, err = f.srv.App().Test(authed(httptest.NewRequest(http.MethodGet, "/claims/chat/messages/9/photo", nil)))
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
}

func TestChatSend(t *testing.T) {
	f := newFixture(t)
	f.chats.sendFn = func(out chat.Outgoing) (chat.SendResult, error) {
		if out.Text == "blocked" {
			return chat.SendResult{}, domain.Conflict("У пользователя открыто обращение в поддержку")
		}
		msg := domain.ChatMessage{ClaimID: out.ClaimID, Message: out.Text + domain.UndeliveredSuffix}
		return chat.SendResult{Message: msg, Delivered: false}, nil
	}

	resp, body := f.do(t, http.MethodPost, "/claims/0001/chat/messages", map[string]string{"text": "blocked"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", body["code"])

	resp, body = f.do(t, http.MethodPost, "/claims/0001/chat/messages", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["delivered"])

	resp, _ = f.do(t, http.MethodPost, "/claims/0001/chat/messages", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Len(t, f.chats.sent, 2)

	resp, _ = f.do(t, http.MethodPost, "/claims/0001/chat/messages", map[string]string{"text": strings.Repeat("я", textLimit+1)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSupportResolveAndRollback(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/support/3/resolve", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["resolved"])
	assert.Equal(t, int64(7), f.support.resolvedBy)

	resp, body = f.do(t, http.MethodPost, "/support/3/rollback", map[string]string{"target": "waiting_for_bank"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid", body["code"])

	resp, _ = f.do(t, http.MethodPost, "/support/3/rollback", map[string]string{"target": "waiting_for_code"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/support/abc/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSupportUpload(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("caption", "Чек"))
	fw, err := mw.CreateFormFile("file", "receipt.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.Close())

	req := authed(httptest.NewRequest(http.MethodPost, "/support/3/files", &buf))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, body := f.send(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["delivered"])
	assert.Equal(t, "receipt.pdf", f.support.upload.Name)
	assert.Equal(t, "Чек", f.support.upload.Caption)
	assert.Equal(t, int64(8), f.support.upload.Size)
	assert.Equal(t, "%PDF-1.4", f.support.uploadBody)

	resp, _ = f.do(t, http.MethodPost, "/support/3/files", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreatePayment(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/payments/", map[string]any{
		"first_name": "Иван", "last_name": "Петров", "amount": "150.50",
		"purpose": "Возврат", "payment_type": "fps", "phone": "+79001234567", "bank_member_id": "100000000111",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pay-1", body["payment_id"])
	assert.True(t, f.payments.req.Amount.Equal(decimal.RequireFromString("150.50")))
	assert.Equal(t, domain.BankDetailsFPS, f.payments.req.Requisites.Kind)
	require.NotNil(t, f.payments.req.CreatedBy)
	assert.Equal(t, int64(7), *f.payments.req.CreatedBy)

	resp, body = f.do(t, http.MethodPost, "/payments/", map[string]any{
		"first_name": "Иван", "last_name": "Петров", "amount": "10",
		"purpose": "Возврат", "payment_type": "card",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "card")

	resp, _ = f.do(t, http.MethodGet, "/payments/banks", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/payments/?limit=9999", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 50, f.payouts.limit)

	resp, _ = f.do(t, http.MethodGet, "/claims/0001/payments", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/claims/0002/payments", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSalesInbox(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/chats/?username=@buyer&has_unread=true", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "buyer", f.sales.filter.Username)
	require.NotNil(t, f.sales.filter.HasUnread)
	assert.True(t, *f.sales.filter.HasUnread)
	assert.Equal(t, []any{}, body["items"])

	resp, _ = f.do(t, http.MethodGet, "/chats/5/messages", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(5), f.sales.marked)

	resp, body = f.do(t, http.MethodPost, "/chats/6/messages", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "banned", body["code"])

	resp, _ = f.do(t, http.MethodPost, "/chats/5/messages", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, f.sales.added, 1)
	assert.True(t, f.sales.added[0].Delivered)
	assert.True(t, f.sales.added[0].FromAdmin)

	f.sender.err = errors.New("Forbidden: bot was blocked by the user")
	resp, body = f.do(t, http.MethodPost, "/chats/5/messages", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["delivered"])
	require.Len(t, f.sales.added, 2)
	assert.Equal(t, "hi"+domain.UndeliveredSuffix, f.sales.added[1].Text)

	resp, _ = f.do(t, http.MethodPost, "/chats/404/messages", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestParseDate(t *testing.T) {
	for _, raw := range []string{"2024-03-01", "01.03.2024", "2024-03-01T00:00", "2024-03-01T00:00:00Z"} {
		got, err := parseDate(raw, false)
		require.NoError(t, err, raw)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got.UTC(), raw)
	}
	got, err := parseDate("2024-03-01T10:30", true)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Hour())

	_, err = parseDate("yesterday", false)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	got, err = parseDate(" ", false)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
