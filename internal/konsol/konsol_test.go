package konsol

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
)

func TestHTTPClientCreatePayment(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pay-1","status":"created","amount":"500.00","contractor_id":"c-1"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(coreconfig.KonsolConfig{BaseURL: srv.URL + "/", Token: "secret", TimeoutSeconds: 5})
	p, err := c.CreatePayment(context.Background(), PaymentRequest{
		ContractorID:    "c-1",
		BankDetailsKind: "fps",
		BankDetails:     BankDetails{FPSMobilePhone: "+79001234567", FPSBankMemberID: "100000000004"},
		Amount:          decimal.RequireFromString("500.00"),
		Purpose:         "promo",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if p.ID != "pay-1" || p.Status != "created" || !p.Amount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("unexpected payment %+v", p)
	}
	if got["amount"] != "500" {
		t.Fatalf("amount must be sent as a string, got %#v", got["amount"])
	}
	details := got["bank_details"].(map[string]any)
	if _, ok := details["card_number"]; ok {
		t.Fatalf("empty card number must be omitted: %v", details)
	}
}

func TestHTTPClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"phone invalid"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewHTTPClient(coreconfig.KonsolConfig{BaseURL: srv.URL})
	_, err := c.CreateContractor(context.Background(), ContractorRequest{Kind: KindIndividual})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Endpoint != "/contractors" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestHTTPClientEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(coreconfig.KonsolConfig{BaseURL: srv.URL})
	if _, err := c.CreateContractor(context.Background(), ContractorRequest{}); err == nil {
		t.Fatalf("expected error for empty contractor id")
	}
}

func TestMockRecordsAndFails(t *testing.T) {
	m := NewMock()
	ctr, err := m.CreateContractor(context.Background(), ContractorRequest{Phone: "+7"})
	if err != nil || ctr.ID == "" {
		t.Fatalf("unexpected contractor %v %v", ctr, err)
	}
	m.FailPayment = errors.New("boom")
	if _, err := m.CreatePayment(context.Background(), PaymentRequest{}); err == nil {
		t.Fatalf("expected injected failure")
	}
	if c, p := m.Counts(); c != 1 || p != 0 {
		t.Fatalf("unexpected counts %d %d", c, p)
	}
}

func TestNewSelectsImplementation(t *testing.T) {
	if _, ok := New(coreconfig.KonsolConfig{}, true).(*Mock); !ok {
		t.Fatalf("mock mode must return the mock")
	}
	if _, ok := New(coreconfig.KonsolConfig{BaseURL: "http://x"}, false).(*HTTPClient); !ok {
		t.Fatalf("production must return the http client")
	}
}
