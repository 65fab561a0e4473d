// Package konsol is a client for the Konsol payout API.
package konsol

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
)

// Client creates payees and payouts.
type Client interface {
	CreateContractor(ctx context.Context, req ContractorRequest) (Contractor, error)
	CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error)
}

// KindIndividual is the only contractor kind this service creates.
const KindIndividual = "individual"

// ContractorRequest registers a payee.
type ContractorRequest struct {
	Kind      string `json:"kind"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// Contractor is a registered payee.
type Contractor struct {
	ID string `json:"id"`
}

// Service is one line of a payment.
type Service struct {
	Title  string          `json:"title"`
	Amount decimal.Decimal `json:"amount"`
}

// BankDetails holds either FPS (phone + bank member id) or card requisites.
type BankDetails struct {
	FPSMobilePhone  string `json:"fps_mobile_phone,omitempty"`
	FPSBankMemberID string `json:"fps_bank_member_id,omitempty"`
	CardNumber      string `json:"card_number,omitempty"`
}

// PaymentRequest creates a payout to a contractor.
type PaymentRequest struct {
	ContractorID    string          `json:"contractor_id"`
	ServicesList    []Service       `json:"services_list"`
	BankDetailsKind string          `json:"bank_details_kind"`
	BankDetails     BankDetails     `json:"bank_details"`
	Purpose         string          `json:"purpose"`
	Amount          decimal.Decimal `json:"amount"`
}

// Payment is the provider's view of a payout.
type Payment struct {
	ID              string          `json:"id"`
	ContractorID    string          `json:"contractor_id"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	BankDetailsKind string          `json:"bank_details_kind"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
}

// New returns the mock client in mock mode and the HTTP client otherwise.
func New(cfg coreconfig.KonsolConfig, mock bool) Client {
	if mock {
		return NewMock()
	}
	return NewHTTPClient(cfg)
}
