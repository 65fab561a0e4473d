package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankDetailsKind selects the payout rail.
type BankDetailsKind string

const (
	BankDetailsFPS  BankDetailsKind = "fps"
	BankDetailsCard BankDetailsKind = "card"
)

// KonsolPayment is a payout created at the payment provider.
type KonsolPayment struct {
	ID              int64           `db:"id" json:"id"`
	PaymentID       string          `db:"payment_id" json:"payment_id"`
	ContractorID    string          `db:"contractor_id" json:"contractor_id"`
	ClaimID         *string         `db:"claim_id" json:"claim_id,omitempty"`
	PaymentNumber   *string         `db:"payment_number" json:"payment_number,omitempty"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Status          string          `db:"status" json:"status"`
	BankDetailsKind BankDetailsKind `db:"bank_details_kind" json:"bank_details_kind"`
	Purpose         string          `db:"purpose" json:"purpose"`
	FirstName       string          `db:"first_name" json:"first_name"`
	LastName        string          `db:"last_name" json:"last_name"`
	Phone           *string         `db:"phone" json:"phone,omitempty"`
	Card            *string         `db:"card" json:"card,omitempty"`
	BankMemberID    *string         `db:"bank_member_id" json:"bank_member_id,omitempty"`
	CreatedBy       *int64          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}
