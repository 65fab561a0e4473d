package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// ClaimStatus is the admin facing claim state.
type ClaimStatus string

const (
	ClaimNotCompleted ClaimStatus = "not_completed"
	ClaimProcess      ClaimStatus = "process"
	ClaimPending      ClaimStatus = "pending"
	ClaimConfirm      ClaimStatus = "confirm"
	ClaimCancelled    ClaimStatus = "cancelled"
)

// ParseClaimStatus accepts only the known statuses.
func ParseClaimStatus(s string) (ClaimStatus, error) {
	switch st := ClaimStatus(s); st {
	case ClaimNotCompleted, ClaimProcess, ClaimPending, ClaimConfirm, ClaimCancelled:
		return st, nil
	}
	return "", Invalid(fmt.Sprintf("unknown claim status %q", s))
}

// Closing reports whether entering the status ends the claim chat.
func (s ClaimStatus) Closing() bool {
	return s == ClaimConfirm || s == ClaimCancelled
}

// ProcessStatus tracks whether the bot side of a claim is finished.
type ProcessStatus string

const (
	ProcessRunning  ProcessStatus = "process"
	ProcessComplete ProcessStatus = "complete"
)

// PaymentMethod selected by the user during registration.
type PaymentMethod string

const (
	PaymentUnknown PaymentMethod = "unknown"
	PaymentPhone   PaymentMethod = "phone"
	PaymentCard    PaymentMethod = "card"
)

// Claim is a user's payout request tied to a promo code.
type Claim struct {
	ClaimID         string         `db:"claim_id" json:"claim_id"`
	UserID          int64          `db:"user_id" json:"user_id"`
	Code            string         `db:"code" json:"code"`
	CodeStatus      string         `db:"code_status" json:"code_status"`
	ProcessStatus   ProcessStatus  `db:"process_status" json:"process_status"`
	ClaimStatus     ClaimStatus    `db:"claim_status" json:"claim_status"`
	PaymentMethod   PaymentMethod  `db:"payment_method" json:"payment_method"`
	Phone           *string        `db:"phone" json:"phone"`
	Card            *string        `db:"card" json:"card"`
	Bank            *string        `db:"bank" json:"bank"`
	BankMemberID    *string        `db:"bank_member_id" json:"bank_member_id"`
	ReviewText      *string        `db:"review_text" json:"review_text"`
	PhotoFileIDs    pq.StringArray `db:"photo_file_ids" json:"photo_file_ids"`
	ContractorID    *string        `db:"contractor_id" json:"contractor_id,omitempty"`
	KonsolPaymentID *string        `db:"konsol_payment_id" json:"konsol_payment_id,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ClaimRow is a listed claim with the owner's handle and chat flag.
type ClaimRow struct {
	Claim
	Username     *string `db:"username" json:"username"`
	IsChatActive bool    `db:"is_chat_active" json:"is_chat_active"`
}

// FormatClaimID renders a sequence value as a zero padded claim number.
func FormatClaimID(n int64) string {
	return fmt.Sprintf("%06d", n)
}

// Submission is the payment data collected by the registration dialogue.
type Submission struct {
	ClaimID      string
	Phone        string
	Card         string
	Bank         string
	ReviewText   string
	PhotoFileIDs []string
}

// Method returns the payment method implied by the submission.
func (s Submission) Method() PaymentMethod {
	if s.Phone != "" {
		return PaymentPhone
	}
	return PaymentCard
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// ClaimFilter selects claims for the admin list. Zero fields do not filter.
type ClaimFilter struct {
	UserID   int64
	Status   ClaimStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}

// DefaultClaimPageSize applies when a filter leaves PageSize unset.
const DefaultClaimPageSize = 50
