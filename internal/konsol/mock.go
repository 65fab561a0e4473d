package konsol

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/m3rciful/claimdesk/core/logger"
)

// Mock accepts every request and records it. It is used in development and tests.
type Mock struct {
	mu          sync.Mutex
	Contractors []ContractorRequest
	Payments    []PaymentRequest

	// FailContractor and FailPayment, when set, are returned instead of a result.
	FailContractor error
	FailPayment    error
}

// NewMock returns an empty mock.
func NewMock() *Mock { return &Mock{} }

// CreateContractor records req and returns a fresh id.
func (m *Mock) CreateContractor(ctx context.Context, req ContractorRequest) (Contractor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailContractor != nil {
		return Contractor{}, m.FailContractor
	}
	m.Contractors = append(m.Contractors, req)
	id := "mock-ctr-" + ulid.Make().String()
	logger.LogEvent(ctx, logger.PAY, slog.LevelInfo, "konsol.mock_contractor", slog.String("contractor_id", id))
	return Contractor{ID: id}, nil
}

// CreatePayment records req and returns a pending payment.
func (m *Mock) CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPayment != nil {
		return Payment{}, m.FailPayment
	}
	m.Payments = append(m.Payments, req)
	now := time.Now().UTC()
	p := Payment{
		ID:              "mock-pay-" + ulid.Make().String(),
		ContractorID:    req.ContractorID,
		Status:          "pending",
		Amount:          req.Amount,
		BankDetailsKind: req.BankDetailsKind,
		CreatedAt:       &now,
	}
	logger.LogEvent(ctx, logger.PAY, slog.LevelInfo, "konsol.mock_payment", slog.String("payment_id", p.ID))
	return p, nil
}

// Counts returns how many contractors and payments were recorded.
func (m *Mock) Counts() (contractors, payments int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Contractors), len(m.Payments)
}
