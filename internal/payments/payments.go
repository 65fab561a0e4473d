// Package payments creates payouts through the payment provider: manual
// payouts from the admin panel and the requisites shared with claim payouts.
package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram/format"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/konsol"
)

// Store persists created payouts.
type Store interface {
	Insert(ctx context.Context, p domain.KonsolPayment) (domain.KonsolPayment, error)
}

// Requisites say where the money goes.
type Requisites struct {
	Kind         domain.BankDetailsKind
	Phone        string
	BankMemberID string
	Card         string
}

// Normalize validates the requisites for their kind and canonicalizes phone and card.
func (r Requisites) Normalize() (Requisites, error) {
	switch r.Kind {
	case domain.BankDetailsFPS:
		if strings.TrimSpace(r.BankMemberID) == "" {
			return r, domain.Invalid("Не указан ID банка для СБП")
		}
		if strings.TrimSpace(r.Phone) == "" {
			return r, domain.Invalid("Не указан номер телефона для СБП")
		}
		phone, err := NormalizePhone(r.Phone)
		if err != nil {
			return r, err
		}
		return Requisites{Kind: r.Kind, Phone: phone, BankMemberID: strings.TrimSpace(r.BankMemberID)}, nil
	case domain.BankDetailsCard:
		card, err := NormalizeCard(r.Card)
		if err != nil {
			return r, err
		}
		return Requisites{Kind: r.Kind, Card: card}, nil
	}
	return r, domain.Invalid(fmt.Sprintf("unknown payment type %q", r.Kind))
}

// Details renders the provider bank details.
func (r Requisites) Details() konsol.BankDetails {
	if r.Kind == domain.BankDetailsFPS {
		return konsol.BankDetails{FPSMobilePhone: r.Phone, FPSBankMemberID: r.BankMemberID}
	}
	return konsol.BankDetails{CardNumber: r.Card}
}

// ContractorPhone is the phone a contractor is registered with. Card payees
// have no phone, so a placeholder derived from ref is used.
func (r Requisites) ContractorPhone(ref string) string {
	if r.Kind == domain.BankDetailsFPS {
		return r.Phone
	}
	return "+79000" + ref
}

// PaymentRequest builds a single-service payment.
func PaymentRequest(contractorID, title, purpose string, amount decimal.Decimal, r Requisites) konsol.PaymentRequest {
	return konsol.PaymentRequest{
		ContractorID:    contractorID,
		ServicesList:    []konsol.Service{{Title: title, Amount: amount}},
		BankDetailsKind: string(r.Kind),
		BankDetails:     r.Details(),
		Purpose:         purpose,
		Amount:          amount,
	}
}

// ManualRequest is a payout entered by an operator.
type ManualRequest struct {
	FirstName  string
	LastName   string
	Amount     decimal.Decimal
	Purpose    string
	Requisites Requisites
	CreatedBy  *int64
}

// Service creates manual payouts.
type Service struct {
	client konsol.Client
	store  Store
	newID  func() ulid.ULID
}

// NewService wires the provider client and the payout store.
func NewService(client konsol.Client, store Store) *Service {
	return &Service{client: client, store: store, newID: ulid.Make}
}

// PaymentNumber is a six digit reference taken from the id's millisecond timestamp.
func PaymentNumber(id ulid.ULID) string {
	return fmt.Sprintf("%06d", id.Time()%1_000_000)
}

// CreateManual registers a contractor, creates the payment and stores it.
func (s *Service) CreateManual(ctx context.Context, req ManualRequest) (domain.KonsolPayment, error) {
	if !req.Amount.IsPositive() {
		return domain.KonsolPayment{}, domain.Invalid("Сумма должна быть больше нуля")
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return domain.KonsolPayment{}, domain.Invalid("Укажите имя и фамилию получателя")
	}
	reqs, err := req.Requisites.Normalize()
	if err != nil {
		return domain.KonsolPayment{}, err
	}
	number := PaymentNumber(s.newID())

	ctr, err := s.client.CreateContractor(ctx, konsol.ContractorRequest{
		Kind:      konsol.KindIndividual,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     reqs.ContractorPhone(number),
	})
	if err != nil {
		logger.LogEvent(ctx, logger.PAY, slog.LevelError, "payment.manual",
			slog.String("status", "fail"),
			slog.String("step", "contractor"),
			slog.String("payment_number", number),
			logger.Err(err),
		)
		return domain.KonsolPayment{}, fmt.Errorf("create contractor: %w", err)
	}

	pay, err := s.client.CreatePayment(ctx, PaymentRequest(ctr.ID, "Ручная выплата #"+number, req.Purpose, req.Amount, reqs))
	if err != nil {
		logger.LogEvent(ctx, logger.PAY, slog.LevelError, "payment.manual",
			slog.String("status", "fail"),
			slog.String("step", "payment"),
			slog.String("payment_number", number),
			slog.String("contractor_id", ctr.ID),
			logger.Err(err),
		)
		return domain.KonsolPayment{}, fmt.Errorf("create payment: %w", err)
	}

	rec := Record(pay, ctr.ID, req.Amount, req.Purpose, reqs)
	rec.PaymentNumber = &number
	rec.FirstName = strings.TrimSpace(req.FirstName)
	rec.LastName = strings.TrimSpace(req.LastName)
	rec.CreatedBy = req.CreatedBy

	saved, err := s.store.Insert(ctx, rec)
	if err != nil {
		// The provider already holds the payment; the log line is the only trace of it.
		logger.LogEvent(ctx, logger.PAY, slog.LevelError, "payment.manual",
			slog.String("status", "fail"),
			slog.String("step", "persist"),
			slog.String("payment_id", pay.ID),
			logger.Err(err),
		)
		return domain.KonsolPayment{}, fmt.Errorf("store payment %s: %w", pay.ID, err)
	}
	logger.LogEvent(ctx, logger.PAY, slog.LevelInfo, "payment.manual",
		slog.String("status", "ok"),
		slog.String("payment_id", pay.ID),
		slog.String("payment_number", number),
		slog.String("kind", string(reqs.Kind)),
		slog.String("amount", req.Amount.StringFixed(2)),
	)
	return saved, nil
}

// Record maps a provider payment to its stored form.
func Record(pay konsol.Payment, contractorID string, amount decimal.Decimal, purpose string, r Requisites) domain.KonsolPayment {
	return domain.KonsolPayment{
		PaymentID:       pay.ID,
		ContractorID:    contractorID,
		Amount:          amount,
		Status:          pay.Status,
		BankDetailsKind: r.Kind,
		Purpose:         purpose,
		Phone:           format.Ptr(r.Phone),
		Card:            format.Ptr(r.Card),
		BankMemberID:    format.Ptr(r.BankMemberID),
	}
}
