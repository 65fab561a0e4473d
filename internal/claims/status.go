package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram/format"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/konsol"
	"github.com/m3rciful/claimdesk/internal/payments"
)

// StatusChange is an operator request to move a claim.
type StatusChange struct {
	ClaimID string
	Status  string
	// BankMemberID selects the FPS bank for phone payouts; the stored one is used when empty.
	BankMemberID string
	FirstName    string
	LastName     string
	AdminID      *int64
}

// StatusResult reports the applied change.
type StatusResult struct {
	ClaimID string                `json:"claim_id"`
	Status  domain.ClaimStatus    `json:"status"`
	Payment *domain.KonsolPayment `json:"payment,omitempty"`
}

// UpdateStatus moves a claim along its lifecycle. Entering pending creates
// the payout; confirm and cancelled close the claim chat.
func (s *Service) UpdateStatus(ctx context.Context, ch StatusChange) (StatusResult, error) {
	_, event, err := AdminEvent(ch.Status)
	if err != nil {
		return StatusResult{}, err
	}
	claim, err := s.Get(ctx, ch.ClaimID)
	if err != nil {
		return StatusResult{}, err
	}
	target, err := advance(ctx, claim.ClaimID, claim.ClaimStatus, event)
	if err != nil {
		return StatusResult{}, err
	}

	res := StatusResult{ClaimID: claim.ClaimID, Status: target}
	ps := processFor(target)
	if target == domain.ClaimPending {
		pay, err := s.createPayout(ctx, claim, ch, ps)
		if err != nil {
			return StatusResult{}, err
		}
		res.Payment = &pay
	} else if err := s.repo.Transition(ctx, claim.ClaimID, claim.ClaimStatus, target, ps); err != nil {
		return StatusResult{}, fmt.Errorf("update claim %s: %w", claim.ClaimID, err)
	}
	logTransition(ctx, claim.ClaimID, claim.ClaimStatus, target, event)

	if target.Closing() && s.chats != nil {
		if _, err := s.chats.Close(ctx, claim.ClaimID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.LogEvent(ctx, logger.CLAIM, slog.LevelWarn, "claim.close_chat",
				slog.String("status", "fail"),
				slog.String("claim_id", claim.ClaimID),
				logger.Err(err),
			)
		}
	}
	if s.notify != nil {
		if text := statusText(claim.ClaimID, target); text != "" {
			s.notify.Notify(ctx, claim.UserID, text, nil)
		}
	}
	return res, nil
}

func statusText(claimID string, st domain.ClaimStatus) string {
	id := format.Escape(claimID)
	switch st {
	case domain.ClaimPending:
		return "💸 По заявке #" + id + " создана выплата. Деньги поступят в ближайшее время."
	case domain.ClaimConfirm:
		return "✅ Заявка #" + id + " подтверждена."
	case domain.ClaimCancelled:
		return "❌ Заявка #" + id + " отклонена."
	}
	return ""
}

func (s *Service) requisites(claim domain.Claim, ch StatusChange) (payments.Requisites, error) {
	switch claim.PaymentMethod {
	case domain.PaymentPhone:
		bank := strings.TrimSpace(ch.BankMemberID)
		if bank == "" {
			bank = format.Deref(claim.BankMemberID, "")
		}
		return payments.Requisites{
			Kind:         domain.BankDetailsFPS,
			Phone:        format.Deref(claim.Phone, ""),
			BankMemberID: bank,
		}.Normalize()
	case domain.PaymentCard:
		return payments.Requisites{Kind: domain.BankDetailsCard, Card: format.Deref(claim.Card, "")}.Normalize()
	}
	return payments.Requisites{}, domain.Invalid("claim " + claim.ClaimID + " has no payment details")
}

// createPayout reserves the claim as pending, then runs contractor -> payment -> persist.
// The contractor id is stored as soon as it exists so a retried pending reuses it.
// A failure before the provider accepts the payment puts the claim back; once the
// payment exists the claim stays pending.
func (s *Service) createPayout(ctx context.Context, claim domain.Claim, ch StatusChange, ps domain.ProcessStatus) (domain.KonsolPayment, error) {
	if s.konsol == nil || !s.payout.Amount.IsPositive() {
		return domain.KonsolPayment{}, domain.Invalid("payout amount is not configured")
	}
	reqs, err := s.requisites(claim, ch)
	if err != nil {
		return domain.KonsolPayment{}, err
	}
	if reqs.Kind == domain.BankDetailsFPS && reqs.BankMemberID != format.Deref(claim.BankMemberID, "") {
		if err := s.repo.SetBankMember(ctx, claim.ClaimID, reqs.BankMemberID); err != nil {
			return domain.KonsolPayment{}, fmt.Errorf("store bank member: %w", err)
		}
	}

	first := strings.TrimSpace(ch.FirstName)
	if first == "" {
		first = "Получатель"
	}
	last := strings.TrimSpace(ch.LastName)
	if last == "" {
		last = claim.ClaimID
	}

	if err := s.repo.Transition(ctx, claim.ClaimID, claim.ClaimStatus, domain.ClaimPending, ps); err != nil {
		return domain.KonsolPayment{}, fmt.Errorf("reserve claim %s: %w", claim.ClaimID, err)
	}

	fail := func(step string, err error) error {
		logger.LogEvent(ctx, logger.PAY, slog.LevelError, "claim.payout",
			slog.String("status", "fail"),
			slog.String("claim_id", claim.ClaimID),
			slog.String("step", step),
			logger.Err(err),
		)
		return fmt.Errorf("claim %s payout %s: %w", claim.ClaimID, step, err)
	}
	abort := func(step string, err error) error {
		s.release(ctx, claim)
		return fail(step, err)
	}

	contractorID := format.Deref(claim.ContractorID, "")
	if contractorID == "" {
		ctr, err := s.konsol.CreateContractor(ctx, konsol.ContractorRequest{
			Kind:      konsol.KindIndividual,
			FirstName: first,
			LastName:  last,
			Phone:     reqs.ContractorPhone(claim.ClaimID),
		})
		if err != nil {
			return domain.KonsolPayment{}, abort("contractor", err)
		}
		contractorID = ctr.ID
		if err := s.repo.SetContractor(ctx, claim.ClaimID, contractorID); err != nil {
			return domain.KonsolPayment{}, abort("store_contractor", err)
		}
	}

	purpose := s.payout.Purpose
	pay, err := s.konsol.CreatePayment(ctx, payments.PaymentRequest(contractorID,
		"Выплата по заявке #"+claim.ClaimID, purpose, s.payout.Amount, reqs))
	if err != nil {
		return domain.KonsolPayment{}, abort("payment", err)
	}

	rec := payments.Record(pay, contractorID, s.payout.Amount, purpose, reqs)
	claimID := claim.ClaimID
	rec.ClaimID = &claimID
	rec.PaymentNumber = &claimID
	rec.FirstName = first
	rec.LastName = last
	rec.CreatedBy = ch.AdminID

	saved, err := s.repo.RecordPayout(ctx, rec)
	if err != nil {
		logger.LogEvent(ctx, logger.PAY, slog.LevelError, "claim.payout_unrecorded",
			slog.String("claim_id", claim.ClaimID),
			slog.String("payment_id", pay.ID),
		)
		return domain.KonsolPayment{}, fail("persist", err)
	}
	logger.LogEvent(ctx, logger.PAY, slog.LevelInfo, "claim.payout",
		slog.String("status", "ok"),
		slog.String("claim_id", claim.ClaimID),
		slog.String("payment_id", saved.PaymentID),
		slog.String("kind", string(reqs.Kind)),
	)
	return saved, nil
}

// release returns a reserved claim to the status it had before the payout attempt.
func (s *Service) release(ctx context.Context, claim domain.Claim) {
	err := s.repo.Transition(context.WithoutCancel(ctx), claim.ClaimID, domain.ClaimPending, claim.ClaimStatus, claim.ProcessStatus)
	if err != nil {
		logger.LogEvent(ctx, logger.PAY, slog.LevelError, "claim.release",
			slog.String("status", "fail"),
			slog.String("claim_id", claim.ClaimID),
			slog.String("restore", string(claim.ClaimStatus)),
			logger.Err(err),
		)
	}
}
