// Package claims owns claim numbering, the registration hand-off, the admin
// listing and the status lifecycle with its payout side effects.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/konsol"
)

// Repository is the claim storage the service needs.
type Repository interface {
	NextClaimID(ctx context.Context) (string, error)
	Create(ctx context.Context, c domain.Claim) (domain.Claim, error)
	Get(ctx context.Context, claimID string) (domain.Claim, error)
	Finalize(ctx context.Context, s domain.Submission) (domain.Claim, error)
	List(ctx context.Context, f domain.ClaimFilter) ([]domain.ClaimRow, error)
	Count(ctx context.Context, f domain.ClaimFilter) (int, error)
	// Transition is a compare-and-set on claim_status; a claim no longer in from yields ErrConflict.
	Transition(ctx context.Context, claimID string, from, st domain.ClaimStatus, ps domain.ProcessStatus) error
	SetContractor(ctx context.Context, claimID, contractorID string) error
	SetBankMember(ctx context.Context, claimID, bankMemberID string) error
	RecordPayout(ctx context.Context, p domain.KonsolPayment) (domain.KonsolPayment, error)
}

// ChatCloser ends the claim chat.
type ChatCloser interface {
	Close(ctx context.Context, claimID string) (domain.ChatSession, error)
}

// Notifier delivers best-effort messages to users.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup)
}

// Payout configures claim payouts.
type Payout struct {
	Amount  decimal.Decimal
	Purpose string
}

// Service implements claim operations.
type Service struct {
	repo   Repository
	konsol konsol.Client
	chats  ChatCloser
	notify Notifier
	payout Payout
}

// NewService wires the service. chats and notify may be nil.
func NewService(repo Repository, client konsol.Client, chats ChatCloser, notify Notifier, payout Payout) *Service {
	return &Service{repo: repo, konsol: client, chats: chats, notify: notify, payout: payout}
}

// CodeStatusValid marks a claim opened with an accepted code.
const CodeStatusValid = "valid"

// Start opens a not yet completed claim for the user.
func (s *Service) Start(ctx context.Context, userID int64, code string) (domain.Claim, error) {
	id, err := s.repo.NextClaimID(ctx)
	if err != nil {
		return domain.Claim{}, fmt.Errorf("next claim id: %w", err)
	}
	c, err := s.repo.Create(ctx, domain.Claim{
		ClaimID:       id,
		UserID:        userID,
		Code:          code,
		CodeStatus:    CodeStatusValid,
		ProcessStatus: domain.ProcessRunning,
		ClaimStatus:   domain.ClaimNotCompleted,
		PaymentMethod: domain.PaymentUnknown,
		PhotoFileIDs:  []string{},
	})
	if err != nil {
		return domain.Claim{}, fmt.Errorf("create claim: %w", err)
	}
	logger.LogEvent(ctx, logger.CLAIM, slog.LevelInfo, "claim.start",
		slog.String("claim_id", c.ClaimID),
		slog.Int64("user_id", userID),
	)
	return c, nil
}

var phoneRe = regexp.MustCompile(`^(?:\+7|8)\d{10}$`)

// ValidPhone checks the registration phone format.
func ValidPhone(s string) bool {
	return phoneRe.MatchString(strings.TrimSpace(s))
}

// CleanCard strips spaces and reports whether 16 digits remain.
func CleanCard(s string) (string, bool) {
	c := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if len(c) != 16 {
		return c, false
	}
	for _, r := range c {
		if r < '0' || r > '9' {
			return c, false
		}
	}
	return c, true
}

// Finalize validates the collected payment data and completes the claim.
func (s *Service) Finalize(ctx context.Context, sub domain.Submission) (domain.Claim, error) {
	if sub.ClaimID == "" {
		return domain.Claim{}, domain.Invalid("claim id is required")
	}
	switch sub.Method() {
	case domain.PaymentPhone:
		sub.Phone = strings.TrimSpace(sub.Phone)
		if !ValidPhone(sub.Phone) {
			return domain.Claim{}, domain.Invalid("invalid phone number")
		}
		if strings.TrimSpace(sub.Bank) == "" {
			return domain.Claim{}, domain.Invalid("bank is required for phone payouts")
		}
		sub.Card = ""
	default:
		card, ok := CleanCard(sub.Card)
		if !ok {
			return domain.Claim{}, domain.Invalid("card number must have 16 digits")
		}
		sub.Card = card
	}
	sub.Bank = strings.TrimSpace(sub.Bank)

	c, err := s.repo.Finalize(ctx, sub)
	if err != nil {
		return domain.Claim{}, fmt.Errorf("finalize claim %s: %w", sub.ClaimID, err)
	}
	logger.LogEvent(ctx, logger.CLAIM, slog.LevelInfo, "claim.finalize",
		slog.String("claim_id", c.ClaimID),
		slog.String("method", string(c.PaymentMethod)),
		slog.Int("photos", len(c.PhotoFileIDs)),
	)
	return c, nil
}

// Get loads a claim.
func (s *Service) Get(ctx context.Context, claimID string) (domain.Claim, error) {
	c, err := s.repo.Get(ctx, claimID)
	if errors.Is(err, domain.ErrNotFound) {
		return c, domain.NotFound("Claim not found")
	}
	return c, err
}

// Page is one page of the claim list.
type Page struct {
	Items    []domain.ClaimRow `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// List returns the claims matching f with the total count.
func (s *Service) List(ctx context.Context, f domain.ClaimFilter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = domain.DefaultClaimPageSize
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return Page{}, domain.Invalid("date_to is before date_from")
	}
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}
