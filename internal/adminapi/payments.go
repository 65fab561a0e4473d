package adminapi

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/payments"
)

type paymentRequest struct {
	FirstName    string          `json:"first_name" validate:"required,max=100"`
	LastName     string          `json:"last_name" validate:"required,max=100"`
	Amount       decimal.Decimal `json:"amount"`
	Purpose      string          `json:"purpose" validate:"required,max=500"`
	Kind         string          `json:"payment_type" validate:"required,oneof=fps card"`
	Phone        string          `json:"phone" validate:"required_if=Kind fps,max=32"`
	BankMemberID string          `json:"bank_member_id" validate:"required_if=Kind fps,max=32"`
	Card         string          `json:"card" validate:"required_if=Kind card,max=32"`
}

func (s *Server) createPayment(c fiber.Ctx) error {
	var req paymentRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	adminID := currentAdmin(c).AdminID
	pay, err := s.deps.Payments.CreateManual(c.Context(), payments.ManualRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Amount:    req.Amount,
		Purpose:   strings.TrimSpace(req.Purpose),
		Requisites: payments.Requisites{
			Kind:         domain.BankDetailsKind(req.Kind),
			Phone:        req.Phone,
			BankMemberID: req.BankMemberID,
			Card:         req.Card,
		},
		CreatedBy: &adminID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(pay)
}

func (s *Server) banks(c fiber.Ctx) error {
	banks, err := s.deps.Banks()
	if err != nil {
		return err
	}
	return c.JSON(banks)
}

func (s *Server) recentPayments(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return err
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	list, err := s.deps.Payouts.Recent(c.Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) claimPayments(c fiber.Ctx) error {
	claim, err := s.deps.Claims.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	list, err := s.deps.Payouts.ByClaim(c.Context(), claim.ClaimID)
	if err != nil {
		return err
	}
	return c.JSON(list)
}
