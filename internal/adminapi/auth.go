package adminapi

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/internal/admins"
	"github.com/m3rciful/claimdesk/internal/domain"
)

const localAdmin = "admin"

type loginRequest struct {
	Login    string `json:"login" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

func bearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAdmin resolves the bearer token and stores the account in Locals.
func (s *Server) requireAdmin(c fiber.Ctx) error {
	a, err := s.deps.Accounts.Authenticate(c.Context(), bearer(c.Get(fiber.HeaderAuthorization)))
	if errors.Is(err, admins.ErrBadCredentials) {
		return fiber.NewError(fiber.StatusUnauthorized, "Not authenticated")
	}
	if err != nil {
		return err
	}
	c.Locals(localAdmin, a)
	c.SetContext(logger.WithAdmin(c.Context(), a.AdminID))
	return c.Next()
}

func currentAdmin(c fiber.Ctx) domain.Administrator {
	a, _ := c.Locals(localAdmin).(domain.Administrator)
	return a
}

func (s *Server) login(c fiber.Ctx) error {
	var req loginRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	sess, err := s.deps.Accounts.Login(c.Context(), req.Login, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

func (s *Server) logout(c fiber.Ctx) error {
	if err := s.deps.Accounts.Logout(c.Context(), bearer(c.Get(fiber.HeaderAuthorization))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) me(c fiber.Ctx) error {
	return c.JSON(currentAdmin(c))
}
