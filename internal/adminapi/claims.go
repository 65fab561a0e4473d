package adminapi

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/m3rciful/claimdesk/core/telegram/format"
	"github.com/m3rciful/claimdesk/internal/chat"
	"github.com/m3rciful/claimdesk/internal/claims"
	"github.com/m3rciful/claimdesk/internal/domain"
)

type statusRequest struct {
	Status       string `json:"status" validate:"required,max=32"`
	BankMemberID string `json:"bank_member_id" validate:"omitempty,max=32"`
	FirstName    string `json:"first_name" validate:"omitempty,max=100"`
	LastName     string `json:"last_name" validate:"omitempty,max=100"`
}

type chatRequest struct {
	Text        string `json:"text" validate:"required_without=PhotoFileID,max=4000"`
	PhotoFileID string `json:"photo_file_id" validate:"omitempty,max=256"`
}

func (s *Server) listClaims(c fiber.Ctx) error {
	var (
		f   domain.ClaimFilter
		err error
	)
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		if f.UserID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid user_id")
		}
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		if f.Status, err = domain.ParseClaimStatus(raw); err != nil {
			return err
		}
	}
	if f.DateFrom, f.DateTo, err = dateRange(c); err != nil {
		return err
	}
	if f.Page, err = queryInt(c, "page", 1); err != nil {
		return err
	}
	if f.PageSize, err = queryInt(c, "page_size", domain.DefaultClaimPageSize); err != nil {
		return err
	}
	if f.PageSize > 500 {
		f.PageSize = 500
	}
	page, err := s.deps.Claims.List(c.Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) getClaim(c fiber.Ctx) error {
	claim, err := s.deps.Claims.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(claim)
}

func (s *Server) updateStatus(c fiber.Ctx) error {
	var req statusRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	adminID := currentAdmin(c).AdminID
	res, err := s.deps.Claims.UpdateStatus(c.Context(), claims.StatusChange{
		ClaimID:      c.Params("id"),
		Status:       req.Status,
		BankMemberID: strings.TrimSpace(req.BankMemberID),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		AdminID:      &adminID,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// claimPhoto streams one of the screenshots attached to the claim.
func (s *Server) claimPhoto(c fiber.Ctx) error {
	claim, err := s.deps.Claims.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(c.Params("index"))
	if err != nil || idx < 0 || idx >= len(claim.PhotoFileIDs) {
		return domain.NotFound("Photo not found")
	}
	return s.stream(c, claim.PhotoFileIDs[idx], "image/jpeg", "")
}

func (s *Server) startChat(c fiber.Ctx) error {
	sess, err := s.deps.Chats.Start(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

func (s *Server) closeChat(c fiber.Ctx) error {
	sess, err := s.deps.Chats.Close(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

func (s *Server) chatHistory(c fiber.Ctx) error {
	msgs, err := s.deps.Chats.History(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"claim_id": c.Params("id"), "messages": msgs})
}

func (s *Server) sendChat(c fiber.Ctx) error {
	var req chatRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	res, err := s.deps.Chats.Send(c.Context(), chat.Outgoing{
		ClaimID:     c.Params("id"),
		Text:        req.Text,
		PhotoFileID: strings.TrimSpace(req.PhotoFileID),
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) chatPhoto(c fiber.Ctx) error {
	id, err := paramInt64(c, "mid")
	if err != nil {
		return err
	}
	m, err := s.deps.Chats.Attachment(c.Context(), id)
	if err != nil {
		return err
	}
	if m.HasPhoto {
		return s.stream(c, format.Deref(m.PhotoFileID, ""), "image/jpeg", "")
	}
	return s.stream(c, format.Deref(m.PhotoFileID, ""),
		format.Deref(m.MimeType, "application/octet-stream"), format.Deref(m.FileName, "document"))
}

// stream copies a Telegram file into the response body.
func (s *Server) stream(c fiber.Ctx, fileID, mime, name string) error {
	body, err := s.download(c.Context(), fileID)
	if err != nil {
		return err
	}
	if name != "" {
		c.Attachment(name)
	}
	c.Set(fiber.HeaderContentType, mime)
	return c.SendStream(body)
}

func (s *Server) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if s.deps.Files == nil || fileID == "" {
		return nil, domain.NotFound("File not found")
	}
	body, err := s.deps.Files.Download(ctx, fileID)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadGateway, "Telegram file is unavailable")
	}
	return body, nil
}
