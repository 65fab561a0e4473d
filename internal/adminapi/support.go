package adminapi

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/m3rciful/claimdesk/core/telegram/format"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/support"
)

type replyRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type rollbackRequest struct {
	Target string `json:"target" validate:"required,max=64"`
}

func (s *Server) supportID(c fiber.Ctx) (int64, error) { return paramInt64(c, "id") }

func (s *Server) listSupport(c fiber.Ctx) error {
	resolved, err := strconv.ParseBool(c.Query("resolved", "false"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid resolved")
	}
	sessions, err := s.deps.Support.List(c.Context(), resolved)
	if err != nil {
		return err
	}
	return c.JSON(sessions)
}

func (s *Server) getSupport(c fiber.Ctx) error {
	id, err := s.supportID(c)
	if err != nil {
		return err
	}
	v, err := s.deps.Support.Get(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(v)
}

func (s *Server) supportMessages(c fiber.Ctx) error {
	id, err := s.supportID(c)
	if err != nil {
		return err
	}
	msgs, err := s.deps.Support.Messages(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(msgs)
}

func (s *Server) supportReply(c fiber.Ctx) error {
	id, err := s.supportID(c)
	if err != nil {
		return err
	}
	var req replyRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	msg, err := s.deps.Support.Reply(c.Context(), id, req.Text)
	if err != nil {
		return err
	}
	return c.JSON(msg)
}

// supportUpload sends a multipart "file" with an optional "caption" field.
func (s *Server) supportUpload(c fiber.Ctx) error {
	id, err := s.supportID(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return domain.Invalid("File is required")
	}
	if limit := int64(s.deps.Config.UploadLimitMB) << 20; fh.Size > limit {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("File is larger than %d MB", s.deps.Config.UploadLimitMB))
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	mime := fh.Header.Get(fiber.HeaderContentType)
	if mime == "" {
		mime = fiber.MIMEOctetStream
	}
	res, err := s.deps.Support.SendFile(c.Context(), id, support.Upload{
		Name:    fh.Filename,
		MIME:    mime,
		Size:    fh.Size,
		Caption: c.FormValue("caption"),
		Body:    f,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) supportAttachment(c fiber.Ctx) error {
	id, err := s.supportID(c)
	if err != nil {
		return err
	}
	mid, err := paramInt64(c, "mid")
	if err != nil {
		return err
	}
	m, err := s.deps.Support.Attachment(c.Context(), id, mid)
	if err != nil {
		return err
	}
	if m.HasPhoto {
		return s.stream(c, format.Deref(m.PhotoFileID, ""), "image/jpeg", "")
	}
	return s.stream(c,
		format.Deref(m.DocumentFileID, ""),
		format.Deref(m.DocumentMIME, fiber.MIMEOctetStream),
		format.Deref(m.DocumentName, "file"),
	)
}

func (s *Server) supportStates(c fiber.Ctx) error {
	id, err := s.supportID(c)
	if err != nil {
		return err
	}
	targets, err := s.deps.Support.AvailableStates(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(targets)
}

func (s *Server) supportResolve(c fiber.Ctx) error {
	id, err := s.supportID(c)
	if err != nil {
		return err
	}
	sess, err := s.deps.Support.Resolve(c.Context(), id, currentAdmin(c).AdminID)
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

func (s *Server) supportRollback(c fiber.Ctx) error {
	id, err := s.supportID(c)
	if err != nil {
		return err
	}
	var req rollbackRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	sess, err := s.deps.Support.Rollback(c.Context(), id, currentAdmin(c).AdminID, req.Target)
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

func (s *Server) supportBan(c fiber.Ctx) error {
	id, err := s.supportID(c)
	if err != nil {
		return err
	}
	banned, err := s.deps.Support.ToggleBan(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"session_id": id, "banned": banned})
}
