// Package adminapi is the admin panel HTTP API: claims and their chats,
// the support inbox, manual payouts and the sales bot inbox.
package adminapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/oklog/ulid/v2"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/buildinfo"
	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/internal/admins"
	"github.com/m3rciful/claimdesk/internal/chat"
	"github.com/m3rciful/claimdesk/internal/claims"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/konsol"
	"github.com/m3rciful/claimdesk/internal/payments"
	"github.com/m3rciful/claimdesk/internal/storage/mongostore"
	"github.com/m3rciful/claimdesk/internal/support"
)

// Accounts authenticates panel users.
type Accounts interface {
	Login(ctx context.Context, login, password string) (admins.Session, error)
	Authenticate(ctx context.Context, token string) (domain.Administrator, error)
	Logout(ctx context.Context, token string) error
}

// Claims is the claim service.
type Claims interface {
	Get(ctx context.Context, claimID string) (domain.Claim, error)
	List(ctx context.Context, f domain.ClaimFilter) (claims.Page, error)
	UpdateStatus(ctx context.Context, ch claims.StatusChange) (claims.StatusResult, error)
}

// Chats is the claim chat coordinator.
type Chats interface {
	Start(ctx context.Context, claimID string) (domain.ChatSession, error)
	Close(ctx context.Context, claimID string) (domain.ChatSession, error)
	Send(ctx context.Context, out chat.Outgoing) (chat.SendResult, error)
	History(ctx context.Context, claimID string) ([]domain.ChatMessage, error)
	Attachment(ctx context.Context, messageID int64) (domain.ChatMessage, error)
}

// Support is the operator side of the ticket inbox.
type Support interface {
	List(ctx context.Context, resolved bool) ([]support.SessionView, error)
	Get(ctx context.Context, sessionID int64) (support.SessionView, error)
	Messages(ctx context.Context, sessionID int64) ([]domain.SupportMessage, error)
	Attachment(ctx context.Context, sessionID, messageID int64) (domain.SupportMessage, error)
	Reply(ctx context.Context, sessionID int64, text string) (domain.SupportMessage, error)
	SendFile(ctx context.Context, sessionID int64, up support.Upload) (support.UploadResult, error)
	ToggleBan(ctx context.Context, sessionID int64) (bool, error)
	AvailableStates(ctx context.Context, sessionID int64) ([]support.Target, error)
	Resolve(ctx context.Context, sessionID, adminID int64) (domain.SupportSession, error)
	Rollback(ctx context.Context, sessionID, adminID int64, target string) (domain.SupportSession, error)
}

// Payments creates manual payouts.
type Payments interface {
	CreateManual(ctx context.Context, req payments.ManualRequest) (domain.KonsolPayment, error)
}

// PaymentLog lists stored payouts.
type PaymentLog interface {
	Recent(ctx context.Context, limit int) ([]domain.KonsolPayment, error)
	ByClaim(ctx context.Context, claimID string) ([]domain.KonsolPayment, error)
}

// SalesInbox is the sales bot message store.
type SalesInbox interface {
	Chats(ctx context.Context, f mongostore.ChatFilter) ([]domain.SalesChat, int64, error)
	History(ctx context.Context, userID int64) ([]domain.SalesMessage, error)
	MarkChecked(ctx context.Context, userID int64) (int64, error)
	AddMessage(ctx context.Context, m domain.SalesMessage) (domain.SalesMessage, error)
	User(ctx context.Context, tgID int64) (domain.SalesUser, error)
	SetBanned(ctx context.Context, tgID int64, banned bool) error
}

// Sender delivers operator text through a bot.
type Sender interface {
	SendHTML(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (int, error)
}

// Files streams Telegram files so bot tokens never reach the browser.
type Files interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Deps collects the API collaborators.
type Deps struct {
	Config   coreconfig.HTTPConfig
	Accounts Accounts
	Claims   Claims
	Chats    Chats
	Support  Support
	Payments Payments
	Payouts  PaymentLog
	Banks    func() ([]payments.Bank, error)
	Sales    SalesInbox
	// SalesBot sends operator replies in the sales inbox. Replies are refused
	// when it is nil.
	SalesBot Sender
	// Files reads attachments received by the claims bot.
	Files Files
}

// Server is the admin API.
type Server struct {
	deps     Deps
	app      *fiber.App
	validate *validator.Validate
}

const (
	defaultUploadMB = 20
	textLimit       = 4000
)

// New builds the fiber app with its middleware and routes.
func New(d Deps) *Server {
	if d.Config.UploadLimitMB <= 0 {
		d.Config.UploadLimitMB = defaultUploadMB
	}
	if d.Banks == nil {
		d.Banks = payments.Banks
	}
	s := &Server{deps: d, validate: validator.New(validator.WithRequiredStructEnabled())}
	s.app = fiber.New(fiber.Config{
		AppName:      "claimdesk admin",
		BodyLimit:    (d.Config.UploadLimitMB + 1) << 20,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: errorHandler,
	})
	s.middleware()
	s.routes()
	return s
}

// App exposes the fiber app, mostly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) middleware() {
	s.app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: func() string { return ulid.Make().String() },
	}))
	s.app.Use(func(c fiber.Ctx) error {
		ctx := logger.WithRID(c.Context(), requestid.FromContext(c))
		c.SetContext(logger.WithRoute(ctx, c.Method(), c.Path()))
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the error handler write the status before it is logged.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		logger.LogEvent(c.Context(), logger.HTTP, slog.LevelDebug, "http.request",
			slog.Int("code", c.Response().StatusCode()),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
		return nil
	})

	origins := []string{"*"}
	if raw := strings.TrimSpace(s.deps.Config.CORSOrigins); raw != "" && raw != "*" {
		origins = origins[:0]
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodDelete, fiber.MethodOptions},
		AllowHeaders:  []string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, fiber.HeaderAuthorization, fiber.HeaderXRequestID},
		ExposeHeaders: []string{fiber.HeaderXRequestID},
		MaxAge:        24 * 60 * 60,
	}))

	if s.deps.Config.RateLimitMax > 0 {
		window := time.Duration(s.deps.Config.RateLimitWindowSec) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		s.app.Use(limiter.New(limiter.Config{
			Max:          s.deps.Config.RateLimitMax,
			Expiration:   window,
			KeyGenerator: func(c fiber.Ctx) string { return c.IP() },
			LimitReached: func(c fiber.Ctx) error {
				return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests")
			},
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/health" || c.Method() == fiber.MethodOptions
			},
		}))
	}

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			logger.LogEvent(c.Context(), logger.HTTP, slog.LevelError, "http.panic",
				slog.Any("panic", e),
			)
		},
	}))
}

func (s *Server) routes() {
	s.app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": buildinfo.String()})
	})

	auth := s.app.Group("/auth")
	auth.Post("/login", s.login)
	auth.Post("/logout", s.requireAdmin, s.logout)
	auth.Get("/me", s.requireAdmin, s.me)

	cl := s.app.Group("/claims", s.requireAdmin)
	cl.Get("/", s.listClaims)
	cl.Get("/chat/messages/:mid/photo", s.chatPhoto)
	cl.Get("/:id", s.getClaim)
	cl.Post("/:id/status", s.updateStatus)
	cl.Get("/:id/photos/:index", s.claimPhoto)
	cl.Get("/:id/payments", s.claimPayments)
	cl.Post("/:id/chat/start", s.startChat)
	cl.Post("/:id/chat/close", s.closeChat)
	cl.Get("/:id/chat/messages", s.chatHistory)
	cl.Post("/:id/chat/messages", s.sendChat)

	sp := s.app.Group("/support", s.requireAdmin)
	sp.Get("/", s.listSupport)
	sp.Get("/:id", s.getSupport)
	sp.Get("/:id/messages", s.supportMessages)
	sp.Post("/:id/messages", s.supportReply)
	sp.Post("/:id/files", s.supportUpload)
	sp.Get("/:id/messages/:mid/file", s.supportAttachment)
	sp.Get("/:id/states", s.supportStates)
	sp.Post("/:id/resolve", s.supportResolve)
	sp.Post("/:id/rollback", s.supportRollback)
	sp.Post("/:id/ban", s.supportBan)

	pay := s.app.Group("/payments", s.requireAdmin)
	pay.Get("/", s.recentPayments)
	pay.Get("/banks", s.banks)
	pay.Post("/", s.createPayment)

	sales := s.app.Group("/chats", s.requireAdmin)
	sales.Get("/", s.listSalesChats)
	sales.Get("/:uid/messages", s.salesHistory)
	sales.Post("/:uid/messages", s.salesSend)
	sales.Post("/:uid/ban", s.salesBan)
}

// Run serves until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "http.listen",
			slog.String("addr", s.deps.Config.Listen),
		)
		errc <- s.app.Listen(s.deps.Config.Listen, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	logger.LogEvent(shutdownCtx, logger.HTTP, slog.LevelInfo, "http.stop")
	return ctx.Err()
}

// errorHandler renders every failure as {"code","message","status"}.
func errorHandler(c fiber.Ctx, err error) error {
	status, code, msg := classify(err)
	level := slog.LevelWarn
	if status >= fiber.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.LogEvent(c.Context(), logger.HTTP, level, "http.error",
		slog.Int("code", status),
		logger.Err(err),
	)
	return c.Status(status).JSON(fiber.Map{"code": code, "message": msg, "status": "error"})
}

func classify(err error) (int, string, string) {
	var (
		fe *fiber.Error
		ve validator.ValidationErrors
		pe *konsol.APIError
	)
	switch {
	case errors.As(err, &fe):
		return fe.Code, codeFor(fe.Code), fe.Message
	case errors.As(err, &ve):
		return fiber.StatusBadRequest, "invalid", validationMessage(ve)
	case errors.Is(err, admins.ErrBadCredentials):
		return fiber.StatusUnauthorized, "unauthorized", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, "conflict", err.Error()
	case errors.Is(err, domain.ErrBanned):
		return fiber.StatusBadRequest, "banned", err.Error()
	case errors.Is(err, domain.ErrInvalid):
		return fiber.StatusBadRequest, "invalid", err.Error()
	case errors.As(err, &pe):
		return fiber.StatusBadGateway, "provider", "Payment provider rejected the request"
	case errors.Is(err, domain.ErrDelivery):
		return fiber.StatusBadGateway, "undelivered", "Message was not delivered"
	}
	return fiber.StatusInternalServerError, "internal", "Internal Server Error"
}

func codeFor(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "invalid"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusConflict:
		return "conflict"
	case fiber.StatusRequestEntityTooLarge:
		return "too_large"
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	}
	if status >= fiber.StatusInternalServerError {
		return "internal"
	}
	return "error"
}

func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}
