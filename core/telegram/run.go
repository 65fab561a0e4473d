package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/logger"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"
	tgsender "github.com/m3rciful/claimdesk/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a telebot endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// Options configure NewRuntime.
type Options struct {
	Name              string
	Config            coreconfig.BotConfig
	DispatcherOptions tgsender.Options
}

// Runtime is one constructed bot: API client, per-bot dispatcher, registry and
// a Messenger services can use before the poller starts.
type Runtime struct {
	Name       string
	Config     coreconfig.BotConfig
	Bot        *tele.Bot
	Registry   *Registry
	Dispatcher *tgsender.Dispatcher
	Messenger  *Messenger
}

// NewRuntime builds the bot without starting to poll.
func NewRuntime(opts Options) (*Runtime, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("telegram: bot name is required")
	}
	cfg := opts.Config
	poller := BuildPoller(cfg)

	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: poller,
		Client: BuildHTTPClient(pollTimeout(cfg)),
		OnError: func(err error, c tele.Context) {
			ctx := tghelpers.BuildContext(c)
			logger.LogEvent(ctx, logger.TG, slog.LevelError, "handler.error",
				slog.String("bot", opts.Name),
				slog.String("err", logger.SanitizeLimit(logger.RedactToken(err.Error(), cfg.Token), 512)),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %s bot initialization failed: %s", opts.Name, logger.RedactToken(err.Error(), cfg.Token))
	}

	dispOpts := opts.DispatcherOptions
	dispOpts.Bot = opts.Name
	dispatcher := tgsender.NewDispatcher(dispOpts)

	rt := &Runtime{
		Name:       opts.Name,
		Config:     cfg,
		Bot:        bot,
		Registry:   NewRegistry(),
		Dispatcher: dispatcher,
		Messenger:  NewMessenger(opts.Name, bot, dispatcher),
	}

	attrs := []slog.Attr{
		slog.String("bot", opts.Name),
		slog.String("username", bot.Me.Username),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if wh, ok := poller.(*tele.Webhook); ok {
		attrs = append(attrs, slog.String("mode", "webhook"), slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL))
	} else {
		attrs = append(attrs, slog.String("mode", "polling"),
			slog.Int("timeout_seconds", int(pollTimeout(cfg)/time.Second)))
	}
	logger.LogEvent(context.Background(), logger.TG, slog.LevelInfo, "mode", attrs...)
	return rt, nil
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Runtime     *Runtime
	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt *Runtime) error
	OnStop  func(ctx context.Context, rt *Runtime) error
}

// RunTelegram wires middlewares and routes and polls until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt := opts.Runtime
	if rt == nil || rt.Bot == nil {
		return fmt.Errorf("telegram: nil runtime")
	}
	bot := rt.Bot
	defer func() {
		rt.Dispatcher.Close()
		sent, failed := rt.Dispatcher.Stats()
		logger.LogEvent(context.Background(), logger.TG, slog.LevelInfo, "sender.stats",
			slog.String("bot", rt.Name),
			slog.Uint64("sent", sent),
			slog.Uint64("failed", failed),
		)
	}()

	if _, isWebhook := bot.Poller.(*tele.Webhook); !isWebhook && !opts.DisableWebhookCleanup {
		if err := bot.RemoveWebhook(false); err != nil {
			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "delete_webhook",
				slog.String("bot", rt.Name),
				slog.String("err", logger.RedactToken(err.Error(), rt.Config.Token)),
			)
		}
	}

	bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			tghelpers.BindDispatcher(c, rt.Dispatcher)
			return next(c)
		}
	})
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}

	InitBotCommands(bot, rt.Registry)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		runErr = ctx.Err()
	case <-done:
	}

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
