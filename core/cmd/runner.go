package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/logger"
)

// Component is a long-running part of the process (a bot, the HTTP API).
// Run must return when ctx is cancelled.
type Component struct {
	Name string
	Run  func(ctx context.Context) error
}

// App is what Bootstrap hands back to the runner.
type App interface {
	Components() []Component
	Close(ctx context.Context) error
}

// Options describe how to load configuration, bootstrap the app, and run it.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(ctx context.Context, cfg *coreconfig.Config) (App, error)

	ShutdownLogger  func() error
	ShutdownTimeout time.Duration
}

// Run loads configuration, bootstraps the app and runs every component until
// SIGINT/SIGTERM or until one of them fails.
func Run(opts Options) error {
	if opts.LoadConfig == nil {
		return fmt.Errorf("cmd: LoadConfig is required")
	}
	if opts.Bootstrap == nil {
		return fmt.Errorf("cmd: Bootstrap is required")
	}

	cfgPath, err := ResolveConfigPath(opts.ConfigEnvVar, opts.DefaultConfigPath)
	if err != nil {
		return err
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now()
	application, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	components := application.Components()
	logger.LogEvent(ctx, logger.L, slog.LevelInfo, "ready",
		slog.String("component", "app"),
		slog.Int("components", len(components)),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	runErr := RunComponents(ctx, components)

	logger.LogEvent(context.Background(), logger.L, slog.LevelInfo, "shutdown",
		slog.String("component", "app"),
	)

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), timeout)
	defer closeCancel()
	if err := application.Close(closeCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("cmd: close: %w", err))
	}
	return runErr
}

// ResolveConfigPath picks the config path from the environment or the default.
func ResolveConfigPath(envVar, fallback string) (string, error) {
	if envVar == "" {
		envVar = "CONFIG_PATH"
	}
	path := os.Getenv(envVar)
	if path == "" {
		path = fallback
	}
	if path == "" {
		return "", fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", envVar)
	}
	return path, nil
}

// RunComponents runs all components concurrently. The first failure cancels
// the rest; a clean cancellation of ctx is not an error.
func RunComponents(ctx context.Context, components []Component) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, comp := range components {
		if comp.Run == nil {
			continue
		}
		wg.Add(1)
		go func(comp Component) {
			defer wg.Done()
			err := comp.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.LogEvent(ctx, logger.L, slog.LevelError, "component.stopped",
					slog.String("component", "app"),
					slog.String("name", comp.Name),
					slog.String("status", "fail"),
					logger.Err(err),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", comp.Name, err))
				mu.Unlock()
				cancel()
				return
			}
			logger.LogEvent(context.Background(), logger.L, slog.LevelInfo, "component.stopped",
				slog.String("component", "app"),
				slog.String("name", comp.Name),
				slog.String("status", "ok"),
			)
		}(comp)
	}
	wg.Wait()
	return errors.Join(errs...)
}
