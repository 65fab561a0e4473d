package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/mongo"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	coredatabase "github.com/m3rciful/claimdesk/core/database"
	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/mongodb"
)

// Options control the bootstrap pipeline. Nil hooks fall back to the real implementations.
type Options struct {
	Config *coreconfig.Config

	LoggerInit   func(*coreconfig.Config) error
	Connect      func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate      func(context.Context, coreconfig.DatabaseConfig) error
	ConnectMongo func(context.Context, coreconfig.MongoConfig) (*mongo.Client, error)

	Modules Modules
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB    *sqlx.DB
	Mongo *mongo.Client
}

// Close releases the database handles.
func (r *Result) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Mongo != nil {
		if err := r.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongo disconnect: %w", err))
		}
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Run initializes the logger, connects to Postgres, applies migrations, connects
// to MongoDB and finally runs the seeders.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	res := &Result{DB: db}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, cfg.Database); err != nil {
		_ = res.Close(context.Background())
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	connectMongo := opts.ConnectMongo
	if connectMongo == nil {
		connectMongo = mongodb.Connect
	}
	client, err := connectMongo(ctx, cfg.Mongo)
	if err != nil {
		_ = res.Close(context.Background())
		return nil, fmt.Errorf("bootstrap: mongo initialization failed: %w", err)
	}
	res.Mongo = client

	for i, seeder := range opts.Modules.Seeders {
		if seeder == nil {
			continue
		}
		start := time.Now()
		if err := seeder.Seed(ctx, res); err != nil {
			_ = res.Close(context.Background())
			return nil, fmt.Errorf("bootstrap: seeder %d failed: %w", i, err)
		}
		logger.LogEvent(ctx, logger.L, slog.LevelDebug, "bootstrap.seed",
			slog.String("status", "ok"),
			slog.Int("seeder", i),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}

	return res, nil
}
