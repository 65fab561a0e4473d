// Package mongodb connects to MongoDB and bootstraps collection indexes.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/logger"
)

// Index declares one index that must exist on a collection.
type Index struct {
	Collection string
	Model      mongo.IndexModel
}

// Connect dials MongoDB and pings the primary before returning the client.
func Connect(ctx context.Context, cfg coreconfig.MongoConfig) (*mongo.Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetAppName("claimdesk")

	start := time.Now()
	client, err := mongo.Connect(ctx, opts)
	if err == nil {
		err = client.Ping(ctx, readpref.Primary())
		if err != nil {
			_ = client.Disconnect(context.Background())
		}
	}
	took := logger.RoundMS(time.Since(start))
	if err != nil {
		logger.LogEvent(ctx, logger.MONGO, slog.LevelError, "mongo.connect",
			slog.String("status", "fail"),
			slog.Duration("duration", took),
			logger.Err(err),
		)
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	logger.LogEvent(ctx, logger.MONGO, slog.LevelInfo, "mongo.connect",
		slog.String("status", "ok"),
		slog.String("state_db", cfg.StateDB),
		slog.String("sales_db", cfg.SalesDB),
		slog.Duration("duration", took),
	)
	return client, nil
}

// EnsureIndexes creates the declared indexes. Existing identical indexes are a no-op for the server.
func EnsureIndexes(ctx context.Context, db *mongo.Database, indexes []Index) error {
	if db == nil {
		return fmt.Errorf("mongo ensure indexes: nil database")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, idx := range indexes {
		name, err := db.Collection(idx.Collection).Indexes().CreateOne(ctx, idx.Model)
		if err != nil {
			logger.LogEvent(ctx, logger.MONGO, slog.LevelError, "mongo.index",
				slog.String("status", "fail"),
				slog.String("db", db.Name()),
				slog.String("collection", idx.Collection),
				logger.Err(err),
			)
			return fmt.Errorf("create index on %s.%s: %w", db.Name(), idx.Collection, err)
		}
		logger.LogEvent(ctx, logger.MONGO, slog.LevelDebug, "mongo.index",
			slog.String("status", "ok"),
			slog.String("db", db.Name()),
			slog.String("collection", idx.Collection),
			slog.String("index", name),
		)
	}
	return nil
}
