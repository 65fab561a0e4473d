package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"

	coreconfig "github.com/m3rciful/claimdesk/core/config"
)

func fakeDB(t *testing.T) *sqlx.DB {
	t.Helper()
	raw, err := sql.Open("postgres", "host=127.0.0.1 dbname=none sslmode=disable")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	return sqlx.NewDb(raw, "postgres")
}

func baseOptions(t *testing.T, calls *[]string) Options {
	return Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { *calls = append(*calls, "logger"); return nil },
		Connect: func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error) {
			*calls = append(*calls, "connect")
			return fakeDB(t), nil
		},
		Migrate: func(context.Context, coreconfig.DatabaseConfig) error {
			*calls = append(*calls, "migrate")
			return nil
		},
		ConnectMongo: func(context.Context, coreconfig.MongoConfig) (*mongo.Client, error) {
			*calls = append(*calls, "mongo")
			return nil, nil
		},
	}
}

func TestRunOrder(t *testing.T) {
	var calls []string
	opts := baseOptions(t, &calls)
	opts.Modules.Seeders = []Seeder{SeederFunc(func(context.Context, *Result) error {
		calls = append(calls, "seed")
		return nil
	})}

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer res.Close(context.Background())

	want := []string{"logger", "connect", "migrate", "mongo", "seed"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
	if res.DB == nil {
		t.Fatalf("expected DB in result")
	}
}

func TestRunStopsOnMigrationError(t *testing.T) {
	var calls []string
	opts := baseOptions(t, &calls)
	boom := errors.New("boom")
	opts.Migrate = func(context.Context, coreconfig.DatabaseConfig) error { return boom }

	if _, err := Run(context.Background(), opts); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped migration error, got %v", err)
	}
	for _, c := range calls {
		if c == "mongo" {
			t.Fatalf("mongo must not be reached after a failed migration: %v", calls)
		}
	}
}

func TestRunSeederError(t *testing.T) {
	var calls []string
	opts := baseOptions(t, &calls)
	boom := errors.New("seed failed")
	opts.Modules.Seeders = []Seeder{SeederFunc(func(context.Context, *Result) error { return boom })}

	if _, err := Run(context.Background(), opts); !errors.Is(err, boom) {
		t.Fatalf("expected seeder error, got %v", err)
	}
}

func TestRunNilConfig(t *testing.T) {
	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
