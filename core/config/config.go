package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

const (
	// EnvProduction talks to the real payout provider.
	EnvProduction = "production"
	// EnvDevelopment swaps external providers for mocks.
	EnvDevelopment = "development"
)

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Listen string `yaml:"listen"`
	Port   int    `yaml:"port"`
}

// BotConfig holds the settings of one Telegram bot.
type BotConfig struct {
	Token   string  `yaml:"token"`
	RunMode string  `yaml:"run_mode"`
	Admins  []int64 `yaml:"admins"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int           `yaml:"longpoll_timeout_seconds"`
	Webhook                WebhookConfig `yaml:"webhook"`
}

// IsAdmin reports whether the Telegram user is listed in admins.
func (b BotConfig) IsAdmin(userID int64) bool {
	for _, id := range b.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// CampaignConfig carries the promo campaign knobs used by the claims flow.
type CampaignConfig struct {
	GroupID         int64  `yaml:"group_id" envconfig:"CAMPAIGN_GROUP_ID"`
	ChannelID       int64  `yaml:"channel_id" envconfig:"CAMPAIGN_CHANNEL_ID"`
	ChannelURL      string `yaml:"channel_url" envconfig:"CAMPAIGN_CHANNEL_URL"`
	TestCode        string `yaml:"test_code" envconfig:"CAMPAIGN_TEST_CODE"`
	PayoutAmount    string `yaml:"payout_amount" envconfig:"CAMPAIGN_PAYOUT_AMOUNT"`
	PayoutPurpose   string `yaml:"payout_purpose" envconfig:"CAMPAIGN_PAYOUT_PURPOSE"`
	DocumentLimitMB int    `yaml:"document_limit_mb"`
	// CodesFile lists one-time codes, one per line, imported at startup.
	CodesFile string `yaml:"codes_file" envconfig:"CAMPAIGN_CODES_FILE"`
}

// MailingConfig throttles sales bot broadcasts.
type MailingConfig struct {
	IntervalMS    int `yaml:"interval_ms"`
	ProgressEvery int `yaml:"progress_every"`
}

// Payout returns the parsed payout amount.
func (c CampaignConfig) Payout() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.PayoutAmount))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RateLimitConfig holds settings for per-chat rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// MongoConfig points at the document store used for conversation state and
// the sales bot database.
type MongoConfig struct {
	URI             string `yaml:"uri" envconfig:"MONGO_URI"`
	StateDB         string `yaml:"state_db" envconfig:"MONGO_STATE_DB"`
	StateCollection string `yaml:"state_collection"`
	SalesDB         string `yaml:"sales_db" envconfig:"MONGO_SALES_DB"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// HTTPConfig configures the admin API.
type HTTPConfig struct {
	Listen             string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	CORSOrigins        string `yaml:"cors_origins" envconfig:"HTTP_CORS_ORIGINS"`
	RateLimitMax       int    `yaml:"rate_limit_max"`
	RateLimitWindowSec int    `yaml:"rate_limit_window_seconds"`
	UploadLimitMB      int    `yaml:"upload_limit_mb"`
	SessionTTLHours    int    `yaml:"session_ttl_hours"`
}

// KonsolConfig configures the payout provider client.
type KonsolConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"KONSOL_BASE_URL"`
	Token          string `yaml:"token" envconfig:"KONSOL_TOKEN"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Mock           bool   `yaml:"mock" envconfig:"KONSOL_MOCK"`
}

// Config aggregates the configuration of every component in the process.
type Config struct {
	AppEnv    string          `yaml:"app_env" envconfig:"APP_ENV"`
	ClaimsBot BotConfig       `yaml:"claims_bot"`
	SalesBot  BotConfig       `yaml:"sales_bot"`
	Campaign  CampaignConfig  `yaml:"campaign"`
	Mailing   MailingConfig   `yaml:"mailing"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Mongo     MongoConfig     `yaml:"mongo"`
	HTTP      HTTPConfig      `yaml:"http"`
	Konsol    KonsolConfig    `yaml:"konsol"`
}

// envOverlay lists bot secrets that come from the environment. They are kept
// out of BotConfig so the two bots do not fight over one variable name.
type envOverlay struct {
	ClaimsToken string `envconfig:"CLAIMS_BOT_TOKEN"`
	SalesToken  string `envconfig:"SALES_BOT_TOKEN"`
}

// IsMockMode reports whether external providers should be replaced with mocks.
func (c *Config) IsMockMode() bool {
	return c.Konsol.Mock || strings.EqualFold(c.AppEnv, EnvDevelopment)
}

// Load reads .env (when present), the YAML file and environment variables.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	var overlay envOverlay
	if err := envconfig.Process("", &overlay); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if overlay.ClaimsToken != "" {
		cfg.ClaimsBot.Token = overlay.ClaimsToken
	}
	if overlay.SalesToken != "" {
		cfg.SalesBot.Token = overlay.SalesToken
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	env := strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	if env == "" {
		env = EnvProduction
	}
	if env != EnvProduction && env != EnvDevelopment {
		return fmt.Errorf("invalid app_env %q; allowed: production, development", cfg.AppEnv)
	}
	cfg.AppEnv = env

	if err := normalizeBot("claims_bot", &cfg.ClaimsBot, true); err != nil {
		return err
	}
	if err := normalizeBot("sales_bot", &cfg.SalesBot, false); err != nil {
		return err
	}

	if err := normalizeRateLimit(&cfg.RateLimit); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Campaign.TestCode) == "" {
		cfg.Campaign.TestCode = "test"
	}
	if cfg.Campaign.DocumentLimitMB <= 0 {
		cfg.Campaign.DocumentLimitMB = 20
	}
	if strings.TrimSpace(cfg.Campaign.PayoutPurpose) == "" {
		cfg.Campaign.PayoutPurpose = "Выплата по акции"
	}
	if strings.TrimSpace(cfg.Campaign.PayoutAmount) != "" {
		amount, err := decimal.NewFromString(strings.TrimSpace(cfg.Campaign.PayoutAmount))
		if err != nil || !amount.IsPositive() {
			return fmt.Errorf("campaign.payout_amount must be a positive decimal, got %q", cfg.Campaign.PayoutAmount)
		}
	}

	if cfg.Mailing.IntervalMS <= 0 {
		cfg.Mailing.IntervalMS = 50
	}
	if cfg.Mailing.ProgressEvery <= 0 {
		cfg.Mailing.ProgressEvery = 10
	}

	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}
	if cfg.Database.MigrationsDir == "" {
		cfg.Database.MigrationsDir = "migrations"
	}

	if strings.TrimSpace(cfg.Mongo.URI) == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if cfg.Mongo.StateDB == "" {
		cfg.Mongo.StateDB = "claimdesk"
	}
	if cfg.Mongo.StateCollection == "" {
		cfg.Mongo.StateCollection = "conversation_states"
	}
	if cfg.Mongo.SalesDB == "" {
		cfg.Mongo.SalesDB = "salesbot"
	}
	if cfg.Mongo.TimeoutSeconds <= 0 {
		cfg.Mongo.TimeoutSeconds = 10
	}

	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = ":8080"
	}
	if cfg.HTTP.UploadLimitMB <= 0 {
		cfg.HTTP.UploadLimitMB = 50
	}
	if cfg.HTTP.SessionTTLHours <= 0 {
		cfg.HTTP.SessionTTLHours = 24
	}
	if cfg.HTTP.RateLimitWindowSec <= 0 {
		cfg.HTTP.RateLimitWindowSec = 60
	}

	if cfg.Konsol.TimeoutSeconds <= 0 {
		cfg.Konsol.TimeoutSeconds = 30
	}
	if !cfg.IsMockMode() && strings.TrimSpace(cfg.Konsol.BaseURL) == "" {
		return fmt.Errorf("konsol.base_url is required outside mock mode")
	}
	return nil
}

func normalizeBot(name string, bot *BotConfig, required bool) error {
	if strings.TrimSpace(bot.Token) == "" {
		if required {
			return fmt.Errorf("%s.token is required", name)
		}
		return nil
	}

	rm := strings.ToLower(strings.TrimSpace(bot.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(bot.Webhook.URL) == "" {
			return fmt.Errorf("%s.webhook.url is required in webhook mode", name)
		}
		if strings.TrimSpace(bot.Webhook.Listen) == "" {
			return fmt.Errorf("%s.webhook.listen is required in webhook mode", name)
		}
		if bot.Webhook.Port <= 0 {
			return fmt.Errorf("%s.webhook.port must be > 0 in webhook mode", name)
		}
	case RunModeLongpoll:
		if bot.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("%s.longpoll_timeout_seconds must be >= 0", name)
		}
	default:
		return fmt.Errorf("invalid %s.run_mode %q; allowed: webhook, longpoll", name, bot.RunMode)
	}
	bot.RunMode = rm
	return nil
}

func normalizeRateLimit(rl *RateLimitConfig) error {
	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range rl.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		rl.ExcludeUpdates[i] = key
	}
	return nil
}
