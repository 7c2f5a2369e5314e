package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type Config struct {
	// Discord Bot
	DiscordToken string `env:"DISCORD_TOKEN" validate:"required"`

	// Discord OAuth2
	DiscordClientID     string `env:"DISCORD_CLIENT_ID" validate:"required"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET" validate:"required"`
	DiscordRedirectURI  string `env:"DISCORD_REDIRECT_URI,default=http://localhost:3000/api/auth/callback" validate:"url"`

	// Storage
	DataBackend string `env:"DATA_BACKEND,default=memory" validate:"oneof=memory postgres sqlite"`
	DatabaseURL string `env:"DATABASE_URL" validate:"required_if=DataBackend postgres"`
	SQLitePath  string `env:"SQLITE_PATH,default=data/warikan.db" validate:"required_if=DataBackend sqlite"`

	// Web Server
	WebBind      string `env:"WEB_BIND,default=0.0.0.0:3000" validate:"required"`
	WebUIBaseURL string

	// Session
	JWTSecret string `env:"JWT_SECRET,default=dev-only-change-me" validate:"required"`

	// Ledger
	ExpenseKeyword    string        `env:"EXPENSE_KEYWORD,default=#r" validate:"required"`
	Currency          string        `env:"CURRENCY,default=INR" validate:"required,len=3"`
	DraftTTL          time.Duration `env:"DRAFT_TTL,default=0s" validate:"gte=0"`
	DraftConflict     string        `env:"DRAFT_CONFLICT,default=overwrite" validate:"oneof=overwrite reject"`
	ReminderInterval  time.Duration `env:"REMINDER_INTERVAL,default=0s" validate:"gte=0"`
	ExportTimeout     time.Duration `env:"EXPORT_TIMEOUT,default=30s" validate:"gt=0"`
	NotifyConcurrency int           `env:"NOTIFY_CONCURRENCY,default=4" validate:"min=1,max=32"`

	// Google Sheets export
	GoogleSpreadsheetID      string `env:"GOOGLE_SPREADSHEET_ID"`
	GoogleServiceAccountFile string `env:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`

	// Export queue
	AMQPURL      string `env:"AMQP_URL" validate:"omitempty,url"`
	AMQPExchange string `env:"AMQP_EXCHANGE,default=warikan" validate:"required_with=AMQPURL"`
	AMQPQueue    string `env:"AMQP_QUEUE,default=warikan.expenses" validate:"required_with=AMQPURL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text" validate:"oneof=text json"`
}

// workerFields are the only fields the export worker depends on.
var workerFields = []string{
	"GoogleSpreadsheetID", "AMQPURL", "AMQPExchange", "AMQPQueue", "LogFormat",
}

// Load reads the bot configuration from the environment (and .env if present).
func Load() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker reads the configuration of the export worker, which needs neither
// Discord credentials nor a ledger store.
func LoadWorker() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()
	return FromEnviron(os.Environ())
}

// FromEnviron decodes KEY=value pairs without validating them.
func FromEnviron(environ []string) (*Config, error) {
	es, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.WebUIBaseURL = extractBaseURL(cfg.DiscordRedirectURI)
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) ValidateWorker() error {
	if err := validate.StructPartial(c, workerFields...); err != nil {
		return fmt.Errorf("invalid worker config: %w", err)
	}
	if c.AMQPURL == "" {
		return fmt.Errorf("invalid worker config: AMQP_URL is required")
	}
	if c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("invalid worker config: GOOGLE_SPREADSHEET_ID is required")
	}
	return nil
}

// SheetsEnabled reports whether expenses should be written to a spreadsheet.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// QueueEnabled reports whether exports go through the AMQP queue.
func (c *Config) QueueEnabled() bool {
	return c.AMQPURL != ""
}

func extractBaseURL(redirectURI string) string {
	// e.g., "http://localhost:3000/api/auth/callback" -> "http://localhost:3000"
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}

	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
