package config

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Environment variables split into two groups:
// - required: credentials and anything that differs per deployment
// - default: tuning knobs shared by every environment
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	Twilio   TwilioConfig
	CloudAPI CloudAPIConfig
	Payment  PaymentConfig
	Dialogue DialogueConfig
	Gemini   GeminiConfig
	Log      LogConfig
	Seed     SeedConfig

	UseMemoryStore bool `envconfig:"USE_MEMORY_STORE" default:"false"`
}

type ServerConfig struct {
	Port                     string  `envconfig:"PORT" default:"8080"`
	Environment              string  `envconfig:"ENVIRONMENT" default:"development"`
	DisableWebhookValidation bool    `envconfig:"DISABLE_WEBHOOK_VALIDATION" default:"false"`
	PublicURL                string  `envconfig:"PUBLIC_URL"`
	InboundPerSenderRate     float64 `envconfig:"INBOUND_PER_SENDER_RATE" default:"5"`
	OutboundRatePerSecond    float64 `envconfig:"OUTBOUND_RATE_PER_SECOND" default:"20"`
}

type DBConfig struct {
	User                   string `envconfig:"DB_USER" default:"postgres"`
	Password               string `envconfig:"DB_PASS"`
	Name                   string `envconfig:"DB_NAME" default:"reservas"`
	Host                   string `envconfig:"DB_HOST" default:"localhost"`
	Port                   string `envconfig:"DB_PORT" default:"5432"`
	SSLMode                string `envconfig:"DB_SSL_MODE" default:"disable"`
	InstanceConnectionName string `envconfig:"INSTANCE_CONNECTION_NAME"`
}

type RedisConfig struct {
	Addr      string `envconfig:"REDIS_ADDR"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	ContextDB int    `envconfig:"REDIS_CONTEXT_DB" default:"0"`
	QueueDB   int    `envconfig:"REDIS_QUEUE_DB" default:"1"`
}

type TwilioConfig struct {
	AccountSID   string `envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken    string `envconfig:"TWILIO_AUTH_TOKEN"`
	WhatsAppFrom string `envconfig:"TWILIO_WHATSAPP_FROM"`
}

type CloudAPIConfig struct {
	Token           string `envconfig:"WHATSAPP_TOKEN"`
	GraphAPIVersion string `envconfig:"GRAPH_API_VERSION" default:"v20.0"`
	BaseURL         string `envconfig:"GRAPH_API_BASE_URL" default:"https://graph.facebook.com"`
	AppSecret       string `envconfig:"WHATSAPP_APP_SECRET"`
	VerifyToken     string `envconfig:"WHATSAPP_VERIFY_TOKEN"`
}

type PaymentConfig struct {
	Provider           string        `envconfig:"PAYMENT_PROVIDER" default:"mercadopago"`
	MercadoPagoToken   string        `envconfig:"MERCADOPAGO_ACCESS_TOKEN"`
	MercadoPagoBaseURL string        `envconfig:"MERCADOPAGO_BASE_URL" default:"https://api.mercadopago.com"`
	WebhookSecret      string        `envconfig:"MERCADOPAGO_WEBHOOK_SECRET"`
	StripeSecretKey    string        `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookKey   string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	Tolerance          float64       `envconfig:"PAYMENT_TOLERANCE" default:"1"`
	DepositMode        string        `envconfig:"DEPOSIT_MODE" default:"transfer"`
	SuccessURL         string        `envconfig:"PAYMENT_SUCCESS_URL"`
	NotificationURL    string        `envconfig:"PAYMENT_NOTIFICATION_URL"`
	RequestTimeout     time.Duration `envconfig:"PAYMENT_REQUEST_TIMEOUT" default:"10s"`
}

type DialogueConfig struct {
	DebounceWindow          time.Duration `envconfig:"DEBOUNCE_WINDOW" default:"3s"`
	ContextTTL              time.Duration `envconfig:"CONTEXT_TTL" default:"30m"`
	ResumeIdle              time.Duration `envconfig:"RESUME_IDLE" default:"15m"`
	HistorySize             int           `envconfig:"HISTORY_SIZE" default:"6"`
	SweepInterval           time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	DefaultDepositPerPerson float64       `envconfig:"DEFAULT_DEPOSIT_PER_PERSON" default:"5000"`
	DefaultCurrency         string        `envconfig:"DEFAULT_CURRENCY" default:"ARS"`
	Timezone                string        `envconfig:"TIMEZONE" default:"America/Argentina/Buenos_Aires"`
}

type GeminiConfig struct {
	APIKey string `envconfig:"GEMINI_API_KEY"`
	Model  string `envconfig:"GEMINI_MODEL" default:"models/gemini-1.5-flash"`
}

// SeedConfig registers one business at startup, which is enough for a
// single-venue deployment or local testing with the memory store.
type SeedConfig struct {
	Name          string `envconfig:"BUSINESS_NAME"`
	ChannelID     string `envconfig:"BUSINESS_CHANNEL_ID"`
	OwnerPhone    string `envconfig:"BUSINESS_OWNER_PHONE"`
	TransferAlias string `envconfig:"BUSINESS_TRANSFER_ALIAS"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads .env files (if any) and then the process environment.
func Load() (Config, error) {
	// Missing .env files are fine; Cloud Run injects real variables.
	_ = godotenv.Load(".env")
	_ = godotenv.Load("environments/.env.development")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to process env config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Payment.Provider {
	case "mercadopago", "stripe":
	default:
		return errors.Newf("unsupported PAYMENT_PROVIDER %q", c.Payment.Provider)
	}
	switch c.Payment.DepositMode {
	case "transfer", "link":
	default:
		return errors.Newf("unsupported DEPOSIT_MODE %q", c.Payment.DepositMode)
	}
	if c.Dialogue.DebounceWindow <= 0 {
		return errors.New("DEBOUNCE_WINDOW must be positive")
	}
	if c.Dialogue.ContextTTL <= 0 {
		return errors.New("CONTEXT_TTL must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// BuildDSN returns a Cloud SQL socket DSN when INSTANCE_CONNECTION_NAME is
// set and a TCP DSN otherwise.
func (c DBConfig) BuildDSN() string {
	if c.InstanceConnectionName != "" {
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			c.InstanceConnectionName, c.User, c.Password, c.Name)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Dialogue.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:                  "8889",
			Environment:           "test",
			InboundPerSenderRate:  100,
			OutboundRatePerSecond: 100,
		},
		DB: DBConfig{
			User:    "test",
			Name:    "reservas_test",
			Host:    "localhost",
			Port:    "15433",
			SSLMode: "disable",
		},
		CloudAPI: CloudAPIConfig{
			GraphAPIVersion: "v20.0",
			BaseURL:         "https://graph.facebook.com",
			AppSecret:       "test-app-secret",
			VerifyToken:     "test-verify-token",
		},
		Payment: PaymentConfig{
			Provider:       "mercadopago",
			Tolerance:      1,
			DepositMode:    "transfer",
			WebhookSecret:  "test-webhook-secret",
			RequestTimeout: 2 * time.Second,
		},
		Dialogue: DialogueConfig{
			DebounceWindow:          50 * time.Millisecond,
			ContextTTL:              30 * time.Minute,
			ResumeIdle:              15 * time.Minute,
			HistorySize:             6,
			SweepInterval:           time.Minute,
			DefaultDepositPerPerson: 5000,
			DefaultCurrency:         "ARS",
			Timezone:                "UTC",
		},
		Log:            LogConfig{Level: "debug"},
		UseMemoryStore: true,
	}
}
