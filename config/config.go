package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"scancodes/pkg/payment"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Log      LogConfig
	Payment  PaymentConfig
	Kafka    KafkaConfig
}

type ServerConfig struct {
	Port            string        `env:"APP_PORT" envDefault:"8099"`
	Env             string        `env:"GO_ENV" envDefault:"development"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// PlatformURL seeds the PLATFORM_URL general setting.
	PlatformURL string `env:"PLATFORM_URL" envDefault:"http://localhost:8099"`
}

type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"mysql"` // mysql, postgres, sqlite
	DSN             string        `env:"DB_DSN" envDefault:"root:@tcp(localhost:3306)/scancodes?charset=utf8mb4&parseTime=True&loc=UTC"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
}

type JWTConfig struct {
	AccessSecret string        `env:"JWT_ACCESS_SECRET" envDefault:"change-me-in-production"`
	AccessExpiry time.Duration `env:"JWT_ACCESS_EXPIRY" envDefault:"15m"`
	Issuer       string        `env:"JWT_ISSUER" envDefault:"scancodes"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"` // json or text
}

type PaymentConfig struct {
	Provider      string `env:"PAYMENT_PROVIDER" envDefault:"paystack"`
	APIKey        string `env:"PAYMENT_API_KEY"`
	SecretKey     string `env:"PAYMENT_SECRET_KEY"`
	PublicKey     string `env:"PAYMENT_PUBLIC_KEY"`
	SecretHash    string `env:"PAYMENT_SECRET_HASH"`
	TestMode      bool   `env:"PAYMENT_TEST_MODE" envDefault:"false"`
	TestAPIKey    string `env:"PAYMENT_TEST_API_KEY"`
	TestSecretKey string `env:"PAYMENT_TEST_SECRET_KEY"`
	TestPublicKey string `env:"PAYMENT_TEST_PUBLIC_KEY"`

	// GatewaysFile is an optional YAML file listing gateway credentials.
	GatewaysFile string `env:"PAYMENT_GATEWAYS_FILE"`
	BaseURL      string `env:"PAYMENT_BASE_URL"`

	HTTPTimeout      time.Duration `env:"PAYMENT_HTTP_TIMEOUT" envDefault:"30s"`
	RetryMaxAttempts int           `env:"PAYMENT_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"PAYMENT_RETRY_BASE_DELAY" envDefault:"200ms"`
	RetryMaxDelay    time.Duration `env:"PAYMENT_RETRY_MAX_DELAY" envDefault:"2s"`

	DefaultCurrency    string        `env:"PAYMENT_DEFAULT_CURRENCY" envDefault:"NGN"`
	ExchangeRateAPIURL string        `env:"EXCHANGE_RATE_API_URL"`
	RateCacheTTL       time.Duration `env:"EXCHANGE_RATE_CACHE_TTL" envDefault:"1h"`
	ReconcileAfter     time.Duration `env:"PAYMENT_RECONCILE_AFTER" envDefault:"15m"`
	WebhookRatePerMin  int           `env:"WEBHOOK_RATE_LIMIT" envDefault:"120"`

	gateways *GatewaysFile
}

type KafkaConfig struct {
	Enabled          bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers          string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	Topic            string        `env:"KAFKA_PAYMENT_TOPIC" envDefault:"payments.status"`
	RetryMaxAttempts int           `env:"KAFKA_RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay   time.Duration `env:"KAFKA_RETRY_BASE_DELAY" envDefault:"100ms"`
	RetryMaxDelay    time.Duration `env:"KAFKA_RETRY_MAX_DELAY" envDefault:"10s"`
	RetryJitter      bool          `env:"KAFKA_RETRY_JITTER" envDefault:"true"`
}

func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// GatewaysFile is the YAML layout of PAYMENT_GATEWAYS_FILE.
//
//	active: flutterwave
//	gateways:
//	  flutterwave:
//	    secret_key: FLWSECK-...
//	    secret_hash: my-hash
type GatewaysFile struct {
	Active   string                         `yaml:"active"`
	Gateways map[string]payment.Credentials `yaml:"gateways"`
}

func (p PaymentConfig) RetryConfig() payment.RetryConfig {
	return payment.RetryConfig{
		MaxAttempts: p.RetryMaxAttempts,
		BaseDelay:   p.RetryBaseDelay,
		MaxDelay:    p.RetryMaxDelay,
		Jitter:      true,
	}
}

// Gateway resolves the configured gateway. A gateways file wins over the
// PAYMENT_* credentials when it names an active gateway.
func (p PaymentConfig) Gateway() (payment.GatewayConfig, error) {
	name := p.Provider
	creds := payment.Credentials{
		APIKey:        p.APIKey,
		SecretKey:     p.SecretKey,
		PublicKey:     p.PublicKey,
		SecretHash:    p.SecretHash,
		TestMode:      p.TestMode,
		TestAPIKey:    p.TestAPIKey,
		TestSecretKey: p.TestSecretKey,
		TestPublicKey: p.TestPublicKey,
	}
	if p.gateways != nil && p.gateways.Active != "" {
		name = p.gateways.Active
		fc, ok := p.gateways.Gateways[strings.ToLower(name)]
		if !ok {
			return payment.GatewayConfig{}, fmt.Errorf("%w: gateways file has no entry for %q", payment.ErrConfiguration, name)
		}
		creds = fc
	}
	provider, err := payment.ParseProvider(name)
	if err != nil {
		return payment.GatewayConfig{}, err
	}
	return payment.GatewayConfig{Provider: provider, Credentials: creds}, nil
}

func loadGatewaysFile(path string) (*GatewaysFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gateways file: %w", err)
	}
	var f GatewaysFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing gateways file %s: %w", path, err)
	}
	lowered := make(map[string]payment.Credentials, len(f.Gateways))
	for k, v := range f.Gateways {
		lowered[strings.ToLower(k)] = v
	}
	f.Gateways = lowered
	return &f, nil
}

// Load reads configuration from the environment. With GO_ENV=local a .env
// file in the working directory is loaded first.
func Load() (*Config, error) {
	if os.Getenv("GO_ENV") == "local" {
		if err := godotenv.Load(".env"); err != nil {
			logrus.WithError(err).Warn("no .env file loaded")
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.Payment.GatewaysFile != "" {
		f, err := loadGatewaysFile(cfg.Payment.GatewaysFile)
		if err != nil {
			return nil, err
		}
		cfg.Payment.gateways = f
	}
	return &cfg, nil
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg LogConfig) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if strings.EqualFold(cfg.Format, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
