package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database   *dbConfig
	Service    *svcConfig
	Ledger     *LedgerConfig
	Settlement *SettlementConfig
	Referral   *ReferralConfig
	Email      *EmailConfig
	Kafka      *KafkaConfig
	Redis      *RedisConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"shovel"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string   `envconfig:"SHOVEL_ADDRESS" default:":3443"`
	MetricsAddress  string   `envconfig:"SHOVEL_METRICS_ADDRESS" default:":8080"`
	LogLevel        string   `envconfig:"SHOVEL_LOG_LEVEL" default:"info"`
	LogFormat       string   `envconfig:"SHOVEL_LOG_FORMAT" default:"console"`
	MigrationFolder string   `envconfig:"SHOVEL_MIGRATIONS_FOLDER" default:""`
	AllowedOrigins  []string `envconfig:"SHOVEL_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	Auth            Auth
}

type Auth struct {
	Secret             string        `envconfig:"SHOVEL_AUTH_SECRET" default:""`
	Issuer             string        `envconfig:"SHOVEL_AUTH_ISSUER" default:"shovel-api"`
	TokenLifetime      time.Duration `envconfig:"SHOVEL_AUTH_TOKEN_LIFETIME" default:"72h"`
	// ResetURL is the front-end page the reset token is appended to.
	ResetURL           string        `envconfig:"SHOVEL_AUTH_RESET_URL" default:"http://localhost:3000/resetPassword/"`
	ResetTokenLifetime time.Duration `envconfig:"SHOVEL_AUTH_RESET_TOKEN_LIFETIME" default:"10m"`
}

// LedgerConfig holds the payment gateway settings. Payment events and
// connected-account events are signed with different secrets.
type LedgerConfig struct {
	SecretKey             string        `envconfig:"SHOVEL_LEDGER_SECRET_KEY" default:""`
	PaymentsWebhookSecret string        `envconfig:"SHOVEL_LEDGER_PAYMENTS_WEBHOOK_SECRET" default:""`
	ConnectWebhookSecret  string        `envconfig:"SHOVEL_LEDGER_CONNECT_WEBHOOK_SECRET" default:""`
	Currency              string        `envconfig:"SHOVEL_LEDGER_CURRENCY" default:"usd"`
	SuccessURL            string        `envconfig:"SHOVEL_LEDGER_SUCCESS_URL" default:"http://localhost:3000/payment/success"`
	CancelURL             string        `envconfig:"SHOVEL_LEDGER_CANCEL_URL" default:"http://localhost:3000/payment/cancel"`
	CallTimeout           time.Duration `envconfig:"SHOVEL_LEDGER_CALL_TIMEOUT" default:"15s"`
	BreakerMaxRequests    uint32        `envconfig:"SHOVEL_LEDGER_BREAKER_MAX_REQUESTS" default:"100"`
	BreakerInterval       time.Duration `envconfig:"SHOVEL_LEDGER_BREAKER_INTERVAL" default:"5s"`
	BreakerTimeout        time.Duration `envconfig:"SHOVEL_LEDGER_BREAKER_TIMEOUT" default:"3s"`
}

type SettlementConfig struct {
	// PlatformFeeBps is the platform fee in basis points (2000 = 20%).
	PlatformFeeBps    int64         `envconfig:"SHOVEL_SETTLEMENT_PLATFORM_FEE_BPS" default:"2000"`
	MaxPayoutAttempts int           `envconfig:"SHOVEL_SETTLEMENT_MAX_PAYOUT_ATTEMPTS" default:"5"`
	SweepInterval     time.Duration `envconfig:"SHOVEL_SETTLEMENT_SWEEP_INTERVAL" default:"5m"`
	ClaimLease        time.Duration `envconfig:"SHOVEL_SETTLEMENT_CLAIM_LEASE" default:"10m"`
}

type ReferralConfig struct {
	Threshold   int64 `envconfig:"SHOVEL_REFERRAL_THRESHOLD" default:"10"`
	BonusAmount int64 `envconfig:"SHOVEL_REFERRAL_BONUS_AMOUNT" default:"1000"`
}

type EmailConfig struct {
	Provider      string `envconfig:"SHOVEL_EMAIL_PROVIDER" default:"log"`
	From          string `envconfig:"SHOVEL_EMAIL_FROM" default:"no-reply@shovelhouse.app"`
	SendGridKey   string `envconfig:"SHOVEL_EMAIL_SENDGRID_KEY" default:""`
	MailgunKey    string `envconfig:"SHOVEL_EMAIL_MAILGUN_KEY" default:""`
	MailgunDomain string `envconfig:"SHOVEL_EMAIL_MAILGUN_DOMAIN" default:""`
	QueueSize     int    `envconfig:"SHOVEL_EMAIL_QUEUE_SIZE" default:"256"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"SHOVEL_KAFKA_BROKERS" default:""`
	Topic   string   `envconfig:"SHOVEL_KAFKA_TOPIC" default:"shovel.events"`
}

type RedisConfig struct {
	Address  string `envconfig:"SHOVEL_REDIS_ADDRESS" default:""`
	Password string `envconfig:"SHOVEL_REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"SHOVEL_REDIS_DB" default:"0"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a configuration backed by an in-memory sqlite database.
// Used by tests and local runs.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: ":memory:",
		},
		Service: &svcConfig{
			Address:        ":3443",
			MetricsAddress: ":8080",
			LogLevel:       "debug",
			LogFormat:      "console",
			AllowedOrigins: []string{"http://localhost:3000"},
			Auth: Auth{
				Secret:        "local-development-secret",
				Issuer:        "shovel-api",
				TokenLifetime:      72 * time.Hour,
				ResetURL:           "http://localhost:3000/resetPassword/",
				ResetTokenLifetime: 10 * time.Minute,
			},
		},
		Ledger: &LedgerConfig{
			Currency:           "usd",
			SuccessURL:         "http://localhost:3000/payment/success",
			CancelURL:          "http://localhost:3000/payment/cancel",
			CallTimeout:        15 * time.Second,
			BreakerMaxRequests: 100,
			BreakerInterval:    5 * time.Second,
			BreakerTimeout:     3 * time.Second,
		},
		Settlement: &SettlementConfig{
			PlatformFeeBps:    2000,
			MaxPayoutAttempts: 5,
			SweepInterval:     5 * time.Minute,
			ClaimLease:        10 * time.Minute,
		},
		Referral: &ReferralConfig{
			Threshold:   10,
			BonusAmount: 1000,
		},
		Email: &EmailConfig{
			Provider:  "log",
			From:      "no-reply@shovelhouse.app",
			QueueSize: 256,
		},
		Kafka: &KafkaConfig{Topic: "shovel.events"},
		Redis: &RedisConfig{},
	}
}
