package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration, read from environment variables.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

	DatabaseURL    string `env:"DATABASE_URL,required"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"file://db/migrations"`

	// Payment gateway credentials. The checkout and webhook secrets are
	// distinct on purpose: client callbacks and webhooks are authenticated
	// by separate HMAC schemes.
	GatewayBaseURL       string        `env:"GATEWAY_BASE_URL" envDefault:"https://api.gateway.example"`
	GatewayKeyID         string        `env:"GATEWAY_KEY_ID,required"`
	GatewayKeySecret     string        `env:"GATEWAY_KEY_SECRET,required"`
	GatewayWebhookSecret string        `env:"GATEWAY_WEBHOOK_SECRET,required"`
	GatewayTimeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	KafkaBootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	PurchasesTopic        string `env:"PURCHASES_TOPIC" envDefault:"successful_payments"`
	RefundsTopic          string `env:"REFUNDS_TOPIC" envDefault:"refunds"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`
}

// Load parses the configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
