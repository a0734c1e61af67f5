package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Booking   BookingConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Stripe    StripeConfig
	Sandbox   SandboxConfig
	JWT       JWTConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Name            string
	Port            string
	Debug           bool
	LogPath         string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host          string
	Port          string
	Name          string
	User          string
	Password      string
	SSLMode       string
	MaxConns      int32
	RunMigrations bool
}

// BookingConfig holds the reservation policy constants.
type BookingConfig struct {
	HoldDuration    time.Duration
	SweepInterval   time.Duration
	RefundMinLead   time.Duration
	ProviderTimeout time.Duration
	Currency        string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LeaseKey string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type StripeConfig struct {
	Enabled       bool
	SecretKey     string
	WebhookSecret string
}

type SandboxConfig struct {
	Enabled       bool
	WebhookSecret string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:            v.GetString("APP_NAME"),
			Port:            v.GetString("PORT"),
			Debug:           v.GetBool("DEBUG"),
			LogPath:         v.GetString("LOG_PATH"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:          v.GetString("DB_HOST"),
			Port:          v.GetString("DB_PORT"),
			Name:          v.GetString("DB_NAME"),
			User:          v.GetString("DB_USER"),
			Password:      v.GetString("DB_PASS"),
			SSLMode:       v.GetString("DB_SSLMODE"),
			MaxConns:      v.GetInt32("DB_MAX_CONNS"),
			RunMigrations: v.GetBool("DB_RUN_MIGRATIONS"),
		},
		Booking: BookingConfig{
			HoldDuration:    v.GetDuration("BOOKING_HOLD_DURATION"),
			SweepInterval:   v.GetDuration("BOOKING_SWEEP_INTERVAL"),
			RefundMinLead:   v.GetDuration("BOOKING_REFUND_MIN_LEAD"),
			ProviderTimeout: v.GetDuration("BOOKING_PROVIDER_TIMEOUT"),
			Currency:        v.GetString("BOOKING_CURRENCY"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			LeaseKey: v.GetString("REDIS_SWEEPER_LEASE_KEY"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("KAFKA_ENABLED"),
			Brokers: v.GetStringSlice("KAFKA_BROKERS"),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Stripe: StripeConfig{
			Enabled:       v.GetBool("STRIPE_ENABLED"),
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		},
		Sandbox: SandboxConfig{
			Enabled:       v.GetBool("SANDBOX_PAYMENTS_ENABLED"),
			WebhookSecret: v.GetString("SANDBOX_WEBHOOK_SECRET"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      v.GetBool("OTEL_ENABLED"),
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ErrInvalidConfig is returned when a required setting is missing.
var ErrInvalidConfig = errors.New("invalid config")

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("%w: JWT_SECRET is required", ErrInvalidConfig)
	}
	if c.Sandbox.Enabled && c.Sandbox.WebhookSecret == "" {
		return fmt.Errorf("%w: SANDBOX_WEBHOOK_SECRET is required when sandbox payments are enabled", ErrInvalidConfig)
	}
	if c.Stripe.Enabled && (c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "") {
		return fmt.Errorf("%w: STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required when stripe is enabled", ErrInvalidConfig)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "cinema-reservation")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_PATH", "logs/")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_RUN_MIGRATIONS", true)

	v.SetDefault("BOOKING_HOLD_DURATION", "120s")
	v.SetDefault("BOOKING_SWEEP_INTERVAL", "60s")
	v.SetDefault("BOOKING_REFUND_MIN_LEAD", "2h")
	v.SetDefault("BOOKING_PROVIDER_TIMEOUT", "15s")
	v.SetDefault("BOOKING_CURRENCY", "vnd")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_SWEEPER_LEASE_KEY", "cinema-reservation:sweeper:leader")

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA_TOPIC", "booking-events")

	v.SetDefault("STRIPE_ENABLED", false)
	v.SetDefault("SANDBOX_PAYMENTS_ENABLED", false)

	v.SetDefault("JWT_ISSUER", "cinema-auth")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SERVICE_NAME", "cinema-reservation")
}
