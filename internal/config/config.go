// Package config loads service settings: built-in defaults, then an optional
// YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is shared by the api, worker and seed binaries.
type Config struct {
	ServiceName string `yaml:"service_name" validate:"required"`
	RunLocal    bool   `yaml:"run_local"`
	HTTPAddr    string `yaml:"http_addr" validate:"required"`
	LogLevel    string `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat   string `yaml:"log_format" validate:"oneof=json console"`

	AWS       AWS       `yaml:"aws"`
	Tables    Tables    `yaml:"tables"`
	Queue     Queue     `yaml:"queue"`
	Auth      Auth      `yaml:"auth"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Telemetry Telemetry `yaml:"telemetry"`
}

type AWS struct {
	Region           string `yaml:"region" validate:"required"`
	EndpointOverride string `yaml:"endpoint_override" validate:"omitempty,url"`
}

type Tables struct {
	Orders         string        `yaml:"orders" validate:"required"`
	CountryIndex   string        `yaml:"country_index" validate:"required"`
	Idempotency    string        `yaml:"idempotency" validate:"required"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl" validate:"gt=0"`
	PaymentMethods string        `yaml:"payment_methods" validate:"required"`
}

// Queue is where order events go. An empty URL disables publishing.
type Queue struct {
	OrdersURL string `yaml:"orders_url" validate:"omitempty,url"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret" validate:"omitempty,min=16"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl" validate:"gt=0"`
}

// RateLimit applies per principal. RPS <= 0 disables it.
type RateLimit struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

type Telemetry struct {
	// OTLPEndpoint is host:port of an OTLP/HTTP collector; empty disables tracing.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// MetricsNamespace is the CloudWatch namespace used by the worker.
	MetricsNamespace string `yaml:"metrics_namespace" validate:"required"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		ServiceName: "scoped-orderflow",
		HTTPAddr:    ":8080",
		LogLevel:    "info",
		LogFormat:   "json",
		AWS:         AWS{Region: "us-east-1"},
		Tables: Tables{
			Orders:         "Orders",
			CountryIndex:   "country-created_at-index",
			Idempotency:    "Idempotency",
			IdempotencyTTL: 48 * time.Hour,
			PaymentMethods: "PaymentMethods",
		},
		Auth:      Auth{Issuer: "scoped-orderflow", TokenTTL: 24 * time.Hour},
		RateLimit: RateLimit{RPS: 10, Burst: 20},
		Telemetry: Telemetry{MetricsNamespace: "ScopedOrderflow"},
	}
}

// Load builds the configuration. path may be empty; when it is, CONFIG_FILE
// is consulted.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := validatorv10.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// RequireAuth reports an error when the api cannot verify credentials.
func (c *Config) RequireAuth() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"SERVICE_NAME":                &cfg.ServiceName,
		"HTTP_ADDR":                   &cfg.HTTPAddr,
		"LOG_LEVEL":                   &cfg.LogLevel,
		"LOG_FORMAT":                  &cfg.LogFormat,
		"AWS_REGION":                  &cfg.AWS.Region,
		"AWS_ENDPOINT_OVERRIDE":       &cfg.AWS.EndpointOverride,
		"ORDERS_TABLE":                &cfg.Tables.Orders,
		"ORDERS_COUNTRY_INDEX":        &cfg.Tables.CountryIndex,
		"IDEMPOTENCY_TABLE":           &cfg.Tables.Idempotency,
		"PAYMENT_METHODS_TABLE":       &cfg.Tables.PaymentMethods,
		"ORDERS_QUEUE_URL":            &cfg.Queue.OrdersURL,
		"JWT_SECRET":                  &cfg.Auth.JWTSecret,
		"JWT_ISSUER":                  &cfg.Auth.Issuer,
		"OTEL_EXPORTER_OTLP_ENDPOINT": &cfg.Telemetry.OTLPEndpoint,
		"METRICS_NAMESPACE":           &cfg.Telemetry.MetricsNamespace,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("RUN_LOCAL"); ok {
		cfg.RunLocal = v == "true"
	}
	durations := map[string]*time.Duration{
		"IDEMPOTENCY_TTL": &cfg.Tables.IdempotencyTTL,
		"JWT_TTL":         &cfg.Auth.TokenTTL,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	if v, ok := os.LookupEnv("RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RPS = f
	}
	if v, ok := os.LookupEnv("RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = n
	}
	return nil
}
