// Package config builds the process configuration once at startup. Nothing
// downstream reads the environment after Load returns.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/VodScribe/internal/pkg/env"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	AppEnv   string `validate:"required"`
	Host     string
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"omitempty,oneof=debug info warn error"`

	PayPal   PayPalConfig
	Kofi     KofiConfig
	Database DatabaseConfig
	Cache    CacheConfig
	AMQPURL  string `validate:"omitempty,url"`

	// JWTSecret verifies access tokens issued by the hosted auth provider.
	JWTSecret string
}

type PayPalConfig struct {
	WebhookID string
	// CertHosts overrides the hosts the signing certificate may be fetched from.
	CertHosts []string
}

type KofiConfig struct {
	VerificationToken string
}

type DatabaseConfig struct {
	Driver      string `validate:"required,oneof=mysql postgres"`
	DSN         string
	Host        string
	Port        string `validate:"omitempty,numeric"`
	User        string
	Password    string
	Name        string
	AutoMigrate bool
}

type CacheConfig struct {
	Host     string
	Port     int
	Password string
}

// Load reads the environment (and an optional .env file) into a validated Config.
func Load() (*Config, error) {
	env.SetupEnvFile()

	driver := strings.ToLower(env.GetEnv("DB_DRIVER", DriverMySQL))
	defaultDBPort := "3306"
	if driver == DriverPostgres {
		defaultDBPort = "5432"
	}

	cachePort, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_PORT: %w", err)
	}

	cfg := &Config{
		AppEnv:   env.GetEnv("APP_ENV", "prod"),
		Host:     env.GetEnv("APP_HOST", ""),
		Port:     env.FirstEnv("3001", "PORT", "APP_PORT"),
		LogLevel: strings.ToLower(env.GetEnv("LOG_LEVEL", "info")),
		PayPal: PayPalConfig{
			WebhookID: strings.TrimSpace(env.FirstEnv("", "PAYPAL_WEBHOOK_ID", "PAYPAL_WEBHOOK_SECRET")),
			CertHosts: splitList(env.GetEnv("PAYPAL_CERT_HOSTS", "")),
		},
		Kofi: KofiConfig{
			VerificationToken: strings.TrimSpace(env.GetEnv("KOFI_VERIFICATION_TOKEN", "")),
		},
		Database: DatabaseConfig{
			Driver:      driver,
			DSN:         env.GetEnv("DB_DSN", ""),
			Host:        env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:        env.GetEnv("DB_PORT", defaultDBPort),
			User:        env.GetEnv("DB_USER", ""),
			Password:    env.GetEnv("DB_PASSWORD", ""),
			Name:        env.GetEnv("DB_NAME", "vodscribe"),
			AutoMigrate: env.GetEnv("DB_AUTO_MIGRATE", "true") == "true",
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", ""),
			Port:     cachePort,
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		AMQPURL:   env.GetEnv("AMQP_URL", ""),
		JWTSecret: env.GetEnv("SUPABASE_JWT_SECRET", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// ListenAddr is the address handed to fiber.App.Listen.
func (c *Config) ListenAddr() string {
	return c.Host + ":" + c.Port
}

func (c *Config) PayPalConfigured() bool {
	return c.PayPal.WebhookID != ""
}

func (c *Config) KofiConfigured() bool {
	return c.Kofi.VerificationToken != ""
}

// GormDSN returns the DSN for the configured gorm driver.
func (d DatabaseConfig) GormDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == DriverPostgres {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			d.Host, d.User, d.Password, d.Name, d.Port)
	}
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// MigrateURL returns the database URL in the form golang-migrate expects.
func (d DatabaseConfig) MigrateURL() string {
	if d.Driver == DriverPostgres {
		if d.DSN != "" && strings.HasPrefix(d.DSN, "postgres") {
			return d.DSN
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     d.Host + ":" + d.Port,
			Path:     "/" + d.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	}
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
