package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/VodScribe/internal/pkg/env"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	prev := env.Env
	t.Cleanup(func() { env.Env = prev })
	env.Env = map[string]string{}
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("APP_PORT", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("PAYPAL_WEBHOOK_ID", "")
	t.Setenv("PAYPAL_WEBHOOK_SECRET", "")
	t.Setenv("KOFI_VERIFICATION_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, "3306", cfg.Database.Port)
	assert.False(t, cfg.PayPalConfigured())
	assert.False(t, cfg.KofiConfigured())
}

func TestLoadSecretsAndAliases(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PAYPAL_WEBHOOK_ID", "")
	t.Setenv("PAYPAL_WEBHOOK_SECRET", "WH-123")
	t.Setenv("KOFI_VERIFICATION_TOKEN", " kofi-token ")
	t.Setenv("PORT", "8080")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("PAYPAL_CERT_HOSTS", "api.paypal.com, 127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "WH-123", cfg.PayPal.WebhookID)
	assert.Equal(t, "kofi-token", cfg.Kofi.VerificationToken)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, []string{"api.paypal.com", "127.0.0.1"}, cfg.PayPal.CertHosts)
	assert.True(t, cfg.PayPalConfigured())
	assert.True(t, cfg.KofiConfigured())
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseURLs(t *testing.T) {
	my := DatabaseConfig{Driver: DriverMySQL, Host: "db", Port: "3306", User: "u", Password: "p", Name: "vs"}
	assert.Equal(t, "u:p@tcp(db:3306)/vs?charset=utf8mb4&parseTime=True&loc=UTC", my.GormDSN())
	assert.Equal(t, "mysql://u:p@tcp(db:3306)/vs?multiStatements=true", my.MigrateURL())

	pg := DatabaseConfig{Driver: DriverPostgres, Host: "db", Port: "5432", User: "u", Password: "p", Name: "vs"}
	assert.Contains(t, pg.GormDSN(), "host=db user=u password=p dbname=vs port=5432")
	assert.Equal(t, "postgres://u:p@db:5432/vs?sslmode=disable", pg.MigrateURL())

	withDSN := DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://x@y/z"}
	assert.Equal(t, "postgres://x@y/z", withDSN.GormDSN())
	assert.Equal(t, "postgres://x@y/z", withDSN.MigrateURL())
}
