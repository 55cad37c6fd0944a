package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"scancodes/pkg/payment"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8099", cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiry)
	assert.Equal(t, "NGN", cfg.Payment.DefaultCurrency)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.BrokerList())
}

func TestPaymentConfig_GatewayFromEnv(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "Flutterwave")
	t.Setenv("PAYMENT_SECRET_KEY", "FLWSECK-1")
	t.Setenv("PAYMENT_SECRET_HASH", "hash")
	t.Setenv("PAYMENT_TEST_MODE", "true")
	cfg, err := Load()
	require.NoError(t, err)

	g, err := cfg.Payment.Gateway()
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderFlutterwave, g.Provider)
	assert.Equal(t, "FLWSECK-1", g.Credentials.SecretKey)
	assert.True(t, g.Credentials.TestMode)
}

func TestPaymentConfig_GatewaysFileWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateways.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
active: BitPay
gateways:
  bitpay:
    api_key: bp-token
    secret_key: bp-secret
  paystack:
    secret_key: sk_live
`), 0o600))
	t.Setenv("PAYMENT_PROVIDER", "paystack")
	t.Setenv("PAYMENT_GATEWAYS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	g, err := cfg.Payment.Gateway()
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderBitPay, g.Provider)
	assert.Equal(t, "bp-token", g.Credentials.APIKey)
}

func TestPaymentConfig_Errors(t *testing.T) {
	_, err := PaymentConfig{Provider: "stripe"}.Gateway()
	assert.ErrorIs(t, err, payment.ErrConfiguration)

	_, err = PaymentConfig{gateways: &GatewaysFile{Active: "paystack"}}.Gateway()
	assert.ErrorIs(t, err, payment.ErrConfiguration)

	t.Setenv("PAYMENT_GATEWAYS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log := NewLogger(LogConfig{Level: "debug", Format: "text"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	log = NewLogger(LogConfig{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}
