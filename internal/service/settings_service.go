package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"scancodes/config"
	"scancodes/internal/domain"
	"scancodes/internal/repository"
	"scancodes/pkg/payment"

	"github.com/sirupsen/logrus"
)

// SettingsService reads general settings and the active gateway. Values
// stored in system_settings win over the process configuration.
type SettingsService struct {
	repo *repository.SettingRepository
	cfg  *config.Config
	log  logrus.FieldLogger
}

func NewSettingsService(repo *repository.SettingRepository, cfg *config.Config, log logrus.FieldLogger) *SettingsService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SettingsService{repo: repo, cfg: cfg, log: log}
}

// GeneralSetting returns the stored value for key, or def when unset.
func (s *SettingsService) GeneralSetting(ctx context.Context, key, def string) string {
	v, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, payment.ErrNotFound) {
			s.log.WithError(err).WithField("key", key).Warn("reading setting failed, using default")
		}
		return def
	}
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Currency is the platform currency used when a payment names none.
func (s *SettingsService) Currency(ctx context.Context) string {
	def := s.cfg.Payment.DefaultCurrency
	if def == "" {
		def = domain.DefaultCurrency
	}
	return strings.ToUpper(s.GeneralSetting(ctx, domain.SettingCurrency, def))
}

func (s *SettingsService) PlatformURL(ctx context.Context) string {
	return strings.TrimRight(s.GeneralSetting(ctx, domain.SettingPlatformURL, s.cfg.Server.PlatformURL), "/")
}

const gatewayPrefix = "payment_gateway."

// ActiveGateway resolves the gateway from configuration, then applies any
// payment_gateway.* settings. Switching provider in settings discards the
// configured credentials.
func (s *SettingsService) ActiveGateway(ctx context.Context) (payment.GatewayConfig, error) {
	stored, err := s.repo.GetPrefix(ctx, gatewayPrefix)
	if err != nil {
		return payment.GatewayConfig{}, err
	}
	return s.resolveGateway(stored)
}

func (s *SettingsService) resolveGateway(stored map[string]string) (payment.GatewayConfig, error) {
	gc, cfgErr := s.cfg.Payment.Gateway()
	if name := strings.TrimSpace(stored[domain.SettingGatewayProvider]); name != "" {
		p, err := payment.ParseProvider(name)
		if err != nil {
			return payment.GatewayConfig{}, err
		}
		if cfgErr != nil || p != gc.Provider {
			gc = payment.GatewayConfig{Provider: p}
		}
		cfgErr = nil
	}
	if cfgErr != nil {
		return payment.GatewayConfig{}, cfgErr
	}

	c := &gc.Credentials
	for key, dst := range map[string]*string{
		domain.SettingGatewayAPIKey:     &c.APIKey,
		domain.SettingGatewaySecretKey:  &c.SecretKey,
		domain.SettingGatewayPublicKey:  &c.PublicKey,
		domain.SettingGatewaySecretHash: &c.SecretHash,
		domain.SettingGatewayTestAPIKey: &c.TestAPIKey,
		domain.SettingGatewayTestSecret: &c.TestSecretKey,
		domain.SettingGatewayTestPublic: &c.TestPublicKey,
	} {
		if v, ok := stored[key]; ok && v != "" {
			*dst = v
		}
	}
	if v, ok := stored[domain.SettingGatewayTestMode]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.TestMode = b
		}
	}
	return gc, nil
}

// SaveGateway stores gc as the active gateway.
func (s *SettingsService) SaveGateway(ctx context.Context, gc payment.GatewayConfig) error {
	c := gc.Credentials
	return s.repo.SetMany(ctx, map[string]string{
		domain.SettingGatewayProvider:   string(gc.Provider),
		domain.SettingGatewayAPIKey:     c.APIKey,
		domain.SettingGatewaySecretKey:  c.SecretKey,
		domain.SettingGatewayPublicKey:  c.PublicKey,
		domain.SettingGatewaySecretHash: c.SecretHash,
		domain.SettingGatewayTestMode:   strconv.FormatBool(c.TestMode),
		domain.SettingGatewayTestAPIKey: c.TestAPIKey,
		domain.SettingGatewayTestSecret: c.TestSecretKey,
		domain.SettingGatewayTestPublic: c.TestPublicKey,
	})
}

// UpdateSettings stores values in one transaction. Gateway keys are checked
// first: the provider must be known, masked secrets read back from the admin
// API are refused, and the resulting gateway must build.
func (s *SettingsService) UpdateSettings(ctx context.Context, values map[string]string) error {
	clean := make(map[string]string, len(values))
	gatewayTouched := false
	for k, v := range values {
		k = strings.TrimSpace(k)
		if k == "" {
			return fmt.Errorf("%w: empty setting key", payment.ErrValidation)
		}
		if strings.HasPrefix(k, gatewayPrefix) {
			gatewayTouched = true
			var err error
			if v, err = normalizeGatewaySetting(k, v); err != nil {
				return err
			}
		}
		clean[k] = v
	}

	if gatewayTouched {
		stored, err := s.repo.GetPrefix(ctx, gatewayPrefix)
		if err != nil {
			return err
		}
		for k, v := range clean {
			if strings.HasPrefix(k, gatewayPrefix) {
				stored[k] = v
			}
		}
		gc, err := s.resolveGateway(stored)
		if err == nil {
			_, err = payment.DefaultRegistry().New(gc)
		}
		if err != nil {
			return fmt.Errorf("%w: gateway settings rejected: %v", payment.ErrValidation, err)
		}
	}
	return s.repo.SetMany(ctx, clean)
}

func normalizeGatewaySetting(key, value string) (string, error) {
	switch {
	case key == domain.SettingGatewayProvider:
		p, err := payment.ParseProvider(value)
		if err != nil {
			return "", fmt.Errorf("%w: unknown payment provider %q", payment.ErrValidation, value)
		}
		return string(p), nil
	case key == domain.SettingGatewayTestMode:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("%w: %s must be true or false", payment.ErrValidation, key)
		}
		return strconv.FormatBool(b), nil
	case !slices.Contains(gatewayKeys, key):
		return "", fmt.Errorf("%w: unknown gateway setting %q", payment.ErrValidation, key)
	case IsSecretSetting(key) && value != "" && value == MaskSecret(value):
		return "", fmt.Errorf("%w: %s holds a masked value", payment.ErrValidation, key)
	}
	return value, nil
}

var gatewayKeys = []string{
	domain.SettingGatewayProvider, domain.SettingGatewayAPIKey, domain.SettingGatewaySecretKey,
	domain.SettingGatewayPublicKey, domain.SettingGatewaySecretHash, domain.SettingGatewayTestMode,
	domain.SettingGatewayTestAPIKey, domain.SettingGatewayTestSecret, domain.SettingGatewayTestPublic,
}

// IsSecretSetting reports whether key holds a credential that is masked on read.
func IsSecretSetting(key string) bool {
	switch key {
	case domain.SettingGatewayAPIKey, domain.SettingGatewaySecretKey, domain.SettingGatewaySecretHash,
		domain.SettingGatewayTestAPIKey, domain.SettingGatewayTestSecret:
		return true
	}
	return false
}

// SeedDefaults inserts general settings that are missing.
func (s *SettingsService) SeedDefaults(ctx context.Context) error {
	cur := s.cfg.Payment.DefaultCurrency
	if cur == "" {
		cur = domain.DefaultCurrency
	}
	return s.repo.SeedDefaults(ctx, map[string]string{
		domain.SettingCurrency:    cur,
		domain.SettingPlatformURL: s.cfg.Server.PlatformURL,
	})
}

// MaskSecret keeps the last four characters of a credential.
func MaskSecret(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}
