package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RateService looks up conversion rates from an exchange-rate API that
// answers GET {baseURL}/{BASE} with {"result":"success","conversion_rates":{...}}.
// Results are cached per base currency.
type RateService struct {
	baseURL string
	client  *Client
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]rateEntry
}

type rateEntry struct {
	rates   map[string]decimal.Decimal
	fetched time.Time
}

func NewRateService(baseURL string, ttl time.Duration, client *Client) *RateService {
	if client == nil {
		client = NewClient(10*time.Second, DefaultRetryConfig(), nil)
	}
	return &RateService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		ttl:     ttl,
		now:     time.Now,
		cache:   make(map[string]rateEntry),
	}
}

// Rates returns conversion rates for base, served from cache while fresh.
func (s *RateService) Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	base = strings.ToUpper(base)
	if s.baseURL == "" {
		return nil, fmt.Errorf("%w: exchange rate api url not set", ErrConfiguration)
	}
	s.mu.Lock()
	if e, ok := s.cache[base]; ok && s.now().Sub(e.fetched) < s.ttl {
		s.mu.Unlock()
		return e.rates, nil
	}
	s.mu.Unlock()

	resp, err := s.client.do(ctx, request{method: http.MethodGet, url: s.baseURL + "/" + url.PathEscape(base)})
	if err != nil {
		return nil, err
	}
	var out struct {
		Result          string                     `json:"result"`
		ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
	}
	if !resp.success() {
		return nil, &ProviderError{Provider: "exchange-rates", StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	if err := resp.decode(&out); err != nil {
		return nil, fmt.Errorf("exchange rates: decode: %w", err)
	}
	if out.Result != "success" {
		return nil, fmt.Errorf("%w: exchange rate lookup for %s returned %q", ErrProvider, base, out.Result)
	}
	s.mu.Lock()
	s.cache[base] = rateEntry{rates: out.ConversionRates, fetched: s.now()}
	s.mu.Unlock()
	return out.ConversionRates, nil
}

// Convert turns amount in base into target, rounded to two places. An
// unknown target leaves the amount unconverted.
func (s *RateService) Convert(ctx context.Context, amount decimal.Decimal, base, target string) (decimal.Decimal, error) {
	if strings.EqualFold(base, target) {
		return amount.Round(2), nil
	}
	rates, err := s.Rates(ctx, base)
	if err != nil {
		return decimal.Zero, err
	}
	rate, ok := rates[strings.ToUpper(target)]
	if !ok {
		return amount.Round(2), nil
	}
	return amount.Mul(rate).Round(2), nil
}
