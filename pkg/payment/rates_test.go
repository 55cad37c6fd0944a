package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateService_CachesAndConverts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/NGN", r.URL.Path)
		w.Write([]byte(`{"result":"success","base_code":"NGN","conversion_rates":{"NGN":1,"USD":0.00065,"GHS":0.0098}}`))
	}))
	defer srv.Close()

	s := NewRateService(srv.URL, time.Hour, testClient())
	ctx := context.Background()

	usd, err := s.Convert(ctx, decimal.NewFromInt(1000), "NGN", "USD")
	require.NoError(t, err)
	assert.Equal(t, "0.65", usd.StringFixed(2))

	unknown, err := s.Convert(ctx, decimal.RequireFromString("12.345"), "ngn", "XOF")
	require.NoError(t, err)
	assert.Equal(t, "12.35", unknown.StringFixed(2))

	same, err := s.Convert(ctx, decimal.NewFromInt(7), "NGN", "ngn")
	require.NoError(t, err)
	assert.Equal(t, "7.00", same.StringFixed(2))

	assert.EqualValues(t, 1, calls.Load())
}

func TestRateService_Expires(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"result":"success","conversion_rates":{"USD":1}}`))
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewRateService(srv.URL, time.Minute, testClient())
	s.now = func() time.Time { return now }

	_, err := s.Rates(context.Background(), "USD")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = s.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRateService_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"error","error-type":"unsupported-code"}`))
	}))
	defer srv.Close()

	_, err := NewRateService(srv.URL, time.Minute, testClient()).Rates(context.Background(), "ZZZ")
	assert.ErrorIs(t, err, ErrProvider)

	_, err = NewRateService("", time.Minute, nil).Rates(context.Background(), "NGN")
	assert.ErrorIs(t, err, ErrConfiguration)
}
