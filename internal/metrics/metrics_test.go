package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsTwice(t *testing.T) {
	assert.NotPanics(t, RegisterMetrics)
	assert.NotPanics(t, RegisterMetrics)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(WebhooksReceived.WithLabelValues("paystack", "payment", "ok"))
	WebhooksReceived.WithLabelValues("paystack", "payment", Outcome(nil)).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(WebhooksReceived.WithLabelValues("paystack", "payment", "ok")))
	assert.Equal(t, "error", Outcome(errors.New("x")))
}
