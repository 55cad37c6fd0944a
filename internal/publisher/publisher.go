package publisher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventPaymentStatusChanged = "payment.status_changed"
	EventTransferUpdated      = "transfer.updated"
)

// Event is the envelope written for every payment event.
type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Reference   string          `json:"reference"`
	UserID      uint            `json:"user_id,omitempty"`
	Provider    string          `json:"provider"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PaymentType string          `json:"payment_type,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func NewEvent(eventType, reference string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Reference:  reference,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events. Used when Kafka is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
