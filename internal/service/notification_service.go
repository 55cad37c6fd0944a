package service

import (
	"context"
	"time"

	"scancodes/internal/models"
	"scancodes/internal/publisher"
	"scancodes/pkg/money"
	"scancodes/pkg/payment"

	"github.com/sirupsen/logrus"
)

// Broadcaster pushes a payload to a user's live connections.
type Broadcaster interface {
	BroadcastToUser(userID uint, payload any) (int, error)
}

// NotificationService fans ledger changes out to websocket clients and the
// event stream. Failures are logged and never surface to the caller.
type NotificationService struct {
	hub     Broadcaster
	pub     publisher.Publisher
	log     logrus.FieldLogger
	timeout time.Duration
}

func NewNotificationService(hub Broadcaster, pub publisher.Publisher, log logrus.FieldLogger) *NotificationService {
	if pub == nil {
		pub = publisher.Nop{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &NotificationService{hub: hub, pub: pub, log: log, timeout: 5 * time.Second}
}

type PaymentStatusMessage struct {
	Type        string `json:"type"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PaymentType string `json:"payment_type,omitempty"`
}

func (s *NotificationService) PaymentStatusChanged(ctx context.Context, p *models.Payment) {
	log := s.log.WithFields(logrus.Fields{"reference": p.Key, "user_id": p.UserID, "status": p.Status})
	if s.hub != nil {
		msg := PaymentStatusMessage{
			Type:        publisher.EventPaymentStatusChanged,
			Reference:   p.Key,
			Status:      string(p.Status),
			Amount:      money.String(p.Amount),
			Currency:    p.Currency,
			PaymentType: p.PaymentType(),
		}
		if n, err := s.hub.BroadcastToUser(p.UserID, msg); err != nil {
			log.WithError(err).Warn("payment status push failed")
		} else {
			log.WithField("connections", n).Debug("payment status pushed")
		}
	}

	ev := publisher.NewEvent(publisher.EventPaymentStatusChanged, p.Key)
	ev.UserID = p.UserID
	ev.Provider = p.PaymentMethod
	ev.Status = string(p.Status)
	ev.Amount = p.Amount
	ev.Currency = p.Currency
	ev.PaymentType = p.PaymentType()
	s.publish(ctx, ev, log)
}

func (s *NotificationService) TransferUpdated(ctx context.Context, provider payment.Provider, w *payment.TransferWebhook) {
	ev := publisher.NewEvent(publisher.EventTransferUpdated, w.Reference)
	ev.Provider = string(provider)
	ev.Status = string(w.Status)
	ev.Amount = w.Amount
	ev.Currency = w.Currency
	s.publish(ctx, ev, s.log.WithFields(logrus.Fields{"reference": w.Reference, "status": w.Status}))
}

func (s *NotificationService) publish(ctx context.Context, ev publisher.Event, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.pub.Publish(ctx, ev); err != nil {
		log.WithError(err).WithField("event", ev.Type).Error("publishing event failed")
	}
}
