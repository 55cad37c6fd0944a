package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scancodes/internal/domain"
	"scancodes/internal/metrics"
	"scancodes/internal/models"
	"scancodes/internal/repository"
	"scancodes/pkg/money"
	"scancodes/pkg/payment"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const initFailureMessage = "An unexpected error occurred initializing payment"

// InitRequest describes a payment a user wants to make through the gateway.
type InitRequest struct {
	Amount      decimal.Decimal
	Currency    string // empty means the platform currency
	User        *models.User
	PaymentType string // defaults to wallet_top_up
	Narration   string
	ExtraMeta   map[string]any // e.g. order_id, subscription_id
	RedirectURL string
}

// WebhookResult is what a processed webhook reports back to the provider.
type WebhookResult struct {
	EventType string `json:"event_type"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	// Applied is false when the event repeated an already-settled payment.
	Applied bool   `json:"applied"`
	Message string `json:"message"`
}

// PaymentManager runs the gateway payment lifecycle against the ledger.
// It is bound to one gateway; switching gateways means building a new one.
type PaymentManager struct {
	db       *gorm.DB
	gateway  *payment.Gateway
	payments *repository.PaymentRepository
	users    *repository.UserRepository
	settings *SettingsService
	wallets  *WalletService
	notifier *NotificationService
	log      logrus.FieldLogger
	now      func() time.Time
}

type ManagerOption func(*PaymentManager)

func WithNotifications(n *NotificationService) ManagerOption {
	return func(m *PaymentManager) { m.notifier = n }
}

func WithManagerLogger(l logrus.FieldLogger) ManagerOption {
	return func(m *PaymentManager) { m.log = l }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *PaymentManager) { m.now = now }
}

func NewPaymentManager(db *gorm.DB, gateway *payment.Gateway, settings *SettingsService, opts ...ManagerOption) (*PaymentManager, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: no active payment gateway", payment.ErrConfiguration)
	}
	m := &PaymentManager{
		db:       db,
		gateway:  gateway,
		payments: repository.NewPaymentRepository(db),
		users:    repository.NewUserRepository(db),
		settings: settings,
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.WithField("provider", string(gateway.Provider()))
	m.wallets = NewWalletService(db, m.log)
	if m.notifier == nil {
		m.notifier = NewNotificationService(nil, nil, m.log)
	}
	return m, nil
}

func (m *PaymentManager) Provider() payment.Provider { return m.gateway.Provider() }

// InitializeGatewayPayment records a pending Payment/Transaction pair under
// a fresh reference, then asks the provider for a checkout link. Whatever
// goes wrong after the reference exists, the caller gets a response carrying
// it, and a recorded pair stays pending for reconciliation.
func (m *PaymentManager) InitializeGatewayPayment(ctx context.Context, req InitRequest) (*payment.ProcessorResponse, error) {
	proc, err := m.gateway.NewProcessor()
	if err != nil {
		return nil, err
	}
	ref := proc.Reference()
	provider := proc.Provider()
	log := m.log.WithField("reference", ref)

	fail := func(err error, msg string) (*payment.ProcessorResponse, error) {
		metrics.PaymentsInitialized.WithLabelValues(string(provider), "error").Inc()
		log.WithError(err).Warn("payment initialization failed")
		return payment.ErrorResponse(ref, msg), err
	}

	if req.User == nil || req.User.ID == 0 {
		err := fmt.Errorf("%w: payment requires a user", payment.ErrValidation)
		return fail(err, err.Error())
	}
	log = log.WithField("user_id", req.User.ID)

	amount, err := money.Quantize(req.Amount)
	if err == nil && !amount.IsPositive() {
		err = errors.New("amount must be positive")
	}
	if err != nil {
		err = fmt.Errorf("%w: invalid amount: %v", payment.ErrValidation, err)
		return fail(err, err.Error())
	}

	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = domain.PaymentTypeWalletTopUp
	}
	if !domain.ValidPaymentType(paymentType) {
		err := fmt.Errorf("%w: unknown payment type %q", payment.ErrValidation, paymentType)
		return fail(err, err.Error())
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = m.settings.Currency(ctx)
	}
	if !proc.SupportsCurrency(currency) {
		err := fmt.Errorf("%w: %s does not support currency %s", payment.ErrValidation, provider.DisplayName(), currency)
		return fail(err, err.Error())
	}

	narration := req.Narration
	if narration == "" {
		narration = "Payment via " + provider.DisplayName()
	}
	meta := make(map[string]any, len(req.ExtraMeta)+1)
	for k, v := range req.ExtraMeta {
		meta[k] = v
	}
	meta["payment_type"] = paymentType
	if err := m.checkPaymentTarget(ctx, req.User.ID, paymentType, amount, meta); err != nil {
		return fail(err, err.Error())
	}

	p := &models.Payment{
		Key:           ref,
		Amount:        amount,
		Currency:      currency,
		Narration:     narration,
		PaymentMethod: strings.ToLower(string(provider)),
		Status:        payment.StatusPending,
		MetaInfo:      meta,
		UserID:        req.User.ID,
	}
	t := &models.Transaction{
		Key:             ref,
		Amount:          amount,
		TransactionType: domain.TransactionTypePayment,
		Narration:       narration,
		Status:          payment.StatusPending,
		MetaInfo:        meta,
		UserID:          req.User.ID,
	}
	if err := m.payments.CreatePair(ctx, p, t); err != nil {
		return fail(err, initFailureMessage)
	}

	redirect := req.RedirectURL
	if redirect == "" {
		redirect = m.defaultRedirect(ctx, paymentType)
	}

	resp, err := proc.InitializePayment(ctx, payment.InitializeRequest{
		Amount:      amount,
		Currency:    currency,
		Customer:    payment.Customer{Email: req.User.Email, Name: req.User.FullName()},
		RedirectURL: redirect,
	})
	if err != nil {
		return fail(err, initFailureMessage)
	}
	if resp.Reference == "" {
		resp.Reference = ref
	}

	outcome := "ok"
	if !resp.OK() {
		outcome = "rejected"
		log.WithField("message", resp.Message).Warn("provider rejected payment initialization")
	} else {
		metrics.PaymentAmounts.WithLabelValues(currency).Observe(amount.InexactFloat64())
		log.WithField("amount", money.String(amount)).Info("payment initialized")
		if resp.PaymentID != "" {
			if err := m.payments.MergeMeta(ctx, p, map[string]any{"provider_payment_id": resp.PaymentID}); err != nil {
				log.WithError(err).Warn("storing provider payment id failed")
			}
		}
	}
	metrics.PaymentsInitialized.WithLabelValues(string(provider), outcome).Inc()
	return resp, nil
}

// checkPaymentTarget ties an order or subscription payment to something the
// payer owns whose price equals amount. The parsed id replaces the client's
// value in meta.
func (m *PaymentManager) checkPaymentTarget(ctx context.Context, userID uint, paymentType string, amount decimal.Decimal, meta map[string]any) error {
	switch paymentType {
	case domain.PaymentTypeOrderPayment:
		id, err := requiredID(meta, "order_id")
		if err != nil {
			return err
		}
		order, err := repository.NewOrderRepository(m.db).GetByID(ctx, id)
		if err != nil && !errors.Is(err, payment.ErrNotFound) {
			return err
		}
		if err != nil || order.UserID != userID {
			return fmt.Errorf("%w: order %d not found", payment.ErrValidation, id)
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: order %d is %s", payment.ErrValidation, id, order.Status)
		}
		if !money.SafeCompare(order.Amount, amount) {
			return fmt.Errorf("%w: amount %s doesn't match order total %s",
				payment.ErrValidation, money.String(amount), money.String(order.Amount))
		}
		meta["order_id"] = id

	case domain.PaymentTypeSubscription:
		id, err := requiredID(meta, "subscription_id")
		if err != nil {
			return err
		}
		sub, err := repository.NewSubscriptionRepository(m.db).GetWithPlan(ctx, id)
		if err != nil && !errors.Is(err, payment.ErrNotFound) {
			return err
		}
		if err != nil || sub.UserID != userID {
			return fmt.Errorf("%w: subscription %d not found", payment.ErrValidation, id)
		}
		if sub.Plan == nil {
			return fmt.Errorf("%w: subscription %d has no plan", payment.ErrValidation, id)
		}
		if !money.SafeCompare(sub.Plan.Price, amount) {
			return fmt.Errorf("%w: amount %s doesn't match plan price %s",
				payment.ErrValidation, money.String(amount), money.String(sub.Plan.Price))
		}
		meta["subscription_id"] = id
	}
	return nil
}

func requiredID(meta map[string]any, key string) (uint, error) {
	v, ok := meta[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s is required", payment.ErrValidation, key)
	}
	return models.ParseID(v)
}

func (m *PaymentManager) defaultRedirect(ctx context.Context, paymentType string) string {
	base := m.settings.PlatformURL(ctx)
	switch paymentType {
	case domain.PaymentTypeWalletTopUp, domain.PaymentTypeOrderPayment:
		return base + "/payments/verify/?payment_type=" + paymentType
	}
	return base + "/payments/verify"
}

// GetPayment loads a payment owned by userID. Someone else's payment reads
// as missing.
func (m *PaymentManager) GetPayment(ctx context.Context, userID uint, reference string) (*models.Payment, error) {
	p, err := m.payments.GetByKey(ctx, reference)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("%w: payment %s", payment.ErrNotFound, reference)
	}
	return p, nil
}

// VerifyGatewayPayment asks the provider about p and settles it when the
// answer is final. On any failure the returned response is FAILED-shaped
// with meta_info.error set, alongside the error.
func (m *PaymentManager) VerifyGatewayPayment(ctx context.Context, p *models.Payment) (*payment.VerificationResponse, error) {
	log := m.log.WithFields(logrus.Fields{"reference": p.Key, "user_id": p.UserID})
	proc, err := m.gateway.NewProcessor()
	if err != nil {
		return failedVerification(p, err), err
	}
	v, err := proc.VerifyPayment(ctx, p.Key)
	if err != nil {
		log.WithError(err).Warn("payment verification failed")
		return failedVerification(p, err), err
	}
	if !money.SafeCompare(v.Amount, p.Amount) {
		err := fmt.Errorf("%w: verified amount %s doesn't match payment record %s",
			payment.ErrValidation, money.String(v.Amount), money.String(p.Amount))
		log.WithError(err).Warn("payment verification amount mismatch")
		return failedVerification(p, err), err
	}
	if _, err := m.settle(ctx, p, v.Status, v.ProviderReference, "verify"); err != nil {
		return failedVerification(p, err), err
	}
	return v, nil
}

func failedVerification(p *models.Payment, err error) *payment.VerificationResponse {
	return &payment.VerificationResponse{
		Status:            payment.StatusFailed,
		Amount:            p.Amount,
		Currency:          p.Currency,
		ProviderReference: p.Key,
		MetaInfo:          map[string]any{"error": payment.PublicMessage(err)},
	}
}

// HandleGatewayWebhook authenticates, parses and applies one provider
// callback. The signature is checked on the raw body before parsing.
func (m *PaymentManager) HandleGatewayWebhook(ctx context.Context, body []byte, header http.Header) (*WebhookResult, error) {
	provider := string(m.gateway.Provider())
	proc, err := m.gateway.NewProcessor()
	if err != nil {
		return nil, err
	}
	if err := proc.VerifyWebhookSignature(body, header); err != nil {
		metrics.WebhooksReceived.WithLabelValues(provider, "unknown", "bad_signature").Inc()
		m.log.WithError(err).Warn("webhook signature rejected")
		return nil, err
	}
	ev, err := proc.ParseWebhookEvent(body)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(provider, "unknown", "unparsed").Inc()
		return nil, err
	}

	var res *WebhookResult
	switch e := ev.(type) {
	case *payment.PaymentWebhook:
		res, err = m.handlePaymentWebhook(ctx, e)
	case *payment.TransferWebhook:
		res, err = m.handleTransferWebhook(ctx, e)
	default:
		err = fmt.Errorf("%w: unknown event type %q", payment.ErrValidation, ev.EventType())
	}
	metrics.WebhooksReceived.WithLabelValues(provider, ev.EventType(), metrics.Outcome(err)).Inc()
	return res, err
}

func (m *PaymentManager) handlePaymentWebhook(ctx context.Context, w *payment.PaymentWebhook) (*WebhookResult, error) {
	log := m.log.WithFields(logrus.Fields{"reference": w.Reference, "event": w.Event, "status": w.Status})
	p, err := m.payments.GetByKey(ctx, w.Reference)
	if errors.Is(err, payment.ErrNotFound) {
		log.Warn("webhook for unknown payment")
		return nil, fmt.Errorf("%w: %s", payment.ErrTransactionMissing, w.Reference)
	}
	if err != nil {
		return nil, err
	}
	if !money.SafeCompare(w.Amount, p.Amount) {
		log.WithFields(logrus.Fields{"webhook_amount": w.Amount.String(), "payment_amount": money.String(p.Amount)}).
			Warn("webhook amount mismatch")
		return nil, fmt.Errorf("%w: webhook amount doesn't match payment record", payment.ErrValidation)
	}
	applied, err := m.settle(ctx, p, w.Status, w.ProviderReference, "webhook")
	if err != nil {
		return nil, err
	}
	return &WebhookResult{
		EventType: payment.EventTypePayment,
		Reference: p.Key,
		Status:    string(p.Status),
		Applied:   applied,
		Message:   "Payment webhook processed successfully",
	}, nil
}

// Outbound transfers are not stored yet: the event is logged, counted and
// published for whoever tracks payouts.
func (m *PaymentManager) handleTransferWebhook(ctx context.Context, w *payment.TransferWebhook) (*WebhookResult, error) {
	m.log.WithFields(logrus.Fields{
		"reference": w.Reference,
		"event":     w.Event,
		"status":    w.Status,
		"amount":    w.Amount.String(),
	}).Info("transfer webhook received")
	m.notifier.TransferUpdated(ctx, m.gateway.Provider(), w)
	return &WebhookResult{
		EventType: payment.EventTypeTransfer,
		Reference: w.Reference,
		Status:    string(w.Status),
		Message:   "Transfer webhook acknowledged",
	}, nil
}

// settle moves p to status inside one DB transaction. Completion side
// effects run only when this call performed the transition, so replays
// never apply them twice. Non-final statuses are ignored.
func (m *PaymentManager) settle(ctx context.Context, p *models.Payment, status payment.Status, providerRef, source string) (bool, error) {
	if !status.IsTerminal() {
		return false, nil
	}
	var changed bool
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		changed, err = m.payments.WithTx(tx).TransitionStatus(ctx, p.Key, status, providerRef)
		if err != nil || !changed {
			return err
		}
		if status == payment.StatusCompleted {
			return m.applyCompletion(ctx, tx, p)
		}
		return nil
	})
	log := m.log.WithFields(logrus.Fields{"reference": p.Key, "status": status, "source": source})
	if err != nil {
		log.WithError(err).Error("settling payment failed")
		return false, err
	}
	if !changed {
		log.Debug("payment already settled")
		if cur, err := m.payments.GetByKey(ctx, p.Key); err == nil {
			p.Status = cur.Status
		}
		return false, nil
	}

	p.Status = status
	if providerRef != "" {
		p.ProviderReference = providerRef
	}
	metrics.PaymentTransitions.WithLabelValues(p.PaymentMethod, string(status), source).Inc()
	log.Info("payment settled")
	m.notifier.PaymentStatusChanged(ctx, p)
	return true, nil
}

func (m *PaymentManager) applyCompletion(ctx context.Context, tx *gorm.DB, p *models.Payment) error {
	log := m.log.WithFields(logrus.Fields{"reference": p.Key, "user_id": p.UserID})
	paymentType := p.PaymentType()
	if paymentType == "" {
		paymentType = domain.PaymentTypeWalletTopUp
	}
	switch paymentType {
	case domain.PaymentTypeWalletTopUp:
		if _, err := repository.NewWalletRepository(tx).GetOrCreate(ctx, p.UserID); err != nil {
			return err
		}
		_, err := m.wallets.WithTx(tx).Credit(ctx, p.UserID, p.Amount)
		return err

	case domain.PaymentTypeOrderPayment:
		orderID, ok, err := p.MetaUint("order_id")
		if err != nil {
			return err
		}
		if !ok {
			log.Warn("order payment completed without order_id")
			return nil
		}
		return repository.NewOrderRepository(tx).SetStatus(ctx, orderID, domain.OrderStatusPaid)

	case domain.PaymentTypeSubscription:
		subID, ok, err := p.MetaUint("subscription_id")
		if err != nil {
			return err
		}
		if !ok {
			log.Warn("subscription payment completed without subscription_id")
			return nil
		}
		subs := repository.NewSubscriptionRepository(tx)
		sub, err := subs.GetWithPlan(ctx, subID)
		if err != nil {
			return err
		}
		if sub.Plan == nil {
			return fmt.Errorf("%w: plan for subscription %d", payment.ErrNotFound, subID)
		}
		sub.Extend(m.now(), sub.Plan.DurationDays)
		return subs.SaveValidity(ctx, sub)
	}
	log.WithField("payment_type", paymentType).Warn("completed payment has no side effect")
	return nil
}
