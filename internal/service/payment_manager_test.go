package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"scancodes/config"
	"scancodes/internal/database/dbtest"
	"scancodes/internal/domain"
	"scancodes/internal/models"
	"scancodes/internal/publisher"
	"scancodes/internal/repository"
	"scancodes/pkg/payment"
	"scancodes/pkg/payment/paymenttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeHub struct {
	mu   sync.Mutex
	sent map[uint][]any
}

func (h *fakeHub) BroadcastToUser(userID uint, payload any) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sent == nil {
		h.sent = map[uint][]any{}
	}
	h.sent[userID] = append(h.sent[userID], payload)
	return 1, nil
}

func (h *fakeHub) count(userID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent[userID])
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publisher.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev publisher.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type managerFixture struct {
	db       *gorm.DB
	script   *paymenttest.Script
	manager  *PaymentManager
	settings *SettingsService
	hub      *fakeHub
	pub      *recordingPublisher
	user     *models.User
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	return newManagerFixtureOn(t, dbtest.New(t))
}

func newManagerFixtureOn(t *testing.T, db *gorm.DB) *managerFixture {
	t.Helper()
	script := paymenttest.NewScript()
	cfg := &config.Config{
		Server:  config.ServerConfig{PlatformURL: "https://app.example.com/"},
		Payment: config.PaymentConfig{DefaultCurrency: "NGN"},
	}
	settings := NewSettingsService(repository.NewSettingRepository(db), cfg, quietLogger())
	hub := &fakeHub{}
	pub := &recordingPublisher{}
	m, err := NewPaymentManager(db, script.Gateway(), settings,
		WithNotifications(NewNotificationService(hub, pub, quietLogger())),
		WithManagerLogger(quietLogger()),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	return &managerFixture{
		db:       db,
		script:   script,
		manager:  m,
		settings: settings,
		hub:      hub,
		pub:      pub,
		user:     dbtest.SeedUser(t, db, "ada@example.com", "0"),
	}
}

func (f *managerFixture) initialize(t *testing.T, req InitRequest) *payment.ProcessorResponse {
	t.Helper()
	if req.User == nil {
		req.User = f.user
	}
	resp, err := f.manager.InitializeGatewayPayment(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.OK(), resp.Message)
	return resp
}

func (f *managerFixture) webhook(event, ref, status, amount string) (*WebhookResult, error) {
	return f.manager.HandleGatewayWebhook(context.Background(),
		paymenttest.WebhookBody(event, ref, status, amount), f.script.SignedHeader())
}

func (f *managerFixture) payment(t *testing.T, ref string) *models.Payment {
	t.Helper()
	p, err := repository.NewPaymentRepository(f.db).GetByKey(context.Background(), ref)
	require.NoError(t, err)
	return p
}

func (f *managerFixture) transaction(t *testing.T, ref string) *models.Transaction {
	t.Helper()
	tx, err := repository.NewPaymentRepository(f.db).GetTransactionByKey(context.Background(), ref)
	require.NoError(t, err)
	return tx
}

func TestNewPaymentManager_RequiresGateway(t *testing.T) {
	_, err := NewPaymentManager(nil, nil, nil)
	assert.ErrorIs(t, err, payment.ErrConfiguration)
}

func TestInitialize_RecordsPendingPair(t *testing.T) {
	f := newManagerFixture(t)
	resp := f.initialize(t, InitRequest{Amount: dec("150"), ExtraMeta: map[string]any{"source": "app"}})

	p := f.payment(t, resp.Reference)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, "150.00", p.Amount.StringFixed(2))
	assert.Equal(t, "NGN", p.Currency)
	assert.Equal(t, "paystack", p.PaymentMethod)
	assert.Equal(t, "Payment via Paystack", p.Narration)
	assert.Equal(t, domain.PaymentTypeWalletTopUp, p.PaymentType())
	assert.Equal(t, "app", p.MetaInfo["source"])
	assert.Equal(t, "stub-"+resp.Reference, p.MetaInfo["provider_payment_id"])
	assert.Equal(t, f.user.ID, p.UserID)

	tx := f.transaction(t, resp.Reference)
	assert.Equal(t, domain.TransactionTypePayment, tx.TransactionType)
	assert.Equal(t, payment.StatusPending, tx.Status)

	sent := f.script.LastInit()
	assert.Equal(t, "https://app.example.com/payments/verify/?payment_type=wallet_top_up", sent.RedirectURL)
	assert.Equal(t, payment.Customer{Email: "ada@example.com", Name: "Ada Obi"}, sent.Customer)
	assert.Equal(t, "NGN", sent.Currency)
}

func TestInitialize_DefaultsFollowPaymentTypeAndSettings(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, repository.NewSettingRepository(f.db).Set(context.Background(), domain.SettingCurrency, "usd"))

	plan := &models.SubscriptionPlan{Name: "Basic", Price: dec("20"), DurationDays: 30, IsActive: true}
	require.NoError(t, f.db.Create(plan).Error)
	sub := &models.Subscription{UserID: f.user.ID, PlanID: plan.ID, StartDate: fixedNow, EndDate: fixedNow}
	require.NoError(t, f.db.Create(sub).Error)
	order := &models.Order{UserID: f.user.ID, Amount: dec("20"), Status: domain.OrderStatusPending}
	require.NoError(t, f.db.Create(order).Error)

	resp := f.initialize(t, InitRequest{Amount: dec("20"), PaymentType: domain.PaymentTypeSubscription,
		ExtraMeta: map[string]any{"subscription_id": sub.ID}})
	assert.Equal(t, "https://app.example.com/payments/verify", f.script.LastInit().RedirectURL)
	assert.Equal(t, "USD", f.payment(t, resp.Reference).Currency)

	f.initialize(t, InitRequest{Amount: dec("20"), PaymentType: domain.PaymentTypeOrderPayment,
		RedirectURL: "https://shop.example.com/done", ExtraMeta: map[string]any{"order_id": order.ID}})
	assert.Equal(t, "https://shop.example.com/done", f.script.LastInit().RedirectURL)
}

func TestInitialize_ReferencesAreUnique(t *testing.T) {
	f := newManagerFixture(t)
	a := f.initialize(t, InitRequest{Amount: dec("1")})
	b := f.initialize(t, InitRequest{Amount: dec("1")})
	assert.NotEqual(t, a.Reference, b.Reference)
}

func TestInitialize_ProviderFailureKeepsPendingPair(t *testing.T) {
	f := newManagerFixture(t)
	f.script.InitErr = fmt.Errorf("%w: connection reset", payment.ErrProvider)

	resp, err := f.manager.InitializeGatewayPayment(context.Background(), InitRequest{Amount: dec("75"), User: f.user})
	assert.ErrorIs(t, err, payment.ErrProvider)
	require.NotNil(t, resp)
	assert.Equal(t, payment.ResponseError, resp.Status)
	assert.Equal(t, "An unexpected error occurred initializing payment", resp.Message)
	require.NotEmpty(t, resp.Reference)

	assert.Equal(t, payment.StatusPending, f.payment(t, resp.Reference).Status)
	assert.Equal(t, payment.StatusPending, f.transaction(t, resp.Reference).Status)
}

func TestInitialize_ProviderRejection(t *testing.T) {
	f := newManagerFixture(t)
	f.script.InitStatus = payment.ResponseError

	resp, err := f.manager.InitializeGatewayPayment(context.Background(), InitRequest{Amount: dec("75"), User: f.user})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.NotEmpty(t, resp.Reference)
}

func TestInitialize_ValidationHappensBeforeAnyWrite(t *testing.T) {
	f := newManagerFixture(t)
	cases := map[string]InitRequest{
		"unsupported currency": {Amount: dec("10"), Currency: "GHS", User: f.user},
		"zero amount":          {Amount: dec("0"), User: f.user},
		"negative amount":      {Amount: dec("-3"), User: f.user},
		"unknown type":         {Amount: dec("10"), PaymentType: "donation", User: f.user},
		"no user":              {Amount: dec("10")},
	}
	for name, req := range cases {
		resp, err := f.manager.InitializeGatewayPayment(context.Background(), req)
		assert.ErrorIs(t, err, payment.ErrValidation, name)
		require.NotNil(t, resp, name)
		assert.Equal(t, payment.ResponseError, resp.Status, name)
		assert.NotEmpty(t, resp.Reference, name)
	}

	var n int64
	f.db.Model(&models.Payment{}).Count(&n)
	assert.Zero(t, n)
	assert.Zero(t, f.script.InitCalls())
}

func TestWebhook_TopUpCreditsExactlyOnce(t *testing.T) {
	f := newManagerFixture(t)
	resp := f.initialize(t, InitRequest{Amount: dec("150")})

	res, err := f.webhook("charge.success", resp.Reference, "completed", "150.00")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "completed", res.Status)

	res, err = f.webhook("charge.success", resp.Reference, "completed", "150.00")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "completed", res.Status)

	assert.Equal(t, "150.00", dbtest.Balance(t, f.db, f.user.ID))
	assert.Equal(t, payment.StatusCompleted, f.payment(t, resp.Reference).Status)
	assert.Equal(t, payment.StatusCompleted, f.transaction(t, resp.Reference).Status)
	assert.Equal(t, 1, f.hub.count(f.user.ID))
	assert.Equal(t, []string{publisher.EventPaymentStatusChanged}, f.pub.types())
}

func TestWebhook_TopUpCreatesMissingWallet(t *testing.T) {
	f := newManagerFixture(t)
	u := dbtest.SeedUser(t, f.db, "walletless@example.com", "")
	resp := f.initialize(t, InitRequest{Amount: dec("12.50"), User: u})

	_, err := f.webhook("charge.success", resp.Reference, "completed", "12.5")
	require.NoError(t, err)
	assert.Equal(t, "12.50", dbtest.Balance(t, f.db, u.ID))
}

func TestWebhook_AmountMismatchLeavesPaymentAlone(t *testing.T) {
	f := newManagerFixture(t)
	resp := f.initialize(t, InitRequest{Amount: dec("150")})

	_, err := f.webhook("charge.success", resp.Reference, "completed", "15.00")
	assert.ErrorIs(t, err, payment.ErrValidation)
	assert.Equal(t, payment.StatusPending, f.payment(t, resp.Reference).Status)
	assert.Equal(t, "0.00", dbtest.Balance(t, f.db, f.user.ID))
	assert.Empty(t, f.pub.types())
}

func TestWebhook_UnknownReference(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.webhook("charge.success", "stub_nothere", "completed", "1")
	assert.ErrorIs(t, err, payment.ErrTransactionMissing)
	assert.ErrorIs(t, err, payment.ErrNotFound)
}

func TestWebhook_BadSignatureNeverParses(t *testing.T) {
	f := newManagerFixture(t)
	resp := f.initialize(t, InitRequest{Amount: dec("150")})

	h := f.script.SignedHeader()
	h.Set(paymenttest.SignatureHeader, "forged")
	_, err := f.manager.HandleGatewayWebhook(context.Background(),
		paymenttest.WebhookBody("charge.success", resp.Reference, "completed", "150"), h)
	assert.ErrorIs(t, err, payment.ErrSignature)
	assert.Zero(t, f.script.ParseCalls())
	assert.Equal(t, payment.StatusPending, f.payment(t, resp.Reference).Status)
}

func TestWebhook_UnknownEvent(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.webhook("refund.processed", "stub_x", "completed", "1")
	assert.ErrorIs(t, err, payment.ErrValidation)
}

func TestWebhook_FailedThenLateSuccessIsIgnored(t *testing.T) {
	f := newManagerFixture(t)
	resp := f.initialize(t, InitRequest{Amount: dec("40")})

	res, err := f.webhook("charge.failed", resp.Reference, "failed", "40")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, payment.StatusFailed, f.transaction(t, resp.Reference).Status)

	res, err = f.webhook("charge.success", resp.Reference, "completed", "40")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, "0.00", dbtest.Balance(t, f.db, f.user.ID))
}

func TestWebhook_AbandonedAndPendingStatuses(t *testing.T) {
	f := newManagerFixture(t)
	resp := f.initialize(t, InitRequest{Amount: dec("40")})

	res, err := f.webhook("charge.pending", resp.Reference, "pending", "40")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, payment.StatusPending, f.payment(t, resp.Reference).Status)

	_, err = f.webhook("charge.abandoned", resp.Reference, "abandoned", "40")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusAbandoned, f.payment(t, resp.Reference).Status)
	assert.Equal(t, payment.StatusAbandoned, f.transaction(t, resp.Reference).Status)
}

func TestWebhook_ConcurrentReplaysCreditOnce(t *testing.T) {
	f := newManagerFixtureOn(t, dbtest.NewFile(t))
	resp := f.initialize(t, InitRequest{Amount: dec("150")})

	const deliveries = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		errs    []error
	)
	start := make(chan struct{})
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := f.webhook("charge.success", resp.Reference, "completed", "150.00")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Applied {
				applied++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, applied)
	assert.Equal(t, "150.00", dbtest.Balance(t, f.db, f.user.ID))
	assert.Equal(t, payment.StatusCompleted, f.payment(t, resp.Reference).Status)
	assert.Equal(t, payment.StatusCompleted, f.transaction(t, resp.Reference).Status)
	assert.Equal(t, 1, f.hub.count(f.user.ID))
}

func TestWebhook_OrderPaymentMarksOrderPaid(t *testing.T) {
	f := newManagerFixture(t)
	order := &models.Order{UserID: f.user.ID, Amount: dec("80"), Status: domain.OrderStatusPending}
	require.NoError(t, f.db.Create(order).Error)

	resp := f.initialize(t, InitRequest{
		Amount:      dec("80"),
		PaymentType: domain.PaymentTypeOrderPayment,
		ExtraMeta:   map[string]any{"order_id": order.ID},
	})
	_, err := f.webhook("charge.success", resp.Reference, "completed", "80")
	require.NoError(t, err)

	var got models.Order
	require.NoError(t, f.db.First(&got, order.ID).Error)
	assert.Equal(t, domain.OrderStatusPaid, got.Status)
	assert.Equal(t, "0.00", dbtest.Balance(t, f.db, f.user.ID), "orders do not touch the wallet")
}

func TestWebhook_SubscriptionExtension(t *testing.T) {
	f := newManagerFixture(t)
	plan := &models.SubscriptionPlan{Name: "Pro", Price: dec("30"), DurationDays: 30, IsActive: true}
	require.NoError(t, f.db.Create(plan).Error)

	lapsed := &models.Subscription{UserID: f.user.ID, PlanID: plan.ID,
		StartDate: fixedNow.AddDate(0, -2, 0), EndDate: fixedNow.AddDate(0, 0, -5)}
	active := &models.Subscription{UserID: f.user.ID, PlanID: plan.ID,
		StartDate: fixedNow.AddDate(0, 0, -20), EndDate: fixedNow.AddDate(0, 0, 10)}
	require.NoError(t, f.db.Create(lapsed).Error)
	require.NoError(t, f.db.Create(active).Error)

	for _, sub := range []*models.Subscription{lapsed, active} {
		resp := f.initialize(t, InitRequest{
			Amount:      dec("30"),
			PaymentType: domain.PaymentTypeSubscription,
			ExtraMeta:   map[string]any{"subscription_id": sub.ID},
		})
		_, err := f.webhook("charge.success", resp.Reference, "completed", "30")
		require.NoError(t, err)
	}

	var got models.Subscription
	require.NoError(t, f.db.First(&got, lapsed.ID).Error)
	assert.WithinDuration(t, fixedNow, got.StartDate, time.Second)
	assert.WithinDuration(t, fixedNow.AddDate(0, 0, 30), got.EndDate, time.Second)
	assert.True(t, got.IsActive)

	var extended models.Subscription
	require.NoError(t, f.db.First(&extended, active.ID).Error)
	assert.WithinDuration(t, fixedNow.AddDate(0, 0, -20), extended.StartDate, time.Second)
	assert.WithinDuration(t, fixedNow.AddDate(0, 0, 40), extended.EndDate, time.Second)
}

func TestWebhook_SubscriptionMissingRollsBack(t *testing.T) {
	f := newManagerFixture(t)
	plan := &models.SubscriptionPlan{Name: "Pro", Price: dec("30"), DurationDays: 30, IsActive: true}
	require.NoError(t, f.db.Create(plan).Error)
	sub := &models.Subscription{UserID: f.user.ID, PlanID: plan.ID, StartDate: fixedNow, EndDate: fixedNow}
	require.NoError(t, f.db.Create(sub).Error)

	resp := f.initialize(t, InitRequest{
		Amount:      dec("30"),
		PaymentType: domain.PaymentTypeSubscription,
		ExtraMeta:   map[string]any{"subscription_id": sub.ID},
	})
	require.NoError(t, f.db.Delete(&models.Subscription{}, sub.ID).Error)

	_, err := f.webhook("charge.success", resp.Reference, "completed", "30")
	assert.ErrorIs(t, err, payment.ErrNotFound)
	assert.Equal(t, payment.StatusPending, f.payment(t, resp.Reference).Status)
	assert.Equal(t, payment.StatusPending, f.transaction(t, resp.Reference).Status)
}

func TestWebhook_TransferIsAcknowledged(t *testing.T) {
	f := newManagerFixture(t)
	res, err := f.webhook("transfer.success", "trf_123", "completed", "500")
	require.NoError(t, err)
	assert.Equal(t, payment.EventTypeTransfer, res.EventType)
	assert.Equal(t, "trf_123", res.Reference)
	assert.Equal(t, []string{publisher.EventTransferUpdated}, f.pub.types())
}

func TestVerify_SettlesCompletedPayment(t *testing.T) {
	f := newManagerFixture(t)
	resp := f.initialize(t, InitRequest{Amount: dec("150")})
	f.script.Verify(resp.Reference, payment.StatusCompleted, "150.00")

	p := f.payment(t, resp.Reference)
	v, err := f.manager.VerifyGatewayPayment(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, v.Status)
	assert.Equal(t, payment.StatusCompleted, p.Status)
	assert.Equal(t, "prov-"+resp.Reference, f.payment(t, resp.Reference).ProviderReference)
	assert.Equal(t, "150.00", dbtest.Balance(t, f.db, f.user.ID))

	// A webhook arriving after verification changes nothing.
	res, err := f.webhook("charge.success", resp.Reference, "completed", "150")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "150.00", dbtest.Balance(t, f.db, f.user.ID))
}

func TestVerify_AmountMismatch(t *testing.T) {
	f := newManagerFixture(t)
	resp := f.initialize(t, InitRequest{Amount: dec("150")})
	f.script.Verify(resp.Reference, payment.StatusCompleted, "1.50")

	v, err := f.manager.VerifyGatewayPayment(context.Background(), f.payment(t, resp.Reference))
	assert.ErrorIs(t, err, payment.ErrValidation)
	require.NotNil(t, v)
	assert.Equal(t, payment.StatusFailed, v.Status)
	assert.Equal(t, "150.00", v.Amount.StringFixed(2))
	assert.Contains(t, v.MetaInfo["error"], "doesn't match")
	assert.Equal(t, payment.StatusPending, f.payment(t, resp.Reference).Status)
}

func TestVerify_ProviderError(t *testing.T) {
	f := newManagerFixture(t)
	resp := f.initialize(t, InitRequest{Amount: dec("5")})
	f.script.VerifyErr = &payment.ProviderError{Provider: payment.ProviderPaystack, StatusCode: 502, Body: "upstream"}

	v, err := f.manager.VerifyGatewayPayment(context.Background(), f.payment(t, resp.Reference))
	assert.ErrorIs(t, err, payment.ErrProvider)
	assert.Equal(t, payment.StatusFailed, v.Status)
	assert.NotContains(t, v.MetaInfo["error"], "upstream")
}

func TestGetPayment_OwnerOnly(t *testing.T) {
	f := newManagerFixture(t)
	resp := f.initialize(t, InitRequest{Amount: dec("5")})

	_, err := f.manager.GetPayment(context.Background(), f.user.ID, resp.Reference)
	require.NoError(t, err)
	_, err = f.manager.GetPayment(context.Background(), f.user.ID+1, resp.Reference)
	assert.ErrorIs(t, err, payment.ErrNotFound)
}

func TestReconcile(t *testing.T) {
	f := newManagerFixture(t)
	done := f.initialize(t, InitRequest{Amount: dec("10")})
	missing := f.initialize(t, InitRequest{Amount: dec("20")})
	waiting := f.initialize(t, InitRequest{Amount: dec("30")})
	f.script.Verify(done.Reference, payment.StatusCompleted, "10")
	f.script.Verify(waiting.Reference, payment.StatusPending, "30")

	r := NewReconcileService(repository.NewPaymentRepository(f.db), f.manager, quietLogger())
	r.now = func() time.Time { return time.Now().Add(time.Hour) }

	report, err := r.Run(context.Background(), 15*time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], missing.Reference)
	assert.Equal(t, "10.00", dbtest.Balance(t, f.db, f.user.ID))

	// Nothing is old enough without the shifted clock.
	r.now = time.Now
	report, err = r.Run(context.Background(), time.Hour, 0)
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
}

func TestReconcile_StopsOnCancelledContext(t *testing.T) {
	f := newManagerFixture(t)
	f.initialize(t, InitRequest{Amount: dec("10")})
	r := NewReconcileService(repository.NewPaymentRepository(f.db), f.manager, quietLogger())
	r.now = func() time.Time { return time.Now().Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, time.Minute, 10)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInitialize_ChecksOrderAndSubscriptionTargets(t *testing.T) {
	f := newManagerFixture(t)
	other := dbtest.SeedUser(t, f.db, "eve@example.com", "")

	mine := &models.Order{UserID: f.user.ID, Amount: dec("500"), Status: domain.OrderStatusPending}
	theirs := &models.Order{UserID: other.ID, Amount: dec("500"), Status: domain.OrderStatusPending}
	settled := &models.Order{UserID: f.user.ID, Amount: dec("500"), Status: domain.OrderStatusPaid}
	for _, o := range []*models.Order{mine, theirs, settled} {
		require.NoError(t, f.db.Create(o).Error)
	}
	plan := &models.SubscriptionPlan{Name: "Pro", Price: dec("30"), DurationDays: 30, IsActive: true}
	require.NoError(t, f.db.Create(plan).Error)
	mySub := &models.Subscription{UserID: f.user.ID, PlanID: plan.ID, StartDate: fixedNow, EndDate: fixedNow}
	theirSub := &models.Subscription{UserID: other.ID, PlanID: plan.ID, StartDate: fixedNow, EndDate: fixedNow}
	require.NoError(t, f.db.Create(mySub).Error)
	require.NoError(t, f.db.Create(theirSub).Error)

	order := func(amount string, meta map[string]any) InitRequest {
		return InitRequest{Amount: dec(amount), PaymentType: domain.PaymentTypeOrderPayment, ExtraMeta: meta}
	}
	subscription := func(amount string, meta map[string]any) InitRequest {
		return InitRequest{Amount: dec(amount), PaymentType: domain.PaymentTypeSubscription, ExtraMeta: meta}
	}
	for name, req := range map[string]InitRequest{
		"order without id":        order("500", nil),
		"order id not a number":   order("500", map[string]any{"order_id": "abc"}),
		"unknown order":           order("500", map[string]any{"order_id": 9999}),
		"someone else's order":    order("1", map[string]any{"order_id": theirs.ID}),
		"underpaid order":         order("1", map[string]any{"order_id": mine.ID}),
		"order already paid":      order("500", map[string]any{"order_id": settled.ID}),
		"subscription without id": subscription("30", nil),
		"someone else's plan":     subscription("30", map[string]any{"subscription_id": theirSub.ID}),
		"plan price mismatch":     subscription("3", map[string]any{"subscription_id": mySub.ID}),
	} {
		t.Run(name, func(t *testing.T) {
			req.User = f.user
			resp, err := f.manager.InitializeGatewayPayment(context.Background(), req)
			assert.ErrorIs(t, err, payment.ErrValidation)
			require.NotNil(t, resp)
			assert.False(t, resp.OK())
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&models.Payment{}).Count(&n).Error)
	assert.Zero(t, n, "rejected targets write nothing")
	assert.Zero(t, f.script.InitCalls())

	// The id is stored as a number whatever shape the client sent.
	resp := f.initialize(t, order("500", map[string]any{"order_id": fmt.Sprint(mine.ID)}))
	id, ok, err := f.payment(t, resp.Reference).MetaUint("order_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, mine.ID, id)
}

func TestWebhook_MalformedTargetIDRollsBack(t *testing.T) {
	f := newManagerFixture(t)
	repo := repository.NewPaymentRepository(f.db)
	meta := map[string]any{"payment_type": domain.PaymentTypeOrderPayment, "order_id": "abc"}
	p := &models.Payment{Key: "stub_malformed", Amount: dec("80"), Currency: "NGN", PaymentMethod: "paystack",
		Status: payment.StatusPending, MetaInfo: meta, UserID: f.user.ID}
	tx := &models.Transaction{Key: "stub_malformed", Amount: dec("80"), TransactionType: domain.TransactionTypePayment,
		Status: payment.StatusPending, MetaInfo: meta, UserID: f.user.ID}
	require.NoError(t, repo.CreatePair(context.Background(), p, tx))

	_, err := f.webhook("charge.success", "stub_malformed", "completed", "80")
	assert.ErrorIs(t, err, payment.ErrValidation)
	assert.Equal(t, payment.StatusPending, f.payment(t, "stub_malformed").Status)
	assert.Equal(t, payment.StatusPending, f.transaction(t, "stub_malformed").Status)
}
