// Package paymenttest provides a scriptable payment.Processor for tests and
// local development. It never talks to a network.
package paymenttest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"scancodes/pkg/payment"

	"github.com/shopspring/decimal"
)

// SignatureHeader must equal Script.Secret on webhook requests.
const SignatureHeader = "X-Stub-Signature"

// Script holds the canned behaviour shared by every processor it builds.
type Script struct {
	mu sync.Mutex

	Provider   payment.Provider
	Currencies []string
	Secret     string

	// InitStatus is "success" unless set; InitErr simulates a transport failure.
	InitStatus string
	InitErr    error

	Verifications map[string]*payment.VerificationResponse
	VerifyErr     error

	// FactoryErr, when set, makes every later processor construction fail.
	FactoryErr error

	initCalls   int
	verifyCalls int
	parseCalls  int
	lastInit    payment.InitializeRequest
}

func NewScript() *Script {
	return &Script{
		Provider:      payment.ProviderPaystack,
		Currencies:    []string{"NGN", "USD"},
		Secret:        "stub-secret",
		Verifications: make(map[string]*payment.VerificationResponse),
	}
}

// Factory satisfies payment.Factory; each processor gets a fresh reference.
func (s *Script) Factory(_ payment.Credentials, _ ...payment.Option) (payment.Processor, error) {
	s.mu.Lock()
	err := s.FactoryErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &Processor{script: s, ref: payment.NewReference("stub_", 12)}, nil
}

// Gateway returns a gateway whose processors are driven by s.
func (s *Script) Gateway() *payment.Gateway {
	r := payment.NewRegistry()
	r.Register(s.Provider, s.Factory)
	g, err := r.Gateway(payment.GatewayConfig{Provider: s.Provider})
	if err != nil {
		panic(err)
	}
	return g
}

// Verify scripts the VerifyPayment answer for reference.
func (s *Script) Verify(reference string, status payment.Status, amount string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Verifications[reference] = &payment.VerificationResponse{
		Status:            status,
		Amount:            decimal.RequireFromString(amount),
		Currency:          "NGN",
		ProviderReference: "prov-" + reference,
		MetaInfo:          map[string]any{},
		RawData:           map[string]any{},
	}
}

func (s *Script) InitCalls() int   { s.mu.Lock(); defer s.mu.Unlock(); return s.initCalls }
func (s *Script) VerifyCalls() int { s.mu.Lock(); defer s.mu.Unlock(); return s.verifyCalls }
func (s *Script) ParseCalls() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.parseCalls }

func (s *Script) LastInit() payment.InitializeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInit
}

// SignedHeader returns headers that pass signature verification.
func (s *Script) SignedHeader() http.Header {
	h := http.Header{}
	h.Set(SignatureHeader, s.Secret)
	return h
}

// WebhookBody renders a webhook understood by Processor.ParseWebhookEvent.
func WebhookBody(event, reference, status, amount string) []byte {
	b, _ := json.Marshal(map[string]string{
		"event":     event,
		"reference": reference,
		"status":    status,
		"amount":    amount,
		"currency":  "NGN",
	})
	return b
}

// Processor is one scripted processor instance.
type Processor struct {
	script *Script
	ref    string
}

func (p *Processor) Provider() payment.Provider { return p.script.Provider }

func (p *Processor) Reference() string { return p.ref }

func (p *Processor) SupportsCurrency(code string) bool {
	for _, c := range p.script.Currencies {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

func (p *Processor) InitializePayment(_ context.Context, req payment.InitializeRequest) (*payment.ProcessorResponse, error) {
	s := p.script
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls++
	s.lastInit = req
	if s.InitErr != nil {
		return nil, s.InitErr
	}
	status := s.InitStatus
	if status == "" {
		status = payment.ResponseSuccess
	}
	return &payment.ProcessorResponse{
		Status:           status,
		Message:          "stub " + status,
		PaymentID:        "stub-" + p.ref,
		AuthorizationURL: "https://pay.example.test/" + p.ref,
		Reference:        p.ref,
	}, nil
}

func (p *Processor) VerifyPayment(_ context.Context, reference string) (*payment.VerificationResponse, error) {
	s := p.script
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyCalls++
	if s.VerifyErr != nil {
		return nil, s.VerifyErr
	}
	v, ok := s.Verifications[reference]
	if !ok {
		return nil, fmt.Errorf("%w: stub has no verification for %s", payment.ErrNotFound, reference)
	}
	out := *v
	return &out, nil
}

func (p *Processor) VerifyWebhookSignature(_ []byte, header http.Header) error {
	sig := header.Get(SignatureHeader)
	if sig == "" || subtle.ConstantTimeCompare([]byte(sig), []byte(p.script.Secret)) != 1 {
		return fmt.Errorf("%w: stub signature mismatch", payment.ErrSignature)
	}
	return nil
}

func (p *Processor) ParseWebhookEvent(body []byte) (payment.WebhookEvent, error) {
	s := p.script
	s.mu.Lock()
	s.parseCalls++
	s.mu.Unlock()

	var in struct {
		Event     string          `json:"event"`
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("%w: malformed stub webhook", payment.ErrValidation)
	}
	switch {
	case strings.HasPrefix(in.Event, "charge."):
		return &payment.PaymentWebhook{
			Event:     in.Event,
			Reference: in.Reference,
			Status:    payment.Status(in.Status),
			Amount:    in.Amount,
			Currency:  in.Currency,
		}, nil
	case strings.HasPrefix(in.Event, "transfer."):
		return &payment.TransferWebhook{
			Event:     in.Event,
			Reference: in.Reference,
			Status:    payment.TransferStatus(in.Status),
			Amount:    in.Amount,
			Currency:  in.Currency,
		}, nil
	}
	return nil, fmt.Errorf("%w: unsupported webhook event %q", payment.ErrValidation, in.Event)
}
