package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// Provider identifies a payment gateway binding.
type Provider string

const (
	ProviderBitPay      Provider = "bitpay"
	ProviderFlutterwave Provider = "flutterwave"
	ProviderPaystack    Provider = "paystack"
)

// ParseProvider accepts provider keys or display names in any case.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderBitPay, ProviderFlutterwave, ProviderPaystack:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown payment provider %q", ErrConfiguration, s)
}

// DisplayName is the human name used in narrations.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderBitPay:
		return "BitPay"
	case ProviderFlutterwave:
		return "Flutterwave"
	case ProviderPaystack:
		return "Paystack"
	}
	return string(p)
}

// Status is the internal payment status vocabulary every provider maps into.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusReversed   Status = "reversed"
	StatusExpired    Status = "expired"
	StatusAbandoned  Status = "abandoned"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s != StatusPending && s != StatusProcessing
}

// TerminalStatuses lists every status a payment can finish in.
func TerminalStatuses() []Status {
	return []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded, StatusReversed, StatusExpired, StatusAbandoned}
}

// TransferStatus is the status vocabulary of outbound payouts.
type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferProcessing TransferStatus = "processing"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
	TransferReversed   TransferStatus = "reversed"
)

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type InitializeRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Customer    Customer
	RedirectURL string
}

const (
	ResponseSuccess = "success"
	ResponseError   = "error"
)

// ProcessorResponse is the normalized result of starting a payment.
// Reference is always our own reference, never the provider's.
type ProcessorResponse struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	PaymentID        string `json:"payment_id,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	Reference        string `json:"reference"`
}

func (r *ProcessorResponse) OK() bool { return r != nil && r.Status == ResponseSuccess }

// ErrorResponse builds the synthetic failure returned to callers.
func ErrorResponse(reference, message string) *ProcessorResponse {
	return &ProcessorResponse{Status: ResponseError, Message: message, Reference: reference}
}

// VerificationResponse is the normalized result of asking a provider about a payment.
type VerificationResponse struct {
	Status            Status          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	ProviderReference string          `json:"provider_reference"`
	MetaInfo          map[string]any  `json:"meta_info"`
	RawData           map[string]any  `json:"-"`
}

const (
	EventTypePayment  = "payment"
	EventTypeTransfer = "transfer"
)

// WebhookEvent is either a *PaymentWebhook or a *TransferWebhook.
type WebhookEvent interface {
	EventType() string
	EventReference() string
}

type PaymentWebhook struct {
	Event             string
	Reference         string
	Status            Status
	Amount            decimal.Decimal
	Currency          string
	ProviderReference string
	GatewayResponse   string
	CustomerCode      string
	RawData           map[string]any
}

func (*PaymentWebhook) EventType() string        { return EventTypePayment }
func (w *PaymentWebhook) EventReference() string { return w.Reference }

type TransferWebhook struct {
	Event             string
	Reference         string
	Status            TransferStatus
	Amount            decimal.Decimal
	Currency          string
	ProviderReference string
	RawData           map[string]any
}

func (*TransferWebhook) EventType() string        { return EventTypeTransfer }
func (w *TransferWebhook) EventReference() string { return w.Reference }

// Processor is the capability set every gateway binding implements.
type Processor interface {
	Provider() Provider
	// Reference is generated when the processor is constructed and is
	// used for the single payment the processor initializes.
	Reference() string
	SupportsCurrency(code string) bool
	InitializePayment(ctx context.Context, req InitializeRequest) (*ProcessorResponse, error)
	VerifyPayment(ctx context.Context, reference string) (*VerificationResponse, error)
	// VerifyWebhookSignature must be called on the raw body before ParseWebhookEvent.
	VerifyWebhookSignature(body []byte, header http.Header) error
	ParseWebhookEvent(body []byte) (WebhookEvent, error)
}
