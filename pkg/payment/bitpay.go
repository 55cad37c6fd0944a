package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const bitpayBaseURL = "https://bitpay.com/api/v2"

// BitPaySignatureHeader carries the hex HMAC-SHA256 of the IPN body.
const BitPaySignatureHeader = "X-Signature"

var bitpayCurrencies = []string{"USD"}

var bitpayInvoiceStatus = map[string]Status{
	"new":       StatusPending,
	"paid":      StatusProcessing,
	"confirmed": StatusCompleted,
	"complete":  StatusCompleted,
	"expired":   StatusExpired,
	"invalid":   StatusFailed,
	"declined":  StatusFailed,
}

// BitPay creates crypto invoices. Our reference travels as the invoice orderId.
type BitPay struct {
	base
	apiKey    string
	secretKey string
}

func NewBitPay(creds Credentials, opts ...Option) (Processor, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: bitpay api key missing", ErrConfiguration)
	}
	secret := creds.SecretKey
	if secret == "" {
		secret = creds.APIKey
	}
	return &BitPay{
		base:      newBase(ProviderBitPay, "btp_", bitpayBaseURL, bitpayCurrencies, opts),
		apiKey:    creds.APIKey,
		secretKey: secret,
	}, nil
}

type bitpayInvoice struct {
	ID       string          `json:"id"`
	URL      string          `json:"url"`
	OrderID  string          `json:"orderId"`
	Status   string          `json:"status"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

func (b *BitPay) InitializePayment(ctx context.Context, req InitializeRequest) (*ProcessorResponse, error) {
	body := map[string]any{
		"price":       json.Number(req.Amount.StringFixed(2)),
		"currency":    strings.ToUpper(req.Currency),
		"buyerEmail":  req.Customer.Email,
		"orderId":     b.reference,
		"redirectURL": req.RedirectURL,
	}
	b.log.WithFields(logrus.Fields{"reference": b.reference}).Info("creating invoice")
	resp, err := b.client.do(ctx, request{
		method: http.MethodPost,
		url:    b.baseURL + "/invoice",
		bearer: b.apiKey,
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	var env struct {
		Data  *bitpayInvoice `json:"data"`
		Error string         `json:"error"`
	}
	if err := resp.decode(&env); err != nil {
		return nil, &ProviderError{Provider: b.provider, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	if !resp.success() || env.Data == nil || env.Data.URL == "" {
		msg := env.Error
		if msg == "" {
			msg = "invoice creation failed"
		}
		return &ProcessorResponse{Status: ResponseError, Message: msg, Reference: b.reference}, nil
	}
	return &ProcessorResponse{
		Status:           ResponseSuccess,
		Message:          "invoice created",
		PaymentID:        env.Data.ID,
		AuthorizationURL: env.Data.URL,
		Reference:        b.reference,
	}, nil
}

func (b *BitPay) VerifyPayment(ctx context.Context, reference string) (*VerificationResponse, error) {
	resp, err := b.client.do(ctx, request{
		method: http.MethodGet,
		url:    b.baseURL + "/invoices?orderId=" + url.QueryEscape(reference),
		bearer: b.apiKey,
	})
	if err != nil {
		return nil, err
	}
	if !resp.success() {
		return nil, &ProviderError{Provider: b.provider, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	var env struct {
		Data []bitpayInvoice `json:"data"`
	}
	if err := resp.decode(&env); err != nil {
		return nil, fmt.Errorf("bitpay: decode invoices: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: bitpay invoice for %s", ErrNotFound, reference)
	}
	inv := env.Data[0]
	raw, _ := decodeMap(resp.Body)
	return &VerificationResponse{
		Status:            lookupStatus(bitpayInvoiceStatus, inv.Status),
		Amount:            inv.Price,
		Currency:          inv.Currency,
		ProviderReference: inv.ID,
		MetaInfo:          map[string]any{"invoice_id": inv.ID, "order_id": inv.OrderID},
		RawData:           raw,
	}, nil
}

func (b *BitPay) VerifyWebhookSignature(body []byte, header http.Header) error {
	sig := header.Get(BitPaySignatureHeader)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ErrSignature, BitPaySignatureHeader)
	}
	mac := hmac.New(sha256.New, []byte(b.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
		return fmt.Errorf("%w: bitpay signature mismatch", ErrSignature)
	}
	return nil
}

// ParseWebhookEvent understands the IPN envelope {event: {code, name}, data: invoice}.
// BitPay has no payout notifications, so every accepted event is a payment.
func (b *BitPay) ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var payload struct {
		Event struct {
			Code int    `json:"code"`
			Name string `json:"name"`
		} `json:"event"`
		Data bitpayInvoice `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", ErrValidation)
	}
	if !strings.HasPrefix(payload.Event.Name, "invoice_") {
		return nil, fmt.Errorf("%w: unsupported webhook event %q", ErrValidation, payload.Event.Name)
	}
	raw, _ := decodeMap(body)
	return &PaymentWebhook{
		Event:             payload.Event.Name,
		Reference:         payload.Data.OrderID,
		Status:            lookupStatus(bitpayInvoiceStatus, payload.Data.Status),
		Amount:            payload.Data.Price,
		Currency:          payload.Data.Currency,
		ProviderReference: payload.Data.ID,
		RawData:           raw,
	}, nil
}
