package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const paystackBaseURL = "https://api.paystack.co"

// PaystackSignatureHeader carries the hex HMAC-SHA512 of the raw body.
const PaystackSignatureHeader = "x-paystack-signature"

var paystackCurrencies = []string{"NGN", "USD", "GHS"}

var paystackPaymentStatus = map[string]Status{
	"success":   StatusCompleted,
	"failed":    StatusFailed,
	"pending":   StatusPending,
	"abandoned": StatusAbandoned,
	"reversed":  StatusReversed,
}

var paystackTransferStatus = map[string]TransferStatus{
	"success":  TransferCompleted,
	"failed":   TransferFailed,
	"pending":  TransferPending,
	"reversed": TransferReversed,
}

// Paystack implements Processor against the Paystack REST API.
type Paystack struct {
	base
	secretKey string
}

func NewPaystack(creds Credentials, opts ...Option) (Processor, error) {
	key := creds.SecretKey
	if key == "" {
		key = creds.APIKey
	}
	if key == "" {
		return nil, fmt.Errorf("%w: paystack secret key missing", ErrConfiguration)
	}
	return &Paystack{
		base:      newBase(ProviderPaystack, "pst_", paystackBaseURL, paystackCurrencies, opts),
		secretKey: key,
	}, nil
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	ID              json.Number     `json:"id"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	GatewayResponse string          `json:"gateway_response"`
	Customer        struct {
		CustomerCode string `json:"customer_code"`
	} `json:"customer"`
}

func (p *Paystack) InitializePayment(ctx context.Context, req InitializeRequest) (*ProcessorResponse, error) {
	body := map[string]any{
		"email":        req.Customer.Email,
		"amount":       req.Amount.Shift(2).IntPart(),
		"currency":     strings.ToUpper(req.Currency),
		"reference":    p.reference,
		"callback_url": req.RedirectURL,
	}
	p.log.WithFields(logrus.Fields{"reference": p.reference, "currency": req.Currency}).Info("initializing payment")
	resp, err := p.client.do(ctx, request{
		method: http.MethodPost,
		url:    p.baseURL + "/transaction/initialize",
		bearer: p.secretKey,
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	var env paystackEnvelope
	if err := resp.decode(&env); err != nil {
		return nil, &ProviderError{Provider: p.provider, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	out := &ProcessorResponse{Status: ResponseError, Message: env.Message, Reference: p.reference}
	if env.Status {
		var data struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("paystack: decode initialize data: %w", err)
		}
		out.Status = ResponseSuccess
		out.PaymentID = data.Reference
		out.AuthorizationURL = data.AuthorizationURL
	}
	return out, nil
}

func (p *Paystack) VerifyPayment(ctx context.Context, reference string) (*VerificationResponse, error) {
	resp, err := p.client.do(ctx, request{
		method: http.MethodGet,
		url:    p.baseURL + "/transaction/verify/" + url.PathEscape(reference),
		bearer: p.secretKey,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: paystack transaction %s", ErrNotFound, reference)
	}
	if !resp.success() {
		return nil, &ProviderError{Provider: p.provider, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	var env paystackEnvelope
	if err := resp.decode(&env); err != nil {
		return nil, fmt.Errorf("paystack: decode verify: %w", err)
	}
	var tx paystackTransaction
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &tx); err != nil {
			return nil, fmt.Errorf("paystack: decode verify data: %w", err)
		}
	}
	raw, _ := decodeMap(resp.Body)
	meta, _ := decodeMap(env.Data)
	return &VerificationResponse{
		Status:            lookupStatus(paystackPaymentStatus, tx.Status),
		Amount:            tx.Amount.Shift(-2),
		Currency:          tx.Currency,
		ProviderReference: tx.ID.String(),
		MetaInfo:          meta,
		RawData:           raw,
	}, nil
}

func (p *Paystack) VerifyWebhookSignature(body []byte, header http.Header) error {
	sig := header.Get(PaystackSignatureHeader)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ErrSignature, PaystackSignatureHeader)
	}
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
		return fmt.Errorf("%w: paystack signature mismatch", ErrSignature)
	}
	return nil
}

func (p *Paystack) ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var payload struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", ErrValidation)
	}
	raw, _ := decodeMap(body)
	var tx paystackTransaction
	if len(payload.Data) > 0 {
		if err := json.Unmarshal(payload.Data, &tx); err != nil {
			return nil, fmt.Errorf("%w: malformed webhook data", ErrValidation)
		}
	}
	switch {
	case strings.HasPrefix(payload.Event, "charge."):
		return &PaymentWebhook{
			Event:             payload.Event,
			Reference:         tx.Reference,
			Status:            lookupStatus(paystackPaymentStatus, tx.Status),
			Amount:            tx.Amount.Shift(-2),
			Currency:          tx.Currency,
			ProviderReference: tx.ID.String(),
			GatewayResponse:   tx.GatewayResponse,
			CustomerCode:      tx.Customer.CustomerCode,
			RawData:           raw,
		}, nil
	case strings.HasPrefix(payload.Event, "transfer."):
		return &TransferWebhook{
			Event:             payload.Event,
			Reference:         tx.Reference,
			Status:            lookupTransferStatus(paystackTransferStatus, tx.Status),
			Amount:            tx.Amount.Shift(-2),
			Currency:          tx.Currency,
			ProviderReference: tx.ID.String(),
			RawData:           raw,
		}, nil
	}
	return nil, fmt.Errorf("%w: unsupported webhook event %q", ErrValidation, payload.Event)
}

func lookupStatus(table map[string]Status, s string) Status {
	if st, ok := table[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return StatusPending
}

func lookupTransferStatus(table map[string]TransferStatus, s string) TransferStatus {
	if st, ok := table[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return TransferPending
}

func decodeMap(b []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		return map[string]any{}, err
	}
	return out, nil
}
