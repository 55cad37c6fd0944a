package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const flutterwaveBaseURL = "https://api.flutterwave.com/v3"

// FlutterwaveSignatureHeader carries the dashboard-configured secret hash.
const FlutterwaveSignatureHeader = "verif-hash"

var flutterwaveCurrencies = []string{"NGN", "USD", "GHS", "KES", "ZAR", "EUR", "GBP"}

var flutterwaveVerifyStatus = map[string]Status{
	"successful": StatusCompleted,
	"failed":     StatusFailed,
	"pending":    StatusPending,
}

var flutterwaveWebhookStatus = map[string]Status{
	"successful": StatusCompleted,
	"failed":     StatusFailed,
	"pending":    StatusPending,
	"abandoned":  StatusAbandoned,
	"reversed":   StatusReversed,
	"cancelled":  StatusCancelled,
}

var flutterwaveTransferStatus = map[string]TransferStatus{
	"successful": TransferCompleted,
	"failed":     TransferFailed,
	"pending":    TransferPending,
	"reversed":   TransferReversed,
}

type Flutterwave struct {
	base
	secretKey  string
	secretHash string
}

func NewFlutterwave(creds Credentials, opts ...Option) (Processor, error) {
	if creds.SecretKey == "" {
		return nil, fmt.Errorf("%w: flutterwave secret key missing", ErrConfiguration)
	}
	if creds.SecretHash == "" {
		return nil, fmt.Errorf("%w: flutterwave webhook secret hash missing", ErrConfiguration)
	}
	return &Flutterwave{
		base:       newBase(ProviderFlutterwave, "flw_", flutterwaveBaseURL, flutterwaveCurrencies, opts),
		secretKey:  creds.SecretKey,
		secretHash: creds.SecretHash,
	}, nil
}

type flutterwaveCharge struct {
	ID                json.Number     `json:"id"`
	TxRef             string          `json:"tx_ref"`
	TxRefV2           string          `json:"txRef"`
	FlwRef            string          `json:"flw_ref"`
	Reference         string          `json:"reference"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	ProcessorResponse string          `json:"processor_response"`
	Meta              json.RawMessage `json:"meta"`
	Customer          struct {
		CustomerCode string `json:"customer_code"`
	} `json:"customer"`
}

func (c *flutterwaveCharge) reference() string {
	if c.TxRef != "" {
		return c.TxRef
	}
	return c.TxRefV2
}

func (f *Flutterwave) InitializePayment(ctx context.Context, req InitializeRequest) (*ProcessorResponse, error) {
	body := map[string]any{
		"tx_ref":       f.reference,
		"amount":       req.Amount.StringFixed(2),
		"currency":     strings.ToUpper(req.Currency),
		"redirect_url": req.RedirectURL,
		"customer": map[string]string{
			"email": req.Customer.Email,
			"name":  req.Customer.Name,
		},
	}
	f.log.WithFields(logrus.Fields{"reference": f.reference, "redirect_url": req.RedirectURL}).Info("initializing payment")
	resp, err := f.client.do(ctx, request{
		method: http.MethodPost,
		url:    f.baseURL + "/payments",
		bearer: f.secretKey,
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	var env struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    *struct {
			Link      string `json:"link"`
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := resp.decode(&env); err != nil {
		return nil, &ProviderError{Provider: f.provider, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	out := &ProcessorResponse{Status: ResponseError, Message: env.Message, Reference: f.reference}
	if env.Status == "success" {
		out.Status = ResponseSuccess
	}
	if env.Data != nil {
		out.PaymentID = env.Data.Reference
		out.AuthorizationURL = env.Data.Link
	}
	return out, nil
}

func (f *Flutterwave) VerifyPayment(ctx context.Context, reference string) (*VerificationResponse, error) {
	resp, err := f.client.do(ctx, request{
		method: http.MethodGet,
		url:    f.baseURL + "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference),
		bearer: f.secretKey,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: flutterwave transaction %s", ErrNotFound, reference)
	}
	if !resp.success() {
		return nil, &ProviderError{Provider: f.provider, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	var env struct {
		Data flutterwaveCharge `json:"data"`
	}
	if err := resp.decode(&env); err != nil {
		return nil, fmt.Errorf("flutterwave: decode verify: %w", err)
	}
	raw, _ := decodeMap(resp.Body)
	meta, _ := decodeMap(env.Data.Meta)
	return &VerificationResponse{
		Status:            lookupStatus(flutterwaveVerifyStatus, env.Data.Status),
		Amount:            env.Data.Amount,
		Currency:          env.Data.Currency,
		ProviderReference: env.Data.FlwRef,
		MetaInfo:          meta,
		RawData:           raw,
	}, nil
}

func (f *Flutterwave) VerifyWebhookSignature(_ []byte, header http.Header) error {
	sig := header.Get(FlutterwaveSignatureHeader)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ErrSignature, FlutterwaveSignatureHeader)
	}
	if subtle.ConstantTimeCompare([]byte(sig), []byte(f.secretHash)) != 1 {
		return fmt.Errorf("%w: flutterwave hash mismatch", ErrSignature)
	}
	return nil
}

// ParseWebhookEvent handles v3 payloads ({event, data}) and legacy v2
// payloads, which carry the charge at the top level with no event key.
func (f *Flutterwave) ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var payload struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", ErrValidation)
	}
	chargeJSON := []byte(payload.Data)
	if payload.Event == "" {
		chargeJSON = body
	}
	var charge flutterwaveCharge
	if len(chargeJSON) > 0 {
		if err := json.Unmarshal(chargeJSON, &charge); err != nil {
			return nil, fmt.Errorf("%w: malformed webhook data", ErrValidation)
		}
	}
	raw, _ := decodeMap(body)
	switch {
	case payload.Event == "" && charge.reference() != "", strings.HasPrefix(payload.Event, "charge."):
		return &PaymentWebhook{
			Event:             payload.Event,
			Reference:         charge.reference(),
			Status:            lookupStatus(flutterwaveWebhookStatus, charge.Status),
			Amount:            charge.Amount,
			Currency:          charge.Currency,
			ProviderReference: charge.ID.String(),
			GatewayResponse:   charge.ProcessorResponse,
			CustomerCode:      charge.Customer.CustomerCode,
			RawData:           raw,
		}, nil
	case strings.HasPrefix(payload.Event, "transfer."):
		return &TransferWebhook{
			Event:             payload.Event,
			Reference:         charge.Reference,
			Status:            lookupTransferStatus(flutterwaveTransferStatus, charge.Status),
			Amount:            charge.Amount.Shift(-2),
			Currency:          charge.Currency,
			ProviderReference: charge.ID.String(),
			RawData:           raw,
		}, nil
	}
	return nil, fmt.Errorf("%w: unsupported webhook event %q", ErrValidation, payload.Event)
}
