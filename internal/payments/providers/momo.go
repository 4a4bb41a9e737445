package providers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quanghuyng/feastly-backend/pkg/config"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
)

var momoEventStatuses = map[string]enums.PaymentStatus{
	"transaction.success":  enums.PaymentStatusSuccess,
	"transaction.failed":   enums.PaymentStatusFailed,
	"transaction.canceled": enums.PaymentStatusFailed,
	"transaction.refunded": enums.PaymentStatusRefunded,
}

type momoProvider struct {
	partnerCode string
	accessKey   string
	secretKey   string
	endpoint    string
	httpClient  *http.Client
}

// NewMoMo returns the MoMo gateway adapter. httpClient may be nil.
func NewMoMo(cfg config.MoMoConfig, httpClient *http.Client) (Provider, error) {
	if strings.TrimSpace(cfg.PartnerCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "momo partner code is required")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "momo secret key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &momoProvider{
		partnerCode: cfg.PartnerCode,
		accessKey:   cfg.AccessKey,
		secretKey:   cfg.SecretKey,
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		httpClient:  httpClient,
	}, nil
}

func (p *momoProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderMoMo
}

func (p *momoProvider) Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error) {
	orderID := input.TransactionID.String()
	amount := input.Amount.Round(0).IntPart()

	rawSignature := fmt.Sprintf(
		"accessKey=%s&amount=%d&orderId=%s&orderInfo=%s&partnerCode=%s&requestId=%s",
		p.accessKey, amount, orderID, input.Description, p.partnerCode, orderID,
	)
	body := map[string]any{
		"partnerCode": p.partnerCode,
		"accessKey":   p.accessKey,
		"requestId":   orderID,
		"orderId":     orderID,
		"orderInfo":   input.Description,
		"amount":      amount,
		"signature":   p.sign(rawSignature),
	}

	var parsed struct {
		PayURL     string `json:"payUrl"`
		QRCodeURL  string `json:"qrCodeUrl"`
		Message    string `json:"message"`
		ResultCode int    `json:"resultCode"`
	}
	raw, err := p.post(ctx, p.endpoint+"/v2/gateway/api/create", body, &parsed)
	if err != nil {
		return nil, err
	}
	if parsed.ResultCode != 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("momo rejected payment: %s", parsed.Message))
	}
	return &InitializeResult{
		ExternalID:  orderID,
		RedirectURL: parsed.PayURL,
		QRCodeURL:   parsed.QRCodeURL,
		Raw:         raw,
	}, nil
}

func (p *momoProvider) VerifySignature(payload []byte, signature string) error {
	return verifyHMAC(payload, signature, p.secretKey, "momo")
}

func (p *momoProvider) MapEventStatus(eventType string) (enums.PaymentStatus, bool) {
	status, ok := momoEventStatuses[eventType]
	return status, ok
}

func (p *momoProvider) Refund(ctx context.Context, externalID string, amount decimal.Decimal, currencyCode, reason string) error {
	amountMinor := amount.Round(0).IntPart()
	rawSignature := fmt.Sprintf(
		"accessKey=%s&amount=%d&orderId=%s&partnerCode=%s",
		p.accessKey, amountMinor, externalID, p.partnerCode,
	)
	body := map[string]any{
		"partnerCode": p.partnerCode,
		"orderId":     externalID,
		"requestId":   externalID,
		"amount":      amountMinor,
		"description": reason,
		"signature":   p.sign(rawSignature),
	}
	var parsed struct {
		Message    string `json:"message"`
		ResultCode int    `json:"resultCode"`
	}
	if _, err := p.post(ctx, p.endpoint+"/v2/gateway/api/refund", body, &parsed); err != nil {
		return err
	}
	if parsed.ResultCode != 0 {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("momo refund rejected: %s", parsed.Message))
	}
	return nil
}

func (p *momoProvider) sign(raw string) string {
	mac := hmac.New(sha256.New, []byte(p.secretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *momoProvider) post(ctx context.Context, url string, body map[string]any, out any) (json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode momo request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build momo request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call momo gateway")
	}
	defer resp.Body.Close()

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read momo response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("momo gateway returned %d", resp.StatusCode))
	}
	if err := json.Unmarshal(raw.Bytes(), out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode momo response")
	}
	return json.RawMessage(raw.Bytes()), nil
}

// verifyHMAC checks a hex-encoded HMAC-SHA256 signature over the raw payload.
func verifyHMAC(payload []byte, signature, secret, provider string) error {
	if strings.TrimSpace(signature) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, provider+" webhook signature is missing")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, provider+" webhook signature mismatch")
	}
	return nil
}
