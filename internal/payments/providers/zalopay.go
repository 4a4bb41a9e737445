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

var zaloPayEventStatuses = map[string]enums.PaymentStatus{
	"payment.success":  enums.PaymentStatusSuccess,
	"payment.failed":   enums.PaymentStatusFailed,
	"payment.expired":  enums.PaymentStatusFailed,
	"payment.refunded": enums.PaymentStatusRefunded,
}

type zaloPayProvider struct {
	appID      string
	key1       string
	key2       string
	endpoint   string
	httpClient *http.Client
}

// NewZaloPay returns the ZaloPay gateway adapter. Requests are signed with
// key1; incoming callbacks are verified with key2.
func NewZaloPay(cfg config.ZaloPayConfig, httpClient *http.Client) (Provider, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "zalopay app id is required")
	}
	if strings.TrimSpace(cfg.Key1) == "" || strings.TrimSpace(cfg.Key2) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "zalopay keys are required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &zaloPayProvider{
		appID:      cfg.AppID,
		key1:       cfg.Key1,
		key2:       cfg.Key2,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: httpClient,
	}, nil
}

func (p *zaloPayProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderZaloPay
}

func (p *zaloPayProvider) Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error) {
	transID := fmt.Sprintf("%s_%s", time.Now().UTC().Format("060102"), input.TransactionID)
	amount := input.Amount.Round(0).IntPart()

	macData := fmt.Sprintf("%s|%s|%s|%d", p.appID, transID, input.UserID, amount)
	body := map[string]any{
		"app_id":       p.appID,
		"app_trans_id": transID,
		"app_user":     input.UserID.String(),
		"amount":       amount,
		"description":  input.Description,
		"mac":          signHex(p.key1, macData),
	}

	var parsed struct {
		OrderURL      string `json:"order_url"`
		QRCode        string `json:"qr_code"`
		ReturnMessage string `json:"return_message"`
		ReturnCode    int    `json:"return_code"`
	}
	raw, err := p.post(ctx, p.endpoint+"/v2/create", body, &parsed)
	if err != nil {
		return nil, err
	}
	if parsed.ReturnCode != 1 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("zalopay rejected order: %s", parsed.ReturnMessage))
	}
	return &InitializeResult{
		ExternalID:  transID,
		RedirectURL: parsed.OrderURL,
		QRCodeURL:   parsed.QRCode,
		Raw:         raw,
	}, nil
}

func (p *zaloPayProvider) VerifySignature(payload []byte, signature string) error {
	return verifyHMAC(payload, signature, p.key2, "zalopay")
}

func (p *zaloPayProvider) MapEventStatus(eventType string) (enums.PaymentStatus, bool) {
	status, ok := zaloPayEventStatuses[eventType]
	return status, ok
}

func (p *zaloPayProvider) Refund(ctx context.Context, externalID string, amount decimal.Decimal, currencyCode, reason string) error {
	amountMinor := amount.Round(0).IntPart()
	timestamp := time.Now().UnixMilli()
	macData := fmt.Sprintf("%s|%s|%d|%d", p.appID, externalID, amountMinor, timestamp)
	body := map[string]any{
		"app_id":      p.appID,
		"zp_trans_id": externalID,
		"amount":      amountMinor,
		"description": reason,
		"timestamp":   timestamp,
		"mac":         signHex(p.key1, macData),
	}
	var parsed struct {
		ReturnMessage string `json:"return_message"`
		ReturnCode    int    `json:"return_code"`
	}
	if _, err := p.post(ctx, p.endpoint+"/v2/refund", body, &parsed); err != nil {
		return err
	}
	if parsed.ReturnCode != 1 {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("zalopay refund rejected: %s", parsed.ReturnMessage))
	}
	return nil
}

func (p *zaloPayProvider) post(ctx context.Context, url string, body map[string]any, out any) (json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode zalopay request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build zalopay request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call zalopay gateway")
	}
	defer resp.Body.Close()

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read zalopay response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("zalopay gateway returned %d", resp.StatusCode))
	}
	if err := json.Unmarshal(raw.Bytes(), out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode zalopay response")
	}
	return json.RawMessage(raw.Bytes()), nil
}

func signHex(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
