// Package webpay implementa el cliente HTTP del servicio de conexión a
// Webpay (Transbank). Transporte puro: los errores 403/500 se normalizan a
// ErrGateway y la orquestación decide alertas y auditoría.
package webpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/pkg/config"
)

// ProcessResult respuesta de la creación de una transacción.
type ProcessResult struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// TransactionResult respuesta cruda del estado o commit de una transacción.
type TransactionResult struct {
	Status            string          `json:"status"`
	ResponseCode      int             `json:"response_code"`
	Amount            decimal.Decimal `json:"amount"`
	BuyOrder          string          `json:"buy_order"`
	AuthorizationCode string          `json:"authorization_code"`
	CardNumber        string          `json:"card_detail,omitempty"`
	Token             string          `json:"token"`
}

// Raw devuelve la respuesta como mapa para el registro de auditoría.
func (t *TransactionResult) Raw() map[string]any {
	return map[string]any{
		"status":             t.Status,
		"response_code":      t.ResponseCode,
		"amount":             t.Amount.String(),
		"buy_order":          t.BuyOrder,
		"authorization_code": t.AuthorizationCode,
		"token":              t.Token,
	}
}

// Client cliente del servicio de conexión a Webpay.
type Client struct {
	apiURL     string
	apiSecret  string
	notifyURL  string
	httpClient *http.Client
}

// NewClient construye el cliente desde la configuración.
func NewClient(cfg config.WebpayConfig) *Client {
	return &Client{
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		apiSecret: cfg.APISecret,
		notifyURL: cfg.NotifyURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NotifyURL URL del webhook de notificación, forzada a https.
func (c *Client) NotifyURL() string {
	return strings.Replace(c.notifyURL, "http://", "https://", 1)
}

// Process inicia una transacción (POST /process-webpay) y devuelve el token
// y la URL de la página de pago.
func (c *Client) Process(ctx context.Context, orderNumber string, totalInclTax decimal.Decimal) (*ProcessResult, error) {
	payload := map[string]any{
		"notify_url":     c.NotifyURL(),
		"order_number":   orderNumber,
		"total_incl_tax": totalInclTax,
		"api_secret":     c.apiSecret,
	}
	var result ProcessResult
	if err := c.post(ctx, "/process-webpay", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TransactionStatus consulta el estado sin hacer commit (POST /transaction-status).
func (c *Client) TransactionStatus(ctx context.Context, token string) (*TransactionResult, error) {
	payload := map[string]any{
		"api_secret": c.apiSecret,
		"token":      token,
	}
	var result TransactionResult
	if err := c.post(ctx, "/transaction-status", payload, &result); err != nil {
		return nil, err
	}
	result.Token = token
	return &result, nil
}

// GetTransaction hace commit de la transacción (POST /get-transaction).
func (c *Client) GetTransaction(ctx context.Context, token string) (*TransactionResult, error) {
	payload := map[string]any{
		"api_secret": c.apiSecret,
		"token":      token,
	}
	var result TransactionResult
	if err := c.post(ctx, "/get-transaction", payload, &result); err != nil {
		return nil, err
	}
	result.Token = token
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webpay: serializar request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("webpay: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	defer resp.Body.Close()

	// 403: llaves mal configuradas; 500: revisar logs del servicio.
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusInternalServerError {
		return fmt.Errorf("%w: código %d en %s", domain.ErrGateway, resp.StatusCode, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webpay: respuesta inesperada %d en %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return fmt.Errorf("webpay: leer respuesta: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("webpay: decodificar respuesta: %w", err)
	}
	return nil
}
