// Package paypal adapta el SDK de PayPal para el flujo de moneda alternativa:
// el carrito se cobra en USD usando la tasa CLP→USD registrada al momento del
// pago.
package paypal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"

	"github.com/open-uchile/ecommerce/pkg/config"
)

// Client envoltorio del cliente PayPal.
type Client struct {
	pp *paypal.Client
}

// NewClient construye y autentica el cliente. En sandbox apunta al ambiente
// de pruebas de PayPal.
func NewClient(ctx context.Context, cfg config.PaypalConfig) (*Client, error) {
	base := paypal.APIBaseLive
	if cfg.Sandbox {
		base = paypal.APIBaseSandBox
	}
	pp, err := paypal.NewClient(cfg.ClientID, cfg.ClientSecret, base)
	if err != nil {
		return nil, fmt.Errorf("paypal: crear cliente: %w", err)
	}
	if _, err := pp.GetAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("paypal: obtener access token: %w", err)
	}
	return &Client{pp: pp}, nil
}

// ConvertCLPToUSD convierte un monto CLP a USD con la tasa dada, redondeo
// half-up a 2 decimales. Es la misma aritmética que usa la emisión de boletas
// para reconstruir el precio facturable.
func ConvertCLPToUSD(clp, clpPerUSD decimal.Decimal) decimal.Decimal {
	return clp.Div(clpPerUSD).Round(2)
}

// CreateUSDOrder crea una orden CAPTURE en USD y devuelve el id de orden
// PayPal junto con la URL de aprobación.
func (c *Client) CreateUSDOrder(ctx context.Context, orderNumber string, usdAmount decimal.Decimal, returnURL, cancelURL string) (orderID, approvalURL string, err error) {
	units := []paypal.PurchaseUnitRequest{
		{
			ReferenceID: orderNumber,
			Amount: &paypal.PurchaseUnitAmount{
				Currency: "USD",
				Value:    usdAmount.StringFixed(2),
			},
			Description: "Curso de formación en extensión",
		},
	}
	appCtx := &paypal.ApplicationContext{
		ReturnURL: returnURL,
		CancelURL: cancelURL,
	}

	// PayPal-Request-Id hace idempotente el POST ante reintentos de red.
	order, err := c.pp.CreateOrderWithPaypalRequestID(ctx, paypal.OrderIntentCapture, units, nil, appCtx, uuid.NewString())
	if err != nil {
		return "", "", fmt.Errorf("paypal: crear orden %s: %w", orderNumber, err)
	}

	for _, link := range order.Links {
		if strings.EqualFold(link.Rel, "approve") {
			return order.ID, link.Href, nil
		}
	}
	return "", "", fmt.Errorf("paypal: orden %s sin URL de aprobación", orderNumber)
}

// CaptureOrder captura una orden aprobada por el usuario.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (string, error) {
	capture, err := c.pp.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return "", fmt.Errorf("paypal: capturar orden %s: %w", orderID, err)
	}
	return capture.Status, nil
}
