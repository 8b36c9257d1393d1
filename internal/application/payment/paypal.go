package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
	paypalinfra "github.com/open-uchile/ecommerce/internal/infrastructure/paypal"
)

// PaypalGateway operaciones del cliente PayPal que el flujo en USD usa.
type PaypalGateway interface {
	CreateUSDOrder(ctx context.Context, orderNumber string, usdAmount decimal.Decimal, returnURL, cancelURL string) (orderID, approvalURL string, err error)
	CaptureOrder(ctx context.Context, orderID string) (string, error)
}

// PaypalResult parámetros para redirigir al comprador a la aprobación.
type PaypalResult struct {
	OrderID     string
	ApprovalURL string
	AmountUSD   decimal.Decimal
}

// PaypalProcessor flujo de cobro en moneda alternativa: el total CLP del
// carrito se convierte con la tasa vigente y se cobra en USD. La tasa usada
// queda enlazada al carrito para que la boleta reconstruya el precio.
type PaypalProcessor struct {
	gateway     PaypalGateway
	conversions repository.ConversionRepository
	returnURL   string
	cancelURL   string
}

// NewPaypalProcessor construye el procesador.
func NewPaypalProcessor(gateway PaypalGateway, conversions repository.ConversionRepository, returnURL, cancelURL string) *PaypalProcessor {
	return &PaypalProcessor{
		gateway:     gateway,
		conversions: conversions,
		returnURL:   returnURL,
		cancelURL:   cancelURL,
	}
}

// Initiate crea la orden PayPal en USD para el carrito.
func (p *PaypalProcessor) Initiate(ctx context.Context, basket *entity.Basket) (*PaypalResult, error) {
	if basket.Status == entity.BasketStatusSubmitted {
		return nil, fmt.Errorf("carrito %d: %w", basket.ID, domain.ErrBasketSometida)
	}

	rate, err := p.conversions.LatestPaypalRate(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("sin tasa CLP/USD vigente para cobrar: %w", err)
		}
		return nil, err
	}

	usd := paypalinfra.ConvertCLPToUSD(basket.TotalInclTax, rate.CLPPerUSD)

	// El enlace es el registro de auditoría del que la boleta obtiene la tasa
	// cobrada; se escribe antes del cobro para no perderla ante un corte.
	if err := p.conversions.LinkBasketToPaypalRate(ctx, rate.ID, basket.ID); err != nil {
		return nil, err
	}

	orderID, approvalURL, err := p.gateway.CreateUSDOrder(ctx, basket.OrderNumber, usd, p.returnURL, p.cancelURL)
	if err != nil {
		return nil, err
	}
	return &PaypalResult{OrderID: orderID, ApprovalURL: approvalURL, AmountUSD: usd}, nil
}

// Capture captura una orden ya aprobada por el comprador.
func (p *PaypalProcessor) Capture(ctx context.Context, orderID string) (string, error) {
	return p.gateway.CaptureOrder(ctx, orderID)
}
