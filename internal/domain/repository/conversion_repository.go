package repository

import (
	"context"

	"github.com/open-uchile/ecommerce/internal/domain/entity"
)

// ConversionRepository puerto para las tasas de cambio CLP/USD. Las tasas son
// append-only y la regla de selección es "más reciente por fecha de creación".
type ConversionRepository interface {
	// LatestBoletaRate la tasa vigente para facturar; ErrNotFound si no hay.
	LatestBoletaRate(ctx context.Context) (*entity.BoletaUSDConversion, error)
	// LatestPaypalRate la tasa vigente para cobrar con Paypal.
	LatestPaypalRate(ctx context.Context) (*entity.PaypalUSDConversion, error)
	// PaypalRateForBasket la tasa asociada al carrito al momento del cobro.
	PaypalRateForBasket(ctx context.Context, basketID int64) (*entity.PaypalUSDConversion, error)

	// Asociaciones de auditoría (tablas muchos-a-muchos).
	LinkBasketToPaypalRate(ctx context.Context, rateID, basketID int64) error
	UnlinkBasketFromPaypalRate(ctx context.Context, rateID, basketID int64) error
	LinkBoletaToRate(ctx context.Context, rateID int64, voucherID string) error
}
