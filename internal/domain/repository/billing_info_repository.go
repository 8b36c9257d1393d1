package repository

import (
	"context"

	"github.com/open-uchile/ecommerce/internal/domain/entity"
)

// BillingInfoRepository puerto de persistencia para UserBillingInfo.
//
// Los duplicados por carrito son una anomalía tolerada: las consultas "por
// carrito" retornan siempre el registro más reciente por fecha de creación,
// nunca un primero arbitrario.
type BillingInfoRepository interface {
	Create(ctx context.Context, info *entity.UserBillingInfo) error
	Update(ctx context.Context, info *entity.UserBillingInfo) error
	// MostRecentByBasket el registro más reciente del carrito, o ErrNotFound.
	MostRecentByBasket(ctx context.Context, basketID int64) (*entity.UserBillingInfo, error)
	// MostRecentUnlinked el registro más reciente del carrito para un
	// procesador, aún sin boleta asociada.
	MostRecentUnlinked(ctx context.Context, basketID int64, processor entity.PaymentProcessor) (*entity.UserBillingInfo, error)
	// HasLinkedBoleta true si algún registro del carrito ya enlaza una boleta.
	// Defiende contra la carrera conocida en que la boleta existe pero la
	// escritura de la asociación falló.
	HasLinkedBoleta(ctx context.Context, basketID int64) (bool, error)
	// LinkBoleta registra el voucher emitido en el billing info.
	LinkBoleta(ctx context.Context, infoID int64, voucherID string) error
}
