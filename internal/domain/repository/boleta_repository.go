package repository

import (
	"context"
	"time"

	"github.com/open-uchile/ecommerce/internal/domain/entity"
)

// BoletaRepository puerto de persistencia para BoletaElectronica.
type BoletaRepository interface {
	Create(ctx context.Context, b *entity.BoletaElectronica) error
	// UpdateDetails respalda folio, fecha de emisión y monto recuperados de la
	// API de Ventas.
	UpdateDetails(ctx context.Context, b *entity.BoletaElectronica) error
	// GetByVoucherID retorna ErrNotFound si el voucher no existe localmente.
	GetByVoucherID(ctx context.Context, voucherID string) (*entity.BoletaElectronica, error)
	// GetByOrderNumber la boleta del carrito cuya orden tiene ese número.
	GetByOrderNumber(ctx context.Context, orderNumber string) (*entity.BoletaElectronica, error)
	// ListIncomplete boletas con folio vacío y sin fecha de emisión.
	ListIncomplete(ctx context.Context) ([]*entity.BoletaElectronica, error)
	// ListEmittedSince boletas locales con fecha de emisión >= since.
	ListEmittedSince(ctx context.Context, since time.Time) ([]*entity.BoletaElectronica, error)
	CountEmittedSince(ctx context.Context, since time.Time) (int, error)
}

// BoletaErrorRepository cola de errores de la API de Ventas pendientes de
// notificación por correo.
type BoletaErrorRepository interface {
	Create(ctx context.Context, m *entity.BoletaErrorMessage) error
	ListAll(ctx context.Context) ([]*entity.BoletaErrorMessage, error)
	// ListByOrderNumber errores acumulados para una orden.
	ListByOrderNumber(ctx context.Context, orderNumber string) ([]*entity.BoletaErrorMessage, error)
	// DeleteAll vacía la cola una vez enviado el correo agregado.
	DeleteAll(ctx context.Context) error
	DeleteByOrderNumber(ctx context.Context, orderNumber string) error
}
