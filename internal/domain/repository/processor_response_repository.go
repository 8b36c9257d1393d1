package repository

import (
	"context"

	"github.com/open-uchile/ecommerce/internal/domain/entity"
)

// ProcessorResponseRepository puerto de persistencia para el registro de
// auditoría de respuestas del gateway. Solo inserción y lectura: las filas
// nunca se actualizan.
type ProcessorResponseRepository interface {
	Create(ctx context.Context, r *entity.PaymentProcessorResponse) error
	// ListByTransactionID filas etiquetadas con un número de orden, más
	// reciente primero. Excluye filas sin carrito.
	ListByTransactionID(ctx context.Context, processor entity.PaymentProcessor, transactionID string) ([]*entity.PaymentProcessorResponse, error)
	// ListUntaggedByBasket filas de un carrito sin transaction_id (estados y
	// commits). Es el insumo de la detección de doble autorización.
	ListUntaggedByBasket(ctx context.Context, basketID int64) ([]*entity.PaymentProcessorResponse, error)
	// ListTaggedByBasket filas de un carrito con transaction_id presente.
	ListTaggedByBasket(ctx context.Context, processor entity.PaymentProcessor, basketID int64) ([]*entity.PaymentProcessorResponse, error)
}
