package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-uchile/ecommerce/internal/application/fulfill"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
)

// Ensure TxRunner implements fulfill.TxRunner.
var _ fulfill.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunPlacement inicia una transacción, ejecuta fn con repos atados a la tx y
// hace Commit o Rollback. Se usa para la colocación de órdenes: o se crea la
// orden y se somete el carrito, o no queda nada.
func (r *TxRunner) RunPlacement(ctx context.Context, fn func(
	orderRepo repository.OrderRepository,
	basketRepo repository.BasketRepository,
	responseRepo repository.ProcessorResponseRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderRepo := NewOrderRepository(tx)
	basketRepo := NewBasketRepository(tx)
	responseRepo := NewProcessorResponseRepository(tx)

	if err := fn(orderRepo, basketRepo, responseRepo); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
