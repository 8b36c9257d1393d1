package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
)

var _ repository.ProcessorResponseRepository = (*ProcessorResponseRepo)(nil)

// ProcessorResponseRepo implementación de ProcessorResponseRepository (usable con pool o tx).
type ProcessorResponseRepo struct {
	q Querier
}

// NewProcessorResponseRepository construye el adaptador. Pasar pool o tx (Querier).
func NewProcessorResponseRepository(q Querier) *ProcessorResponseRepo {
	return &ProcessorResponseRepo{q: q}
}

// Create inserta una fila de auditoría. Las filas nunca se actualizan.
func (r *ProcessorResponseRepo) Create(ctx context.Context, resp *entity.PaymentProcessorResponse) error {
	payload, err := json.Marshal(resp.Response)
	if err != nil {
		return fmt.Errorf("serializar respuesta: %w", err)
	}
	query := `
		INSERT INTO payment_processor_responses (processor_name, transaction_id, basket_id, response)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err = r.q.QueryRow(ctx, query,
		string(resp.ProcessorName), resp.TransactionID, resp.BasketID, payload,
	).Scan(&resp.ID, &resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert processor response: %w", err)
	}
	return nil
}

// ListByTransactionID filas etiquetadas con el número de orden, más reciente primero.
func (r *ProcessorResponseRepo) ListByTransactionID(ctx context.Context, processor entity.PaymentProcessor, transactionID string) ([]*entity.PaymentProcessorResponse, error) {
	query := `
		SELECT id, processor_name, transaction_id, basket_id, response, created_at
		FROM payment_processor_responses
		WHERE processor_name = $1 AND transaction_id = $2 AND basket_id IS NOT NULL
		ORDER BY created_at DESC`
	return r.list(ctx, query, string(processor), transactionID)
}

// ListUntaggedByBasket filas del carrito sin transaction_id.
func (r *ProcessorResponseRepo) ListUntaggedByBasket(ctx context.Context, basketID int64) ([]*entity.PaymentProcessorResponse, error) {
	query := `
		SELECT id, processor_name, transaction_id, basket_id, response, created_at
		FROM payment_processor_responses
		WHERE basket_id = $1 AND transaction_id IS NULL
		ORDER BY created_at ASC`
	return r.list(ctx, query, basketID)
}

// ListTaggedByBasket filas del carrito con transaction_id presente.
func (r *ProcessorResponseRepo) ListTaggedByBasket(ctx context.Context, processor entity.PaymentProcessor, basketID int64) ([]*entity.PaymentProcessorResponse, error) {
	query := `
		SELECT id, processor_name, transaction_id, basket_id, response, created_at
		FROM payment_processor_responses
		WHERE processor_name = $1 AND basket_id = $2 AND transaction_id IS NOT NULL
		ORDER BY created_at DESC`
	return r.list(ctx, query, string(processor), basketID)
}

func (r *ProcessorResponseRepo) list(ctx context.Context, query string, args ...any) ([]*entity.PaymentProcessorResponse, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("consultar processor responses: %w", err)
	}
	defer rows.Close()

	var out []*entity.PaymentProcessorResponse
	for rows.Next() {
		var resp entity.PaymentProcessorResponse
		var name string
		var payload []byte
		if err := rows.Scan(&resp.ID, &name, &resp.TransactionID, &resp.BasketID, &payload, &resp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan processor response: %w", err)
		}
		resp.ProcessorName = entity.PaymentProcessor(name)
		if err := json.Unmarshal(payload, &resp.Response); err != nil {
			return nil, fmt.Errorf("deserializar respuesta %d: %w", resp.ID, err)
		}
		out = append(out, &resp)
	}
	return out, rows.Err()
}
