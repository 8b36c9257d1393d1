package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
)

var _ repository.OrderRepository = (*OrderRepo)(nil)

// OrderRepo proyección de órdenes del subsistema comercial.
type OrderRepo struct {
	q Querier
}

// NewOrderRepository construye el adaptador.
func NewOrderRepository(q Querier) *OrderRepo {
	return &OrderRepo{q: q}
}

const orderColumns = `number, basket_id, user_email, status, total_incl_tax, total_discount_incl_tax, date_placed`

// GetByNumber busca una orden por número; ErrNotFound si no existe.
func (r *OrderRepo) GetByNumber(ctx context.Context, number string) (*entity.Order, error) {
	var o entity.Order
	err := r.q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE number = $1`, number,
	).Scan(&o.Number, &o.BasketID, &o.UserEmail, &o.Status, &o.TotalInclTax, &o.TotalDiscountInclTax, &o.DatePlaced)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get orden %s: %w", number, err)
	}
	return &o, nil
}

// ExistsByNumber chequeo de idempotencia previo al commit.
func (r *OrderRepo) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE number = $1)`, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("consultar orden %s: %w", number, err)
	}
	return exists, nil
}

// Create persiste la orden (dentro de la transacción de colocación).
func (r *OrderRepo) Create(ctx context.Context, o *entity.Order) error {
	query := `
		INSERT INTO orders (number, basket_id, user_email, status, total_incl_tax, total_discount_incl_tax, date_placed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, query,
		o.Number, o.BasketID, o.UserEmail, o.Status, o.TotalInclTax, o.TotalDiscountInclTax, o.DatePlaced)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("orden %s ya existe: %w", o.Number, err)
		}
		return fmt.Errorf("insert orden: %w", err)
	}
	return nil
}

// ListCompletedWithoutBoleta órdenes completas, pagadas y sin boleta, cuyo
// billing info usa el procesador dado. numbers restringe el subconjunto.
func (r *OrderRepo) ListCompletedWithoutBoleta(ctx context.Context, processor entity.PaymentProcessor, numbers []string) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.status = $1
		  AND o.total_incl_tax > 0
		  AND NOT EXISTS (SELECT 1 FROM boletas_electronicas b WHERE b.basket_id = o.basket_id)
		  AND EXISTS (SELECT 1 FROM user_billing_info u WHERE u.basket_id = o.basket_id AND u.payment_processor = $2)`
	args := []any{entity.OrderStatusComplete, string(processor)}
	if len(numbers) > 0 {
		query += ` AND o.number = ANY($3)`
		args = append(args, numbers)
	}
	query += ` ORDER BY o.date_placed ASC`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("consultar órdenes sin boleta: %w", err)
	}
	defer rows.Close()

	var out []*entity.Order
	for rows.Next() {
		var o entity.Order
		if err := rows.Scan(&o.Number, &o.BasketID, &o.UserEmail, &o.Status, &o.TotalInclTax, &o.TotalDiscountInclTax, &o.DatePlaced); err != nil {
			return nil, fmt.Errorf("scan orden: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

var _ repository.BasketRepository = (*BasketRepo)(nil)

// BasketRepo proyección de carritos del subsistema comercial.
type BasketRepo struct {
	q Querier
}

// NewBasketRepository construye el adaptador.
func NewBasketRepository(q Querier) *BasketRepo {
	return &BasketRepo{q: q}
}

// GetByID carga el carrito y sus líneas.
func (r *BasketRepo) GetByID(ctx context.Context, id int64) (*entity.Basket, error) {
	var b entity.Basket
	err := r.q.QueryRow(ctx, `
		SELECT id, owner_id, owner_email, order_number, status, total_incl_tax, authorization_code
		FROM baskets WHERE id = $1`, id,
	).Scan(&b.ID, &b.OwnerID, &b.OwnerEmail, &b.OrderNumber, &b.Status, &b.TotalInclTax, &b.AuthorizationCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get carrito %d: %w", id, err)
	}
	if err := r.loadLines(ctx, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// SetAuthorizationCode persiste el voucher de autorización tras el commit.
func (r *BasketRepo) SetAuthorizationCode(ctx context.Context, basketID int64, code string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE baskets SET authorization_code = $2 WHERE id = $1`, basketID, code)
	if err != nil {
		return fmt.Errorf("guardar código de autorización: %w", err)
	}
	return nil
}

// SetStatus cambia el estado del carrito (Open, Frozen, Submitted).
func (r *BasketRepo) SetStatus(ctx context.Context, basketID int64, status string) error {
	_, err := r.q.Exec(ctx, `UPDATE baskets SET status = $2 WHERE id = $1`, basketID, status)
	if err != nil {
		return fmt.Errorf("cambiar estado del carrito: %w", err)
	}
	return nil
}

// ListFrozenByOwnerEmail carritos congelados de un usuario.
func (r *BasketRepo) ListFrozenByOwnerEmail(ctx context.Context, email string) ([]*entity.Basket, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, owner_id, owner_email, order_number, status, total_incl_tax, authorization_code
		FROM baskets
		WHERE owner_email = $1 AND status = $2
		ORDER BY id ASC`, email, entity.BasketStatusFrozen)
	if err != nil {
		return nil, fmt.Errorf("consultar carritos congelados: %w", err)
	}
	defer rows.Close()

	var out []*entity.Basket
	for rows.Next() {
		var b entity.Basket
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.OwnerEmail, &b.OrderNumber, &b.Status, &b.TotalInclTax, &b.AuthorizationCode); err != nil {
			return nil, fmt.Errorf("scan carrito: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (r *BasketRepo) loadLines(ctx context.Context, b *entity.Basket) error {
	rows, err := r.q.Query(ctx, `
		SELECT product_id, product_title, quantity, unit_price_incl_tax
		FROM basket_lines WHERE basket_id = $1 ORDER BY id ASC`, b.ID)
	if err != nil {
		return fmt.Errorf("consultar líneas del carrito: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l entity.BasketLine
		if err := rows.Scan(&l.ProductID, &l.ProductTitle, &l.Quantity, &l.UnitPriceInclTax); err != nil {
			return fmt.Errorf("scan línea: %w", err)
		}
		b.Lines = append(b.Lines, l)
	}
	return rows.Err()
}
