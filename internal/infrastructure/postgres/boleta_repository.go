package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
)

var _ repository.BoletaRepository = (*BoletaRepo)(nil)

// BoletaRepo implementación de BoletaRepository (usable con pool o tx).
type BoletaRepo struct {
	q Querier
}

// NewBoletaRepository construye el adaptador.
func NewBoletaRepository(q Querier) *BoletaRepo {
	return &BoletaRepo{q: q}
}

// Create persiste la boleta recién creada; folio, fecha y monto pueden venir vacíos.
func (r *BoletaRepo) Create(ctx context.Context, b *entity.BoletaElectronica) error {
	query := `
		INSERT INTO boletas_electronicas (voucher_id, basket_id, receipt_url, folio, emission_date, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	err := r.q.QueryRow(ctx, query,
		b.VoucherID, b.BasketID, b.ReceiptURL, b.Folio, b.EmissionDate, b.Amount,
	).Scan(&b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("boleta %s ya registrada: %w", b.VoucherID, err)
		}
		return fmt.Errorf("insert boleta: %w", err)
	}
	return nil
}

// UpdateDetails respalda folio, fecha de emisión y monto.
func (r *BoletaRepo) UpdateDetails(ctx context.Context, b *entity.BoletaElectronica) error {
	query := `
		UPDATE boletas_electronicas
		SET folio = $2, emission_date = $3, amount = $4
		WHERE voucher_id = $1`
	_, err := r.q.Exec(ctx, query, b.VoucherID, b.Folio, b.EmissionDate, b.Amount)
	if err != nil {
		return fmt.Errorf("update boleta %s: %w", b.VoucherID, err)
	}
	return nil
}

const boletaColumns = `voucher_id, basket_id, receipt_url, folio, emission_date, amount, created_at`

// GetByVoucherID busca una boleta local por su id remoto.
func (r *BoletaRepo) GetByVoucherID(ctx context.Context, voucherID string) (*entity.BoletaElectronica, error) {
	query := `SELECT ` + boletaColumns + ` FROM boletas_electronicas WHERE voucher_id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, voucherID))
}

// GetByOrderNumber la boleta del carrito cuya orden tiene ese número.
func (r *BoletaRepo) GetByOrderNumber(ctx context.Context, orderNumber string) (*entity.BoletaElectronica, error) {
	query := `
		SELECT b.voucher_id, b.basket_id, b.receipt_url, b.folio, b.emission_date, b.amount, b.created_at
		FROM boletas_electronicas b
		JOIN orders o ON o.basket_id = b.basket_id
		WHERE o.number = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, orderNumber))
}

// ListIncomplete boletas a la espera del respaldo de detalle.
func (r *BoletaRepo) ListIncomplete(ctx context.Context) ([]*entity.BoletaElectronica, error) {
	query := `
		SELECT ` + boletaColumns + `
		FROM boletas_electronicas
		WHERE folio = '' AND emission_date IS NULL
		ORDER BY created_at ASC`
	return r.list(ctx, query)
}

// ListEmittedSince boletas locales con fecha de emisión desde since.
func (r *BoletaRepo) ListEmittedSince(ctx context.Context, since time.Time) ([]*entity.BoletaElectronica, error) {
	query := `
		SELECT ` + boletaColumns + `
		FROM boletas_electronicas
		WHERE emission_date >= $1
		ORDER BY emission_date ASC`
	return r.list(ctx, query, since)
}

// CountEmittedSince cuenta boletas locales emitidas desde since.
func (r *BoletaRepo) CountEmittedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM boletas_electronicas WHERE emission_date >= $1`, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("contar boletas: %w", err)
	}
	return n, nil
}

func (r *BoletaRepo) scanOne(row pgx.Row) (*entity.BoletaElectronica, error) {
	var b entity.BoletaElectronica
	err := row.Scan(&b.VoucherID, &b.BasketID, &b.ReceiptURL, &b.Folio, &b.EmissionDate, &b.Amount, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get boleta: %w", err)
	}
	return &b, nil
}

func (r *BoletaRepo) list(ctx context.Context, query string, args ...any) ([]*entity.BoletaElectronica, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("consultar boletas: %w", err)
	}
	defer rows.Close()

	var out []*entity.BoletaElectronica
	for rows.Next() {
		var b entity.BoletaElectronica
		if err := rows.Scan(&b.VoucherID, &b.BasketID, &b.ReceiptURL, &b.Folio, &b.EmissionDate, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan boleta: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

var _ repository.BoletaErrorRepository = (*BoletaErrorRepo)(nil)

// BoletaErrorRepo cola de errores de la API de Ventas en PostgreSQL.
type BoletaErrorRepo struct {
	q Querier
}

// NewBoletaErrorRepository construye el adaptador.
func NewBoletaErrorRepository(q Querier) *BoletaErrorRepo {
	return &BoletaErrorRepo{q: q}
}

// Create encola un error de la API.
func (r *BoletaErrorRepo) Create(ctx context.Context, m *entity.BoletaErrorMessage) error {
	query := `
		INSERT INTO boleta_error_messages (code, order_number, content)
		VALUES ($1, $2, $3)
		RETURNING id, error_at`
	if err := r.q.QueryRow(ctx, query, m.Code, m.OrderNumber, m.Content).Scan(&m.ID, &m.ErrorAt); err != nil {
		return fmt.Errorf("insert boleta error: %w", err)
	}
	return nil
}

// ListAll todos los errores pendientes, más antiguo primero.
func (r *BoletaErrorRepo) ListAll(ctx context.Context) ([]*entity.BoletaErrorMessage, error) {
	return r.list(ctx, `SELECT id, code, order_number, content, error_at FROM boleta_error_messages ORDER BY error_at ASC`)
}

// ListByOrderNumber errores acumulados para una orden.
func (r *BoletaErrorRepo) ListByOrderNumber(ctx context.Context, orderNumber string) ([]*entity.BoletaErrorMessage, error) {
	return r.list(ctx,
		`SELECT id, code, order_number, content, error_at FROM boleta_error_messages WHERE order_number = $1 ORDER BY error_at ASC`,
		orderNumber)
}

// DeleteAll vacía la cola una vez enviado el correo agregado.
func (r *BoletaErrorRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM boleta_error_messages`); err != nil {
		return fmt.Errorf("vaciar cola de errores: %w", err)
	}
	return nil
}

// DeleteByOrderNumber elimina los errores ya notificados de una orden.
func (r *BoletaErrorRepo) DeleteByOrderNumber(ctx context.Context, orderNumber string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM boleta_error_messages WHERE order_number = $1`, orderNumber); err != nil {
		return fmt.Errorf("eliminar errores de %s: %w", orderNumber, err)
	}
	return nil
}

func (r *BoletaErrorRepo) list(ctx context.Context, query string, args ...any) ([]*entity.BoletaErrorMessage, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("consultar errores de boleta: %w", err)
	}
	defer rows.Close()

	var out []*entity.BoletaErrorMessage
	for rows.Next() {
		var m entity.BoletaErrorMessage
		if err := rows.Scan(&m.ID, &m.Code, &m.OrderNumber, &m.Content, &m.ErrorAt); err != nil {
			return nil, fmt.Errorf("scan error de boleta: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
