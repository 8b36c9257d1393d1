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

var _ repository.ConversionRepository = (*ConversionRepo)(nil)

// ConversionRepo tasas de cambio CLP/USD y sus asociaciones de auditoría.
type ConversionRepo struct {
	q Querier
}

// NewConversionRepository construye el adaptador.
func NewConversionRepository(q Querier) *ConversionRepo {
	return &ConversionRepo{q: q}
}

// LatestBoletaRate la tasa de facturación vigente (más reciente por fecha).
func (r *ConversionRepo) LatestBoletaRate(ctx context.Context) (*entity.BoletaUSDConversion, error) {
	var c entity.BoletaUSDConversion
	err := r.q.QueryRow(ctx, `
		SELECT id, clp_per_usd, creation_date
		FROM boleta_usd_conversions
		ORDER BY creation_date DESC
		LIMIT 1`).Scan(&c.ID, &c.CLPPerUSD, &c.CreationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("tasa boleta: %w", err)
	}
	return &c, nil
}

// LatestPaypalRate la tasa de cobro Paypal vigente.
func (r *ConversionRepo) LatestPaypalRate(ctx context.Context) (*entity.PaypalUSDConversion, error) {
	var c entity.PaypalUSDConversion
	err := r.q.QueryRow(ctx, `
		SELECT id, clp_per_usd, creation_date
		FROM paypal_usd_conversions
		ORDER BY creation_date DESC
		LIMIT 1`).Scan(&c.ID, &c.CLPPerUSD, &c.CreationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("tasa paypal: %w", err)
	}
	return &c, nil
}

// PaypalRateForBasket la tasa que quedó asociada al carrito al momento del cobro.
func (r *ConversionRepo) PaypalRateForBasket(ctx context.Context, basketID int64) (*entity.PaypalUSDConversion, error) {
	var c entity.PaypalUSDConversion
	err := r.q.QueryRow(ctx, `
		SELECT p.id, p.clp_per_usd, p.creation_date
		FROM paypal_usd_conversions p
		JOIN paypal_usd_conversion_baskets pb ON pb.conversion_id = p.id
		WHERE pb.basket_id = $1
		ORDER BY p.creation_date DESC
		LIMIT 1`, basketID).Scan(&c.ID, &c.CLPPerUSD, &c.CreationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("tasa paypal del carrito %d: %w", basketID, err)
	}
	return &c, nil
}

// LinkBasketToPaypalRate asocia el carrito a la tasa usada para cobrarle.
func (r *ConversionRepo) LinkBasketToPaypalRate(ctx context.Context, rateID, basketID int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO paypal_usd_conversion_baskets (conversion_id, basket_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, rateID, basketID)
	if err != nil {
		return fmt.Errorf("asociar carrito a tasa paypal: %w", err)
	}
	return nil
}

// UnlinkBasketFromPaypalRate revierte la asociación (cambio webpay<->paypal).
func (r *ConversionRepo) UnlinkBasketFromPaypalRate(ctx context.Context, rateID, basketID int64) error {
	_, err := r.q.Exec(ctx, `
		DELETE FROM paypal_usd_conversion_baskets
		WHERE conversion_id = $1 AND basket_id = $2`, rateID, basketID)
	if err != nil {
		return fmt.Errorf("desasociar carrito de tasa paypal: %w", err)
	}
	return nil
}

// LinkBoletaToRate asocia la boleta emitida a la tasa de facturación usada.
func (r *ConversionRepo) LinkBoletaToRate(ctx context.Context, rateID int64, voucherID string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO boleta_usd_conversion_boletas (conversion_id, voucher_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, rateID, voucherID)
	if err != nil {
		return fmt.Errorf("asociar boleta a tasa: %w", err)
	}
	return nil
}
