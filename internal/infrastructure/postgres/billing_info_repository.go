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

var _ repository.BillingInfoRepository = (*BillingInfoRepo)(nil)

// BillingInfoRepo implementación de BillingInfoRepository (usable con pool o tx).
type BillingInfoRepo struct {
	q Querier
}

// NewBillingInfoRepository construye el adaptador.
func NewBillingInfoRepository(q Querier) *BillingInfoRepo {
	return &BillingInfoRepo{q: q}
}

const billingInfoColumns = `
	id, basket_id, billing_country_iso2, billing_city, billing_district, billing_address,
	first_name, last_name_1, last_name_2, id_number, id_option, id_other,
	payment_processor, boleta_voucher_id, created_at`

// Create persiste un nuevo registro de billing info.
func (r *BillingInfoRepo) Create(ctx context.Context, info *entity.UserBillingInfo) error {
	query := `
		INSERT INTO user_billing_info (
			basket_id, billing_country_iso2, billing_city, billing_district, billing_address,
			first_name, last_name_1, last_name_2, id_number, id_option, id_other, payment_processor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`
	err := r.q.QueryRow(ctx, query,
		info.BasketID, info.BillingCountryISO2, info.BillingCity, info.BillingDistrict,
		info.BillingAddress, info.FirstName, info.LastName1, info.LastName2,
		info.IDNumber, string(info.IDOption), info.IDOther, string(info.PaymentProcessor),
	).Scan(&info.ID, &info.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert billing info: %w", err)
	}
	return nil
}

// Update sobreescribe todos los campos editables del registro.
func (r *BillingInfoRepo) Update(ctx context.Context, info *entity.UserBillingInfo) error {
	query := `
		UPDATE user_billing_info
		SET billing_country_iso2 = $2, billing_city = $3, billing_district = $4,
		    billing_address = $5, first_name = $6, last_name_1 = $7, last_name_2 = $8,
		    id_number = $9, id_option = $10, id_other = $11, payment_processor = $12
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query,
		info.ID, info.BillingCountryISO2, info.BillingCity, info.BillingDistrict,
		info.BillingAddress, info.FirstName, info.LastName1, info.LastName2,
		info.IDNumber, string(info.IDOption), info.IDOther, string(info.PaymentProcessor),
	)
	if err != nil {
		return fmt.Errorf("update billing info: %w", err)
	}
	return nil
}

// MostRecentByBasket el registro más reciente del carrito. Los duplicados son
// una anomalía tolerada: nunca retornamos un "primero" arbitrario.
func (r *BillingInfoRepo) MostRecentByBasket(ctx context.Context, basketID int64) (*entity.UserBillingInfo, error) {
	query := `
		SELECT ` + billingInfoColumns + `
		FROM user_billing_info
		WHERE basket_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanOne(r.q.QueryRow(ctx, query, basketID))
}

// MostRecentUnlinked el registro más reciente sin boleta para un procesador.
func (r *BillingInfoRepo) MostRecentUnlinked(ctx context.Context, basketID int64, processor entity.PaymentProcessor) (*entity.UserBillingInfo, error) {
	query := `
		SELECT ` + billingInfoColumns + `
		FROM user_billing_info
		WHERE basket_id = $1 AND payment_processor = $2 AND boleta_voucher_id IS NULL
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanOne(r.q.QueryRow(ctx, query, basketID, string(processor)))
}

// HasLinkedBoleta true si algún registro del carrito ya enlaza una boleta.
func (r *BillingInfoRepo) HasLinkedBoleta(ctx context.Context, basketID int64) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_billing_info
			WHERE basket_id = $1 AND boleta_voucher_id IS NOT NULL)`
	if err := r.q.QueryRow(ctx, query, basketID).Scan(&exists); err != nil {
		return false, fmt.Errorf("consultar boleta enlazada: %w", err)
	}
	return exists, nil
}

// LinkBoleta registra el voucher emitido en el billing info.
func (r *BillingInfoRepo) LinkBoleta(ctx context.Context, infoID int64, voucherID string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE user_billing_info SET boleta_voucher_id = $2 WHERE id = $1`,
		infoID, voucherID)
	if err != nil {
		return fmt.Errorf("enlazar boleta: %w", err)
	}
	return nil
}

func (r *BillingInfoRepo) scanOne(row pgx.Row) (*entity.UserBillingInfo, error) {
	var info entity.UserBillingInfo
	var idOption, processor string
	err := row.Scan(
		&info.ID, &info.BasketID, &info.BillingCountryISO2, &info.BillingCity,
		&info.BillingDistrict, &info.BillingAddress, &info.FirstName,
		&info.LastName1, &info.LastName2, &info.IDNumber, &idOption, &info.IDOther,
		&processor, &info.BoletaVoucherID, &info.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get billing info: %w", err)
	}
	info.IDOption = entity.IDType(idOption)
	info.PaymentProcessor = entity.PaymentProcessor(processor)
	return &info, nil
}
