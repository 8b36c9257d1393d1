package repository

import (
	"context"

	"github.com/open-uchile/ecommerce/internal/domain/entity"
)

// OrderRepository puerto de lectura/creación sobre las órdenes del subsistema
// comercial externo.
type OrderRepository interface {
	GetByNumber(ctx context.Context, number string) (*entity.Order, error)
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	Create(ctx context.Context, o *entity.Order) error
	// ListCompletedWithoutBoleta órdenes completas con total > 0, sin boleta
	// asociada al carrito, cuyo billing info usa el procesador indicado.
	// numbers filtra a un subconjunto explícito si no está vacío.
	ListCompletedWithoutBoleta(ctx context.Context, processor entity.PaymentProcessor, numbers []string) ([]*entity.Order, error)
}

// BasketRepository puerto de lectura (más el código de autorización y el
// estado) sobre los carritos del subsistema comercial externo.
type BasketRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Basket, error)
	// SetAuthorizationCode persiste el voucher de autorización tras el commit.
	SetAuthorizationCode(ctx context.Context, basketID int64, code string) error
	SetStatus(ctx context.Context, basketID int64, status string) error
	// ListFrozenByOwnerEmail carritos congelados de un usuario, para el
	// diagnóstico inspect-webpay.
	ListFrozenByOwnerEmail(ctx context.Context, email string) ([]*entity.Basket, error)
}
