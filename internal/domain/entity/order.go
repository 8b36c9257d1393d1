package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Basket y Order son proyecciones de solo-lectura (más el código de
// autorización) de las entidades comerciales del subsistema de carritos, que
// es un colaborador externo. Aquí solo viven los campos que el procesamiento
// de pagos necesita.

// Estados de un carrito relevantes para pagos.
const (
	BasketStatusOpen      = "Open"
	BasketStatusFrozen    = "Frozen"
	BasketStatusSubmitted = "Submitted"
)

// BasketLine una línea del carrito con su producto.
type BasketLine struct {
	ProductID        int64
	ProductTitle     string
	Quantity         int64
	UnitPriceInclTax decimal.Decimal
}

/// Basket carrito de compra. Un carrito es la raíz de propiedad: billing info,
// respuestas de procesador y boletas cuelgan de él.
type Basket struct {
	ID                int64
	OwnerID           int64
	OwnerEmail        string
	OrderNumber       string
	Status            string
	TotalInclTax      decimal.Decimal
	AuthorizationCode string // voucher de Webpay, persistido tras el commit
	Lines             []BasketLine
}

// Order la contraparte finalizada y valorizada de un carrito.
type Order struct {
	Number               string
	BasketID             int64
	UserEmail            string
	Status               string
	TotalInclTax         decimal.Decimal
	TotalDiscountInclTax decimal.Decimal
	DatePlaced           time.Time
}

// OrderStatusComplete estado de una orden pagada y cumplida.
const OrderStatusComplete = "Complete"
