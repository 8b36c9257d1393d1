package boleta

import (
	"github.com/shopspring/decimal"

	"github.com/open-uchile/ecommerce/internal/domain/entity"
)

// BillablePrice determina el precio unitario y el total a facturar.
//
// Webpay (moneda local): el precio unitario es el de la línea, salvo que la
// orden registre un descuento y la línea tenga cantidad 1, en cuyo caso el
// total de la orden sustituye al precio unitario (los descuentos solo aplican
// a compras de un producto).
//
// Paypal (moneda alternativa): la línea se cobró en USD con la tasa registrada
// al momento del pago (half-up a 2 decimales) y se factura de vuelta en CLP
// con la tasa de facturación vigente (half-up a entero). Las dos tasas pueden
// divergir y ambas quedan auditadas.
func BillablePrice(line entity.BasketLine, order *entity.Order, processor entity.PaymentProcessor, chargedCLPPerUSD, billableCLPPerUSD decimal.Decimal) (unit, total decimal.Decimal) {
	if processor == entity.Paypal {
		dollars := line.UnitPriceInclTax.Div(chargedCLPPerUSD).Round(2)
		unit = dollars.Mul(billableCLPPerUSD).Round(0)
		total = dollars.Mul(billableCLPPerUSD).Mul(decimal.NewFromInt(line.Quantity)).Round(0)
		return unit, total
	}

	unit = line.UnitPriceInclTax
	if !order.TotalDiscountInclTax.IsZero() && line.Quantity == 1 {
		unit = order.TotalInclTax
	}
	return unit, order.TotalInclTax
}
