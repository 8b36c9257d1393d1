package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// IDType tipo de documento de identidad del receptor de la boleta.
type IDType string

const (
	IDTypeRUT      IDType = "0"
	IDTypePassport IDType = "1"
	IDTypeOther    IDType = "2"
)

// RUTAnonimo RUT de receptor anónimo permitido por regulación cuando el
// comprador no informa un RUT (largo máximo 10, formato 12345678-K).
const RUTAnonimo = "66666666-6"

// UserBillingInfo datos legales y de dirección del comprador, requeridos para
// emitir la boleta. Se crea al iniciar la transacción. La regla es un registro
// por carrito, pero los duplicados son una anomalía conocida que se tolera:
// los consumidores usan siempre el más reciente.
type UserBillingInfo struct {
	ID                 int64
	BasketID           *int64
	BillingCountryISO2 string
	BillingCity        string
	BillingDistrict    string
	BillingAddress     string
	FirstName          string
	LastName1          string
	LastName2          string
	IDNumber           string
	IDOption           IDType
	IDOther            string
	PaymentProcessor   PaymentProcessor
	BoletaVoucherID    *string // se enlaza cuando la emisión tiene éxito
	CreatedAt          time.Time
}

// BoletaElectronica una boleta emitida (o en vuelo) en la API de Ventas.
// Folio, fecha de emisión y monto quedan vacíos hasta que el detalle se
// complete, inline o por el comando complete-boleta.
type BoletaElectronica struct {
	VoucherID    string // id remoto asignado por Ventas
	BasketID     *int64
	ReceiptURL   string
	Folio        string
	EmissionDate *time.Time
	Amount       int64 // CLP, enteros
	CreatedAt    time.Time
}

// Completed indica si el detalle remoto ya fue recuperado.
func (b *BoletaElectronica) Completed() bool {
	return b.Folio != "" && b.EmissionDate != nil
}

// BoletaErrorMessage cola transitoria de fallas de la API de Ventas a la
// espera de notificación. El comando boleta-emissions (o el flujo de pago) las
// agrega en un solo correo y luego las elimina.
type BoletaErrorMessage struct {
	ID          int64
	Code        int
	OrderNumber string
	Content     string // cuerpo del error truncado a 255
	ErrorAt     time.Time
}

// BoletaUSDConversion tasa CLP/USD usada al momento de emitir la boleta.
// Registros append-only; la selección es siempre "más reciente por fecha de
// creación". Se enlaza a las boletas que valorizó para auditoría.
type BoletaUSDConversion struct {
	ID           int64
	CLPPerUSD    decimal.Decimal
	CreationDate time.Time
}

// PaypalUSDConversion tasa CLP/USD usada al momento de cobrar con Paypal.
// Independiente de la tasa de facturación: ambas deben ser auditables.
type PaypalUSDConversion struct {
	ID           int64
	CLPPerUSD    decimal.Decimal
	CreationDate time.Time
}
