package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentProcessor es el conjunto cerrado de procesadores de pago soportados.
// Reemplaza el despacho por strings sueltos: todo switch sobre este tipo debe
// ser exhaustivo.
type PaymentProcessor string

const (
	Webpay PaymentProcessor = "webpay"
	Paypal PaymentProcessor = "paypal"
)

// Valid indica si el nombre corresponde a un procesador conocido.
func (p PaymentProcessor) Valid() bool {
	return p == Webpay || p == Paypal
}

// Estados de una transacción Webpay según el gateway.
const (
	WebpayStatusInitialized = "INITIALIZED"
	WebpayStatusAuthorized  = "AUTHORIZED"
)

// PaymentProcessorResponse registro de auditoría de cada interacción cruda con
// el gateway. Inmutable: se crea en cada llamada (inicio, estado, commit) y
// nunca se actualiza.
type PaymentProcessorResponse struct {
	ID            int64
	ProcessorName PaymentProcessor
	TransactionID *string // número de orden; nil para respuestas de estado/commit
	BasketID      *int64  // SET NULL si el carrito se elimina
	Response      map[string]any
	CreatedAt     time.Time
}

// ResponseStatus devuelve el campo "status" del payload, o "" si no existe.
func (r *PaymentProcessorResponse) ResponseStatus() string {
	s, _ := r.Response["status"].(string)
	return s
}

// ResponseToken devuelve el campo "token" del payload, o "" si no existe.
func (r *PaymentProcessorResponse) ResponseToken() string {
	s, _ := r.Response["token"].(string)
	return s
}

// HandledPayment resultado normalizado de una notificación Webpay procesada
// con éxito: lo que el subsistema de órdenes necesita para registrar el pago.
type HandledPayment struct {
	TransactionID string // igual al número de orden
	Total         decimal.Decimal
	Currency      string
	CardNumber    string // token enmascarado, ej. "webpay_123"
}
