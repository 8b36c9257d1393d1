package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound       = errors.New("recurso no encontrado")
	ErrInvalidInput   = errors.New("entrada inválida")
	ErrBasketSometida = errors.New("la orden ya fue procesada para este carrito")

	// ErrAlreadyProcessed el pago ya registra una orden: replay idempotente, no es falla.
	ErrAlreadyProcessed = errors.New("webpay: pago ya procesado")

	// ErrRefundRequired PANIC: se cobró dinero pero el estado local no puede
	// confirmar un cobro único. Requiere intervención manual, nunca reintento.
	ErrRefundRequired = errors.New("webpay: se requiere reembolso manual")

	// ErrPartialAuthorization el monto notificado difiere del total del carrito.
	ErrPartialAuthorization = errors.New("webpay: monto autorizado distinto al total del carrito")

	// ErrGateway caída o error de transporte del gateway (403/500).
	ErrGateway = errors.New("webpay: el servicio de conexión no está disponible")

	// ErrNoFoliosDisponibles la API de Ventas agotó la secuencia de folios.
	ErrNoFoliosDisponibles = errors.New("ventas: no hay más folios disponibles")

	// ErrVentasConexion timeout o problema de conexión con la API de Ventas,
	// distinto de un error HTTP con respuesta.
	ErrVentasConexion = errors.New("ventas: no fue posible conectar con la API")

	// ErrInconsistencia drift detectado entre boletas locales y remotas.
	ErrInconsistencia = errors.New("reconciliación: inconsistencia detectada")
)

// TransactionDeclinedError transacción rechazada por Webpay. Code es el código
// numérico de autorización de Transbank (-1..-9) para el mensaje al usuario.
type TransactionDeclinedError struct {
	Code    int
	Message string
}

func (e *TransactionDeclinedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("webpay: transacción declinada con código %d", e.Code)
	}
	return fmt.Sprintf("webpay: %s (código %d)", e.Message, e.Code)
}

// BoletaAPIError respuesta no-2xx de la API de Ventas. Body viene formateado
// (JSON con indentación si fue posible) y truncado a 255 caracteres.
type BoletaAPIError struct {
	StatusCode int
	Body       string
}

func (e *BoletaAPIError) Error() string {
	return fmt.Sprintf("ventas: error HTTP %d", e.StatusCode)
}
