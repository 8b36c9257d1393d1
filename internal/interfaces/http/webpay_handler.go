package http

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/open-uchile/ecommerce/internal/application/payment"
	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
	"github.com/open-uchile/ecommerce/internal/infrastructure/webpay"
	"github.com/open-uchile/ecommerce/pkg/config"
	"github.com/open-uchile/ecommerce/pkg/logger"
)

// PaymentProcessor operaciones del procesador Webpay que los handlers usan.
type PaymentProcessor interface {
	Initiate(ctx context.Context, basket *entity.Basket, form *payment.BillingForm) (*payment.InitiateResult, error)
	TransactionStatus(ctx context.Context, token string) (*webpay.TransactionResult, error)
	HandleNotification(ctx context.Context, status *webpay.TransactionResult, basket *entity.Basket) (*entity.HandledPayment, error)
}

// OrderPlacer colocación de órdenes y emisión de boletas tras el pago.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, basket *entity.Basket, payment *entity.HandledPayment) (*entity.Order, error)
	EmitIfEnabled(ctx context.Context, basket *entity.Basket, order *entity.Order, processor entity.PaymentProcessor) error
}

// Mailer alertas operacionales.
type Mailer interface {
	SendAlert(subject, body string) error
}

// WebpayHandler maneja el ciclo de pago Webpay: inicio, webhook y página de
// rechazo.
type WebpayHandler struct {
	cfg       config.WebpayConfig
	processor PaymentProcessor
	placer    OrderPlacer
	responses repository.ProcessorResponseRepository
	baskets   repository.BasketRepository
	mailer    Mailer
	log       *logger.Logger
}

// NewWebpayHandler construye el handler.
func NewWebpayHandler(
	cfg config.WebpayConfig,
	processor PaymentProcessor,
	placer OrderPlacer,
	responses repository.ProcessorResponseRepository,
	baskets repository.BasketRepository,
	mailer Mailer,
	log *logger.Logger,
) *WebpayHandler {
	return &WebpayHandler{
		cfg:       cfg,
		processor: processor,
		placer:    placer,
		responses: responses,
		baskets:   baskets,
		mailer:    mailer,
		log:       log,
	}
}

// Initiate crea la transacción en Webpay y devuelve la URL de pago.
// POST /payment/webpay/initiate
func (h *WebpayHandler) Initiate(c *fiber.Ctx) error {
	var in InitiateRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.BasketID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "basket_id requerido"})
	}

	basket, err := h.baskets.GetByID(c.Context(), in.BasketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "NOT_FOUND", Message: "carrito no encontrado"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}

	form := &payment.BillingForm{
		IDOption:        entity.IDType(in.IDOption),
		IDNumber:        in.IDNumber,
		IDOther:         in.IDOther,
		FirstName:       in.FirstName,
		LastName1:       in.LastName1,
		LastName2:       in.LastName2,
		BillingCountry:  in.BillingCountry,
		BillingCity:     in.BillingCity,
		BillingDistrict: in.BillingDistrict,
		BillingAddress:  in.BillingAddress,
	}
	result, err := h.processor.Initiate(c.Context(), basket, form)
	if err != nil {
		var declined *domain.TransactionDeclinedError
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "RUT inválido"})
		case errors.Is(err, domain.ErrBasketSometida):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Code: "ALREADY_SUBMITTED", Message: "el carrito ya fue sometido"})
		case errors.Is(err, domain.ErrGateway):
			return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Code: "GATEWAY", Message: "el servicio de Webpay no está disponible"})
		case errors.As(err, &declined):
			return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Code: "DECLINED", Message: declined.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}

	return c.JSON(InitiateResponse{PaymentPageURL: result.PaymentPageURL, TokenWS: result.Token})
}

// Execute procesa la notificación de Webpay de una transacción terminada y
// cierra la orden. Redirige al comprador al recibo o a la página de rechazo.
// POST /payment/webpay/execute
func (h *WebpayHandler) Execute(c *fiber.Ctx) error {
	token := c.FormValue("token_ws")
	if token == "" {
		token = c.FormValue("TBK_TOKEN")
	}
	h.log.Info().Str("token", token).Msg("notificación de pago recibida desde Webpay")

	status, err := h.processor.TransactionStatus(c.Context(), token)
	if err != nil {
		h.alert("Hubo un error al obtener los detalles desde Webpay.", "", err)
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "GATEWAY",
			Message: "Hubo un error al obtener los detalles desde Webpay."})
	}

	// Un token inválido o cancelado no trae buy_order: no hubo cobro.
	if status.BuyOrder == "" {
		h.log.Warn().Str("token", token).Msg("la respuesta no trae buy_order; petición cancelada por Webpay")
		return c.Redirect(h.cfg.CancelURL, fiber.StatusFound)
	}

	basket, err := h.basketFor(c.Context(), status.BuyOrder)
	if err != nil {
		h.alert("El carrito solicitado no existe.", status.BuyOrder, err)
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "NOT_FOUND",
			Message: "El carrito solicitado no existe."})
	}

	orderNumber := basket.OrderNumber
	status.Token = token
	handled, err := h.processor.HandleNotification(c.Context(), status, basket)
	if err != nil {
		return h.notificationError(c, err, basket, orderNumber)
	}

	order, err := h.placer.PlaceOrder(c.Context(), basket, handled)
	if err != nil {
		h.alert("Error al cerrar la orden en ecommerce.", orderNumber, err)
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "PLACEMENT",
			Message: fmt.Sprintf("Hubo un error al cerrar la orden en ecommerce. Guarde su número de orden %s.", orderNumber)})
	}
	if err := h.placer.EmitIfEnabled(c.Context(), basket, order, entity.Webpay); err != nil {
		h.alert("Error al cerrar la orden en ecommerce.", orderNumber, err)
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "PLACEMENT",
			Message: fmt.Sprintf("Hubo un error al cerrar la orden en ecommerce. Guarde su número de orden %s.", orderNumber)})
	}

	return c.Redirect(fmt.Sprintf("%s?order_number=%s", h.cfg.ReceiptURL, orderNumber), fiber.StatusFound)
}

func (h *WebpayHandler) notificationError(c *fiber.Ctx, err error, basket *entity.Basket, orderNumber string) error {
	var declined *domain.TransactionDeclinedError
	switch {
	case errors.As(err, &declined):
		return c.Redirect(fmt.Sprintf("/payment/webpay/failure?code=%d&order=%s", declined.Code, orderNumber), fiber.StatusFound)
	case errors.Is(err, domain.ErrRefundRequired):
		h.alert("Inconsistencia en montos de pagos cobrados o pago ya registrado. Se necesita un reembolso.", orderNumber, err)
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "REFUND_REQUIRED",
			Message: fmt.Sprintf("Hubo un error desde Webpay. Guarde su número de orden %s.", orderNumber)})
	case errors.Is(err, domain.ErrAlreadyProcessed):
		h.log.Error().Err(err).Int64("basket_id", basket.ID).Msg("el pago ya estaba procesado")
		h.alert("El pago ya registra como procesado en ecommerce.", orderNumber, err)
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "ALREADY_PROCESSED",
			Message: fmt.Sprintf("El pago ya registra como procesado en ecommerce. Guarde su número de orden %s.", orderNumber)})
	}
	h.log.Error().Err(err).Int64("basket_id", basket.ID).Msg("falló el procesamiento del pago")
	h.alert("Error inesperado al procesar el pago en ecommerce.", orderNumber, err)
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "INTERNAL",
		Message: fmt.Sprintf("Hubo un error al procesar el carrito. Guarde su número de orden %s.", orderNumber)})
}

// basketFor resuelve el carrito del buy_order vía las respuestas de auditoría.
// Ante duplicados se usa siempre la primera para evitar dobles cobros.
func (h *WebpayHandler) basketFor(ctx context.Context, buyOrder string) (*entity.Basket, error) {
	rows, err := h.responses.ListByTransactionID(ctx, entity.Webpay, buyOrder)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sin respuestas para la orden %s: %w", buyOrder, domain.ErrNotFound)
	}
	if len(rows) > 1 {
		h.log.Warn().Str("buy_order", buyOrder).Int("count", len(rows)).
			Msg("buy_order duplicado recibido desde Webpay")
	}
	if rows[0].BasketID == nil {
		return nil, fmt.Errorf("la respuesta de la orden %s no referencia un carrito: %w", buyOrder, domain.ErrNotFound)
	}
	return h.baskets.GetByID(ctx, *rows[0].BasketID)
}

// Mensajes por código de autorización de Transbank.
var declineMessages = map[string]string{
	"-1": "Detalle: Tarjeta inválida",
	"-2": "Detalle: Error de conexión",
	"-3": "Detalle: Excede monto máximo",
	"-4": "Detalle: Fecha de expiración inválida",
	"-5": "Detalle: Problema en autenticación",
	"-6": "Detalle: Rechazo general",
	"-7": "Detalle: Tarjeta bloqueada",
	"-8": "Detalle: Tarjeta vencida",
	"-9": "Detalle: Transacción no soportada",
}

// Failure traduce el código de rechazo a un mensaje para el comprador.
// GET /payment/webpay/failure
func (h *WebpayHandler) Failure(c *fiber.Ctx) error {
	msg, ok := declineMessages[c.Query("code")]
	if !ok {
		msg = "Detalle: existe un problema desde Transbank."
	}
	return c.JSON(FailureResponse{OrderNumber: c.Query("order"), Message: msg})
}

func (h *WebpayHandler) alert(description, orderNumber string, err error) {
	body := fmt.Sprintf("Lugar: notificación de pago webpay.\nDescripción: %s\nError: %v", description, err)
	if orderNumber != "" {
		body += fmt.Sprintf("\nNúmero de orden: %s", orderNumber)
	}
	if mailErr := h.mailer.SendAlert("Webpay Service Error", body); mailErr != nil {
		h.log.Error().Err(mailErr).Msg("no fue posible enviar la alerta")
	}
}
