package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/open-uchile/ecommerce/internal/application/payment"
	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
	"github.com/open-uchile/ecommerce/pkg/logger"
)

// PaypalFlow flujo de cobro en USD.
type PaypalFlow interface {
	Initiate(ctx context.Context, basket *entity.Basket) (*payment.PaypalResult, error)
	Capture(ctx context.Context, orderID string) (string, error)
}

// PaypalHandler maneja el cobro en moneda alternativa.
type PaypalHandler struct {
	flow    PaypalFlow
	baskets repository.BasketRepository
	log     *logger.Logger
}

// NewPaypalHandler construye el handler.
func NewPaypalHandler(flow PaypalFlow, baskets repository.BasketRepository, log *logger.Logger) *PaypalHandler {
	return &PaypalHandler{flow: flow, baskets: baskets, log: log}
}

// PaypalInitiateRequest inicio del cobro en USD.
type PaypalInitiateRequest struct {
	BasketID int64 `json:"basket_id" form:"basket_id"`
}

// PaypalInitiateResponse orden creada en PayPal.
type PaypalInitiateResponse struct {
	PaypalOrderID string `json:"paypal_order_id"`
	ApprovalURL   string `json:"approval_url"`
	AmountUSD     string `json:"amount_usd"`
}

// Initiate convierte el total del carrito a USD y crea la orden PayPal.
// POST /payment/paypal/initiate
func (h *PaypalHandler) Initiate(c *fiber.Ctx) error {
	var in PaypalInitiateRequest
	if err := c.BodyParser(&in); err != nil || in.BasketID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "basket_id requerido"})
	}

	basket, err := h.baskets.GetByID(c.Context(), in.BasketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "NOT_FOUND", Message: "carrito no encontrado"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}

	result, err := h.flow.Initiate(c.Context(), basket)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBasketSometida):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Code: "ALREADY_SUBMITTED", Message: "el carrito ya fue sometido"})
		case errors.Is(err, domain.ErrNotFound):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Code: "NO_RATE", Message: "sin tasa CLP/USD vigente"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Code: "GATEWAY", Message: err.Error()})
	}

	return c.JSON(PaypalInitiateResponse{
		PaypalOrderID: result.OrderID,
		ApprovalURL:   result.ApprovalURL,
		AmountUSD:     result.AmountUSD.StringFixed(2),
	})
}

// Execute captura una orden aprobada por el comprador.
// POST /payment/paypal/execute
func (h *PaypalHandler) Execute(c *fiber.Ctx) error {
	orderID := c.FormValue("paypal_order_id")
	if orderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "paypal_order_id requerido"})
	}
	status, err := h.flow.Capture(c.Context(), orderID)
	if err != nil {
		h.log.Error().Err(err).Str("paypal_order_id", orderID).Msg("error capturando la orden PayPal")
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Code: "GATEWAY", Message: "no fue posible capturar el pago"})
	}
	return c.JSON(fiber.Map{"status": status})
}
