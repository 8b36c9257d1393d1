package http

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-uchile/ecommerce/internal/application/fulfill"
	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
	"github.com/open-uchile/ecommerce/pkg/config"
	"github.com/open-uchile/ecommerce/pkg/logger"
)

// PDFFetcher descarga del PDF de boleta desde la API de Ventas.
type PDFFetcher interface {
	GetPDF(ctx context.Context, voucherID, bearerToken string) ([]byte, error)
	PDFURL(voucherID string) string
}

// BoletaHandler sirve la descarga de la boleta al comprador.
type BoletaHandler struct {
	cfg     config.BoletaConfig
	boletas repository.BoletaRepository
	baskets repository.BasketRepository
	tokens  fulfill.TokenSource
	pdfs    PDFFetcher
	log     *logger.Logger

	mu    sync.Mutex
	cache map[string]pdfEntry
	now   func() time.Time
}

type pdfEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewBoletaHandler construye el handler.
func NewBoletaHandler(
	cfg config.BoletaConfig,
	boletas repository.BoletaRepository,
	baskets repository.BasketRepository,
	tokens fulfill.TokenSource,
	pdfs PDFFetcher,
	log *logger.Logger,
) *BoletaHandler {
	return &BoletaHandler{
		cfg:     cfg,
		boletas: boletas,
		baskets: baskets,
		tokens:  tokens,
		pdfs:    pdfs,
		log:     log,
		cache:   make(map[string]pdfEntry),
		now:     time.Now,
	}
}

// Recover descarga el PDF de la boleta de una orden. Solo el dueño del
// carrito (o un administrador) puede recuperarla; la identidad llega en los
// headers que inyecta el proxy de autenticación.
// GET /payment/boleta/recover?order_number=...
func (h *BoletaHandler) Recover(c *fiber.Ctx) error {
	if !h.cfg.Enabled {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "DISABLED",
			Message: "la emisión de boletas no está habilitada"})
	}

	orderNumber := c.Query("order_number")
	if orderNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION",
			Message: "order_number requerido"})
	}

	boleta, err := h.boletas.GetByOrderNumber(c.Context(), orderNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "NOT_FOUND",
				Message: "la orden no tiene boleta"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}

	if err := h.authorize(c, boleta.BasketID); err != nil {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{Code: "FORBIDDEN",
			Message: "la boleta pertenece a otro usuario"})
	}

	data, err := h.pdf(c.Context(), boleta.VoucherID)
	if err != nil {
		h.log.Error().Err(err).Str("voucher_id", boleta.VoucherID).Msg("error descargando el PDF de la boleta")
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Code: "GATEWAY",
			Message: "no fue posible recuperar la boleta desde Ventas"})
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="boleta-%s.pdf"`, boleta.VoucherID))
	return c.Send(data)
}

// authorize compara el email autenticado con el dueño del carrito. El header
// X-User-Staff salta la comparación.
func (h *BoletaHandler) authorize(c *fiber.Ctx, basketID *int64) error {
	if c.Get("X-User-Staff") == "true" {
		return nil
	}
	email := c.Get("X-User-Email")
	if email == "" || basketID == nil {
		return domain.ErrInvalidInput
	}
	basket, err := h.baskets.GetByID(c.Context(), *basketID)
	if err != nil {
		return err
	}
	if basket.OwnerEmail != email {
		return domain.ErrInvalidInput
	}
	return nil
}

// pdf descarga con cache por URL. Las boletas son inmutables; el TTL existe
// solo para acotar la memoria.
func (h *BoletaHandler) pdf(ctx context.Context, voucherID string) ([]byte, error) {
	key := h.pdfs.PDFURL(voucherID)

	h.mu.Lock()
	entry, ok := h.cache[key]
	h.mu.Unlock()
	if ok && h.now().Before(entry.expiresAt) {
		return entry.data, nil
	}

	token, err := h.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	data, err := h.pdfs.GetPDF(ctx, voucherID, token)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.cache[key] = pdfEntry{
		data:      data,
		expiresAt: h.now().Add(time.Duration(h.cfg.PDFCacheMinutes) * time.Minute),
	}
	h.mu.Unlock()
	return data, nil
}
