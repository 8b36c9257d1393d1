// Package fulfill coloca la orden de un pago confirmado y dispara la emisión
// de la boleta. La colocación es transaccional; la emisión corre después del
// commit y, salvo configuración en contrario, sus fallas no abortan la orden.
package fulfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/open-uchile/ecommerce/internal/application/boleta"
	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
	"github.com/open-uchile/ecommerce/pkg/config"
	"github.com/open-uchile/ecommerce/pkg/logger"
)

// TxRunner ejecuta la colocación de la orden dentro de una transacción.
type TxRunner interface {
	RunPlacement(ctx context.Context, fn func(
		orderRepo repository.OrderRepository,
		basketRepo repository.BasketRepository,
		responseRepo repository.ProcessorResponseRepository,
	) error) error
}

// Emitter la operación de emisión de boletas que este servicio orquesta.
type Emitter interface {
	Emit(ctx context.Context, basket *entity.Basket, order *entity.Order, bearerToken string, processor entity.PaymentProcessor) (*boleta.EmitResult, error)
}

// TokenSource entrega un bearer token vigente de la API de Ventas.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Mailer alertas operacionales.
type Mailer interface {
	SendAlert(subject, body string) error
}

// Service coloca órdenes y emite boletas post-pago.
type Service struct {
	cfg       config.BoletaConfig
	txRunner  TxRunner
	emitter   Emitter
	tokens    TokenSource
	errorRepo repository.BoletaErrorRepository
	mailer    Mailer
	log       *logger.Logger
	now       func() time.Time
}

// NewService construye el servicio.
func NewService(
	cfg config.BoletaConfig,
	txRunner TxRunner,
	emitter Emitter,
	tokens TokenSource,
	errorRepo repository.BoletaErrorRepository,
	mailer Mailer,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		txRunner:  txRunner,
		emitter:   emitter,
		tokens:    tokens,
		errorRepo: errorRepo,
		mailer:    mailer,
		log:       log,
		now:       time.Now,
	}
}

// PlaceOrder registra el pago y crea la orden en una sola transacción: si
// algo falla no queda ni orden ni carrito sometido. Idempotente: una orden ya
// existente devuelve ErrBasketSometida.
func (s *Service) PlaceOrder(ctx context.Context, basket *entity.Basket, payment *entity.HandledPayment) (*entity.Order, error) {
	order := &entity.Order{
		Number:       basket.OrderNumber,
		BasketID:     basket.ID,
		UserEmail:    basket.OwnerEmail,
		Status:       entity.OrderStatusComplete,
		TotalInclTax: payment.Total,
		DatePlaced:   s.now(),
	}

	err := s.txRunner.RunPlacement(ctx, func(
		orderRepo repository.OrderRepository,
		basketRepo repository.BasketRepository,
		responseRepo repository.ProcessorResponseRepository,
	) error {
		exists, err := orderRepo.ExistsByNumber(ctx, basket.OrderNumber)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("orden %s ya colocada: %w", basket.OrderNumber, domain.ErrBasketSometida)
		}
		if err := orderRepo.Create(ctx, order); err != nil {
			return err
		}
		if err := responseRepo.Create(ctx, &entity.PaymentProcessorResponse{
			ProcessorName: entity.Webpay,
			TransactionID: &payment.TransactionID,
			BasketID:      &basket.ID,
			Response: map[string]any{
				"status":      entity.WebpayStatusAuthorized,
				"amount":      payment.Total.String(),
				"currency":    payment.Currency,
				"card_number": payment.CardNumber,
				"placed":      true,
			},
		}); err != nil {
			return err
		}
		return basketRepo.SetStatus(ctx, basket.ID, entity.BasketStatusSubmitted)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("order_number", order.Number).Int64("basket_id", basket.ID).
		Msg("orden colocada")
	return order, nil
}

// EmitIfEnabled emite la boleta si la integración está habilitada y la emisión
// inline está activa. Una falla de la API de Ventas consume los mensajes de
// error de la orden, envía un correo de soporte y, solo si halt_on_failure
// está configurado, aborta con error.
func (s *Service) EmitIfEnabled(ctx context.Context, basket *entity.Basket, order *entity.Order, processor entity.PaymentProcessor) error {
	if !s.cfg.Enabled || !s.cfg.GenerateOnPayment {
		return nil
	}

	err := s.emit(ctx, basket, order, processor)
	if err == nil {
		return nil
	}

	s.log.Error().Err(err).Str("order_number", basket.OrderNumber).
		Msg("la emisión de la boleta falló")
	s.reportEmissionFailure(ctx, basket.OrderNumber)

	if s.cfg.HaltOnFailure {
		return fmt.Errorf("emisión de boleta para %s: %w", basket.OrderNumber, err)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, basket *entity.Basket, order *entity.Order, processor entity.PaymentProcessor) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}
	_, err = s.emitter.Emit(ctx, basket, order, token, processor)
	return err
}

// reportEmissionFailure envía al equipo los mensajes de error encolados para
// la orden y los elimina de la cola.
func (s *Service) reportEmissionFailure(ctx context.Context, orderNumber string) {
	messages, err := s.errorRepo.ListByOrderNumber(ctx, orderNumber)
	if err != nil || len(messages) == 0 {
		s.log.Error().Str("order_number", orderNumber).
			Msg("no hay mensaje de error para la orden; el correo de soporte no se envía")
		return
	}

	body := fmt.Sprintf("Lugar: procesador de pago webpay.\nDescripción: Hubo un error al obtener la boleta %s.\n", orderNumber)
	for _, m := range messages {
		body += fmt.Sprintf("\nCódigo de respuesta %d, mensaje:\n%s\n", m.Code, m.Content)
	}
	if err := s.mailer.SendAlert("Boleta Electronica API Error(s)", body); err != nil {
		s.log.Error().Err(err).Msg("no fue posible enviar el correo de soporte")
		return
	}
	if err := s.errorRepo.DeleteByOrderNumber(ctx, orderNumber); err != nil {
		s.log.Error().Err(err).Str("order_number", orderNumber).
			Msg("no fue posible vaciar la cola de errores de la orden")
	}
}

// IsAlreadyPlaced distingue el replay idempotente de una falla real.
func IsAlreadyPlaced(err error) bool {
	return errors.Is(err, domain.ErrBasketSometida) || errors.Is(err, domain.ErrAlreadyProcessed)
}
