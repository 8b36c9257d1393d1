// Package reconcile implementa los comandos batch que detectan y corrigen el
// drift entre el estado local y los colaboradores externos: emisión de boletas
// pendientes, completación de detalles, verificación contra el inventario
// remoto de Ventas, colocación manual de órdenes y diagnóstico de Webpay.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-uchile/ecommerce/internal/application/boleta"
	"github.com/open-uchile/ecommerce/internal/application/fulfill"
	"github.com/open-uchile/ecommerce/internal/application/payment"
	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
	"github.com/open-uchile/ecommerce/pkg/config"
	"github.com/open-uchile/ecommerce/pkg/logger"
)

// Mailer correos del equipo de operaciones, con y sin adjunto.
type Mailer interface {
	SendAlert(subject, body string) error
	SendWithAttachment(subject, body, filePath string) error
}

// OrderPlacer la colocación de órdenes que fulfill-order reutiliza.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, basket *entity.Basket, payment *entity.HandledPayment) (*entity.Order, error)
	EmitIfEnabled(ctx context.Context, basket *entity.Basket, order *entity.Order, processor entity.PaymentProcessor) error
}

// Service agrupa los comandos de reconciliación.
type Service struct {
	cfg       config.BoletaConfig
	api       boleta.VentasAPI
	tokens    fulfill.TokenSource
	emitter   fulfill.Emitter
	placer    OrderPlacer
	gateway   payment.Gateway
	orders    repository.OrderRepository
	baskets   repository.BasketRepository
	boletas   repository.BoletaRepository
	billing   repository.BillingInfoRepository
	errors    repository.BoletaErrorRepository
	responses repository.ProcessorResponseRepository
	mailer    Mailer
	log       *logger.Logger
	outDir    string // directorio de los reportes CSV
}

// NewService construye el servicio de reconciliación. outDir es el directorio
// donde se escriben los reportes CSV.
func NewService(
	cfg config.BoletaConfig,
	api boleta.VentasAPI,
	tokens fulfill.TokenSource,
	emitter fulfill.Emitter,
	placer OrderPlacer,
	gateway payment.Gateway,
	orders repository.OrderRepository,
	baskets repository.BasketRepository,
	boletas repository.BoletaRepository,
	billing repository.BillingInfoRepository,
	errorRepo repository.BoletaErrorRepository,
	responses repository.ProcessorResponseRepository,
	mailer Mailer,
	log *logger.Logger,
	outDir string,
) *Service {
	return &Service{
		cfg:       cfg,
		api:       api,
		tokens:    tokens,
		emitter:   emitter,
		placer:    placer,
		gateway:   gateway,
		orders:    orders,
		baskets:   baskets,
		boletas:   boletas,
		billing:   billing,
		errors:    errorRepo,
		responses: responses,
		mailer:    mailer,
		log:       log,
		outDir:    outDir,
	}
}

// EmissionsOptions parámetros del comando boleta-emissions.
type EmissionsOptions struct {
	DryRun       bool
	Processor    entity.PaymentProcessor
	OrderNumbers []string
}

// EmissionsReport conteo final de la corrida.
type EmissionsReport struct {
	Completed int
	Failed    int
}

// Emissions emite boletas para órdenes completas que no la tienen. Excluye
// las órdenes cuyo billing info ya enlaza una boleta (defensa contra la
// carrera en que la boleta existe pero la asociación no se escribió). Al final
// envía un solo correo con los errores acumulados y vacía la cola.
func (s *Service) Emissions(ctx context.Context, opts EmissionsOptions) (*EmissionsReport, error) {
	report := &EmissionsReport{}
	if !s.cfg.Enabled {
		s.log.Error().Msg("la integración de boletas está desactivada; habilítela para correr este comando")
		return report, nil
	}

	orders, err := s.orders.ListCompletedWithoutBoleta(ctx, opts.Processor, opts.OrderNumbers)
	if err != nil {
		return nil, fmt.Errorf("listar órdenes sin boleta: %w", err)
	}

	for _, order := range orders {
		linked, err := s.billing.HasLinkedBoleta(ctx, order.BasketID)
		if err != nil {
			report.Failed++
			s.log.Error().Err(err).Str("order_number", order.Number).Msg("error consultando el billing info")
			continue
		}
		if linked {
			s.log.Warn().Str("order_number", order.Number).
				Msg("la orden está completa pero sin la asociación correcta con su boleta")
			continue
		}

		basket, err := s.baskets.GetByID(ctx, order.BasketID)
		if err != nil {
			report.Failed++
			s.log.Error().Err(err).Str("order_number", order.Number).Msg("error recuperando el carrito")
			continue
		}

		if !opts.DryRun {
			if err := s.emitOne(ctx, basket, order, opts.Processor); err != nil {
				report.Failed++
				if errors.Is(err, domain.ErrVentasConexion) {
					s.log.Warn().Err(err).Str("order_number", order.Number).
						Msg("no fue posible conectar con la API de Ventas")
				} else {
					s.log.Warn().Err(err).Str("order_number", order.Number).
						Msg("error procesando la boleta de la orden")
				}
				continue
			}
		}
		report.Completed++
		s.log.Info().Str("order_number", order.Number).Str("amount_clp", order.TotalInclTax.String()).
			Msg("boleta completada para la orden")
	}

	if !opts.DryRun {
		s.flushErrorDigest(ctx)
	}

	s.log.Info().Int("completed", report.Completed).Int("failed", report.Failed).
		Int("total", report.Completed+report.Failed).Msg("corrida de boleta-emissions terminada")
	return report, nil
}

func (s *Service) emitOne(ctx context.Context, basket *entity.Basket, order *entity.Order, processor entity.PaymentProcessor) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}
	_, err = s.emitter.Emit(ctx, basket, order, token, processor)
	return err
}

// flushErrorDigest agrega todos los errores encolados en un correo y los
// elimina solo si el envío tuvo éxito.
func (s *Service) flushErrorDigest(ctx context.Context) {
	messages, err := s.errors.ListAll(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("error leyendo la cola de errores")
		return
	}
	if len(messages) == 0 {
		return
	}

	body := fmt.Sprintf(
		"Lugar: comando boleta-emissions\nDescripción: Hubieron errores al generar las boletas\n\nEn total %d error(es)\n",
		len(messages))
	for _, m := range messages {
		body += fmt.Sprintf("Orden %s, código %d, mensaje:\n%s\n", m.OrderNumber, m.Code, m.Content)
	}
	if err := s.mailer.SendAlert("Boleta Electronica API Error(s)", body); err != nil {
		s.log.Error().Err(err).Msg("no fue posible enviar el correo de errores; la cola se conserva")
		return
	}
	if err := s.errors.DeleteAll(ctx); err != nil {
		s.log.Error().Err(err).Msg("no fue posible vaciar la cola de errores")
	}
}

// Complete re-consulta el detalle remoto de boletas con folio o fecha de
// emisión pendientes (o de una lista explícita de vouchers) y respalda los
// campos. Las fallas por boleta se registran y el batch continúa.
func (s *Service) Complete(ctx context.Context, voucherIDs []string, dryRun bool) error {
	if !s.cfg.Enabled {
		s.log.Error().Msg("la integración de boletas está desactivada; habilítela para correr este comando")
		return nil
	}

	var pending []*entity.BoletaElectronica
	if len(voucherIDs) > 0 {
		for _, id := range voucherIDs {
			b, err := s.boletas.GetByVoucherID(ctx, id)
			if err != nil {
				s.log.Error().Err(err).Str("voucher_id", id).Msg("error recuperando la boleta; se omite")
				continue
			}
			pending = append(pending, b)
		}
	} else {
		var err error
		pending, err = s.boletas.ListIncomplete(ctx)
		if err != nil {
			return fmt.Errorf("listar boletas incompletas: %w", err)
		}
	}

	if len(pending) == 0 {
		s.log.Info().Msg("no hay boletas que completar")
		return nil
	}

	for _, b := range pending {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			s.log.Error().Err(err).Str("voucher_id", b.VoucherID).Msg("error autenticando con la API de Ventas")
			continue
		}
		details, err := s.api.GetSaleDetails(ctx, b.VoucherID, token)
		if err != nil {
			s.log.Error().Err(err).Str("voucher_id", b.VoucherID).Msg("algo falló actualizando la boleta")
			continue
		}
		boleta.ApplyDetails(b, details)
		if dryRun {
			s.log.Info().Str("voucher_id", b.VoucherID).Str("folio", b.Folio).
				Msg("dry-run: detalle recuperado, sin escribir")
			continue
		}
		if err := s.boletas.UpdateDetails(ctx, b); err != nil {
			s.log.Error().Err(err).Str("voucher_id", b.VoucherID).Msg("algo falló actualizando la boleta")
			continue
		}
		s.log.Info().Str("voucher_id", b.VoucherID).Msg("detalle de boleta recuperado")
	}
	return nil
}

// FulfillOrders coloca manualmente órdenes cuya notificación del webhook se
// perdió: toma la respuesta de auditoría más reciente del número de orden,
// sintetiza un pago autorizado y replica el camino normal de colocación y
// emisión. Las órdenes ya colocadas son un no-op registrado.
func (s *Service) FulfillOrders(ctx context.Context, orderNumbers []string) error {
	for _, number := range orderNumbers {
		if err := s.fulfillOne(ctx, number); err != nil {
			s.log.Error().Err(err).Str("order_number", number).Msg("error procesando la orden")
		}
	}
	return nil
}

func (s *Service) fulfillOne(ctx context.Context, number string) error {
	rows, err := s.responses.ListByTransactionID(ctx, entity.Webpay, number)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("sin respuestas registradas para la orden %s: %w", number, domain.ErrNotFound)
	}
	if len(rows) > 1 {
		s.log.Warn().Int("count", len(rows)).Str("order_number", number).
			Msg("hay varias respuestas; se usa la más reciente para recuperar el carrito")
	}
	if rows[0].BasketID == nil {
		return fmt.Errorf("la respuesta de la orden %s no referencia un carrito: %w", number, domain.ErrNotFound)
	}

	basket, err := s.baskets.GetByID(ctx, *rows[0].BasketID)
	if err != nil {
		return err
	}

	exists, err := s.orders.ExistsByNumber(ctx, number)
	if err != nil {
		return err
	}
	if exists {
		s.log.Info().Str("order_number", number).Msg("la orden ya estaba completada")
		return nil
	}

	handled := &entity.HandledPayment{
		TransactionID: number,
		Total:         basket.TotalInclTax,
		Currency:      "CLP",
		CardNumber:    fmt.Sprintf("webpay_%d", basket.ID),
	}
	order, err := s.placer.PlaceOrder(ctx, basket, handled)
	if err != nil {
		if fulfill.IsAlreadyPlaced(err) {
			s.log.Info().Str("order_number", number).Msg("la orden ya estaba completada")
			return nil
		}
		return err
	}
	return s.placer.EmitIfEnabled(ctx, basket, order, entity.Webpay)
}

// InspectWebpay consulta el estado crudo de transacciones en el gateway, sin
// mutar estado. Acepta tokens directos, números de orden (resueltos a tokens
// vía las respuestas de auditoría) y el email de un usuario (sus carritos
// congelados).
func (s *Service) InspectWebpay(ctx context.Context, tokens, orderNumbers []string, userEmail string) error {
	s.logTokens(ctx, tokens)

	for _, number := range orderNumbers {
		s.log.Info().Str("order_number", number).Msg("consultando orden")
		rows, err := s.responses.ListByTransactionID(ctx, entity.Webpay, number)
		if err != nil || len(rows) == 0 {
			s.log.Error().Str("order_number", number).Msg("sin respuestas registradas para la orden")
			continue
		}
		s.logTokens(ctx, tokensOf(rows))
	}

	if userEmail != "" {
		s.log.Info().Str("user", userEmail).Msg("buscando transacciones del usuario")
		baskets, err := s.baskets.ListFrozenByOwnerEmail(ctx, userEmail)
		if err != nil {
			return err
		}
		s.log.Info().Int("count", len(baskets)).Str("user", userEmail).
			Msg("carritos congelados encontrados")
		for _, b := range baskets {
			rows, err := s.responses.ListTaggedByBasket(ctx, entity.Webpay, b.ID)
			if err != nil || len(rows) == 0 {
				s.log.Error().Int64("basket_id", b.ID).Msg("sin respuestas registradas para el carrito")
				continue
			}
			s.logTokens(ctx, tokensOf(rows))
		}
	}
	return nil
}

func (s *Service) logTokens(ctx context.Context, tokens []string) {
	for _, token := range tokens {
		result, err := s.gateway.TransactionStatus(ctx, token)
		if err != nil {
			s.log.Error().Err(err).Str("token", token).Msg("el servicio no respondió para el token")
			continue
		}
		s.log.Info().Str("token", token).Str("status", result.Status).
			Str("buy_order", result.BuyOrder).Str("amount", result.Amount.String()).
			Msg("estado recuperado")
	}
}

func tokensOf(rows []*entity.PaymentProcessorResponse) []string {
	var out []string
	for _, r := range rows {
		if token := r.ResponseToken(); token != "" {
			out = append(out, token)
		}
	}
	return out
}
