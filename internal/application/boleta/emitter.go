package boleta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
	"github.com/open-uchile/ecommerce/internal/infrastructure/ventas"
	"github.com/open-uchile/ecommerce/pkg/config"
	"github.com/open-uchile/ecommerce/pkg/logger"
)

// Nombre de ítem convenido con el área contable. El título del curso va en la
// descripción adicional.
const itemName = "Certificado: curso de formación en extensión"

// EmitResult identificadores de la boleta recién emitida.
type EmitResult struct {
	VoucherID  string
	ReceiptURL string
}

// Emitter orquesta la emisión de boletas: resuelve el billing info, calcula el
// precio facturable, arma el payload, lo envía a Ventas y persiste el registro
// local. El detalle remoto (folio, fecha, monto) se completa best-effort; si
// falla queda para el comando complete-boleta.
type Emitter struct {
	cfg         config.BoletaConfig
	api         VentasAPI
	billingRepo repository.BillingInfoRepository
	boletaRepo  repository.BoletaRepository
	errorRepo   repository.BoletaErrorRepository
	conversions repository.ConversionRepository
	mailer      Mailer
	log         *logger.Logger
}

// NewEmitter construye el emisor.
func NewEmitter(
	cfg config.BoletaConfig,
	api VentasAPI,
	billingRepo repository.BillingInfoRepository,
	boletaRepo repository.BoletaRepository,
	errorRepo repository.BoletaErrorRepository,
	conversions repository.ConversionRepository,
	mailer Mailer,
	log *logger.Logger,
) *Emitter {
	return &Emitter{
		cfg:         cfg,
		api:         api,
		billingRepo: billingRepo,
		boletaRepo:  boletaRepo,
		errorRepo:   errorRepo,
		conversions: conversions,
		mailer:      mailer,
		log:         log,
	}
}

// Emit emite la boleta de una orden pagada. Falla si el carrito no tiene
// billing info, si tiene más de una línea (sin soporte multi-producto) o si la
// API de Ventas rechaza la venta; en ese último caso el error queda encolado
// en BoletaErrorMessage para el correo agregado.
func (e *Emitter) Emit(ctx context.Context, basket *entity.Basket, order *entity.Order, bearerToken string, processor entity.PaymentProcessor) (*EmitResult, error) {
	info, err := e.billingRepo.MostRecentUnlinked(ctx, basket.ID, processor)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("boleta: carrito %d sin billing info para %s: %w", basket.ID, processor, err)
		}
		return nil, err
	}

	if len(basket.Lines) != 1 {
		return nil, fmt.Errorf("boleta: carrito %d con %d líneas; la emisión soporta solo un producto: %w",
			basket.ID, len(basket.Lines), domain.ErrInvalidInput)
	}
	line := basket.Lines[0]

	payload, err := e.buildPayload(ctx, basket, order, info, line, processor)
	if err != nil {
		return nil, err
	}

	result, err := e.api.CreateSale(ctx, payload, bearerToken)
	if err != nil {
		e.enqueueError(ctx, basket.OrderNumber, err)
		return nil, err
	}

	boleta := &entity.BoletaElectronica{
		VoucherID:  result.ID,
		BasketID:   &basket.ID,
		ReceiptURL: e.api.PDFURL(result.ID),
	}
	if err := e.boletaRepo.Create(ctx, boleta); err != nil {
		return nil, fmt.Errorf("boleta: persistir voucher %s: %w", result.ID, err)
	}
	if err := e.billingRepo.LinkBoleta(ctx, info.ID, result.ID); err != nil {
		return nil, fmt.Errorf("boleta: enlazar billing info %d: %w", info.ID, err)
	}

	if e.cfg.SendEmail {
		e.notifyUser(order, line)
	}

	e.backfillDetails(ctx, boleta, bearerToken)

	if processor == entity.Paypal {
		e.linkConversion(ctx, result.ID)
	}

	return &EmitResult{VoucherID: result.ID, ReceiptURL: boleta.ReceiptURL}, nil
}

// buildPayload arma el cuerpo del POST /ventas según el contrato acordado con
// el área contable de la universidad.
func (e *Emitter) buildPayload(ctx context.Context, basket *entity.Basket, order *entity.Order, info *entity.UserBillingInfo, line entity.BasketLine, processor entity.PaymentProcessor) (*ventas.SalePayload, error) {
	// Receptor anónimo por regulación cuando el comprador no informa RUT.
	rut := info.IDNumber
	if info.IDOption != entity.IDTypeRUT {
		rut = entity.RUTAnonimo
	}

	chargedRate, billableRate := decimal.NewFromInt(1), decimal.NewFromInt(1)
	if processor == entity.Paypal {
		charged, err := e.conversions.PaypalRateForBasket(ctx, basket.ID)
		if err != nil {
			return nil, fmt.Errorf("boleta: tasa paypal del carrito %d: %w", basket.ID, err)
		}
		billable, err := e.conversions.LatestBoletaRate(ctx)
		if err != nil {
			return nil, fmt.Errorf("boleta: tasa de facturación vigente: %w", err)
		}
		chargedRate, billableRate = charged.CLPPerUSD, billable.CLPPerUSD
	}
	unit, total := BillablePrice(line, order, processor, chargedRate, billableRate)

	receptor := ventas.Receptor{
		Nombre:          info.FirstName,
		ApellidoPaterno: info.LastName1,
		ApellidoMaterno: info.LastName2,
		RUT:             rut,
	}
	// Campos de dirección opcionales para el servicio 3; solo aplican en Chile.
	if info.BillingCountryISO2 == "CL" {
		receptor.Ciudad = truncate(info.BillingCity, 20)
		receptor.Comuna = truncate(info.BillingDistrict, 20)
		receptor.Direccion = truncate(info.BillingAddress, 70)
	}

	payload := &ventas.SalePayload{
		DatosBoleta: ventas.DatosBoleta{
			Afecta: false,
			Detalle: []ventas.DetalleVenta{{
				CantidadItem:       int(line.Quantity),
				CentroCosto:        e.cfg.CentroCostos,
				CuentaContable:     e.cfg.CuentaContable,
				DescripcionItem:    PackParagraphs("Curso: "+line.ProductTitle, basket.OrderNumber),
				IdentificadorProd:  line.ProductID,
				Impuesto:           0.0,
				IndicadorExencion:  1, // producto exento o no afecto
				NombreItem:         itemName,
				PrecioUnitarioItem: unit.IntPart(),
				UnidadMedidaItem:   "",
			}},
			IndicadorServicio: 3, // boletas de venta y servicios
			Receptor:          receptor,
			Referencia: []ventas.Referencia{{
				CodigoCaja:       "eceol",
				CodigoReferencia: basket.OrderNumber,
				CodigoVendedor:   "INTERNET",
				RazonReferencia:  fmt.Sprintf("Orden de compra: %d", line.ProductID),
			}},
			SaldoAnterior: 0,
		},
		PuntoVenta: ventas.PuntoVenta{
			// rutCajero transporta el número de orden para poder cruzar los
			// inventarios local y remoto en la reconciliación.
			RutCajero:        basket.OrderNumber,
			CuentaCorriente:  true, // requerido para poder anular la venta
			IdentificadorPos: e.cfg.IdentificadorPos,
			Sucursal: ventas.Sucursal{
				Codigo:      e.cfg.Sucursal,
				Comuna:      "Santiago",
				Direccion:   "Diagonal Paraguay Nº 257",
				Reparticion: e.cfg.Reparticion,
			},
		},
		Recaudaciones: []ventas.Recaudacion{{
			Monto:    total.IntPart(),
			TipoPago: "Tarjeta de Crédito",
			Voucher:  basket.AuthorizationCode,
		}},
	}
	return payload, nil
}

// backfillDetails intenta completar folio, fecha de emisión y monto. Una falla
// se registra y se traga: el comando complete-boleta lo reintenta después.
func (e *Emitter) backfillDetails(ctx context.Context, boleta *entity.BoletaElectronica, bearerToken string) {
	details, err := e.api.GetSaleDetails(ctx, boleta.VoucherID, bearerToken)
	if err != nil {
		e.log.Warn().Err(err).Str("voucher_id", boleta.VoucherID).
			Msg("no fue posible recuperar el detalle de la boleta; se completará después")
		return
	}
	ApplyDetails(boleta, details)
	if err := e.boletaRepo.UpdateDetails(ctx, boleta); err != nil {
		e.log.Warn().Err(err).Str("voucher_id", boleta.VoucherID).
			Msg("no fue posible respaldar el detalle de la boleta")
	}
}

// ApplyDetails copia folio, fecha de emisión y monto del detalle remoto al
// registro local. Lo comparte el comando complete-boleta.
func ApplyDetails(boleta *entity.BoletaElectronica, details *ventas.SaleDetails) {
	boleta.Folio = details.Boleta.Folio
	if details.Boleta.FechaEmision != "" {
		if t, err := time.Parse("2006-01-02T15:04:05", details.Boleta.FechaEmision); err == nil {
			boleta.EmissionDate = &t
		}
	}
	if len(details.Recaudaciones) > 0 {
		if monto, err := details.Recaudaciones[0].Monto.Int64(); err == nil {
			boleta.Amount = monto
		}
	}
}

// enqueueError encola la falla para el correo agregado de boleta-emissions.
func (e *Emitter) enqueueError(ctx context.Context, orderNumber string, apiErr error) {
	msg := &entity.BoletaErrorMessage{
		OrderNumber: orderNumber,
		Content:     apiErr.Error(),
	}
	var boletaErr *domain.BoletaAPIError
	if errors.As(apiErr, &boletaErr) {
		msg.Code = boletaErr.StatusCode
		msg.Content = boletaErr.Body
	}
	if err := e.errorRepo.Create(ctx, msg); err != nil {
		e.log.Error().Err(err).Str("order_number", orderNumber).
			Msg("no fue posible encolar el error de la API de Ventas")
	}
}

func (e *Emitter) notifyUser(order *entity.Order, line entity.BasketLine) {
	body := fmt.Sprintf(
		"<p>Su boleta electrónica por el curso <b>%s</b> (orden %s) ya se encuentra disponible en su página de compras.</p>",
		line.ProductTitle, order.Number)
	if err := e.mailer.SendUserNotification(order.UserEmail, "Su boleta electrónica está disponible", body); err != nil {
		e.log.Error().Err(err).Str("order_number", order.Number).
			Msg("no fue posible enviar la notificación de boleta al comprador")
	}
}

func (e *Emitter) linkConversion(ctx context.Context, voucherID string) {
	rate, err := e.conversions.LatestBoletaRate(ctx)
	if err != nil {
		e.log.Error().Err(err).Str("voucher_id", voucherID).
			Msg("no fue posible asociar la boleta a la tasa de facturación")
		return
	}
	if err := e.conversions.LinkBoletaToRate(ctx, rate.ID, voucherID); err != nil {
		e.log.Error().Err(err).Str("voucher_id", voucherID).
			Msg("no fue posible asociar la boleta a la tasa de facturación")
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
