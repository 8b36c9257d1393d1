// Package payment implementa la máquina de estados de una transacción Webpay:
// iniciar con el gateway → registrar el token → al recibir la notificación,
// consultar estado → verificar monto → commit → verificar el commit → detectar
// doble procesamiento → entregar un pago normalizado.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
	"github.com/open-uchile/ecommerce/internal/infrastructure/webpay"
	"github.com/open-uchile/ecommerce/pkg/rut"
)

// Gateway operaciones del servicio de conexión a Webpay que el procesador usa.
type Gateway interface {
	Process(ctx context.Context, orderNumber string, totalInclTax decimal.Decimal) (*webpay.ProcessResult, error)
	TransactionStatus(ctx context.Context, token string) (*webpay.TransactionResult, error)
	GetTransaction(ctx context.Context, token string) (*webpay.TransactionResult, error)
}

// Mailer alertas operacionales por caídas del gateway.
type Mailer interface {
	SendAlert(subject, body string) error
}

// BillingForm datos de identidad y dirección que el comprador entrega al
// iniciar el pago.
type BillingForm struct {
	IDOption        entity.IDType
	IDNumber        string
	IDOther         string
	FirstName       string
	LastName1       string
	LastName2       string
	BillingCountry  string
	BillingCity     string
	BillingDistrict string
	BillingAddress  string
}

// InitiateResult parámetros para redirigir al comprador a la página de pago.
type InitiateResult struct {
	PaymentPageURL string
	Token          string
}

// WebpayProcessor orquesta el ciclo de vida de la transacción.
type WebpayProcessor struct {
	gateway     Gateway
	responses   repository.ProcessorResponseRepository
	billing     repository.BillingInfoRepository
	orders      repository.OrderRepository
	baskets     repository.BasketRepository
	conversions repository.ConversionRepository
	mailer      Mailer
}

// NewWebpayProcessor construye el procesador.
func NewWebpayProcessor(
	gateway Gateway,
	responses repository.ProcessorResponseRepository,
	billing repository.BillingInfoRepository,
	orders repository.OrderRepository,
	baskets repository.BasketRepository,
	conversions repository.ConversionRepository,
	mailer Mailer,
) *WebpayProcessor {
	return &WebpayProcessor{
		gateway:     gateway,
		responses:   responses,
		billing:     billing,
		orders:      orders,
		baskets:     baskets,
		conversions: conversions,
		mailer:      mailer,
	}
}

// Initiate crea la transacción en el gateway y devuelve la URL de pago.
// Valida el RUT antes de cualquier llamada externa, registra la respuesta de
// auditoría y persiste el billing info del carrito.
func (p *WebpayProcessor) Initiate(ctx context.Context, basket *entity.Basket, form *BillingForm) (*InitiateResult, error) {
	// Carritos ya sometidos no deben registrar respuestas ni billing info.
	if basket.Status == entity.BasketStatusSubmitted {
		return nil, fmt.Errorf("carrito %d: %w", basket.ID, domain.ErrBasketSometida)
	}

	idNumber := form.IDNumber
	if form.IDOption == entity.IDTypeRUT {
		normalized, err := rut.Normalize(idNumber)
		if err != nil || !rut.Validate(normalized) {
			return nil, fmt.Errorf("RUT %q no pasó la validación: %w", form.IDNumber, domain.ErrInvalidInput)
		}
		idNumber = normalized
	}

	result, err := p.gateway.Process(ctx, basket.OrderNumber, basket.TotalInclTax)
	if err != nil {
		if errors.Is(err, domain.ErrGateway) {
			p.alertGatewayDown("crear la petición inicial", err)
		}
		return nil, err
	}

	if result.Token == "" {
		p.record(ctx, basket.ID, nil, map[string]any{"token": result.Token, "url": result.URL})
		return nil, &domain.TransactionDeclinedError{Code: -1,
			Message: fmt.Sprintf("Webpay declinó crear el pago del carrito %d", basket.ID)}
	}

	p.record(ctx, basket.ID, &basket.OrderNumber, map[string]any{"token": result.Token, "url": result.URL})

	if err := p.upsertBillingInfo(ctx, basket, form, idNumber, entity.Webpay); err != nil {
		return nil, err
	}

	return &InitiateResult{PaymentPageURL: result.URL, Token: result.Token}, nil
}

// TransactionStatus consulta el estado del token sin hacer commit. Registra
// una respuesta de auditoría sin carrito ni transaction id.
func (p *WebpayProcessor) TransactionStatus(ctx context.Context, token string) (*webpay.TransactionResult, error) {
	result, err := p.gateway.TransactionStatus(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrGateway) {
			p.alertGatewayDown("obtener el estado del token, previo a commit", err)
		}
		return nil, err
	}
	if err := p.responses.Create(ctx, &entity.PaymentProcessorResponse{
		ProcessorName: entity.Webpay,
		Response:      result.Raw(),
	}); err != nil {
		return nil, fmt.Errorf("registrar respuesta de estado: %w", err)
	}
	return result, nil
}

// Commit confirma la transacción en el gateway.
func (p *WebpayProcessor) Commit(ctx context.Context, token string) (*webpay.TransactionResult, error) {
	result, err := p.gateway.GetTransaction(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrGateway) {
			p.alertGatewayDown("confirmar la transacción", err)
		}
		return nil, err
	}
	return result, nil
}

// HandleNotification procesa la notificación del gateway y completa la
// transacción si corresponde.
//
// Parte 1: la transacción debe venir INITIALIZED con el monto exacto del
// carrito (comparación decimal, sin tolerancia) y sin una orden previa para el
// mismo número. Parte 2: tras el commit el estado debe ser AUTHORIZED con
// código de respuesta cero y el mismo monto; antes de declarar éxito se
// recuentan las respuestas de auditoría sin transaction id del carrito — más
// de una AUTHORIZED delata una doble autorización y fuerza ErrRefundRequired.
func (p *WebpayProcessor) HandleNotification(ctx context.Context, status *webpay.TransactionResult, basket *entity.Basket) (*entity.HandledPayment, error) {
	if status.Status != entity.WebpayStatusInitialized {
		return nil, &domain.TransactionDeclinedError{Code: status.ResponseCode,
			Message: fmt.Sprintf("transacción %s no inicializada", basket.OrderNumber)}
	}
	if !status.Amount.Equal(basket.TotalInclTax) {
		return nil, fmt.Errorf("transacción %s notifica %s y el carrito vale %s: %w",
			basket.OrderNumber, status.Amount, basket.TotalInclTax, domain.ErrPartialAuthorization)
	}

	exists, err := p.orders.ExistsByNumber(ctx, basket.OrderNumber)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("orden %s: %w", basket.OrderNumber, domain.ErrAlreadyProcessed)
	}

	committed, err := p.Commit(ctx, status.Token)
	if err != nil {
		return nil, err
	}

	// El voucher de autorización y la respuesta cruda quedan registrados
	// aunque la verificación posterior falle.
	if err := p.baskets.SetAuthorizationCode(ctx, basket.ID, committed.AuthorizationCode); err != nil {
		return nil, err
	}
	basket.AuthorizationCode = committed.AuthorizationCode
	p.record(ctx, basket.ID, nil, committed.Raw())

	if committed.Status != entity.WebpayStatusAuthorized || committed.ResponseCode != 0 {
		return nil, &domain.TransactionDeclinedError{Code: committed.ResponseCode,
			Message: fmt.Sprintf("transacción %s no autorizada", basket.OrderNumber)}
	}
	if !committed.Amount.Equal(basket.TotalInclTax) {
		return nil, fmt.Errorf("transacción %s confirmó %s y el carrito vale %s: %w",
			basket.OrderNumber, committed.Amount, basket.TotalInclTax, domain.ErrRefundRequired)
	}

	authorized, err := p.countAuthorized(ctx, basket.ID)
	if err != nil {
		return nil, err
	}
	if authorized > 1 {
		return nil, fmt.Errorf("transacción %s registra %d autorizaciones: %w",
			basket.OrderNumber, authorized, domain.ErrRefundRequired)
	}

	// Reasociar el procesador final (revierte la asociación paypal si el
	// comprador cambió de método a mitad de camino).
	if err := p.AssociateProcessor(ctx, basket, entity.Webpay); err != nil {
		return nil, err
	}

	return &entity.HandledPayment{
		TransactionID: basket.OrderNumber,
		Total:         basket.TotalInclTax,
		Currency:      "CLP",
		CardNumber:    fmt.Sprintf("webpay_%d", basket.ID),
	}, nil
}

// AssociateProcessor actualiza el procesador del billing info del carrito y
// ajusta la asociación con la tasa paypal si el procesador cambió.
func (p *WebpayProcessor) AssociateProcessor(ctx context.Context, basket *entity.Basket, processor entity.PaymentProcessor) error {
	info, err := p.billing.MostRecentByBasket(ctx, basket.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Sin billing info no hay nada que reasociar; la emisión de la
			// boleta reportará el problema.
			return nil
		}
		return err
	}
	previous := info.PaymentProcessor
	info.PaymentProcessor = processor
	if err := p.billing.Update(ctx, info); err != nil {
		return err
	}
	return p.flipConversion(ctx, basket.ID, previous, processor)
}

func (p *WebpayProcessor) upsertBillingInfo(ctx context.Context, basket *entity.Basket, form *BillingForm, idNumber string, processor entity.PaymentProcessor) error {
	previous := entity.Webpay

	info, err := p.billing.MostRecentByBasket(ctx, basket.ID)
	switch {
	case err == nil:
		// Las peticiones a veces se duplican: sobre-escribimos el registro
		// existente en vez de crear otro.
		previous = info.PaymentProcessor
		applyForm(info, form, idNumber, processor)
		if err := p.billing.Update(ctx, info); err != nil {
			return err
		}
	case errors.Is(err, domain.ErrNotFound):
		info = &entity.UserBillingInfo{BasketID: &basket.ID}
		applyForm(info, form, idNumber, processor)
		if err := p.billing.Create(ctx, info); err != nil {
			return err
		}
	default:
		return err
	}

	return p.flipConversion(ctx, basket.ID, previous, processor)
}

// flipConversion asocia o desasocia el carrito de la tasa paypal vigente
// según la dirección del cambio de procesador.
func (p *WebpayProcessor) flipConversion(ctx context.Context, basketID int64, previous, current entity.PaymentProcessor) error {
	if previous == current {
		return nil
	}
	rate, err := p.conversions.LatestPaypalRate(ctx)
	if err != nil {
		return fmt.Errorf("sin tasa CLP/USD de paypal definida: %w", err)
	}
	if previous == entity.Webpay && current == entity.Paypal {
		return p.conversions.LinkBasketToPaypalRate(ctx, rate.ID, basketID)
	}
	if previous == entity.Paypal && current == entity.Webpay {
		return p.conversions.UnlinkBasketFromPaypalRate(ctx, rate.ID, basketID)
	}
	return nil
}

func (p *WebpayProcessor) countAuthorized(ctx context.Context, basketID int64) (int, error) {
	rows, err := p.responses.ListUntaggedByBasket(ctx, basketID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, row := range rows {
		if row.ResponseStatus() == entity.WebpayStatusAuthorized {
			count++
		}
	}
	return count, nil
}

func (p *WebpayProcessor) record(ctx context.Context, basketID int64, transactionID *string, response map[string]any) {
	_ = p.responses.Create(ctx, &entity.PaymentProcessorResponse{
		ProcessorName: entity.Webpay,
		TransactionID: transactionID,
		BasketID:      &basketID,
		Response:      response,
	})
}

func (p *WebpayProcessor) alertGatewayDown(place string, err error) {
	body := fmt.Sprintf(
		"Lugar: procesador de pago webpay.\nDescripción: El servicio de conexión a Webpay falló al %s.\nError: %v\nEn caso de error 500 revisar los logs del servicio.\nSi el error es 403 las llaves de autenticación se encuentran mal configuradas.",
		place, err)
	_ = p.mailer.SendAlert("Webpay Service Error", body)
}

func applyForm(info *entity.UserBillingInfo, form *BillingForm, idNumber string, processor entity.PaymentProcessor) {
	info.BillingCountryISO2 = form.BillingCountry
	info.BillingCity = form.BillingCity
	info.BillingDistrict = form.BillingDistrict
	info.BillingAddress = form.BillingAddress
	info.FirstName = form.FirstName
	info.LastName1 = form.LastName1
	info.LastName2 = form.LastName2
	info.IDNumber = idNumber
	info.IDOption = form.IDOption
	info.IDOther = form.IDOther
	info.PaymentProcessor = processor
}
