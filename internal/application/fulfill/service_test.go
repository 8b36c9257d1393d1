package fulfill

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-uchile/ecommerce/internal/application/boleta"
	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/domain/repository"
	"github.com/open-uchile/ecommerce/pkg/config"
	"github.com/open-uchile/ecommerce/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

type memOrderRepo struct {
	orders map[string]*entity.Order
}

func (m *memOrderRepo) GetByNumber(ctx context.Context, n string) (*entity.Order, error) {
	o, ok := m.orders[n]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o, nil
}
func (m *memOrderRepo) ExistsByNumber(ctx context.Context, n string) (bool, error) {
	_, ok := m.orders[n]
	return ok, nil
}
func (m *memOrderRepo) Create(ctx context.Context, o *entity.Order) error {
	m.orders[o.Number] = o
	return nil
}
func (m *memOrderRepo) ListCompletedWithoutBoleta(ctx context.Context, p entity.PaymentProcessor, numbers []string) ([]*entity.Order, error) {
	return nil, nil
}

type memBasketRepo struct {
	statuses map[int64]string
}

func (m *memBasketRepo) GetByID(ctx context.Context, id int64) (*entity.Basket, error) {
	return nil, domain.ErrNotFound
}
func (m *memBasketRepo) SetAuthorizationCode(ctx context.Context, id int64, code string) error {
	return nil
}
func (m *memBasketRepo) SetStatus(ctx context.Context, id int64, status string) error {
	m.statuses[id] = status
	return nil
}
func (m *memBasketRepo) ListFrozenByOwnerEmail(ctx context.Context, email string) ([]*entity.Basket, error) {
	return nil, nil
}

type memResponseRepo struct {
	rows []*entity.PaymentProcessorResponse
}

func (m *memResponseRepo) Create(ctx context.Context, r *entity.PaymentProcessorResponse) error {
	m.rows = append(m.rows, r)
	return nil
}
func (m *memResponseRepo) ListByTransactionID(ctx context.Context, p entity.PaymentProcessor, txID string) ([]*entity.PaymentProcessorResponse, error) {
	return nil, nil
}
func (m *memResponseRepo) ListUntaggedByBasket(ctx context.Context, id int64) ([]*entity.PaymentProcessorResponse, error) {
	return nil, nil
}
func (m *memResponseRepo) ListTaggedByBasket(ctx context.Context, p entity.PaymentProcessor, id int64) ([]*entity.PaymentProcessorResponse, error) {
	return nil, nil
}

// fakeTxRunner ejecuta el callback con los repos en memoria, sin transacción
// real; registra si el callback falló.
type fakeTxRunner struct {
	orders    *memOrderRepo
	baskets   *memBasketRepo
	responses *memResponseRepo
}

func (f *fakeTxRunner) RunPlacement(ctx context.Context, fn func(
	repository.OrderRepository, repository.BasketRepository, repository.ProcessorResponseRepository) error) error {
	return fn(f.orders, f.baskets, f.responses)
}

type fakeEmitter struct {
	err   error
	calls int
}

func (f *fakeEmitter) Emit(ctx context.Context, basket *entity.Basket, order *entity.Order, token string, p entity.PaymentProcessor) (*boleta.EmitResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &boleta.EmitResult{VoucherID: "v-1", ReceiptURL: "u"}, nil
}

type fakeTokens struct{ err error }

func (f *fakeTokens) Token(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "tok", nil
}

type memErrorRepo struct {
	messages []*entity.BoletaErrorMessage
	deleted  []string
}

func (m *memErrorRepo) Create(ctx context.Context, msg *entity.BoletaErrorMessage) error {
	m.messages = append(m.messages, msg)
	return nil
}
func (m *memErrorRepo) ListAll(ctx context.Context) ([]*entity.BoletaErrorMessage, error) {
	return m.messages, nil
}
func (m *memErrorRepo) ListByOrderNumber(ctx context.Context, n string) ([]*entity.BoletaErrorMessage, error) {
	var out []*entity.BoletaErrorMessage
	for _, msg := range m.messages {
		if msg.OrderNumber == n {
			out = append(out, msg)
		}
	}
	return out, nil
}
func (m *memErrorRepo) DeleteAll(ctx context.Context) error { m.messages = nil; return nil }
func (m *memErrorRepo) DeleteByOrderNumber(ctx context.Context, n string) error {
	m.deleted = append(m.deleted, n)
	return nil
}

type fakeMailer struct{ alerts []string }

func (f *fakeMailer) SendAlert(subject, body string) error {
	f.alerts = append(f.alerts, subject)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func newService(cfg config.BoletaConfig, emitter *fakeEmitter, errs *memErrorRepo, mailer *fakeMailer) (*Service, *fakeTxRunner) {
	tx := &fakeTxRunner{
		orders:    &memOrderRepo{orders: map[string]*entity.Order{}},
		baskets:   &memBasketRepo{statuses: map[int64]string{}},
		responses: &memResponseRepo{},
	}
	svc := NewService(cfg, tx, emitter, &fakeTokens{}, errs, mailer, logger.Nop())
	svc.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	return svc, tx
}

func testBasket() *entity.Basket {
	return &entity.Basket{
		ID:           3,
		OwnerEmail:   "alumno@uchile.cl",
		OrderNumber:  "OPEN-100030",
		Status:       entity.BasketStatusFrozen,
		TotalInclTax: decimal.NewFromInt(12000),
	}
}

func testPayment() *entity.HandledPayment {
	return &entity.HandledPayment{
		TransactionID: "OPEN-100030",
		Total:         decimal.NewFromInt(12000),
		Currency:      "CLP",
		CardNumber:    "webpay_3",
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceOrder
// ──────────────────────────────────────────────────────────────────────────────

// Colocación feliz: orden creada, pago registrado y carrito sometido.
func TestPlaceOrder_Exitoso(t *testing.T) {
	svc, tx := newService(config.BoletaConfig{}, &fakeEmitter{}, &memErrorRepo{}, &fakeMailer{})

	order, err := svc.PlaceOrder(context.Background(), testBasket(), testPayment())
	require.NoError(t, err)

	assert.Equal(t, "OPEN-100030", order.Number)
	assert.Equal(t, entity.OrderStatusComplete, order.Status)
	assert.Contains(t, tx.orders.orders, "OPEN-100030")
	assert.Equal(t, entity.BasketStatusSubmitted, tx.baskets.statuses[3])
	require.Len(t, tx.responses.rows, 1)
	require.NotNil(t, tx.responses.rows[0].TransactionID)
	assert.Equal(t, "OPEN-100030", *tx.responses.rows[0].TransactionID)
}

// Replay: la orden ya existe y la colocación es un no-op con error idempotente.
func TestPlaceOrder_Idempotente(t *testing.T) {
	svc, tx := newService(config.BoletaConfig{}, &fakeEmitter{}, &memErrorRepo{}, &fakeMailer{})
	tx.orders.orders["OPEN-100030"] = &entity.Order{Number: "OPEN-100030"}

	_, err := svc.PlaceOrder(context.Background(), testBasket(), testPayment())
	require.ErrorIs(t, err, domain.ErrBasketSometida)
	assert.True(t, IsAlreadyPlaced(err))
	assert.Empty(t, tx.responses.rows, "el replay no registra un segundo pago")
}

// ──────────────────────────────────────────────────────────────────────────────
// EmitIfEnabled
// ──────────────────────────────────────────────────────────────────────────────

// Integración apagada o emisión inline desactivada: no se llama al emisor.
func TestEmitIfEnabled_Desactivado(t *testing.T) {
	emitter := &fakeEmitter{}
	svc, _ := newService(config.BoletaConfig{Enabled: true, GenerateOnPayment: false}, emitter, &memErrorRepo{}, &fakeMailer{})

	err := svc.EmitIfEnabled(context.Background(), testBasket(), &entity.Order{}, entity.Webpay)
	require.NoError(t, err)
	assert.Zero(t, emitter.calls)
}

// Emisión habilitada y exitosa.
func TestEmitIfEnabled_Emite(t *testing.T) {
	emitter := &fakeEmitter{}
	svc, _ := newService(config.BoletaConfig{Enabled: true, GenerateOnPayment: true}, emitter, &memErrorRepo{}, &fakeMailer{})

	err := svc.EmitIfEnabled(context.Background(), testBasket(), &entity.Order{Number: "OPEN-100030"}, entity.Webpay)
	require.NoError(t, err)
	assert.Equal(t, 1, emitter.calls)
}

// Falla sin halt: se consume la cola de errores, se envía el correo de
// soporte y la orden sigue adelante.
func TestEmitIfEnabled_FallaSinHalt(t *testing.T) {
	emitter := &fakeEmitter{err: &domain.BoletaAPIError{StatusCode: 500, Body: "error interno"}}
	errs := &memErrorRepo{messages: []*entity.BoletaErrorMessage{
		{Code: 500, OrderNumber: "OPEN-100030", Content: "error interno"},
	}}
	mailer := &fakeMailer{}
	svc, _ := newService(config.BoletaConfig{Enabled: true, GenerateOnPayment: true}, emitter, errs, mailer)

	err := svc.EmitIfEnabled(context.Background(), testBasket(), &entity.Order{Number: "OPEN-100030"}, entity.Webpay)
	require.NoError(t, err, "sin halt_on_failure la falla no aborta la orden")
	assert.Len(t, mailer.alerts, 1)
	assert.Equal(t, []string{"OPEN-100030"}, errs.deleted)
}

// Falla con halt: la orden aborta con el error de emisión.
func TestEmitIfEnabled_FallaConHalt(t *testing.T) {
	emitter := &fakeEmitter{err: &domain.BoletaAPIError{StatusCode: 500, Body: "error interno"}}
	svc, _ := newService(config.BoletaConfig{Enabled: true, GenerateOnPayment: true, HaltOnFailure: true}, emitter, &memErrorRepo{}, &fakeMailer{})

	err := svc.EmitIfEnabled(context.Background(), testBasket(), &entity.Order{Number: "OPEN-100030"}, entity.Webpay)
	require.Error(t, err)
}
