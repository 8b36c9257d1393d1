package reconcile

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-uchile/ecommerce/internal/application/boleta"
	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/infrastructure/ventas"
	"github.com/open-uchile/ecommerce/internal/infrastructure/webpay"
	"github.com/open-uchile/ecommerce/pkg/config"
	"github.com/open-uchile/ecommerce/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

type fakeTokens struct{ err error }

func (f *fakeTokens) Token(ctx context.Context) (string, error) { return "tok-abc", f.err }

type fakeEmitter struct {
	emitted []string
	err     error
}

func (f *fakeEmitter) Emit(ctx context.Context, basket *entity.Basket, order *entity.Order, token string, p entity.PaymentProcessor) (*boleta.EmitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.emitted = append(f.emitted, order.Number)
	return &boleta.EmitResult{VoucherID: "v-" + order.Number}, nil
}

type fakePlacer struct {
	placed   []string
	placeErr error
	emitted  []string
}

func (f *fakePlacer) PlaceOrder(ctx context.Context, basket *entity.Basket, payment *entity.HandledPayment) (*entity.Order, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, payment.TransactionID)
	return &entity.Order{Number: payment.TransactionID, BasketID: basket.ID, TotalInclTax: payment.Total}, nil
}

func (f *fakePlacer) EmitIfEnabled(ctx context.Context, basket *entity.Basket, order *entity.Order, p entity.PaymentProcessor) error {
	f.emitted = append(f.emitted, order.Number)
	return nil
}

type fakeGateway struct {
	statuses map[string]*webpay.TransactionResult
}

func (f *fakeGateway) Process(ctx context.Context, orderNumber string, total decimal.Decimal) (*webpay.ProcessResult, error) {
	return nil, errors.New("no usado")
}

func (f *fakeGateway) TransactionStatus(ctx context.Context, token string) (*webpay.TransactionResult, error) {
	if r, ok := f.statuses[token]; ok {
		return r, nil
	}
	return nil, domain.ErrGateway
}

func (f *fakeGateway) GetTransaction(ctx context.Context, token string) (*webpay.TransactionResult, error) {
	return f.TransactionStatus(ctx, token)
}

type fakeAPI struct {
	salesByState map[string][]ventas.Sale
	details      map[string]*ventas.SaleDetails
}

func (f *fakeAPI) Authenticate(ctx context.Context) (*ventas.AuthResponse, error) {
	return &ventas.AuthResponse{AccessToken: "tok-abc", ExpiresIn: 3600}, nil
}

func (f *fakeAPI) CreateSale(ctx context.Context, p *ventas.SalePayload, token string) (*ventas.CreateSaleResult, error) {
	return nil, errors.New("no usado")
}

func (f *fakeAPI) GetSaleDetails(ctx context.Context, id, token string) (*ventas.SaleDetails, error) {
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return nil, &domain.BoletaAPIError{StatusCode: 404, Body: "no existe"}
}

func (f *fakeAPI) ListSales(ctx context.Context, since time.Time, state, token string) ([]ventas.Sale, error) {
	return f.salesByState[state], nil
}

func (f *fakeAPI) PDFURL(id string) string { return "https://ventas.test/ventas/" + id + "/boletas/pdf" }

type fakeOrderRepo struct {
	orders  map[string]*entity.Order
	pending []*entity.Order
}

func (f *fakeOrderRepo) GetByNumber(ctx context.Context, number string) (*entity.Order, error) {
	if o, ok := f.orders[number]; ok {
		return o, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeOrderRepo) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	_, ok := f.orders[number]
	return ok, nil
}

func (f *fakeOrderRepo) Create(ctx context.Context, o *entity.Order) error {
	f.orders[o.Number] = o
	return nil
}

func (f *fakeOrderRepo) ListCompletedWithoutBoleta(ctx context.Context, p entity.PaymentProcessor, numbers []string) ([]*entity.Order, error) {
	return f.pending, nil
}

type fakeBasketRepo struct {
	baskets map[int64]*entity.Basket
	frozen  []*entity.Basket
}

func (f *fakeBasketRepo) GetByID(ctx context.Context, id int64) (*entity.Basket, error) {
	if b, ok := f.baskets[id]; ok {
		return b, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBasketRepo) SetAuthorizationCode(ctx context.Context, id int64, code string) error {
	return nil
}
func (f *fakeBasketRepo) SetStatus(ctx context.Context, id int64, status string) error { return nil }

func (f *fakeBasketRepo) ListFrozenByOwnerEmail(ctx context.Context, email string) ([]*entity.Basket, error) {
	return f.frozen, nil
}

type fakeBoletaRepo struct {
	byVoucher  map[string]*entity.BoletaElectronica
	incomplete []*entity.BoletaElectronica
	updated    []*entity.BoletaElectronica
}

func (f *fakeBoletaRepo) Create(ctx context.Context, b *entity.BoletaElectronica) error {
	f.byVoucher[b.VoucherID] = b
	return nil
}

func (f *fakeBoletaRepo) UpdateDetails(ctx context.Context, b *entity.BoletaElectronica) error {
	f.updated = append(f.updated, b)
	return nil
}

func (f *fakeBoletaRepo) GetByVoucherID(ctx context.Context, id string) (*entity.BoletaElectronica, error) {
	if b, ok := f.byVoucher[id]; ok {
		return b, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBoletaRepo) GetByOrderNumber(ctx context.Context, n string) (*entity.BoletaElectronica, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeBoletaRepo) ListIncomplete(ctx context.Context) ([]*entity.BoletaElectronica, error) {
	return f.incomplete, nil
}

func (f *fakeBoletaRepo) ListEmittedSince(ctx context.Context, since time.Time) ([]*entity.BoletaElectronica, error) {
	var out []*entity.BoletaElectronica
	for _, b := range f.byVoucher {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBoletaRepo) CountEmittedSince(ctx context.Context, since time.Time) (int, error) {
	return len(f.byVoucher), nil
}

type fakeBillingRepo struct {
	linked map[int64]bool
}

func (f *fakeBillingRepo) Create(ctx context.Context, i *entity.UserBillingInfo) error { return nil }
func (f *fakeBillingRepo) Update(ctx context.Context, i *entity.UserBillingInfo) error { return nil }

func (f *fakeBillingRepo) MostRecentByBasket(ctx context.Context, id int64) (*entity.UserBillingInfo, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeBillingRepo) MostRecentUnlinked(ctx context.Context, id int64, p entity.PaymentProcessor) (*entity.UserBillingInfo, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeBillingRepo) HasLinkedBoleta(ctx context.Context, id int64) (bool, error) {
	return f.linked[id], nil
}

func (f *fakeBillingRepo) LinkBoleta(ctx context.Context, infoID int64, voucherID string) error {
	return nil
}

type fakeErrorRepo struct {
	messages []*entity.BoletaErrorMessage
	flushed  bool
}

func (f *fakeErrorRepo) Create(ctx context.Context, m *entity.BoletaErrorMessage) error {
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeErrorRepo) ListAll(ctx context.Context) ([]*entity.BoletaErrorMessage, error) {
	return f.messages, nil
}

func (f *fakeErrorRepo) ListByOrderNumber(ctx context.Context, n string) ([]*entity.BoletaErrorMessage, error) {
	return f.messages, nil
}

func (f *fakeErrorRepo) DeleteAll(ctx context.Context) error {
	f.messages, f.flushed = nil, true
	return nil
}

func (f *fakeErrorRepo) DeleteByOrderNumber(ctx context.Context, n string) error { return nil }

type fakeResponseRepo struct {
	byTransaction map[string][]*entity.PaymentProcessorResponse
}

func (f *fakeResponseRepo) Create(ctx context.Context, r *entity.PaymentProcessorResponse) error {
	return nil
}

func (f *fakeResponseRepo) ListByTransactionID(ctx context.Context, p entity.PaymentProcessor, id string) ([]*entity.PaymentProcessorResponse, error) {
	return f.byTransaction[id], nil
}

func (f *fakeResponseRepo) ListUntaggedByBasket(ctx context.Context, id int64) ([]*entity.PaymentProcessorResponse, error) {
	return nil, nil
}

func (f *fakeResponseRepo) ListTaggedByBasket(ctx context.Context, p entity.PaymentProcessor, id int64) ([]*entity.PaymentProcessorResponse, error) {
	var out []*entity.PaymentProcessorResponse
	for _, rows := range f.byTransaction {
		for _, r := range rows {
			if r.BasketID != nil && *r.BasketID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

type fakeMailer struct {
	alerts      []string
	attachments []string
}

func (f *fakeMailer) SendAlert(subject, body string) error {
	f.alerts = append(f.alerts, subject)
	return nil
}

func (f *fakeMailer) SendWithAttachment(subject, body, path string) error {
	f.alerts = append(f.alerts, subject)
	f.attachments = append(f.attachments, path)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixture
// ──────────────────────────────────────────────────────────────────────────────

type fixture struct {
	svc       *Service
	api       *fakeAPI
	emitter   *fakeEmitter
	placer    *fakePlacer
	gateway   *fakeGateway
	orders    *fakeOrderRepo
	baskets   *fakeBasketRepo
	boletas   *fakeBoletaRepo
	billing   *fakeBillingRepo
	errors    *fakeErrorRepo
	responses *fakeResponseRepo
	mailer    *fakeMailer
	outDir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		api:       &fakeAPI{salesByState: map[string][]ventas.Sale{}, details: map[string]*ventas.SaleDetails{}},
		emitter:   &fakeEmitter{},
		placer:    &fakePlacer{},
		gateway:   &fakeGateway{statuses: map[string]*webpay.TransactionResult{}},
		orders:    &fakeOrderRepo{orders: map[string]*entity.Order{}},
		baskets:   &fakeBasketRepo{baskets: map[int64]*entity.Basket{}},
		boletas:   &fakeBoletaRepo{byVoucher: map[string]*entity.BoletaElectronica{}},
		billing:   &fakeBillingRepo{linked: map[int64]bool{}},
		errors:    &fakeErrorRepo{},
		responses: &fakeResponseRepo{byTransaction: map[string][]*entity.PaymentProcessorResponse{}},
		mailer:    &fakeMailer{},
		outDir:    t.TempDir(),
	}
	f.svc = NewService(
		config.BoletaConfig{Enabled: true},
		f.api, &fakeTokens{}, f.emitter, f.placer, f.gateway,
		f.orders, f.baskets, f.boletas, f.billing, f.errors, f.responses,
		f.mailer, logger.Nop(), f.outDir,
	)
	return f
}

func (f *fixture) addPendingOrder(number string, basketID int64) {
	order := &entity.Order{
		Number:       number,
		BasketID:     basketID,
		Status:       entity.OrderStatusComplete,
		TotalInclTax: decimal.NewFromInt(15000),
		DatePlaced:   time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.orders.orders[number] = order
	f.orders.pending = append(f.orders.pending, order)
	f.baskets.baskets[basketID] = &entity.Basket{
		ID:           basketID,
		OrderNumber:  number,
		Status:       entity.BasketStatusSubmitted,
		TotalInclTax: decimal.NewFromInt(15000),
	}
}

func remoteSale(voucherID, orderNumber string) ventas.Sale {
	var s ventas.Sale
	s.ID = voucherID
	s.Boleta.Folio = "77"
	s.Boleta.FechaEmision = "2021-06-01T12:00:00"
	s.PuntoVenta.RutCajero = orderNumber
	return s
}

func (f *fixture) addLocalBoleta(voucherID string, basketID int64) {
	emitted := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	f.boletas.byVoucher[voucherID] = &entity.BoletaElectronica{
		VoucherID:    voucherID,
		BasketID:     &basketID,
		Folio:        "77",
		EmissionDate: &emitted,
		Amount:       15000,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Emissions
// ──────────────────────────────────────────────────────────────────────────────

func TestEmissionsEmiteOrdenesPendientes(t *testing.T) {
	f := newFixture(t)
	f.addPendingOrder("OPEN-100", 1)
	f.addPendingOrder("OPEN-101", 2)

	report, err := f.svc.Emissions(context.Background(), EmissionsOptions{Processor: entity.Webpay})

	require.NoError(t, err)
	assert.Equal(t, 2, report.Completed)
	assert.Zero(t, report.Failed)
	assert.Equal(t, []string{"OPEN-100", "OPEN-101"}, f.emitter.emitted)
}

func TestEmissionsOmiteOrdenesConBoletaYaAsociada(t *testing.T) {
	f := newFixture(t)
	f.addPendingOrder("OPEN-100", 1)
	f.billing.linked[1] = true

	report, err := f.svc.Emissions(context.Background(), EmissionsOptions{Processor: entity.Webpay})

	require.NoError(t, err)
	assert.Zero(t, report.Completed)
	assert.Zero(t, report.Failed)
	assert.Empty(t, f.emitter.emitted)
}

func TestEmissionsDryRunNoEmite(t *testing.T) {
	f := newFixture(t)
	f.addPendingOrder("OPEN-100", 1)

	report, err := f.svc.Emissions(context.Background(), EmissionsOptions{DryRun: true, Processor: entity.Webpay})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Empty(t, f.emitter.emitted)
}

func TestEmissionsAgregaErroresEnUnCorreoYVaciaLaCola(t *testing.T) {
	f := newFixture(t)
	f.addPendingOrder("OPEN-100", 1)
	f.emitter.err = errors.New("falla de emisión")
	f.errors.messages = []*entity.BoletaErrorMessage{
		{OrderNumber: "OPEN-100", Code: 500, Content: "error interno"},
	}

	report, err := f.svc.Emissions(context.Background(), EmissionsOptions{Processor: entity.Webpay})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, f.mailer.alerts, 1)
	assert.Equal(t, "Boleta Electronica API Error(s)", f.mailer.alerts[0])
	assert.True(t, f.errors.flushed)
}

func TestEmissionsIntegracionDesactivadaNoHaceNada(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.Enabled = false
	f.addPendingOrder("OPEN-100", 1)

	report, err := f.svc.Emissions(context.Background(), EmissionsOptions{Processor: entity.Webpay})

	require.NoError(t, err)
	assert.Zero(t, report.Completed)
	assert.Empty(t, f.emitter.emitted)
}

// ──────────────────────────────────────────────────────────────────────────────
// Complete
// ──────────────────────────────────────────────────────────────────────────────

func TestCompleteRespaldaDetalleDeBoletasIncompletas(t *testing.T) {
	f := newFixture(t)
	f.boletas.incomplete = []*entity.BoletaElectronica{{VoucherID: "v-1"}}
	details := &ventas.SaleDetails{}
	details.Boleta.Folio = "77"
	details.Boleta.FechaEmision = "2021-06-01T12:00:00"
	f.api.details["v-1"] = details

	err := f.svc.Complete(context.Background(), nil, false)

	require.NoError(t, err)
	require.Len(t, f.boletas.updated, 1)
	assert.Equal(t, "77", f.boletas.updated[0].Folio)
	require.NotNil(t, f.boletas.updated[0].EmissionDate)
}

func TestCompleteDryRunNoEscribe(t *testing.T) {
	f := newFixture(t)
	f.boletas.incomplete = []*entity.BoletaElectronica{{VoucherID: "v-1"}}
	f.api.details["v-1"] = &ventas.SaleDetails{}

	err := f.svc.Complete(context.Background(), nil, true)

	require.NoError(t, err)
	assert.Empty(t, f.boletas.updated)
}

func TestCompleteFallaPorBoletaContinuaConLasDemas(t *testing.T) {
	f := newFixture(t)
	f.boletas.incomplete = []*entity.BoletaElectronica{{VoucherID: "v-missing"}, {VoucherID: "v-2"}}
	f.api.details["v-2"] = &ventas.SaleDetails{}

	err := f.svc.Complete(context.Background(), nil, false)

	require.NoError(t, err)
	require.Len(t, f.boletas.updated, 1)
	assert.Equal(t, "v-2", f.boletas.updated[0].VoucherID)
}

// ──────────────────────────────────────────────────────────────────────────────
// RemoteCheck
// ──────────────────────────────────────────────────────────────────────────────

func TestRemoteCheckSinInconsistencias(t *testing.T) {
	f := newFixture(t)
	f.addLocalBoleta("v-1", 1)
	f.api.salesByState["INGRESADA"] = []ventas.Sale{remoteSale("v-1", "OPEN-100")}

	err := f.svc.RemoteCheck(context.Background(), time.Now().Add(-24*time.Hour), false, false)

	require.NoError(t, err)
}

func TestRemoteCheckRemotoVacioConLocalesEsInconsistencia(t *testing.T) {
	f := newFixture(t)
	f.addLocalBoleta("v-1", 1)

	err := f.svc.RemoteCheck(context.Background(), time.Now().Add(-24*time.Hour), false, false)

	require.ErrorIs(t, err, domain.ErrInconsistencia)
}

func TestRemoteCheckDetectaDuplicadasYEscribeCSV(t *testing.T) {
	f := newFixture(t)
	f.addLocalBoleta("v-1", 1)
	f.api.salesByState["INGRESADA"] = []ventas.Sale{
		remoteSale("v-1", "OPEN-100"),
		remoteSale("v-2", "OPEN-100"),
	}

	err := f.svc.RemoteCheck(context.Background(), time.Now().Add(-24*time.Hour), true, true)

	require.ErrorIs(t, err, domain.ErrInconsistencia)
	require.Len(t, f.mailer.attachments, 1)
	assert.Contains(t, f.mailer.alerts, "[Ecommerce] Existen boletas duplicadas")

	rows := readCSV(t, filepath.Join(f.outDir, duplicateReportFile))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"order_number", "boleta_id", "folio", "fecha", "monto", "on_DB"}, rows[0])
	assert.Equal(t, "true", rows[1][5])  // v-1 existe localmente
	assert.Equal(t, "false", rows[2][5]) // v-2 no
}

func TestRemoteCheckDetectaRemotasSinRegistroLocal(t *testing.T) {
	f := newFixture(t)
	f.addLocalBoleta("v-1", 1)
	f.api.salesByState["INGRESADA"] = []ventas.Sale{remoteSale("v-1", "OPEN-100")}
	f.api.salesByState["CONTABILIZADA"] = []ventas.Sale{remoteSale("v-9", "OPEN-109")}

	err := f.svc.RemoteCheck(context.Background(), time.Now().Add(-24*time.Hour), true, false)

	require.ErrorIs(t, err, domain.ErrInconsistencia)
	assert.Empty(t, f.mailer.alerts)
	assert.FileExists(t, filepath.Join(f.outDir, missingReportFile))
}

func TestRemoteCheckDetectaLocalesDeMas(t *testing.T) {
	f := newFixture(t)
	f.addLocalBoleta("v-1", 1)
	f.addLocalBoleta("v-2", 2)
	f.baskets.baskets[1] = &entity.Basket{ID: 1, OrderNumber: "OPEN-100"}
	f.baskets.baskets[2] = &entity.Basket{ID: 2, OrderNumber: "OPEN-101"}
	f.api.salesByState["INGRESADA"] = []ventas.Sale{remoteSale("v-1", "OPEN-100")}

	err := f.svc.RemoteCheck(context.Background(), time.Now().Add(-24*time.Hour), true, false)

	require.ErrorIs(t, err, domain.ErrInconsistencia)
	rows := readCSV(t, filepath.Join(f.outDir, onlyLocalReportFile))
	require.Len(t, rows, 2)
	assert.Equal(t, "v-2", rows[1][3])
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

// ──────────────────────────────────────────────────────────────────────────────
// FulfillOrders e InspectWebpay
// ──────────────────────────────────────────────────────────────────────────────

func TestFulfillOrdersColocaOrdenDesdeLaAuditoria(t *testing.T) {
	f := newFixture(t)
	basketID := int64(5)
	f.baskets.baskets[basketID] = &entity.Basket{
		ID:           basketID,
		OrderNumber:  "OPEN-200",
		TotalInclTax: decimal.NewFromInt(25000),
	}
	number := "OPEN-200"
	f.responses.byTransaction[number] = []*entity.PaymentProcessorResponse{
		{ProcessorName: entity.Webpay, TransactionID: &number, BasketID: &basketID},
	}

	err := f.svc.FulfillOrders(context.Background(), []string{"OPEN-200"})

	require.NoError(t, err)
	assert.Equal(t, []string{"OPEN-200"}, f.placer.placed)
	assert.Equal(t, []string{"OPEN-200"}, f.placer.emitted)
}

func TestFulfillOrdersOrdenYaColocadaEsNoOp(t *testing.T) {
	f := newFixture(t)
	f.addPendingOrder("OPEN-200", 5)
	number := "OPEN-200"
	basketID := int64(5)
	f.responses.byTransaction[number] = []*entity.PaymentProcessorResponse{
		{ProcessorName: entity.Webpay, TransactionID: &number, BasketID: &basketID},
	}

	err := f.svc.FulfillOrders(context.Background(), []string{"OPEN-200"})

	require.NoError(t, err)
	assert.Empty(t, f.placer.placed)
}

func TestFulfillOrdersSinAuditoriaContinua(t *testing.T) {
	f := newFixture(t)

	err := f.svc.FulfillOrders(context.Background(), []string{"OPEN-999"})

	require.NoError(t, err)
	assert.Empty(t, f.placer.placed)
}

func TestInspectWebpayResuelveTokensDesdeOrdenYUsuario(t *testing.T) {
	f := newFixture(t)
	basketID := int64(5)
	number := "OPEN-200"
	f.gateway.statuses["tok-1"] = &webpay.TransactionResult{
		Status: entity.WebpayStatusAuthorized, BuyOrder: number, Amount: decimal.NewFromInt(25000),
	}
	f.responses.byTransaction[number] = []*entity.PaymentProcessorResponse{
		{ProcessorName: entity.Webpay, TransactionID: &number, BasketID: &basketID,
			Response: map[string]any{"token": "tok-1"}},
	}
	f.baskets.frozen = []*entity.Basket{{ID: basketID, OrderNumber: number}}

	err := f.svc.InspectWebpay(context.Background(), []string{"tok-1"}, []string{number}, "alumno@uchile.cl")

	require.NoError(t, err)
}
