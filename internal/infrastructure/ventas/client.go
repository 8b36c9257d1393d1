// Package ventas implementa el cliente HTTP de la API de Ventas UChile
// (emisión de boletas electrónicas). El cliente es puro: devuelve errores
// tipados y nunca persiste ni envía correos; eso es responsabilidad de las
// capas de orquestación.
package ventas

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/pkg/config"
)

// AuthResponse respuesta del intercambio de credenciales.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// SaleDetails detalle de una venta ya ingresada: folio, fecha de emisión y
// recaudaciones (montos).
type SaleDetails struct {
	Boleta struct {
		Folio        string `json:"folio"`
		FechaEmision string `json:"fechaEmision"`
	} `json:"boleta"`
	Recaudaciones []struct {
		Monto json.Number `json:"monto"`
	} `json:"recaudaciones"`
}

// Sale una venta del listado remoto. rutCajero transporta el número de orden
// local (convención acordada con el área contable).
type Sale struct {
	ID     string `json:"id"`
	Boleta struct {
		Folio        string `json:"folio"`
		FechaEmision string `json:"fechaEmision"`
	} `json:"boleta"`
	PuntoVenta struct {
		RutCajero string `json:"rutCajero"`
	} `json:"puntoVenta"`
	Recaudaciones []struct {
		Monto json.Number `json:"monto"`
	} `json:"recaudaciones"`
}

// OrderNumber recupera el número de orden embebido en rutCajero.
func (s *Sale) OrderNumber() string {
	return s.PuntoVenta.RutCajero
}

// CreateSaleResult identificador remoto de la venta recién creada.
type CreateSaleResult struct {
	ID string `json:"id"`
}

// SalePayload cuerpo del POST /ventas. Los nombres de campo siguen el
// contrato swagger de ventas-api-front.
type SalePayload struct {
	DatosBoleta   DatosBoleta   `json:"datosBoleta"`
	PuntoVenta    PuntoVenta    `json:"puntoVenta"`
	Recaudaciones []Recaudacion `json:"recaudaciones"`
}

type DatosBoleta struct {
	Afecta            bool           `json:"afecta"`
	Detalle           []DetalleVenta `json:"detalleProductosServicios"`
	IndicadorServicio int            `json:"indicadorServicio"`
	Receptor          Receptor       `json:"receptor"`
	Referencia        []Referencia   `json:"referencia"`
	SaldoAnterior     int            `json:"saldoAnterior"`
}

type DetalleVenta struct {
	CantidadItem       int     `json:"cantidadItem"`
	CentroCosto        string  `json:"centroCosto"`
	CuentaContable     string  `json:"cuentaContable"`
	DescripcionItem    string  `json:"descripcionAdicionalItem"`
	IdentificadorProd  int64   `json:"identificadorProducto"`
	Impuesto           float64 `json:"impuesto"`
	IndicadorExencion  int     `json:"indicadorExencion"`
	NombreItem         string  `json:"nombreItem"`
	PrecioUnitarioItem int64   `json:"precioUnitarioItem"`
	UnidadMedidaItem   string  `json:"unidadMedidaItem"`
}

type Receptor struct {
	Nombre          string `json:"nombre"`
	ApellidoPaterno string `json:"apellidoPaterno"`
	ApellidoMaterno string `json:"apellidoMaterno"`
	RUT             string `json:"rut"`
	Ciudad          string `json:"ciudad,omitempty"`
	Comuna          string `json:"comuna,omitempty"`
	Direccion       string `json:"direccion,omitempty"`
}

type Referencia struct {
	CodigoCaja       string `json:"codigoCaja"`
	CodigoReferencia string `json:"codigoReferencia"`
	CodigoVendedor   string `json:"codigoVendedor"`
	RazonReferencia  string `json:"razonReferencia"`
}

type PuntoVenta struct {
	RutCajero        string   `json:"rutCajero"`
	CuentaCorriente  bool     `json:"cuentaCorriente"`
	IdentificadorPos string   `json:"identificadorPos"`
	Sucursal         Sucursal `json:"sucursal"`
}

type Sucursal struct {
	Codigo      string `json:"codigo"`
	Comuna      string `json:"comuna"`
	Direccion   string `json:"direccion"`
	Reparticion string `json:"reparticion"`
}

type Recaudacion struct {
	Monto    int64  `json:"monto"`
	TipoPago string `json:"tipoPago"`
	Voucher  string `json:"voucher"`
}

// Client cliente HTTP de la API de Ventas.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	scope        string
	posID        string
	httpClient   *http.Client
}

// NewClient construye el cliente desde la configuración de boletas.
func NewClient(cfg config.BoletaConfig) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.VentasURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scope:        cfg.ClientScope,
		posID:        cfg.IdentificadorPos,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Authenticate intercambia las credenciales por un bearer token
// (POST /authorization-token con Basic auth, grant client_credentials).
func (c *Client) Authenticate(ctx context.Context) (*AuthResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/authorization-token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ventas: crear request de autenticación: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVentasConexion, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ventas: leer respuesta de autenticación: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}

	var auth AuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("ventas: decodificar token: %w", err)
	}
	return &auth, nil
}

// CreateSale crea la venta (POST /ventas) y devuelve su id remoto. Si la API
// reporta agotamiento de folios el error envuelve ErrNoFoliosDisponibles.
func (c *Client) CreateSale(ctx context.Context, payload *SalePayload, bearerToken string) (*CreateSaleResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ventas: serializar venta: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/ventas", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("ventas: crear request de venta: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVentasConexion, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ventas: leer respuesta de venta: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if isNoFolios(body) {
			return nil, fmt.Errorf("%w: %v", domain.ErrNoFoliosDisponibles, newAPIError(resp.StatusCode, body))
		}
		return nil, newAPIError(resp.StatusCode, body)
	}

	var result CreateSaleResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("ventas: decodificar id de venta: %w", err)
	}
	return &result, nil
}

// GetSaleDetails recupera folio, fecha de emisión y monto de una venta
// (GET /ventas/{id}).
func (c *Client) GetSaleDetails(ctx context.Context, voucherID, bearerToken string) (*SaleDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/ventas/%s", c.baseURL, url.PathEscape(voucherID)), nil)
	if err != nil {
		return nil, fmt.Errorf("ventas: crear request de detalle: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVentasConexion, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ventas: leer detalle de venta: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}

	var details SaleDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("ventas: decodificar detalle: %w", err)
	}
	return &details, nil
}

// ListSales lista ventas del punto de venta desde una fecha y por estado
// (INGRESADA, SIN_BOLETA o CONTABILIZADA).
func (c *Client) ListSales(ctx context.Context, since time.Time, state, bearerToken string) ([]Sale, error) {
	q := url.Values{}
	q.Set("fecha-desde", since.Format("2006-01-02T15:04:05"))
	q.Set("estado", state)
	q.Set("identificador-pos", c.posID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/ventas/?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("ventas: crear request de listado: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVentasConexion, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ventas: leer listado de ventas: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}

	var sales []Sale
	if err := json.Unmarshal(body, &sales); err != nil {
		return nil, fmt.Errorf("ventas: decodificar listado: %w", err)
	}
	return sales, nil
}

// GetPDF descarga el PDF de la boleta (GET /ventas/{id}/boletas/pdf).
func (c *Client) GetPDF(ctx context.Context, voucherID, bearerToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.PDFURL(voucherID), nil)
	if err != nil {
		return nil, fmt.Errorf("ventas: crear request de PDF: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVentasConexion, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := readBody(resp.Body)
		return nil, newAPIError(resp.StatusCode, body)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// PDFURL URL canónica del PDF; se usa como receipt_url y clave de caché.
func (c *Client) PDFURL(voucherID string) string {
	return fmt.Sprintf("%s/ventas/%s/boletas/pdf", c.baseURL, voucherID)
}

func readBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, 256*1024))
}

// newAPIError construye el error tipado con el cuerpo formateado: JSON con
// indentación si fue posible, texto crudo si no, truncado a 255 caracteres.
func newAPIError(status int, body []byte) *domain.BoletaAPIError {
	text := string(body)
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		if pretty, err := json.MarshalIndent(decoded, "", " "); err == nil {
			text = string(pretty)
		}
	}
	if len(text) > 255 {
		text = text[:255]
	}
	return &domain.BoletaAPIError{StatusCode: status, Body: text}
}

// isNoFolios detecta el agotamiento de la secuencia de folios por la forma
// de la respuesta de error.
func isNoFolios(body []byte) bool {
	return bytes.Contains(bytes.ToLower(body), []byte("folio"))
}
