package boleta

import (
	"context"
	"time"

	"github.com/open-uchile/ecommerce/internal/infrastructure/ventas"
)

// VentasAPI operaciones del cliente de la API de Ventas que la emisión usa.
type VentasAPI interface {
	Authenticate(ctx context.Context) (*ventas.AuthResponse, error)
	CreateSale(ctx context.Context, payload *ventas.SalePayload, bearerToken string) (*ventas.CreateSaleResult, error)
	GetSaleDetails(ctx context.Context, voucherID, bearerToken string) (*ventas.SaleDetails, error)
	ListSales(ctx context.Context, since time.Time, state, bearerToken string) ([]ventas.Sale, error)
	PDFURL(voucherID string) string
}

// Mailer notificaciones de correo que la emisión dispara.
type Mailer interface {
	SendAlert(subject, body string) error
	SendUserNotification(to, subject, body string) error
}
