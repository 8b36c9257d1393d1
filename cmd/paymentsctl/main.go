// paymentsctl agrupa los comandos batch de operación: emisión y completación
// de boletas, verificación contra la API de Ventas, colocación manual de
// órdenes y diagnóstico de transacciones Webpay.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/open-uchile/ecommerce/internal/application/boleta"
	"github.com/open-uchile/ecommerce/internal/application/fulfill"
	"github.com/open-uchile/ecommerce/internal/application/reconcile"
	"github.com/open-uchile/ecommerce/internal/domain"
	"github.com/open-uchile/ecommerce/internal/domain/entity"
	"github.com/open-uchile/ecommerce/internal/infrastructure/mail"
	"github.com/open-uchile/ecommerce/internal/infrastructure/postgres"
	"github.com/open-uchile/ecommerce/internal/infrastructure/ventas"
	"github.com/open-uchile/ecommerce/internal/infrastructure/webpay"
	"github.com/open-uchile/ecommerce/pkg/config"
	"github.com/open-uchile/ecommerce/pkg/logger"
)

const usage = `uso: paymentsctl <comando> [flags]

comandos:
  boleta-emissions      emite boletas de órdenes completas sin boleta
  complete-boleta       respalda folio y fecha de boletas incompletas
  get-boleta-emissions  contrasta boletas locales contra la API de Ventas
  fulfill-order         coloca órdenes cuya notificación de pago se perdió
  inspect-webpay        consulta el estado crudo de transacciones en Webpay
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cargar configuración:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: "info"})

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	responseRepo := postgres.NewProcessorResponseRepository(pool)
	billingRepo := postgres.NewBillingInfoRepository(pool)
	boletaRepo := postgres.NewBoletaRepository(pool)
	errorRepo := postgres.NewBoletaErrorRepository(pool)
	conversionRepo := postgres.NewConversionRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	basketRepo := postgres.NewBasketRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	mailer := mail.NewMailer(cfg.Mail)
	ventasClient := ventas.NewClient(cfg.Boleta)
	gateway := webpay.NewClient(cfg.Webpay)
	emitter := boleta.NewEmitter(
		cfg.Boleta, ventasClient, billingRepo, boletaRepo, errorRepo, conversionRepo, mailer, log,
	)
	tokens := boleta.NewTokenCache(ventasClient)
	fulfillSvc := fulfill.NewService(cfg.Boleta, txRunner, emitter, tokens, errorRepo, mailer, log)

	svc := reconcile.NewService(
		cfg.Boleta, ventasClient, tokens, emitter, fulfillSvc, gateway,
		orderRepo, basketRepo, boletaRepo, billingRepo, errorRepo, responseRepo,
		mailer, log, ".",
	)

	var runErr error
	switch os.Args[1] {
	case "boleta-emissions":
		runErr = runEmissions(ctx, svc, os.Args[2:])
	case "complete-boleta":
		runErr = runComplete(ctx, svc, os.Args[2:])
	case "get-boleta-emissions":
		runErr = runRemoteCheck(ctx, svc, os.Args[2:])
	case "fulfill-order":
		runErr = runFulfill(ctx, svc, os.Args[2:])
	case "inspect-webpay":
		runErr = runInspect(ctx, svc, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if runErr != nil {
		if errors.Is(runErr, domain.ErrInconsistencia) {
			log.Error().Err(runErr).Msg("se detectaron inconsistencias")
		} else {
			log.Error().Err(runErr).Msg("el comando terminó con error")
		}
		os.Exit(1)
	}
}

func runEmissions(ctx context.Context, svc *reconcile.Service, args []string) error {
	fs := pflag.NewFlagSet("boleta-emissions", pflag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "no emite; solo lista las órdenes candidatas")
	processorName := fs.String("processor", string(entity.Webpay), "procesador de pago (webpay o paypal)")
	orderNumbers := fs.StringArrayP("order-number", "o", nil, "limita la corrida a estas órdenes")
	_ = fs.Parse(args)

	p := entity.PaymentProcessor(*processorName)
	if !p.Valid() {
		return fmt.Errorf("procesador %q desconocido: %w", *processorName, domain.ErrInvalidInput)
	}
	_, err := svc.Emissions(ctx, reconcile.EmissionsOptions{
		DryRun:       *dryRun,
		Processor:    p,
		OrderNumbers: *orderNumbers,
	})
	return err
}

func runComplete(ctx context.Context, svc *reconcile.Service, args []string) error {
	fs := pflag.NewFlagSet("complete-boleta", pflag.ExitOnError)
	vouchers := fs.StringArrayP("list", "l", nil, "vouchers explícitos; sin flag completa todas las incompletas")
	dryRun := fs.Bool("dry-run", false, "no escribe; solo muestra el detalle recuperado")
	_ = fs.Parse(args)

	return svc.Complete(ctx, *vouchers, *dryRun)
}

func runRemoteCheck(ctx context.Context, svc *reconcile.Service, args []string) error {
	fs := pflag.NewFlagSet("get-boleta-emissions", pflag.ExitOnError)
	sinceStr := fs.String("since", "", "fecha inicial AAAA-MM-DD (requerido)")
	save := fs.BoolP("save", "s", false, "escribe los reportes CSV del hallazgo")
	email := fs.BoolP("email", "e", false, "envía los reportes por correo (implica --save)")
	_ = fs.Parse(args)

	if *sinceStr == "" {
		return fmt.Errorf("--since es requerido: %w", domain.ErrInvalidInput)
	}
	since, err := time.Parse("2006-01-02", *sinceStr)
	if err != nil {
		return fmt.Errorf("fecha %q inválida: %w", *sinceStr, domain.ErrInvalidInput)
	}
	return svc.RemoteCheck(ctx, since, *save, *email)
}

func runFulfill(ctx context.Context, svc *reconcile.Service, args []string) error {
	fs := pflag.NewFlagSet("fulfill-order", pflag.ExitOnError)
	orders := fs.StringArrayP("list", "l", nil, "números de orden a colocar (requerido)")
	_ = fs.Parse(args)

	if len(*orders) == 0 {
		return fmt.Errorf("-l es requerido: %w", domain.ErrInvalidInput)
	}
	return svc.FulfillOrders(ctx, *orders)
}

func runInspect(ctx context.Context, svc *reconcile.Service, args []string) error {
	fs := pflag.NewFlagSet("inspect-webpay", pflag.ExitOnError)
	tokens := fs.StringArrayP("token", "t", nil, "tokens de transacción")
	orders := fs.StringArrayP("order", "o", nil, "números de orden")
	user := fs.StringP("user", "u", "", "email del usuario (carritos congelados)")
	_ = fs.Parse(args)

	return svc.InspectWebpay(ctx, *tokens, *orders, *user)
}
