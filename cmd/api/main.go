package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/open-uchile/ecommerce/internal/application/boleta"
	"github.com/open-uchile/ecommerce/internal/application/fulfill"
	"github.com/open-uchile/ecommerce/internal/application/payment"
	"github.com/open-uchile/ecommerce/internal/infrastructure/mail"
	paypalinfra "github.com/open-uchile/ecommerce/internal/infrastructure/paypal"
	"github.com/open-uchile/ecommerce/internal/infrastructure/postgres"
	"github.com/open-uchile/ecommerce/internal/infrastructure/ventas"
	"github.com/open-uchile/ecommerce/internal/infrastructure/webpay"
	httpRouter "github.com/open-uchile/ecommerce/internal/interfaces/http"
	"github.com/open-uchile/ecommerce/pkg/config"
	"github.com/open-uchile/ecommerce/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

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

	processor := payment.NewWebpayProcessor(
		gateway, responseRepo, billingRepo, orderRepo, basketRepo, conversionRepo, mailer,
	)
	emitter := boleta.NewEmitter(
		cfg.Boleta, ventasClient, billingRepo, boletaRepo, errorRepo, conversionRepo, mailer, log,
	)
	tokens := boleta.NewTokenCache(ventasClient)
	fulfillSvc := fulfill.NewService(cfg.Boleta, txRunner, emitter, tokens, errorRepo, mailer, log)

	webpayHandler := httpRouter.NewWebpayHandler(
		cfg.Webpay, processor, fulfillSvc, responseRepo, basketRepo, mailer, log,
	)
	boletaHandler := httpRouter.NewBoletaHandler(
		cfg.Boleta, boletaRepo, basketRepo, tokens, ventasClient, log,
	)

	// PayPal es opcional: sin credenciales el flujo queda fuera del router.
	var paypalHandler *httpRouter.PaypalHandler
	if cfg.Paypal.ClientID != "" {
		ppClient, err := paypalinfra.NewClient(ctx, cfg.Paypal)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PayPal")
		}
		ppFlow := payment.NewPaypalProcessor(
			ppClient, conversionRepo, cfg.Paypal.ReturnURL, cfg.Paypal.CancelURL,
		)
		paypalHandler = httpRouter.NewPaypalHandler(ppFlow, basketRepo, log)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Webpay: webpayHandler,
		Boleta: boletaHandler,
		Paypal: paypalHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
