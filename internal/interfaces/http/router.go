package http

import (
	"github.com/gofiber/fiber/v2"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Webpay *WebpayHandler
	Boleta *BoletaHandler
	Paypal *PaypalHandler
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	pay := app.Group("/payment")

	wp := pay.Group("/webpay")
	wp.Post("/initiate", deps.Webpay.Initiate)
	wp.Post("/execute", deps.Webpay.Execute)
	wp.Get("/failure", deps.Webpay.Failure)

	bo := pay.Group("/boleta")
	bo.Get("/recover", deps.Boleta.Recover)

	// PayPal solo queda habilitado cuando existen credenciales configuradas.
	if deps.Paypal != nil {
		pp := pay.Group("/paypal")
		pp.Post("/initiate", deps.Paypal.Initiate)
		pp.Post("/execute", deps.Paypal.Execute)
	}
}
