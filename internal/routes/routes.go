package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/amorii/internal/config"
	"github.com/example/amorii/internal/handlers"
	"github.com/example/amorii/internal/middleware"
	"github.com/example/amorii/internal/services"
)

// Services groups the external collaborators used by the handlers.
type Services struct {
	SMS      handlers.SMSSender
	Payments handlers.PaymentGateway
	Images   handlers.ImageHost
	Notifier handlers.PaymentNotifier
}

// NewServices builds the production adapters from configuration.
func NewServices(cfg *config.Config) Services {
	return Services{
		SMS:      services.NewSMSService(cfg.SMS),
		Payments: services.NewZainCashService(cfg.ZainCash),
		Images:   services.NewImgBBService(cfg.ImgBBAPIKey),
		Notifier: services.NewTelegramService(cfg.TelegramToken, cfg.TelegramAdminID),
	}
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, svc Services) {
	authHandler := handlers.NewAuthHandler(db, cfg, svc.SMS)
	resetHandler := handlers.NewPasswordResetHandler(db, cfg, svc.SMS)
	profileHandler := handlers.NewProfileHandler(db, cfg)
	productHandler := handlers.NewProductHandler(db)
	invoiceHandler := handlers.NewInvoiceHandler(db, svc.Payments)
	zainCashHandler := handlers.NewZainCashHandler(db, svc.Payments, svc.Notifier)
	uploadHandler := handlers.NewUploadHandler(cfg, svc.Images)

	v1 := app.Group("/v1")

	// Auth routes
	v1.Post("/register", authHandler.Register)
	v1.Post("/check-otp", authHandler.CheckOTP)
	v1.Post("/login", authHandler.Login)
	v1.Post("/forgot-password", resetHandler.ForgotPassword)
	v1.Post("/new-password", resetHandler.NewPassword)

	// Catalog
	v1.Get("/products", productHandler.ListProducts)
	v1.Get("/products/:id", productHandler.GetProduct)

	// ZainCash redirects the payer here with a signed token.
	v1.Get("/zc-redirect", zainCashHandler.Redirect)

	// Protected routes. The guard is attached per route so unknown paths
	// under /v1 still reach the 404 fallback.
	auth := middleware.AuthMiddleware(cfg, db)

	v1.Get("/user", auth, profileHandler.GetProfile)
	v1.Put("/user", auth, profileHandler.EditUser)

	v1.Post("/make-invoice", auth, invoiceHandler.MakeInvoice)
	v1.Get("/invoices", auth, invoiceHandler.ListInvoices)
	v1.Get("/invoices/:id", auth, invoiceHandler.GetInvoice)

	v1.Post("/upload", auth, uploadHandler.Upload)

	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "404 Page Not Found")
	})
}
