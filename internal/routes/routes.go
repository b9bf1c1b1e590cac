// Package routes defines the API routing configuration. It wires
// repositories, services and handlers together and groups routes by the role
// allowed to call them.
package routes

import (
	"tiketi/internal/config"
	"tiketi/internal/handlers"
	"tiketi/internal/middleware"
	"tiketi/internal/models"
	"tiketi/internal/repositories"
	"tiketi/internal/services/gateway"
	"tiketi/internal/services/pin"
	"tiketi/internal/services/reconcile"
	"tiketi/internal/services/risk"
	"tiketi/internal/services/serial"
	"tiketi/internal/services/settlement"
	"tiketi/internal/services/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// SetupRoutes configures all application routes and returns the poller that
// main runs alongside the server.
func SetupRoutes(app *fiber.App, log *logrus.Logger) (*reconcile.Poller, error) {
	// Repositories
	walletRepo := repositories.NewWalletRepository(repositories.DB)
	paymentRepo := repositories.NewPaymentRequestRepository(repositories.DB)
	serialRepo := repositories.NewSerialCodeRepository(repositories.DB)
	ruleRepo := repositories.NewCommissionRuleRepository(repositories.DB)

	// Services
	walletService := wallet.NewService(
		walletRepo,
		repositories.CacheService,
		wallet.Config{DefaultCurrency: config.GetEnv("DEFAULT_CURRENCY", "RWF")},
		&wallet.NoopMetricsCollector{},
	)
	pinService := pin.NewService(walletRepo)
	serialService := serial.NewService(serialRepo)
	riskService := risk.NewService(walletRepo, repositories.CacheService, log)

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:         config.GetEnv("GATEWAY_BASE_URL", "http://localhost:8090"),
		APIUser:         config.GetEnv("GATEWAY_API_USER", ""),
		APIKey:          config.GetEnv("GATEWAY_API_KEY", ""),
		SubscriptionKey: config.GetEnv("GATEWAY_SUBSCRIPTION_KEY", ""),
		Currency:        config.GetEnv("DEFAULT_CURRENCY", "RWF"),
		Timeout:         config.GetDurationEnv("GATEWAY_TIMEOUT", 0),
	}, log)

	// The platform wallet collects fees and commissions. It is provisioned by
	// the seed command before the server ever starts.
	platformOwnerID := uint(config.GetIntEnv("PLATFORM_OWNER_ID", 1))
	platformWallet, err := walletRepo.GetByOwner(platformOwnerID, models.RolePlatform)
	if err != nil {
		return nil, err
	}

	engine := settlement.NewService(
		walletRepo,
		paymentRepo,
		ruleRepo,
		walletService,
		pinService,
		serialService,
		riskService,
		gatewayClient,
		platformWallet.ID,
		settlement.Config{
			FirstPollDelay: config.GetDurationEnv("SETTLEMENT_FIRST_POLL_DELAY", 0),
		},
		log,
	)

	poller := reconcile.NewPoller(paymentRepo, gatewayClient, engine, reconcile.Config{
		TickInterval: config.GetDurationEnv("POLLER_TICK_INTERVAL", 0),
		BatchSize:    config.GetIntEnv("POLLER_BATCH_SIZE", 0),
	}, log)

	// Handlers
	walletHandler := handlers.NewWalletHandler(walletService, pinService, serialService, engine)
	settlementHandler := handlers.NewSettlementHandler(engine, walletService)
	webhookHandler := handlers.NewWebhookHandler(engine, config.GetEnv("GATEWAY_WEBHOOK_SECRET", ""), log)
	adminHandler := handlers.NewAdminHandler(walletService, walletRepo, ruleRepo)

	app.Get("/health", handlers.HealthCheck)

	api := app.Group("/api")

	// Provider callbacks authenticate with a shared secret, not a user token.
	api.Post("/webhooks/gateway", webhookHandler.GatewayCallback)

	authMiddleware := middleware.NewAuthMiddleware(config.GetEnv("JWT_SECRET", "tiketi"))
	protected := api.Use(authMiddleware.Handler)

	// Wallet routes (any authenticated principal)
	walletGroup := protected.Group("/wallet")
	walletGroup.Post("/", walletHandler.CreateWallet)
	walletGroup.Get("/", walletHandler.GetWallet)
	walletGroup.Get("/serial", walletHandler.GetSerialCode)
	walletGroup.Get("/ledger", walletHandler.GetLedger)
	walletGroup.Post("/pin", walletHandler.SetPin)
	walletGroup.Put("/pin", walletHandler.ChangePin)
	walletGroup.Post("/topup",
		middleware.RequireRole(models.RolePassenger, models.RoleAgent, models.RoleCompany),
		walletHandler.TopUp)

	// Money movement
	protected.Post("/transfer",
		middleware.RequireRole(models.RolePassenger, models.RoleAgent),
		settlementHandler.Transfer)
	protected.Post("/agent/deposit",
		middleware.RequireRole(models.RoleAgent),
		settlementHandler.AgentDeposit)
	protected.Post("/company/withdraw",
		middleware.RequireRole(models.RoleCompany),
		settlementHandler.CompanyWithdrawal)
	protected.Get("/payments/:externalID", settlementHandler.PaymentStatus)

	// Operator routes
	admin := protected.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	admin.Get("/wallets/:id/chain", adminHandler.VerifyChain)
	admin.Get("/balance/total", adminHandler.TotalBalance)
	admin.Put("/commission-rules", adminHandler.UpsertCommissionRule)
	admin.Put("/wallets/:id/status", adminHandler.UpdateWalletStatus)

	return poller, nil
}
