package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/paystream/internal/auth"
	"github.com/congo-pay/paystream/internal/clock"
	"github.com/congo-pay/paystream/internal/config"
	"github.com/congo-pay/paystream/internal/funding"
	"github.com/congo-pay/paystream/internal/identity"
	"github.com/congo-pay/paystream/internal/ledger"
	"github.com/congo-pay/paystream/internal/logging"
	"github.com/congo-pay/paystream/internal/middleware"
	"github.com/congo-pay/paystream/internal/notification"
	"github.com/congo-pay/paystream/internal/stream"
	"github.com/congo-pay/paystream/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development, in which case in-memory stores are used.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Clock defaults to the system clock.
	Clock clock.Clock
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	clk := d.Clock
	if clk == nil {
		clk = clock.System{}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(logging.Component(logger, "http")))

	RegisterHealthRoutes(app, d)

	var (
		ledgerBackend ledger.Ledger
		walletRepo    wallet.Repository
		identityRepo  identity.Repository
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		walletRepo = wallet.NewMemoryRepository()
		identityRepo = identity.NewMemoryRepository()
	}

	walletSvc := wallet.NewService(walletRepo, ledgerBackend, d.Cfg.DefaultAsset)
	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	fundingSvc, err := funding.NewService(ledgerBackend, walletSvc, nil, logging.Component(logger, "funding"))
	if err != nil {
		return err
	}
	notifier := notification.NewLoggerNotifier(logging.Component(logger, "notification"))
	streamSvc := stream.NewService(ledgerBackend, clk, notifier, logging.Component(logger, "stream"), d.Cfg.DefaultAsset)

	identityHandler := identity.NewHandler(identitySvc, provisionWallet(walletSvc, d.Cfg.DefaultAsset))
	authHandler := auth.NewHandler(identitySvc, authSvc, walletSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	fundingHandler := funding.NewHandler(fundingSvc)
	streamHandler := stream.NewHandler(streamSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identityHandler)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit))

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(authSvc))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, logging.Component(logger, "idempotency")))
	}
	protected.Get("/me", identityHandler.Me)
	RegisterWalletRoutes(protected, walletHandler)
	RegisterFundingRoutes(protected, fundingHandler)
	RegisterStreamRoutes(protected, streamHandler)

	return nil
}

func provisionWallet(wallets *wallet.Service, currency string) identity.Provisioner {
	return func(c *fiber.Ctx, user identity.User) (string, error) {
		w, err := wallets.Create(c.UserContext(), wallet.CreateInput{OwnerID: user.ID, Currency: currency})
		if err != nil {
			return "", err
		}
		return w.ID, nil
	}
}
