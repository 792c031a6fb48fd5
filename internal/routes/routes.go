package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/PuraVida-Technologies/galoy/internal/account"
	"github.com/PuraVida-Technologies/galoy/internal/config"
	"github.com/PuraVida-Technologies/galoy/internal/ledger"
	"github.com/PuraVida-Technologies/galoy/internal/limits"
	"github.com/PuraVida-Technologies/galoy/internal/lock"
	"github.com/PuraVida-Technologies/galoy/internal/logging"
	"github.com/PuraVida-Technologies/galoy/internal/middleware"
	"github.com/PuraVida-Technologies/galoy/internal/notification"
	"github.com/PuraVida-Technologies/galoy/internal/payments"
	"github.com/PuraVida-Technologies/galoy/internal/price"
	"github.com/PuraVida-Technologies/galoy/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg   config.Config
	DB    *pgxpool.Pool
	Cache *redis.Client
	// Locker guards sender wallets; LockNodes are its Redis nodes, pinged by
	// the health check.
	Locker    *lock.Manager
	LockNodes []*redis.Client
	NATS      *nats.Conn
	Registry  *prometheus.Registry
	Logger    *slog.Logger
	// Ledger overrides the backend chosen from DB.
	Ledger ledger.Ledger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Locker == nil {
		return fmt.Errorf("lock manager is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Tracing(d.Cfg.AppName))
	app.Use(middleware.Audit(logging.Component(d.Logger, "http")))

	// Services
	ledgerBackend := d.Ledger
	var (
		walletRepo  wallet.Repository
		accountRepo account.Repository
	)
	if d.DB != nil {
		if ledgerBackend == nil {
			ledgerBackend = ledger.NewPostgresLedger(d.DB)
		}
		walletRepo = wallet.NewPostgresRepository(d.DB)
		accountRepo = account.NewPostgresRepository(d.DB)
	} else {
		if ledgerBackend == nil {
			ledgerBackend = ledger.NewInMemory()
		}
		walletRepo = wallet.NewMemoryRepository()
		accountRepo = account.NewMemoryRepository()
	}

	accountSvc := account.NewService(accountRepo)
	walletSvc := wallet.NewService(walletRepo, ledgerBackend, accountSvc)

	prices, err := price.NewStaticProvider(d.Cfg.DisplayCurrency, d.Cfg.PricePerSat, d.Cfg.PricePerCent)
	if err != nil {
		return err
	}
	var volume limits.Volume
	if v, ok := ledgerBackend.(limits.Volume); ok {
		volume = v
	}

	var (
		notifier notification.Notifier = notification.NewLoggerNotifier(logging.Component(d.Logger, "notification"))
		breaker  breakerState
	)
	if d.NATS != nil {
		natsNotifier := notification.NewNATSNotifier(d.NATS, d.Cfg.NotifySubject, notification.DefaultBreakerSettings(), logging.Component(d.Logger, "notification"))
		notifier, breaker = natsNotifier, natsNotifier
	}

	paymentSvc, err := payments.NewService(payments.Deps{
		Wallets:  walletRepo,
		Accounts: accountRepo,
		Ledger:   ledgerBackend,
		Limits:   limits.NewLevelChecker(d.Cfg.IntraledgerLimits, volume),
		Prices:   prices,
		Locker:   d.Locker,
		Notifier: notifier,
		Logger:   d.Logger,
		LockTTL:  d.Cfg.PaymentLockTTL,
	})
	if err != nil {
		return err
	}

	// Operational routes
	RegisterHealthRoutes(app, d, breaker)
	if d.Registry != nil {
		RegisterMetricsRoute(app, d.Registry)
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAccountRoutes(api, account.NewHandler(accountSvc))

	// Routes acting on behalf of an account
	protected := api.Group("", middleware.AccountContext())
	RegisterMeRoute(protected, account.NewHandler(accountSvc))
	RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc))
	RegisterPaymentRoutes(protected, payments.NewHandler(paymentSvc, accountRepo),
		middleware.AccountRateLimit(d.Cache, d.Cfg.PaymentsPerMinute, d.Logger),
		idempotency(d),
	)

	return nil
}

// idempotency skips response replay in development setups without Redis. The
// ledger still deduplicates on the forwarded key.
func idempotency(d Deps) fiber.Handler {
	if d.Cache == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
