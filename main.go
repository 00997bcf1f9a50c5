package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"repaircoin-backend/chain"
	"repaircoin-backend/config"
	"repaircoin-backend/controllers"
	"repaircoin-backend/metrics"
	"repaircoin-backend/models"
	"repaircoin-backend/routes"
	"repaircoin-backend/services"
	"repaircoin-backend/store"
	"repaircoin-backend/utils"
)

const challengeTTL = 5 * time.Minute

// backend is the union of store interfaces both store implementations satisfy.
type backend interface {
	store.LedgerStore
	store.CustomerRegistry
	store.ShopRegistry
	store.RoleIndex
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	flags := pflag.NewFlagSet("repaircoin", pflag.ExitOnError)
	port := flags.String("port", cfg.Port, "HTTP listen port")
	policyFile := flags.String("policy", cfg.PolicyFile, "rewards policy file (.yaml or .toml)")
	storeKind := flags.String("store", cfg.Store, "ledger store: gorm or memory")
	printRoutes := flags.Bool("print-routes", false, "log every mounted route at startup")
	_ = flags.Parse(os.Args[1:])

	logger := config.SetupLogger("repaircoin-backend", cfg.Env)
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger, *port, *policyFile, *storeKind, *printRoutes); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, port, policyFile, storeKind string, printRoutes bool) error {
	policy, err := config.LoadPolicy(policyFile)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	db, err := openStore(cfg, storeKind)
	if err != nil {
		return err
	}

	balances, err := openChain(cfg, policy, db, logger)
	if err != nil {
		return err
	}

	admins := make([]string, 0, len(cfg.AdminAddresses))
	for _, raw := range cfg.AdminAddresses {
		addr, err := utils.NormalizeAddress(raw)
		if err != nil {
			return fmt.Errorf("ADMIN_ADDRESSES: %w", err)
		}
		admins = append(admins, addr)
	}
	seeded, err := services.SeedAdmins(context.Background(), db, admins, logger)
	if err != nil {
		return fmt.Errorf("seed admins: %w", err)
	}
	allowList := store.NewStaticAllowList(seeded...)

	m := metrics.Default()
	locks := services.NewAddressLocker()
	tiers := services.NewTierEngine(policy)
	tracker := services.NewBalanceTracker(db, balances, policy)

	validator := services.NewRoleValidator(allowList, db, db)
	registrations := services.NewRegistrationService(validator, db, db, db, m, logger)

	engine := services.NewRedemptionEngine(services.RedemptionEngineConfig{
		Ledger:    db,
		Customers: db,
		Shops:     db,
		Balances:  tracker,
		Tiers:     tiers,
		Locks:     locks,
		Policy:    policy,
		Metrics:   m,
		Logger:    logger,
	})
	earnings := services.NewEarningService(services.EarningServiceConfig{
		Ledger:        db,
		Customers:     db,
		Shops:         db,
		Registrations: registrations,
		Tiers:         tiers,
		Locks:         locks,
		Policy:        policy,
		Metrics:       m,
		Logger:        logger,
	})

	reservations := services.NewReservationService(db, engine, policy, m, logger)
	if err := reservations.StartScheduler(); err != nil {
		return fmt.Errorf("start reservation expiry: %w", err)
	}
	defer func() { <-reservations.Stop().Done() }()

	router := routes.SetupRouter(routes.Handlers{
		Auth: &controllers.AuthController{
			Challenges:    utils.NewChallengeStore(challengeTTL),
			Roles:         db,
			Shops:         db,
			Registrations: registrations,
			SessionTTL:    cfg.JWTExpiry,
		},
		Customers:   &controllers.CustomerController{Customers: db, Ledger: db, Balances: tracker},
		Redemptions: &controllers.RedemptionController{Engine: engine, Ledger: db},
		Earnings:    &controllers.EarningController{Earnings: earnings},
		Shops:       &controllers.ShopController{Shops: db, Registrations: registrations},
		Dashboard:   &controllers.DashboardController{Shops: db, Customers: db, Ledger: db},
		CORSOrigins: cfg.CORSOrigins,
		Limiter:     utils.NewKeyedLimiter(cfg.RateLimit, cfg.RateBurst),
		Logger:      logger,
	})
	if printRoutes {
		for _, route := range router.Routes() {
			logger.Info("route", "method", route.Method, "path", route.Path)
		}
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(router, "repaircoin-backend"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("repaircoin backend listening", "addr", srv.Addr, "store", storeKind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config, kind string) (backend, error) {
	switch kind {
	case "memory":
		return store.NewMemoryStore(), nil
	case "gorm":
		db, err := config.ConnectDB(cfg.DBDriver, cfg.DBURL)
		if err != nil {
			return nil, err
		}
		if err := models.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return store.NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

// openChain reads balances from the RCN contract when an RPC endpoint is
// configured. Without one, balances mirror the confirmed ledger so local runs
// can exercise redemptions.
func openChain(cfg *config.Config, policy config.Policy, ledger store.LedgerStore, logger *slog.Logger) (store.ChainBalanceSource, error) {
	if cfg.ChainRPCURL == "" {
		logger.Warn("CHAIN_RPC_URL not set, on-chain balances are simulated from the ledger")
		return ledgerMirror(ledger), nil
	}
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("RCN_TOKEN_ADDRESS %q is not a valid address", cfg.TokenAddress)
	}
	client, err := chain.Dial(cfg.ChainRPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	return chain.NewERC20BalanceSource(client, common.HexToAddress(cfg.TokenAddress), cfg.TokenDecimals, policy.ChainTimeout), nil
}

func ledgerMirror(ledger store.LedgerStore) chain.BalanceFunc {
	return func(ctx context.Context, address string) (decimal.Decimal, error) {
		entries, err := ledger.QueryEntries(ctx, address, store.EntryFilter{})
		if err != nil {
			return decimal.Zero, err
		}
		balance := decimal.Zero
		for _, e := range entries {
			if e.Status != models.StatusConfirmed {
				continue
			}
			switch {
			case e.Kind == models.KindMint, e.Kind == models.KindTransfer && e.Inbound:
				balance = balance.Add(e.Amount)
			default:
				balance = balance.Sub(e.Amount)
			}
		}
		return balance, nil
	}
}
