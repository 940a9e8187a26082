package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/itemsale/internal/config"
	"github.com/GoPolymarket/itemsale/internal/devnet"
	"github.com/GoPolymarket/itemsale/internal/handler"
	"github.com/GoPolymarket/itemsale/internal/market"
	"github.com/GoPolymarket/itemsale/internal/middleware"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/GoPolymarket/itemsale/internal/replay"
	"github.com/GoPolymarket/itemsale/internal/repository"
	"github.com/GoPolymarket/itemsale/internal/service"
	"github.com/GoPolymarket/itemsale/internal/signer"
	"github.com/GoPolymarket/itemsale/internal/venue"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel, logger.WithFile(cfg.Server.LogFile, 100, cfg.Database.AuditRetentionDays))
	ctx := context.Background()

	// 2. Initialize Persistence
	var redisClient *repository.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
		} else {
			logger.Error("⚠️ Failed to connect to Redis, falling back to memory", "error", err)
			redisClient = nil
		}
	}
	var db *sqlx.DB
	if cfg.Database.DSN != "" {
		db, err = repository.NewDB(cfg)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
		} else {
			logger.Error("⚠️ Failed to connect to DB, falling back to redis/memory", "error", err)
			db = nil
		}
	}

	replayLedger, pgReplay, err := buildReplayLedger(cfg, redisClient, db)
	if err != nil {
		log.Fatalf("Failed to initialize replay ledger: %v", err)
	}

	eventDB, err := repository.OpenEventDB(cfg.Database.EventsDSN)
	if err != nil {
		log.Fatalf("Failed to open event store: %v", err)
	}
	eventRepo, err := repository.NewEventRepo(eventDB)
	if err != nil {
		log.Fatalf("Failed to migrate event store: %v", err)
	}

	var auditRepo service.AuditRepo
	var pgAudit *repository.PostgresAuditRepo
	switch {
	case db != nil:
		pgAudit = repository.NewPostgresAuditRepo(db)
		auditRepo = pgAudit
	case redisClient != nil:
		auditRepo = repository.NewRedisAuditRepo(redisClient, cfg.Redis.AuditListKey, cfg.Redis.AuditListMax)
	}

	var idempotencyStore middleware.IdempotencyStore = middleware.NewInMemIdempotencyStore()
	var pgIdempotency *repository.PostgresIdempotencyStore
	switch {
	case db != nil:
		pgIdempotency = repository.NewPostgresIdempotencyStore(db)
		idempotencyStore = pgIdempotency
	case redisClient != nil:
		idempotencyStore = repository.NewRedisIdempotencyStore(redisClient, time.Duration(cfg.Redis.IdempotencyTTLSeconds)*time.Second)
	}

	// 3. Initialize Core Services
	env, err := devnet.FromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build devnet: %v", err)
	}

	var contracts signer.ContractChecker = env.State
	if cfg.Chain.RPCURL != "" {
		verifier, err := service.NewEIP1271Verifier(
			cfg.Chain.RPCURL,
			time.Duration(cfg.Chain.EIP1271CacheSeconds)*time.Second,
			time.Duration(cfg.Chain.EIP1271TimeoutMs)*time.Millisecond,
			cfg.Chain.EIP1271Retries,
		)
		if err != nil {
			log.Fatalf("Failed to initialize EIP-1271 verifier: %v", err)
		}
		contracts = verifier
	}

	saleCfg, err := buildSaleConfig(cfg, env)
	if err != nil {
		log.Fatalf("Invalid sale config: %v", err)
	}

	hub := market.NewEventHub()
	saleSvc, err := service.NewSaleService(ctx, saleCfg, service.Deps{
		Ledger:     env.State,
		Vault:      env.Vault,
		Minter:     env.Minter,
		Registries: env.Directory,
		Replay:     replayLedger,
		Contracts:  contracts,
		Events:     service.EventSinks{service.StoreSink{Store: eventRepo}, hub},
	})
	if err != nil {
		log.Fatalf("Failed to initialize sale service: %v", err)
	}

	callers, err := service.NewCallerRegistry(cfg.Callers)
	if err != nil {
		log.Fatalf("Invalid callers config: %v", err)
	}
	auditSvc := service.NewAuditService(cfg.Server.AuditDir, cfg.Database.AuditRetentionDays, auditRepo)

	board := market.NewPriceBoard(buildQuoter(ctx, cfg, env, saleCfg, saleSvc), market.BoardConfig{
		ItemCounts:  cfg.Market.ItemCounts,
		Refresh:     time.Duration(cfg.Market.RefreshSeconds) * time.Second,
		StaleAfter:  time.Duration(cfg.Market.StaleSeconds) * time.Second,
		Decimals:    cfg.Market.Decimals,
		SlippageBps: cfg.Market.SlippageBps,
	})
	board.Start()

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	go runCleanup(cleanupCtx, cfg, pgAudit, pgIdempotency, pgReplay)

	// 4. Initialize Handlers
	purchaseHandler := handler.NewPurchaseHandler(saleSvc)
	adminHandler := handler.NewAdminHandler(saleSvc)
	saleHandler := handler.NewSaleHandler(saleSvc, board, eventRepo)
	eventsHandler := handler.NewEventsHandler(eventRepo, hub)
	auditHandler := handler.NewAuditHandler(auditSvc)
	readOnly := middleware.NewReadOnlyMode(cfg.Server.ReadOnly)
	maintenanceHandler := handler.NewMaintenanceHandler(readOnly)

	// 5. Setup Router
	r := gin.New()
	r.Use(gin.Recovery())

	// Global Middleware
	r.Use(middleware.AuditMiddleware(auditSvc, "/health", cfg.Metrics.Path, "/v1/events/stream"))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ErrorHandler())

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "itemsale", "stream_clients": hub.Subscribers()})
	})

	// Metrics Endpoint
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Public reads
	public := r.Group("/v1")
	{
		public.GET("/config", saleHandler.Config)
		public.GET("/quote", saleHandler.Quote)
		public.GET("/orders/:id", saleHandler.OrderStatus)
		public.GET("/events", eventsHandler.List)
		public.GET("/events/stream", eventsHandler.Stream)
	}

	// API V1 Routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg, callers))
	v1.Use(middleware.RateLimitMiddleware(callers))
	v1.Use(middleware.ReadOnlyMiddleware(readOnly, handler.ReadOnlyRoute))
	v1.Use(middleware.IdempotencyMiddleware(idempotencyStore))
	{
		v1.POST("/purchases", purchaseHandler.Paid)
		v1.POST("/purchases/free", purchaseHandler.Free)
		v1.GET("/audit", auditHandler.List)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.POST("/mint", adminHandler.Mint)
		admin.PUT("/signer", adminHandler.SetSigner)
		admin.PUT("/registry", adminHandler.SetItemRegistry)
		admin.POST("/ownership/transfer", adminHandler.TransferOwnership)
		admin.POST("/ownership/accept", adminHandler.AcceptOwnership)
		admin.POST("/ownership/renounce", adminHandler.RenounceOwnership)
		admin.GET("/read-only", maintenanceHandler.Get)
		admin.PUT("/read-only", maintenanceHandler.Set)
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 ItemSale started",
			"port", cfg.Server.Port,
			"engine", saleCfg.Engine.Hex(),
			"pool_id", saleCfg.PoolID.Hex(),
			"replay_backend", cfg.Sale.ReplayBackend,
			"read_only", cfg.Server.ReadOnly,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	stopCleanup()
	board.Stop()
	auditSvc.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	logger.Info("Server exiting")
}

func buildReplayLedger(cfg *config.Config, redisClient *repository.RedisClient, db *sqlx.DB) (replay.Ledger, *repository.PostgresReplayLedger, error) {
	switch cfg.Sale.ReplayBackend {
	case "", "memory":
		return replay.NewMemoryLedger(), nil, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("replay backend redis requires redis.addr")
		}
		pending := time.Duration(cfg.Redis.ReplayPendingSeconds) * time.Second
		return repository.NewRedisReplayLedger(redisClient, pending), nil, nil
	case "postgres":
		if db == nil {
			return nil, nil, fmt.Errorf("replay backend postgres requires database.dsn")
		}
		pg := repository.NewPostgresReplayLedger(db)
		return pg, pg, nil
	default:
		return nil, nil, fmt.Errorf("unknown replay backend %q", cfg.Sale.ReplayBackend)
	}
}

func buildSaleConfig(cfg *config.Config, env *devnet.Env) (service.SaleConfig, error) {
	price, err := devnet.ParseAmount(cfg.Sale.BasePricePerItem)
	if err != nil {
		return service.SaleConfig{}, fmt.Errorf("sale.base_price_per_item: %w", err)
	}
	out := service.SaleConfig{
		ChainID:           cfg.Chain.ChainID,
		Engine:            env.Engine,
		UtilityAsset:      devnet.UtilityToken,
		PoolID:            env.PoolID,
		ItemRegistry:      devnet.ItemRegistry,
		BasePricePerItem:  price,
		BurnRatioBps:      cfg.Sale.BurnRatioBps,
		LiquidityRatioBps: cfg.Sale.LiquidityRatioBps,
		MaxBatchSize:      cfg.Sale.MaxBatchSize,
	}

	addrs := []struct {
		name     string
		raw      string
		dst      *common.Address
		required bool
	}{
		{"sale.owner", cfg.Sale.Owner, &out.Owner, true},
		{"sale.liquidity_recipient", cfg.Sale.LiquidityRecipient, &out.LiquidityRecipient, true},
		{"sale.revenue_recipient", cfg.Sale.RevenueRecipient, &out.RevenueRecipient, true},
		{"sale.signer", cfg.Sale.Signer, &out.Signer, false},
		{"sale.utility_asset", cfg.Sale.UtilityAsset, &out.UtilityAsset, false},
		{"sale.item_registry", cfg.Sale.ItemRegistry, &out.ItemRegistry, false},
	}
	for _, a := range addrs {
		if a.raw == "" {
			if a.required {
				return service.SaleConfig{}, fmt.Errorf("%s is required", a.name)
			}
			continue
		}
		if !common.IsHexAddress(a.raw) {
			return service.SaleConfig{}, fmt.Errorf("%s: invalid address %q", a.name, a.raw)
		}
		*a.dst = common.HexToAddress(a.raw)
	}

	if cfg.Sale.WrappedReference != "" && common.HexToAddress(cfg.Sale.WrappedReference) != env.Minter.Token() {
		return service.SaleConfig{}, fmt.Errorf("sale.wrapped_reference %s does not match the ledger's redeemable token %s",
			cfg.Sale.WrappedReference, env.Minter.Token().Hex())
	}
	if cfg.Sale.PoolID != "" {
		raw := common.FromHex(cfg.Sale.PoolID)
		if len(raw) != len(out.PoolID) {
			return service.SaleConfig{}, fmt.Errorf("sale.pool_id must be 32 bytes")
		}
		copy(out.PoolID[:], raw)
	}
	return out, nil
}

// buildQuoter prices the board off a deployed vault when an RPC endpoint is
// configured, and off the engine's own venue otherwise.
func buildQuoter(ctx context.Context, cfg *config.Config, env *devnet.Env, saleCfg service.SaleConfig, svc *service.SaleService) market.Quoter {
	if cfg.Chain.RPCURL == "" {
		return svc
	}
	rpcVault, err := venue.NewRPCVault(cfg.Chain.RPCURL, common.HexToAddress(cfg.Chain.VaultAddress), time.Duration(cfg.Chain.EIP1271TimeoutMs)*time.Millisecond)
	if err == nil {
		var adapter *venue.Adapter
		adapter, err = venue.NewAdapter(ctx, rpcVault, env.State, venue.AdapterConfig{
			PoolID:  saleCfg.PoolID,
			Utility: saleCfg.UtilityAsset,
			Sender:  saleCfg.Engine,
		})
		if err == nil {
			logger.Info("price board quoting through rpc vault", "vault", rpcVault.Address().Hex())
			return market.NewVenueQuoter(adapter, svc)
		}
	}
	logger.Error("⚠️ RPC vault unavailable, quoting against local venue", "error", err)
	return svc
}

func runCleanup(ctx context.Context, cfg *config.Config, audit *repository.PostgresAuditRepo, idem *repository.PostgresIdempotencyStore, replayLedger *repository.PostgresReplayLedger) {
	if audit == nil && idem == nil && replayLedger == nil {
		return
	}
	interval := time.Duration(cfg.Database.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if audit != nil && cfg.Database.AuditRetentionDays > 0 {
			if err := audit.Cleanup(ctx, time.Duration(cfg.Database.AuditRetentionDays)*24*time.Hour); err != nil {
				logger.Error("audit cleanup failed", "error", err)
			}
		}
		if idem != nil && cfg.Database.IdempotencyRetentionHours > 0 {
			if err := idem.Cleanup(ctx, time.Duration(cfg.Database.IdempotencyRetentionHours)*time.Hour); err != nil {
				logger.Error("idempotency cleanup failed", "error", err)
			}
		}
		if replayLedger != nil {
			// 只清理悬挂的 pending 标记, committed 永不删除
			if err := replayLedger.Cleanup(ctx, time.Duration(cfg.Redis.ReplayPendingSeconds)*time.Second); err != nil {
				logger.Error("replay cleanup failed", "error", err)
			}
		}
	}
}
