// 托管资产账务服务入口：装配各上下文并启动 HTTP 服务
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	identityapp "github.com/wyfcoding/cryptocustody/internal/identity/application"
	identitydomain "github.com/wyfcoding/cryptocustody/internal/identity/domain"
	identityinfra "github.com/wyfcoding/cryptocustody/internal/identity/infrastructure"
	identitymysql "github.com/wyfcoding/cryptocustody/internal/identity/infrastructure/persistence/mysql"
	identityhttp "github.com/wyfcoding/cryptocustody/internal/identity/interfaces/http"
	ledgerapp "github.com/wyfcoding/cryptocustody/internal/ledger/application"
	ledgerdomain "github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	"github.com/wyfcoding/cryptocustody/internal/ledger/infrastructure/messaging"
	ledgermysql "github.com/wyfcoding/cryptocustody/internal/ledger/infrastructure/persistence/mysql"
	ledgerhttp "github.com/wyfcoding/cryptocustody/internal/ledger/interfaces/http"
	pricinginfra "github.com/wyfcoding/cryptocustody/internal/pricing/infrastructure"
	tradingapp "github.com/wyfcoding/cryptocustody/internal/trading/application"
	tradingdomain "github.com/wyfcoding/cryptocustody/internal/trading/domain"
	tradingmysql "github.com/wyfcoding/cryptocustody/internal/trading/infrastructure/persistence/mysql"
	tradinghttp "github.com/wyfcoding/cryptocustody/internal/trading/interfaces/http"
	"github.com/wyfcoding/cryptocustody/pkg/cache"
	"github.com/wyfcoding/cryptocustody/pkg/config"
	"github.com/wyfcoding/cryptocustody/pkg/db"
	"github.com/wyfcoding/cryptocustody/pkg/logger"
	"github.com/wyfcoding/cryptocustody/pkg/metrics"
	"github.com/wyfcoding/cryptocustody/pkg/middleware"
	"github.com/wyfcoding/cryptocustody/pkg/mq"
	"github.com/wyfcoding/cryptocustody/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Logger); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Init(db.Config{
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to init database", "error", err)
	}
	defer database.Close()

	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(
			&identitydomain.User{},
			&ledgerdomain.Wallet{},
			&ledgerdomain.LedgerEntry{},
			&ledgerdomain.Deposit{},
			&ledgerdomain.Withdrawal{},
			&ledgerdomain.ReferralCommission{},
			&tradingdomain.Trade{},
		); err != nil {
			logger.Fatal(ctx, "Failed to migrate schema", "error", err)
		}
	}

	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to init Redis", "error", err)
	}
	defer redisCache.Close()

	m := metrics.New("server")
	if cfg.Metrics.Enabled {
		if err := m.Register(); err != nil {
			logger.Fatal(ctx, "Failed to register metrics", "error", err)
		}
		metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	var publisher ledgerapp.EventPublisher
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.Config{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to init Kafka producer", "error", err)
		}
		defer producer.Close()
		publisher = messaging.NewKafkaPublisher(producer, cfg.Kafka.LedgerTopic)
	}

	// 仓储
	userRepo := identitymysql.NewUserRepository(database.DB)
	walletRepo := ledgermysql.NewWalletRepository(database.DB)
	ledgerRepo := ledgermysql.NewLedgerRepository(database.DB)
	depositRepo := ledgermysql.NewDepositRepository(database.DB)
	withdrawalRepo := ledgermysql.NewWithdrawalRepository(database.DB)
	commissionRepo := ledgermysql.NewCommissionRepository(database.DB)
	tradeRepo := tradingmysql.NewTradeRepository(database.DB)

	// 价格源：模拟游走 + Redis 读穿透缓存
	oracle := pricinginfra.NewCachedOracle(
		pricinginfra.NewSimulatedOracle(cfg.Market.InitialPrices, cfg.Market.Volatility),
		redisCache,
		time.Duration(cfg.Market.QuoteCacheTTL)*time.Second,
	)

	// 应用服务
	directory := identityinfra.NewAccountDirectory(userRepo)
	engine := ledgerapp.NewEngine(database, walletRepo, ledgerRepo, depositRepo, withdrawalRepo, commissionRepo, directory, publisher, m)
	ledgerService := ledgerapp.NewLedgerService(walletRepo, ledgerRepo, depositRepo, withdrawalRepo)
	tradingService := tradingapp.NewTradingService(database, tradeRepo, walletRepo, ledgerRepo, directory, oracle, m)
	tokens := identityapp.NewTokenManager(
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.AccessTokenTTL)*time.Minute,
		time.Duration(cfg.Auth.RefreshTokenTTL)*time.Hour,
	)
	identityService := identityapp.NewIdentityService(userRepo, ledgerService, tokens)

	// HTTP 装配
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Logging(), middleware.Recovery(), middleware.CORS())
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics(m))
	}
	limiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())
	router.Use(middleware.RateLimit(limiter, cfg.RateLimit))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	identityHandler := identityhttp.NewHandler(identityService)
	ledgerHandler := ledgerhttp.NewHandler(engine, ledgerService)
	tradingHandler := tradinghttp.NewHandler(tradingService)

	api := router.Group("/api/v1")
	identityHandler.RegisterPublicRoutes(api)
	tradingHandler.RegisterPublicRoutes(api)

	authed := api.Group("", identityhttp.RequireAuth(tokens))
	identityHandler.RegisterRoutes(authed)
	ledgerHandler.RegisterRoutes(authed)
	tradingHandler.RegisterRoutes(authed)

	admin := api.Group("/admin", identityhttp.RequireAuth(tokens), identityhttp.RequireAdmin())
	identityHandler.RegisterAdminRoutes(admin)
	ledgerHandler.RegisterAdminRoutes(admin)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "Server exited with error", "error", err)
	}
	logger.Info(context.Background(), "Server stopped")
}
