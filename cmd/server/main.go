package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailguard/backend/internal/auth"
	jwtpkg "mailguard/backend/internal/auth/jwt"
	"mailguard/backend/internal/config"
	"mailguard/backend/internal/engine"
	enginememory "mailguard/backend/internal/engine/memory"
	engineredis "mailguard/backend/internal/engine/redis"
	"mailguard/backend/internal/health"
	"mailguard/backend/internal/logger"
	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/service"
	"mailguard/backend/internal/storage"
	"mailguard/backend/internal/storage/memory"
	redisstore "mailguard/backend/internal/storage/redis"
	httptransport "mailguard/backend/internal/transport/http"
)

// main 启动垃圾邮件规则管理 API 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting mailguard server",
		zap.String("log_level", cfg.Log.Level),
		zap.String("engine_backend", cfg.Engine.Backend),
		zap.Bool("development", cfg.Log.Development),
	)

	// 存储层：令牌注册表、限流计数器、过滤引擎适配器
	var (
		registry storage.TokenRegistry
		counter  storage.CounterStore
		adapter  engine.Adapter
	)

	healthChecker := health.NewChecker(log)

	if cfg.Engine.Backend == "redis" {
		client, err := redisstore.New(&cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close() //nolint:errcheck

		registry = redisstore.NewTokenRegistry(client)
		counter = redisstore.NewCounterStore(client)
		adapter = engineredis.NewAdapter(client)

		healthChecker.AddReadinessCheck("redis", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		})
		log.Info("using redis backend", zap.String("address", cfg.Redis.Address))
	} else {
		registry = memory.NewTokenRegistry()
		counter = memory.NewCounterStore()
		adapter = enginememory.NewAdapter()
		log.Info("using memory backend (development mode)")
	}

	// 所有引擎调用统一加超时
	adapter = engine.WithTimeout(adapter, cfg.Engine.Timeout)

	metrics := monitoring.NewMetrics()

	// 认证服务
	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	authService := auth.NewService(auth.Options{
		Registry:  registry,
		JWT:       jwtManager,
		Authority: auth.NewPleskClient(&cfg.Plesk),
		Prober:    auth.NewPOP3Prober(&cfg.POP3),
		TokenTTL:  cfg.JWT.TokenTTL,
		Timeout:   cfg.Plesk.Timeout,
		Logger:    log,
	})

	// 规则服务
	guard := auth.NewGuard(log)
	ruleService := service.NewRuleService(adapter, guard, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:      cfg,
		AuthService: authService,
		RuleService: ruleService,
		Counter:     counter,
		Metrics:     metrics,
		Health:      healthChecker,
		Logger:      log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}
