package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"proparena/internal/attest"
	"proparena/internal/config"
	cronrunner "proparena/internal/cron"
	"proparena/internal/db"
	"proparena/internal/evaluation"
	"proparena/internal/handler"
	"proparena/internal/logger"
	"proparena/internal/repository"
	"proparena/internal/repository/gormstore"
	"proparena/internal/repository/memorystore"
	"proparena/internal/service"
	"proparena/internal/venue"
)

func main() {
	cfgPath := os.Getenv("PA_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PA_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var store repository.Repository
	var gormDB *gorm.DB
	if strings.EqualFold(cfg.DB.Driver, "memory") || cfg.DB.Driver == "" {
		store = memorystore.New()
		logger.Info("using in-process store")
	} else {
		dbConn, err := db.Open(cfg.DB)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormstore.New(dbConn.Gorm)
		gormDB = dbConn.Gorm
		logger.Info("using gorm store", zap.String("driver", cfg.DB.Driver))
	}

	venueHTTP := &http.Client{Timeout: cfg.Venue.Timeout}
	venueClient := venue.NewClient(venueHTTP, cfg.Venue.BaseURL)

	var sink attest.Sink
	if cfg.Attestation.Enabled && cfg.Attestation.Endpoint != "" {
		attestHTTP := &http.Client{Timeout: cfg.Attestation.Timeout}
		sink = attest.NewClient(attestHTTP, cfg.Attestation.Endpoint)
	} else {
		sink = &attest.LogSink{Logger: logger}
	}

	challengeSvc := &service.ChallengeService{Repo: store, Logger: logger}
	if _, err := challengeSvc.Seed(context.Background(), cfg.Challenges); err != nil {
		logger.Fatal("challenge seeding failed", zap.Error(err))
	}
	fundedSvc := &service.FundedService{
		Repo:       store,
		Challenges: challengeSvc,
		Venue:      venueClient,
		Attest:     sink,
		Logger:     logger,
		Config:     cfg.Funding,
	}
	vaultSvc := &service.VaultService{
		Repo:   store,
		Venue:  venueClient,
		Deleg:  venueClient,
		Logger: logger,
		Config: cfg.Vault,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: gormDB}
	healthHandler.Register(engine)
	challengeHandler := &handler.ChallengeHandler{Challenges: challengeSvc}
	challengeHandler.Register(engine)
	fundedHandler := &handler.FundedHandler{Funded: fundedSvc}
	fundedHandler.Register(engine)
	vaultHandler := &handler.VaultHandler{Vaults: vaultSvc}
	vaultHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	evalEngine := &evaluation.Engine{
		Repo:       store,
		Venue:      venueClient,
		Attest:     sink,
		Challenges: challengeSvc,
		Logger:     logger,
		Config:     cfg.Evaluation,
		Fallback:   &evaluation.Simulator{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
	}
	scheduler := &evaluation.Scheduler{Engine: evalEngine, Logger: logger}
	if cfg.Evaluation.Enabled {
		scheduler.Start(ctx, cfg.Evaluation.Interval)
		defer scheduler.Stop()
	}

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		if _, err := cronRunner.Add(cfg.Cron.FundedSweep, func(ctx context.Context) {
			if err := fundedSvc.SweepLossLimits(ctx); err != nil {
				logger.Warn("funded loss sweep failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register funded sweep failed", zap.Error(err))
		}
		if _, err := cronRunner.Add(cfg.Cron.VaultRefresh, func(ctx context.Context) {
			if err := vaultSvc.RefreshAll(ctx); err != nil {
				logger.Warn("vault refresh sweep failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register vault refresh failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
