package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/idcard-api/api/swagger"
	"github.com/noah-isme/idcard-api/internal/handler"
	"github.com/noah-isme/idcard-api/internal/repository"
	"github.com/noah-isme/idcard-api/internal/service"
	"github.com/noah-isme/idcard-api/pkg/cache"
	"github.com/noah-isme/idcard-api/pkg/config"
	"github.com/noah-isme/idcard-api/pkg/export"
	"github.com/noah-isme/idcard-api/pkg/jobs"
	"github.com/noah-isme/idcard-api/pkg/logger"
	"github.com/noah-isme/idcard-api/pkg/storage"
)

// @title Harbour.Space ID Card API
// @version 1.0.0
// @description Roster browsing, student selection, image proxy and ID card PDF generation
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("startup failed", zap.Error(err))
	}
	defer app.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

type application struct {
	router  *gin.Engine
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build wires every dependency. Configuration problems surface here so the
// process exits before accepting traffic.
func build(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*application, error) {
	app := &application{}
	validate := validator.New()
	metrics := service.NewMetricsService()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without shared cache", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	app.closers = append(app.closers, func() { _ = cacheRepo.Close() })
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Roster.CacheTTL, logr, redisClient != nil)

	rosterRepo, err := repository.NewRosterRepository(cfg.Roster, &http.Client{Timeout: cfg.Roster.Timeout}, logr)
	if err != nil {
		return nil, err
	}
	rosterSvc := service.NewRosterService(rosterRepo, cacheSvc, metrics, logr, service.RosterServiceConfig{
		CacheTTL:       cfg.Roster.CacheTTL,
		RetryAttempts:  cfg.Roster.RetryAttempts,
		RetryBaseDelay: cfg.Roster.RetryBaseDelay,
		RetryMaxDelay:  cfg.Roster.RetryMaxDelay,
		FetchBudget:    time.Duration(cfg.Roster.RetryAttempts+1) * (cfg.Roster.Timeout + cfg.Roster.RetryMaxDelay),
	})

	proxySvc := service.NewProxyService(service.ProxyConfig{
		PrimaryHost:    cfg.Proxy.PrimaryHost,
		SecondaryHost:  cfg.Proxy.SecondaryHost,
		Token:          cfg.Roster.Token,
		TokenHeader:    cfg.Proxy.TokenHeader,
		FetchTimeout:   cfg.Proxy.FetchTimeout,
		MaxBytes:       cfg.Proxy.MaxBytes,
		DefaultQuality: cfg.Proxy.DefaultQuality,
		CacheTTL:       cfg.Proxy.CacheTTL,
	}, nil, cacheSvc, metrics, validate, logr)

	authSvc, err := service.NewAuthService(validate, logr, service.AuthConfig{
		Enabled:           cfg.Auth.Enabled,
		PasswordHash:      cfg.Auth.PasswordHash,
		Password:          cfg.Auth.Password,
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
	})
	if err != nil {
		return nil, err
	}

	layout, err := export.LoadLayout(cfg.Cards.LayoutFile)
	if err != nil {
		return nil, err
	}

	sessions := repository.NewSessionRepository(cfg.Sessions.TTL)
	go sweepSessions(ctx, sessions, logr)

	selectionSvc := service.NewSelectionService(sessions, rosterSvc, logr)
	staffSvc := service.NewStaffService(sessions, validate, logr)
	cardSvc := service.NewCardService(sessions, rosterSvc, proxySvc, export.NewCardRenderer(layout), export.NewCSVExporter(), metrics, logr, service.CardServiceConfig{
		FilenamePrefix:   cfg.Cards.FilenamePrefix,
		PhotoConcurrency: cfg.Cards.PhotoConcurrency,
		PhotoTimeout:     cfg.Cards.PhotoTimeout,
		PhotoSize:        cfg.Cards.PhotoSize,
	})

	var cardJobSvc *service.CardJobService
	if cfg.Cards.AsyncEnabled {
		cardJobSvc, err = buildCardJobs(ctx, cfg, cardSvc, metrics, logr, app)
		if err != nil {
			return nil, err
		}
	}

	deps := routerDeps{
		cfg:      cfg,
		logger:   logr,
		metrics:  metrics,
		auth:     authSvc,
		health:   handler.NewMetricsHandler(metrics, map[string]handler.Pinger{"redis": cacheRepo}),
		proxy:    handler.NewProxyHandler(proxySvc, metrics),
		authH:    handler.NewAuthHandler(authSvc),
		roster:   handler.NewRosterHandler(rosterSvc, metrics),
		sessions: handler.NewSessionHandler(selectionSvc, validate),
		staff:    handler.NewStaffHandler(staffSvc),
	}
	if cardJobSvc != nil {
		deps.cards = handler.NewCardHandler(cardSvc, cardJobSvc, validate)
	} else {
		deps.cards = handler.NewCardHandler(cardSvc, nil, validate)
	}
	app.router = newRouter(deps)
	return app, nil
}

func buildCardJobs(ctx context.Context, cfg *config.Config, cards *service.CardService, metrics *service.MetricsService, logr *zap.Logger, app *application) (*service.CardJobService, error) {
	fs, err := storage.NewLocalStorage(cfg.Cards.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("card storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Cards.SignedURLSecret, cfg.Cards.SignedURLTTL)
	svc := service.NewCardJobService(repository.NewCardJobRepository(), cards, nil, fs, signer, metrics, logr, service.CardJobServiceConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Cards.SignedURLTTL,
		CleanupInterval: cfg.Cards.CleanupInterval,
	})
	queue := jobs.NewQueue("card-batches", svc.Handle, jobs.QueueConfig{
		Workers:    cfg.Cards.WorkerConcurrency,
		MaxRetries: cfg.Cards.WorkerRetries,
		OnGiveUp:   svc.GiveUp,
		Logger:     logr,
	})
	svc.SetQueue(queue)
	queue.Start(ctx)
	app.closers = append(app.closers, queue.Stop)
	svc.StartCleanup(ctx)
	return svc, nil
}

func sweepSessions(ctx context.Context, sessions *repository.SessionRepository, logr *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(); n > 0 {
				logr.Debug("expired sessions removed", zap.Int("count", n))
			}
		}
	}
}
