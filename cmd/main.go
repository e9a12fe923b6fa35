package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"librarylending/internal/checkout"
	"librarylending/internal/config"
	"librarylending/internal/database"
	"librarylending/internal/handlers"
	"librarylending/internal/middleware"
	"librarylending/internal/notify"
	"librarylending/internal/observability"
	"librarylending/internal/platform/logger"
	"librarylending/internal/repositories"
	"librarylending/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "library-lending: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, log, cfg.Env, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get generic DB: %w", err)
	}
	defer sqlDB.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema migrated")
	}

	var queue notify.Queue
	if cfg.Redis.Addr != "" {
		rq, err := notify.NewRedisQueue(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		defer rq.Close()
		queue = rq
		log.Info("notifications go to redis", "addr", cfg.Redis.Addr, "key", cfg.Redis.QueueKey)
	} else {
		queue = notify.NewLogQueue(log)
		log.Warn("REDIS_ADDR not set, notifications are only logged")
	}

	provider, err := checkout.NewStripeProvider(cfg.Payments.StripeSecretKey, cfg.Payments.Currency)
	if err != nil {
		return err
	}
	orchestrator := checkout.NewOrchestrator(provider, cfg.Payments.PublicBaseURL, cfg.Payments.FineMultiplier, log)

	bookRepo := repositories.NewBookRepository(db)
	borrowingRepo := repositories.NewBorrowingRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	outbox := notify.NewOutbox(repositories.NewOutboxRepository(db), queue, cfg.Outbox.BatchSize, log).
		WithMaxAttempts(cfg.Outbox.MaxAttempts)

	catalogService := services.NewCatalogService(db, bookRepo, borrowingRepo, log)
	borrowingService := services.NewBorrowingService(db, bookRepo, borrowingRepo, paymentRepo, orchestrator, outbox, log, time.Now)
	paymentService := services.NewPaymentService(db, bookRepo, borrowingRepo, paymentRepo, outbox, log, time.Now)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.Tracing.ServiceName),
		middleware.RequestID(),
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.RequestLogger(log),
	)

	handlers.RegisterRoutes(router, handlers.Deps{
		Catalog:    catalogService,
		Borrowings: borrowingService,
		Payments:   paymentService,
		Auth:       middleware.NewAuthenticator(log, cfg.Auth.JWTSecret),
		Log:        log,
		Ping:       sqlDB.PingContext,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.ServerAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return outbox.Run(gctx, cfg.Outbox.Interval())
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
