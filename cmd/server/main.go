package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scrappos/internal/config"
	"scrappos/internal/infra"
	"scrappos/internal/repository"
	"scrappos/internal/router"
	"scrappos/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: pretty in development, JSON in production
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	if err := infra.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// ctx bounds the worker pool, the settlement cron and every background
	// poll; cancelling it is the first step of the shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway := infra.NewPaymentGateway(cfg.PaymentGatewayURL, cfg.PaymentGatewayToken)
	gatewayCB := infra.NewCircuitBreaker("payment_gateway", infra.DefaultCBConfig())
	geoCache := infra.NewGeoCache(cfg.GeoIPCacheTTL)
	geoCache.StartPurge(ctx, cfg.GeoIPCacheTTL)
	geo := infra.NewGeoIPClient(cfg.GeoIPURL, geoCache)
	mailer := infra.NewMailer(cfg)
	dispatcher := worker.NewDispatcher(rdb)

	workerHandlers := &worker.WorkerHandlers{
		Receipt: worker.NewReceiptWorker(dispatcher, cfg.ReceiptStoragePath),
		Email:   worker.NewEmailWorker(mailer),
	}
	worker.StartWorkerPool(ctx, rdb, workerHandlers, cfg.WorkerPoolSize)

	r, checkoutSvc := router.New(ctx, cfg, db, rdb, router.Deps{
		Gateway:   gateway,
		GatewayCB: gatewayCB,
		Geo:       geo,
		Receipts:  dispatcher,
	})

	liqRepo := repository.NewLiquidacionRepository(db)
	// polls of the previous process died with it
	if _, err := worker.RecoverOrphans(ctx, liqRepo, time.Now()); err != nil {
		log.Fatal().Err(err).Msg("failed to recover orphaned settlements")
	}
	worker.StartSettlementCron(ctx, worker.SettlementCronConfig{
		Repo:    liqRepo,
		Gateway: gateway,
		CB:      gatewayCB,
		RDB:     rdb,
		Resolve: checkoutSvc.ResolverTardio,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("scrappos listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	// Pending polls hand their settlements over to the cron of the next run.
	cancel()
	checkoutSvc.Wait()
	log.Info().Msg("server exited")
}
