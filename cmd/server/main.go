package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fieldserve/backend/internal/config"
	"github.com/fieldserve/backend/internal/db"
	"github.com/fieldserve/backend/internal/dispatch"
	"github.com/fieldserve/backend/internal/drivetime"
	"github.com/fieldserve/backend/internal/geocode"
	httpapi "github.com/fieldserve/backend/internal/http"
	"github.com/fieldserve/backend/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "dispatch-backend").Logger()

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	if cfg.MigrateOnStartup {
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
	}

	var estimator drivetime.Estimator
	if cfg.DriveTimeURL == "" {
		estimator = drivetime.HaversineEstimator{}
		logger.Info().Msg("using haversine drive-time estimator")
	} else {
		estimator = drivetime.HTTPEstimator{BaseURL: cfg.DriveTimeURL}
	}

	geocoder := &geocode.NominatimGeocoder{
		BaseURL:   cfg.GeocoderBaseURL,
		UserAgent: cfg.GeocoderAgent,
	}

	recorder, err := metrics.NewRecorder(nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register metrics")
	}

	batch := &dispatch.BatchService{
		Store:     store,
		DriveTime: estimator,
		Logger:    logger,
	}

	router := httpapi.Router(cfg, store, batch, geocoder, recorder, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
