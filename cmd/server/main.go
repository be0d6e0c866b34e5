// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

// Command server runs the Riskgate HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/riskgate/riskgate/internal/api"
	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/geoip"
	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/risk"
	"github.com/riskgate/riskgate/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("store_path", cfg.Store.Path).
		Msg("starting riskgate")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open event store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing event store")
		}
	}()

	var provider geoip.Provider
	if cfg.GeoIP.Endpoint != "" {
		provider = geoip.NewHTTPProvider(cfg.GeoIP.Endpoint, cfg.GeoIP.Timeout)
	} else {
		// Without a geolocation endpoint the geo-velocity detector
		// reports unknown locations rather than failing.
		logging.Warn().Msg("no geoip endpoint configured, geolocation disabled")
		provider = geoip.NewStaticProvider(nil)
	}

	engine := risk.NewEngine(cfg.Fusion, cfg.Detectors.Timeout,
		risk.NewGeoVelocityDetector(cfg.Detectors.GeoVelocity, st, provider),
		risk.NewAccountVelocityDetector(cfg.Detectors.AccountVelocity, st),
		risk.NewPasswordAttackDetector(cfg.Detectors.PasswordAttack, st),
		risk.NewSessionAnomalyDetector(cfg.Detectors.Session, st),
		risk.NewDeviceFingerprintDetector(st, cfg.Store.MaxFingerprints),
		risk.NewUserAgentDetector(),
		risk.NewIPReputationDetector(cfg.Detectors.IPReputation, st),
		risk.NewAccessTimeDetector(cfg.Detectors.AccessTime, st, nil),
	)

	router := api.NewRouter(cfg.Server, api.NewHandler(engine, st))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logging.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
	logging.Info().Msg("riskgate stopped")
}

// openStore opens the durable BadgerDB store, or an in-memory store
// when no path is configured. The badger value-log GC runs until ctx
// is cancelled.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	if cfg.Path == "" {
		logging.Warn().Msg("no store path configured, using in-memory store")
		return store.NewMemoryStore(cfg.MaxLoginHistory), nil
	}

	st, err := store.NewBadgerStore(store.BadgerOptions{
		Path:            cfg.Path,
		MaxLoginHistory: cfg.MaxLoginHistory,
		FailedLoginTTL:  cfg.FailedLoginTTL,
		RegistrationTTL: 2 * cfg.FailedLoginTTL,
	})
	if err != nil {
		return nil, err
	}

	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	st.StartGC(ctx, interval)
	return st, nil
}
