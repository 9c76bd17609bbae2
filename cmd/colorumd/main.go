package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"colorum/internal/api"
	"colorum/internal/auth"
	"colorum/internal/config"
	"colorum/internal/gpx"
	"colorum/internal/ingest"
	"colorum/internal/metrics"
	"colorum/internal/model"
	"colorum/internal/northbound"
	"colorum/internal/store"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "colorumd").Logger()

	cfg, err := config.Load(os.Getenv("COLORUM_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration")
	}
	if err := os.MkdirAll(cfg.GPXDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.GPXDir).Msg("GPX directory")
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connect")
		}
		if err := pg.MigrateDir("db/migrations"); err != nil {
			logger.Fatal().Err(err).Msg("migrations")
		}
		st = pg
		logger.Info().Msg("using postgres store")
	} else {
		st = store.NewMemory()
		logger.Info().Msg("using in-memory store")
	}

	var broker api.EventBroker
	if cfg.RedisURL != "" {
		rb, err := api.NewRedisBroker(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis broker")
		}
		broker = rb
		logger.Info().Msg("using redis event broker")
	} else {
		broker = api.NewBroker()
	}

	metrics.RegisterDefault()

	loader := gpx.NewLoader(st, cfg.GPXDir, logger)
	devices := ingest.NewDeviceProcessor(st, loader, cfg.MaxDistanceM,
		api.ColorumAlerts{Broker: broker}, logger)
	routes := ingest.NewRouteReconciler(st, logger)

	var session *northbound.Session
	if cfg.Northbound.Address != "" {
		session = northbound.NewSession(cfg.Northbound.Address,
			time.Duration(cfg.Northbound.LoginTimeout), logger)
		session.Handle(northbound.EventDeviceBatch, func(data json.RawMessage) {
			var reports []model.DeviceReport
			if err := json.Unmarshal(data, &reports); err != nil {
				logger.Error().Err(err).Msg("malformed device batch from northbound")
				return
			}
			devices.ProcessBatch(context.Background(), reports)
		})
		session.Handle(northbound.EventRouteList, func(data json.RawMessage) {
			var refs []model.RouteRef
			if err := json.Unmarshal(data, &refs); err != nil {
				logger.Error().Err(err).Msg("malformed route list from northbound")
				return
			}
			if _, _, err := routes.Apply(context.Background(), refs); err != nil {
				logger.Error().Err(err).Msg("route reconciliation from northbound")
			}
		})
		if cfg.Northbound.Username != "" {
			creds := northbound.Credentials{
				Username: cfg.Northbound.Username,
				Password: cfg.Northbound.Password,
			}
			if err := session.Connect(context.Background(), creds); err != nil {
				logger.Error().Err(err).Msg("northbound connect failed, waiting for credential rotation")
			}
		} else {
			logger.Info().Msg("northbound configured without credentials, session idle")
		}
	}

	srv := api.NewServer(st, devices, routes, session, broker,
		auth.NewVerifier(cfg.AuthMode, cfg.AuthHMACSecret),
		cfg.GPXDir, cfg.IngestRPS, cfg.IngestBurst, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/list_of_gps_devices", srv.DeviceBatchHandler)
	mux.HandleFunc("/list_of_routes", srv.RouteListHandler)
	mux.HandleFunc("/get_colorum_vehicles", srv.ColorumVehiclesHandler)
	mux.HandleFunc("/set_northbound_credentials", srv.NorthboundCredentialsHandler)
	mux.HandleFunc("/get_routes", srv.RoutesHandler)
	mux.HandleFunc("/associate_file_to_route", srv.AssociateFileHandler)
	mux.HandleFunc("/nuke", srv.NukeHandler)
	mux.HandleFunc("/colorum/stream", srv.ColorumStreamHandler)
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.LogMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if session != nil {
		if err := session.Disconnect(ctx); err != nil {
			logger.Error().Err(err).Msg("northbound disconnect")
		}
	}
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
