package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func serveCmd() *cobra.Command {
	var seedDemo bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and gRPC health server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), seedDemo)
		},
	}
	cmd.Flags().BoolVar(&seedDemo, "seed-demo", false, "with STORE=memory, register a demo provider, patient and location")
	return cmd
}

func runServer(parent context.Context, seedDemo bool) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := loadServiceConfig()
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext(parent)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	bookingMetrics := metrics.NewBookingMetrics(nil)
	offsets, skipped := policy.ParseReminderOffsets(cfg.ReminderOffsets)
	for _, s := range skipped {
		logger.Warn("invalid reminder offset", "value", s)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	deps := lifecycle.Deps{Logger: logger, Metrics: bookingMetrics}
	var source scheduling.ProviderSource
	var directory handlers.DirectoryWriter
	var publisher *outbox.Publisher
	var checks []runtime.ReadyCheck

	switch cfg.Store {
	case storeMemory:
		dir := scheduling.NewStaticDirectory()
		if seedDemo {
			seedDemoDirectory(dir, logger)
		}
		deps.Store = storage.NewMemoryStore()
		deps.Patients = dir
		deps.Locations = dir
		source = dir
		directory = dir
		logger.Info("using in-memory store; outbox events are not produced")
	case storePostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			return err
		}
		defer pool.Close()

		dir := storage.NewDirectoryRepository(pool)
		outboxRepo := outbox.NewRepository(policy.NewStaticReminders(offsets), logger)
		deps.Store = storage.NewBookingRepository(pool, outboxRepo)
		deps.Patients = dir
		deps.Locations = dir
		source = dir
		directory = dir
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		publisher = outbox.NewPublisher(pool, outboxRepo, logger, bookingMetrics, outbox.PublisherConfig{
			Brokers:   cfg.Brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
	}

	deps.Providers = source
	var hours handlers.HoursWriter = source
	var limiter httpx.Limiter = httpx.NewMemoryRateLimiter(cfg.RateLimit, cfg.RateWindow)
	if rdb != nil {
		cached := scheduling.NewCachedProviderDirectory(source, rdb, cfg.HoursCacheTTL, logger)
		deps.Providers = cached
		hours = cached
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateWindow, "clinicbook:ratelimit:")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if brokers := kafkax.SplitBrokers(cfg.Brokers); len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	manager := lifecycle.NewManager(deps)
	if publisher != nil {
		go publisher.Run(ctx)
	}

	grpcSrv := grpcx.NewServer(logger)
	grpcSrv.SetServing(cfg.Service, true)
	go func() {
		logger.Info("grpc server starting", "addr", ":"+cfg.GRPCPort)
		if err := grpcSrv.Serve(ctx, ":"+cfg.GRPCPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, logger, manager, hours, directory, limiter, checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}

// newRouter mounts health, metrics and the rate limited booking API behind the shared middleware.
func newRouter(cfg serviceConfig, logger *slog.Logger, appts handlers.Appointments, hours handlers.HoursWriter, directory handlers.DirectoryWriter, limiter httpx.Limiter, checks ...runtime.ReadyCheck) http.Handler {
	r := chi.NewRouter()
	runtime.HealthHandlers(r, checks...)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httpx.WithRateLimit(limiter, logger, cfg.RateFailOpen), httpx.WithBodyLimit(cfg.BodyLimit))
		handlers.NewAppointmentHandler(appts, hours, logger, cfg.SlotMinutes).Routes(r)
		handlers.NewDirectoryHandler(directory, logger).Routes(r)
	})

	h := httpx.Chain(r,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	return otelhttp.NewHandler(h, cfg.Service)
}

func seedDemoDirectory(dir *scheduling.StaticDirectory, logger *slog.Logger) {
	providerID := dir.AddProvider(model.Provider{Name: "Demo Provider", WorkingHours: model.DefaultWorkingHours()})
	patientID := dir.AddPatient(model.Patient{Name: "Demo Patient"})
	locationID := dir.AddLocation(model.Location{Name: "Main Clinic"})
	logger.Info("seeded demo directory", "provider_id", providerID, "patient_id", patientID, "location_id", locationID)
}
