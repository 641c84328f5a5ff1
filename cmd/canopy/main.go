package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/canopyhq/canopy/pkg/api"
	"github.com/canopyhq/canopy/pkg/audit"
	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/config"
	"github.com/canopyhq/canopy/pkg/middleware"
	"github.com/canopyhq/canopy/pkg/observability"
	"github.com/canopyhq/canopy/pkg/permissions"
	"github.com/canopyhq/canopy/pkg/projects"
	"github.com/canopyhq/canopy/pkg/storage"
	"github.com/canopyhq/canopy/pkg/storage/postgres"
	"github.com/canopyhq/canopy/pkg/trees"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "canopy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting Canopy permission service")

	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	cm, err := postgres.NewConnectionManager(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer cm.Close()

	if err := runMigrations(ctx, cm); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	projectStore := projects.NewStore(cm.Primary())
	treeStore := trees.NewStore(cm.Primary())
	tokenStore := auth.NewTokenStore(cm.Primary())

	locator, err := permissions.NewLocator(projectStore)
	if err != nil {
		return err
	}
	service := permissions.NewService(
		locator,
		permissions.NewOwnershipResolver(treeStore),
		projectStore,
		projectStore,
		metrics,
		logger,
	)
	gate := permissions.NewGate(service, metrics)

	var auditLogger audit.Logger = audit.NewNopLogger()
	if cfg.Audit.Enabled {
		dbLogger, err := audit.NewDBLogger(cm.Primary())
		if err != nil {
			return fmt.Errorf("failed to create audit logger: %w", err)
		}
		auditLogger = dbLogger
	}

	var blobs storage.BlobStore
	if cfg.Storage.S3Bucket != "" {
		s3Client, err := postgres.NewS3Client(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create s3 client: %w", err)
		}
		blobs = s3Client
	} else {
		logger.Warn("No S3 bucket configured; attachment uploads are disabled")
	}

	var redisClient *postgres.RedisClient
	var rateLimit *middleware.RateLimitMiddleware
	if cfg.Storage.RedisURL != "" {
		redisClient, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		if cfg.RateLimit.Enabled {
			rateLimit = middleware.NewRateLimitMiddleware(redisClient.GetClient())
		}
	}

	// Bearer auth runs in optional mode: anonymous callers must reach the
	// permission gate so public projects stay readable without a token.
	authMW := middleware.NewAuthMiddleware(tokenStore, true)

	server := api.NewServer(api.ServerOptions{
		Gate:      gate,
		Projects:  projectStore,
		Trees:     treeStore,
		Tokens:    tokenStore,
		Audit:     auditLogger,
		Blobs:     blobs,
		Logger:    logger,
		Metrics:   metrics,
		Auth:      authMW,
		RateLimit: rateLimit,
	})

	var handler http.Handler = server
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "canopy-api")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := newHealthServer(cfg, cm, redisClient, registry)

	scheduler := startGaugeRefresh(cfg, logger, metrics, projectStore, treeStore)

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopped := scheduler.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return auditLogger.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	go func() {
		logger.Infof("Health and metrics server listening on :%s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.Infof("API server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
		}
	}()

	return shutdown.WaitForShutdown()
}

// runMigrations applies every component's schema migrations in dependency
// order. Users come first: every other component references users(id).
func runMigrations(ctx context.Context, cm *postgres.ConnectionManager) error {
	components := []struct {
		name       string
		migrations []postgres.Migration
	}{
		{"auth", auth.Migrations()},
		{"projects", projects.Migrations()},
		{"trees", trees.Migrations()},
		{"audit", audit.Migrations()},
	}
	for _, c := range components {
		if err := postgres.Migrate(ctx, cm.Primary(), c.name, c.migrations); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", c.name, err)
		}
	}
	return nil
}

// newHealthServer serves liveness, readiness, and Prometheus metrics on a
// separate port for k8s probes and scrapes.
func newHealthServer(cfg *config.Config, cm *postgres.ConnectionManager, redisClient *postgres.RedisClient, registry *prometheus.Registry) *http.Server {
	var redisConn *redis.Client
	if redisClient != nil {
		redisConn = redisClient.GetClient()
	}
	checker := observability.NewHealthChecker(cm.Primary(), redisConn)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", checker.Liveness)
	healthMux.HandleFunc("/readyz", checker.Readiness)
	healthMux.Handle("/metrics", observability.Handler(registry))

	return &http.Server{
		Addr:         ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// startGaugeRefresh keeps the business gauges current on a fixed schedule
func startGaugeRefresh(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics, projectStore *projects.Store, treeStore *trees.Store) *cron.Cron {
	refresh := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if n, err := projectStore.CountProjects(ctx); err == nil {
			metrics.ProjectsTotal.Set(float64(n))
		} else {
			logger.WithError(err).Warn("Failed to refresh project gauge")
		}
		if n, err := treeStore.CountTrees(ctx); err == nil {
			metrics.TreesTotal.Set(float64(n))
		} else {
			logger.WithError(err).Warn("Failed to refresh tree gauge")
		}
		if n, err := projectStore.CountActiveMembers(ctx); err == nil {
			metrics.ActiveMembersTotal.Set(float64(n))
		} else {
			logger.WithError(err).Warn("Failed to refresh member gauge")
		}
	}

	c := cron.New()
	schedule := fmt.Sprintf("@every %s", cfg.RateLimit.GaugeInterval)
	if _, err := c.AddFunc(schedule, refresh); err != nil {
		logger.WithError(err).Error("Failed to schedule gauge refresh")
		return c
	}
	c.Start()

	// Populate the gauges immediately instead of waiting a full interval
	go refresh()
	return c
}
