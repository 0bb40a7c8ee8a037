package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mindara-hq/eventdesk/pkg/api"
	"github.com/mindara-hq/eventdesk/pkg/audit"
	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/config"
	"github.com/mindara-hq/eventdesk/pkg/events"
	"github.com/mindara-hq/eventdesk/pkg/httputil"
	"github.com/mindara-hq/eventdesk/pkg/notifications"
	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/policy"
	"github.com/mindara-hq/eventdesk/pkg/reports"
	"github.com/mindara-hq/eventdesk/pkg/sso"
	"github.com/mindara-hq/eventdesk/pkg/storage"
	"github.com/mindara-hq/eventdesk/pkg/users"
)

const (
	version = "1.0.0"

	policyCacheSize = 4096
	policyCacheTTL  = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "eventdesk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	db, err := storage.Connect(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("database ready")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.UpdateDBStats(db.Stats())
		}
	}()

	var cache *storage.RedisClient
	if cfg.Storage.RedisURL != "" {
		cache, err = storage.NewRedisClient(cfg.Storage)
		if err != nil {
			// degraded mode: unread counts fall back to the database
			logger.WithError(err).Warn("redis unavailable, continuing without cache")
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	var archive *storage.S3Client
	if cfg.Storage.S3Bucket != "" {
		archive, err = storage.NewS3Client(cfg.Storage)
		if err != nil {
			return fmt.Errorf("initializing report archive: %w", err)
		}
	}

	trail, err := audit.NewTrail(db)
	if err != nil {
		return err
	}

	branding, err := config.NewBrandingWatcher(cfg.BrandingPath, logger)
	if err != nil {
		return err
	}
	defer branding.Close()

	engine := policy.NewEngine(policyCacheSize, policyCacheTTL, metrics)
	authStore := auth.NewStore(db)

	eventService := events.NewService(events.NewStore(db), engine, metrics, logger)
	notifService := notifications.NewService(notifications.NewStore(db), engine, cache, metrics, logger)
	userService := users.NewService(users.NewStore(db), engine, trail, logger)
	reportService := reports.NewService(
		reports.NewBuilder(eventService),
		reports.NewHistoryStore(db),
		archive, trail, metrics, logger)

	if err := eventService.RefreshStageGauge(ctx); err != nil {
		logger.WithError(err).Warn("priming stage gauge")
	}

	authHandlers := auth.NewHandlers(authStore, trail, logger)
	ssoHandlers, err := buildSSO(ctx, cfg.SSO, db, authStore, trail, logger)
	if err != nil {
		return err
	}

	public := []api.RouteRegistrar{
		api.RegistrarFunc(authHandlers.RegisterPublicRoutes),
		api.RegistrarFunc(func(router *mux.Router) {
			router.HandleFunc("/branding", func(w http.ResponseWriter, r *http.Request) {
				httputil.WriteSuccess(w, branding.Current())
			}).Methods("GET")
		}),
	}
	if ssoHandlers != nil {
		public = append(public, ssoHandlers)
	}

	server := api.NewServer(api.Options{
		Sessions: authStore,
		Public:   public,
		Protected: []api.RouteRegistrar{
			api.RegistrarFunc(authHandlers.RegisterProtectedRoutes),
			events.NewHandlers(eventService, logger),
			notifications.NewHandlers(notifService, logger),
			users.NewHandlers(userService, logger),
			reports.NewHandlers(reportService, logger),
		},
		Logger:  logger,
		Metrics: metrics,
		Tracing: cfg.Observability.OTelEnabled,
	})

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}

	healthSrv := healthServer(cfg, db, cache, registry)
	go func() {
		logger.Infof("health server listening on :%s", cfg.Server.HealthPort)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server stopped")
		}
	}()

	httpSrv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		logger.Infof("eventdesk listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server stopped")
		}
	}()

	manager := observability.NewShutdownManager(logger, httpSrv, cfg.Server.ShutdownTimeout)
	manager.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthSrv.Shutdown(ctx)
	})
	if providers != nil {
		manager.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}
	return manager.WaitForShutdown()
}

// buildSSO assembles the configured SSO providers. Returns nil handlers
// when no provider is enabled.
func buildSSO(ctx context.Context, cfg config.SSOConfig, db *sql.DB, store *auth.Store, trail *audit.Trail, logger *observability.Logger) (*sso.Handlers, error) {
	var providers []sso.Provider

	if cfg.OIDCEnabled {
		p, err := sso.NewOIDCProvider(ctx, sso.OIDCOptions{
			IssuerURL:    cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCSecret,
			RedirectURL:  cfg.OIDCRedirect,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring oidc: %w", err)
		}
		providers = append(providers, p)
		logger.Info("oidc login enabled")
	}

	if cfg.SAMLEnabled {
		p, err := sso.NewSAMLProvider(ctx, sso.SAMLOptions{
			MetadataURL:          cfg.SAMLMetadataURL,
			EntityID:             cfg.SAMLEntityID,
			AssertionConsumerURL: cfg.SAMLAssertionURL,
			CertPath:             cfg.SAMLCertPath,
			KeyPath:              cfg.SAMLKeyPath,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring saml: %w", err)
		}
		providers = append(providers, p)
		logger.Info("saml login enabled")
	}

	if len(providers) == 0 {
		return nil, nil
	}
	return sso.NewHandlers(providers, sso.NewProvisioner(db), store, trail, logger), nil
}

// healthServer serves probes and metrics on a separate port so they
// never sit behind the auth gate.
func healthServer(cfg *config.Config, db *sql.DB, cache *storage.RedisClient, registry *prometheus.Registry) *http.Server {
	var redisClient *redis.Client
	if cache != nil {
		redisClient = cache.Underlying()
	}
	checker := observability.NewHealthChecker(db, redisClient, version)

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return &http.Server{
		Addr:    ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
}
