package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/scoreflow/scoreflow/pkg/api"
	"github.com/scoreflow/scoreflow/pkg/auth"
	"github.com/scoreflow/scoreflow/pkg/breaker"
	"github.com/scoreflow/scoreflow/pkg/cache"
	"github.com/scoreflow/scoreflow/pkg/config"
	"github.com/scoreflow/scoreflow/pkg/logging"
	"github.com/scoreflow/scoreflow/pkg/metrics"
	"github.com/scoreflow/scoreflow/pkg/providers"
	"github.com/scoreflow/scoreflow/pkg/ratelimit"
	"github.com/scoreflow/scoreflow/pkg/retry"
	"github.com/scoreflow/scoreflow/pkg/scoring"
	"github.com/scoreflow/scoreflow/pkg/shutdown"
	"github.com/scoreflow/scoreflow/pkg/store"
	"github.com/scoreflow/scoreflow/pkg/tenancy"
	"github.com/scoreflow/scoreflow/pkg/tracing"
	"github.com/scoreflow/scoreflow/pkg/worker"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	metricsAddr := flag.String("metrics-listen", ":9090", "Prometheus metrics address")
	dbDriver := flag.String("db-driver", "", "Store driver: memory, sqlite, postgres (overrides config)")
	dbDSN := flag.String("db-dsn", "", "Store DSN (overrides config)")
	workers := flag.Int("workers", 0, "Worker count (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	openAccess := flag.Bool("open-access", false, "Accept requests without API keys (development mode)")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dbDriver != "" {
		cfg.Store.Driver = *dbDriver
	}
	if *dbDSN != "" {
		cfg.Store.DSN = *dbDSN
	}
	if *workers > 0 {
		cfg.Workers.Count = *workers
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := logging.NewFileLogger("scored", logging.ParseLevel(cfg.LogLevel), cfg.LogFormat == "json")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Info("Starting scoring server", map[string]interface{}{
		"listen": cfg.ListenAddr,
		"store":  cfg.Store.Driver,
	})

	tracer, err := tracing.Init(tracing.Config{
		ServiceName:    "scored",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", map[string]interface{}{"error": err.Error()})
	}

	jobStore, err := store.NewStore(store.Config{
		Driver:          cfg.Store.Driver,
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.Store.ConnMaxLifetime, 30*time.Minute),
	})
	if err != nil {
		logger.Fatal("Failed to initialize store", map[string]interface{}{"error": err.Error()})
	}

	registry := providers.NewRegistry()
	for _, pc := range cfg.Providers {
		registry.Register(providers.NewHTTPProvider(providers.HTTPProviderConfig{
			Name:     pc.Name,
			Endpoint: pc.Endpoint,
			APIKey:   pc.APIKey,
			Enabled:  pc.Enabled,
			Timeout:  config.Duration(pc.Timeout, 5*time.Second),
		}))
		logger.Info("Registered provider", map[string]interface{}{
			"provider": pc.Name,
			"enabled":  pc.Enabled,
		})
	}
	for tier, names := range cfg.Tiers {
		registry.SetTier(tier, names)
	}

	circuits := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Window:           config.Duration(cfg.Breaker.Window, time.Minute),
		HalfOpenDelay:    config.Duration(cfg.Breaker.HalfOpenDelay, time.Minute),
	})

	var resultCache *cache.Cache
	cacheStop := make(chan struct{})
	if cfg.Cache.Enabled {
		resultCache = cache.New(config.Duration(cfg.Cache.TTL, time.Hour))
		resultCache.StartJanitor(config.Duration(cfg.Cache.JanitorInterval, 5*time.Minute), cacheStop)
	}

	invoker := scoring.NewInvoker(registry, circuits, scoring.Config{
		JobTimeout:       config.Duration(cfg.Scoring.JobTimeout, 30*time.Second),
		MinSuccessful:    cfg.Scoring.MinSuccessful,
		StrictMinSuccess: cfg.Scoring.StrictMinSuccess,
		Retry: retry.Config{
			MaxAttempts: cfg.Scoring.Retry.MaxAttempts,
			MinBackoff:  config.Duration(cfg.Scoring.Retry.MinBackoff, 500*time.Millisecond),
			MaxBackoff:  config.Duration(cfg.Scoring.Retry.MaxBackoff, 10*time.Second),
		},
	})

	exporter := metrics.NewExporter(jobStore, resultCache, circuits)
	invoker.SetMetricsRecorder(exporter)

	pool := worker.NewPool(jobStore, invoker, resultCache, logger, worker.Config{
		Workers:      cfg.Workers.Count,
		PollInterval: config.Duration(cfg.Workers.PollInterval, 250*time.Millisecond),
	})
	pool.Start(context.Background())

	keys := auth.NewKeyManager()
	limiter := ratelimit.NewWindowLimiter(config.Duration(cfg.RateLimit.Window, time.Minute))
	handler := api.NewHandler(jobStore, resultCache, limiter, registry, circuits, keys, logger)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	tenantMW := tenancy.NewMiddleware(keys, jobStore, logger)
	tenantMW.Optional = *openAccess
	burst := ratelimit.NewBurstLimiter(cfg.RateLimit.BurstRPS, cfg.RateLimit.Burst)

	// Health and tenant administration stay reachable without a key;
	// tenant creation is how keys get issued in the first place.
	protected := tenantMW.Handler(router)
	authRouter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/tenants" || strings.HasPrefix(r.URL.Path, "/tenants/") {
			router.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})

	chain := tracing.HTTPMiddleware(tracer)(
		burst.Middleware(ratelimit.IPKeyFunc)(authRouter))

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      chain,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", exporter)
	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: metricsMux}

	shutdownMgr := shutdown.New(30*time.Second, logger)
	shutdownMgr.Register(shutdown.CloseResource(jobStore, "store"))
	shutdownMgr.Register(func(ctx context.Context) error {
		close(cacheStop)
		return tracer.Shutdown(ctx)
	})
	shutdownMgr.Register(shutdown.StopPool(pool))
	shutdownMgr.Register(shutdown.StopHTTPServer(metricsSrv, "metrics"))
	shutdownMgr.Register(shutdown.StopHTTPServer(srv, "api"))

	go func() {
		logger.Info("Metrics listening", map[string]interface{}{"addr": *metricsAddr})
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	go func() {
		logger.Info("API listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	shutdownMgr.Wait()
}
