package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ecowatch/air-quality-service/internal/aggregator"
	"github.com/ecowatch/air-quality-service/internal/cache"
	"github.com/ecowatch/air-quality-service/internal/circuitbreaker"
	"github.com/ecowatch/air-quality-service/internal/config"
	httphandler "github.com/ecowatch/air-quality-service/internal/http"
	"github.com/ecowatch/air-quality-service/internal/lifecycle"
	"github.com/ecowatch/air-quality-service/internal/observability"
	"github.com/ecowatch/air-quality-service/internal/provider"
	"github.com/ecowatch/air-quality-service/internal/weather"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	providers := buildProviders(cfg, logger)
	if len(providers) == 0 {
		logger.Warn("no air-quality provider key configured; AQI endpoints will return errors")
	}

	agg := aggregator.New(cacheSvc, providers, cfg.CacheTTL, aggregator.NewDelayPacer(cfg.PacingDelay), logger)
	if cfg.CoalesceEnabled {
		agg.EnableCoalescing(cfg.CoalesceTimeout)
		logger.Info("request coalescing enabled", zap.Duration("timeout", cfg.CoalesceTimeout))
	}

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	var weatherService *weather.Service
	if cfg.OpenWeatherAPIKey != "" {
		weatherClient, err := weather.NewOpenWeatherClientWithRetry(
			cfg.OpenWeatherAPIKey,
			cfg.OpenWeatherAPIURL,
			cfg.ProviderTimeout,
			cfg.RetryAttempts,
			cfg.RetryBaseDelay,
			cfg.RetryMaxDelay,
		)
		if err != nil {
			logger.Fatal("weather client", zap.Error(err))
		}
		weatherService = weather.NewService(weatherClient, logger)
	} else {
		logger.Warn("OPENWEATHER_API_KEY not set; weather endpoints disabled")
	}

	var cachePing func() error
	if memcacheCloser != nil {
		cachePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(agg, weatherService, logger, cachePing, cfg.OverloadWindow)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Warming runs under the signal context so shutdown cancels an in-flight
	// paced sweep instead of letting it keep calling upstreams.
	if cfg.WarmCache && len(providers) > 0 {
		warmer := aggregator.NewWarmer(agg, logger)
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(ctx, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		} else {
			go func() {
				warmCtx, cancel := context.WithTimeout(ctx, cfg.BulkTimeout)
				defer cancel()
				if err := warmer.Warm(warmCtx); err != nil {
					logger.Warn("cache warming failed", zap.Error(err))
				}
			}()
		}
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/api/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))

	// The bulk air-quality route paces one upstream call per uncached city,
	// so it gets a longer deadline than the single-city routes.
	bulkTimeout := httphandler.TimeoutMiddleware(cfg.BulkTimeout)
	reqTimeout := httphandler.TimeoutMiddleware(cfg.RequestTimeout)
	api.Handle("/air-quality", bulkTimeout(http.HandlerFunc(handler.ListAirQuality))).Methods("GET")
	api.Handle("/air-quality/{cityId}", reqTimeout(http.HandlerFunc(handler.GetAirQuality))).Methods("GET")

	api.Handle("/weather", reqTimeout(http.HandlerFunc(handler.ListWeather))).Methods("GET")
	api.Handle("/weather/{cityId}", reqTimeout(http.HandlerFunc(handler.GetWeather))).Methods("GET")
	api.Handle("/weather/{cityId}/uv", reqTimeout(http.HandlerFunc(handler.GetUV))).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.BulkTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// buildProviders assembles the air-quality fallback chain in preference
// order: IQAir first (better regional coverage for Central Asia), AQICN as
// the wider fallback. A provider with no key simply isn't in the chain.
func buildProviders(cfg *config.Config, logger *zap.Logger) []provider.Reader {
	var providers []provider.Reader

	if cfg.IQAirAPIKey != "" {
		iq, err := provider.NewIQAirClient(cfg.IQAirAPIKey, cfg.IQAirAPIURL, cfg.ProviderTimeout)
		if err != nil {
			logger.Fatal("iqair client", zap.Error(err))
		}
		providers = append(providers, wrapWithBreaker(cfg, iq))
		logger.Info("air-quality provider enabled", zap.String("provider", "iqair"))
	}
	if cfg.AQICNAPIKey != "" {
		aq, err := provider.NewAQICNClient(cfg.AQICNAPIKey, cfg.AQICNAPIURL, cfg.ProviderTimeout)
		if err != nil {
			logger.Fatal("aqicn client", zap.Error(err))
		}
		providers = append(providers, wrapWithBreaker(cfg, aq))
		logger.Info("air-quality provider enabled", zap.String("provider", "aqicn"))
	}
	return providers
}

func wrapWithBreaker(cfg *config.Config, r provider.Reader) provider.Reader {
	if !cfg.CircuitBreakerEnabled {
		return r
	}
	component := string(r.Source())
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(component, int(to))
		},
	})
	observability.SetCircuitBreakerStateGauge(component, int(circuitbreaker.StateClosed))
	return provider.WithBreaker(r, cb)
}
