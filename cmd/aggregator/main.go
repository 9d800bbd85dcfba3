package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SepehrMohammady/IranBlackout/internal/aggregate"
	"github.com/SepehrMohammady/IranBlackout/internal/alertfeed"
	"github.com/SepehrMohammady/IranBlackout/internal/cache"
	"github.com/SepehrMohammady/IranBlackout/internal/config"
	"github.com/SepehrMohammady/IranBlackout/internal/httpapi"
	"github.com/SepehrMohammady/IranBlackout/internal/logging"
	"github.com/SepehrMohammady/IranBlackout/internal/observability"
	"github.com/SepehrMohammady/IranBlackout/internal/settings"
	"github.com/SepehrMohammady/IranBlackout/internal/source"
	"github.com/SepehrMohammady/IranBlackout/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New("aggregator")

	var store cache.Store
	var ready func(context.Context) error
	if cfg.RedisURL != "" {
		redisStore, err := cache.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatalf("opening redis: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
		ready = func(ctx context.Context) error {
			_, _, err := redisStore.Get(ctx, "readyz")
			return err
		}
	} else {
		logger.Warn("no REDIS_URL configured, using in-memory store; cached data will not survive restarts")
		store = cache.NewMemoryStore()
	}

	dataCache := cache.New(store, "iranblackout:cache:", logger)

	ooni := source.NewOONIClient(cfg.OONIBaseURL, cfg.SourceTimeout, logger)
	ioda := source.NewIODAClient(cfg.IODABaseURL, cfg.SourceTimeout, logger)
	radar := source.NewRadarClient(cfg.RadarBaseURL, cfg.RadarAPIToken, cfg.SourceTimeout, logger)
	atlas := source.NewAtlasClient(cfg.AtlasBaseURL, cfg.SourceTimeout, logger)

	metrics := observability.NewMetrics(nil)
	observability.Start(ctx, cfg.MetricsAddr, logger, metrics.Registry(), ready)

	engine := aggregate.NewEngine(ooni, ioda, radar, atlas, dataCache, metrics, logger, aggregate.Config{
		Country:  cfg.CountryCode,
		CacheTTL: cfg.CacheTTL,
	})

	prefs := settings.New(store, logger)
	feed := alertfeed.New(ioda, dataCache, logger, cfg.CountryCode)
	reporter := telemetry.New(prefs, store, cfg.TelemetryEndpoint, cfg.SourceTimeout, logger)

	api := httpapi.NewServer(logger, engine, feed, reporter, ready)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Router()}

	go func() {
		logger.Info("aggregator listening", "addr", cfg.HTTPAddr, "country", cfg.CountryCode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	go refreshLoop(ctx, engine, feed, metrics, logger, cfg.RefreshInterval)

	<-ctx.Done()
	logger.Println("shutting down aggregator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// refreshLoop keeps the cached dashboard and alert feed warm so client
// requests are served from cache even when upstream sources are slow.
func refreshLoop(ctx context.Context, engine *aggregate.Engine, feed *alertfeed.Feed, metrics *observability.Metrics, logger *logging.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh := func() {
		if _, err := engine.Refresh(ctx); err != nil {
			logger.Warn("background refresh failed", "error", err.Error())
		}
		alerts, err := feed.List(ctx, source.LastDays(time.Now(), 1), alertfeed.Capacity)
		if err != nil {
			logger.Warn("background alert refresh failed", "error", err.Error())
			return
		}
		metrics.SetAlertFeed(len(alerts), feed.UnreadCount(ctx))
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
