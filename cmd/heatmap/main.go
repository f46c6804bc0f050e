package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"MarketHeatmap/internal/api"
	"MarketHeatmap/internal/cache"
	"MarketHeatmap/internal/collector"
	"MarketHeatmap/internal/config"
	"MarketHeatmap/internal/fallback"
	"MarketHeatmap/internal/logging"
	"MarketHeatmap/internal/notifier"
	"MarketHeatmap/internal/pipeline"
	"MarketHeatmap/internal/recorder"
	"MarketHeatmap/internal/scheduler"
	"MarketHeatmap/internal/tree"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("config validation: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("MarketHeatmap starting...")

	heatmap := tree.Default()
	fixtures := heatmap.FixturePrices()

	// Init fetcher
	fetcher, err := newFetcher(cfg, fixtures, logger)
	if err != nil {
		logger.Fatalf("init fetcher: %v", err)
	}
	logger.WithField("provider", fetcher.Name()).Info("data source ready")

	// Init collector
	c := cache.New(cfg.Cache.QuoteTTL, cfg.Cache.ChartTTL)
	opts := []collector.Option{
		collector.WithLogger(logger),
		collector.WithRateLimit(cfg.Provider.CallsPerMinute, cfg.Batch.Size),
		collector.WithFetchTimeout(4 * cfg.Provider.Timeout),
	}
	if cfg.Synthetic.Enabled && cfg.Provider.Name != config.ProviderSynthetic {
		opts = append(opts, collector.WithSynthetic(
			collector.NewSyntheticFetcher(cfg.Synthetic.Seed, fixtures), cfg.Synthetic.ReprobeEvery))
	}
	col := collector.NewCollector(fetcher, c, opts...)

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.WithError(err).Warn("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(rec),
		pipeline.WithRenderHook(pipeline.RenderFunc(func(gen uint64) {
			logger.WithField("cycle", gen).Trace("tree updated")
		})),
	}

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	var alert *notifier.StatusAlert
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		alert = notifier.NewStatusAlert(ctx, tn, logger)
		pipeOpts = append(pipeOpts, pipeline.WithStatusHook(alert))
	}

	batches := scheduler.NewBatchScheduler(cfg.Batch.Size, cfg.Batch.Delay, logger)
	p := pipeline.New(col, c, heatmap, batches, pipeOpts...)

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, p, logger, cfg.Schedule.MarketHoursOnly)
	if err := sched.Register(cfg.Schedule.RefreshCron); err != nil {
		logger.Fatalf("register cron task: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("Telegram polling started")
	}

	if cfg.Schedule.RunOnStart {
		logger.Info("run_on_start enabled, loading the heat map now")
		go sched.RunNow()
	}

	// HTTP API
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(api.NewHandler(ctx, p, logger), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server stopped")
			cancel()
		}
	}()
	logger.WithField("addr", cfg.HTTP.Addr).Info("MarketHeatmap is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received, stopping...")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	cancel()
	if alert != nil {
		alert.Wait()
	}
	logger.Info("MarketHeatmap stopped")
}

// newFetcher builds the live source with its transport fallback chain:
// direct first, then each relay, then the forward proxy.
func newFetcher(cfg *config.Config, fixtures map[string]float64, logger *logrus.Logger) (collector.Fetcher, error) {
	if cfg.Provider.Name == config.ProviderSynthetic {
		return collector.NewSyntheticFetcher(cfg.Synthetic.Seed, fixtures), nil
	}

	client := &http.Client{Timeout: cfg.Provider.Timeout}
	strategies := []fallback.Strategy{fallback.Direct(client)}
	for _, tmpl := range cfg.Provider.Relays {
		strategies = append(strategies, fallback.Relay(tmpl, client))
	}
	if cfg.Proxy != "" {
		s, err := fallback.Proxy(cfg.Proxy, cfg.Provider.Timeout)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	chain := fallback.NewChain(cfg.Provider.Timeout, logger, strategies...)

	if cfg.Provider.Name == config.ProviderFinnhub {
		return collector.NewFinnhubFetcher(cfg.Provider.BaseURL, cfg.Provider.APIKey, chain), nil
	}
	return collector.NewYahooFetcher(chain), nil
}
