package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"MarketReplay/internal/collector"
	"MarketReplay/internal/config"
	"MarketReplay/internal/export"
	"MarketReplay/internal/ledger"
	"MarketReplay/internal/model"
	"MarketReplay/internal/notifier"
	"MarketReplay/internal/playback"
	"MarketReplay/internal/recorder"
	"MarketReplay/internal/scheduler"
	"MarketReplay/internal/server"
	"MarketReplay/internal/session"
	"MarketReplay/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] MarketReplay starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("[FATAL] load timezone: %v", err)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init data source
	fetcher := newFetcher(cfg, loc)
	if fetcher != nil {
		log.Printf("[INFO] data source: %s", fetcher.Name())
	} else {
		log.Println("[INFO] data source: synthetic only")
	}
	seed := cfg.DataSource.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	loader := collector.NewLoader(fetcher, collector.NewGenerator(loc, seed), loc)

	// Init state storage
	storeDSN := cfg.Storage.DSN
	if cfg.Storage.Driver == storage.DriverSQLite && storeDSN == "" {
		storeDSN = cfg.Storage.Path
	}
	store, err := storage.Open(ctx, storage.Options{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    storeDSN,
		Redis: storage.RedisOptions{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		},
	})
	if err != nil {
		log.Fatalf("[FATAL] open storage: %v", err)
	}
	defer store.Close()

	// Init recorder
	var rec recorder.Recorder
	if cfg.Journal.Driver != "none" {
		sr, err := recorder.NewSQLRecorder(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			log.Printf("[WARN] init %s recorder failed, using noop: %v", cfg.Journal.Driver, err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)

	// Init ledger; resets are journaled and announced
	initialCash := decimal.NewFromFloat(cfg.Ledger.InitialCash)
	var sched *scheduler.Scheduler
	lm := ledger.NewManager(store, ledger.Options{
		InitialCash:   initialCash,
		ResetInterval: cfg.ResetEvery(),
		OnReset: func(chartID string, at time.Time) {
			log.Printf("[INFO] ledger reset on %s at %s", chartID, at.Format(time.RFC3339))
			if err := rec.RecordReset(&recorder.ResetEvent{ChartID: chartID, At: at, InitialCash: cfg.Ledger.InitialCash}); err != nil {
				log.Printf("[ERROR] record reset: %v", err)
			}
			if sched != nil {
				go sched.NotifyReset(chartID, at, initialCash)
			}
		},
	})

	// Init playback and session
	engine := playback.NewEngine(playback.WallClock{}, cfg.BaseTick())
	if err := engine.SetSpeed(cfg.Replay.Speed); err != nil {
		log.Fatalf("[FATAL] playback speed: %v", err)
	}
	sess := session.New(loader, engine, lm, store, session.Options{
		Day:                     cfg.ReplayDay(time.Now(), loc),
		Primary:                 session.SlotConfig{Symbol: cfg.Replay.Primary.Symbol, Timeframe: model.Timeframe(cfg.Replay.Primary.Timeframe)},
		Secondary:               session.SlotConfig{Symbol: cfg.Replay.Secondary.Symbol, Timeframe: model.Timeframe(cfg.Replay.Secondary.Timeframe)},
		PersistAcrossTimeframes: cfg.Replay.PersistAcrossTimeframes,
		Recorder:                rec,
	})
	if err := sess.Init(ctx); err != nil {
		log.Fatalf("[FATAL] load session: %v", err)
	}
	defer engine.Stop()

	// Init scheduler
	sched = scheduler.NewScheduler(ctx, sess, rec, tn, export.NewSaver(cfg.Schedule.ExportFormat), cfg.Schedule.ExportDir)
	if err := sched.RegisterAll(cfg.Schedule.SnapshotCron, cfg.Schedule.ExportCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start WebSocket server
	srv := server.New(cfg.Server.Addr, sess)
	go func() {
		if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] server: %v", err)
			cancel()
		}
	}()

	// Start Telegram polling
	if tn.Enabled() {
		go tn.StartPolling(ctx, sess.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	log.Println("[INFO] MarketReplay is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Println("[INFO] shutdown signal received, stopping...")
	case <-ctx.Done():
	}
	cancel()
	log.Println("[INFO] MarketReplay stopped")
}

// newFetcher returns the configured provider, or nil for synthetic data only.
func newFetcher(cfg *config.Config, loc *time.Location) collector.Fetcher {
	switch cfg.DataSource.Provider {
	case config.ProviderAlphaVantage:
		return collector.NewAlphaVantageFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy, loc)
	case config.ProviderYahoo:
		return collector.NewYahooFetcher(cfg.Proxy, loc)
	case config.ProviderParquet:
		return collector.NewParquetFetcher(cfg.DataSource.DataDir, loc)
	default:
		return nil
	}
}
