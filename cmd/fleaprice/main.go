package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rewired-gh/fleaprice/internal/api"
	"github.com/rewired-gh/fleaprice/internal/catalog"
	"github.com/rewired-gh/fleaprice/internal/config"
	"github.com/rewired-gh/fleaprice/internal/history"
	"github.com/rewired-gh/fleaprice/internal/logger"
	"github.com/rewired-gh/fleaprice/internal/market"
	"github.com/rewired-gh/fleaprice/internal/metrics"
	"github.com/rewired-gh/fleaprice/internal/models"
	"github.com/rewired-gh/fleaprice/internal/pipeline"
	"github.com/rewired-gh/fleaprice/internal/publish"
	"github.com/rewired-gh/fleaprice/internal/storage"
	"github.com/rewired-gh/fleaprice/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	once       = flag.Bool("once", false, "Run a single aggregation cycle and exit")
)

func main() {
	flag.Parse()

	// registered first so deferred cleanup runs before exit
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)
	metrics.Init()

	store, err := storage.New(cfg.StorageOptions())
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	session, err := market.NewSession(cfg.Market.SessionToken)
	if err != nil {
		logger.Fatal("Invalid market session: %v", err)
	}
	marketClient := market.NewClient(market.Options{
		BaseURL:        cfg.Market.BaseURL,
		Timeout:        cfg.Market.Timeout,
		MaxRetries:     cfg.Market.MaxRetries,
		RetryDelayBase: cfg.Market.RetryDelayBase,
	})

	var publishers []pipeline.Publisher
	if cfg.Publish.XLSX.Enabled {
		wb := publish.NewWorkbook(cfg.Publish.XLSX.Path, cfg.Pipeline.Interval)
		publishers = append(publishers, wb)
		logger.Info("Publishing workbook to %s", wb.Path())
	}
	if cfg.Publish.Redis.Enabled {
		rp, err := publish.NewRedis(cfg.Publish.Redis.Addr, cfg.Publish.Redis.Password, cfg.Publish.Redis.DB, cfg.Publish.Redis.Prefix)
		if err != nil {
			logger.Fatal("Failed to initialize Redis publisher: %v", err)
		}
		defer rp.Close() //nolint:errcheck
		publishers = append(publishers, rp)
		logger.Info("Publishing to Redis at %s", cfg.Publish.Redis.Addr)
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.TopN, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		publishers = append(publishers, telegramClient)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	p, err := pipeline.New(pipeline.Deps{
		Catalog:    catalog.NewFileCatalog(cfg.Catalog.Path),
		Market:     marketClient,
		Session:    session,
		Store:      store,
		Publishers: publishers,
	}, pipeline.Config{
		Workers:         cfg.Pipeline.Workers,
		SkipFailedItems: cfg.Pipeline.SkipFailedItems,
		FetchBasePrices: cfg.Pipeline.FetchBasePrices,
		Pricing:         cfg.PricingOptions(),
		Periods:         cfg.History.Periods,
		Mode:            history.Mode(cfg.History.Mode),
	})
	if err != nil {
		logger.Fatal("Failed to initialize pipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		report, err := p.Run(ctx)
		if err != nil {
			logger.Error("Price update failed: %v", err)
			exitCode = 1
			return
		}
		logRun(report)
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.Addr, api.NewRouter(store, cfg.History.Periods, metrics.Handler()))
		go func() {
			logger.Info("API listening on %s", cfg.API.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("API server stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("API shutdown: %v", err)
			}
		}()
	}

	logger.Info("Starting price service (interval: %v, workers: %d, periods: %d, mode: %s)",
		cfg.Pipeline.Interval,
		cfg.Pipeline.Workers,
		cfg.History.Periods,
		cfg.History.Mode,
	)

	ticker := time.NewTicker(cfg.Pipeline.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(report *models.RunReport, err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Price update failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		logRun(report)
		if consecutiveFailures > 0 && telegramClient != nil {
			if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	logger.Debug("Running initial price update")
	handleCycleResult(p.Run(ctx))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled price update")
			handleCycleResult(p.Run(ctx))
		}
	}
}

func logRun(report *models.RunReport) {
	logger.Info("Run %s completed in %v: %d priced, %d skipped, %d failed, next slot %d",
		report.RunID, report.Duration(), report.Priced, report.Skipped, len(report.Failed), report.NextSlot)
}
