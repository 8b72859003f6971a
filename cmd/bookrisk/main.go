package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rewired-gh/bookrisk/internal/config"
	"github.com/rewired-gh/bookrisk/internal/logger"
	"github.com/rewired-gh/bookrisk/internal/metrics"
	"github.com/rewired-gh/bookrisk/internal/monitor"
	"github.com/rewired-gh/bookrisk/internal/prefs"
	"github.com/rewired-gh/bookrisk/internal/riskapi"
	"github.com/rewired-gh/bookrisk/internal/server"
	"github.com/rewired-gh/bookrisk/internal/storage"
	"github.com/rewired-gh/bookrisk/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

// digestStore is what the monitor and the /top command need from storage.
type digestStore interface {
	monitor.Store
	telegram.DigestSource
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Setup(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	logger.Info("Configuration loaded from %s", *configPath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		kv      storage.KV
		digests digestStore
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := storage.New(cfg.Storage.MaxAlerts, cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		kv, digests = store, store
	case "redis":
		rdb, err := storage.NewRedis(ctx, cfg.Storage.RedisURL, cfg.Storage.RedisPrefix)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		kv, digests = rdb, storage.NewMemory()
		logger.Info("Sort state stored in redis, digest history kept in memory")
	default:
		mem := storage.NewMemory()
		kv, digests = mem, mem
	}

	sortStates := prefs.NewSortStates(kv)
	sortStates.SetInitial(cfg.Ranking.SortState())

	m := metrics.New()

	api, stream := newClients(cfg, m)
	logger.Info("Risk API base: %s, stream base: %s", api.BaseURL(), stream.BaseURL())

	var wg sync.WaitGroup

	if cfg.Server.Enabled {
		srv := server.New(api, stream, sortStates, m, server.Config{
			Addr:            cfg.Server.Addr,
			RequestTimeout:  cfg.Server.RequestTimeout,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			Lookback:        cfg.Ranking.Lookback,
			Window:          cfg.Ranking.Window,
			IncludeInPlay:   cfg.Ranking.IncludeInPlay,
			Limit:           cfg.Ranking.Limit,
			RequireBookRisk: cfg.Ranking.RequireBookRisk,
			ExcludeStale:    cfg.Ranking.ExcludeStale,
			ExtremeOdds:     cfg.Display.ExtremeOdds,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.Error("View server stopped: %v", err)
				cancel()
			}
		}()
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, 0)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		telegramClient.ListenForCommands(ctx, digests)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.Monitor.Enabled {
		var notifier monitor.Notifier
		if telegramClient != nil {
			notifier = telegramClient
		}
		mon := monitor.New(api, digests, sortStates, notifier, m, monitor.Config{
			PollInterval:       cfg.Monitor.PollInterval,
			TopK:               cfg.Monitor.TopK,
			CooldownMultiplier: cfg.Monitor.CooldownMultiplier,
			Lookback:           cfg.Ranking.Lookback,
			Window:             cfg.Ranking.Window,
			IncludeInPlay:      cfg.Ranking.IncludeInPlay,
			Limit:              cfg.Ranking.Limit,
			RequireBookRisk:    cfg.Ranking.RequireBookRisk,
			ExcludeStale:       cfg.Ranking.ExcludeStale,
		})
		logger.Debug("Digest cooldown is %v", cfg.Monitor.Cooldown())
		wg.Add(1)
		go func() {
			defer wg.Done()
			mon.Run(ctx)
		}()
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received, cleaning up...")
	wg.Wait()
	logger.Info("Service stopped")
}

// newClients builds the main API client and the stream client. Raw ticks,
// replay, and data horizon are only served by the stream backend.
func newClients(cfg *config.Config, m *metrics.Metrics) (*riskapi.Client, *riskapi.Client) {
	clientCfg := riskapi.DefaultClientConfig()
	clientCfg.Timeout = cfg.API.Timeout
	clientCfg.MaxRetries = cfg.API.MaxRetries
	clientCfg.RetryDelay = cfg.API.RetryDelay
	clientCfg.RateLimit = cfg.API.RateLimit
	clientCfg.Burst = cfg.API.Burst
	if cfg.Display.StaleAfter > 0 {
		clientCfg.StaleAfter = cfg.Display.StaleAfter
	}

	api := riskapi.NewClient(cfg.API.APIBase("/"), clientCfg, riskapi.WithMetrics(m))
	stream := riskapi.NewClient(cfg.API.APIBase("/stream"), clientCfg, riskapi.WithMetrics(m))
	return api, stream
}
