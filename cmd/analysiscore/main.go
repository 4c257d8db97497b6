// Command analysiscore is a minimal wiring example: it assembles the
// Analysis Task Engine and the Market-Data Service into one process and
// runs until signalled, with no HTTP transport of its own. The core is
// meant to be embedded in whatever service owns the outward-facing API
// (spec.md §1's "embeddable in any service process" non-goal) — this
// binary exists to prove the wiring compiles end to end, following the
// shape of the teacher's cmd/appserver/main.go (flag-light main, config
// load, signal-driven graceful shutdown) without its HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alphagbm/analysiscore/internal/adapter"
	"github.com/alphagbm/analysiscore/internal/adapter/providers"
	"github.com/alphagbm/analysiscore/internal/cache"
	"github.com/alphagbm/analysiscore/internal/config"
	"github.com/alphagbm/analysiscore/internal/logging"
	"github.com/alphagbm/analysiscore/internal/marketdata"
	"github.com/alphagbm/analysiscore/internal/metrics"
	"github.com/alphagbm/analysiscore/internal/protection"
	"github.com/alphagbm/analysiscore/internal/storage"
	"github.com/alphagbm/analysiscore/internal/taskengine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("analysiscore", cfg.Logging.Level, cfg.Logging.Format)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(rootCtx, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(rootCtx, db.DB); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	taskStore := storage.NewTaskRepository(db)
	dailyCacheStore := storage.NewDailyCacheRepository(db)
	stockHistoryStore := storage.NewStockHistoryRepository(db)
	optionsHistoryStore := storage.NewOptionsHistoryRepository(db)

	memCache := cache.New(cfg.MarketData.CacheMaxSize, true)
	dedup := cache.NewDeduplicator(cfg.MarketData.DedupWindow(), cfg.MarketData.DedupWaitTimeout())
	collector := metrics.New()

	mdService := marketdata.New(memCache, dedup, collector, logger)
	registerAdapters(mdService, cfg, logger)

	engine := taskengine.New(
		taskStore, dailyCacheStore, stockHistoryStore, optionsHistoryStore,
		stockAnalysisRunner(mdService),
		optionsAnalysisRunner(mdService),
		logger,
		cfg.TaskEngine.MaxWorkers,
	).WithWaitConfig(taskengine.WaitConfig{
		MaxWait:      cfg.TaskEngine.MaxWait(),
		PollInterval: cfg.TaskEngine.PollInterval(),
	})

	sched := cron.New()
	sched.Start()
	defer sched.Stop()

	collector.ScheduleSummaryLog(rootCtx, sched, logger, 0)
	engine.ScheduleMaintenance(rootCtx, sched, memCache.CleanupExpired, 3600)

	if err := engine.Init(rootCtx); err != nil {
		log.Fatalf("start task engine: %v", err)
	}

	logger.WithFields(map[string]interface{}{"workers": cfg.TaskEngine.MaxWorkers}).Info("analysiscore started")

	<-rootCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown task engine: %v", err)
	}
}

// registerAdapters wires the six reference adapters behind protection
// guards, per SPEC_FULL.md §4.A's table. YAML-configured providers (cfg's
// `providers:` map) override the table's defaults field by field; an
// adapter absent from the map still registers with the table's defaults,
// disabled by default (enabled must be turned on explicitly in config,
// since every adapter talks to a real external endpoint).
func registerAdapters(svc *marketdata.Service, cfg *config.Config, logger *logging.Logger) {
	type reg struct {
		name     string
		adapter  adapter.Adapter
		priority int
		protCfg  protection.Config
	}

	regs := []reg{
		{
			name:     "yfinance",
			adapter:  providers.NewYFinanceAdapter(os.Getenv("YFINANCE_BASE_URL")),
			priority: 10,
			protCfg:  protection.Config{RequestsPerMinute: 60, CooldownSeconds: 60, MaxConsecutiveFailures: 3},
		},
		{
			name:     "localdataset",
			adapter:  providers.NewLocalDatasetAdapter(),
			priority: 5,
			protCfg:  protection.Config{RequestsPerMinute: 0},
		},
		{
			name:     "tiger",
			adapter:  providers.NewTigerAdapter(os.Getenv("TIGER_BASE_URL"), os.Getenv("TIGER_API_KEY"), os.Getenv("TIGER_ACCOUNT_ID")),
			priority: 1,
			protCfg:  protection.Config{RequestsPerMinute: 120, CooldownSeconds: 30, MaxConsecutiveFailures: 5},
		},
		{
			name:     "alphavantage",
			adapter:  providers.NewAlphaVantageAdapter(os.Getenv("ALPHAVANTAGE_API_KEY")),
			priority: 20,
			protCfg:  protection.Config{RequestsPerMinute: 5, CooldownSeconds: 60, MaxConsecutiveFailures: 3},
		},
		{
			name:     "tushare",
			adapter:  providers.NewTushareAdapter(os.Getenv("TUSHARE_TOKEN")),
			priority: 2,
			protCfg:  protection.Config{RequestsPerMinute: 200, CooldownSeconds: 60, MaxConsecutiveFailures: 5},
		},
		{
			name:     "akshare",
			adapter:  providers.NewAkShareAdapter(os.Getenv("AKSHARE_BASE_URL")),
			priority: 1,
			protCfg:  protection.Config{RequestsPerMinute: 90, CooldownSeconds: 60, MaxConsecutiveFailures: 3},
		},
	}

	for _, r := range regs {
		providerCfg, configured := cfg.Providers[r.name]
		protCfg := r.protCfg
		enabled := configured && providerCfg.Enabled
		priority := r.priority
		if configured {
			protCfg = providerCfg.ToProtectionConfig(protCfg)
			if providerCfg.Priority != 0 {
				priority = providerCfg.Priority
			}
		}

		guard := protection.New(protCfg)
		svc.RegisterAdapter(r.adapter, guard, marketdata.ProviderConfig{Enabled: enabled, Priority: priority})

		if !enabled {
			logger.WithFields(map[string]interface{}{"provider": r.name}).Info("provider registered disabled, enable via config providers." + r.name + ".enabled")
		}
	}
}

// stockAnalysisRunner and optionsAnalysisRunner are illustrative stub
// AnalysisRunner collaborators: the real risk/EV/AI analysis pipeline is
// an injected caller-owned collaborator per spec.md §1's explicit
// non-goal ("does not implement analysis algorithms"), not something this
// core provides. They demonstrate how a real runner would reach the
// Market-Data Service for its underlying data.
func stockAnalysisRunner(svc *marketdata.Service) taskengine.StockAnalysisRunner {
	return func(ctx context.Context, ticker, style string) (map[string]any, error) {
		quote, err := svc.GetQuote(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("fetch quote for %s: %w", ticker, err)
		}
		if quote == nil {
			return map[string]any{"error": fmt.Sprintf("no quote data available for %s", ticker)}, nil
		}
		return map[string]any{
			"data": map[string]any{"price": quote.CurrentPrice},
			"risk": map[string]any{},
		}, nil
	}
}

func optionsAnalysisRunner(svc *marketdata.Service) taskengine.OptionsAnalysisRunner {
	return func(ctx context.Context, req taskengine.OptionsRunRequest) (map[string]any, error) {
		if req.Enhanced && strings.TrimSpace(req.OptionIdentifier) == "" {
			return map[string]any{"error": "missing option_identifier for enhanced analysis"}, nil
		}
		chain, err := svc.GetOptionsChain(ctx, req.Symbol, req.ExpiryDate)
		if err != nil {
			return nil, fmt.Errorf("fetch options chain for %s: %w", req.Symbol, err)
		}
		if chain == nil {
			return map[string]any{"error": fmt.Sprintf("no options chain available for %s", req.Symbol)}, nil
		}
		return map[string]any{"option_score": 0.0}, nil
	}
}
