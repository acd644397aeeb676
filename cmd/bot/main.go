// Autonomous trading core for prediction markets.
//
// Architecture:
//
//	main.go              — entry point: loads config, wires components, starts the scheduler, waits for SIGINT/SIGTERM
//	scheduler/scheduler.go — Cycle Scheduler: the single writer that sequences every cycle step and owns RiskParams/PerformanceState
//	scanner/scanner.go   — discovers and filters open markets, caches books
//	evaluator/evaluator.go — prices MarketOpportunity candidates per strategy branch
//	risk/gate.go         — adapts RiskParams from performance feedback, gates and sizes opportunities
//	executor/executor.go — submits orders against the Exchange Port, classifies outcomes
//	reasoning/http.go    — optional external Reasoning Port over HTTP; falls back to a static Hold adapter
//	exchange/client.go   — live Polymarket CLOB REST adapter; exchange/paper.go — deterministic paper-mode simulator
//	performance/tracker.go — running win/loss, drawdown, and per-strategy statistics
//	store/store.go       — JSON persistence for RiskParams/PerformanceState, append-only trade audit log
//	api/server.go        — dashboard HTTP/WebSocket server over the Scheduler's event stream
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polymarket-mm/internal/api"
	"polymarket-mm/internal/cache"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/evaluator"
	"polymarket-mm/internal/exchange"
	"polymarket-mm/internal/executor"
	"polymarket-mm/internal/performance"
	"polymarket-mm/internal/reasoning"
	"polymarket-mm/internal/risk"
	"polymarket-mm/internal/scanner"
	"polymarket-mm/internal/scheduler"
	"polymarket-mm/internal/store"
	"polymarket-mm/internal/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("PMBOT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(*cfg)

	port, err := newExchangePort(*cfg, logger)
	if err != nil {
		logger.Error("failed to build exchange port", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open store", "error", err, "data_dir", cfg.Store.DataDir)
		os.Exit(1)
	}
	defer st.Close()

	marketCache := cache.New[[]types.Market](time.Duration(cfg.Cache.MarketsTTLSeconds)*time.Second, cfg.Cache.MaxSize)
	bookCache := cache.New[cache.MarketSnapshot](time.Duration(cfg.Cache.BookTTLSeconds)*time.Second, cfg.Cache.MaxSize)
	opportunityCache := cache.New[types.MarketOpportunity](time.Duration(cfg.Cache.OpportunityTTLSeconds)*time.Second, cfg.Cache.MaxSize)

	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	if cfg.Mode == "live" && cfg.Exchange.WSMarketURL != "" {
		warmBookCache(feedCtx, cfg, port, bookCache, logger)
	}

	scan := scanner.New(port, marketCache, bookCache, cfg.Scanner.Concurrency, cfg.Scanner.MarketLimit, logger)
	eval := evaluator.New(opportunityCache, time.Duration(cfg.Cache.OpportunityTTLSeconds)*time.Second)
	gate := risk.New(logger)
	exec := executor.New(port, logger)
	tracker := performance.New()
	reasoner := newReasoningPort(*cfg, logger)

	sched, err := scheduler.New(*cfg, port, scan, eval, gate, exec, reasoner, tracker, st, logger)
	if err != nil {
		logger.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, sched, sched.Events(), *cfg, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	} else {
		// No dashboard consumer: drain the event stream so emit() never
		// blocks on EXECUTION/ERROR events waiting for a reader.
		go func() {
			for range sched.Events() {
			}
		}()
	}

	sched.Start()
	logger.Info("autonomous trading core started",
		"mode", cfg.Mode,
		"cycle_interval_seconds", cfg.Cycle.IntervalSeconds,
		"top_k_admitted", cfg.Executor.TopKAdmitted,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}
	sched.Stop()
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newExchangePort builds the live CLOB adapter in "live" mode, or a
// deterministic paper Simulator seeded with a nominal starting balance
// otherwise.
func newExchangePort(cfg config.Config, logger *slog.Logger) (exchange.Port, error) {
	if cfg.Mode != "live" {
		return exchange.NewSimulator(1_000_00), nil
	}
	auth, err := exchange.NewAuth(cfg)
	if err != nil {
		return nil, fmt.Errorf("build auth: %w", err)
	}
	return exchange.NewClient(cfg, auth, logger), nil
}

// newReasoningPort builds the HTTP-backed Reasoning Port when a URL is
// configured, falling back to the static Hold adapter otherwise (Static
// returns Hold without an error, so no order is submitted and the
// Scheduler's reasoner-unavailable fallback is not triggered).
func newReasoningPort(cfg config.Config, logger *slog.Logger) reasoning.Port {
	if cfg.Reasoning.URL == "" {
		return reasoning.NewStatic()
	}
	return reasoning.NewHTTPReasoner(cfg.Reasoning.URL, cfg.ReasoningDeadline(), logger)
}

// warmBookCache subscribes a BookFeed to every currently open market and
// merges incoming pushes into bookCache, so the Scanner's next poll can
// hit a warm entry instead of a cold GetOrderBook round trip. Purely an
// optimization: no Scheduler suspension point depends on it.
func warmBookCache(ctx context.Context, cfg config.Config, port exchange.Port, bookCache *cache.Cache[cache.MarketSnapshot], logger *slog.Logger) {
	markets, err := port.ListOpenMarkets(ctx, cfg.Scanner.MarketLimit)
	if err != nil {
		logger.Warn("book feed: failed to list markets for subscription, skipping warm cache", "error", err)
		return
	}

	byTicker := make(map[string]types.Market, len(markets))
	tickers := make([]string, 0, len(markets))
	for _, m := range markets {
		byTicker[m.Ticker] = m
		tickers = append(tickers, m.Ticker)
	}

	feed := exchange.NewBookFeed(cfg.Exchange.WSMarketURL, logger)
	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("book feed run exited", "error", err)
		}
	}()
	if err := feed.Subscribe(tickers); err != nil {
		logger.Warn("book feed: initial subscribe failed", "error", err)
	}

	go func() {
		for book := range feed.Books() {
			market, ok := byTicker[book.Ticker]
			if !ok {
				continue
			}
			if err := bookCache.Put(book.Ticker, cache.MarketSnapshot{Market: market, Book: book}); err != nil {
				logger.Debug("book feed: cache put failed", "ticker", book.Ticker, "error", err)
			}
		}
	}()
}
