package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/evdnx/golog"
	"github.com/evdnx/tradingcp"
	"github.com/evdnx/tradingcp/api"
	"github.com/evdnx/tradingcp/arbitrage"
	"github.com/evdnx/tradingcp/cache"
	"github.com/evdnx/tradingcp/config"
	"github.com/evdnx/tradingcp/exchange"
	"github.com/evdnx/tradingcp/internal/logutil"
	"github.com/joho/godotenv"
)

const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	cliComponent = "cli"
)

type options struct {
	configPath    string
	quote         string
	currency      string
	balance       bool
	crossStock    bool
	crossCurrency bool
	coin          string
	serve         bool
	interval      time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("tradingcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to the YAML configuration file")
	fs.StringVar(&opts.quote, "quote", "", "quote currency markets are priced in (default from config, BTC)")
	fs.StringVar(&opts.currency, "currency", "", "display currency")
	fs.BoolVar(&opts.balance, "balance", false, "print the balance report")
	fs.BoolVar(&opts.crossStock, "crossstock", false, "print cross-stock opportunities")
	fs.BoolVar(&opts.crossCurrency, "crosscurrency", false, "print cross-currency opportunities")
	fs.StringVar(&opts.coin, "exchange", "", "print the per-venue view of `COIN`")
	fs.BoolVar(&opts.serve, "serve", false, "run the snapshot API (also enabled by api.enabled)")
	fs.DurationVar(&opts.interval, "interval", time.Minute, "reload interval while serving")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.serve && opts.interval <= 0 {
		return opts, errors.New("-interval must be positive")
	}
	return opts, nil
}

// output is what a one-shot run prints
type output struct {
	Quote         string                   `json:"quote"`
	Currency      string                   `json:"currency,omitempty"`
	PublishedAt   time.Time                `json:"publishedAt"`
	Balances      *tradingcp.BalanceReport `json:"balances,omitempty"`
	CrossStock    []tradingcp.Opportunity  `json:"crossStock,omitempty"`
	CrossCurrency []tradingcp.Opportunity  `json:"crossCurrency,omitempty"`
	Coin          *tradingcp.CoinView      `json:"coin,omitempty"`
	Down          []string                 `json:"down,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "failed to load .env: %v\n", err)
		return exitError
	}

	cm, err := config.NewConfigManager(opts.configPath, false)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	cfg := cm.GetConfig()
	serving := opts.serve || cfg.API.Enabled
	logutil.SetLevel(cfg.LogLevel)
	logger := logutil.Default()

	candles := cache.NewCandleCache(cache.Config{
		Enabled:           cfg.Cache.Enabled,
		HistoricalDataTTL: cfg.Cache.HistoricalDataTTL,
		MaxCacheSize:      cfg.Cache.MaxSize,
		CleanupInterval:   cfg.Cache.CleanupInterval,
	})
	defer candles.Stop()

	registry, err := exchange.NewFactory(
		exchange.WithHTTPConfig(cfg.HTTP),
		exchange.WithCandleCache(candles),
	).Build(cfg.Venues)
	if err != nil {
		logger.Error("Failed to build venues",
			golog.String("component", cliComponent),
			golog.String("error", err.Error()),
		)
		return exitError
	}

	quote := cfg.Quote
	if opts.quote != "" {
		quote = strings.ToUpper(opts.quote)
	}
	currency := cfg.Currency
	if opts.currency != "" {
		currency = strings.ToUpper(opts.currency)
	}

	agg, err := tradingcp.NewAggregator(registry,
		tradingcp.WithQuote(quote),
		tradingcp.WithAnalyzer(analyzerFor(cfg)),
		tradingcp.WithHealthTracker(tradingcp.NewHealthTracker(tradingcp.HealthConfig{
			FailureThreshold:  cfg.Health.FailureThreshold,
			RecoveryThreshold: cfg.Health.RecoveryThreshold,
		})),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	cm.RegisterOnChangeCallback(func(next *config.Config) {
		agg.SetAnalyzer(analyzerFor(next))
	})

	if err := agg.Reload(ctx); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	// An explicit quote must be one the venues actually list.
	if opts.quote != "" {
		if err := agg.ChangeQuote(quote); err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
	}

	if serving {
		cm.Watch()
		return serve(ctx, agg, cfg.API.Addr, opts.interval, logger)
	}

	out, err := collect(ctx, agg, cfg, opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		if tradingcp.IsValidationError(err) {
			return exitUsage
		}
		return exitError
	}
	out.Currency = currency

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	return exitOK
}

func analyzerFor(cfg *config.Config) *arbitrage.Analyzer {
	return arbitrage.New(arbitrage.Config{
		CrossStockThreshold:    cfg.Analysis.CrossStockThreshold,
		CrossCurrencyThreshold: cfg.Analysis.CrossCurrencyThreshold,
	})
}

// collect builds the output for a one-shot run. With no selection flag the
// balance report and cross-stock scan are printed.
func collect(ctx context.Context, agg *tradingcp.Aggregator, cfg *config.Config, opts options) (output, error) {
	snap := agg.Snapshot()
	out := output{
		Quote:       agg.Quote(),
		PublishedAt: snap.PublishedAt,
		Down:        agg.Health().Down(),
	}

	selected := opts.balance || opts.crossStock || opts.crossCurrency || opts.coin != ""
	if opts.balance || !selected {
		report := agg.BalanceReport()
		out.Balances = &report
	}
	if opts.crossStock || !selected {
		out.CrossStock = agg.CrossStock()
	}
	if opts.crossCurrency {
		out.CrossCurrency = agg.CrossCurrency(cfg.Analysis.QuoteA, cfg.Analysis.QuoteB)
	}
	if opts.coin != "" {
		view, err := agg.CoinView(ctx, strings.ToUpper(opts.coin))
		if err != nil {
			return out, err
		}
		out.Coin = &view
	}
	return out, nil
}

func serve(ctx context.Context, agg *tradingcp.Aggregator, addr string, interval time.Duration, logger *golog.Logger) int {
	srv := api.NewServer(agg)

	// The first reload has already run.
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := agg.Reload(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Reload failed",
					golog.String("component", cliComponent),
					golog.String("error", err.Error()),
				)
			}
		}
	}()

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		logger.Error("API server stopped",
			golog.String("component", cliComponent),
			golog.String("error", err.Error()),
		)
		return exitError
	}
	return exitOK
}
