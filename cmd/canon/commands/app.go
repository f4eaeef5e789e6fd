package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/pricecanon/internal/anomaly"
	"github.com/wonny/pricecanon/internal/calendar"
	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/internal/eod"
	"github.com/wonny/pricecanon/internal/provider"
	"github.com/wonny/pricecanon/internal/quality"
	"github.com/wonny/pricecanon/internal/selection"
	"github.com/wonny/pricecanon/pkg/config"
	"github.com/wonny/pricecanon/pkg/database"
	"github.com/wonny/pricecanon/pkg/httputil"
	"github.com/wonny/pricecanon/pkg/logger"
	"github.com/wonny/pricecanon/pkg/redis"
)

// app holds the wired pipeline shared by all commands. Construction order is
// config, logger, database, schema check, then everything else.
type app struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.DB
	rdb *redis.Client

	runs       *eod.RunRepository
	raw        *eod.RawBarRepository
	canonical  *eod.CanonicalBarRepository
	production *eod.ProductionPriceRepository
	tickers    *eod.TickerRepository

	importer  *eod.Importer
	rebuilder *eod.Rebuilder
	publisher *eod.Publisher
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := eod.CheckSchema(ctx, db.Pool); err != nil {
		db.Close()
		return nil, fmt.Errorf("check schema: %w", err)
	}

	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, using in-process rate limiting")
		rdb = nil
	}

	loc, err := time.LoadLocation(cfg.EOD.Timezone)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	cal, err := calendar.New(loc, cfg.Calendar.Holidays)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build calendar: %w", err)
	}

	window, err := eod.NewWindowResolver(cal, cfg.EOD.Cutoff)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build window resolver: %w", err)
	}

	runs := eod.NewRunRepository(db.Pool)
	raw := eod.NewRawBarRepository(db.Pool)
	canonical := eod.NewCanonicalBarRepository(db.Pool)
	production := eod.NewProductionPriceRepository(db.Pool)
	tickers := eod.NewTickerRepository(db.Pool)

	providers, err := buildProviders(cfg, log, rdb)
	if err != nil {
		db.Close()
		return nil, err
	}

	gate := quality.NewGate(contracts.DefaultQualityRules())
	selector := selection.NewSelector(contracts.ProviderPriority(cfg.EOD.ProviderPriority))

	detect := &eod.Detectors{
		Disagreement: anomaly.NewDisagreementDetector(raw, anomaly.DefaultDisagreementConfig(), log),
		MissingDay:   anomaly.NewMissingDayDetector(canonical, cal, anomaly.DefaultCoverageConfig(), log),
		SoftQuality:  anomaly.NewSoftQualityEvaluator(canonical, cal, anomaly.DefaultSoftQualityConfig(), log),
	}

	policy := contracts.ImportPolicy{
		CoverageMinPct:      cfg.EOD.CoverageMinPct,
		LookbackTradingDays: cfg.EOD.LookbackTradingDays,
	}

	importerConfig := eod.ImporterConfig{
		ChunkSize:          cfg.EOD.ChunkSize,
		RawBatchSize:       cfg.EOD.RawBatchSize,
		CanonicalBatchSize: cfg.EOD.CanonicalBatchSize,
	}

	importer := eod.NewImporter(
		runs, raw, canonical, tickers, providers,
		gate, selector, window, detect, policy,
		cfg.EOD.Timezone, cfg.EOD.Cutoff, importerConfig, log,
	)

	rebuilder := eod.NewRebuilder(
		runs, raw, canonical, tickers,
		gate, selector, window, detect, policy,
		cfg.EOD.Timezone, cfg.EOD.Cutoff, importerConfig, log,
	)

	publisher := eod.NewPublisher(runs, canonical, production, log)

	return &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		rdb:        rdb,
		runs:       runs,
		raw:        raw,
		canonical:  canonical,
		production: production,
		tickers:    tickers,
		importer:   importer,
		rebuilder:  rebuilder,
		publisher:  publisher,
	}, nil
}

// Close releases the app's connections.
func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.db.Close()
}

// buildProviders wires one rate-limited HTTP client per vendor and orders the
// adapters by the configured priority. Unknown names in the priority list are
// configuration errors.
func buildProviders(cfg *config.Config, log *logger.Logger, rdb *redis.Client) ([]contracts.Provider, error) {
	limiterFor := func(name string, perSecond int) httputil.Limiter {
		if rdb != nil && rdb.Enabled() {
			return httputil.NewRedisLimiter(redis.NewRateLimiter(rdb, "canon"), redis.RateLimitConfig{
				Key:    name,
				Limit:  perSecond,
				Window: time.Second,
			})
		}
		return httputil.NewLocalLimiter(perSecond)
	}

	stooqClient := httputil.New(log).WithLimiter(limiterFor("stooq", cfg.Stooq.RatePerSecond))
	archiveClient := httputil.New(log).WithLimiter(limiterFor("marketarchive", cfg.MarketArchive.RatePerSecond))

	byName := map[string]contracts.Provider{
		"stooq":         provider.NewStooq(stooqClient, cfg.Stooq, log),
		"marketarchive": provider.NewMarketArchive(archiveClient, cfg.MarketArchive, log),
	}

	providers := make([]contracts.Provider, 0, len(cfg.EOD.ProviderPriority))
	for _, name := range cfg.EOD.ProviderPriority {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q in EOD_PROVIDER_PRIORITY", name)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// parseDateFlag parses an optional YYYY-MM-DD flag value.
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s (expected YYYY-MM-DD): %w", name, err)
	}
	return parsed, nil
}

// printSummary renders a run summary for the terminal.
func printSummary(summary *contracts.RunSummary) {
	fmt.Printf("\nRun %d finished: %s\n", summary.RunID, summary.Status)
	if summary.Reason != "" {
		fmt.Printf("Reason: %s\n", summary.Reason)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-20s %10d\n", "Expected points:", summary.ExpectedPoints)
	fmt.Printf("%-20s %10d\n", "Canonical points:", summary.CanonicalPoints)
	fmt.Printf("%-20s %9.2f%%\n", "Coverage:", summary.CoveragePct)
	fmt.Printf("%-20s %9.2f%%\n", "Fallback:", summary.FallbackPct)
	fmt.Printf("%-20s %10d\n", "Hard rejects:", summary.HardRejects)
	fmt.Printf("%-20s %10d\n", "Soft flags:", summary.SoftFlags)
	fmt.Printf("%-20s %10d\n", "Major disagreements:", summary.DisagreeMajor)
	fmt.Printf("%-20s %10d\n", "Missing days:", summary.MissingDays)
	if len(summary.Notes) > 0 {
		fmt.Println("\nNotes:")
		for _, note := range summary.Notes {
			fmt.Printf("  - %s\n", note)
		}
	}
}
