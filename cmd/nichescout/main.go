package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nichescout/acquire"
	"nichescout/classify"
	"nichescout/config"
	"nichescout/enrich"
	"nichescout/harvester"
	"nichescout/models"
	"nichescout/search"
	"nichescout/store"
)

func main() {
	defaultCfg := config.DefaultConfig()
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("NICHESCOUT_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid NICHESCOUT_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}
	thresholdDefault := defaultCfg.SalesThreshold
	if value, ok, err := config.EnvInt("NICHESCOUT_SALES_THRESHOLD"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid NICHESCOUT_SALES_THRESHOLD: %v\n", err)
		os.Exit(1)
	} else if ok {
		thresholdDefault = value
	}
	dbDefault := defaultCfg.DBPath
	if value, ok := config.EnvString("NICHESCOUT_DB"); ok {
		dbDefault = value
	}
	exportDefault := defaultCfg.ExportDir
	if value, ok := config.EnvString("NICHESCOUT_EXPORT_DIR"); ok {
		exportDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("NICHESCOUT_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	batchFile := flag.String("batch", "", "File with one keyword per line (# comments and blanks skipped)")
	country := flag.String("country", defaultCfg.CountryCode, "Marketplace country code (us, uk, de, fr, it, es, ca, jp)")
	maxPages := flag.Int("pages", pagesDefault, "Maximum result pages to walk per query")
	salesThreshold := flag.Int("sales-threshold", thresholdDefault, "Stop walking when the page sales statistic falls below this")
	stopStat := flag.String("stop-stat", string(defaultCfg.StopStat), "Page sales statistic for the stop rule: min or avg")
	topCategories := flag.Int("top-categories", defaultCfg.TopCategories, "Number of top categories to expand")
	categoryPages := flag.Int("category-pages", defaultCfg.CategoryPages, "Maximum pages per category expansion")
	aiFilter := flag.Bool("ai-filter", defaultCfg.AIFilter, "Enable AI relevance narrowing")
	aiLimit := flag.Int("ai-limit", defaultCfg.AILimit, "Maximum records per category sent to the classifier")
	salesCeiling := flag.Int("sales-ceiling", defaultCfg.SalesCeiling, "Drop records selling above this monthly volume")
	cacheTTL := flag.Int("cache-ttl-days", defaultCfg.CacheTTLDays, "Enrichment cache freshness window in days")
	dbPath := flag.String("db", dbDefault, "SQLite database path")
	exportDir := flag.String("export-dir", exportDefault, "Directory for CSV exports (empty disables export)")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	delayMs := flag.Int("delay", int(defaultCfg.Delay/time.Millisecond), "Delay between requests (milliseconds)")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per page")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.Keyword = strings.TrimSpace(strings.Join(flag.Args(), " "))
	cfg.BatchFile = *batchFile
	cfg.CountryCode = *country
	cfg.MaxPages = *maxPages
	cfg.SalesThreshold = *salesThreshold
	cfg.StopStat = config.PageStat(*stopStat)
	cfg.TopCategories = *topCategories
	cfg.CategoryPages = *categoryPages
	cfg.AIFilter = *aiFilter
	cfg.AILimit = *aiLimit
	cfg.SalesCeiling = *salesCeiling
	cfg.CacheTTLDays = *cacheTTL
	cfg.DBPath = *dbPath
	cfg.ExportDir = *exportDir
	cfg.MetricsAddr = *metricsAddr
	cfg.Delay = time.Duration(*delayMs) * time.Millisecond
	cfg.MaxRetries = *maxRetries
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	keywords, err := loadKeywords(cfg)
	if err != nil {
		slog.Error("loading keywords", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing the current stage")
	}()

	h, gatherers, s, err := buildHarvester(ctx, cfg)
	if err != nil {
		slog.Error("initialising pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	failed := 0
	for _, keyword := range keywords {
		if ctx.Err() != nil {
			slog.Warn("cancelled before keyword", slog.String("keyword", keyword))
			failed++
			continue
		}
		slog.Info("starting keyword run", slog.String("keyword", keyword))
		summary, err := h.Run(ctx, keyword)
		if err != nil {
			slog.Error("keyword run failed",
				slog.String("keyword", keyword),
				slog.Any("error", err),
			)
			failed++
			continue
		}
		printSummary(summary)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func buildHarvester(ctx context.Context, cfg *config.Config) (*harvester.Harvester, prometheus.Gatherers, *store.Store, error) {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}

	provider, err := search.NewCollyProvider(cfg)
	if err != nil {
		s.Close()
		return nil, nil, nil, err
	}
	ctrl := acquire.NewController(provider, cfg)
	gatherers := prometheus.Gatherers{provider.Metrics.Registry}

	var classifier classify.Classifier
	if cfg.AIFilter {
		creds, err := config.LoadCredentials()
		if err != nil {
			s.Close()
			return nil, nil, nil, err
		}
		if creds.GeminiAPIKey == "" {
			slog.Warn("GEMINI_API_KEY not set, AI narrowing disabled")
		} else {
			gemini, err := classify.NewGemini(ctx, creds)
			if err != nil {
				s.Close()
				return nil, nil, nil, err
			}
			classifier = gemini
			gatherers = append(gatherers, gemini.Metrics.Registry)
		}
	}

	// No live enrichment providers wired; the cache still serves anything a
	// previous run or external loader stored.
	enricher, err := enrich.NewCache(s, nil, nil, cfg.CacheTTLDays)
	if err != nil {
		s.Close()
		return nil, nil, nil, err
	}
	gatherers = append(gatherers, enricher.Metrics.Registry)

	h := harvester.New(s, ctrl, classifier, enricher, cfg)
	gatherers = append(gatherers, h.Metrics.Registry)
	return h, gatherers, s, nil
}

// loadKeywords returns the single positional keyword or the batch file's
// lines, skipping blanks and # comments.
func loadKeywords(cfg *config.Config) ([]string, error) {
	if cfg.BatchFile == "" {
		return []string{cfg.Keyword}, nil
	}

	file, err := os.Open(cfg.BatchFile)
	if err != nil {
		return nil, fmt.Errorf("opening batch file: %w", err)
	}
	defer file.Close()

	var keywords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("batch file %s has no keywords", cfg.BatchFile)
	}
	return keywords, nil
}

func printSummary(s *models.RunSummary) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Keyword complete: %s\n", s.Keyword)
	fmt.Printf("  Pages walked:    %d\n", s.PagesScraped)
	fmt.Printf("  Acquired:        %d\n", s.RecordsAcquired)
	fmt.Printf("  Expanded:        %d\n", s.RecordsExpanded)
	fmt.Printf("  Categories:      %d (top: %s)\n", s.Categories, strings.Join(s.TopCategories, ", "))
	if s.DominantCategory != "" {
		fmt.Printf("  Dominant:        %s\n", s.DominantCategory)
	}
	if len(s.RemovedByStage) > 0 {
		fmt.Printf("  Removed:         %v\n", s.RemovedByStage)
	}
	fmt.Printf("  Kept:            %d\n", s.RecordsKept)
	fmt.Printf("  Enriched:        %d\n", s.RecordsEnriched)
	if len(s.FailureCounts) > 0 {
		fmt.Printf("  Failures:        %v\n", s.FailureCounts)
	}
	if s.ExportPath != "" {
		fmt.Printf("  Export:          %s\n", s.ExportPath)
	}
	if s.FromCache {
		fmt.Println("  Source:          same-day store reuse")
	}
	fmt.Printf("  Duration:        %v\n", s.Duration)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
