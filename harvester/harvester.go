// Package harvester sequences one keyword through the full pipeline:
// acquisition, category analysis, expansion, filtering and enrichment, with
// every stage boundary recorded on a scrape task.
package harvester

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nichescout/acquire"
	"nichescout/category"
	"nichescout/classify"
	"nichescout/config"
	"nichescout/enrich"
	"nichescout/filter"
	"nichescout/models"
	"nichescout/store"
)

const (
	productTypeMinCount = 3
	productTypeTopN     = 30
)

// Harvester coordinates the pipeline stages for one keyword at a time.
// Classifier and Enricher may be nil; the matching stages are then skipped.
type Harvester struct {
	store      *store.Store
	controller *acquire.Controller
	classifier classify.Classifier
	enricher   *enrich.Cache
	cfg        *config.Config
	Metrics    *Metrics
}

func New(s *store.Store, ctrl *acquire.Controller, classifier classify.Classifier, enricher *enrich.Cache, cfg *config.Config) *Harvester {
	return &Harvester{
		store:      s,
		controller: ctrl,
		classifier: classifier,
		enricher:   enricher,
		cfg:        cfg,
		Metrics:    NewMetrics(),
	}
}

// Run walks one keyword through every stage. Work persisted before a failure
// stays in the store; the task records which stage was reached.
func (h *Harvester) Run(ctx context.Context, keyword string) (*models.RunSummary, error) {
	start := time.Now()
	summary := &models.RunSummary{
		Keyword:        keyword,
		RemovedByStage: make(map[string]int),
		FailureCounts:  make(map[string]int),
	}

	params := fmt.Sprintf(`{"max_pages":%d,"sales_threshold":%d,"top_categories":%d}`,
		h.cfg.MaxPages, h.cfg.SalesThreshold, h.cfg.TopCategories)
	taskID, err := h.store.CreateTask(ctx, keyword, params)
	if err != nil {
		return nil, err
	}

	if err := h.runStages(ctx, taskID, keyword, summary); err != nil {
		if failErr := h.store.FailTask(ctx, taskID, err.Error()); failErr != nil {
			slog.Error("failed to record task failure", slog.Any("error", failErr))
		}
		h.Metrics.IncRun("failed")
		summary.Duration = time.Since(start)
		return summary, err
	}

	if err := h.store.AdvanceTask(ctx, taskID, models.TaskCompleted); err != nil {
		return summary, err
	}
	h.Metrics.IncRun("completed")
	summary.Duration = time.Since(start)
	return summary, nil
}

func (h *Harvester) runStages(ctx context.Context, taskID int64, keyword string, summary *models.RunSummary) error {
	records, err := h.search(ctx, taskID, keyword, summary)
	if err != nil {
		return err
	}

	topCategories, err := h.analyze(ctx, taskID, keyword, records, summary)
	if err != nil {
		return err
	}

	if err := h.expand(ctx, taskID, keyword, topCategories, summary); err != nil {
		return err
	}

	kept, err := h.filter(ctx, taskID, keyword, summary)
	if err != nil {
		return err
	}

	if err := h.enrich(ctx, taskID, keyword, kept, summary); err != nil {
		return err
	}

	return h.export(ctx, keyword, summary)
}

// search acquires first-party listings, short-circuiting to the store when
// the keyword was already walked today.
func (h *Harvester) search(ctx context.Context, taskID int64, keyword string, summary *models.RunSummary) ([]*models.ProductRecord, error) {
	if err := h.store.AdvanceTask(ctx, taskID, models.TaskSearching); err != nil {
		return nil, err
	}

	cached, err := h.store.TodayRecords(ctx, keyword, models.SourceKeywordSearch)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		slog.Info("keyword already walked today, reusing stored records",
			slog.String("keyword", keyword),
			slog.Int("records", len(cached)),
		)
		summary.FromCache = true
		summary.RecordsAcquired = len(cached)
		if _, err := h.store.ResetFilterStatus(ctx, keyword); err != nil {
			return nil, err
		}
		return h.store.Records(ctx, keyword)
	}

	result, err := h.controller.Acquire(ctx, keyword, keyword, models.SourceKeywordSearch, keyword, h.cfg.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("search stage: %w", err)
	}
	summary.PagesScraped = result.PagesWalked
	summary.RecordsAcquired = len(result.Records)
	if result.PageErrors > 0 {
		summary.FailureCounts["search_pages"] = result.PageErrors
	}
	if result.InvalidListings > 0 {
		summary.FailureCounts["invalid_listings"] = result.InvalidListings
	}
	slog.Info("acquisition done",
		slog.String("keyword", keyword),
		slog.Int("pages", result.PagesWalked),
		slog.Int("records", len(result.Records)),
		slog.String("stop_reason", string(result.Reason)),
	)

	if _, err := h.store.UpsertRecords(ctx, result.Records); err != nil {
		return nil, err
	}
	// A fresh walk re-evaluates every stored row for this keyword.
	if _, err := h.store.ResetFilterStatus(ctx, keyword); err != nil {
		return nil, err
	}
	return h.store.Records(ctx, keyword)
}

// analyze derives categories from product names, saves the distribution and
// applies AI narrowing when enabled. Returns the expansion candidates.
func (h *Harvester) analyze(ctx context.Context, taskID int64, keyword string, records []*models.ProductRecord, summary *models.RunSummary) ([]string, error) {
	if err := h.store.AdvanceTask(ctx, taskID, models.TaskAnalyzing); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("analyze stage: no records acquired for %q", keyword)
	}

	h.providerCategories(ctx, records, summary)
	productTypes := category.ExtractProductTypes(records, keyword, productTypeMinCount, productTypeTopN)
	category.AssignCategories(records, productTypes)
	if _, err := h.store.UpsertRecords(ctx, records); err != nil {
		return nil, err
	}

	stats, ranked := category.Analyze(keyword, records)
	summary.Categories = len(stats)
	if err := h.store.SaveCategoryStats(ctx, keyword, stats); err != nil {
		return nil, err
	}

	if h.cfg.AIFilter && h.classifier != nil {
		kept := category.Narrow(ctx, h.classifier, records, keyword, h.cfg.AILimit)
		if removed := removedIDs(records, kept); len(removed) > 0 {
			if _, err := h.store.MarkFiltered(ctx, keyword, models.FilterAI, removed); err != nil {
				return nil, err
			}
			summary.RemovedByStage[models.FilterAI] = len(removed)
			h.Metrics.AddRemovals(models.FilterAI, len(removed))
		}

		ranked = h.narrowCategories(ctx, keyword, ranked, summary)
	}

	top := category.TopCategories(ranked, h.cfg.TopCategories)
	summary.TopCategories = top
	return top, nil
}

// providerCategories labels records from the enrichment provider's taxonomy
// before the mined fallback runs. Fail open: a lookup error leaves the
// records for name-based derivation.
func (h *Harvester) providerCategories(ctx context.Context, records []*models.ProductRecord, summary *models.RunSummary) {
	if h.enricher == nil || len(records) == 0 {
		return
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	paths, err := h.enricher.GetCategories(ctx, ids)
	if err != nil {
		slog.Warn("provider category lookup failed, deriving from names",
			slog.Any("error", err),
		)
		summary.FailureCounts["category_lookup"]++
		return
	}
	if applied := category.ApplyProviderCategories(records, paths); applied > 0 {
		slog.Debug("provider categories applied", slog.Int("records", applied))
	}
}

// narrowCategories asks the classifier which ranked categories fit the
// keyword. Fail open: a provider error keeps the ranking as is.
func (h *Harvester) narrowCategories(ctx context.Context, keyword string, ranked []string, summary *models.RunSummary) []string {
	verdicts, err := h.classifier.FilterCategories(ctx, ranked, keyword)
	if err != nil {
		slog.Warn("category classification failed, keeping full ranking",
			slog.String("keyword", keyword),
			slog.Any("error", err),
		)
		summary.FailureCounts["category_classification"]++
		return ranked
	}
	kept := ranked[:0:0]
	for _, name := range ranked {
		if relevant, judged := verdicts[name]; judged && !relevant {
			continue
		}
		kept = append(kept, name)
	}
	return kept
}

func (h *Harvester) expand(ctx context.Context, taskID int64, keyword string, topCategories []string, summary *models.RunSummary) error {
	if err := h.store.AdvanceTask(ctx, taskID, models.TaskExpanding); err != nil {
		return err
	}
	if len(topCategories) == 0 || h.cfg.CategoryPages <= 0 {
		return nil
	}

	skip, err := h.store.TodayCategories(ctx, keyword)
	if err != nil {
		return err
	}
	expanded, failures := category.Expand(ctx, h.controller, keyword, topCategories, h.cfg.CategoryPages, skip)
	if failures > 0 {
		summary.FailureCounts["expansion_categories"] = failures
	}
	if len(expanded) == 0 {
		return ctx.Err()
	}

	inserted, err := h.store.UpsertRecords(ctx, expanded)
	if err != nil {
		return err
	}
	summary.RecordsExpanded = inserted
	return nil
}

func (h *Harvester) filter(ctx context.Context, taskID int64, keyword string, summary *models.RunSummary) ([]*models.ProductRecord, error) {
	if err := h.store.AdvanceTask(ctx, taskID, models.TaskFiltering); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	active, err := h.store.ActiveRecords(ctx, keyword)
	if err != nil {
		return nil, err
	}
	// Expanded records arrive uncategorised; re-derive over the merged set so
	// consolidation judges every row.
	h.providerCategories(ctx, active, summary)
	productTypes := category.ExtractProductTypes(active, keyword, productTypeMinCount, productTypeTopN)
	category.AssignCategories(active, productTypes)

	kept, outcome := filter.Run(active, filter.Settings{SalesCeiling: h.cfg.SalesCeiling})
	summary.DominantCategory = outcome.DominantCategory
	summary.RecordsKept = len(kept)
	for stage, ids := range outcome.Removed {
		if _, err := h.store.MarkFiltered(ctx, keyword, stage, ids); err != nil {
			return nil, err
		}
		summary.RemovedByStage[stage] += len(ids)
		h.Metrics.AddRemovals(stage, len(ids))
	}
	if _, err := h.store.UpsertRecords(ctx, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

func (h *Harvester) enrich(ctx context.Context, taskID int64, keyword string, kept []*models.ProductRecord, summary *models.RunSummary) error {
	if err := h.store.AdvanceTask(ctx, taskID, models.TaskEnriching); err != nil {
		return err
	}
	if h.enricher == nil || len(kept) == 0 {
		return ctx.Err()
	}

	enriched, err := h.enricher.Enrich(ctx, kept)
	if err != nil {
		return fmt.Errorf("enrich stage: %w", err)
	}
	summary.RecordsEnriched = enriched
	if _, err := h.store.ApplyEnrichment(ctx, kept); err != nil {
		return err
	}

	if removed, err := h.store.CleanExpiredCaches(ctx, h.cfg.CacheTTLDays); err != nil {
		slog.Warn("cache cleanup failed", slog.Any("error", err))
	} else if removed > 0 {
		slog.Debug("expired cache entries removed", slog.Int("removed", removed))
	}
	return nil
}

func (h *Harvester) export(ctx context.Context, keyword string, summary *models.RunSummary) error {
	if h.cfg.ExportDir == "" {
		return nil
	}
	curated, err := h.store.CuratedRecords(ctx, keyword)
	if err != nil {
		return err
	}
	path, err := ExportCSV(curated, h.cfg.ExportDir, keyword)
	if err != nil {
		return err
	}
	summary.ExportPath = path
	slog.Info("export written", slog.String("path", path), slog.Int("records", len(curated)))
	return nil
}

// removedIDs diffs the narrowing input against its survivors.
func removedIDs(before, after []*models.ProductRecord) []string {
	keptSet := make(map[string]struct{}, len(after))
	for _, r := range after {
		keptSet[r.ID] = struct{}{}
	}
	var removed []string
	for _, r := range before {
		if _, ok := keptSet[r.ID]; !ok {
			removed = append(removed, r.ID)
		}
	}
	return removed
}
