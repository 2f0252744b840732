// Package enrich fills historical sales and price fields through a TTL cache
// in front of two metered providers.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"nichescout/models"
	"nichescout/store"
)

// HistoryProvider returns marketplace-analytics payloads for a batch of
// identifiers. Identifiers the provider cannot answer are simply absent from
// the map.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, ids []string) (map[string]models.HistoryPayload, error)

	// FetchCategories resolves marketplace taxonomy paths
	// ("Sports & Outdoors > Camping & Hiking > Tents") for a batch of
	// identifiers. Unknown identifiers are absent from the map.
	FetchCategories(ctx context.Context, ids []string) (map[string]string, error)
}

// PriceProvider returns price-history payloads for a batch of identifiers.
type PriceProvider interface {
	FetchPriceHistory(ctx context.Context, ids []string) (map[string]models.PricePayload, error)
}

// Cache layers an in-process LRU over the durable TTL partition in the
// store. Lookup order: hot layer, then fresh store rows, then one batched
// provider call for whatever is left, written through with the current
// timestamp.
type Cache struct {
	store   *store.Store
	history HistoryProvider
	prices  PriceProvider
	ttlDays int

	hotHistory    *lru.Cache[string, models.HistoryPayload]
	hotPrices     *lru.Cache[string, models.PricePayload]
	hotCategories *lru.Cache[string, string]

	Metrics *Metrics
}

const hotLayerSize = 4096

// NewCache builds the enrichment cache. Either provider may be nil, in which
// case the matching payload kind is served from cache only.
func NewCache(s *store.Store, history HistoryProvider, prices PriceProvider, ttlDays int) (*Cache, error) {
	hotHistory, err := lru.New[string, models.HistoryPayload](hotLayerSize)
	if err != nil {
		return nil, fmt.Errorf("enrich: hot history layer: %w", err)
	}
	hotPrices, err := lru.New[string, models.PricePayload](hotLayerSize)
	if err != nil {
		return nil, fmt.Errorf("enrich: hot price layer: %w", err)
	}
	hotCategories, err := lru.New[string, string](hotLayerSize)
	if err != nil {
		return nil, fmt.Errorf("enrich: hot category layer: %w", err)
	}
	return &Cache{
		store:         s,
		history:       history,
		prices:        prices,
		ttlDays:       ttlDays,
		hotHistory:    hotHistory,
		hotPrices:     hotPrices,
		hotCategories: hotCategories,
		Metrics:       NewMetrics(),
	}, nil
}

// GetHistory returns analytics payloads for the requested identifiers.
// Identifiers the providers could not answer are absent; stale entries are
// never substituted.
func (c *Cache) GetHistory(ctx context.Context, ids []string) (map[string]models.HistoryPayload, error) {
	result := make(map[string]models.HistoryPayload, len(ids))

	var misses []string
	for _, id := range ids {
		if p, ok := c.hotHistory.Get(id); ok {
			result[id] = p
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		c.Metrics.AddLookups("history", "hit", len(ids))
		return result, nil
	}

	fresh, err := c.store.FreshHistory(ctx, misses, c.ttlDays)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, id := range misses {
		if p, ok := fresh[id]; ok {
			result[id] = p
			c.hotHistory.Add(id, p)
			continue
		}
		stale = append(stale, id)
	}
	c.Metrics.AddLookups("history", "hit", len(ids)-len(stale))
	c.Metrics.AddLookups("history", "miss", len(stale))
	if len(stale) == 0 || c.history == nil {
		return result, nil
	}

	fetched, err := c.history.FetchHistory(ctx, stale)
	if err != nil {
		// The fresh part of the answer is still valid.
		slog.Warn("history fetch failed", slog.Int("ids", len(stale)), slog.Any("error", err))
		return result, nil
	}
	if err := c.store.PutHistory(ctx, fetched); err != nil {
		return nil, err
	}
	for id, p := range fetched {
		result[id] = p
		c.hotHistory.Add(id, p)
	}
	return result, nil
}

// GetCategories returns marketplace taxonomy paths for the requested
// identifiers, following the same hot-layer, fresh-row, batched-provider
// order as GetHistory.
func (c *Cache) GetCategories(ctx context.Context, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))

	var misses []string
	for _, id := range ids {
		if path, ok := c.hotCategories.Get(id); ok {
			result[id] = path
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		c.Metrics.AddLookups("categories", "hit", len(ids))
		return result, nil
	}

	fresh, err := c.store.FreshCategoryPaths(ctx, misses, c.ttlDays)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, id := range misses {
		if path, ok := fresh[id]; ok {
			result[id] = path
			c.hotCategories.Add(id, path)
			continue
		}
		stale = append(stale, id)
	}
	c.Metrics.AddLookups("categories", "hit", len(ids)-len(stale))
	c.Metrics.AddLookups("categories", "miss", len(stale))
	if len(stale) == 0 || c.history == nil {
		return result, nil
	}

	fetched, err := c.history.FetchCategories(ctx, stale)
	if err != nil {
		slog.Warn("category fetch failed", slog.Int("ids", len(stale)), slog.Any("error", err))
		return result, nil
	}
	if err := c.store.PutCategoryPaths(ctx, fetched); err != nil {
		return nil, err
	}
	for id, path := range fetched {
		result[id] = path
		c.hotCategories.Add(id, path)
	}
	return result, nil
}

// GetPrices mirrors GetHistory for the price-history provider.
func (c *Cache) GetPrices(ctx context.Context, ids []string) (map[string]models.PricePayload, error) {
	result := make(map[string]models.PricePayload, len(ids))

	var misses []string
	for _, id := range ids {
		if p, ok := c.hotPrices.Get(id); ok {
			result[id] = p
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		c.Metrics.AddLookups("prices", "hit", len(ids))
		return result, nil
	}

	fresh, err := c.store.FreshPrices(ctx, misses, c.ttlDays)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, id := range misses {
		if p, ok := fresh[id]; ok {
			result[id] = p
			c.hotPrices.Add(id, p)
			continue
		}
		stale = append(stale, id)
	}
	c.Metrics.AddLookups("prices", "hit", len(ids)-len(stale))
	c.Metrics.AddLookups("prices", "miss", len(stale))
	if len(stale) == 0 || c.prices == nil {
		return result, nil
	}

	fetched, err := c.prices.FetchPriceHistory(ctx, stale)
	if err != nil {
		slog.Warn("price history fetch failed", slog.Int("ids", len(stale)), slog.Any("error", err))
		return result, nil
	}
	if err := c.store.PutPrices(ctx, fetched); err != nil {
		return nil, err
	}
	for id, p := range fetched {
		result[id] = p
		c.hotPrices.Add(id, p)
	}
	return result, nil
}

// Enrich applies history and price payloads to the records in place and
// returns how many records received at least one field. Payload values only
// fill gaps in first-party fields, never replace them.
func (c *Cache) Enrich(ctx context.Context, records []*models.ProductRecord) (int, error) {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}

	history, err := c.GetHistory(ctx, ids)
	if err != nil {
		return 0, err
	}
	prices, err := c.GetPrices(ctx, ids)
	if err != nil {
		return 0, err
	}

	enriched := 0
	for _, r := range records {
		touched := false
		if p, ok := history[r.ID]; ok {
			touched = applyHistory(r, p) || touched
		}
		if p, ok := prices[r.ID]; ok {
			touched = applyPrices(r, p) || touched
		}
		if touched {
			enriched++
		}
	}
	return enriched, nil
}

func applyHistory(r *models.ProductRecord, p models.HistoryPayload) bool {
	touched := false
	if p.Sales3M != nil {
		r.Sales3M = p.Sales3M
		touched = true
	}
	if p.MonthlySales != nil {
		r.MonthlySales = p.MonthlySales
		touched = true
	}
	if p.ListingDate != nil && r.ListingDate == nil {
		r.ListingDate = p.ListingDate
		touched = true
	}
	if p.Rating != nil && r.Rating == nil {
		r.Rating = p.Rating
		touched = true
	}
	if p.ReviewCount != nil && r.ReviewCount == nil {
		r.ReviewCount = p.ReviewCount
		touched = true
	}
	return touched
}

func applyPrices(r *models.ProductRecord, p models.PricePayload) bool {
	touched := false
	if p.PriceMin != nil {
		r.PriceMin = p.PriceMin
		touched = true
	}
	if p.PriceMax != nil {
		r.PriceMax = p.PriceMax
		touched = true
	}
	if p.PriceMinDate != nil {
		r.PriceMinDate = p.PriceMinDate
		touched = true
	}
	if p.PriceMaxDate != nil {
		r.PriceMaxDate = p.PriceMaxDate
		touched = true
	}
	if p.ListingDate != nil && r.ListingDate == nil {
		r.ListingDate = p.ListingDate
		touched = true
	}
	if p.CurrentPrice != nil && r.Price == nil {
		r.Price = p.CurrentPrice
		touched = true
	}
	return touched
}
