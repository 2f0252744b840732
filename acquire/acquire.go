// Package acquire walks search result pages until the sales tail drops below
// a threshold.
package acquire

import (
	"context"
	"fmt"
	"log/slog"

	"nichescout/config"
	"nichescout/models"
	"nichescout/parser"
	"nichescout/search"
)

// StopReason tells why a page walk ended.
type StopReason string

const (
	StopThreshold StopReason = "sales_below_threshold"
	StopExhausted StopReason = "results_exhausted"
	StopMaxPages  StopReason = "max_pages_reached"
	StopCancelled StopReason = "cancelled"
	StopError     StopReason = "page_error"
)

// Result reports one completed page walk.
type Result struct {
	Records         []*models.ProductRecord
	PagesWalked     int
	Reason          StopReason
	PageErrors      int
	InvalidListings int
}

// Controller drives sequential page acquisition for a query.
type Controller struct {
	provider search.Provider
	cfg      *config.Config
}

// NewController builds a controller over a search provider.
func NewController(provider search.Provider, cfg *config.Config) *Controller {
	return &Controller{provider: provider, cfg: cfg}
}

// Acquire fetches result pages in order, converting listings to records,
// until one of the stop conditions is met. Pages must be walked sequentially:
// the stop decision for page n+1 depends on the sales statistic of page n.
//
// A failure on the first page aborts the walk; later page failures are
// counted and skipped so a flaky page cannot discard the work before it.
// Listings re-observed within the walk keep their first-seen page rank.
func (c *Controller) Acquire(ctx context.Context, keyword, query string, kind models.SourceKind, sourceValue string, maxPages int) (*Result, error) {
	res := &Result{Reason: StopMaxPages}
	seen := make(map[string]struct{})
	rank := 0

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			res.Reason = StopCancelled
			return res, err
		}

		listings, err := c.provider.SearchPage(ctx, query, page, c.cfg.CountryCode)
		if err != nil {
			if page == 1 {
				res.Reason = StopError
				return res, fmt.Errorf("acquire %q: first page: %w", query, err)
			}
			res.PageErrors++
			slog.Warn("page fetch failed, continuing",
				slog.String("query", query),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			continue
		}
		if len(listings) == 0 {
			res.Reason = StopExhausted
			break
		}

		res.PagesWalked++
		pageRecords := 0
		var pageSales []int

		for i := range listings {
			l := &listings[i]
			if err := parser.ValidateListing(l); err != nil {
				res.InvalidListings++
				slog.Warn("dropping invalid listing",
					slog.String("query", query),
					slog.Int("page", page),
					slog.String("identifier", l.ID),
					slog.Any("error", err),
				)
				continue
			}
			if _, ok := seen[l.ID]; ok {
				continue
			}
			seen[l.ID] = struct{}{}
			rank++
			rec := parser.ToRecord(l, keyword, kind, sourceValue, rank)
			res.Records = append(res.Records, rec)
			pageRecords++
			if rec.SalesVolume != nil {
				pageSales = append(pageSales, *rec.SalesVolume)
			}
		}

		slog.Debug("page acquired",
			slog.String("query", query),
			slog.Int("page", page),
			slog.Int("records", pageRecords),
		)

		if stat, ok := pageStat(pageSales, c.cfg.StopStat); ok && stat < c.cfg.SalesThreshold {
			res.Reason = StopThreshold
			slog.Info("stopping on sales tail",
				slog.String("query", query),
				slog.Int("page", page),
				slog.Int("statistic", stat),
				slog.Int("threshold", c.cfg.SalesThreshold),
			)
			break
		}
	}

	return res, nil
}

// pageStat computes the configured per-page sales statistic. A page where no
// listing carries a sales volume yields no statistic and never stops the walk.
func pageStat(sales []int, stat config.PageStat) (int, bool) {
	if len(sales) == 0 {
		return 0, false
	}
	switch stat {
	case config.StatAvg:
		sum := 0
		for _, v := range sales {
			sum += v
		}
		return sum / len(sales), true
	default:
		min := sales[0]
		for _, v := range sales[1:] {
			if v < min {
				min = v
			}
		}
		return min, true
	}
}
