package category

import (
	"context"
	"log/slog"
	"strings"

	"nichescout/acquire"
	"nichescout/models"
)

// Expand runs a category-search acquisition for each given category. The
// query combines the keyword with the category name so marketplace relevance
// ranking stays anchored to the niche. Categories in skip (lower-cased) were
// already expanded today and are not re-fetched. A category whose walk fails
// is logged and skipped; expansion never aborts the run.
func Expand(ctx context.Context, ctrl *acquire.Controller, keyword string, categories []string, pages int, skip map[string]struct{}) ([]*models.ProductRecord, int) {
	var out []*models.ProductRecord
	failures := 0

	for _, cat := range categories {
		if cat == OtherCategory {
			continue
		}
		if _, done := skip[strings.ToLower(cat)]; done {
			slog.Info("category already expanded today", slog.String("category", cat))
			continue
		}
		if ctx.Err() != nil {
			break
		}

		query := strings.ToLower(keyword + " " + cat)
		res, err := ctrl.Acquire(ctx, keyword, query, models.SourceCategorySearch, cat, pages)
		if err != nil {
			failures++
			slog.Warn("category expansion failed",
				slog.String("category", cat),
				slog.Any("error", err),
			)
			continue
		}
		slog.Info("category expanded",
			slog.String("category", cat),
			slog.Int("records", len(res.Records)),
			slog.Int("pages", res.PagesWalked),
			slog.String("reason", string(res.Reason)),
		)
		out = append(out, res.Records...)
	}
	return out, failures
}
