package category

import (
	"context"
	"log/slog"
	"sync"

	"nichescout/classify"
	"nichescout/models"
	"nichescout/pool"
)

// Narrow drops records the classifier judges irrelevant to the keyword. At
// most limit records per category are evaluated; the rest pass through, as
// does any record whose classification call fails. Only a definite "not
// relevant" verdict removes a record.
func Narrow(ctx context.Context, classifier classify.Classifier, records []*models.ProductRecord, keyword string, limit int) []*models.ProductRecord {
	if classifier == nil || len(records) == 0 {
		return records
	}

	perCategory := make(map[string]int)
	var candidates []*models.ProductRecord
	keep := make(map[string]bool, len(records))

	for _, r := range records {
		cat := r.CategoryName()
		if perCategory[cat] >= limit {
			keep[r.ID] = true
			continue
		}
		perCategory[cat]++
		candidates = append(candidates, r)
	}

	var mu sync.Mutex
	verdicts := make(map[string]bool, len(candidates))

	p := pool.New(pool.Policy{
		Baseline:  5,
		Max:       20,
		Floor:     1,
		GrowAfter: 3,
		GrowStep:  2,
		Throttled: classify.Throttled,
	})

	err := p.Run(ctx, len(candidates), func(ctx context.Context, i int) error {
		r := candidates[i]
		relevant, err := classifier.ValidateProduct(ctx, r, keyword)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			// Fail open: an unanswered question never discards inventory.
			verdicts[r.ID] = true
			return err
		}
		verdicts[r.ID] = relevant
		return nil
	})
	if err != nil {
		// Cancelled mid-batch: keep everything not yet judged.
		slog.Warn("relevance narrowing interrupted", slog.Any("error", err))
	}

	kept := make([]*models.ProductRecord, 0, len(records))
	removed := 0
	for _, r := range records {
		if keep[r.ID] {
			kept = append(kept, r)
			continue
		}
		verdict, judged := verdicts[r.ID]
		if !judged || verdict {
			kept = append(kept, r)
		} else {
			removed++
		}
	}

	slog.Info("relevance narrowing done",
		slog.String("keyword", keyword),
		slog.Int("evaluated", len(candidates)),
		slog.Int("removed", removed),
		slog.Int("failures", p.Failures()),
	)
	return kept
}
