// Package filter reduces an acquired record set to the curated subset.
package filter

import (
	"log/slog"
	"sort"

	"nichescout/models"
)

// Outcome reports what each stage removed and the statistics stage two
// computed for the dominant category.
type Outcome struct {
	RemovedByStage   map[string]int
	Removed          map[string][]string
	DominantCategory string
	MeanPrice        float64
	MedianPrice      float64
	PriceCeiling     float64
	HasPrices        bool
}

func (o *Outcome) remove(stage, id string) {
	o.RemovedByStage[stage]++
	o.Removed[stage] = append(o.Removed[stage], id)
}

// Settings are the filter tunables.
type Settings struct {
	SalesCeiling int
}

// Run applies the four stages in order and returns the surviving records.
// Each stage is a pure reduction; statistics for the price ceiling come from
// the sponsor-filtered, category-consolidated set, so the order is fixed.
// Re-running on already-curated input removes nothing further.
func Run(records []*models.ProductRecord, settings Settings) ([]*models.ProductRecord, Outcome) {
	out := Outcome{
		RemovedByStage: make(map[string]int),
		Removed:        make(map[string][]string),
	}

	kept := dropSponsored(records, &out)
	kept = consolidateCategory(kept, &out)
	kept = dropHighSales(kept, settings.SalesCeiling, &out)
	kept = dropHighPrices(kept, &out)

	slog.Info("filter pipeline done",
		slog.Int("in", len(records)),
		slog.Int("kept", len(kept)),
		slog.String("dominant_category", out.DominantCategory),
		slog.Any("removed", out.RemovedByStage),
	)
	return kept, out
}

func dropSponsored(records []*models.ProductRecord, out *Outcome) []*models.ProductRecord {
	kept := records[:0:0]
	for _, r := range records {
		if r.Sponsored {
			out.remove(models.FilterSponsored, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// consolidateCategory keeps only the records of the most populous category
// and computes its price statistics. Ties break by total reviews, then by
// first appearance. An empty input stays empty.
func consolidateCategory(records []*models.ProductRecord, out *Outcome) []*models.ProductRecord {
	if len(records) == 0 {
		return records
	}

	type bucket struct {
		name    string
		order   int
		count   int
		reviews int
	}
	buckets := make(map[string]*bucket)
	order := 0
	for _, r := range records {
		name := r.CategoryName()
		b, ok := buckets[name]
		if !ok {
			b = &bucket{name: name, order: order}
			order++
			buckets[name] = b
		}
		b.count++
		if r.ReviewCount != nil {
			b.reviews += *r.ReviewCount
		}
	}

	var dominant *bucket
	for _, b := range buckets {
		if dominant == nil {
			dominant = b
			continue
		}
		if b.count != dominant.count {
			if b.count > dominant.count {
				dominant = b
			}
			continue
		}
		if b.reviews != dominant.reviews {
			if b.reviews > dominant.reviews {
				dominant = b
			}
			continue
		}
		if b.order < dominant.order {
			dominant = b
		}
	}
	out.DominantCategory = dominant.name

	kept := records[:0:0]
	var prices []float64
	for _, r := range records {
		if r.CategoryName() != dominant.name {
			out.remove(models.FilterCategory, r.ID)
			continue
		}
		kept = append(kept, r)
		if r.Price != nil {
			prices = append(prices, *r.Price)
		}
	}

	if len(prices) > 0 {
		out.HasPrices = true
		out.MeanPrice = mean(prices)
		out.MedianPrice = median(prices)
		out.PriceCeiling = out.MeanPrice
		if out.MedianPrice < out.MeanPrice {
			out.PriceCeiling = out.MedianPrice
		}
	}
	return kept
}

// dropHighSales removes records selling above the ceiling. The ceiling marks
// saturated listings; an unknown volume cannot be judged and passes.
func dropHighSales(records []*models.ProductRecord, ceiling int, out *Outcome) []*models.ProductRecord {
	kept := records[:0:0]
	for _, r := range records {
		if r.SalesVolume != nil && *r.SalesVolume > ceiling {
			out.remove(models.FilterSales, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// dropHighPrices removes records priced above min(mean, median) of the
// dominant category. When stage two saw no prices at all the stage is a
// no-op.
func dropHighPrices(records []*models.ProductRecord, out *Outcome) []*models.ProductRecord {
	if !out.HasPrices {
		return records
	}
	kept := records[:0:0]
	for _, r := range records {
		if r.Price != nil && *r.Price > out.PriceCeiling {
			out.remove(models.FilterPrice, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
