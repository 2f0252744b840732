// Package category builds a taxonomy over acquired records and drives the
// expansion pass.
package category

import (
	"sort"

	"nichescout/models"
)

// Analyze groups records by category and ranks the buckets. Averages use
// only records carrying a value for the metric; a missing price is excluded,
// not counted as zero. The ranking orders by record count, then total
// reviews, then first appearance, with the Other bucket always last.
func Analyze(keyword string, records []*models.ProductRecord) ([]models.CategoryStat, []string) {
	type bucket struct {
		name    string
		order   int
		count   int
		prices  []float64
		ratings []float64
		reviews int
		hasRevs bool
	}

	buckets := make(map[string]*bucket)
	order := 0

	for _, r := range records {
		name := r.CategoryName()
		if name == "" {
			name = OtherCategory
		}
		b, ok := buckets[name]
		if !ok {
			b = &bucket{name: name, order: order}
			order++
			buckets[name] = b
		}
		b.count++
		if r.Price != nil {
			b.prices = append(b.prices, *r.Price)
		}
		if r.Rating != nil {
			b.ratings = append(b.ratings, *r.Rating)
		}
		if r.ReviewCount != nil {
			b.reviews += *r.ReviewCount
			b.hasRevs = true
		}
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		bi, bj := ordered[i], ordered[j]
		if (bi.name == OtherCategory) != (bj.name == OtherCategory) {
			return bj.name == OtherCategory
		}
		if bi.count != bj.count {
			return bi.count > bj.count
		}
		if bi.reviews != bj.reviews {
			return bi.reviews > bj.reviews
		}
		return bi.order < bj.order
	})

	stats := make([]models.CategoryStat, 0, len(ordered))
	ranked := make([]string, 0, len(ordered))
	for _, b := range ordered {
		stat := models.CategoryStat{
			Keyword:     keyword,
			Category:    b.name,
			RecordCount: b.count,
		}
		if len(b.prices) > 0 {
			avg := mean(b.prices)
			stat.AvgPrice = &avg
		}
		if len(b.ratings) > 0 {
			avg := mean(b.ratings)
			stat.AvgRating = &avg
		}
		if b.hasRevs {
			revs := b.reviews
			stat.TotalReviews = &revs
		}
		stats = append(stats, stat)
		ranked = append(ranked, b.name)
	}
	return stats, ranked
}

// TopCategories returns up to k expandable categories from a ranking. The
// Other bucket is never expandable.
func TopCategories(ranked []string, k int) []string {
	out := make([]string, 0, k)
	for _, name := range ranked {
		if name == OtherCategory {
			continue
		}
		out = append(out, name)
		if len(out) == k {
			break
		}
	}
	return out
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
