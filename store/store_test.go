package store

import (
	"context"
	"testing"

	"nichescout/models"
)

func strp(s string) *string { return &s }
func fp(f float64) *float64 { return &f }
func ip(i int) *int         { return &i }

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id, keyword string) *models.ProductRecord {
	return &models.ProductRecord{
		ID:          id,
		Keyword:     keyword,
		SourceKind:  models.SourceKeywordSearch,
		SourceValue: keyword,
		Name:        "Product " + id,
		Brand:       "Acme",
		Category:    strp("Tents"),
		Price:       fp(29.99),
		Rating:      fp(4.5),
		ReviewCount: ip(120),
		SalesVolume: ip(2000),
		PageRank:    1,
		URL:         "https://marketplace.example/dp/" + id,
	}
}

func TestUpsertMergeKeepsFirstSeenSource(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	first := sampleRecord("B001", "camping")
	if _, err := s.UpsertRecords(ctx, []*models.ProductRecord{first}); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}

	// Same identifier re-observed from a category search, now missing price
	// but carrying a fresher review count.
	second := sampleRecord("B001", "camping")
	second.SourceKind = models.SourceCategorySearch
	second.SourceValue = "Tents"
	second.Price = nil
	second.ReviewCount = ip(150)
	second.PageRank = 7
	if _, err := s.UpsertRecords(ctx, []*models.ProductRecord{second}); err != nil {
		t.Fatalf("UpsertRecords() second pass error = %v", err)
	}

	got, err := s.Records(ctx, "camping")
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Records() returned %d rows, want 1", len(got))
	}
	r := got[0]
	if r.SourceKind != models.SourceKeywordSearch {
		t.Errorf("SourceKind = %q, want first-seen %q", r.SourceKind, models.SourceKeywordSearch)
	}
	if r.SourceValue != "camping" {
		t.Errorf("SourceValue = %q, want first-seen %q", r.SourceValue, "camping")
	}
	if r.Price == nil || *r.Price != 29.99 {
		t.Errorf("Price = %v, want merged 29.99", r.Price)
	}
	if r.ReviewCount == nil || *r.ReviewCount != 150 {
		t.Errorf("ReviewCount = %v, want refreshed 150", r.ReviewCount)
	}
}

func TestUpsertSkipsEmptyIdentifier(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	n, err := s.UpsertRecords(ctx, []*models.ProductRecord{
		{Keyword: "camping", Name: "no id"},
		sampleRecord("B002", "camping"),
	})
	if err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}
	if n != 1 {
		t.Errorf("UpsertRecords() wrote %d rows, want 1", n)
	}
}

func TestMarkFilteredIsSoftAndFirstStageWins(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	records := []*models.ProductRecord{
		sampleRecord("B010", "camping"),
		sampleRecord("B011", "camping"),
		sampleRecord("B012", "camping"),
	}
	if _, err := s.UpsertRecords(ctx, records); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}

	marked, err := s.MarkFiltered(ctx, "camping", models.FilterSponsored, []string{"B010"})
	if err != nil {
		t.Fatalf("MarkFiltered() error = %v", err)
	}
	if marked != 1 {
		t.Errorf("MarkFiltered() = %d, want 1", marked)
	}

	// A later stage must not relabel an already-removed row.
	marked, err = s.MarkFiltered(ctx, "camping", models.FilterSales, []string{"B010", "B011"})
	if err != nil {
		t.Fatalf("MarkFiltered() second stage error = %v", err)
	}
	if marked != 1 {
		t.Errorf("MarkFiltered() second stage = %d, want 1", marked)
	}

	active, err := s.ActiveRecords(ctx, "camping")
	if err != nil {
		t.Fatalf("ActiveRecords() error = %v", err)
	}
	if len(active) != 1 || active[0].ID != "B012" {
		t.Errorf("ActiveRecords() = %v, want only B012", active)
	}

	all, err := s.Records(ctx, "camping")
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Records() returned %d rows after filtering, want all 3 retained", len(all))
	}
	statuses := map[string]string{}
	for _, r := range all {
		statuses[r.ID] = r.FilterStatus
	}
	if statuses["B010"] != models.FilterSponsored {
		t.Errorf("B010 filter status = %q, want %q", statuses["B010"], models.FilterSponsored)
	}
	if statuses["B011"] != models.FilterSales {
		t.Errorf("B011 filter status = %q, want %q", statuses["B011"], models.FilterSales)
	}

	reset, err := s.ResetFilterStatus(ctx, "camping")
	if err != nil {
		t.Fatalf("ResetFilterStatus() error = %v", err)
	}
	if reset != 2 {
		t.Errorf("ResetFilterStatus() = %d, want 2", reset)
	}
	active, err = s.ActiveRecords(ctx, "camping")
	if err != nil {
		t.Fatalf("ActiveRecords() after reset error = %v", err)
	}
	if len(active) != 3 {
		t.Errorf("ActiveRecords() after reset = %d rows, want 3", len(active))
	}
}

func TestCuratedRecordsOrderPriceNilLast(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	cheap := sampleRecord("B020", "camping")
	cheap.Price = fp(9.99)
	dear := sampleRecord("B021", "camping")
	dear.Price = fp(49.99)
	unknown := sampleRecord("B022", "camping")
	unknown.Price = nil

	if _, err := s.UpsertRecords(ctx, []*models.ProductRecord{dear, unknown, cheap}); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}

	got, err := s.CuratedRecords(ctx, "camping")
	if err != nil {
		t.Fatalf("CuratedRecords() error = %v", err)
	}
	want := []string{"B020", "B021", "B022"}
	if len(got) != len(want) {
		t.Fatalf("CuratedRecords() returned %d rows, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("CuratedRecords()[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestApplyEnrichmentNeverOverridesFirstParty(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	r := sampleRecord("B030", "camping")
	r.Rating = fp(4.5)
	r.ReviewCount = nil
	if _, err := s.UpsertRecords(ctx, []*models.ProductRecord{r}); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}

	enriched := *r
	enriched.Sales3M = ip(900)
	enriched.MonthlySales = ip(300)
	enriched.ListingDate = strp("2024-11-02")
	enriched.PriceMin = fp(19.99)
	enriched.PriceMax = fp(39.99)
	enriched.Rating = fp(3.1)      // provider disagrees; first-party wins
	enriched.ReviewCount = ip(210) // missing first-party; backfill applies

	n, err := s.ApplyEnrichment(ctx, []*models.ProductRecord{&enriched})
	if err != nil {
		t.Fatalf("ApplyEnrichment() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ApplyEnrichment() = %d, want 1", n)
	}

	got, err := s.Records(ctx, "camping")
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	out := got[0]
	if out.Rating == nil || *out.Rating != 4.5 {
		t.Errorf("Rating = %v, want first-party 4.5 retained", out.Rating)
	}
	if out.ReviewCount == nil || *out.ReviewCount != 210 {
		t.Errorf("ReviewCount = %v, want backfilled 210", out.ReviewCount)
	}
	if out.Sales3M == nil || *out.Sales3M != 900 {
		t.Errorf("Sales3M = %v, want 900", out.Sales3M)
	}
	if out.PriceMin == nil || *out.PriceMin != 19.99 {
		t.Errorf("PriceMin = %v, want 19.99", out.PriceMin)
	}
}

func TestExistingIDsAndTodayCategories(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	kw := sampleRecord("B040", "camping")
	cat := sampleRecord("B041", "camping")
	cat.SourceKind = models.SourceCategorySearch
	cat.SourceValue = "Sleeping Bags"
	if _, err := s.UpsertRecords(ctx, []*models.ProductRecord{kw, cat}); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}

	ids, err := s.ExistingIDs(ctx, "camping")
	if err != nil {
		t.Fatalf("ExistingIDs() error = %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ExistingIDs() = %d entries, want 2", len(ids))
	}
	if _, ok := ids["B040"]; !ok {
		t.Errorf("ExistingIDs() missing B040")
	}

	cats, err := s.TodayCategories(ctx, "camping")
	if err != nil {
		t.Fatalf("TodayCategories() error = %v", err)
	}
	if _, ok := cats["sleeping bags"]; !ok {
		t.Errorf("TodayCategories() = %v, want lower-cased %q present", cats, "sleeping bags")
	}
	if _, ok := cats["camping"]; ok {
		t.Errorf("TodayCategories() must not include keyword-search source values")
	}
}

func TestSaveCategoryStatsReplaces(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	first := []models.CategoryStat{
		{Category: "Tents", RecordCount: 10, AvgPrice: fp(35.5), TotalReviews: ip(4000)},
		{Category: "Stoves", RecordCount: 4},
	}
	if err := s.SaveCategoryStats(ctx, "camping", first); err != nil {
		t.Fatalf("SaveCategoryStats() error = %v", err)
	}

	second := []models.CategoryStat{
		{Category: "Tents", RecordCount: 12, AvgPrice: fp(34.0)},
	}
	if err := s.SaveCategoryStats(ctx, "camping", second); err != nil {
		t.Fatalf("SaveCategoryStats() replace error = %v", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM category_stats WHERE keyword = ?", "camping").Scan(&n); err != nil {
		t.Fatalf("count stats: %v", err)
	}
	if n != 1 {
		t.Errorf("category_stats has %d rows after replace, want 1", n)
	}
}

func TestCountRecords(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if _, err := s.UpsertRecords(ctx, []*models.ProductRecord{
		sampleRecord("B050", "camping"),
		sampleRecord("B051", "camping"),
	}); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}
	if _, err := s.MarkFiltered(ctx, "camping", models.FilterPrice, []string{"B051"}); err != nil {
		t.Fatalf("MarkFiltered() error = %v", err)
	}

	all, err := s.CountRecords(ctx, "camping", true)
	if err != nil {
		t.Fatalf("CountRecords(all) error = %v", err)
	}
	kept, err := s.CountRecords(ctx, "camping", false)
	if err != nil {
		t.Fatalf("CountRecords(kept) error = %v", err)
	}
	if all != 2 || kept != 1 {
		t.Errorf("CountRecords() = all %d kept %d, want 2 and 1", all, kept)
	}
}
