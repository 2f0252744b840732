package category

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"nichescout/acquire"
	"nichescout/config"
	"nichescout/models"
)

func strp(s string) *string { return &s }
func fp(f float64) *float64 { return &f }
func ip(i int) *int         { return &i }

func record(id, category string) *models.ProductRecord {
	r := &models.ProductRecord{ID: id, Keyword: "camping", Name: "Product " + id}
	if category != "" {
		r.Category = strp(category)
	}
	return r
}

func TestAnalyzeRanksByCountThenReviews(t *testing.T) {
	records := []*models.ProductRecord{
		record("A1", "Tents"), record("A2", "Tents"), record("A3", "Tents"),
		record("B1", "Stoves"), record("B2", "Stoves"),
		record("C1", "Lanterns"), record("C2", "Lanterns"),
		record("D1", ""),
	}
	// Lanterns and Stoves tie on count; reviews break the tie.
	records[3].ReviewCount = ip(10)
	records[5].ReviewCount = ip(500)

	stats, ranked := Analyze("camping", records)

	want := []string{"Tents", "Lanterns", "Stoves", "Other"}
	if len(ranked) != len(want) {
		t.Fatalf("ranked = %v, want %v", ranked, want)
	}
	for i := range want {
		if ranked[i] != want[i] {
			t.Errorf("ranked[%d] = %q, want %q", i, ranked[i], want[i])
		}
	}
	if stats[0].RecordCount != 3 {
		t.Errorf("top category count = %d, want 3", stats[0].RecordCount)
	}
}

func TestAnalyzeOtherAlwaysLast(t *testing.T) {
	records := []*models.ProductRecord{
		record("A1", ""), record("A2", ""), record("A3", ""),
		record("B1", "Tents"),
	}
	_, ranked := Analyze("camping", records)
	if ranked[len(ranked)-1] != OtherCategory {
		t.Errorf("ranked = %v, want %q last despite its higher count", ranked, OtherCategory)
	}
}

func TestAnalyzeAveragesSkipMissingValues(t *testing.T) {
	a := record("A1", "Tents")
	a.Price = fp(10)
	a.Rating = fp(4)
	b := record("A2", "Tents")
	b.Price = fp(30)
	c := record("A3", "Tents") // no price, no rating

	stats, _ := Analyze("camping", []*models.ProductRecord{a, b, c})
	s := stats[0]
	if s.AvgPrice == nil || *s.AvgPrice != 20 {
		t.Errorf("AvgPrice = %v, want 20 over the two priced records", s.AvgPrice)
	}
	if s.AvgRating == nil || *s.AvgRating != 4 {
		t.Errorf("AvgRating = %v, want 4 over the single rated record", s.AvgRating)
	}
	if s.TotalReviews != nil {
		t.Errorf("TotalReviews = %v, want nil when no record carries reviews", *s.TotalReviews)
	}
}

func TestAnalyzeStableTieBreak(t *testing.T) {
	records := []*models.ProductRecord{
		record("A1", "Stoves"),
		record("B1", "Tents"),
	}
	_, ranked := Analyze("camping", records)
	if ranked[0] != "Stoves" || ranked[1] != "Tents" {
		t.Errorf("ranked = %v, want first-seen order on full tie", ranked)
	}
}

func TestTopCategoriesSkipsOther(t *testing.T) {
	got := TopCategories([]string{"Tents", "Other", "Stoves", "Lanterns"}, 2)
	if len(got) != 2 || got[0] != "Tents" || got[1] != "Stoves" {
		t.Errorf("TopCategories() = %v, want [Tents Stoves]", got)
	}
}

func TestExtractProductTypes(t *testing.T) {
	var records []*models.ProductRecord
	for i := 0; i < 5; i++ {
		records = append(records, &models.ProductRecord{
			ID: fmt.Sprintf("T%d", i), Name: fmt.Sprintf("Camping Tent for Hiking %d", i),
		})
	}
	for i := 0; i < 4; i++ {
		records = append(records, &models.ProductRecord{
			ID: fmt.Sprintf("S%d", i), Name: fmt.Sprintf("Sleeping Bag Warm %d", i),
		})
	}
	records = append(records, &models.ProductRecord{ID: "X", Name: "Red Large Set"})

	types := ExtractProductTypes(records, "camping", 3, 10)

	if len(types) == 0 {
		t.Fatalf("no product types extracted")
	}
	joined := strings.Join(types, "|")
	if !strings.Contains(joined, "sleeping bag") {
		t.Errorf("types = %v, want the frequent phrase \"sleeping bag\"", types)
	}
	for _, pt := range types {
		if pt == "camping" {
			t.Errorf("types = %v, the keyword itself must not become a type", types)
		}
		if strings.Contains(pt, "red") || strings.Contains(pt, "large") {
			t.Errorf("types = %v, stopword-only phrases must be dropped", types)
		}
	}
}

func TestExtractProductTypesPrefersLongerPhrases(t *testing.T) {
	var records []*models.ProductRecord
	for i := 0; i < 6; i++ {
		records = append(records, &models.ProductRecord{
			ID: fmt.Sprintf("R%d", i), Name: "Hiking Backpack Cover",
		})
	}

	types := ExtractProductTypes(records, "gear", 3, 10)
	for _, pt := range types {
		if pt == "backpack" || pt == "hiking" || pt == "cover" {
			t.Errorf("types = %v, single words subsumed by longer phrases must be dropped", types)
		}
	}
}

func TestAssignCategories(t *testing.T) {
	records := []*models.ProductRecord{
		{ID: "A", Name: "Ultra Sleeping Bag for Winter"},
		{ID: "B", Name: "Mystery Gadget"},
		{ID: "C", Name: "Tent Pole", Category: strp("Existing")},
	}
	AssignCategories(records, []string{"sleeping bag", "tent pole"})

	if records[0].CategoryName() != "Sleeping Bag" {
		t.Errorf("A category = %q, want Sleeping Bag", records[0].CategoryName())
	}
	if records[1].CategoryName() != OtherCategory {
		t.Errorf("B category = %q, want %q", records[1].CategoryName(), OtherCategory)
	}
	if records[2].CategoryName() != "Existing" {
		t.Errorf("C category = %q, existing assignment must be kept", records[2].CategoryName())
	}
}

func TestApplyProviderCategoriesUsesPathLeaf(t *testing.T) {
	records := []*models.ProductRecord{
		{ID: "A", Name: "Dome Tent"},
		{ID: "B", Name: "Tent Pole", Category: strp("Poles")},
		{ID: "C", Name: "Mystery Gadget"},
	}
	applied := ApplyProviderCategories(records, map[string]string{
		"A": "Sports & Outdoors > Camping & Hiking > Tents",
		"B": "Sports & Outdoors > Tent Accessories",
	})

	if applied != 2 {
		t.Fatalf("ApplyProviderCategories() = %d, want 2", applied)
	}
	if records[0].CategoryName() != "Tents" {
		t.Errorf("A category = %q, want the path leaf Tents", records[0].CategoryName())
	}
	if records[1].CategoryName() != "Tent Accessories" {
		t.Errorf("B category = %q, provider taxonomy must replace the mined value", records[1].CategoryName())
	}
	if records[2].Category != nil {
		t.Errorf("C category = %q, want untouched without a path", *records[2].Category)
	}
}

func TestApplyProviderCategoriesSingleSegmentPath(t *testing.T) {
	records := []*models.ProductRecord{{ID: "A", Name: "Camp Stove"}}
	ApplyProviderCategories(records, map[string]string{"A": "Camp Kitchen"})
	if records[0].CategoryName() != "Camp Kitchen" {
		t.Errorf("category = %q, want Camp Kitchen", records[0].CategoryName())
	}
}

type fakeClassifier struct {
	relevant map[string]bool
	errs     map[string]error
	calls    int
}

func (f *fakeClassifier) ValidateProduct(ctx context.Context, r *models.ProductRecord, keyword string) (bool, error) {
	f.calls++
	if err, ok := f.errs[r.ID]; ok {
		return false, err
	}
	return f.relevant[r.ID], nil
}

func (f *fakeClassifier) FilterCategories(ctx context.Context, categories []string, keyword string) (map[string]bool, error) {
	return nil, nil
}

func TestNarrowDropsIrrelevantKeepsFailed(t *testing.T) {
	records := []*models.ProductRecord{
		record("A1", "Tents"),
		record("A2", "Tents"),
		record("A3", "Tents"),
	}
	classifier := &fakeClassifier{
		relevant: map[string]bool{"A1": true, "A2": false},
		errs:     map[string]error{"A3": errors.New("503 unavailable")},
	}

	kept := Narrow(context.Background(), classifier, records, "camping", 100)

	ids := map[string]bool{}
	for _, r := range kept {
		ids[r.ID] = true
	}
	if !ids["A1"] {
		t.Errorf("relevant record dropped")
	}
	if ids["A2"] {
		t.Errorf("irrelevant record kept")
	}
	if !ids["A3"] {
		t.Errorf("failed classification must keep the record")
	}
}

func TestNarrowHonoursPerCategoryLimit(t *testing.T) {
	var records []*models.ProductRecord
	for i := 0; i < 5; i++ {
		records = append(records, record(fmt.Sprintf("A%d", i), "Tents"))
	}
	classifier := &fakeClassifier{relevant: map[string]bool{}}

	kept := Narrow(context.Background(), classifier, records, "camping", 2)

	if classifier.calls != 2 {
		t.Errorf("classifier called %d times, want 2 (per-category cap)", classifier.calls)
	}
	if len(kept) != 3 {
		t.Errorf("kept %d records, want the 3 beyond the cap", len(kept))
	}
}

func TestNarrowNilClassifierPassesThrough(t *testing.T) {
	records := []*models.ProductRecord{record("A1", "Tents")}
	kept := Narrow(context.Background(), nil, records, "camping", 100)
	if len(kept) != 1 {
		t.Errorf("kept %d records, want pass-through", len(kept))
	}
}

type queryProvider struct {
	pages map[string][]models.RawListing
	errs  map[string]error
	seen  []string
}

func (q *queryProvider) SearchPage(ctx context.Context, query string, page int, country string) ([]models.RawListing, error) {
	q.seen = append(q.seen, query)
	if err, ok := q.errs[query]; ok {
		return nil, err
	}
	if page > 1 {
		return nil, nil
	}
	return q.pages[query], nil
}

func TestExpandQueriesCombineKeywordAndCategory(t *testing.T) {
	provider := &queryProvider{pages: map[string][]models.RawListing{
		"camping tents": {
			{ID: "T1", Name: "Tent One", SalesMessage: "2K+ bought in past month", URL: "https://m.example/dp/T1"},
		},
		"camping stoves": {
			{ID: "S1", Name: "Stove One", SalesMessage: "1K+ bought in past month", URL: "https://m.example/dp/S1"},
		},
	}}

	cfg := config.DefaultConfig()
	cfg.Keyword = "camping"
	ctrl := acquire.NewController(provider, cfg)

	records, failures := Expand(context.Background(), ctrl, "camping",
		[]string{"Tents", "Other", "Stoves"}, 50, nil)

	if failures != 0 {
		t.Fatalf("failures = %d, want 0", failures)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, q := range provider.seen {
		if q != strings.ToLower(q) {
			t.Errorf("query %q not lower-cased", q)
		}
		if strings.Contains(q, "other") {
			t.Errorf("the Other bucket must never be expanded")
		}
	}
	for _, r := range records {
		if r.SourceKind != models.SourceCategorySearch {
			t.Errorf("record %s source kind = %q, want %q", r.ID, r.SourceKind, models.SourceCategorySearch)
		}
		if r.Keyword != "camping" {
			t.Errorf("record %s keyword = %q, want camping", r.ID, r.Keyword)
		}
	}
}

func TestExpandSkipsTodayCategoriesAndSurvivesFailures(t *testing.T) {
	provider := &queryProvider{
		pages: map[string][]models.RawListing{
			"camping tents": {
				{ID: "T1", Name: "Tent One", SalesMessage: "2K+ bought in past month", URL: "https://m.example/dp/T1"},
			},
		},
		errs: map[string]error{"camping stoves": errors.New("blocked")},
	}

	cfg := config.DefaultConfig()
	cfg.Keyword = "camping"
	ctrl := acquire.NewController(provider, cfg)

	skip := map[string]struct{}{"lanterns": {}}
	records, failures := Expand(context.Background(), ctrl, "camping",
		[]string{"Tents", "Stoves", "Lanterns"}, 50, skip)

	if failures != 1 {
		t.Errorf("failures = %d, want 1 for the blocked category", failures)
	}
	if len(records) != 1 || records[0].ID != "T1" {
		t.Errorf("records = %v, want only T1", records)
	}
	for _, q := range provider.seen {
		if strings.Contains(q, "lanterns") {
			t.Errorf("skipped category was queried: %v", provider.seen)
		}
	}
}
