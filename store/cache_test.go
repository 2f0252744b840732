package store

import (
	"context"
	"testing"

	"nichescout/models"
)

func TestFreshHistoryHonoursTTL(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	payloads := map[string]models.HistoryPayload{
		"B100": {ID: "B100", Sales3M: ip(1500), MonthlySales: ip(500), ListingDate: strp("2024-06-01")},
		"B101": {ID: "B101", Sales3M: ip(90)},
	}
	if err := s.PutHistory(ctx, payloads); err != nil {
		t.Fatalf("PutHistory() error = %v", err)
	}

	// Age one entry past the TTL window.
	if _, err := s.db.Exec(
		"UPDATE analytics_cache SET updated_at = datetime('now', '-25 days') WHERE identifier = ?",
		"B101"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	fresh, err := s.FreshHistory(ctx, []string{"B100", "B101", "B102"}, 20)
	if err != nil {
		t.Fatalf("FreshHistory() error = %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("FreshHistory() = %d entries, want 1", len(fresh))
	}
	p, ok := fresh["B100"]
	if !ok {
		t.Fatalf("FreshHistory() missing fresh entry B100")
	}
	if p.Sales3M == nil || *p.Sales3M != 1500 {
		t.Errorf("Sales3M = %v, want 1500", p.Sales3M)
	}
	if p.MonthlySales == nil || *p.MonthlySales != 500 {
		t.Errorf("MonthlySales = %v, want 500", p.MonthlySales)
	}
}

func TestPutHistoryRefreshesStaleEntry(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.PutHistory(ctx, map[string]models.HistoryPayload{
		"B110": {ID: "B110", Sales3M: ip(100)},
	}); err != nil {
		t.Fatalf("PutHistory() error = %v", err)
	}
	if _, err := s.db.Exec(
		"UPDATE analytics_cache SET updated_at = datetime('now', '-30 days') WHERE identifier = ?",
		"B110"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	if err := s.PutHistory(ctx, map[string]models.HistoryPayload{
		"B110": {ID: "B110", Sales3M: ip(250)},
	}); err != nil {
		t.Fatalf("PutHistory() refresh error = %v", err)
	}

	fresh, err := s.FreshHistory(ctx, []string{"B110"}, 20)
	if err != nil {
		t.Fatalf("FreshHistory() error = %v", err)
	}
	p, ok := fresh["B110"]
	if !ok {
		t.Fatalf("refreshed entry not fresh again")
	}
	if p.Sales3M == nil || *p.Sales3M != 250 {
		t.Errorf("Sales3M = %v, want refreshed 250", p.Sales3M)
	}
}

func TestCategoryPathsRoundTripAndTTL(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.PutCategoryPaths(ctx, map[string]string{
		"B115": "Sports & Outdoors > Camping & Hiking > Tents",
		"B116": "Sports & Outdoors > Camping Lanterns",
	}); err != nil {
		t.Fatalf("PutCategoryPaths() error = %v", err)
	}
	if _, err := s.db.Exec(
		"UPDATE analytics_cache SET updated_at = datetime('now', '-25 days') WHERE identifier = ?",
		"B116"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	fresh, err := s.FreshCategoryPaths(ctx, []string{"B115", "B116", "B117"}, 20)
	if err != nil {
		t.Fatalf("FreshCategoryPaths() error = %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("FreshCategoryPaths() = %d entries, want 1", len(fresh))
	}
	if fresh["B115"] != "Sports & Outdoors > Camping & Hiking > Tents" {
		t.Errorf("path = %q, want the stored taxonomy path", fresh["B115"])
	}
}

func TestPutCategoryPathsPreservesPayloadColumns(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.PutHistory(ctx, map[string]models.HistoryPayload{
		"B118": {ID: "B118", Sales3M: ip(700), Rating: fp(4.2)},
	}); err != nil {
		t.Fatalf("PutHistory() error = %v", err)
	}
	if err := s.PutCategoryPaths(ctx, map[string]string{
		"B118": "Sports & Outdoors > Tents",
	}); err != nil {
		t.Fatalf("PutCategoryPaths() error = %v", err)
	}

	fresh, err := s.FreshHistory(ctx, []string{"B118"}, 20)
	if err != nil {
		t.Fatalf("FreshHistory() error = %v", err)
	}
	p, ok := fresh["B118"]
	if !ok {
		t.Fatalf("entry missing after category path update")
	}
	if p.Sales3M == nil || *p.Sales3M != 700 {
		t.Errorf("Sales3M = %v, payload columns must survive a path update", p.Sales3M)
	}
	if p.Rating == nil || *p.Rating != 4.2 {
		t.Errorf("Rating = %v, payload columns must survive a path update", p.Rating)
	}
	if p.CategoryPath != "Sports & Outdoors > Tents" {
		t.Errorf("CategoryPath = %q, want the written path", p.CategoryPath)
	}
}

func TestFreshPricesHonoursTTL(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.PutPrices(ctx, map[string]models.PricePayload{
		"B120": {ID: "B120", CurrentPrice: fp(24.99), PriceMin: fp(19.99), PriceMax: fp(44.99), PriceMinDate: strp("2024-01-10")},
		"B121": {ID: "B121", CurrentPrice: fp(9.99)},
	}); err != nil {
		t.Fatalf("PutPrices() error = %v", err)
	}
	if _, err := s.db.Exec(
		"UPDATE price_cache SET updated_at = datetime('now', '-21 days') WHERE identifier = ?",
		"B121"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	fresh, err := s.FreshPrices(ctx, []string{"B120", "B121"}, 20)
	if err != nil {
		t.Fatalf("FreshPrices() error = %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("FreshPrices() = %d entries, want 1", len(fresh))
	}
	p := fresh["B120"]
	if p.PriceMin == nil || *p.PriceMin != 19.99 {
		t.Errorf("PriceMin = %v, want 19.99", p.PriceMin)
	}
	if p.PriceMinDate == nil || *p.PriceMinDate != "2024-01-10" {
		t.Errorf("PriceMinDate = %v, want 2024-01-10", p.PriceMinDate)
	}
}

func TestCleanExpiredCaches(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.PutHistory(ctx, map[string]models.HistoryPayload{
		"B130": {ID: "B130"},
		"B131": {ID: "B131"},
	}); err != nil {
		t.Fatalf("PutHistory() error = %v", err)
	}
	if err := s.PutPrices(ctx, map[string]models.PricePayload{
		"B130": {ID: "B130"},
	}); err != nil {
		t.Fatalf("PutPrices() error = %v", err)
	}
	if _, err := s.db.Exec(
		"UPDATE analytics_cache SET updated_at = datetime('now', '-40 days') WHERE identifier = ?",
		"B131"); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if _, err := s.db.Exec(
		"UPDATE price_cache SET updated_at = datetime('now', '-40 days') WHERE identifier = ?",
		"B130"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	removed, err := s.CleanExpiredCaches(ctx, 20)
	if err != nil {
		t.Fatalf("CleanExpiredCaches() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("CleanExpiredCaches() = %d, want 2", removed)
	}

	fresh, err := s.FreshHistory(ctx, []string{"B130", "B131"}, 20)
	if err != nil {
		t.Fatalf("FreshHistory() error = %v", err)
	}
	if len(fresh) != 1 {
		t.Errorf("FreshHistory() after clean = %d entries, want 1", len(fresh))
	}
}
