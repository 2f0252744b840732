package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"nichescout/models"
)

// UpsertRecords writes records for a keyword, merging on (identifier, keyword).
// A re-observed identifier refreshes the listing fields but keeps its
// first-seen source attribution. Returns the number of rows written.
func (s *Store) UpsertRecords(ctx context.Context, records []*models.ProductRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records
			(identifier, keyword, source_kind, source_value, name, brand, category,
			 price, rating, review_count, sales_volume, page_rank, sponsored, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier, keyword) DO UPDATE SET
			name         = excluded.name,
			brand        = excluded.brand,
			category     = COALESCE(excluded.category, records.category),
			price        = COALESCE(excluded.price, records.price),
			rating       = COALESCE(excluded.rating, records.rating),
			review_count = COALESCE(excluded.review_count, records.review_count),
			sales_volume = COALESCE(excluded.sales_volume, records.sales_volume),
			sponsored    = excluded.sponsored,
			url          = excluded.url`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		_, err := stmt.ExecContext(ctx,
			r.ID, r.Keyword, string(r.SourceKind), r.SourceValue, r.Name, r.Brand,
			nullStr(r.Category), nullFloat(r.Price), nullFloat(r.Rating),
			nullInt(r.ReviewCount), nullInt(r.SalesVolume), r.PageRank,
			boolInt(r.Sponsored), r.URL)
		if err != nil {
			return 0, fmt.Errorf("store: upsert %s: %w", r.ID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return written, nil
}

const recordColumns = `identifier, keyword, source_kind, source_value, name, brand,
	category, price, rating, review_count, sales_volume, page_rank, sponsored, url,
	sales_3m, monthly_sales, listing_date, price_min, price_max,
	price_min_date, price_max_date, COALESCE(filter_status, '')`

func scanRecord(rows *sql.Rows) (*models.ProductRecord, error) {
	var (
		r          models.ProductRecord
		kind       string
		category   sql.NullString
		price      sql.NullFloat64
		rating     sql.NullFloat64
		reviews    sql.NullInt64
		sales      sql.NullInt64
		sales3m    sql.NullInt64
		monthly    sql.NullInt64
		listing    sql.NullString
		priceMin   sql.NullFloat64
		priceMax   sql.NullFloat64
		priceMinDt sql.NullString
		priceMaxDt sql.NullString
		sponsored  int
	)
	err := rows.Scan(&r.ID, &r.Keyword, &kind, &r.SourceValue, &r.Name, &r.Brand,
		&category, &price, &rating, &reviews, &sales, &r.PageRank, &sponsored, &r.URL,
		&sales3m, &monthly, &listing, &priceMin, &priceMax,
		&priceMinDt, &priceMaxDt, &r.FilterStatus)
	if err != nil {
		return nil, err
	}
	r.SourceKind = models.SourceKind(kind)
	r.Category = strPtr(category)
	r.Price = floatPtr(price)
	r.Rating = floatPtr(rating)
	r.ReviewCount = intPtr(reviews)
	r.SalesVolume = intPtr(sales)
	r.Sales3M = intPtr(sales3m)
	r.MonthlySales = intPtr(monthly)
	r.ListingDate = strPtr(listing)
	r.PriceMin = floatPtr(priceMin)
	r.PriceMax = floatPtr(priceMax)
	r.PriceMinDate = strPtr(priceMinDt)
	r.PriceMaxDate = strPtr(priceMaxDt)
	r.Sponsored = sponsored != 0
	return &r, nil
}

// Records returns every row for a keyword, filtered and kept alike, ordered by
// page rank.
func (s *Store) Records(ctx context.Context, keyword string) ([]*models.ProductRecord, error) {
	return s.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM records WHERE keyword = ? ORDER BY page_rank, identifier", keyword)
}

// ActiveRecords returns the rows for a keyword that no filter stage has
// removed.
func (s *Store) ActiveRecords(ctx context.Context, keyword string) ([]*models.ProductRecord, error) {
	return s.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM records WHERE keyword = ? AND filter_status IS NULL ORDER BY page_rank, identifier", keyword)
}

// CuratedRecords returns the surviving rows ordered by ascending price for
// export. Rows without a price sort last.
func (s *Store) CuratedRecords(ctx context.Context, keyword string) ([]*models.ProductRecord, error) {
	return s.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM records WHERE keyword = ? AND filter_status IS NULL ORDER BY price IS NULL, price, identifier", keyword)
}

// TodayRecords returns rows observed today for a keyword and source kind,
// used by the same-day re-run short-circuit.
func (s *Store) TodayRecords(ctx context.Context, keyword string, kind models.SourceKind) ([]*models.ProductRecord, error) {
	return s.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM records WHERE keyword = ? AND source_kind = ? AND date(created_at) = date('now') ORDER BY page_rank, identifier",
		keyword, string(kind))
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*models.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query records: %w", err)
	}
	defer rows.Close()

	var out []*models.ProductRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExistingIDs returns the identifiers already stored for a keyword.
func (s *Store) ExistingIDs(ctx context.Context, keyword string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT identifier FROM records WHERE keyword = ?", keyword)
	if err != nil {
		return nil, fmt.Errorf("store: existing ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// TodayCategories returns the category names (lower-cased) already expanded
// today for a keyword, used to skip duplicate expansion passes.
func (s *Store) TodayCategories(ctx context.Context, keyword string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT source_value FROM records
		WHERE keyword = ? AND source_kind = ? AND date(created_at) = date('now')`,
		keyword, string(models.SourceCategorySearch))
	if err != nil {
		return nil, fmt.Errorf("store: today categories: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scan category: %w", err)
		}
		out[strings.ToLower(v)] = struct{}{}
	}
	return out, rows.Err()
}

// ResetFilterStatus clears filter marks for a keyword so a re-run evaluates
// every row again. Returns the number of rows reset.
func (s *Store) ResetFilterStatus(ctx context.Context, keyword string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE records SET filter_status = NULL WHERE keyword = ? AND filter_status IS NOT NULL", keyword)
	if err != nil {
		return 0, fmt.Errorf("store: reset filter status: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MarkFiltered soft-removes the given identifiers with a stage label. Rows
// already claimed by an earlier stage keep their label.
func (s *Store) MarkFiltered(ctx context.Context, keyword, stage string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE records SET filter_status = ? WHERE keyword = ? AND identifier = ? AND filter_status IS NULL")
	if err != nil {
		return 0, fmt.Errorf("store: prepare mark: %w", err)
	}
	defer stmt.Close()

	marked := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, stage, keyword, id)
		if err != nil {
			return 0, fmt.Errorf("store: mark %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			marked++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return marked, nil
}

// ApplyEnrichment writes the enrichment fields of the given records back.
// Only the enrichment columns are touched; first-party listing fields are
// updated via the COALESCE in UpsertRecords, never here.
func (s *Store) ApplyEnrichment(ctx context.Context, records []*models.ProductRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE records SET
			sales_3m = ?, monthly_sales = ?, listing_date = ?,
			price_min = ?, price_max = ?, price_min_date = ?, price_max_date = ?,
			rating = COALESCE(rating, ?), review_count = COALESCE(review_count, ?)
		WHERE keyword = ? AND identifier = ?`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare enrichment: %w", err)
	}
	defer stmt.Close()

	updated := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx,
			nullInt(r.Sales3M), nullInt(r.MonthlySales), nullStr(r.ListingDate),
			nullFloat(r.PriceMin), nullFloat(r.PriceMax),
			nullStr(r.PriceMinDate), nullStr(r.PriceMaxDate),
			nullFloat(r.Rating), nullInt(r.ReviewCount),
			r.Keyword, r.ID)
		if err != nil {
			return 0, fmt.Errorf("store: enrich %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return updated, nil
}

// SaveCategoryStats replaces the aggregate rows for a keyword.
func (s *Store) SaveCategoryStats(ctx context.Context, keyword string, stats []models.CategoryStat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM category_stats WHERE keyword = ?", keyword); err != nil {
		return fmt.Errorf("store: clear stats: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO category_stats (keyword, category, record_count, avg_price, avg_rating, total_reviews)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare stats: %w", err)
	}
	defer stmt.Close()

	for _, st := range stats {
		_, err := stmt.ExecContext(ctx, keyword, st.Category, st.RecordCount,
			nullFloat(st.AvgPrice), nullFloat(st.AvgRating), nullInt(st.TotalReviews))
		if err != nil {
			return fmt.Errorf("store: insert stat %q: %w", st.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// CountRecords reports rows for a keyword, optionally including soft-removed
// ones.
func (s *Store) CountRecords(ctx context.Context, keyword string, includeFiltered bool) (int, error) {
	query := "SELECT COUNT(*) FROM records WHERE keyword = ?"
	if !includeFiltered {
		query += " AND filter_status IS NULL"
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, keyword).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count records: %w", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
