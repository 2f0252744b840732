package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"nichescout/models"
)

// The two enrichment cache tables share a shape: identifier unique key,
// provider payload, updated_at timestamp. An entry is fresh while
// now - updated_at < ttlDays; freshness is the only admission criterion
// for skipping a live provider call.

func ttlClause(ttlDays int) string {
	return fmt.Sprintf("updated_at >= datetime('now', '-%d days')", ttlDays)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idsToArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// FreshHistory returns cached analytics payloads younger than the TTL for the
// requested identifiers.
func (s *Store) FreshHistory(ctx context.Context, ids []string, ttlDays int) (map[string]models.HistoryPayload, error) {
	if len(ids) == 0 {
		return map[string]models.HistoryPayload{}, nil
	}

	query := fmt.Sprintf(`
		SELECT identifier, sales_3m, monthly_sales, listing_date, rating, review_count, category_path, raw_trends
		FROM analytics_cache
		WHERE identifier IN (%s) AND %s`, placeholders(len(ids)), ttlClause(ttlDays))

	rows, err := s.db.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("store: fresh history: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.HistoryPayload)
	for rows.Next() {
		var (
			p       models.HistoryPayload
			sales3m sql.NullInt64
			monthly sql.NullInt64
			listing sql.NullString
			rating  sql.NullFloat64
			reviews sql.NullInt64
			catPath sql.NullString
			raw     sql.NullString
		)
		if err := rows.Scan(&p.ID, &sales3m, &monthly, &listing, &rating, &reviews, &catPath, &raw); err != nil {
			return nil, fmt.Errorf("store: scan history: %w", err)
		}
		p.Sales3M = intPtr(sales3m)
		p.MonthlySales = intPtr(monthly)
		p.ListingDate = strPtr(listing)
		p.Rating = floatPtr(rating)
		p.ReviewCount = intPtr(reviews)
		p.CategoryPath = catPath.String
		p.RawTrends = raw.String
		out[p.ID] = p
	}
	return out, rows.Err()
}

// PutHistory writes analytics payloads, overwriting stale entries and
// stamping the current time.
func (s *Store) PutHistory(ctx context.Context, payloads map[string]models.HistoryPayload) error {
	if len(payloads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO analytics_cache
			(identifier, sales_3m, monthly_sales, listing_date, rating, review_count, category_path, raw_trends, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`)
	if err != nil {
		return fmt.Errorf("store: prepare history: %w", err)
	}
	defer stmt.Close()

	for id, p := range payloads {
		_, err := stmt.ExecContext(ctx, id, nullInt(p.Sales3M), nullInt(p.MonthlySales),
			nullStr(p.ListingDate), nullFloat(p.Rating), nullInt(p.ReviewCount), p.CategoryPath, p.RawTrends)
		if err != nil {
			return fmt.Errorf("store: put history %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// FreshCategoryPaths returns cached taxonomy paths younger than the TTL for
// the requested identifiers. Rows without a category path are skipped.
func (s *Store) FreshCategoryPaths(ctx context.Context, ids []string, ttlDays int) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	query := fmt.Sprintf(`
		SELECT identifier, category_path
		FROM analytics_cache
		WHERE identifier IN (%s) AND category_path IS NOT NULL AND category_path != '' AND %s`,
		placeholders(len(ids)), ttlClause(ttlDays))

	rows, err := s.db.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("store: fresh category paths: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("store: scan category path: %w", err)
		}
		out[id] = path
	}
	return out, rows.Err()
}

// PutCategoryPaths writes provider taxonomy paths into the analytics cache
// without disturbing any other cached payload columns.
func (s *Store) PutCategoryPaths(ctx context.Context, paths map[string]string) error {
	if len(paths) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO analytics_cache (identifier, category_path, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(identifier) DO UPDATE SET
			category_path = excluded.category_path,
			updated_at    = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("store: prepare category paths: %w", err)
	}
	defer stmt.Close()

	for id, path := range paths {
		if _, err := stmt.ExecContext(ctx, id, path); err != nil {
			return fmt.Errorf("store: put category path %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// FreshPrices returns cached price-history payloads younger than the TTL.
func (s *Store) FreshPrices(ctx context.Context, ids []string, ttlDays int) (map[string]models.PricePayload, error) {
	if len(ids) == 0 {
		return map[string]models.PricePayload{}, nil
	}

	query := fmt.Sprintf(`
		SELECT identifier, current_price, price_min, price_max, price_min_date, price_max_date, listing_date, raw_data
		FROM price_cache
		WHERE identifier IN (%s) AND %s`, placeholders(len(ids)), ttlClause(ttlDays))

	rows, err := s.db.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("store: fresh prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.PricePayload)
	for rows.Next() {
		var (
			p       models.PricePayload
			current sql.NullFloat64
			pmin    sql.NullFloat64
			pmax    sql.NullFloat64
			minDate sql.NullString
			maxDate sql.NullString
			listing sql.NullString
			raw     sql.NullString
		)
		if err := rows.Scan(&p.ID, &current, &pmin, &pmax, &minDate, &maxDate, &listing, &raw); err != nil {
			return nil, fmt.Errorf("store: scan price: %w", err)
		}
		p.CurrentPrice = floatPtr(current)
		p.PriceMin = floatPtr(pmin)
		p.PriceMax = floatPtr(pmax)
		p.PriceMinDate = strPtr(minDate)
		p.PriceMaxDate = strPtr(maxDate)
		p.ListingDate = strPtr(listing)
		p.Raw = raw.String
		out[p.ID] = p
	}
	return out, rows.Err()
}

// PutPrices writes price-history payloads with the current timestamp.
func (s *Store) PutPrices(ctx context.Context, payloads map[string]models.PricePayload) error {
	if len(payloads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO price_cache
			(identifier, current_price, price_min, price_max, price_min_date, price_max_date, listing_date, raw_data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`)
	if err != nil {
		return fmt.Errorf("store: prepare prices: %w", err)
	}
	defer stmt.Close()

	for id, p := range payloads {
		_, err := stmt.ExecContext(ctx, id, nullFloat(p.CurrentPrice),
			nullFloat(p.PriceMin), nullFloat(p.PriceMax),
			nullStr(p.PriceMinDate), nullStr(p.PriceMaxDate),
			nullStr(p.ListingDate), p.Raw)
		if err != nil {
			return fmt.Errorf("store: put price %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// CleanExpiredCaches deletes cache entries older than the TTL from both
// provider tables. Returns the number of rows removed.
func (s *Store) CleanExpiredCaches(ctx context.Context, ttlDays int) (int, error) {
	total := 0
	for _, table := range []string{"analytics_cache", "price_cache"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE NOT (%s)", table, ttlClause(ttlDays)))
		if err != nil {
			return total, fmt.Errorf("store: clean %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}
