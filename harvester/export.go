package harvester

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"nichescout/models"
)

var csvHeader = []string{
	"identifier", "keyword", "source_kind", "source_value", "name", "brand",
	"category", "price", "rating", "review_count", "sales_volume",
	"sales_3m", "monthly_sales", "listing_date", "price_min", "price_max",
	"page_rank", "url",
}

// ExportCSV writes the curated records to <dir>/<keyword>_<date>.csv and
// returns the written path. Unknown optional fields stay empty cells.
func ExportCSV(records []*models.ProductRecord, dir, keyword string) (string, error) {
	if err := ensureDir(dir); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s.csv", sanitizeFilename(keyword), time.Now().Format("20060102"))
	path := filepath.Join(dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.ID,
			r.Keyword,
			string(r.SourceKind),
			r.SourceValue,
			r.Name,
			r.Brand,
			cell(r.Category),
			floatCell(r.Price),
			floatCell(r.Rating),
			intCell(r.ReviewCount),
			intCell(r.SalesVolume),
			intCell(r.Sales3M),
			intCell(r.MonthlySales),
			cell(r.ListingDate),
			floatCell(r.PriceMin),
			floatCell(r.PriceMax),
			strconv.Itoa(r.PageRank),
			r.URL,
		}
		if err := writer.Write(row); err != nil {
			return "", fmt.Errorf("failed to write record %s: %w", r.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush export file: %w", err)
	}
	return path, nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// sanitizeFilename keeps keyword exports on one predictable path shape.
func sanitizeFilename(keyword string) string {
	out := make([]rune, 0, len(keyword))
	for _, r := range keyword {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "export"
	}
	return string(out)
}

func cell(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func floatCell(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

func intCell(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
