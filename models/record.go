// Package models defines the data structures shared across the pipeline.
package models

import "time"

// SourceKind tells which search surface produced a record.
type SourceKind string

const (
	SourceKeywordSearch  SourceKind = "keyword_search"
	SourceCategorySearch SourceKind = "category_search"
)

// Filter stage labels recorded on soft-removed rows.
const (
	FilterSponsored = "sponsored"
	FilterCategory  = "category_filtered"
	FilterSales     = "sales_filtered"
	FilterPrice     = "price_filtered"
	FilterAI        = "ai_filtered"
)

// ProductRecord is one marketplace listing observed for a keyword.
// Fields the marketplace may omit are pointers; nil means unknown, never zero.
type ProductRecord struct {
	ID          string     `json:"id"`
	Keyword     string     `json:"keyword"`
	SourceKind  SourceKind `json:"source_kind"`
	SourceValue string     `json:"source_value"`
	Name        string     `json:"name"`
	Brand       string     `json:"brand,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	ReviewCount *int       `json:"review_count,omitempty"`
	SalesVolume *int       `json:"sales_volume,omitempty"`
	PageRank    int        `json:"page_rank"`
	Sponsored   bool       `json:"sponsored"`
	URL         string     `json:"url,omitempty"`

	// Enrichment fields, back-filled from provider history. Never override
	// first-party values.
	Sales3M      *int     `json:"sales_3m,omitempty"`
	MonthlySales *int     `json:"monthly_sales,omitempty"`
	ListingDate  *string  `json:"listing_date,omitempty"`
	PriceMin     *float64 `json:"price_min,omitempty"`
	PriceMax     *float64 `json:"price_max,omitempty"`
	PriceMinDate *string  `json:"price_min_date,omitempty"`
	PriceMaxDate *string  `json:"price_max_date,omitempty"`

	// FilterStatus is empty for kept rows and carries the removing stage's
	// label otherwise. Filtered rows stay in the store for audit.
	FilterStatus string `json:"filter_status,omitempty"`
}

// CategoryName returns the category or "" when unknown.
func (r *ProductRecord) CategoryName() string {
	if r.Category == nil {
		return ""
	}
	return *r.Category
}

// RawListing is the wire shape handed back by the search provider before
// normalisation. Numeric fields arrive as marketplace free text.
type RawListing struct {
	ID           string
	Name         string
	Brand        string
	PriceText    string
	Rating       *float64
	ReviewCount  *int
	SalesMessage string
	URL          string
}

// CategoryStat aggregates ProductRecords sharing (keyword, category).
type CategoryStat struct {
	Keyword      string
	Category     string
	RecordCount  int
	AvgPrice     *float64
	AvgRating    *float64
	TotalReviews *int
}

// HistoryPayload is the marketplace-analytics enrichment payload for one
// identifier. CategoryPath is the provider's taxonomy path for the product
// ("Sports & Outdoors > Camping & Hiking > Tents"), empty when unknown.
type HistoryPayload struct {
	ID           string
	Sales3M      *int
	MonthlySales *int
	ListingDate  *string
	Rating       *float64
	ReviewCount  *int
	CategoryPath string
	RawTrends    string
}

// PricePayload is the price-history enrichment payload for one identifier.
type PricePayload struct {
	ID           string
	CurrentPrice *float64
	PriceMin     *float64
	PriceMax     *float64
	PriceMinDate *string
	PriceMaxDate *string
	ListingDate  *string
	Raw          string
}

// RunSummary reports one completed pipeline run.
type RunSummary struct {
	Keyword          string         `json:"keyword"`
	PagesScraped     int            `json:"pages_scraped"`
	RecordsAcquired  int            `json:"records_acquired"`
	RecordsExpanded  int            `json:"records_expanded"`
	Categories       int            `json:"categories"`
	TopCategories    []string       `json:"top_categories"`
	DominantCategory string         `json:"dominant_category,omitempty"`
	RemovedByStage   map[string]int `json:"removed_by_stage"`
	RecordsKept      int            `json:"records_kept"`
	RecordsEnriched  int            `json:"records_enriched"`
	FailureCounts    map[string]int `json:"failure_counts,omitempty"`
	ExportPath       string         `json:"export_path,omitempty"`
	Duration         time.Duration  `json:"duration_ns"`
	FromCache        bool           `json:"from_cache"`
}
