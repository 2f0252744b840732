// Package parser normalises marketplace free text into typed record fields.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"nichescout/models"
)

var (
	priceRe = regexp.MustCompile(`[\d.]+`)
	salesRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([KkMm])?\s*\+`)
)

// ValidateListing ensures the search provider captured the required fields.
// A listing without an identifier can never be persisted.
func ValidateListing(l *models.RawListing) error {
	if l == nil {
		return fmt.Errorf("listing is nil")
	}
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("listing missing identifier")
	}
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("listing %s missing name", l.ID)
	}
	return nil
}

// ParsePrice extracts a decimal price from marketplace text such as
// "$1,299.00". Returns nil when no number is present.
func ParsePrice(text string) *float64 {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	match := priceRe.FindString(text)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseSalesVolume reads the "bought" indicator ("2K+ bought in past month",
// "1.5M+ bought") into a unit count. Returns nil when the text carries no
// volume signal.
func ParseSalesVolume(message string) *int {
	m := salesRe.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		n *= 1_000
	case "M":
		n *= 1_000_000
	}
	v := int(n)
	return &v
}

// Ad-redirect markers observed in sponsored result URLs.
var sponsoredMarkers = []string{"/sspa/", "sp_csd=", "spons"}

// SponsoredURL reports whether a listing URL carries paid-placement markers.
func SponsoredURL(url string) bool {
	for _, marker := range sponsoredMarkers {
		if strings.Contains(url, marker) {
			return true
		}
	}
	return false
}

// ToRecord converts a raw listing into a ProductRecord attributed to its
// source. Unknown numeric fields stay nil rather than zero.
func ToRecord(l *models.RawListing, keyword string, kind models.SourceKind, sourceValue string, pageRank int) *models.ProductRecord {
	return &models.ProductRecord{
		ID:          strings.TrimSpace(l.ID),
		Keyword:     keyword,
		SourceKind:  kind,
		SourceValue: sourceValue,
		Name:        strings.TrimSpace(l.Name),
		Brand:       strings.TrimSpace(l.Brand),
		Price:       ParsePrice(l.PriceText),
		Rating:      l.Rating,
		ReviewCount: l.ReviewCount,
		SalesVolume: ParseSalesVolume(l.SalesMessage),
		PageRank:    pageRank,
		Sponsored:   SponsoredURL(l.URL),
		URL:         l.URL,
	}
}
