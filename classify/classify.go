// Package classify decides keyword relevance for products and categories
// using a generative model.
package classify

import (
	"context"
	"strings"

	"nichescout/models"
)

// Classifier answers relevance questions for one keyword. Implementations
// must be safe for concurrent use; callers treat errors as "keep" so a
// provider outage never discards records.
type Classifier interface {
	// ValidateProduct reports whether a single product is relevant to the
	// keyword.
	ValidateProduct(ctx context.Context, record *models.ProductRecord, keyword string) (bool, error)

	// FilterCategories maps each category name to a relevance verdict in a
	// single call. Categories absent from the result were not judged.
	FilterCategories(ctx context.Context, categories []string, keyword string) (map[string]bool, error)
}

// Throttled reports whether an error is provider pushback that should lower
// call concurrency, as opposed to a malformed response.
func Throttled(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"429", "503", "504", "RESOURCE_EXHAUSTED", "rate limit", "timeout", "deadline"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
