package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"nichescout/config"
	"nichescout/models"
)

// Gemini implements Classifier on the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	Metrics *Metrics
}

const (
	generateAttempts = 3
	generateBackoff  = 500 * time.Millisecond
)

// NewGemini builds a classifier from credentials.
func NewGemini(ctx context.Context, creds config.Credentials) (*Gemini, error) {
	if creds.GeminiAPIKey == "" {
		return nil, fmt.Errorf("classify: GEMINI_API_KEY is not set")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  creds.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if creds.GeminiBaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = creds.GeminiBaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("classify: create client: %w", err)
	}
	return &Gemini{client: client, model: creds.GeminiModel, Metrics: NewMetrics()}, nil
}

// ValidateProduct asks the model whether one product matches the keyword.
func (g *Gemini) ValidateProduct(ctx context.Context, record *models.ProductRecord, keyword string) (bool, error) {
	prompt := buildProductPrompt(record, keyword)
	text, err := g.generate(ctx, prompt)
	if err != nil {
		g.Metrics.IncCall("error")
		return false, err
	}
	verdict, err := parseProductVerdict(text)
	if err != nil {
		g.Metrics.IncCall("error")
		return false, fmt.Errorf("classify: product %s: %w", record.ID, err)
	}
	if verdict {
		g.Metrics.IncCall("relevant")
	} else {
		g.Metrics.IncCall("irrelevant")
	}
	return verdict, nil
}

// FilterCategories judges a batch of category names in one call.
func (g *Gemini) FilterCategories(ctx context.Context, categories []string, keyword string) (map[string]bool, error) {
	if len(categories) == 0 {
		return map[string]bool{}, nil
	}
	prompt := buildCategoryPrompt(categories, keyword)
	text, err := g.generate(ctx, prompt)
	if err != nil {
		g.Metrics.IncCall("error")
		return nil, err
	}
	verdicts, err := parseCategoryVerdicts(text)
	if err != nil {
		g.Metrics.IncCall("error")
		return nil, fmt.Errorf("classify: categories: %w", err)
	}
	g.Metrics.IncCall("ok")
	return verdicts, nil
}

// generate issues one prompt, retrying throttled failures with a short
// backoff. Hard failures surface immediately.
func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < generateAttempts; attempt++ {
		if attempt > 0 {
			g.Metrics.IncRetry()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(generateBackoff * time.Duration(attempt)):
			}
		}

		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err == nil {
			return resp.Text(), nil
		}
		lastErr = err
		if !Throttled(err) {
			break
		}
	}
	return "", fmt.Errorf("classify: generate: %w", lastErr)
}

func buildProductPrompt(r *models.ProductRecord, keyword string) string {
	category := r.CategoryName()
	if category == "" {
		category = "unknown"
	}
	brand := r.Brand
	if brand == "" {
		brand = "unknown"
	}
	price := "unknown"
	if r.Price != nil {
		price = fmt.Sprintf("$%.2f", *r.Price)
	}

	var b strings.Builder
	b.WriteString("You are a product categorisation expert. Decide whether the product below is relevant to the search keyword \"")
	b.WriteString(keyword)
	b.WriteString("\".\n\nProduct:\n")
	fmt.Fprintf(&b, "- Identifier: %s\n", r.ID)
	fmt.Fprintf(&b, "- Title: %s\n", r.Name)
	fmt.Fprintf(&b, "- Brand: %s\n", brand)
	fmt.Fprintf(&b, "- Category: %s\n", category)
	fmt.Fprintf(&b, "- Price: %s\n", price)
	b.WriteString("\nCriteria:\n")
	fmt.Fprintf(&b, "- Judge only whether the product itself relates to \"%s\".\n", keyword)
	b.WriteString("- Return true whenever the title, function or use of the product relates to the keyword.\n")
	b.WriteString("\nAnswer with JSON only, no other text:\n")
	b.WriteString(`{"is_relevant": true/false, "reason": "short reason"}`)
	return b.String()
}

func buildCategoryPrompt(categories []string, keyword string) string {
	var b strings.Builder
	b.WriteString("You are an e-commerce categorisation expert. Decide for each product category below whether it is relevant to the search keyword \"")
	b.WriteString(keyword)
	b.WriteString("\".\n\nCategories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nCriteria:\n")
	fmt.Fprintf(&b, "- A category is relevant when its products could be bought by someone searching for \"%s\".\n", keyword)
	b.WriteString("- Example: the keyword \"camping\" matches \"Camping Tents\" but not \"Office Chairs\".\n")
	b.WriteString("\nAnswer with a JSON array only, no other text:\n")
	b.WriteString(`[{"category": "name", "is_relevant": true/false, "reason": "short reason"}]`)
	return b.String()
}
