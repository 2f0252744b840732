package classify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// stripFences unwraps a fenced code block when the model ignores the
// JSON-only instruction.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// truthy accepts the boolean spellings models actually produce.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

func parseProductVerdict(text string) (bool, error) {
	var payload struct {
		IsRelevant any    `json:"is_relevant"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		return false, fmt.Errorf("parse verdict: %w", err)
	}
	if payload.IsRelevant == nil {
		return false, fmt.Errorf("parse verdict: missing is_relevant")
	}
	return truthy(payload.IsRelevant), nil
}

func parseCategoryVerdicts(text string) (map[string]bool, error) {
	var payload []struct {
		Category   string `json:"category"`
		IsRelevant any    `json:"is_relevant"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		return nil, fmt.Errorf("parse category verdicts: %w", err)
	}

	out := make(map[string]bool, len(payload))
	for _, item := range payload {
		if item.Category == "" {
			continue
		}
		out[item.Category] = truthy(item.IsRelevant)
	}
	return out, nil
}
