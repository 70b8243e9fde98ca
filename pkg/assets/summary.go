package assets

import (
	"slices"
	"strings"

	"cardforge/pkg/schema"
)

// Thresholds drive confidence warnings and banding in summaries.
type Thresholds struct {
	Warn float64 `json:"warn"`
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

var DefaultThresholds = Thresholds{Warn: 70, High: 80, Low: 60}

type Summary struct {
	Total          int                     `json:"total"`
	Renamed        int                     `json:"renamed"`
	Categories     map[schema.Category]int `json:"categories"`
	HighConfidence int                     `json:"highConfidence"`
	LowConfidence  int                     `json:"lowConfidence"`
	Warnings       []string                `json:"warnings"`
	Duplicates     []string                `json:"duplicates"`
}

// Summarize aggregates rename results.
func Summarize(results []schema.AssetRenameResult, t Thresholds) Summary {
	s := Summary{
		Total:      len(results),
		Categories: make(map[schema.Category]int, len(schema.Categories)),
		Warnings:   []string{},
		Duplicates: []string{},
	}
	for _, c := range schema.Categories {
		s.Categories[c] = 0
	}

	tokens := make(map[string]int, len(results))
	for _, r := range results {
		s.Categories[r.Category]++
		if r.SuggestedFileName != r.OriginalFileName {
			s.Renamed++
		}
		switch {
		case r.Confidence >= t.High:
			s.HighConfidence++
		case r.Confidence < t.Low:
			s.LowConfidence++
		}
		if r.Confidence < t.Warn {
			s.Warnings = append(s.Warnings, r.OriginalFileName)
		}
		tokens[strings.ToLower(Token(r.SuggestedFileName))]++
	}
	for tok, n := range tokens {
		if n > 1 {
			s.Duplicates = append(s.Duplicates, tok)
		}
	}
	slices.Sort(s.Duplicates)
	return s
}
