package ai

import (
	"sort"
	"strings"
)

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

var prices = map[string]Price{
	"claude-opus-4-5":   {Input: 5, Output: 25},
	"claude-sonnet-4-5": {Input: 3, Output: 15},
	"gpt-4o":            {Input: 2.5, Output: 10},
	"gemini-3-flash":    {Input: 0.1, Output: 0.4},
	"gemini-2-flash":    {Input: 0.075, Output: 0.3},
}

// priceKeys sorted longest first so "gpt-4o-mini" style ids never match a shorter key by accident.
var priceKeys = func() []string {
	keys := make([]string, 0, len(prices))
	for k := range prices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}()

// CanonicalModel maps a provider model id (dated, "-preview", "gemini-2.0-flash")
// to its price-table key. Unknown ids come back lowercased.
func CanonicalModel(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	m = strings.Replace(m, "gemini-2.0-", "gemini-2-", 1)
	for _, k := range priceKeys {
		if m == k || strings.HasPrefix(m, k+"-") {
			// gpt-4o-mini is a different model
			if k == "gpt-4o" && strings.HasPrefix(m, "gpt-4o-mini") {
				continue
			}
			return k
		}
	}
	return m
}

// Cost returns the USD cost of a call. Unknown models cost 0.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := prices[CanonicalModel(model)]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.Input + float64(outputTokens)/1e6*p.Output
}
