package agent

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/planify/internal/plan"
)

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

// pricing per 1M tokens, January 2025 list prices.
var pricing = map[string]Price{
	"claude-opus-4-20250514":     {15.00, 75.00},
	"claude-sonnet-4-20250514":   {3.00, 15.00},
	"claude-3-5-sonnet-20241022": {3.00, 15.00},
	"claude-3-5-haiku-20241022":  {0.80, 4.00},
	"claude-3-opus-20240229":     {15.00, 75.00},
	"claude-3-haiku-20240307":    {0.25, 1.25},

	"gpt-4o":        {2.50, 10.00},
	"gpt-4o-mini":   {0.15, 0.60},
	"gpt-4-turbo":   {10.00, 30.00},
	"gpt-4":         {30.00, 60.00},
	"gpt-3.5-turbo": {0.50, 1.50},

	"gemini-1.5-pro":      {1.25, 5.00},
	"gemini-1.5-flash":    {0.075, 0.30},
	"gemini-1.5-flash-8b": {0.0375, 0.15},
	"gemini-2.0-flash":    {0.10, 0.40},
	"gemini-pro":          {0.50, 1.50},
}

// pricedModels is sorted longest first so prefix lookup picks the most specific entry.
var pricedModels = func() []string {
	names := make([]string, 0, len(pricing))
	for name := range pricing {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}()

// PriceFor returns the price of a model. Versioned names such as
// "gpt-4o-2024-08-06" match their base entry. Unknown models are free,
// which is right for local compat servers.
func PriceFor(model string) (Price, bool) {
	if p, ok := pricing[model]; ok {
		return p, true
	}
	for _, name := range pricedModels {
		if strings.HasPrefix(model, name) {
			return pricing[name], true
		}
	}
	return Price{}, false
}

// UsageFor computes token usage and cost for a completion.
func UsageFor(c *Completion) plan.Usage {
	p, _ := PriceFor(c.Model)
	return plan.Usage{
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		CostUSD:      float64(c.InputTokens)/1e6*p.Input + float64(c.OutputTokens)/1e6*p.Output,
	}
}
