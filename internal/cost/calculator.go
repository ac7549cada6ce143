// Package cost converts provider token usage into ledger cents.
package cost

import "math"

// ModelRate holds per-model token pricing in USD per million tokens, plus
// an optional flat per-query charge for search-grounded models.
type ModelRate struct {
	Input       float64 `yaml:"input" mapstructure:"input"`
	Output      float64 `yaml:"output" mapstructure:"output"`
	PerQueryUSD float64 `yaml:"per_query_usd" mapstructure:"per_query_usd"`
}

// Rates maps model ids to pricing. Unknown models fall back to Default.
type Rates struct {
	Models  map[string]ModelRate `yaml:"models" mapstructure:"models"`
	Default ModelRate            `yaml:"default" mapstructure:"default"`
}

// Calculator computes ledger costs for model calls.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Cents returns the cost of one call in whole cents, rounded up so spend
// is never undercounted against a budget cap.
func (c *Calculator) Cents(model string, inputTokens, outputTokens int) int {
	rate, ok := c.rates.Models[model]
	if !ok {
		rate = c.rates.Default
	}

	usd := (float64(inputTokens)/1e6)*rate.Input +
		(float64(outputTokens)/1e6)*rate.Output +
		rate.PerQueryUSD

	cents := int(math.Ceil(usd * 100))
	if cents < 0 {
		cents = 0
	}
	return cents
}

// DefaultRates returns the default pricing table for the scan panel.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"openai/gpt-4o":               {Input: 2.50, Output: 10.00},
			"openai/gpt-4o-mini":          {Input: 0.15, Output: 0.60},
			"anthropic/claude-3-5-sonnet": {Input: 3.00, Output: 15.00},
			"anthropic/claude-3-5-haiku":  {Input: 0.80, Output: 4.00},
			"google/gemini-2.0-flash":     {Input: 0.10, Output: 0.40},
			"perplexity/sonar":            {Input: 1.00, Output: 1.00, PerQueryUSD: 0.005},
			"perplexity/sonar-pro":        {Input: 3.00, Output: 15.00, PerQueryUSD: 0.005},
			"meta-llama/llama-3.3-70b":    {Input: 0.12, Output: 0.30},
			"mistralai/mistral-large":     {Input: 2.00, Output: 6.00},
		},
		Default: ModelRate{Input: 3.00, Output: 15.00},
	}
}
