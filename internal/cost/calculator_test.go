package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCents_TokenPricing(t *testing.T) {
	c := NewCalculator(Rates{
		Models: map[string]ModelRate{
			"test/model": {Input: 2.00, Output: 10.00},
		},
	})

	// 1M input = $2.00, 100k output = $1.00 -> 300 cents.
	assert.Equal(t, 300, c.Cents("test/model", 1_000_000, 100_000))
}

func TestCents_RoundsUp(t *testing.T) {
	c := NewCalculator(Rates{
		Models: map[string]ModelRate{
			"test/model": {Input: 1.00, Output: 1.00},
		},
	})

	// 100 input tokens = $0.0001 -> rounds up to 1 cent.
	assert.Equal(t, 1, c.Cents("test/model", 100, 0))
}

func TestCents_PerQueryFlatCharge(t *testing.T) {
	c := NewCalculator(Rates{
		Models: map[string]ModelRate{
			"perplexity/sonar": {Input: 1.00, Output: 1.00, PerQueryUSD: 0.005},
		},
	})

	// Flat charge alone rounds up to 1 cent even with zero tokens.
	assert.Equal(t, 1, c.Cents("perplexity/sonar", 0, 0))
}

func TestCents_UnknownModelUsesDefault(t *testing.T) {
	c := NewCalculator(Rates{
		Default: ModelRate{Input: 3.00, Output: 15.00},
	})

	assert.Equal(t, 180, c.Cents("something/unpriced", 100_000, 100_000))
}

func TestDefaultRates_CoverScanPanel(t *testing.T) {
	rates := DefaultRates()
	for _, m := range []string{"openai/gpt-4o", "perplexity/sonar-pro", "anthropic/claude-3-5-sonnet"} {
		_, ok := rates.Models[m]
		assert.True(t, ok, "missing rate for %s", m)
	}
}
