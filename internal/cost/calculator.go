package cost

import (
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Apollo    ApolloRate           `yaml:"apollo" mapstructure:"apollo"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ApolloRate holds Apollo credit pricing.
type ApolloRate struct {
	PerCredit float64 `yaml:"per_credit" mapstructure:"per_credit"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of a Claude API call. Unknown models cost 0.
func (c *Calculator) Claude(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	inCost := (float64(inputTokens) / 1e6) * rate.Input
	outCost := (float64(outputTokens) / 1e6) * rate.Output
	return inCost + outCost
}

// ApolloCredits computes the cost of consumed Apollo credits.
func (c *Calculator) ApolloCredits(credits int64) float64 {
	return float64(credits) * c.rates.Apollo.PerCredit
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-1-20250805":   {Input: 15.00, Output: 75.00},
		},
		Apollo: ApolloRate{PerCredit: 0.01},
	}
}

// LoadRates reads a YAML rates document and overlays it on the defaults, so
// a pricing file only needs to list the models it overrides.
func LoadRates(r io.Reader) (Rates, error) {
	rates := DefaultRates()

	raw, err := io.ReadAll(r)
	if err != nil {
		return rates, eris.Wrap(err, "cost: read rates")
	}

	var overlay Rates
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return rates, eris.Wrap(err, "cost: parse rates")
	}

	for model, rate := range overlay.Anthropic {
		rates.Anthropic[model] = rate
	}
	if overlay.Apollo.PerCredit > 0 {
		rates.Apollo = overlay.Apollo
	}
	return rates, nil
}
