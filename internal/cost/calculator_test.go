package cost

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaude_KnownModel(t *testing.T) {
	c := NewCalculator(DefaultRates())

	// 1M input + 1M output at $3/$15.
	got := c.Claude("claude-sonnet-4-5-20250929", 1_000_000, 1_000_000)
	assert.InDelta(t, 18.0, got, 1e-9)
}

func TestClaude_UnknownModel(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.Equal(t, 0.0, c.Claude("not-a-model", 1000, 1000))
}

func TestClaude_ZeroTokens(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.Equal(t, 0.0, c.Claude("claude-sonnet-4-5-20250929", 0, 0))
}

func TestApolloCredits(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.InDelta(t, 0.25, c.ApolloCredits(25), 1e-9)
}

func TestLoadRates_Overlay(t *testing.T) {
	doc := `
anthropic:
  claude-sonnet-4-5-20250929:
    input: 2.50
    output: 12.00
apollo:
  per_credit: 0.02
`
	rates, err := LoadRates(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, 2.50, rates.Anthropic["claude-sonnet-4-5-20250929"].Input)
	assert.Equal(t, 12.00, rates.Anthropic["claude-sonnet-4-5-20250929"].Output)
	// Untouched models keep defaults.
	assert.Equal(t, 0.80, rates.Anthropic["claude-haiku-4-5-20251001"].Input)
	assert.Equal(t, 0.02, rates.Apollo.PerCredit)
}

func TestLoadRates_Invalid(t *testing.T) {
	_, err := LoadRates(strings.NewReader("not: [valid"))
	assert.Error(t, err)
}
