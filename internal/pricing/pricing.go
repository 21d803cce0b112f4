// Package pricing maps model identifiers and usage counts to USD costs via a
// prefix-matched pricing table.
package pricing

import (
	"math"
	"strings"
)

// Rule prices one model family. The first table entry whose ModelPrefix is a
// prefix of the model identifier wins.
type Rule struct {
	ModelPrefix         string  `json:"modelPrefix" yaml:"model_prefix"`
	InputPerK           float64 `json:"inputPerK" yaml:"input_per_k"`
	OutputPerK          float64 `json:"outputPerK" yaml:"output_per_k"`
	Encoding            string  `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	ImageInputCost      float64 `json:"imageInputCost,omitempty" yaml:"image_input_cost,omitempty"`
	ImageOutputCost     float64 `json:"imageOutputCost,omitempty" yaml:"image_output_cost,omitempty"`
	ImageOutputHDCost   float64 `json:"imageOutputHDCost,omitempty" yaml:"image_output_hd_cost,omitempty"`
	ReasoningMultiplier float64 `json:"reasoningMultiplier,omitempty" yaml:"reasoning_multiplier,omitempty"`
}

// Breakdown is the cost of one exchange split by component, each rounded to
// six decimal places.
type Breakdown struct {
	InputCostUSD     float64 `json:"inputCostUSD"`
	OutputCostUSD    float64 `json:"outputCostUSD"`
	ImageCostUSD     float64 `json:"imageCostUSD"`
	ReasoningCostUSD float64 `json:"reasoningCostUSD"`
	TotalCostUSD     float64 `json:"totalCostUSD"`
}

// DefaultTable returns the built-in pricing rules. The table is never empty;
// callers with no configured table use this one, and unmatched models fall
// back to its first entry.
func DefaultTable() []Rule {
	return []Rule{
		{
			ModelPrefix: "gpt-4", InputPerK: 0.03, OutputPerK: 0.06,
			Encoding:       "cl100k_base",
			ImageInputCost: 0.00255, ImageOutputCost: 0.04, ImageOutputHDCost: 0.08,
		},
		{
			ModelPrefix: "gpt-3.5", InputPerK: 0.0015, OutputPerK: 0.002,
			Encoding:       "cl100k_base",
			ImageInputCost: 0.0001275, ImageOutputCost: 0.04,
		},
		{
			ModelPrefix: "o1-preview", InputPerK: 0.015, OutputPerK: 0.06,
			Encoding: "o200k_base", ReasoningMultiplier: 3,
			ImageInputCost: 0.001275,
		},
		{
			ModelPrefix: "o1-mini", InputPerK: 0.003, OutputPerK: 0.012,
			Encoding: "o200k_base", ReasoningMultiplier: 3,
			ImageInputCost: 0.000255,
		},
		{
			ModelPrefix: "o1-pro", InputPerK: 0.15, OutputPerK: 0.6,
			Encoding: "o200k_base", ReasoningMultiplier: 10,
			ImageInputCost: 0.01275,
		},
	}
}

// Lookup selects the pricing rule for a model. Prefix matching is
// case-sensitive; unmatched models use the table's first entry. An empty
// table is replaced by the default table so a rule always exists.
func Lookup(model string, table []Rule) Rule {
	if len(table) == 0 {
		table = DefaultTable()
	}
	for _, rule := range table {
		if strings.HasPrefix(model, rule.ModelPrefix) {
			return rule
		}
	}
	return table[0]
}

// Price computes the cost breakdown for one exchange. Reasoning tokens are
// billed at the output rate; image counts use the rule's flat per-unit rates,
// defaulting to zero when the rule has none.
func Price(model string, promptTokens, completionTokens, imageInputs, imageOutputs, reasoningTokens int, table []Rule) Breakdown {
	rule := Lookup(model, table)

	inputCost := float64(promptTokens) / 1000 * rule.InputPerK
	outputCost := float64(completionTokens) / 1000 * rule.OutputPerK
	imageCost := float64(imageInputs)*rule.ImageInputCost + float64(imageOutputs)*rule.ImageOutputCost
	reasoningCost := float64(reasoningTokens) / 1000 * rule.OutputPerK

	b := Breakdown{
		InputCostUSD:     Round6(inputCost),
		OutputCostUSD:    Round6(outputCost),
		ImageCostUSD:     Round6(imageCost),
		ReasoningCostUSD: Round6(reasoningCost),
	}
	b.TotalCostUSD = Round6(b.InputCostUSD + b.OutputCostUSD + b.ImageCostUSD + b.ReasoningCostUSD)
	return b
}

// EstimateReasoningTokens estimates hidden reasoning tokens for reasoning
// model families as completionTokens * (multiplier - 1). Models without a
// multiplier estimate zero.
func EstimateReasoningTokens(model string, completionTokens int, table []Rule) int {
	rule := Lookup(model, table)
	if rule.ReasoningMultiplier <= 1 {
		return 0
	}
	return int(float64(completionTokens) * (rule.ReasoningMultiplier - 1))
}

// Round6 rounds to six decimal places, half away from zero.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// contextLimits maps model family substrings to context window sizes in
// tokens. Ordered most-specific first so "gpt-4-32k" does not fall into the
// plain "gpt-4" bucket.
var contextLimits = []struct {
	family string
	limit  int
}{
	{"gpt-4-32k", 32768},
	{"gpt-4-turbo", 128000},
	{"gpt-4o", 128000},
	{"gpt-4", 8192},
	{"gpt-3.5-turbo-16k", 16384},
	{"gpt-3.5-turbo", 4096},
	{"o1-preview", 128000},
	{"o1-mini", 128000},
}

// DefaultContextLimit is used for models with no known window size.
const DefaultContextLimit = 8192

// ContextLimit returns the context window size for a model.
func ContextLimit(model string) int {
	m := strings.ToLower(model)
	for _, entry := range contextLimits {
		if strings.Contains(m, entry.family) {
			return entry.limit
		}
	}
	return DefaultContextLimit
}

// ContextUsagePercent returns totalTokens as a rounded percentage of the
// model's context window.
func ContextUsagePercent(model string, totalTokens int) int {
	limit := ContextLimit(model)
	if limit <= 0 {
		return 0
	}
	return int(math.Round(float64(totalTokens) / float64(limit) * 100))
}
