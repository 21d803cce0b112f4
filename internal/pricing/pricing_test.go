package pricing

import (
	"testing"
)

func TestLookup_PrefixMatch(t *testing.T) {
	table := []Rule{
		{ModelPrefix: "gpt-4", InputPerK: 0.03, OutputPerK: 0.06},
		{ModelPrefix: "gpt-3.5", InputPerK: 0.0015, OutputPerK: 0.002},
	}

	if got := Lookup("gpt-4-turbo-preview", table); got.ModelPrefix != "gpt-4" {
		t.Errorf("expected gpt-4 rule, got %q", got.ModelPrefix)
	}
	if got := Lookup("gpt-3.5-turbo", table); got.ModelPrefix != "gpt-3.5" {
		t.Errorf("expected gpt-3.5 rule, got %q", got.ModelPrefix)
	}
	// Unmatched models use the table's first entry.
	if got := Lookup("claude-3", table); got.ModelPrefix != "gpt-4" {
		t.Errorf("expected first-rule fallback, got %q", got.ModelPrefix)
	}
}

func TestLookup_EmptyTableUsesDefault(t *testing.T) {
	got := Lookup("gpt-4", nil)
	if got.ModelPrefix != "gpt-4" || got.InputPerK == 0 {
		t.Errorf("empty table should fall back to built-ins, got %+v", got)
	}
}

func TestPrice_Breakdown(t *testing.T) {
	b := Price("gpt-4", 1000, 500, 0, 0, 0, nil)
	if b.InputCostUSD != 0.03 {
		t.Errorf("InputCostUSD = %v, want 0.03", b.InputCostUSD)
	}
	if b.OutputCostUSD != 0.03 {
		t.Errorf("OutputCostUSD = %v, want 0.03", b.OutputCostUSD)
	}
	if b.TotalCostUSD != 0.06 {
		t.Errorf("TotalCostUSD = %v, want 0.06", b.TotalCostUSD)
	}
}

func TestPrice_ReasoningBilledAsOutput(t *testing.T) {
	b := Price("o1-preview", 0, 0, 0, 0, 1000, nil)
	if b.ReasoningCostUSD != 0.06 {
		t.Errorf("ReasoningCostUSD = %v, want output rate 0.06", b.ReasoningCostUSD)
	}
}

func TestPrice_ImageFlatRates(t *testing.T) {
	b := Price("gpt-4", 0, 0, 2, 1, 0, nil)
	want := Round6(2*0.00255 + 1*0.04)
	if b.ImageCostUSD != want {
		t.Errorf("ImageCostUSD = %v, want %v", b.ImageCostUSD, want)
	}
	// Rules without image rates price images at zero.
	table := []Rule{{ModelPrefix: "x", InputPerK: 1, OutputPerK: 1}}
	if b := Price("x-model", 0, 0, 5, 5, 0, table); b.ImageCostUSD != 0 {
		t.Errorf("absent image rates should cost 0, got %v", b.ImageCostUSD)
	}
}

// Adding any positive count never decreases the total.
func TestPrice_Monotonic(t *testing.T) {
	base := Price("gpt-4", 100, 100, 1, 1, 10, nil)
	increments := []Breakdown{
		Price("gpt-4", 200, 100, 1, 1, 10, nil),
		Price("gpt-4", 100, 200, 1, 1, 10, nil),
		Price("gpt-4", 100, 100, 2, 1, 10, nil),
		Price("gpt-4", 100, 100, 1, 2, 10, nil),
		Price("gpt-4", 100, 100, 1, 1, 20, nil),
	}
	for i, b := range increments {
		if b.TotalCostUSD < base.TotalCostUSD {
			t.Errorf("increment %d decreased total: %v < %v", i, b.TotalCostUSD, base.TotalCostUSD)
		}
	}
}

func TestEstimateReasoningTokens(t *testing.T) {
	if got := EstimateReasoningTokens("o1-preview", 100, nil); got != 200 {
		t.Errorf("o1-preview estimate = %d, want 200 (multiplier 3)", got)
	}
	if got := EstimateReasoningTokens("gpt-4", 100, nil); got != 0 {
		t.Errorf("gpt-4 estimate = %d, want 0", got)
	}
}

func TestRound6_HalfAwayFromZero(t *testing.T) {
	if got := Round6(0.1234565); got != 0.123457 {
		t.Errorf("Round6(0.1234565) = %v, want 0.123457", got)
	}
	if got := Round6(-0.1234565); got != -0.123457 {
		t.Errorf("Round6(-0.1234565) = %v, want -0.123457", got)
	}
}

func TestRound6_Idempotent(t *testing.T) {
	for _, v := range []float64{0.1234565, 0.000001, 1.9999995, 0.03, 123.456789123} {
		once := Round6(v)
		twice := Round6(once)
		if once != twice {
			t.Errorf("Round6 not stable for %v: %v != %v", v, once, twice)
		}
	}
}

func TestContextLimit(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"gpt-4", 8192},
		{"gpt-4-32k", 32768},
		{"gpt-4-turbo", 128000},
		{"gpt-3.5-turbo", 4096},
		{"gpt-3.5-turbo-16k", 16384},
		{"o1-preview", 128000},
		{"unknown-model", DefaultContextLimit},
	}
	for _, tt := range tests {
		if got := ContextLimit(tt.model); got != tt.want {
			t.Errorf("ContextLimit(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestContextUsagePercent(t *testing.T) {
	if got := ContextUsagePercent("gpt-4", 4096); got != 50 {
		t.Errorf("ContextUsagePercent = %d, want 50", got)
	}
	if got := ContextUsagePercent("gpt-4", 0); got != 0 {
		t.Errorf("ContextUsagePercent(0 tokens) = %d, want 0", got)
	}
}

func TestDefaultTable_NeverEmpty(t *testing.T) {
	table := DefaultTable()
	if len(table) == 0 {
		t.Fatal("default table must not be empty")
	}
	for _, r := range table {
		if r.InputPerK < 0 || r.OutputPerK < 0 {
			t.Errorf("rule %q has negative rates", r.ModelPrefix)
		}
	}
}
