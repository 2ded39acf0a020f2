package imggen

import "testing"

func TestEstimateCredits_Table(t *testing.T) {
	tests := []struct {
		name    string
		quality string
		size    string
		n       int
		isEdit  bool
		want    int
	}{
		{"low square", "low", "1024x1024", 1, false, 4},
		{"low landscape", "low", "1536x1024", 1, false, 6},
		{"low portrait", "low", "1024x1536", 1, false, 6},
		{"low other", "low", "512x512", 1, false, 5},
		{"medium square", "medium", "1024x1024", 1, false, 16},
		{"medium landscape", "medium", "1536x1024", 1, false, 24},
		{"high square", "high", "1024x1024", 1, false, 62},
		{"high landscape", "high", "1536x1024", 1, false, 94},
		{"high other", "high", "2048x2048", 1, false, 78},
		{"auto square", "auto", "1024x1024", 1, false, 50},
		{"auto landscape", "auto", "1536x1024", 1, false, 75},
		{"unknown quality falls back to auto", "ultra", "1024x1024", 1, false, 50},
		{"multiple images", "medium", "1024x1024", 3, false, 48},
		{"zero n treated as one", "low", "1024x1024", 0, false, 4},

		{"edit low square", "low", "1024x1024", 1, true, 7},
		{"edit medium landscape", "medium", "1536x1024", 1, true, 27},
		{"edit high square", "high", "1024x1024", 1, true, 82},
		{"edit auto square", "auto", "1024x1024", 1, true, 53},
		{"edit auto landscape", "auto", "1536x1024", 1, true, 93},
		{"edit multiple", "low", "1024x1024", 2, true, 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateCredits(tt.quality, tt.size, tt.n, tt.isEdit)
			if got != tt.want {
				t.Errorf("EstimateCredits(%q, %q, %d, %v) = %d, want %d",
					tt.quality, tt.size, tt.n, tt.isEdit, got, tt.want)
			}
		})
	}
}

func TestTokenCostCredits(t *testing.T) {
	tests := []struct {
		name       string
		usage      Usage
		multiplier float64
		want       int
	}{
		// 1M output tokens = $40; x3 x100 = 12000 credits.
		{"output tokens only", Usage{OutputTokens: 1_000_000}, 3.0, 12000},
		// $5*0.1 + $10*0.2 + $40*0.05 = 0.5+2+2 = $4.5 -> 1350 credits.
		{"mixed tokens", Usage{TextTokens: 100_000, ImageTokens: 200_000, OutputTokens: 50_000}, 3.0, 1350},
		// Tiny usage still charges one credit.
		{"floor of one", Usage{TextTokens: 1}, 3.0, 1},
		{"zero usage floors to one", Usage{}, 3.0, 1},
		// Fractional results round up: 1000 output tokens = $0.04 -> 12.0 credits exactly,
		// 1001 tokens must round to 13.
		{"rounds up", Usage{OutputTokens: 1001}, 3.0, 13},
		{"different multiplier", Usage{OutputTokens: 1_000_000}, 2.0, 8000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenCostCredits(tt.usage, tt.multiplier)
			if got != tt.want {
				t.Errorf("TokenCostCredits(%+v, %v) = %d, want %d", tt.usage, tt.multiplier, got, tt.want)
			}
		})
	}
}

func TestCostCents(t *testing.T) {
	if got := CostCents(12, 3.0); got != 4 {
		t.Errorf("CostCents(12, 3.0) = %d, want 4", got)
	}
	if got := CostCents(13, 3.0); got != 4 {
		t.Errorf("CostCents(13, 3.0) = %d, want 4 (rounded)", got)
	}
	if got := CostCents(10, 0); got != 0 {
		t.Errorf("CostCents with zero multiplier = %d, want 0", got)
	}
}
