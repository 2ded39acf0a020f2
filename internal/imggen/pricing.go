package imggen

import "math"

// Upstream per-million-token prices in USD for gpt-image-1.
const (
	textTokenUSDPerM   = 5.0
	imageTokenUSDPerM  = 10.0
	outputTokenUSDPerM = 40.0
)

// sizeClass buckets a size string for the estimate table.
type sizeClass int

const (
	sizeSquare sizeClass = iota // 1024x1024
	sizeRect                    // 1536x1024 or 1024x1536
	sizeOther
)

func classifySize(size string) sizeClass {
	switch size {
	case "1024x1024":
		return sizeSquare
	case "1536x1024", "1024x1536":
		return sizeRect
	default:
		return sizeOther
	}
}

// estimateTable is per-image credits by quality and size class.
// Values already include the gross margin; estimates are deterministic
// and independent of the prompt.
var estimateTable = map[string][3]int{
	"low":    {4, 6, 5},
	"medium": {16, 24, 20},
	"high":   {62, 94, 78},
	"auto":   {50, 75, 75},
}

// EstimateCredits returns the up-front credit estimate for n images.
func EstimateCredits(quality, size string, n int, isEdit bool) int {
	if n <= 0 {
		n = 1
	}
	row, ok := estimateTable[quality]
	if !ok {
		row = estimateTable["auto"]
	}
	class := classifySize(size)
	perImage := row[class]

	if isEdit {
		switch quality {
		case "high":
			perImage += 20
		case "auto":
			if class == sizeSquare {
				perImage += 3
			} else {
				perImage += 18
			}
		default:
			perImage += 3
		}
	}

	return perImage * n
}

// TokenCostCredits reconciles token telemetry into credits.
// USD cost is converted with the configured multiplier and rounded up,
// with a floor of one credit.
func TokenCostCredits(usage Usage, multiplier float64) int {
	usd := float64(usage.TextTokens)/1_000_000*textTokenUSDPerM +
		float64(usage.ImageTokens)/1_000_000*imageTokenUSDPerM +
		float64(usage.OutputTokens)/1_000_000*outputTokenUSDPerM

	credits := int(math.Ceil(usd * multiplier * 100))
	if credits < 1 {
		credits = 1
	}
	return credits
}

// CostCents converts charged credits back to the provider's USD cost in
// cents, dividing out the margin multiplier.
func CostCents(credits int, multiplier float64) int {
	if multiplier <= 0 {
		return 0
	}
	return int(math.Round(float64(credits) / multiplier))
}

// CreditsToUSD renders credits as a dollar amount (100 credits = $1).
func CreditsToUSD(credits int) float64 {
	return float64(credits) / 100
}
