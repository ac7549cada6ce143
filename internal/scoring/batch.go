package scoring

import (
	"math"

	"github.com/sells-group/visibility-engine/internal/model"
)

// VisibilityScore is the percentage of scans in the batch where the brand
// was mentioned, rounded to the nearest integer. An empty batch scores 0.
func VisibilityScore(results []model.ScanResult) int {
	if len(results) == 0 {
		return 0
	}
	mentioned := 0
	for _, r := range results {
		if r.BrandMentioned {
			mentioned++
		}
	}
	return pct(mentioned, len(results))
}

// CitationRate is the percentage of scans where the brand appeared in the
// model's citations. Scans from models without citation support count
// toward the denominator; the math tolerates missing models.
func CitationRate(results []model.ScanResult) int {
	if len(results) == 0 {
		return 0
	}
	cited := 0
	for _, r := range results {
		if r.BrandInCitations != nil && *r.BrandInCitations {
			cited++
		}
	}
	return pct(cited, len(results))
}

func pct(n, total int) int {
	return int(math.Round(100 * float64(n) / float64(total)))
}
