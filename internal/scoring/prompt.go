// Package scoring turns raw mention and citation signals into comparable
// numeric scores.
package scoring

import (
	"regexp"
	"strings"

	"github.com/sells-group/visibility-engine/internal/model"
)

// Band ceilings for the three prompt-score components.
const (
	maxCitationRichness   = 30
	maxBuyerIntent        = 40
	maxCompetitiveDensity = 30
)

var (
	highIntentRe = regexp.MustCompile(`\b(best|top|vs|versus|compare|comparison|alternative|alternatives|pricing|price|cost|cheapest|review|reviews|buy)\b`)
	midIntentRe  = regexp.MustCompile(`\b(how to|how do|integrate|integration|setup|set up|install|tutorial|guide|implement|migrate)\b`)
)

// PromptInput carries the per-query aggregates that feed the prompt score.
type PromptInput struct {
	QueryText      string
	FunnelStage    model.FunnelStage
	AvgCitations   float64 // average citation count per scan of this query
	AvgCompetitors float64 // average competitors mentioned per scan
}

// PromptBreakdown itemizes the composite prompt score.
type PromptBreakdown struct {
	CitationRichness   int `json:"citation_richness"`
	BuyerIntent        int `json:"buyer_intent"`
	CompetitiveDensity int `json:"competitive_density"`
	Total              int `json:"total"`
}

// PromptScore ranks a query's commercial value on a 0-100 scale from three
// independently bounded components.
func PromptScore(in PromptInput) PromptBreakdown {
	b := PromptBreakdown{
		CitationRichness:   clamp(citationRichness(in.AvgCitations), maxCitationRichness),
		BuyerIntent:        clamp(buyerIntent(in.QueryText, in.FunnelStage), maxBuyerIntent),
		CompetitiveDensity: clamp(competitiveDensity(in.AvgCompetitors), maxCompetitiveDensity),
	}
	b.Total = clamp(b.CitationRichness+b.BuyerIntent+b.CompetitiveDensity, 100)
	return b
}

// citationRichness is a step function of average citations per scan.
func citationRichness(avg float64) int {
	switch {
	case avg >= 8:
		return 30
	case avg >= 5:
		return 25
	case avg >= 3:
		return 20
	case avg >= 1:
		return 12
	default:
		return 0
	}
}

// buyerIntent classifies the query text by purchase-intent vocabulary.
// A funnel stage of "bottom" floors the score at 30 even without a keyword
// match; "mid" yields the mid-intent score when no keyword matched.
func buyerIntent(queryText string, stage model.FunnelStage) int {
	text := strings.ToLower(queryText)

	score := 8
	switch {
	case highIntentRe.MatchString(text):
		score = 36
	case midIntentRe.MatchString(text):
		score = 22
	case stage == model.FunnelMid:
		score = 22
	}

	if stage == model.FunnelBottom && score < 30 {
		score = 30
	}
	return score
}

// competitiveDensity is a step function of average competitors mentioned.
func competitiveDensity(avg float64) int {
	switch {
	case avg >= 4:
		return 30
	case avg >= 2:
		return 22
	case avg >= 1:
		return 14
	default:
		return 3
	}
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
