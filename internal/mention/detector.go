// Package mention finds brand and competitor name occurrences in model
// response text.
package mention

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/sells-group/visibility-engine/internal/model"
)

const contextRadius = 100

var listNumeral = regexp.MustCompile(`^\s*(\d+)[.)]\s`)

// Result is the outcome of scanning one response text.
type Result struct {
	Mentioned            bool
	Position             *int
	Context              string
	CompetitorsMentioned []string
}

// Detector matches a brand and its active competitors against response
// text. Matching is case-insensitive. Brand matching is plain substring
// against the original text, which keeps match offsets valid for the
// context snippet; competitor matching requires word boundaries so short
// names like "AI" don't match inside unrelated words.
type Detector struct {
	folder      cases.Caser
	brand       *regexp.Regexp
	competitors []competitorMatcher
}

type competitorMatcher struct {
	name string
	re   *regexp.Regexp
}

// NewDetector builds a detector for the given brand and competitors.
// Inactive competitors are skipped.
func NewDetector(brandName string, competitors []model.Competitor) *Detector {
	folder := cases.Fold()
	d := &Detector{folder: folder}
	if strings.TrimSpace(brandName) != "" {
		d.brand = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(brandName))
	}
	for _, c := range competitors {
		if !c.IsActive || strings.TrimSpace(c.Name) == "" {
			continue
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(folder.String(c.Name)) + `\b`)
		d.competitors = append(d.competitors, competitorMatcher{name: c.Name, re: re})
	}
	return d
}

// Detect scans text for the brand and competitors.
func (d *Detector) Detect(text string) Result {
	res := Result{}
	if d.brand != nil {
		if loc := d.brand.FindStringIndex(text); loc != nil {
			res.Mentioned = true
			res.Position = d.position(text)
			res.Context = snippet(text, loc[0], loc[1]-loc[0])
		}
	}

	folded := d.folder.String(text)
	for _, cm := range d.competitors {
		if cm.re.MatchString(folded) {
			res.CompetitorsMentioned = append(res.CompetitorsMentioned, cm.name)
		}
	}
	return res
}

// position approximates which recommendation slot the brand occupies in a
// list-style answer: the leading "N." / "N)" numeral of the first matching
// line, or the 1-based line index when the line carries no numeral.
func (d *Detector) position(text string) *int {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !d.brand.MatchString(line) {
			continue
		}
		pos := i + 1
		if m := listNumeral.FindStringSubmatch(line); m != nil {
			n := 0
			for _, r := range m[1] {
				n = n*10 + int(r-'0')
			}
			if n > 0 {
				pos = n
			}
		}
		return &pos
	}
	return nil
}

// snippet returns roughly contextRadius bytes either side of the match,
// with the window edges widened outward to the nearest rune boundary.
func snippet(text string, idx, matchLen int) string {
	start := idx - contextRadius
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := idx + matchLen + contextRadius
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return strings.TrimSpace(text[start:end])
}
