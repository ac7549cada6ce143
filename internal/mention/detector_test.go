package mention

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-engine/internal/model"
)

func active(names ...string) []model.Competitor {
	out := make([]model.Competitor, 0, len(names))
	for _, n := range names {
		out = append(out, model.Competitor{Name: n, IsActive: true})
	}
	return out
}

func TestDetect_CaseInsensitiveMention(t *testing.T) {
	d := NewDetector("Acme", nil)

	res := d.Detect("Many teams choose ACME for startups.")
	assert.True(t, res.Mentioned)
	require.NotNil(t, res.Position)
	assert.Equal(t, 1, *res.Position)
	assert.Contains(t, res.Context, "ACME")
}

func TestDetect_NoMention(t *testing.T) {
	d := NewDetector("Acme", nil)

	res := d.Detect("Salesforce and HubSpot dominate this space.")
	assert.False(t, res.Mentioned)
	assert.Nil(t, res.Position)
	assert.Empty(t, res.Context)
}

func TestDetect_PositionFromListNumeral(t *testing.T) {
	d := NewDetector("Acme", nil)

	text := "Here are the best CRMs:\n1. Salesforce - the incumbent\n3) Acme - great for startups\n4. HubSpot"
	res := d.Detect(text)
	assert.True(t, res.Mentioned)
	require.NotNil(t, res.Position)
	assert.Equal(t, 3, *res.Position)
}

func TestDetect_PositionFallsBackToLineIndex(t *testing.T) {
	d := NewDetector("Acme", nil)

	text := "Top picks for startups:\nAcme is a strong option."
	res := d.Detect(text)
	require.NotNil(t, res.Position)
	assert.Equal(t, 2, *res.Position)
}

func TestDetect_CompetitorsRequireWordBoundaries(t *testing.T) {
	d := NewDetector("Acme", active("AI", "HubSpot"))

	res := d.Detect("You should maintain your HubSpot setup.")
	assert.Equal(t, []string{"HubSpot"}, res.CompetitorsMentioned)

	res = d.Detect("AI tooling is everywhere.")
	assert.Equal(t, []string{"AI"}, res.CompetitorsMentioned)
}

func TestDetect_InactiveCompetitorsExcluded(t *testing.T) {
	comps := []model.Competitor{
		{Name: "HubSpot", IsActive: false},
		{Name: "Salesforce", IsActive: true},
	}
	d := NewDetector("Acme", comps)

	res := d.Detect("HubSpot and Salesforce both appear here.")
	assert.Equal(t, []string{"Salesforce"}, res.CompetitorsMentioned)
}

func TestDetect_NonASCIITextBeforeMatch(t *testing.T) {
	d := NewDetector("Acme", nil)

	// Multibyte text ahead of the match must not shift the context window.
	text := "Für Gründerinnen und Gründer empfiehlt sich Acme, großartig für kleine Teams."
	res := d.Detect(text)
	assert.True(t, res.Mentioned)
	assert.True(t, utf8.ValidString(res.Context))
	assert.Contains(t, res.Context, "Acme")
}

func TestDetect_NonASCIIBrandName(t *testing.T) {
	d := NewDetector("Müller", nil)

	res := d.Detect("Viele Cafés schwören auf MÜLLER für ihre Buchhaltung.")
	assert.True(t, res.Mentioned)
	assert.True(t, utf8.ValidString(res.Context))
	assert.Contains(t, res.Context, "MÜLLER")
}

func TestDetect_ContextEdgesStayOnRuneBoundaries(t *testing.T) {
	d := NewDetector("Acme", nil)

	pad := strings.Repeat("größenwahn ", 30)
	res := d.Detect(pad + "Acme" + pad)
	assert.True(t, res.Mentioned)
	assert.True(t, utf8.ValidString(res.Context))
	assert.Contains(t, res.Context, "Acme")
}

func TestDetect_ContextWindowBounded(t *testing.T) {
	d := NewDetector("Acme", nil)

	long := ""
	for i := 0; i < 50; i++ {
		long += "filler padding text "
	}
	text := long + "Acme" + long
	res := d.Detect(text)
	assert.True(t, res.Mentioned)
	assert.LessOrEqual(t, len(res.Context), 2*100+len("Acme"))
}
