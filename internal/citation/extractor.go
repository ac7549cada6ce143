// Package citation normalizes provider-specific citation payloads into the
// common model.Citation shape and answers domain-match questions.
package citation

import (
	"sort"
	"strings"

	"github.com/sells-group/visibility-engine/internal/model"
)

// Annotation is the annotation-style raw shape some chat providers attach
// to a message (one entry per cited span).
type Annotation struct {
	Type       string `json:"type"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
	StartIndex int    `json:"start_index"`
}

// SearchResult is the search-result-style raw shape returned by
// search-grounded providers. List order is the citation order.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Date    string `json:"date,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// FromAnnotations normalizes annotation-style citations. Entries without a
// URL are dropped; StartIndex orders the rest. A nil or malformed list
// yields an empty slice, never an error; citation absence is a normal
// outcome.
func FromAnnotations(anns []Annotation) []model.Citation {
	kept := make([]Annotation, 0, len(anns))
	for _, a := range anns {
		if strings.TrimSpace(a.URL) == "" {
			continue
		}
		kept = append(kept, a)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].StartIndex < kept[j].StartIndex })

	out := make([]model.Citation, 0, len(kept))
	for _, a := range kept {
		out = append(out, model.Citation{URL: a.URL, Title: a.Title, Snippet: a.Snippet})
	}
	return out
}

// FromSearchResults normalizes search-result-style citations, preserving
// list order. Entries without a URL are dropped.
func FromSearchResults(results []SearchResult) []model.Citation {
	out := make([]model.Citation, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, model.Citation{URL: r.URL, Title: r.Title, Snippet: r.Snippet})
	}
	return out
}

// BrandInCitations reports whether any citation points at the brand's
// domain. Both sides are normalized (scheme and leading "www." stripped);
// a match is containment in either direction so that blog.brand.com
// matches brand.com and a whitelabel brand.com matches blog.brand.com.
func BrandInCitations(citations []model.Citation, brandDomain string) bool {
	brand := NormalizeDomain(brandDomain)
	if brand == "" {
		return false
	}
	for _, c := range citations {
		host := NormalizeDomain(c.URL)
		if host == "" {
			continue
		}
		if strings.Contains(host, brand) || strings.Contains(brand, host) {
			return true
		}
	}
	return false
}

// NormalizeDomain reduces a URL or bare domain to a comparable hostname:
// lowercase, no scheme, no leading "www.", no path or port.
func NormalizeDomain(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, ".")
}
