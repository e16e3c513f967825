package filter

import (
	"strings"

	"viaductecho/internal/domain"
)

// Filter retains candidates whose title or summary mentions a gazetteer
// place name. Matching is case-insensitive substring; a single hit retains.
type Filter struct {
	keywords []string
}

// New lower-cases the gazetteer once up front.
func New(keywords []string) *Filter {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Filter{keywords: lowered}
}

// Retain reports whether the candidate is locally relevant. Candidates with
// no text at all are never retained.
func (f *Filter) Retain(c domain.Candidate) bool {
	haystack := strings.ToLower(strings.TrimSpace(c.Title + " " + c.Summary))
	if haystack == "" {
		return false
	}

	for _, kw := range f.keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// Apply returns only the retained candidates, preserving order.
func (f *Filter) Apply(candidates []domain.Candidate) []domain.Candidate {
	retained := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if f.Retain(c) {
			retained = append(retained, c)
		}
	}
	return retained
}
