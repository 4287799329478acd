package model

// Severity levels of a Suggestion.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Suggestion is a remediation hint derived from a finding.
type Suggestion struct {
	Kind       string `json:"kind"`
	Severity   string `json:"severity"`
	Target     string `json:"target"`
	Referer    string `json:"referer,omitempty"`
	Suggestion string `json:"suggestion"`
	Overhead   int64  `json:"overhead"`
}

// SeverityFor grades an overhead by its share of the heap: 10% or more is
// high, 1% or more medium.
func SeverityFor(overhead, total int64) string {
	if total <= 0 {
		return SeverityLow
	}
	switch pct := float64(overhead) * 100 / float64(total); {
	case pct >= 10:
		return SeverityHigh
	case pct >= 1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SuggestionBuilder helps build suggestions with a fluent interface.
type SuggestionBuilder struct {
	suggestion Suggestion
}

// NewSuggestionBuilder creates a new SuggestionBuilder.
func NewSuggestionBuilder() *SuggestionBuilder {
	return &SuggestionBuilder{suggestion: Suggestion{Severity: SeverityLow}}
}

// WithKind sets the problem kind.
func (b *SuggestionBuilder) WithKind(kind string) *SuggestionBuilder {
	b.suggestion.Kind = kind
	return b
}

// WithTarget sets the class or field the suggestion is about.
func (b *SuggestionBuilder) WithTarget(target string) *SuggestionBuilder {
	b.suggestion.Target = target
	return b
}

// WithReferer sets the reference chain leading to the target.
func (b *SuggestionBuilder) WithReferer(referer string) *SuggestionBuilder {
	b.suggestion.Referer = referer
	return b
}

// WithSuggestion sets the suggestion text.
func (b *SuggestionBuilder) WithSuggestion(text string) *SuggestionBuilder {
	b.suggestion.Suggestion = text
	return b
}

// WithOverhead sets the overhead and grades the severity against total.
func (b *SuggestionBuilder) WithOverhead(overhead, total int64) *SuggestionBuilder {
	b.suggestion.Overhead = overhead
	b.suggestion.Severity = SeverityFor(overhead, total)
	return b
}

// Build returns the built Suggestion.
func (b *SuggestionBuilder) Build() Suggestion {
	return b.suggestion
}

// IsEmpty returns true if the suggestion text is empty.
func (s *Suggestion) IsEmpty() bool {
	return s.Suggestion == ""
}
