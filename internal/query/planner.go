// Package query turns a user question into search variants and filters.
package query

import (
	"regexp"
	"strings"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/enricher"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

// DefaultMaxVariants bounds the plan, original query included.
const DefaultMaxVariants = 4

// Planner expands a query into reformulations used when the direct search
// is weak.
type Planner struct {
	extractor   enricher.KeywordExtractor
	maxVariants int
}

// NewPlanner returns a planner. A nil extractor selects the default phrase
// extractor; maxVariants below 1 selects DefaultMaxVariants.
func NewPlanner(extractor enricher.KeywordExtractor, maxVariants int) *Planner {
	if extractor == nil {
		extractor = enricher.PhraseExtractor{}
	}
	if maxVariants < 1 {
		maxVariants = DefaultMaxVariants
	}
	return &Planner{extractor: extractor, maxVariants: maxVariants}
}

// Keywords returns the distinct lower-cased keywords of q in order.
func (p *Planner) Keywords(q string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, kw := range p.extractor.Extract(q) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// Expand returns q followed by its variants, deduplicated and truncated.
// The first element is always q itself.
func (p *Planner) Expand(q string) []string {
	variants := []string{q}
	if strings.Contains(q, "?") {
		variants = append(variants,
			strings.TrimSpace(strings.ReplaceAll(q, "?", "")),
			"explain "+strings.ToLower(q),
		)
	}
	if kws := p.Keywords(q); len(kws) > 0 {
		variants = append(variants,
			strings.Join(kws, " "),
			"details about "+strings.Join(kws[:min(2, len(kws))], " "),
		)
	}

	out := make([]string, 0, p.maxVariants)
	seen := make(map[string]struct{}, len(variants))
	for i, v := range variants {
		if _, ok := seen[v]; ok {
			continue
		}
		if i > 0 && v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == p.maxVariants {
			break
		}
	}
	return out
}

var (
	headingHint = regexp.MustCompile(`(?i)\bheading:\s*(.*\S)`)
	fileHint    = regexp.MustCompile(`(?i)\bfrom file\s+(.*\S)`)
	keywordHint = regexp.MustCompile(`(?i)\bkeyword:?\s+(.*\S)`)
	hintMarks   = strings.NewReplacer("?", "", "\"", "", "'", "")
)

// ParseFilterHint recognizes inline filter hints in a query: "heading: X"
// restricts to subheading X, "from file X" to filename X and "keyword X"
// to chunks tagged with X. Only the first matching hint applies.
func ParseFilterHint(q string) (vectorstore.Filter, bool) {
	clean := func(s string) string { return strings.TrimSpace(hintMarks.Replace(s)) }
	switch {
	case headingHint.MatchString(q):
		if v := clean(headingHint.FindStringSubmatch(q)[1]); v != "" {
			return vectorstore.Eq(model.FieldSubheading, v), true
		}
	case fileHint.MatchString(q):
		if v := clean(fileHint.FindStringSubmatch(q)[1]); v != "" {
			return vectorstore.Eq(model.FieldFilename, v), true
		}
	case keywordHint.MatchString(q):
		if v := clean(keywordHint.FindStringSubmatch(q)[1]); v != "" {
			return vectorstore.In(model.FieldKeywords, strings.ToLower(v)), true
		}
	}
	return vectorstore.Filter{}, false
}
