// Package enricher derives searchable metadata from chunk text.
package enricher

import (
	"path"
	"regexp"
	"strings"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
)

// DefaultKeywordCount is the number of keywords kept per chunk.
const DefaultKeywordCount = 5

var headingLine = regexp.MustCompile(`(?im)^[ \t]*heading:[ \t]*(.*\S)`)

// Enricher attaches subheading, keywords and optionally the filename to a
// chunk. It holds no state between calls.
type Enricher struct {
	extractor    KeywordExtractor
	maxKeywords  int
	withFilename bool
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithExtractor replaces the default PhraseExtractor.
func WithExtractor(x KeywordExtractor) Option {
	return func(e *Enricher) { e.extractor = x }
}

// WithMaxKeywords bounds the keywords per chunk.
func WithMaxKeywords(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.maxKeywords = n
		}
	}
}

// WithFilename records the chunk source as the filename field.
func WithFilename(on bool) Option {
	return func(e *Enricher) { e.withFilename = on }
}

// New returns an Enricher.
func New(opts ...Option) *Enricher {
	e := &Enricher{
		extractor:   PhraseExtractor{},
		maxKeywords: DefaultKeywordCount,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Keywords returns at most the configured number of distinct keywords.
func (e *Enricher) Keywords(text string) []string {
	kws := e.extractor.Extract(text)
	out := make([]string, 0, min(len(kws), e.maxKeywords))
	seen := make(map[string]struct{}, len(kws))
	for _, kw := range kws {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
		if len(out) == e.maxKeywords {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Enrich builds the metadata record of the chunk at position within source.
func (e *Enricher) Enrich(text string, position int, source string) model.Metadata {
	m := model.Metadata{
		Text:       text,
		Source:     source,
		ChunkIndex: position,
		Subheading: Subheading(text),
		Keywords:   e.Keywords(text),
	}
	if e.withFilename {
		m.Filename = path.Base(source)
	}
	return m
}

// Subheading returns the value of the first "Heading:" line, or "".
func Subheading(text string) string {
	if m := headingLine.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
