// Package chunker partitions document text into bounded-size chunks.
//
// Text is cut into atomic units (paragraphs, rows, records) which are packed
// greedily into chunks of at most MaxSize as measured by a
// tokenizer.Measurer. When a chunk is full it is emitted and the next one is
// seeded either with a fixed header (tabular sources, every chunk describes
// its columns) or with the trailing Overlap characters of the emitted chunk
// (free text). A unit that cannot fit on its own is hard-split.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"slices"
	"strings"

	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/tokenizer"
)

const (
	// DefaultMaxSize is the default chunk budget in characters.
	DefaultMaxSize = 2000
	// DefaultOverlap is the default number of trailing characters carried
	// into the next chunk.
	DefaultOverlap = 400
	// DefaultSeparator joins paragraphs inside a chunk.
	DefaultSeparator = "\n\n"
)

var (
	// ErrInvalidConfig is returned for a non-positive budget or an overlap
	// that is negative or not smaller than the budget.
	ErrInvalidConfig = errors.New("chunker: invalid configuration")
	// ErrHeaderTooLarge is returned when the repeated header leaves no
	// room for content.
	ErrHeaderTooLarge = errors.New("chunker: header leaves no room for content")
)

var blankLine = regexp.MustCompile(`\n\s*\n`)

// Splitter packs atomic units into chunks. A Splitter is immutable and safe
// for concurrent use.
type Splitter struct {
	maxSize     int
	overlap     int
	measurer    tokenizer.Measurer
	separator   string
	headerUnits int
	refine      func(string) []string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithMaxSize sets the chunk budget in the measurer's unit.
func WithMaxSize(n int) Option {
	return func(s *Splitter) { s.maxSize = n }
}

// WithOverlap sets the number of trailing characters of an emitted chunk
// that seed the next one. Zero disables overlap.
func WithOverlap(n int) Option {
	return func(s *Splitter) { s.overlap = n }
}

// WithMeasurer sets how chunk size is measured.
func WithMeasurer(m tokenizer.Measurer) Option {
	return func(s *Splitter) { s.measurer = m }
}

// WithSeparator sets the string placed between units inside a chunk.
func WithSeparator(sep string) Option {
	return func(s *Splitter) { s.separator = sep }
}

// WithHeaderUnits switches to header-repeat mode: the first n units form a
// header that starts every chunk. Overlap is not used in this mode.
func WithHeaderUnits(n int) Option {
	return func(s *Splitter) { s.headerUnits = n }
}

// WithRefiner sets a function that cuts a unit too large for one chunk into
// finer units (sentences of a section, for instance) before falling back to
// a hard split.
func WithRefiner(f func(string) []string) Option {
	return func(s *Splitter) { s.refine = f }
}

// New returns a Splitter with the given options applied over the defaults.
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		maxSize:   DefaultMaxSize,
		overlap:   DefaultOverlap,
		measurer:  tokenizer.Runes{},
		separator: DefaultSeparator,
	}
	return s.With(opts...)
}

// With returns a copy of s with opts applied.
func (s *Splitter) With(opts ...Option) (*Splitter, error) {
	c := *s
	for _, opt := range opts {
		opt(&c)
	}
	if c.maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size %d must be positive", ErrInvalidConfig, c.maxSize)
	}
	if c.overlap < 0 || c.overlap >= c.maxSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, c.overlap, c.maxSize)
	}
	if c.headerUnits < 0 {
		return nil, fmt.Errorf("%w: negative header units", ErrInvalidConfig)
	}
	if c.measurer == nil {
		c.measurer = tokenizer.Runes{}
	}
	return &c, nil
}

// MaxSize returns the chunk budget.
func (s *Splitter) MaxSize() int { return s.maxSize }

// Measurer returns the measurer used for the budget.
func (s *Splitter) Measurer() tokenizer.Measurer { return s.measurer }

// Paragraphs splits text on blank lines and drops empty paragraphs.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := blankLine.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Split cuts text into paragraphs and packs them.
func (s *Splitter) Split(text string) ([]string, error) {
	return s.Pack(Paragraphs(text))
}

// Pack packs units and collects every chunk.
func (s *Splitter) Pack(units []string) ([]string, error) {
	seq, err := s.Seq(units)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// Seq returns the chunks of units as a lazy sequence. Units are trimmed and
// empty units dropped; their order is preserved in the output.
func (s *Splitter) Seq(units []string) (iter.Seq[string], error) {
	cleaned := make([]string, 0, len(units))
	for _, u := range units {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}

	var header string
	body := cleaned
	if s.headerUnits > 0 && len(cleaned) > 0 {
		n := min(s.headerUnits, len(cleaned))
		header = strings.Join(cleaned[:n], s.separator)
		body = cleaned[n:]
		if s.measure(header+s.separator) >= s.maxSize {
			return nil, fmt.Errorf("%w: header measures %d of %d", ErrHeaderTooLarge, s.measure(header), s.maxSize)
		}
	}

	return func(yield func(string) bool) {
		s.pack(header, body, yield)
	}, nil
}

func (s *Splitter) pack(header string, body []string, yield func(string) bool) {
	prefix := ""
	if header != "" {
		prefix = header + s.separator
	}
	if s.refine != nil {
		body = s.refineUnits(prefix, body)
	}
	current := header
	hasUnit := false

	for _, unit := range body {
		if t := s.join(current, unit); s.fits(t) {
			current, hasUnit = t, true
			continue
		}
		if hasUnit {
			if !yield(current) {
				return
			}
			current, hasUnit = s.reseed(current, header), false
			if t := s.join(current, unit); s.fits(t) {
				current, hasUnit = t, true
				continue
			}
		}
		if header == "" {
			// the overlap seed cannot carry this unit, start clean
			current = ""
			if s.fits(unit) {
				current, hasUnit = unit, true
				continue
			}
		}
		for _, piece := range s.hardSplit(prefix, unit) {
			if !yield(piece) {
				return
			}
		}
		current, hasUnit = header, false
	}

	if hasUnit {
		yield(current)
	}
}

func (s *Splitter) refineUnits(prefix string, units []string) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		if s.fits(prefix + u) {
			out = append(out, u)
			continue
		}
		for _, r := range s.refine(u) {
			if r = strings.TrimSpace(r); r != "" {
				out = append(out, r)
			}
		}
	}
	return out
}

// reseed returns the seed of the chunk following emitted.
func (s *Splitter) reseed(emitted, header string) string {
	if header != "" {
		return header
	}
	return tokenizer.TailRunes(emitted, s.overlap)
}

// hardSplit cuts unit into pieces that each fit the budget after prefix.
// Pieces carry no overlap. When prefix leaves no room the pieces are
// emitted without it.
func (s *Splitter) hardSplit(prefix, unit string) []string {
	for budget := s.maxSize - s.measure(prefix); budget > 0; budget-- {
		pieces := s.measurer.Slice(unit, budget)
		out := make([]string, 0, len(pieces))
		for _, p := range pieces {
			if !s.fits(prefix + p) {
				break
			}
			out = append(out, prefix+p)
		}
		if len(out) == len(pieces) {
			return out
		}
	}
	return s.measurer.Slice(unit, s.maxSize)
}

func (s *Splitter) join(current, unit string) string {
	if current == "" {
		return unit
	}
	return current + s.separator + unit
}

func (s *Splitter) fits(text string) bool {
	return s.measure(text) <= s.maxSize
}

func (s *Splitter) measure(text string) int {
	return s.measurer.Measure(text)
}
