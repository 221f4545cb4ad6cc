// Package tokenizer measures text length for chunk budgets.
//
// A Measurer counts text in one granularity (characters, words or BPE
// tokens) and can cut an oversize text into consecutive pieces that each fit
// a budget. The splitter only talks to this interface, so the same packing
// logic works for every unit; only the budget constant changes.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Measurer counts text length in a fixed unit.
type Measurer interface {
	// Name returns the unit name ("char", "word", "token").
	Name() string
	// Measure returns the length of text. It is deterministic and
	// monotonic in the size of text.
	Measure(text string) int
	// Slice cuts text into consecutive pieces whose measured length is at
	// most max. Joining the pieces gives back text, ignoring whitespace.
	Slice(text string, max int) []string
}

// ForUnit returns the measurer configured by unit. model is only used for
// the token unit.
func ForUnit(unit, model string) (Measurer, error) {
	switch unit {
	case "", "char":
		return Runes{}, nil
	case "word":
		return Words{}, nil
	case "token":
		return NewTikToken(model)
	default:
		return nil, fmt.Errorf("unknown chunking unit %q", unit)
	}
}

// Runes measures text in Unicode code points.
type Runes struct{}

func (Runes) Name() string { return "char" }

func (Runes) Measure(text string) int { return utf8.RuneCountInString(text) }

func (Runes) Slice(text string, max int) []string {
	if max <= 0 || text == "" {
		return nil
	}
	runes := []rune(text)
	pieces := make([]string, 0, len(runes)/max+1)
	for i := 0; i < len(runes); i += max {
		end := i + max
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[i:end]))
	}
	return pieces
}

// Words measures text in whitespace-separated words.
type Words struct{}

func (Words) Name() string { return "word" }

func (Words) Measure(text string) int { return len(strings.Fields(text)) }

func (Words) Slice(text string, max int) []string {
	words := strings.Fields(text)
	if max <= 0 || len(words) == 0 {
		return nil
	}
	pieces := make([]string, 0, len(words)/max+1)
	for i := 0; i < len(words); i += max {
		end := i + max
		if end > len(words) {
			end = len(words)
		}
		pieces = append(pieces, strings.Join(words[i:end], " "))
	}
	return pieces
}

// TailRunes returns the last n runes of text, or all of text when it is
// shorter.
func TailRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[len(runes)-n:])
}
