package enricher

import (
	"strings"
	"unicode"
)

// KeywordExtractor returns the key phrases of a text in first-seen order,
// deduplicated and lower-cased.
type KeywordExtractor interface {
	Extract(text string) []string
}

// PhraseExtractor approximates noun phrases without a language model: a
// phrase is a run of words uninterrupted by punctuation or stopwords.
type PhraseExtractor struct {
	// MinLength is the minimum phrase length in runes; shorter phrases are
	// dropped. Zero means 3.
	MinLength int
	// MaxWords caps the words in one phrase. Zero means 4.
	MaxWords int
}

var stopwords = toSet(`a about above after again against all am an and any are as at be because been
before being below between both but by can could did do does doing down during each few for from
further had has have having he her here hers him his how i if in into is it its itself just me more
most my no nor not now of off on once only or other our ours out over own same she should so some
such than that the their theirs them then there these they this those through to too under until up
very was we were what when where which while who whom why will with would you your yours
also may might must shall get gets got make makes made include includes including offer offers
offered provide provides provided require requires required explain tell show give know want need
please details detail information info`)

func toSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// Extract implements KeywordExtractor.
func (p PhraseExtractor) Extract(text string) []string {
	minLen, maxWords := p.MinLength, p.MaxWords
	if minLen <= 0 {
		minLen = 3
	}
	if maxWords <= 0 {
		maxWords = 4
	}

	var (
		out    []string
		seen   = make(map[string]struct{})
		phrase []string
	)
	flush := func() {
		defer func() { phrase = phrase[:0] }()
		if len(phrase) == 0 || allNumeric(phrase) {
			return
		}
		kw := strings.Join(phrase, " ")
		if len([]rune(kw)) < minLen {
			return
		}
		if _, ok := seen[kw]; ok {
			return
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}

	for _, tok := range tokenize(text) {
		if tok == "" {
			flush()
			continue
		}
		word := strings.ToLower(tok)
		if _, stop := stopwords[word]; stop {
			flush()
			continue
		}
		phrase = append(phrase, word)
		if len(phrase) == maxWords {
			flush()
		}
	}
	flush()
	return out
}

// tokenize splits text into words; an empty token marks a punctuation
// boundary. Inner dots, hyphens and apostrophes stay within a word so
// "3.0", "full-time" and "master's" survive.
func tokenize(text string) []string {
	var (
		tokens []string
		cur    strings.Builder
	)
	runes := []rune(text)
	end := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		case (r == '.' || r == '-' || r == '\'' || r == '’') && cur.Len() > 0 &&
			i+1 < len(runes) && (unicode.IsLetter(runes[i+1]) || unicode.IsDigit(runes[i+1])):
			cur.WriteRune(r)
		case unicode.IsSpace(r):
			end()
		default:
			end()
			tokens = append(tokens, "")
		}
	}
	end()
	return tokens
}

func allNumeric(words []string) bool {
	for _, w := range words {
		for _, r := range w {
			if unicode.IsLetter(r) {
				return false
			}
		}
	}
	return true
}
