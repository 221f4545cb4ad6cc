package enricher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhraseExtractor(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"question", "What are the admission requirements?", []string{"admission requirements"}},
		{"punctuation splits", "Tuition, fees and housing.", []string{"tuition", "fees", "housing"}},
		{"dedup case-insensitive", "Graduate School. graduate school", []string{"graduate school"}},
		{"keeps decimals", "Admission requires a 3.0 GPA", []string{"admission", "3.0 gpa"}},
		{"drops short and numeric", "At 2024, a BS; the lab", []string{"lab"}},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PhraseExtractor{}.Extract(tc.text))
		})
	}
}

func TestPhraseExtractor_MaxWords(t *testing.T) {
	got := PhraseExtractor{MaxWords: 2}.Extract("computer science engineering department")
	assert.Equal(t, []string{"computer science", "engineering department"}, got)
}

type fixedExtractor []string

func (f fixedExtractor) Extract(string) []string { return f }

func TestEnrich(t *testing.T) {
	e := New(WithFilename(true))
	text := "Overview\nHeading: Fall Deadlines \nApplication deadline for fall term is March 1."

	m := e.Enrich(text, 3, "deadlines.txt")

	assert.Equal(t, text, m.Text)
	assert.Equal(t, "deadlines.txt", m.Source)
	assert.Equal(t, "deadlines.txt", m.Filename)
	assert.Equal(t, 3, m.ChunkIndex)

	nested := e.Enrich(text, 0, "grad/deadlines.txt")
	assert.Equal(t, "grad/deadlines.txt", nested.Source)
	assert.Equal(t, "deadlines.txt", nested.Filename)
	assert.Equal(t, "Fall Deadlines", m.Subheading)
	assert.NotEmpty(t, m.Keywords)
	assert.LessOrEqual(t, len(m.Keywords), DefaultKeywordCount)
	assert.NoError(t, m.Validate())
}

func TestEnrich_OmitsAbsentFields(t *testing.T) {
	m := New(WithExtractor(fixedExtractor(nil))).Enrich("plain text", 0, "a.txt")
	assert.Empty(t, m.Subheading)
	assert.Nil(t, m.Keywords)
	assert.Empty(t, m.Filename)
	assert.NotContains(t, m.ToMap(), "keywords")
}

func TestKeywords_BoundedAndDeduplicated(t *testing.T) {
	e := New(WithExtractor(fixedExtractor{"A", "b", "a", "c", "d", "e", "f", "g"}))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, e.Keywords("ignored"))

	e = New(WithExtractor(fixedExtractor{"x", "y", "z"}), WithMaxKeywords(2))
	assert.Equal(t, []string{"x", "y"}, e.Keywords("ignored"))
}

func TestSubheading_CaseInsensitive(t *testing.T) {
	assert.Equal(t, "Tuition", Subheading("HEADING: Tuition\nbody"))
	assert.Equal(t, "", Subheading("no heading here"))
}
