package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunes(t *testing.T) {
	m := Runes{}
	assert.Equal(t, 0, m.Measure(""))
	assert.Equal(t, 5, m.Measure("héllo"))

	pieces := m.Slice("abcdefghij", 4)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, pieces)
	assert.Nil(t, m.Slice("", 4))
}

func TestWords(t *testing.T) {
	m := Words{}
	assert.Equal(t, 3, m.Measure("  one two\n\nthree "))

	pieces := m.Slice("a b c d e", 2)
	assert.Equal(t, []string{"a b", "c d", "e"}, pieces)
	for _, p := range pieces {
		assert.LessOrEqual(t, m.Measure(p), 2)
	}
}

func TestMeasureIsMonotonic(t *testing.T) {
	for _, m := range []Measurer{Runes{}, Words{}} {
		t.Run(m.Name(), func(t *testing.T) {
			text := ""
			prev := 0
			for i := 0; i < 20; i++ {
				text += "word "
				n := m.Measure(text)
				assert.GreaterOrEqual(t, n, prev)
				prev = n
			}
		})
	}
}

func TestSliceRoundTrip(t *testing.T) {
	text := strings.Repeat("Admission requires transcripts. ", 10)
	for _, m := range []Measurer{Runes{}, Words{}} {
		t.Run(m.Name(), func(t *testing.T) {
			pieces := m.Slice(text, 7)
			for _, p := range pieces {
				assert.LessOrEqual(t, m.Measure(p), 7)
			}
			joined := strings.Join(strings.Fields(strings.Join(pieces, " ")), "")
			assert.Equal(t, strings.Join(strings.Fields(text), ""), joined)
		})
	}
}

func TestTailRunes(t *testing.T) {
	assert.Equal(t, "lo", TailRunes("hello", 2))
	assert.Equal(t, "hi", TailRunes("hi", 5))
	assert.Equal(t, "", TailRunes("hi", 0))
}

func TestForUnit(t *testing.T) {
	m, err := ForUnit("char", "")
	require.NoError(t, err)
	assert.Equal(t, "char", m.Name())

	m, err = ForUnit("word", "")
	require.NoError(t, err)
	assert.Equal(t, "word", m.Name())

	_, err = ForUnit("sentence", "")
	assert.Error(t, err)
}
