package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadata_ToMapOmitsEmptyOptionals(t *testing.T) {
	m := Metadata{Text: "Admission requires a 3.0 GPA.", Source: "admissions.txt", ChunkIndex: 2}
	got := m.ToMap()

	assert.Equal(t, map[string]interface{}{
		"text":        "Admission requires a 3.0 GPA.",
		"source":      "admissions.txt",
		"chunk_index": 2,
	}, got)
}

func TestMetadataFromMap(t *testing.T) {
	raw := map[string]interface{}{
		"text":        "Heading: Deadlines",
		"source":      "deadlines.txt",
		"chunk_index": float64(3),
		"subheading":  "Deadlines",
		"keywords":    []interface{}{"deadlines", "fall term"},
	}
	m := MetadataFromMap(raw)

	assert.Equal(t, 3, m.ChunkIndex)
	assert.Equal(t, "Deadlines", m.Subheading)
	assert.Equal(t, []string{"deadlines", "fall term"}, m.Keywords)
	assert.NoError(t, m.Validate())
	assert.Equal(t, []string{"deadlines.txt"}, m.Field(FieldSource))
	assert.Nil(t, m.Field(FieldFilename))
}

func TestMetadata_Validate(t *testing.T) {
	assert.Error(t, Metadata{Source: "a"}.Validate())
	assert.Error(t, Metadata{Text: "a"}.Validate())
	assert.Error(t, Metadata{Text: "a", Source: "b", ChunkIndex: -1}.Validate())
}

func TestRecordIDs(t *testing.T) {
	assert.Equal(t, "admissions_txt_chunk_0", RecordID("admissions.txt", 0))
	assert.Equal(t, RecordID("a b.csv", 4), RecordID("a b.csv", 4))

	id1 := ContentRecordID("programs.json", "Program: CS", 1)
	id2 := ContentRecordID("programs.json", "Program: EE", 1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, id1, ContentRecordID("programs.json", "Program: CS", 1))
}

func TestSanitizeSource(t *testing.T) {
	assert.Equal(t, "admissions_txt", SanitizeSource("admissions.txt"))
	assert.Equal(t, "README", SanitizeSource("README"))
	assert.Regexp(t, `^source_[0-9a-f]{8}$`, SanitizeSource(""))
	assert.Regexp(t, `^[A-Za-z0-9_-]+$`, SanitizeSource("grad/fall deadlines.v2.txt"))

	// names that sanitize to the same characters keep distinct ids
	distinct := []string{
		"a.txt", "a_txt", "a-txt.", "a txt",
		"grad/deadlines.txt", "undergrad/deadlines.txt", "grad_deadlines.txt",
		"deadlines.txt", "source", "",
	}
	seen := make(map[string]string, len(distinct))
	for _, src := range distinct {
		id := SanitizeSource(src)
		prev, dup := seen[id]
		assert.False(t, dup, "%q and %q both map to %q", prev, src, id)
		seen[id] = src
		assert.Equal(t, id, SanitizeSource(src))
	}
	assert.NotEqual(t, RecordID("a.txt", 0), RecordID("a_txt", 0))
}
