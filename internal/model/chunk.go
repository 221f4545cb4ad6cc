// Package model defines the records shared by the ingest and retrieval paths.
package model

import (
	"errors"
	"fmt"
	"strconv"
)

// Metadata field names as stored in the vector index.
const (
	FieldText        = "text"
	FieldSource      = "source"
	FieldChunkIndex  = "chunk_index"
	FieldSubheading  = "subheading"
	FieldKeywords    = "keywords"
	FieldFilename    = "filename"
	FieldType        = "type"
	FieldURL         = "url"
	FieldProgramName = "program_name"
	FieldDegreeLevel = "degreelevel"
	FieldName        = "name"
)

// Chunk is a bounded slice of a document's text.
type Chunk struct {
	Text       string
	Source     string
	ChunkIndex int
	Metadata   Metadata
}

// Metadata is the typed metadata record attached to a vector. Text, Source
// and ChunkIndex are required; empty optional fields are omitted on the wire.
type Metadata struct {
	Text        string   `json:"text"`
	Source      string   `json:"source"`
	ChunkIndex  int      `json:"chunk_index"`
	Subheading  string   `json:"subheading,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Filename    string   `json:"filename,omitempty"`
	Type        string   `json:"type,omitempty"`
	Name        string   `json:"name,omitempty"`
	URL         string   `json:"url,omitempty"`
	ProgramName string   `json:"program_name,omitempty"`
	DegreeLevel string   `json:"degreelevel,omitempty"`
}

// Validate checks the required fields.
func (m Metadata) Validate() error {
	if m.Text == "" {
		return errors.New("metadata: text is required")
	}
	if m.Source == "" {
		return errors.New("metadata: source is required")
	}
	if m.ChunkIndex < 0 {
		return fmt.Errorf("metadata: negative chunk_index %d", m.ChunkIndex)
	}
	return nil
}

// ToMap renders the wire mapping.
func (m Metadata) ToMap() map[string]interface{} {
	out := map[string]interface{}{
		FieldText:       m.Text,
		FieldSource:     m.Source,
		FieldChunkIndex: m.ChunkIndex,
	}
	optional := map[string]string{
		FieldSubheading:  m.Subheading,
		FieldFilename:    m.Filename,
		FieldType:        m.Type,
		FieldName:        m.Name,
		FieldURL:         m.URL,
		FieldProgramName: m.ProgramName,
		FieldDegreeLevel: m.DegreeLevel,
	}
	for k, v := range optional {
		if v != "" {
			out[k] = v
		}
	}
	if len(m.Keywords) > 0 {
		out[FieldKeywords] = append([]string(nil), m.Keywords...)
	}
	return out
}

// Field returns the string values of a metadata field. Keywords yields every
// keyword; scalar fields yield a single value or none when unset.
func (m Metadata) Field(name string) []string {
	switch name {
	case FieldKeywords:
		return m.Keywords
	case FieldChunkIndex:
		return []string{strconv.Itoa(m.ChunkIndex)}
	}
	v := m.ToMap()[name]
	if s, ok := v.(string); ok && s != "" {
		return []string{s}
	}
	return nil
}

// MetadataFromMap parses a wire mapping as returned by a store.
func MetadataFromMap(raw map[string]interface{}) Metadata {
	var m Metadata
	m.Text = stringValue(raw[FieldText])
	m.Source = stringValue(raw[FieldSource])
	m.ChunkIndex = intValue(raw[FieldChunkIndex])
	m.Subheading = stringValue(raw[FieldSubheading])
	m.Filename = stringValue(raw[FieldFilename])
	m.Type = stringValue(raw[FieldType])
	m.Name = stringValue(raw[FieldName])
	m.URL = stringValue(raw[FieldURL])
	m.ProgramName = stringValue(raw[FieldProgramName])
	m.DegreeLevel = stringValue(raw[FieldDegreeLevel])
	switch kws := raw[FieldKeywords].(type) {
	case []string:
		m.Keywords = append([]string(nil), kws...)
	case []interface{}:
		for _, k := range kws {
			if s, ok := k.(string); ok {
				m.Keywords = append(m.Keywords, s)
			}
		}
	}
	return m
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func intValue(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case float32:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

// VectorRecord is the persisted unit in the vector store.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Match is one retrieval result. Score is cosine similarity, higher is better.
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}
