package model

// SearchResponseDTO is one search hit returned to API clients.
type SearchResponseDTO struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	ChunkIndex  int      `json:"chunkIndex"`
	TextContent string   `json:"textContent"`
	Score       float64  `json:"score"`
	Subheading  string   `json:"subheading,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Type        string   `json:"type,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// SearchResponse wraps the hits with the retrieval outcome so an empty
// result can be told apart from a failed one.
type SearchResponse struct {
	Outcome  string              `json:"outcome"`
	Variants []string            `json:"variants,omitempty"`
	Results  []SearchResponseDTO `json:"results"`
}

// EsDocument is the document shape stored in the Elasticsearch vector index.
type EsDocument struct {
	VectorID     string    `json:"vector_id"`
	Text         string    `json:"text"`
	Source       string    `json:"source"`
	ChunkIndex   int       `json:"chunk_index"`
	Subheading   string    `json:"subheading,omitempty"`
	Keywords     []string  `json:"keywords,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	Type         string    `json:"type,omitempty"`
	Name         string    `json:"name,omitempty"`
	URL          string    `json:"url,omitempty"`
	ProgramName  string    `json:"program_name,omitempty"`
	DegreeLevel  string    `json:"degreelevel,omitempty"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version,omitempty"`
}

// NewEsDocument flattens a record into the index document shape.
func NewEsDocument(r VectorRecord, modelVersion string) EsDocument {
	m := r.Metadata
	return EsDocument{
		VectorID:     r.ID,
		Text:         m.Text,
		Source:       m.Source,
		ChunkIndex:   m.ChunkIndex,
		Subheading:   m.Subheading,
		Keywords:     m.Keywords,
		Filename:     m.Filename,
		Type:         m.Type,
		Name:         m.Name,
		URL:          m.URL,
		ProgramName:  m.ProgramName,
		DegreeLevel:  m.DegreeLevel,
		Vector:       r.Values,
		ModelVersion: modelVersion,
	}
}

// Metadata returns the metadata record of an index document.
func (d EsDocument) Metadata() Metadata {
	return Metadata{
		Text:        d.Text,
		Source:      d.Source,
		ChunkIndex:  d.ChunkIndex,
		Subheading:  d.Subheading,
		Keywords:    d.Keywords,
		Filename:    d.Filename,
		Type:        d.Type,
		Name:        d.Name,
		URL:         d.URL,
		ProgramName: d.ProgramName,
		DegreeLevel: d.DegreeLevel,
	}
}

// NewSearchResponseDTO converts a match into its API shape.
func NewSearchResponseDTO(m Match) SearchResponseDTO {
	return SearchResponseDTO{
		ID:          m.ID,
		Source:      m.Metadata.Source,
		ChunkIndex:  m.Metadata.ChunkIndex,
		TextContent: m.Text,
		Score:       m.Score,
		Subheading:  m.Metadata.Subheading,
		Keywords:    m.Metadata.Keywords,
		Type:        m.Metadata.Type,
		URL:         m.Metadata.URL,
	}
}
