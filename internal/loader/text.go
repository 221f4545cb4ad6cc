package loader

import (
	"fmt"
	"io"
	"strings"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/chunker"
)

// TextLoader reads plain text; units are blank-line separated paragraphs.
type TextLoader struct{}

// Load implements Loader.
func (TextLoader) Load(source string, r io.Reader) ([]Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return textDocuments(source, string(data)), nil
}

func textDocuments(source, text string) []Document {
	units := chunker.Paragraphs(text)
	if len(units) == 0 {
		return nil
	}
	return []Document{{
		Source:       source,
		Type:         TypeText,
		Units:        units,
		Separator:    chunker.DefaultSeparator,
		CarryOverlap: true,
	}}
}

// Sentences splits text at ". " boundaries. Every sentence but a trailing
// fragment keeps its period.
func Sentences(text string) []string {
	parts := strings.Split(text, ". ")
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i < len(parts)-1 && !strings.HasSuffix(p, ".") {
			p += "."
		}
		out = append(out, p)
	}
	return out
}
