package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TikToken measures text in BPE tokens of an OpenAI model encoding.
type TikToken struct {
	model string
	enc   *tiktoken.Tiktoken
}

// NewTikToken loads the encoding used by model.
func NewTikToken(model string) (*TikToken, error) {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding for %s: %w", model, err)
	}
	return &TikToken{model: model, enc: enc}, nil
}

func (t *TikToken) Name() string { return "token" }

func (t *TikToken) Measure(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Slice cuts on token boundaries. A decoded window can re-encode to more
// tokens than it started with, so each piece is shrunk until it measures
// within max.
func (t *TikToken) Slice(text string, max int) []string {
	if max <= 0 || text == "" {
		return nil
	}
	tokens := t.enc.Encode(text, nil, nil)
	var pieces []string
	for i := 0; i < len(tokens); {
		end := i + max
		if end > len(tokens) {
			end = len(tokens)
		}
		piece := t.enc.Decode(tokens[i:end])
		for end-i > 1 && t.Measure(piece) > max {
			end--
			piece = t.enc.Decode(tokens[i:end])
		}
		pieces = append(pieces, piece)
		i = end
	}
	return pieces
}
