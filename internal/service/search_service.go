// Package service holds the application logic behind the HTTP handlers.
package service

import (
	"context"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/query"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/retriever"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

// Retriever is the read path used by the services.
type Retriever interface {
	Retrieve(ctx context.Context, q string, filter vectorstore.Filter) (retriever.Result, error)
}

// SearchService answers search requests.
type SearchService interface {
	// Search retrieves chunks for q. A zero filter lets inline hints in
	// q ("heading: X", "from file X", "keyword X") restrict the search.
	Search(ctx context.Context, q string, filter vectorstore.Filter) (model.SearchResponse, error)
}

type searchService struct {
	retriever Retriever
}

// NewSearchService returns a SearchService over r.
func NewSearchService(r Retriever) SearchService {
	return &searchService{retriever: r}
}

func (s *searchService) Search(ctx context.Context, q string, filter vectorstore.Filter) (model.SearchResponse, error) {
	if filter.IsZero() {
		if hint, ok := query.ParseFilterHint(q); ok {
			log.Infof("[SearchService] applying filter hint %s", hint)
			filter = hint
		}
	}
	res, err := s.retriever.Retrieve(ctx, q, filter)
	if err != nil {
		return model.SearchResponse{Outcome: string(retriever.OutcomeError), Variants: res.Variants}, err
	}
	out := model.SearchResponse{
		Outcome:  string(res.Outcome),
		Variants: res.Variants,
		Results:  make([]model.SearchResponseDTO, 0, len(res.Matches)),
	}
	for _, m := range res.Matches {
		out.Results = append(out.Results, model.NewSearchResponseDTO(m))
	}
	return out, nil
}
