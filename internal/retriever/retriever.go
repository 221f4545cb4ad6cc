// Package retriever answers a query with ranked chunks, widening the search
// over query variants when the direct match is weak.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/query"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/embedding"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/metrics"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

// Outcome classifies a retrieval call.
type Outcome string

const (
	// OutcomeDirect means the original query produced confident results.
	OutcomeDirect Outcome = "direct"
	// OutcomeFallback means the query variants were searched.
	OutcomeFallback Outcome = "fallback"
	// OutcomeEmpty means nothing matched. It is not an error.
	OutcomeEmpty Outcome = "empty"
	// OutcomeError is recorded when a search failed.
	OutcomeError Outcome = "error"
)

// DefaultTopK is used when the configuration asks for no results.
const DefaultTopK = 5

// Result is the ranked answer to one query.
type Result struct {
	Matches  []model.Match
	Outcome  Outcome
	Variants []string
}

// Retriever searches a store for the chunks closest to a query.
type Retriever struct {
	embedder          embedding.Embedder
	store             vectorstore.Store
	planner           *query.Planner
	topK              int
	minScore          float64
	fallbackThreshold float64
}

// New returns a retriever configured by cfg. Score thresholds are taken as
// given: a MinScore of 0 disables the score floor.
func New(embedder embedding.Embedder, store vectorstore.Store, planner *query.Planner, cfg config.RetrievalConfig) *Retriever {
	r := &Retriever{
		embedder:          embedder,
		store:             store,
		planner:           planner,
		topK:              cfg.TopK,
		minScore:          cfg.MinScore,
		fallbackThreshold: cfg.FallbackThreshold,
	}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}
	if r.planner == nil {
		r.planner = query.NewPlanner(nil, cfg.MaxVariants)
	}
	return r
}

// Retrieve runs the hybrid search for q and falls back to the planner's
// variants when it finds nothing or only weak matches. Search failures
// are returned as errors; an empty Result with OutcomeEmpty is a valid
// answer.
func (r *Retriever) Retrieve(ctx context.Context, q string, filter vectorstore.Filter) (Result, error) {
	start := time.Now()
	res, err := r.retrieve(ctx, q, filter)
	if err != nil {
		metrics.Retrieval(string(OutcomeError), time.Since(start))
		log.Errorf("[Retriever] query %q failed: %v", q, err)
		return Result{Outcome: OutcomeError, Variants: res.Variants}, err
	}
	metrics.Retrieval(string(res.Outcome), time.Since(start))
	if res.Outcome == OutcomeEmpty {
		log.Infow("[Retriever] no relevant chunks", "query", q, "variants", len(res.Variants))
	} else {
		log.Infow("[Retriever] retrieved chunks", "query", q, "outcome", res.Outcome, "count", len(res.Matches))
	}
	return res, nil
}

func (r *Retriever) retrieve(ctx context.Context, q string, filter vectorstore.Filter) (Result, error) {
	if strings.TrimSpace(q) == "" {
		return Result{Outcome: OutcomeEmpty, Variants: []string{q}}, nil
	}

	merged, err := r.HybridMerge(ctx, q, filter)
	if err != nil {
		return Result{}, err
	}
	if !r.weak(merged) {
		return Result{Matches: merged, Outcome: OutcomeDirect, Variants: []string{q}}, nil
	}

	variants := r.planner.Expand(q)
	log.Debugf("[Retriever] weak results for %q, trying %d variants", q, len(variants)-1)
	acc := append([]model.Match(nil), merged...)
	for _, v := range variants[1:] {
		found, err := r.HybridMerge(ctx, v, filter)
		if err != nil {
			return Result{Variants: variants}, fmt.Errorf("variant %q: %w", v, err)
		}
		acc = append(acc, found...)
	}
	matches := rank(dedupHighest(acc), r.topK)

	outcome := OutcomeFallback
	if len(matches) == 0 {
		outcome = OutcomeEmpty
	}
	return Result{Matches: matches, Outcome: outcome, Variants: variants}, nil
}

// weak reports whether the results call for the fallback.
func (r *Retriever) weak(matches []model.Match) bool {
	for _, m := range matches {
		if m.Score >= r.fallbackThreshold {
			return false
		}
	}
	return true
}

// DirectSearch embeds text and returns at most topK matches scoring at
// least the minimum score.
func (r *Retriever) DirectSearch(ctx context.Context, text string, filter vectorstore.Filter) ([]model.Match, error) {
	vec, err := embedding.EmbedOne(ctx, r.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := r.store.Query(ctx, vectorstore.QueryRequest{
		Vector:          vec,
		TopK:            r.topK,
		Filter:          filter,
		MinScore:        r.minScore,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", r.store.Name(), err)
	}
	return matches, nil
}

// HybridMerge combines the direct search for text with a search restricted
// to chunks tagged with the keywords of text. Direct results win on id
// collisions.
func (r *Retriever) HybridMerge(ctx context.Context, text string, filter vectorstore.Filter) ([]model.Match, error) {
	direct, err := r.DirectSearch(ctx, text, filter)
	if err != nil {
		return nil, err
	}
	kws := r.planner.Keywords(text)
	if len(kws) == 0 {
		return rank(direct, r.topK), nil
	}
	byKeyword, err := r.DirectSearch(ctx, strings.Join(kws, " "),
		vectorstore.And(filter, vectorstore.In(model.FieldKeywords, kws...)))
	if err != nil {
		return nil, err
	}

	merged := append([]model.Match(nil), direct...)
	seen := make(map[string]struct{}, len(direct))
	for _, m := range direct {
		seen[m.ID] = struct{}{}
	}
	for _, m := range byKeyword {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	return rank(merged, r.topK), nil
}

// dedupHighest keeps the highest scoring match per id at the position of
// its first occurrence; the first one wins ties.
func dedupHighest(matches []model.Match) []model.Match {
	out := make([]model.Match, 0, len(matches))
	pos := make(map[string]int, len(matches))
	for _, m := range matches {
		if i, ok := pos[m.ID]; ok {
			if m.Score > out[i].Score {
				out[i] = m
			}
			continue
		}
		pos[m.ID] = len(out)
		out = append(out, m)
	}
	return out
}

// rank sorts by descending score, keeping input order for equal scores,
// and truncates to topK.
func rank(matches []model.Match, topK int) []model.Match {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
