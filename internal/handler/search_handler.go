// Package handler holds the gin handlers of the HTTP API.
package handler

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/service"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

// filterFields are the metadata fields a search request may filter on.
var filterFields = map[string]struct{}{
	model.FieldSource:      {},
	model.FieldSubheading:  {},
	model.FieldFilename:    {},
	model.FieldKeywords:    {},
	model.FieldType:        {},
	model.FieldProgramName: {},
	model.FieldDegreeLevel: {},
}

// SearchHandler serves retrieval requests.
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler returns a SearchHandler.
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// SearchRequest is the body of POST /search. Each filter entry restricts a
// metadata field to one of the listed values.
type SearchRequest struct {
	Query  string              `json:"query" binding:"required"`
	Filter map[string][]string `json:"filter"`
}

// Search handles GET /search?query=...; any other query parameter naming a
// metadata field becomes a filter condition.
func (h *SearchHandler) Search(c *gin.Context) {
	req := SearchRequest{Query: c.Query("query"), Filter: map[string][]string{}}
	for field, values := range c.Request.URL.Query() {
		if field != "query" {
			req.Filter[field] = values
		}
	}
	h.search(c, req)
}

// SearchJSON handles POST /search.
func (h *SearchHandler) SearchJSON(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.search(c, req)
}

func (h *SearchHandler) search(c *gin.Context, req SearchRequest) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		log.Warnf("[SearchHandler] rejected search without query")
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
		return
	}
	filter, err := buildFilter(req.Filter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.searchService.Search(c.Request.Context(), q, filter)
	if err != nil {
		log.Errorf("[SearchHandler] search %q failed: %v", q, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "search backend unavailable", "outcome": resp.Outcome})
		return
	}
	log.Infof("[SearchHandler] %q returned %d results (%s)", q, len(resp.Results), resp.Outcome)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": resp, "message": "success"})
}

// buildFilter turns field -> values into a conjunction, one Eq or In per
// field. Unknown fields are rejected.
func buildFilter(fields map[string][]string) (vectorstore.Filter, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	conds := make([]vectorstore.Filter, 0, len(names))
	for _, name := range names {
		if _, ok := filterFields[name]; !ok {
			return vectorstore.Filter{}, fmt.Errorf("%w: cannot filter on %s", vectorstore.ErrInvalidFilter, name)
		}
		if values := fields[name]; len(values) == 1 {
			conds = append(conds, vectorstore.Eq(name, values[0]))
		} else {
			conds = append(conds, vectorstore.In(name, values...))
		}
	}
	filter := vectorstore.And(conds...)
	if err := filter.Validate(); err != nil {
		return vectorstore.Filter{}, err
	}
	return filter, nil
}
