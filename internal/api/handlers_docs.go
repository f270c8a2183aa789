package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dshills/tome/internal/query"
	"github.com/dshills/tome/pkg/types"
)

// handleGetDocument returns a stored document, or the subtree under the
// heading query parameter, as markdown.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	domain := domainFrom(r)
	path := types.NormalizePath(r.URL.Query().Get("path"))
	heading := r.URL.Query().Get("heading")

	text, err := s.engine.Subtree(r.Context(), domain, path, heading)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(text))
}

// handleTOC returns a document's heading tree.
func (s *Server) handleTOC(w http.ResponseWriter, r *http.Request) {
	domain := domainFrom(r)
	path := types.NormalizePath(r.URL.Query().Get("path"))

	entries, err := s.engine.TOC(r.Context(), domain, path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"domain": domain,
		"path":   path,
		"toc":    entries,
	})
}

// handleSearch runs a ranked full-text query. Repeated path parameters
// restrict the search to those path prefixes.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	limit := 0
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > query.MaxLimit {
			jsonError(w, "limit must be an integer between 1 and "+strconv.Itoa(query.MaxLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	resp, err := s.engine.Search(r.Context(), query.SearchRequest{
		Domain:   domainFrom(r),
		Query:    params.Get("q"),
		Paths:    params["path"],
		Limit:    limit,
		UseCache: true,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results := make([]map[string]any, 0, len(resp.Results))
	for _, res := range resp.Results {
		results = append(results, map[string]any{
			"rank":       res.Rank,
			"score":      res.Score,
			"section_id": res.SectionID,
			"heading":    res.Heading,
			"breadcrumb": strings.Join(res.Breadcrumb, " > "),
			"snippet":    res.Snippet,
			"url":        res.URL,
			"path":       res.Path,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"results":     results,
		"total":       resp.TotalResults,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	})
}
