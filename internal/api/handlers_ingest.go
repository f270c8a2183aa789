package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dshills/tome/internal/fetcher"
	"github.com/dshills/tome/internal/indexer"
	"github.com/dshills/tome/internal/storage"
	"github.com/dshills/tome/pkg/types"
)

type ingestDomainRequest struct {
	MaxDepth *int `json:"max_depth"`
}

type ingestDocumentRequest struct {
	Path    string `json:"path"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// handleIngestDomain crawls the domain's llms.txt. The body is optional.
func (s *Server) handleIngestDomain(w http.ResponseWriter, r *http.Request) {
	var req ingestDomainRequest
	if err := decodeOptional(r, &req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	depth := s.defaultDepth
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}
	if depth < 0 || depth > indexer.MaxDepth {
		jsonError(w, fmt.Sprintf("max_depth must be between 0 and %d", indexer.MaxDepth), http.StatusBadRequest)
		return
	}

	stats, err := s.indexer.IngestDomain(r.Context(), domainFrom(r), depth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"domain":      stats.Domain,
		"inserted":    stats.Inserted,
		"updated":     stats.Updated,
		"skipped":     stats.Skipped,
		"failed":      stats.Failed,
		"ignored":     stats.Ignored,
		"pruned":      stats.Pruned,
		"sections":    stats.Sections,
		"duration_ms": stats.Duration.Milliseconds(),
		"errors":      stats.ErrorMessages,
	})
}

// handleIngestDocument stores caller-supplied text as one document without
// fetching anything.
func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, fetcher.MaxBodyBytes+1024*1024)

	var req ingestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		jsonError(w, "path is required", http.StatusBadRequest)
		return
	}

	res, err := s.indexer.Ingest(r.Context(), indexer.IngestRequest{
		Domain:  domainFrom(r),
		Path:    req.Path,
		URL:     req.URL,
		Content: req.Content,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	code := http.StatusOK
	if res.Status == indexer.StatusInserted {
		code = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":      res.Status,
		"document_id": res.DocumentID,
		"path":        types.NormalizePath(req.Path),
		"sections":    res.Sections,
		"tokens":      res.Tokens,
	})
}

// handleDeleteDomain removes every document stored for the domain.
func (s *Server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	domain := domainFrom(r)

	deleted, err := s.storage.DeleteDocumentsByDomain(r.Context(), domain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.engine.InvalidateCache(domain)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"domain":  domain,
		"deleted": deleted,
	})
}

// decodeOptional decodes a JSON body, treating an empty body as {}.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps a component error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, indexer.ErrIngestInProgress):
		return http.StatusConflict
	case errors.Is(err, types.ErrUnsplittable):
		return http.StatusUnprocessableEntity
	case fetcher.IsTransient(err),
		errors.Is(err, fetcher.ErrNotFound),
		errors.Is(err, fetcher.ErrUnsupportedContentType):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	jsonError(w, err.Error(), code)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
