package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dshills/tome/internal/fetcher"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	domain := ""
	if raw := strings.TrimSpace(r.URL.Query().Get("domain")); raw != "" {
		normalized, err := fetcher.NormalizeDomain(raw)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		domain = normalized
	}

	status, err := s.storage.GetStatus(ctx, domain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body := map[string]any{
		"documents":       status.Documents,
		"sections":        status.Sections,
		"tokens":          status.Tokens,
		"index_size_mb":   status.IndexSizeMB,
		"cached_searches": s.engine.CacheLen(),
	}
	if !status.LastUpdatedAt.IsZero() {
		body["last_updated_at"] = status.LastUpdatedAt
	}

	if domain == "" {
		domains, err := s.storage.ListDomains(ctx)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		body["domains"] = domains
	} else {
		body["domain"] = domain
		if run := status.LastRun; run != nil {
			body["last_run"] = map[string]any{
				"inserted":    run.Inserted,
				"updated":     run.Updated,
				"skipped":     run.Skipped,
				"failed":      run.Failed,
				"pruned":      run.Pruned,
				"error":       run.Error,
				"started_at":  run.StartedAt,
				"finished_at": run.FinishedAt,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
