package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/tome/internal/fetcher"
	"github.com/dshills/tome/internal/indexer"
	"github.com/dshills/tome/internal/query"
	"github.com/dshills/tome/internal/storage"
	"github.com/dshills/tome/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeIngestInProgress = -32002 // Another crawl of the domain is already running
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
	ErrorCodeUnsplittable     = -32005 // A document has an oversized span with no heading to split on
	ErrorCodeFetchFailed      = -32006 // The domain could not be fetched
)

// handleGet handles the get tool invocation
func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	domain, err := requireDomain(args)
	if err != nil {
		return nil, err
	}
	path := types.NormalizePath(getStringDefault(args, "path", types.PathIndex))
	heading := getStringDefault(args, "heading", "")

	missing := mcp.NewToolResultText(fmt.Sprintf("Document not found: %s%s", domain, path))
	if strings.TrimSpace(heading) != "" {
		_, err := s.engine.Document(ctx, domain, path)
		if errors.Is(err, storage.ErrNotFound) {
			return missing, nil
		}
		if err != nil {
			return nil, toolError(err, "get failed")
		}
	}

	text, err := s.engine.Subtree(ctx, domain, path, heading)
	if errors.Is(err, storage.ErrNotFound) {
		if strings.TrimSpace(heading) != "" {
			return mcp.NewToolResultText(fmt.Sprintf("Heading %q not found in %s%s", heading, domain, path)), nil
		}
		return missing, nil
	}
	if err != nil {
		return nil, toolError(err, "get failed")
	}

	return mcp.NewToolResultText(text), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	domain, err := requireDomain(args)
	if err != nil {
		return nil, err
	}

	q, ok := args["query"].(string)
	if !ok || strings.TrimSpace(q) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", query.DefaultLimit)
	if limit < 1 || limit > query.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", query.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	resp, err := s.engine.Search(ctx, query.SearchRequest{
		Domain:   domain,
		Query:    q,
		Paths:    getStringSlice(args, "paths"),
		Limit:    limit,
		UseCache: true,
	})
	if err != nil {
		return nil, toolError(err, "search failed")
	}

	s.logger.Debug("search", "domain", domain, "query", q, "results", resp.TotalResults, "cache_hit", resp.CacheHit)

	if len(resp.Results) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No results for %q in %s", q, domain)), nil
	}
	return mcp.NewToolResultText(formatSearchResults(resp.Results)), nil
}

// handleTOC handles the toc tool invocation
func (s *Server) handleTOC(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	domain, err := requireDomain(args)
	if err != nil {
		return nil, err
	}
	path := types.NormalizePath(getStringDefault(args, "path", types.PathIndex))

	entries, err := s.engine.TOC(ctx, domain, path)
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf("Document not found: %s%s", domain, path)), nil
	}
	if err != nil {
		return nil, toolError(err, "toc failed")
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No headings in %s%s", domain, path)), nil
	}

	var b strings.Builder
	writeTOC(&b, entries, 0)
	return mcp.NewToolResultText(b.String()), nil
}

// handleIngest handles the ingest tool invocation
func (s *Server) handleIngest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	domain, err := requireDomain(args)
	if err != nil {
		return nil, err
	}

	maxDepth := getIntDefault(args, "max_depth", s.defaultDepth)
	if maxDepth < 0 || maxDepth > indexer.MaxDepth {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("max_depth must be between 0 and %d", indexer.MaxDepth), map[string]interface{}{
			"param": "max_depth",
			"value": maxDepth,
		})
	}

	stats, err := s.indexer.IngestDomain(ctx, domain, maxDepth)
	if err != nil {
		return nil, toolError(err, "ingest failed")
	}

	return mcp.NewToolResultText(formatIngestResult(stats)), nil
}

// handleStatus handles the status tool invocation
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		// status takes no required arguments, so a bare call is fine
		args = map[string]interface{}{}
	}

	domain := ""
	if raw := strings.TrimSpace(getStringDefault(args, "domain", "")); raw != "" {
		normalized, err := fetcher.NormalizeDomain(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid domain", map[string]interface{}{
				"param":  "domain",
				"reason": err.Error(),
			})
		}
		domain = normalized
	}

	status, err := s.storage.GetStatus(ctx, domain)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"documents":     status.Documents,
			"sections":      status.Sections,
			"tokens":        status.Tokens,
			"index_size_mb": fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"cached_searches": s.engine.CacheLen(),
	}
	if !status.LastUpdatedAt.IsZero() {
		response["last_updated_at"] = status.LastUpdatedAt.Format(time.RFC3339)
	}

	if domain == "" {
		domains, err := s.storage.ListDomains(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to list domains", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["domains"] = domains
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	response["domain"] = domain
	response["ingested"] = status.Documents > 0

	docs, err := s.storage.ListDocuments(ctx, domain)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list documents", map[string]interface{}{
			"error": err.Error(),
		})
	}
	paths := make([]string, len(docs))
	for i, d := range docs {
		paths[i] = d.Path
	}
	response["documents"] = paths

	if run := status.LastRun; run != nil {
		lastRun := map[string]interface{}{
			"inserted":    run.Inserted,
			"updated":     run.Updated,
			"skipped":     run.Skipped,
			"failed":      run.Failed,
			"pruned":      run.Pruned,
			"started_at":  run.StartedAt.Format(time.RFC3339),
			"finished_at": run.FinishedAt.Format(time.RFC3339),
		}
		if run.Error != nil {
			lastRun["error"] = *run.Error
		}
		response["last_run"] = lastRun
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toolError maps a component error onto an MCP error code
func toolError(err error, message string) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrEmptyQuery):
		code = ErrorCodeEmptyQuery
	case errors.Is(err, indexer.ErrIngestInProgress):
		code = ErrorCodeIngestInProgress
	case errors.Is(err, types.ErrUnsplittable):
		code = ErrorCodeUnsplittable
	case fetcher.IsTransient(err),
		errors.Is(err, fetcher.ErrNotFound),
		errors.Is(err, fetcher.ErrUnsupportedContentType):
		code = ErrorCodeFetchFailed
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// requireDomain extracts and normalizes the domain parameter
func requireDomain(args map[string]interface{}) (string, error) {
	raw, ok := args["domain"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "domain parameter is required", map[string]interface{}{
			"param":  "domain",
			"reason": "missing or empty",
		})
	}
	domain, err := fetcher.NormalizeDomain(raw)
	if err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid domain", map[string]interface{}{
			"param":  "domain",
			"reason": err.Error(),
		})
	}
	return domain, nil
}

// formatSearchResults renders ranked sections as markdown
func formatSearchResults(results []types.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		title := r.Heading
		if title == "" {
			title = r.Path
		}
		fmt.Fprintf(&b, "## %d. %s\n", r.Rank, title)
		if len(r.Breadcrumb) > 0 {
			fmt.Fprintf(&b, "**Section:** %s\n", strings.Join(r.Breadcrumb, " > "))
		}
		fmt.Fprintf(&b, "**URL:** %s\n", r.URL)
		fmt.Fprintf(&b, "**Relevance:** %.3f\n", r.Score)
		fmt.Fprintf(&b, "\n%s\n", r.Snippet)
	}
	return b.String()
}

// formatIngestResult summarizes a crawl. Any failed document makes the
// whole crawl a failure, as does a crawl that stored nothing.
func formatIngestResult(stats *indexer.Statistics) string {
	stored := stats.Inserted + stats.Updated + stats.Skipped

	if stats.Failed > 0 {
		msgs := stats.ErrorMessages
		extra := ""
		if len(msgs) > 3 {
			extra = fmt.Sprintf(" (+%d more)", len(msgs)-3)
			msgs = msgs[:3]
		}
		return fmt.Sprintf("FAILED: %s - %d of %d documents failed: %s%s",
			stats.Domain, stats.Failed, stored+stats.Failed, strings.Join(msgs, "; "), extra)
	}

	if stored == 0 {
		return fmt.Sprintf("No documents found for %s", stats.Domain)
	}

	summary := fmt.Sprintf("Ingested %s: %d documents (%d new, %d updated, %d unchanged), %d sections",
		stats.Domain, stored, stats.Inserted, stats.Updated, stats.Skipped, stats.Sections)
	if stats.Pruned > 0 {
		summary += fmt.Sprintf(", %d removed", stats.Pruned)
	}
	if stats.Ignored > 0 {
		summary += fmt.Sprintf(" (%d links skipped)", stats.Ignored)
	}
	return summary
}

// writeTOC renders a heading tree as an indented markdown list
func writeTOC(b *strings.Builder, entries []*types.TOCEntry, depth int) {
	for _, e := range entries {
		fmt.Fprintf(b, "%s- %s\n", strings.Repeat("  ", depth), e.Heading)
		writeTOC(b, e.Children, depth+1)
	}
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter, dropping non-strings
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
