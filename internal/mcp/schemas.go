package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/tome/internal/indexer"
)

func domainProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Documentation domain (e.g. \"llmstxt.org\")",
	}
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Document path, \"INDEX\" for /llms.txt or \"FULL\" for /llms-full.txt",
		"default":     "INDEX",
	}
}

// getTool returns the tool definition for get
func getTool() mcp.Tool {
	return mcp.Tool{
		Name: "get",
		Description: "Get an ingested document, or one heading's subtree of it. " +
			"Start with path=\"INDEX\" to read the table of contents, then fetch specific documents.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"domain": domainProperty(),
				"path":   pathProperty(),
				"heading": map[string]interface{}{
					"type":        "string",
					"description": "Return only the sections under this heading (e.g. \"## Installation\" or \"Installation\")",
				},
			},
			Required: []string{"domain"},
		},
	}
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Full-text search over an ingested domain. Results carry heading breadcrumbs and highlighted snippets.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"domain": domainProperty(),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query: words, \"quoted phrases\", or, -excluded",
				},
				"paths": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Path prefixes to search within (empty searches every document)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
			},
			Required: []string{"domain", "query"},
		},
	}
}

// tocTool returns the tool definition for toc
func tocTool() mcp.Tool {
	return mcp.Tool{
		Name:        "toc",
		Description: "Show the heading tree of an ingested document",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"domain": domainProperty(),
				"path":   pathProperty(),
			},
			Required: []string{"domain"},
		},
	}
}

// ingestTool returns the tool definition for ingest
func ingestTool() mcp.Tool {
	return mcp.Tool{
		Name: "ingest",
		Description: "Ingest a domain's llms.txt documentation. Fetches /llms.txt, follows same-domain links " +
			"up to max_depth and stores every document as a section tree.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"domain": domainProperty(),
				"max_depth": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum link depth to follow (0 fetches only llms.txt)",
					"default":     indexer.DefaultMaxDepth,
					"minimum":     0,
					"maximum":     indexer.MaxDepth,
				},
			},
			Required: []string{"domain"},
		},
	}
}

// statusTool returns the tool definition for status
func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "status",
		Description: "Report stored documents, sections and the last crawl for a domain, or totals for every domain",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Domain to report on (omit for all domains)",
				},
			},
		},
	}
}
