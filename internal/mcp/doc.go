// Package mcp implements the Model Context Protocol (MCP) server for tome.
//
// The server exposes five tools to AI assistants:
//   - get: Read an ingested document, or the subtree under one heading
//   - search: Ranked full-text search over one domain
//   - toc: Show a document's heading tree
//   - ingest: Crawl a domain's llms.txt and store every linked document
//   - status: Report stored documents and the last crawl
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout carries only protocol messages.
//
// # Basic Usage
//
//	tome -transport stdio
//
// # Tool: get
//
//	Request:
//	{
//	  "name": "get",
//	  "arguments": {
//	    "domain": "llmstxt.org",
//	    "path": "FULL",
//	    "heading": "## Installation"
//	  }
//	}
//
// path accepts "INDEX" (/llms.txt, the default) and "FULL" (/llms-full.txt).
// Without heading the whole document is returned exactly as ingested.
//
// # Tool: search
//
//	Request:
//	{
//	  "name": "search",
//	  "arguments": {
//	    "domain": "llmstxt.org",
//	    "query": "\"rate limit\" -deprecated",
//	    "paths": ["/docs/api"],
//	    "limit": 5
//	  }
//	}
//
//	Response (markdown):
//	## 1. Limits
//	**Section:** API > Limits
//	**URL:** https://llmstxt.org/llms-full.txt
//	**Relevance:** 7.412
//
//	Requests over the **rate limit** receive a 429...
//
// # Tool: ingest
//
//	Request:
//	{
//	  "name": "ingest",
//	  "arguments": {"domain": "llmstxt.org", "max_depth": 2}
//	}
//
//	Response:
//	Ingested llmstxt.org: 41 documents (3 new, 1 updated, 37 unchanged), 212 sections
//
// Only one crawl per domain runs at a time.
//
// # Error Codes
//
//	-32602: Invalid params (missing domain, limit or max_depth out of range)
//	-32603: Internal error
//	-32002: A crawl of the domain is already running
//	-32004: Empty query
//	-32005: A document has an oversized span with no heading to split on
//	-32006: The domain could not be fetched
//
// A missing document or heading is not an error; the tool returns a short
// "not found" text so the assistant can try another path.
package mcp
