// Package mcp implements the Model Context Protocol (MCP) server for discount program search.
//
// The MCP server exposes three tools to AI assistants:
//   - search_programs: Find discount programs for a medication, manufacturer or program name
//   - backfill_embeddings: Embed active programs that have no embedding yet
//   - get_status: Report program counts and embedding coverage
//
// The server speaks JSON-RPC 2.0 over stdio and is started with:
//
//	discountsearch mcp
//
// Logs go to stderr; stdout is reserved for protocol messages.
//
// # Tool: search_programs
//
//	Request:
//	{
//	  "name": "search_programs",
//	  "arguments": {"query": "mounjaro", "limit": 5}
//	}
//
//	Response:
//	{
//	  "method": "semantic",
//	  "query": "mounjaro",
//	  "results": [
//	    {
//	      "id": "p1",
//	      "medication_name": "Mounjaro",
//	      "manufacturer": "Eli Lilly",
//	      "program_name": "Mounjaro Savings Card",
//	      "similarity": 0.83
//	    }
//	  ],
//	  "total": 1,
//	  "duration_ms": 12
//	}
//
// When semantic retrieval is unavailable or finds nothing above the
// similarity threshold, "method" is "lexical" and "fallback_reason" names
// the cause.
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing query, limit out of range)
//   - -32603: Internal error
//   - -32002: Backfill in progress
//   - -32005: Search unavailable (record store outage)
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "discounts": {
//	      "command": "/usr/local/bin/discountsearch",
//	      "args": ["mcp"],
//	      "env": {
//	        "DATABASE_URL": "postgres://...",
//	        "JINA_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
package mcp
