package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchProgramsTool returns the tool definition for search_programs
func searchProgramsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_programs",
		Description: "Find pharmaceutical discount programs by medication, generic name, manufacturer or program name. Uses semantic search with a keyword fallback.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free-text query, e.g. a medication name (at least 2 characters)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of programs to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// backfillEmbeddingsTool returns the tool definition for backfill_embeddings
func backfillEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "backfill_embeddings",
		Description: "Compute embeddings for active programs that do not have one yet",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report program counts and embedding coverage of the record store",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
