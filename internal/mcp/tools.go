package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/config"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeBackfillInProgress = -32002 // Another backfill run is active
	ErrorCodeSearchUnavailable  = -32005 // Record store cannot serve queries
)

const (
	maxToolLimit              = config.DefaultMaxLimit
	searchUnavailableMessage  = "search unavailable, try again later"
	backfillInProgressMessage = "an embedding backfill is already running"
	statusUnavailableMessage  = "status unavailable"
)

// handleSearchPrograms handles the search_programs tool invocation
func (s *Server) handleSearchPrograms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or not a string",
		})
	}

	limit, ok := getIntDefault(args, "limit", config.DefaultLimit)
	if !ok || limit < 1 || limit > maxToolLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be an integer between 1 and %d", maxToolLimit), map[string]interface{}{
			"param": "limit",
			"value": args["limit"],
		})
	}

	res, err := s.router.Search(ctx, query, limit)
	if err != nil {
		if errors.Is(err, types.ErrSearchUnavailable) {
			s.log.Error("search_programs failed", "error", err)
			return nil, newMCPError(ErrorCodeSearchUnavailable, searchUnavailableMessage, nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(res.Programs))
	for i, p := range res.Programs {
		entry := programJSON(p)
		if i < len(res.Similarities) {
			entry["similarity"] = res.Similarities[i]
		}
		results[i] = entry
	}

	response := map[string]interface{}{
		"query":       strings.TrimSpace(query),
		"method":      res.Method,
		"results":     results,
		"total":       len(results),
		"duration_ms": res.Duration.Milliseconds(),
	}
	if res.FallbackReason != "" {
		response["fallback_reason"] = res.FallbackReason
	}
	if res.Method == types.MethodNone && utf8.RuneCountInString(strings.TrimSpace(query)) > 0 {
		response["message"] = "query too short"
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBackfillEmbeddings handles the backfill_embeddings tool invocation
func (s *Server) handleBackfillEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.job.Run(ctx)
	if errors.Is(err, types.ErrBackfillInProgress) {
		return nil, newMCPError(ErrorCodeBackfillInProgress, backfillInProgressMessage, nil)
	}
	if stats == nil {
		s.log.Error("backfill_embeddings failed", "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "backfill failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"candidates":    stats.Candidates,
		"succeeded":     stats.Succeeded,
		"failed":        stats.Failed,
		"skipped":       stats.Skipped,
		"not_attempted": stats.NotAttempted,
		"aborted":       stats.Aborted,
		"duration_ms":   stats.Duration.Milliseconds(),
	}
	if errors.Is(err, types.ErrBackfillProviderDown) {
		response["provider_down"] = true
	}

	if msgs := stats.FailureMessages(); len(msgs) > 0 {
		// Include first few errors
		if len(msgs) > 5 {
			response["errors"] = msgs[:5]
			response["error_count"] = len(msgs)
		} else {
			response["errors"] = msgs
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.store.GetStatus(ctx)
	if err != nil {
		s.log.Error("get_status failed", "error", err)
		return nil, newMCPError(ErrorCodeSearchUnavailable, statusUnavailableMessage, nil)
	}

	response := map[string]interface{}{
		"backend": status.Backend,
		"statistics": map[string]interface{}{
			"total_programs":     status.TotalPrograms,
			"active_programs":    status.ActivePrograms,
			"embedded_programs":  status.EmbeddedPrograms,
			"missing_embeddings": status.MissingEmbeddings,
			"coverage":           fmt.Sprintf("%.2f", status.Coverage()),
		},
		"backfill_running": s.job.Running(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// programJSON renders a program without internal fields
func programJSON(p *types.Program) map[string]interface{} {
	out := map[string]interface{}{
		"id":              p.ID,
		"medication_name": p.MedicationName,
		"manufacturer":    p.Manufacturer,
		"program_name":    p.ProgramName,
	}
	optional := map[string]*string{
		"generic_name":         p.GenericName,
		"program_description":  p.ProgramDescription,
		"eligibility_criteria": p.EligibilityCriteria,
		"discount_amount":      p.DiscountAmount,
		"program_url":          p.ProgramURL,
		"phone_number":         p.PhoneNumber,
		"enrollment_process":   p.EnrollmentProcess,
		"required_documents":   p.RequiredDocuments,
	}
	for k, v := range optional {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

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

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter, falling back to defaultValue when
// the key is absent. ok is false when the value is present but is not a whole
// number that fits in an int32.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) (int, bool) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, true
	}
	switch val := raw.(type) {
	case float64:
		if val != math.Trunc(val) || val < math.MinInt32 || val > math.MaxInt32 {
			return 0, false
		}
		return int(val), true
	case int:
		return val, true
	default:
		return 0, false
	}
}
