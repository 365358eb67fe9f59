package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/backfill"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/logger"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/search"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// StatusClientClosedRequest is recorded when the caller went away before the
// response was ready. Nothing is written to the connection.
const StatusClientClosedRequest = 499

var (
	errSearchUnavailable = errors.New("search is temporarily unavailable")
	errStatusUnavailable = errors.New("status is temporarily unavailable")
)

// ProgramHit is one search result. Similarity is set for semantic results only.
type ProgramHit struct {
	*types.Program
	Similarity *float64 `json:"similarity,omitempty"`
}

// SearchResponse is the body of GET /api/programs/search
type SearchResponse struct {
	Query          string             `json:"query"`
	Method         types.SearchMethod `json:"method"`
	FallbackReason string             `json:"fallback_reason,omitempty"`
	Results        []ProgramHit       `json:"results"`
	Total          int                `json:"total"`
	DurationMS     int64              `json:"duration_ms"`
}

// BackfillResponse is the body of POST /api/embeddings/backfill
type BackfillResponse struct {
	*backfill.Stats
	ProviderDown bool     `json:"provider_down,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	*storage.Status
	Coverage        float64 `json:"coverage"`
	BackfillRunning bool    `json:"backfill_running"`
}

type SearchHandler struct {
	router   *search.Router
	maxLimit int
	log      *logger.Logger
}

func NewSearchHandler(router *search.Router, maxLimit int, log *logger.Logger) *SearchHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SearchHandler{router: router, maxLimit: maxLimit, log: log}
}

// GET /api/programs/search?q=...&limit=...
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || (h.maxLimit > 0 && n > h.maxLimit) {
			RespondError(c, http.StatusBadRequest, CodeInvalidLimit, fmt.Errorf("limit must be an integer between 1 and %d", h.maxLimit))
			return
		}
		limit = n
	}

	res, err := h.router.Search(c.Request.Context(), query, limit)
	if clientGone(c, err) {
		h.log.Debug("search abandoned by client", "error", err)
		return
	}
	if err != nil {
		h.log.Error("search failed", "error", err)
		RespondError(c, http.StatusServiceUnavailable, CodeSearchUnavailable, errSearchUnavailable)
		return
	}

	hits := make([]ProgramHit, len(res.Programs))
	for i, p := range res.Programs {
		hits[i] = ProgramHit{Program: p}
		if i < len(res.Similarities) {
			sim := res.Similarities[i]
			hits[i].Similarity = &sim
		}
	}

	RespondOK(c, SearchResponse{
		Query:          strings.TrimSpace(query),
		Method:         res.Method,
		FallbackReason: res.FallbackReason,
		Results:        hits,
		Total:          len(hits),
		DurationMS:     res.Duration.Milliseconds(),
	})
}

type BackfillHandler struct {
	job *backfill.Job
	log *logger.Logger
}

func NewBackfillHandler(job *backfill.Job, log *logger.Logger) *BackfillHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &BackfillHandler{job: job, log: log}
}

// POST /api/embeddings/backfill
func (h *BackfillHandler) Run(c *gin.Context) {
	stats, err := h.job.Run(c.Request.Context())
	if errors.Is(err, types.ErrBackfillInProgress) {
		RespondError(c, http.StatusConflict, CodeBackfillInProgress, err)
		return
	}
	if stats == nil && clientGone(c, err) {
		h.log.Debug("backfill abandoned by client", "error", err)
		return
	}
	if stats == nil {
		h.log.Error("backfill failed", "error", err)
		RespondError(c, http.StatusServiceUnavailable, CodeBackfillFailed, errors.New("backfill could not start"))
		return
	}

	RespondOK(c, BackfillResponse{
		Stats:        stats,
		ProviderDown: errors.Is(err, types.ErrBackfillProviderDown),
		Errors:       stats.FailureMessages(),
	})
}

type StatusHandler struct {
	store storage.Store
	job   *backfill.Job
	log   *logger.Logger
}

func NewStatusHandler(store storage.Store, job *backfill.Job, log *logger.Logger) *StatusHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &StatusHandler{store: store, job: job, log: log}
}

// GET /api/status
func (h *StatusHandler) Status(c *gin.Context) {
	status, err := h.store.GetStatus(c.Request.Context())
	if clientGone(c, err) {
		h.log.Debug("status abandoned by client", "error", err)
		return
	}
	if err != nil {
		h.log.Error("status failed", "error", err)
		RespondError(c, http.StatusServiceUnavailable, CodeStatusUnavailable, errStatusUnavailable)
		return
	}

	resp := StatusResponse{Status: status, Coverage: status.Coverage()}
	if h.job != nil {
		resp.BackfillRunning = h.job.Running()
	}
	RespondOK(c, resp)
}

// clientGone reports whether err is the request's own cancellation and, if so,
// aborts without a body
func clientGone(c *gin.Context, err error) bool {
	if !errors.Is(err, context.Canceled) || c.Request.Context().Err() == nil {
		return false
	}
	c.AbortWithStatus(StatusClientClosedRequest)
	return true
}

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
