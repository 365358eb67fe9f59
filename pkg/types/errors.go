package types

import (
	"errors"
	"fmt"
)

// Search and backfill errors
var (
	// Query errors
	ErrInvalidQuery = errors.New("invalid query")

	// Retrieval errors
	ErrProviderUnavailable   = errors.New("embedding provider unavailable")
	ErrSimilarityUnavailable = errors.New("similarity search unavailable")
	ErrStoreUnavailable      = errors.New("record store unavailable")
	ErrSearchUnavailable     = errors.New("search unavailable")

	// Backfill errors
	ErrBackfillProviderDown = errors.New("embedding provider down for backfill run")
	ErrBackfillInProgress   = errors.New("backfill already in progress")
)

// BackfillItemError records the failure of a single program during a backfill run.
type BackfillItemError struct {
	ProgramID string
	Err       error
}

func (e *BackfillItemError) Error() string {
	return fmt.Sprintf("backfill program %s: %v", e.ProgramID, e.Err)
}

func (e *BackfillItemError) Unwrap() error {
	return e.Err
}
