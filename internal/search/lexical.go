package search

import (
	"context"
	"strings"
	"time"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/logger"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// Lexical matches the query as a case-insensitive substring of any lexical field
type Lexical struct {
	store        storage.Store
	storeTimeout time.Duration
	log          *logger.Logger
}

// NewLexical builds a lexical search over store. A nil log discards output.
func NewLexical(store storage.Store, storeTimeout time.Duration, log *logger.Logger) *Lexical {
	if log == nil {
		log = logger.Nop()
	}
	return &Lexical{store: store, storeTimeout: storeTimeout, log: log}
}

// Search returns active programs ordered by medication name. A blank query
// returns no programs without touching the store.
func (l *Lexical) Search(ctx context.Context, query string, limit int) ([]*types.Program, error) {
	term := strings.TrimSpace(query)
	if term == "" {
		return []*types.Program{}, nil
	}

	ctx, cancel := withTimeout(ctx, l.storeTimeout)
	defer cancel()

	programs, err := l.store.SearchLexical(ctx, storage.LexicalMatch(term), limit)
	if err != nil {
		l.log.Warn("lexical store query failed", "error", err)
		return nil, err
	}
	if limit > 0 && len(programs) > limit {
		programs = programs[:limit]
	}
	l.log.Debug("lexical query matched", "results", len(programs), "limit", limit)
	return programs, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
