package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// stalledServer accepts requests and never answers until the test ends
func stalledServer(t *testing.T) *Store {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	store, err := New(srv.URL, "service-key")
	require.NoError(t, err)
	return store
}

func TestStoreHonorsDeadline(t *testing.T) {
	store := stalledServer(t)
	vec := []float32{0.6, 0.8}

	tests := []struct {
		name    string
		call    func(ctx context.Context) error
		wantErr error
	}{
		{"search lexical", func(ctx context.Context) error {
			_, err := store.SearchLexical(ctx, storage.LexicalMatch("mounjaro"), 10)
			return err
		}, types.ErrStoreUnavailable},
		{"search by similarity", func(ctx context.Context) error {
			_, err := store.SearchBySimilarity(ctx, vec, 0.2, 10)
			return err
		}, types.ErrSimilarityUnavailable},
		{"find missing", func(ctx context.Context) error {
			_, err := store.FindActiveMissingEmbedding(ctx)
			return err
		}, types.ErrStoreUnavailable},
		{"update embedding", func(ctx context.Context) error {
			return store.UpdateEmbedding(ctx, "p1", vec)
		}, types.ErrStoreUnavailable},
		{"get programs", func(ctx context.Context) error {
			_, err := store.GetPrograms(ctx, []string{"p1"})
			return err
		}, types.ErrStoreUnavailable},
		{"get status", func(ctx context.Context) error {
			_, err := store.GetStatus(ctx)
			return err
		}, types.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			err := tt.call(ctx)
			elapsed := time.Since(start)

			require.Error(t, err)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Less(t, elapsed, time.Second)
		})
	}
}

func TestStoreCancelledContext(t *testing.T) {
	store := stalledServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := store.SearchLexical(ctx, storage.LexicalMatch("ozempic"), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStoreResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case q.Get("select") == "id":
			total := 3
			if q.Get("embedding") != "" {
				total = 1
			} else if q.Get("active") != "" {
				total = 2
			}
			w.Header().Set("Content-Range", fmt.Sprintf("0-0/%d", total))
			_, _ = w.Write([]byte(`[]`))
		default:
			_, _ = w.Write([]byte(`[
				{"id": "p2", "medication_name": "ozempic", "manufacturer": "Novo Nordisk", "program_name": "Savings", "active": true},
				{"id": "p1", "medication_name": "Mounjaro", "manufacturer": "Eli Lilly", "program_name": "Savings Card", "active": true}
			]`))
		}
	}))
	defer srv.Close()

	store, err := New(srv.URL, "service-key")
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("lexical results are ordered case-insensitively and truncated", func(t *testing.T) {
		programs, err := store.SearchLexical(ctx, storage.LexicalMatch("savings"), 1)
		require.NoError(t, err)
		require.Len(t, programs, 1)
		assert.Equal(t, "p1", programs[0].ID)
	})

	t.Run("status counts", func(t *testing.T) {
		status, err := store.GetStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, status.TotalPrograms)
		assert.Equal(t, 2, status.ActivePrograms)
		assert.Equal(t, 1, status.EmbeddedPrograms)
		assert.Equal(t, 1, status.MissingEmbeddings)
	})
}
