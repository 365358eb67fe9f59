package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/backfill"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/embedder"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/logger"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/search"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage/storagetest"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testProgram(id, name, manufacturer string, active bool) *types.Program {
	return &types.Program{
		ID:             id,
		MedicationName: name,
		Manufacturer:   manufacturer,
		ProgramName:    name + " Savings Card",
		Active:         active,
	}
}

func newTestRouter(t *testing.T, store *storagetest.Store, origins ...string) (*gin.Engine, *backfill.Job) {
	t.Helper()
	emb, err := embedder.NewLocalProvider()
	require.NoError(t, err)

	job := backfill.NewJob(store, emb, backfill.WithWorkers(2))
	router := NewRouter(RouterConfig{
		SearchHandler:   NewSearchHandler(search.NewRouter(store, emb), 100, nil),
		BackfillHandler: NewBackfillHandler(job, nil),
		StatusHandler:   NewStatusHandler(store, job, nil),
		CORSOrigins:     origins,
	})
	return router, job
}

func glp1Store() *storagetest.Store {
	return storagetest.New(
		testProgram("p1", "Mounjaro", "Eli Lilly", true),
		testProgram("p2", "Ozempic", "Novo Nordisk", true),
		testProgram("p3", "Mounjaro", "Eli Lilly", false),
	)
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthCheck(t *testing.T) {
	r, _ := newTestRouter(t, storagetest.New())

	rec := do(r, http.MethodGet, "/healthcheck")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSearchEndpoint(t *testing.T) {
	store := glp1Store()
	r, _ := newTestRouter(t, store)

	t.Run("lexical before backfill", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/api/programs/search?q=mounjaro")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[SearchResponse](t, rec)
		assert.Equal(t, types.MethodLexical, body.Method)
		assert.Equal(t, search.ReasonEmptySemanticResult, body.FallbackReason)
		require.Len(t, body.Results, 1)
		assert.Equal(t, "p1", body.Results[0].ID)
		assert.Nil(t, body.Results[0].Similarity)
	})

	t.Run("semantic after backfill", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/api/embeddings/backfill")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(r, http.MethodGet, "/api/programs/search?q=Mounjaro&limit=5")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[SearchResponse](t, rec)
		assert.Equal(t, types.MethodSemantic, body.Method)
		assert.Empty(t, body.FallbackReason)
		require.NotEmpty(t, body.Results)
		assert.Equal(t, "p1", body.Results[0].ID)
		require.NotNil(t, body.Results[0].Similarity)
		assert.GreaterOrEqual(t, *body.Results[0].Similarity, 0.2)
		for _, hit := range body.Results {
			assert.NotEqual(t, "p3", hit.ID)
			assert.True(t, hit.Active)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/api/programs/search")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[SearchResponse](t, rec)
		assert.Equal(t, types.MethodNone, body.Method)
		assert.Empty(t, body.Results)
		assert.NotNil(t, body.Results)
	})
}

func TestSearchEndpoint_InvalidLimit(t *testing.T) {
	r, _ := newTestRouter(t, glp1Store())

	for _, limit := range []string{"0", "-1", "101", "ten"} {
		t.Run(limit, func(t *testing.T) {
			rec := do(r, http.MethodGet, "/api/programs/search?q=ozempic&limit="+limit)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			body := decode[ErrorEnvelope](t, rec)
			assert.Equal(t, CodeInvalidLimit, body.Error.Code)
		})
	}
}

func TestSearchEndpoint_StoreOutage(t *testing.T) {
	store := glp1Store()
	store.SimilarityErr = types.ErrStoreUnavailable
	store.LexicalErr = types.ErrStoreUnavailable
	r, _ := newTestRouter(t, store)

	rec := do(r, http.MethodGet, "/api/programs/search?q=mounjaro")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decode[ErrorEnvelope](t, rec)
	assert.Equal(t, CodeSearchUnavailable, body.Error.Code)
	assert.NotContains(t, body.Error.Message, "record store")
}

func TestSearchEndpoint_ClientCancelled(t *testing.T) {
	store := glp1Store()
	store.SimilarityErr = context.Canceled
	store.LexicalErr = context.Canceled

	core, logs := observer.New(zap.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}
	emb, err := embedder.NewLocalProvider()
	require.NoError(t, err)
	r := NewRouter(RouterConfig{
		SearchHandler:   NewSearchHandler(search.NewRouter(store, emb), 100, log),
		BackfillHandler: NewBackfillHandler(backfill.NewJob(store, emb), log),
		StatusHandler:   NewStatusHandler(store, nil, log),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/programs/search?q=mounjaro", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, StatusClientClosedRequest, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "a departed client is not a server error")
	assert.Equal(t, 1, logs.FilterMessage("search abandoned by client").Len())
}

func TestBackfillEndpoint(t *testing.T) {
	store := glp1Store()
	r, _ := newTestRouter(t, store)

	rec := do(r, http.MethodPost, "/api/embeddings/backfill")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]interface{}](t, rec)
	assert.EqualValues(t, 2, body["candidates"])
	assert.EqualValues(t, 2, body["succeeded"])
	assert.EqualValues(t, 0, body["failed"])
	assert.NotContains(t, body, "provider_down")
	assert.NotContains(t, body, "errors")

	_, embedded := store.Embedding("p3")
	assert.False(t, embedded)
}

func TestBackfillEndpoint_InProgress(t *testing.T) {
	store := glp1Store()
	r, job := newTestRouter(t, store)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store.UpdateHook = func(id string) {
		once.Do(func() { close(started) })
		<-release
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = job.Run(t.Context())
	}()
	<-started

	rec := do(r, http.MethodPost, "/api/embeddings/backfill")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeBackfillInProgress, decode[ErrorEnvelope](t, rec).Error.Code)

	rec = do(r, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]interface{}](t, rec)["backfill_running"])

	close(release)
	<-done
}

func TestBackfillEndpoint_StoreUnavailable(t *testing.T) {
	store := glp1Store()
	store.FindMissingErr = types.ErrStoreUnavailable
	r, _ := newTestRouter(t, store)

	rec := do(r, http.MethodPost, "/api/embeddings/backfill")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeBackfillFailed, decode[ErrorEnvelope](t, rec).Error.Code)
}

func TestStatusEndpoint(t *testing.T) {
	store := glp1Store()
	store.Put(testProgram("p1", "Mounjaro", "Eli Lilly", true), []float32{1, 0})
	r, _ := newTestRouter(t, store)

	rec := do(r, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "memory", body["backend"])
	assert.EqualValues(t, 3, body["total_programs"])
	assert.EqualValues(t, 2, body["active_programs"])
	assert.EqualValues(t, 1, body["embedded_programs"])
	assert.EqualValues(t, 1, body["missing_embeddings"])
	assert.InDelta(t, 0.5, body["coverage"], 1e-9)
	assert.Equal(t, false, body["backfill_running"])
}

func TestStatusEndpoint_StoreUnavailable(t *testing.T) {
	store := glp1Store()
	store.StatusErr = types.ErrStoreUnavailable
	r, _ := newTestRouter(t, store)

	rec := do(r, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeStatusUnavailable, decode[ErrorEnvelope](t, rec).Error.Code)
}

func TestCORS(t *testing.T) {
	t.Run("configured origin", func(t *testing.T) {
		r, _ := newTestRouter(t, glp1Store(), "https://discounts.example.com")

		req := httptest.NewRequest(http.MethodOptions, "/api/programs/search", nil)
		req.Header.Set("Origin", "https://discounts.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://discounts.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin rejected", func(t *testing.T) {
		r, _ := newTestRouter(t, glp1Store(), "https://discounts.example.com")

		req := httptest.NewRequest(http.MethodGet, "/api/programs/search?q=ozempic", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("all origins when unset", func(t *testing.T) {
		r, _ := newTestRouter(t, glp1Store())

		req := httptest.NewRequest(http.MethodGet, "/api/programs/search?q=ozempic", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestIDPropagated(t *testing.T) {
	r, _ := newTestRouter(t, storagetest.New())

	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
