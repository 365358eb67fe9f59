package qdrant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage/storagetest"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw    string
		host   string
		port   int
		useTLS bool
		fails  bool
	}{
		{raw: "https://xyz.cloud.qdrant.io:6334", host: "xyz.cloud.qdrant.io", port: 6334, useTLS: true},
		{raw: "http://localhost:7000", host: "localhost", port: 7000},
		{raw: "qdrant.internal", host: "qdrant.internal", port: 6334, useTLS: true},
		{raw: "http://localhost:port", fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, port, useTLS, err := parseURL(tt.raw)
			if tt.fails {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.useTLS, useTLS)
		})
	}
}

func TestPointID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id))

	derived := pointID("program-42")
	_, err := uuid.Parse(derived)
	require.NoError(t, err)
	assert.Equal(t, derived, pointID("program-42"))
	assert.NotEqual(t, derived, pointID("program-43"))
}

func TestBuildPoint(t *testing.T) {
	p := &types.Program{ID: "program-1", MedicationName: "Mounjaro", Active: true}
	point := buildPoint(p, []float32{0.1, 0.2})

	assert.Equal(t, pointID("program-1"), point.GetId().GetUuid())
	assert.Equal(t, "program-1", point.GetPayload()[payloadProgramID].GetStringValue())
	assert.True(t, point.GetPayload()[payloadActive].GetBoolValue())
	assert.Equal(t, "Mounjaro", point.GetPayload()[payloadName].GetStringValue())
}

func TestBuildQuery(t *testing.T) {
	q := buildQuery("programs", []float32{1, 0}, 0.2, 10)
	assert.Equal(t, "programs", q.GetCollectionName())
	assert.Equal(t, uint64(20), q.GetLimit())
	assert.InDelta(t, 0.2, q.GetScoreThreshold(), 1e-6)
	require.Len(t, q.GetFilter().GetMust(), 1)

	unbounded := buildQuery("programs", []float32{1, 0}, 0, 0)
	assert.Equal(t, uint64(1000), unbounded.GetLimit())
}

func TestHydrate(t *testing.T) {
	programs := []*types.Program{
		{ID: "a", MedicationName: "Ozempic", Active: true},
		{ID: "b", MedicationName: "Mounjaro", Active: true},
		{ID: "c", MedicationName: "Zepbound", Active: false},
		{ID: "d", MedicationName: "Unscored", Active: true},
	}
	scores := map[string]float64{"a": 0.5, "b": 0.9, "c": 0.95}

	hits := hydrate(scores, programs, 0.2, 10)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].Program.ID)
	assert.Equal(t, "a", hits[1].Program.ID)

	assert.Len(t, hydrate(scores, programs, 0.2, 1), 1)
	assert.Empty(t, hydrate(scores, programs, 0.99, 10))
}

func TestEmbeddedProgramsDropsStalePoints(t *testing.T) {
	base := storagetest.New()
	base.Put(&types.Program{ID: "a", MedicationName: "Ozempic", Manufacturer: "Novo Nordisk", ProgramName: "NovoCare", Active: true}, []float32{1, 0})
	base.Put(&types.Program{ID: "b", MedicationName: "Mounjaro", Manufacturer: "Eli Lilly", ProgramName: "Savings", Active: true}, nil)
	base.Put(&types.Program{ID: "c", MedicationName: "Zepbound", Manufacturer: "Eli Lilly", ProgramName: "LillyDirect", Active: false}, []float32{0, 1})
	store := &Store{Store: base, collection: "programs"}
	ctx := context.Background()

	programs, err := store.embeddedPrograms(ctx, []string{"a", "b", "c", "missing"})
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, "a", programs[0].ID)

	scores := map[string]float64{"a": 0.8, "b": 0.99, "c": 0.95}
	hits := hydrate(scores, programs, 0.2, 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Program.ID)

	empty, err := store.embeddedPrograms(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	base.LexicalErr = types.ErrStoreUnavailable
	_, err = store.embeddedPrograms(ctx, []string{"a"})
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
}
