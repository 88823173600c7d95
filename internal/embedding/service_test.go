package embedding

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fablekit/loreindex/internal/provider"
	"github.com/fablekit/loreindex/internal/store"
)

// fakeProvider returns canned vectors and counts embed calls.
type fakeProvider struct {
	dim     int
	model   string
	embedFn func(texts []string) ([][]float32, error)
	calls   int
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.embedFn != nil {
		return f.embedFn(texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(i + 1)
		out[i] = vec
	}
	return out, nil
}

func (f *fakeProvider) Generate(context.Context, provider.GenerateRequest) (*provider.GenerateResult, error) {
	return nil, provider.ErrUnsupportedOperation
}

func (f *fakeProvider) StreamGenerate(context.Context, provider.GenerateRequest) (<-chan provider.StreamChunk, error) {
	return nil, provider.ErrUnsupportedOperation
}

func (f *fakeProvider) HealthCheck(context.Context) (*provider.Health, error) {
	return &provider.Health{Status: provider.Healthy}, nil
}

func (f *fakeProvider) Metadata() provider.Metadata {
	return provider.Metadata{
		ProviderID:         provider.Local,
		SupportsEmbeddings: true,
		EmbeddingModel:     f.model,
		EmbeddingDimension: f.dim,
	}
}

func (f *fakeProvider) Close() error { return nil }

var _ provider.Provider = (*fakeProvider)(nil)

func newTestService(t *testing.T, p provider.Provider) *Service {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := store.New(db)
	require.NoError(t, err)

	svc, err := NewService(p, st, t.TempDir(), nil)
	require.NoError(t, err)
	return svc
}

func putRecord(t *testing.T, svc *Service, objectID, model string, vec []float32) {
	t.Helper()
	require.NoError(t, svc.Store().ReplaceBatch(context.Background(), []store.Record{{
		ID:          objectID + "-" + model,
		ObjectType:  store.ObjectTypeEntity,
		ObjectID:    objectID,
		Vector:      vec,
		VectorDim:   len(vec),
		Model:       model,
		ContentHash: "h",
	}}))
}

func TestEmbedBatchPassesThrough(t *testing.T) {
	p := &fakeProvider{dim: 3, model: "m"}
	svc := newTestService(t, p)

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 3)
	assert.Equal(t, 1, p.calls)
}

func TestEmbedBatchRejectsWrongDimension(t *testing.T) {
	p := &fakeProvider{dim: 3, model: "m", embedFn: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 2}}, nil // 2-dim vector against a 3-dim provider
	}}
	svc := newTestService(t, p)

	_, err := svc.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEmbedBatchRejectsWrongCount(t *testing.T) {
	p := &fakeProvider{dim: 2, model: "m", embedFn: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 2}}, nil
	}}
	svc := newTestService(t, p)

	_, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEmbedBatchPropagatesProviderError(t *testing.T) {
	p := &fakeProvider{dim: 2, model: "m", embedFn: func(texts []string) ([][]float32, error) {
		return nil, fmt.Errorf("boom: %w", provider.ErrTransport)
	}}
	svc := newTestService(t, p)

	_, err := svc.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, provider.ErrTransport)
}

func TestEmbedQuery(t *testing.T) {
	svc := newTestService(t, &fakeProvider{dim: 2, model: "m"})

	vec, err := svc.EmbedQuery(context.Background(), "where is the sword")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
}

func TestValidateEmbeddingSoftCheck(t *testing.T) {
	svc := newTestService(t, &fakeProvider{dim: 3, model: "m"})

	assert.True(t, svc.ValidateEmbedding([]float32{1, 2, 3}))
	assert.False(t, svc.ValidateEmbedding([]float32{1, 2}))
	assert.False(t, svc.ValidateEmbedding(nil))
}

func TestEmbeddingsByModelDefaultsToActive(t *testing.T) {
	svc := newTestService(t, &fakeProvider{dim: 2, model: "active-model"})
	ctx := context.Background()

	putRecord(t, svc, "hero", "active-model", []float32{1, 0})
	putRecord(t, svc, "villain", "other-model", []float32{0, 1})

	rows, err := svc.EmbeddingsByModel(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hero", rows[0].ObjectID)
}

func TestEmbeddingsByModelSkipsStaleDimensions(t *testing.T) {
	svc := newTestService(t, &fakeProvider{dim: 2, model: "m"})
	ctx := context.Background()

	putRecord(t, svc, "current", "m", []float32{1, 0})
	putRecord(t, svc, "stale", "m", []float32{1, 0, 0}) // written under a 3-dim provider

	rows, err := svc.EmbeddingsByModel(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "current", rows[0].ObjectID)
}

func TestDeleteByModel(t *testing.T) {
	svc := newTestService(t, &fakeProvider{dim: 2, model: "m"})
	ctx := context.Background()

	putRecord(t, svc, "hero", "m", []float32{1, 0})
	putRecord(t, svc, "villain", "m", []float32{0, 1})

	n, err := svc.DeleteByModel(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := svc.CountByModel(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRebuildIndexWritesSidecar(t *testing.T) {
	svc := newTestService(t, &fakeProvider{dim: 2, model: "m"})
	ctx := context.Background()

	putRecord(t, svc, "hero", "m", []float32{1, 0})
	putRecord(t, svc, "stale", "m", []float32{1, 0, 0})

	meta, err := svc.RebuildIndex(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "m", meta.Model)
	assert.Equal(t, 2, meta.Dimension)
	assert.Equal(t, 1, meta.Count) // stale row excluded
	assert.False(t, meta.UpdatedAt.IsZero())

	read, err := svc.IndexMetadataFor("m", "")
	require.NoError(t, err)
	assert.Equal(t, meta.Count, read.Count)
}

func TestRebuildIndexKeepsWorldSnapshotsSeparate(t *testing.T) {
	svc := newTestService(t, &fakeProvider{dim: 2, model: "m"})
	ctx := context.Background()

	require.NoError(t, svc.Store().ReplaceBatch(ctx, []store.Record{
		{ID: "r1", ObjectType: store.ObjectTypeEntity, ObjectID: "hero", WorldID: "w-a", Vector: []float32{1, 0}, VectorDim: 2, Model: "m", ContentHash: "h"},
		{ID: "r2", ObjectType: store.ObjectTypeEntity, ObjectID: "rival", WorldID: "w-b", Vector: []float32{0, 1}, VectorDim: 2, Model: "m", ContentHash: "h"},
		{ID: "r3", ObjectType: store.ObjectTypeEntity, ObjectID: "ally", WorldID: "w-b", Vector: []float32{1, 1}, VectorDim: 2, Model: "m", ContentHash: "h"},
	}))

	_, err := svc.RebuildIndex(ctx, "w-a")
	require.NoError(t, err)
	_, err = svc.RebuildIndex(ctx, "w-b")
	require.NoError(t, err)

	// Each world keeps its own snapshot; the later rebuild must not
	// overwrite the earlier one.
	a, err := svc.IndexMetadataFor("m", "w-a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Count)
	assert.Equal(t, "w-a", a.WorldID)

	b, err := svc.IndexMetadataFor("m", "w-b")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Count)
	assert.Equal(t, "w-b", b.WorldID)
}

func TestEmbedQueryRecordsSingleMetric(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	svc := newTestService(t, &fakeProvider{dim: 2, model: "m"})
	svc.metrics = &Metrics{meter: mp.Meter(instrumentationName), logger: zap.NewNop()}
	svc.metrics.init()

	_, err := svc.EmbedQuery(context.Background(), "where is the sword")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	// One query is one recording, labeled embed_query only.
	ops := map[string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "loreindex.embedding.generation_duration_seconds" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			for _, dp := range hist.DataPoints {
				op, _ := dp.Attributes.Value("operation")
				ops[op.AsString()] += dp.Count
			}
		}
	}
	assert.Equal(t, map[string]uint64{"embed_query": 1}, ops)
}
