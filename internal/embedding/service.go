// Package embedding enforces model/dimension consistency between the active
// provider and the stored embedding rows, and manages per-model index
// metadata.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fablekit/loreindex/internal/provider"
	"github.com/fablekit/loreindex/internal/store"
)

// ErrDimensionMismatch indicates a provider returned vectors of an
// unexpected shape. This is a configuration-level inconsistency: it aborts
// the current operation and is never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Service validates and persists embeddings for the currently active
// provider.
type Service struct {
	provider provider.Provider
	store    *store.Store
	indexDir string
	logger   *zap.Logger
	metrics  *Metrics
}

// NewService creates an embedding service bound to one provider instance.
func NewService(p provider.Provider, st *store.Store, indexDir string, logger *zap.Logger) (*Service, error) {
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider: p,
		store:    st,
		indexDir: indexDir,
		logger:   logger.Named("embedding"),
		metrics:  NewMetrics(logger),
	}, nil
}

// ActiveModel returns the embedding model of the bound provider.
func (s *Service) ActiveModel() string {
	return s.provider.Metadata().EmbeddingModel
}

// ActiveDimension returns the embedding dimension of the bound provider.
func (s *Service) ActiveDimension() int {
	return s.provider.Metadata().EmbeddingDimension
}

// ValidateEmbedding soft-checks a vector against the active dimension.
// Mismatches are expected during provider migration, so this logs and
// returns false rather than failing.
func (s *Service) ValidateEmbedding(vec []float32) bool {
	want := s.ActiveDimension()
	if len(vec) != want {
		s.logger.Debug("embedding dimension mismatch",
			zap.Int("got", len(vec)),
			zap.Int("want", want))
		return false
	}
	return true
}

// EmbedBatch embeds texts via the provider and asserts the returned shape.
// A provider returning an unexpected dimensionality indicates a
// misconfiguration; the whole indexing operation must stop rather than skip
// rows, so this is a hard ErrDimensionMismatch.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed(ctx, texts, "embed_batch")
}

// EmbedQuery embeds one query text with the same shape checks as a batch.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embed(ctx, []string{text}, "embed_query")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embed calls the provider and records exactly one generation metric under
// the given operation name.
func (s *Service) embed(ctx context.Context, texts []string, operation string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.ActiveModel(), operation, time.Since(start), len(texts), genErr)
	}()

	vectors, err := s.provider.Embed(ctx, texts)
	if err != nil {
		genErr = err
		return nil, err
	}

	if len(vectors) != len(texts) {
		genErr = fmt.Errorf("%w: got %d vectors for %d texts", ErrDimensionMismatch, len(vectors), len(texts))
		return nil, genErr
	}
	want := s.ActiveDimension()
	for i, v := range vectors {
		if len(v) != want {
			genErr = fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrDimensionMismatch, i, len(v), want)
			return nil, genErr
		}
	}

	return vectors, nil
}

// EmbeddingsByModel reads rows for a model, defaulting to the active model.
// Rows whose stored dimension no longer matches the active dimension are
// skipped at read time, since the active provider may have changed since
// they were written.
func (s *Service) EmbeddingsByModel(ctx context.Context, f store.Filter) ([]store.Record, error) {
	if f.Model == "" {
		f.Model = s.ActiveModel()
	}

	rows, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}

	want := s.ActiveDimension()
	valid := rows[:0]
	skipped := 0
	for _, r := range rows {
		if r.VectorDim != want || len(r.Vector) != r.VectorDim {
			skipped++
			continue
		}
		valid = append(valid, r)
	}
	if skipped > 0 {
		s.logger.Debug("skipped rows with stale dimension",
			zap.Int("skipped", skipped),
			zap.String("model", f.Model),
			zap.Int("active_dimension", want))
	}
	return valid, nil
}

// CountByModel counts stored rows for a model, defaulting to the active one.
func (s *Service) CountByModel(ctx context.Context, f store.Filter) (int, error) {
	if f.Model == "" {
		f.Model = s.ActiveModel()
	}
	return s.store.Count(ctx, f)
}

// DeleteByModel removes rows for a model unconditionally and immediately.
// The full index rebuild is the recovery path.
func (s *Service) DeleteByModel(ctx context.Context, f store.Filter) (int64, error) {
	if f.Model == "" {
		f.Model = s.ActiveModel()
	}
	return s.store.Delete(ctx, f)
}

// RebuildIndex recounts the valid rows for the active model and writes a
// fresh IndexMetadata sidecar. This is metadata bookkeeping only; retrieval
// always re-scans the rows the snapshot describes.
func (s *Service) RebuildIndex(ctx context.Context, worldID string) (*IndexMetadata, error) {
	rows, err := s.EmbeddingsByModel(ctx, store.Filter{WorldID: worldID})
	if err != nil {
		return nil, fmt.Errorf("loading rows for index: %w", err)
	}

	meta := IndexMetadata{
		Model:     s.ActiveModel(),
		Dimension: s.ActiveDimension(),
		Count:     len(rows),
		WorldID:   worldID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := writeIndexMetadata(s.indexDir, meta); err != nil {
		return nil, err
	}

	s.logger.Info("index metadata rebuilt",
		zap.String("model", meta.Model),
		zap.Int("dimension", meta.Dimension),
		zap.Int("count", meta.Count))
	return &meta, nil
}

// IndexMetadataFor reads the sidecar for a (model, world scope) pair,
// defaulting to the active model. An empty worldID addresses the unscoped
// snapshot.
func (s *Service) IndexMetadataFor(model, worldID string) (*IndexMetadata, error) {
	if model == "" {
		model = s.ActiveModel()
	}
	return readIndexMetadata(s.indexDir, model, worldID)
}

// Store exposes the underlying row store to the search service.
func (s *Service) Store() *store.Store {
	return s.store
}

// Provider exposes the bound provider for metadata and health queries.
func (s *Service) Provider() provider.Provider {
	return s.provider
}
