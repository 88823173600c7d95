// Package search maintains the embedding index and answers semantic queries
// over it. Indexing is incremental: objects whose indexable text is
// unchanged since the last rebuild are skipped, and a failed batch leaves
// its objects stale rather than aborting the rest of the pass.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fablekit/loreindex/internal/config"
	"github.com/fablekit/loreindex/internal/embedding"
	"github.com/fablekit/loreindex/internal/provider"
	"github.com/fablekit/loreindex/internal/store"
)

const snippetLength = 200

// Result is one query hit, strongest first.
type Result struct {
	ObjectID   string  `json:"object_id"`
	ObjectType string  `json:"object_type"`
	Name       string  `json:"name"`
	Subtype    string  `json:"subtype,omitempty"`
	Score      float32 `json:"score"`
	Snippet    string  `json:"snippet,omitempty"`
}

// RebuildStats reports what one indexing pass did, per object type.
type RebuildStats struct {
	Indexed map[string]int `json:"indexed"`
	Skipped map[string]int `json:"skipped"`
	Failed  map[string]int `json:"failed"`
}

func newRebuildStats() RebuildStats {
	return RebuildStats{
		Indexed: map[string]int{},
		Skipped: map[string]int{},
		Failed:  map[string]int{},
	}
}

// Service ties a domain object source to the embedding service and the
// vector store.
type Service struct {
	source   Source
	embedder *embedding.Service
	cfg      config.SearchConfig
	worldID  string
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithWorld scopes all indexing and querying to one world.
func WithWorld(id string) Option {
	return func(s *Service) { s.worldID = id }
}

// NewService builds a search service. The source supplies domain objects;
// the embedding service supplies vectors and owns the store.
func NewService(source Source, embedder *embedding.Service, cfg config.SearchConfig, logger *zap.Logger, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("object source is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedding service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	s := &Service{
		source:   source,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// pending is one object whose text changed and needs a fresh embedding.
type pending struct {
	obj  Object
	text string
	hash string
}

// RebuildIndex re-embeds every requested object whose indexable text has
// changed under the active model. Unchanged objects are skipped without an
// embedding call. A nil excludedAttrs falls back to the configured exclusion
// list; a non-nil empty slice means no exclusions. Batches fail
// independently: a provider error marks that batch's objects failed and
// moves on, except ErrDimensionMismatch and ErrUnsupportedOperation, which
// abort the pass since every later batch would fail the same way.
func (s *Service) RebuildIndex(ctx context.Context, objectTypes, excludedAttrs []string) (RebuildStats, error) {
	stats := newRebuildStats()
	if len(objectTypes) == 0 {
		objectTypes = []string{store.ObjectTypeEntity, store.ObjectTypeEvent}
	}
	if excludedAttrs == nil {
		excludedAttrs = s.cfg.ExcludedAttributes
	}
	excluded := exclusionSet(excludedAttrs)
	model := s.embedder.ActiveModel()

	var errs []error
	for _, objectType := range objectTypes {
		if err := s.rebuildType(ctx, objectType, model, excluded, &stats); err != nil {
			if abortsRebuild(err) {
				errs = append(errs, err)
				break
			}
			errs = append(errs, fmt.Errorf("%s: %w", objectType, err))
		}
	}

	if _, err := s.embedder.RebuildIndex(ctx, s.worldID); err != nil {
		s.logger.Warn("index metadata refresh failed", zap.Error(err))
	}

	s.logger.Info("index rebuild finished",
		zap.Any("indexed", stats.Indexed),
		zap.Any("skipped", stats.Skipped),
		zap.Any("failed", stats.Failed),
		zap.Int("errors", len(errs)))
	return stats, errors.Join(errs...)
}

func (s *Service) rebuildType(ctx context.Context, objectType, model string, excluded map[string]bool, stats *RebuildStats) error {
	objects, err := s.source.ListObjects(ctx, objectType)
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}

	known, err := s.embedder.Store().ContentHashes(ctx, store.Filter{
		Model:      model,
		ObjectType: objectType,
		WorldID:    s.worldID,
	})
	if err != nil {
		return fmt.Errorf("load content hashes: %w", err)
	}

	var queue []pending
	for _, obj := range objects {
		// A world-scoped service must not index objects from other
		// worlds: their hashes sit outside the scoped lookup above, so
		// they would look stale and be re-embedded on every pass.
		if s.worldID != "" && obj.WorldID != s.worldID {
			continue
		}
		text := IndexableText(obj, excluded)
		hash := ContentHash(text)
		if known[obj.ID] == hash {
			stats.Skipped[objectType]++
			continue
		}
		queue = append(queue, pending{obj: obj, text: text, hash: hash})
	}

	var errs []error
	for start := 0; start < len(queue); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(queue))
		batch := queue[start:end]
		if err := s.indexBatch(ctx, objectType, model, batch); err != nil {
			stats.Failed[objectType] += len(batch)
			if abortsRebuild(err) || ctx.Err() != nil {
				errs = append(errs, err)
				return errors.Join(errs...)
			}
			s.logger.Warn("batch failed, objects remain stale",
				zap.String("object_type", objectType),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		stats.Indexed[objectType] += len(batch)
	}
	return errors.Join(errs...)
}

func (s *Service) indexBatch(ctx context.Context, objectType, model string, batch []pending) error {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	records := make([]store.Record, len(batch))
	for i, p := range batch {
		records[i] = store.Record{
			ID:         uuid.NewString(),
			ObjectType: objectType,
			ObjectID:   p.obj.ID,
			WorldID:    p.obj.WorldID,
			Vector:     vectors[i],
			VectorDim:  len(vectors[i]),
			Model:      model,
			Metadata: map[string]string{
				"name":    p.obj.Name,
				"subtype": p.obj.Subtype,
				"snippet": snippet(p.text, snippetLength),
			},
			ContentHash: p.hash,
			CreatedAt:   now,
		}
	}
	if err := s.embedder.Store().ReplaceBatch(ctx, records); err != nil {
		return fmt.Errorf("persist batch: %w", err)
	}
	return nil
}

// abortsRebuild reports whether an error makes the rest of the pass
// pointless.
func abortsRebuild(err error) bool {
	return errors.Is(err, embedding.ErrDimensionMismatch) ||
		errors.Is(err, provider.ErrUnsupportedOperation)
}

// Query embeds the query text and scans stored embeddings for the active
// model, returning at most topK results by cosine similarity. objectType
// narrows the scan to one object type; empty means all. topK <= 0 falls
// back to the configured default.
func (s *Service) Query(ctx context.Context, text, objectType string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.embedder.EmbeddingsByModel(ctx, store.Filter{
		ObjectType: objectType,
		WorldID:    s.worldID,
	})
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}

	acc := newTopK(topK)
	for _, row := range rows {
		acc.offer(Result{
			ObjectID:   row.ObjectID,
			ObjectType: row.ObjectType,
			Name:       row.Metadata["name"],
			Subtype:    row.Metadata["subtype"],
			Score:      cosineSimilarity(queryVec, row.Vector),
			Snippet:    row.Metadata["snippet"],
		})
	}
	results := acc.results()

	s.logger.Debug("query complete",
		zap.Int("candidates", len(rows)),
		zap.Int("results", len(results)))
	return results, nil
}
