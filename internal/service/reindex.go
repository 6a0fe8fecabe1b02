package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/index"
	"github.com/trademart/search-service/internal/projector"
	"github.com/trademart/search-service/internal/repository"
)

// DefaultReindexBatchSize is how many rows each relational scan pulls.
const DefaultReindexBatchSize = 100

// ErrReindexInProgress is returned when a reindex run is requested while
// another one is still running.
var ErrReindexInProgress = errors.New("reindex already in progress")

// ReindexOptions control a bulk reindex run.
type ReindexOptions struct {
	// Recreate drops and recreates each index before filling it. Without it,
	// documents are upserted into the existing indices.
	Recreate bool
	// Entities limits the run to the given entity types; empty means all.
	Entities []domain.EntityType
}

// Reindexer rebuilds the search indices from the relational system of
// record in fixed-size batches.
type Reindexer struct {
	engine    index.Engine
	store     repository.Store
	logger    *slog.Logger
	batchSize int
	running   atomic.Bool
}

// NewReindexer creates a reindexer with the default batch size.
func NewReindexer(engine index.Engine, store repository.Store, logger *slog.Logger) *Reindexer {
	return &Reindexer{
		engine:    engine,
		store:     store,
		logger:    logger,
		batchSize: DefaultReindexBatchSize,
	}
}

// Run performs a bulk reindex and returns per-entity summaries plus the
// resulting index stats. Per-document bulk failures are counted, logged and
// skipped; only infrastructure errors abort the run. At most one run may be
// active at a time.
func (r *Reindexer) Run(ctx context.Context, opts ReindexOptions) ([]domain.ReindexSummary, []domain.IndexStats, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, nil, ErrReindexInProgress
	}
	defer r.running.Store(false)

	entities := opts.Entities
	if len(entities) == 0 {
		entities = domain.EntityTypes()
	}

	if err := r.engine.EnsureIndices(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure indices: %w", err)
	}

	summaries := make([]domain.ReindexSummary, 0, len(entities))
	for _, entity := range entities {
		if opts.Recreate {
			if err := r.engine.RecreateIndex(ctx, entity); err != nil {
				return nil, nil, fmt.Errorf("recreate index %s: %w", entity, err)
			}
		}

		summary, err := r.reindexEntity(ctx, entity)
		if err != nil {
			return nil, nil, fmt.Errorf("reindex %s: %w", entity, err)
		}
		summaries = append(summaries, summary)
	}

	// One refresh at the end instead of per-write refreshes keeps bulk
	// throughput high; documents become searchable here.
	if err := r.engine.RefreshAll(ctx); err != nil {
		return nil, nil, fmt.Errorf("refresh indices: %w", err)
	}

	stats, err := r.engine.Stats(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("index stats: %w", err)
	}
	return summaries, stats, nil
}

func (r *Reindexer) reindexEntity(ctx context.Context, entity domain.EntityType) (domain.ReindexSummary, error) {
	start := time.Now()
	summary := domain.ReindexSummary{Entity: entity}

	total, err := r.countEntity(ctx, entity)
	if err != nil {
		return summary, err
	}
	summary.Total = total

	for offset := 0; int64(offset) < total; offset += r.batchSize {
		docs, err := r.loadBatch(ctx, entity, offset)
		if err != nil {
			return summary, err
		}
		if len(docs) == 0 {
			break
		}

		result, err := r.engine.BulkIndex(ctx, entity, docs)
		if err != nil {
			return summary, err
		}
		summary.Indexed += result.Successful
		summary.Failed += result.Failed

		for _, bulkErr := range result.Errors {
			r.logger.Warn("document failed to index",
				"entity", string(entity),
				"id", bulkErr.ID,
				"error_type", bulkErr.Type,
				"reason", bulkErr.Reason,
			)
		}

		r.logger.Info("reindex batch complete",
			"entity", string(entity),
			"offset", offset,
			"batch", len(docs),
			"total", total,
		)
	}

	summary.DurationMs = time.Since(start).Milliseconds()
	return summary, nil
}

func (r *Reindexer) countEntity(ctx context.Context, entity domain.EntityType) (int64, error) {
	switch entity {
	case domain.EntityProducts:
		return r.store.CountProducts(ctx)
	case domain.EntityListings:
		return r.store.CountListings(ctx)
	case domain.EntityAuctions:
		return r.store.CountAuctions(ctx)
	case domain.EntityCategories:
		return r.store.CountCategories(ctx)
	default:
		return 0, fmt.Errorf("unknown entity type %q", entity)
	}
}

func (r *Reindexer) loadBatch(ctx context.Context, entity domain.EntityType, offset int) ([]index.Document, error) {
	switch entity {
	case domain.EntityProducts:
		records, err := r.store.ListProducts(ctx, offset, r.batchSize)
		if err != nil {
			return nil, err
		}
		docs := make([]index.Document, 0, len(records))
		for _, rec := range records {
			docs = append(docs, projector.Product(rec))
		}
		return docs, nil

	case domain.EntityListings:
		records, err := r.store.ListListings(ctx, offset, r.batchSize)
		if err != nil {
			return nil, err
		}
		docs := make([]index.Document, 0, len(records))
		for _, rec := range records {
			docs = append(docs, projector.Listing(rec))
		}
		return docs, nil

	case domain.EntityAuctions:
		records, err := r.store.ListAuctions(ctx, offset, r.batchSize)
		if err != nil {
			return nil, err
		}
		docs := make([]index.Document, 0, len(records))
		for _, rec := range records {
			docs = append(docs, projector.Auction(rec))
		}
		return docs, nil

	case domain.EntityCategories:
		records, err := r.store.ListCategories(ctx, offset, r.batchSize)
		if err != nil {
			return nil, err
		}
		docs := make([]index.Document, 0, len(records))
		for _, rec := range records {
			docs = append(docs, projector.Category(rec))
		}
		return docs, nil

	default:
		return nil, fmt.Errorf("unknown entity type %q", entity)
	}
}
