// Package index defines the search engine abstraction the rest of the
// service programs against. The Elasticsearch implementation backs
// production; the in-memory implementation backs tests.
package index

import (
	"context"

	"github.com/trademart/search-service/internal/domain"
)

// BulkError describes one failed document inside a bulk request.
type BulkError struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// BulkResult reports the per-document outcome of a bulk index call.
// A bulk request never aborts on individual failures.
type BulkResult struct {
	Successful int64
	Failed     int64
	Errors     []BulkError
}

// Document is anything addressable by a stable id within an index.
type Document interface {
	DocID() string
}

// Engine is the indexing and query surface over the search store.
//
// Write operations are designed for at-least-once delivery: Index is an
// idempotent upsert, Delete treats a missing document as success, and
// ApplyBid refuses to move currentBid backwards.
type Engine interface {
	// EnsureIndices creates any missing indices with their mappings.
	// Existing indices are left untouched.
	EnsureIndices(ctx context.Context) error

	// RecreateIndex drops and recreates a single index. Destructive; only
	// the reindex job calls it.
	RecreateIndex(ctx context.Context, entity domain.EntityType) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Index upserts a full document.
	Index(ctx context.Context, entity domain.EntityType, doc Document) error

	// Update applies a partial update to an existing document. A missing
	// document is a no-op, not an error.
	Update(ctx context.Context, entity domain.EntityType, id string, fields map[string]any) error

	// ApplyBid applies live-bid state to an auction document, guarding that
	// currentBid never decreases and reserveMet stays true once set.
	ApplyBid(ctx context.Context, id string, bid domain.BidState) error

	// Delete removes a document. Deleting an absent document succeeds.
	Delete(ctx context.Context, entity domain.EntityType, id string) error

	// BulkIndex upserts a batch of documents, reporting per-document errors.
	BulkIndex(ctx context.Context, entity domain.EntityType, docs []Document) (*BulkResult, error)

	// RefreshAll makes all writes visible to search. Only the reindex job
	// forces refreshes; incremental writes rely on the store's own refresh
	// interval.
	RefreshAll(ctx context.Context) error

	// Search executes a query against one entity's index.
	Search(ctx context.Context, entity domain.EntityType, query *domain.SearchQuery) (*domain.SearchResult, error)

	// Suggest returns autocomplete candidates for a prefix.
	Suggest(ctx context.Context, prefix string, limit int) ([]domain.Suggestion, error)

	// Stats reports document counts and storage size per index.
	Stats(ctx context.Context) ([]domain.IndexStats, error)
}
