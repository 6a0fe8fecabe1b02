// Package repository defines read access to the relational system of record.
// The bulk reindex job is its only consumer: incremental updates flow through
// events, which carry their own data.
package repository

import (
	"context"

	"github.com/trademart/search-service/internal/domain"
)

// Store reads marketplace entities in stable batches for reindexing.
// List methods must return rows in a deterministic order so offset paging
// neither skips nor repeats documents within a run.
type Store interface {
	CountProducts(ctx context.Context) (int64, error)
	ListProducts(ctx context.Context, offset, limit int) ([]*domain.ProductRecord, error)

	CountListings(ctx context.Context) (int64, error)
	ListListings(ctx context.Context, offset, limit int) ([]*domain.ListingRecord, error)

	CountAuctions(ctx context.Context) (int64, error)
	ListAuctions(ctx context.Context, offset, limit int) ([]*domain.AuctionRecord, error)

	CountCategories(ctx context.Context) (int64, error)
	ListCategories(ctx context.Context, offset, limit int) ([]*domain.CategoryRecord, error)
}
