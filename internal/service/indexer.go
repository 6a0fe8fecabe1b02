package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/index"
	"github.com/trademart/search-service/internal/projector"
)

// Indexer applies entity lifecycle changes to the search indices. Every
// method is safe to call twice with the same input: upserts are keyed by id,
// deletes tolerate absent documents, partial updates on missing documents
// are no-ops and bid updates are monotonic.
type Indexer struct {
	engine index.Engine
	logger *slog.Logger
}

// NewIndexer creates an indexer backed by the given engine.
func NewIndexer(engine index.Engine, logger *slog.Logger) *Indexer {
	return &Indexer{engine: engine, logger: logger}
}

// sanitizeUpdates strips fields that partial updates must never touch.
func sanitizeUpdates(updates map[string]any) map[string]any {
	cleaned := make(map[string]any, len(updates))
	for k, v := range updates {
		if k == "id" {
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}

// IndexProduct projects and upserts a product document.
func (x *Indexer) IndexProduct(ctx context.Context, rec *domain.ProductRecord) error {
	if err := x.engine.Index(ctx, domain.EntityProducts, projector.Product(rec)); err != nil {
		return fmt.Errorf("index product %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateProduct applies a partial update to a product document.
func (x *Indexer) UpdateProduct(ctx context.Context, id string, updates map[string]any) error {
	if err := x.engine.Update(ctx, domain.EntityProducts, id, sanitizeUpdates(updates)); err != nil {
		return fmt.Errorf("update product %s: %w", id, err)
	}
	return nil
}

// DeleteProduct removes a product document.
func (x *Indexer) DeleteProduct(ctx context.Context, id string) error {
	if err := x.engine.Delete(ctx, domain.EntityProducts, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	return nil
}

// IndexListing projects and upserts a listing document.
func (x *Indexer) IndexListing(ctx context.Context, rec *domain.ListingRecord) error {
	if err := x.engine.Index(ctx, domain.EntityListings, projector.Listing(rec)); err != nil {
		return fmt.Errorf("index listing %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateListing applies a partial update to a listing document. The engine
// enforces the forward-only status transition.
func (x *Indexer) UpdateListing(ctx context.Context, id string, updates map[string]any) error {
	if err := x.engine.Update(ctx, domain.EntityListings, id, sanitizeUpdates(updates)); err != nil {
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	return nil
}

// DeleteListing removes a listing document.
func (x *Indexer) DeleteListing(ctx context.Context, id string) error {
	if err := x.engine.Delete(ctx, domain.EntityListings, id); err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	return nil
}

// IndexAuction projects and upserts an auction document.
func (x *Indexer) IndexAuction(ctx context.Context, rec *domain.AuctionRecord) error {
	if err := x.engine.Index(ctx, domain.EntityAuctions, projector.Auction(rec)); err != nil {
		return fmt.Errorf("index auction %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateAuction applies a partial update to an auction document.
func (x *Indexer) UpdateAuction(ctx context.Context, id string, updates map[string]any) error {
	if err := x.engine.Update(ctx, domain.EntityAuctions, id, sanitizeUpdates(updates)); err != nil {
		return fmt.Errorf("update auction %s: %w", id, err)
	}
	return nil
}

// DeleteAuction removes an auction document.
func (x *Indexer) DeleteAuction(ctx context.Context, id string) error {
	if err := x.engine.Delete(ctx, domain.EntityAuctions, id); err != nil {
		return fmt.Errorf("delete auction %s: %w", id, err)
	}
	return nil
}

// ApplyBid applies live-bid state to an auction without re-projecting the
// document. Bid events own only these fields.
func (x *Indexer) ApplyBid(ctx context.Context, auctionID string, bid domain.BidState) error {
	if err := x.engine.ApplyBid(ctx, auctionID, bid); err != nil {
		return fmt.Errorf("apply bid to auction %s: %w", auctionID, err)
	}
	return nil
}

// IndexCategory projects and upserts a category document.
func (x *Indexer) IndexCategory(ctx context.Context, rec *domain.CategoryRecord) error {
	if err := x.engine.Index(ctx, domain.EntityCategories, projector.Category(rec)); err != nil {
		return fmt.Errorf("index category %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateCategory applies a partial update to a category document.
func (x *Indexer) UpdateCategory(ctx context.Context, id string, updates map[string]any) error {
	if err := x.engine.Update(ctx, domain.EntityCategories, id, sanitizeUpdates(updates)); err != nil {
		return fmt.Errorf("update category %s: %w", id, err)
	}
	return nil
}

// DeleteCategory removes a category document.
func (x *Indexer) DeleteCategory(ctx context.Context, id string) error {
	if err := x.engine.Delete(ctx, domain.EntityCategories, id); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return nil
}
