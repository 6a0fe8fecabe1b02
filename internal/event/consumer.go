// Package event maps marketplace domain events onto index operations.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/service"
	pkgkafka "github.com/trademart/search-service/pkg/kafka"
)

// Event types consumed by the search service. The Kafka topic for each is
// the type prefixed with the shared topic namespace.
const (
	TypeProductCreated = "product.created"
	TypeProductUpdated = "product.updated"
	TypeProductDeleted = "product.deleted"

	TypeListingCreated = "listing.created"
	TypeListingUpdated = "listing.updated"
	TypeListingDeleted = "listing.deleted"

	TypeAuctionCreated   = "auction.created"
	TypeAuctionUpdated   = "auction.updated"
	TypeAuctionDeleted   = "auction.deleted"
	TypeAuctionBidPlaced = "auction.bid_placed"

	TypeCategoryCreated = "category.created"
	TypeCategoryUpdated = "category.updated"
	TypeCategoryDeleted = "category.deleted"
)

// Types lists every event type this consumer handles.
func Types() []string {
	return []string{
		TypeProductCreated, TypeProductUpdated, TypeProductDeleted,
		TypeListingCreated, TypeListingUpdated, TypeListingDeleted,
		TypeAuctionCreated, TypeAuctionUpdated, TypeAuctionDeleted, TypeAuctionBidPlaced,
		TypeCategoryCreated, TypeCategoryUpdated, TypeCategoryDeleted,
	}
}

// UpdatedData is the payload shape of every *.updated event.
type UpdatedData struct {
	ID      string         `json:"id"`
	Updates map[string]any `json:"updates"`
}

// DeletedData is the payload shape of every *.deleted event.
type DeletedData struct {
	ID string `json:"id"`
}

// BidPlacedData is the payload of auction.bid_placed. It carries only the
// bid-owned fields; a bid never triggers a full re-projection.
type BidPlacedData struct {
	AuctionID     string    `json:"auctionId"`
	CurrentBid    float64   `json:"currentBid"`
	BidsCount     int64     `json:"bidsCount"`
	HighestBidder string    `json:"highestBidder,omitempty"`
	ReserveMet    *bool     `json:"reserveMet,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Consumer dispatches marketplace events to the indexer.
type Consumer struct {
	indexer *service.Indexer
	logger  *slog.Logger
}

// NewConsumer creates an event consumer for the search service.
func NewConsumer(indexer *service.Indexer, logger *slog.Logger) *Consumer {
	return &Consumer{indexer: indexer, logger: logger}
}

// Handle processes one event based on its type. Unknown types are logged and
// acknowledged so one misrouted message never blocks the partition.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.Type {
	case TypeProductCreated:
		return c.handleProductUpsert(ctx, event)
	case TypeProductUpdated:
		return c.handleUpdated(ctx, event, c.indexer.UpdateProduct)
	case TypeProductDeleted:
		return c.handleDeleted(ctx, event, c.indexer.DeleteProduct)

	case TypeListingCreated:
		return c.handleListingUpsert(ctx, event)
	case TypeListingUpdated:
		return c.handleUpdated(ctx, event, c.indexer.UpdateListing)
	case TypeListingDeleted:
		return c.handleDeleted(ctx, event, c.indexer.DeleteListing)

	case TypeAuctionCreated:
		return c.handleAuctionUpsert(ctx, event)
	case TypeAuctionUpdated:
		return c.handleUpdated(ctx, event, c.indexer.UpdateAuction)
	case TypeAuctionDeleted:
		return c.handleDeleted(ctx, event, c.indexer.DeleteAuction)
	case TypeAuctionBidPlaced:
		return c.handleBidPlaced(ctx, event)

	case TypeCategoryCreated:
		return c.handleCategoryUpsert(ctx, event)
	case TypeCategoryUpdated:
		return c.handleUpdated(ctx, event, c.indexer.UpdateCategory)
	case TypeCategoryDeleted:
		return c.handleDeleted(ctx, event, c.indexer.DeleteCategory)

	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.Type),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleProductUpsert(ctx context.Context, event *pkgkafka.Event) error {
	var rec domain.ProductRecord
	if err := json.Unmarshal(event.Data, &rec); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.Type, err)
	}
	if err := c.indexer.IndexProduct(ctx, &rec); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "indexed product from event",
		slog.String("event_type", event.Type),
		slog.String("product_id", rec.ID),
	)
	return nil
}

func (c *Consumer) handleListingUpsert(ctx context.Context, event *pkgkafka.Event) error {
	var rec domain.ListingRecord
	if err := json.Unmarshal(event.Data, &rec); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.Type, err)
	}
	if err := c.indexer.IndexListing(ctx, &rec); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "indexed listing from event",
		slog.String("event_type", event.Type),
		slog.String("listing_id", rec.ID),
	)
	return nil
}

func (c *Consumer) handleAuctionUpsert(ctx context.Context, event *pkgkafka.Event) error {
	var rec domain.AuctionRecord
	if err := json.Unmarshal(event.Data, &rec); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.Type, err)
	}
	if err := c.indexer.IndexAuction(ctx, &rec); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "indexed auction from event",
		slog.String("event_type", event.Type),
		slog.String("auction_id", rec.ID),
	)
	return nil
}

func (c *Consumer) handleCategoryUpsert(ctx context.Context, event *pkgkafka.Event) error {
	var rec domain.CategoryRecord
	if err := json.Unmarshal(event.Data, &rec); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.Type, err)
	}
	if err := c.indexer.IndexCategory(ctx, &rec); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "indexed category from event",
		slog.String("event_type", event.Type),
		slog.String("category_id", rec.ID),
	)
	return nil
}

func (c *Consumer) handleUpdated(ctx context.Context, event *pkgkafka.Event, update func(context.Context, string, map[string]any) error) error {
	var data UpdatedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.Type, err)
	}
	if data.ID == "" {
		return fmt.Errorf("%s event without id", event.Type)
	}
	if len(data.Updates) == 0 {
		c.logger.DebugContext(ctx, "update event without changes",
			slog.String("event_type", event.Type),
			slog.String("id", data.ID),
		)
		return nil
	}
	return update(ctx, data.ID, data.Updates)
}

func (c *Consumer) handleDeleted(ctx context.Context, event *pkgkafka.Event, remove func(context.Context, string) error) error {
	var data DeletedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.Type, err)
	}
	if data.ID == "" {
		return fmt.Errorf("%s event without id", event.Type)
	}
	if err := remove(ctx, data.ID); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "removed document from event",
		slog.String("event_type", event.Type),
		slog.String("id", data.ID),
	)
	return nil
}

func (c *Consumer) handleBidPlaced(ctx context.Context, event *pkgkafka.Event) error {
	var data BidPlacedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.Type, err)
	}
	if data.AuctionID == "" {
		return fmt.Errorf("%s event without auctionId", event.Type)
	}

	updatedAt := data.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = event.Timestamp
	}

	return c.indexer.ApplyBid(ctx, data.AuctionID, domain.BidState{
		CurrentBid:    data.CurrentBid,
		BidsCount:     data.BidsCount,
		HighestBidder: data.HighestBidder,
		ReserveMet:    data.ReserveMet,
		UpdatedAt:     updatedAt,
	})
}
