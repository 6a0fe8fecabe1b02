package domain

import (
	"time"
)

// EntityType identifies which search index a document belongs to.
type EntityType string

const (
	EntityProducts   EntityType = "products"
	EntityListings   EntityType = "listings"
	EntityAuctions   EntityType = "auctions"
	EntityCategories EntityType = "categories"
)

// EntityTypes returns all entity types with a declared index, in a stable order.
func EntityTypes() []EntityType {
	return []EntityType{EntityProducts, EntityListings, EntityAuctions, EntityCategories}
}

// IsValidEntityType checks whether the given string names a known entity type.
func IsValidEntityType(s string) bool {
	for _, t := range EntityTypes() {
		if string(t) == s {
			return true
		}
	}
	return false
}

// Listing status values. Transitions only move forward:
// scheduled → active → ended|sold.
const (
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusEnded     = "ended"
	StatusSold      = "sold"
)

// statusRank orders listing statuses for the forward-only transition guard.
// Unknown statuses rank lowest so they never overwrite a known one.
func statusRank(status string) int {
	switch status {
	case StatusScheduled:
		return 1
	case StatusActive:
		return 2
	case StatusEnded, StatusSold:
		return 3
	default:
		return 0
	}
}

// StatusMovesForward reports whether a transition from the stored status to
// the incoming one is allowed (equal or forward, never backward).
func StatusMovesForward(stored, incoming string) bool {
	return statusRank(incoming) >= statusRank(stored)
}

// GeoPoint is a document location. Pointers to it are omitted entirely when
// coordinates are absent, so distance queries are never biased by (0,0).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SellerSummary is the denormalized seller snapshot embedded in documents.
type SellerSummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Rating   float64 `json:"rating"`
	Verified bool    `json:"verified"`
}

// ProductDocument is the denormalized product snapshot stored in the search
// index. ID equals the relational primary key, which makes every write an
// idempotent upsert keyed by document id.
type ProductDocument struct {
	ID          string `json:"id"`
	SellerID    string `json:"sellerId"`
	Title       string `json:"title"`
	Description string `json:"description"`

	CategoryID   string `json:"categoryId,omitempty"`
	CategoryPath string `json:"categoryPath,omitempty"`
	CategoryName string `json:"categoryName,omitempty"`

	Condition string   `json:"condition,omitempty"`
	Status    string   `json:"status"`
	Brand     string   `json:"brand,omitempty"`
	Tags      []string `json:"tags"`

	Price          float64 `json:"price"`
	ViewsCount     int64   `json:"viewsCount"`
	FavoritesCount int64   `json:"favoritesCount"`

	FreeShipping bool `json:"freeShipping"`
	HasReturns   bool `json:"hasReturns"`

	// Derived ranking signals, precomputed by the projector so queries never
	// re-encode business rules.
	PopularityScore float64 `json:"popularityScore"`
	QualityScore    float64 `json:"qualityScore"`
	RelevanceBoost  float64 `json:"relevanceBoost"`

	Location *GeoPoint      `json:"location,omitempty"`
	Seller   *SellerSummary `json:"seller,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocID returns the document's addressing key in the index.
func (d *ProductDocument) DocID() string { return d.ID }

// Listing type values.
const (
	ListingTypeFixed   = "fixed"
	ListingTypeAuction = "auction"
)

// ListingDocument extends the product shape with listing-specific fields.
// Invariant: EndAt is never before StartAt.
type ListingDocument struct {
	ProductDocument

	Type string `json:"type"`

	StartPrice    float64 `json:"startPrice"`
	CurrentPrice  float64 `json:"currentPrice"`
	BuyItNowPrice float64 `json:"buyItNowPrice,omitempty"`
	ReservePrice  float64 `json:"reservePrice,omitempty"`

	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`

	BidsCount     int64 `json:"bidsCount"`
	WatchersCount int64 `json:"watchersCount"`

	Featured    bool `json:"featured"`
	Highlighted bool `json:"highlighted"`
}

// AuctionDocument is a listing superset carrying live-bid state.
// CurrentBid is monotonically non-decreasing for a given auction id and
// ReserveMet is sticky once true; the indexing client enforces both.
type AuctionDocument struct {
	ListingDocument

	CurrentBid           float64 `json:"currentBid"`
	ReserveMet           bool    `json:"reserveMet"`
	UniqueBidders        int64   `json:"uniqueBidders"`
	HighestBidder        string  `json:"highestBidder,omitempty"`
	TimeRemainingSeconds int64   `json:"timeRemainingSeconds"`
	AutoExtend           bool    `json:"autoExtend"`
	ExtensionMinutes     int     `json:"extensionMinutes,omitempty"`
}

// CategoryDocument is the hierarchical category snapshot. Path is the
// materialized ancestor chain (e.g. "electronics/phones"), Level its depth.
type CategoryDocument struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parentId,omitempty"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Level        int       `json:"level"`
	ProductCount int64     `json:"productCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DocID returns the document's addressing key in the index.
func (d *CategoryDocument) DocID() string { return d.ID }

// BidState is the partial update applied by auction.bid_placed events.
// Only bid-owned fields appear here; a bid never triggers re-projection.
type BidState struct {
	CurrentBid    float64   `json:"currentBid"`
	BidsCount     int64     `json:"bidsCount"`
	HighestBidder string    `json:"highestBidder,omitempty"`
	ReserveMet    *bool     `json:"reserveMet,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
