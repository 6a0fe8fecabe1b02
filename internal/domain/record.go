package domain

import "time"

// Relational source records fed to the projector. These mirror the
// marketplace rows (plus the joins the projection needs), not the index
// schema; the projector owns the translation between the two. The same
// shapes arrive as `*.created` event payloads, so they carry JSON tags.

// SellerJoin carries the seller columns joined onto an entity row.
type SellerJoin struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Rating   float64 `json:"rating"`
	Verified bool    `json:"verified"`
}

// CategoryJoin carries the category columns joined onto an entity row.
type CategoryJoin struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// ProductRecord is a product row with its joined seller and category.
type ProductRecord struct {
	ID          string   `json:"id"`
	SellerID    string   `json:"sellerId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	CategoryID  string   `json:"categoryId"`
	Condition   string   `json:"condition"`
	Status      string   `json:"status"`
	Brand       string   `json:"brand"`
	Tags        []string `json:"tags"`
	Price       float64  `json:"price"`

	ViewsCount     int64 `json:"viewsCount"`
	FavoritesCount int64 `json:"favoritesCount"`
	WatchesCount   int64 `json:"watchesCount"`
	SalesCount     int64 `json:"salesCount"`
	ImagesCount    int   `json:"imagesCount"`

	FreeShipping bool `json:"freeShipping"`
	HasReturns   bool `json:"hasReturns"`
	Featured     bool `json:"featured"`
	Promoted     bool `json:"promoted"`

	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	Seller   *SellerJoin   `json:"seller,omitempty"`
	Category *CategoryJoin `json:"category,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListingRecord is a listing row; it embeds the product shape it denormalizes.
type ListingRecord struct {
	ProductRecord

	Type          string  `json:"type"`
	StartPrice    float64 `json:"startPrice"`
	CurrentPrice  float64 `json:"currentPrice"`
	BuyItNowPrice float64 `json:"buyItNowPrice"`
	ReservePrice  float64 `json:"reservePrice"`

	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`

	BidsCount     int64 `json:"bidsCount"`
	WatchersCount int64 `json:"watchersCount"`
	Highlighted   bool  `json:"highlighted"`
}

// AuctionRecord is an auction row with its live-bid state.
type AuctionRecord struct {
	ListingRecord

	CurrentBid       float64 `json:"currentBid"`
	ReserveMet       bool    `json:"reserveMet"`
	UniqueBidders    int64   `json:"uniqueBidders"`
	HighestBidder    string  `json:"highestBidder"`
	AutoExtend       bool    `json:"autoExtend"`
	ExtensionMinutes int     `json:"extensionMinutes"`
}

// CategoryRecord is a category row.
type CategoryRecord struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parentId"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Level        int       `json:"level"`
	ProductCount int64     `json:"productCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
