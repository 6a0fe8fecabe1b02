// Package projector translates relational marketplace records into the
// denormalized documents stored in the search indices. All functions are
// pure: the same record always projects to the same document, which keeps
// event replay and bulk reindex convergent.
package projector

import (
	"math"

	"github.com/trademart/search-service/internal/domain"
)

// PopularityScore weights engagement signals. Sales dominate, watches count
// more than passive views.
func PopularityScore(views, watches, sales int64) float64 {
	return float64(views)*0.1 + float64(watches)*0.5 + float64(sales)*2.0
}

// QualityScore rates listing completeness on a 0-100 scale from three capped
// sub-scores: images (max 30), description length (max 40), seller rating
// (max 30).
func QualityScore(images int, descriptionLen int, sellerRating float64) float64 {
	imageScore := math.Min(30, float64(images)*10)
	descScore := math.Min(40, float64(descriptionLen)/10)
	ratingScore := math.Min(30, sellerRating*6)
	return math.Min(100, imageScore+descScore+ratingScore)
}

// RelevanceBoost is the multiplicative ranking boost applied at query time
// via field_value_factor. Baseline is 1.0 so unboosted documents rank
// neutrally.
func RelevanceBoost(featured, promoted, freeShipping, hasReturns bool) float64 {
	boost := 1.0
	if featured {
		boost += 0.5
	}
	if promoted {
		boost += 0.3
	}
	if freeShipping {
		boost += 0.2
	}
	if hasReturns {
		boost += 0.1
	}
	return boost
}

func geoPoint(lat, lon *float64) *domain.GeoPoint {
	if lat == nil || lon == nil {
		return nil
	}
	return &domain.GeoPoint{Lat: *lat, Lon: *lon}
}

func sellerSummary(s *domain.SellerJoin) *domain.SellerSummary {
	if s == nil {
		return nil
	}
	return &domain.SellerSummary{
		ID:       s.ID,
		Name:     s.Name,
		Rating:   s.Rating,
		Verified: s.Verified,
	}
}

func productBase(rec *domain.ProductRecord) domain.ProductDocument {
	doc := domain.ProductDocument{
		ID:             rec.ID,
		SellerID:       rec.SellerID,
		Title:          rec.Title,
		Description:    rec.Description,
		CategoryID:     rec.CategoryID,
		Condition:      rec.Condition,
		Status:         rec.Status,
		Brand:          rec.Brand,
		Tags:           rec.Tags,
		Price:          rec.Price,
		ViewsCount:     rec.ViewsCount,
		FavoritesCount: rec.FavoritesCount,
		FreeShipping:   rec.FreeShipping,
		HasReturns:     rec.HasReturns,
		Location:       geoPoint(rec.Lat, rec.Lon),
		Seller:         sellerSummary(rec.Seller),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if rec.Category != nil {
		doc.CategoryID = rec.Category.ID
		doc.CategoryName = rec.Category.Name
		doc.CategoryPath = rec.Category.Path
	}

	var rating float64
	if rec.Seller != nil {
		rating = rec.Seller.Rating
	}
	doc.PopularityScore = PopularityScore(rec.ViewsCount, rec.WatchesCount, rec.SalesCount)
	doc.QualityScore = QualityScore(rec.ImagesCount, len(rec.Description), rating)
	doc.RelevanceBoost = RelevanceBoost(rec.Featured, rec.Promoted, rec.FreeShipping, rec.HasReturns)

	return doc
}

// Product projects a product record to its index document.
func Product(rec *domain.ProductRecord) *domain.ProductDocument {
	doc := productBase(rec)
	return &doc
}

// Listing projects a listing record to its index document.
func Listing(rec *domain.ListingRecord) *domain.ListingDocument {
	return &domain.ListingDocument{
		ProductDocument: productBase(&rec.ProductRecord),
		Type:            rec.Type,
		StartPrice:      rec.StartPrice,
		CurrentPrice:    rec.CurrentPrice,
		BuyItNowPrice:   rec.BuyItNowPrice,
		ReservePrice:    rec.ReservePrice,
		StartAt:         rec.StartAt,
		EndAt:           rec.EndAt,
		BidsCount:       rec.BidsCount,
		WatchersCount:   rec.WatchersCount,
		Featured:        rec.Featured,
		Highlighted:     rec.Highlighted,
	}
}

// Auction projects an auction record to its index document.
// TimeRemainingSeconds is measured against the record's UpdatedAt so the
// projection stays deterministic; it never goes negative.
func Auction(rec *domain.AuctionRecord) *domain.AuctionDocument {
	remaining := int64(rec.EndAt.Sub(rec.UpdatedAt).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &domain.AuctionDocument{
		ListingDocument:      *Listing(&rec.ListingRecord),
		CurrentBid:           rec.CurrentBid,
		ReserveMet:           rec.ReserveMet,
		UniqueBidders:        rec.UniqueBidders,
		HighestBidder:        rec.HighestBidder,
		TimeRemainingSeconds: remaining,
		AutoExtend:           rec.AutoExtend,
		ExtensionMinutes:     rec.ExtensionMinutes,
	}
}

// Category projects a category record to its index document.
func Category(rec *domain.CategoryRecord) *domain.CategoryDocument {
	return &domain.CategoryDocument{
		ID:           rec.ID,
		ParentID:     rec.ParentID,
		Name:         rec.Name,
		Path:         rec.Path,
		Level:        rec.Level,
		ProductCount: rec.ProductCount,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}
