// Package postgres implements repository.Store against the marketplace
// PostgreSQL schema.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/repository"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it in
// tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads marketplace entities for the bulk reindex job.
type Store struct {
	db DB
}

var _ repository.Store = (*Store)(nil)

// NewStore creates a PostgreSQL-backed store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// CountProducts returns the number of product rows.
func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	return s.count(ctx, "products")
}

// CountListings returns the number of listing rows.
func (s *Store) CountListings(ctx context.Context) (int64, error) {
	return s.count(ctx, "listings")
}

// CountAuctions returns the number of auction rows.
func (s *Store) CountAuctions(ctx context.Context) (int64, error) {
	return s.count(ctx, "auctions")
}

// CountCategories returns the number of category rows.
func (s *Store) CountCategories(ctx context.Context) (int64, error) {
	return s.count(ctx, "categories")
}

// productColumns are the projected columns shared by product, listing and
// auction queries. The scan order in scanProductInto must match.
const productColumns = `
	p.id, p.seller_id, p.title, p.description, p.category_id, p.condition,
	p.status, p.brand, p.tags, p.price, p.views_count, p.favorites_count,
	p.watches_count, p.sales_count, p.images_count, p.free_shipping,
	p.has_returns, p.featured, p.promoted, p.latitude, p.longitude,
	p.created_at, p.updated_at,
	s.id, s.display_name, s.rating, s.verified,
	c.id, c.name, c.path`

const productJoins = `
	LEFT JOIN sellers s ON s.id = p.seller_id
	LEFT JOIN categories c ON c.id = p.category_id`

// scanProductInto scans the shared product columns from a row into rec.
// Joined seller and category columns are nullable.
func scanProductInto(rows pgx.Rows, rec *domain.ProductRecord) error {
	var (
		categoryID *string
		brand      *string
		condition  *string

		sellerID       *string
		sellerName     *string
		sellerRating   *float64
		sellerVerified *bool

		catID   *string
		catName *string
		catPath *string
	)

	if err := rows.Scan(
		&rec.ID, &rec.SellerID, &rec.Title, &rec.Description, &categoryID, &condition,
		&rec.Status, &brand, &rec.Tags, &rec.Price, &rec.ViewsCount, &rec.FavoritesCount,
		&rec.WatchesCount, &rec.SalesCount, &rec.ImagesCount, &rec.FreeShipping,
		&rec.HasReturns, &rec.Featured, &rec.Promoted, &rec.Lat, &rec.Lon,
		&rec.CreatedAt, &rec.UpdatedAt,
		&sellerID, &sellerName, &sellerRating, &sellerVerified,
		&catID, &catName, &catPath,
	); err != nil {
		return err
	}

	if categoryID != nil {
		rec.CategoryID = *categoryID
	}
	if condition != nil {
		rec.Condition = *condition
	}
	if brand != nil {
		rec.Brand = *brand
	}
	if sellerID != nil {
		rec.Seller = &domain.SellerJoin{
			ID:       *sellerID,
			Name:     deref(sellerName),
			Rating:   derefF(sellerRating),
			Verified: sellerVerified != nil && *sellerVerified,
		}
	}
	if catID != nil {
		rec.Category = &domain.CategoryJoin{
			ID:   *catID,
			Name: deref(catName),
			Path: deref(catPath),
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefF(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// ListProducts returns a stable batch of product records ordered by id.
func (s *Store) ListProducts(ctx context.Context, offset, limit int) ([]*domain.ProductRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM products p
		%s
		ORDER BY p.id
		LIMIT $1 OFFSET $2`, productColumns, productJoins)

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var records []*domain.ProductRecord
	for rows.Next() {
		rec := &domain.ProductRecord{}
		if err := scanProductInto(rows, rec); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return records, nil
}

// listingColumns extend the product projection with listing fields.
const listingColumns = productColumns + `,
	l.id, l.type, l.start_price, l.current_price, l.buy_it_now_price,
	l.reserve_price, l.start_at, l.end_at, l.bids_count, l.watchers_count,
	l.highlighted`

func scanListingInto(rows pgx.Rows, rec *domain.ListingRecord) (listingID string, err error) {
	var (
		categoryID *string
		brand      *string
		condition  *string

		sellerID       *string
		sellerName     *string
		sellerRating   *float64
		sellerVerified *bool

		catID   *string
		catName *string
		catPath *string

		buyItNow *float64
		reserve  *float64
	)

	if err := rows.Scan(
		&rec.ProductRecord.ID, &rec.SellerID, &rec.Title, &rec.Description, &categoryID, &condition,
		&rec.Status, &brand, &rec.Tags, &rec.Price, &rec.ViewsCount, &rec.FavoritesCount,
		&rec.WatchesCount, &rec.SalesCount, &rec.ImagesCount, &rec.FreeShipping,
		&rec.HasReturns, &rec.Featured, &rec.Promoted, &rec.Lat, &rec.Lon,
		&rec.CreatedAt, &rec.UpdatedAt,
		&sellerID, &sellerName, &sellerRating, &sellerVerified,
		&catID, &catName, &catPath,
		&listingID, &rec.Type, &rec.StartPrice, &rec.CurrentPrice, &buyItNow,
		&reserve, &rec.StartAt, &rec.EndAt, &rec.BidsCount, &rec.WatchersCount,
		&rec.Highlighted,
	); err != nil {
		return "", err
	}

	// The listing, not the product, is the document.
	rec.ProductRecord.ID = listingID

	if categoryID != nil {
		rec.CategoryID = *categoryID
	}
	if condition != nil {
		rec.Condition = *condition
	}
	if brand != nil {
		rec.Brand = *brand
	}
	if buyItNow != nil {
		rec.BuyItNowPrice = *buyItNow
	}
	if reserve != nil {
		rec.ReservePrice = *reserve
	}
	if sellerID != nil {
		rec.Seller = &domain.SellerJoin{
			ID:       *sellerID,
			Name:     deref(sellerName),
			Rating:   derefF(sellerRating),
			Verified: sellerVerified != nil && *sellerVerified,
		}
	}
	if catID != nil {
		rec.Category = &domain.CategoryJoin{
			ID:   *catID,
			Name: deref(catName),
			Path: deref(catPath),
		}
	}
	return listingID, nil
}

// ListListings returns a stable batch of listing records ordered by id.
func (s *Store) ListListings(ctx context.Context, offset, limit int) ([]*domain.ListingRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM listings l
		JOIN products p ON p.id = l.product_id
		%s
		ORDER BY l.id
		LIMIT $1 OFFSET $2`, listingColumns, productJoins)

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var records []*domain.ListingRecord
	for rows.Next() {
		rec := &domain.ListingRecord{}
		if _, err := scanListingInto(rows, rec); err != nil {
			return nil, fmt.Errorf("scan listing row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing rows: %w", err)
	}
	return records, nil
}

const auctionColumns = listingColumns + `,
	a.id, a.current_bid, a.reserve_met, a.unique_bidders, a.highest_bidder,
	a.auto_extend, a.extension_minutes`

// ListAuctions returns a stable batch of auction records ordered by id.
func (s *Store) ListAuctions(ctx context.Context, offset, limit int) ([]*domain.AuctionRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM auctions a
		JOIN listings l ON l.id = a.listing_id
		JOIN products p ON p.id = l.product_id
		%s
		ORDER BY a.id
		LIMIT $1 OFFSET $2`, auctionColumns, productJoins)

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	defer rows.Close()

	var records []*domain.AuctionRecord
	for rows.Next() {
		rec, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auction rows: %w", err)
	}
	return records, nil
}

func scanAuction(rows pgx.Rows) (*domain.AuctionRecord, error) {
	rec := &domain.AuctionRecord{}
	var (
		categoryID *string
		brand      *string
		condition  *string

		sellerID       *string
		sellerName     *string
		sellerRating   *float64
		sellerVerified *bool

		catID   *string
		catName *string
		catPath *string

		listingID string
		buyItNow  *float64
		reserve   *float64

		auctionID     string
		highestBidder *string
	)

	if err := rows.Scan(
		&rec.ProductRecord.ID, &rec.SellerID, &rec.Title, &rec.Description, &categoryID, &condition,
		&rec.Status, &brand, &rec.Tags, &rec.Price, &rec.ViewsCount, &rec.FavoritesCount,
		&rec.WatchesCount, &rec.SalesCount, &rec.ImagesCount, &rec.FreeShipping,
		&rec.HasReturns, &rec.Featured, &rec.Promoted, &rec.Lat, &rec.Lon,
		&rec.CreatedAt, &rec.UpdatedAt,
		&sellerID, &sellerName, &sellerRating, &sellerVerified,
		&catID, &catName, &catPath,
		&listingID, &rec.Type, &rec.StartPrice, &rec.CurrentPrice, &buyItNow,
		&reserve, &rec.StartAt, &rec.EndAt, &rec.BidsCount, &rec.WatchersCount,
		&rec.Highlighted,
		&auctionID, &rec.CurrentBid, &rec.ReserveMet, &rec.UniqueBidders,
		&highestBidder, &rec.AutoExtend, &rec.ExtensionMinutes,
	); err != nil {
		return nil, err
	}

	// The auction is the document.
	rec.ProductRecord.ID = auctionID

	if categoryID != nil {
		rec.CategoryID = *categoryID
	}
	if condition != nil {
		rec.Condition = *condition
	}
	if brand != nil {
		rec.Brand = *brand
	}
	if buyItNow != nil {
		rec.BuyItNowPrice = *buyItNow
	}
	if reserve != nil {
		rec.ReservePrice = *reserve
	}
	rec.HighestBidder = deref(highestBidder)
	if sellerID != nil {
		rec.Seller = &domain.SellerJoin{
			ID:       *sellerID,
			Name:     deref(sellerName),
			Rating:   derefF(sellerRating),
			Verified: sellerVerified != nil && *sellerVerified,
		}
	}
	if catID != nil {
		rec.Category = &domain.CategoryJoin{
			ID:   *catID,
			Name: deref(catName),
			Path: deref(catPath),
		}
	}
	return rec, nil
}

// ListCategories returns a stable batch of category records ordered by id.
func (s *Store) ListCategories(ctx context.Context, offset, limit int) ([]*domain.CategoryRecord, error) {
	query := `
		SELECT c.id, c.parent_id, c.name, c.path, c.level,
		       (SELECT count(*) FROM products p WHERE p.category_id = c.id) AS product_count,
		       c.created_at, c.updated_at
		FROM categories c
		ORDER BY c.id
		LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var records []*domain.CategoryRecord
	for rows.Next() {
		rec := &domain.CategoryRecord{}
		var parentID *string
		if err := rows.Scan(
			&rec.ID, &parentID, &rec.Name, &rec.Path, &rec.Level,
			&rec.ProductCount, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		rec.ParentID = deref(parentID)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}
	return records, nil
}
