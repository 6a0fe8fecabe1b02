package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/index"
)

func newProduct(id, title string, price float64) *domain.ProductDocument {
	return &domain.ProductDocument{
		ID:             id,
		SellerID:       "seller-1",
		Title:          title,
		Description:    "some description",
		CategoryID:     "cat-1",
		Condition:      "new",
		Status:         domain.StatusActive,
		Brand:          "Acme",
		Tags:           []string{"gadget"},
		Price:          price,
		RelevanceBoost: 1.0,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newAuction(id string, currentBid float64) *domain.AuctionDocument {
	return &domain.AuctionDocument{
		ListingDocument: domain.ListingDocument{
			ProductDocument: *newProduct(id, "auction item", 10),
			Type:            domain.ListingTypeAuction,
			EndAt:           time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		CurrentBid: currentBid,
	}
}

func TestIndex_UpsertIsIdempotent(t *testing.T) {
	e := New()
	ctx := context.Background()

	doc := newProduct("p1", "Wireless Mouse", 29.99)
	require.NoError(t, e.Index(ctx, domain.EntityProducts, doc))
	require.NoError(t, e.Index(ctx, domain.EntityProducts, doc))

	assert.Equal(t, 1, e.Len(domain.EntityProducts))
}

func TestIndex_ReplacesExistingDocument(t *testing.T) {
	e := New()
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, domain.EntityProducts, newProduct("p1", "Old Title", 10)))
	require.NoError(t, e.Index(ctx, domain.EntityProducts, newProduct("p1", "New Title", 15)))

	doc, ok := e.Get(domain.EntityProducts, "p1")
	require.True(t, ok)
	assert.Equal(t, "New Title", doc["title"])
}

func TestUpdate_MissingDocumentIsNoOp(t *testing.T) {
	e := New()
	err := e.Update(context.Background(), domain.EntityProducts, "ghost", map[string]any{"price": 5.0})
	require.NoError(t, err)
	assert.Equal(t, 0, e.Len(domain.EntityProducts))
}

func TestUpdate_MergesFields(t *testing.T) {
	e := New()
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, domain.EntityProducts, newProduct("p1", "Wireless Mouse", 29.99)))
	require.NoError(t, e.Update(ctx, domain.EntityProducts, "p1", map[string]any{"price": 24.99}))

	doc, _ := e.Get(domain.EntityProducts, "p1")
	assert.Equal(t, 24.99, doc["price"])
	assert.Equal(t, "Wireless Mouse", doc["title"], "untouched fields survive partial updates")
}

func TestUpdate_StatusNeverMovesBackward(t *testing.T) {
	e := New()
	ctx := context.Background()

	doc := newProduct("l1", "Concert Ticket", 80)
	doc.Status = domain.StatusEnded
	require.NoError(t, e.Index(ctx, domain.EntityListings, doc))

	require.NoError(t, e.Update(ctx, domain.EntityListings, "l1", map[string]any{
		"status": domain.StatusActive,
		"price":  75.0,
	}))

	stored, _ := e.Get(domain.EntityListings, "l1")
	assert.Equal(t, domain.StatusEnded, stored["status"], "stale status update must not resurrect an ended listing")
	assert.Equal(t, 75.0, stored["price"], "other fields in the same update still apply")

	require.NoError(t, e.Update(ctx, domain.EntityListings, "l1", map[string]any{"status": domain.StatusSold}))
	stored, _ = e.Get(domain.EntityListings, "l1")
	assert.Equal(t, domain.StatusSold, stored["status"])
}

func TestDelete_AbsentDocumentSucceeds(t *testing.T) {
	e := New()
	assert.NoError(t, e.Delete(context.Background(), domain.EntityProducts, "nope"))
}

func TestApplyBid_MonotonicGuard(t *testing.T) {
	e := New()
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, domain.EntityAuctions, newAuction("a1", 100)))

	// A lower bid arriving late must not win.
	require.NoError(t, e.ApplyBid(ctx, "a1", domain.BidState{CurrentBid: 90, BidsCount: 3, UpdatedAt: time.Now()}))
	doc, _ := e.Get(domain.EntityAuctions, "a1")
	assert.Equal(t, 100.0, doc["currentBid"])

	// Equal and higher bids apply.
	require.NoError(t, e.ApplyBid(ctx, "a1", domain.BidState{CurrentBid: 120, BidsCount: 4, HighestBidder: "user-7", UpdatedAt: time.Now()}))
	doc, _ = e.Get(domain.EntityAuctions, "a1")
	assert.Equal(t, 120.0, doc["currentBid"])
	assert.Equal(t, "user-7", doc["highestBidder"])
}

func TestApplyBid_ReserveMetIsSticky(t *testing.T) {
	e := New()
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, domain.EntityAuctions, newAuction("a1", 50)))

	met := true
	require.NoError(t, e.ApplyBid(ctx, "a1", domain.BidState{CurrentBid: 200, BidsCount: 1, ReserveMet: &met, UpdatedAt: time.Now()}))

	notMet := false
	require.NoError(t, e.ApplyBid(ctx, "a1", domain.BidState{CurrentBid: 210, BidsCount: 2, ReserveMet: &notMet, UpdatedAt: time.Now()}))

	doc, _ := e.Get(domain.EntityAuctions, "a1")
	assert.Equal(t, true, doc["reserveMet"], "reserveMet never flips back to false")
}

func TestApplyBid_MissingAuctionIsNoOp(t *testing.T) {
	e := New()
	err := e.ApplyBid(context.Background(), "ghost", domain.BidState{CurrentBid: 10, UpdatedAt: time.Now()})
	assert.NoError(t, err)
}

type badDoc struct{}

func (badDoc) DocID() string { return "" }

func TestBulkIndex_ReportsPerDocumentErrors(t *testing.T) {
	e := New()
	docs := []index.Document{
		newProduct("p1", "One", 1),
		badDoc{},
		newProduct("p2", "Two", 2),
	}

	result, err := e.BulkIndex(context.Background(), domain.EntityProducts, docs)
	require.NoError(t, err, "individual failures must not abort the batch")
	assert.Equal(t, int64(2), result.Successful)
	assert.Equal(t, int64(1), result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "", result.Errors[0].ID)
}

func seedCatalog(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()

	docs := []*domain.ProductDocument{
		newProduct("p1", "Wireless Mouse", 19.99),
		newProduct("p2", "Wireless Keyboard", 49.99),
		newProduct("p3", "USB Hub", 120.00),
		newProduct("p4", "Gaming Monitor", 650.00),
	}
	docs[1].Condition = "used"
	docs[2].CategoryID = "cat-2"
	docs[3].CategoryID = "cat-2"
	docs[3].FreeShipping = true

	for _, d := range docs {
		require.NoError(t, e.Index(ctx, domain.EntityProducts, d))
	}
}

func TestSearch_EmptyQueryMatchesAll(t *testing.T) {
	e := New()
	seedCatalog(t, e)

	result, err := e.Search(context.Background(), domain.EntityProducts, &domain.SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Total)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, domain.DefaultPageSize, result.PageSize)
}

func TestSearch_TextMatch(t *testing.T) {
	e := New()
	seedCatalog(t, e)

	result, err := e.Search(context.Background(), domain.EntityProducts, &domain.SearchQuery{Query: "wireless"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
}

func TestSearch_FiltersAreANDed(t *testing.T) {
	e := New()
	seedCatalog(t, e)

	cat := "cat-2"
	minPrice := 500.0
	result, err := e.Search(context.Background(), domain.EntityProducts, &domain.SearchQuery{
		CategoryID: &cat,
		MinPrice:   &minPrice,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Total)
	assert.Equal(t, "p4", result.Items[0]["id"])
}

func TestSearch_PriceRange(t *testing.T) {
	e := New()
	seedCatalog(t, e)

	minPrice, maxPrice := 20.0, 200.0
	result, err := e.Search(context.Background(), domain.EntityProducts, &domain.SearchQuery{
		MinPrice: &minPrice,
		MaxPrice: &maxPrice,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
}

func TestSearch_PageSizeClampedNotRejected(t *testing.T) {
	e := New()
	seedCatalog(t, e)

	result, err := e.Search(context.Background(), domain.EntityProducts, &domain.SearchQuery{PageSize: 5000})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxPageSize, result.PageSize)
}

func TestSearch_Pagination(t *testing.T) {
	e := New()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, e.Index(ctx, domain.EntityProducts, newProduct(fmt.Sprintf("p%02d", i), "Widget", float64(i))))
	}

	result, err := e.Search(ctx, domain.EntityProducts, &domain.SearchQuery{
		SortBy:   domain.SortPriceAsc,
		Page:     3,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25), result.Total)
	assert.Equal(t, 3, result.TotalPages)
	require.Len(t, result.Items, 5)
	assert.Equal(t, "p20", result.Items[0]["id"])
}

func TestSearch_SortPriceAsc(t *testing.T) {
	e := New()
	seedCatalog(t, e)

	result, err := e.Search(context.Background(), domain.EntityProducts, &domain.SearchQuery{SortBy: domain.SortPriceAsc})
	require.NoError(t, err)
	require.Len(t, result.Items, 4)
	assert.Equal(t, "p1", result.Items[0]["id"])
	assert.Equal(t, "p4", result.Items[3]["id"])
}

func TestSearch_SortEndingSoon(t *testing.T) {
	e := New()
	ctx := context.Background()

	early := newAuction("a1", 10)
	early.EndAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	late := newAuction("a2", 10)
	late.EndAt = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, e.Index(ctx, domain.EntityAuctions, late))
	require.NoError(t, e.Index(ctx, domain.EntityAuctions, early))

	result, err := e.Search(ctx, domain.EntityAuctions, &domain.SearchQuery{SortBy: domain.SortEndingSoon})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "a1", result.Items[0]["id"])
}

func TestSearch_RelevanceTieBreaksByPopularity(t *testing.T) {
	e := New()
	ctx := context.Background()

	// Identical titles score the same; the more popular document must win
	// regardless of id order.
	low := newProduct("a", "Red Shoes", 30)
	low.PopularityScore = 1
	high := newProduct("b", "Red Shoes", 30)
	high.PopularityScore = 100

	require.NoError(t, e.Index(ctx, domain.EntityProducts, low))
	require.NoError(t, e.Index(ctx, domain.EntityProducts, high))

	result, err := e.Search(ctx, domain.EntityProducts, &domain.SearchQuery{Query: "shoes"})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "b", result.Items[0]["id"])
	assert.Equal(t, "a", result.Items[1]["id"])
}

func TestSearch_RelevanceTieBreaksByRecency(t *testing.T) {
	e := New()
	ctx := context.Background()

	old := newProduct("a", "Red Shoes", 30)
	old.PopularityScore = 5
	old.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := newProduct("b", "Red Shoes", 30)
	fresh.PopularityScore = 5
	fresh.CreatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, e.Index(ctx, domain.EntityProducts, old))
	require.NoError(t, e.Index(ctx, domain.EntityProducts, fresh))

	result, err := e.Search(ctx, domain.EntityProducts, &domain.SearchQuery{Query: "shoes"})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "b", result.Items[0]["id"])
}

func TestSearch_ItemsAreCopies(t *testing.T) {
	e := New()
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, domain.EntityProducts, newProduct("p1", "Wireless Mouse", 29.99)))

	result, err := e.Search(ctx, domain.EntityProducts, &domain.SearchQuery{})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	result.Items[0]["title"] = "mangled"

	doc, ok := e.Get(domain.EntityProducts, "p1")
	require.True(t, ok)
	assert.Equal(t, "Wireless Mouse", doc["title"])
}

func TestSearch_GeoFilterExcludesDocumentsWithoutLocation(t *testing.T) {
	e := New()
	ctx := context.Background()

	near := newProduct("near", "Desk Lamp", 25)
	near.Location = &domain.GeoPoint{Lat: 40.71, Lon: -74.00}
	far := newProduct("far", "Desk Lamp", 25)
	far.Location = &domain.GeoPoint{Lat: 34.05, Lon: -118.24}
	nowhere := newProduct("nowhere", "Desk Lamp", 25)

	require.NoError(t, e.Index(ctx, domain.EntityProducts, near))
	require.NoError(t, e.Index(ctx, domain.EntityProducts, far))
	require.NoError(t, e.Index(ctx, domain.EntityProducts, nowhere))

	result, err := e.Search(ctx, domain.EntityProducts, &domain.SearchQuery{
		Geo: &domain.GeoFilter{Lat: 40.7128, Lon: -74.0060, RadiusKm: 50},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Total)
	assert.Equal(t, "near", result.Items[0]["id"])
}

func TestSearch_AggregationsOverFilteredSet(t *testing.T) {
	e := New()
	seedCatalog(t, e)

	cat := "cat-2"
	result, err := e.Search(context.Background(), domain.EntityProducts, &domain.SearchQuery{
		CategoryID:          &cat,
		IncludeAggregations: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Aggregations)

	// Only the two cat-2 documents contribute to facets.
	require.Len(t, result.Aggregations.Categories, 1)
	assert.Equal(t, "cat-2", result.Aggregations.Categories[0].Key)
	assert.Equal(t, int64(2), result.Aggregations.Categories[0].Count)

	var over500 int64
	for _, rb := range result.Aggregations.PriceRanges {
		if rb.Key == "500+" {
			over500 = rb.Count
		}
	}
	assert.Equal(t, int64(1), over500)
}

func TestSearch_AggregationsOmittedByDefault(t *testing.T) {
	e := New()
	seedCatalog(t, e)

	result, err := e.Search(context.Background(), domain.EntityProducts, &domain.SearchQuery{})
	require.NoError(t, err)
	assert.Nil(t, result.Aggregations)
}

func TestSuggest_PrefixMatchAndDedup(t *testing.T) {
	e := New()
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, domain.EntityProducts, newProduct("p1", "Wireless Mouse", 20)))
	require.NoError(t, e.Index(ctx, domain.EntityProducts, newProduct("p2", "Wireless Mouse", 25)))
	require.NoError(t, e.Index(ctx, domain.EntityProducts, newProduct("p3", "Wired Mouse", 10)))

	suggestions, err := e.Suggest(ctx, "wire", 10)
	require.NoError(t, err)

	texts := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		assert.Equal(t, domain.SuggestionProduct, s.Type)
		texts = append(texts, s.Text)
	}
	assert.ElementsMatch(t, []string{"Wireless Mouse", "Wired Mouse"}, texts, "duplicate titles collapse")
}

func TestSuggest_InactiveProductsExcluded(t *testing.T) {
	e := New()
	ctx := context.Background()

	sold := newProduct("p1", "Wireless Mouse", 20)
	sold.Status = domain.StatusSold
	require.NoError(t, e.Index(ctx, domain.EntityProducts, sold))

	suggestions, err := e.Suggest(ctx, "wire", 10)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestSuggest_IncludesCategoriesAndBrands(t *testing.T) {
	e := New()
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, domain.EntityCategories, &domain.CategoryDocument{
		ID:   "cat-1",
		Name: "Wireless Audio",
		Path: "electronics/wireless-audio",
	}))
	branded := newProduct("p1", "Headphones", 99)
	branded.Brand = "WireWorks"
	require.NoError(t, e.Index(ctx, domain.EntityProducts, branded))

	suggestions, err := e.Suggest(ctx, "wire", 10)
	require.NoError(t, err)

	kinds := make(map[string]bool)
	for _, s := range suggestions {
		kinds[s.Type] = true
	}
	assert.True(t, kinds[domain.SuggestionCategory])
	assert.True(t, kinds[domain.SuggestionBrand])
}

func TestSuggest_LimitRespected(t *testing.T) {
	e := New()
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		require.NoError(t, e.Index(ctx, domain.EntityProducts, newProduct(fmt.Sprintf("p%02d", i), fmt.Sprintf("Widget %02d", i), 5)))
	}

	suggestions, err := e.Suggest(ctx, "widget", 5)
	require.NoError(t, err)
	assert.Len(t, suggestions, 5)
}

func TestRecreateIndex_DropsDocuments(t *testing.T) {
	e := New()
	ctx := context.Background()
	seedCatalog(t, e)

	require.NoError(t, e.RecreateIndex(ctx, domain.EntityProducts))
	assert.Equal(t, 0, e.Len(domain.EntityProducts))
}

func TestStats(t *testing.T) {
	e := New()
	seedCatalog(t, e)

	stats, err := e.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 4)

	byIndex := make(map[string]domain.IndexStats)
	for _, s := range stats {
		byIndex[s.Index] = s
	}
	assert.Equal(t, int64(4), byIndex["marketplace_products"].DocCount)
	assert.Positive(t, byIndex["marketplace_products"].SizeBytes)
}
