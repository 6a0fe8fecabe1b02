package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/index/memory"
	apperrors "github.com/trademart/search-service/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func seedProducts(t *testing.T, engine *memory.Engine) {
	t.Helper()
	ctx := context.Background()

	docs := []*domain.ProductDocument{
		{
			ID: "p1", SellerID: "s1", Title: "Wireless Mouse", Description: "A mouse",
			CategoryID: "cat-1", Condition: "new", Status: domain.StatusActive,
			Brand: "Acme", Tags: []string{}, Price: 19.99, RelevanceBoost: 1,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		},
		{
			ID: "p2", SellerID: "s1", Title: "Mechanical Keyboard", Description: "A keyboard",
			CategoryID: "cat-1", Condition: "used", Status: domain.StatusActive,
			Brand: "Acme", Tags: []string{}, Price: 89.99, RelevanceBoost: 1,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		},
	}
	for _, d := range docs {
		require.NoError(t, engine.Index(ctx, domain.EntityProducts, d))
	}
}

func TestSearch_UnknownEntityTypeRejected(t *testing.T) {
	svc := NewSearchService(memory.New(), testLogger())

	_, err := svc.Search(context.Background(), "warehouses", &domain.SearchQuery{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSearch_InvertedPriceRangeRejected(t *testing.T) {
	svc := NewSearchService(memory.New(), testLogger())

	minPrice, maxPrice := 100.0, 10.0
	_, err := svc.Search(context.Background(), "products", &domain.SearchQuery{
		MinPrice: &minPrice,
		MaxPrice: &maxPrice,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSearch_UnknownSortFallsBackToRelevance(t *testing.T) {
	engine := memory.New()
	seedProducts(t, engine)
	svc := NewSearchService(engine, testLogger())

	result, err := svc.Search(context.Background(), "products", &domain.SearchQuery{SortBy: "cheapest"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
}

func TestSearch_DefaultsApplied(t *testing.T) {
	engine := memory.New()
	seedProducts(t, engine)
	svc := NewSearchService(engine, testLogger())

	result, err := svc.Search(context.Background(), "products", &domain.SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPage, result.Page)
	assert.Equal(t, domain.DefaultPageSize, result.PageSize)
}

func TestAutocomplete_ShortPrefixReturnsEmpty(t *testing.T) {
	engine := memory.New()
	seedProducts(t, engine)
	svc := NewSearchService(engine, testLogger())

	suggestions, err := svc.Autocomplete(context.Background(), "w", 10)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestAutocomplete_ReturnsTypedSuggestions(t *testing.T) {
	engine := memory.New()
	seedProducts(t, engine)
	svc := NewSearchService(engine, testLogger())

	suggestions, err := svc.Autocomplete(context.Background(), "wire", 10)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Wireless Mouse", suggestions[0].Text)
	assert.Equal(t, domain.SuggestionProduct, suggestions[0].Type)
}

func TestFacets_ReturnsAggregationsOnly(t *testing.T) {
	engine := memory.New()
	seedProducts(t, engine)
	svc := NewSearchService(engine, testLogger())

	aggs, err := svc.Facets(context.Background(), "products", &domain.SearchQuery{})
	require.NoError(t, err)
	require.NotNil(t, aggs)

	require.Len(t, aggs.Categories, 1)
	assert.Equal(t, "cat-1", aggs.Categories[0].Key)
	assert.Equal(t, int64(2), aggs.Categories[0].Count)
	assert.Len(t, aggs.Conditions, 2)
}

func TestStats(t *testing.T) {
	engine := memory.New()
	seedProducts(t, engine)
	svc := NewSearchService(engine, testLogger())

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 4)
}
