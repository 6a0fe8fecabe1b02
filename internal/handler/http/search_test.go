package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/index/memory"
	"github.com/trademart/search-service/internal/service"
	"github.com/trademart/search-service/pkg/health"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func setupServer(t *testing.T) (*httptest.Server, *memory.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
	engine := memory.New()

	healthHandler := health.NewHandler()
	healthHandler.Register("index", engine.Ping)

	router := NewRouter(service.NewSearchService(engine, logger), healthHandler, logger)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, engine
}

func seed(t *testing.T, engine *memory.Engine) {
	t.Helper()
	ctx := context.Background()

	docs := []*domain.ProductDocument{
		{
			ID: "p1", SellerID: "s1", Title: "Wireless Mouse", Description: "A quiet mouse",
			CategoryID: "cat-1", Condition: "new", Status: domain.StatusActive,
			Brand: "Acme", Tags: []string{}, Price: 19.99, RelevanceBoost: 1,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		},
		{
			ID: "p2", SellerID: "s1", Title: "Ergonomic Keyboard", Description: "A keyboard",
			CategoryID: "cat-2", Condition: "used", Status: domain.StatusActive,
			Brand: "KeyCo", Tags: []string{}, Price: 89.99, RelevanceBoost: 1,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		},
	}
	for _, d := range docs {
		require.NoError(t, engine.Index(ctx, domain.EntityProducts, d))
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func get(t *testing.T, srv *httptest.Server, path string) (int, envelope) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestSearchEndpoint(t *testing.T) {
	srv, engine := setupServer(t)
	seed(t, engine)

	status, env := get(t, srv, "/api/v1/search/products?q=mouse")
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	var result domain.SearchResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, int64(1), result.Total)
	assert.Equal(t, "p1", result.Items[0]["id"])
	assert.NotNil(t, result.Aggregations, "search responses include facets")
}

func TestSearchEndpoint_Filters(t *testing.T) {
	srv, engine := setupServer(t)
	seed(t, engine)

	status, env := get(t, srv, "/api/v1/search/products?categoryId=cat-2&condition=used,refurbished")
	require.Equal(t, http.StatusOK, status)

	var result domain.SearchResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, int64(1), result.Total)
	assert.Equal(t, "p2", result.Items[0]["id"])
}

func TestSearchEndpoint_UnknownEntityType(t *testing.T) {
	srv, _ := setupServer(t)

	status, env := get(t, srv, "/api/v1/search/warehouses")
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestSearchEndpoint_InvalidPrice(t *testing.T) {
	srv, _ := setupServer(t)

	status, env := get(t, srv, "/api/v1/search/products?priceMin=abc")
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_PARAMETER", env.Error.Code)
}

func TestSearchEndpoint_InvertedPriceRange(t *testing.T) {
	srv, _ := setupServer(t)

	status, _ := get(t, srv, "/api/v1/search/products?priceMin=100&priceMax=10")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSearchEndpoint_PartialGeoParamsRejected(t *testing.T) {
	srv, _ := setupServer(t)

	status, env := get(t, srv, "/api/v1/search/products?lat=40.7")
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "radiusKm")
}

func TestSearchEndpoint_InvalidListingTypeFailsValidation(t *testing.T) {
	srv, _ := setupServer(t)

	status, env := get(t, srv, "/api/v1/search/listings?type=raffle")
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestSearchEndpoint_OversizedPageSizeClamped(t *testing.T) {
	srv, engine := setupServer(t)
	seed(t, engine)

	status, env := get(t, srv, "/api/v1/search/products?pageSize=9999")
	require.Equal(t, http.StatusOK, status)

	var result domain.SearchResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, domain.MaxPageSize, result.PageSize)
}

func TestAutocompleteEndpoint(t *testing.T) {
	srv, engine := setupServer(t)
	seed(t, engine)

	status, env := get(t, srv, "/api/v1/search/autocomplete?q=wire&limit=5")
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Suggestions []domain.Suggestion `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Suggestions, 1)
	assert.Equal(t, "Wireless Mouse", data.Suggestions[0].Text)
}

func TestAutocompleteEndpoint_EmptyPrefix(t *testing.T) {
	srv, _ := setupServer(t)

	status, env := get(t, srv, "/api/v1/search/autocomplete")
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Suggestions []domain.Suggestion `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Empty(t, data.Suggestions)
}

func TestFacetsEndpoint(t *testing.T) {
	srv, engine := setupServer(t)
	seed(t, engine)

	status, env := get(t, srv, "/api/v1/search/products/facets")
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Aggregations domain.Aggregations `json:"aggregations"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data.Aggregations.Categories, 2)
}

func TestStatsEndpoint(t *testing.T) {
	srv, engine := setupServer(t)
	seed(t, engine)

	status, env := get(t, srv, "/api/v1/search/stats")
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Indices []domain.IndexStats `json:"indices"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data.Indices, 4)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
