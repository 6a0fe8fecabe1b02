// Package http exposes the search API over HTTP.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/service"
	"github.com/trademart/search-service/pkg/httputil"
	"github.com/trademart/search-service/pkg/validator"
)

// SearchHandler handles HTTP requests for the search endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{service: svc, logger: logger}
}

// searchParams carries the decoded query string for validation before it is
// turned into a domain query.
type searchParams struct {
	Query        string `validate:"max=256"`
	CategoryID   string
	Conditions   []string
	Statuses     []string
	Brand        string
	PriceMin     *float64 `validate:"omitempty,gte=0"`
	PriceMax     *float64 `validate:"omitempty,gte=0"`
	FreeShipping *bool
	ListingType  string   `validate:"omitempty,oneof=fixed auction"`
	Lat          *float64 `validate:"omitempty,gte=-90,lte=90"`
	Lon          *float64 `validate:"omitempty,gte=-180,lte=180"`
	RadiusKm     *float64 `validate:"omitempty,gt=0,lte=20000"`
	SortBy       string
	Page         int `validate:"gte=0"`
	PageSize     int `validate:"gte=0"`
}

// parseSearchParams decodes and validates the shared search query string.
// On failure it writes the error response and returns false.
func parseSearchParams(w http.ResponseWriter, r *http.Request) (*searchParams, bool) {
	q := r.URL.Query()
	params := &searchParams{
		Query:      strings.TrimSpace(q.Get("q")),
		CategoryID: q.Get("categoryId"),
		Brand:      q.Get("brand"),
		SortBy:     q.Get("sortBy"),
	}

	// Repeatable and comma-separated forms are both accepted for set filters.
	params.Conditions = splitMulti(q["condition"])
	params.Statuses = splitMulti(q["status"])

	floatParam := func(name string) (*float64, bool) {
		v := q.Get(name)
		if v == "" {
			return nil, true
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			httputil.BadRequest(w, "INVALID_PARAMETER", name+" must be a valid number")
			return nil, false
		}
		return &f, true
	}

	var ok bool
	if params.PriceMin, ok = floatParam("priceMin"); !ok {
		return nil, false
	}
	if params.PriceMax, ok = floatParam("priceMax"); !ok {
		return nil, false
	}
	if params.Lat, ok = floatParam("lat"); !ok {
		return nil, false
	}
	if params.Lon, ok = floatParam("lon"); !ok {
		return nil, false
	}
	if params.RadiusKm, ok = floatParam("radiusKm"); !ok {
		return nil, false
	}

	if v := q.Get("freeShipping"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.BadRequest(w, "INVALID_PARAMETER", "freeShipping must be true or false")
			return nil, false
		}
		params.FreeShipping = &b
	}
	if v := q.Get("type"); v != "" {
		params.ListingType = v
	}
	if v := q.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil && page > 0 {
			params.Page = page
		}
	}
	if v := q.Get("pageSize"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			params.PageSize = size
		}
	}

	if err := validator.Validate(params); err != nil {
		httputil.WriteValidationError(w, err)
		return nil, false
	}

	if params.PriceMin != nil && params.PriceMax != nil && *params.PriceMin > *params.PriceMax {
		httputil.BadRequest(w, "INVALID_PARAMETER", "priceMin must not exceed priceMax")
		return nil, false
	}
	if (params.Lat != nil || params.Lon != nil || params.RadiusKm != nil) &&
		(params.Lat == nil || params.Lon == nil || params.RadiusKm == nil) {
		httputil.BadRequest(w, "INVALID_PARAMETER", "geo filtering requires lat, lon and radiusKm together")
		return nil, false
	}

	return params, true
}

// splitMulti flattens repeated params and comma-separated values into one
// list, dropping empties.
func splitMulti(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (p *searchParams) toQuery() *domain.SearchQuery {
	query := &domain.SearchQuery{
		Query:      p.Query,
		Conditions: p.Conditions,
		Statuses:   p.Statuses,
		SortBy:     p.SortBy,
		Page:       p.Page,
		PageSize:   p.PageSize,
	}
	if p.CategoryID != "" {
		query.CategoryID = &p.CategoryID
	}
	if p.Brand != "" {
		query.Brand = &p.Brand
	}
	if p.ListingType != "" {
		query.ListingType = &p.ListingType
	}
	query.MinPrice = p.PriceMin
	query.MaxPrice = p.PriceMax
	query.FreeShipping = p.FreeShipping
	if p.Lat != nil && p.Lon != nil && p.RadiusKm != nil {
		query.Geo = &domain.GeoFilter{Lat: *p.Lat, Lon: *p.Lon, RadiusKm: *p.RadiusKm}
	}
	return query
}

// Search handles GET /api/v1/search/{entityType}.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	params, ok := parseSearchParams(w, r)
	if !ok {
		return
	}

	query := params.toQuery()
	query.IncludeAggregations = true

	result, err := h.service.Search(r.Context(), chi.URLParam(r, "entityType"), query)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.OK(w, result)
}

// Autocomplete handles GET /api/v1/search/autocomplete.
func (h *SearchHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= domain.MaxSuggestions {
			limit = l
		}
	}

	suggestions, err := h.service.Autocomplete(r.Context(), prefix, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.OK(w, map[string]any{"suggestions": suggestions})
}

// Facets handles GET /api/v1/search/{entityType}/facets. It accepts the same
// filters as Search but returns only the aggregations.
func (h *SearchHandler) Facets(w http.ResponseWriter, r *http.Request) {
	params, ok := parseSearchParams(w, r)
	if !ok {
		return
	}

	aggs, err := h.service.Facets(r.Context(), chi.URLParam(r, "entityType"), params.toQuery())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.OK(w, map[string]any{"aggregations": aggs})
}

// Stats handles GET /api/v1/search/stats.
func (h *SearchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.OK(w, map[string]any{"indices": stats})
}
