package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/trademart/search-service/internal/domain"
)

// esSearchResponse is the structure used to decode Elasticsearch search
// responses. Hit sources stay raw maps because a result set may span
// heterogeneous entity types.
type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		Categories struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
			} `json:"buckets"`
		} `json:"categories"`
		Conditions struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
			} `json:"buckets"`
		} `json:"conditions"`
		PriceRanges struct {
			Buckets []struct {
				Key      string   `json:"key"`
				From     *float64 `json:"from"`
				To       *float64 `json:"to"`
				DocCount int64    `json:"doc_count"`
			} `json:"buckets"`
		} `json:"priceRanges"`
	} `json:"aggregations"`
}

// Search executes a query against one entity's index.
func (e *Engine) Search(ctx context.Context, entity domain.EntityType, query *domain.SearchQuery) (*domain.SearchResult, error) {
	query.Normalize()

	esQuery := buildSearchBody(query)

	data, err := json.Marshal(esQuery)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName(entity)),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("elasticsearch search", res.Body, res.Status())
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	items := make([]map[string]any, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		items = append(items, hit.Source)
	}

	total := esResp.Hits.Total.Value
	totalPages := int((total + int64(query.PageSize) - 1) / int64(query.PageSize))

	result := &domain.SearchResult{
		Items:      items,
		Total:      total,
		Page:       query.Page,
		PageSize:   query.PageSize,
		TotalPages: totalPages,
	}

	if query.IncludeAggregations {
		result.Aggregations = decodeAggregations(&esResp)
	}
	return result, nil
}

// buildSearchBody constructs the full search request body.
func buildSearchBody(query *domain.SearchQuery) map[string]any {
	boolQuery := map[string]any{
		"must": []any{buildMatchClause(query.Query)},
	}
	if filters := buildFilters(query); len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	// Wrap in function_score so the projector's relevanceBoost multiplies the
	// text score. Documents without the field score neutrally.
	scored := map[string]any{
		"function_score": map[string]any{
			"query": map[string]any{"bool": boolQuery},
			"functions": []any{
				map[string]any{
					"field_value_factor": map[string]any{
						"field":   "relevanceBoost",
						"factor":  1.0,
						"missing": 1.0,
					},
				},
			},
			"boost_mode": "multiply",
		},
	}

	body := map[string]any{
		"query":            scored,
		"from":             (query.Page - 1) * query.PageSize,
		"size":             query.PageSize,
		"track_total_hits": true,
	}

	if sortClause := buildSort(query.SortBy); sortClause != nil {
		body["sort"] = sortClause
	}
	if query.IncludeAggregations {
		body["aggs"] = buildAggregations()
	}
	return body
}

// buildMatchClause builds the text-matching part of the query. An empty query
// string matches everything, so pure filter browsing works.
func buildMatchClause(text string) map[string]any {
	if text == "" {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{
		"multi_match": map[string]any{
			"query":         text,
			"fields":        []string{"title^4", "title.autocomplete^2", "description^2", "brand^1.5", "tags"},
			"type":          "best_fields",
			"fuzziness":     "AUTO",
			"prefix_length": 2,
		},
	}
}

// buildFilters constructs the filter clauses; all filters are ANDed.
func buildFilters(query *domain.SearchQuery) []any {
	var filters []any

	term := func(field string, value any) map[string]any {
		return map[string]any{"term": map[string]any{field: value}}
	}

	if query.CategoryID != nil {
		filters = append(filters, term("categoryId", *query.CategoryID))
	}
	if query.Brand != nil {
		filters = append(filters, term("brand.keyword", *query.Brand))
	}
	if query.ListingType != nil {
		filters = append(filters, term("type", *query.ListingType))
	}
	if query.FreeShipping != nil {
		filters = append(filters, term("freeShipping", *query.FreeShipping))
	}

	if len(query.Conditions) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"condition": query.Conditions},
		})
	}
	if len(query.Statuses) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"status": query.Statuses},
		})
	}

	if query.MinPrice != nil || query.MaxPrice != nil {
		rangeFilter := map[string]any{}
		if query.MinPrice != nil {
			rangeFilter["gte"] = *query.MinPrice
		}
		if query.MaxPrice != nil {
			rangeFilter["lte"] = *query.MaxPrice
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"price": rangeFilter},
		})
	}

	if query.Geo != nil {
		filters = append(filters, map[string]any{
			"geo_distance": map[string]any{
				"distance": fmt.Sprintf("%.2fkm", query.Geo.RadiusKm),
				"location": map[string]any{
					"lat": query.Geo.Lat,
					"lon": query.Geo.Lon,
				},
			},
		})
	}

	return filters
}

// buildSort constructs the sort clause. Relevance orders by score, breaking
// ties by popularity and then recency.
func buildSort(sortBy string) []any {
	switch sortBy {
	case domain.SortPriceAsc:
		return []any{map[string]any{"price": "asc"}}
	case domain.SortPriceDesc:
		return []any{map[string]any{"price": "desc"}}
	case domain.SortNewest:
		return []any{map[string]any{"createdAt": "desc"}}
	case domain.SortEndingSoon:
		return []any{map[string]any{"endAt": "asc"}}
	case domain.SortPopularity:
		return []any{map[string]any{"popularityScore": "desc"}}
	default:
		return []any{
			map[string]any{"_score": "desc"},
			map[string]any{"popularityScore": "desc"},
			map[string]any{"createdAt": "desc"},
		}
	}
}

// priceRangeBounds defines the fixed price facet buckets.
var priceRangeBounds = []struct {
	Key  string
	From *float64
	To   *float64
}{
	{Key: "0-25", From: ptr(0.0), To: ptr(25.0)},
	{Key: "25-100", From: ptr(25.0), To: ptr(100.0)},
	{Key: "100-500", From: ptr(100.0), To: ptr(500.0)},
	{Key: "500+", From: ptr(500.0), To: nil},
}

func ptr[T any](v T) *T { return &v }

// buildAggregations builds facet aggregations. They run inside the filtered
// query, so counts match what the user would get after refining.
func buildAggregations() map[string]any {
	ranges := make([]any, 0, len(priceRangeBounds))
	for _, b := range priceRangeBounds {
		r := map[string]any{"key": b.Key}
		if b.From != nil {
			r["from"] = *b.From
		}
		if b.To != nil {
			r["to"] = *b.To
		}
		ranges = append(ranges, r)
	}

	return map[string]any{
		"categories": map[string]any{
			"terms": map[string]any{"field": "categoryId", "size": 20},
		},
		"conditions": map[string]any{
			"terms": map[string]any{"field": "condition", "size": 10},
		},
		"priceRanges": map[string]any{
			"range": map[string]any{"field": "price", "keyed": false, "ranges": ranges},
		},
	}
}

func decodeAggregations(resp *esSearchResponse) *domain.Aggregations {
	aggs := &domain.Aggregations{
		Categories:  []domain.Bucket{},
		Conditions:  []domain.Bucket{},
		PriceRanges: []domain.RangeBucket{},
	}
	for _, b := range resp.Aggregations.Categories.Buckets {
		aggs.Categories = append(aggs.Categories, domain.Bucket{Key: b.Key, Count: b.DocCount})
	}
	for _, b := range resp.Aggregations.Conditions.Buckets {
		aggs.Conditions = append(aggs.Conditions, domain.Bucket{Key: b.Key, Count: b.DocCount})
	}
	for _, b := range resp.Aggregations.PriceRanges.Buckets {
		aggs.PriceRanges = append(aggs.PriceRanges, domain.RangeBucket{
			Key:   b.Key,
			From:  b.From,
			To:    b.To,
			Count: b.DocCount,
		})
	}
	return aggs
}
