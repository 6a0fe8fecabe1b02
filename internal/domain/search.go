package domain

// Sort orders supported by the search API.
const (
	SortRelevance  = "relevance"
	SortPriceAsc   = "price_asc"
	SortPriceDesc  = "price_desc"
	SortNewest     = "newest"
	SortEndingSoon = "ending_soon"
	SortPopularity = "popularity"
)

// IsValidSort reports whether the given sort order is supported.
func IsValidSort(s string) bool {
	switch s {
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest, SortEndingSoon, SortPopularity:
		return true
	}
	return false
}

// Pagination bounds. PageSize is clamped to MaxPageSize, never rejected.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// GeoFilter restricts results to documents within RadiusKm of a point.
// Documents without a location never match a geo filter.
type GeoFilter struct {
	Lat      float64
	Lon      float64
	RadiusKm float64
}

// SearchQuery is the normalized search request handed to the engine.
// All filters are ANDed together; an empty Query matches all documents.
type SearchQuery struct {
	Query string

	CategoryID   *string
	Conditions   []string
	Statuses     []string
	Brand        *string
	MinPrice     *float64
	MaxPrice     *float64
	FreeShipping *bool
	ListingType  *string
	Geo          *GeoFilter

	SortBy   string
	Page     int
	PageSize int

	// IncludeAggregations asks the engine to compute facets over the
	// filtered result set alongside the hits.
	IncludeAggregations bool
}

// Normalize applies defaults and clamps pagination in place.
func (q *SearchQuery) Normalize() {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.SortBy == "" {
		q.SortBy = SortRelevance
	}
}

// Bucket is a single facet value with its document count.
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// RangeBucket is a price-range facet bucket. From/To are nil for open ends.
type RangeBucket struct {
	Key   string   `json:"key"`
	From  *float64 `json:"from,omitempty"`
	To    *float64 `json:"to,omitempty"`
	Count int64    `json:"count"`
}

// Aggregations are facets computed over the filtered result set, so the UI
// can show counts consistent with what the user would see after refining.
type Aggregations struct {
	Categories  []Bucket      `json:"categories"`
	Conditions  []Bucket      `json:"conditions"`
	PriceRanges []RangeBucket `json:"priceRanges"`
}

// SearchResult is a page of hits plus pagination metadata. Items are raw
// documents because a single result set may span heterogeneous entity types.
type SearchResult struct {
	Items        []map[string]any `json:"items"`
	Total        int64            `json:"total"`
	Page         int              `json:"page"`
	PageSize     int              `json:"pageSize"`
	TotalPages   int              `json:"totalPages"`
	Aggregations *Aggregations    `json:"aggregations,omitempty"`
}

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Suggestion types.
const (
	SuggestionProduct  = "product"
	SuggestionCategory = "category"
	SuggestionBrand    = "brand"
)

// MaxSuggestions caps how many autocomplete candidates are returned.
const MaxSuggestions = 20

// IndexStats reports per-index document counts and storage size.
type IndexStats struct {
	Index     string `json:"index"`
	DocCount  int64  `json:"docCount"`
	SizeBytes int64  `json:"sizeBytes"`
}

// ReindexSummary is the per-entity outcome of a bulk reindex run.
type ReindexSummary struct {
	Entity     EntityType `json:"entity"`
	Total      int64      `json:"total"`
	Indexed    int64      `json:"indexed"`
	Failed     int64      `json:"failed"`
	DurationMs int64      `json:"durationMs"`
}
