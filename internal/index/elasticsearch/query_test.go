package elasticsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trademart/search-service/internal/domain"
)

func TestBuildSort_RelevanceTieBreaks(t *testing.T) {
	clauses := buildSort(domain.SortRelevance)

	require.Len(t, clauses, 3, "relevance sorts by score, popularity, recency")
	assert.Equal(t, map[string]any{"_score": "desc"}, clauses[0])
	assert.Equal(t, map[string]any{"popularityScore": "desc"}, clauses[1])
	assert.Equal(t, map[string]any{"createdAt": "desc"}, clauses[2])
}

func TestBuildSort_SingleFieldSorts(t *testing.T) {
	tests := []struct {
		sortBy string
		want   map[string]any
	}{
		{domain.SortPriceAsc, map[string]any{"price": "asc"}},
		{domain.SortPriceDesc, map[string]any{"price": "desc"}},
		{domain.SortNewest, map[string]any{"createdAt": "desc"}},
		{domain.SortEndingSoon, map[string]any{"endAt": "asc"}},
		{domain.SortPopularity, map[string]any{"popularityScore": "desc"}},
	}

	for _, tt := range tests {
		t.Run(tt.sortBy, func(t *testing.T) {
			clauses := buildSort(tt.sortBy)
			require.Len(t, clauses, 1)
			assert.Equal(t, tt.want, clauses[0])
		})
	}
}

func TestBuildSearchBody_IncludesSortAndPagination(t *testing.T) {
	query := &domain.SearchQuery{Query: "shoes", Page: 3, PageSize: 10}
	query.Normalize()

	body := buildSearchBody(query)

	assert.Equal(t, 20, body["from"])
	assert.Equal(t, 10, body["size"])
	require.IsType(t, []any{}, body["sort"])
	assert.Len(t, body["sort"], 3)
}
