// Package service holds the business logic between the HTTP/event surfaces
// and the search engine.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/index"
	apperrors "github.com/trademart/search-service/pkg/errors"
)

// SearchService validates and executes search, autocomplete and facet
// queries.
type SearchService struct {
	engine index.Engine
	logger *slog.Logger
}

// NewSearchService creates a search service backed by the given engine.
func NewSearchService(engine index.Engine, logger *slog.Logger) *SearchService {
	return &SearchService{engine: engine, logger: logger}
}

// Search runs a query against one entity's index. Unknown entity types are
// rejected; unknown sort orders fall back to relevance, and pagination is
// clamped rather than rejected.
func (s *SearchService) Search(ctx context.Context, entityType string, query *domain.SearchQuery) (*domain.SearchResult, error) {
	if !domain.IsValidEntityType(entityType) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown entity type %q", entityType))
	}
	if query.MinPrice != nil && query.MaxPrice != nil && *query.MinPrice > *query.MaxPrice {
		return nil, apperrors.InvalidInput("priceMin cannot exceed priceMax")
	}
	if query.SortBy != "" && !domain.IsValidSort(query.SortBy) {
		s.logger.Debug("unknown sort order, using relevance", "sort_by", query.SortBy)
		query.SortBy = domain.SortRelevance
	}
	query.Normalize()

	result, err := s.engine.Search(ctx, domain.EntityType(entityType), query)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", entityType, err)
	}
	return result, nil
}

// Autocomplete returns typed suggestions for a prefix. Prefixes shorter than
// two characters produce no results rather than an error, matching the
// minimum gram length of the autocomplete analyzer.
func (s *SearchService) Autocomplete(ctx context.Context, prefix string, limit int) ([]domain.Suggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < 2 {
		return []domain.Suggestion{}, nil
	}
	if limit <= 0 || limit > domain.MaxSuggestions {
		limit = domain.MaxSuggestions
	}

	suggestions, err := s.engine.Suggest(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("autocomplete: %w", err)
	}
	if suggestions == nil {
		suggestions = []domain.Suggestion{}
	}
	return suggestions, nil
}

// Facets runs the query for its aggregations only. The hits page is kept as
// small as the engine allows and discarded.
func (s *SearchService) Facets(ctx context.Context, entityType string, query *domain.SearchQuery) (*domain.Aggregations, error) {
	query.IncludeAggregations = true
	query.Page = 1
	query.PageSize = 1

	result, err := s.Search(ctx, entityType, query)
	if err != nil {
		return nil, err
	}
	return result.Aggregations, nil
}

// Stats reports per-index document counts and storage size.
func (s *SearchService) Stats(ctx context.Context) ([]domain.IndexStats, error) {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}
	return stats, nil
}
