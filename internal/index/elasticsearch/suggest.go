package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trademart/search-service/internal/domain"
)

// esSuggestResponse decodes the minimal fields the suggest queries project.
type esSuggestResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				Title string `json:"title"`
				Name  string `json:"name"`
				Brand string `json:"brand"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// suggestSource describes one index queried for autocomplete candidates.
type suggestSource struct {
	entity domain.EntityType
	field  string
	kind   string
	filter map[string]any
}

// Suggest returns autocomplete candidates for the given prefix, drawing from
// product titles, category names and brands. Results are deduplicated
// case-insensitively, preserve per-source relevance order, and are capped at
// the requested limit.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]domain.Suggestion, error) {
	if limit <= 0 || limit > domain.MaxSuggestions {
		limit = domain.MaxSuggestions
	}

	sources := []suggestSource{
		{
			entity: domain.EntityProducts,
			field:  "title",
			kind:   domain.SuggestionProduct,
			filter: map[string]any{"term": map[string]any{"status": "active"}},
		},
		{
			entity: domain.EntityCategories,
			field:  "name",
			kind:   domain.SuggestionCategory,
		},
		{
			entity: domain.EntityProducts,
			field:  "brand",
			kind:   domain.SuggestionBrand,
		},
	}

	seen := make(map[string]struct{})
	suggestions := make([]domain.Suggestion, 0, limit)

	for _, src := range sources {
		if len(suggestions) >= limit {
			break
		}
		texts, err := e.suggestFrom(ctx, src, prefix, limit)
		if err != nil {
			return nil, err
		}
		for _, text := range texts {
			if text == "" {
				continue
			}
			key := src.kind + ":" + strings.ToLower(text)
			if _, exists := seen[key]; exists {
				continue
			}
			seen[key] = struct{}{}
			suggestions = append(suggestions, domain.Suggestion{Text: text, Type: src.kind})
			if len(suggestions) >= limit {
				break
			}
		}
	}

	return suggestions, nil
}

func (e *Engine) suggestFrom(ctx context.Context, src suggestSource, prefix string, limit int) ([]string, error) {
	boolQuery := map[string]any{
		"must": []any{
			map[string]any{
				"match": map[string]any{src.field + ".autocomplete": prefix},
			},
		},
	}
	if src.filter != nil {
		boolQuery["filter"] = []any{src.filter}
	}

	query := map[string]any{
		"query":   map[string]any{"bool": boolQuery},
		"size":    limit,
		"_source": []string{src.field},
		"sort":    []any{map[string]any{"_score": "desc"}},
	}

	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName(src.entity)),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("elasticsearch suggest", res.Body, res.Status())
	}

	var esResp esSuggestResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: decode response: %w", err)
	}

	texts := make([]string, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		switch src.field {
		case "title":
			texts = append(texts, hit.Source.Title)
		case "name":
			texts = append(texts, hit.Source.Name)
		case "brand":
			texts = append(texts, hit.Source.Brand)
		}
	}
	return texts, nil
}
