// Package memory provides an in-memory implementation of index.Engine.
// It mirrors the Elasticsearch engine's observable behavior closely enough
// for service and handler tests: idempotent upserts, no-op updates on
// missing documents, the monotonic bid guard, filtered facets and prefix
// autocomplete.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/index"
)

// Engine is a thread-safe in-memory search engine.
type Engine struct {
	mu      sync.RWMutex
	indices map[domain.EntityType]map[string]map[string]any
}

var _ index.Engine = (*Engine)(nil)

// New creates an empty in-memory engine with all indices present.
func New() *Engine {
	e := &Engine{indices: make(map[domain.EntityType]map[string]map[string]any)}
	for _, entity := range domain.EntityTypes() {
		e.indices[entity] = make(map[string]map[string]any)
	}
	return e
}

// EnsureIndices is a no-op; indices exist from construction.
func (e *Engine) EnsureIndices(_ context.Context) error { return nil }

// RecreateIndex drops all documents from one index.
func (e *Engine) RecreateIndex(_ context.Context, entity domain.EntityType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indices[entity] = make(map[string]map[string]any)
	return nil
}

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error { return nil }

// RefreshAll is a no-op; writes are immediately visible.
func (e *Engine) RefreshAll(_ context.Context) error { return nil }

// toMap round-trips a document through JSON so stored shapes match what the
// Elasticsearch engine would return from _source.
func toMap(doc any) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return m, nil
}

// Index upserts a full document keyed by its id.
func (e *Engine) Index(_ context.Context, entity domain.EntityType, doc index.Document) error {
	if doc.DocID() == "" {
		return fmt.Errorf("memory index: empty document id")
	}
	m, err := toMap(doc)
	if err != nil {
		return fmt.Errorf("memory index: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.indices[entity][doc.DocID()] = m
	return nil
}

// Update merges fields into an existing document. Missing documents are a
// no-op.
func (e *Engine) Update(_ context.Context, entity domain.EntityType, id string, fields map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, ok := e.indices[entity][id]
	if !ok {
		return nil
	}
	for k, v := range fields {
		if k == "status" {
			incoming, isStr := v.(string)
			if !isStr || !domain.StatusMovesForward(strField(doc, "status"), incoming) {
				continue
			}
		}
		doc[k] = v
	}
	return nil
}

// ApplyBid applies live-bid state to an auction document, enforcing the
// monotonic currentBid guard and sticky reserveMet. Missing documents and
// stale bids are no-ops.
func (e *Engine) ApplyBid(_ context.Context, id string, bid domain.BidState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, ok := e.indices[domain.EntityAuctions][id]
	if !ok {
		return nil
	}

	if current, ok := numField(doc, "currentBid"); ok && bid.CurrentBid < current {
		return nil
	}

	doc["currentBid"] = bid.CurrentBid
	doc["bidsCount"] = bid.BidsCount
	if bid.HighestBidder != "" {
		doc["highestBidder"] = bid.HighestBidder
	}
	if bid.ReserveMet != nil && *bid.ReserveMet {
		doc["reserveMet"] = true
	}
	doc["updatedAt"] = bid.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")
	return nil
}

// Delete removes a document; deleting an absent document succeeds.
func (e *Engine) Delete(_ context.Context, entity domain.EntityType, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.indices[entity], id)
	return nil
}

// BulkIndex upserts a batch, collecting per-document failures instead of
// aborting.
func (e *Engine) BulkIndex(ctx context.Context, entity domain.EntityType, docs []index.Document) (*index.BulkResult, error) {
	result := &index.BulkResult{}
	for _, doc := range docs {
		if err := e.Index(ctx, entity, doc); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, index.BulkError{
				ID:     doc.DocID(),
				Type:   "document_error",
				Reason: err.Error(),
			})
			continue
		}
		result.Successful++
	}
	return result, nil
}

// Stats reports document counts; size is approximated from encoded length.
func (e *Engine) Stats(_ context.Context) ([]domain.IndexStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := make([]domain.IndexStats, 0, len(domain.EntityTypes()))
	for _, entity := range domain.EntityTypes() {
		var size int64
		for _, doc := range e.indices[entity] {
			if data, err := json.Marshal(doc); err == nil {
				size += int64(len(data))
			}
		}
		stats = append(stats, domain.IndexStats{
			Index:     DefaultIndexPrefix + "_" + string(entity),
			DocCount:  int64(len(e.indices[entity])),
			SizeBytes: size,
		})
	}
	return stats, nil
}

// DefaultIndexPrefix matches the production engine's naming in stats output.
const DefaultIndexPrefix = "marketplace"

// Len returns the number of documents in one index. Test helper.
func (e *Engine) Len(entity domain.EntityType) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.indices[entity])
}

// Get returns a stored document copy by id. Test helper.
func (e *Engine) Get(entity domain.EntityType, id string) (map[string]any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.indices[entity][id]
	if !ok {
		return nil, false
	}
	cp := make(map[string]any, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	return cp, true
}

func strField(doc map[string]any, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func numField(doc map[string]any, key string) (float64, bool) {
	switch v := doc[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func boolField(doc map[string]any, key string) (bool, bool) {
	v, ok := doc[key].(bool)
	return v, ok
}

type scoredDoc struct {
	doc   map[string]any
	score float64
}

// Search filters, scores, sorts and paginates documents of one entity.
func (e *Engine) Search(_ context.Context, entity domain.EntityType, query *domain.SearchQuery) (*domain.SearchResult, error) {
	query.Normalize()

	e.mu.RLock()
	matched := make([]scoredDoc, 0)
	for _, doc := range e.indices[entity] {
		if !matchesFilters(doc, query) {
			continue
		}
		score, ok := textScore(doc, query.Query)
		if !ok {
			continue
		}
		matched = append(matched, scoredDoc{doc: doc, score: score})
	}
	e.mu.RUnlock()

	sortDocs(matched, query.SortBy)

	total := int64(len(matched))
	totalPages := int((total + int64(query.PageSize) - 1) / int64(query.PageSize))

	start := (query.Page - 1) * query.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + query.PageSize
	if end > len(matched) {
		end = len(matched)
	}

	// Hits are copies; callers must not be able to mutate the index.
	items := make([]map[string]any, 0, end-start)
	for _, sd := range matched[start:end] {
		cp := make(map[string]any, len(sd.doc))
		for k, v := range sd.doc {
			cp[k] = v
		}
		items = append(items, cp)
	}

	result := &domain.SearchResult{
		Items:      items,
		Total:      total,
		Page:       query.Page,
		PageSize:   query.PageSize,
		TotalPages: totalPages,
	}
	if query.IncludeAggregations {
		result.Aggregations = aggregate(matched)
	}
	return result, nil
}

// textScore returns a relevance score for the document against the query
// text, or false when the document doesn't match. Field weights follow the
// production query: title 4, description 2, brand 1.5, tags 1, and the whole
// score is multiplied by the document's relevanceBoost.
func textScore(doc map[string]any, text string) (float64, bool) {
	if text == "" {
		boost, _ := numField(doc, "relevanceBoost")
		if boost == 0 {
			boost = 1
		}
		return boost, true
	}

	needle := strings.ToLower(text)
	var score float64

	if strings.Contains(strings.ToLower(strField(doc, "title")), needle) {
		score += 4
	}
	if strings.Contains(strings.ToLower(strField(doc, "name")), needle) {
		score += 4
	}
	if strings.Contains(strings.ToLower(strField(doc, "description")), needle) {
		score += 2
	}
	if strings.Contains(strings.ToLower(strField(doc, "brand")), needle) {
		score += 1.5
	}
	if tags, ok := doc["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok && strings.Contains(strings.ToLower(s), needle) {
				score += 1
				break
			}
		}
	}

	if score == 0 {
		return 0, false
	}
	if boost, ok := numField(doc, "relevanceBoost"); ok && boost > 0 {
		score *= boost
	}
	return score, true
}

func matchesFilters(doc map[string]any, query *domain.SearchQuery) bool {
	if query.CategoryID != nil && strField(doc, "categoryId") != *query.CategoryID {
		return false
	}
	if query.Brand != nil && !strings.EqualFold(strField(doc, "brand"), *query.Brand) {
		return false
	}
	if query.ListingType != nil && strField(doc, "type") != *query.ListingType {
		return false
	}
	if query.FreeShipping != nil {
		v, _ := boolField(doc, "freeShipping")
		if v != *query.FreeShipping {
			return false
		}
	}
	if len(query.Conditions) > 0 && !containsString(query.Conditions, strField(doc, "condition")) {
		return false
	}
	if len(query.Statuses) > 0 && !containsString(query.Statuses, strField(doc, "status")) {
		return false
	}

	if query.MinPrice != nil || query.MaxPrice != nil {
		price, ok := numField(doc, "price")
		if !ok {
			return false
		}
		if query.MinPrice != nil && price < *query.MinPrice {
			return false
		}
		if query.MaxPrice != nil && price > *query.MaxPrice {
			return false
		}
	}

	if query.Geo != nil {
		loc, ok := doc["location"].(map[string]any)
		if !ok {
			// Documents without a location never match a geo filter.
			return false
		}
		lat, latOK := numField(loc, "lat")
		lon, lonOK := numField(loc, "lon")
		if !latOK || !lonOK {
			return false
		}
		if haversineKm(query.Geo.Lat, query.Geo.Lon, lat, lon) > query.Geo.RadiusKm {
			return false
		}
	}

	return true
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

const earthRadiusKm = 6371.0

// haversineKm computes the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// sortDocs orders matches by the requested sort, breaking ties by id so
// pagination is stable.
func sortDocs(docs []scoredDoc, sortBy string) {
	// Relevance breaks score ties by popularity, then recency, mirroring
	// the production sort clause.
	less := func(a, b scoredDoc) bool {
		if a.score != b.score {
			return a.score > b.score
		}
		ap, _ := numField(a.doc, "popularityScore")
		bp, _ := numField(b.doc, "popularityScore")
		if ap != bp {
			return ap > bp
		}
		return strField(a.doc, "createdAt") > strField(b.doc, "createdAt")
	}

	byNum := func(field string, asc bool) func(a, b scoredDoc) bool {
		return func(a, b scoredDoc) bool {
			av, _ := numField(a.doc, field)
			bv, _ := numField(b.doc, field)
			if asc {
				return av < bv
			}
			return av > bv
		}
	}
	byStr := func(field string, asc bool) func(a, b scoredDoc) bool {
		return func(a, b scoredDoc) bool {
			av := strField(a.doc, field)
			bv := strField(b.doc, field)
			if asc {
				return av < bv
			}
			return av > bv
		}
	}

	switch sortBy {
	case domain.SortPriceAsc:
		less = byNum("price", true)
	case domain.SortPriceDesc:
		less = byNum("price", false)
	case domain.SortNewest:
		// RFC 3339 timestamps sort lexicographically.
		less = byStr("createdAt", false)
	case domain.SortEndingSoon:
		less = byStr("endAt", true)
	case domain.SortPopularity:
		less = byNum("popularityScore", false)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if less(docs[i], docs[j]) {
			return true
		}
		if less(docs[j], docs[i]) {
			return false
		}
		return strField(docs[i].doc, "id") < strField(docs[j].doc, "id")
	})
}

// aggregate computes facets over the full filtered match set.
func aggregate(matched []scoredDoc) *domain.Aggregations {
	categories := make(map[string]int64)
	conditions := make(map[string]int64)

	type rangeBound struct {
		key  string
		from *float64
		to   *float64
	}
	ptr := func(v float64) *float64 { return &v }
	bounds := []rangeBound{
		{key: "0-25", from: ptr(0), to: ptr(25)},
		{key: "25-100", from: ptr(25), to: ptr(100)},
		{key: "100-500", from: ptr(100), to: ptr(500)},
		{key: "500+", from: ptr(500)},
	}
	rangeCounts := make(map[string]int64)

	for _, sd := range matched {
		if cat := strField(sd.doc, "categoryId"); cat != "" {
			categories[cat]++
		}
		if cond := strField(sd.doc, "condition"); cond != "" {
			conditions[cond]++
		}
		if price, ok := numField(sd.doc, "price"); ok {
			for _, b := range bounds {
				// Range semantics match the store: from inclusive, to exclusive.
				if b.from != nil && price < *b.from {
					continue
				}
				if b.to != nil && price >= *b.to {
					continue
				}
				rangeCounts[b.key]++
			}
		}
	}

	toBuckets := func(counts map[string]int64) []domain.Bucket {
		buckets := make([]domain.Bucket, 0, len(counts))
		for key, count := range counts {
			buckets = append(buckets, domain.Bucket{Key: key, Count: count})
		}
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Count != buckets[j].Count {
				return buckets[i].Count > buckets[j].Count
			}
			return buckets[i].Key < buckets[j].Key
		})
		return buckets
	}

	aggs := &domain.Aggregations{
		Categories:  toBuckets(categories),
		Conditions:  toBuckets(conditions),
		PriceRanges: make([]domain.RangeBucket, 0, len(bounds)),
	}
	for _, b := range bounds {
		aggs.PriceRanges = append(aggs.PriceRanges, domain.RangeBucket{
			Key:   b.key,
			From:  b.from,
			To:    b.to,
			Count: rangeCounts[b.key],
		})
	}
	return aggs
}

// Suggest returns prefix-matched autocomplete candidates from product
// titles, category names and brands, deduplicated case-insensitively.
func (e *Engine) Suggest(_ context.Context, prefix string, limit int) ([]domain.Suggestion, error) {
	if limit <= 0 || limit > domain.MaxSuggestions {
		limit = domain.MaxSuggestions
	}
	needle := strings.ToLower(prefix)

	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]struct{})
	suggestions := make([]domain.Suggestion, 0, limit)

	add := func(text, kind string) bool {
		if text == "" || !hasPrefixAnyWord(strings.ToLower(text), needle) {
			return false
		}
		key := kind + ":" + strings.ToLower(text)
		if _, exists := seen[key]; exists {
			return false
		}
		seen[key] = struct{}{}
		suggestions = append(suggestions, domain.Suggestion{Text: text, Type: kind})
		return len(suggestions) >= limit
	}

	collect := func(entity domain.EntityType, field, kind string, activeOnly bool) bool {
		ids := make([]string, 0, len(e.indices[entity]))
		for id := range e.indices[entity] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			doc := e.indices[entity][id]
			if activeOnly && strField(doc, "status") != domain.StatusActive {
				continue
			}
			if add(strField(doc, field), kind) {
				return true
			}
		}
		return false
	}

	if collect(domain.EntityProducts, "title", domain.SuggestionProduct, true) {
		return suggestions, nil
	}
	if collect(domain.EntityCategories, "name", domain.SuggestionCategory, false) {
		return suggestions, nil
	}
	collect(domain.EntityProducts, "brand", domain.SuggestionBrand, true)
	return suggestions, nil
}

// hasPrefixAnyWord reports whether any word in text starts with the prefix,
// approximating the edge-ngram analyzer's behavior.
func hasPrefixAnyWord(text, prefix string) bool {
	if prefix == "" {
		return false
	}
	for _, word := range strings.Fields(text) {
		if strings.HasPrefix(word, prefix) {
			return true
		}
	}
	return false
}
