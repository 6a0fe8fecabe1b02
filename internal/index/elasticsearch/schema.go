package elasticsearch

import (
	"fmt"

	"github.com/trademart/search-service/internal/domain"
)

// DefaultIndexPrefix is prepended to every entity index name.
const DefaultIndexPrefix = "marketplace"

// indexSettings are shared by all indices: single shard for dev-scale
// clusters, english analysis for text fields and an edge-ngram analyzer
// for search-as-you-type on titles and names.
const indexSettings = `{
  "number_of_shards": 1,
  "number_of_replicas": 0,
  "analysis": {
    "analyzer": {
      "english_analyzer": {
        "type": "custom",
        "tokenizer": "standard",
        "filter": ["lowercase", "english_stop", "english_stemmer"]
      },
      "autocomplete_analyzer": {
        "type": "custom",
        "tokenizer": "autocomplete_tokenizer",
        "filter": ["lowercase"]
      },
      "autocomplete_search": {
        "type": "custom",
        "tokenizer": "standard",
        "filter": ["lowercase"]
      }
    },
    "tokenizer": {
      "autocomplete_tokenizer": {
        "type": "edge_ngram",
        "min_gram": 2,
        "max_gram": 20,
        "token_chars": ["letter", "digit"]
      }
    },
    "filter": {
      "english_stop": {
        "type": "stop",
        "stopwords": "_english_"
      },
      "english_stemmer": {
        "type": "stemmer",
        "language": "english"
      }
    }
  }
}`

// productProperties is the mapping shared by products, listings and auctions.
// Listing and auction mappings extend it with their own fields.
const productProperties = `
      "id":              { "type": "keyword" },
      "sellerId":        { "type": "keyword" },
      "title":           { "type": "text", "analyzer": "english_analyzer", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "description":     { "type": "text", "analyzer": "english_analyzer" },
      "categoryId":      { "type": "keyword" },
      "categoryPath":    { "type": "keyword" },
      "categoryName":    { "type": "text", "analyzer": "english_analyzer", "fields": { "keyword": { "type": "keyword" } } },
      "condition":       { "type": "keyword" },
      "status":          { "type": "keyword" },
      "brand":           { "type": "text", "analyzer": "english_analyzer", "fields": { "keyword": { "type": "keyword" }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "tags":            { "type": "keyword" },
      "price":           { "type": "double" },
      "viewsCount":      { "type": "long" },
      "favoritesCount":  { "type": "long" },
      "freeShipping":    { "type": "boolean" },
      "hasReturns":      { "type": "boolean" },
      "popularityScore": { "type": "double" },
      "qualityScore":    { "type": "double" },
      "relevanceBoost":  { "type": "double" },
      "location":        { "type": "geo_point" },
      "seller":          { "properties": { "id": { "type": "keyword" }, "name": { "type": "keyword" }, "rating": { "type": "double" }, "verified": { "type": "boolean" } } },
      "createdAt":       { "type": "date" },
      "updatedAt":       { "type": "date" }`

const listingProperties = productProperties + `,
      "type":            { "type": "keyword" },
      "startPrice":      { "type": "double" },
      "currentPrice":    { "type": "double" },
      "buyItNowPrice":   { "type": "double" },
      "reservePrice":    { "type": "double" },
      "startAt":         { "type": "date" },
      "endAt":           { "type": "date" },
      "bidsCount":       { "type": "long" },
      "watchersCount":   { "type": "long" },
      "featured":        { "type": "boolean" },
      "highlighted":     { "type": "boolean" }`

const auctionProperties = listingProperties + `,
      "currentBid":           { "type": "double" },
      "reserveMet":           { "type": "boolean" },
      "uniqueBidders":        { "type": "long" },
      "highestBidder":        { "type": "keyword" },
      "timeRemainingSeconds": { "type": "long" },
      "autoExtend":           { "type": "boolean" },
      "extensionMinutes":     { "type": "integer" }`

const categoryProperties = `
      "id":           { "type": "keyword" },
      "parentId":     { "type": "keyword" },
      "name":         { "type": "text", "analyzer": "english_analyzer", "fields": { "keyword": { "type": "keyword" }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "path":         { "type": "keyword" },
      "level":        { "type": "integer" },
      "productCount": { "type": "long" },
      "createdAt":    { "type": "date" },
      "updatedAt":    { "type": "date" }`

// buildIndexBody returns the full creation body (settings + mappings) for the
// given entity type.
func buildIndexBody(entity domain.EntityType) string {
	var props string
	switch entity {
	case domain.EntityProducts:
		props = productProperties
	case domain.EntityListings:
		props = listingProperties
	case domain.EntityAuctions:
		props = auctionProperties
	case domain.EntityCategories:
		props = categoryProperties
	}
	return fmt.Sprintf(`{"settings": %s, "mappings": {"properties": {%s}}}`, indexSettings, props)
}

// buildMappingsBody returns only the mappings properties, used by the
// add-only mapping update call.
func buildMappingsBody(entity domain.EntityType) string {
	var props string
	switch entity {
	case domain.EntityProducts:
		props = productProperties
	case domain.EntityListings:
		props = listingProperties
	case domain.EntityAuctions:
		props = auctionProperties
	case domain.EntityCategories:
		props = categoryProperties
	}
	return fmt.Sprintf(`{"properties": {%s}}`, props)
}
