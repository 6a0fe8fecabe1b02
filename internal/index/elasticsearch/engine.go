// Package elasticsearch implements the index.Engine interface on top of an
// Elasticsearch 8 cluster.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/index"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses   []string
	Username    string
	Password    string
	IndexPrefix string
	MaxRetries  int
}

// DefaultConfig returns a configuration suitable for a local cluster.
func DefaultConfig() Config {
	return Config{
		Addresses:   []string{"http://localhost:9200"},
		IndexPrefix: DefaultIndexPrefix,
		MaxRetries:  3,
	}
}

// Engine is an Elasticsearch-backed implementation of index.Engine.
type Engine struct {
	client      *elasticsearch.Client
	indexPrefix string
	logger      *slog.Logger
}

var _ index.Engine = (*Engine)(nil)

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// New creates an Elasticsearch engine. It does not touch the cluster; call
// WaitHealthy and EnsureIndices during startup.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = DefaultIndexPrefix
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    cfg.MaxRetries,
		RetryOnStatus: []int{502, 503, 504, 429},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	return &Engine{
		client:      client,
		indexPrefix: cfg.IndexPrefix,
		logger:      logger,
	}, nil
}

// indexName maps an entity type to its physical index name.
func (e *Engine) indexName(entity domain.EntityType) string {
	return e.indexPrefix + "_" + string(entity)
}

// decodeError turns an Elasticsearch error response body into a Go error.
func decodeError(op string, body io.Reader, status string) error {
	var errResp esErrorResponse
	if decErr := json.NewDecoder(body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, status)
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

const (
	healthAttempts = 30
	healthInterval = 2 * time.Second
)

// WaitHealthy polls cluster health until the cluster reports at least yellow
// status, for up to 30 attempts spaced 2 seconds apart. It is called once at
// startup before any index management.
func (e *Engine) WaitHealthy(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= healthAttempts; attempt++ {
		res, err := e.client.Cluster.Health(
			e.client.Cluster.Health.WithContext(ctx),
			e.client.Cluster.Health.WithWaitForStatus("yellow"),
			e.client.Cluster.Health.WithTimeout(healthInterval),
		)
		if err == nil {
			healthy := !res.IsError()
			_ = res.Body.Close()
			if healthy {
				if attempt > 1 {
					e.logger.Info("elasticsearch cluster healthy", "attempts", attempt)
				}
				return nil
			}
			lastErr = fmt.Errorf("cluster health: unexpected status %s", res.Status())
		} else {
			lastErr = err
		}

		e.logger.Warn("elasticsearch not ready, retrying",
			"attempt", attempt,
			"max_attempts", healthAttempts,
			"error", lastErr.Error(),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("elasticsearch wait healthy: %w", ctx.Err())
		case <-time.After(healthInterval):
		}
	}
	return fmt.Errorf("elasticsearch not healthy after %d attempts: %w", healthAttempts, lastErr)
}

// Index adds or replaces a single document. The write relies on the index's
// own refresh interval; it is not immediately visible to search.
func (e *Engine) Index(ctx context.Context, entity domain.EntityType, doc index.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.indexName(entity),
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(doc.DocID()),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("elasticsearch index", res.Body, res.Status())
	}

	e.logger.Debug("indexed document", "index", e.indexName(entity), "id", doc.DocID())
	return nil
}

// updateScript merges partial fields into the document. Status changes only
// apply when they move the lifecycle forward (scheduled → active →
// ended|sold); out-of-order redeliveries must not resurrect an ended listing.
const updateScript = `
int rank(String s) {
  if (s == 'scheduled') { return 1; }
  if (s == 'active') { return 2; }
  if (s == 'ended' || s == 'sold') { return 3; }
  return 0;
}
for (entry in params.fields.entrySet()) {
  if (entry.getKey() == 'status') {
    String cur = ctx._source.status;
    if (cur == null || rank((String)entry.getValue()) >= rank(cur)) {
      ctx._source.status = entry.getValue();
    }
  } else {
    ctx._source[entry.getKey()] = entry.getValue();
  }
}`

// Update applies a partial document update via a script so the status
// transition guard runs atomically in the cluster. A 404 means the document
// was deleted or never indexed; with at-least-once delivery that is
// expected, so it is treated as a no-op.
func (e *Engine) Update(ctx context.Context, entity domain.EntityType, id string, fields map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"script": map[string]any{
			"source": updateScript,
			"lang":   "painless",
			"params": map[string]any{"fields": fields},
		},
	})
	if err != nil {
		return fmt.Errorf("elasticsearch update: marshal fields: %w", err)
	}

	res, err := e.client.Update(
		e.indexName(entity),
		id,
		bytes.NewReader(body),
		e.client.Update.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch update: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == 404 {
		e.logger.Debug("update skipped, document absent", "index", e.indexName(entity), "id", id)
		return nil
	}
	if res.IsError() {
		return decodeError("elasticsearch update", res.Body, res.Status())
	}
	return nil
}

// applyBidScript rejects out-of-order bid events server-side: currentBid
// only moves up and reserveMet never flips back to false.
const applyBidScript = `
if (ctx._source.currentBid == null || params.currentBid >= ctx._source.currentBid) {
  ctx._source.currentBid = params.currentBid;
  ctx._source.bidsCount = params.bidsCount;
  if (params.highestBidder != null) { ctx._source.highestBidder = params.highestBidder; }
  if (params.reserveMet == true) { ctx._source.reserveMet = true; }
  ctx._source.updatedAt = params.updatedAt;
} else {
  ctx.op = 'noop';
}`

// ApplyBid applies live-bid state to an auction document with a scripted
// update so the monotonic guard runs atomically in the cluster. A missing
// document is a no-op.
func (e *Engine) ApplyBid(ctx context.Context, id string, bid domain.BidState) error {
	params := map[string]any{
		"currentBid": bid.CurrentBid,
		"bidsCount":  bid.BidsCount,
		"updatedAt":  bid.UpdatedAt.Format(time.RFC3339),
	}
	if bid.HighestBidder != "" {
		params["highestBidder"] = bid.HighestBidder
	}
	if bid.ReserveMet != nil {
		params["reserveMet"] = *bid.ReserveMet
	}

	body, err := json.Marshal(map[string]any{
		"script": map[string]any{
			"source": applyBidScript,
			"lang":   "painless",
			"params": params,
		},
	})
	if err != nil {
		return fmt.Errorf("elasticsearch apply bid: marshal script: %w", err)
	}

	res, err := e.client.Update(
		e.indexName(domain.EntityAuctions),
		id,
		bytes.NewReader(body),
		e.client.Update.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch apply bid: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == 404 {
		e.logger.Debug("bid skipped, auction absent", "id", id)
		return nil
	}
	if res.IsError() {
		return decodeError("elasticsearch apply bid", res.Body, res.Status())
	}
	return nil
}

// Delete removes a document by id. A 404 is success: with at-least-once
// delivery the same delete may arrive more than once.
func (e *Engine) Delete(ctx context.Context, entity domain.EntityType, id string) error {
	res, err := e.client.Delete(
		e.indexName(entity),
		id,
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != 404 {
		return decodeError("elasticsearch delete", res.Body, res.Status())
	}

	e.logger.Debug("deleted document", "index", e.indexName(entity), "id", id)
	return nil
}

// BulkIndex upserts a batch of documents via the bulk NDJSON API. Individual
// document failures are collected into the result, never returned as an
// error: one malformed row must not abort a reindex batch.
func (e *Engine) BulkIndex(ctx context.Context, entity domain.EntityType, docs []index.Document) (*index.BulkResult, error) {
	if len(docs) == 0 {
		return &index.BulkResult{}, nil
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		action := map[string]any{
			"index": map[string]any{
				"_index": e.indexName(entity),
				"_id":    doc.DocID(),
			},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName(entity)),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("elasticsearch bulk index", res.Body, res.Status())
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}

	result := &index.BulkResult{}
	for _, item := range bulkResp.Items {
		if item.Index.Error.Type != "" {
			result.Failed++
			result.Errors = append(result.Errors, index.BulkError{
				ID:     item.Index.ID,
				Type:   item.Index.Error.Type,
				Reason: item.Index.Error.Reason,
			})
		} else {
			result.Successful++
		}
	}

	if result.Failed > 0 {
		e.logger.Warn("bulk index completed with errors",
			"index", e.indexName(entity),
			"successful", result.Successful,
			"failed", result.Failed,
		)
	} else {
		e.logger.Debug("bulk indexed documents", "index", e.indexName(entity), "count", result.Successful)
	}
	return result, nil
}

// RefreshAll forces a refresh on every managed index so all prior writes
// become searchable. Only the reindex job calls this.
func (e *Engine) RefreshAll(ctx context.Context) error {
	names := make([]string, 0, len(domain.EntityTypes()))
	for _, entity := range domain.EntityTypes() {
		names = append(names, e.indexName(entity))
	}

	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(names...),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch refresh: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("elasticsearch refresh", res.Body, res.Status())
	}
	return nil
}

// esStatsResponse decodes the subset of the indices stats API we report.
type esStatsResponse struct {
	Indices map[string]struct {
		Primaries struct {
			Docs struct {
				Count int64 `json:"count"`
			} `json:"docs"`
			Store struct {
				SizeInBytes int64 `json:"size_in_bytes"`
			} `json:"store"`
		} `json:"primaries"`
	} `json:"indices"`
}

// Stats reports per-index document counts and primary storage size.
func (e *Engine) Stats(ctx context.Context) ([]domain.IndexStats, error) {
	names := make([]string, 0, len(domain.EntityTypes()))
	for _, entity := range domain.EntityTypes() {
		names = append(names, e.indexName(entity))
	}

	res, err := e.client.Indices.Stats(
		e.client.Indices.Stats.WithIndex(names...),
		e.client.Indices.Stats.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch stats: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("elasticsearch stats", res.Body, res.Status())
	}

	var statsResp esStatsResponse
	if err := json.NewDecoder(res.Body).Decode(&statsResp); err != nil {
		return nil, fmt.Errorf("elasticsearch stats: decode response: %w", err)
	}

	stats := make([]domain.IndexStats, 0, len(names))
	for _, name := range names {
		idx, ok := statsResp.Indices[name]
		if !ok {
			continue
		}
		stats = append(stats, domain.IndexStats{
			Index:     name,
			DocCount:  idx.Primaries.Docs.Count,
			SizeBytes: idx.Primaries.Store.SizeInBytes,
		})
	}
	return stats, nil
}
