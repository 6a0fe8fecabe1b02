package elasticsearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/trademart/search-service/internal/domain"
)

// EnsureIndices creates any missing indices with their settings and mappings.
// Existing indices are never modified, so the call is safe to repeat on every
// startup.
func (e *Engine) EnsureIndices(ctx context.Context) error {
	for _, entity := range domain.EntityTypes() {
		if err := e.ensureIndex(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) ensureIndex(ctx context.Context, entity domain.EntityType) error {
	name := e.indexName(entity)

	res, err := e.client.Indices.Exists(
		[]string{name},
		e.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == 200 {
		e.logger.Debug("index already exists", "index", name)
		return nil
	}

	return e.createIndex(ctx, entity)
}

func (e *Engine) createIndex(ctx context.Context, entity domain.EntityType) error {
	name := e.indexName(entity)

	res, err := e.client.Indices.Create(
		name,
		e.client.Indices.Create.WithBody(strings.NewReader(buildIndexBody(entity))),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError(fmt.Sprintf("create index %s", name), res.Body, res.Status())
	}

	e.logger.Info("index created", "index", name)
	return nil
}

// RecreateIndex drops and recreates one index from its declared mapping.
// All documents in it are lost; only the bulk reindex job calls this, and
// only when asked to.
func (e *Engine) RecreateIndex(ctx context.Context, entity domain.EntityType) error {
	name := e.indexName(entity)

	res, err := e.client.Indices.Delete(
		[]string{name},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete index %s: %w", name, err)
	}
	defer func() { _ = res.Body.Close() }()

	// 404 means the index never existed, which is fine.
	if res.IsError() && res.StatusCode != 404 {
		return decodeError(fmt.Sprintf("delete index %s", name), res.Body, res.Status())
	}

	e.logger.Info("index dropped for recreation", "index", name)
	return e.createIndex(ctx, entity)
}

// UpdateMappings pushes the declared mappings onto existing indices.
// Elasticsearch accepts only additive changes here; changing an existing
// field's type still requires RecreateIndex plus a reindex.
func (e *Engine) UpdateMappings(ctx context.Context) error {
	for _, entity := range domain.EntityTypes() {
		name := e.indexName(entity)

		res, err := e.client.Indices.PutMapping(
			[]string{name},
			strings.NewReader(buildMappingsBody(entity)),
			e.client.Indices.PutMapping.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("update mappings %s: %w", name, err)
		}

		isErr := res.IsError()
		if isErr {
			err = decodeError(fmt.Sprintf("update mappings %s", name), res.Body, res.Status())
		}
		_ = res.Body.Close()
		if isErr {
			return err
		}
	}
	return nil
}
