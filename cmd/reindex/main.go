// Command reindex rebuilds the search indices from the marketplace database.
// It is meant to run as a one-off job, for example after a mapping change.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/trademart/search-service/internal/config"
	"github.com/trademart/search-service/internal/domain"
	"github.com/trademart/search-service/internal/index"
	esindex "github.com/trademart/search-service/internal/index/elasticsearch"
	"github.com/trademart/search-service/internal/index/memory"
	"github.com/trademart/search-service/internal/repository/postgres"
	"github.com/trademart/search-service/internal/service"
	"github.com/trademart/search-service/pkg/database"
	"github.com/trademart/search-service/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("reindex failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	recreate := flag.Bool("recreate", false, "drop and recreate the indices before indexing")
	indicesFlag := flag.String("indices", "", "comma-separated subset of indices to rebuild (default: all)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New("search-reindex", cfg.LogLevel)

	entities, err := parseEntities(*indicesFlag)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var eng index.Engine
	switch cfg.SearchEngine {
	case "elasticsearch":
		esEng, err := esindex.New(esindex.Config{
			Addresses:   cfg.ElasticsearchURLs,
			Username:    cfg.ElasticsearchUsername,
			Password:    cfg.ElasticsearchPassword,
			IndexPrefix: cfg.ElasticsearchPrefix,
			MaxRetries:  cfg.ElasticsearchMaxRetries,
		}, log)
		if err != nil {
			return fmt.Errorf("init elasticsearch engine: %w", err)
		}
		if err := esEng.WaitHealthy(ctx); err != nil {
			return fmt.Errorf("wait for elasticsearch: %w", err)
		}
		eng = esEng
	default:
		eng = memory.New()
	}

	pg := cfg.PostgresConfig()
	pool, err := database.NewPostgresPool(ctx, &pg, log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	reindexer := service.NewReindexer(eng, postgres.NewStore(pool), log)

	summaries, stats, err := reindexer.Run(ctx, service.ReindexOptions{
		Recreate: *recreate,
		Entities: entities,
	})
	if err != nil {
		return err
	}

	for _, s := range summaries {
		log.Info("reindex summary",
			slog.String("entity", string(s.Entity)),
			slog.Int64("total", s.Total),
			slog.Int64("indexed", s.Indexed),
			slog.Int64("failed", s.Failed),
			slog.Int64("duration_ms", s.DurationMs),
		)
	}
	for _, st := range stats {
		log.Info("index stats",
			slog.String("index", st.Index),
			slog.Int64("doc_count", st.DocCount),
			slog.Int64("size_bytes", st.SizeBytes),
		)
	}
	return nil
}

// parseEntities turns the -indices flag into entity types, rejecting unknown
// names up front rather than partway through a run.
func parseEntities(value string) ([]domain.EntityType, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var entities []domain.EntityType
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		entity := domain.EntityType(part)
		if !domain.IsValidEntityType(string(entity)) {
			return nil, fmt.Errorf("unknown entity type %q", part)
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
