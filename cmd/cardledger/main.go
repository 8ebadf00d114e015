package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/vbonduro/cardledger/internal/catalog"
	"github.com/vbonduro/cardledger/internal/catalog/cache"
	"github.com/vbonduro/cardledger/internal/catalog/pokemontcg"
	"github.com/vbonduro/cardledger/internal/config"
	"github.com/vbonduro/cardledger/internal/db"
	"github.com/vbonduro/cardledger/internal/imagestore"
	"github.com/vbonduro/cardledger/internal/imagestore/local"
	"github.com/vbonduro/cardledger/internal/logging"
	"github.com/vbonduro/cardledger/internal/service"
	"github.com/vbonduro/cardledger/internal/store"
	"github.com/vbonduro/cardledger/internal/web"
	"github.com/vbonduro/cardledger/internal/web/templates"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if err := run(cfg, logger); err != nil {
		logger.Error("cardledger stopped", "error", err)
		cleanup()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	cat, closeCatalog := newCatalog(cfg, logger)
	defer closeCatalog()

	images, err := local.NewStore(cfg.ImagePath)
	if err != nil {
		return err
	}
	prefetcher := imagestore.NewPrefetcher(images, logger,
		imagestore.WithWorkers(cfg.ImageWorkers),
		imagestore.WithHTTPClient(&http.Client{Timeout: cfg.CatalogTimeout}),
	)
	defer prefetcher.Close()

	svc := service.NewInventoryService(
		store.NewCollectorStore(database),
		store.NewInventoryStore(database),
		cat,
		logger,
		service.WithCapacity(cfg.LedgerCapacity),
		service.WithImagePrefetcher(prefetcher),
	)
	server := web.NewServer(svc, templates.FS, images, prefetcher, logger)

	return server.ListenAndServe(ctx, cfg.ListenAddr)
}

func openDatabase(cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	if cfg.TestMode {
		logger.Warn("test mode: using an in-memory database")
		return db.OpenForTesting()
	}
	logger.Info("opening database", "path", cfg.DBPath)
	return db.Open(cfg.DBPath)
}

// newCatalog builds the Pokémon TCG client behind the configured lookup cache.
func newCatalog(cfg *config.Config, logger *slog.Logger) (catalog.Catalog, func()) {
	client := pokemontcg.NewClient(cfg.CatalogBaseURL,
		pokemontcg.WithAPIKey(cfg.CatalogAPIKey),
		pokemontcg.WithTimeout(cfg.CatalogTimeout),
		pokemontcg.WithRateLimit(cfg.CatalogRatePerSec),
		pokemontcg.WithLogger(logger),
	)

	switch cfg.CatalogCache {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.Info("using redis card cache", "addr", cfg.RedisAddr, "ttl", cfg.CatalogCacheTTL)
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}
		return cache.New(client, cache.NewRedis(rdb, cfg.CatalogCacheTTL), logger), closeFn
	case "none":
		logger.Info("card cache disabled")
		return client, func() {}
	default:
		logger.Info("using in-memory card cache", "size", cfg.CatalogCacheSize, "ttl", cfg.CatalogCacheTTL)
		return cache.New(client, cache.NewLRU(cfg.CatalogCacheSize, cfg.CatalogCacheTTL), logger), func() {}
	}
}
