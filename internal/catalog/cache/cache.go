package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vbonduro/cardledger/internal/catalog"
	"github.com/vbonduro/cardledger/internal/domain"
	"github.com/vbonduro/cardledger/internal/metrics"
)

// ErrCacheMiss is returned by a Backend when the card is not cached.
var ErrCacheMiss = errors.New("cache miss")

// Backend stores resolved cards by id.
type Backend interface {
	Name() string
	Get(ctx context.Context, cardID string) (*domain.CardRef, error)
	Set(ctx context.Context, card domain.CardRef) error
}

// Resolver answers card lookups from a Backend and falls through to the
// remote catalog on a miss. Only cards that exist are cached; a not-found or
// a failed lookup is always retried against the catalog.
type Resolver struct {
	next    catalog.Catalog
	backend Backend
	logger  *slog.Logger
}

var _ catalog.Catalog = (*Resolver)(nil)

func New(next catalog.Catalog, backend Backend, logger *slog.Logger) *Resolver {
	return &Resolver{
		next:    next,
		backend: backend,
		logger:  logger.With("component", "catalog_cache", "backend", backend.Name()),
	}
}

func (r *Resolver) Resolve(ctx context.Context, cardID string) (*domain.CardRef, error) {
	card, err := r.backend.Get(ctx, cardID)
	if err == nil {
		metrics.CatalogCacheLookups.WithLabelValues(r.backend.Name(), metrics.ResultHit).Inc()
		return card, nil
	}
	metrics.CatalogCacheLookups.WithLabelValues(r.backend.Name(), metrics.ResultMiss).Inc()
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("card cache read failed", "card_id", cardID, "error", err)
	}

	card, err = r.next.Resolve(ctx, cardID)
	if err != nil || card == nil {
		return card, err
	}

	r.store(ctx, *card)
	return card, nil
}

// Search is never cached, but its results warm the lookup cache since the
// collector usually adds one of them next.
func (r *Resolver) Search(ctx context.Context, query string, limit int) ([]domain.CardRef, error) {
	cards, err := r.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	for _, c := range cards {
		r.store(ctx, c)
	}
	return cards, nil
}

func (r *Resolver) store(ctx context.Context, card domain.CardRef) {
	if err := r.backend.Set(ctx, card); err != nil {
		r.logger.Warn("card cache write failed", "card_id", card.ID, "error", err)
	}
}
