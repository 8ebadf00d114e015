package catalog

import (
	"context"

	"github.com/vbonduro/cardledger/internal/domain"
)

// Catalog is the external card catalog.
//
// Resolve returns (nil, nil) when the card does not exist and a non-nil error
// when the catalog could not be asked, so callers can tell a missing card from
// a transient failure.
type Catalog interface {
	Resolve(ctx context.Context, cardID string) (*domain.CardRef, error)
	Search(ctx context.Context, query string, limit int) ([]domain.CardRef, error)
}

// DefaultSearchLimit caps search results when the caller passes limit <= 0.
const DefaultSearchLimit = 20
