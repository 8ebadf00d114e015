package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vbonduro/cardledger/internal/domain"
)

// LRU is an in-process Backend with size-bounded, time-expiring entries.
type LRU struct {
	lru *expirable.LRU[string, domain.CardRef]
}

// NewLRU creates a cache holding at most size cards for ttl each.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{lru: expirable.NewLRU[string, domain.CardRef](size, nil, ttl)}
}

func (c *LRU) Name() string { return "lru" }

func (c *LRU) Get(_ context.Context, cardID string) (*domain.CardRef, error) {
	card, ok := c.lru.Get(cardID)
	if !ok {
		return nil, ErrCacheMiss
	}
	return &card, nil
}

func (c *LRU) Set(_ context.Context, card domain.CardRef) error {
	c.lru.Add(card.ID, card)
	return nil
}

func (c *LRU) Len() int { return c.lru.Len() }
