package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vbonduro/cardledger/internal/domain"
)

const redisKeyPrefix = "cardledger:card:"

// Redis is a Backend shared between processes. Cards are stored as JSON.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (c *Redis) Name() string { return "redis" }

func (c *Redis) Get(ctx context.Context, cardID string) (*domain.CardRef, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+cardID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var card domain.CardRef
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	return &card, nil
}

func (c *Redis) Set(ctx context.Context, card domain.CardRef) error {
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+card.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}
