// Package redis caches resolved media sources by content id. Stream URLs of
// most platforms expire, so entries carry a TTL and a miss simply triggers a
// fresh resolution upstream.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/syncroom/server/internal/domain"
)

type repo struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRepo(rc *redis.Client, ttl time.Duration) *repo {
	return &repo{
		rc:  rc,
		ttl: ttl,
	}
}

func (r repo) getSourceKey(contentId string) string {
	return "source:" + contentId
}

// Get returns the cached source for contentId, or (nil, nil) on a miss.
func (r repo) Get(ctx context.Context, contentId string) (*domain.MediaSource, error) {
	raw, err := r.rc.Get(ctx, r.getSourceKey(contentId)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	var source domain.MediaSource
	if err := json.Unmarshal([]byte(raw), &source); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source: %w", err)
	}

	return &source, nil
}

func (r repo) Set(ctx context.Context, source *domain.MediaSource) error {
	raw, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("failed to marshal source: %w", err)
	}

	if err := r.rc.Set(ctx, r.getSourceKey(source.ContentId), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set source: %w", err)
	}

	return nil
}
