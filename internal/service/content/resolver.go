// Package content turns a pasted URL into a playable media source.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/syncroom/server/internal/domain"
	"github.com/syncroom/server/pkg/ytmeta"
)

type iSourceCache interface {
	Get(ctx context.Context, contentId string) (*domain.MediaSource, error)
	Set(ctx context.Context, source *domain.MediaSource) error
}

type Resolver struct {
	cache      iSourceCache
	httpClient *http.Client
	logger     *slog.Logger
}

func NewResolver(cache iSourceCache, httpClient *http.Client, logger *slog.Logger) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Resolver{
		cache:      cache,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Resolve builds a media source descriptor for rawURL. YouTube links are
// resolved through the metadata endpoints with a cache in front; anything
// else becomes a single-variant source played as-is.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, startFrom float64) (*domain.MediaSource, error) {
	if videoId, ok := ytmeta.ExtractVideoId(rawURL); ok {
		return r.resolveYouTube(ctx, rawURL, videoId, startFrom)
	}

	return r.resolveGeneric(rawURL, startFrom)
}

func (r *Resolver) resolveYouTube(ctx context.Context, rawURL, videoId string, startFrom float64) (*domain.MediaSource, error) {
	if cached, err := r.cache.Get(ctx, videoId); err != nil {
		r.logger.InfoContext(ctx, "source cache get failed", "content_id", videoId, "error", err)
	} else if cached != nil {
		cached.StartFrom = startFrom
		return cached, nil
	}

	data, err := ytmeta.Fetch(ctx, r.httpClient, videoId)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve youtube video %s: %w", videoId, err)
	}

	source := &domain.MediaSource{
		ContentId:   videoId,
		Platform:    domain.PlatformYouTube,
		Title:       data.Title,
		Uploader:    data.AuthorName,
		Thumb:       data.ThumbnailUrl,
		StartFrom:   startFrom,
		Video:       []domain.StreamVariant{{URL: rawURL, Quality: "default"}},
		OriginalURL: rawURL,
	}

	if err := r.cache.Set(ctx, source); err != nil {
		r.logger.InfoContext(ctx, "source cache set failed", "content_id", videoId, "error", err)
	}

	return source, nil
}

func (r *Resolver) resolveGeneric(rawURL string, startFrom float64) (*domain.MediaSource, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("source url has no host: %q", rawURL)
	}

	return &domain.MediaSource{
		ContentId:   rawURL,
		Platform:    domain.PlatformOther,
		Title:       fmt.Sprintf("content from %s", parsed.Hostname()),
		StartFrom:   startFrom,
		Video:       []domain.StreamVariant{{URL: rawURL, Quality: "default"}},
		OriginalURL: rawURL,
	}, nil
}
