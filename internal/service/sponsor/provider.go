// Package sponsor fetches skippable segment metadata from a
// SponsorBlock-compatible API. Everything here is best effort: a failed or
// empty lookup means the video simply plays without skips.
package sponsor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/syncroom/server/internal/domain"
)

// AllCategories are the segment categories the upstream API knows about.
var AllCategories = []string{
	"sponsor",
	"intro",
	"outro",
	"interaction",
	"selfpromo",
	"music_offtopic",
	"preview",
}

type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewProvider(baseURL string, httpClient *http.Client, logger *slog.Logger) *Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Provider{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

type skipSegment struct {
	Category string     `json:"category"`
	Segment  [2]float64 `json:"segment"`
}

// GetSegments returns the skippable segments of videoId for the given
// categories. An unknown video yields an empty list, not an error.
func (p *Provider) GetSegments(ctx context.Context, videoId string, categories []string) ([]domain.Segment, error) {
	rawCategories, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal categories: %w", err)
	}

	query := url.Values{}
	query.Set("videoID", videoId)
	query.Set("categories", string(rawCategories))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/skipSegments?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build segments request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get segments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var raw []skipSegment
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode segments: %w", err)
	}

	segments := make([]domain.Segment, 0, len(raw))
	for _, s := range raw {
		segments = append(segments, domain.Segment{
			Category: s.Category,
			Start:    s.Segment[0],
			End:      s.Segment[1],
		})
	}

	p.logger.DebugContext(ctx, "fetched segments", "video_id", videoId, "count", len(segments))

	return segments, nil
}
