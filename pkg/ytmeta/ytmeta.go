// Package ytmeta fetches public metadata for a YouTube video without an API
// key: the oEmbed endpoint first, falling back to scraping the watch page
// when the video is not embeddable.
package ytmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
)

var (
	ErrVideoNotFound      = fmt.Errorf("video not found")
	ErrVideoNotEmbeddable = fmt.Errorf("video is not embeddable")
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

var videoIdRe = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|shorts/|embed/)|youtu\.be/)([A-Za-z0-9_-]{11})`)

// ExtractVideoId returns the 11-character video id from any of the common
// YouTube URL shapes, or false if the URL is not a YouTube link.
func ExtractVideoId(url string) (string, bool) {
	m := videoIdRe.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}

	return m[1], true
}

func ThumbnailURL(videoId string) string {
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/mqdefault.jpg", videoId)
}

func Fetch(ctx context.Context, client *http.Client, videoId string) (*VideoData, error) {
	if client == nil {
		client = http.DefaultClient
	}

	videoData, err := fetchOEmbed(ctx, client, videoId)
	if err == nil {
		return videoData, nil
	}
	if err != ErrVideoNotEmbeddable {
		return nil, fmt.Errorf("failed to get video data with oembed: %w", err)
	}

	videoData, err = fetchFromPage(ctx, client, videoId)
	if err != nil {
		return nil, fmt.Errorf("failed to get video data from page: %w", err)
	}

	return videoData, nil
}

func fetchOEmbed(ctx context.Context, client *http.Client, videoId string) (*VideoData, error) {
	url := fmt.Sprintf("https://www.youtube.com/oembed?url=https://www.youtube.com/watch?v=%s", videoId)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		return nil, ErrVideoNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrVideoNotEmbeddable
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result VideoData
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	if result.ThumbnailUrl == "" {
		result.ThumbnailUrl = ThumbnailURL(videoId)
	}

	return &result, nil
}
