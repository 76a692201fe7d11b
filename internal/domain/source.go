package domain

type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformOther   Platform = "other"
)

// StreamVariant is one playable rendition of a source, best quality first.
type StreamVariant struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

// Segment is a skippable time range within a source, tagged with a category
// such as "sponsor" or "intro". End is exclusive.
type Segment struct {
	Category string  `json:"category"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
}

// MediaSource is the resolved, playable representation of a submitted URL.
// ContentId is stable across resolutions of the same video and is used to
// detect re-plays of the currently loaded content.
type MediaSource struct {
	ContentId   string          `json:"content_id"`
	Platform    Platform        `json:"platform"`
	Title       string          `json:"title"`
	Uploader    string          `json:"uploader,omitempty"`
	Duration    float64         `json:"duration"`
	Thumb       string          `json:"thumb,omitempty"`
	StartFrom   float64         `json:"start_from"`
	Video       []StreamVariant `json:"video"`
	Segments    []Segment       `json:"segments,omitempty"`
	OriginalURL string          `json:"original_url"`
}
