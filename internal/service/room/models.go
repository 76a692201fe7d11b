package room

import "github.com/syncroom/server/internal/domain"

// outbound message types
const (
	msgState       = "state"
	msgSource      = "source"
	msgPause       = "pause"
	msgResume      = "resume"
	msgSeekTo      = "seekTo"
	msgNotify      = "notify"
	msgSecret      = "secret"
	msgRequestTime = "requestTime"
	msgMessage     = "message"
)

type MemberState struct {
	Id         string            `json:"id"`
	Name       string            `json:"name"`
	Permission domain.Permission `json:"permission"`
}

type QueueEntry struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Resolved bool   `json:"resolved"`
}

// State is the full room snapshot broadcast to members.
type State struct {
	Paused            bool                `json:"paused"`
	LastSeekedTo      float64             `json:"last_seeked_to"`
	Source            *domain.MediaSource `json:"source,omitempty"`
	Queue             []QueueEntry        `json:"queue"`
	Members           []MemberState       `json:"members"`
	MembersLoading    int                 `json:"members_loading"`
	DefaultPermission domain.Permission   `json:"default_permission"`
	PlaybackSpeed     float64             `json:"playback_speed"`
	Looping           bool                `json:"looping"`
	BlockedCategories []string            `json:"blocked_categories"`
}
