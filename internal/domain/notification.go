package domain

// Message is the outbound websocket envelope.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Event is the closed set of notification kinds a room emits.
type Event string

const (
	EventJoin          Event = "join"
	EventLeave         Event = "leave"
	EventPlayContent   Event = "playContent"
	EventPause         Event = "pause"
	EventResume        Event = "resume"
	EventSeekTo        Event = "seekTo"
	EventResync        Event = "resync"
	EventPlaybackError Event = "playbackError"
	EventQueue         Event = "queue"
	EventPlayQueued    Event = "playQueued"
	EventRemoveQueued  Event = "removeQueued"
	EventClearQueue    Event = "clearQueue"
	EventPermission    Event = "permission"
	EventLoop          Event = "loop"
	EventBlocked       Event = "blockedToggle"
	EventSpeed         Event = "playbackSpeed"
)

// NotificationDetail carries the typed payload of a notification. Only the
// fields relevant to the event kind are set.
type NotificationDetail struct {
	Source     string      `json:"source,omitempty"`
	Seconds    *float64    `json:"seconds,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Category   string      `json:"category,omitempty"`
	Speed      *float64    `json:"speed,omitempty"`
	Index      *int        `json:"index,omitempty"`
	Looping    *bool       `json:"looping,omitempty"`
	TargetId   string      `json:"target_id,omitempty"`
	Permission *Permission `json:"permission,omitempty"`
}

// Notification is a discrete human-readable room event, broadcast alongside
// state snapshots.
type Notification struct {
	Event    Event               `json:"event"`
	MemberId string              `json:"id"`
	Name     string              `json:"name"`
	Detail   *NotificationDetail `json:"detail,omitempty"`
}

// ChatMessage is a free-text chat passthrough.
type ChatMessage struct {
	MemberId string `json:"id"`
	Name     string `json:"name"`
	Text     string `json:"text"`
}
