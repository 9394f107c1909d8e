package events

// Event type constants for settings events.
const (
	TypeConfigChanged      = "config_changed"
	TypeConfigCleared      = "config_cleared"
	TypeJiraSessionChanged = "jira_session_changed"
	TypeDirtyChanged       = "session_dirty_changed"
)

// Origins of a config change.
const (
	OriginLocal    = "local"
	OriginExternal = "external"
)

// ConfigChangedEvent is emitted whenever the persisted document changes.
// Other pages re-read the store when they see it; Marker is the value of
// the cross-tab change marker after the write.
type ConfigChangedEvent struct {
	BaseEvent
	Marker string `json:"marker"`
	Origin string `json:"origin"`
	Theme  string `json:"theme,omitempty"`
}

// NewConfigChangedEvent creates a new config_changed event.
func NewConfigChangedEvent(sessionID, marker, origin, theme string) ConfigChangedEvent {
	return ConfigChangedEvent{
		BaseEvent: NewBaseEvent(TypeConfigChanged, sessionID),
		Marker:    marker,
		Origin:    origin,
		Theme:     theme,
	}
}

// ConfigClearedEvent is emitted after every stored setting was wiped.
type ConfigClearedEvent struct {
	BaseEvent
	Marker string `json:"marker"`
}

// NewConfigClearedEvent creates a new config_cleared event.
func NewConfigClearedEvent(sessionID, marker string) ConfigClearedEvent {
	return ConfigClearedEvent{
		BaseEvent: NewBaseEvent(TypeConfigCleared, sessionID),
		Marker:    marker,
	}
}

// JiraSessionChangedEvent is emitted when the session credentials are
// stored or cleared. It never carries the credentials.
type JiraSessionChangedEvent struct {
	BaseEvent
	Authenticated bool   `json:"authenticated"`
	Instance      string `json:"instance,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
}

// NewJiraSessionChangedEvent creates a new jira_session_changed event.
func NewJiraSessionChangedEvent(sessionID string, authenticated bool, instance, displayName string) JiraSessionChangedEvent {
	return JiraSessionChangedEvent{
		BaseEvent:     NewBaseEvent(TypeJiraSessionChanged, sessionID),
		Authenticated: authenticated,
		Instance:      instance,
		DisplayName:   displayName,
	}
}

// DirtyChangedEvent is emitted when a form session flips between clean and
// dirty.
type DirtyChangedEvent struct {
	BaseEvent
	Dirty bool `json:"dirty"`
}

// NewDirtyChangedEvent creates a new session_dirty_changed event.
func NewDirtyChangedEvent(sessionID string, dirty bool) DirtyChangedEvent {
	return DirtyChangedEvent{
		BaseEvent: NewBaseEvent(TypeDirtyChanged, sessionID),
		Dirty:     dirty,
	}
}
