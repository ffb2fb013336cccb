package realtime

// Named realtime streams.
const (
	StreamNotifications = "notifications"
	StreamReminders     = "reminders"
	StreamPush          = "push"
)

// DefaultStreams is the subscription set for clients that do not name any.
var DefaultStreams = []string{StreamNotifications, StreamReminders}
