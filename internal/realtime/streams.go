package realtime

// Named realtime streams.
const (
	StreamNotifications = "notifications"
)

// Events emitted on StreamNotifications.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationRead    = "notification.read"
	EventNotificationReadAll = "notification.read_all"
	EventNotificationCleared = "notification.cleared"
)
