package realtime

// Outbound broadcast event names. These are the wire-level names clients
// subscribe to.
const (
	EventRequestNew       = "request:new"
	EventRequestStatus    = "request:status"
	EventNurseLocation    = "nurse:location"
	EventNurseArrived     = "nurse:arrived"
	EventServiceStarted   = "service:started"
	EventServiceCompleted = "service:completed"
	EventNewMessage       = "new-message"
	EventMessagesRead     = "messages-read"
	EventUserTyping       = "user-typing"
	EventMessageDeleted   = "message-deleted"
	EventNotification     = "notification"
	EventPanicAlert       = "panic_alert"
	EventError            = "error"
)

// Publisher is the broadcast surface the domain services depend on. The Hub
// is the in-process implementation.
type Publisher interface {
	// Publish delivers the event to every connection in the room. Publishing
	// to an empty room is a no-op.
	Publish(room RoomID, event string, payload interface{})

	// PublishToActor delivers the event on the actor's personal channel,
	// reaching every connection the actor currently has.
	PublishToActor(actorID string, event string, payload interface{})

	// Fanout delivers to the room, then to the personal channel of each
	// listed actor that has no connection in the room. An actor subscribed
	// to the room is not delivered twice.
	Fanout(room RoomID, actorIDs []string, event string, payload interface{})
}
