package tunnel

// Event topics published by the tunnel module. The payload is an Entry.
const (
	TopicConnected    = "tunnel.connected"
	TopicDisconnected = "tunnel.disconnected"
	TopicFailed       = "tunnel.failed"
)

func topicFor(e Entry) string {
	switch {
	case !e.Success:
		return TopicFailed
	case e.Action == ActionConnect:
		return TopicConnected
	default:
		return TopicDisconnected
	}
}
