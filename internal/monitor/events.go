package monitor

// Event topics published by the monitor module.
const (
	// TopicEndpointUpdated carries an EndpointStatus.
	TopicEndpointUpdated = "monitor.endpoint.updated"
	// TopicSessionChanged carries a Session.
	TopicSessionChanged = "monitor.session.changed"
	// TopicStatsUpdated carries Stats.
	TopicStatsUpdated = "monitor.stats.updated"
)
