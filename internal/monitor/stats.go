package monitor

import "time"

// Stats summarizes the dashboard. It is always computed from a snapshot and
// never stored.
type Stats struct {
	SecuredConnected   int      `json:"secured_connected"`
	SecuredTotal       int      `json:"secured_total"`
	UnsecuredConnected int      `json:"unsecured_connected"`
	UnsecuredTotal     int      `json:"unsecured_total"`
	AverageLatencyMs   *float64 `json:"average_latency_ms"`
	RequestsPerMinute  float64  `json:"requests_per_minute"`
}

// ComputeStats derives Stats for the registry endpoints from snap. A zero
// refresh interval means periodic refresh is off and yields zero requests
// per minute.
func ComputeStats(reg *Registry, snap map[string]StatusRecord, refresh time.Duration) Stats {
	var s Stats
	var latencySum float64
	var latencyCount int

	for _, e := range reg.List() {
		rec := snap[e.ID]
		if e.Secured {
			s.SecuredTotal++
			if rec.Connected {
				s.SecuredConnected++
			}
		} else {
			s.UnsecuredTotal++
			if rec.Connected {
				s.UnsecuredConnected++
			}
		}
		if rec.LatencyMs != nil {
			latencySum += *rec.LatencyMs
			latencyCount++
		}
	}

	if latencyCount > 0 {
		avg := latencySum / float64(latencyCount)
		s.AverageLatencyMs = &avg
	}
	if refresh > 0 {
		s.RequestsPerMinute = float64(reg.Len()) * time.Minute.Seconds() / refresh.Seconds()
	}
	return s
}
