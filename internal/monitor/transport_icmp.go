package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Compile-time interface guard.
var _ Transport = (*ICMPTransport)(nil)

// ICMPTransport pings a host. Unprivileged mode uses UDP sockets, which
// Linux allows when net.ipv4.ping_group_range covers the process.
type ICMPTransport struct {
	count      int
	privileged bool
}

// NewICMPTransport creates an ICMP transport sending count echo requests.
func NewICMPTransport(count int, privileged bool) *ICMPTransport {
	if count <= 0 {
		count = 3
	}
	return &ICMPTransport{count: count, privileged: privileged}
}

type pingStats struct {
	Address     string  `json:"address"`
	IP          string  `json:"ip"`
	PacketsSent int     `json:"packets_sent"`
	PacketsRecv int     `json:"packets_recv"`
	PacketLoss  float64 `json:"packet_loss"`
	MinRttMs    float64 `json:"min_rtt_ms"`
	AvgRttMs    float64 `json:"avg_rtt_ms"`
	MaxRttMs    float64 `json:"max_rtt_ms"`
}

func (t *ICMPTransport) Fetch(ctx context.Context, address string) (Response, error) {
	pinger, err := probing.NewPinger(address)
	if err != nil {
		return Response{}, fmt.Errorf("resolve %s: %w", address, err)
	}
	pinger.Count = t.count
	pinger.SetPrivileged(t.privileged)
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- pinger.Run() }()

	select {
	case err := <-runErr:
		if err != nil {
			return Response{}, fmt.Errorf("ping %s: %w", address, err)
		}
	case <-ctx.Done():
		pinger.Stop()
		<-runErr
		return Response{}, ctx.Err()
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return Response{}, fmt.Errorf("ping %s: no reply (%d sent)", address, stats.PacketsSent)
	}

	payload, _ := json.Marshal(pingStats{
		Address:     address,
		IP:          pinger.IPAddr().String(),
		PacketsSent: stats.PacketsSent,
		PacketsRecv: stats.PacketsRecv,
		PacketLoss:  stats.PacketLoss,
		MinRttMs:    ms(stats.MinRtt),
		AvgRttMs:    ms(stats.AvgRtt),
		MaxRttMs:    ms(stats.MaxRtt),
	})
	return Response{Payload: payload, Latency: stats.AvgRtt}, nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
