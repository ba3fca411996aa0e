package probe

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// ICMPChecker probes a host with one echo request. Runs unprivileged
// (UDP datagram sockets) unless Privileged is set; raw sockets need
// CAP_NET_RAW.
type ICMPChecker struct {
	Privileged bool
}

func NewICMPChecker() *ICMPChecker {
	return &ICMPChecker{}
}

func (c *ICMPChecker) Check(ctx context.Context, target string) Result {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return Result{Message: fmt.Sprintf("icmp: %v", err)}
	}
	pinger.Count = 1
	pinger.SetPrivileged(c.Privileged)
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}

	start := time.Now()
	err = pinger.RunWithContext(ctx)
	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		return Result{LatencyMS: latency, Message: fmt.Sprintf("icmp: %v", err)}
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return Result{LatencyMS: latency, Message: fmt.Sprintf("icmp: %s unreachable", target)}
	}
	return Result{Success: true, LatencyMS: stats.AvgRtt.Seconds() * 1000}
}
