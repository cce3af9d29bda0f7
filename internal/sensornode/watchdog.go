package sensornode

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LinkCheck periodically probes the server address and flips the node's
// connected flag, simulating a physical-layer link check independent of the
// sampling schedule: sampling never stops, only whether bundles actually
// leave the node.
type LinkCheck struct {
	node     *Node
	interval time.Duration
	probe    func() bool
	logger   *log.Logger
}

// NewLinkCheck builds a LinkCheck that runs every interval, using probe to
// decide reachability. probe is injected so tests can simulate link flaps
// without real network conditions.
func NewLinkCheck(node *Node, interval time.Duration, probe func() bool, logger *log.Logger) *LinkCheck {
	return &LinkCheck{node: node, interval: interval, probe: probe, logger: logger}
}

// Run drives the periodic check until ctx is cancelled.
func (c *LinkCheck) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			up := c.probe()
			was := c.node.Connected()
			c.node.SetConnected(up)
			if up && !was {
				c.logger.Info("link check: reconnected")
			} else if !up && was {
				c.logger.Warn("link check: link down")
			}
		}
	}
}

// Watchdog force-reconnects the node if it has remained disconnected for
// longer than timeout, simulating a firmware watchdog reset of the radio
// link rather than waiting indefinitely for the next successful link check.
type Watchdog struct {
	node    *Node
	timeout time.Duration
	logger  *log.Logger

	disconnectedSince time.Time
}

// NewWatchdog builds a Watchdog for node.
func NewWatchdog(node *Node, timeout time.Duration, logger *log.Logger) *Watchdog {
	return &Watchdog{node: node, timeout: timeout, logger: logger}
}

// Run polls node's connection state at a cadence well under timeout (a
// quarter of it, capped at one second) and forces a reconnect attempt once
// timeout has elapsed continuously disconnected.
func (w *Watchdog) Run(ctx context.Context) {
	pollInterval := w.timeout / 4
	if pollInterval <= 0 || pollInterval > time.Second {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.node.Connected() {
				w.disconnectedSince = time.Time{}
				continue
			}
			if w.disconnectedSince.IsZero() {
				w.disconnectedSince = time.Now()
				continue
			}
			if time.Since(w.disconnectedSince) >= w.timeout {
				w.logger.Warn("watchdog: forcing reconnect attempt after extended downtime")
				w.node.SetConnected(true)
				w.disconnectedSince = time.Time{}
			}
		}
	}
}
