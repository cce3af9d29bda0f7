// Package discovery announces and locates a sensor node's restart-admin
// endpoint over mDNS/DNS-SD, so operators and tooling do not need to
// hardcode node IPs. This is strictly additive to the wire protocol's admin
// channel: discovery only locates an address; the `/restart` contract sent
// to it is unchanged.
//
// Grounded directly on the reference TNC's own DNS-SD announcer, which uses
// the same pure-Go github.com/brutella/dnssd package for cross-platform
// mDNS/DNS-SD announcement without a system daemon or C library dependency.
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// ServiceType is the DNS-SD service type sensor nodes advertise their admin
// port under.
const ServiceType = "_corazonn-admin._udp"

// Announce registers name/adminPort as a discoverable sensor-node admin
// endpoint and runs the mDNS responder until ctx is cancelled. Failures are
// logged and non-fatal: discovery is a convenience, never required for the
// wire protocol to function.
func Announce(ctx context.Context, logger *log.Logger, name string, adminPort int) error {
	if name == "" {
		name = "corazonn-sensor"
	}

	cfg := dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: ServiceType,
		Port: adminPort,
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("discovery: create service: %w", err)
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("discovery: create responder: %w", err)
	}

	if _, err := responder.Add(svc); err != nil {
		return fmt.Errorf("discovery: add service: %w", err)
	}

	logger.Info("announcing admin endpoint", "name", name, "port", adminPort, "service", ServiceType)

	go func() {
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
			logger.Error("dns-sd responder stopped", "err", err)
		}
	}()

	return nil
}

// Node is a discovered sensor-node admin endpoint.
type Node struct {
	Name string
	Host string
	Port int
}

// Browse collects sensor-node admin endpoints advertised on the local
// network for up to the lifetime of ctx, invoking found for each one
// resolved. Intended for a short-lived admin CLI invocation, not a
// long-running subscription.
func Browse(ctx context.Context, found func(Node)) error {
	addFn := func(e dnssd.BrowseEntry) {
		if len(e.IPs) == 0 {
			return
		}
		found(Node{Name: e.Name, Host: e.IPs[0].String(), Port: e.Port})
	}
	rmFn := func(dnssd.BrowseEntry) {}

	if err := dnssd.LookupType(ctx, ServiceType, addFn, rmFn); err != nil {
		return fmt.Errorf("discovery: browse: %w", err)
	}
	return nil
}
