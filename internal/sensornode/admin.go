package sensornode

import (
	"context"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"github.com/schuyler/corazonn/internal/wire"
)

// AdminListener binds the node's admin port and invokes onRestart for every
// well-formed `/restart` datagram received. Anything else on that port is
// silently ignored, matching the ingress port's own "reject, don't crash"
// posture for malformed input.
type AdminListener struct {
	logger *log.Logger
}

// NewAdminListener builds an AdminListener.
func NewAdminListener(logger *log.Logger) *AdminListener {
	return &AdminListener{logger: logger}
}

// Listen binds addr and runs until ctx is cancelled, calling onRestart on
// the calling goroutine's stack for every valid `/restart` message.
func (a *AdminListener) Listen(ctx context.Context, addr string, onRestart func()) error {
	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return fmt.Errorf("sensornode: admin listen %s: %w", addr, err)
	}
	defer pc.Close()

	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	buf := make([]byte, 256)
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("sensornode: admin read: %w", err)
		}
		if wire.IsRestart(buf[:n]) {
			a.logger.Info("received restart command")
			onRestart()
		}
	}
}
