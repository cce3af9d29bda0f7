package sensornode

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/schuyler/corazonn/internal/wire"
)

// Config controls one sensor node's schedule, bundling, and networking.
type Config struct {
	SensorID     int
	ServerAddr   string // host:port of the processor's input port
	AdminPort    int
	SampleRateHz int
	BundleSize   int
}

// Node runs the sample scheduler, bundler, and sender for one simulated
// sensor. Link state (connected vs. disconnected) only affects whether
// bundles are actually sent: the scheduler and sample source run
// unconditionally on the fixed grid regardless of link state, mirroring real
// firmware that keeps sampling even while the network link is down.
type Node struct {
	cfg    Config
	source SampleSource
	logger *log.Logger

	conn *net.UDPConn

	connected atomic.Bool

	mu          sync.Mutex
	gridBase    int64 // ms, set in Run
	sampleCount int64
}

// New constructs a Node. It does not open any sockets yet; call Run.
func New(cfg Config, source SampleSource, logger *log.Logger) *Node {
	n := &Node{cfg: cfg, source: source, logger: logger}
	n.connected.Store(true)
	return n
}

// SetConnected flags the node's link state; a disconnected node still
// advances its sample grid but silently drops every bundle it would have
// sent, per the wire protocol's "sensor silently stops sending" model of a
// dropped link (there is no disconnect notification on the wire — the
// processor infers it from the gap).
func (n *Node) SetConnected(v bool) { n.connected.Store(v) }

// Connected reports the node's current link state.
func (n *Node) Connected() bool { return n.connected.Load() }

// Run opens the sender socket and drives the fixed-grid schedule until ctx
// is cancelled. Samples are generated and bundled on scheduled wall-clock
// ticks derived from the grid base plus n * sample interval, never on
// accumulated sleep drift, so the node's output timebase does not skew
// across a long run.
func (n *Node) Run(ctx context.Context) error {
	conn, err := net.Dial("udp4", n.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("sensornode: dial %s: %w", n.cfg.ServerAddr, err)
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return fmt.Errorf("sensornode: unexpected connection type %T", conn)
	}
	n.conn = udpConn
	defer n.conn.Close()

	intervalMS := int64(1000 / n.cfg.SampleRateHz)
	// gridBase is 0: the wire timestamp is the sender's own local timebase
	// (milliseconds since this node started sampling), never wall-clock
	// epoch time, so it comfortably fits int32 for the life of a run.
	n.mu.Lock()
	n.gridBase = 0
	n.mu.Unlock()

	bundle := make([]int32, 0, n.cfg.BundleSize)
	var bundleStartMS int64

	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.mu.Lock()
			idx := n.sampleCount
			n.sampleCount++
			n.mu.Unlock()

			scheduledMS := n.gridBase + idx*intervalMS
			if len(bundle) == 0 {
				bundleStartMS = scheduledMS
			}
			bundle = append(bundle, n.source.Sample(idx))

			if len(bundle) == n.cfg.BundleSize {
				n.send(bundleStartMS, bundle)
				bundle = bundle[:0]
			}
		}
	}
}

// send encodes and transmits one bundle, silently dropping it if the node is
// currently marked disconnected.
func (n *Node) send(startMS int64, samples []int32) {
	if !n.connected.Load() {
		return
	}

	cp := make([]int32, len(samples))
	copy(cp, samples)

	data, err := wire.EncodePPGBundle(wire.PPGBundle{
		SensorID:    n.cfg.SensorID,
		Samples:     cp,
		TimestampMS: int32(startMS),
	})
	if err != nil {
		n.logger.Error("encode bundle", "err", err)
		return
	}

	if _, err := n.conn.Write(data); err != nil {
		n.logger.Debug("send bundle", "err", err)
	}
}
