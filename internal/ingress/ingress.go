// Package ingress receives PPG sample bundles over UDP, validates them
// against the wire contract, demultiplexes by sensor id, reconstructs
// per-sample sender timestamps from the bundle's leading timestamp, and
// drives each sensor's detector.Detector. It is the only place raw network
// bytes become Sample values.
package ingress

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/schuyler/corazonn/internal/detector"
	"github.com/schuyler/corazonn/internal/wire"
)

// Config controls bundle validation and per-sample timestamp reconstruction.
type Config struct {
	BundleSize       int
	SampleIntervalMS int64
	DetectorConfig   detector.Config
}

// DefaultConfig mirrors the wire package's defaults.
func DefaultConfig() Config {
	return Config{
		BundleSize:       wire.DefaultBundleSize,
		SampleIntervalMS: wire.SampleIntervalMS,
		DetectorConfig:   detector.DefaultConfig(),
	}
}

// Stats is one sensor's running receive counters, read by the supervisor.
type Stats struct {
	SamplesReceived int64
	BundlesReceived int64
	BeatsEmitted    int64
	Disconnects     int64
	LastReceivedAt  time.Time
}

// sensorSlot holds one sensor id's detector and counters. Sensor slots are
// arena-allocated up front (see NewReceiver) and never created or destroyed
// at runtime, so no per-packet allocation or locking is needed beyond the
// slot's own instance.
type sensorSlot struct {
	det   *detector.Detector
	stats Stats
}

// Receiver owns the UDP listener and the fixed array of per-sensor slots. It
// is not safe for concurrent HandlePacket calls on the same sensor, but slots for
// different sensors are fully independent.
type Receiver struct {
	cfg    Config
	logger *log.Logger
	slots  [wire.MaxSensors]*sensorSlot
	onBeat func(detector.Event)

	rejectedTotal atomic.Int64
}

// NewReceiver builds a Receiver with one detector per possible sensor id,
// per the fixed-capacity resource model (no sensor slot is ever allocated or
// freed after startup). onBeat is invoked synchronously from whichever
// goroutine calls HandlePacket for an emitted beat.
func NewReceiver(cfg Config, logger *log.Logger, onBeat func(detector.Event)) (*Receiver, error) {
	r := &Receiver{cfg: cfg, logger: logger, onBeat: onBeat}
	for i := 0; i < wire.MaxSensors; i++ {
		det, err := detector.New(i, cfg.DetectorConfig)
		if err != nil {
			return nil, fmt.Errorf("ingress: init detector for sensor %d: %w", i, err)
		}
		r.slots[i] = &sensorSlot{det: det}
	}
	return r, nil
}

// Stats returns a snapshot of sensorID's counters. ok is false for an
// out-of-range id.
func (r *Receiver) Stats(sensorID int) (Stats, bool) {
	if sensorID < 0 || sensorID >= wire.MaxSensors {
		return Stats{}, false
	}
	return r.slots[sensorID].stats, true
}

// RejectedTotal returns the number of datagrams rejected by validation
// (malformed address, out-of-range id, wrong arity, out-of-range sample
// value). Rejects are counted here only, never against a sensor's Stats.
func (r *Receiver) RejectedTotal() int64 { return r.rejectedTotal.Load() }

// IsConnected reports sensorID's current detector connection state.
func (r *Receiver) IsConnected(sensorID int) bool {
	if sensorID < 0 || sensorID >= wire.MaxSensors {
		return false
	}
	return r.slots[sensorID].det.IsConnected()
}

// ForceDisconnect marks sensorID's detector disconnected out-of-band (used by
// the supervisor's stale-sensor timeout, the only path that can notice a
// sensor that has stopped sending bundles entirely) and increments its
// disconnect counter exactly once if this call actually changes the
// connection state. A subsequent bundle for sensorID goes through the
// detector's normal reconnection and first-beat-suppression path.
func (r *Receiver) ForceDisconnect(sensorID int) {
	if sensorID < 0 || sensorID >= wire.MaxSensors {
		return
	}
	slot := r.slots[sensorID]
	if slot.det.ForceDisconnect() {
		slot.stats.Disconnects++
	}
}

// HandlePacket validates and processes one raw `/ppg/<id>` datagram.
// Malformed packets (bad address, wrong sample count, out-of-range sensor
// id) are rejected and counted, never panicking the receiver: one bad
// sensor's packets never affect another's.
func (r *Receiver) HandlePacket(data []byte) {
	bundle, err := wire.DecodePPGBundle(data, r.cfg.BundleSize)
	if err != nil {
		r.rejectedTotal.Add(1)
		r.logger.Debug("rejected ppg bundle", "err", err)
		// The sensor id may not even be parseable; there is nowhere to
		// attribute this reject to a single sensor's counters, so it only
		// goes into the receiver-wide total.
		return
	}

	slot := r.slots[bundle.SensorID]
	slot.stats.BundlesReceived++
	slot.stats.LastReceivedAt = time.Now()

	for i, v := range bundle.Samples {
		ts := int64(bundle.TimestampMS) + int64(i)*r.cfg.SampleIntervalMS
		res := slot.det.Process(detector.Sample{TimestampMS: ts, Value: v})
		slot.stats.SamplesReceived++

		switch res.Transition {
		case detector.TransitionDisconnected:
			slot.stats.Disconnects++
			r.logger.Warn("sensor disconnected", "sensor_id", bundle.SensorID)
		case detector.TransitionReconnected:
			r.logger.Info("sensor connected", "sensor_id", bundle.SensorID)
		}

		if res.Emitted {
			slot.stats.BeatsEmitted++
			if r.onBeat != nil {
				r.onBeat(res.Event)
			}
		}
	}
}

// Listen binds addr (e.g. ":8000") and processes datagrams until ctx is
// cancelled. Reject-worthy datagrams never stop the loop; only a listen or
// read failure on the socket itself does, per the "bind failures are fatal,
// individual packet errors are not" error-handling design.
func (r *Receiver) Listen(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return fmt.Errorf("ingress: listen %s: %w", addr, err)
	}
	defer pc.Close()

	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ingress: read: %w", err)
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		r.HandlePacket(packet)
	}
}
