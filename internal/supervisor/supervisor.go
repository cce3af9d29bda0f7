// Package supervisor runs the processor's periodic housekeeping: stale-sensor
// detection and periodic per-sensor statistics logging. It owns no sensor
// state itself, only polls the ingress.Receiver it is given, mirroring the
// reference TNC's own periodic audio-device health check (audio_stats.go)
// generalized from one audio device to N sensor slots.
package supervisor

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/schuyler/corazonn/internal/ingress"
	"github.com/schuyler/corazonn/internal/logging"
	"github.com/schuyler/corazonn/internal/wire"
)

// pollInterval is the fixed 1 Hz cadence the stale check runs at.
const pollInterval = time.Second

// Config controls stale detection and stats reporting.
type Config struct {
	StaleTimeoutMS   int64
	StatsIntervalSec int
	TimestampFormat  string
}

// Supervisor polls an ingress.Receiver's per-sensor state on a fixed tick.
type Supervisor struct {
	cfg      Config
	receiver *ingress.Receiver
	logger   *log.Logger
}

// New builds a Supervisor for receiver.
func New(cfg Config, receiver *ingress.Receiver, logger *log.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, receiver: receiver, logger: logger}
}

// Run drives the 1 Hz stale check and the (slower) periodic stats report
// until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	elapsed := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed++
			s.checkStale()
			if s.cfg.StatsIntervalSec > 0 && elapsed%s.cfg.StatsIntervalSec == 0 {
				s.logStats()
			}
		}
	}
}

// checkStale declares a sensor stale when no bundle has arrived within
// StaleTimeoutMS of the last one received, independent of the detector's own
// flat/low-range disconnection logic: a sensor that stops sending entirely
// never trips the detector's signal-based checks, since those only run when
// samples arrive at all. A stale sensor is forced disconnected at the
// detector level, which is the only path that can notice this kind of
// silence, so the next bundle it sends goes through the normal reconnection
// and first-beat-suppression sequence. ForceDisconnect is idempotent, so a
// sensor that stays stale across many ticks is only counted once.
func (s *Supervisor) checkStale() {
	now := time.Now()
	for i := 0; i < wire.MaxSensors; i++ {
		if !s.receiver.IsConnected(i) {
			continue
		}
		stats, ok := s.receiver.Stats(i)
		if !ok || stats.LastReceivedAt.IsZero() {
			continue
		}
		staleFor := now.Sub(stats.LastReceivedAt).Milliseconds()
		if staleFor >= s.cfg.StaleTimeoutMS {
			s.receiver.ForceDisconnect(i)
			s.logger.Warn("sensor stale, no bundles received", "sensor_id", i, "stale_for_ms", staleFor)
		}
	}
}

// logStats emits one log line per sensor with its running counters.
func (s *Supervisor) logStats() {
	now := logging.FormatTimestamp(s.cfg.TimestampFormat, time.Now())
	for i := 0; i < wire.MaxSensors; i++ {
		stats, ok := s.receiver.Stats(i)
		if !ok {
			continue
		}
		s.logger.Info("sensor stats",
			"time", now,
			"sensor_id", i,
			"connected", s.receiver.IsConnected(i),
			"samples_received", stats.SamplesReceived,
			"bundles_received", stats.BundlesReceived,
			"beats_emitted", stats.BeatsEmitted,
			"disconnects", stats.Disconnects,
		)
	}
	if total := s.receiver.RejectedTotal(); total > 0 {
		s.logger.Info("ingress rejects", "time", now, "total_rejected", total)
	}
}
