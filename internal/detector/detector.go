// Package detector turns a per-sensor sequence of (time, value) samples into
// a sequence of beat events, following the adaptive-baseline, threshold,
// refractory, and disconnection discipline of the wire protocol's detector
// contract. A Detector's externally observable behavior is pure: given the
// same sample sequence it produces the same beat sequence, regardless of
// when the samples actually arrived.
package detector

import "fmt"

// Config holds the per-sensor tunables. Field names mirror the
// configuration surface directly.
type Config struct {
	MovingAvgSamples     int
	ThresholdFraction    float64
	MinSignalRange       float64
	RefractoryMS         int64
	MinIBIMS             int64
	MaxIBIMS             int64
	FlatThreshold        float64
	FlatSamples          int
	DecayRate            float64
	DecayIntervalSamples int

	// EnvelopeStrategy selects "minmax" (default) or "medianmad".
	EnvelopeStrategy string
}

// DefaultConfig mirrors the documented configuration-surface defaults.
func DefaultConfig() Config {
	return Config{
		MovingAvgSamples:     5,
		ThresholdFraction:    0.6,
		MinSignalRange:       50,
		RefractoryMS:         300,
		MinIBIMS:             300,
		MaxIBIMS:             3000,
		FlatThreshold:        5,
		FlatSamples:          50,
		DecayRate:            0.1,
		DecayIntervalSamples: 150,
		EnvelopeStrategy:     "minmax",
	}
}

func (c Config) newEnvelope() (EnvelopeTracker, error) {
	switch c.EnvelopeStrategy {
	case "", "minmax":
		return NewMinMaxDecay(c.DecayRate, c.DecayIntervalSamples), nil
	case "medianmad":
		return NewMedianMAD(c.DecayIntervalSamples, 1.4826*3), nil
	default:
		return nil, fmt.Errorf("detector: unknown envelope strategy %q", c.EnvelopeStrategy)
	}
}

// Sample is one (time, value) pair fed to the detector, in the sender's
// timebase. TimestampMS must be the reconstructed per-sample sender
// timestamp, never the receiver's arrival time: IBI arithmetic depends on
// this for jitter independence.
type Sample struct {
	TimestampMS int64
	Value       int32
}

// Event is a detected beat.
type Event struct {
	SensorID    int
	IBIMS       int64
	TimestampMS int64
	Intensity   float64
}

// Transition reports a connection-state change produced by a Process call.
type Transition int

const (
	// TransitionNone means connection state did not change this sample.
	TransitionNone Transition = iota
	// TransitionDisconnected fires exactly once when the sensor is declared
	// disconnected.
	TransitionDisconnected
	// TransitionReconnected fires exactly once when the sensor is declared
	// (re)connected, including the very first connection.
	TransitionReconnected
)

// Result is the outcome of processing one sample.
type Result struct {
	Event      Event
	Emitted    bool
	Transition Transition
}

// Detector holds one sensor's complete beat-detection state. Zero value is
// not usable; construct with New.
type Detector struct {
	sensorID int
	cfg      Config

	window       *slidingWindow
	windowFilled bool
	smoothed     float64

	envelope     EnvelopeTracker
	envelopeInit bool

	aboveThreshold bool

	lastBeatTime      int64
	lastIBI           int64
	firstBeatDetected bool

	isConnected bool
	hasLastRaw  bool
	lastRaw     int32
	flatCount   int
}

// New constructs a Detector for sensorID. It starts disconnected: the first
// samples it sees are treated exactly like a reconnection, requiring the
// signal range to build up and variance to be fresh before the first "beat
// search" begins, which is the lifecycle the spec describes for a freshly
// created per-sensor slot.
func New(sensorID int, cfg Config) (*Detector, error) {
	envelope, err := cfg.newEnvelope()
	if err != nil {
		return nil, err
	}
	return &Detector{
		sensorID: sensorID,
		cfg:      cfg,
		window:   newSlidingWindow(cfg.MovingAvgSamples),
		envelope: envelope,
	}, nil
}

// IsConnected reports the detector's current connection state.
func (d *Detector) IsConnected() bool { return d.isConnected }

// ForceDisconnect marks the detector disconnected out-of-band, for
// disconnection sources the per-sample signal checks can never see — a
// sensor that stops sending altogether never updates the envelope or flat
// count, so only an external timeout (the supervisor's stale-sensor check)
// can notice it. Reports whether this call actually changed the state, so
// callers can count the transition exactly once.
func (d *Detector) ForceDisconnect() bool {
	if !d.isConnected {
		return false
	}
	d.isConnected = false
	return true
}

// LastIBI returns the most recently emitted IBI in milliseconds, or 0 if none
// has been emitted yet.
func (d *Detector) LastIBI() int64 { return d.lastIBI }

// Process feeds one sample through the detector and reports whatever
// happened: a beat event, a connection-state transition, or neither.
func (d *Detector) Process(s Sample) Result {
	var res Result

	d.updateFlatCount(s.Value)
	d.updateSmoothing(s.Value)

	if !d.envelopeInit {
		d.envelope.Reset(d.smoothed)
		d.envelopeInit = true
	} else {
		d.envelope.Update(d.smoothed)
	}

	min, max := d.envelope.Min(), d.envelope.Max()
	lowRange := (max - min) < d.cfg.MinSignalRange
	flat := d.flatCount >= d.cfg.FlatSamples

	if d.isConnected {
		if flat || lowRange {
			d.isConnected = false
			res.Transition = TransitionDisconnected
			return res
		}
	} else {
		if lowRange || d.flatCount != 0 {
			// Still waiting for both a restored range and fresh variance.
			return res
		}
		d.isConnected = true
		d.envelope.Reset(d.smoothed)
		d.firstBeatDetected = false
		d.lastBeatTime = s.TimestampMS
		d.aboveThreshold = false
		res.Transition = TransitionReconnected
		min, max = d.envelope.Min(), d.envelope.Max()
	}

	threshold := min + d.cfg.ThresholdFraction*(max-min)

	switch {
	case d.smoothed >= threshold && !d.aboveThreshold:
		d.handleRisingEdge(s, min, max, &res)
	case d.smoothed < threshold && d.aboveThreshold:
		d.aboveThreshold = false
	}

	return res
}

func (d *Detector) updateFlatCount(raw int32) {
	if d.hasLastRaw {
		diff := float64(raw) - float64(d.lastRaw)
		if diff < 0 {
			diff = -diff
		}
		if diff < d.cfg.FlatThreshold {
			d.flatCount++
		} else {
			d.flatCount = 0
		}
	}
	d.lastRaw = raw
	d.hasLastRaw = true
}

func (d *Detector) updateSmoothing(raw int32) {
	v := float64(raw)
	if !d.windowFilled {
		d.window.fill(v)
		d.windowFilled = true
		d.smoothed = v
		return
	}
	d.smoothed = d.window.push(v)
}

// handleRisingEdge implements spec step 4.3.3's numbered rising-edge
// algorithm: refractory discard, first-beat suppression, spurious-IBI
// suppression, then normal emission — in that order, and critically setting
// above_threshold only on the paths that "count" an edge.
func (d *Detector) handleRisingEdge(s Sample, min, max float64, res *Result) {
	if s.TimestampMS-d.lastBeatTime < d.cfg.RefractoryMS {
		// Refractory discard: the edge did not count, so above_threshold is
		// left untouched, preserving the ability to detect a later edge once
		// the signal has actually fallen and risen again.
		return
	}

	if !d.firstBeatDetected {
		d.firstBeatDetected = true
		d.lastBeatTime = s.TimestampMS
		d.aboveThreshold = true
		return
	}

	ibi := s.TimestampMS - d.lastBeatTime
	if ibi >= d.cfg.MinIBIMS && ibi <= d.cfg.MaxIBIMS {
		res.Event = Event{
			SensorID:    d.sensorID,
			IBIMS:       ibi,
			TimestampMS: s.TimestampMS,
			Intensity:   intensity(d.smoothed, min, max),
		}
		res.Emitted = true
		d.lastIBI = ibi
	}
	// Whether in-range or spurious, the edge resets the phase reference.
	d.lastBeatTime = s.TimestampMS
	d.aboveThreshold = true
}

// intensity derives a normalized peak-excursion quality measure in [0,1]. A
// degenerate (zero-width) envelope reports the spec's mandated default of
// 1.0 rather than dividing by zero.
func intensity(smoothed, min, max float64) float64 {
	if max <= min {
		return 1.0
	}
	v := (smoothed - min) / (max - min)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
