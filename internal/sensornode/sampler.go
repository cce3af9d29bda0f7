// Package sensornode implements the sensor-node firmware simulation: a
// fixed-grid sample scheduler, a pluggable waveform source, a bundler, a UDP
// sender with silent-loss-while-disconnected semantics, a `/restart` admin
// listener, an LED connection indicator, and link-check/watchdog tasks.
package sensornode

import "math"

// SampleSource produces the raw PPG value for sample index n on the fixed
// 50 Hz grid. Implementations must be pure functions of n (and whatever
// internal parameters they hold): the scheduler calls them once per
// scheduled tick, never more, never retroactively.
type SampleSource interface {
	Sample(n int64) int32
}

// SineSource is the default simulated waveform: a baseline-centered sine at
// a configurable heart rate, scaled to look like a plausible PPG amplitude.
type SineSource struct {
	SampleRateHz float64
	BeatsPerMin  float64
	Baseline     float64
	Amplitude    float64
}

// NewSineSource builds a SineSource with the documented simulation defaults
// (baseline 512, amplitude 400) at sampleRateHz and beatsPerMin.
func NewSineSource(sampleRateHz float64, beatsPerMin float64) *SineSource {
	return &SineSource{
		SampleRateHz: sampleRateHz,
		BeatsPerMin:  beatsPerMin,
		Baseline:     512,
		Amplitude:    400,
	}
}

// Sample returns the sine value for grid index n.
func (s *SineSource) Sample(n int64) int32 {
	freqHz := s.BeatsPerMin / 60.0
	t := float64(n) / s.SampleRateHz
	v := s.Baseline + s.Amplitude*math.Sin(2*math.Pi*freqHz*t)
	return int32(math.Round(v))
}
