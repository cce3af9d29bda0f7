package detector

import "sort"

// EnvelopeTracker maintains the adaptive signal envelope (min, max) that the
// beat threshold is derived from. Two properties must hold for any
// implementation: the threshold recovers within roughly 3 seconds of an
// amplitude step, and the envelope is insensitive to single-sample outliers.
//
// Reset seeds the envelope at connect/reconnect time (min = max = v).
// Update folds in one new smoothed sample.
type EnvelopeTracker interface {
	Reset(v float64)
	Update(v float64)
	Min() float64
	Max() float64
}

// MinMaxDecay is the mandated default envelope strategy: instantaneous
// expansion toward new extremes, with periodic fractional contraction
// pulling both bounds back toward the current sample. Expansion preserves
// sensitivity to the current pulse; slow contraction prevents the envelope
// from locking onto a noise floor or a saturated anomaly.
type MinMaxDecay struct {
	min, max          float64
	decayRate         float64
	decayInterval     int
	samplesSinceDecay int
}

// NewMinMaxDecay builds a MinMaxDecay tracker. decayRate is the fraction
// (DECAY_RATE, default 0.1) each bound is pulled toward the current sample
// every decayInterval samples (DECAY_INTERVAL, default 150 -> 3s at 50Hz).
func NewMinMaxDecay(decayRate float64, decayInterval int) *MinMaxDecay {
	return &MinMaxDecay{decayRate: decayRate, decayInterval: decayInterval}
}

func (e *MinMaxDecay) Reset(v float64) {
	e.min = v
	e.max = v
	e.samplesSinceDecay = 0
}

func (e *MinMaxDecay) Update(v float64) {
	if v < e.min {
		e.min = v
	}
	if v > e.max {
		e.max = v
	}

	e.samplesSinceDecay++
	if e.decayInterval > 0 && e.samplesSinceDecay >= e.decayInterval {
		e.min += (v - e.min) * e.decayRate
		e.max -= (e.max - v) * e.decayRate
		e.samplesSinceDecay = 0
	}
}

func (e *MinMaxDecay) Min() float64 { return e.min }
func (e *MinMaxDecay) Max() float64 { return e.max }

// MedianMAD is the optional robust alternate the spec permits implementers to
// substitute: a rolling median and median-absolute-deviation over the last
// windowSize smoothed samples, with the envelope taken as
// median +/- madMultiplier*MAD. Outliers move the median by at most one
// rank position, satisfying the single-sample-outlier-insensitivity
// property; a windowSize matched to the mandated DECAY_INTERVAL (150
// samples, 3s at 50Hz) satisfies the recovery-time property.
type MedianMAD struct {
	window        *slidingWindow
	madMultiplier float64
}

// NewMedianMAD builds a MedianMAD tracker. windowSize should typically match
// the DECAY_INTERVAL used elsewhere so the two strategies recover amplitude
// steps on comparable timescales.
func NewMedianMAD(windowSize int, madMultiplier float64) *MedianMAD {
	return &MedianMAD{
		window:        newSlidingWindow(windowSize),
		madMultiplier: madMultiplier,
	}
}

func (e *MedianMAD) Reset(v float64) {
	e.window.fill(v)
}

func (e *MedianMAD) Update(v float64) {
	e.window.push(v)
}

func (e *MedianMAD) Min() float64 {
	med, mad := e.medianMAD()
	return med - e.madMultiplier*mad
}

func (e *MedianMAD) Max() float64 {
	med, mad := e.medianMAD()
	return med + e.madMultiplier*mad
}

func (e *MedianMAD) medianMAD() (median, mad float64) {
	vals := e.window.snapshot()
	median = sortedMedian(vals)

	devs := make([]float64, len(vals))
	for i, v := range vals {
		d := v - median
		if d < 0 {
			d = -d
		}
		devs[i] = d
	}
	mad = sortedMedian(devs)
	// A MAD of exactly zero (e.g. a perfectly flat window) would collapse the
	// envelope to a point; floor it so Min()/Max() still bound a usable
	// range.
	if mad == 0 {
		mad = 1e-6
	}
	return median, mad
}

func sortedMedian(vals []float64) float64 {
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	n := len(cp)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return cp[n/2]
	}
	return (cp[n/2-1] + cp[n/2]) / 2
}
