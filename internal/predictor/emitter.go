package predictor

import (
	"context"
	"sync/atomic"
	"time"
)

// QueueDepth is the bounded per-sensor detection queue size (8, per the
// resource model: drop-newest on overflow with a counter).
const QueueDepth = 8

// Detection is one beat the detector emitted, handed to the predictor's
// owning goroutine.
type Detection struct {
	IBIMS       int64
	TimestampMS int64 // sender timebase, carried through for provenance only
	Intensity   float64
	ReceivedAt  time.Time // receiver clock, at the moment ingress produced this
}

// Emission is what the Emitter hands to its caller, either a scheduled
// prediction or a pass-through of a raw detection (when unlocked).
type Emission struct {
	SensorID    int
	IBIMS       int64
	TimestampMS int64
	Intensity   float64
	Predicted   bool
}

// Emitter owns one sensor's Predictor and runs its background wake loop: a
// detection queue feeding OnDetection, and a timer firing scheduled
// emissions on the receiver's own clock, per the concurrency model's "one
// scheduled wake per sensor per expected beat."
type Emitter struct {
	sensorID  int
	cfg       Config
	predictor *Predictor
	emit      func(Emission)
	queue     chan Detection
	dropped   atomic.Int64

	// lastIntensity carries the most recently observed detection's intensity
	// forward into predicted emissions, which have no detection of their own
	// to derive one from.
	lastIntensity float64
}

// NewEmitter builds an Emitter for sensorID. emit is invoked (from the
// Emitter's own goroutine, never concurrently) for every beat event produced,
// predicted or passed through.
func NewEmitter(sensorID int, cfg Config, emit func(Emission)) *Emitter {
	return &Emitter{
		sensorID:      sensorID,
		cfg:           cfg,
		predictor:     New(cfg),
		emit:          emit,
		queue:         make(chan Detection, QueueDepth),
		lastIntensity: 1.0,
	}
}

// Submit hands a detection to the emitter's queue, non-blocking. If the
// queue is full the detection is dropped and the drop counter increments;
// this is the documented drop-newest-on-overflow policy.
func (e *Emitter) Submit(d Detection) {
	select {
	case e.queue <- d:
	default:
		e.dropped.Add(1)
	}
}

// Dropped returns the number of detections dropped due to queue overflow.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// Run drives the emitter until ctx is cancelled. While the predictor is
// unlocked (confidence below threshold, or no detection has ever arrived),
// every detection is passed straight through with no scheduling. Once
// locked, detections update the phase-locked loop and a timer fires
// emissions on the predictor's own schedule.
func (e *Emitter) Run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return

		case d := <-e.queue:
			e.predictor.OnDetection(d.ReceivedAt, d.IBIMS)
			e.lastIntensity = d.Intensity

			if !e.predictor.Locked() {
				stopTimer()
				e.emit(Emission{
					SensorID:    e.sensorID,
					IBIMS:       d.IBIMS,
					TimestampMS: d.TimestampMS,
					Intensity:   d.Intensity,
					Predicted:   false,
				})
				continue
			}

			// Locked: (re)arm the scheduled emission at the predictor's
			// freshly corrected next_emit_time.
			stopTimer()
			timer = time.NewTimer(time.Until(e.predictor.NextEmitTime()))
			timerC = timer.C

		case <-timerC:
			if !e.predictor.Locked() {
				stopTimer()
				continue
			}
			em := Emission{
				SensorID:  e.sensorID,
				IBIMS:     int64(e.predictor.IBIEstimateMS()),
				Intensity: e.lastIntensity,
				Predicted: true,
			}
			e.predictor.Advance()
			em.TimestampMS = nowMS()
			e.emit(em)

			stopTimer()
			timer = time.NewTimer(time.Until(e.predictor.NextEmitTime()))
			timerC = timer.C
		}
	}
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
