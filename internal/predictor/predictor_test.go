package predictor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictorLocksOnSteadyRhythm(t *testing.T) {
	p := New(DefaultConfig())

	base := time.Now()
	for i := 0; i < 20; i++ {
		p.OnDetection(base.Add(time.Duration(i)*800*time.Millisecond), 800)
	}

	assert.True(t, p.Locked())
	assert.InDelta(t, 800, p.IBIEstimateMS(), 5)
}

func TestPredictorLosesLockOnJitteryRhythm(t *testing.T) {
	p := New(DefaultConfig())

	base := time.Now()
	// Lock onto a steady rhythm first.
	for i := 0; i < 10; i++ {
		p.OnDetection(base.Add(time.Duration(i)*800*time.Millisecond), 800)
	}
	require.True(t, p.Locked())

	// Then feed wildly off-phase detections.
	t2 := base.Add(10 * 800 * time.Millisecond)
	for i := 0; i < 10; i++ {
		t2 = t2.Add(time.Duration(300+200*(i%2)) * time.Millisecond)
		p.OnDetection(t2, int64(300+200*(i%2)))
	}

	assert.False(t, p.Locked())
}

func TestEmitterPassesThroughWhileUnlocked(t *testing.T) {
	var mu sync.Mutex
	var emissions []Emission

	e := NewEmitter(0, DefaultConfig(), func(em Emission) {
		mu.Lock()
		defer mu.Unlock()
		emissions = append(emissions, em)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.Submit(Detection{IBIMS: 800, TimestampMS: 800, ReceivedAt: time.Now()})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emissions) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.False(t, emissions[0].Predicted)
	mu.Unlock()
}

func TestEmitterPredictedEmissionCarriesLastIntensity(t *testing.T) {
	var mu sync.Mutex
	var emissions []Emission

	e := NewEmitter(0, DefaultConfig(), func(em Emission) {
		mu.Lock()
		defer mu.Unlock()
		emissions = append(emissions, em)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	const ibiMS = 50
	for i := 0; i < 20; i++ {
		e.Submit(Detection{
			IBIMS:       ibiMS,
			TimestampMS: int64(i) * ibiMS,
			Intensity:   0.42,
			ReceivedAt:  time.Now(),
		})
		time.Sleep(ibiMS * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emissions) > 0 && emissions[len(emissions)-1].Predicted
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, em := range emissions {
		if em.Predicted {
			assert.Equal(t, 0.42, em.Intensity, "predicted emission must carry the last detection's intensity forward")
			return
		}
	}
}

func TestEmitterDropsOnQueueOverflow(t *testing.T) {
	// No consumer running: the queue fills and further submits are dropped.
	e := NewEmitter(0, DefaultConfig(), func(Emission) {})

	for i := 0; i < QueueDepth+5; i++ {
		e.Submit(Detection{IBIMS: 800, ReceivedAt: time.Now()})
	}

	assert.Equal(t, int64(5), e.Dropped())
}
