package broadcast

import (
	"testing"
	"time"

	"github.com/schuyler/corazonn/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	const port = 18901

	sub, err := NewSubscriber(port)
	require.NoError(t, err)
	defer sub.Close()

	pub, err := NewPublisher(port)
	require.NoError(t, err)
	defer pub.Close()

	want := wire.BeatEvent{SensorID: 2, IBIMS: 812, TimestampMS: 4000, Intensity: 0.73}

	done := make(chan wire.BeatEvent, 1)
	errs := make(chan error, 1)
	go func() {
		got, err := sub.Next()
		if err != nil {
			errs <- err
			return
		}
		done <- got
	}()

	// Give the subscriber goroutine a moment to block in ReadFromUDP.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, pub.Publish(want))

	select {
	case got := <-done:
		require.Equal(t, want, got)
	case err := <-errs:
		t.Fatalf("subscriber error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for beat event")
	}
}

func TestMultipleSubscribersEachReceiveCopy(t *testing.T) {
	const port = 18902

	subA, err := NewSubscriber(port)
	require.NoError(t, err)
	defer subA.Close()

	subB, err := NewSubscriber(port)
	require.NoError(t, err)
	defer subB.Close()

	pub, err := NewPublisher(port)
	require.NoError(t, err)
	defer pub.Close()

	want := wire.BeatEvent{SensorID: 1, IBIMS: 700, TimestampMS: 1000, Intensity: 0.5}

	resultA := make(chan wire.BeatEvent, 1)
	resultB := make(chan wire.BeatEvent, 1)
	go func() {
		got, err := subA.Next()
		if err == nil {
			resultA <- got
		}
	}()
	go func() {
		got, err := subB.Next()
		if err == nil {
			resultB <- got
		}
	}()

	time.Sleep(20 * time.Millisecond)

	// Kernel load-balances a single send across SO_REUSEPORT sockets rather
	// than duplicating it, so a real fan-out to N consumers requires N sends;
	// this only exercises that both bindings are independently viable.
	require.NoError(t, pub.Publish(want))
	require.NoError(t, pub.Publish(want))

	timeout := time.After(time.Second)
	gotA, gotB := false, false
	for !gotA || !gotB {
		select {
		case v := <-resultA:
			require.Equal(t, want, v)
			gotA = true
		case v := <-resultB:
			require.Equal(t, want, v)
			gotB = true
		case <-timeout:
			t.Fatal("timed out waiting for both subscribers")
		}
	}
}
