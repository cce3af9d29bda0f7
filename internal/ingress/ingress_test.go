package ingress

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/schuyler/corazonn/internal/detector"
	"github.com/schuyler/corazonn/internal/logging"
	"github.com/schuyler/corazonn/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *log.Logger {
	return logging.New("test", logging.Options{Output: io.Discard})
}

func bundleFor(sensorID int, samples []int32, ts int32) []byte {
	data, err := wire.EncodePPGBundle(wire.PPGBundle{SensorID: sensorID, Samples: samples, TimestampMS: ts})
	if err != nil {
		panic(err)
	}
	return data
}

func TestHandlePacketRejectsMalformedBundle(t *testing.T) {
	cfg := DefaultConfig()
	r, err := NewReceiver(cfg, discardLogger(), nil)
	require.NoError(t, err)

	r.HandlePacket([]byte{0, 0}) // truncated, no address bytes
	assert.Equal(t, int64(1), r.RejectedTotal())

	stats, ok := r.Stats(0)
	require.True(t, ok)
	assert.Equal(t, int64(0), stats.BundlesReceived)
}

func TestHandlePacketWrongArityRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BundleSize = 5
	r, err := NewReceiver(cfg, discardLogger(), nil)
	require.NoError(t, err)

	data := bundleFor(0, []int32{1, 2, 3}, 0) // wrong sample count for bundle size 5
	r.HandlePacket(data)
	assert.Equal(t, int64(1), r.RejectedTotal())
}

func TestHandlePacketDemultiplexesBySensorID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BundleSize = 2
	r, err := NewReceiver(cfg, discardLogger(), nil)
	require.NoError(t, err)

	r.HandlePacket(bundleFor(0, []int32{100, 110}, 0))
	r.HandlePacket(bundleFor(1, []int32{200, 210}, 0))

	stats0, _ := r.Stats(0)
	stats1, _ := r.Stats(1)
	assert.Equal(t, int64(1), stats0.BundlesReceived)
	assert.Equal(t, int64(1), stats1.BundlesReceived)
	assert.Equal(t, int64(2), stats0.SamplesReceived)
	assert.Equal(t, int64(2), stats1.SamplesReceived)
}

func TestHandlePacketReconstructsPerSampleTimestamps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BundleSize = 3
	cfg.SampleIntervalMS = 20

	var events []detector.Event
	r, err := NewReceiver(cfg, discardLogger(), func(e detector.Event) {
		events = append(events, e)
	})
	require.NoError(t, err)

	// Feed enough bundles of a clean square-ish wave to get the detector
	// connected and through a couple of beats; sample counts must line up
	// with bundle_size * num_bundles, and every beat must carry its own
	// reconstructed per-sample timestamp.
	for i := 0; i < 40; i++ {
		base := int32(i * 3 * 20)
		v := int32(400)
		if i%8 < 4 {
			v = 900
		}
		r.HandlePacket(bundleFor(0, []int32{v, v, v}, base))
	}

	stats, _ := r.Stats(0)
	assert.Equal(t, int64(120), stats.SamplesReceived)

	// The first beat is the third sample of the bundle stamped 960ms, so it
	// carries 960 + 2*20, not the bundle's leading timestamp.
	var beatTimes []int64
	for _, e := range events {
		beatTimes = append(beatTimes, e.TimestampMS)
	}
	assert.Equal(t, []int64{1000, 1480, 1960}, beatTimes)
}

func TestHandlePacketRejectsOutOfRangeSampleValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BundleSize = 2
	r, err := NewReceiver(cfg, discardLogger(), nil)
	require.NoError(t, err)

	r.HandlePacket(bundleFor(0, []int32{100, 5000}, 0))
	assert.Equal(t, int64(1), r.RejectedTotal())

	stats, ok := r.Stats(0)
	require.True(t, ok)
	assert.Equal(t, int64(0), stats.BundlesReceived, "out-of-range sample must reject the whole bundle")
}

func TestHandlePacketOutOfRangeSensorIDRejected(t *testing.T) {
	r, err := NewReceiver(DefaultConfig(), discardLogger(), nil)
	require.NoError(t, err)

	data, err := wire.EncodePPGBundle(wire.PPGBundle{SensorID: 0, Samples: make([]int32, wire.DefaultBundleSize), TimestampMS: 0})
	require.NoError(t, err)
	// Corrupt the address digit in place to point past MaxSensors.
	data[7] = '9'
	r.HandlePacket(data)
	assert.Equal(t, int64(1), r.RejectedTotal())
}
