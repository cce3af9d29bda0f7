package sensornode

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/schuyler/corazonn/internal/logging"
	"github.com/schuyler/corazonn/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSineSourceIsPureFunctionOfIndex(t *testing.T) {
	s := NewSineSource(50, 72)
	a := s.Sample(100)
	b := s.Sample(100)
	assert.Equal(t, a, b)
}

func TestNodeSendsBundlesOnFixedGrid(t *testing.T) {
	logger := logging.New("test", logging.Options{Output: io.Discard})

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	cfg := Config{
		SensorID:     1,
		ServerAddr:   pc.LocalAddr().String(),
		SampleRateHz: 50,
		BundleSize:   5,
	}
	n := New(cfg, NewSineSource(50, 72), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go n.Run(ctx)

	buf := make([]byte, 256)
	pc.SetReadDeadline(time.Now().Add(time.Second))
	nb, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)

	bundle, err := wire.DecodePPGBundle(buf[:nb], 5)
	require.NoError(t, err)
	assert.Equal(t, 1, bundle.SensorID)
	assert.Len(t, bundle.Samples, 5)
	assert.Equal(t, int32(0), bundle.TimestampMS, "first bundle starts at the grid base")

	nb, _, err = pc.ReadFrom(buf)
	require.NoError(t, err)
	next, err := wire.DecodePPGBundle(buf[:nb], 5)
	require.NoError(t, err)
	assert.Equal(t, int32(5*20), next.TimestampMS-bundle.TimestampMS, "bundles are B samples apart on the 20ms grid")
}

func TestNodeDropsBundlesWhileDisconnected(t *testing.T) {
	logger := logging.New("test", logging.Options{Output: io.Discard})

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	cfg := Config{
		SensorID:     0,
		ServerAddr:   pc.LocalAddr().String(),
		SampleRateHz: 50,
		BundleSize:   5,
	}
	n := New(cfg, NewSineSource(50, 72), logger)
	n.SetConnected(false)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go n.Run(ctx)

	buf := make([]byte, 256)
	pc.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err = pc.ReadFrom(buf)
	assert.Error(t, err) // nothing should have arrived
}

func TestLinkCheckFlipsNodeConnectedState(t *testing.T) {
	logger := logging.New("test", logging.Options{Output: io.Discard})
	n := New(Config{SensorID: 0, ServerAddr: "127.0.0.1:1", SampleRateHz: 50, BundleSize: 5}, NewSineSource(50, 72), logger)
	n.SetConnected(true)

	up := false
	lc := NewLinkCheck(n, 20*time.Millisecond, func() bool { return up }, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	lc.Run(ctx)

	assert.False(t, n.Connected())
}

func TestWatchdogForcesReconnectAfterTimeout(t *testing.T) {
	logger := logging.New("test", logging.Options{Output: io.Discard})
	n := New(Config{SensorID: 0, ServerAddr: "127.0.0.1:1", SampleRateHz: 50, BundleSize: 5}, NewSineSource(50, 72), logger)
	n.SetConnected(false)

	wd := NewWatchdog(n, 40*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	wd.Run(ctx)

	assert.True(t, n.Connected())
}

func TestAdminListenerInvokesOnRestart(t *testing.T) {
	logger := logging.New("test", logging.Options{Output: io.Discard})
	al := NewAdminListener(logger)

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	pc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restarted := make(chan struct{}, 1)
	go al.Listen(ctx, addr, func() { restarted <- struct{}{} })

	time.Sleep(30 * time.Millisecond)

	conn, err := net.Dial("udp4", addr)
	require.NoError(t, err)
	defer conn.Close()

	data, err := wire.EncodeRestart()
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)

	select {
	case <-restarted:
	case <-time.After(time.Second):
		t.Fatal("onRestart was never called")
	}
}
