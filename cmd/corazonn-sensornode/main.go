// corazonn-sensornode simulates one PPG sensor: it samples a synthetic
// waveform on a fixed grid, bundles and sends samples to a processor,
// answers `/restart` admin commands, and optionally announces itself over
// mDNS/DNS-SD.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/schuyler/corazonn/internal/config"
	"github.com/schuyler/corazonn/internal/discovery"
	"github.com/schuyler/corazonn/internal/logging"
	"github.com/schuyler/corazonn/internal/sensornode"
	"github.com/spf13/pflag"
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "", "Path to YAML configuration file.")
		sensorID    = pflag.Int("sensor-id", -1, "Override sensor_id from config.")
		serverAddr  = pflag.StringP("server", "s", "", "Override server_addr from config.")
		beatsPerMin = pflag.Float64("bpm", 72, "Simulated heart rate in beats per minute.")
		verbose     = pflag.BoolP("verbose", "v", false, "Enable debug-level logging.")
		help        = pflag.Bool("help", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: corazonn-sensornode [options]")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	cfg, err := config.LoadSensorNode(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "corazonn-sensornode:", err)
		os.Exit(1)
	}
	if *sensorID >= 0 {
		cfg.SensorID = *sensorID
	}
	if *serverAddr != "" {
		cfg.ServerAddr = *serverAddr
	}

	level := log.InfoLevel
	if *verbose {
		level = log.DebugLevel
	}
	logger := logging.New(fmt.Sprintf("sensornode-%d", cfg.SensorID), logging.Options{Level: level})

	if err := run(cfg, *beatsPerMin, logger); err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.SensorNode, beatsPerMin float64, logger *log.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	source := sensornode.NewSineSource(float64(cfg.SampleRateHz), beatsPerMin)
	node := sensornode.New(sensornode.Config{
		SensorID:     cfg.SensorID,
		ServerAddr:   cfg.ServerAddr,
		AdminPort:    cfg.AdminPort,
		SampleRateHz: cfg.SampleRateHz,
		BundleSize:   cfg.BundleSize,
	}, source, logger)

	led, err := sensornode.NewLEDIndicator(cfg.GPIOChip, cfg.LEDLine, logger)
	if err != nil {
		return fmt.Errorf("init led indicator: %w", err)
	}
	defer led.Close()

	linkCheck := sensornode.NewLinkCheck(node, time.Duration(cfg.LinkCheckSec)*time.Second, func() bool {
		return probeServer(cfg.ServerAddr)
	}, logger)
	watchdog := sensornode.NewWatchdog(node, time.Duration(cfg.WatchdogSec)*time.Second, logger)
	admin := sensornode.NewAdminListener(logger)

	var wg sync.WaitGroup
	runTask := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	runTask(func(ctx context.Context) { linkCheck.Run(ctx) })
	runTask(func(ctx context.Context) { watchdog.Run(ctx) })
	runTask(func(ctx context.Context) { led.Run(ctx, node.Connected) })
	runTask(func(ctx context.Context) {
		if err := node.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("sample sender stopped", "err", err)
			cancel()
		}
	})

	if cfg.DiscoveryEnable {
		if err := discovery.Announce(ctx, logger, fmt.Sprintf("corazonn-sensor-%d", cfg.SensorID), cfg.AdminPort); err != nil {
			logger.Warn("discovery announce failed", "err", err)
		}
	}

	logger.Info("sensor node running", "sensor_id", cfg.SensorID, "server", cfg.ServerAddr)

	adminErr := admin.Listen(ctx, fmt.Sprintf(":%d", cfg.AdminPort), func() {
		logger.Info("restart requested: resetting link state")
		node.SetConnected(true)
	})

	cancel()
	wg.Wait()

	if adminErr != nil && ctx.Err() == nil {
		return adminErr
	}
	return nil
}

// probeServer reports whether the processor's input address currently
// resolves and accepts a UDP "connect" (UDP has no handshake, so this only
// confirms local routing/DNS resolves, mirroring a physical link test rather
// than an application-level health check).
func probeServer(addr string) bool {
	conn, err := net.Dial("udp4", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
