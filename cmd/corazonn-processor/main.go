// corazonn-processor receives PPG sample bundles from sensor nodes, runs
// per-sensor beat detection and phase-locked prediction, and broadcasts beat
// events for any number of local consumers to pick up.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/schuyler/corazonn/internal/broadcast"
	"github.com/schuyler/corazonn/internal/config"
	"github.com/schuyler/corazonn/internal/detector"
	"github.com/schuyler/corazonn/internal/ingress"
	"github.com/schuyler/corazonn/internal/logging"
	"github.com/schuyler/corazonn/internal/predictor"
	"github.com/schuyler/corazonn/internal/supervisor"
	"github.com/schuyler/corazonn/internal/wire"
	"github.com/spf13/pflag"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to YAML configuration file.")
		inputPort  = pflag.Int("input-port", 0, "Override input_port from config.")
		beatsPort  = pflag.Int("beats-port", 0, "Override beats_port from config.")
		verbose    = pflag.BoolP("verbose", "v", false, "Enable debug-level logging.")
		help       = pflag.Bool("help", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: corazonn-processor [options]")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	cfg, err := config.LoadProcessor(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "corazonn-processor:", err)
		os.Exit(1)
	}
	if *inputPort != 0 {
		cfg.InputPort = *inputPort
	}
	if *beatsPort != 0 {
		cfg.BeatsPort = *beatsPort
	}

	level := log.InfoLevel
	if *verbose {
		level = log.DebugLevel
	}
	logger := logging.New("processor", logging.Options{Level: level, TimestampFormat: cfg.TimestampFormat})

	if err := run(cfg, logger); err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Processor, logger *log.Logger) error {
	pub, err := broadcast.NewPublisher(cfg.BeatsPort)
	if err != nil {
		return fmt.Errorf("bind beats port: %w", err)
	}
	defer pub.Close()

	emitters := make(map[int]*predictor.Emitter)
	predictorCfg := predictor.DefaultConfig()
	predictorCfg.ConfidenceThreshold = cfg.PredictorConfidenceThreshold

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	onEmission := func(em predictor.Emission) {
		event := wire.BeatEvent{
			SensorID:    em.SensorID,
			IBIMS:       int32(em.IBIMS),
			TimestampMS: int32(em.TimestampMS),
			Intensity:   float32(em.Intensity),
		}
		if err := pub.Publish(event); err != nil {
			logger.Debug("publish beat event", "err", err)
		}
	}

	for i := 0; i < wire.MaxSensors; i++ {
		e := predictor.NewEmitter(i, predictorCfg, onEmission)
		emitters[i] = e
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Run(ctx)
		}()
	}

	detCfg := detector.Config{
		MovingAvgSamples:     cfg.MovingAvgSamples,
		ThresholdFraction:    cfg.ThresholdFraction,
		MinSignalRange:       cfg.MinSignalRange,
		RefractoryMS:         int64(cfg.RefractoryMS),
		MinIBIMS:             int64(cfg.MinIBIMS),
		MaxIBIMS:             int64(cfg.MaxIBIMS),
		FlatThreshold:        cfg.FlatThreshold,
		FlatSamples:          cfg.FlatSamples,
		DecayRate:            cfg.DecayRate,
		DecayIntervalSamples: cfg.DecayIntervalSamples,
		EnvelopeStrategy:     cfg.EnvelopeStrategy,
	}

	onBeat := func(ev detector.Event) {
		if cfg.PredictorEnabled {
			if e, ok := emitters[ev.SensorID]; ok {
				e.Submit(predictor.Detection{
					IBIMS:       ev.IBIMS,
					TimestampMS: ev.TimestampMS,
					Intensity:   ev.Intensity,
					ReceivedAt:  time.Now(),
				})
				return
			}
		}
		if err := pub.Publish(wire.BeatEvent{
			SensorID:    ev.SensorID,
			IBIMS:       int32(ev.IBIMS),
			TimestampMS: int32(ev.TimestampMS),
			Intensity:   float32(ev.Intensity),
		}); err != nil {
			logger.Debug("publish beat event", "err", err)
		}
	}

	recv, err := ingress.NewReceiver(ingress.Config{
		BundleSize:       cfg.BundleSize,
		SampleIntervalMS: int64(1000 / cfg.SampleRateHz),
		DetectorConfig:   detCfg,
	}, logger, onBeat)
	if err != nil {
		return fmt.Errorf("init ingress: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		StaleTimeoutMS:   int64(cfg.StaleTimeoutMS),
		StatsIntervalSec: cfg.StatsIntervalSec,
		TimestampFormat:  cfg.TimestampFormat,
	}, recv, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		sup.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("listening for sensor bundles", "port", cfg.InputPort)
	logger.Info("broadcasting beat events", "port", cfg.BeatsPort)

	listenErr := recv.Listen(ctx, fmt.Sprintf(":%d", cfg.InputPort))
	cancel()
	wg.Wait()

	if listenErr != nil && ctx.Err() == nil {
		return listenErr
	}
	return nil
}
