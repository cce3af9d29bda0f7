// Package config loads processor and sensor-node configuration from a YAML
// file, with command-line flags (via pflag) taking precedence over whatever
// the file specifies — the same two-layer precedence the reference TNC
// applies between its config file and its getopt-style options.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Processor holds every tunable named in the configuration surface for the
// processing host.
type Processor struct {
	InputPort int `yaml:"input_port"`
	BeatsPort int `yaml:"beats_port"`

	SampleRateHz int `yaml:"sample_rate_hz"`
	BundleSize   int `yaml:"bundle_size"`

	MovingAvgSamples     int     `yaml:"moving_avg_samples"`
	ThresholdFraction    float64 `yaml:"threshold_fraction"`
	MinSignalRange       float64 `yaml:"min_signal_range"`
	RefractoryMS         int     `yaml:"refractory_ms"`
	MinIBIMS             int     `yaml:"min_ibi_ms"`
	MaxIBIMS             int     `yaml:"max_ibi_ms"`
	FlatThreshold        float64 `yaml:"flat_threshold"`
	FlatSamples          int     `yaml:"flat_samples"`
	DecayRate            float64 `yaml:"decay_rate"`
	DecayIntervalSamples int     `yaml:"decay_interval_samples"`

	StaleTimeoutMS int `yaml:"stale_timeout_ms"`

	PredictorEnabled             bool    `yaml:"predictor_enabled"`
	PredictorConfidenceThreshold float64 `yaml:"predictor_confidence_threshold"`

	// EnvelopeStrategy selects the adaptive-baseline implementation: "minmax"
	// (the mandated default) or "medianmad" (the optional robust alternate
	// the spec permits implementers to substitute).
	EnvelopeStrategy string `yaml:"envelope_strategy"`

	// TimestampFormat is a strftime(3) pattern used for log and stats
	// timestamps.
	TimestampFormat string `yaml:"timestamp_format"`

	// StatsIntervalSec controls how often the supervisor logs per-sensor
	// statistics; 0 disables periodic stats logging.
	StatsIntervalSec int `yaml:"stats_interval_sec"`
}

// DefaultProcessor returns the configuration surface's documented defaults.
func DefaultProcessor() Processor {
	return Processor{
		InputPort:                    8000,
		BeatsPort:                    8001,
		SampleRateHz:                 50,
		BundleSize:                   5,
		MovingAvgSamples:             5,
		ThresholdFraction:            0.6,
		MinSignalRange:               50,
		RefractoryMS:                 300,
		MinIBIMS:                     300,
		MaxIBIMS:                     3000,
		FlatThreshold:                5,
		FlatSamples:                  50,
		DecayRate:                    0.1,
		DecayIntervalSamples:         150,
		StaleTimeoutMS:               2000,
		PredictorEnabled:             true,
		PredictorConfidenceThreshold: 0.5,
		EnvelopeStrategy:             "minmax",
		TimestampFormat:              "%Y-%m-%d %H:%M:%S",
		StatsIntervalSec:             10,
	}
}

// LoadProcessor reads a YAML file and overlays it onto the documented
// defaults. An empty path is not an error: the defaults stand alone.
func LoadProcessor(path string) (Processor, error) {
	cfg := DefaultProcessor()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// SensorNode holds the tunables for the sensor-node firmware simulation.
type SensorNode struct {
	SensorID        int    `yaml:"sensor_id"`
	ServerAddr      string `yaml:"server_addr"`
	AdminPort       int    `yaml:"admin_port"`
	SampleRateHz    int    `yaml:"sample_rate_hz"`
	BundleSize      int    `yaml:"bundle_size"`
	GPIOChip        string `yaml:"gpio_chip"`
	LEDLine         int    `yaml:"led_line"`
	LinkCheckSec    int    `yaml:"link_check_sec"`
	WatchdogSec     int    `yaml:"watchdog_sec"`
	DiscoveryEnable bool   `yaml:"discovery_enable"`
}

// DefaultSensorNode returns the wire protocol's documented defaults for a
// single sensor node.
func DefaultSensorNode() SensorNode {
	return SensorNode{
		SensorID:        0,
		ServerAddr:      "127.0.0.1:8000",
		AdminPort:       8006,
		SampleRateHz:    50,
		BundleSize:      5,
		GPIOChip:        "",
		LEDLine:         0,
		LinkCheckSec:    3,
		WatchdogSec:     30,
		DiscoveryEnable: true,
	}
}

// LoadSensorNode reads a YAML file and overlays it onto the documented
// defaults.
func LoadSensorNode(path string) (SensorNode, error) {
	cfg := DefaultSensorNode()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
