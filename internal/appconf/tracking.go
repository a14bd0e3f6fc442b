package appconf

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TrackingConfig tunes the real-time tracking core. All durations are
// expressed in seconds in the YAML file and converted on load.
type TrackingConfig struct {
	NoiseThresholdMeters   float64 `yaml:"noiseThresholdMeters" validate:"gte=0"`
	RecencyWindowSeconds   int     `yaml:"recencyWindowSeconds" validate:"gte=0"`
	FutureHorizonSeconds   int     `yaml:"futureHorizonSeconds" validate:"gte=0"`
	MinHistoryMeters       float64 `yaml:"minHistoryMeters" validate:"gte=0"`
	MinHistorySeconds      int     `yaml:"minHistorySeconds" validate:"gte=0"`
	RetentionWindowSeconds int     `yaml:"retentionWindowSeconds" validate:"gte=0"`
	MaxHistoryPerBus       int     `yaml:"maxHistoryPerBus" validate:"gte=0"`
	LivenessTimeoutSeconds int     `yaml:"livenessTimeoutSeconds" validate:"gte=0"`
	SweepIntervalSeconds   int     `yaml:"sweepIntervalSeconds" validate:"gte=0"`
}

// DefaultTrackingConfig returns the values used when no settings file is
// provided.
func DefaultTrackingConfig() TrackingConfig {
	return TrackingConfig{
		NoiseThresholdMeters:   10,
		RecencyWindowSeconds:   120,
		FutureHorizonSeconds:   300,
		MinHistoryMeters:       25,
		MinHistorySeconds:      30,
		RetentionWindowSeconds: 24 * 60 * 60,
		MaxHistoryPerBus:       5000,
		LivenessTimeoutSeconds: 60,
		SweepIntervalSeconds:   15,
	}
}

// LoadTrackingConfig reads and validates a tracking settings file, filling
// unset fields from the defaults.
func LoadTrackingConfig(path string) (TrackingConfig, error) {
	cfg := DefaultTrackingConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading tracking settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing tracking settings: %w", err)
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid tracking settings: %w", err)
	}

	return cfg, nil
}

func (c TrackingConfig) RecencyWindow() time.Duration { return secs(c.RecencyWindowSeconds) }

func (c TrackingConfig) FutureHorizon() time.Duration { return secs(c.FutureHorizonSeconds) }

func (c TrackingConfig) MinHistoryInterval() time.Duration { return secs(c.MinHistorySeconds) }

func (c TrackingConfig) RetentionWindow() time.Duration { return secs(c.RetentionWindowSeconds) }

func (c TrackingConfig) LivenessTimeout() time.Duration { return secs(c.LivenessTimeoutSeconds) }

func (c TrackingConfig) SweepInterval() time.Duration { return secs(c.SweepIntervalSeconds) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
