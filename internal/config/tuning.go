package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig holds the operator-adjustable pipeline parameters. All fields
// are pointers so a partial JSON file only overrides what it names; the Get*
// methods supply defaults for anything left nil.
type TuningConfig struct {
	// Threat analyzer params
	HighSpeedThresholdKt *float64 `json:"high_speed_threshold_kt,omitempty"`

	// Trajectory predictor params
	PredictionHorizonSeconds *int `json:"prediction_horizon_seconds,omitempty"`
	PredictionStrideSeconds  *int `json:"prediction_stride_seconds,omitempty"`

	// Detection simulation params
	RadarLatitude  *float64 `json:"radar_latitude,omitempty"`
	RadarLongitude *float64 `json:"radar_longitude,omitempty"`
	RadarRangeKm   *float64 `json:"radar_range_km,omitempty"`

	// Alerting params
	DedupIdleWindow  *string `json:"dedup_idle_window,omitempty"`  // duration string like "120s"
	SubscriberBuffer *int    `json:"subscriber_buffer,omitempty"`  // bus channel depth per subscriber
	DropGrace        *int    `json:"drop_grace,omitempty"`         // consecutive drops before disconnect

	// Ingest params
	IngestTimeout *string `json:"ingest_timeout,omitempty"` // duration string like "2s"

	// Retention params
	FlightRetention *string `json:"flight_retention,omitempty"` // duration string like "24h"
	AlertRetention  *string `json:"alert_retention,omitempty"`  // duration string like "720h"
}

// Default returns a TuningConfig with every field nil, i.e. all defaults.
func Default() *TuningConfig {
	return &TuningConfig{}
}

// Load reads a TuningConfig from a JSON file. Fields omitted from the file
// keep their defaults, so partial configs are safe.
func Load(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects values outside their working ranges.
func (c *TuningConfig) Validate() error {
	if c.HighSpeedThresholdKt != nil && *c.HighSpeedThresholdKt <= 0 {
		return fmt.Errorf("high_speed_threshold_kt must be positive, got %v", *c.HighSpeedThresholdKt)
	}
	if c.PredictionHorizonSeconds != nil && *c.PredictionHorizonSeconds <= 0 {
		return fmt.Errorf("prediction_horizon_seconds must be positive, got %d", *c.PredictionHorizonSeconds)
	}
	if c.PredictionStrideSeconds != nil && *c.PredictionStrideSeconds <= 0 {
		return fmt.Errorf("prediction_stride_seconds must be positive, got %d", *c.PredictionStrideSeconds)
	}
	if c.RadarLatitude != nil && (*c.RadarLatitude < -90 || *c.RadarLatitude > 90) {
		return fmt.Errorf("radar_latitude out of range: %v", *c.RadarLatitude)
	}
	if c.RadarLongitude != nil && (*c.RadarLongitude < -180 || *c.RadarLongitude > 180) {
		return fmt.Errorf("radar_longitude out of range: %v", *c.RadarLongitude)
	}
	if c.RadarRangeKm != nil && *c.RadarRangeKm <= 0 {
		return fmt.Errorf("radar_range_km must be positive, got %v", *c.RadarRangeKm)
	}
	if c.SubscriberBuffer != nil && *c.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber_buffer must be at least 1, got %d", *c.SubscriberBuffer)
	}
	if c.DropGrace != nil && *c.DropGrace < 1 {
		return fmt.Errorf("drop_grace must be at least 1, got %d", *c.DropGrace)
	}
	for name, v := range map[string]*string{
		"dedup_idle_window": c.DedupIdleWindow,
		"ingest_timeout":    c.IngestTimeout,
		"flight_retention":  c.FlightRetention,
		"alert_retention":   c.AlertRetention,
	} {
		if v == nil {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("%s is not a valid duration: %q", name, *v)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", name, *v)
		}
	}
	return nil
}

func (c *TuningConfig) GetHighSpeedThresholdKt() float64 {
	if c != nil && c.HighSpeedThresholdKt != nil {
		return *c.HighSpeedThresholdKt
	}
	return 400
}

func (c *TuningConfig) GetPredictionHorizon() time.Duration {
	if c != nil && c.PredictionHorizonSeconds != nil {
		return time.Duration(*c.PredictionHorizonSeconds) * time.Second
	}
	return 180 * time.Second
}

func (c *TuningConfig) GetPredictionStride() time.Duration {
	if c != nil && c.PredictionStrideSeconds != nil {
		return time.Duration(*c.PredictionStrideSeconds) * time.Second
	}
	return 30 * time.Second
}

func (c *TuningConfig) GetRadarLatitude() float64 {
	if c != nil && c.RadarLatitude != nil {
		return *c.RadarLatitude
	}
	return 11.65
}

func (c *TuningConfig) GetRadarLongitude() float64 {
	if c != nil && c.RadarLongitude != nil {
		return *c.RadarLongitude
	}
	return 78.15
}

func (c *TuningConfig) GetRadarRangeKm() float64 {
	if c != nil && c.RadarRangeKm != nil {
		return *c.RadarRangeKm
	}
	return 250
}

func (c *TuningConfig) GetDedupIdleWindow() time.Duration {
	var p *string
	if c != nil {
		p = c.DedupIdleWindow
	}
	return c.duration(p, 120*time.Second)
}

func (c *TuningConfig) GetSubscriberBuffer() int {
	if c != nil && c.SubscriberBuffer != nil {
		return *c.SubscriberBuffer
	}
	return 64
}

func (c *TuningConfig) GetDropGrace() int {
	if c != nil && c.DropGrace != nil {
		return *c.DropGrace
	}
	return 256
}

func (c *TuningConfig) GetIngestTimeout() time.Duration {
	var p *string
	if c != nil {
		p = c.IngestTimeout
	}
	return c.duration(p, 2*time.Second)
}

func (c *TuningConfig) GetFlightRetention() time.Duration {
	var p *string
	if c != nil {
		p = c.FlightRetention
	}
	return c.duration(p, 24*time.Hour)
}

func (c *TuningConfig) GetAlertRetention() time.Duration {
	var p *string
	if c != nil {
		p = c.AlertRetention
	}
	return c.duration(p, 30*24*time.Hour)
}

func (c *TuningConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
