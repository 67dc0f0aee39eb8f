// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the modelgraph YAML configuration.
//
// A file only needs the keys it changes; everything else keeps the value
// from Default.
//
//	log:
//	  level: debug
//	controller:
//	  verify_each_mutation: true
//	undo:
//	  max_depth: 200
//	clipboard:
//	  path: /var/lib/modelgraph/clipboard
//	telemetry:
//	  trace_exporter: stdout
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/modelgraph/pkg/logging"
)

// MaxYAMLFileSize bounds configuration and scenario files (1MB).
const MaxYAMLFileSize = 1 << 20

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrFileTooLarge is returned for files over MaxYAMLFileSize.
	ErrFileTooLarge = errors.New("YAML file too large")
)

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, err := logging.ParseLevel(fl.Field().String())
		return err == nil
	})
}

// Config is the root of the configuration file.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Controller ControllerConfig `yaml:"controller"`
	Undo       UndoConfig       `yaml:"undo"`
	Clipboard  ClipboardConfig  `yaml:"clipboard"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// LogConfig maps onto logging.Config.
type LogConfig struct {
	Level   string `yaml:"level" validate:"loglevel"`
	JSON    bool   `yaml:"json"`
	Dir     string `yaml:"dir"`
	Quiet   bool   `yaml:"quiet"`
	Service string `yaml:"service" validate:"required"`
}

// ControllerConfig holds controller options.
type ControllerConfig struct {
	// VerifyEachMutation runs the full integrity check after every
	// mutation and panics on failure. Meant for tests and debugging.
	VerifyEachMutation bool `yaml:"verify_each_mutation"`
}

// UndoConfig sizes the undo stack.
type UndoConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxDepth int  `yaml:"max_depth" validate:"gte=1,lte=10000"`
}

// ClipboardConfig configures the persistent clipboard store. An empty Path
// keeps the clipboard in memory.
type ClipboardConfig struct {
	Path       string        `yaml:"path"`
	SyncWrites bool          `yaml:"sync_writes"`
	TTL        time.Duration `yaml:"ttl" validate:"gte=0"`
}

// TelemetryConfig selects exporters.
type TelemetryConfig struct {
	ServiceVersion string `yaml:"service_version"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:   "info",
			Service: "modelgraph",
		},
		Undo: UndoConfig{
			Enabled:  true,
			MaxDepth: 100,
		},
		Telemetry: TelemetryConfig{
			ServiceVersion: "1.0.0",
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
		},
	}
}

// Load reads and validates the file at path.
//
// Description:
//
//	The file size is checked before reading so an oversized file is
//	rejected without loading it into memory.
//
// Outputs:
//
//	Config - Default overlaid with the file's values.
//	error - ErrFileTooLarge, a read or parse error, or ErrInvalidConfig.
func Load(path string) (Config, error) {
	data, err := ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ReadFile reads a YAML file no larger than MaxYAMLFileSize.
func ReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	if len(data) > MaxYAMLFileSize {
		return Config{}, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(data), MaxYAMLFileSize)
	}
	cfg := Default()
	if len(data) > 0 {
		if err := Decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode strictly unmarshals YAML into v.
func Decode(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse YAML: %w", err)
	}
	return nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			v := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidConfig, v.Namespace(), v.Tag(), v.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoggingConfig converts the log section.
func (c Config) LoggingConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.Config{
		Level:   level,
		JSON:    c.Log.JSON,
		LogDir:  c.Log.Dir,
		Quiet:   c.Log.Quiet,
		Service: c.Log.Service,
	}
}
