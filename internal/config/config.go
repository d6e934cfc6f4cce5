// Package config loads facewatch settings from a YAML file and FACEWATCH_*
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/hook"
	"github.com/ayusman/facewatch/internal/journal"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "FACEWATCH_"

type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Server   ServerConfig   `yaml:"server"`
	Journal  JournalConfig  `yaml:"journal"`
	Log      LogConfig      `yaml:"log"`
	Hooks    []hook.Rule    `yaml:"hooks" validate:"dive"`

	// Tray shows a system tray icon.
	Tray bool `yaml:"tray"`
}

type CameraConfig struct {
	Selector     string `yaml:"selector" validate:"oneof=front back"`
	FrontDevice  int    `yaml:"front_device" validate:"gte=0"`
	BackDevice   int    `yaml:"back_device" validate:"gte=0"`
	ProbeDevices int    `yaml:"probe_devices" validate:"gte=0,lte=64"`
	Width        int    `yaml:"width" validate:"gt=0"`
	Height       int    `yaml:"height" validate:"gt=0"`
	FPS          int    `yaml:"fps" validate:"gt=0,lte=120"`
}

type DetectorConfig struct {
	// Backend is "cascade" (OpenCV Haar cascades) or "service" (external process).
	Backend     string `yaml:"backend" validate:"oneof=cascade service"`
	Accuracy    string `yaml:"accuracy" validate:"oneof=battery-saving higher-performance"`
	Orientation string `yaml:"orientation" validate:"oneof=up down right left"`

	FaceCascade   string `yaml:"face_cascade"`
	EyeCascade    string `yaml:"eye_cascade"`
	SmileCascade  string `yaml:"smile_cascade"`
	ServiceScript string `yaml:"service_script"`

	// StartPaused starts with detection disabled.
	StartPaused bool `yaml:"start_paused"`
}

type TrackerConfig struct {
	Policy string `yaml:"policy" validate:"oneof=on-change always"`
}

type ServerConfig struct {
	// Addr is the HTTP listen address. Empty disables the server.
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

type JournalConfig struct {
	MaxRows int `yaml:"max_rows" validate:"gt=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`

	// File enables rotating file output in addition to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the built-in configuration.
func Default() *Config {
	session := capture.DefaultSessionConfig()

	return &Config{
		Camera: CameraConfig{
			Selector:     "front",
			FrontDevice:  session.FrontDevice,
			BackDevice:   session.BackDevice,
			ProbeDevices: session.ProbeDevices,
			Width:        session.Width,
			Height:       session.Height,
			FPS:          session.FPS,
		},
		Detector: DetectorConfig{
			Backend:     "cascade",
			Accuracy:    "higher-performance",
			Orientation: "right",
		},
		Tracker: TrackerConfig{
			Policy: "on-change",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Journal: JournalConfig{
			MaxRows: journal.DefaultMaxRows,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides fields from FACEWATCH_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"CAMERA":         &c.Camera.Selector,
		"BACKEND":        &c.Detector.Backend,
		"ACCURACY":       &c.Detector.Accuracy,
		"ORIENTATION":    &c.Detector.Orientation,
		"SERVICE_SCRIPT": &c.Detector.ServiceScript,
		"POLICY":         &c.Tracker.Policy,
		"ADDR":           &c.Server.Addr,
		"STATIC_DIR":     &c.Server.StaticDir,
		"LOG_LEVEL":      &c.Log.Level,
		"LOG_FILE":       &c.Log.File,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"FRONT_DEVICE":  &c.Camera.FrontDevice,
		"BACK_DEVICE":   &c.Camera.BackDevice,
		"PROBE_DEVICES": &c.Camera.ProbeDevices,
		"WIDTH":         &c.Camera.Width,
		"HEIGHT":        &c.Camera.Height,
		"FPS":           &c.Camera.FPS,
		"JOURNAL_ROWS":  &c.Journal.MaxRows,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %q is not an integer", EnvPrefix, key, v)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"TRAY":         &c.Tray,
		"START_PAUSED": &c.Detector.StartPaused,
	}
	for key, dst := range bools {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %q is not a boolean", EnvPrefix, key, v)
		}
		*dst = b
	}

	return nil
}

var validate = validator.New()

// Validate checks field constraints and reports every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
