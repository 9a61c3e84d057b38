// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty by the file.
const (
	DefaultClusterID         = "core-1"
	DefaultTickInterval      = time.Second
	DefaultIdleDelay         = 5 * time.Second
	DefaultTelemetryCapacity = 20
	DefaultLogCapacity       = 50
	DefaultModel             = "gemini-3-flash-preview"
	DefaultSpeechModel       = "gemini-2.5-flash-preview-tts"
	DefaultVoice             = "Kore"
	DefaultAnalysisTimeout   = 30 * time.Second
	DefaultAdminAddr         = ":8080"
	DefaultGreptimeDatabase  = "public"
)

// TelemetryConfig sizes the rolling sample window.
type TelemetryConfig struct {
	Capacity int `yaml:"capacity"`
}

// LogsConfig sizes the operator log.
type LogsConfig struct {
	Capacity int `yaml:"capacity"`
}

// AnalysisConfig selects the generative models. APIKey only comes from the
// environment.
type AnalysisConfig struct {
	APIKey      string        `yaml:"-"`
	Model       string        `yaml:"model"`
	SpeechModel string        `yaml:"speech_model"`
	Voice       string        `yaml:"voice"`
	Timeout     time.Duration `yaml:"timeout"`
}

// AudioConfig turns speech synthesis on. Clips are saved as WAV files
// under OutputDir, or dropped when it is empty.
type AudioConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
}

// AdminConfig controls the admin web server. Addr "off" disables it.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// GreptimeConfig points at the time-series sink. An empty Endpoint disables
// it.
type GreptimeConfig struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
}

// Config is the root reactor configuration.
type Config struct {
	ClusterID    string          `yaml:"cluster_id"`
	TickInterval time.Duration   `yaml:"tick_interval"`
	IdleDelay    time.Duration   `yaml:"idle_delay"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
	Logs         LogsConfig      `yaml:"logs"`
	Analysis     AnalysisConfig  `yaml:"analysis"`
	Audio        AudioConfig     `yaml:"audio"`
	Admin        AdminConfig     `yaml:"admin"`
	Greptime     GreptimeConfig  `yaml:"greptime"`
}

// Default returns a config with every default applied and no overrides.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configPath, validates it against the CUE schema at schemaPath,
// then applies defaults and environment overrides. An empty configPath
// yields the defaults; an empty schemaPath skips validation.
func Load(configPath, schemaPath string) (*Config, error) {
	cfg := &Config{}
	if configPath != "" {
		if schemaPath != "" {
			if err := ValidateWithCue(configPath, schemaPath); err != nil {
				return nil, err
			}
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ClusterID == "" {
		c.ClusterID = DefaultClusterID
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = DefaultIdleDelay
	}
	if c.Telemetry.Capacity <= 0 {
		c.Telemetry.Capacity = DefaultTelemetryCapacity
	}
	if c.Logs.Capacity <= 0 {
		c.Logs.Capacity = DefaultLogCapacity
	}
	if c.Analysis.Model == "" {
		c.Analysis.Model = DefaultModel
	}
	if c.Analysis.SpeechModel == "" {
		c.Analysis.SpeechModel = DefaultSpeechModel
	}
	if c.Analysis.Voice == "" {
		c.Analysis.Voice = DefaultVoice
	}
	if c.Analysis.Timeout <= 0 {
		c.Analysis.Timeout = DefaultAnalysisTimeout
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = DefaultAdminAddr
	}
	if c.Greptime.Database == "" {
		c.Greptime.Database = DefaultGreptimeDatabase
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Analysis.APIKey = v
	} else if v := os.Getenv("API_KEY"); v != "" {
		c.Analysis.APIKey = v
	}
	if v := os.Getenv("CLUSTER_ID"); v != "" {
		c.ClusterID = v
	}
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TICK_INTERVAL: %w", err)
		}
		c.TickInterval = d
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_DATABASE"); v != "" {
		c.Greptime.Database = v
	}
	return nil
}

// parseDuration accepts Go durations and bare integers as seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
