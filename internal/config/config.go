package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	Session SessionConfig `yaml:"session"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int    `yaml:"port"`
	Address      string `yaml:"address"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
	MaxUploadMB  int    `yaml:"max_upload_mb"` // batch upload size limit
}

// AudioConfig contains audio parameters for the realtime streaming path
type AudioConfig struct {
	SampleRate        int     `yaml:"sample_rate"`
	Encoding          string  `yaml:"encoding"`            // "pcm_f32le" or "pcm_s16le"
	MinInferDuration  float64 `yaml:"min_infer_duration"`  // seconds buffered before inference triggers
	MaxBufferDuration float64 `yaml:"max_buffer_duration"` // seconds; cap on unconsumed audio per session
}

// SessionConfig contains streaming session lifecycle configuration
type SessionConfig struct {
	MaxConcurrent   int `yaml:"max_concurrent"`
	IdleTimeout     int `yaml:"idle_timeout"`     // seconds
	ShutdownTimeout int `yaml:"shutdown_timeout"` // seconds
}

// EngineConfig contains transcription engine client configuration
type EngineConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Model         string `yaml:"model"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxConcurrent int    `yaml:"max_concurrent"`
	Serialize     bool   `yaml:"serialize"` // gate all engine calls behind a single lock
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	if s.MaxUploadMB < 1 {
		return fmt.Errorf("max_upload_mb must be at least 1, got %d", s.MaxUploadMB)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.Encoding != "pcm_f32le" && a.Encoding != "pcm_s16le" {
		return fmt.Errorf("encoding must be 'pcm_f32le' or 'pcm_s16le', got '%s'", a.Encoding)
	}

	if a.MinInferDuration <= 0 {
		return fmt.Errorf("min_infer_duration must be positive, got %f", a.MinInferDuration)
	}

	if a.MaxBufferDuration <= a.MinInferDuration {
		return fmt.Errorf("max_buffer_duration (%f) must be greater than min_infer_duration (%f)",
			a.MaxBufferDuration, a.MinInferDuration)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", s.MaxConcurrent)
	}

	if s.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", s.IdleTimeout)
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	if e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if e.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}

	if e.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", e.MaxConcurrent)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the server write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetMinInferDuration returns the inference threshold as a time.Duration
func (a *AudioConfig) GetMinInferDuration() time.Duration {
	return time.Duration(a.MinInferDuration * float64(time.Second))
}

// GetMaxBufferDuration returns the unconsumed-audio cap as a time.Duration
func (a *AudioConfig) GetMaxBufferDuration() time.Duration {
	return time.Duration(a.MaxBufferDuration * float64(time.Second))
}

// MinInferSamples returns the inference threshold in samples
func (a *AudioConfig) MinInferSamples() int {
	return int(a.MinInferDuration * float64(a.SampleRate))
}

// MaxBufferSamples returns the unconsumed-audio cap in samples
func (a *AudioConfig) MaxBufferSamples() int {
	return int(a.MaxBufferDuration * float64(a.SampleRate))
}

// GetIdleTimeout returns the session idle timeout as a time.Duration
func (s *SessionConfig) GetIdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// GetShutdownTimeout returns the session shutdown timeout as a time.Duration
func (s *SessionConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetTimeoutDuration returns the engine request timeout as a time.Duration
func (e *EngineConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}
