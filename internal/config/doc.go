// Package config provides configuration loading and validation for the STT service.
// It handles YAML-based configuration with per-section struct validation covering
// the HTTP server, realtime audio parameters, session limits, and the engine client.
package config
