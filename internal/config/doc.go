// ABOUTME: Configuration package documentation
// ABOUTME: YAML config with defaults and per-section validation
// Package config loads and validates the player's YAML configuration.
// Values missing from the file keep the defaults returned by Default.
package config
