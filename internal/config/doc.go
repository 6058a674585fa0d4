// Package config provides configuration management for the batch
// orchestrator.
//
// Service configuration is loaded from environment variables using the env
// package; per-project overrides come from an optional YAML file. All
// values have sensible defaults for development use.
//
// Orchestration settings are exposed as immutable snapshots through a
// Store: a batch started under one snapshot never observes a concurrent
// reload mid-flight.
package config
