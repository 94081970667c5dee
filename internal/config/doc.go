// Package config handles configuration loading for the sragent device agent.
//
// # Overview
//
// Configuration is loaded from a YAML file, or a TOML file when the path ends
// in .toml, with environment variable expansion. Defaults are applied before
// validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SRAGENT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/sragent/agent.yaml
//  3. ~/.config/sragent/agent.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	bootstrap:
//	  password: "${SRAGENT_BOOTSTRAP_PASSWORD}"
//
// Unset variables expand to an empty string.
//
// # Configuration Sections
//
//	server:
//	  url: "https://tenant.example.com"
//	  timeout: "20s"
//
//	device:
//	  id: "dev-42"
//	  template: "/etc/sragent/template.srt"
//
//	bootstrap:
//	  username: "devicebootstrap"
//	  password: "${SRAGENT_BOOTSTRAP_PASSWORD}"
//	  interval: "5s"
//	  attempts: 0        # 0 polls until interrupted
//
//	reporter:
//	  batch_size: 32
//	  wait: "400ms"
//	  retries: 9         # -1 disables retries
//	  backoff: "1s"
//	  buffer_capacity: 1000
//
//	agent:
//	  ingress_capacity: 64
//	  egress_capacity: 1000
//	  heartbeat_interval: "1m"
//	  heartbeat_code: "100"  # empty disables the heartbeat
//
//	database:
//	  path: "/var/lib/sragent/sragent.db"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Durations use time.ParseDuration syntax. Reporter and agent values left at
// zero fall back to the defaults of those packages.
package config
