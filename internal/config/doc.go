// Package config handles configuration loading for helpdesk-relay.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. A .env file next to the process, if present, is loaded first
// so secrets can stay out of the YAML.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from HELPDESK_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/helpdesk/relay.yaml
//  3. ~/.config/helpdesk/relay.yaml
//
// "helpdesk-relay init" writes a starter file (see Template).
//
// # Environment Variable Expansion
//
//	telegram:
//	  token: "${HELPDESK_TELEGRAM_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Durations use Go's time.ParseDuration syntax:
//
//	telegram:
//	  poll_timeout: "10s"
//	  request_timeout: "30s"
//	dedupe:
//	  ttl: "10m"
//
// # Configuration Sections
//
//	telegram:   Bot API token and timeouts (token required)
//	database:   SQLite path (required) and driver, "sqlite" or "sqlite3"
//	texts:      optional TOML file overriding the built-in message catalog
//	admins:     chat ids granted admin rights at startup
//	history:    transcript sizes for new operators, the history button and /logs
//	dedupe:     redelivered-update cache TTL and size
//	logging:    level (debug, info, warn, error) and format (text, json)
//
// Empty fields take the Default* constants.
package config
