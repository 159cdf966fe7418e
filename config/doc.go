// Package config loads swarmchat settings from defaults, an optional YAML or
// TOML file and the environment.
//
// Every key can be overridden with a SWARMCHAT_ prefixed variable, dots
// replaced by underscores (SWARMCHAT_SERVER_ADDR). The unprefixed names used
// by legacy deployments (HF_API_KEY, PROJECT_MANAGER_ENDPOINT, ...) are
// honored as well.
package config
