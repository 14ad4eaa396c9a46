// Package config loads and validates the chat gateway YAML configuration,
// expanding ${VAR} environment references before parsing.
package config
