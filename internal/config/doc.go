// Package config loads, validates, and normalizes archivist configuration.
//
// Configuration is TOML with one section per subsystem. Load resolves the
// config file (explicit path, then ~/.config/archivist/config.toml, then
// ./archivist.toml), applies defaults for anything unset, expands ~ in path
// fields, and validates the result. Missing files are not an error: defaults
// apply and the resolved path is reported so callers can offer to create a
// sample file there.
package config
