// Package config loads calpane settings from a TOML file and the environment.
//
// Precedence, lowest first: built-in defaults, the config file, environment
// variables, then command-line flags (applied by the cmd package).
package config
