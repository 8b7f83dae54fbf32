// Package config loads, normalizes, and validates transientbot configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for
// credentials such as SLACK_BOT_TOKEN and CASDA_PASSWORD so secrets never have
// to live in the config file. The Config type centralizes every knob the CLI
// and the scheduled runner need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
