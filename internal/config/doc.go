// Package config loads, normalizes, and validates mediasort configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// MEDIASORT_STATE_DIR. The Config type centralizes the state directory where
// the fingerprint index, checkpoint, and run journal live, the library layout
// names used by the router, and logging settings.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
