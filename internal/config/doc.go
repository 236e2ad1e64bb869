// Package config loads, normalizes, and validates vidsurvey configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIDSURVEY_API_TOKEN. An optional .env file in the working directory is
// loaded before the fallbacks are consulted.
//
// Always obtain settings through this package so the daemon, the CLI and the
// pipeline stages agree on storage roots, external binaries and timeouts.
package config
