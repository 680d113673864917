// Package config loads, normalizes, and validates Defaulter configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the environment variables the
// container deployment uses (PLEX_SERVER_URL, DRY_RUN, AUDIT_DIR, PORT and
// friends). Boolean toggles from the environment override the file; string
// settings from the environment only fill gaps.
//
// Track rules are not part of this file. RulesPath points at the YAML
// document the rules package loads.
package config
