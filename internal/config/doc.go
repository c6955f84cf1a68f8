// Package config loads, normalizes, and validates lifesaver configuration.
//
// Configuration lives in a TOML file (default ~/.config/lifesaver/config.toml,
// falling back to ./lifesaver.toml). Load applies repository defaults, expands
// "~" in path fields, honours the documented environment overrides, and then
// validates the result so callers receive a config that is safe to wire into
// the recorder, handoff, and receiver components.
//
// All values are launch-time constants; nothing here is reloaded at runtime.
package config
