// Package config loads sluice's operational configuration: the remote GPU
// host, the coordination service, the breach-count oracle, and local data
// directories. Defaults are set in code, overridden by sluice.yaml if
// present, then overridden again by a small set of environment variables —
// the same three-layer order the pack's config loaders use.
package config
