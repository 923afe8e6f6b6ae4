// Package config builds the watcher configuration once at startup.
//
// Values are layered: built-in defaults, then an optional YAML file, then the
// environment (delivery credentials, recipients, source URL, payment channel),
// then command-line flags applied by the cli package. Nothing reads the
// environment after Load returns.
package config
