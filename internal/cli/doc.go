// Package cli implements the command-line interface for race-alerts.
//
// The root command builds the configuration once (defaults, YAML file,
// environment, flags), validates the delivery settings, and then either runs
// the pipeline a single time (--once) or keeps running it on an interval until
// SIGINT or SIGTERM.
package cli
