// Package storage persists run output as pretty-printed JSON.
//
// It writes the optional event dump and the notified set used for
// deduplication. All file access goes through an afero.Fs so tests run against
// an in-memory filesystem, and every write is atomic (temp file then rename).
package storage
