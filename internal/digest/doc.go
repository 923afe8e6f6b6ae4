// Package digest decides whether a run warrants a notification and composes the
// HTML digest email.
//
// A match is an event with an availability record whose type equals the watched
// payment channel exactly and which is available. Only the first such record of
// each event is reported.
package digest
