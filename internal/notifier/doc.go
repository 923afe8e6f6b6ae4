// Package notifier delivers composed digests.
//
// EmailNotifier sends the digest to the configured recipients through the email
// API. DryRunNotifier writes it to an io.Writer instead, for local runs without
// credentials.
package notifier
