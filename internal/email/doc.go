// Package email sends HTML messages through the Resend transactional email API.
//
// Each Send is a single POST /emails request. There is no retry: a failed
// delivery is reported to the caller, which logs it and waits for the next run.
package email
