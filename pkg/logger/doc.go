// Package logger provides structured logging for the relay built on zerolog.
//
// A process-wide logger is configured once via Initialize and retrieved with
// GetLogger; components that want isolated output (tests, mostly) construct
// their own with New or NewTestLogger.
//
// Log entries carry operational facts only: acting user ids, target ids,
// routes, outcomes. Credential material (bearer tokens, CSRF tokens, cookies)
// must never be passed as a field value.
package logger
