// Package xcom is the upstream client. It replays the browser's own GraphQL
// calls (follower listing and removal) against x.com using the credential
// bundle captured by the caller, and normalizes the timeline response shape
// into flat follower records.
package xcom
