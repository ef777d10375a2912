// Package google provides the OAuth2 configuration used to sign calpane users in
// to Google and the bearer-token HTTP client used for Calendar API calls.
//
// Only the calendar scope is requested. Tokens live in memory for the lifetime
// of a session (see package session) and are never written to disk.
package google
