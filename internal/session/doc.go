// Package session holds the signed-in user's access token.
//
// A Holder owns at most one Session at a time. A Session is created by a
// successful OAuth2 authorization-code exchange and discarded on logout or
// expiry; it is never persisted. Calendar calls take the Session explicitly
// instead of reading shared state.
package session
