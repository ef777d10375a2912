// Package ui turns user actions into calendar calls and presentation state.
//
// The Adapter runs each action (sign-in, sign-out, load, create, delete,
// clear form) against the gateway and records the resulting Mode and Notice.
// Success notices carry an expiry and read as idle once it has passed, so
// no timer goroutine is needed. Concurrent submissions of the same action
// share one in-flight call.
package ui
