// Package index keeps a durable record of the calendar events created by calpane.
//
// The Calendar API does not flag which events an application created, so the
// client remembers the ids it got back from successful creates. The record is a
// JSON array of strings stored under a single key ("createdEventIds") in a
// pluggable key-value Store:
//
//   - MemoryStore: process memory (tests, throwaway sessions)
//   - FileStore: one JSON file per key in a directory
//   - SQLiteStore: a kv table in a sqlite database
//   - ValkeyStore: a valkey or redis server
//
// The index is best effort. Its data is advisory; the remote calendar stays
// authoritative, so read failures degrade to an empty set instead of an error.
package index
