// Package storage provides the key/value persistence layer the reminder
// scheduler reads its events and preferences from.
//
// It currently supports:
//   - "file": a single JSON document (key -> JSON value), rewritten atomically
//   - "sqlite": a kv table in an SQLite database file
//
// EventStore decodes the app's stored schedule and preference keys on top of
// either backend. The scheduler only reads; the CLI writes through the same API.
package storage
