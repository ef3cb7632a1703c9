// Package timer provides fire-once wake timers keyed by correlation id.
//
// Backends:
//   - Table: in-process timers (time.AfterFunc), fire callbacks run in this process
//   - Systemd (linux): transient .timer units; the fire callback is a CLI invocation
//
// Arming an id that is already armed replaces the previous registration, so a
// backend never holds two timers for one correlation id.
package timer
