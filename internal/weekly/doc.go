// Package weekly computes trigger instants for weekly recurring reminders.
//
// Everything here is pure: callers pass the reference "now" and get back an
// absolute instant in now's location. No timezone conversion is performed;
// the local calendar of the reference time is used as-is.
package weekly
