// Package logx is the structured logger used across classnow.
//
// Logger wraps zerolog with typed Field helpers. Loggers derived from a
// Service follow its current outputs, so a config reload changes level and
// sinks without rebuilding component loggers.
package logx
