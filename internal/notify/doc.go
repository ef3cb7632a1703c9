// Package notify delivers fired reminders to the user.
//
// The scheduling engine never builds message text; the host subscribes to
// fired events and hands each payload to Service.Notify, which formats it,
// applies a token-bucket rate limit and sends it through the configured sink
// (log or telegram).
package notify
