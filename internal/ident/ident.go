// Package ident derives the correlation ids that bind a reminder to its timer
// registration.
//
// Ids are 32-bit string hashes (the same arithmetic as Java's String.hashCode),
// so registrations made by earlier builds of the app keep their ids. Distinct
// keys can collide; the id space is intentionally not widened.
package ident

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// CorrelationID hashes key over its UTF-16 code units: s[0]*31^(n-1) + ... + s[n-1],
// with int32 wraparound. Empty input returns 0.
func CorrelationID(key string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(key)) {
		h = 31*h + int32(u)
	}
	return h
}

// Mode selects which key is hashed when a fired reminder is re-armed.
type Mode string

const (
	// ModeEventID derives the id from the stable event id on every path.
	ModeEventID Mode = "event_id"
	// ModeLegacy re-arms fired reminders under title+location+day, the way the
	// original fire receiver did. Initial scheduling still uses the event id, so
	// the re-armed timer does not replace the one armed by a full pass.
	ModeLegacy Mode = "legacy"
)

// ParseMode accepts "event_id" (default for empty input) or "legacy".
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ModeEventID), "id":
		return ModeEventID, nil
	case string(ModeLegacy):
		return ModeLegacy, nil
	default:
		return "", fmt.Errorf("invalid rearm key %q (use event_id or legacy)", raw)
	}
}

// EventKey is the key hashed for a full scheduling pass.
func EventKey(eventID string) string { return eventID }

// LegacyFireKey is the key the original fire path hashed: title + location + day name.
func LegacyFireKey(title, location, dayName string) string {
	return title + location + dayName
}
