package timer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
)

var (
	ErrClosed      = errors.New("timer backend closed")
	ErrUnsupported = errors.New("timer backend unsupported on this platform")
)

// Backend is the one-shot wake facility the scheduling engine arms.
type Backend interface {
	// Arm registers (or replaces) the timer for id. exact asks for
	// guaranteed-precision delivery; the returned precision is what was used.
	Arm(ctx context.Context, id int32, at time.Time, exact bool, p reminder.Payload) (reminder.Precision, error)
	// Cancel removes the timer for id. Cancelling an id that is not armed is not an error.
	Cancel(ctx context.Context, id int32) error
	HasExactPermission(ctx context.Context) bool
	// RequestExactPermission asks for exact timers. The outcome is observed
	// asynchronously (see EventExactGranted).
	RequestExactPermission(ctx context.Context) error
}

// Lister is implemented by backends that can enumerate their live timers.
type Lister interface {
	Armed(ctx context.Context) ([]reminder.ArmedTimer, error)
}

// FireFunc receives the payload of a fired timer.
type FireFunc func(ctx context.Context, p reminder.Payload)

// Bus event types published by backends.
const (
	EventExactRequested = "timer.exact_requested"
	EventExactGranted   = "timer.exact_granted"
)

// EncodePayload renders p for a command line argument.
func EncodePayload(p reminder.Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodePayload reverses EncodePayload. Plain JSON is accepted too.
func DecodePayload(s string) (reminder.Payload, error) {
	var p reminder.Payload
	b := []byte(s)
	if len(s) == 0 || s[0] != '{' {
		dec, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return p, fmt.Errorf("decode payload: %w", err)
		}
		b = dec
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}
