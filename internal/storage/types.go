package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON document
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the minimal key/value API used by EventStore.
//
// Values are raw JSON. Get returns ok=false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (value json.RawMessage, ok bool, err error)
	Put(ctx context.Context, key string, value json.RawMessage) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Keys written by the mobile app (SharedPreferences names).
const (
	KeySchedule         = "flutter.cached_schedule_data"
	KeyEnabled          = "flutter.notifications_enabled"
	KeyAllSubjects      = "flutter.notifications_all_subjects"
	KeySelectedSubjects = "flutter.notification_selected_subjects"
	KeyLeadTime         = "flutter.notifications_lead_time"
)
