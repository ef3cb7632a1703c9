package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	"github.com/shantoshdurai/ClassNow-app/internal/weekly"
	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

// EventStore decodes the app's schedule cache and notification preferences.
//
// It is read-only from the scheduler's point of view; SaveEvents and
// SavePreferences exist for the CLI.
type EventStore struct {
	kv  Store
	log logx.Logger
}

func NewEventStore(kv Store, log logx.Logger) *EventStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &EventStore{kv: kv, log: log}
}

// record is one element of the cached schedule array.
type record struct {
	ID              json.RawMessage `json:"id"`
	Subject         json.RawMessage `json:"subject"`
	Room            json.RawMessage `json:"room"`
	DayOfWeek       json.RawMessage `json:"dayOfWeek"`
	StartTime       json.RawMessage `json:"startTime"`
	LeadTimeMinutes json.RawMessage `json:"leadTimeMinutes,omitempty"`
}

// LoadEvents returns the cached schedule. A missing key yields no events and
// no error. An unreadable store or a value that is not a JSON array is an
// error. Individual malformed records are returned with Invalid set so the
// caller can skip and count them.
func (s *EventStore) LoadEvents(ctx context.Context) ([]reminder.RecurringEvent, error) {
	raw, ok, err := s.kv.Get(ctx, KeySchedule)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	if !ok {
		s.log.Debug("no schedule data found")
		return nil, nil
	}
	raw = unwrapJSONString(raw)

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}

	out := make([]reminder.RecurringEvent, 0, len(items))
	for i, it := range items {
		ev, err := decodeRecord(it)
		if err != nil {
			ev.Invalid = fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeRecord(b json.RawMessage) (reminder.RecurringEvent, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return reminder.RecurringEvent{}, err
	}
	ev := reminder.RecurringEvent{
		ID:       optString(r.ID),
		Title:    optString(r.Subject),
		Location: optString(r.Room),
	}
	if len(r.LeadTimeMinutes) > 0 && !isJSONNull(r.LeadTimeMinutes) {
		n, err := intValue(r.LeadTimeMinutes)
		if err != nil {
			return ev, fmt.Errorf("leadTimeMinutes: %w", err)
		}
		if n < 0 {
			return ev, fmt.Errorf("leadTimeMinutes must be >= 0, got %d", n)
		}
		ev.LeadTimeMinutes = &n
	}

	// Absent day or time: not schedulable, but not malformed either.
	if day := optString(r.DayOfWeek); day != "" {
		d, err := weekly.ParseDay(day)
		if err != nil {
			return ev, err
		}
		ev.Day = d
	}
	if start := optString(r.StartTime); start != "" {
		c, err := weekly.ParseClock(start)
		if err != nil {
			return ev, err
		}
		ev.Start = c
		ev.HasStart = true
	}
	return ev, nil
}

// LoadPreferences reads the notification settings, applying the app's
// defaults for missing keys. Values of the wrong type fall back to the default
// with a warning; only a failing store read is an error.
func (s *EventStore) LoadPreferences(ctx context.Context) (reminder.Preferences, error) {
	p := reminder.DefaultPreferences()

	var err error
	if p.Enabled, err = s.boolKey(ctx, KeyEnabled, p.Enabled); err != nil {
		return p, err
	}
	if p.AllSubjectsSelected, err = s.boolKey(ctx, KeyAllSubjects, p.AllSubjectsSelected); err != nil {
		return p, err
	}

	raw, ok, err := s.kv.Get(ctx, KeySelectedSubjects)
	if err != nil {
		return p, fmt.Errorf("read %s: %w", KeySelectedSubjects, err)
	}
	if ok {
		var subjects []string
		if err := json.Unmarshal(unwrapJSONString(raw), &subjects); err != nil {
			s.log.Warn("selected subjects unreadable; using none", logx.Err(err))
		} else {
			p.SelectedSubjects = subjects
		}
	}

	raw, ok, err = s.kv.Get(ctx, KeyLeadTime)
	if err != nil {
		return p, fmt.Errorf("read %s: %w", KeyLeadTime, err)
	}
	if ok {
		n, err := intValue(raw)
		switch {
		case err != nil:
			s.log.Warn("lead time unreadable; using default", logx.Err(err), logx.Int("default", p.DefaultLeadTimeMinutes))
		case n < 0:
			s.log.Warn("negative lead time; using default", logx.Int("value", n), logx.Int("default", p.DefaultLeadTimeMinutes))
		default:
			p.DefaultLeadTimeMinutes = n
		}
	}
	return p, nil
}

func (s *EventStore) boolKey(ctx context.Context, key string, def bool) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return def, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		s.log.Warn("preference is not a bool; using default", logx.String("key", key), logx.Bool("default", def))
		return def, nil
	}
	return v, nil
}

// SaveEvents replaces the cached schedule. raw must be a JSON array.
func (s *EventStore) SaveEvents(ctx context.Context, raw []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("schedule must be a JSON array: %w", err)
	}
	// The app stores the array as a JSON string; keep that shape.
	enc, err := json.Marshal(string(raw))
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, KeySchedule, enc)
}

// SavePreferences writes all preference keys.
func (s *EventStore) SavePreferences(ctx context.Context, p reminder.Preferences) error {
	subjects := p.SelectedSubjects
	if subjects == nil {
		subjects = []string{}
	}
	sub, err := json.Marshal(subjects)
	if err != nil {
		return err
	}
	subStr, err := json.Marshal(string(sub))
	if err != nil {
		return err
	}
	puts := []struct {
		key string
		val json.RawMessage
	}{
		{KeyEnabled, json.RawMessage(strconv.FormatBool(p.Enabled))},
		{KeyAllSubjects, json.RawMessage(strconv.FormatBool(p.AllSubjectsSelected))},
		{KeySelectedSubjects, subStr},
		{KeyLeadTime, json.RawMessage(strconv.Itoa(p.DefaultLeadTimeMinutes))},
	}
	for _, it := range puts {
		if err := s.kv.Put(ctx, it.key, it.val); err != nil {
			return fmt.Errorf("write %s: %w", it.key, err)
		}
	}
	return nil
}

// unwrapJSONString returns the decoded content when raw is a JSON string
// (the app stores JSON documents as strings), otherwise raw itself.
func unwrapJSONString(raw json.RawMessage) json.RawMessage {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '"' {
		return t
	}
	var s string
	if err := json.Unmarshal(t, &s); err != nil {
		return t
	}
	return json.RawMessage(s)
}

// optString mirrors a lenient string read: strings are returned as-is, other
// scalars as their JSON text, null/absent as "".
func optString(raw json.RawMessage) string {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || isJSONNull(t) {
		return ""
	}
	var s string
	if err := json.Unmarshal(t, &s); err == nil {
		return s
	}
	return string(t)
}

var errNotInteger = errors.New("not an integer")

// intValue accepts an integer stored as a 32- or 64-bit number, a float with
// no fractional part, or a numeric string.
func intValue(raw json.RawMessage) (int, error) {
	t := unwrapJSONString(raw)
	s := strings.TrimSpace(string(t))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, fmt.Errorf("%s: out of range", s)
		}
		return int(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q: %w", s, errNotInteger)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%s: out of range", s)
	}
	return int(f), nil
}
