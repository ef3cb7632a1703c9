package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shantoshdurai/ClassNow-app/internal/eventbus"
	"github.com/shantoshdurai/ClassNow-app/internal/ident"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	"github.com/shantoshdurai/ClassNow-app/internal/timer"
	"github.com/shantoshdurai/ClassNow-app/internal/weekly"
	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

type fakeSource struct {
	mu       sync.Mutex
	prefs    reminder.Preferences
	events   []reminder.RecurringEvent
	prefsErr error
	eventErr error
}

func (s *fakeSource) LoadPreferences(ctx context.Context) (reminder.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs, s.prefsErr
}

func (s *fakeSource) LoadEvents(ctx context.Context) ([]reminder.RecurringEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventErr != nil {
		return nil, s.eventErr
	}
	return append([]reminder.RecurringEvent(nil), s.events...), nil
}

type fakeBackend struct {
	mu      sync.Mutex
	exact   bool
	armed   map[int32]reminder.ArmedTimer
	armErr  map[int32]error
	arms    int
	cancels int
	reqs    int
}

func newBackend(exact bool) *fakeBackend {
	return &fakeBackend{exact: exact, armed: map[int32]reminder.ArmedTimer{}, armErr: map[int32]error{}}
}

func (b *fakeBackend) Arm(ctx context.Context, id int32, at time.Time, exact bool, p reminder.Payload) (reminder.Precision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.armErr[id]; err != nil {
		return "", err
	}
	b.arms++
	prec := reminder.Inexact
	if exact && b.exact {
		prec = reminder.Exact
	}
	b.armed[id] = reminder.ArmedTimer{CorrelationID: id, TriggerAt: at, Precision: prec, Payload: p}
	return prec, nil
}

func (b *fakeBackend) Cancel(ctx context.Context, id int32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancels++
	delete(b.armed, id)
	return nil
}

func (b *fakeBackend) HasExactPermission(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exact
}

func (b *fakeBackend) RequestExactPermission(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reqs++
	return nil
}

func (b *fakeBackend) snapshot() map[int32]time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int32]time.Time, len(b.armed))
	for id, a := range b.armed {
		out[id] = a.TriggerAt
	}
	return out
}

// listingBackend also implements timer.Lister.
type listingBackend struct{ *fakeBackend }

func (b listingBackend) Armed(ctx context.Context) ([]reminder.ArmedTimer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]reminder.ArmedTimer, 0, len(b.armed))
	for _, a := range b.armed {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CorrelationID < out[j].CorrelationID })
	return out, nil
}

// 2025-01-06 is a Monday.
func at(day, hour, min int) time.Time {
	return time.Date(2025, 1, day, hour, min, 0, 0, time.UTC)
}

func ev(id, title string, day weekly.Day, hh, mm int) reminder.RecurringEvent {
	return reminder.RecurringEvent{
		ID:       id,
		Title:    title,
		Location: "R1",
		Day:      day,
		Start:    weekly.Clock{Hour: hh, Minute: mm},
		HasStart: true,
	}
}

func newEngine(src *fakeSource, b timer.Backend, now time.Time, opt Options) *Engine {
	opt.Location = time.UTC
	opt.Now = func() time.Time { return now }
	return New(src, b, logx.Nop(), opt)
}

func TestScheduleAllScenarios(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"monday before", at(6, 8, 0), at(7, 8, 45)},
		{"tuesday past trigger", at(7, 8, 50), at(14, 8, 45)},
		{"tuesday before trigger", at(7, 8, 0), at(7, 8, 45)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{ev("e1", "Math", weekly.Tuesday, 9, 0)}}
			b := newBackend(true)
			eng := newEngine(src, b, tc.now, Options{})
			rep, err := eng.ScheduleAll(context.Background())
			if err != nil {
				t.Fatalf("ScheduleAll: %v", err)
			}
			if rep.Armed != 1 || !rep.Exact || rep.Degraded != 0 {
				t.Fatalf("report: %+v", rep)
			}
			got := b.snapshot()[ident.CorrelationID("e1")]
			if !got.Equal(tc.want) {
				t.Fatalf("trigger: got %s want %s", got, tc.want)
			}
		})
	}
}

func TestScheduleAllUsesEventLeadTime(t *testing.T) {
	t.Parallel()
	e := ev("e1", "Math", weekly.Tuesday, 9, 0)
	lead := 30
	e.LeadTimeMinutes = &lead
	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{e}}
	b := newBackend(true)
	if _, err := newEngine(src, b, at(6, 8, 0), Options{}).ScheduleAll(context.Background()); err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	a := b.armed[ident.CorrelationID("e1")]
	if !a.TriggerAt.Equal(at(7, 8, 30)) || a.Payload.LeadTimeMinutes != 30 {
		t.Fatalf("armed: %+v", a)
	}
	if a.Payload.DayOfWeek != "Tuesday" || a.Payload.StartTime != "09:00" || a.Payload.ArmID == "" {
		t.Fatalf("payload: %+v", a.Payload)
	}
}

func TestScheduleAllIdempotent(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{
		ev("e1", "Math", weekly.Tuesday, 9, 0),
		ev("e2", "Physics", weekly.Friday, 14, 30),
	}}
	b := newBackend(true)
	eng := newEngine(src, b, at(6, 8, 0), Options{})
	ctx := context.Background()

	if _, err := eng.ScheduleAll(ctx); err != nil {
		t.Fatalf("first: %v", err)
	}
	first := b.snapshot()
	if _, err := eng.ScheduleAll(ctx); err != nil {
		t.Fatalf("second: %v", err)
	}
	second := b.snapshot()
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("armed sets: %v %v", first, second)
	}
	for id, ts := range first {
		if !second[id].Equal(ts) {
			t.Fatalf("id %d: %s != %s", id, ts, second[id])
		}
	}
}

func TestCancelThenScheduleSameSet(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{
		ev("e1", "Math", weekly.Tuesday, 9, 0),
		ev("e2", "Physics", weekly.Friday, 14, 30),
	}}
	ctx := context.Background()

	single := newBackend(true)
	if _, err := newEngine(src, single, at(6, 8, 0), Options{}).ScheduleAll(ctx); err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}

	b := newBackend(true)
	eng := newEngine(src, b, at(6, 8, 0), Options{})
	if _, err := eng.ScheduleAll(ctx); err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	n, err := eng.CancelAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CancelAll: %d %v", n, err)
	}
	if len(b.snapshot()) != 0 {
		t.Fatalf("timers left after CancelAll: %v", b.snapshot())
	}
	if _, err := eng.ScheduleAll(ctx); err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	want, got := single.snapshot(), b.snapshot()
	if len(want) != len(got) {
		t.Fatalf("got %v want %v", got, want)
	}
	for id, ts := range want {
		if !got[id].Equal(ts) {
			t.Fatalf("id %d: got %s want %s", id, got[id], ts)
		}
	}
}

func TestScheduleAllDisabled(t *testing.T) {
	t.Parallel()
	prefs := reminder.DefaultPreferences()
	src := &fakeSource{prefs: prefs, events: []reminder.RecurringEvent{ev("e1", "Math", weekly.Tuesday, 9, 0)}}
	b := newBackend(true)
	eng := newEngine(src, b, at(6, 8, 0), Options{})
	ctx := context.Background()
	if _, err := eng.ScheduleAll(ctx); err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}

	src.mu.Lock()
	src.prefs.Enabled = false
	src.mu.Unlock()

	rep, err := eng.ScheduleAll(ctx)
	if err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	if !rep.Disabled || rep.Armed != 0 || rep.Cancelled != 1 {
		t.Fatalf("report: %+v", rep)
	}
	if len(b.snapshot()) != 0 {
		t.Fatalf("armed while disabled: %v", b.snapshot())
	}
}

func TestScheduleAllFiltered(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{
		ev("e1", "Math", weekly.Tuesday, 9, 0),
		ev("e2", "Physics", weekly.Friday, 14, 30),
	}}
	b := newBackend(true)
	eng := newEngine(src, b, at(6, 8, 0), Options{})
	ctx := context.Background()
	if _, err := eng.ScheduleAll(ctx); err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}

	src.mu.Lock()
	src.prefs.AllSubjectsSelected = false
	src.prefs.SelectedSubjects = []string{"Math"}
	src.mu.Unlock()

	rep, err := eng.ScheduleAll(ctx)
	if err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	if rep.Armed != 1 || rep.Filtered != 1 {
		t.Fatalf("report: %+v", rep)
	}
	got := b.snapshot()
	if _, ok := got[ident.CorrelationID("e2")]; ok {
		t.Fatalf("filtered event still armed: %v", got)
	}
	if _, ok := got[ident.CorrelationID("e1")]; !ok {
		t.Fatalf("selected event not armed: %v", got)
	}
}

func TestScheduleAllCollidingIDKeepsArmedTimer(t *testing.T) {
	t.Parallel()
	// "Aa" and "BB" share a correlation id
	if ident.CorrelationID(ident.EventKey("Aa")) != ident.CorrelationID(ident.EventKey("BB")) {
		t.Fatalf("ids do not collide")
	}
	broken := ev("BB", "Math", weekly.Friday, 10, 0)
	broken.HasStart = false
	cases := []struct {
		name   string
		events []reminder.RecurringEvent
	}{
		{"filtered after armed", []reminder.RecurringEvent{ev("Aa", "Math", weekly.Tuesday, 9, 0), ev("BB", "Art", weekly.Friday, 10, 0)}},
		{"filtered before armed", []reminder.RecurringEvent{ev("BB", "Art", weekly.Friday, 10, 0), ev("Aa", "Math", weekly.Tuesday, 9, 0)}},
		{"skipped after armed", []reminder.RecurringEvent{ev("Aa", "Math", weekly.Tuesday, 9, 0), broken}},
	}
	for _, tc := range cases {
		for _, listing := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/listing=%v", tc.name, listing), func(t *testing.T) {
				t.Parallel()
				prefs := reminder.DefaultPreferences()
				prefs.AllSubjectsSelected = false
				prefs.SelectedSubjects = []string{"Math"}
				src := &fakeSource{prefs: prefs, events: tc.events}
				b := newBackend(true)
				var backend timer.Backend = b
				if listing {
					backend = listingBackend{b}
				}
				eng := newEngine(src, backend, at(6, 8, 0), Options{})

				rep, err := eng.ScheduleAll(context.Background())
				if err != nil {
					t.Fatalf("ScheduleAll: %v", err)
				}
				if rep.Armed != 1 || rep.Filtered+rep.Skipped != 1 {
					t.Fatalf("report: %+v", rep)
				}
				got := b.snapshot()
				if len(got) != 1 {
					t.Fatalf("armed timer dropped: %v", got)
				}
				if want := at(7, 8, 45); !got[ident.CorrelationID(ident.EventKey("Aa"))].Equal(want) {
					t.Fatalf("trigger = %v, want %v", got, want)
				}
			})
		}
	}
}

func TestScheduleAllWithoutExactPermission(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{
		ev("e1", "Math", weekly.Tuesday, 9, 0),
		ev("e2", "Physics", weekly.Friday, 14, 30),
	}}
	b := newBackend(false)
	rep, err := newEngine(src, b, at(6, 8, 0), Options{Bus: bus}).ScheduleAll(context.Background())
	if err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	if rep.Armed != 2 || rep.Degraded != 2 || rep.Exact {
		t.Fatalf("report: %+v", rep)
	}
	degraded := 0
	for len(ch) > 0 {
		if e := <-ch; e.Type == EventDegraded {
			degraded++
		}
	}
	if degraded != 2 {
		t.Fatalf("degraded events: %d", degraded)
	}
}

func TestScheduleAllSkipsMalformed(t *testing.T) {
	t.Parallel()
	noTime := ev("e2", "Chem", weekly.Monday, 0, 0)
	noTime.HasStart = false
	bad := ev("e3", "Bio", weekly.Monday, 10, 0)
	bad.Invalid = errors.New(`invalid day "Funday"`)

	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{
		ev("e1", "Math", weekly.Tuesday, 9, 0), noTime, bad,
	}}
	b := newBackend(true)
	rep, err := newEngine(src, b, at(6, 8, 0), Options{}).ScheduleAll(context.Background())
	if err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	if rep.Armed != 1 || rep.Skipped != 2 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestScheduleAllArmFailureContinues(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{
		ev("e1", "Math", weekly.Tuesday, 9, 0),
		ev("e2", "Physics", weekly.Friday, 14, 30),
	}}
	b := newBackend(true)
	b.armErr[ident.CorrelationID("e1")] = errors.New("boom")
	rep, err := newEngine(src, b, at(6, 8, 0), Options{}).ScheduleAll(context.Background())
	if err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	if rep.Armed != 1 || rep.Failed != 1 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestScheduleAllStoreUnreadable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		src  *fakeSource
	}{
		{"preferences", &fakeSource{prefsErr: errors.New("io")}},
		{"events", &fakeSource{prefs: reminder.DefaultPreferences(), eventErr: errors.New("io")}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b := newBackend(true)
			rep, err := newEngine(tc.src, b, at(6, 8, 0), Options{}).ScheduleAll(context.Background())
			if !errors.Is(err, ErrStoreUnreadable) {
				t.Fatalf("err: %v", err)
			}
			if rep.Armed != 0 || b.arms != 0 {
				t.Fatalf("armed on error: %+v", rep)
			}
		})
	}
}

func TestCancelAllUnreadableIsNoop(t *testing.T) {
	t.Parallel()
	b := newBackend(true)
	src := &fakeSource{eventErr: errors.New("io")}
	n, err := newEngine(src, b, at(6, 8, 0), Options{}).CancelAll(context.Background())
	if err != nil || n != 0 || b.cancels != 0 {
		t.Fatalf("CancelAll: n=%d err=%v cancels=%d", n, err, b.cancels)
	}
}

func TestScheduleAllCancelsOrphans(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{
		ev("e1", "Math", weekly.Tuesday, 9, 0),
		ev("e2", "Physics", weekly.Friday, 14, 30),
	}}
	b := listingBackend{newBackend(true)}
	eng := newEngine(src, b, at(6, 8, 0), Options{})
	ctx := context.Background()
	if _, err := eng.ScheduleAll(ctx); err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}

	src.mu.Lock()
	src.events = src.events[:1]
	src.mu.Unlock()

	rep, err := eng.ScheduleAll(ctx)
	if err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	if rep.Cancelled != 1 || len(b.snapshot()) != 1 {
		t.Fatalf("report %+v armed %v", rep, b.snapshot())
	}
}

func TestCancelAllListerClearsEverything(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefs: reminder.DefaultPreferences()}
	b := listingBackend{newBackend(true)}
	_, _ = b.Arm(context.Background(), 42, at(7, 8, 0), true, reminder.Payload{})
	n, err := newEngine(src, b, at(6, 8, 0), Options{}).CancelAll(context.Background())
	if err != nil || n != 1 || len(b.snapshot()) != 0 {
		t.Fatalf("CancelAll: n=%d err=%v armed=%v", n, err, b.snapshot())
	}
}

func firedPayload(id string) reminder.Payload {
	return reminder.Payload{
		EventID:         id,
		Title:           "Math",
		Location:        "R1",
		LeadTimeMinutes: 15,
		DayOfWeek:       "Tuesday",
		StartTime:       "09:00",
		TriggerAt:       at(7, 8, 45),
		CorrelationID:   ident.CorrelationID(id),
	}
}

func TestOnTimerFiredRearmsNextWeek(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{ev("e1", "Math", weekly.Tuesday, 9, 0)}}
	b := newBackend(true)
	eng := newEngine(src, b, at(7, 8, 45).Add(3*time.Second), Options{})
	if err := eng.OnTimerFired(context.Background(), firedPayload("e1")); err != nil {
		t.Fatalf("OnTimerFired: %v", err)
	}
	a, ok := b.armed[ident.CorrelationID("e1")]
	if !ok || !a.TriggerAt.Equal(at(14, 8, 45)) || a.Precision != reminder.Exact {
		t.Fatalf("rearmed: %+v", a)
	}
	if !a.Payload.TriggerAt.Equal(at(14, 8, 45)) {
		t.Fatalf("payload trigger: %s", a.Payload.TriggerAt)
	}
}

func TestOnTimerFiredLateDelivery(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{ev("e1", "Math", weekly.Tuesday, 9, 0)}}
	b := newBackend(true)
	// delivered eight days late, on Wednesday 15th
	eng := newEngine(src, b, at(15, 10, 0), Options{})
	if err := eng.OnTimerFired(context.Background(), firedPayload("e1")); err != nil {
		t.Fatalf("OnTimerFired: %v", err)
	}
	if got := b.armed[ident.CorrelationID("e1")].TriggerAt; !got.Equal(at(21, 8, 45)) {
		t.Fatalf("got %s", got)
	}
}

func TestOnTimerFiredRearmKey(t *testing.T) {
	t.Parallel()
	legacy := ident.CorrelationID(ident.LegacyFireKey("Math", "R1", "Tuesday"))
	cases := []struct {
		name    string
		mode    ident.Mode
		eventID string
		want    int32
	}{
		{"event id", ident.ModeEventID, "e1", ident.CorrelationID("e1")},
		{"legacy", ident.ModeLegacy, "e1", legacy},
		{"missing id falls back", ident.ModeEventID, "", legacy},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{ev("e1", "Math", weekly.Tuesday, 9, 0)}}
			b := newBackend(true)
			eng := newEngine(src, b, at(7, 8, 46), Options{RearmKey: tc.mode})
			if err := eng.OnTimerFired(context.Background(), firedPayload(tc.eventID)); err != nil {
				t.Fatalf("OnTimerFired: %v", err)
			}
			if _, ok := b.armed[tc.want]; !ok || len(b.armed) != 1 {
				t.Fatalf("armed ids: %v", b.snapshot())
			}
		})
	}
}

func TestOnTimerFiredNoRearm(t *testing.T) {
	t.Parallel()
	disabled := reminder.DefaultPreferences()
	disabled.Enabled = false
	filtered := reminder.DefaultPreferences()
	filtered.AllSubjectsSelected = false
	filtered.SelectedSubjects = []string{"Physics"}

	cases := []struct {
		name   string
		prefs  reminder.Preferences
		events []reminder.RecurringEvent
	}{
		{"disabled", disabled, []reminder.RecurringEvent{ev("e1", "Math", weekly.Tuesday, 9, 0)}},
		{"filtered", filtered, []reminder.RecurringEvent{ev("e1", "Math", weekly.Tuesday, 9, 0)}},
		{"deleted", reminder.DefaultPreferences(), nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			src := &fakeSource{prefs: tc.prefs, events: tc.events}
			b := newBackend(true)
			eng := newEngine(src, b, at(7, 8, 46), Options{})
			if err := eng.OnTimerFired(context.Background(), firedPayload("e1")); err != nil {
				t.Fatalf("OnTimerFired: %v", err)
			}
			if b.arms != 0 {
				t.Fatalf("rearmed: %v", b.snapshot())
			}
		})
	}
}

func TestOnTimerFiredStoreUnreadableStillRearms(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefsErr: errors.New("io"), eventErr: errors.New("io")}
	b := newBackend(false)
	eng := newEngine(src, b, at(7, 8, 46), Options{})
	if err := eng.OnTimerFired(context.Background(), firedPayload("e1")); err != nil {
		t.Fatalf("OnTimerFired: %v", err)
	}
	a := b.armed[ident.CorrelationID("e1")]
	if a.Precision != reminder.Inexact || !a.TriggerAt.Equal(at(14, 8, 45)) {
		t.Fatalf("rearmed: %+v", a)
	}
}

func TestOnTimerFiredBadPayload(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefs: reminder.DefaultPreferences()}
	eng := newEngine(src, newBackend(true), at(7, 8, 46), Options{})
	p := firedPayload("e1")
	p.DayOfWeek = "Funday"
	if err := eng.OnTimerFired(context.Background(), p); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err: %v", err)
	}
	p = firedPayload("e1")
	p.StartTime = "9"
	if err := eng.OnTimerFired(context.Background(), p); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err: %v", err)
	}
}

func TestOnBootCompletedSchedules(t *testing.T) {
	t.Parallel()
	src := &fakeSource{prefs: reminder.DefaultPreferences(), events: []reminder.RecurringEvent{ev("e1", "Math", weekly.Tuesday, 9, 0)}}
	b := newBackend(true)
	rep, err := newEngine(src, b, at(6, 8, 0), Options{}).OnBootCompleted(context.Background())
	if err != nil || rep.Armed != 1 {
		t.Fatalf("OnBootCompleted: %+v %v", rep, err)
	}
}

func TestPermissionDelegates(t *testing.T) {
	t.Parallel()
	b := newBackend(false)
	eng := newEngine(&fakeSource{}, b, at(6, 8, 0), Options{})
	if eng.CanScheduleExact(context.Background()) {
		t.Fatalf("CanScheduleExact: true")
	}
	if err := eng.RequestExactPermission(context.Background()); err != nil || b.reqs != 1 {
		t.Fatalf("RequestExactPermission: %v reqs=%d", err, b.reqs)
	}
}
