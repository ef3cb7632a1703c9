// Package engine keeps weekly reminders armed against a timer backend.
//
// A full pass (ScheduleAll) reads the preferences and the event list once,
// computes the next trigger of every selected event and arms it under the
// event's correlation id. Fired timers are re-armed one week later
// (OnTimerFired). All operations are serialized.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shantoshdurai/ClassNow-app/internal/eventbus"
	"github.com/shantoshdurai/ClassNow-app/internal/ident"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	"github.com/shantoshdurai/ClassNow-app/internal/timer"
	"github.com/shantoshdurai/ClassNow-app/internal/weekly"
	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

var (
	ErrStoreUnreadable = errors.New("event store unreadable")
	ErrBadPayload      = errors.New("invalid timer payload")
)

// Bus event types.
const (
	EventArmed     = "reminder.armed"
	EventDegraded  = "reminder.degraded"
	EventFired     = "reminder.fired"
	EventFailed    = "reminder.failed"
	EventCancelled = "reminder.cancelled"
	EventPass      = "schedule.pass"
)

// Source is the read side of the event store.
type Source interface {
	LoadPreferences(ctx context.Context) (reminder.Preferences, error)
	LoadEvents(ctx context.Context) ([]reminder.RecurringEvent, error)
}

// Failure is the Data of EventFailed.
type Failure struct {
	CorrelationID int32  `json:"correlation_id"`
	Title         string `json:"title"`
	Err           string `json:"error"`
}

type Options struct {
	// Location is the calendar used for slot arithmetic. Defaults to time.Local.
	Location *time.Location
	// RearmKey selects the id derivation when a fired reminder is re-armed.
	RearmKey ident.Mode
	// Now overrides the clock (tests).
	Now func() time.Time
	Bus eventbus.Bus
}

type Engine struct {
	mu sync.Mutex

	src     Source
	backend timer.Backend
	bus     eventbus.Bus
	log     logx.Logger

	loc  *time.Location
	mode ident.Mode
	now  func() time.Time
}

func New(src Source, backend timer.Backend, log logx.Logger, opt Options) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Location == nil {
		opt.Location = time.Local
	}
	if opt.RearmKey == "" {
		opt.RearmKey = ident.ModeEventID
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Engine{
		src:     src,
		backend: backend,
		bus:     opt.Bus,
		log:     log,
		loc:     opt.Location,
		mode:    opt.RearmKey,
		now:     opt.Now,
	}
}

// Location returns the calendar the engine schedules in.
func (e *Engine) Location() *time.Location { return e.loc }

// ScheduleAll arms every selected, schedulable event at its next occurrence.
//
// Reading the preferences or the event list fails the whole pass; an arm
// failure is counted and the pass continues. With reminders disabled the pass
// cancels everything instead.
func (e *Engine) ScheduleAll(ctx context.Context) (reminder.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduleAllLocked(ctx)
}

func (e *Engine) scheduleAllLocked(ctx context.Context) (reminder.Report, error) {
	var rep reminder.Report

	prefs, err := e.src.LoadPreferences(ctx)
	if err != nil {
		return rep, fmt.Errorf("%w: preferences: %w", ErrStoreUnreadable, err)
	}
	if !prefs.Enabled {
		n, _ := e.cancelAllLocked(ctx)
		rep.Disabled = true
		rep.Cancelled = n
		e.log.Info("reminders disabled, timers cancelled", logx.Int("cancelled", n))
		e.publish(EventPass, rep)
		return rep, nil
	}

	events, err := e.src.LoadEvents(ctx)
	if err != nil {
		return rep, fmt.Errorf("%w: events: %w", ErrStoreUnreadable, err)
	}

	exact := e.backend.HasExactPermission(ctx)
	rep.Exact = exact
	now := e.now().In(e.loc)
	keep := make(map[int32]struct{}, len(events))
	// skipped and filtered ids, cancelled once the pass knows what it armed
	drop := map[int32]struct{}{}
	warned := false

	for _, ev := range events {
		id := ident.CorrelationID(ident.EventKey(ev.ID))
		if !ev.Schedulable() {
			rep.Skipped++
			drop[id] = struct{}{}
			if ev.Invalid != nil {
				e.log.Warn("malformed event skipped", logx.String("event_id", ev.ID), logx.Err(ev.Invalid))
			} else {
				e.log.Debug("event without day or time skipped", logx.String("event_id", ev.ID))
			}
			continue
		}
		if !prefs.Selects(ev.Title) {
			rep.Filtered++
			drop[id] = struct{}{}
			continue
		}

		lead := ev.LeadTime(prefs.DefaultLeadTimeMinutes)
		at := weekly.NextOccurrence(ev.Day, ev.Start, lead, now)
		p := reminder.Payload{
			EventID:         ev.ID,
			Title:           ev.Title,
			Location:        ev.Location,
			LeadTimeMinutes: lead,
			DayOfWeek:       ev.Day.String(),
			StartTime:       ev.Start.String(),
			TriggerAt:       at,
			CorrelationID:   id,
			ArmID:           uuid.NewString(),
		}

		prec, err := e.backend.Arm(ctx, id, at, exact, p)
		if err != nil {
			rep.Failed++
			e.log.Warn("arm failed", logx.String("event_id", ev.ID), logx.Int32("id", id), logx.Err(err))
			e.publish(EventFailed, Failure{CorrelationID: id, Title: ev.Title, Err: err.Error()})
			continue
		}
		keep[id] = struct{}{}
		rep.Armed++
		armed := reminder.ArmedTimer{CorrelationID: id, TriggerAt: at, Precision: prec, Payload: p}
		if prec == reminder.Inexact {
			rep.Degraded++
			if !warned {
				warned = true
				e.log.Warn("exact timers unavailable, reminders armed inexact")
			}
			e.publish(EventDegraded, armed)
		}
		e.publish(EventArmed, armed)
	}

	// an id shared with an armed event belongs to that event
	for id := range drop {
		if _, ok := keep[id]; !ok {
			e.cancelQuiet(ctx, id)
		}
	}
	if l, ok := e.backend.(timer.Lister); ok {
		rep.Cancelled += e.cancelOrphans(ctx, l, keep)
	}

	e.log.Info("schedule pass done",
		logx.Int("armed", rep.Armed),
		logx.Int("degraded", rep.Degraded),
		logx.Int("skipped", rep.Skipped),
		logx.Int("filtered", rep.Filtered),
		logx.Int("failed", rep.Failed),
		logx.Int("cancelled", rep.Cancelled),
	)
	e.publish(EventPass, rep)
	return rep, nil
}

// cancelOrphans removes armed timers that the pass did not produce, such as
// those of events deleted from the store.
func (e *Engine) cancelOrphans(ctx context.Context, l timer.Lister, keep map[int32]struct{}) int {
	armed, err := l.Armed(ctx)
	if err != nil {
		e.log.Warn("list armed timers failed", logx.Err(err))
		return 0
	}
	n := 0
	for _, a := range armed {
		if _, ok := keep[a.CorrelationID]; ok {
			continue
		}
		if err := e.backend.Cancel(ctx, a.CorrelationID); err != nil {
			e.log.Warn("cancel orphan failed", logx.Int32("id", a.CorrelationID), logx.Err(err))
			continue
		}
		n++
		e.publish(EventCancelled, a.CorrelationID)
	}
	return n
}

// CancelAll cancels the timer of every stored event and returns how many
// cancellations succeeded. An unreadable store makes it a no-op.
func (e *Engine) CancelAll(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelAllLocked(ctx)
}

func (e *Engine) cancelAllLocked(ctx context.Context) (int, error) {
	done := map[int32]struct{}{}
	n := 0
	cancel := func(id int32) {
		if _, ok := done[id]; ok {
			return
		}
		done[id] = struct{}{}
		if err := e.backend.Cancel(ctx, id); err != nil {
			e.log.Warn("cancel failed", logx.Int32("id", id), logx.Err(err))
			return
		}
		n++
		e.publish(EventCancelled, id)
	}

	events, err := e.src.LoadEvents(ctx)
	if err != nil {
		e.log.Warn("event store unreadable, nothing cancelled", logx.Err(err))
	}
	for _, ev := range events {
		cancel(ident.CorrelationID(ident.EventKey(ev.ID)))
	}

	if l, ok := e.backend.(timer.Lister); ok {
		armed, err := l.Armed(ctx)
		if err != nil {
			e.log.Warn("list armed timers failed", logx.Err(err))
		}
		for _, a := range armed {
			cancel(a.CorrelationID)
		}
	}
	return n, nil
}

func (e *Engine) cancelQuiet(ctx context.Context, id int32) {
	if err := e.backend.Cancel(ctx, id); err != nil {
		e.log.Debug("cancel failed", logx.Int32("id", id), logx.Err(err))
	}
}

// OnTimerFired re-arms a fired reminder for the following week.
//
// When the store is readable and the reminder is disabled, filtered out or
// deleted, nothing is re-armed. An unreadable store does not block the rearm.
func (e *Engine) OnTimerFired(ctx context.Context, p reminder.Payload) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.publish(EventFired, p)
	log := e.log.With(logx.String("title", p.Title), logx.String("event_id", p.EventID))

	day, err := weekly.ParseDay(p.DayOfWeek)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	start, err := weekly.ParseClock(p.StartTime)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}

	if skip, why := e.rearmBlocked(ctx, p); skip {
		log.Info("fired reminder not re-armed", logx.String("reason", why))
		return nil
	}

	now := e.now().In(e.loc)
	at := weekly.NextAfterFire(day, start, p.LeadTimeMinutes, p.TriggerAt, now)
	id := e.rearmID(p, day)

	next := p
	next.TriggerAt = at
	next.CorrelationID = id
	next.ArmID = uuid.NewString()

	exact := e.backend.HasExactPermission(ctx)
	prec, err := e.backend.Arm(ctx, id, at, exact, next)
	if err != nil {
		e.publish(EventFailed, Failure{CorrelationID: id, Title: p.Title, Err: err.Error()})
		return fmt.Errorf("rearm %q: %w", p.Title, err)
	}
	armed := reminder.ArmedTimer{CorrelationID: id, TriggerAt: at, Precision: prec, Payload: next}
	if prec == reminder.Inexact {
		log.Warn("exact timers unavailable, reminder re-armed inexact")
		e.publish(EventDegraded, armed)
	}
	e.publish(EventArmed, armed)
	log.Info("reminder re-armed", logx.Time("at", at), logx.String("precision", string(prec)))
	return nil
}

func (e *Engine) rearmBlocked(ctx context.Context, p reminder.Payload) (bool, string) {
	prefs, err := e.src.LoadPreferences(ctx)
	if err != nil {
		e.log.Warn("preferences unreadable, re-arming anyway", logx.Err(err))
		return false, ""
	}
	if !prefs.Enabled {
		return true, "disabled"
	}
	if !prefs.Selects(p.Title) {
		return true, "filtered"
	}
	if p.EventID == "" {
		return false, ""
	}
	events, err := e.src.LoadEvents(ctx)
	if err != nil {
		return false, ""
	}
	for _, ev := range events {
		if ev.ID == p.EventID {
			return false, ""
		}
	}
	return true, "deleted"
}

func (e *Engine) rearmID(p reminder.Payload, day weekly.Day) int32 {
	if e.mode == ident.ModeEventID && p.EventID != "" {
		return ident.CorrelationID(ident.EventKey(p.EventID))
	}
	if e.mode == ident.ModeEventID {
		e.log.Warn("payload without event id, using legacy key", logx.String("title", p.Title))
	}
	return ident.CorrelationID(ident.LegacyFireKey(p.Title, p.Location, day.String()))
}

// OnBootCompleted rebuilds all timers after a restart.
func (e *Engine) OnBootCompleted(ctx context.Context) (reminder.Report, error) {
	e.log.Info("boot completed, rescheduling")
	return e.ScheduleAll(ctx)
}

func (e *Engine) CanScheduleExact(ctx context.Context) bool {
	return e.backend.HasExactPermission(ctx)
}

func (e *Engine) RequestExactPermission(ctx context.Context) error {
	return e.backend.RequestExactPermission(ctx)
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
