package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shantoshdurai/ClassNow-app/internal/config"
	"github.com/shantoshdurai/ClassNow-app/internal/ident"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	"github.com/shantoshdurai/ClassNow-app/internal/timer"
)

const schedule = `[
  {"id":"e1","subject":"Physics","room":"B-204","dayOfWeek":"Monday","startTime":"09:00"},
  {"id":"e2","subject":"Chemistry","room":"C-101","dayOfWeek":"Wednesday","startTime":"14:30","leadTimeMinutes":5},
  {"id":"e3","subject":"Free period","dayOfWeek":"Friday"}
]`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Console = false
	cfg.Store.Path = filepath.Join(t.TempDir(), "store.json")
	cfg.Notify.Driver = "none"
	cfg.Resync.Enabled = false
	cfg.Engine.Timezone = "UTC"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if err := a.Events().SaveEvents(context.Background(), []byte(schedule)); err != nil {
		t.Fatalf("SaveEvents: %v", err)
	}
	return a
}

func armed(t *testing.T, a *App) []reminder.ArmedTimer {
	t.Helper()
	l, ok := a.Backend().(timer.Lister)
	if !ok {
		t.Fatalf("backend %T does not list timers", a.Backend())
	}
	out, err := l.Armed(context.Background())
	if err != nil {
		t.Fatalf("Armed: %v", err)
	}
	return out
}

func TestNewFromConfigRejectsInvalid(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Store.Driver = "bogus"
	if _, err := NewFromConfig(cfg); err == nil {
		t.Fatalf("expected error for unknown store driver")
	}
}

func TestRunPass(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig(t))

	rep, err := a.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if rep.Armed != 2 || rep.Skipped != 1 {
		t.Fatalf("report = %+v; want 2 armed, 1 skipped", rep)
	}
	if got := len(armed(t, a)); got != 2 {
		t.Fatalf("armed timers = %d, want 2", got)
	}
	last := a.LastPass()
	if last.At.IsZero() || last.Err != "" || last.Report.Armed != 2 {
		t.Fatalf("LastPass = %+v", last)
	}
	if !a.InProcess() || a.BackendName() != "memory" {
		t.Fatalf("backend = %s, in-process %v", a.BackendName(), a.InProcess())
	}
}

func TestHandleFireRearms(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig(t))

	p := reminder.Payload{
		EventID:         "e1",
		Title:           "Physics",
		Location:        "B-204",
		LeadTimeMinutes: 15,
		DayOfWeek:       "Monday",
		StartTime:       "09:00",
		CorrelationID:   ident.CorrelationID(ident.EventKey("e1")),
	}
	if err := a.HandleFire(context.Background(), p); err != nil {
		t.Fatalf("HandleFire: %v", err)
	}

	got := armed(t, a)
	if len(got) != 1 {
		t.Fatalf("armed = %+v; want one re-armed timer", got)
	}
	if got[0].CorrelationID != p.CorrelationID {
		t.Fatalf("re-armed id = %d, want %d", got[0].CorrelationID, p.CorrelationID)
	}
	if got[0].TriggerAt.UTC().Weekday() != time.Monday || !got[0].TriggerAt.After(time.Now()) {
		t.Fatalf("re-armed at %v; want a future Monday", got[0].TriggerAt)
	}
}

func TestHandleFireDeletedEventNotRearmed(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig(t))

	p := reminder.Payload{
		EventID:       "gone",
		Title:         "Biology",
		DayOfWeek:     "Tuesday",
		StartTime:     "10:00",
		CorrelationID: ident.CorrelationID(ident.EventKey("gone")),
	}
	if err := a.HandleFire(context.Background(), p); err != nil {
		t.Fatalf("HandleFire: %v", err)
	}
	if got := armed(t, a); len(got) != 0 {
		t.Fatalf("armed = %+v; want none", got)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	next := *cfg
	next.Notify.Driver = "log"
	a.applyConfig(cfg, &next)
	if got := a.Notifier().SinkName(); got != "log" {
		t.Fatalf("sink = %q, want log", got)
	}

	// a broken sink keeps the previous one
	broken := next
	broken.Notify.Driver = "carrier-pigeon"
	a.applyConfig(&next, &broken)
	if got := a.Notifier().SinkName(); got != "log" {
		t.Fatalf("sink = %q after bad config, want log", got)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Resync.Enabled = true
	cfg.Resync.Spec = "@every 1h"
	cfg.Store.Watch = true
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if last := a.LastPass(); last.Report.Armed != 2 {
		t.Fatalf("boot pass = %+v; want 2 armed", last)
	}

	a.RequestResync()
	a.RequestResync() // coalesced

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done not closed after Stop")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig(t))
	if _, err := a.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	h, ok := a.health().(map[string]any)
	if !ok {
		t.Fatalf("health type %T", a.health())
	}
	if h["status"] != "ok" || h["backend"] != "memory" || h["armed"] != 2 {
		t.Fatalf("health = %v", h)
	}
}
