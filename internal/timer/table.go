package timer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shantoshdurai/ClassNow-app/internal/eventbus"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

// TableConfig controls the in-process backend.
type TableConfig struct {
	// ExactPermission is the initial exact-timer capability.
	ExactPermission bool
	// GrantOnRequest grants exact timers when RequestExactPermission is called.
	GrantOnRequest bool
	// InexactWindow batches inexact timers: they fire at the next multiple of
	// the window at or after the requested instant. 0 disables batching.
	InexactWindow time.Duration
}

type entry struct {
	timer *time.Timer
	armed reminder.ArmedTimer
	ver   uint64
}

// Table is an in-process timer table keyed by correlation id.
//
// Timers do not survive a restart; the host rebuilds them with a full
// scheduling pass on start.
type Table struct {
	log logx.Logger
	bus eventbus.Bus

	mu      sync.Mutex
	cfg     TableConfig
	exact   bool
	fire    FireFunc
	entries map[int32]*entry
	// ver is bumped on every arm/cancel so callbacks of replaced timers are ignored.
	ver    map[int32]uint64
	closed bool
}

func NewTable(cfg TableConfig, log logx.Logger, bus eventbus.Bus) *Table {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Table{
		log:     log,
		bus:     bus,
		cfg:     cfg,
		exact:   cfg.ExactPermission,
		entries: map[int32]*entry{},
		ver:     map[int32]uint64{},
	}
}

// SetFireFunc installs the callback for fired timers.
func (t *Table) SetFireFunc(fn FireFunc) {
	t.mu.Lock()
	t.fire = fn
	t.mu.Unlock()
}

// Apply updates the config; an explicit permission change takes effect for
// the next Arm call. Already armed timers keep their precision.
func (t *Table) Apply(cfg TableConfig) {
	t.mu.Lock()
	if cfg.ExactPermission != t.cfg.ExactPermission {
		t.exact = cfg.ExactPermission
	}
	t.cfg = cfg
	t.mu.Unlock()
}

func (t *Table) HasExactPermission(ctx context.Context) bool {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exact
}

// SetExactPermission overrides the capability (tests, operator action).
func (t *Table) SetExactPermission(granted bool) {
	t.mu.Lock()
	t.exact = granted
	t.mu.Unlock()
}

func (t *Table) RequestExactPermission(ctx context.Context) error {
	_ = ctx
	t.mu.Lock()
	grant := t.cfg.GrantOnRequest
	already := t.exact
	t.mu.Unlock()

	t.publish(EventExactRequested, nil)
	if already || !grant {
		t.log.Info("exact timer permission requested", logx.Bool("granted", already))
		return nil
	}
	// The grant is observed asynchronously, like a settings screen round trip.
	go func() {
		t.SetExactPermission(true)
		t.log.Info("exact timer permission granted")
		t.publish(EventExactGranted, nil)
	}()
	return nil
}

func (t *Table) Arm(ctx context.Context, id int32, at time.Time, exact bool, p reminder.Payload) (reminder.Precision, error) {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", ErrClosed
	}

	prec := reminder.Exact
	fireAt := at
	if !exact || !t.exact {
		prec = reminder.Inexact
		fireAt = t.batchLocked(at)
	}

	// upsert: stop existing timer with the same id
	if e, ok := t.entries[id]; ok {
		_ = e.timer.Stop()
		delete(t.entries, id)
	}
	ver := t.ver[id] + 1
	t.ver[id] = ver

	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}
	e := &entry{
		ver:   ver,
		armed: reminder.ArmedTimer{CorrelationID: id, TriggerAt: at, Precision: prec, Payload: p},
	}
	e.timer = time.AfterFunc(delay, func() { t.fired(id, ver) })
	t.entries[id] = e

	t.log.Debug("timer armed",
		logx.Int32("id", id),
		logx.Time("at", at),
		logx.Time("fire_at", fireAt),
		logx.String("precision", string(prec)),
	)
	return prec, nil
}

func (t *Table) batchLocked(at time.Time) time.Time {
	w := t.cfg.InexactWindow
	if w <= 0 {
		return at
	}
	b := at.Truncate(w)
	if b.Before(at) {
		b = b.Add(w)
	}
	return b
}

func (t *Table) fired(id int32, ver uint64) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok || e.ver != ver || t.ver[id] != ver || t.closed {
		// replaced or cancelled
		t.mu.Unlock()
		return
	}
	delete(t.entries, id)
	fn := t.fire
	p := e.armed.Payload
	t.mu.Unlock()

	t.log.Debug("timer fired", logx.Int32("id", id))
	if fn != nil {
		fn(context.Background(), p)
	}
}

func (t *Table) Cancel(ctx context.Context, id int32) error {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if e, ok := t.entries[id]; ok {
		_ = e.timer.Stop()
		delete(t.entries, id)
		t.log.Debug("timer cancelled", logx.Int32("id", id))
	}
	t.ver[id]++
	return nil
}

// Armed lists live timers ordered by trigger instant.
func (t *Table) Armed(ctx context.Context) ([]reminder.ArmedTimer, error) {
	_ = ctx
	t.mu.Lock()
	out := make([]reminder.ArmedTimer, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.armed)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TriggerAt.Equal(out[j].TriggerAt) {
			return out[i].TriggerAt.Before(out[j].TriggerAt)
		}
		return out[i].CorrelationID < out[j].CorrelationID
	})
	return out, nil
}

// Close stops all timers. Further Arm/Cancel calls fail with ErrClosed.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		_ = e.timer.Stop()
	}
	t.entries = map[int32]*entry{}
	t.closed = true
	return nil
}

func (t *Table) publish(typ string, data any) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
