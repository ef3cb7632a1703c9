package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shantoshdurai/ClassNow-app/internal/config"
	"github.com/shantoshdurai/ClassNow-app/internal/engine"
	"github.com/shantoshdurai/ClassNow-app/internal/eventbus"
	"github.com/shantoshdurai/ClassNow-app/internal/notify"
	"github.com/shantoshdurai/ClassNow-app/internal/observability/metrics"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	"github.com/shantoshdurai/ClassNow-app/internal/runtime/supervisor"
	"github.com/shantoshdurai/ClassNow-app/internal/storage"
	"github.com/shantoshdurai/ClassNow-app/internal/timer"
	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

// App owns every long-lived component of the reminder host.
//
// NewApp only builds the graph; nothing runs until Start. One-shot CLI
// commands use the accessors and Close instead of Start/Stop.
type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	sup  *supervisor.Supervisor
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	kv      storage.Store
	events  *storage.EventStore
	backend timer.Backend
	table   *timer.Table // nil unless timer.backend is memory
	eng     *engine.Engine
	notif   *notify.Service
	metrics *metrics.Metrics
	server  *metrics.Server

	fires  chan reminder.Payload
	resync chan struct{}

	cronMu sync.Mutex
	cron   *cron.Cron

	passMu   sync.Mutex
	lastPass PassState

	closeOnce sync.Once
}

// PassState is the outcome of the most recent scheduling pass run by the host.
type PassState struct {
	At     time.Time       `json:"at"`
	Report reminder.Report `json:"report"`
	Err    string          `json:"error,omitempty"`
}

// NewApp loads cfgPath and builds the app. An empty path uses config.Default().
func NewApp(cfgPath string) (*App, error) {
	if strings.TrimSpace(cfgPath) == "" {
		return build(nil, config.Default())
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return build(cfgm, cfg)
}

// NewFromConfig builds the app from an in-memory config. Hot reload is off.
func NewFromConfig(cfg *config.Config) (*App, error) {
	return build(nil, cfg)
}

func build(cfgm *config.ConfigManager, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(cfg.LogConfig())
	log := root.With(logx.String("comp", "app"))
	bus := eventbus.New()

	kv, err := storage.Open(cfg.StorageConfig(), root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	events := storage.NewEventStore(kv, root.With(logx.String("comp", "storage")))

	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		kv:      kv,
		events:  events,
		fires:   make(chan reminder.Payload, 64),
		resync:  make(chan struct{}, 1),
		metrics: metrics.New(bus),
	}

	tlog := root.With(logx.String("comp", "timer"))
	switch strings.ToLower(strings.TrimSpace(cfg.Timer.Backend)) {
	case "systemd":
		sd, err := timer.NewSystemd(context.Background(), cfg.SystemdConfig(), tlog, bus)
		if err != nil {
			_ = kv.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("timer backend: %w", err)
		}
		a.backend = sd
	default:
		a.table = timer.NewTable(cfg.TableConfig(), tlog, bus)
		a.table.SetFireFunc(a.enqueueFire)
		a.backend = a.table
	}

	a.eng = engine.New(events, a.backend, root.With(logx.String("comp", "engine")), engine.Options{
		Location: loc,
		RearmKey: cfg.RearmKey(),
		Bus:      bus,
	})

	a.notif, err = notify.New(cfg.NotifyConfig(), root.With(logx.String("comp", "notify")))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("notify: %w", err)
	}
	a.server = metrics.NewServer(cfg.MetricsConfig(), a.metrics, a.health, root.With(logx.String("comp", "metrics")))

	log.Debug("app built",
		logx.String("store", cfg.Store.Driver),
		logx.String("timer", a.BackendName()),
		logx.String("notify", a.notif.SinkName()),
		logx.String("tz", loc.String()),
	)
	return a, nil
}

func (a *App) Config() *config.Config {
	if a.cfgm != nil {
		if cfg := a.cfgm.Get(); cfg != nil {
			return cfg
		}
	}
	return a.cfg
}

func (a *App) Logger() logx.Logger         { return a.log }
func (a *App) Bus() eventbus.Bus           { return a.bus }
func (a *App) Engine() *engine.Engine      { return a.eng }
func (a *App) Events() *storage.EventStore { return a.events }
func (a *App) Backend() timer.Backend      { return a.backend }
func (a *App) Notifier() *notify.Service   { return a.notif }
func (a *App) Metrics() *metrics.Metrics   { return a.metrics }

// InProcess reports whether armed timers live only as long as this process.
func (a *App) InProcess() bool { return a.table != nil }

func (a *App) BackendName() string {
	if a.table != nil {
		return "memory"
	}
	return "systemd"
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// HandleFire delivers a fired reminder and re-arms it for next week.
// A failed delivery is logged and does not prevent the re-arm.
func (a *App) HandleFire(ctx context.Context, p reminder.Payload) error {
	derr := a.notif.Notify(ctx, p)
	a.metrics.ObserveDelivery(derr)
	if derr != nil {
		a.log.Warn("reminder delivery failed",
			logx.String("title", p.Title),
			logx.Int32("id", p.CorrelationID),
			logx.Err(derr),
		)
	}
	return a.eng.OnTimerFired(ctx, p)
}

// enqueueFire is the in-process backend's callback. Fires are handled on the
// "timer.fire" loop so a slow sink never blocks a timer goroutine.
func (a *App) enqueueFire(ctx context.Context, p reminder.Payload) {
	select {
	case a.fires <- p:
	default:
		a.log.Error("fire queue full; reminder dropped", logx.String("title", p.Title), logx.Int32("id", p.CorrelationID))
	}
}

// RunPass runs one full scheduling pass and records its outcome.
func (a *App) RunPass(ctx context.Context) (reminder.Report, error) {
	rep, err := a.eng.ScheduleAll(ctx)
	a.notePass(rep, err)
	return rep, err
}

func (a *App) notePass(rep reminder.Report, err error) {
	st := PassState{At: time.Now(), Report: rep}
	if err != nil {
		st.Err = err.Error()
		// successful passes reach metrics through the bus
		a.metrics.ObservePass(rep, err, st.At)
	}
	a.passMu.Lock()
	a.lastPass = st
	a.passMu.Unlock()
}

func (a *App) LastPass() PassState {
	a.passMu.Lock()
	defer a.passMu.Unlock()
	return a.lastPass
}

// health is the /healthz body.
func (a *App) health() any {
	out := map[string]any{
		"status":  "ok",
		"backend": a.BackendName(),
		"notify":  a.notif.SinkName(),
		"exact":   a.eng.CanScheduleExact(context.Background()),
	}
	if last := a.LastPass(); !last.At.IsZero() {
		out["last_pass"] = last
		if last.Err != "" {
			out["status"] = "degraded"
		}
	}
	if l, ok := a.backend.(timer.Lister); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		armed, err := l.Armed(ctx)
		cancel()
		if err == nil {
			out["armed"] = len(armed)
		}
	}
	if a.sup != nil {
		out["supervisor"] = a.sup.Snapshot()
	}
	return out
}

// Close releases the backend, the store and the log sinks. Timers armed by a
// systemd backend stay registered; in-process timers are dropped.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if c, ok := a.backend.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("timer backend: %w", err))
			}
		}
		if a.kv != nil {
			if err := a.kv.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
				errs = append(errs, fmt.Errorf("store: %w", err))
			}
		}
		if a.logs != nil {
			_ = a.logs.Close()
		}
	})
	return errors.Join(errs...)
}
