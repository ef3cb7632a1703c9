package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"github.com/shantoshdurai/ClassNow-app/internal/config"
	"github.com/shantoshdurai/ClassNow-app/internal/notify"
	"github.com/shantoshdurai/ClassNow-app/internal/runtime/supervisor"
	"github.com/shantoshdurai/ClassNow-app/internal/timer"
	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

const storeDebounce = 500 * time.Millisecond

// Start runs the boot pass and the background loops. It returns once the
// host is ready; use Done and Err to follow it and Stop to shut it down.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
			// a sink that cannot be built would leave reminders undelivered
			if _, err := notify.New(cfg.NotifyConfig(), logx.Nop()); err != nil {
				return fmt.Errorf("notify: %w", err)
			}
			return nil
		})
	}

	// Subscribe before the boot pass so its events reach metrics.
	events, unsub := a.bus.Subscribe(256)
	a.sup.Go("eventbus.observe", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.metrics.Observe(e)
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				if e.Type == timer.EventExactGranted {
					a.log.Info("exact timer permission granted; rescheduling")
					a.RequestResync()
				}
			}
		}
	})

	a.sup.Go("timer.fire", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case p := <-a.fires:
				if err := a.HandleFire(c, p); err != nil {
					a.log.Warn("fired reminder not re-armed", logx.String("title", p.Title), logx.Err(err))
				}
			}
		}
	})

	rep, err := a.eng.OnBootCompleted(a.sup.Context())
	a.notePass(rep, err)
	if err != nil {
		// the store may show up later; resync and the store watch retry
		a.log.Error("boot pass failed", logx.Err(err))
	}

	a.sup.Go("schedule.resync", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case <-a.resync:
				if _, err := a.RunPass(c); err != nil {
					a.log.Warn("resync pass failed", logx.Err(err))
				}
			}
		}
	})
	a.applyResync(a.cfg)

	if a.cfg.Store.Watch {
		path := a.cfg.Store.Path
		wlog := a.log.With(logx.String("comp", "store.watch"))
		a.sup.Go("store.watch", func(c context.Context) error {
			return config.WatchFile(c, path, storeDebounce, wlog, a.RequestResync)
		})
	}

	if a.cfgm != nil {
		a.startConfigReload()
	}

	if err := a.server.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.String("timer", a.BackendName()),
		logx.String("notify", a.notif.SinkName()),
		logx.Int("armed", rep.Armed),
	)
	return nil
}

// RequestResync queues a full pass. Requests made while one is queued coalesce.
func (a *App) RequestResync() {
	select {
	case a.resync <- struct{}{}:
	default:
	}
}

// applyResync replaces the cron driving periodic passes.
func (a *App) applyResync(cfg *config.Config) {
	a.cronMu.Lock()
	defer a.cronMu.Unlock()

	if a.cron != nil {
		<-a.cron.Stop().Done()
		a.cron = nil
	}
	if !cfg.Resync.Enabled {
		return
	}
	c := cron.New(cron.WithParser(config.CronParser()), cron.WithLocation(a.eng.Location()))
	if _, err := c.AddFunc(cfg.ResyncSpec(), a.RequestResync); err != nil {
		a.log.Warn("resync spec rejected; periodic passes off", logx.String("spec", cfg.ResyncSpec()), logx.Err(err))
		return
	}
	c.Start()
	a.cron = c
	a.log.Debug("resync scheduled", logx.String("spec", cfg.ResyncSpec()))
}

func (a *App) stopCron(ctx context.Context) {
	a.cronMu.Lock()
	c := a.cron
	a.cron = nil
	a.cronMu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfg
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// coalesce bursts of saves into the latest config
				for drained := false; !drained; {
					select {
					case next, ok := <-sub:
						if !ok {
							return nil
						}
						newCfg = next
					default:
						drained = true
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
}

// applyConfig applies the live-reloadable sections of newCfg.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(ch.Restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.Strings("sections", ch.Restart))
	}

	if ch.Has("logging") {
		if err := a.logs.Apply(newCfg.LogConfig()); err != nil {
			a.log.Warn("log file unavailable", logx.Err(err))
		}
	}
	if ch.Has("notify") {
		if err := a.notif.Apply(newCfg.NotifyConfig()); err != nil {
			a.log.Warn("invalid notify config; keeping previous", logx.Err(err))
		}
	}
	if ch.Has("timer") && a.table != nil {
		a.table.Apply(newCfg.TableConfig())
		// precision may have changed
		a.RequestResync()
	}
	if ch.Has("resync") {
		a.applyResync(newCfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts the host down. Each step is bounded so one component cannot
// stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// cancel first so background loops start unwinding immediately
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("resync", time.Second, func(c context.Context) error { a.stopCron(c); return nil })
	step("metrics", time.Second, func(c context.Context) error { a.server.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	err := a.sup.Err()
	a.log.Info("stopped")
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
