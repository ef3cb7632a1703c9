//go:build linux

package timer

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	sdbus "github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/shantoshdurai/ClassNow-app/internal/eventbus"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

// unitManager is the slice of the systemd manager API the backend uses.
type unitManager interface {
	// StartTransient starts the transient unit name together with aux.
	StartTransient(ctx context.Context, name string, props []sdbus.Property, aux []auxUnit) error
	// Stop stops name and waits for the job. A unit that is not loaded is not an error.
	Stop(ctx context.Context, name string) error
	// ListTimers returns the names of loaded units matching patterns.
	ListTimers(ctx context.Context, patterns []string) ([]string, error)
	Close() error
}

// Systemd arms transient systemd timers. Each arming creates its own
// "<prefix>-<id>-<arm>.timer" and matching oneshot service, which runs
// FireCommand with the encoded payload appended as "--payload <b64>".
// A fired service can therefore re-arm its own correlation id while it is
// still active.
type Systemd struct {
	log logx.Logger
	bus eventbus.Bus
	cfg SystemdConfig

	mu    sync.Mutex
	units unitManager
	exact bool
}

func NewSystemd(ctx context.Context, cfg SystemdConfig, log logx.Logger, bus eventbus.Bus) (*Systemd, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.withDefaults()
	if len(cfg.FireCommand) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		cfg.FireCommand = []string{exe, "fire"}
	}
	units, err := dialUnits(ctx, cfg.User)
	if err != nil {
		return nil, err
	}
	return newSystemd(cfg, units, log, bus), nil
}

func newSystemd(cfg SystemdConfig, units unitManager, log logx.Logger, bus eventbus.Bus) *Systemd {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Systemd{log: log, bus: bus, cfg: cfg.withDefaults(), units: units, exact: cfg.ExactPermission}
}

func (s *Systemd) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.units == nil {
		return nil
	}
	err := s.units.Close()
	s.units = nil
	return err
}

func (s *Systemd) HasExactPermission(ctx context.Context) bool {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exact
}

// RequestExactPermission grants exact timers when GrantOnRequest is set.
// There is no user-facing prompt; AccuracySec is under our control.
func (s *Systemd) RequestExactPermission(ctx context.Context) error {
	_ = ctx
	s.publish(EventExactRequested)
	s.mu.Lock()
	grant := s.cfg.GrantOnRequest && !s.exact
	if grant {
		s.exact = true
	}
	s.mu.Unlock()
	if grant {
		s.log.Info("exact timer permission granted")
		s.publish(EventExactGranted)
	}
	return nil
}

func (s *Systemd) Arm(ctx context.Context, id int32, at time.Time, exact bool, p reminder.Payload) (reminder.Precision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.units == nil {
		return "", ErrClosed
	}

	prec := reminder.Exact
	if !exact || !s.exact {
		prec = reminder.Inexact
	}
	arg, err := EncodePayload(p)
	if err != nil {
		return "", err
	}

	if err := s.stopAllLocked(ctx, id); err != nil {
		return "", err
	}

	name := armingName(s.cfg.UnitPrefix, id, p.ArmID)

	timerProps := timerProperties(p, at, s.cfg.accuracy(prec))
	aux := []auxUnit{{
		Name:       name + ".service",
		Properties: serviceProperties(p, append(append([]string(nil), s.cfg.FireCommand...), "--payload", arg)),
	}}
	if err := s.units.StartTransient(ctx, name+".timer", timerProps, aux); err != nil {
		return "", fmt.Errorf("start %s.timer: %w", name, err)
	}

	s.log.Debug("systemd timer armed",
		logx.String("unit", name+".timer"),
		logx.Time("at", at),
		logx.String("precision", string(prec)),
	)
	return prec, nil
}

func (s *Systemd) Cancel(ctx context.Context, id int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.units == nil {
		return ErrClosed
	}
	return s.stopAllLocked(ctx, id)
}

// stopAllLocked stops every loaded timer of id. Services already started by
// an elapsed timer are left to finish.
func (s *Systemd) stopAllLocked(ctx context.Context, id int32) error {
	base := unitBase(s.cfg.UnitPrefix, id)
	names, err := s.units.ListTimers(ctx, []string{base + ".timer", base + "-*.timer"})
	if err != nil {
		return fmt.Errorf("list %s timers: %w", base, err)
	}
	for _, name := range names {
		if err := s.units.Stop(ctx, name); err != nil {
			return fmt.Errorf("stop %s: %w", name, err)
		}
	}
	return nil
}

// Armed lists the loaded reminder timers. Payloads are not recoverable from
// unit state, only correlation ids.
func (s *Systemd) Armed(ctx context.Context) ([]reminder.ArmedTimer, error) {
	s.mu.Lock()
	units := s.units
	s.mu.Unlock()
	if units == nil {
		return nil, ErrClosed
	}
	names, err := units.ListTimers(ctx, []string{s.cfg.UnitPrefix + "-*.timer"})
	if err != nil {
		return nil, err
	}
	seen := make(map[int32]bool, len(names))
	out := make([]reminder.ArmedTimer, 0, len(names))
	for _, name := range names {
		id, ok := parseUnitID(s.cfg.UnitPrefix, name)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, reminder.ArmedTimer{CorrelationID: id})
	}
	return out, nil
}

func (s *Systemd) publish(typ string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ})
}

// dbusUnits talks to the service manager. go-systemd only exposes
// StartTransientUnit without auxiliary units, so that call goes through a
// raw bus connection.
type dbusUnits struct {
	conn *sdbus.Conn
	raw  *godbus.Conn
}

func dialUnits(ctx context.Context, user bool) (*dbusUnits, error) {
	var (
		conn *sdbus.Conn
		raw  *godbus.Conn
		err  error
	)
	if user {
		conn, err = sdbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = sdbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	if user {
		raw, err = godbus.ConnectSessionBus(godbus.WithContext(ctx))
	} else {
		raw, err = godbus.ConnectSystemBus(godbus.WithContext(ctx))
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to bus: %w", err)
	}
	return &dbusUnits{conn: conn, raw: raw}, nil
}

func (d *dbusUnits) StartTransient(ctx context.Context, name string, props []sdbus.Property, aux []auxUnit) error {
	obj := d.raw.Object("org.freedesktop.systemd1", godbus.ObjectPath("/org/freedesktop/systemd1"))
	var job godbus.ObjectPath
	return obj.CallWithContext(ctx, "org.freedesktop.systemd1.Manager.StartTransientUnit", 0,
		name, "replace", props, aux).Store(&job)
}

func (d *dbusUnits) Stop(ctx context.Context, name string) error {
	done := make(chan string, 1)
	if _, err := d.conn.StopUnitContext(ctx, name, "replace", done); err != nil {
		if isNoSuchUnitErr(err) {
			return nil
		}
		return err
	}
	select {
	case res := <-done:
		if res != "done" {
			return fmt.Errorf("stop job %s", res)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *dbusUnits) ListTimers(ctx context.Context, patterns []string) ([]string, error) {
	units, err := d.conn.ListUnitsByPatternsContext(ctx, []string{"active", "activating", "waiting"}, patterns)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u.Name)
	}
	return names, nil
}

func (d *dbusUnits) Close() error {
	d.conn.Close()
	return d.raw.Close()
}

type auxUnit struct {
	Name       string
	Properties []sdbus.Property
}

type calendarSpec struct {
	Base string
	Spec string
}

func timerProperties(p reminder.Payload, at time.Time, accuracy time.Duration) []sdbus.Property {
	return []sdbus.Property{
		sdbus.PropDescription("classnow reminder timer: " + p.Title),
		{Name: "TimersCalendar", Value: godbus.MakeVariant([]calendarSpec{{Base: "OnCalendar", Spec: calendarAt(at)}})},
		{Name: "AccuracyUSec", Value: godbus.MakeVariant(uint64(accuracy / time.Microsecond))},
		{Name: "WakeSystem", Value: godbus.MakeVariant(true)},
		{Name: "RemainAfterElapse", Value: godbus.MakeVariant(false)},
	}
}

func serviceProperties(p reminder.Payload, argv []string) []sdbus.Property {
	return []sdbus.Property{
		sdbus.PropDescription("classnow reminder: " + p.Title),
		sdbus.PropExecStart(argv, false),
		{Name: "Type", Value: godbus.MakeVariant("oneshot")},
		// failed runs are unloaded too; every arming has its own name
		{Name: "CollectMode", Value: godbus.MakeVariant("inactive-or-failed")},
	}
}

func isNoSuchUnitErr(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not loaded")
}

// unitBase renders the per-id part of unit names. Ids are printed as unsigned
// hex so negative hashes stay valid unit name characters.
func unitBase(prefix string, id int32) string {
	return fmt.Sprintf("%s-%08x", prefix, uint32(id))
}

// armingName is the unit name without suffix for one arming of id.
func armingName(prefix string, id int32, armID string) string {
	tag := strings.ReplaceAll(armID, "-", "")
	if len(tag) < 12 || strings.Trim(tag, "0123456789abcdef") != "" {
		tag = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return unitBase(prefix, id) + "-" + tag[:12]
}

// parseUnitID accepts "<prefix>-<id>.timer" and "<prefix>-<id>-<arm>.timer".
func parseUnitID(prefix, unit string) (int32, bool) {
	name, ok := strings.CutSuffix(unit, ".timer")
	if !ok {
		return 0, false
	}
	rest, ok := strings.CutPrefix(name, prefix+"-")
	if !ok {
		return 0, false
	}
	hex, tag, tagged := strings.Cut(rest, "-")
	if len(hex) != 8 || (tagged && tag == "") {
		return 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	return int32(uint32(v)), true
}

func calendarAt(at time.Time) string {
	return at.UTC().Format("2006-01-02 15:04:05") + " UTC"
}
