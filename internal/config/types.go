package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shantoshdurai/ClassNow-app/internal/ident"
	"github.com/shantoshdurai/ClassNow-app/internal/notify"
	"github.com/shantoshdurai/ClassNow-app/internal/observability/metrics"
	"github.com/shantoshdurai/ClassNow-app/internal/storage"
	"github.com/shantoshdurai/ClassNow-app/internal/timer"
	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

// Config is the on-disk configuration (JSON, or YAML by file extension).
// Unknown fields are rejected. Durations are Go duration strings.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Store   StoreConfig   `json:"store"`
	Timer   TimerConfig   `json:"timer"`
	Engine  EngineConfig  `json:"engine"`
	Resync  ResyncConfig  `json:"resync"`
	Notify  NotifyConfig  `json:"notify"`
	Metrics MetricsConfig `json:"metrics"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	// Format is "console" (default) or "json".
	Format string            `json:"format,omitempty"`
	File   LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig points at the event store written by the app.
//
// Driver: "file" (JSON document) or "sqlite".
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// Watch reschedules when the store file changes.
	Watch bool `json:"watch,omitempty"`
}

// TimerConfig selects the timer backend.
//
// Backend: "memory" (in-process, default) or "systemd" (transient units, linux).
type TimerConfig struct {
	Backend             string   `json:"backend"`
	ExactPermission     bool     `json:"exact_permission"`
	GrantExactOnRequest bool     `json:"grant_exact_on_request,omitempty"`
	InexactWindow       string   `json:"inexact_window,omitempty"`
	UnitPrefix          string   `json:"unit_prefix,omitempty"`
	User                bool     `json:"user,omitempty"`
	FireCommand         []string `json:"fire_command,omitempty"`
}

type EngineConfig struct {
	// Timezone is an IANA name; empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`
	// RearmKey is "event_id" (default) or "legacy".
	RearmKey string `json:"rearm_key,omitempty"`
}

// ResyncConfig runs a periodic full pass on a cron schedule.
type ResyncConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec,omitempty"`
}

type NotifyConfig struct {
	Driver     string               `json:"driver"`
	RatePerSec int                  `json:"rate_per_sec,omitempty"`
	Telegram   NotifyTelegramConfig `json:"telegram,omitempty"`
}

type NotifyTelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// MetricsConfig serves /metrics and /healthz. A non-loopback addr needs token.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
	Token   string `json:"token,omitempty"`
}

const (
	DefaultResyncSpec    = "@every 6h"
	DefaultMetricsAddr   = "127.0.0.1:9464"
	DefaultInexactWindow = 5 * time.Minute
)

// Default returns the config used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Store:   StoreConfig{Driver: "file", Path: "./classnow.json"},
		Timer:   TimerConfig{Backend: "memory", ExactPermission: true},
		Resync:  ResyncConfig{Enabled: true, Spec: DefaultResyncSpec},
		Notify:  NotifyConfig{Driver: "log", RatePerSec: 1},
	}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronParser is the parser used for resync.spec.
func CronParser() cron.Parser { return cronParser }

// Validate checks every section and returns all problems joined.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "file", "json", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, errors.New("store.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if _, err := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Timer.Backend)) {
	case "", "memory", "systemd":
	default:
		errs = append(errs, fmt.Errorf("timer.backend: unknown backend %q", c.Timer.Backend))
	}
	if _, err := ParseDurationField("timer.inexact_window", c.Timer.InexactWindow); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ident.ParseMode(c.Engine.RearmKey); err != nil {
		errs = append(errs, fmt.Errorf("engine.rearm_key: %w", err))
	}
	if c.Resync.Enabled {
		if _, err := cronParser.Parse(c.ResyncSpec()); err != nil {
			errs = append(errs, fmt.Errorf("resync.spec: %w", err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Notify.Driver)) {
	case "", "log", "none", "off":
	case "telegram":
		if strings.TrimSpace(c.Notify.Telegram.Token) == "" || c.Notify.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("notify.telegram: token and chat_id are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.driver: unknown driver %q", c.Notify.Driver))
	}
	if c.Notify.RatePerSec < 0 {
		errs = append(errs, errors.New("notify.rate_per_sec must be >= 0"))
	}
	return errors.Join(errs...)
}

// Location resolves engine.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Engine.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) ResyncSpec() string {
	if s := strings.TrimSpace(c.Resync.Spec); s != "" {
		return s
	}
	return DefaultResyncSpec
}

func (c *Config) MetricsAddr() string {
	if s := strings.TrimSpace(c.Metrics.Addr); s != "" {
		return s
	}
	return DefaultMetricsAddr
}

func (c *Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		Enabled: c.Metrics.Enabled,
		Addr:    c.MetricsAddr(),
		Pprof:   c.Metrics.Pprof,
		Token:   c.Metrics.Token,
	}
}

func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		Format:  c.Logging.Format,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}

func (c *Config) StorageConfig() storage.Config {
	bt, _ := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout)
	return storage.Config{Driver: c.Store.Driver, Path: c.Store.Path, BusyTimeout: bt}
}

func (c *Config) TableConfig() timer.TableConfig {
	w, _ := ParseDurationOrDefault("timer.inexact_window", c.Timer.InexactWindow, DefaultInexactWindow)
	return timer.TableConfig{
		ExactPermission: c.Timer.ExactPermission,
		GrantOnRequest:  c.Timer.GrantExactOnRequest,
		InexactWindow:   w,
	}
}

func (c *Config) SystemdConfig() timer.SystemdConfig {
	w, _ := ParseDurationField("timer.inexact_window", c.Timer.InexactWindow)
	return timer.SystemdConfig{
		UnitPrefix:      c.Timer.UnitPrefix,
		FireCommand:     append([]string(nil), c.Timer.FireCommand...),
		User:            c.Timer.User,
		ExactPermission: c.Timer.ExactPermission,
		GrantOnRequest:  c.Timer.GrantExactOnRequest,
		InexactAccuracy: w,
	}
}

func (c *Config) NotifyConfig() notify.Config {
	return notify.Config{
		Driver:     c.Notify.Driver,
		RatePerSec: c.Notify.RatePerSec,
		Telegram: notify.TelegramConfig{
			Token:    c.Notify.Telegram.Token,
			ChatID:   c.Notify.Telegram.ChatID,
			ThreadID: c.Notify.Telegram.ThreadID,
		},
	}
}

func (c *Config) RearmKey() ident.Mode {
	m, err := ident.ParseMode(c.Engine.RearmKey)
	if err != nil {
		return ident.ModeEventID
	}
	return m
}
