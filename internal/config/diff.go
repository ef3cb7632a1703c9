package config

import (
	"reflect"
	"strings"

	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

// Change summarizes a config reload.
type Change struct {
	// Sections lists changed top-level sections in file order.
	Sections []string
	// Fields are safe log attributes (tokens are never included).
	Fields []logx.Field
	// Restart lists changed sections that only take effect after a restart.
	Restart []string
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Store, newCfg.Store) {
		ch.Sections = append(ch.Sections, "store")
		ch.Restart = append(ch.Restart, "store")
		ch.Fields = append(ch.Fields,
			logx.String("store.driver", newCfg.Store.Driver),
			logx.String("store.path", newCfg.Store.Path),
		)
	}
	if !reflect.DeepEqual(oldCfg.Timer, newCfg.Timer) {
		ch.Sections = append(ch.Sections, "timer")
		if !strings.EqualFold(oldCfg.Timer.Backend, newCfg.Timer.Backend) ||
			oldCfg.Timer.User != newCfg.Timer.User ||
			oldCfg.Timer.UnitPrefix != newCfg.Timer.UnitPrefix ||
			!reflect.DeepEqual(oldCfg.Timer.FireCommand, newCfg.Timer.FireCommand) {
			ch.Restart = append(ch.Restart, "timer")
		}
		ch.Fields = append(ch.Fields,
			logx.String("timer.backend", newCfg.Timer.Backend),
			logx.Bool("timer.exact_permission", newCfg.Timer.ExactPermission),
		)
	}
	if oldCfg.Engine != newCfg.Engine {
		ch.Sections = append(ch.Sections, "engine")
		ch.Restart = append(ch.Restart, "engine")
		ch.Fields = append(ch.Fields,
			logx.String("engine.timezone", newCfg.Engine.Timezone),
			logx.String("engine.rearm_key", newCfg.Engine.RearmKey),
		)
	}
	if oldCfg.Resync != newCfg.Resync {
		ch.Sections = append(ch.Sections, "resync")
		ch.Fields = append(ch.Fields,
			logx.Bool("resync.enabled", newCfg.Resync.Enabled),
			logx.String("resync.spec", newCfg.Resync.Spec),
		)
	}
	if oldCfg.Notify != newCfg.Notify {
		ch.Sections = append(ch.Sections, "notify")
		ch.Fields = append(ch.Fields,
			logx.String("notify.driver", newCfg.Notify.Driver),
			logx.Int("notify.rate_per_sec", newCfg.Notify.RatePerSec),
			logx.Bool("notify.telegram_token_set", strings.TrimSpace(newCfg.Notify.Telegram.Token) != ""),
		)
	}
	if oldCfg.Metrics != newCfg.Metrics {
		ch.Sections = append(ch.Sections, "metrics")
		ch.Restart = append(ch.Restart, "metrics")
		ch.Fields = append(ch.Fields,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
		)
	}
	return ch
}
