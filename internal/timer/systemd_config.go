package timer

import (
	"time"

	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
)

const (
	DefaultUnitPrefix      = "classnow-reminder"
	defaultInexactAccuracy = 10 * time.Minute
)

// SystemdConfig controls the systemd backend.
type SystemdConfig struct {
	UnitPrefix string
	// FireCommand is the argv prefix run when a timer elapses.
	// Defaults to "<this executable> fire".
	FireCommand []string
	// User selects the per-user service manager instead of the system one.
	User            bool
	ExactPermission bool
	GrantOnRequest  bool
	// InexactAccuracy is AccuracySec for timers armed without exact permission.
	InexactAccuracy time.Duration
}

func (c SystemdConfig) withDefaults() SystemdConfig {
	if c.UnitPrefix == "" {
		c.UnitPrefix = DefaultUnitPrefix
	}
	if c.InexactAccuracy <= 0 {
		c.InexactAccuracy = defaultInexactAccuracy
	}
	return c
}

func (c SystemdConfig) accuracy(p reminder.Precision) time.Duration {
	if p == reminder.Exact {
		return time.Second
	}
	return c.InexactAccuracy
}
