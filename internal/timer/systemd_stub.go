//go:build !linux

package timer

import (
	"context"
	"time"

	"github.com/shantoshdurai/ClassNow-app/internal/eventbus"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

type Systemd struct{}

func NewSystemd(ctx context.Context, cfg SystemdConfig, log logx.Logger, bus eventbus.Bus) (*Systemd, error) {
	return nil, ErrUnsupported
}

func (s *Systemd) Close() error { return nil }

func (s *Systemd) HasExactPermission(ctx context.Context) bool { return false }

func (s *Systemd) RequestExactPermission(ctx context.Context) error { return ErrUnsupported }

func (s *Systemd) Arm(ctx context.Context, id int32, at time.Time, exact bool, p reminder.Payload) (reminder.Precision, error) {
	return "", ErrUnsupported
}

func (s *Systemd) Cancel(ctx context.Context, id int32) error { return ErrUnsupported }

func (s *Systemd) Armed(ctx context.Context) ([]reminder.ArmedTimer, error) {
	return nil, ErrUnsupported
}
