package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

// Service rate-limits and delivers reminders. It is safe for concurrent use.
type Service struct {
	log logx.Logger

	mu      sync.Mutex
	sink    Sink
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log}
	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply swaps the sink and limiter. On error the previous sink stays active.
func (s *Service) Apply(cfg Config) error {
	sink, err := newSink(cfg, s.log)
	if err != nil {
		return err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	s.mu.Lock()
	s.sink = sink
	// burst = rate so a handful of same-minute reminders go out together
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	s.mu.Unlock()
	return nil
}

func newSink(cfg Config, log logx.Logger) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "log":
		return logSink{log: log}, nil
	case "none", "off":
		return nopSink{}, nil
	case "telegram":
		return newTelegramSink(cfg.Telegram)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// SinkName reports the active sink.
func (s *Service) SinkName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink.Name()
}

// Notify formats p and sends it, waiting for the rate limiter.
func (s *Service) Notify(ctx context.Context, p reminder.Payload) error {
	s.mu.Lock()
	sink, lim := s.sink, s.limiter
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return err
	}
	m := Format(p)
	if err := sink.Send(ctx, m); err != nil {
		s.log.Warn("reminder delivery failed", logx.String("sink", sink.Name()), logx.String("title", p.Title), logx.Err(err))
		return fmt.Errorf("notify %s: %w", sink.Name(), err)
	}
	s.log.Debug("reminder delivered", logx.String("sink", sink.Name()), logx.String("title", p.Title))
	return nil
}
