package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"relaybot/internal/recipient"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

var (
	// ErrNoRecipients signals that a run was requested on an empty store.
	// No report is produced and no dispatch is attempted.
	ErrNoRecipients = errors.New("no recipients")

	// ErrRunInProgress rejects a run (or cleanup) while another holds the
	// engine. Overlapping fan-outs would double-spend the outbound rate
	// budget and race on removals.
	ErrRunInProgress = errors.New("a run is already in progress")
)

// Transport is the platform surface the engine needs: one copy-message send
// and one reachability probe.
type Transport interface {
	CopyMessage(ctx context.Context, targetChatID int64, src transport.MessageRef) error
	ChatInfo(ctx context.Context, chatID int64) error
}

type Config struct {
	// SendInterval is the minimum delay between consecutive dispatches.
	SendInterval time.Duration
}

const defaultSendInterval = 50 * time.Millisecond

// Service drives broadcasts, cleanups, and single-target checks against the
// shared recipient registry.
type Service struct {
	tr  Transport
	reg *recipient.Registry
	log logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
	running bool
}

func New(cfg Config, tr Transport, reg *recipient.Registry, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		tr:      tr,
		reg:     reg,
		log:     log,
		limiter: newLimiter(cfg.SendInterval),
	}
}

// Apply swaps the pacing configuration at runtime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.limiter = newLimiter(cfg.SendInterval)
	s.mu.Unlock()
}

// Running reports whether a broadcast or cleanup currently holds the engine.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunInProgress
	}
	s.running = true
	return nil
}

func (s *Service) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Service) wait(ctx context.Context) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	if lim == nil {
		return ctx.Err()
	}
	return lim.Wait(ctx)
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		interval = defaultSendInterval
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
