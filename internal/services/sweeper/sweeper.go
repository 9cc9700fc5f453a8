// Package sweeper runs scheduled cleanup sweeps so stale recipients get
// pruned without waiting for an operator /clean.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"relaybot/internal/services/broadcast"
	"relaybot/pkg/logx"
)

// sweepTimeout bounds one sweep; probing is paced by the engine's limiter,
// so very large recipient sets take minutes, not seconds.
const sweepTimeout = 30 * time.Minute

type Service struct {
	cron *cron.Cron
	svc  *broadcast.Service
	log  logx.Logger
}

// New schedules cleanup runs on the given cron spec (standard 5-field
// format, e.g. "0 4 * * 1" for 04:00 every Monday).
func New(schedule string, svc *broadcast.Service, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{cron: cron.New(), svc: svc, log: log}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Start() {
	s.cron.Start()
	s.log.Info("scheduled cleanup enabled")
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	rep, err := s.svc.Cleanup(ctx)
	if err != nil {
		// A broadcast holds the engine; skip this slot rather than queue.
		if errors.Is(err, broadcast.ErrRunInProgress) {
			s.log.Info("scheduled cleanup skipped: engine busy")
			return
		}
		s.log.Warn("scheduled cleanup failed", logx.Err(err))
		return
	}
	s.log.Info("scheduled cleanup finished",
		logx.Int("checked", rep.Checked),
		logx.Int("removed", rep.Removed),
		logx.Int("active", rep.Active))
}
