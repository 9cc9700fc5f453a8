package broadcast

import (
	"context"
	"time"

	"relaybot/pkg/logx"
)

// CleanupReport summarizes one cleanup sweep.
type CleanupReport struct {
	Checked int
	Removed int
	Active  int
	Elapsed time.Duration
}

// CheckResult is the outcome of a single-target reachability check.
type CheckResult struct {
	ChatID  int64
	Alive   bool
	Removed bool
}

// Cleanup probes every tracked recipient and evicts the unreachable ones.
// It shares the engine guard with Run, so a cleanup never overlaps a
// broadcast.
//
// A recipient is removed on the first negative probe. A transient network
// blip can therefore evict a live chat; it re-registers on its next
// interaction or membership event.
func (s *Service) Cleanup(ctx context.Context) (CleanupReport, error) {
	if err := s.begin(); err != nil {
		return CleanupReport{}, err
	}
	defer s.end()

	ids := s.reg.All()
	start := time.Now()
	rep := CleanupReport{Checked: len(ids)}
	s.log.Info("cleanup started", logx.Int("recipients", len(ids)))

	for _, id := range ids {
		if err := s.wait(ctx); err != nil {
			rep.Active = rep.Checked - rep.Removed
			rep.Elapsed = time.Since(start)
			return rep, err
		}
		if err := s.tr.ChatInfo(ctx, id); err != nil {
			if s.reg.Remove(id) {
				rep.Removed++
			}
			s.log.Info("lost access; recipient removed", logx.Int64("chat_id", id), logx.Err(err))
		}
	}

	rep.Active = rep.Checked - rep.Removed
	rep.Elapsed = time.Since(start)
	s.log.Info("cleanup finished",
		logx.Int("checked", rep.Checked),
		logx.Int("removed", rep.Removed),
		logx.Int("active", rep.Active),
		logx.Duration("elapsed", rep.Elapsed))
	return rep, nil
}

// CheckOne probes a single chat ID. If the bot lost access, the recipient is
// removed from the registry (when it was tracked at all).
func (s *Service) CheckOne(ctx context.Context, id int64) CheckResult {
	res := CheckResult{ChatID: id}
	if err := s.tr.ChatInfo(ctx, id); err != nil {
		res.Removed = s.reg.Remove(id)
		s.log.Info("check: chat unreachable",
			logx.Int64("chat_id", id), logx.Bool("removed", res.Removed), logx.Err(err))
		return res
	}
	res.Alive = true
	return res
}
