package broadcast

import (
	"context"
	"time"

	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

// Report aggregates one broadcast run.
//
// Invariant: Delivered + Failed == Attempted for a run that completed the
// full pass.
type Report struct {
	Attempted int
	Delivered int
	Failed    int
	// Removed counts recipients evicted during this run for permanent
	// dispatch failures.
	Removed int
	// Unreachable counts failed recipients the post-pass probe could not
	// reach. Informational only; the probe never evicts anyone.
	Unreachable int
	FailedIDs   []int64
	Elapsed     time.Duration
}

// SuccessRate is Delivered/Attempted in percent. Zero attempted never
// happens for a produced report (the empty store short-circuits the run).
func (r Report) SuccessRate() float64 {
	if r.Attempted == 0 {
		return 0
	}
	return float64(r.Delivered) / float64(r.Attempted) * 100
}

// Run fans src out to every tracked recipient, sequentially and rate
// limited. Permanent failures are pruned from the registry immediately;
// transient failures are recorded but retained. After the pass, recorded
// failures are re-probed so the report can say how many of them look
// unreachable right now; the probe itself never removes anyone (a transient
// blip may hit both the send and the probe, and /clean exists for deliberate
// pruning).
//
// A second Run (or Cleanup) while one is active returns ErrRunInProgress.
// Cancelling ctx stops the loop between dispatches; the partial report is
// returned along with the context error.
func (s *Service) Run(ctx context.Context, src transport.MessageRef) (Report, error) {
	if err := s.begin(); err != nil {
		return Report{}, err
	}
	defer s.end()

	ids := s.reg.All()
	if len(ids) == 0 {
		return Report{}, ErrNoRecipients
	}

	start := time.Now()
	rep := Report{Attempted: len(ids)}
	s.log.Info("broadcast started",
		logx.Int("recipients", len(ids)),
		logx.Int64("src_chat_id", src.ChatID),
		logx.Int("src_message_id", src.MessageID))

	for _, id := range ids {
		if err := s.wait(ctx); err != nil {
			rep.Elapsed = time.Since(start)
			return rep, err
		}

		err := s.tr.CopyMessage(ctx, id, src)
		switch Classify(err) {
		case Delivered:
			rep.Delivered++
		case PermanentFailure:
			rep.Failed++
			rep.FailedIDs = append(rep.FailedIDs, id)
			if s.reg.Remove(id) {
				rep.Removed++
			}
			s.log.Warn("dispatch failed permanently; recipient removed",
				logx.Int64("chat_id", id), logx.Err(err))
		case TransientFailure:
			rep.Failed++
			rep.FailedIDs = append(rep.FailedIDs, id)
			s.log.Warn("dispatch failed", logx.Int64("chat_id", id), logx.Err(err))
		}
	}

	// Count how many of the failed recipients are unreachable right now.
	// This probes only; delivery is never retried and nothing is evicted.
	for _, id := range rep.FailedIDs {
		if !s.reg.Contains(id) {
			continue
		}
		if err := s.wait(ctx); err != nil {
			rep.Elapsed = time.Since(start)
			return rep, err
		}
		if err := s.tr.ChatInfo(ctx, id); err != nil {
			rep.Unreachable++
			s.log.Info("failed recipient currently unreachable",
				logx.Int64("chat_id", id), logx.Err(err))
		}
	}

	rep.Elapsed = time.Since(start)
	s.log.Info("broadcast finished",
		logx.Int("attempted", rep.Attempted),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
		logx.Int("removed", rep.Removed),
		logx.Int("unreachable", rep.Unreachable),
		logx.Duration("elapsed", rep.Elapsed))
	return rep, nil
}
