// Package reconcile keeps the recipient registry consistent with
// platform-pushed membership changes, independent of broadcast runs: the bot
// being added to a chat registers it, the bot being removed evicts it.
package reconcile

import (
	"context"

	"relaybot/internal/recipient"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

// Sender is the single outbound call the reconciler makes: the best-effort
// greeting after joining a group.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Config struct {
	// Greeting is sent after the bot joins a group. Empty disables it.
	Greeting string
}

type Service struct {
	cfg Config
	reg *recipient.Registry
	tr  Sender
	log logx.Logger
}

func New(cfg Config, reg *recipient.Registry, tr Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, reg: reg, tr: tr, log: log}
}

// Run consumes updates until ctx is cancelled or the channel closes. It only
// reacts to membership changes; everything else on the stream is ignored.
func (s *Service) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Kind == transport.UpdateMembership && u.Membership != nil {
				s.Handle(ctx, *u.Membership)
			}
		}
	}
}

// Handle applies one membership change to the registry.
//
// Statuses outside the known set are no-ops: the platform may extend the
// status vocabulary and an unknown value must not evict anyone.
func (s *Service) Handle(ctx context.Context, ev transport.MembershipChange) {
	switch ev.NewStatus {
	case transport.StatusMember, transport.StatusAdministrator, transport.StatusCreator:
		switch ev.ChatKind {
		case transport.ChatGroup, transport.ChatSuperGroup:
			s.reg.Add(ev.ChatID, recipient.Group)
			s.log.Info("joined group",
				logx.Int64("chat_id", ev.ChatID), logx.String("title", ev.ChatTitle))
			s.greet(ctx, ev.ChatID)
		case transport.ChatChannel:
			s.reg.Add(ev.ChatID, recipient.Channel)
			s.log.Info("joined channel",
				logx.Int64("chat_id", ev.ChatID), logx.String("title", ev.ChatTitle))
		}
	case transport.StatusLeft, transport.StatusKicked:
		if s.reg.Remove(ev.ChatID) {
			s.log.Info("left chat; recipient removed",
				logx.Int64("chat_id", ev.ChatID), logx.String("title", ev.ChatTitle))
		}
	default:
		s.log.Debug("ignoring membership status",
			logx.Int64("chat_id", ev.ChatID), logx.String("status", string(ev.NewStatus)))
	}
}

// greet sends the courtesy message after joining a group. Strictly
// best-effort: the bot may lack send permission, and a failed greeting must
// never affect the registration that already happened.
func (s *Service) greet(ctx context.Context, chatID int64) {
	if s.cfg.Greeting == "" || s.tr == nil {
		return
	}
	if _, err := s.tr.SendText(ctx, chatID, s.cfg.Greeting, nil); err != nil {
		s.log.Debug("greeting failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}
