// Package telegram implements the transport contract on telebot's long-poll
// client.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"relaybot/internal/runtime/supervisor"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	out     atomic.Value // stores (chan<- transport.Update)
	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}

	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.push(transport.Update{
			Kind:    transport.UpdateMessage,
			Message: mapMessage(m),
		})
		return nil
	})

	a.bot.Handle(tele.OnMyChatMember, func(c tele.Context) error {
		cm := c.ChatMember()
		if cm == nil || cm.Chat == nil || cm.NewChatMember == nil {
			return nil
		}
		a.push(transport.Update{
			Kind: transport.UpdateMembership,
			Membership: &transport.MembershipChange{
				ChatID:    cm.Chat.ID,
				ChatKind:  mapChatKind(cm.Chat.Type),
				ChatTitle: cm.Chat.Title,
				NewStatus: transport.MemberStatus(cm.NewChatMember.Role),
			},
		})
		return nil
	})
}

func mapMessage(m *tele.Message) *transport.Message {
	msg := &transport.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		Text:         m.Text,
		IsPrivate:    m.Chat.Type == tele.ChatPrivate,
	}
	if m.ReplyTo != nil && m.ReplyTo.Chat != nil {
		msg.ReplyTo = &transport.MessageRef{
			ChatID:    m.ReplyTo.Chat.ID,
			MessageID: m.ReplyTo.ID,
		}
	}
	return msg
}

func mapChatKind(t tele.ChatType) transport.ChatKind {
	switch t {
	case tele.ChatPrivate:
		return transport.ChatPrivate
	case tele.ChatGroup:
		return transport.ChatGroup
	case tele.ChatSuperGroup:
		return transport.ChatSuperGroup
	case tele.ChatChannel, tele.ChatChannelPrivate:
		return transport.ChatChannel
	default:
		return transport.ChatKind(t)
	}
}

func (a *Adapter) push(u transport.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- u:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = supervisor.New(ctx, a.log.With(logx.String("comp", "telegram.adapter")))
	sup := a.sup
	a.runMu.Unlock()

	// Periodic summary for dropped updates.
	sup.Go("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				if n := a.droppedUpdates.Swap(0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
				}
				return
			case <-ticker.C:
				if n := a.droppedUpdates.Swap(0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
				}
			}
		}
	})

	sup.Go("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start() is a long-running loop; in some failure modes it can
	// exit unexpectedly, so run it under a restart loop.
	sup.GoRestart("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	}, 500*time.Millisecond, 10*time.Second)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}

	// Keep shutdown snappy even if the long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if sup != nil {
		if err := sup.Wait(wctx); err != nil {
			a.log.Warn("telegram stop timed out", logx.Err(err))
		}
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: chatID}, text, sendOptions(opt))
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(m, text, sendOptions(opt))
	return err
}

func (a *Adapter) CopyMessage(ctx context.Context, targetChatID int64, src transport.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := tele.StoredMessage{
		MessageID: strconv.Itoa(src.MessageID),
		ChatID:    src.ChatID,
	}
	_, err := a.bot.Copy(&tele.Chat{ID: targetChatID}, stored)
	return err
}

func (a *Adapter) ChatInfo(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.ChatByID(chatID)
	return err
}

func sendOptions(opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		return &tele.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
}
