// Package router parses operator commands from the update stream and
// dispatches them to the broadcast engine and the recipient registry.
package router

import (
	"context"
	"strings"
	"sync"

	"relaybot/internal/recipient"
	"relaybot/internal/services/broadcast"
	"relaybot/internal/storage"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Description string
	Usage       string
	Access      Access
	Handle      HandlerFunc
}

// Request carries one parsed command invocation.
type Request struct {
	Msg     *transport.Message
	Command string
	Args    []string
	Logger  logx.Logger
}

// Settings is the hot-reloadable part of the router configuration.
type Settings struct {
	AdminGroupID int64
	AdminUserIDs []int64
	Welcome      string
}

type Router struct {
	adapter transport.Adapter
	reg     *recipient.Registry
	svc     *broadcast.Service
	store   storage.Backend
	log     logx.Logger

	mu       sync.RWMutex
	settings Settings

	commands map[string]*Command
	chain    []Middleware
}

func New(settings Settings, adapter transport.Adapter, reg *recipient.Registry, svc *broadcast.Service, store storage.Backend, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		adapter:  adapter,
		reg:      reg,
		svc:      svc,
		store:    store,
		log:      log,
		settings: settings,
		commands: map[string]*Command{},
	}
	r.chain = []Middleware{
		MWPanicRecover(log),
		MWRequestLog(log),
		r.MWAccess(),
	}
	r.registerCommands()
	return r
}

// Apply swaps the hot-reloadable settings (admin allowlist, texts).
func (r *Router) Apply(settings Settings) {
	r.mu.Lock()
	r.settings = settings
	r.mu.Unlock()
}

func (r *Router) currentSettings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// isAdmin reports whether the message comes from the admin group or a
// listed admin user.
func (r *Router) isAdmin(msg *transport.Message) bool {
	s := r.currentSettings()
	if s.AdminGroupID != 0 && msg.ChatID == s.AdminGroupID {
		return true
	}
	for _, id := range s.AdminUserIDs {
		if id == msg.FromID {
			return true
		}
	}
	return false
}

func (r *Router) register(cmd *Command) {
	r.commands[cmd.Name] = cmd
}

// Run consumes updates until ctx is cancelled or the channel closes.
// Commands execute inline: one logical worker drives the command stream, so
// a long /broadcast naturally serializes with other commands while the
// reconciler keeps running on its own subscription.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Kind == transport.UpdateMessage && u.Message != nil {
				r.handleMessage(ctx, u.Message)
			}
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *transport.Message) {
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	cmd, ok := r.commands[name]
	if !ok {
		return
	}

	req := &Request{
		Msg:     msg,
		Command: name,
		Args:    args,
		Logger: r.log.With(
			logx.String("cmd", name),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID)),
	}
	h := Chain(cmd.Handle, r.chain...)
	if err := h(ctx, req); err != nil {
		req.Logger.Warn("command failed", logx.Err(err))
	}
}

// parseCommand extracts a command name and its arguments from message text.
// "/check@relay_bot -100123" yields ("check", ["-100123"], true).
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

func (r *Router) reply(ctx context.Context, msg *transport.Message, text string) transport.MessageRef {
	ref, err := r.adapter.SendText(ctx, msg.ChatID, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
	return ref
}

func (r *Router) edit(ctx context.Context, ref transport.MessageRef, text string) {
	if ref.ChatID == 0 {
		return
	}
	if err := r.adapter.EditText(ctx, ref, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		r.log.Warn("status edit failed", logx.Int64("chat_id", ref.ChatID), logx.Err(err))
	}
}
