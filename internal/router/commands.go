package router

import (
	"context"
	"errors"
	"strconv"
	"time"

	"relaybot/internal/recipient"
	"relaybot/internal/services/broadcast"
	"relaybot/internal/storage"
	"relaybot/pkg/logx"
)

const defaultWelcome = "👋 <b>Welcome!</b>\n\nYou've been registered for broadcasts. Stay tuned for updates!"

func (r *Router) registerCommands() {
	r.register(&Command{
		Name:        "start",
		Description: "Register for broadcasts",
		Access:      AccessEveryone,
		Handle:      r.cmdStart,
	})
	r.register(&Command{
		Name:        "help",
		Description: "Show admin commands",
		Access:      AccessAdminOnly,
		Handle:      r.cmdHelp,
	})
	r.register(&Command{
		Name:        "about",
		Description: "Show bot information",
		Access:      AccessEveryone,
		Handle:      r.cmdAbout,
	})
	r.register(&Command{
		Name:        "stat",
		Description: "Show reach statistics",
		Access:      AccessAdminOnly,
		Handle:      r.cmdStat,
	})
	r.register(&Command{
		Name:        "check",
		Description: "Check access to a chat",
		Usage:       "/check [chat_id]",
		Access:      AccessAdminOnly,
		Handle:      r.cmdCheck,
	})
	r.register(&Command{
		Name:        "clean",
		Description: "Remove unreachable chats",
		Access:      AccessAdminOnly,
		Handle:      r.cmdClean,
	})
	r.register(&Command{
		Name:        "broadcast",
		Description: "Reply to a message to broadcast it",
		Access:      AccessAdminOnly,
		Handle:      r.cmdBroadcast,
	})
}

// cmdStart registers the user for broadcasts. Only meaningful in private
// chats; in a private chat the chat ID is the user ID.
func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	if !req.Msg.IsPrivate {
		return nil
	}
	r.reg.Add(req.Msg.ChatID, recipient.User)
	welcome := r.currentSettings().Welcome
	if welcome == "" {
		welcome = defaultWelcome
	}
	r.reply(ctx, req.Msg, welcome)
	return nil
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	r.reply(ctx, req.Msg, helpText())
	return nil
}

func (r *Router) cmdAbout(ctx context.Context, req *Request) error {
	r.reply(ctx, req.Msg, aboutText())
	return nil
}

func (r *Router) cmdStat(ctx context.Context, req *Request) error {
	r.reply(ctx, req.Msg, formatStats(r.reg.Stats()))
	return nil
}

func (r *Router) cmdCheck(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		r.reply(ctx, req.Msg, "❌ Usage: /check [chat_id]\nExample: /check -1001234567890")
		return nil
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		r.reply(ctx, req.Msg, "❌ Invalid chat ID. Must be a number.")
		return nil
	}

	status := r.reply(ctx, req.Msg, "🔍 Checking access to "+req.Args[0]+"...")
	start := time.Now()
	res := r.svc.CheckOne(ctx, id)
	r.audit(ctx, req, "check", req.Args[0], boolToInt(res.Alive), boolToInt(!res.Alive), start)

	r.edit(ctx, status, formatCheck(res))
	return nil
}

func (r *Router) cmdClean(ctx context.Context, req *Request) error {
	status := r.reply(ctx, req.Msg, "🧹 Starting cleanup...")
	start := time.Now()
	rep, err := r.svc.Cleanup(ctx)
	if err != nil {
		if errors.Is(err, broadcast.ErrRunInProgress) {
			r.edit(ctx, status, "⏳ A broadcast or cleanup is already running. Try again later.")
			return nil
		}
		r.edit(ctx, status, "❌ Cleanup was interrupted.")
		return err
	}
	r.audit(ctx, req, "clean", "", rep.Active, rep.Removed, start)
	r.edit(ctx, status, formatCleanup(rep))
	return nil
}

func (r *Router) cmdBroadcast(ctx context.Context, req *Request) error {
	if req.Msg.ReplyTo == nil {
		r.reply(ctx, req.Msg, "❌ Please reply to a message with /broadcast to broadcast it.")
		return nil
	}

	total := r.reg.Stats().Total
	status := r.reply(ctx, req.Msg, formatBroadcastStart(total))
	start := time.Now()
	rep, err := r.svc.Run(ctx, *req.Msg.ReplyTo)
	if err != nil {
		switch {
		case errors.Is(err, broadcast.ErrNoRecipients):
			r.edit(ctx, status, "❌ No recipients in database!")
			return nil
		case errors.Is(err, broadcast.ErrRunInProgress):
			r.edit(ctx, status, "⏳ A broadcast is already running. Try again later.")
			return nil
		default:
			r.audit(ctx, req, "broadcast", "", rep.Delivered, rep.Failed, start)
			r.edit(ctx, status, "❌ Broadcast was interrupted.")
			return err
		}
	}
	r.audit(ctx, req, "broadcast", "", rep.Delivered, rep.Failed, start)
	r.edit(ctx, status, formatBroadcastReport(rep))
	return nil
}

// audit records an operator action. Best-effort: a failed append is logged
// and never surfaces to the operator.
func (r *Router) audit(ctx context.Context, req *Request, action, target string, ok, fail int, start time.Time) {
	if r.store == nil {
		return
	}
	e := storage.AuditEntry{
		At:      start,
		ActorID: req.Msg.FromID,
		ChatID:  req.Msg.ChatID,
		Action:  action,
		Target:  target,
		OK:      ok,
		Fail:    fail,
		TookMS:  time.Since(start).Milliseconds(),
	}
	if err := r.store.AppendAudit(ctx, e); err != nil {
		req.Logger.Warn("audit append failed", logx.Err(err))
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
