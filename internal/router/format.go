package router

import (
	"fmt"
	"strings"

	"relaybot/internal/recipient"
	"relaybot/internal/services/broadcast"
)

func helpText() string {
	return strings.TrimSpace(`
📚 <b>Admin Commands</b>

<b>Broadcasting:</b>
/broadcast - Reply to any message to broadcast it

<b>Statistics:</b>
/stat - View current reach statistics

<b>Maintenance:</b>
/check [ID] - Check if the bot has access to a chat
/clean - Remove all unreachable chats

<b>Information:</b>
/about - Show bot information
/help - Show this menu
`)
}

func aboutText() string {
	return strings.TrimSpace(`
🤖 <b>Broadcast Relay</b>

Registers users, groups, and channels and relays admin broadcasts to all of them, pruning recipients the bot can no longer reach.
`)
}

func formatStats(st recipient.Stats) string {
	return fmt.Sprintf(`📊 <b>Statistics</b>

👤 <b>Users:</b> %d
👥 <b>Groups:</b> %d
📢 <b>Channels:</b> %d

🌍 <b>Total Reach:</b> %d`, st.Users, st.Groups, st.Channels, st.Total)
}

func formatCheck(res broadcast.CheckResult) string {
	if res.Alive {
		return fmt.Sprintf("✅ <b>Alive</b>\n\nBot has access to %d", res.ChatID)
	}
	if res.Removed {
		return fmt.Sprintf("❌ <b>Dead</b>\n\nBot lost access to %d\nRemoved from database.", res.ChatID)
	}
	return fmt.Sprintf("❌ <b>Dead</b>\n\nBot has no access to %d\n(was not in the database)", res.ChatID)
}

func formatCleanup(rep broadcast.CleanupReport) string {
	return fmt.Sprintf(`✅ <b>Cleanup Complete</b>

📊 Checked: %d
🗑️ Removed: %d
✨ Active: %d`, rep.Checked, rep.Removed, rep.Active)
}

func formatBroadcastStart(total int) string {
	return fmt.Sprintf("📡 <b>Broadcasting started...</b>\n\nTotal recipients: %d", total)
}

func formatBroadcastReport(rep broadcast.Report) string {
	text := fmt.Sprintf(`✅ <b>Broadcast Complete!</b>

📊 <b>Results:</b>
✅ Successful: %d
❌ Failed: %d
📈 Success Rate: %.1f%%`, rep.Delivered, rep.Failed, rep.SuccessRate())

	if rep.Removed > 0 {
		text += fmt.Sprintf("\n\n🗑️ Auto-removed %d unreachable chats", rep.Removed)
	}
	if rep.Unreachable > 0 {
		text += fmt.Sprintf("\n⚠️ %d failed chats look unreachable (run /clean to prune)", rep.Unreachable)
	}
	return text
}
