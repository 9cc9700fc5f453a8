// Package transport defines the platform-neutral contract between the bot
// core and the chat platform. The core never imports a platform SDK; the
// concrete adapter lives in a subpackage.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage    UpdateKind = "message"
	UpdateMembership UpdateKind = "membership"
)

type Update struct {
	Kind       UpdateKind
	Message    *Message
	Membership *MembershipChange
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsPrivate    bool

	// ReplyTo references the message this one replies to, if any.
	// /broadcast copies the replied-to message to every recipient.
	ReplyTo *MessageRef
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// ChatKind is the platform's chat classification.
type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSuperGroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

// MemberStatus is the bot's membership status in a chat. The platform may
// introduce new statuses; consumers treat unrecognized values as no-ops.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// MembershipChange is a platform-pushed event carrying the bot's new status
// in a chat.
type MembershipChange struct {
	ChatID    int64
	ChatKind  ChatKind
	ChatTitle string
	NewStatus MemberStatus
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the outbound/inbound platform surface the core consumes.
//
// ChatInfo performs a lightweight existence/access check; a nil error means
// the bot can still reach the chat. Callers treat any error as unreachable.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, chatID int64, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	CopyMessage(ctx context.Context, targetChatID int64, src MessageRef) error
	ChatInfo(ctx context.Context, chatID int64) error
}
