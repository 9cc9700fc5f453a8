package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"relaybot/internal/recipient"
	"relaybot/internal/services/broadcast"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []string
	edits   []string
	copyErr map[int64]error
	probeEr map[int64]error
	copies  []int64
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: chatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) CopyMessage(ctx context.Context, target int64, src transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, target)
	return f.copyErr[target]
}

func (f *fakeAdapter) ChatInfo(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeEr[id]
}

func (f *fakeAdapter) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

const (
	adminGroup = int64(-1000)
	adminUser  = int64(99)
)

func newTestRouter(ad *fakeAdapter, seed func(*recipient.Registry)) (*Router, *recipient.Registry) {
	reg := recipient.NewRegistry(recipient.NewSet(), nil, logx.Nop())
	if seed != nil {
		seed(reg)
	}
	svc := broadcast.New(broadcast.Config{SendInterval: time.Millisecond}, ad, reg, logx.Nop())
	r := New(Settings{AdminGroupID: adminGroup, AdminUserIDs: []int64{adminUser}}, ad, reg, svc, nil, logx.Nop())
	return r, reg
}

func adminMsg(text string) *transport.Message {
	return &transport.Message{ID: 1, ChatID: adminGroup, FromID: 7, Text: text}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		name string
		args []string
		ok   bool
	}{
		{text: "/stat", name: "stat", ok: true},
		{text: "/check -100123", name: "check", args: []string{"-100123"}, ok: true},
		{text: "/CHECK@relay_bot 5", name: "check", args: []string{"5"}, ok: true},
		{text: "hello", ok: false},
		{text: "", ok: false},
		{text: "/", ok: false},
	}
	for _, tt := range tests {
		name, args, ok := parseCommand(tt.text)
		if ok != tt.ok || name != tt.name {
			t.Fatalf("parseCommand(%q) = (%q, %v, %v)", tt.text, name, args, ok)
		}
		if len(args) != len(tt.args) {
			t.Fatalf("parseCommand(%q) args = %v, want %v", tt.text, args, tt.args)
		}
	}
}

func TestAdminGate(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r, _ := newTestRouter(ad, nil)

	r.handleMessage(context.Background(), &transport.Message{ChatID: 5, FromID: 5, Text: "/stat", IsPrivate: true})
	if !strings.Contains(ad.lastSent(), "admins only") {
		t.Fatalf("non-admin should be rejected, got %q", ad.lastSent())
	}

	// Admin by user ID, outside the admin group.
	r.handleMessage(context.Background(), &transport.Message{ChatID: adminUser, FromID: adminUser, Text: "/stat", IsPrivate: true})
	if !strings.Contains(ad.lastSent(), "Total Reach") {
		t.Fatalf("admin user should pass the gate, got %q", ad.lastSent())
	}

	// Admin by group.
	r.handleMessage(context.Background(), adminMsg("/stat"))
	if !strings.Contains(ad.lastSent(), "Total Reach") {
		t.Fatalf("admin group should pass the gate, got %q", ad.lastSent())
	}
}

func TestStartRegistersPrivateChatOnly(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r, reg := newTestRouter(ad, nil)

	r.handleMessage(context.Background(), &transport.Message{ChatID: 42, FromID: 42, Text: "/start", IsPrivate: true})
	if !reg.Contains(42) {
		t.Fatal("/start in private chat must register the user")
	}
	if reg.Stats().Users != 1 {
		t.Fatalf("stats = %+v", reg.Stats())
	}

	// /start inside a group is ignored; groups register via membership events.
	r.handleMessage(context.Background(), &transport.Message{ChatID: -77, FromID: 42, Text: "/start"})
	if reg.Contains(-77) {
		t.Fatal("/start in a group must not register the group")
	}
}

func TestCheckRejectsBadInput(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r, _ := newTestRouter(ad, nil)

	r.handleMessage(context.Background(), adminMsg("/check"))
	if !strings.Contains(ad.lastSent(), "Usage") {
		t.Fatalf("missing arg should show usage, got %q", ad.lastSent())
	}

	r.handleMessage(context.Background(), adminMsg("/check notanumber"))
	if !strings.Contains(ad.lastSent(), "Invalid chat ID") {
		t.Fatalf("bad arg should be rejected, got %q", ad.lastSent())
	}
}

func TestCheckRemovesDeadChat(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{probeEr: map[int64]error{999: errors.New("chat not found")}}
	r, reg := newTestRouter(ad, func(reg *recipient.Registry) {
		reg.Add(999, recipient.Group)
	})

	r.handleMessage(context.Background(), adminMsg("/check 999"))
	if reg.Contains(999) {
		t.Fatal("dead chat must be removed")
	}
	if !strings.Contains(ad.lastEdit(), "Dead") {
		t.Fatalf("expected dead status, got %q", ad.lastEdit())
	}
}

func TestBroadcastRequiresReply(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r, _ := newTestRouter(ad, func(reg *recipient.Registry) {
		reg.Add(1, recipient.User)
	})

	r.handleMessage(context.Background(), adminMsg("/broadcast"))
	if !strings.Contains(ad.lastSent(), "reply to a message") {
		t.Fatalf("expected reply-required message, got %q", ad.lastSent())
	}
	if len(ad.copies) != 0 {
		t.Fatal("no dispatch should happen without a reply target")
	}
}

func TestBroadcastEndToEnd(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{copyErr: map[int64]error{
		2: errors.New("Forbidden: bot was blocked by the user"),
	}}
	r, reg := newTestRouter(ad, func(reg *recipient.Registry) {
		reg.Add(1, recipient.User)
		reg.Add(2, recipient.User)
	})

	msg := adminMsg("/broadcast")
	msg.ReplyTo = &transport.MessageRef{ChatID: adminGroup, MessageID: 55}
	r.handleMessage(context.Background(), msg)

	if len(ad.copies) != 2 {
		t.Fatalf("copies = %v, want both recipients attempted", ad.copies)
	}
	if reg.Contains(2) {
		t.Fatal("blocked recipient must be pruned")
	}
	last := ad.lastEdit()
	if !strings.Contains(last, "Successful: 1") || !strings.Contains(last, "Failed: 1") {
		t.Fatalf("unexpected report: %q", last)
	}
}

func TestBroadcastEmptyStore(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r, _ := newTestRouter(ad, nil)

	msg := adminMsg("/broadcast")
	msg.ReplyTo = &transport.MessageRef{ChatID: adminGroup, MessageID: 55}
	r.handleMessage(context.Background(), msg)

	if len(ad.copies) != 0 {
		t.Fatal("empty store must not dispatch")
	}
	if !strings.Contains(ad.lastEdit(), "No recipients") {
		t.Fatalf("expected no-recipients message, got %q", ad.lastEdit())
	}
}

func TestCleanCommand(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{probeEr: map[int64]error{3: errors.New("Forbidden: bot was kicked")}}
	r, reg := newTestRouter(ad, func(reg *recipient.Registry) {
		reg.Add(1, recipient.User)
		reg.Add(3, recipient.User)
	})

	r.handleMessage(context.Background(), adminMsg("/clean"))
	if reg.Contains(3) {
		t.Fatal("unreachable chat must be removed by /clean")
	}
	last := ad.lastEdit()
	if !strings.Contains(last, "Checked: 2") || !strings.Contains(last, "Removed: 1") {
		t.Fatalf("unexpected cleanup report: %q", last)
	}
}
