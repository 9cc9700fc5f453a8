package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"relaybot/internal/recipient"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

type fakeTransport struct {
	mu       sync.Mutex
	sendErr  map[int64]error
	probeErr map[int64]error
	sends    []int64
	probes   []int64

	// blockFirstSend, when non-nil, is closed by the test to release the
	// first CopyMessage call. Used to hold the engine busy.
	blockFirstSend chan struct{}
	firstSendStart chan struct{}
	blockedOnce    bool
}

func (f *fakeTransport) CopyMessage(ctx context.Context, target int64, src transport.MessageRef) error {
	f.mu.Lock()
	block := !f.blockedOnce && f.blockFirstSend != nil
	if block {
		f.blockedOnce = true
	}
	f.sends = append(f.sends, target)
	err := f.sendErr[target]
	f.mu.Unlock()

	if block {
		close(f.firstSendStart)
		<-f.blockFirstSend
	}
	return err
}

func (f *fakeTransport) ChatInfo(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, id)
	return f.probeErr[id]
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func newTestService(t *testing.T, tr *fakeTransport, seed func(*recipient.Registry)) (*Service, *recipient.Registry) {
	t.Helper()
	reg := recipient.NewRegistry(recipient.NewSet(), nil, logx.Nop())
	if seed != nil {
		seed(reg)
	}
	svc := New(Config{SendInterval: time.Millisecond}, tr, reg, logx.Nop())
	return svc, reg
}

func TestRunScenario(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		sendErr: map[int64]error{
			2:   errors.New("Forbidden: bot was blocked by the user"),
			100: errors.New("context deadline exceeded"),
		},
		probeErr: map[int64]error{},
	}
	svc, reg := newTestService(t, tr, func(r *recipient.Registry) {
		r.Add(1, recipient.User)
		r.Add(2, recipient.User)
		r.Add(100, recipient.Group)
	})

	rep, err := svc.Run(context.Background(), transport.MessageRef{ChatID: -1, MessageID: 7})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Attempted != 3 || rep.Delivered != 1 || rep.Failed != 2 {
		t.Fatalf("report = %+v, want attempted:3 delivered:1 failed:2", rep)
	}
	if rep.Removed != 1 || rep.Unreachable != 0 {
		t.Fatalf("report = %+v, want removed:1 unreachable:0", rep)
	}
	if rep.Delivered+rep.Failed != rep.Attempted {
		t.Fatalf("conservation violated: %+v", rep)
	}

	// Permanent failure removed immediately; transient retained.
	if reg.Contains(2) {
		t.Fatal("permanently failed recipient still in registry")
	}
	if !reg.Contains(1) || !reg.Contains(100) {
		t.Fatal("delivered/transient recipients must be retained")
	}
	st := reg.Stats()
	if st.Users != 1 || st.Groups != 1 || st.Total != 2 {
		t.Fatalf("stats after run = %+v", st)
	}

	// The post-pass probe must not touch recipients already evicted.
	for _, id := range tr.probes {
		if id == 2 {
			t.Fatal("probed a recipient that was already removed")
		}
	}
}

func TestRunProbeCountsWithoutEvicting(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		sendErr:  map[int64]error{100: errors.New("connection reset by peer")},
		probeErr: map[int64]error{100: errors.New("context deadline exceeded")},
	}
	svc, reg := newTestService(t, tr, func(r *recipient.Registry) {
		r.Add(100, recipient.User)
	})

	rep, err := svc.Run(context.Background(), transport.MessageRef{ChatID: -1, MessageID: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Removed != 0 {
		t.Fatalf("Removed = %d, want 0 (post-pass probe must not evict)", rep.Removed)
	}
	if rep.Unreachable != 1 {
		t.Fatalf("Unreachable = %d, want 1", rep.Unreachable)
	}
	// A transient dispatch failure keeps the recipient, even when the probe
	// also fails; only /clean prunes deliberately.
	if !reg.Contains(100) {
		t.Fatal("transiently failed recipient was evicted")
	}
}

func TestRunEmptyStoreShortCircuits(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	svc, _ := newTestService(t, tr, nil)

	_, err := svc.Run(context.Background(), transport.MessageRef{ChatID: -1, MessageID: 1})
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("err = %v, want ErrNoRecipients", err)
	}
	if tr.sendCount() != 0 {
		t.Fatalf("empty store must cause zero dispatches, got %d", tr.sendCount())
	}
}

func TestRunGuardRejectsConcurrentRun(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		blockFirstSend: make(chan struct{}),
		firstSendStart: make(chan struct{}),
	}
	svc, _ := newTestService(t, tr, func(r *recipient.Registry) {
		r.Add(1, recipient.User)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Run(context.Background(), transport.MessageRef{ChatID: -1, MessageID: 1})
	}()

	<-tr.firstSendStart
	if !svc.Running() {
		t.Fatal("Running() should report true mid-run")
	}
	if _, err := svc.Run(context.Background(), transport.MessageRef{ChatID: -1, MessageID: 2}); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
	if _, err := svc.Cleanup(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("cleanup err = %v, want ErrRunInProgress", err)
	}

	close(tr.blockFirstSend)
	<-done
	if svc.Running() {
		t.Fatal("Running() should report false after the run")
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	svc, _ := newTestService(t, tr, func(r *recipient.Registry) {
		r.Add(1, recipient.User)
		r.Add(2, recipient.User)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Run(ctx, transport.MessageRef{ChatID: -1, MessageID: 1})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if tr.sendCount() != 0 {
		t.Fatalf("cancelled run dispatched %d times", tr.sendCount())
	}
}

func TestCleanup(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		probeErr: map[int64]error{
			-100: errors.New("Forbidden: bot was kicked from the group chat"),
			3:    errors.New("chat not found"),
		},
	}
	svc, reg := newTestService(t, tr, func(r *recipient.Registry) {
		r.Add(1, recipient.User)
		r.Add(3, recipient.User)
		r.Add(-100, recipient.Group)
	})

	rep, err := svc.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if rep.Checked != 3 || rep.Removed != 2 || rep.Active != 1 {
		t.Fatalf("report = %+v, want checked:3 removed:2 active:1", rep)
	}
	if !reg.Contains(1) || reg.Contains(3) || reg.Contains(-100) {
		t.Fatal("registry does not match cleanup result")
	}
}

func TestCheckOne(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		probeErr: map[int64]error{
			999:   errors.New("chat not found"),
			12345: errors.New("chat not found"),
		},
	}
	svc, reg := newTestService(t, tr, func(r *recipient.Registry) {
		r.Add(999, recipient.Group)
	})

	res := svc.CheckOne(context.Background(), 999)
	if res.Alive {
		t.Fatal("expected unreachable")
	}
	if !res.Removed {
		t.Fatal("tracked unreachable chat must be removed")
	}
	if reg.Contains(999) {
		t.Fatal("registry still contains removed chat")
	}

	// Untracked unreachable chat: no state change, Removed=false.
	res = svc.CheckOne(context.Background(), 12345)
	if res.Alive || res.Removed {
		t.Fatalf("unexpected result for untracked chat: %+v", res)
	}

	// Reachable chat.
	tr2 := &fakeTransport{probeErr: map[int64]error{}}
	svc2, reg2 := newTestService(t, tr2, func(r *recipient.Registry) {
		r.Add(7, recipient.User)
	})
	if res := svc2.CheckOne(context.Background(), 7); !res.Alive || res.Removed {
		t.Fatalf("unexpected result for reachable chat: %+v", res)
	}
	if !reg2.Contains(7) {
		t.Fatal("reachable chat must stay tracked")
	}
}

func TestSuccessRate(t *testing.T) {
	t.Parallel()
	r := Report{Attempted: 4, Delivered: 3, Failed: 1}
	if got := r.SuccessRate(); got != 75 {
		t.Fatalf("SuccessRate = %v, want 75", got)
	}
	if got := (Report{}).SuccessRate(); got != 0 {
		t.Fatalf("zero report SuccessRate = %v, want 0", got)
	}
}
