// Package supervisor manages named goroutines tied to a shared context, with
// panic recovery and optional restart backoff for long-running loops.
package supervisor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"relaybot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger
	wg     sync.WaitGroup
}

func New(parent context.Context, log logx.Logger) *Supervisor {
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{ctx: ctx, cancel: cancel, log: log}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Go runs fn once under the supervisor context, recovering panics.
func (s *Supervisor) Go(name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.recoverPanic(name)
		s.log.Debug("goroutine started", logx.String("name", name))
		fn(s.ctx)
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

// GoRestart runs fn in a loop until the supervisor context is cancelled,
// restarting after each return or panic with exponential backoff. Used for
// loops that should self-heal (the adapter's long-poll, for example).
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context), base, max time.Duration) {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max < base {
		max = 10 * time.Second
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := base
		for {
			start := time.Now()
			func() {
				defer s.recoverPanic(name)
				fn(s.ctx)
			}()
			if s.ctx.Err() != nil {
				return
			}
			// A long healthy run resets the backoff.
			if time.Since(start) > max {
				backoff = base
			}
			s.log.Warn("goroutine exited; restarting",
				logx.String("name", name), logx.Duration("backoff", backoff))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > max {
				backoff = max
			}
		}
	}()
}

// Cancel stops the supervisor context. Goroutines are expected to return
// promptly once the context is done.
func (s *Supervisor) Cancel() { s.cancel() }

// Wait blocks until all goroutines have exited or ctx is cancelled.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) recoverPanic(name string) {
	if r := recover(); r != nil {
		s.log.Error("panic in supervised goroutine",
			logx.String("name", name),
			logx.Any("panic", r),
			logx.String("stack", string(debug.Stack())))
	}
}
