package recipient

import (
	"sync"

	"relaybot/pkg/logx"
)

// Persister is the durable side of the registry. Save receives a snapshot
// the persister may retain.
type Persister interface {
	Save(Set) error
}

// Registry is the single shared recipient store. It is constructed once at
// startup and passed by handle to the orchestrator, the reconciler, and the
// command layer.
//
// Every mutation is persisted write-through. A persistence failure is logged
// and the in-memory state stays authoritative; the durable copy may lag until
// the next successful save. That window is an accepted risk of the design.
type Registry struct {
	mu    sync.Mutex
	set   Set
	store Persister
	log   logx.Logger
}

func NewRegistry(initial Set, store Persister, log logx.Logger) *Registry {
	if initial == nil {
		initial = NewSet()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{set: initial, store: store, log: log}
}

// Add registers id under cat. Idempotent; duplicates never fail. If the
// platform reclassified the chat, it is moved (removed from its previous
// category first).
func (r *Registry) Add(id int64, cat Category) {
	r.mu.Lock()
	changed := r.set.Add(id, cat)
	if changed {
		r.persistLocked()
	}
	r.mu.Unlock()
	if changed {
		r.log.Info("recipient added", logx.Int64("chat_id", id), logx.String("category", string(cat)))
	}
}

// Remove drops id from whichever category holds it and reports whether a
// removal occurred.
func (r *Registry) Remove(id int64) bool {
	r.mu.Lock()
	removed := r.set.Remove(id)
	if removed {
		r.persistLocked()
	}
	r.mu.Unlock()
	if removed {
		r.log.Info("recipient removed", logx.Int64("chat_id", id))
	}
	return removed
}

// All returns a snapshot of every tracked chat ID. Mutations after the call
// do not affect the returned slice.
func (r *Registry) All() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.All()
}

// Contains reports whether id is currently tracked.
func (r *Registry) Contains(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set.Contains(id)
	return ok
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.Stats()
}

func (r *Registry) persistLocked() {
	if r.store == nil {
		return
	}
	if err := r.store.Save(r.set.Clone()); err != nil {
		r.log.Error("recipient set save failed; in-memory state remains authoritative", logx.Err(err))
	}
}
