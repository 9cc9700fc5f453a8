package recipient

import (
	"errors"
	"testing"

	"relaybot/pkg/logx"
)

func TestAddIdempotent(t *testing.T) {
	t.Parallel()
	s := NewSet()
	if !s.Add(42, User) {
		t.Fatal("first Add should change the set")
	}
	if s.Add(42, User) {
		t.Fatal("second Add should be a no-op")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestAddMovesAcrossCategories(t *testing.T) {
	t.Parallel()
	s := NewSet()
	s.Add(42, Group)
	s.Add(42, Channel)

	if got := s.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1 (id must live in exactly one category)", got)
	}
	cat, ok := s.Contains(42)
	if !ok || cat != Channel {
		t.Fatalf("Contains(42) = (%q, %v), want (channels, true)", cat, ok)
	}
	if len(s[Group]) != 0 {
		t.Fatalf("id left behind in old category: %v", s[Group])
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := NewSet()
	s.Add(1, User)
	if !s.Remove(1) {
		t.Fatal("Remove should report a removal")
	}
	if s.Remove(1) {
		t.Fatal("Remove of absent id should report false")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	s := NewSet()
	s.Add(1, User)
	s.Add(2, User)
	s.Add(-100, Group)
	s.Add(-200, Channel)

	st := s.Stats()
	if st.Users != 2 || st.Groups != 1 || st.Channels != 1 || st.Total != 4 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	s := NewSet()
	s.Add(1, User)
	cp := s.Clone()
	s.Add(2, User)
	if cp.Len() != 1 {
		t.Fatalf("clone grew with original: Len = %d", cp.Len())
	}
}

type recordingPersister struct {
	saves int
	last  Set
	err   error
}

func (p *recordingPersister) Save(s Set) error {
	p.saves++
	p.last = s
	return p.err
}

func TestRegistryWriteThrough(t *testing.T) {
	t.Parallel()
	p := &recordingPersister{}
	r := NewRegistry(NewSet(), p, logx.Nop())

	r.Add(1, User)
	r.Add(1, User) // duplicate must not persist again
	if p.saves != 1 {
		t.Fatalf("saves = %d, want 1", p.saves)
	}

	if !r.Remove(1) {
		t.Fatal("expected removal")
	}
	if p.saves != 2 {
		t.Fatalf("saves = %d, want 2", p.saves)
	}
	if r.Remove(1) {
		t.Fatal("second removal should be a no-op")
	}
	if p.saves != 2 {
		t.Fatalf("no-op removal persisted: saves = %d", p.saves)
	}
}

func TestRegistrySurvivesPersistFailure(t *testing.T) {
	t.Parallel()
	p := &recordingPersister{err: errors.New("disk full")}
	r := NewRegistry(NewSet(), p, logx.Nop())

	r.Add(7, Group)
	if !r.Contains(7) {
		t.Fatal("in-memory state must remain authoritative after a failed save")
	}
	st := r.Stats()
	if st.Groups != 1 || st.Total != 1 {
		t.Fatalf("unexpected stats after failed save: %+v", st)
	}
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	t.Parallel()
	r := NewRegistry(NewSet(), nil, logx.Nop())
	r.Add(1, User)
	snap := r.All()
	r.Add(2, User)
	if len(snap) != 1 {
		t.Fatalf("snapshot grew after mutation: %v", snap)
	}
}
