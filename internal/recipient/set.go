// Package recipient models the set of chats registered to receive
// broadcasts and the write-through registry that owns it at runtime.
package recipient

// Category partitions recipients for statistics. It never changes broadcast
// behavior.
type Category string

const (
	User    Category = "users"
	Group   Category = "groups"
	Channel Category = "channels"
)

// Categories lists all known categories in their canonical order. The order
// only affects snapshot layout and serialized output, not semantics.
func Categories() []Category {
	return []Category{User, Group, Channel}
}

// Set maps a category to the chat IDs it currently holds.
//
// Invariant: a chat ID appears in at most one category at a time. Mutate
// through Add/Remove to keep it that way.
type Set map[Category]map[int64]struct{}

// NewSet returns an empty set with all categories initialized.
func NewSet() Set {
	s := make(Set, len(Categories()))
	for _, c := range Categories() {
		s[c] = map[int64]struct{}{}
	}
	return s
}

// Add inserts id into cat, removing it from any other category first.
// It reports whether the set changed.
func (s Set) Add(id int64, cat Category) bool {
	if m, ok := s[cat]; ok {
		if _, exists := m[id]; exists {
			return false
		}
	} else {
		s[cat] = map[int64]struct{}{}
	}
	s.Remove(id)
	s[cat][id] = struct{}{}
	return true
}

// Remove deletes id from whichever category holds it (at most one).
func (s Set) Remove(id int64) bool {
	for _, m := range s {
		if _, ok := m[id]; ok {
			delete(m, id)
			return true
		}
	}
	return false
}

// Contains reports whether id is tracked, and under which category.
func (s Set) Contains(id int64) (Category, bool) {
	for cat, m := range s {
		if _, ok := m[id]; ok {
			return cat, true
		}
	}
	return "", false
}

// All returns every tracked chat ID. Categories are walked in canonical
// order; order within a category is map order and not meaningful.
func (s Set) All() []int64 {
	out := make([]int64, 0, s.Len())
	for _, cat := range Categories() {
		for id := range s[cat] {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the total number of tracked chat IDs.
func (s Set) Len() int {
	n := 0
	for _, m := range s {
		n += len(m)
	}
	return n
}

// Clone returns a deep copy. Used to hand out snapshots that later
// mutations cannot affect.
func (s Set) Clone() Set {
	cp := make(Set, len(s))
	for cat, m := range s {
		cm := make(map[int64]struct{}, len(m))
		for id := range m {
			cm[id] = struct{}{}
		}
		cp[cat] = cm
	}
	return cp
}

// Stats summarizes the set per category.
type Stats struct {
	Users    int
	Groups   int
	Channels int
	Total    int
}

func (s Set) Stats() Stats {
	return Stats{
		Users:    len(s[User]),
		Groups:   len(s[Group]),
		Channels: len(s[Channel]),
		Total:    s.Len(),
	}
}
