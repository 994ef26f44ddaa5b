package presence

import (
	"time"

	"realtime/internal/protocol"
)

// TypingEntry records one remote user typing in a post context.
type TypingEntry struct {
	UserID   protocol.ID `json:"user_id"`
	PostID   protocol.ID `json:"post_id"`
	Username string      `json:"username,omitempty"`
	At       time.Time   `json:"timestamp"`
}

// Typing is a time-stamped set of typing users. It holds at most one entry
// per user; the insert path enforces it. Not safe for concurrent use.
type Typing struct {
	ttl     time.Duration
	entries []TypingEntry
}

func NewTyping(ttl time.Duration) *Typing {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Typing{ttl: ttl}
}

// Add inserts e unless the user already has a live entry at e.At. A duplicate
// signal keeps the first-seen timestamp; an expired entry the sweep has not
// evicted yet is replaced.
func (t *Typing) Add(e TypingEntry) bool {
	for i, existing := range t.entries {
		if existing.UserID != e.UserID {
			continue
		}
		if t.alive(existing, e.At) {
			return false
		}
		t.entries[i] = e
		return true
	}
	t.entries = append(t.entries, e)
	return true
}

// Remove drops every entry of user and returns how many were removed.
func (t *Typing) Remove(user protocol.ID) int {
	return t.filter(func(e TypingEntry) bool { return e.UserID != user })
}

// Sweep evicts entries whose age reached the TTL at now.
func (t *Typing) Sweep(now time.Time) int {
	return t.filter(func(e TypingEntry) bool { return t.alive(e, now) })
}

// Live returns the entries not yet expired at now.
func (t *Typing) Live(now time.Time) []TypingEntry {
	out := make([]TypingEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if t.alive(e, now) {
			out = append(out, e)
		}
	}
	return out
}

// ForPost returns the live entries for post.
func (t *Typing) ForPost(post protocol.ID, now time.Time) []TypingEntry {
	out := make([]TypingEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.PostID == post && t.alive(e, now) {
			out = append(out, e)
		}
	}
	return out
}

func (t *Typing) Len() int {
	return len(t.entries)
}

func (t *Typing) Clear() int {
	n := len(t.entries)
	t.entries = nil
	return n
}

func (t *Typing) alive(e TypingEntry, now time.Time) bool {
	return now.Sub(e.At) < t.ttl
}

func (t *Typing) filter(keep func(TypingEntry) bool) int {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if keep(e) {
			kept = append(kept, e)
		}
	}
	removed := len(t.entries) - len(kept)
	for i := len(kept); i < len(t.entries); i++ {
		t.entries[i] = TypingEntry{}
	}
	t.entries = kept
	return removed
}
