// Package history provides the in-memory conversation log.
package history

import (
	"sync"
	"time"
)

// Entry is one completed exchange. Immutable once appended.
type Entry struct {
	User      string    `json:"user"`
	AI        string    `json:"ai"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultRetention is how long entries survive before pruning.
const DefaultRetention = 7 * 24 * time.Hour

// Log is an append-only, time-pruned record of recent exchanges.
// Nothing is persisted; a restart starts empty. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry

	now func() time.Time // injectable for tests
}

// NewLog creates an empty conversation log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append records one exchange with the current timestamp.
func (l *Log) Append(user, ai string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		User:      user,
		AI:        ai,
		Timestamp: l.now(),
	})
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Prune drops entries older than the retention window and returns how
// many were removed. Entries are appended in chronological order, so a
// single scan for the first survivor is enough.
func (l *Log) Prune(retention time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-retention)
	keep := 0
	for keep < len(l.entries) && l.entries[keep].Timestamp.Before(cutoff) {
		keep++
	}
	if keep == 0 {
		return 0
	}
	l.entries = append([]Entry(nil), l.entries[keep:]...)
	return keep
}

// Clear empties the log. Irreversible.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Len returns the current entry count.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
