package controller

import (
	"sync"
	"time"
)

// DefaultHistorySize is the command history ring capacity.
const DefaultHistorySize = 100

// HistoryEntry records one command execution.
type HistoryEntry struct {
	// Command is the loggable command form (no secrets travel as
	// command parameters).
	Command string

	// Start is when the command was issued.
	Start time.Time

	// Duration is the round-trip time.
	Duration time.Duration

	// Success reports whether the device acknowledged the command.
	Success bool

	// Err holds the error message for failed exchanges.
	Err string
}

// history is a bounded ring of recent commands.
type history struct {
	mu      sync.Mutex
	entries []HistoryEntry
	next    int
	filled  bool
}

func newHistory(size int) *history {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &history{entries: make([]HistoryEntry, size)}
}

func (h *history) add(e HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = e
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.filled = true
	}
}

// snapshot returns the recorded entries, oldest first.
func (h *history) snapshot() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.filled {
		out := make([]HistoryEntry, h.next)
		copy(out, h.entries[:h.next])
		return out
	}
	out := make([]HistoryEntry, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	out = append(out, h.entries[:h.next]...)
	return out
}
