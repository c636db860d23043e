package logging

import "sync"

// MemoryOutput keeps the most recent log entries in a bounded ring buffer.
// Useful in tests and for post-mortem inspection of a failed optimization.
type MemoryOutput struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewMemoryOutput creates a MemoryOutput retaining up to capacity entries.
func NewMemoryOutput(capacity int) *MemoryOutput {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryOutput{
		entries: make([]LogEntry, capacity),
	}
}

func (m *MemoryOutput) Write(e LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[m.next] = e
	m.next++
	if m.next == len(m.entries) {
		m.next = 0
		m.full = true
	}
	return nil
}

// Entries returns the retained entries, oldest first.
func (m *MemoryOutput) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		out := make([]LogEntry, m.next)
		copy(out, m.entries[:m.next])
		return out
	}

	out := make([]LogEntry, 0, len(m.entries))
	out = append(out, m.entries[m.next:]...)
	out = append(out, m.entries[:m.next]...)
	return out
}

func (m *MemoryOutput) Sync() error { return nil }

func (m *MemoryOutput) Close() error { return nil }
