// Package outputbuf implements the bounded per-host ring buffer that
// backs each host's scrollback: lines are appended in O(1) amortized time
// and evicted oldest-first once the buffer reaches capacity, while absolute
// line numbers remain stable across evictions so scroll position tracking
// doesn't jitter.
package outputbuf

// DefaultCap is the default number of retained lines per host (spec.md §3).
const DefaultCap = 500

// Buffer is a bounded FIFO of lines. It is not safe for concurrent use;
// callers (the application controller) serialize access.
type Buffer struct {
	cap  int
	data []string
	// base is the absolute index of data[0]; it advances every time an
	// append evicts the oldest line, so Snapshot/At can be addressed by
	// stable absolute index regardless of how much has been evicted.
	base int
}

// New returns a Buffer retaining at most capacity lines. A non-positive
// capacity falls back to DefaultCap.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Buffer{cap: capacity, data: make([]string, 0, capacity)}
}

// Append adds a line, evicting the oldest line if the buffer is full.
func (b *Buffer) Append(line string) {
	if len(b.data) >= b.cap {
		b.data = b.data[1:]
		b.base++
	}
	b.data = append(b.data, line)
}

// Len returns the number of lines currently retained (<= capacity).
func (b *Buffer) Len() int {
	return len(b.data)
}

// Cap returns the configured capacity.
func (b *Buffer) Cap() int {
	return b.cap
}

// Base returns the absolute index of the oldest retained line.
func (b *Buffer) Base() int {
	return b.base
}

// End returns the absolute index one past the newest retained line (i.e.
// the absolute index the next Append will occupy).
func (b *Buffer) End() int {
	return b.base + len(b.data)
}

// At returns the line at absolute index idx and whether it is still
// retained (false if it has been evicted or not yet written).
func (b *Buffer) At(idx int) (string, bool) {
	rel := idx - b.base
	if rel < 0 || rel >= len(b.data) {
		return "", false
	}
	return b.data[rel], true
}

// Snapshot returns up to count lines starting at absolute index from,
// clamped to what is currently retained.
func (b *Buffer) Snapshot(from, count int) []string {
	if count <= 0 {
		return nil
	}
	start := from - b.base
	if start < 0 {
		start = 0
	}
	end := start + count
	if end > len(b.data) {
		end = len(b.data)
	}
	if start >= end {
		return nil
	}
	out := make([]string, end-start)
	copy(out, b.data[start:end])
	return out
}

// Tail returns the last n lines (or fewer if the buffer holds less).
func (b *Buffer) Tail(n int) []string {
	if n <= 0 {
		return nil
	}
	start := len(b.data) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, len(b.data)-start)
	copy(out, b.data[start:])
	return out
}
