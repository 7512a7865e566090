package logging

import (
	"sort"
	"sync"
	"time"
)

// LogEntry is one record kept for GET /api/logs and the log stream.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent entries. Writers assign increasing Seq
// values, so entries are ordered by Seq.
type RingBuffer struct {
	mu    sync.RWMutex
	buf   []LogEntry
	start int // index of the oldest entry once buf is full
}

// NewRingBuffer creates a buffer holding at most size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{buf: make([]LogEntry, 0, size)}
}

// Write appends entry, dropping the oldest one when full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.buf) < cap(rb.buf) {
		rb.buf = append(rb.buf, entry)
		return
	}
	rb.buf[rb.start] = entry
	rb.start = (rb.start + 1) % len(rb.buf)
}

// ReadAll returns a copy of all entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.snapshotLocked()
}

func (rb *RingBuffer) snapshotLocked() []LogEntry {
	if len(rb.buf) == 0 {
		return nil
	}
	out := make([]LogEntry, 0, len(rb.buf))
	out = append(out, rb.buf[rb.start:]...)
	return append(out, rb.buf[:rb.start]...)
}

// Since returns entries with Seq greater than seq, or nil.
func (rb *RingBuffer) Since(seq uint64) []LogEntry {
	all := rb.ReadAll()
	i := sort.Search(len(all), func(i int) bool { return all[i].Seq > seq })
	if i == len(all) {
		return nil
	}
	return all[i:]
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.buf)
}
