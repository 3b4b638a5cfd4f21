// Copyright 2026 Kyle Braxton
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"sync"
	"time"
)

// LogEntry is a single captured diagnostic line from a tool server.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"` // currently always "stderr"
}

// RingBuffer is a fixed-size circular buffer of log entries.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	tail    int
	size    int
	count   int
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingBuffer{
		entries: make([]LogEntry, capacity),
		size:    capacity,
	}
}

// Add appends an entry, evicting the oldest when full.
func (rb *RingBuffer) Add(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.tail] = entry
	rb.tail = (rb.tail + 1) % rb.size

	if rb.count < rb.size {
		rb.count++
	} else {
		rb.head = (rb.head + 1) % rb.size
	}
}

// GetAll returns all entries, oldest first.
func (rb *RingBuffer) GetAll() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	result := make([]LogEntry, rb.count)
	for i := 0; i < rb.count; i++ {
		result[i] = rb.entries[(rb.head+i)%rb.size]
	}
	return result
}

// GetLast returns the last n entries, oldest first.
func (rb *RingBuffer) GetLast(n int) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.count {
		n = rb.count
	}
	result := make([]LogEntry, n)
	start := rb.count - n
	for i := 0; i < n; i++ {
		result[i] = rb.entries[(rb.head+start+i)%rb.size]
	}
	return result
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Clear removes all entries.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = 0
	rb.tail = 0
	rb.count = 0
}

// LogCapture holds per-server stderr buffers. The connection's stderr drain
// loop feeds it; it never affects protocol correctness.
type LogCapture struct {
	mu      sync.RWMutex
	buffers map[string]*RingBuffer
	maxSize int
}

// NewLogCapture creates a capture with the default per-server capacity.
func NewLogCapture() *LogCapture {
	return &LogCapture{
		buffers: make(map[string]*RingBuffer),
		maxSize: 1000,
	}
}

// buffer returns the buffer for a server, creating it if needed.
func (lc *LogCapture) buffer(server string) *RingBuffer {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if buf, ok := lc.buffers[server]; ok {
		return buf
	}
	buf := NewRingBuffer(lc.maxSize)
	lc.buffers[server] = buf
	return buf
}

// Add records one stderr line for a server.
func (lc *LogCapture) Add(server, message string) {
	lc.buffer(server).Add(LogEntry{
		Timestamp: time.Now(),
		Message:   message,
		Source:    "stderr",
	})
}

// Get returns up to lines entries for a server, oldest first. lines <= 0
// returns everything buffered.
func (lc *LogCapture) Get(server string, lines int) []LogEntry {
	lc.mu.RLock()
	buf, ok := lc.buffers[server]
	lc.mu.RUnlock()

	if !ok {
		return nil
	}
	if lines > 0 {
		return buf.GetLast(lines)
	}
	return buf.GetAll()
}

// Remove drops the buffer for a server.
func (lc *LogCapture) Remove(server string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	delete(lc.buffers, server)
}
