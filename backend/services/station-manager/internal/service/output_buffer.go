package service

import (
	"strings"
	"sync"
)

const defaultOutputLines = 500

// OutputBuffer keeps the most recent lines written by command executions. It is an
// io.Writer and is safe for concurrent use.
type OutputBuffer struct {
	mu       sync.Mutex
	lines    []string
	partial  string
	maxLines int
}

// NewOutputBuffer returns a buffer that retains up to maxLines complete lines.
func NewOutputBuffer(maxLines int) *OutputBuffer {
	if maxLines <= 0 {
		maxLines = defaultOutputLines
	}
	return &OutputBuffer{maxLines: maxLines}
}

// Write appends p, splitting on newlines. A trailing incomplete line is held until
// the next write completes it.
func (b *OutputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parts := strings.Split(b.partial+string(p), "\n")
	b.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		b.lines = append(b.lines, strings.TrimRight(line, "\r"))
	}
	if over := len(b.lines) - b.maxLines; over > 0 {
		b.lines = append(b.lines[:0:0], b.lines[over:]...)
	}
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first, including a pending partial line.
func (b *OutputBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.lines), len(b.lines)+1)
	copy(out, b.lines)
	if b.partial != "" {
		out = append(out, b.partial)
	}
	return out
}
