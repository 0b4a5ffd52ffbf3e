package frame

import "sync"

// Buffer holds the single most recent [Frame]. It is safe for concurrent use.
//
// The lock is held only while the pointer is swapped or the frame is copied,
// never across device or network I/O, so a reader delays the writer by at
// most one memcpy.
type Buffer struct {
	mu     sync.Mutex
	latest *Frame
	writes uint64
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Write replaces the current frame with f. The buffer takes ownership of f;
// callers must not modify it afterwards.
func (b *Buffer) Write(f *Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = f
	b.writes++
}

// Read returns the most recent frame. When clone is true the returned frame is
// a deep copy that may be freely modified; otherwise it is the stored frame
// itself and must be treated as read-only. The boolean is false when no frame
// has been written yet.
func (b *Buffer) Read(clone bool) (*Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return nil, false
	}
	if clone {
		return b.latest.Clone(), true
	}
	return b.latest, true
}

// Latest is shorthand for Read(false), used by the display loop.
func (b *Buffer) Latest() (*Frame, bool) {
	return b.Read(false)
}

// Writes returns the number of frames written so far.
func (b *Buffer) Writes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}
