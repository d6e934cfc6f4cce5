package capture

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame is one captured video frame. The receiver of a Frame owns it and
// must call Close when done.
type Frame struct {
	Mat       gocv.Mat
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
}

// Close releases the frame's pixel data.
func (f *Frame) Close() {
	if f == nil {
		return
	}
	f.Mat.Close()
}

// Mailbox is a single-slot, replace-latest frame buffer.
//
// Put never blocks: a frame that has not been taken yet is released and
// replaced by the newer one. Take blocks until a frame is available or the
// mailbox is closed.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *Frame
	drops  uint64
	closed bool
}

// NewMailbox creates an empty Mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put stores frame, dropping any frame still waiting. It reports whether a
// frame was dropped. After Close the frame is released immediately.
func (m *Mailbox) Put(frame *Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		frame.Close()
		return false
	}

	dropped := false
	if m.frame != nil {
		m.frame.Close()
		m.drops++
		dropped = true
	}

	m.frame = frame
	m.cond.Signal()

	return dropped
}

// Take waits for the next frame. It returns nil once the mailbox is closed.
func (m *Mailbox) Take() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.frame == nil && !m.closed {
		m.cond.Wait()
	}

	if m.closed {
		return nil
	}

	frame := m.frame
	m.frame = nil
	return frame
}

// Drops returns how many frames were replaced before being taken.
func (m *Mailbox) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

// Close wakes any waiting Take and releases a pending frame. Idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	if m.frame != nil {
		m.frame.Close()
		m.frame = nil
	}
	m.cond.Broadcast()
}
