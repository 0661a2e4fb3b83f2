package stream

import (
	"fmt"
	"io"
	"sync"

	"appgen/internal/domain/entity"
)

// FrameWriter delivers one encoded event to the client.
type FrameWriter interface {
	WriteFrame(ev entity.ProgressEvent) error
}

// Emitter guards a FrameWriter: progress never decreases, nothing follows a terminal
// event, and a failed write closes the stream.
type Emitter struct {
	mu         sync.Mutex
	w          FrameWriter
	last       int
	terminated bool
	closed     bool
}

func NewEmitter(w FrameWriter) *Emitter {
	return &Emitter{w: w}
}

func (e *Emitter) Emit(ev entity.ProgressEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.terminated {
		return entity.ErrStreamClosed
	}

	if ev.Progress < e.last {
		ev.Progress = e.last
	}
	if ev.Progress > 100 {
		ev.Progress = 100
	}

	if err := e.w.WriteFrame(ev); err != nil {
		e.closed = true
		return fmt.Errorf("write %s frame: %w", ev.Type, err)
	}

	e.last = ev.Progress
	if ev.Type.Terminal() {
		e.terminated = true
	}
	return nil
}

// LastProgress is the progress of the last frame written.
func (e *Emitter) LastProgress() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Emitter) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

// Close marks the stream closed and closes the writer if it is an io.Closer. Idempotent.
func (e *Emitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	if e.w == nil {
		return nil
	}
	w := e.w
	e.w = nil
	if c, ok := w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
