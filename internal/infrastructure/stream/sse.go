package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"appgen/internal/domain/entity"
)

// EncodeFrame renders ev in the wire format: "data: <json>\n\n".
// The JSON encoding never contains a raw newline, so one event is always one line.
func EncodeFrame(ev entity.ProgressEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// SSEWriter writes frames to an HTTP response and flushes after each one.
type SSEWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSEWriter sets the event-stream headers and disables the server write deadline,
// since a job can outlive it.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	return &SSEWriter{w: w, rc: rc}
}

func (s *SSEWriter) WriteFrame(ev entity.ProgressEvent) error {
	frame, err := EncodeFrame(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
