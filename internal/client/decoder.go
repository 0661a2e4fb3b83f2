package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"appgen/internal/domain/entity"
)

var dataPrefix = []byte("data:")

// Decoder turns an arbitrarily chunked progress stream back into events. Frames are
// lines starting with "data:"; a partial line stays buffered until the next chunk.
type Decoder struct {
	buf     []byte
	logger  *slog.Logger
	skipped int
}

func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Feed appends chunk and returns every event completed by it.
func (d *Decoder) Feed(chunk []byte) []entity.ProgressEvent {
	d.buf = append(d.buf, chunk...)

	var events []entity.ProgressEvent
	start := 0
	for {
		nl := bytes.IndexByte(d.buf[start:], '\n')
		if nl < 0 {
			break
		}
		line := d.buf[start : start+nl]
		start += nl + 1
		if ev, ok := d.parseLine(line); ok {
			events = append(events, ev)
		}
	}

	if start > 0 {
		n := copy(d.buf, d.buf[start:])
		d.buf = d.buf[:n]
	}
	return events
}

// Flush parses whatever is left once the transport reached EOF.
func (d *Decoder) Flush() []entity.ProgressEvent {
	if len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil
	if ev, ok := d.parseLine(line); ok {
		return []entity.ProgressEvent{ev}
	}
	return nil
}

// Skipped reports how many malformed frames were dropped.
func (d *Decoder) Skipped() int {
	return d.skipped
}

func (d *Decoder) parseLine(line []byte) (entity.ProgressEvent, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, dataPrefix) {
		return entity.ProgressEvent{}, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])

	var ev entity.ProgressEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
		d.skipped++
		d.logger.Warn("skipping malformed frame", "err", err, "bytes", len(payload))
		return entity.ProgressEvent{}, false
	}
	return ev, true
}

// Decode reads r until EOF, passing each event to fn. It stops early when fn returns
// false or ctx is done. EOF is a normal end and returns nil.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, fn func(entity.ProgressEvent) bool) error {
	chunk := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			for _, ev := range d.Feed(chunk[:n]) {
				if !fn(ev) {
					return nil
				}
			}
		}
		if errors.Is(err, io.EOF) {
			for _, ev := range d.Flush() {
				if !fn(ev) {
					return nil
				}
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}
