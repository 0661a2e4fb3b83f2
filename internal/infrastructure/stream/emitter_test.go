package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"appgen/internal/domain/entity"
)

type recordingWriter struct {
	frames []entity.ProgressEvent
	err    error
	closed int
}

func (w *recordingWriter) WriteFrame(ev entity.ProgressEvent) error {
	if w.err != nil {
		return w.err
	}
	w.frames = append(w.frames, ev)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed++
	return nil
}

func TestEmitter_RejectsAfterTerminal(t *testing.T) {
	w := &recordingWriter{}
	e := NewEmitter(w)

	if err := e.Emit(entity.NewProgressEvent(entity.StageInitialization, "start")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := e.Emit(entity.NewCompleteEvent("done", nil)); err != nil {
		t.Fatalf("Emit complete: %v", err)
	}
	if err := e.Emit(entity.NewProgressEvent(entity.StageHistory, "late")); !errors.Is(err, entity.ErrStreamClosed) {
		t.Fatalf("err = %v, want ErrStreamClosed", err)
	}
	if err := e.Emit(entity.NewErrorEvent(entity.StageHistory, "late", 0, nil)); !errors.Is(err, entity.ErrStreamClosed) {
		t.Fatalf("second terminal err = %v, want ErrStreamClosed", err)
	}
	if len(w.frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(w.frames))
	}
	if !e.Terminated() {
		t.Error("Terminated() = false")
	}
}

func TestEmitter_ProgressNeverDecreases(t *testing.T) {
	w := &recordingWriter{}
	e := NewEmitter(w)

	_ = e.Emit(entity.NewProgressEvent(entity.StageFiles, "files"))
	_ = e.Emit(entity.NewProgressEvent(entity.StageGeneration, "retrying"))
	_ = e.Emit(entity.NewErrorEvent(entity.StageGeneration, "boom", 0, nil))

	want := []int{65, 65, 65}
	for i, f := range w.frames {
		if f.Progress != want[i] {
			t.Errorf("frame %d progress = %d, want %d", i, f.Progress, want[i])
		}
	}
	if e.LastProgress() != 65 {
		t.Errorf("LastProgress = %d", e.LastProgress())
	}
}

func TestEmitter_WriteFailureClosesStream(t *testing.T) {
	w := &recordingWriter{err: errors.New("broken pipe")}
	e := NewEmitter(w)

	if err := e.Emit(entity.NewProgressEvent(entity.StageInitialization, "start")); err == nil {
		t.Fatal("expected write error")
	}
	w.err = nil
	if err := e.Emit(entity.NewProgressEvent(entity.StageAnalysis, "next")); !errors.Is(err, entity.ErrStreamClosed) {
		t.Fatalf("err = %v, want ErrStreamClosed", err)
	}
}

func TestEmitter_CloseIdempotent(t *testing.T) {
	w := &recordingWriter{}
	e := NewEmitter(w)

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if w.closed != 1 {
		t.Errorf("writer closed %d times, want 1", w.closed)
	}
	if err := e.Emit(entity.NewProgressEvent(entity.StageInitialization, "x")); !errors.Is(err, entity.ErrStreamClosed) {
		t.Fatalf("emit after close err = %v", err)
	}
}

func TestSSEWriter_WireFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	e := NewEmitter(NewSSEWriter(rec))

	_ = e.Emit(entity.NewProgressEvent(entity.StageInitialization, "line one\nline two"))
	_ = e.Emit(entity.NewCompleteEvent("done", map[string]any{"jobId": "j1"}))

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !rec.Flushed {
		t.Error("response not flushed")
	}

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	if len(frames) != 2 {
		t.Fatalf("frames = %d, body %q", len(frames), body)
	}

	sc := bufio.NewScanner(strings.NewReader(frames[0]))
	lines := 0
	for sc.Scan() {
		lines++
	}
	if lines != 1 {
		t.Fatalf("frame spans %d lines", lines)
	}

	var ev entity.ProgressEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[1], "data: ")), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != entity.EventComplete || ev.Progress != 100 || ev.Details["jobId"] != "j1" {
		t.Errorf("event = %+v", ev)
	}
}
