package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"appgen/internal/domain/entity"
)

// scriptedTransport hands out one body per Open call, in order.
type scriptedTransport struct {
	mu     sync.Mutex
	opens  atomic.Int32
	bodies []func() (io.ReadCloser, error)
}

func (s *scriptedTransport) Open(ctx context.Context, req entity.GenerationRequest) (io.ReadCloser, error) {
	n := int(s.opens.Add(1)) - 1
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.bodies) {
		return nil, errors.New("unexpected open")
	}
	return s.bodies[n]()
}

func staticBody(raw []byte) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
}

func drain(t *testing.T, ch <-chan entity.ProgressEvent) []entity.ProgressEvent {
	t.Helper()
	var out []entity.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event channel not closed")
		}
	}
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job goroutine did not return")
	}
}

func newRequest(input string) entity.GenerationRequest {
	return entity.GenerationRequest{UserInput: input, ReuseSimilar: true}
}

func TestController_Success(t *testing.T) {
	tr := &scriptedTransport{bodies: []func() (io.ReadCloser, error){
		staticBody(encodeStream(t, sampleEvents()...)),
	}}
	c := NewController(tr, quietLogger())

	ch, err := c.Start(context.Background(), newRequest("vocabulary app"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := drain(t, ch)
	waitDone(t, c)

	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	snap := c.Snapshot()
	if snap.State != StateSucceeded {
		t.Fatalf("state = %s, want succeeded (err %v)", snap.State, snap.Err)
	}
	if snap.Progress != 100 {
		t.Errorf("progress = %d", snap.Progress)
	}
	if snap.Result == nil || snap.Result.JobID != "job-1" || len(snap.Result.AllFiles) != 2 {
		t.Errorf("result = %+v", snap.Result)
	}

	if _, err := c.Start(context.Background(), newRequest("again")); !errors.Is(err, entity.ErrNotIdle) {
		t.Errorf("Start after success err = %v, want ErrNotIdle", err)
	}
}

func TestController_SingleInFlight(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	tr := &scriptedTransport{bodies: []func() (io.ReadCloser, error){
		func() (io.ReadCloser, error) { return pr, nil },
		staticBody(encodeStream(t, sampleEvents()...)),
	}}
	c := NewController(tr, quietLogger())

	ch, err := c.Start(context.Background(), newRequest("todo app"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.Start(context.Background(), newRequest("todo app")); !errors.Is(err, entity.ErrJobInFlight) {
		t.Fatalf("second Start err = %v, want ErrJobInFlight", err)
	}
	if err := c.Reset(); !errors.Is(err, entity.ErrJobInFlight) {
		t.Fatalf("Reset while running err = %v", err)
	}

	if !c.Cancel() {
		t.Fatal("Cancel returned false")
	}
	drain(t, ch)
	waitDone(t, c)

	if got := tr.opens.Load(); got != 1 {
		t.Fatalf("opens = %d, want 1", got)
	}
	if s := c.Snapshot().State; s != StateCancelled {
		t.Fatalf("state = %s, want cancelled", s)
	}
	if c.Cancel() {
		t.Error("second Cancel returned true")
	}

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	ch, err = c.Start(context.Background(), newRequest("todo app"))
	if err != nil {
		t.Fatalf("Start after reset: %v", err)
	}
	drain(t, ch)
	if s := c.Snapshot().State; s != StateSucceeded {
		t.Errorf("state = %s, want succeeded", s)
	}
}

func TestController_CancelDropsLateEvents(t *testing.T) {
	pr, pw := io.Pipe()
	tr := &scriptedTransport{bodies: []func() (io.ReadCloser, error){
		func() (io.ReadCloser, error) { return pr, nil },
	}}
	c := NewController(tr, quietLogger())

	ch, err := c.Start(context.Background(), newRequest("notes app"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := encodeStream(t, entity.NewProgressEvent(entity.StageInitialization, "start"))
	go func() { _, _ = pw.Write(first) }()

	select {
	case ev := <-ch:
		if ev.Stage != entity.StageInitialization {
			t.Fatalf("first event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no first event")
	}

	c.Cancel()
	rest := encodeStream(t, entity.NewProgressEvent(entity.StageAnalysis, "late"), entity.NewCompleteEvent("late", nil))
	go func() { _, _ = pw.Write(rest) }()

	if late := drain(t, ch); len(late) != 0 {
		t.Fatalf("got %d events after cancel", len(late))
	}
	waitDone(t, c)
	snap := c.Snapshot()
	if snap.State != StateCancelled || snap.Progress != 5 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestController_ErrorThenRetry(t *testing.T) {
	failed := encodeStream(t,
		entity.NewProgressEvent(entity.StageInitialization, "start"),
		entity.NewProgressEvent(entity.StageGeneration, "generating"),
		entity.NewErrorEvent(entity.StageGeneration, "generation failed", 45, map[string]any{
			"errors": []string{"attempt 1: boom", "attempt 2: boom"},
		}),
	)
	tr := &scriptedTransport{bodies: []func() (io.ReadCloser, error){
		staticBody(failed),
		staticBody(encodeStream(t, sampleEvents()...)),
	}}
	c := NewController(tr, quietLogger())

	ch, err := c.Start(context.Background(), newRequest("marketplace"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(t, ch)
	waitDone(t, c)

	snap := c.Snapshot()
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	var jobErr *JobFailedError
	if !errors.As(snap.Err, &jobErr) {
		t.Fatalf("err = %T %v, want *JobFailedError", snap.Err, snap.Err)
	}
	if jobErr.Stage != entity.StageGeneration || len(jobErr.Attempts) != 2 {
		t.Errorf("job error = %+v", jobErr)
	}
	if snap.Progress != 45 {
		t.Errorf("progress = %d, want 45", snap.Progress)
	}

	ch, err = c.Retry(context.Background())
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	drain(t, ch)
	waitDone(t, c)
	if s := c.Snapshot().State; s != StateSucceeded {
		t.Errorf("state after retry = %s", s)
	}
	if got := tr.opens.Load(); got != 2 {
		t.Errorf("opens = %d, want 2", got)
	}
}

func TestController_StreamEndsWithoutTerminal(t *testing.T) {
	tr := &scriptedTransport{bodies: []func() (io.ReadCloser, error){
		staticBody(encodeStream(t, entity.NewProgressEvent(entity.StageInitialization, "start"))),
	}}
	c := NewController(tr, quietLogger())

	ch, err := c.Start(context.Background(), newRequest("todo"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(t, ch)
	waitDone(t, c)

	snap := c.Snapshot()
	if snap.State != StateFailed || !errors.Is(snap.Err, errNoTerminalEvent) {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestController_TransportError(t *testing.T) {
	tr := &scriptedTransport{bodies: []func() (io.ReadCloser, error){
		func() (io.ReadCloser, error) {
			return nil, &entity.RateLimitedError{RetryAfter: 30 * time.Second}
		},
	}}
	c := NewController(tr, quietLogger())

	ch, err := c.Start(context.Background(), newRequest("todo"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if events := drain(t, ch); len(events) != 0 {
		t.Errorf("events = %d", len(events))
	}
	waitDone(t, c)

	var rl *entity.RateLimitedError
	if snap := c.Snapshot(); snap.State != StateFailed || !errors.As(snap.Err, &rl) {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestController_MissingInput(t *testing.T) {
	tr := &scriptedTransport{}
	c := NewController(tr, quietLogger())

	if _, err := c.Start(context.Background(), newRequest("   ")); !errors.Is(err, entity.ErrMissingInput) {
		t.Fatalf("err = %v, want ErrMissingInput", err)
	}
	if s := c.Snapshot().State; s != StateIdle {
		t.Errorf("state = %s", s)
	}
	if tr.opens.Load() != 0 {
		t.Error("transport was opened")
	}
	if _, err := c.Retry(context.Background()); !errors.Is(err, entity.ErrNotIdle) {
		t.Errorf("Retry from idle err = %v", err)
	}
}
