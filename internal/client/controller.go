package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"appgen/internal/domain/entity"
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var errNoTerminalEvent = errors.New("stream ended without a terminal event")

// JobFailedError is the error reported by a job that ended with an error event.
type JobFailedError struct {
	Stage    entity.Stage
	Message  string
	Attempts []string
}

func (e *JobFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Stage, e.Message, strings.Join(e.Attempts, "; "))
}

// Result is the payload of a complete event.
type Result struct {
	JobID      string                  `json:"jobId"`
	Reused     bool                    `json:"reused"`
	AllFiles   []string                `json:"allFiles"`
	Files      map[string]string       `json:"files"`
	Structure  *entity.Structure       `json:"structure"`
	Validation entity.ValidationReport `json:"validation"`
}

// Snapshot is a consistent view of the controller.
type Snapshot struct {
	State    State
	Stage    entity.Stage
	Message  string
	Progress int
	Result   *Result
	Err      error
}

// Controller drives at most one generation job at a time. Every started job gets a
// new epoch; events from an older epoch are dropped so a cancelled or reset job can
// never update the view.
type Controller struct {
	transport Transport
	logger    *slog.Logger

	mu      sync.Mutex
	snap    Snapshot
	epoch   uint64
	cancel  context.CancelFunc
	lastReq *entity.GenerationRequest
	done    chan struct{}
}

func NewController(transport Transport, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Controller{transport: transport, logger: logger, done: done}
}

// Start begins a job and returns the channel of its events. The channel is closed
// when the job ends, is cancelled or is reset.
func (c *Controller) Start(ctx context.Context, req entity.GenerationRequest) (<-chan entity.ProgressEvent, error) {
	c.mu.Lock()
	switch c.snap.State {
	case StateRunning:
		c.mu.Unlock()
		return nil, entity.ErrJobInFlight
	case StateIdle:
	default:
		c.mu.Unlock()
		return nil, entity.ErrNotIdle
	}
	if strings.TrimSpace(req.UserInput) == "" {
		c.mu.Unlock()
		return nil, entity.ErrMissingInput
	}

	c.epoch++
	epoch := c.epoch
	jobCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.snap = Snapshot{State: StateRunning}
	r := req
	c.lastReq = &r
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	events := make(chan entity.ProgressEvent, 16)
	go c.run(jobCtx, cancel, epoch, req, events, done)
	return events, nil
}

// Cancel aborts the running job. It reports whether there was one.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.State != StateRunning {
		return false
	}
	c.snap.State = StateCancelled
	c.epoch++
	c.cancel()
	return true
}

// Reset returns a finished controller to Idle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.State == StateRunning {
		return entity.ErrJobInFlight
	}
	c.resetLocked()
	return nil
}

func (c *Controller) resetLocked() {
	c.epoch++
	c.snap = Snapshot{State: StateIdle}
}

// Retry resets a failed or cancelled controller and starts the last request again.
func (c *Controller) Retry(ctx context.Context) (<-chan entity.ProgressEvent, error) {
	c.mu.Lock()
	switch c.snap.State {
	case StateFailed, StateCancelled:
	case StateRunning:
		c.mu.Unlock()
		return nil, entity.ErrJobInFlight
	default:
		c.mu.Unlock()
		return nil, entity.ErrNotIdle
	}
	if c.lastReq == nil {
		c.mu.Unlock()
		return nil, entity.ErrMissingInput
	}
	req := *c.lastReq
	c.resetLocked()
	c.mu.Unlock()

	return c.Start(ctx, req)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Done is closed once the goroutine of the latest job has returned.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, epoch uint64, req entity.GenerationRequest, events chan<- entity.ProgressEvent, done chan struct{}) {
	defer close(done)
	defer close(events)
	defer cancel()

	body, err := c.transport.Open(ctx, req)
	if err != nil {
		c.finish(epoch, err)
		return
	}
	defer body.Close()
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	terminal := false
	dec := NewDecoder(c.logger)
	err = dec.Decode(ctx, body, func(ev entity.ProgressEvent) bool {
		if !c.observe(epoch, ev) {
			return false
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return false
		}
		if ev.Type.Terminal() {
			terminal = true
			return false
		}
		return true
	})
	if terminal {
		return
	}
	if err == nil {
		err = errNoTerminalEvent
	}
	if c.finish(epoch, fmt.Errorf("read progress stream: %w", err)) {
		c.logger.Warn("progress stream ended early", "err", err)
	}
}

// observe applies ev to the snapshot if epoch is still current.
func (c *Controller) observe(epoch uint64, ev entity.ProgressEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.snap.State != StateRunning {
		return false
	}

	c.snap.Stage = ev.Stage
	c.snap.Message = ev.Message
	if ev.Progress > c.snap.Progress {
		c.snap.Progress = ev.Progress
	}

	switch ev.Type {
	case entity.EventComplete:
		res, err := decodeResult(ev.Details)
		if err != nil {
			c.logger.Warn("complete event carries an unreadable result", "err", err)
		}
		c.snap.State = StateSucceeded
		c.snap.Result = res
	case entity.EventError:
		c.snap.State = StateFailed
		c.snap.Err = &JobFailedError{Stage: ev.Stage, Message: ev.Message, Attempts: attemptErrors(ev.Details)}
	}
	return true
}

// finish fails the job of epoch unless it already ended or was superseded.
func (c *Controller) finish(epoch uint64, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.snap.State != StateRunning {
		return false
	}
	c.snap.State = StateFailed
	c.snap.Err = err
	return true
}

func decodeResult(details map[string]any) (*Result, error) {
	res := &Result{}
	if details == nil {
		return res, nil
	}
	if raw, ok := details["result"]; ok {
		b, err := json.Marshal(raw)
		if err != nil {
			return res, err
		}
		if err := json.Unmarshal(b, res); err != nil {
			return res, err
		}
	}
	if id, ok := details["jobId"].(string); ok {
		res.JobID = id
	}
	if reused, ok := details["reused"].(bool); ok {
		res.Reused = reused
	}
	return res, nil
}

func attemptErrors(details map[string]any) []string {
	raw, ok := details["errors"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
