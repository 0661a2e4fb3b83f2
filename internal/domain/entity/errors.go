package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrStreamClosed  = errors.New("progress stream already terminated")
	ErrJobInFlight   = errors.New("a generation job is already running for this session")
	ErrNotIdle       = errors.New("session must be reset before starting a new job")
	ErrMissingInput  = errors.New("user input is required")
	ErrNoFiles       = errors.New("synthesis reported success but produced no files")
	ErrJobNotFound   = errors.New("job not found")
	ErrEmptyResponse = errors.New("generator returned an empty response")
)

// ValidationError rejects a request before it enters the pipeline.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + " " + e.Reason
}

// RateLimitedError is returned when a client exhausted its window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", int(e.RetryAfter.Seconds()))
}

// StageError is a failure of one pipeline stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// RetryExhaustedError collects the failure of every generation attempt.
type RetryExhaustedError struct {
	Attempts []error
}

func (e *RetryExhaustedError) Error() string {
	msgs := e.Messages()
	return fmt.Sprintf("generation failed after %d attempts: %s", len(msgs), strings.Join(msgs, "; "))
}

// Messages returns one "attempt N: ..." line per failed attempt.
func (e *RetryExhaustedError) Messages() []string {
	out := make([]string, 0, len(e.Attempts))
	for i, err := range e.Attempts {
		out = append(out, fmt.Sprintf("attempt %d: %v", i+1, err))
	}
	return out
}
