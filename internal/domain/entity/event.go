package entity

import "time"

type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Terminal reports whether no event may follow one of this type.
func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventError
}

type Stage string

const (
	StageInitialization Stage = "initialization"
	StageAnalysis       Stage = "analysis"
	StageReuse          Stage = "reuse"
	StageAdapting       Stage = "adapting"
	StageGeneration     Stage = "generation"
	StageFiles          Stage = "files"
	StageValidation     Stage = "validation"
	StageWriting        Stage = "writing"
	StageHistory        Stage = "history"
	StageComplete       Stage = "complete"
)

var stageProgress = map[Stage]int{
	StageInitialization: 5,
	StageAnalysis:       15,
	StageReuse:          25,
	StageAdapting:       35,
	StageGeneration:     45,
	StageFiles:          65,
	StageValidation:     80,
	StageWriting:        90,
	StageHistory:        95,
	StageComplete:       100,
}

// Progress returns the fixed checkpoint of the stage.
func (s Stage) Progress() int {
	return stageProgress[s]
}

// ProgressEvent is one frame of a job's progress stream.
type ProgressEvent struct {
	Type      EventType      `json:"type"`
	Stage     Stage          `json:"stage"`
	Message   string         `json:"message"`
	Progress  int            `json:"progress"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewProgressEvent(stage Stage, message string) ProgressEvent {
	return ProgressEvent{
		Type:      EventProgress,
		Stage:     stage,
		Message:   message,
		Progress:  stage.Progress(),
		Timestamp: time.Now().UTC(),
	}
}

func NewCompleteEvent(message string, details map[string]any) ProgressEvent {
	return ProgressEvent{
		Type:      EventComplete,
		Stage:     StageComplete,
		Message:   message,
		Progress:  100,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorEvent builds a terminal error frame; progress is the last checkpoint reached.
func NewErrorEvent(stage Stage, message string, progress int, details map[string]any) ProgressEvent {
	return ProgressEvent{
		Type:      EventError,
		Stage:     stage,
		Message:   message,
		Progress:  progress,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}
