package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerationRequest is the body of POST /generate. It is not modified once a job starts.
type GenerationRequest struct {
	UserInput    string         `json:"userInput"`
	ReuseSimilar bool           `json:"reuseSimilar"`
	MaxRetries   *int           `json:"maxRetries,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
}

// Retries returns the requested retry budget, falling back to def when omitted.
func (r GenerationRequest) Retries(def int) int {
	if r.MaxRetries == nil {
		return def
	}
	return *r.MaxRetries
}

// Validate checks the request before it is admitted to the pipeline.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.UserInput) == "" {
		return &ValidationError{Field: "userInput", Reason: "is required"}
	}
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return &ValidationError{Field: "maxRetries", Reason: "must be >= 0"}
	}
	return nil
}

// Structure is the design object produced by idea analysis. The pipeline treats it as
// opaque except for SourceInput and ReusedFrom, which it sets itself.
type Structure struct {
	AppName     string            `json:"appName" bson:"app_name"`
	AppType     string            `json:"appType" bson:"app_type"`
	Summary     string            `json:"summary" bson:"summary"`
	Features    []string          `json:"features" bson:"features"`
	Screens     []string          `json:"screens" bson:"screens"`
	DataModel   map[string]string `json:"dataModel,omitempty" bson:"data_model,omitempty"`
	SourceInput string            `json:"sourceInput" bson:"source_input"`
	ReusedFrom  string            `json:"reusedFrom,omitempty" bson:"reused_from,omitempty"`
}

// Clone returns a deep copy so adapted structures never alias history entries.
func (s Structure) Clone() Structure {
	out := s
	out.Features = append([]string(nil), s.Features...)
	out.Screens = append([]string(nil), s.Screens...)
	if s.DataModel != nil {
		out.DataModel = make(map[string]string, len(s.DataModel))
		for k, v := range s.DataModel {
			out.DataModel[k] = v
		}
	}
	return out
}

// Synthesis is what the generator returns for one application-synthesis attempt.
type Synthesis struct {
	Files   []*GeneratedFile `json:"files"`
	Summary string           `json:"summary,omitempty"`
}

type ValidationReport struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// JobResult is the outcome of one pipeline run. Files is non-empty iff Success.
type JobResult struct {
	JobID      string           `json:"jobId"`
	Success    bool             `json:"success"`
	Files      FileSet          `json:"files"`
	Structure  *Structure       `json:"structure,omitempty"`
	Validation ValidationReport `json:"validation"`
	Errors     []string         `json:"errors"`
	Reused     bool             `json:"reused"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
}

func NewJobResult() *JobResult {
	return &JobResult{
		JobID:      uuid.NewString(),
		Files:      FileSet{},
		Validation: ValidationReport{Errors: []string{}, Warnings: []string{}},
		Errors:     []string{},
		StartedAt:  time.Now().UTC(),
	}
}
