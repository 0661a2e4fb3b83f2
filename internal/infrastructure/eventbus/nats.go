package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"appgen/internal/domain/entity"
	"appgen/internal/infrastructure/metrics"

	"github.com/nats-io/nats.go"
)

const (
	DefaultSubjectPrefix = "generation"
	SubjectCompleted     = "completed"
	SubjectFailed        = "failed"
)

// Connect dials NATS with bounded timeout and reconnects.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// JobSummary is the message published for each finished job. Files are listed by path only.
type JobSummary struct {
	JobID      string    `json:"jobId"`
	Success    bool      `json:"success"`
	AppName    string    `json:"appName,omitempty"`
	AppType    string    `json:"appType,omitempty"`
	Reused     bool      `json:"reused"`
	Files      []string  `json:"files"`
	Errors     []string  `json:"errors,omitempty"`
	Warnings   int       `json:"warnings"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Notifier publishes job summaries to <prefix>.completed or <prefix>.failed.
type Notifier struct {
	pub    Publisher
	prefix string
}

func NewNotifier(pub Publisher, prefix string) *Notifier {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Notifier{pub: pub, prefix: prefix}
}

func (n *Notifier) NotifyFinished(ctx context.Context, res *entity.JobResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	summary := JobSummary{
		JobID:      res.JobID,
		Success:    res.Success,
		Reused:     res.Reused,
		Files:      res.Files.Paths(),
		Errors:     res.Errors,
		Warnings:   len(res.Validation.Warnings),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Structure != nil {
		summary.AppName = res.Structure.AppName
		summary.AppType = res.Structure.AppType
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal job summary: %w", err)
	}

	subject := n.prefix + "." + SubjectFailed
	if res.Success {
		subject = n.prefix + "." + SubjectCompleted
	}
	if err := n.pub.Publish(subject, payload); err != nil {
		metrics.IncError("eventbus", "publish")
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
