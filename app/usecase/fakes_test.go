package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"appgen/internal/domain/entity"
)

type fakeGenerator struct {
	mu          sync.Mutex
	analyzeN    int
	synthN      int
	correctN    int
	analyzeFn   func(ctx context.Context, input string) (entity.Structure, error)
	synthFn     func(ctx context.Context, attempt int, s entity.Structure, opts map[string]any) (entity.Synthesis, error)
	correctFn   func(ctx context.Context, files []*entity.GeneratedFile, findings []entity.ValidationFinding) ([]*entity.GeneratedFile, error)
	lastOptions map[string]any
}

func (g *fakeGenerator) AnalyzeIdea(ctx context.Context, input string) (entity.Structure, error) {
	g.mu.Lock()
	g.analyzeN++
	g.mu.Unlock()
	if g.analyzeFn != nil {
		return g.analyzeFn(ctx, input)
	}
	return entity.Structure{AppName: "Test App", AppType: "todo", Features: []string{"add"}}, nil
}

func (g *fakeGenerator) SynthesizeApplication(ctx context.Context, s entity.Structure, opts map[string]any) (entity.Synthesis, error) {
	g.mu.Lock()
	g.synthN++
	attempt := g.synthN
	g.lastOptions = opts
	g.mu.Unlock()
	if g.synthFn != nil {
		return g.synthFn(ctx, attempt, s, opts)
	}
	return okSynthesis(), nil
}

func (g *fakeGenerator) ValidateAndCorrect(ctx context.Context, files []*entity.GeneratedFile, findings []entity.ValidationFinding) ([]*entity.GeneratedFile, error) {
	g.mu.Lock()
	g.correctN++
	g.mu.Unlock()
	if g.correctFn != nil {
		return g.correctFn(ctx, files, findings)
	}
	return files, nil
}

func (g *fakeGenerator) calls() (analyze, synth, correct int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.analyzeN, g.synthN, g.correctN
}

func okSynthesis() entity.Synthesis {
	return entity.Synthesis{Files: []*entity.GeneratedFile{
		{Path: "package.json", Content: `{"name":"test"}`},
		{Path: "src/App.tsx", Content: "export default function App() { return null; }"},
	}}
}

// fakeValidator reports findings produced by fn for every Analyze call.
type fakeValidator struct {
	mu   sync.Mutex
	runs int
	fn   func(run int, files []*entity.GeneratedFile) []entity.ValidationFinding
}

func (v *fakeValidator) Analyze(files []*entity.GeneratedFile) []entity.ValidationFinding {
	v.mu.Lock()
	v.runs++
	run := v.runs
	v.mu.Unlock()
	if v.fn == nil {
		return nil
	}
	return v.fn(run, files)
}

type fakeWriter struct {
	mu     sync.Mutex
	writes map[string][]*entity.GeneratedFile
	err    error
}

func (w *fakeWriter) WriteFiles(_ context.Context, jobID string, files []*entity.GeneratedFile) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.writes == nil {
		w.writes = make(map[string][]*entity.GeneratedFile)
	}
	w.writes[jobID] = files
	return nil
}

func (w *fakeWriter) GetFiles(_ context.Context, jobID string) ([]*entity.GeneratedFile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	files, ok := w.writes[jobID]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return files, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []entity.ProgressEvent
	err    error
}

func (s *recordingSink) Emit(ev entity.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) stages() []entity.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Stage, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Stage)
	}
	return out
}

type fakeNotifier struct {
	mu      sync.Mutex
	results []*entity.JobResult
}

func (n *fakeNotifier) NotifyFinished(_ context.Context, res *entity.JobResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, res)
	return errors.New("broker down")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// assertWellFormed checks monotonic progress and a single terminal event at the end.
func assertWellFormed(t *testing.T, events []entity.ProgressEvent) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	last := -1
	for i, ev := range events {
		if ev.Progress < last {
			t.Errorf("event %d progress %d < %d", i, ev.Progress, last)
		}
		last = ev.Progress
		if ev.Type.Terminal() && i != len(events)-1 {
			t.Errorf("terminal event at %d of %d", i, len(events))
		}
	}
	if !events[len(events)-1].Type.Terminal() {
		t.Errorf("last event %q is not terminal", events[len(events)-1].Type)
	}
}

func intPtr(n int) *int { return &n }
