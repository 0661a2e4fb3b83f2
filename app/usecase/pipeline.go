package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"appgen/internal/domain/entity"
	"appgen/internal/domain/repository"
	"appgen/internal/infrastructure/metrics"
)

// EventSink receives the job's progress events in order.
type EventSink interface {
	Emit(ev entity.ProgressEvent) error
}

// JobNotifier is told about every finished job, successful or not.
type JobNotifier interface {
	NotifyFinished(ctx context.Context, res *entity.JobResult) error
}

type PipelineConfig struct {
	GeneratorTimeout  time.Duration
	JobTimeout        time.Duration
	DefaultMaxRetries int
	MaxRetriesCap     int
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.GeneratorTimeout <= 0 {
		c.GeneratorTimeout = 45 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 15 * time.Minute
	}
	if c.DefaultMaxRetries < 0 {
		c.DefaultMaxRetries = 0
	}
	if c.MaxRetriesCap <= 0 {
		c.MaxRetriesCap = 5
	}
	return c
}

type PipelineOption func(*Pipeline)

func WithNotifier(n JobNotifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

// Pipeline runs generation jobs through the fixed stage sequence.
type Pipeline struct {
	gen       repository.Generator
	validator repository.StaticValidator
	files     repository.FileWriter
	cache     *ReuseCache
	notifier  JobNotifier
	logger    *slog.Logger
	cfg       PipelineConfig
}

func NewPipeline(
	gen repository.Generator,
	validator repository.StaticValidator,
	files repository.FileWriter,
	cache *ReuseCache,
	logger *slog.Logger,
	cfg PipelineConfig,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		gen:       gen,
		validator: validator,
		files:     files,
		cache:     cache,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Config() PipelineConfig {
	return p.cfg
}

// Retries resolves the retry budget of a request: default when omitted, capped above.
func (p *Pipeline) Retries(req entity.GenerationRequest) int {
	n := req.Retries(p.cfg.DefaultMaxRetries)
	if n < 0 {
		n = 0
	}
	if n > p.cfg.MaxRetriesCap {
		n = p.cfg.MaxRetriesCap
	}
	return n
}

// Run executes one job and returns its result. Every failure ends in exactly one Error
// event on sink; Run itself never returns an error or panics.
func (p *Pipeline) Run(ctx context.Context, jobID string, req entity.GenerationRequest, sink EventSink) *entity.JobResult {
	res := entity.NewJobResult()
	if jobID != "" {
		res.JobID = jobID
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	r := &jobRun{
		p:      p,
		req:    req,
		sink:   sink,
		res:    res,
		logger: p.logger.With("job_id", res.JobID),
	}

	metrics.IncJobStarted()
	r.logger.Info("job started", "reuse_similar", req.ReuseSimilar, "max_retries", p.Retries(req))

	if err := r.execute(ctx); err != nil {
		r.fail(err)
	}
	res.FinishedAt = time.Now().UTC()

	result := "complete"
	if !res.Success {
		result = "error"
	}
	metrics.IncJobFinished(result, res.FinishedAt.Sub(res.StartedAt))
	r.logger.Info("job finished", "success", res.Success, "duration", res.FinishedAt.Sub(res.StartedAt))

	if p.notifier != nil {
		nctx, ncancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := p.notifier.NotifyFinished(nctx, res); err != nil {
			r.logger.Warn("notify job finished", "err", err)
		}
		ncancel()
	}
	return res
}

type jobRun struct {
	p      *Pipeline
	req    entity.GenerationRequest
	sink   EventSink
	res    *entity.JobResult
	logger *slog.Logger

	stage      entity.Stage
	stageStart time.Time
	progress   int
	attempts   []error
}

func (r *jobRun) execute(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &entity.StageError{Stage: r.stage, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	// 1. initialization
	r.enter(entity.StageInitialization, "Starting generation", nil)
	if strings.TrimSpace(r.req.UserInput) == "" {
		return &entity.StageError{Stage: entity.StageInitialization, Err: entity.ErrMissingInput}
	}
	if err := r.req.Validate(); err != nil {
		return &entity.StageError{Stage: entity.StageInitialization, Err: err}
	}

	// 2-3. analysis, or reuse of a similar earlier design
	var match Match
	reused := false
	if r.req.ReuseSimilar && r.p.cache != nil {
		match, reused = r.p.cache.FindSimilar(r.req.UserInput)
	}

	r.enter(entity.StageAnalysis, "Analyzing application idea", nil)
	var structure entity.Structure
	if reused {
		structure = match.Entry.Structure
		r.logger.Debug("similar generation found", "history_id", match.Entry.ID, "score", match.Score)
	} else {
		err := r.invoke(ctx, entity.StageAnalysis, func(ctx context.Context) error {
			s, err := r.p.gen.AnalyzeIdea(ctx, r.req.UserInput)
			structure = s
			return err
		})
		if err != nil {
			return &entity.StageError{Stage: entity.StageAnalysis, Err: err}
		}
	}

	if reused {
		r.enter(entity.StageReuse, "Reusing a similar application", map[string]any{
			"historyId":    match.Entry.ID,
			"matchedInput": match.Entry.UserInput,
			"score":        match.Score,
		})
		r.enter(entity.StageAdapting, "Adapting the design to the new request", nil)
		structure.ReusedFrom = match.Entry.ID
		r.res.Reused = true
	}
	structure.SourceInput = r.req.UserInput
	r.res.Structure = &structure

	// 4-5. generation with bounded retry; each attempt must materialize
	files, set, err := r.generate(ctx, structure)
	if err != nil {
		return err
	}

	r.enter(entity.StageFiles, fmt.Sprintf("Materialized %d files", len(set)), map[string]any{"count": len(set)})
	r.res.Files = set

	// 6. validation and one round of self-correction
	r.enter(entity.StageValidation, "Validating generated files", nil)
	files, err = r.validate(ctx, files)
	if err != nil {
		return err
	}

	// 7. writing
	r.enter(entity.StageWriting, "Writing files", nil)
	if r.p.files != nil {
		if err := r.p.files.WriteFiles(ctx, r.res.JobID, files); err != nil {
			return &entity.StageError{Stage: entity.StageWriting, Err: err}
		}
	}

	// 8-9. history, then complete
	r.enter(entity.StageHistory, "Recording generation history", nil)
	r.res.Success = true
	r.observeStage()

	r.emit(entity.NewCompleteEvent("Application generated", map[string]any{
		"jobId":  r.res.JobID,
		"reused": r.res.Reused,
		"result": map[string]any{
			"allFiles":   r.res.Files.Paths(),
			"files":      r.res.Files,
			"structure":  r.res.Structure,
			"validation": r.res.Validation,
		},
	}))

	if r.p.cache != nil {
		if _, err := r.p.cache.Record(ctx, r.res.JobID, r.req.UserInput, structure); err != nil {
			r.logger.Error("record history failed", "err", err)
			metrics.IncError("pipeline", "history_append")
		}
	}
	return nil
}

func (r *jobRun) generate(ctx context.Context, structure entity.Structure) ([]*entity.GeneratedFile, entity.FileSet, error) {
	total := r.p.Retries(r.req) + 1

	for attempt := 1; attempt <= total; attempt++ {
		msg := "Generating application"
		if attempt > 1 {
			msg = fmt.Sprintf("retrying generation (attempt %d/%d)", attempt, total)
		}
		r.enter(entity.StageGeneration, msg, map[string]any{"attempt": attempt, "maxAttempts": total})

		var syn entity.Synthesis
		err := r.invoke(ctx, entity.StageGeneration, func(ctx context.Context) error {
			s, err := r.p.gen.SynthesizeApplication(ctx, structure.Clone(), r.req.Options)
			syn = s
			return err
		})
		var set entity.FileSet
		if err == nil {
			set, err = materialize(syn.Files)
		}
		metrics.IncGenerationAttempt(err == nil)
		if err == nil {
			return syn.Files, set, nil
		}

		r.attempts = append(r.attempts, err)
		r.logger.Warn("generation attempt failed", "attempt", attempt, "err", err)
		if ctx.Err() != nil {
			break
		}
	}

	return nil, nil, &entity.StageError{
		Stage: entity.StageGeneration,
		Err:   &entity.RetryExhaustedError{Attempts: r.attempts},
	}
}

func (r *jobRun) validate(ctx context.Context, files []*entity.GeneratedFile) ([]*entity.GeneratedFile, error) {
	if r.p.validator == nil {
		metrics.IncValidationRun("pass")
		return files, nil
	}

	findings := r.p.validator.Analyze(files)
	if hasFatal(findings) {
		r.logger.Debug("fatal findings, attempting correction", "count", len(findings))
		var corrected []*entity.GeneratedFile
		err := r.invoke(ctx, entity.StageValidation, func(ctx context.Context) error {
			out, err := r.p.gen.ValidateAndCorrect(ctx, files, findings)
			corrected = out
			return err
		})
		if err != nil {
			metrics.IncValidationRun("fail")
			r.recordFindings(findings)
			return nil, &entity.StageError{Stage: entity.StageValidation, Err: fmt.Errorf("self-correction: %w", err)}
		}
		set, err := materialize(corrected)
		if err != nil {
			metrics.IncValidationRun("fail")
			return nil, &entity.StageError{Stage: entity.StageValidation, Err: fmt.Errorf("self-correction: %w", err)}
		}
		files = corrected
		r.res.Files = set
		findings = r.p.validator.Analyze(files)
		if !hasFatal(findings) {
			metrics.IncValidationRun("corrected")
		}
	}

	markFilesWithFindings(files, findings)
	r.recordFindings(findings)

	if hasFatal(findings) {
		metrics.IncValidationRun("fail")
		return nil, &entity.StageError{
			Stage: entity.StageValidation,
			Err:   fmt.Errorf("%d fatal findings remain after correction: %s", len(r.res.Validation.Errors), strings.Join(r.res.Validation.Errors, "; ")),
		}
	}
	if len(findings) > 0 {
		metrics.IncValidationRun("warn")
	} else {
		metrics.IncValidationRun("pass")
	}
	return files, nil
}

func (r *jobRun) recordFindings(findings []entity.ValidationFinding) {
	r.res.Validation = entity.ValidationReport{Errors: []string{}, Warnings: []string{}}
	for _, f := range findings {
		if f.Severity == entity.SeverityError {
			r.res.Validation.Errors = append(r.res.Validation.Errors, f.String())
		} else {
			r.res.Validation.Warnings = append(r.res.Validation.Warnings, f.String())
		}
	}
}

// invoke calls a Generator capability bounded by the generator timeout. A capability that
// ignores its context is abandoned when the timeout fires.
func (r *jobRun) invoke(ctx context.Context, stage entity.Stage, fn func(ctx context.Context) error) error {
	timeout := r.p.cfg.GeneratorTimeout
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("%s panicked: %v", stage, rec)
			}
		}()
		done <- fn(cctx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("generator timed out after %s: %w", timeout, err)
		}
		return err
	case <-cctx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("job aborted: %w", ctx.Err())
		}
		return fmt.Errorf("generator timed out after %s: %w", timeout, cctx.Err())
	}
}

// enter starts a stage and emits its checkpoint event.
func (r *jobRun) enter(stage entity.Stage, msg string, details map[string]any) {
	if r.stage != stage {
		r.observeStage()
		r.stage = stage
		r.stageStart = time.Now()
		r.logger.Debug("stage entered", "stage", stage)
	}
	ev := entity.NewProgressEvent(stage, msg)
	ev.Details = details
	r.emit(ev)
}

func (r *jobRun) observeStage() {
	if r.stage != "" {
		metrics.ObserveStageDuration(string(r.stage), time.Since(r.stageStart))
	}
}

func (r *jobRun) emit(ev entity.ProgressEvent) {
	if ev.Progress < r.progress {
		ev.Progress = r.progress
	}
	r.progress = ev.Progress
	if err := r.sink.Emit(ev); err != nil {
		r.logger.Warn("emit event", "type", ev.Type, "stage", ev.Stage, "err", err)
	}
}

func (r *jobRun) fail(err error) {
	stage := r.stage
	cause := err
	var se *entity.StageError
	if errors.As(err, &se) {
		stage = se.Stage
		cause = se.Err
	}

	details := map[string]any{"jobId": r.res.JobID}
	var rex *entity.RetryExhaustedError
	if errors.As(err, &rex) {
		r.res.Errors = rex.Messages()
		details["attempts"] = rex.Messages()
	} else {
		r.res.Errors = []string{cause.Error()}
	}
	details["errors"] = r.res.Errors
	if len(r.res.Validation.Errors) > 0 {
		details["validation"] = r.res.Validation
	}

	r.res.Success = false
	r.res.Files = entity.FileSet{}

	r.observeStage()
	metrics.IncStageFailure(string(stage))
	r.logger.Error("job failed", "stage", stage, "err", err)

	r.emit(entity.NewErrorEvent(stage, cause.Error(), r.progress, details))
}

// materialize turns synthesized files into a path map, rejecting empty, duplicate and
// escaping paths.
func materialize(files []*entity.GeneratedFile) (entity.FileSet, error) {
	if len(files) == 0 {
		return nil, entity.ErrNoFiles
	}
	set := make(entity.FileSet, len(files))
	for _, f := range files {
		if f == nil {
			return nil, errors.New("synthesis returned a nil file")
		}
		p := strings.TrimSpace(f.Path)
		if p == "" {
			return nil, errors.New("synthesis returned a file with an empty path")
		}
		clean := path.Clean(p)
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, fmt.Errorf("unsafe file path %q", f.Path)
		}
		if _, dup := set[clean]; dup {
			return nil, fmt.Errorf("duplicate file path %q", clean)
		}
		f.Path = clean
		set[clean] = f.Content
	}
	return set, nil
}

func hasFatal(findings []entity.ValidationFinding) bool {
	for _, f := range findings {
		if f.Severity == entity.SeverityError {
			return true
		}
	}
	return false
}

func markFilesWithFindings(files []*entity.GeneratedFile, findings []entity.ValidationFinding) {
	for _, file := range files {
		file.HasError = false
		file.Finding = nil
		for i := range findings {
			if findings[i].File == file.Path && findings[i].Severity == entity.SeverityError {
				file.HasError = true
				file.Finding = &findings[i]
			}
		}
	}
}
