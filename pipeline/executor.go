package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/intent"
	"github.com/hupe1980/swarmchat/internal/util"
	"github.com/hupe1980/swarmchat/logging"
)

// Separator is appended after every pipeline step response.
const Separator = "\n\n"

// Run and step statuses reported to Recorder.
const (
	StatusSuccess = "success"
)

// Recorder receives execution observations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveRun(intent, status string, steps int, d time.Duration)
	ObserveStep(status string, d time.Duration)
}

// Options configures an Executor.
type Options struct {
	// StepTimeout bounds each Instance.Invoke call. Zero disables it.
	StepTimeout time.Duration
	// RequestTimeout bounds a whole Execute / ProcessQuery. Zero disables it.
	RequestTimeout time.Duration
	// Classifier maps request text to a pipeline; defaults to intent.Classify.
	Classifier func(text string) core.Pipeline
	// Metrics receives observations; nil disables them.
	Metrics Recorder
	// Tracer defaults to the global otel tracer "swarmchat/pipeline".
	Tracer trace.Tracer
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	RunID    string
	Response string
	Outputs  core.AgentOutputs
	Intent   intent.Intent
	Steps    int
}

// Executor runs pipelines. It is stateless between runs and safe for
// concurrent use; runs against different Instances proceed independently.
type Executor struct {
	opts   Options
	tracer trace.Tracer
	logger logging.Logger
}

// New constructs an Executor with optional overrides.
func New(optFns ...func(o *Options)) *Executor {
	opts := Options{
		StepTimeout:    2 * time.Minute,
		RequestTimeout: 10 * time.Minute,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Classifier == nil {
		opts.Classifier = intent.Classify
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("swarmchat/pipeline")
	}

	return &Executor{opts: opts, tracer: tracer, logger: logging.OrNoOp(opts.Logger)}
}

// Execute classifies text and runs the resulting pipeline against inst.
func (e *Executor) Execute(ctx context.Context, inst core.Instance, text string) (Result, error) {
	in := intent.Detect(text)
	p := e.opts.Classifier(text)
	if p.IsDirect() {
		return e.run(ctx, inst, in, core.Pipeline{core.Step(text)}, core.AgentOutputs{}, false)
	}
	return e.run(ctx, inst, in, p, core.AgentOutputs{}, true)
}

// RunPipeline runs an explicit pipeline in pipeline mode. An empty pipeline
// yields an empty result without calling inst.
func (e *Executor) RunPipeline(ctx context.Context, inst core.Instance, p core.Pipeline) (Result, error) {
	if p.IsDirect() {
		return Result{RunID: util.NewID(), Outputs: core.AgentOutputs{}}, nil
	}
	return e.run(ctx, inst, intent.Generic, p, core.AgentOutputs{}, true)
}

// ProcessQuery sends a single instruction with prior outputs, returning the
// raw response and updated outputs. It is the building block callers use to
// compose several calls within one request; nothing is persisted.
func (e *Executor) ProcessQuery(
	ctx context.Context,
	inst core.Instance,
	text string,
	key core.ConversationKey,
	prior core.AgentOutputs,
) (string, core.AgentOutputs, error) {
	ctx, span := e.tracer.Start(ctx, "pipeline.process_query", trace.WithAttributes(
		attribute.String("swarmchat.user_id", key.UserID),
		attribute.String("swarmchat.conversation_id", key.ConversationID),
	))
	defer span.End()

	res, err := e.run(ctx, inst, intent.Detect(text), core.Pipeline{core.Step(text)}, prior.Clone(), false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}
	return res.Response, res.Outputs, nil
}

// run drives steps in order. In pipeline mode every response is followed by
// Separator; otherwise the single response is returned verbatim.
func (e *Executor) run(
	ctx context.Context,
	inst core.Instance,
	in intent.Intent,
	p core.Pipeline,
	accumulated core.AgentOutputs,
	separate bool,
) (Result, error) {
	if inst == nil {
		return Result{}, fmt.Errorf("pipeline: nil instance")
	}

	ctx, cancel := withTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	runID := util.NewID()
	mode := "direct"
	if separate {
		mode = "pipeline"
	}

	ctx, span := e.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("swarmchat.run_id", runID),
		attribute.String("swarmchat.intent", in.String()),
		attribute.String("swarmchat.mode", mode),
		attribute.Int("swarmchat.steps", len(p)),
	))
	defer span.End()

	start := time.Now()
	var combined strings.Builder
	for i, step := range p {
		resp, outputs, err := e.step(ctx, inst, runID, i+1, string(step), accumulated)
		if err != nil {
			d := time.Since(start)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.observeRun(in, core.Kind(err), i, d)
			e.logger.Error("pipeline run failed",
				"run_id", runID, "intent", in.String(), "failed_step", i+1, "steps", len(p),
				"kind", core.Kind(err), "duration", d, "error", err)
			return Result{}, err
		}
		accumulated = accumulated.Merge(outputs)
		combined.WriteString(resp)
		if separate {
			combined.WriteString(Separator)
		}
	}

	d := time.Since(start)
	e.observeRun(in, StatusSuccess, len(p), d)
	e.logger.Info("pipeline run completed",
		"run_id", runID, "intent", in.String(), "mode", mode, "steps", len(p), "duration", d)

	return Result{
		RunID:    runID,
		Response: combined.String(),
		Outputs:  accumulated,
		Intent:   in,
		Steps:    len(p),
	}, nil
}

type invokeResult struct {
	resp    string
	outputs core.AgentOutputs
	err     error
}

// step performs one bounded Invoke. The instance receives a copy of the
// accumulated outputs, so an abandoned call can never write back.
func (e *Executor) step(
	ctx context.Context,
	inst core.Instance,
	runID string,
	n int,
	instruction string,
	accumulated core.AgentOutputs,
) (string, core.AgentOutputs, error) {
	ctx, cancel := withTimeout(ctx, e.opts.StepTimeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.String("swarmchat.run_id", runID),
		attribute.Int("swarmchat.step", n),
	))
	defer span.End()

	start := time.Now()
	done := make(chan invokeResult, 1)
	go func(outputs core.AgentOutputs) {
		resp, outs, err := inst.Invoke(ctx, instruction, outputs)
		done <- invokeResult{resp: resp, outputs: outs, err: err}
	}(accumulated.Clone())

	var res invokeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = invokeResult{err: ctx.Err()}
	}

	d := time.Since(start)
	if res.err != nil {
		err := res.err
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		invErr := &core.AgentInvocationError{Step: n, Instruction: instruction, Err: err}
		span.RecordError(invErr)
		span.SetStatus(codes.Error, invErr.Error())
		e.observeStep(core.Kind(invErr), d)
		e.logger.Warn("pipeline step failed", "run_id", runID, "step", n, "duration", d, "error", err)
		return "", nil, invErr
	}

	if res.outputs == nil {
		res.outputs = core.AgentOutputs{}
	}
	e.observeStep(StatusSuccess, d)
	e.logger.Debug("pipeline step completed", "run_id", runID, "step", n, "duration", d, "response_len", len(res.resp))
	return res.resp, res.outputs, nil
}

func (e *Executor) observeRun(in intent.Intent, status string, steps int, d time.Duration) {
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveRun(in.String(), status, steps, d)
	}
}

func (e *Executor) observeStep(status string, d time.Duration) {
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveStep(status, d)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
