// Package swarmchat routes chat requests to per-conversation agent swarms.
//
// An Orchestrator binds every (user, conversation) pair to its own
// core.Instance through a registry, classifies each request into a pipeline
// of agent instructions and runs that pipeline strictly in order. Most
// applications:
//  1. Build a core.Factory (usually agent.NewFactory over agent.DefaultRoles)
//  2. Create an Orchestrator via New
//  3. Call Chat per request and Reset when a user starts over
//
// Defaults are suitable for local development; see config for the settings
// used by the swarmchat binary.
package swarmchat

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/logging"
	"github.com/hupe1980/swarmchat/pipeline"
	"github.com/hupe1980/swarmchat/registry"
)

// Options configures the Orchestrator.
type Options struct {
	// TTL evicts conversations idle for longer than this. Zero keeps them
	// until Reset.
	TTL time.Duration
	// MaxConversations bounds the live conversations; the least recently
	// used one is evicted first. Zero means unbounded.
	MaxConversations int
	// SweepInterval runs expiry in the background. Zero disables it.
	SweepInterval time.Duration
	// CreateTimeout bounds building one conversation's instance. Zero
	// disables it.
	CreateTimeout time.Duration

	// StepTimeout bounds each agent invocation.
	StepTimeout time.Duration
	// RequestTimeout bounds a whole pipeline run.
	RequestTimeout time.Duration

	// MaxConcurrentRuns limits the runs executing simultaneously across all
	// conversations. Zero means unlimited.
	MaxConcurrentRuns int

	RegistryMetrics registry.Metrics
	RunMetrics      pipeline.Recorder
	Tracer          trace.Tracer

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Orchestrator is the high-level facade over the registry and the executor.
type Orchestrator struct {
	registry *registry.InMemoryRegistry
	executor *pipeline.Executor
	sem      *semaphore.Weighted
	logger   logging.Logger
}

// New creates an Orchestrator building instances with factory.
func New(factory core.Factory, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		StepTimeout:    2 * time.Minute,
		RequestTimeout: 10 * time.Minute,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	reg := registry.New(factory, func(o *registry.Options) {
		o.TTL = opts.TTL
		o.MaxEntries = opts.MaxConversations
		o.SweepInterval = opts.SweepInterval
		o.CreateTimeout = opts.CreateTimeout
		o.Metrics = opts.RegistryMetrics
		o.Logger = logger
	})

	exec := pipeline.New(func(o *pipeline.Options) {
		o.StepTimeout = opts.StepTimeout
		o.RequestTimeout = opts.RequestTimeout
		o.Metrics = opts.RunMetrics
		if opts.Tracer != nil {
			o.Tracer = opts.Tracer
		}
		o.Logger = logger
	})

	var sem *semaphore.Weighted
	if opts.MaxConcurrentRuns > 0 {
		sem = semaphore.NewWeighted(int64(opts.MaxConcurrentRuns))
	}

	return &Orchestrator{registry: reg, executor: exec, sem: sem, logger: logger}
}

// Chat answers one user turn: it resolves the conversation's instance,
// classifies text and runs the resulting pipeline. On failure no partial
// response is returned.
func (o *Orchestrator) Chat(ctx context.Context, key core.ConversationKey, text string) (pipeline.Result, error) {
	inst, release, err := o.acquire(ctx, key)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer release()

	return o.executor.Execute(ctx, inst, text)
}

// ProcessQuery sends text as a single instruction to the conversation's
// instance, starting from prior. prior is not stored between calls.
func (o *Orchestrator) ProcessQuery(ctx context.Context, key core.ConversationKey, text string, prior core.AgentOutputs) (string, core.AgentOutputs, error) {
	inst, release, err := o.acquire(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer release()

	return o.executor.ProcessQuery(ctx, inst, text, key, prior)
}

// Reset forgets the conversation. Runs already in flight finish on the
// instance they started with; the next request gets a fresh one.
func (o *Orchestrator) Reset(key core.ConversationKey) {
	o.registry.Reset(key)
}

// Conversations returns the number of live conversations.
func (o *Orchestrator) Conversations() int { return o.registry.Len() }

// Close releases every conversation and stops background work.
func (o *Orchestrator) Close() error {
	return o.registry.Close()
}

func (o *Orchestrator) acquire(ctx context.Context, key core.ConversationKey) (core.Instance, func(), error) {
	release := func() {}
	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return nil, nil, fmt.Errorf("wait for run slot: %w", err)
		}
		release = func() { o.sem.Release(1) }
	}

	inst, releaseInst, err := o.registry.Acquire(ctx, key)
	if err != nil {
		release()
		o.logger.Warn("conversation instance unavailable", "conversation", key.String(), "error", err)
		return nil, nil, err
	}

	return inst, func() {
		releaseInst()
		release()
	}, nil
}
