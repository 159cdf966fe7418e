package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/swarmchat/core"
)

// Call records one Invoke.
type Call struct {
	Instruction string
	Outputs     core.AgentOutputs
}

// HandlerFunc scripts the behavior of an Instance for one call. n is 1-based.
type HandlerFunc func(ctx context.Context, n int, instruction string, outputs core.AgentOutputs) (string, core.AgentOutputs, error)

// Instance is a scripted core.Instance.
//
// By default the n-th call answers "r<n>" and records the response under the
// key "step<n>" in the returned outputs.
type Instance struct {
	ID string

	mu      sync.Mutex
	calls   []Call
	handler HandlerFunc
	failAt  map[int]error
	closed  bool
}

// NewInstance creates a scripted instance with the default handler.
func NewInstance(id string) *Instance {
	return &Instance{ID: id, handler: defaultHandler, failAt: map[int]error{}}
}

func defaultHandler(_ context.Context, n int, _ string, outputs core.AgentOutputs) (string, core.AgentOutputs, error) {
	resp := fmt.Sprintf("r%d", n)
	return resp, outputs.Merge(core.AgentOutputs{fmt.Sprintf("step%d", n): resp}), nil
}

// WithHandler replaces the handler (chainable).
func (i *Instance) WithHandler(h HandlerFunc) *Instance {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handler = h
	return i
}

// FailAt makes the n-th call return err (chainable).
func (i *Instance) FailAt(n int, err error) *Instance {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failAt[n] = err
	return i
}

// Invoke implements core.Instance.
func (i *Instance) Invoke(ctx context.Context, instruction string, outputs core.AgentOutputs) (string, core.AgentOutputs, error) {
	i.mu.Lock()
	i.calls = append(i.calls, Call{Instruction: instruction, Outputs: outputs.Clone()})
	n := len(i.calls)
	handler := i.handler
	failErr := i.failAt[n]
	i.mu.Unlock()

	if failErr != nil {
		return "", nil, failErr
	}
	return handler(ctx, n, instruction, outputs)
}

// Calls returns the recorded calls.
func (i *Instance) Calls() []Call {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Call(nil), i.calls...)
}

// Close marks the instance closed; it satisfies io.Closer.
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	return nil
}

// Closed reports whether Close was called.
func (i *Instance) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// Factory is a counting core.Factory handing out scripted Instances.
type Factory struct {
	count atomic.Int64

	mu      sync.Mutex
	err     error
	gate    chan struct{}
	entered chan struct{}
	build   func(id string) *Instance
}

// NewFactory creates a factory producing NewInstance("inst-<n>").
func NewFactory() *Factory {
	return &Factory{build: NewInstance}
}

// WithBuilder overrides how instances are built (chainable).
func (f *Factory) WithBuilder(build func(id string) *Instance) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.build = build
	return f
}

// FailWith makes Create return err until cleared with nil.
func (f *Factory) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Block makes subsequent Create calls signal on entered and then wait until
// release is called (or ctx is done).
func (f *Factory) Block() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 64)
	gate := f.gate
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(gate) }) }
}

// Create implements core.Factory.
func (f *Factory) Create(ctx context.Context) (core.Instance, error) {
	n := f.count.Add(1)

	f.mu.Lock()
	gate, entered, err, build := f.gate, f.entered, f.err, f.build
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return build(fmt.Sprintf("inst-%d", n)), nil
}

// Created returns how many times Create was called.
func (f *Factory) Created() int { return int(f.count.Load()) }
