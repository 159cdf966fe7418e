package core

import "context"

// Instance is the opaque multi-agent capability bound to one conversation. It
// owns all conversational memory for that conversation.
//
// Invoke sends one instruction together with the artifacts accumulated so far
// and returns the response text plus the updated artifacts. Implementations
// must not mutate the outputs map they receive and must honor ctx
// cancellation.
type Instance interface {
	Invoke(ctx context.Context, instruction string, outputs AgentOutputs) (string, AgentOutputs, error)
}

// Factory builds fresh Instances. Create may fail when an upstream endpoint or
// credential is unavailable.
type Factory interface {
	Create(ctx context.Context) (Instance, error)
}

// FactoryFunc adapts a plain function to the Factory interface.
type FactoryFunc func(ctx context.Context) (Instance, error)

// Create implements Factory.
func (f FactoryFunc) Create(ctx context.Context) (Instance, error) { return f(ctx) }
