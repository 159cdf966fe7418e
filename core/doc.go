// Package core provides the foundational domain types and contracts used by
// swarmchat. It defines the abstractions shared by every other package:
//
//   - ConversationKey (the (user, conversation) pair an Instance is bound to)
//   - Instance / Factory (the opaque multi-agent capability and its builder)
//   - Step / Pipeline (ordered instructions derived from a user request)
//   - AgentOutputs (per-run artifacts keyed by role name)
//   - the error taxonomy propagated to the request boundary
//
// The package intentionally keeps implementation concerns (session storage,
// execution, concrete agents) out of scope so that the registry, the pipeline
// executor and the agent swarm only meet through these small interfaces.
package core
