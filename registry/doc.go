// Package registry binds conversations to multi-agent Instances.
//
// InMemoryRegistry keeps one core.Instance per core.ConversationKey and
// creates it lazily through a core.Factory. Creation is single-flight per key:
// concurrent first accesses share one Factory call and observe the same
// Instance. The Factory call is detached from the cancellation of whichever
// caller started it; each caller stops waiting on its own context. Failed
// creations are never cached.
//
// Reset only affects future lookups. A pipeline run that already captured an
// Instance completes against it, and a creation still in flight when Reset
// lands is handed to its callers but not stored. Callers using Acquire get
// such an Instance closed once the last of them releases it.
//
// Memory is bounded by an optional idle TTL and an optional LRU capacity.
// Entries are evicted lazily on access, by Sweep, or by a background janitor
// when Options.SweepInterval is set. Instances implementing io.Closer are
// closed when they leave the registry.
package registry
