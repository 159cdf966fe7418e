package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInstanceCreation matches every *InstanceCreationError.
	ErrInstanceCreation = fmt.Errorf("instance creation failed")
	// ErrAgentInvocation matches every *AgentInvocationError.
	ErrAgentInvocation = fmt.Errorf("agent invocation failed")
	// ErrRegistryRace matches every *RegistryRaceError.
	ErrRegistryRace = fmt.Errorf("registry race detected")
	// ErrTimeout matches invocation errors caused by a step or request deadline.
	ErrTimeout = fmt.Errorf("agent invocation timed out")
)

// Error kinds reported by Kind.
const (
	KindInstanceCreation = "instance_creation"
	KindAgentInvocation  = "agent_invocation"
	KindTimeout          = "timeout"
	KindRegistryRace     = "registry_race"
	KindCanceled         = "canceled"
	KindInternal         = "internal"
)

// InstanceCreationError reports a Factory failure for a conversation. The
// registry never stores an entry when this error is returned.
type InstanceCreationError struct {
	Key ConversationKey
	Err error
}

// Error implements the error interface.
func (e *InstanceCreationError) Error() string {
	return fmt.Sprintf("failed to create instance for %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying factory error.
func (e *InstanceCreationError) Unwrap() error { return e.Err }

// Is matches ErrInstanceCreation.
func (e *InstanceCreationError) Is(target error) bool { return target == ErrInstanceCreation }

// AgentInvocationError reports the failure of a single Instance.Invoke call.
// Step is 1-based; Instruction is the text that was sent.
type AgentInvocationError struct {
	Step        int
	Instruction string
	Err         error
}

// Error implements the error interface.
func (e *AgentInvocationError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("agent step %d timed out: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("agent step %d failed: %v", e.Step, e.Err)
}

// Unwrap returns the underlying invocation error.
func (e *AgentInvocationError) Unwrap() error { return e.Err }

// Is matches ErrAgentInvocation, and ErrTimeout when the call ran out of time.
func (e *AgentInvocationError) Is(target error) bool {
	switch target {
	case ErrAgentInvocation:
		return true
	case ErrTimeout:
		return e.Timeout()
	}
	return false
}

// Timeout reports whether the call failed because a deadline expired.
func (e *AgentInvocationError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// RegistryRaceError reports an inconsistent concurrent mutation of a key's
// binding. The registry's single-flight creation keeps it unreachable.
type RegistryRaceError struct {
	Key ConversationKey
}

// Error implements the error interface.
func (e *RegistryRaceError) Error() string {
	return fmt.Sprintf("conflicting instance binding for %s", e.Key)
}

// Is matches ErrRegistryRace.
func (e *RegistryRaceError) Is(target error) bool { return target == ErrRegistryRace }

// Kind classifies an error for the request boundary.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrInstanceCreation):
		return KindInstanceCreation
	case errors.Is(err, ErrRegistryRace):
		return KindRegistryRace
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrAgentInvocation):
		return KindAgentInvocation
	default:
		return KindInternal
	}
}
