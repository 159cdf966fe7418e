package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceCreationError(t *testing.T) {
	cause := errors.New("missing api key")
	err := fmt.Errorf("get instance: %w", &InstanceCreationError{Key: NewConversationKey("u1", "t1"), Err: cause})

	assert.ErrorIs(t, err, ErrInstanceCreation)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrAgentInvocation)
	assert.Contains(t, err.Error(), "u1:t1")
	assert.Equal(t, KindInstanceCreation, Kind(err))

	var ice *InstanceCreationError
	assert.True(t, errors.As(err, &ice))
	assert.Equal(t, "t1", ice.Key.ConversationID)
}

func TestAgentInvocationError(t *testing.T) {
	t.Run("provider failure", func(t *testing.T) {
		err := &AgentInvocationError{Step: 3, Instruction: "x", Err: assert.AnError}

		assert.ErrorIs(t, err, ErrAgentInvocation)
		assert.ErrorIs(t, err, assert.AnError)
		assert.NotErrorIs(t, err, ErrTimeout)
		assert.False(t, err.Timeout())
		assert.Equal(t, KindAgentInvocation, Kind(err))
		assert.Contains(t, err.Error(), "step 3 failed")
	})

	t.Run("deadline", func(t *testing.T) {
		err := &AgentInvocationError{Step: 1, Err: fmt.Errorf("call: %w", context.DeadlineExceeded)}

		assert.ErrorIs(t, err, ErrAgentInvocation)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.True(t, err.Timeout())
		assert.Equal(t, KindTimeout, Kind(err))
		assert.Contains(t, err.Error(), "timed out")
	})

	t.Run("canceled", func(t *testing.T) {
		err := &AgentInvocationError{Step: 2, Err: context.Canceled}
		assert.Equal(t, KindCanceled, Kind(err))
	})
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, KindRegistryRace, Kind(&RegistryRaceError{Key: NewConversationKey("a", "b")}))
	assert.Equal(t, KindInternal, Kind(errors.New("boom")))
}
