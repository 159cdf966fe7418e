package agent

import (
	"context"
	"errors"

	"github.com/hupe1980/swarmchat/core"
)

// NewFactory returns a core.Factory producing a fresh Swarm per conversation.
// roles is called once per Create so every swarm may get its own agents.
func NewFactory(roles func() ([]*RoleAgent, error), optFns ...func(o *SwarmOptions)) core.Factory {
	return core.FactoryFunc(func(ctx context.Context) (core.Instance, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if roles == nil {
			return nil, errors.New("no role provider configured")
		}

		rs, err := roles()
		if err != nil {
			return nil, err
		}

		swarm, err := NewSwarm(rs, optFns...)
		if err != nil {
			return nil, err
		}
		return swarm, nil
	})
}
