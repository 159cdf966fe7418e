package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmchat/model"
)

func TestNewFactory(t *testing.T) {
	calls := 0
	f := NewFactory(func() ([]*RoleAgent, error) {
		calls++
		return DefaultRoles(func(role string) (model.Model, error) { return model.NewMockModel(role), nil })
	}, func(o *SwarmOptions) { o.MaxModelCalls = 3 })

	a, err := f.Create(context.Background())
	require.NoError(t, err)
	b, err := f.Create(context.Background())
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, calls)
	require.IsType(t, &Swarm{}, a)
	assert.Equal(t, 3, a.(*Swarm).limiter.Remaining())
}

func TestNewFactory_Errors(t *testing.T) {
	_, err := NewFactory(func() ([]*RoleAgent, error) { return nil, assert.AnError }).Create(context.Background())
	assert.ErrorIs(t, err, assert.AnError)

	inst, err := NewFactory(func() ([]*RoleAgent, error) { return nil, nil }).Create(context.Background())
	assert.Error(t, err)
	assert.Nil(t, inst)

	_, err = NewFactory(nil).Create(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFactory(func() ([]*RoleAgent, error) { return nil, nil }).Create(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
