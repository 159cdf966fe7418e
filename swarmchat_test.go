package swarmchat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmchat/agent"
	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/internal/testutil"
	"github.com/hupe1980/swarmchat/model"
)

func TestOrchestrator_ChatReusesInstancePerConversation(t *testing.T) {
	f := testutil.NewFactory()
	o := New(f)
	defer func() { _ = o.Close() }()

	alice := core.NewConversationKey("alice", "t1")

	res, err := o.Chat(context.Background(), alice, "write python code")
	require.NoError(t, err)
	assert.Equal(t, "r1\n\nr2\n\nr3\n\nr4\n\n", res.Response)

	// The same instance keeps counting calls.
	res, err = o.Chat(context.Background(), alice, "hello")
	require.NoError(t, err)
	assert.Equal(t, "r5", res.Response)
	assert.Equal(t, 1, f.Created())

	_, err = o.Chat(context.Background(), core.NewConversationKey("alice", "t2"), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, f.Created())
	assert.Equal(t, 2, o.Conversations())
}

func TestOrchestrator_Reset(t *testing.T) {
	f := testutil.NewFactory()
	o := New(f)
	defer func() { _ = o.Close() }()
	key := core.NewConversationKey("bob", "t")

	_, err := o.Chat(context.Background(), key, "hi")
	require.NoError(t, err)

	o.Reset(key)
	o.Reset(key) // no-op

	res, err := o.Chat(context.Background(), key, "hi")
	require.NoError(t, err)
	assert.Equal(t, "r1", res.Response, "fresh instance after reset")
	assert.Equal(t, 2, f.Created())
}

func TestOrchestrator_ResetDuringCreationClosesInstanceAfterRun(t *testing.T) {
	built := make(chan *testutil.Instance, 1)
	f := testutil.NewFactory().WithBuilder(func(id string) *testutil.Instance {
		inst := testutil.NewInstance(id)
		built <- inst
		return inst
	})
	entered, release := f.Block()
	o := New(f)
	defer func() { _ = o.Close() }()

	key := core.NewConversationKey("alice", "t1")
	type result struct {
		response string
		err      error
	}
	done := make(chan result, 1)
	go func() {
		res, err := o.Chat(context.Background(), key, "hello")
		done <- result{res.Response, err}
	}()

	<-entered
	o.Reset(key)
	release()

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "r1", res.response, "the request still runs on its instance")

	inst := <-built
	assert.True(t, inst.Closed(), "the discarded instance is closed once the run is done")
	assert.Equal(t, 0, o.Conversations())
}

func TestOrchestrator_CreationFailure(t *testing.T) {
	f := testutil.NewFactory()
	f.FailWith(assert.AnError)
	o := New(f)
	defer func() { _ = o.Close() }()
	key := core.NewConversationKey("u", "c")

	_, err := o.Chat(context.Background(), key, "hi")
	require.Error(t, err)
	assert.Equal(t, core.KindInstanceCreation, core.Kind(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, o.Conversations())

	f.FailWith(nil)
	_, err = o.Chat(context.Background(), key, "hi")
	assert.NoError(t, err, "failures are not cached")
}

func TestOrchestrator_ProcessQuery(t *testing.T) {
	o := New(testutil.NewFactory())
	defer func() { _ = o.Close() }()

	resp, outputs, err := o.ProcessQuery(context.Background(), core.NewConversationKey("u", "c"), "anything", core.AgentOutputs{"pm": "plan"})
	require.NoError(t, err)
	assert.Equal(t, "r1", resp)
	assert.Equal(t, core.AgentOutputs{"pm": "plan", "step1": "r1"}, outputs)
}

func TestOrchestrator_MaxConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	f := testutil.NewFactory().WithBuilder(func(id string) *testutil.Instance {
		return testutil.NewInstance(id).WithHandler(func(ctx context.Context, _ int, _ string, outputs core.AgentOutputs) (string, core.AgentOutputs, error) {
			started <- struct{}{}
			<-release
			return "done", outputs, nil
		})
	})
	o := New(f, func(o *Options) { o.MaxConcurrentRuns = 1 })
	defer func() { _ = o.Close() }()

	done := make(chan error, 1)
	go func() {
		_, err := o.Chat(context.Background(), core.NewConversationKey("a", "1"), "hi")
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.Chat(ctx, core.NewConversationKey("b", "1"), "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestOrchestrator_CloseReleasesInstances(t *testing.T) {
	var built []*testutil.Instance
	f := testutil.NewFactory().WithBuilder(func(id string) *testutil.Instance {
		inst := testutil.NewInstance(id)
		built = append(built, inst)
		return inst
	})
	o := New(f)

	_, err := o.Chat(context.Background(), core.NewConversationKey("u", "c"), "hi")
	require.NoError(t, err)
	require.NoError(t, o.Close())

	require.Len(t, built, 1)
	assert.True(t, built[0].Closed())
	assert.Equal(t, 0, o.Conversations())
}

func TestOrchestrator_WithAgentSwarm(t *testing.T) {
	factory := agent.NewFactory(func() ([]*agent.RoleAgent, error) {
		return agent.DefaultRoles(func(role string) (model.Model, error) {
			return model.NewMockModel(role), nil
		})
	})
	o := New(factory)
	defer func() { _ = o.Close() }()

	res, err := o.Chat(context.Background(), core.NewConversationKey("u", "c"), "Write a python function to reverse a string")
	require.NoError(t, err)

	parts := strings.Split(strings.TrimSuffix(res.Response, "\n\n"), "\n\n")
	require.Len(t, parts, 4)
	assert.True(t, strings.HasPrefix(parts[0], "Mock response to: I need project manager agent"))
	assert.True(t, strings.HasPrefix(parts[3], "Mock response to: I need deployment engineer"))

	for _, role := range []string{agent.ProjectManager, agent.SoftwareEngineer, agent.QATester, agent.DeploymentEngineer} {
		assert.Contains(t, res.Outputs, role)
	}
	assert.NotContains(t, res.Outputs, agent.DataEngineer)
}
