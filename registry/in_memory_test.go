package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/internal/testutil"
)

// fakeClock is a manually advanced clock safe for concurrent use.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu        sync.Mutex
	creates   int
	failures  int
	removals  map[string]int
	instances int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{removals: map[string]int{}}
}

func (m *recordingMetrics) ObserveCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failures++
		return
	}
	m.creates++
}

func (m *recordingMetrics) ObserveRemoval(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removals[reason]++
}

func (m *recordingMetrics) SetInstances(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances = n
}

var (
	keyA = core.NewConversationKey("alice", "t1")
	keyB = core.NewConversationKey("bob", "t1")
	keyC = core.NewConversationKey("carol", "t1")
)

func TestGetOrCreate_ReturnsSameInstance(t *testing.T) {
	f := testutil.NewFactory()
	r := New(f)
	defer r.Close()

	first, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)
	second, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.Created())
	assert.Equal(t, 1, r.Len())
}

func TestGetOrCreate_DistinctKeys(t *testing.T) {
	f := testutil.NewFactory()
	r := New(f)
	defer r.Close()

	a, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)
	b, err := r.GetOrCreate(context.Background(), keyB)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())
}

func TestGetOrCreate_KeysWithSeparatorDoNotCollide(t *testing.T) {
	f := testutil.NewFactory()
	r := New(f)
	defer r.Close()

	a, err := r.GetOrCreate(context.Background(), core.NewConversationKey("a:b", "c"))
	require.NoError(t, err)
	b, err := r.GetOrCreate(context.Background(), core.NewConversationKey("a", "b:c"))
	require.NoError(t, err)

	assert.NotSame(t, a, b)
}

func TestReset_CreatesFreshInstance(t *testing.T) {
	f := testutil.NewFactory()
	r := New(f)
	defer r.Close()

	before, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)

	r.Reset(keyA)
	assert.Equal(t, 0, r.Len())
	assert.True(t, before.(*testutil.Instance).Closed())

	after, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)

	assert.NotSame(t, before, after)
	assert.Equal(t, 2, f.Created())
}

func TestReset_AbsentKeyIsNoOp(t *testing.T) {
	var evicted int
	r := New(testutil.NewFactory(), func(o *Options) {
		o.OnEvict = func(core.ConversationKey, core.Instance, string) { evicted++ }
	})
	defer r.Close()

	assert.NotPanics(t, func() { r.Reset(keyA) })
	assert.Equal(t, 0, evicted)
	assert.Equal(t, 0, r.Len())
}

func TestGetOrCreate_FactoryFailureIsNotCached(t *testing.T) {
	f := testutil.NewFactory()
	f.FailWith(assert.AnError)
	m := newRecordingMetrics()
	r := New(f, func(o *Options) { o.Metrics = m })
	defer r.Close()

	inst, err := r.GetOrCreate(context.Background(), keyA)
	require.Error(t, err)
	assert.Nil(t, inst)
	assert.ErrorIs(t, err, core.ErrInstanceCreation)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, r.Len())

	f.FailWith(nil)
	inst, err = r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)
	assert.NotNil(t, inst)
	assert.Equal(t, 2, f.Created())
	assert.Equal(t, 1, m.failures)
	assert.Equal(t, 1, m.creates)
}

func TestGetOrCreate_NilInstanceIsCreationError(t *testing.T) {
	r := New(core.FactoryFunc(func(context.Context) (core.Instance, error) { return nil, nil }))
	defer r.Close()

	_, err := r.GetOrCreate(context.Background(), keyA)
	assert.ErrorIs(t, err, core.ErrInstanceCreation)
	assert.Equal(t, 0, r.Len())
}

func TestGetOrCreate_ConcurrentFirstAccessCreatesOnce(t *testing.T) {
	f := testutil.NewFactory()
	entered, release := f.Block()
	r := New(f)
	defer r.Close()

	const callers = 32
	results := make([]core.Instance, callers)
	var wg sync.WaitGroup
	var started atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Add(1)
			inst, err := r.GetOrCreate(context.Background(), keyA)
			assert.NoError(t, err)
			results[i] = inst
		}(i)
	}

	<-entered
	require.Eventually(t, func() bool { return started.Load() == callers }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	release()
	wg.Wait()

	assert.Equal(t, 1, f.Created())
	for _, inst := range results {
		assert.Same(t, results[0], inst)
	}
	assert.Equal(t, 1, r.Len())
}

// waiters returns how many callers hold the creation pending for key.
func waiters(r *InMemoryRegistry, key core.ConversationKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[key]; ok {
		return p.refs
	}
	return 0
}

func TestGetOrCreate_CanceledCallerDoesNotFailJoinedCallers(t *testing.T) {
	f := testutil.NewFactory()
	entered, release := f.Block()
	r := New(f)
	defer r.Close()

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.GetOrCreate(ctxA, keyA)
		errA <- err
	}()
	<-entered

	type result struct {
		inst core.Instance
		err  error
	}
	doneB := make(chan result, 1)
	go func() {
		inst, err := r.GetOrCreate(context.Background(), keyA)
		doneB <- result{inst, err}
	}()
	require.Eventually(t, func() bool { return waiters(r, keyA) == 2 }, time.Second, time.Millisecond)

	cancelA()
	err := <-errA
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrInstanceCreation)

	release()
	resB := <-doneB
	require.NoError(t, resB.err)
	require.NotNil(t, resB.inst)

	assert.Equal(t, 1, f.Created())
	assert.Equal(t, 1, r.Len(), "the shared creation is stored")

	again, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)
	assert.Same(t, resB.inst, again)
}

func TestGetOrCreate_CreationOutlivesAbandonedCaller(t *testing.T) {
	f := testutil.NewFactory()
	entered, release := f.Block()
	r := New(f)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		_, err := r.GetOrCreate(ctx, keyA)
		errs <- err
	}()
	<-entered

	assert.ErrorIs(t, <-errs, context.DeadlineExceeded)
	release()

	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, time.Millisecond)
	_, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Created())
}

func TestGetOrCreate_CreateTimeout(t *testing.T) {
	f := testutil.NewFactory()
	_, release := f.Block()
	defer release()
	r := New(f, func(o *Options) { o.CreateTimeout = 20 * time.Millisecond })
	defer r.Close()

	_, err := r.GetOrCreate(context.Background(), keyA)
	require.ErrorIs(t, err, core.ErrInstanceCreation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, r.Len())
}

func TestReset_DuringCreationIsNotStored(t *testing.T) {
	f := testutil.NewFactory()
	entered, release := f.Block()
	r := New(f)
	defer r.Close()

	type result struct {
		inst    core.Instance
		release func()
		err     error
	}
	done := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			inst, rel, err := r.Acquire(context.Background(), keyA)
			done <- result{inst, rel, err}
		}()
	}
	<-entered
	require.Eventually(t, func() bool { return waiters(r, keyA) == 2 }, time.Second, time.Millisecond)

	r.Reset(keyA)
	release()

	first, second := <-done, <-done
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	require.NotNil(t, first.inst, "the in-flight callers still get their instance")
	assert.Same(t, first.inst, second.inst)
	assert.Equal(t, 0, r.Len(), "reset wins for future lookups")

	discarded := first.inst.(*testutil.Instance)
	first.release()
	assert.False(t, discarded.Closed(), "still held by the second caller")
	second.release()
	second.release()
	assert.True(t, discarded.Closed(), "closed after the last holder released it")

	next, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)
	assert.NotSame(t, first.inst, next)
}

func TestReset_DuringCreationWithoutHoldersClosesInstance(t *testing.T) {
	var evicted []string
	var mu sync.Mutex
	f := testutil.NewFactory()
	entered, release := f.Block()
	r := New(f, func(o *Options) {
		o.OnEvict = func(_ core.ConversationKey, _ core.Instance, reason string) {
			mu.Lock()
			defer mu.Unlock()
			evicted = append(evicted, reason)
		}
	})
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, _, err := r.Acquire(ctx, keyA)
		errs <- err
	}()
	<-entered

	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)
	r.Reset(keyA)
	release()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(evicted) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{ReasonDiscarded}, evicted)
	assert.Equal(t, 0, r.Len())
}

func TestAcquire_StoredInstanceReleaseIsNoOp(t *testing.T) {
	r := New(testutil.NewFactory())
	defer r.Close()

	inst, rel, err := r.Acquire(context.Background(), keyA)
	require.NoError(t, err)
	rel()

	again, rel2, err := r.Acquire(context.Background(), keyA)
	require.NoError(t, err)
	rel2()
	assert.Same(t, inst, again)
	assert.False(t, inst.(*testutil.Instance).Closed())
}

func TestReset_InFlightRunKeepsCapturedInstance(t *testing.T) {
	r := New(testutil.NewFactory())
	defer r.Close()

	captured, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)

	r.Reset(keyA)

	// The captured instance is still usable by the run that holds it.
	resp, _, err := captured.Invoke(context.Background(), "hello", core.AgentOutputs{})
	require.NoError(t, err)
	assert.Equal(t, "r1", resp)
}

func TestTTL_ExpiresIdleEntries(t *testing.T) {
	clock := newFakeClock()
	f := testutil.NewFactory()
	m := newRecordingMetrics()
	r := New(f, func(o *Options) {
		o.TTL = time.Minute
		o.Clock = clock.Now
		o.Metrics = m
	})
	defer r.Close()

	first, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	again, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)
	assert.Same(t, first, again, "access refreshes the idle timer")

	clock.Advance(61 * time.Second)
	fresh, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Equal(t, 1, m.removals[ReasonExpired])
}

func TestSweep(t *testing.T) {
	clock := newFakeClock()
	var reasons []string
	r := New(testutil.NewFactory(), func(o *Options) {
		o.TTL = time.Minute
		o.Clock = clock.Now
		o.OnEvict = func(_ core.ConversationKey, _ core.Instance, reason string) { reasons = append(reasons, reason) }
	})
	defer r.Close()

	_, _ = r.GetOrCreate(context.Background(), keyA)
	clock.Advance(45 * time.Second)
	_, _ = r.GetOrCreate(context.Background(), keyB)
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{ReasonExpired}, reasons)

	noTTL := New(testutil.NewFactory())
	defer noTTL.Close()
	_, _ = noTTL.GetOrCreate(context.Background(), keyA)
	assert.Equal(t, 0, noTTL.Sweep())
}

func TestMaxEntries_EvictsLeastRecentlyUsed(t *testing.T) {
	evicted := map[core.ConversationKey]string{}
	r := New(testutil.NewFactory(), func(o *Options) {
		o.MaxEntries = 2
		o.OnEvict = func(k core.ConversationKey, _ core.Instance, reason string) { evicted[k] = reason }
	})
	defer r.Close()

	a, _ := r.GetOrCreate(context.Background(), keyA)
	_, _ = r.GetOrCreate(context.Background(), keyB)
	// Touch A so B becomes the least recently used.
	_, _ = r.GetOrCreate(context.Background(), keyA)
	_, _ = r.GetOrCreate(context.Background(), keyC)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, map[core.ConversationKey]string{keyB: ReasonEvicted}, evicted)

	stillA, _ := r.GetOrCreate(context.Background(), keyA)
	assert.Same(t, a, stillA)
}

func TestJanitor(t *testing.T) {
	clock := newFakeClock()
	r := New(testutil.NewFactory(), func(o *Options) {
		o.TTL = time.Second
		o.SweepInterval = 5 * time.Millisecond
		o.Clock = clock.Now
	})
	defer r.Close()

	_, err := r.GetOrCreate(context.Background(), keyA)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClose(t *testing.T) {
	m := newRecordingMetrics()
	r := New(testutil.NewFactory(), func(o *Options) { o.Metrics = m })

	a, _ := r.GetOrCreate(context.Background(), keyA)
	_, _ = r.GetOrCreate(context.Background(), keyB)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Equal(t, 0, r.Len())
	assert.True(t, a.(*testutil.Instance).Closed())
	assert.Equal(t, 2, m.removals[ReasonClosed])
	assert.Equal(t, 0, m.instances)
}
