package registry

import (
	"container/list"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/logging"
)

// Removal reasons passed to Metrics and OnEvict.
const (
	ReasonReset   = "reset"
	ReasonExpired = "expired"
	ReasonEvicted = "evicted"
	ReasonClosed  = "closed"

	// ReasonDiscarded marks an instance whose creation lost to a Reset.
	ReasonDiscarded = "discarded"
)

// Metrics receives registry observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveCreate(err error)
	ObserveRemoval(reason string)
	SetInstances(n int)
}

// Options configures an InMemoryRegistry.
type Options struct {
	// TTL evicts entries idle for longer than this. Zero disables expiry.
	TTL time.Duration
	// MaxEntries bounds the number of bound conversations; the least
	// recently used entry is evicted first. Zero means unbounded.
	MaxEntries int
	// SweepInterval starts a janitor that calls Sweep periodically. Zero
	// disables the janitor.
	SweepInterval time.Duration
	// CreateTimeout bounds a single Factory.Create. Creation is detached from
	// the cancellation of the caller that started it, since other callers
	// may be waiting on the same creation. Zero disables the bound.
	CreateTimeout time.Duration
	// OnEvict is called (outside the lock) for every removed binding.
	OnEvict func(key core.ConversationKey, inst core.Instance, reason string)
	// Clock returns the current time; defaults to time.Now.
	Clock func() time.Time
	// Metrics receives observations; nil disables them.
	Metrics Metrics
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

type entry struct {
	key        core.ConversationKey
	inst       core.Instance
	lastAccess time.Time
	elem       *list.Element
}

type removal struct {
	entry  *entry
	reason string
}

// pending is one creation for a key. Every caller waiting on it holds a
// reference; a creation vetoed by Reset is closed once the last reference is
// released.
type pending struct {
	id     uint64
	refs   int
	vetoed bool
	done   bool
	inst   core.Instance
	err    error
}

// InMemoryRegistry is a process-local registry safe for concurrent use.
type InMemoryRegistry struct {
	factory core.Factory
	opts    Options
	logger  logging.Logger

	mu      sync.Mutex
	entries map[core.ConversationKey]*entry
	lru     *list.List // front is most recently used
	pending map[core.ConversationKey]*pending
	seq     uint64

	group singleflight.Group

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a registry creating Instances through factory.
func New(factory core.Factory, optFns ...func(o *Options)) *InMemoryRegistry {
	opts := Options{
		Clock:  time.Now,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	r := &InMemoryRegistry{
		factory: factory,
		opts:    opts,
		logger:  logging.OrNoOp(opts.Logger),
		entries: make(map[core.ConversationKey]*entry),
		lru:     list.New(),
		pending: make(map[core.ConversationKey]*pending),
		stop:    make(chan struct{}),
	}

	if opts.SweepInterval > 0 {
		r.wg.Add(1)
		go r.janitor(opts.SweepInterval)
	}

	return r
}

// GetOrCreate returns the Instance bound to key, creating it on first access.
// Repeated calls without an intervening Reset return the same Instance.
// Factory failures are returned as *core.InstanceCreationError and nothing is
// stored. An instance whose creation was vetoed by a concurrent Reset is
// handed to the caller unmanaged; use Acquire to have it closed after use.
func (r *InMemoryRegistry) GetOrCreate(ctx context.Context, key core.ConversationKey) (core.Instance, error) {
	inst, _, err := r.Acquire(ctx, key)
	return inst, err
}

// Acquire is GetOrCreate plus a release func the caller must call once it is
// done with the instance. Release only matters for an instance whose creation
// was vetoed by Reset: it is closed when its last holder releases it.
//
// Concurrent first accesses share one creation. Each caller waits on its own
// ctx; a caller giving up does not fail the others.
func (r *InMemoryRegistry) Acquire(ctx context.Context, key core.ConversationKey) (core.Instance, func(), error) {
	r.mu.Lock()
	inst, removed := r.lookupLocked(key)
	var p *pending
	if inst == nil {
		p = r.pending[key]
		if p == nil {
			r.seq++
			p = &pending{id: r.seq}
			r.pending[key] = p
		}
		p.refs++
	}
	r.mu.Unlock()
	r.finish(removed)

	if inst != nil {
		return inst, func() {}, nil
	}

	ch := r.group.DoChan(flightKey(key, p.id), func() (any, error) {
		return r.create(ctx, key, p)
	})

	var once sync.Once
	release := func() { once.Do(func() { r.release(key, p) }) }

	select {
	case res := <-ch:
		if res.Err != nil {
			release()
			return nil, nil, res.Err
		}
		if res.Shared {
			r.logger.Debug("registry shared instance creation", "key", key.String())
		}
		return res.Val.(core.Instance), release, nil
	case <-ctx.Done():
		release()
		return nil, nil, fmt.Errorf("wait for instance of %s: %w", key, ctx.Err())
	}
}

// create runs inside the single-flight group for p. A caller that joins after
// p finished gets p's recorded outcome instead of a second creation.
func (r *InMemoryRegistry) create(ctx context.Context, key core.ConversationKey, p *pending) (core.Instance, error) {
	r.mu.Lock()
	if p.done {
		inst, err := p.inst, p.err
		r.mu.Unlock()
		return inst, err
	}
	r.mu.Unlock()

	createCtx, cancel := withTimeout(context.WithoutCancel(ctx), r.opts.CreateTimeout)
	defer cancel()

	start := r.opts.Clock()
	inst, err := r.factory.Create(createCtx)
	if err == nil && inst == nil {
		err = fmt.Errorf("factory returned nil instance")
	}

	r.mu.Lock()
	if r.pending[key] == p {
		delete(r.pending, key)
	}
	p.done = true

	if err != nil {
		p.err = &core.InstanceCreationError{Key: key, Err: err}
		r.mu.Unlock()
		r.observeCreate(err)
		r.logger.Error("registry instance creation failed", "key", key.String(), "error", err)
		return nil, p.err
	}

	p.inst = inst

	if p.vetoed {
		var orphan []removal
		if p.refs == 0 {
			orphan = []removal{{entry: &entry{key: key, inst: inst}, reason: ReasonDiscarded}}
		}
		r.mu.Unlock()
		r.observeCreate(nil)
		r.logger.Info("registry discarded instance created during reset", "key", key.String())
		r.finish(orphan)
		return inst, nil
	}

	if e, ok := r.entries[key]; ok && e.inst != inst {
		p.inst, p.err = nil, &core.RegistryRaceError{Key: key}
		r.mu.Unlock()
		return nil, p.err
	}

	now := r.opts.Clock()
	e := &entry{key: key, inst: inst, lastAccess: now}
	e.elem = r.lru.PushFront(e)
	r.entries[key] = e

	var removed []removal
	for r.opts.MaxEntries > 0 && r.lru.Len() > r.opts.MaxEntries {
		oldest := r.lru.Back().Value.(*entry)
		r.removeLocked(oldest)
		removed = append(removed, removal{entry: oldest, reason: ReasonEvicted})
	}
	n := len(r.entries)
	r.mu.Unlock()

	r.observeCreate(nil)
	r.setInstances(n)
	r.logger.Info("registry created instance", "key", key.String(), "duration", now.Sub(start))
	r.finish(removed)

	return inst, nil
}

// release drops one reference to p, closing a vetoed instance nobody holds.
func (r *InMemoryRegistry) release(key core.ConversationKey, p *pending) {
	r.mu.Lock()
	p.refs--
	var orphan []removal
	if p.refs == 0 && p.done && p.vetoed && p.inst != nil {
		orphan = []removal{{entry: &entry{key: key, inst: p.inst}, reason: ReasonDiscarded}}
		p.inst = nil
	}
	r.mu.Unlock()
	r.finish(orphan)
}

// Reset removes the binding for key. Resetting an absent key is a no-op.
// A creation in flight for key is not stored: its waiting callers still get
// the instance, and Acquire holders have it closed after their last release.
func (r *InMemoryRegistry) Reset(key core.ConversationKey) {
	r.mu.Lock()
	if p, ok := r.pending[key]; ok {
		p.vetoed = true
		delete(r.pending, key)
	}
	var removed []removal
	if e, ok := r.entries[key]; ok {
		r.removeLocked(e)
		removed = append(removed, removal{entry: e, reason: ReasonReset})
	}
	n := len(r.entries)
	r.mu.Unlock()

	if len(removed) > 0 {
		r.logger.Info("registry reset conversation", "key", key.String())
		r.setInstances(n)
	}
	r.finish(removed)
}

// Sweep removes every expired entry and returns how many were removed.
func (r *InMemoryRegistry) Sweep() int {
	if r.opts.TTL <= 0 {
		return 0
	}

	now := r.opts.Clock()
	r.mu.Lock()
	var removed []removal
	for el := r.lru.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if r.expiredLocked(e, now) {
			r.removeLocked(e)
			removed = append(removed, removal{entry: e, reason: ReasonExpired})
		}
		el = prev
	}
	n := len(r.entries)
	r.mu.Unlock()

	if len(removed) > 0 {
		r.logger.Debug("registry swept expired instances", "count", len(removed))
		r.setInstances(n)
	}
	r.finish(removed)
	return len(removed)
}

// Len returns the number of bound conversations.
func (r *InMemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the janitor and drops every binding.
func (r *InMemoryRegistry) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()

	r.mu.Lock()
	removed := make([]removal, 0, len(r.entries))
	for _, e := range r.entries {
		removed = append(removed, removal{entry: e, reason: ReasonClosed})
	}
	r.entries = make(map[core.ConversationKey]*entry)
	r.lru.Init()
	for _, p := range r.pending {
		p.vetoed = true
	}
	r.pending = make(map[core.ConversationKey]*pending)
	r.mu.Unlock()

	r.setInstances(0)
	r.finish(removed)
	return nil
}

// lookupLocked returns the live instance for key, refreshing its recency.
// Expired entries are removed and returned for finishing outside the lock.
func (r *InMemoryRegistry) lookupLocked(key core.ConversationKey) (core.Instance, []removal) {
	e, ok := r.entries[key]
	if !ok {
		return nil, nil
	}
	now := r.opts.Clock()
	if r.expiredLocked(e, now) {
		r.removeLocked(e)
		return nil, []removal{{entry: e, reason: ReasonExpired}}
	}
	e.lastAccess = now
	r.lru.MoveToFront(e.elem)
	return e.inst, nil
}

func (r *InMemoryRegistry) expiredLocked(e *entry, now time.Time) bool {
	return r.opts.TTL > 0 && now.Sub(e.lastAccess) > r.opts.TTL
}

func (r *InMemoryRegistry) removeLocked(e *entry) {
	delete(r.entries, e.key)
	r.lru.Remove(e.elem)
}

// finish runs callbacks for removed entries outside the lock.
func (r *InMemoryRegistry) finish(removed []removal) {
	for _, rm := range removed {
		if r.opts.Metrics != nil {
			r.opts.Metrics.ObserveRemoval(rm.reason)
		}
		if r.opts.OnEvict != nil {
			r.opts.OnEvict(rm.entry.key, rm.entry.inst, rm.reason)
		}
		if c, ok := rm.entry.inst.(io.Closer); ok {
			if err := c.Close(); err != nil {
				r.logger.Warn("registry failed to close instance", "key", rm.entry.key.String(), "error", err)
			}
		}
		if rm.reason != ReasonReset {
			r.logger.Debug("registry removed instance", "key", rm.entry.key.String(), "reason", rm.reason)
		}
	}
}

func (r *InMemoryRegistry) observeCreate(err error) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveCreate(err)
	}
}

func (r *InMemoryRegistry) setInstances(n int) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.SetInstances(n)
	}
}

func (r *InMemoryRegistry) janitor(interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// flightKey names one creation; it is collision free even when ids contain ':'.
func flightKey(key core.ConversationKey, id uint64) string {
	return strconv.Quote(key.UserID) + "/" + strconv.Quote(key.ConversationID) + "#" + strconv.FormatUint(id, 10)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
