package query

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-query/key"
)

const shardCount = 16

type listenerRef struct {
	id uint64
	fn Listener
}

type entry struct {
	key       key.Key
	state     State
	cacheTime time.Duration
	// gcAt is when the entry becomes collectable. Zero while observed or
	// when cacheTime is Forever.
	gcAt time.Time
	// fn and opts are the last known way to fetch this key, kept so that
	// invalidation and refetch can run without an observer at hand.
	fn   QueryFunc
	opts fetchOptions
}

type fetchCall struct {
	done chan struct{}
	data any
	err  error
	// invalidated is set, under the shard lock, when the entry was
	// invalidated while this fetch ran. Its result then lands stale.
	invalidated bool
}

// wait blocks until the fetch settles or ctx is done. Giving up on the wait
// never cancels the fetch.
func (f *fetchCall) wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shard holds a slice of the key space. Listeners and in-flight fetches are
// kept beside the entries so they survive forced removal: a fetch that
// completes after its entry was removed recreates it and still reaches the
// mounted listeners.
type shard struct {
	mu        sync.Mutex
	entries   map[string]*entry
	listeners map[string][]listenerRef
	inflight  map[string]*fetchCall
}

// Store maps canonical query keys to cache entries. It is safe for
// concurrent use; each shard is guarded by its own mutex and listeners are
// always invoked after the lock is released.
type Store struct {
	shards    [shardCount]*shard
	now       func() time.Time
	cacheTime time.Duration
	ids       atomic.Uint64
	seq       atomic.Uint64
	evictions atomic.Uint64
}

// NewStore returns an empty Store. Only WithClock and WithCacheTime apply.
func NewStore(opts ...Option) *Store {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newStore(cfg.now, cfg.cacheTime)
}

func newStore(now func() time.Time, cacheTime time.Duration) *Store {
	s := &Store{now: now, cacheTime: cacheTime}
	for i := range s.shards {
		s.shards[i] = &shard{
			entries:   make(map[string]*entry),
			listeners: make(map[string][]listenerRef),
			inflight:  make(map[string]*fetchCall),
		}
	}
	return s
}

func (s *Store) shardFor(k key.Key) *shard {
	return s.shards[k.Hash()%shardCount]
}

func deadline(now time.Time, d time.Duration) time.Time {
	if d == Forever {
		return time.Time{}
	}
	return now.Add(d)
}

// entryLocked returns the entry for k, creating an idle one when absent.
func (s *Store) entryLocked(sh *shard, k key.Key, cacheTime time.Duration) *entry {
	h := k.String()
	if e, ok := sh.entries[h]; ok {
		return e
	}
	if cacheTime <= 0 {
		cacheTime = s.cacheTime
	}
	e := &entry{key: k, cacheTime: cacheTime}
	if len(sh.listeners[h]) == 0 {
		e.gcAt = deadline(s.now(), cacheTime)
	}
	sh.entries[h] = e
	return e
}

func (s *Store) snapshotLocked(sh *shard, e *entry) (State, []Listener) {
	e.state.seq = s.seq.Add(1)
	refs := sh.listeners[e.key.String()]
	out := make([]Listener, len(refs))
	for i, ref := range refs {
		out[i] = ref.fn
	}
	return e.state, out
}

func notify(st State, listeners []Listener) {
	for _, l := range listeners {
		l(st)
	}
}

// Get returns the state of k.
func (s *Store) Get(k key.Key) (State, bool) {
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[k.String()]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// GetOrCreate returns the state of k, creating an idle entry when absent.
// A non-positive cacheTime uses the store default.
func (s *Store) GetOrCreate(k key.Key, cacheTime time.Duration) State {
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return s.entryLocked(sh, k, cacheTime).state
}

// Subscribe registers l for writes to k and returns the function removing
// it. Removing the last listener starts the entry's cacheTime clock.
func (s *Store) Subscribe(k key.Key, l Listener) func() {
	sh := s.shardFor(k)
	h := k.String()
	id := s.ids.Add(1)

	sh.mu.Lock()
	e := s.entryLocked(sh, k, 0)
	sh.listeners[h] = append(sh.listeners[h], listenerRef{id: id, fn: l})
	e.gcAt = time.Time{}
	sh.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sh.mu.Lock()
			defer sh.mu.Unlock()
			refs := sh.listeners[h]
			for i, ref := range refs {
				if ref.id == id {
					refs = append(refs[:i:i], refs[i+1:]...)
					break
				}
			}
			if len(refs) > 0 {
				sh.listeners[h] = refs
				return
			}
			delete(sh.listeners, h)
			if e, ok := sh.entries[h]; ok {
				e.gcAt = deadline(s.now(), e.cacheTime)
			}
		})
	}
}

// Observers returns the number of listeners registered for k.
func (s *Store) Observers(k key.Key) int {
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.listeners[k.String()])
}

// Write applies patch to the entry of k, creating it if needed, then
// notifies the listeners of k in subscription order.
func (s *Store) Write(k key.Key, patch Patch) State {
	sh := s.shardFor(k)
	sh.mu.Lock()
	e := s.entryLocked(sh, k, 0)
	patch(&e.state)
	st, listeners := s.snapshotLocked(sh, e)
	sh.mu.Unlock()
	notify(st, listeners)
	return st
}

// Remove deletes the entry of k. Without force an observed entry is kept.
// Listeners of a forcibly removed entry receive an empty idle state.
func (s *Store) Remove(k key.Key, force bool) bool {
	sh := s.shardFor(k)
	sh.mu.Lock()
	st, listeners, ok := s.removeLocked(sh, k.String(), force)
	sh.mu.Unlock()
	if ok {
		notify(st, listeners)
	}
	return ok
}

func (s *Store) removeLocked(sh *shard, h string, force bool) (State, []Listener, bool) {
	e, ok := sh.entries[h]
	if !ok {
		return State{}, nil, false
	}
	if !force && len(sh.listeners[h]) > 0 {
		return State{}, nil, false
	}
	delete(sh.entries, h)
	e.state = State{}
	st, listeners := s.snapshotLocked(sh, e)
	return st, listeners, true
}

// RemoveMatching deletes every entry whose key has partial as prefix and
// returns how many were removed.
func (s *Store) RemoveMatching(partial key.Key, exact, force bool) int {
	removed := 0
	for _, sh := range s.shards {
		type removal struct {
			st        State
			listeners []Listener
		}
		var pending []removal
		sh.mu.Lock()
		for h, e := range sh.entries {
			if !e.key.HasPrefix(partial, exact) {
				continue
			}
			if st, listeners, ok := s.removeLocked(sh, h, force); ok {
				pending = append(pending, removal{st, listeners})
				removed++
			}
		}
		sh.mu.Unlock()
		for _, r := range pending {
			notify(r.st, r.listeners)
		}
	}
	return removed
}

type match struct {
	key       key.Key
	state     State
	fn        QueryFunc
	opts      fetchOptions
	observers int
	// inflight is the fetch that was running when the match was taken.
	inflight *fetchCall
}

func (s *Store) matching(partial key.Key, exact bool) []match {
	var out []match
	for _, sh := range s.shards {
		sh.mu.Lock()
		for h, e := range sh.entries {
			if !e.key.HasPrefix(partial, exact) {
				continue
			}
			out = append(out, match{
				key:       e.key,
				state:     e.state,
				fn:        e.fn,
				opts:      e.opts,
				observers: len(sh.listeners[h]),
			})
		}
		sh.mu.Unlock()
	}
	return out
}

// ForEachMatching calls fn with a snapshot of every entry whose key has
// partial as prefix. Iteration order is unspecified. fn runs without any
// store lock held and may write to the store.
func (s *Store) ForEachMatching(partial key.Key, exact bool, fn func(k key.Key, st State)) {
	for _, m := range s.matching(partial, exact) {
		fn(m.key, m.state)
	}
}

// Collect removes every entry that has no listeners, no fetch in flight
// and whose cacheTime has elapsed. It returns the number removed.
func (s *Store) Collect() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for h, e := range sh.entries {
			if len(sh.listeners[h]) > 0 || sh.inflight[h] != nil {
				continue
			}
			if e.gcAt.IsZero() || now.Before(e.gcAt) {
				continue
			}
			delete(sh.entries, h)
			removed++
		}
		sh.mu.Unlock()
	}
	s.evictions.Add(uint64(removed))
	return removed
}

// Len returns the number of entries.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// configure records how k is fetched and widens its cacheTime.
func (s *Store) configure(k key.Key, fn QueryFunc, opts fetchOptions) {
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s.configureLocked(s.entryLocked(sh, k, opts.cacheTime), fn, opts)
}

func (s *Store) configureLocked(e *entry, fn QueryFunc, opts fetchOptions) {
	if fn != nil {
		e.fn = fn
		e.opts = opts
	}
	if opts.cacheTime > e.cacheTime {
		e.cacheTime = opts.cacheTime
	}
}

// beginFetch registers a fetch for k unless one is already in flight. It
// reports whether the caller owns the new call and must run it.
func (s *Store) beginFetch(k key.Key, fn QueryFunc, opts fetchOptions) (*fetchCall, bool) {
	sh := s.shardFor(k)
	h := k.String()
	sh.mu.Lock()
	if call, ok := sh.inflight[h]; ok {
		sh.mu.Unlock()
		return call, false
	}
	call := &fetchCall{done: make(chan struct{})}
	sh.inflight[h] = call
	e := s.entryLocked(sh, k, opts.cacheTime)
	s.configureLocked(e, fn, opts)
	e.state.IsFetching = true
	e.state.Status = StatusLoading
	e.state.FailureCount = 0
	st, listeners := s.snapshotLocked(sh, e)
	sh.mu.Unlock()
	notify(st, listeners)
	return call, true
}

// finishFetch stores the outcome of call, recreating the entry if it was
// removed while the fetch ran, and releases the waiters. Data from a call
// invalidated mid-flight is stored but stays invalidated.
func (s *Store) finishFetch(k key.Key, call *fetchCall, data any, err error, opts fetchOptions) State {
	sh := s.shardFor(k)
	h := k.String()
	sh.mu.Lock()
	e := s.entryLocked(sh, k, opts.cacheTime)
	now := s.now()
	if err == nil {
		e.state.Data = data
		e.state.Error = nil
		e.state.Status = StatusSuccess
		e.state.UpdatedAt = now
		e.state.FailureCount = 0
		e.state.IsInvalidated = call.invalidated
	} else {
		e.state.Error = err
		e.state.Status = StatusError
		e.state.ErrorUpdatedAt = now
		if opts.clearDataOnError {
			e.state.Data = nil
			e.state.UpdatedAt = time.Time{}
		}
	}
	e.state.IsFetching = false
	if sh.inflight[h] == call {
		delete(sh.inflight, h)
	}
	call.data, call.err = data, err
	st, listeners := s.snapshotLocked(sh, e)
	sh.mu.Unlock()
	notify(st, listeners)
	close(call.done)
	return st
}

// inflightCall returns the running fetch of k, if any.
func (s *Store) inflightCall(k key.Key) *fetchCall {
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.inflight[k.String()]
}

// invalidate marks every matching entry stale and returns the matches.
func (s *Store) invalidate(partial key.Key, exact bool) []match {
	var out []match
	for _, sh := range s.shards {
		type pending struct {
			st        State
			listeners []Listener
		}
		var notes []pending
		sh.mu.Lock()
		for h, e := range sh.entries {
			if !e.key.HasPrefix(partial, exact) {
				continue
			}
			e.state.IsInvalidated = true
			if call, ok := sh.inflight[h]; ok {
				call.invalidated = true
			}
			st, listeners := s.snapshotLocked(sh, e)
			notes = append(notes, pending{st, listeners})
			out = append(out, match{
				key:       e.key,
				state:     st,
				fn:        e.fn,
				opts:      e.opts,
				observers: len(sh.listeners[h]),
				inflight:  sh.inflight[h],
			})
		}
		sh.mu.Unlock()
		for _, n := range notes {
			notify(n.st, n.listeners)
		}
	}
	return out
}
