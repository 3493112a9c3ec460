package query

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-query/key"
	"github.com/agentuity/go-query/logger"
	"github.com/google/uuid"
)

type trigger int

const (
	triggerMount trigger = iota
	triggerOptions
	triggerFocus
	triggerReconnect
	triggerInterval
)

func (t trigger) String() string {
	switch t {
	case triggerMount:
		return "mount"
	case triggerOptions:
		return "options"
	case triggerFocus:
		return "focus"
	case triggerReconnect:
		return "reconnect"
	default:
		return "interval"
	}
}

// Result is what an Observer exposes to its consumer.
type Result struct {
	Data   any
	Error  error
	Status Status
	// IsLoading is true while the first fetch runs and there is no data to
	// show. Background refetches keep the previous status.
	IsLoading  bool
	IsFetching bool
	IsSuccess  bool
	IsError    bool
	IsStale    bool
	// IsPreviousData is true when Data belongs to the previous key, shown
	// because KeepPreviousData is set and the current key has no data yet.
	IsPreviousData bool
	UpdatedAt      time.Time
	FailureCount   int
}

type resultListener struct {
	id uint64
	fn func(Result)
}

// Observer is a mounted consumer of one query. It subscribes to the entry
// of its key, fetches when the data is missing or stale and keeps a Result
// derived from the entry state. Close unmounts it.
type Observer struct {
	client *Client
	id     string
	log    logger.Logger

	mu        sync.Mutex
	opts      Options
	resolved  resolvedOptions
	key       key.Key
	mounted   bool
	unsub     func()
	result    Result
	previous  *Result
	lastSeq   uint64
	listeners []resultListener
	nextID    uint64
	closed    bool
	stopPoll  chan struct{}
}

// Watch mounts an observer for opts. An enabled query without Fn is a
// programming error and panics.
func (c *Client) Watch(opts Options) *Observer {
	id := uuid.NewString()
	o := &Observer{client: c, id: id, log: logger.WithKV(c.logger, "observer", id)}
	o.apply(opts, triggerMount)
	c.register(o)
	return o
}

// ID uniquely identifies the observer. It is attached to its log entries.
func (o *Observer) ID() string { return o.id }

// Key returns the current key.
func (o *Observer) Key() key.Key {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

// Result returns the current result.
func (o *Observer) Result() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// SetOptions replaces the options. A new key moves the subscription, and
// the new entry is treated as freshly mounted.
func (o *Observer) SetOptions(opts Options) {
	o.apply(opts, triggerOptions)
}

func (o *Observer) apply(opts Options, t trigger) {
	r := o.client.cfg.resolve(opts)
	if r.enabled && opts.Fn == nil {
		programmerError("query: Fn is required for enabled query %s", key.Canonicalize(opts.Key))
	}
	k := key.New(opts.Key)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	changed := !o.mounted || !k.Equal(o.key)
	old := o.unsub
	o.opts, o.resolved, o.key = opts, r, k
	if changed {
		o.mounted = true
		o.unsub = nil
		o.lastSeq = 0
	}
	o.mu.Unlock()

	if changed {
		if old != nil {
			old()
		}
		unsub := o.client.store.Subscribe(k, func(st State) { o.onState(k, st) })
		o.mu.Lock()
		if o.closed || !k.Equal(o.key) {
			o.mu.Unlock()
			unsub()
		} else {
			o.unsub = unsub
			o.mu.Unlock()
		}
		t = triggerMount
	}
	if opts.Fn != nil {
		o.client.store.configure(k, opts.Fn, r.fetchOptions)
	}
	st, _ := o.client.store.Get(k)
	o.onState(k, st)
	o.restartPolling()
	o.ensureFresh(t)
}

// onState folds an entry snapshot into the result. Snapshots older than the
// last one seen are dropped.
func (o *Observer) onState(k key.Key, st State) {
	o.mu.Lock()
	if o.closed || !k.Equal(o.key) || st.seq < o.lastSeq {
		o.mu.Unlock()
		return
	}
	o.lastSeq = st.seq
	r := o.computeLocked(st)
	o.result = r
	if st.HasData() {
		prev := r
		o.previous = &prev
	}
	listeners := make([]resultListener, len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()
	for _, l := range listeners {
		l.fn(r)
	}
}

func (o *Observer) computeLocked(st State) Result {
	r := Result{
		Data:         st.Data,
		Error:        st.Error,
		Status:       st.Status,
		IsFetching:   st.IsFetching,
		UpdatedAt:    st.UpdatedAt,
		FailureCount: st.FailureCount,
		IsStale:      st.IsStale(o.resolved.staleTime, o.client.cfg.now()),
	}
	if st.Status == StatusLoading && st.HasData() {
		// background refetch: keep showing the settled outcome
		if st.Error != nil {
			r.Status = StatusError
		} else {
			r.Status = StatusSuccess
		}
	}
	if !st.HasData() && st.Status != StatusError && o.resolved.keepPreviousData && o.previous != nil {
		r.Data = o.previous.Data
		r.UpdatedAt = o.previous.UpdatedAt
		r.Status = StatusSuccess
		r.IsPreviousData = true
	}
	r.IsLoading = r.Status == StatusLoading
	r.IsSuccess = r.Status == StatusSuccess
	r.IsError = r.Status == StatusError
	return r
}

// ensureFresh starts or joins a fetch when the entry needs one for the
// given trigger. It returns the fetch, or nil when none is needed.
func (o *Observer) ensureFresh(t trigger) *fetchCall {
	o.mu.Lock()
	closed, r, k, fn := o.closed, o.resolved, o.key, o.opts.Fn
	o.mu.Unlock()
	if closed || !r.enabled {
		return nil
	}
	switch t {
	case triggerFocus:
		if !r.refetchOnWindowFocus {
			return nil
		}
	case triggerReconnect:
		if !r.refetchOnReconnect {
			return nil
		}
	}
	st, _ := o.client.store.Get(k)
	stale := st.IsStale(r.staleTime, o.client.cfg.now())
	need := t == triggerInterval || !st.HasData() ||
		(stale && (t != triggerMount || r.refetchOnMount))
	if !need {
		if st.HasData() {
			o.client.counters.hits.Add(1)
		}
		return nil
	}
	o.log.Trace("fetching %s on %s", k, t)
	return o.client.fetch(k, fn, r.fetchOptions)
}

// fetchParams returns how the observer fetches its key.
func (o *Observer) fetchParams() (QueryFunc, fetchOptions) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opts.Fn, o.resolved.fetchOptions
}

// activeKey returns the canonical key and whether the observer is enabled.
func (o *Observer) activeKey() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key.String(), !o.closed && o.resolved.enabled && o.opts.Fn != nil
}

// Refetch fetches the key regardless of staleness, joining a fetch in
// flight, and waits for it. It works on disabled queries when Fn is set.
func (o *Observer) Refetch(ctx context.Context) (Result, error) {
	fn, opts := o.fetchParams()
	k := o.Key()
	if fn == nil {
		programmerError("query: Refetch requires Fn for query %s", k)
	}
	_, err := o.client.fetch(k, fn, opts).wait(ctx)
	return o.Result(), err
}

// Wait blocks until the fetch in flight for the key, if any, settles.
func (o *Observer) Wait(ctx context.Context) (Result, error) {
	if call := o.client.store.inflightCall(o.Key()); call != nil {
		if _, err := call.wait(ctx); err != nil {
			return o.Result(), err
		}
	}
	return o.Result(), nil
}

// Subscribe registers fn for every result change and returns the function
// removing it.
func (o *Observer) Subscribe(fn func(Result)) func() {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.listeners = append(o.listeners, resultListener{id: id, fn: fn})
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, l := range o.listeners {
			if l.id == id {
				o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
				return
			}
		}
	}
}

// Close unmounts the observer. A fetch it started keeps running and still
// writes its result to the cache.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	unsub := o.unsub
	o.unsub = nil
	o.listeners = nil
	if o.stopPoll != nil {
		close(o.stopPoll)
		o.stopPoll = nil
	}
	o.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	o.client.unregister(o)
}

func (o *Observer) restartPolling() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopPoll != nil {
		close(o.stopPoll)
		o.stopPoll = nil
	}
	if o.closed || !o.resolved.enabled || o.resolved.refetchInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	o.stopPoll = stop
	go o.poll(o.resolved.refetchInterval, stop)
}

func (o *Observer) poll(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-o.client.ctx.Done():
			return
		case <-ticker.C:
			o.ensureFresh(triggerInterval)
		}
	}
}
