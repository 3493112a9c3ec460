package query

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-query/key"
	"github.com/agentuity/go-query/logger"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Client coordinates one cache: it owns the Store, runs fetches, tracks the
// mounted observers and sweeps unobserved entries. Clients are isolated
// from each other.
type Client struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       config
	store     *Store
	logger    logger.Logger
	tracer    trace.Tracer
	counters  counters
	mu        sync.Mutex
	observers map[*Observer]struct{}
	waitGroup sync.WaitGroup
	once      sync.Once
}

// New returns a Client. Fetches run under a context derived from parent;
// cancelling parent or calling Close cancels them.
func New(parent context.Context, opts ...Option) *Client {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		store:     newStore(cfg.now, cfg.cacheTime),
		logger:    cfg.logger.WithPrefix("[query]"),
		tracer:    cfg.tracerProvider.Tracer(tracerName),
		observers: make(map[*Observer]struct{}),
	}
	if cfg.gcInterval > 0 && cfg.gcInterval != Forever {
		c.waitGroup.Add(1)
		go c.run()
	}
	return c
}

func (c *Client) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if n := c.store.Collect(); n > 0 {
				c.logger.Trace("collected %d unobserved entries", n)
			}
		}
	}
}

// Close stops the background sweep, unmounts every observer and cancels
// in-flight fetches.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		observers := make([]*Observer, 0, len(c.observers))
		for o := range c.observers {
			observers = append(observers, o)
		}
		c.mu.Unlock()
		for _, o := range observers {
			o.Close()
		}
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

// Store returns the underlying cache store.
func (c *Client) Store() *Store { return c.store }

// Filter selects cache entries by key prefix. The zero Filter matches every
// entry; Exact requires the whole key to match.
type Filter struct {
	Key   any
	Exact bool
}

func (f Filter) partial() key.Key {
	if f.Key == nil {
		return key.New([]any{})
	}
	return key.New(f.Key)
}

// Updater computes new data from the previous data of an entry. It runs
// under the store lock and must not call back into the client.
type Updater func(old any) any

// SetQueryData writes data into the entry of k without fetching and marks
// it successful and fresh. data may be an Updater (or a func(any) any)
// receiving the previous data. It returns the stored data.
func (c *Client) SetQueryData(k any, data any) any {
	st := c.store.Write(key.New(k), func(s *State) {
		next := data
		switch fn := data.(type) {
		case Updater:
			next = fn(s.Data)
		case func(any) any:
			next = fn(s.Data)
		}
		s.Data = next
		s.Error = nil
		s.Status = StatusSuccess
		s.UpdatedAt = c.cfg.now()
		s.FailureCount = 0
		s.IsInvalidated = false
	})
	return st.Data
}

// GetQueryData returns the data cached for k.
func (c *Client) GetQueryData(k any) (any, bool) {
	st, ok := c.store.Get(key.New(k))
	if !ok || !st.HasData() {
		return nil, false
	}
	return st.Data, true
}

// GetQueryState returns the full state cached for k.
func (c *Client) GetQueryState(k any) (State, bool) {
	return c.store.Get(key.New(k))
}

// RemoveQueries deletes the matching entries whether or not they are
// observed. A fetch still running for a removed key completes into a new
// entry. It returns the number of entries removed.
func (c *Client) RemoveQueries(f Filter) int {
	n := c.store.RemoveMatching(f.partial(), f.Exact, true)
	c.logger.Debug("removed %d queries", n)
	return n
}

// Clear removes every entry.
func (c *Client) Clear() {
	c.RemoveQueries(Filter{})
}

// InvalidateQueries marks the matching entries stale and refetches the
// ones that have at least one enabled observer. Data stays visible while
// the refetches run. A fetch already in flight for an observed key is
// followed by a new one once it settles, and its own result stays stale. It waits for those refetches and returns the first
// error among them; unobserved entries are only marked.
func (c *Client) InvalidateQueries(ctx context.Context, f Filter) error {
	c.counters.invalidations.Add(1)
	matches := c.store.invalidate(f.partial(), f.Exact)
	active := c.activeObservers()
	var calls []*fetchCall
	for _, m := range matches {
		o, ok := active[m.key.String()]
		if !ok {
			continue
		}
		fn, opts := o.fetchParams()
		if m.inflight != nil {
			// the running fetch may predate the invalidation
			calls = append(calls, c.fetchAfter(m.inflight, m.key, fn, opts))
			continue
		}
		calls = append(calls, c.fetch(m.key, fn, opts))
	}
	c.logger.Debug("invalidated %d queries, refetching %d", len(matches), len(calls))
	return waitAll(ctx, calls)
}

// RefetchQueries fetches every matching entry that has a known query
// function, regardless of staleness, and waits for the fetches.
func (c *Client) RefetchQueries(ctx context.Context, f Filter) error {
	active := c.activeObservers()
	var calls []*fetchCall
	for _, m := range c.store.matching(f.partial(), f.Exact) {
		fn, opts := m.fn, m.opts
		if o, ok := active[m.key.String()]; ok {
			fn, opts = o.fetchParams()
		}
		if fn == nil {
			continue
		}
		calls = append(calls, c.fetch(m.key, fn, opts))
	}
	return waitAll(ctx, calls)
}

func waitAll(ctx context.Context, calls []*fetchCall) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, call := range calls {
		g.Go(func() error {
			_, err := call.wait(gctx)
			return err
		})
	}
	return g.Wait()
}

// FetchQuery returns fresh cached data for opts.Key, or fetches it (joining
// any fetch in flight) and waits for the result. Giving up through ctx does
// not cancel the fetch.
func (c *Client) FetchQuery(ctx context.Context, opts Options) (any, error) {
	if opts.Fn == nil {
		programmerError("query: FetchQuery requires Fn for key %s", key.Canonicalize(opts.Key))
	}
	r := c.cfg.resolve(opts)
	k := key.New(opts.Key)
	st := c.store.GetOrCreate(k, r.cacheTime)
	if !st.IsStale(r.staleTime, c.cfg.now()) {
		c.counters.hits.Add(1)
		return st.Data, nil
	}
	return c.fetch(k, opts.Fn, r.fetchOptions).wait(ctx)
}

// PrefetchQuery starts a fetch for opts.Key when the cached data is missing
// or stale and returns without waiting.
func (c *Client) PrefetchQuery(opts Options) {
	if opts.Fn == nil {
		programmerError("query: PrefetchQuery requires Fn for key %s", key.Canonicalize(opts.Key))
	}
	r := c.cfg.resolve(opts)
	k := key.New(opts.Key)
	st := c.store.GetOrCreate(k, r.cacheTime)
	if !st.IsStale(r.staleTime, c.cfg.now()) {
		return
	}
	c.fetch(k, opts.Fn, r.fetchOptions)
}

// Focus signals that the application regained focus. Observers with
// RefetchOnWindowFocus refetch their stale data.
func (c *Client) Focus() {
	for _, o := range c.mounted() {
		o.ensureFresh(triggerFocus)
	}
}

// Reconnect signals that connectivity was restored. Observers with
// RefetchOnReconnect refetch their stale data.
func (c *Client) Reconnect() {
	for _, o := range c.mounted() {
		o.ensureFresh(triggerReconnect)
	}
}

func (c *Client) register(o *Observer) {
	c.mu.Lock()
	c.observers[o] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) unregister(o *Observer) {
	c.mu.Lock()
	delete(c.observers, o)
	c.mu.Unlock()
}

func (c *Client) mounted() []*Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Observer, 0, len(c.observers))
	for o := range c.observers {
		out = append(out, o)
	}
	return out
}

// activeObservers returns one enabled observer per canonical key.
func (c *Client) activeObservers() map[string]*Observer {
	out := make(map[string]*Observer)
	for _, o := range c.mounted() {
		h, enabled := o.activeKey()
		if !enabled {
			continue
		}
		if _, ok := out[h]; !ok {
			out[h] = o
		}
	}
	return out
}

func (c *Client) reportAuthError(err error) {
	if c.cfg.onAuthError != nil {
		c.cfg.onAuthError(err)
	}
}
