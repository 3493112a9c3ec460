package query

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// QueriesObserver mounts a list of queries at once. Each position behaves
// like its own Observer; results are reported in input order.
type QueriesObserver struct {
	client *Client

	mu        sync.Mutex
	observers []*Observer
	unsubs    []func()
	listeners []queriesListener
	nextID    uint64
	closed    bool
}

type queriesListener struct {
	id uint64
	fn func([]Result)
}

// WatchAll mounts one observer per element of queries.
func (c *Client) WatchAll(queries []Options) *QueriesObserver {
	q := &QueriesObserver{client: c}
	q.SetQueries(queries)
	return q
}

// SetQueries replaces the list. Observers are reused by position; surplus
// observers are closed.
func (q *QueriesObserver) SetQueries(queries []Options) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	existing := q.observers
	unsubs := q.unsubs
	q.mu.Unlock()

	observers := make([]*Observer, len(queries))
	for i, opts := range queries {
		if i < len(existing) {
			existing[i].SetOptions(opts)
			observers[i] = existing[i]
			continue
		}
		o := q.client.Watch(opts)
		observers[i] = o
		unsubs = append(unsubs, o.Subscribe(func(Result) { q.emit() }))
	}
	for i := len(queries); i < len(existing); i++ {
		unsubs[i]()
		existing[i].Close()
	}
	if len(unsubs) > len(queries) {
		unsubs = unsubs[:len(queries)]
	}

	q.mu.Lock()
	q.observers = observers
	q.unsubs = unsubs
	q.mu.Unlock()
	q.emit()
}

// Results returns the current result of every query in input order.
func (q *QueriesObserver) Results() []Result {
	q.mu.Lock()
	observers := q.observers
	q.mu.Unlock()
	out := make([]Result, len(observers))
	for i, o := range observers {
		out[i] = o.Result()
	}
	return out
}

// Observers returns the per-query observers in input order.
func (q *QueriesObserver) Observers() []*Observer {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Observer, len(q.observers))
	copy(out, q.observers)
	return out
}

// Subscribe registers fn for changes of any result.
func (q *QueriesObserver) Subscribe(fn func([]Result)) func() {
	q.mu.Lock()
	q.nextID++
	id := q.nextID
	q.listeners = append(q.listeners, queriesListener{id: id, fn: fn})
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for i, l := range q.listeners {
			if l.id == id {
				q.listeners = append(q.listeners[:i:i], q.listeners[i+1:]...)
				return
			}
		}
	}
}

func (q *QueriesObserver) emit() {
	q.mu.Lock()
	if q.closed || len(q.listeners) == 0 {
		q.mu.Unlock()
		return
	}
	listeners := make([]queriesListener, len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.Unlock()
	results := q.Results()
	for _, l := range listeners {
		l.fn(results)
	}
}

// Refetch refetches every query concurrently and waits for all of them.
func (q *QueriesObserver) Refetch(ctx context.Context) ([]Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, o := range q.Observers() {
		if fn, _ := o.fetchParams(); fn == nil {
			continue
		}
		g.Go(func() error {
			_, err := o.Refetch(gctx)
			return err
		})
	}
	err := g.Wait()
	return q.Results(), err
}

// Close unmounts every observer.
func (q *QueriesObserver) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	observers, unsubs := q.observers, q.unsubs
	q.observers, q.unsubs, q.listeners = nil, nil, nil
	q.mu.Unlock()
	for i, o := range observers {
		unsubs[i]()
		o.Close()
	}
}
