package query

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-query/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MutationFunc performs a write with the given variables.
type MutationFunc func(ctx context.Context, vars any) (any, error)

// MutationOptions configure a Mutation. Callbacks run only for the latest
// invocation; superseded invocations skip them.
type MutationOptions struct {
	Fn MutationFunc
	// OnMutate runs before Fn. Its result is passed as mutationCtx to the
	// other callbacks, typically a snapshot for rollback. An error aborts
	// the invocation as a failure.
	OnMutate  func(ctx context.Context, vars any) (any, error)
	OnSuccess func(ctx context.Context, data, vars, mutationCtx any)
	OnError   func(ctx context.Context, err error, vars, mutationCtx any)
	OnSettled func(ctx context.Context, data any, err error, vars, mutationCtx any)
}

// MutateCallbacks are per-call callbacks for Mutate. They run after the
// option-level callbacks.
type MutateCallbacks struct {
	OnSuccess func(data, vars any)
	OnError   func(err error, vars any)
	OnSettled func(data any, err error, vars any)
}

// MutationState is the state exposed by a Mutation.
type MutationState struct {
	Status    Status
	Data      any
	Error     error
	Variables any
	// SubmittedAt is when the latest invocation started. Zero while idle.
	SubmittedAt time.Time
	IsIdle      bool
	IsLoading   bool
	IsSuccess   bool
	IsError     bool
}

func newMutationState(status Status, data any, err error, vars any, submittedAt time.Time) MutationState {
	return MutationState{
		Status:      status,
		Data:        data,
		Error:       err,
		Variables:   vars,
		SubmittedAt: submittedAt,
		IsIdle:      status == StatusIdle,
		IsLoading:   status == StatusLoading,
		IsSuccess:   status == StatusSuccess,
		IsError:     status == StatusError,
	}
}

// Mutation runs writes and exposes the state of the latest invocation.
// Every invocation bumps a generation; only the latest generation may
// commit state or run callbacks.
type Mutation struct {
	client *Client
	opts   MutationOptions
	log    logger.Logger

	mu         sync.Mutex
	generation uint64
	state      MutationState
	listeners  []mutationListener
	nextID     uint64
}

type mutationListener struct {
	id uint64
	fn func(MutationState)
}

// NewMutation returns an idle Mutation. A nil Fn panics.
func (c *Client) NewMutation(opts MutationOptions) *Mutation {
	if opts.Fn == nil {
		programmerError("query: NewMutation requires Fn")
	}
	return &Mutation{
		client: c,
		opts:   opts,
		log:    c.logger.WithPrefix("[mutation]"),
		state:  newMutationState(StatusIdle, nil, nil, nil, time.Time{}),
	}
}

// State returns the current state.
func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for state changes and returns the function
// removing it.
func (m *Mutation) Subscribe(fn func(MutationState)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, mutationListener{id: id, fn: fn})
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Reset returns the mutation to idle. Invocations in flight can no longer
// commit.
func (m *Mutation) Reset() {
	m.mu.Lock()
	m.generation++
	m.mu.Unlock()
	m.commit(0, newMutationState(StatusIdle, nil, nil, nil, time.Time{}), true)
}

// commit stores st when gen is still current, or unconditionally with force.
func (m *Mutation) commit(gen uint64, st MutationState, force bool) bool {
	m.mu.Lock()
	if !force && gen != m.generation {
		m.mu.Unlock()
		return false
	}
	m.state = st
	listeners := make([]mutationListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, l := range listeners {
		l.fn(st)
	}
	return true
}

// MutateAsync runs the mutation and returns its own outcome, even when a
// newer invocation superseded it.
func (m *Mutation) MutateAsync(ctx context.Context, vars any) (any, error) {
	return m.execute(ctx, m.begin(vars), vars, MutateCallbacks{})
}

// Mutate runs the mutation in the background. The outcome is delivered to
// cb only; nothing is returned to the caller.
func (m *Mutation) Mutate(ctx context.Context, vars any, cb MutateCallbacks) {
	go m.execute(ctx, m.begin(vars), vars, cb)
}

type invocation struct {
	gen         uint64
	submittedAt time.Time
}

// begin starts a new generation in the loading state.
func (m *Mutation) begin(vars any) invocation {
	m.mu.Lock()
	m.generation++
	inv := invocation{gen: m.generation, submittedAt: m.client.cfg.now()}
	m.mu.Unlock()
	m.commit(inv.gen, newMutationState(StatusLoading, nil, nil, vars, inv.submittedAt), false)
	return inv
}

func (m *Mutation) execute(ctx context.Context, inv invocation, vars any, cb MutateCallbacks) (any, error) {
	id := uuid.NewString()
	ctx, span := m.client.tracer.Start(ctx, "query.mutate",
		trace.WithAttributes(attribute.String("mutation.id", id)))
	defer span.End()
	m.client.counters.mutations.Add(1)
	log := logger.WithKV(m.log, "mutation", id)

	var mutationCtx any
	var data any
	var err error
	if m.opts.OnMutate != nil {
		mutationCtx, err = m.opts.OnMutate(ctx, vars)
	}
	if err == nil {
		data, err = m.opts.Fn(ctx, vars)
	}

	if err != nil {
		m.client.counters.mutationFailures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if IsAuthError(err) {
			log.Warn("mutation failed with authentication error: %s", err)
			m.client.reportAuthError(err)
		} else {
			log.Debug("mutation failed: %s", err)
		}
	}

	if err != nil {
		if !m.commit(inv.gen, newMutationState(StatusError, nil, err, vars, inv.submittedAt), false) {
			log.Debug("superseded, failure discarded")
			return nil, err
		}
		if m.opts.OnError != nil {
			m.opts.OnError(ctx, err, vars, mutationCtx)
		}
		if m.opts.OnSettled != nil {
			m.opts.OnSettled(ctx, nil, err, vars, mutationCtx)
		}
		if cb.OnError != nil {
			cb.OnError(err, vars)
		}
		if cb.OnSettled != nil {
			cb.OnSettled(nil, err, vars)
		}
		return nil, err
	}
	if !m.commit(inv.gen, newMutationState(StatusSuccess, data, nil, vars, inv.submittedAt), false) {
		log.Debug("superseded, result discarded")
		return data, nil
	}
	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(ctx, data, vars, mutationCtx)
	}
	if m.opts.OnSettled != nil {
		m.opts.OnSettled(ctx, data, nil, vars, mutationCtx)
	}
	if cb.OnSuccess != nil {
		cb.OnSuccess(data, vars)
	}
	if cb.OnSettled != nil {
		cb.OnSettled(data, nil, vars)
	}
	return data, nil
}
