package query

import (
	"github.com/agentuity/go-query/key"
	"github.com/agentuity/go-query/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// fetch starts a fetch of k, or joins the one already in flight so that a
// key never has two concurrent fetches.
func (c *Client) fetch(k key.Key, fn QueryFunc, opts fetchOptions) *fetchCall {
	call, started := c.store.beginFetch(k, fn, opts)
	log := logger.WithKV(c.logger, "key", k.String())
	if !started {
		c.counters.deduplicated.Add(1)
		log.Trace("joined in-flight fetch")
		return call
	}
	c.counters.fetches.Add(1)
	log.Trace("fetch started")
	go c.execute(k, fn, opts, call, log)
	return call
}

// fetchAfter fetches k once prev settles. The returned call settles with
// that follow-up fetch.
func (c *Client) fetchAfter(prev *fetchCall, k key.Key, fn QueryFunc, opts fetchOptions) *fetchCall {
	out := &fetchCall{done: make(chan struct{})}
	go func() {
		<-prev.done
		next := c.fetch(k, fn, opts)
		<-next.done
		out.data, out.err = next.data, next.err
		close(out.done)
	}()
	return out
}

// execute runs a fetch to completion. The result always lands in the
// store, even when every observer of k went away in the meantime.
func (c *Client) execute(k key.Key, fn QueryFunc, opts fetchOptions, call *fetchCall, log logger.Logger) {
	ctx, span := c.tracer.Start(c.ctx, "query.fetch",
		trace.WithAttributes(attribute.String("query.key", k.String())))
	defer span.End()

	data, err := retryFetch(ctx, fn, opts, func(failures int, err error, retrying bool) {
		if retrying {
			c.counters.retries.Add(1)
			log.Debug("attempt %d failed, retrying: %s", failures, err)
		}
		c.store.Write(k, func(s *State) { s.FailureCount = failures })
		span.SetAttributes(attribute.Int("query.failures", failures))
	})
	if err != nil {
		c.counters.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if class := Classify(err); class == ClassAuth {
			log.Warn("fetch failed with authentication error: %s", err)
			c.reportAuthError(err)
		} else {
			log.Debug("fetch failed (%s): %s", class, err)
		}
	} else {
		log.Trace("fetch succeeded")
	}
	c.store.finishFetch(k, call, data, err, opts)
}
